/**
 * Configuration for the filing ETL worker binaries.
 *
 * Loads configuration from environment variables / .env, matching the
 * variable names and defaults in SPEC_FULL.md §6.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ExtractionConfig holds extraction-worker configuration.
type ExtractionConfig struct {
	ArrayIndex int
	JobID      string
	ChunkSize  int

	ManifestBucket      string
	ManifestKey         string
	ManifestChunkPrefix string
	OutputBucket        string
	OutputPrefix        string

	Exchange string

	MetadataBucket string
	MetadataKey    string

	EnableJobTracking bool
	EnableDedup       bool

	OCRQueueName     string
	EnableOCRQueue   bool
	OCRPageChunkSize int
	EnableInlineOCR  bool

	GibberishMinLength        int
	GibberishReplacementRatio float64
	GibberishUnprintableRatio float64

	DatabaseURL string
	RedisURL    string
	LogLevel    string
}

// LoadExtractionConfig loads configuration for the extraction-worker binary.
func LoadExtractionConfig() (*ExtractionConfig, error) {
	cfg := &ExtractionConfig{
		ArrayIndex: getEnvAsIntOrDefault("ARRAY_INDEX", 0),
		JobID:      getEnvOrDefault("JOB_ID", fmt.Sprintf("local-%d", os.Getpid())),
		ChunkSize:  getEnvAsIntOrDefault("CHUNK_SIZE", 1000),

		ManifestBucket:      getEnvOrDefault("MANIFEST_BUCKET", ""),
		ManifestKey:         getEnvOrDefault("MANIFEST_KEY", ""),
		ManifestChunkPrefix: getEnvOrDefault("MANIFEST_CHUNK_PREFIX", ""),
		OutputBucket:        getEnvOrDefault("OUTPUT_BUCKET", ""),
		OutputPrefix:        getEnvOrDefault("OUTPUT_PREFIX", "processed"),

		Exchange: getEnvOrDefault("EXCHANGE", ""),

		MetadataBucket: getEnvOrDefault("METADATA_BUCKET", ""),
		MetadataKey:    getEnvOrDefault("METADATA_KEY", ""),

		EnableJobTracking: getEnvAsBoolOrDefault("ENABLE_JOB_TRACKING", false),
		EnableDedup:       getEnvAsBoolOrDefault("ENABLE_DEDUP", false),

		OCRQueueName:     getEnvOrDefault("OCR_QUEUE_URL", ""),
		EnableOCRQueue:   getEnvAsBoolOrDefault("ENABLE_OCR_QUEUE", true),
		OCRPageChunkSize: getEnvAsIntOrDefault("OCR_PAGE_CHUNK_SIZE", 10),
		EnableInlineOCR:  getEnvAsBoolOrDefault("ENABLE_INLINE_OCR", false),

		GibberishMinLength:        getEnvAsIntOrDefault("GIBBERISH_MIN_LENGTH", 20),
		GibberishReplacementRatio: getEnvAsFloatOrDefault("GIBBERISH_REPLACEMENT_RATIO", 0.05),
		GibberishUnprintableRatio: getEnvAsFloatOrDefault("GIBBERISH_UNPRINTABLE_RATIO", 0.10),

		DatabaseURL: getEnvOrDefault("DATABASE_URL", ""),
		RedisURL:    getEnvOrDefault("REDIS_URL", ""),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "INFO"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks required extraction-worker configuration.
func (c *ExtractionConfig) Validate() error {
	if c.ManifestBucket == "" {
		return fmt.Errorf("MANIFEST_BUCKET is required")
	}
	if c.ManifestKey == "" && c.ManifestChunkPrefix == "" {
		return fmt.Errorf("MANIFEST_KEY or MANIFEST_CHUNK_PREFIX is required")
	}
	if c.OutputBucket == "" {
		return fmt.Errorf("OUTPUT_BUCKET is required")
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("CHUNK_SIZE must be >= 1, got %d", c.ChunkSize)
	}
	if c.OCRPageChunkSize < 1 {
		return fmt.Errorf("OCR_PAGE_CHUNK_SIZE must be >= 1, got %d", c.OCRPageChunkSize)
	}
	return nil
}

// OCRWorkerConfig holds OCR-worker configuration.
type OCRWorkerConfig struct {
	OCRQueueName string
	OutputBucket string
	OutputPrefix string

	QueueWaitSeconds      int
	QueueVisibilityTimout int
	QueueMaxMessages      int
	RunOnce               bool

	WarmOCROnStartup bool

	ECSScaleInProtectionEnabled bool
	ECSTaskProtectionMinutes    int

	DatabaseURL string
	RedisURL    string
	LogLevel    string
}

// LoadOCRWorkerConfig loads configuration for the ocr-worker binary.
func LoadOCRWorkerConfig() (*OCRWorkerConfig, error) {
	cfg := &OCRWorkerConfig{
		OCRQueueName: getEnvOrDefault("OCR_QUEUE_URL", ""),
		OutputBucket: firstNonEmpty(
			getEnvOrDefault("OCR_OUTPUT_BUCKET", ""),
			getEnvOrDefault("OUTPUT_BUCKET", ""),
		),
		OutputPrefix: getEnvOrDefault("OUTPUT_PREFIX", "processed"),

		QueueWaitSeconds:      clampInt(getEnvAsIntOrDefault("OCR_QUEUE_WAIT_SECONDS", 20), 0, 20),
		QueueVisibilityTimout: clampInt(getEnvAsIntOrDefault("OCR_QUEUE_VISIBILITY_TIMEOUT", 900), 1, 43200),
		QueueMaxMessages:      clampInt(getEnvAsIntOrDefault("OCR_QUEUE_MAX_MESSAGES", 1), 1, 10),
		RunOnce:               getEnvAsBoolOrDefault("OCR_WORKER_RUN_ONCE", false),

		WarmOCROnStartup: getEnvAsBoolOrDefault("WARM_ONNXTR_ON_STARTUP", true),

		ECSScaleInProtectionEnabled: getEnvAsBoolOrDefault("ECS_SCALE_IN_PROTECTION_ENABLED", true),
		ECSTaskProtectionMinutes:    clampInt(getEnvAsIntOrDefault("ECS_TASK_PROTECTION_MINUTES", 30), 1, 2880),

		DatabaseURL: getEnvOrDefault("DATABASE_URL", ""),
		RedisURL:    getEnvOrDefault("REDIS_URL", ""),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "INFO"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks required OCR-worker configuration.
func (c *OCRWorkerConfig) Validate() error {
	if c.OCRQueueName == "" {
		return fmt.Errorf("OCR_QUEUE_URL is required")
	}
	if c.OutputBucket == "" {
		return fmt.Errorf("OCR_OUTPUT_BUCKET or OUTPUT_BUCKET is required")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsFloatOrDefault gets environment variable as float64 or returns default
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsBoolOrDefault gets environment variable as bool or returns default
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	valueStr := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if valueStr == "" {
		return defaultValue
	}
	return valueStr == "1" || valueStr == "true" || valueStr == "yes" || valueStr == "on"
}
