package config

import "testing"

func TestClampIntWithinRangeUnchanged(t *testing.T) {
	if got := clampInt(15, 0, 20); got != 15 {
		t.Errorf("clampInt = %d, want 15", got)
	}
}

func TestClampIntBelowMin(t *testing.T) {
	if got := clampInt(-5, 1, 10); got != 1 {
		t.Errorf("clampInt = %d, want 1", got)
	}
}

func TestClampIntAboveMax(t *testing.T) {
	if got := clampInt(100, 1, 10); got != 10 {
		t.Errorf("clampInt = %d, want 10", got)
	}
}

func TestFirstNonEmptyPrefersEarlierValues(t *testing.T) {
	if got := firstNonEmpty("a", "b"); got != "a" {
		t.Errorf("firstNonEmpty = %q, want %q", got, "a")
	}
}

func TestFirstNonEmptySkipsEmptyValues(t *testing.T) {
	if got := firstNonEmpty("", "b", "c"); got != "b" {
		t.Errorf("firstNonEmpty = %q, want %q", got, "b")
	}
}

func TestFirstNonEmptyAllEmptyReturnsEmpty(t *testing.T) {
	if got := firstNonEmpty("", ""); got != "" {
		t.Errorf("firstNonEmpty = %q, want empty", got)
	}
}

func TestGetEnvAsIntOrDefaultUsesDefaultWhenUnset(t *testing.T) {
	t.Setenv("ETL_TEST_INT_UNSET", "")
	if got := getEnvAsIntOrDefault("ETL_TEST_INT_UNSET", 42); got != 42 {
		t.Errorf("getEnvAsIntOrDefault = %d, want default 42", got)
	}
}

func TestGetEnvAsIntOrDefaultParsesValue(t *testing.T) {
	t.Setenv("ETL_TEST_INT_SET", "7")
	if got := getEnvAsIntOrDefault("ETL_TEST_INT_SET", 42); got != 7 {
		t.Errorf("getEnvAsIntOrDefault = %d, want 7", got)
	}
}

func TestGetEnvAsIntOrDefaultFallsBackOnGarbage(t *testing.T) {
	t.Setenv("ETL_TEST_INT_GARBAGE", "not-a-number")
	if got := getEnvAsIntOrDefault("ETL_TEST_INT_GARBAGE", 42); got != 42 {
		t.Errorf("getEnvAsIntOrDefault = %d, want default 42 on parse failure", got)
	}
}

func TestGetEnvAsBoolOrDefaultRecognizesTruthyVariants(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", "yes", "on"} {
		t.Setenv("ETL_TEST_BOOL", v)
		if got := getEnvAsBoolOrDefault("ETL_TEST_BOOL", false); !got {
			t.Errorf("getEnvAsBoolOrDefault(%q) = false, want true", v)
		}
	}
}

func TestGetEnvAsBoolOrDefaultRejectsOtherValues(t *testing.T) {
	t.Setenv("ETL_TEST_BOOL_FALSE", "nope")
	if got := getEnvAsBoolOrDefault("ETL_TEST_BOOL_FALSE", true); got {
		t.Errorf("getEnvAsBoolOrDefault = true, want false for unrecognized value")
	}
}

func TestGetEnvAsFloatOrDefaultParsesValue(t *testing.T) {
	t.Setenv("ETL_TEST_FLOAT", "0.25")
	if got := getEnvAsFloatOrDefault("ETL_TEST_FLOAT", 0.05); got != 0.25 {
		t.Errorf("getEnvAsFloatOrDefault = %v, want 0.25", got)
	}
}

func TestExtractionConfigValidateRequiresManifestBucket(t *testing.T) {
	cfg := &ExtractionConfig{OutputBucket: "b", ManifestKey: "k", ChunkSize: 1, OCRPageChunkSize: 1}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error when ManifestBucket is empty")
	}
}

func TestExtractionConfigValidateRequiresManifestKeyOrChunkPrefix(t *testing.T) {
	cfg := &ExtractionConfig{ManifestBucket: "m", OutputBucket: "o", ChunkSize: 1, OCRPageChunkSize: 1}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error when both ManifestKey and ManifestChunkPrefix are empty")
	}
}

func TestExtractionConfigValidatePassesWithChunkPrefixInPlaceOfManifestKey(t *testing.T) {
	cfg := &ExtractionConfig{
		ManifestBucket: "m", ManifestChunkPrefix: "chunks", OutputBucket: "o",
		ChunkSize: 1000, OCRPageChunkSize: 10,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestExtractionConfigValidateRejectsNonPositiveChunkSize(t *testing.T) {
	cfg := &ExtractionConfig{
		ManifestBucket: "m", ManifestKey: "k", OutputBucket: "o",
		ChunkSize: 0, OCRPageChunkSize: 1,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for ChunkSize < 1")
	}
}

func TestExtractionConfigValidatePasses(t *testing.T) {
	cfg := &ExtractionConfig{
		ManifestBucket: "m", ManifestKey: "k", OutputBucket: "o",
		ChunkSize: 1000, OCRPageChunkSize: 10,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestOCRWorkerConfigValidateRequiresQueueAndBucket(t *testing.T) {
	cfg := &OCRWorkerConfig{}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for missing queue name and output bucket")
	}

	cfg = &OCRWorkerConfig{OCRQueueName: "q"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for missing output bucket")
	}

	cfg = &OCRWorkerConfig{OCRQueueName: "q", OutputBucket: "b"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}
