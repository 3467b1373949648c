// extraction-worker pulls one manifest row range, extracts each
// document's per-page text, defers gibberish pages to the OCR queue,
// and writes sharded JSONL output for the search index.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/asiafilings/filing-etl-worker/internal/config"
	"github.com/asiafilings/filing-etl-worker/internal/extract"
	"github.com/asiafilings/filing-etl-worker/internal/extractionworker"
	"github.com/asiafilings/filing-etl-worker/internal/jobtracking"
	"github.com/asiafilings/filing-etl-worker/internal/ledger"
	"github.com/asiafilings/filing-etl-worker/internal/logging"
	"github.com/asiafilings/filing-etl-worker/internal/manifest"
	"github.com/asiafilings/filing-etl-worker/internal/objectstore"
	"github.com/asiafilings/filing-etl-worker/internal/ocrqueue"
	"github.com/asiafilings/filing-etl-worker/internal/ocrworker"
)

// renderDPI matches the async OCR Worker's rendering resolution so the
// inline and deferred OCR paths produce identical bounding boxes.
const renderDPI = 200.0

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: .env not found, using system environment variables")
	}

	cfg, err := config.LoadExtractionConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.NewLogger("extraction-worker")
	logger.Info("extraction-worker starting", "job_id", cfg.JobID, "array_index", cfg.ArrayIndex, "exchange", cfg.Exchange)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, initiating graceful shutdown", "signal", sig.String())
		cancel()
	}()

	store, err := objectstore.New(ctx, logger)
	if err != nil {
		log.Fatalf("failed to initialize object store: %v", err)
	}

	var ledgerClient *ledger.Client
	var jobsClient *jobtracking.Client
	if cfg.EnableDedup || cfg.EnableJobTracking {
		if cfg.DatabaseURL == "" {
			log.Fatalf("DATABASE_URL is required when ENABLE_DEDUP or ENABLE_JOB_TRACKING is set")
		}
		if cfg.EnableDedup {
			ledgerClient, err = ledger.Open(cfg.DatabaseURL, logger)
			if err != nil {
				log.Fatalf("failed to open dedup ledger: %v", err)
			}
			defer ledgerClient.Close()
		}
		if cfg.EnableJobTracking {
			jobsClient, err = jobtracking.Open(cfg.DatabaseURL, logger)
			if err != nil {
				log.Fatalf("failed to open job tracking: %v", err)
			}
			defer jobsClient.Close()
		}
	}

	var queueClient *ocrqueue.Queue
	if cfg.EnableOCRQueue {
		if cfg.RedisURL == "" || cfg.OCRQueueName == "" {
			logger.Warn("ENABLE_OCR_QUEUE is set but REDIS_URL or OCR_QUEUE_URL is empty, OCR dispatch disabled")
		} else {
			queueClient, err = ocrqueue.Open(cfg.RedisURL, cfg.OCRQueueName, logger)
			if err != nil {
				log.Fatalf("failed to open OCR queue: %v", err)
			}
			defer queueClient.Close()
		}
	}

	manifestReader := manifest.New(store, logger)
	engine := extract.NewEngine(extract.GibberishThresholds{
		MinLength:        cfg.GibberishMinLength,
		ReplacementRatio: cfg.GibberishReplacementRatio,
		UnprintableRatio: cfg.GibberishUnprintableRatio,
	})
	if cfg.EnableInlineOCR {
		tesseract := ocrworker.NewTesseract(os.Getenv("TESSERACT_PATH"))
		engine.InlineOCR = true
		engine.OCRProvider = tesseract
		engine.RenderPagePNG = func(data []byte, pageIndex int) ([]byte, int, int, float64, float64, error) {
			return ocrworker.RenderPageToPNG(data, pageIndex, renderDPI)
		}
		logger.Info("inline OCR enabled", "tesseract_path", os.Getenv("TESSERACT_PATH"))
	}

	worker := extractionworker.New(cfg, store, manifestReader, engine, queueClient, ledgerClient, jobsClient, logger)

	exitCode, err := worker.Run(ctx)
	if err != nil {
		logger.Error("job failed", "error", err)
	}
	os.Exit(exitCode)
}
