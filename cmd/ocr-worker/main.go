// ocr-worker consumes the OCR Queue Protocol: it receives deferred
// gibberish pages, OCRs each with Tesseract, uploads per-page bounding
// boxes, and writes an idempotent JSONL patch the indexer merges back
// into the primary extraction output.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/asiafilings/filing-etl-worker/internal/config"
	"github.com/asiafilings/filing-etl-worker/internal/ledger"
	"github.com/asiafilings/filing-etl-worker/internal/logging"
	"github.com/asiafilings/filing-etl-worker/internal/objectstore"
	"github.com/asiafilings/filing-etl-worker/internal/ocrqueue"
	"github.com/asiafilings/filing-etl-worker/internal/ocrworker"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: .env not found, using system environment variables")
	}

	cfg, err := config.LoadOCRWorkerConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.NewLogger("ocr-worker")
	logger.Info("ocr-worker starting", "queue", cfg.OCRQueueName, "run_once", cfg.RunOnce)

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

	queue, err := ocrqueue.Open(cfg.RedisURL, cfg.OCRQueueName, logger)
	if err != nil {
		log.Fatalf("failed to open OCR queue: %v", err)
	}
	defer queue.Close()

	var ledgerClient *ledger.Client
	if cfg.DatabaseURL != "" {
		ledgerClient, err = ledger.Open(cfg.DatabaseURL, logger)
		if err != nil {
			logger.Warn("failed to open dedup ledger, broken_pages sync disabled", "error", err)
		} else {
			defer ledgerClient.Close()
		}
	}

	tesseract := ocrworker.NewTesseract(os.Getenv("TESSERACT_PATH"))
	if cfg.WarmOCROnStartup {
		if err := tesseract.Warm(); err != nil {
			logger.Warn("tesseract warm-up failed", "error", err)
		} else {
			logger.Info("tesseract warmed up")
		}
	}

	protect := ocrworker.NewScaleInProtection(cfg.ECSScaleInProtectionEnabled, cfg.ECSTaskProtectionMinutes, logger)

	worker := ocrworker.New(cfg, queue, store, tesseract, protect, ledgerClient, logger)

	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("worker exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("ocr-worker shut down cleanly")
}
