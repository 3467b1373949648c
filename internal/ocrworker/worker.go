package ocrworker

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/asiafilings/filing-etl-worker/internal/config"
	"github.com/asiafilings/filing-etl-worker/internal/errors"
	"github.com/asiafilings/filing-etl-worker/internal/extract"
	"github.com/asiafilings/filing-etl-worker/internal/ledger"
	"github.com/asiafilings/filing-etl-worker/internal/logging"
	"github.com/asiafilings/filing-etl-worker/internal/objectstore"
	"github.com/asiafilings/filing-etl-worker/internal/ocrqueue"
	"github.com/asiafilings/filing-etl-worker/internal/pagemodel"
)

const renderDPI = 200.0

// Worker is the long-running OCR Worker of SPEC_FULL.md §4.5, grounded
// line-for-line on original_source/ocr_worker.py's receive/validate/
// protect/process/unprotect/delete-or-not control flow.
type Worker struct {
	cfg       *config.OCRWorkerConfig
	queue     *Queue
	store     *objectstore.Store
	tesseract *Tesseract
	protect   *ScaleInProtection
	ledger    *ledger.Client // may be nil; broken_pages sync is best-effort
	log       *logging.Logger
}

// Queue is an alias of ocrqueue.Queue.
type Queue = ocrqueue.Queue

// New builds an OCR Worker from its already-opened dependencies.
func New(cfg *config.OCRWorkerConfig, queue *Queue, store *objectstore.Store, tesseract *Tesseract, protect *ScaleInProtection, ledgerClient *ledger.Client, log *logging.Logger) *Worker {
	return &Worker{cfg: cfg, queue: queue, store: store, tesseract: tesseract, protect: protect, ledger: ledgerClient, log: log}
}

// Run executes the long-poll receive loop, exiting after one cycle iff
// cfg.RunOnce is set, regardless of how many messages that cycle held.
func (w *Worker) Run(ctx context.Context) error {
	for {
		messages, err := w.queue.ReceiveMessages(
			ctx,
			w.cfg.QueueMaxMessages,
			time.Duration(w.cfg.QueueWaitSeconds)*time.Second,
			time.Duration(w.cfg.QueueVisibilityTimout)*time.Second,
		)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Error("receive failed", "error", err)
			if w.cfg.RunOnce {
				return err
			}
			continue
		}

		for _, msg := range messages {
			w.processMessage(ctx, msg)
		}

		if w.cfg.RunOnce {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (w *Worker) processMessage(ctx context.Context, msg ocrqueue.Message) {
	job, err := validateJob(msg.Job)
	if err != nil {
		w.log.Warn("invalid OCR message, leaving in queue", "id", msg.ID, "error", err)
		return
	}

	w.protect.ProtectOn(ctx)
	defer w.protect.ProtectOff(ctx)

	processed, patchKey, err := w.processJob(ctx, job)
	if err != nil {
		w.log.Error("OCR job failed, leaving message for retry", "id", msg.ID, "source_id", job.SourceID, "error", err)
		return
	}

	if err := w.queue.DeleteMessage(ctx, msg.ID); err != nil {
		w.log.Error("failed to delete OCR message after success", "id", msg.ID, "error", err)
		return
	}

	w.log.Info("OCR job complete", "source_id", job.SourceID, "pages_processed", processed, "patch_key", patchKey)
}

// validateJob rejects messages missing required fields or carrying a
// non-positive/empty broken_pages list, canonicalizing pages otherwise.
func validateJob(job pagemodel.OcrJob) (pagemodel.OcrJob, error) {
	if job.Exchange == "" || job.SourceID == "" || job.S3Bucket == "" || job.S3Key == "" {
		return job, errors.NewOCRValidationFailedError("missing required field(s)")
	}
	if len(job.BrokenPages) == 0 {
		return job, errors.NewOCRValidationFailedError("broken_pages is empty")
	}

	seen := make(map[int]bool)
	var pages []int
	for _, p := range job.BrokenPages {
		if p > 0 && !seen[p] {
			seen[p] = true
			pages = append(pages, p)
		}
	}
	if len(pages) == 0 {
		return job, errors.NewOCRValidationFailedError("no positive page numbers in broken_pages")
	}
	for i := 1; i < len(pages); i++ {
		for j := i; j > 0 && pages[j-1] > pages[j]; j-- {
			pages[j-1], pages[j] = pages[j], pages[j-1]
		}
	}

	job.Exchange = strings.ToUpper(strings.TrimSpace(job.Exchange))
	job.SourceID = strings.TrimSpace(job.SourceID)
	job.BrokenPages = pages
	return job, nil
}

// processJob downloads the source PDF, OCRs each listed page, uploads
// per-page bounding boxes (fatal to the job on failure), and uploads
// (or skips, if already present) the idempotent JSONL patch.
func (w *Worker) processJob(ctx context.Context, job pagemodel.OcrJob) (int, string, error) {
	data, err := w.store.GetObject(ctx, job.S3Bucket, job.S3Key)
	if err != nil {
		return 0, "", fmt.Errorf("download source document: %w", err)
	}
	if data == nil {
		return 0, "", fmt.Errorf("source document s3://%s/%s not found", job.S3Bucket, job.S3Key)
	}

	pages, err := extract.OpenPDF(data)
	if err != nil {
		return 0, "", fmt.Errorf("open source pdf: %w", err)
	}
	totalPages := len(pages)
	exchangeLower := strings.ToLower(job.Exchange)

	var records []pagemodel.PageRecord
	processed := 0

	for _, pageNum := range job.BrokenPages {
		if pageNum <= 0 || pageNum > totalPages {
			w.log.Warn("OCR page out of range, skipping", "source_id", job.SourceID, "page", pageNum, "total_pages", totalPages)
			continue
		}

		pngBytes, pixelW, pixelH, pointW, pointH, err := RenderPageToPNG(data, pageNum-1, renderDPI)
		if err != nil {
			return processed, "", fmt.Errorf("render page %d: %w", pageNum, err)
		}

		ocrResult, err := w.tesseract.RecognizePage(pngBytes)
		if err != nil {
			return processed, "", errors.NewOCRFailedError(job.SourceID, pageNum, err)
		}

		boxes := NormalizeBoxes(ocrResult, pixelW, pixelH, pointW, pointH)
		bboxKey := fmt.Sprintf("ocr-bboxes/%s/%s/page_%d.json", exchangeLower, job.SourceID, pageNum)
		if err := w.store.PutJSON(ctx, w.cfg.OutputBucket, bboxKey, boxes); err != nil {
			return processed, "", errors.NewBboxUploadFailedError(job.SourceID, bboxKey, err)
		}

		record := pagemodel.PageRecord{
			UniquePageID: pagemodel.UniquePageID(job.Exchange, job.SourceID, pageNum),
			DocumentID:   job.SourceID,
			PageNumber:   pageNum,
			TotalPages:   totalPages,
			Text:         ocrResult.Text,
			OCRRequired:  true,
			S3Key:        job.S3Key,
			FileType:     pagemodel.FileTypePDF,
			Exchange:     job.Exchange,
			CompanyID:    job.Metadata.CompanyID,
			CompanyName:  job.Metadata.CompanyName,
			FilingDate:   job.Metadata.FilingDate,
			FilingType:   job.Metadata.FilingType,
			Title:        job.Metadata.Title,
		}
		records = append(records, record)
		processed++
	}

	patchKey := buildPatchKey(w.cfg.OutputPrefix, exchangeLower, job.SourceID, job.BrokenPages)

	exists, err := w.store.Exists(ctx, w.cfg.OutputBucket, patchKey)
	if err != nil {
		w.log.Warn("failed to check patch existence, uploading anyway", "patch_key", patchKey, "error", err)
	}
	if exists {
		w.log.Info("patch already exists, skipping upload", "patch_key", patchKey)
		return processed, patchKey, nil
	}

	interfaceRecords := make([]interface{}, len(records))
	for i, r := range records {
		interfaceRecords[i] = r
	}
	if err := w.store.PutJSONL(ctx, w.cfg.OutputBucket, patchKey, interfaceRecords); err != nil {
		return processed, "", fmt.Errorf("upload patch: %w", err)
	}

	if w.ledger != nil {
		w.ledger.SyncBrokenPages(job.Exchange, job.SourceID, job.BrokenPages)
	}

	return processed, patchKey, nil
}

// buildPatchKey computes the deterministic, idempotent patch object
// key from SPEC_FULL.md §4.5: a SHA-1 digest of the comma-joined
// broken-pages list, truncated to its first 12 hex characters.
func buildPatchKey(outputPrefix, exchangeLower, sourceID string, brokenPages []int) string {
	parts := make([]string, len(brokenPages))
	for i, p := range brokenPages {
		parts[i] = strconv.Itoa(p)
	}
	joined := strings.Join(parts, ",")
	sum := sha1.Sum([]byte(joined))
	digest := hex.EncodeToString(sum[:])[:12]

	first := brokenPages[0]
	last := brokenPages[len(brokenPages)-1]

	return fmt.Sprintf("%s/%s/ocr-patches/%s/pages_%d_%d_%s.jsonl", outputPrefix, exchangeLower, sourceID, first, last, digest)
}
