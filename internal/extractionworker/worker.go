// Package extractionworker orchestrates one extraction-worker job: pull
// a manifest row range, extract each document, defer gibberish pages to
// the OCR queue, dedup against the ledger, and shard output JSONL to
// the object store. Grounded on original_source/main.py's process_batch
// and main().
package extractionworker

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/asiafilings/filing-etl-worker/internal/config"
	"github.com/asiafilings/filing-etl-worker/internal/errors"
	"github.com/asiafilings/filing-etl-worker/internal/extract"
	"github.com/asiafilings/filing-etl-worker/internal/jobtracking"
	"github.com/asiafilings/filing-etl-worker/internal/ledger"
	"github.com/asiafilings/filing-etl-worker/internal/logging"
	"github.com/asiafilings/filing-etl-worker/internal/manifest"
	"github.com/asiafilings/filing-etl-worker/internal/objectstore"
	"github.com/asiafilings/filing-etl-worker/internal/ocrqueue"
	"github.com/asiafilings/filing-etl-worker/internal/pagemodel"
)

// shardSizeBytes is the target size for one output JSONL shard before
// it is flushed and a new one started, per SPEC_FULL.md §4.4.
const shardSizeBytes = 10 * 1024 * 1024

const progressEvery = 100

// Worker runs one extraction-worker job: a fixed manifest row range,
// processed start to finish within a single process invocation.
type Worker struct {
	cfg    *config.ExtractionConfig
	store  *objectstore.Store
	manif  *manifest.Reader
	engine *extract.Engine
	queue  *ocrqueue.Queue     // nil when ENABLE_OCR_QUEUE is false
	ledger *ledger.Client      // nil when ENABLE_DEDUP is false
	jobs   *jobtracking.Client // nil when ENABLE_JOB_TRACKING is false
	log    *logging.Logger
}

// New builds an extraction Worker from its already-opened dependencies.
// queue, ledgerClient, and jobsClient may be nil according to the
// corresponding ENABLE_* config flags.
func New(cfg *config.ExtractionConfig, store *objectstore.Store, manif *manifest.Reader, engine *extract.Engine, queue *ocrqueue.Queue, ledgerClient *ledger.Client, jobsClient *jobtracking.Client, log *logging.Logger) *Worker {
	return &Worker{cfg: cfg, store: store, manif: manif, engine: engine, queue: queue, ledger: ledgerClient, jobs: jobsClient, log: log}
}

// Run executes the full job: load lookups, stream the manifest range,
// process each row, shard output, and record terminal job state.
// Returns the process exit code: 1 when the batch itself errors or per
// SPEC_FULL.md §4.4's FAILED rule (files_failed > 0 && files_processed
// == 0), else 0.
func (w *Worker) Run(ctx context.Context) (int, error) {
	chunkStart := w.cfg.ArrayIndex * w.cfg.ChunkSize
	chunkEnd := chunkStart + w.cfg.ChunkSize

	if w.jobs != nil {
		w.jobs.RecordStart(w.cfg.JobID, w.cfg.Exchange, w.cfg.ManifestKey, chunkStart, chunkEnd)
	}

	stats, err := w.processBatch(ctx, chunkStart, chunkEnd)

	status := "SUCCEEDED"
	errMsg := ""
	exitCode := 0
	if err != nil {
		status = "FAILED"
		errMsg = err.Error()
		exitCode = 1
	} else if stats.FilesFailed > 0 && stats.FilesProcessed == 0 {
		status = "FAILED"
		errMsg = "All files failed to process"
		exitCode = 1
	}

	if w.jobs != nil {
		w.jobs.RecordComplete(w.cfg.JobID, stats, status, errMsg)
	}

	w.log.Info("job finished", "job_id", w.cfg.JobID, "status", status,
		"files_processed", stats.FilesProcessed, "files_failed", stats.FilesFailed,
		"files_skipped", stats.FilesSkipped, "pages_extracted", stats.PagesExtracted)

	return exitCode, err
}

func (w *Worker) processBatch(ctx context.Context, chunkStart, chunkEnd int) (pagemodel.JobStats, error) {
	var stats pagemodel.JobStats

	lookup, err := w.manif.LoadMetadataLookup(ctx, w.cfg.MetadataBucket, w.cfg.MetadataKey)
	if err != nil {
		return stats, fmt.Errorf("load metadata lookup: %w", err)
	}

	var rows []manifest.Row
	if w.cfg.ManifestChunkPrefix != "" {
		rows, err = w.manif.StreamChunkFile(ctx, w.cfg.ManifestBucket, w.cfg.ManifestChunkPrefix, w.cfg.ArrayIndex)
		if err != nil {
			return stats, fmt.Errorf("stream manifest chunk file: %w", err)
		}
	} else {
		rows, err = w.manif.StreamRange(ctx, w.cfg.ManifestBucket, w.cfg.ManifestKey, chunkStart, chunkEnd)
		if err != nil {
			return stats, fmt.Errorf("stream manifest range: %w", err)
		}
	}
	if len(rows) == 0 {
		w.log.Info("no manifest rows in range, nothing to do", "start", chunkStart, "end", chunkEnd)
		return stats, nil
	}

	skip := w.dedupSkipSet(rows)

	shard := newShardWriter(w.store, w.cfg.OutputBucket, w.cfg.OutputPrefix, w.cfg.Exchange, w.cfg.ArrayIndex, shardSizeBytes, w.log)
	var completedItems []ledger.Item

	for i, row := range rows {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		if i > 0 && i%progressEvery == 0 {
			w.log.Info("progress", "processed", i, "total", len(rows))
		}

		sourceID := extract.SourceIDFromKey(row.Key)
		if skip[sourceID] {
			stats.FilesSkipped++
			continue
		}

		if looked, ok := lookup[sourceID]; ok {
			row.Metadata = row.Metadata.Merge(looked)
		}

		pages, brokenPages, pageBoxes, err := w.processRow(ctx, row)
		if err != nil {
			stats.FilesFailed++
			w.log.Error("failed to process manifest row", "bucket", row.Bucket, "key", row.Key, "error", err)
			if w.jobs != nil {
				w.jobs.RecordFileError(w.cfg.JobID, row.Key, errorCode(err), err.Error())
			}
			if w.ledger != nil {
				w.ledger.RecordFailed(w.cfg.Exchange, sourceID, row.Key, err.Error(), w.cfg.JobID, "extraction")
			}
			continue
		}

		for _, p := range pages {
			if err := shard.Write(p); err != nil {
				return stats, fmt.Errorf("write output shard: %w", err)
			}
		}

		for _, pageNum := range brokenPages {
			w.log.Info("gibberish page detected", "exchange", w.cfg.Exchange, "source_id", sourceID, "page", pageNum)
		}

		w.uploadInlineOCRBoxes(ctx, sourceID, pageBoxes)

		if len(brokenPages) > 0 && w.queue != nil {
			meta := pagemodel.Metadata{}
			if len(pages) > 0 {
				meta = pagemodel.Metadata{
					CompanyID: pages[0].CompanyID, CompanyName: pages[0].CompanyName,
					FilingDate: pages[0].FilingDate, FilingType: pages[0].FilingType, Title: pages[0].Title,
				}
			}
			opts := ocrqueue.PublishOptions{Enabled: w.cfg.EnableOCRQueue, ChunkSize: w.cfg.OCRPageChunkSize, NowUTC: nowUTC()}
			if _, err := w.queue.EnqueueOCRJobs(ctx, w.cfg.Exchange, sourceID, row.Bucket, row.Key, brokenPages, meta, opts); err != nil {
				pubErr := errors.NewQueuePublishFailedError(sourceID, err)
				w.log.Error("failed to enqueue OCR job", "source_id", sourceID, "error", pubErr)
				if w.jobs != nil {
					w.jobs.RecordFileError(w.cfg.JobID, row.Key, string(pubErr.Code), pubErr.Error())
				}
			}
		}

		stats.FilesProcessed++
		stats.PagesExtracted += len(pages)
		completedItems = append(completedItems, ledger.Item{SourceID: sourceID, S3Key: row.Key, PagesExtracted: len(pages)})
	}

	if err := shard.Close(); err != nil {
		return stats, fmt.Errorf("flush final output shard: %w", err)
	}

	if w.ledger != nil && len(completedItems) > 0 {
		w.ledger.BatchRecordProcessed(w.cfg.Exchange, completedItems, w.cfg.JobID, "extraction")
	}

	return stats, nil
}

func (w *Worker) dedupSkipSet(rows []manifest.Row) map[string]bool {
	if w.ledger == nil || !w.cfg.EnableDedup {
		return map[string]bool{}
	}
	sourceIDs := make([]string, len(rows))
	for i, r := range rows {
		sourceIDs[i] = extract.SourceIDFromKey(r.Key)
	}
	return w.ledger.BatchCheckCompleted(w.cfg.Exchange, sourceIDs, "extraction")
}

func (w *Worker) processRow(ctx context.Context, row manifest.Row) ([]pagemodel.PageRecord, []int, map[int][]pagemodel.BoundingBox, error) {
	data, err := w.store.GetObject(ctx, row.Bucket, row.Key)
	if err != nil {
		return nil, nil, nil, errors.NewDownloadFailedError(w.cfg.JobID, row.Key, err)
	}
	if data == nil {
		return nil, nil, nil, errors.NewDownloadFailedError(w.cfg.JobID, row.Key, fmt.Errorf("object not found"))
	}

	req := extract.Request{
		Data:         data,
		Filename:     row.Key,
		S3Key:        row.Key,
		ExchangeHint: w.cfg.Exchange,
		RowMetadata:  row.Metadata,
	}
	result, err := w.engine.Process(req)
	if err != nil {
		return nil, nil, nil, errors.NewExtractionFailedError(w.cfg.JobID, row.Key, err)
	}
	return result.Pages, result.BrokenPages, result.PageBoxes, nil
}

// uploadInlineOCRBoxes persists the per-page bounding boxes produced by
// a successful inline-OCR pass, using the same object-key scheme as the
// async OCR Worker's bbox upload so both paths are interchangeable.
func (w *Worker) uploadInlineOCRBoxes(ctx context.Context, sourceID string, pageBoxes map[int][]pagemodel.BoundingBox) {
	if len(pageBoxes) == 0 {
		return
	}
	exchangeLower := strings.ToLower(w.cfg.Exchange)
	for pageNum, boxes := range pageBoxes {
		bboxKey := fmt.Sprintf("ocr-bboxes/%s/%s/page_%d.json", exchangeLower, sourceID, pageNum)
		if err := w.store.PutJSON(ctx, w.cfg.OutputBucket, bboxKey, boxes); err != nil {
			w.log.Error("failed to upload inline-OCR bounding boxes", "source_id", sourceID, "page", pageNum, "error", err)
		}
	}
}

// nowUTC is a seam so tests can fix EnqueueOCRJobs' SubmittedAt.
var nowUTC = func() time.Time { return time.Now().UTC() }

// errorCode recovers the structured error code off a *errors.ProcessingError,
// falling back to the generic code for errors from elsewhere (e.g. context
// cancellation).
func errorCode(err error) string {
	var pe *errors.ProcessingError
	if stderrors.As(err, &pe) {
		return string(pe.Code)
	}
	return string(errors.ErrorProcessingError)
}

// shardKey builds the output object key for the job-index/part-index
// pair, per SPEC_FULL.md §4.4:
// "{output_prefix}/{exchange_lower|"unknown"}/batch_{J:06d}_{P:03d}.jsonl".
func shardKey(outputPrefix, exchange string, jobIndex, part int) string {
	ex := strings.ToLower(strings.TrimSpace(exchange))
	if ex == "" {
		ex = "unknown"
	}
	return fmt.Sprintf("%s/%s/batch_%06d_%03d.jsonl", outputPrefix, ex, jobIndex, part)
}
