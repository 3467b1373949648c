// Package jobtracking realizes the job-tracking table of
// SPEC_FULL.md §3 (JobRecord, FileErrorRecord) in the same Postgres
// database as the dedup ledger, grounded on
// original_source/dynamo_utils.py's record_job_start/record_job_complete/
// record_file_error, re-platformed from DynamoDB for the same reason
// as the ledger (see DESIGN.md).
package jobtracking

import (
	"database/sql"
	"fmt"

	"github.com/asiafilings/filing-etl-worker/internal/errors"
	"github.com/asiafilings/filing-etl-worker/internal/logging"
	"github.com/asiafilings/filing-etl-worker/internal/pagemodel"
	"github.com/asiafilings/filing-etl-worker/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS etl_jobs (
	job_id          TEXT PRIMARY KEY,
	exchange        TEXT,
	manifest_key    TEXT,
	chunk_start     INTEGER,
	chunk_end       INTEGER,
	status          TEXT NOT NULL,
	started_at      TIMESTAMPTZ,
	completed_at    TIMESTAMPTZ,
	files_processed INTEGER DEFAULT 0,
	files_failed    INTEGER DEFAULT 0,
	pages_extracted INTEGER DEFAULT 0,
	error_message   TEXT
);

CREATE TABLE IF NOT EXISTS etl_file_errors (
	id            SERIAL PRIMARY KEY,
	job_id        TEXT NOT NULL,
	s3_key        TEXT NOT NULL,
	error_type    TEXT NOT NULL,
	error_message TEXT,
	occurred_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Client is the lazily initialized, process-wide job-tracking client.
type Client struct {
	db  *sql.DB
	log *logging.Logger
}

// Open uses the same Postgres connection setup as ledger.Open
// (storage.OpenPool) but opens its own pool; the two clients do not
// share a *sql.DB.
func Open(databaseURL string, log *logging.Logger) (*Client, error) {
	db, err := storage.OpenPool(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open jobtracking db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure jobtracking schema: %w", err)
	}
	return &Client{db: db, log: log}, nil
}

func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// RecordStart inserts a RUNNING entry for the job.
func (c *Client) RecordStart(jobID, exchange, manifestKey string, chunkStart, chunkEnd int) bool {
	if exchange == "" {
		exchange = "unknown"
	}
	_, err := c.db.Exec(`
		INSERT INTO etl_jobs (job_id, exchange, manifest_key, chunk_start, chunk_end, status, started_at)
		VALUES ($1, $2, $3, $4, $5, 'RUNNING', now())
		ON CONFLICT (job_id) DO UPDATE SET
			exchange = EXCLUDED.exchange, manifest_key = EXCLUDED.manifest_key,
			chunk_start = EXCLUDED.chunk_start, chunk_end = EXCLUDED.chunk_end,
			status = 'RUNNING', started_at = now()
	`, jobID, exchange, manifestKey, chunkStart, chunkEnd)
	if err != nil {
		c.log.Warn("failed to record job start", "job_id", jobID, "error", err)
		return false
	}
	c.log.Info("recorded job start", "job_id", jobID)
	return true
}

// RecordComplete writes the terminal status and stats for the job.
func (c *Client) RecordComplete(jobID string, stats pagemodel.JobStats, status, errorMessage string) bool {
	errorMessage = errors.Truncate(errorMessage, 1000)
	_, err := c.db.Exec(`
		UPDATE etl_jobs SET
			status = $2, completed_at = now(),
			files_processed = $3, files_failed = $4, pages_extracted = $5,
			error_message = NULLIF($6, '')
		WHERE job_id = $1
	`, jobID, status, stats.FilesProcessed, stats.FilesFailed, stats.PagesExtracted, errorMessage)
	if err != nil {
		c.log.Warn("failed to record job complete", "job_id", jobID, "error", err)
		return false
	}
	c.log.Info("recorded job complete", "job_id", jobID, "status", status)
	return true
}

// RecordFileError appends a best-effort file-error record.
func (c *Client) RecordFileError(jobID, s3Key, errorType, errorMessage string) bool {
	errorMessage = errors.Truncate(errorMessage, 1000)
	_, err := c.db.Exec(`
		INSERT INTO etl_file_errors (job_id, s3_key, error_type, error_message)
		VALUES ($1, $2, $3, $4)
	`, jobID, s3Key, errorType, errorMessage)
	if err != nil {
		c.log.Warn("failed to record file error", "job_id", jobID, "s3_key", s3Key, "error", err)
		return false
	}
	return true
}
