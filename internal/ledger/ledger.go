// Package ledger realizes the Dedup Ledger Client of SPEC_FULL.md §4.3
// on Postgres instead of DynamoDB: the "key-value store" the spec
// treats as an external collaborator becomes a concrete
// dedup_ledger(pk, source_id) table reached through lib/pq, reusing
// the teacher's UPSERT/COALESCE idiom from internal/storage/postgres.go.
//
// Grounded on original_source/dynamo_utils.py for the exact chunk
// sizes, retry-once semantics, and fail-open behavior.
package ledger

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/asiafilings/filing-etl-worker/internal/errors"
	"github.com/asiafilings/filing-etl-worker/internal/logging"
	"github.com/asiafilings/filing-etl-worker/internal/storage"
)

const (
	checkBatchSize = 100
	writeBatchSize = 25
	retryDelay     = 500 * time.Millisecond
)

// Item is one processed filing recorded against the ledger.
type Item struct {
	SourceID       string
	S3Key          string
	PagesExtracted int
}

// Client is the lazily initialized, process-wide ledger client.
type Client struct {
	db  *sql.DB
	log *logging.Logger
}

// Open connects to Postgres and ensures the ledger table exists. A
// nil, nil return (no error) is never produced — callers that want
// fail-open behavior on an unset DATABASE_URL should simply not call
// Open and instead treat the ledger as disabled, matching
// ENABLE_DEDUP's own gate in the extraction worker.
func Open(databaseURL string, log *logging.Logger) (*Client, error) {
	db, err := storage.OpenPool(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure ledger schema: %w", err)
	}

	return &Client{db: db, log: log}, nil
}

func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS dedup_ledger (
	pk              TEXT NOT NULL,
	source_id       TEXT NOT NULL,
	status          TEXT NOT NULL,
	s3_key          TEXT,
	pages_extracted INTEGER,
	error_message   TEXT,
	processed_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	job_id          TEXT,
	PRIMARY KEY (pk, source_id)
)`

func partitionKey(exchange, jobType string) string {
	return fmt.Sprintf("%s#%s", exchange, jobType)
}

// BatchCheckCompleted returns the subset of sourceIDs whose ledger
// entry has status COMPLETED. Fail-open: on error, returns whatever
// was gathered before the failing chunk — the worker re-processes
// rather than silently skips.
func (c *Client) BatchCheckCompleted(exchange string, sourceIDs []string, jobType string) map[string]bool {
	if jobType == "" {
		jobType = "extraction"
	}
	completed := make(map[string]bool)
	if len(sourceIDs) == 0 {
		return completed
	}
	pk := partitionKey(exchange, jobType)

	for start := 0; start < len(sourceIDs); start += checkBatchSize {
		end := start + checkBatchSize
		if end > len(sourceIDs) {
			end = len(sourceIDs)
		}
		batch := sourceIDs[start:end]

		err := c.checkBatch(pk, batch, completed)
		if err != nil {
			c.log.Warn("dedup check failed, retrying once", "error", err)
			time.Sleep(retryDelay)
			if err := c.checkBatch(pk, batch, completed); err != nil {
				c.log.Warn("dedup check failed (fail-open, will re-process)", "error", err)
			}
		}
	}
	return completed
}

func (c *Client) checkBatch(pk string, sourceIDs []string, completed map[string]bool) error {
	placeholders := make([]string, len(sourceIDs))
	args := make([]interface{}, 0, len(sourceIDs)+1)
	args = append(args, pk)
	for i, id := range sourceIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}

	query := fmt.Sprintf(
		"SELECT source_id FROM dedup_ledger WHERE pk = $1 AND status = 'COMPLETED' AND source_id IN (%s)",
		strings.Join(placeholders, ","),
	)

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var sourceID string
		if err := rows.Scan(&sourceID); err != nil {
			return err
		}
		completed[sourceID] = true
	}
	return rows.Err()
}

// BatchRecordProcessed upserts COMPLETED entries for items, chunked to
// writeBatchSize with one retry after retryDelay on a failing chunk.
// Returns the count successfully written.
func (c *Client) BatchRecordProcessed(exchange string, items []Item, jobID, jobType string) int {
	if jobType == "" {
		jobType = "extraction"
	}
	if len(items) == 0 {
		return 0
	}
	pk := partitionKey(exchange, jobType)

	written := 0
	for start := 0; start < len(items); start += writeBatchSize {
		end := start + writeBatchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]

		n, err := c.writeBatch(pk, batch, jobID)
		if err != nil {
			c.log.Warn("dedup write failed, retrying once", "error", err)
			time.Sleep(retryDelay)
			n, err = c.writeBatch(pk, batch, jobID)
			if err != nil {
				c.log.Warn("dedup: failed to record batch", "error", err)
				n = 0
			}
		}
		written += n
	}

	c.log.Info("dedup: recorded processed items", "written", written, "total", len(items))
	return written
}

func (c *Client) writeBatch(pk string, items []Item, jobID string) (int, error) {
	tx, err := c.db.Begin()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO dedup_ledger (pk, source_id, status, s3_key, pages_extracted, processed_at, job_id)
		VALUES ($1, $2, 'COMPLETED', $3, $4, now(), $5)
		ON CONFLICT (pk, source_id) DO UPDATE SET
			status = 'COMPLETED',
			s3_key = EXCLUDED.s3_key,
			pages_extracted = EXCLUDED.pages_extracted,
			processed_at = EXCLUDED.processed_at,
			job_id = EXCLUDED.job_id
	`)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	defer stmt.Close()

	for _, item := range items {
		if _, err := stmt.Exec(pk, item.SourceID, item.S3Key, item.PagesExtracted, jobID); err != nil {
			tx.Rollback()
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(items), nil
}

// RecordFailed writes a best-effort FAILED entry; it is overwritten by
// a subsequent COMPLETED write on retry, never itself causes a skip.
func (c *Client) RecordFailed(exchange, sourceID, s3Key, errorMessage, jobID, jobType string) bool {
	if jobType == "" {
		jobType = "extraction"
	}
	pk := partitionKey(exchange, jobType)
	errorMessage = errors.Truncate(errorMessage, 1000)

	_, err := c.db.Exec(`
		INSERT INTO dedup_ledger (pk, source_id, status, s3_key, error_message, processed_at, job_id)
		VALUES ($1, $2, 'FAILED', $3, $4, now(), $5)
		ON CONFLICT (pk, source_id) DO UPDATE SET
			status = 'FAILED',
			s3_key = EXCLUDED.s3_key,
			error_message = EXCLUDED.error_message,
			processed_at = EXCLUDED.processed_at,
			job_id = EXCLUDED.job_id
	`, pk, sourceID, s3Key, errorMessage, jobID)
	if err != nil {
		c.log.Warn("dedup: failed to record failure", "error", err)
		return false
	}
	return true
}

// SyncBrokenPages performs the best-effort, swallowed-error
// broken_pages sync supplemented from original_source/db_utils.py
// (SPEC_FULL.md §9, Open Question #2, resolved: kept).
func (c *Client) SyncBrokenPages(exchange, sourceID string, brokenPages []int) {
	if exchange == "" || sourceID == "" || len(brokenPages) == 0 {
		return
	}
	_, err := c.db.Exec(
		`UPDATE filings SET broken_pages = $1 WHERE exchange = $2 AND source_id = $3`,
		pagesToArrayLiteral(brokenPages), exchange, sourceID,
	)
	if err != nil {
		c.log.Warn("failed to sync broken_pages", "exchange", exchange, "source_id", sourceID, "error", err)
	}
}

func pagesToArrayLiteral(pages []int) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = fmt.Sprintf("%d", p)
	}
	return "{" + strings.Join(parts, ",") + "}"
}
