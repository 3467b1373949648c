// Package manifest streams a CSV row range from the object store and
// loads the optional per-source-id metadata lookup JSON.
//
// Grounded on original_source/s3_utils.py's stream_manifest_range,
// load_metadata_lookup, and count_manifest_rows.
package manifest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/asiafilings/filing-etl-worker/internal/logging"
	"github.com/asiafilings/filing-etl-worker/internal/pagemodel"
)

// metadataColumns lists the optional manifest columns besides the
// bucket/key pair. buildRow carries company_id, company_name,
// filing_date (falling back to report_date), filing_type and title into
// a Row; source_id and exchange are not read from the manifest.
var metadataColumns = []string{
	"company_id", "company_name", "filing_date", "filing_type",
	"title", "source_id", "exchange", "report_date",
}

// Row is one manifest entry: the document's location plus any
// metadata the manifest row itself carried.
type Row struct {
	Bucket   string
	Key      string
	Metadata pagemodel.Metadata
}

// Reader streams manifest rows from S3.
type Reader struct {
	store Getter
	log   *logging.Logger
}

// Getter is the subset of objectstore.Store this package depends on.
type Getter interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
}

// New builds a manifest Reader over the given object store client.
func New(store Getter, log *logging.Logger) *Reader {
	return &Reader{store: store, log: log}
}

// StreamRange reads the manifest CSV at bucket/key and returns rows
// whose zero-based index lies in [start, end). Fetch failure is
// returned to the caller, who treats it as fatal to the worker.
func (r *Reader) StreamRange(ctx context.Context, bucket, key string, start, end int) ([]Row, error) {
	header, records, err := r.fetchCSV(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	colIndex := columnIndex(header)

	var rows []Row
	for idx, record := range records {
		if idx < start {
			continue
		}
		if idx >= end {
			break
		}
		row, ok := buildRow(colIndex, record)
		if !ok {
			r.log.Warn("invalid manifest row, skipping", "index", idx)
			continue
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// chunkFileKey builds the key of the array-index-selected chunk CSV
// under a chunked-manifest prefix, per SPEC_FULL.md §4.1's alternative
// chunked mode: "{prefix}/chunk_{NNNNNN}.csv".
func chunkFileKey(prefix string, arrayIndex int) string {
	return fmt.Sprintf("%s/chunk_%06d.csv", strings.TrimRight(prefix, "/"), arrayIndex)
}

// StreamChunkFile reads the pre-split per-job chunk CSV selected by
// arrayIndex from a chunked-manifest prefix (SPEC_FULL.md §4.1's
// alternative chunked mode) and returns all of its rows — the file
// itself is the job's full row set, so no start/end slicing applies.
func (r *Reader) StreamChunkFile(ctx context.Context, bucket, prefix string, arrayIndex int) ([]Row, error) {
	key := chunkFileKey(prefix, arrayIndex)
	header, records, err := r.fetchCSV(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	colIndex := columnIndex(header)

	var rows []Row
	for idx, record := range records {
		row, ok := buildRow(colIndex, record)
		if !ok {
			r.log.Warn("invalid manifest row, skipping", "index", idx, "chunk_key", key)
			continue
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// fetchCSV downloads and fully parses the manifest CSV at bucket/key,
// returning its header and data records. A read error on any row ends
// parsing at that row rather than
// failing the whole fetch, matching the original scanner's behavior.
func (r *Reader) fetchCSV(ctx context.Context, bucket, key string) ([]string, [][]string, error) {
	body, err := r.store.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch manifest s3://%s/%s: %w", bucket, key, err)
	}
	if body == nil {
		return nil, nil, fmt.Errorf("manifest s3://%s/%s not found", bucket, key)
	}

	reader := csv.NewReader(strings.NewReader(string(body)))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read manifest header: %w", err)
	}

	var records [][]string
	for {
		record, err := reader.Read()
		if err != nil {
			break
		}
		records = append(records, record)
	}

	return header, records, nil
}

func columnIndex(header []string) map[string]int {
	colIndex := make(map[string]int, len(header))
	for i, h := range header {
		colIndex[strings.TrimSpace(h)] = i
	}
	return colIndex
}

// buildRow extracts one Row from a manifest record, reporting ok=false
// when either the bucket or the key column (in either naming scheme) is
// missing or empty.
func buildRow(colIndex map[string]int, record []string) (Row, bool) {
	get := func(col string) string {
		if i, ok := colIndex[col]; ok && i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	rowBucket := get("bucket")
	if rowBucket == "" {
		rowBucket = get("s3_bucket")
	}
	rowKey := get("key")
	if rowKey == "" {
		rowKey = get("s3_key")
	}
	if rowBucket == "" || rowKey == "" {
		return Row{}, false
	}

	meta := pagemodel.Metadata{
		CompanyID:   get("company_id"),
		CompanyName: get("company_name"),
		FilingDate:  get("filing_date"),
		FilingType:  get("filing_type"),
		Title:       get("title"),
	}
	if meta.FilingDate == "" {
		if rd := get("report_date"); rd != "" {
			meta.FilingDate = rd
		}
	}

	return Row{Bucket: rowBucket, Key: rowKey, Metadata: meta}, true
}

// CountRows counts the data rows (excluding header) in a manifest CSV.
func (r *Reader) CountRows(ctx context.Context, bucket, key string) (int, error) {
	body, err := r.store.GetObject(ctx, bucket, key)
	if err != nil {
		return 0, fmt.Errorf("fetch manifest s3://%s/%s: %w", bucket, key, err)
	}
	if body == nil {
		return 0, fmt.Errorf("manifest s3://%s/%s not found", bucket, key)
	}
	reader := csv.NewReader(strings.NewReader(string(body)))
	reader.FieldsPerRecord = -1
	if _, err := reader.Read(); err != nil {
		return 0, fmt.Errorf("read manifest header: %w", err)
	}
	count := 0
	for {
		if _, err := reader.Read(); err != nil {
			break
		}
		count++
	}
	return count, nil
}

// LoadMetadataLookup loads the optional source_id -> metadata JSON
// file. A missing object is treated as an empty lookup, not an error.
func (r *Reader) LoadMetadataLookup(ctx context.Context, bucket, key string) (map[string]pagemodel.Metadata, error) {
	if bucket == "" || key == "" {
		return map[string]pagemodel.Metadata{}, nil
	}

	body, err := r.store.GetObject(ctx, bucket, key)
	if err != nil {
		r.log.Error("failed to load metadata lookup", "bucket", bucket, "key", key, "error", err)
		return map[string]pagemodel.Metadata{}, nil
	}
	if body == nil {
		r.log.Info("metadata lookup not found", "bucket", bucket, "key", key)
		return map[string]pagemodel.Metadata{}, nil
	}

	var raw map[string]struct {
		CompanyID   string `json:"company_id"`
		CompanyName string `json:"company_name"`
		FilingDate  string `json:"filing_date"`
		FilingType  string `json:"filing_type"`
		Title       string `json:"title"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		r.log.Error("failed to parse metadata lookup", "bucket", bucket, "key", key, "error", err)
		return map[string]pagemodel.Metadata{}, nil
	}

	lookup := make(map[string]pagemodel.Metadata, len(raw))
	for sourceID, m := range raw {
		lookup[sourceID] = pagemodel.Metadata{
			CompanyID:   m.CompanyID,
			CompanyName: m.CompanyName,
			FilingDate:  m.FilingDate,
			FilingType:  m.FilingType,
			Title:       m.Title,
		}
	}
	return lookup, nil
}
