// Package pagemodel defines the record shapes shared by the extraction
// path and the OCR path so neither binary maintains its own copy of the
// PageRecord schema.
package pagemodel

import "fmt"

// FileType enumerates the recognized source document kinds.
type FileType string

const (
	FileTypePDF     FileType = "pdf"
	FileTypeHTML    FileType = "html"
	FileTypeUnknown FileType = "unknown"
)

// PageRecord is one line of output JSONL, shared verbatim between the
// primary extraction shards and OCR patch files.
type PageRecord struct {
	UniquePageID string   `json:"unique_page_id"`
	DocumentID   string   `json:"document_id"`
	PageNumber   int      `json:"page_number"`
	TotalPages   int      `json:"total_pages"`
	Text         string   `json:"text"`
	OCRRequired  bool     `json:"ocr_required"`
	S3Key        string   `json:"s3_key"`
	FileType     FileType `json:"file_type"`
	Exchange     string   `json:"exchange,omitempty"`
	CompanyID    string   `json:"company_id,omitempty"`
	CompanyName  string   `json:"company_name,omitempty"`
	FilingDate   string   `json:"filing_date,omitempty"`
	FilingType   string   `json:"filing_type,omitempty"`
	Title        string   `json:"title,omitempty"`
}

// UniquePageID builds the canonical page identifier per SPEC_FULL.md §3:
// "{EXCHANGE}_{document_id}_pg{page_number}" when exchange is known,
// else "{document_id}_pg{page_number}".
func UniquePageID(exchange, documentID string, pageNumber int) string {
	if exchange == "" {
		return fmt.Sprintf("%s_pg%d", documentID, pageNumber)
	}
	return fmt.Sprintf("%s_%s_pg%d", exchange, documentID, pageNumber)
}

// Metadata is the subset of manifest/lookup fields that travel with a
// document through extraction, OCR queueing, and OCR patching.
type Metadata struct {
	CompanyID   string `json:"company_id,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
	FilingDate  string `json:"filing_date,omitempty"`
	FilingType  string `json:"filing_type,omitempty"`
	Title       string `json:"title,omitempty"`
}

// Merge overlays non-empty fields of other onto a copy of m; other wins
// on collision, matching the "lookup wins" / "override wins" precedence
// rules in SPEC_FULL.md §4.2 and §4.4.
func (m Metadata) Merge(other Metadata) Metadata {
	out := m
	if other.CompanyID != "" {
		out.CompanyID = other.CompanyID
	}
	if other.CompanyName != "" {
		out.CompanyName = other.CompanyName
	}
	if other.FilingDate != "" {
		out.FilingDate = other.FilingDate
	}
	if other.FilingType != "" {
		out.FilingType = other.FilingType
	}
	if other.Title != "" {
		out.Title = other.Title
	}
	return out
}

// BoundingBox is one OCRed word in PDF point space, per SPEC_FULL.md §4.6.
type BoundingBox struct {
	X0   float64 `json:"x0"`
	Y0   float64 `json:"y0"`
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
	Word string  `json:"word"`
}

// OcrJob is the versioned message body published by the extraction
// worker and consumed by the OCR worker (SPEC_FULL.md §4.5 / §3).
type OcrJob struct {
	Version     int      `json:"version"`
	Exchange    string   `json:"exchange"`
	SourceID    string   `json:"source_id"`
	S3Bucket    string   `json:"s3_bucket"`
	S3Key       string   `json:"s3_key"`
	BrokenPages []int    `json:"broken_pages"`
	SubmittedAt string   `json:"submitted_at"`
	Metadata    Metadata `json:"metadata"`
}

// JobStats tracks one worker's lifetime counters (SPEC_FULL.md §3).
type JobStats struct {
	FilesProcessed int
	FilesFailed    int
	FilesSkipped   int
	PagesExtracted int
}
