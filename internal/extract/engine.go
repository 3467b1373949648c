// Package extract implements the Extraction Engine of SPEC_FULL.md §4.2:
// classification, per-format extraction, gibberish detection, and S3-key
// metadata parsing. Grounded throughout on original_source/extractor.py.
package extract

import (
	"fmt"

	"github.com/asiafilings/filing-etl-worker/internal/pagemodel"
)

// Engine binds the configured gibberish thresholds and an optional
// inline-OCR provider to the extraction operations.
type Engine struct {
	Thresholds    GibberishThresholds
	InlineOCR     bool
	OCRProvider   OCRProvider
	RenderPagePNG func(data []byte, pageIndex int) (pngBytes []byte, pixelW, pixelH int, pointW, pointH float64, err error)
}

// NewEngine builds an Engine with the given thresholds and no inline
// OCR (the spec's default: gibberish pages are deferred to the OCR
// queue, not processed inline).
func NewEngine(thresholds GibberishThresholds) *Engine {
	return &Engine{Thresholds: thresholds}
}

// Request bundles one document's bytes with the metadata merge inputs.
type Request struct {
	Data         []byte
	Filename     string
	S3Key        string
	ExchangeHint string // per-row / config override, merges above the key-derived exchange
	DocumentID   string // explicit override, merges above everything else
	RowMetadata  pagemodel.Metadata
}

// Result is the outcome of Process: the extracted pages plus, for PDFs,
// which page numbers were gibberish and deferred, and any bounding
// boxes produced by a successful inline-OCR pass, keyed by page number.
type Result struct {
	Pages       []pagemodel.PageRecord
	BrokenPages []int
	FileType    pagemodel.FileType
	PageBoxes   map[int][]pagemodel.BoundingBox
}

// Process dispatches on Classify and applies the metadata-merge
// precedence from SPEC_FULL.md §4.2: parsed S3 key → row metadata →
// exchange override → explicit document_id override.
func (e *Engine) Process(req Request) (Result, error) {
	keyMeta := ParseS3KeyMetadata(req.S3Key)

	exchange := keyMeta.Exchange
	if req.ExchangeHint != "" {
		exchange = req.ExchangeHint
	}

	documentID := keyMeta.SourceID
	if req.DocumentID != "" {
		documentID = req.DocumentID
	}

	merged := keyMeta.ToMetadata().Merge(req.RowMetadata)

	kind := Classify(req.Data, req.Filename)

	switch kind {
	case KindHTML:
		text, err := ExtractHTML(req.Data)
		if err != nil {
			return Result{}, fmt.Errorf("extract html: %w", err)
		}
		record := pagemodel.PageRecord{
			UniquePageID: pagemodel.UniquePageID(exchange, documentID, 1),
			DocumentID:   documentID,
			PageNumber:   1,
			TotalPages:   1,
			Text:         text,
			OCRRequired:  false,
			S3Key:        req.S3Key,
			FileType:     pagemodel.FileTypeHTML,
			Exchange:     exchange,
			CompanyID:    merged.CompanyID,
			CompanyName:  merged.CompanyName,
			FilingDate:   merged.FilingDate,
			FilingType:   merged.FilingType,
			Title:        merged.Title,
		}
		return Result{Pages: []pagemodel.PageRecord{record}, FileType: pagemodel.FileTypeHTML}, nil

	case KindPDF:
		var renderFn RenderPageFunc
		if e.RenderPagePNG != nil {
			renderFn = func(pageIndex int) ([]byte, int, int, float64, float64, error) { return e.RenderPagePNG(req.Data, pageIndex) }
		}
		pdfResult, err := ExtractPDF(req.Data, documentID, req.S3Key, exchange, merged, e.Thresholds, e.InlineOCR, e.OCRProvider, renderFn)
		if err != nil {
			return Result{}, fmt.Errorf("extract pdf: %w", err)
		}
		return Result{Pages: pdfResult.Pages, BrokenPages: pdfResult.BrokenPages, FileType: pagemodel.FileTypePDF, PageBoxes: pdfResult.PageBoxes}, nil

	default:
		return Result{}, fmt.Errorf("unsupported or unrecognized file type for %s", req.Filename)
	}
}
