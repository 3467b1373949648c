// Package extract's PDF path opens the document through go-fitz
// (MuPDF bindings), grounded on catalinfl-extractor/extract.go's
// extractPDFText.
package extract

import (
	"fmt"

	fitz "github.com/gen2brain/go-fitz"

	"github.com/asiafilings/filing-etl-worker/internal/pagemodel"
)

// OCRProvider performs OCR on a rendered page image and returns the
// recognized text plus its per-word bounding boxes in PDF point space.
// Implemented by internal/ocrworker's Tesseract binding (RecognizePage +
// NormalizeBoxes) for the inline-OCR fallback path.
type OCRProvider interface {
	OCRPage(imagePNG []byte, pixelW, pixelH int, pointW, pointH float64) (text string, boxes []pagemodel.BoundingBox, err error)
}

// PDFPage is one page's extracted text plus the page's point
// dimensions (needed downstream for bounding-box scaling).
type PDFPage struct {
	Number      int
	Text        string
	WidthPoints float64
	HeightPt    float64
}

// OpenPDF opens a PDF document from bytes and returns its pages' raw
// text layer plus dimensions, without gibberish handling — that is
// layered on top by ExtractPDF so tests can exercise each in isolation.
func OpenPDF(data []byte) ([]PDFPage, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	n := doc.NumPage()
	pages := make([]PDFPage, 0, n)
	for i := 0; i < n; i++ {
		text, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("extract text from page %d: %w", i+1, err)
		}
		bounds, err := doc.Bound(i)
		var w, h float64
		if err == nil {
			w = float64(bounds.Dx())
			h = float64(bounds.Dy())
		}
		pages = append(pages, PDFPage{Number: i + 1, Text: text, WidthPoints: w, HeightPt: h})
	}
	return pages, nil
}

// ExtractPDFResult is the return shape of ExtractPDF. PageBoxes holds
// the per-word bounding boxes produced by a successful inline-OCR pass,
// keyed by page number, for the caller to upload alongside the shard.
type ExtractPDFResult struct {
	Pages       []pagemodel.PageRecord
	BrokenPages []int
	PageBoxes   map[int][]pagemodel.BoundingBox
}

// RenderPageFunc rasterizes one PDF page (0-indexed) to PNG for the
// inline-OCR fallback, alongside the pixel dimensions it rendered at
// and the page's true point dimensions, needed to normalize boxes.
type RenderPageFunc func(pageIndex int) (pngBytes []byte, pixelW, pixelH int, pointW, pointH float64, err error)

// ExtractPDF implements extract_pdf from SPEC_FULL.md §4.2: iterate
// pages, apply gibberish detection, and either emit the page text,
// defer it to OCR (text="", ocr_required=true, page recorded broken),
// or — when inlineOCR is enabled — attempt OCR immediately.
func ExtractPDF(
	data []byte,
	documentID, s3Key, exchange string,
	meta pagemodel.Metadata,
	thresholds GibberishThresholds,
	inlineOCR bool,
	ocrProvider OCRProvider,
	renderPagePNG RenderPageFunc,
) (ExtractPDFResult, error) {
	pages, err := OpenPDF(data)
	if err != nil {
		return ExtractPDFResult{}, err
	}
	return buildPDFResult(pages, documentID, s3Key, exchange, meta, thresholds, inlineOCR, ocrProvider, renderPagePNG), nil
}

// buildPDFResult applies gibberish detection and the inline-OCR
// fallback to an already-opened page set, split out from ExtractPDF so
// it can be exercised directly against synthetic pages without a real
// go-fitz-backed PDF.
func buildPDFResult(
	pages []PDFPage,
	documentID, s3Key, exchange string,
	meta pagemodel.Metadata,
	thresholds GibberishThresholds,
	inlineOCR bool,
	ocrProvider OCRProvider,
	renderPagePNG RenderPageFunc,
) ExtractPDFResult {
	total := len(pages)
	result := ExtractPDFResult{Pages: make([]pagemodel.PageRecord, 0, total)}

	for _, p := range pages {
		record := pagemodel.PageRecord{
			UniquePageID: pagemodel.UniquePageID(exchange, documentID, p.Number),
			DocumentID:   documentID,
			PageNumber:   p.Number,
			TotalPages:   total,
			S3Key:        s3Key,
			FileType:     pagemodel.FileTypePDF,
			Exchange:     exchange,
			CompanyID:    meta.CompanyID,
			CompanyName:  meta.CompanyName,
			FilingDate:   meta.FilingDate,
			FilingType:   meta.FilingType,
			Title:        meta.Title,
		}

		if !thresholds.IsGibberish(p.Text) {
			record.Text = p.Text
			record.OCRRequired = false
			result.Pages = append(result.Pages, record)
			continue
		}

		if !inlineOCR || ocrProvider == nil || renderPagePNG == nil {
			record.Text = ""
			record.OCRRequired = true
			result.Pages = append(result.Pages, record)
			result.BrokenPages = append(result.BrokenPages, p.Number)
			continue
		}

		png, pixelW, pixelH, pointW, pointH, renderErr := renderPagePNG(p.Number - 1)
		if renderErr != nil {
			record.Text = p.Text
			record.OCRRequired = true
			result.Pages = append(result.Pages, record)
			result.BrokenPages = append(result.BrokenPages, p.Number)
			continue
		}

		ocrText, boxes, ocrErr := ocrProvider.OCRPage(png, pixelW, pixelH, pointW, pointH)
		if ocrErr != nil {
			record.Text = p.Text
			record.OCRRequired = true
			result.Pages = append(result.Pages, record)
			result.BrokenPages = append(result.BrokenPages, p.Number)
			continue
		}

		record.Text = ocrText
		record.OCRRequired = true
		result.Pages = append(result.Pages, record)
		if len(boxes) > 0 {
			if result.PageBoxes == nil {
				result.PageBoxes = make(map[int][]pagemodel.BoundingBox)
			}
			result.PageBoxes[p.Number] = boxes
		}
	}

	return result
}
