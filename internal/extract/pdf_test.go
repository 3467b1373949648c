package extract

import (
	"fmt"
	"testing"

	"github.com/asiafilings/filing-etl-worker/internal/pagemodel"
)

func cleanPages(n int) []PDFPage {
	pages := make([]PDFPage, n)
	for i := range pages {
		pages[i] = PDFPage{
			Number:      i + 1,
			Text:        fmt.Sprintf("This is clean, readable page %d body text with plenty of normal words.", i+1),
			WidthPoints: 612,
			HeightPt:    792,
		}
	}
	return pages
}

func gibberishPage(n int) PDFPage {
	return PDFPage{Number: n, Text: string([]rune{0xFFFD, 0xFFFD, 0xFFFD, 0xFFFD, 0xFFFD, 0xFFFD, 0xFFFD, 0xFFFD, 0xFFFD, 0xFFFD, 0xFFFD, 0xFFFD, 0xFFFD, 0xFFFD, 0xFFFD, 0xFFFD, 0xFFFD, 0xFFFD, 0xFFFD, 0xFFFD, 0xFFFD})}
}

func TestBuildPDFResultCleanPagesHaveTextAndNoOCR(t *testing.T) {
	pages := cleanPages(2)
	result := buildPDFResult(pages, "doc-1", "key.pdf", "NYSE", pagemodel.Metadata{CompanyID: "c1"}, DefaultGibberishThresholds, false, nil, nil)

	if len(result.BrokenPages) != 0 {
		t.Fatalf("expected no broken pages, got %v", result.BrokenPages)
	}
	if len(result.Pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(result.Pages))
	}
	for _, p := range result.Pages {
		if p.OCRRequired {
			t.Errorf("page %d marked OCRRequired unexpectedly", p.PageNumber)
		}
		if p.Text == "" {
			t.Errorf("page %d has empty text", p.PageNumber)
		}
		if p.CompanyID != "c1" {
			t.Errorf("page %d missing merged metadata, got %+v", p.PageNumber, p)
		}
	}
}

func TestBuildPDFResultGibberishPageDeferredWithoutInlineOCR(t *testing.T) {
	pages := append(cleanPages(1), gibberishPage(2))
	result := buildPDFResult(pages, "doc-1", "key.pdf", "NYSE", pagemodel.Metadata{}, DefaultGibberishThresholds, false, nil, nil)

	if len(result.BrokenPages) != 1 || result.BrokenPages[0] != 2 {
		t.Fatalf("expected page 2 deferred, got %v", result.BrokenPages)
	}
	var broken pagemodel.PageRecord
	for _, p := range result.Pages {
		if p.PageNumber == 2 {
			broken = p
		}
	}
	if !broken.OCRRequired || broken.Text != "" {
		t.Errorf("expected broken page to have empty text and OCRRequired=true, got %+v", broken)
	}
}

func TestBuildPDFResultInlineOCRRecognizesGibberishPage(t *testing.T) {
	pages := []PDFPage{gibberishPage(1)}
	provider := stubOCRProvider{text: "recognized text", boxes: []pagemodel.BoundingBox{{X0: 1, Y0: 1, X1: 2, Y1: 2, Word: "recognized"}}}
	render := func(pageIndex int) ([]byte, int, int, float64, float64, error) {
		return []byte("png-bytes"), 1000, 1500, 612, 792, nil
	}

	result := buildPDFResult(pages, "doc-1", "key.pdf", "NYSE", pagemodel.Metadata{}, DefaultGibberishThresholds, true, provider, render)

	if len(result.Pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(result.Pages))
	}
	p := result.Pages[0]
	if p.Text != "recognized text" || !p.OCRRequired {
		t.Errorf("expected inline-OCR text to be used, got %+v", p)
	}
	if len(result.BrokenPages) != 0 {
		t.Errorf("inline-OCR success should not report the page as broken, got %v", result.BrokenPages)
	}
	if len(result.PageBoxes[1]) != 1 {
		t.Errorf("expected inline-OCR boxes to be collected for page 1, got %+v", result.PageBoxes)
	}
}

func TestBuildPDFResultInlineOCRFailureFallsBackToDeferred(t *testing.T) {
	pages := []PDFPage{gibberishPage(1)}
	provider := stubOCRProvider{err: fmt.Errorf("tesseract unavailable")}
	render := func(pageIndex int) ([]byte, int, int, float64, float64, error) {
		return []byte("png-bytes"), 1000, 1500, 612, 792, nil
	}

	result := buildPDFResult(pages, "doc-1", "key.pdf", "NYSE", pagemodel.Metadata{}, DefaultGibberishThresholds, true, provider, render)

	if len(result.BrokenPages) != 1 {
		t.Fatalf("expected page deferred on OCR failure, got %v", result.BrokenPages)
	}
}

type stubOCRProvider struct {
	text  string
	boxes []pagemodel.BoundingBox
	err   error
}

func (s stubOCRProvider) OCRPage(imagePNG []byte, pixelW, pixelH int, pointW, pointH float64) (string, []pagemodel.BoundingBox, error) {
	if s.err != nil {
		return "", nil, s.err
	}
	return s.text, s.boxes, nil
}
