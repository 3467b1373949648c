package extract

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func TestClassifyByExtension(t *testing.T) {
	if got := Classify([]byte("irrelevant"), "doc.PDF"); got != KindPDF {
		t.Errorf("Classify by .PDF extension = %v, want KindPDF", got)
	}
	if got := Classify([]byte("irrelevant"), "doc.html"); got != KindHTML {
		t.Errorf("Classify by .html extension = %v, want KindHTML", got)
	}
}

func TestClassifyByContentWhenNoExtension(t *testing.T) {
	if got := Classify([]byte("%PDF-1.4 ..."), "noext"); got != KindPDF {
		t.Errorf("Classify by %%PDF magic = %v, want KindPDF", got)
	}
	if got := Classify([]byte("<!DOCTYPE html><html></html>"), "noext"); got != KindHTML {
		t.Errorf("Classify by doctype sniff = %v, want KindHTML", got)
	}
	if got := Classify([]byte("just some random bytes"), "noext"); got != KindUnknown {
		t.Errorf("Classify of unrecognized content = %v, want KindUnknown", got)
	}
}

func TestClassifyGzippedContent(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	gw.Write([]byte("%PDF-1.4 gzip wrapped"))
	gw.Close()

	if got := Classify(buf.Bytes(), "noext"); got != KindPDF {
		t.Errorf("Classify of gzip-wrapped PDF = %v, want KindPDF", got)
	}
}

func TestDecompressIfGzipPassesThroughPlainData(t *testing.T) {
	data := []byte("plain text, not gzipped")
	out, err := DecompressIfGzip(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Errorf("DecompressIfGzip altered non-gzipped input")
	}
}

func TestDecompressIfGzipRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	gw.Write([]byte("hello world"))
	gw.Close()

	out, err := DecompressIfGzip(buf.Bytes())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "hello world" {
		t.Errorf("DecompressIfGzip = %q, want %q", out, "hello world")
	}
}
