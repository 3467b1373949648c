package extract

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// FileKind is the classification result of classify(bytes, name).
type FileKind string

const (
	KindPDF     FileKind = "pdf"
	KindHTML    FileKind = "html"
	KindUnknown FileKind = "unknown"
)

var gzipMagic = []byte{0x1F, 0x8B}

// IsGzipped reports whether data begins with the gzip magic bytes.
func IsGzipped(data []byte) bool {
	return len(data) >= 2 && data[0] == gzipMagic[0] && data[1] == gzipMagic[1]
}

// DecompressIfGzip transparently decompresses data once if it is
// gzip-framed, otherwise returns it unchanged.
func DecompressIfGzip(data []byte) ([]byte, error) {
	if !IsGzipped(data) {
		return data, nil
	}
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return data, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Classify detects pdf/html/unknown preferring the filename extension,
// falling back to magic-byte sniffing (gzip-aware), per SPEC_FULL.md §4.2.
func Classify(data []byte, name string) FileKind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return KindPDF
	case ".htm", ".html":
		return KindHTML
	}
	return detectFromContent(data)
}

func detectFromContent(data []byte) FileKind {
	content := data
	if IsGzipped(content) {
		if decompressed, err := DecompressIfGzip(content); err == nil {
			content = decompressed
		}
	}

	if bytes.HasPrefix(content, []byte("%PDF")) {
		return KindPDF
	}

	sniffLen := 1000
	if len(content) < sniffLen {
		sniffLen = len(content)
	}
	lowered := strings.ToLower(string(content[:sniffLen]))
	if strings.Contains(lowered, "<!doctype html") || strings.Contains(lowered, "<html") {
		return KindHTML
	}

	return KindUnknown
}
