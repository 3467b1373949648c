package extract

import (
	"strings"
	"testing"
)

func TestExtractHTMLStripsScriptAndStyle(t *testing.T) {
	doc := `<html><head><title>t</title><style>.a{color:red}</style></head>
<body><script>alert(1)</script><p>Hello</p><p>World</p></body></html>`
	text, err := ExtractHTML([]byte(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(text, "alert") || strings.Contains(text, "color:red") {
		t.Errorf("script/style content leaked into extracted text: %q", text)
	}
	if !strings.Contains(text, "Hello") || !strings.Contains(text, "World") {
		t.Errorf("expected visible text preserved, got %q", text)
	}
}

func TestExtractHTMLCollapsesExcessNewlines(t *testing.T) {
	doc := "<p>one</p>\n\n\n\n<p>two</p>"
	text, err := ExtractHTML([]byte(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(text, "\n\n\n") {
		t.Errorf("runs of 3+ newlines were not collapsed: %q", text)
	}
}

func TestExtractHTMLUnclosedMetaDoesNotSuppressFollowingText(t *testing.T) {
	doc := `<html><head><meta charset="utf-8"><title>t</title></head>
<body><p>Hello</p><p>World</p></body></html>`
	text, err := ExtractHTML([]byte(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "Hello") || !strings.Contains(text, "World") {
		t.Errorf("unclosed <meta> leaked skip state onto following text, got %q", text)
	}
}

func TestExtractHTMLPlainBytesNoGzip(t *testing.T) {
	doc := "<html><body><p>plain</p></body></html>"
	text, err := ExtractHTML([]byte(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "plain") {
		t.Errorf("expected %q to contain 'plain'", text)
	}
}
