package extract

import (
	"regexp"
	"strings"

	nethtml "golang.org/x/net/html"
)

var excessNewlines = regexp.MustCompile(`\n{3,}`)

var skippedSubtrees = map[string]bool{
	"script": true,
	"style":  true,
	"head":   true,
	"meta":   true,
	"link":   true,
}

// voidSkipTags never wrap text and never appear with a matching end tag
// in the token stream (real-world HTML rarely self-closes <meta>/<link>
// with a trailing slash), so they must never be pushed onto the skip
// stack below — doing so would leave the stack permanently non-empty.
var voidSkipTags = map[string]bool{
	"meta": true,
	"link": true,
}

// ExtractHTML implements extract_html from SPEC_FULL.md §4.2: transparent
// gzip, multi-encoding decode, script/style/head/meta/link stripping,
// newline-joined text, collapsing runs of 3+ newlines to exactly two.
func ExtractHTML(data []byte) (string, error) {
	raw, err := DecompressIfGzip(data)
	if err != nil {
		raw = data
	}

	text := DecodeHTMLBytes(raw)
	body := stripAndExtractText(text)
	body = excessNewlines.ReplaceAllString(body, "\n\n")
	return body, nil
}

// stripAndExtractText tokenizes the HTML stream, skipping the text
// content of script/style/head/meta/link subtrees, and joins the
// remaining text nodes with newlines (each trimmed individually,
// mirroring BeautifulSoup's get_text(separator="\n", strip=True)).
func stripAndExtractText(htmlText string) string {
	tokenizer := nethtml.NewTokenizer(strings.NewReader(htmlText))
	var lines []string
	var skipStack []string

	for {
		tt := tokenizer.Next()
		if tt == nethtml.ErrorToken {
			break
		}

		switch tt {
		case nethtml.StartTagToken, nethtml.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if skippedSubtrees[tag] {
				if tt == nethtml.StartTagToken && !voidSkipTags[tag] {
					skipStack = append(skipStack, tag)
				}
				continue
			}
		case nethtml.EndTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if n := len(skipStack); n > 0 && skipStack[n-1] == tag {
				skipStack = skipStack[:n-1]
				continue
			}
			if skippedSubtrees[tag] {
				continue
			}
		case nethtml.TextToken:
			if len(skipStack) > 0 {
				continue
			}
			text := strings.TrimSpace(string(tokenizer.Text()))
			if text != "" {
				lines = append(lines, text)
			}
		}
	}

	return strings.Join(lines, "\n")
}
