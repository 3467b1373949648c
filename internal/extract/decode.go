package extract

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// DecodeHTMLBytes tries the decoding chain utf-8, gb2312, big5, latin-1
// in order, falling back to lossy utf-8 replacement, matching
// original_source/extractor.py's process_html_bytes decode loop.
func DecodeHTMLBytes(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}

	for _, enc := range []encoding.Encoding{
		simplifiedchinese.GBK,
		traditionalchinese.Big5,
		charmap.ISO8859_1,
	} {
		// x/text decoders substitute U+FFFD for undecodable input rather
		// than failing, so a substitution counts as a failed decode.
		if text, err := enc.NewDecoder().Bytes(data); err == nil && !bytes.ContainsRune(text, utf8.RuneError) {
			return string(text)
		}
	}

	return lossyUTF8(data)
}

// lossyUTF8 decodes data as UTF-8 one rune at a time, dropping each
// invalid byte and keeping every valid rune — the same "ignore"-style
// fallback as Python's str.decode("utf-8", errors="ignore").
func lossyUTF8(data []byte) string {
	var out []rune
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r != utf8.RuneError || size != 1 {
			out = append(out, r)
		}
		data = data[size:]
	}
	return string(out)
}
