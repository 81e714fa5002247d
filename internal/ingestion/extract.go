package ingestion

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/54b3r/docqa-go/internal/document"
)

// ErrNoText is returned when a file yields no extractable text.
var ErrNoText = errors.New("no extractable text")

// Extract returns the text content of data. PDF pages are extracted one by
// one and joined with a single "\n"; text files are decoded as UTF-8 with
// invalid sequences replaced.
func Extract(kind document.Kind, data []byte) (string, error) {
	switch kind {
	case document.KindPDF:
		text := extractPDF(data)
		if strings.TrimSpace(text) == "" {
			return "", fmt.Errorf("ingestion: pdf: %w", ErrNoText)
		}
		return text, nil
	default:
		text := strings.ToValidUTF8(string(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))), "�")
		return text, nil
	}
}

// extractPDF reads the text layer page by page. If the PDF cannot be parsed
// at all, the printable runes of the raw bytes are returned instead.
func extractPDF(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return printableText(data)
	}

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages = append(pages, text)
	}
	if len(pages) == 0 {
		return printableText(data)
	}
	return strings.Join(pages, "\n")
}

// printableText keeps printable runes and line breaks from raw bytes.
func printableText(in []byte) string {
	var out strings.Builder
	for len(in) > 0 {
		r, size := utf8.DecodeRune(in)
		in = in[size:]
		switch {
		case r == utf8.RuneError && size == 1:
			continue
		case r == '\n' || r == '\r' || r == '\t':
			out.WriteRune(r)
		case r >= 32 && r != 127:
			out.WriteRune(r)
		}
	}
	return out.String()
}
