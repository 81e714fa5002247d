package ingestion

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/54b3r/docqa-go/internal/document"
)

// pdfMediaTypes lists the content types treated as PDF.
var pdfMediaTypes = map[string]bool{
	"application/pdf":   true,
	"application/x-pdf": true,
}

// pdfMagic is the signature every PDF file starts with.
const pdfMagic = "%PDF-"

// InferKind classifies an uploaded file. An explicit content type wins over
// the file extension; data is sniffed for the PDF signature only when
// neither is conclusive. Everything that is not a PDF is treated as text.
func InferKind(name, contentType string, data []byte) document.Kind {
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			if pdfMediaTypes[strings.ToLower(mt)] {
				return document.KindPDF
			}
			if strings.HasPrefix(mt, "text/") {
				return document.KindText
			}
		}
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return document.KindPDF
	case ".txt", ".md", ".markdown", ".text", ".csv", ".log", ".json", ".yaml", ".yml":
		return document.KindText
	}

	if strings.HasPrefix(string(data[:min(len(data), len(pdfMagic))]), pdfMagic) {
		return document.KindPDF
	}
	return document.KindText
}

// Supported reports whether a file name has an extension the watcher and
// directory ingestion pick up.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".txt", ".md", ".markdown", ".text":
		return true
	}
	return false
}
