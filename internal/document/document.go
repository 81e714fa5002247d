// Package document holds the document model and the in-memory library that
// owns every document's fragment set. The library is the single place where
// fragment sets are replaced, and it does so atomically: a reader of the
// retrieval pool sees either a document's previous complete set or its new
// complete set, never a mix.
package document

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/minio/highwayhash"

	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/rag"
)

// Kind is the original file type of a document.
type Kind string

const (
	// KindPDF marks text extracted from a PDF file.
	KindPDF Kind = "pdf"
	// KindText marks a plain-text file.
	KindText Kind = "txt"
)

// Status is a document's position in its processing lifecycle.
type Status string

const (
	// StatusProcessing is set while the document is chunked and embedded.
	StatusProcessing Status = "processing"
	// StatusProcessed is set once a complete fragment set has been committed.
	StatusProcessed Status = "processed"
	// StatusError is set when processing failed. Error holds the reason.
	StatusError Status = "error"
)

// Document is an uploaded file, its extracted text and its fragments.
type Document struct {
	// ID is the opaque document identifier.
	ID string `json:"id"`

	// Name is the display name, usually the source file name.
	Name string `json:"name"`

	// Kind is the original file type.
	Kind Kind `json:"type"`

	// Content is the raw extracted text. PDF pages are joined with "\n".
	Content string `json:"content"`

	// Status is the lifecycle state.
	Status Status `json:"status"`

	// Error describes the last processing failure when Status is StatusError.
	Error string `json:"errorMessage,omitempty"`

	// Fingerprint is a content hash used to reject duplicate uploads.
	Fingerprint string `json:"fingerprint"`

	// UploadedAt is when the document was first added.
	UploadedAt time.Time `json:"uploadDate"`

	// Chunking is the configuration the current fragment set was built with.
	Chunking chunker.Config `json:"chunking"`

	// Mode is the retrieval mode the current fragment set was processed for.
	// Vector-mode sets carry embeddings.
	Mode rag.Mode `json:"mode,omitempty"`

	// Fragments is the committed fragment set in reading order. It is
	// replaced wholesale and never modified in place.
	Fragments []rag.Fragment `json:"chunks,omitempty"`
}

// Embedded reports whether every fragment of the committed set carries an
// embedding.
func (d Document) Embedded() bool {
	if len(d.Fragments) == 0 {
		return false
	}
	for _, f := range d.Fragments {
		if !f.HasEmbedding() {
			return false
		}
	}
	return true
}

// fingerprintKey is the fixed 32-byte HighwayHash key. Changing it changes
// every stored fingerprint.
var fingerprintKey = []byte("docqa-go/fingerprint/highwayhash")

// Fingerprint returns the hex-encoded 64-bit HighwayHash of data.
func Fingerprint(data []byte) (string, error) {
	h, err := highwayhash.New64(fingerprintKey)
	if err != nil {
		return "", fmt.Errorf("document: fingerprint: %w", err)
	}
	if _, err := h.Write(data); err != nil {
		return "", fmt.Errorf("document: fingerprint: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
