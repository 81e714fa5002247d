package document

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// ArchiveVersion is the format version written by WriteArchive.
const ArchiveVersion = 1

// Archive is the portable JSON form of a library.
type Archive struct {
	Version    int        `json:"version"`
	ExportedAt time.Time  `json:"exportedAt"`
	Documents  []Document `json:"documents"`
}

// WriteArchive encodes docs as an indented JSON archive.
func WriteArchive(w io.Writer, docs []Document, now time.Time) error {
	if docs == nil {
		docs = []Document{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Archive{Version: ArchiveVersion, ExportedAt: now.UTC(), Documents: docs}); err != nil {
		return fmt.Errorf("document: write archive: %w", err)
	}
	return nil
}

// ReadArchive decodes an archive written by WriteArchive. Documents whose
// fragments do not belong to them are rejected.
func ReadArchive(r io.Reader) (Archive, error) {
	var a Archive
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return Archive{}, fmt.Errorf("document: read archive: %w", err)
	}
	if a.Version != ArchiveVersion {
		return Archive{}, fmt.Errorf("document: unsupported archive version %d", a.Version)
	}
	for _, d := range a.Documents {
		if d.ID == "" {
			return Archive{}, fmt.Errorf("document: archive entry %q has no id", d.Name)
		}
		if err := checkOwnership(d.ID, d.Fragments); err != nil {
			return Archive{}, err
		}
	}
	return a, nil
}
