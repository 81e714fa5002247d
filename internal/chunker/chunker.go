// Package chunker splits document text into overlapping fixed-size
// fragments.
//
// Fragment k starts at character offset k*(Length-Overlap) and ends at
// min(start+Length, len(text)). Striding stops at the first fragment that
// reaches the end of the text, so the closing fragment always ends at the
// last character and is never shorter than Overlap unless the whole text is.
// Offsets count characters (runes), not bytes.
package chunker

import (
	"fmt"
	"strings"

	"github.com/54b3r/docqa-go/internal/rag"
)

// Default chunking settings.
const (
	// DefaultLength is the default fragment length in characters.
	DefaultLength = 800

	// DefaultOverlap is the default number of characters shared by
	// consecutive fragments.
	DefaultOverlap = 100
)

// Config holds the chunking settings.
type Config struct {
	// Length is the target fragment length in characters. Must be positive.
	Length int `json:"length"`

	// Overlap is the number of characters consecutive fragments share.
	// Must be non-negative and smaller than Length.
	Overlap int `json:"overlap"`
}

// DefaultConfig returns the default chunking settings.
func DefaultConfig() Config {
	return Config{Length: DefaultLength, Overlap: DefaultOverlap}
}

// Validate reports an rag.ErrConfiguration when the settings cannot produce
// a forward-moving stride.
func (c Config) Validate() error {
	if c.Length <= 0 {
		return fmt.Errorf("chunker: length must be positive, got %d: %w", c.Length, rag.ErrConfiguration)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("chunker: overlap must not be negative, got %d: %w", c.Overlap, rag.ErrConfiguration)
	}
	if c.Overlap >= c.Length {
		return fmt.Errorf("chunker: overlap %d must be smaller than length %d: %w", c.Overlap, c.Length, rag.ErrConfiguration)
	}
	return nil
}

// Stride returns the distance between the starts of consecutive fragments.
func (c Config) Stride() int {
	return c.Length - c.Overlap
}

// Span is a half-open range of character offsets.
type Span struct {
	// Start is the offset of the first character.
	Start int
	// End is the offset one past the last character.
	End int
}

// Spans returns the character ranges Chunk would cut from a text of n
// characters, before whitespace-only fragments are dropped.
func Spans(n int, cfg Config) ([]Span, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	stride := cfg.Stride()
	spans := make([]Span, 0, n/stride+1)
	for start := 0; ; start += stride {
		end := min(start+cfg.Length, n)
		spans = append(spans, Span{Start: start, End: end})
		if end == n {
			break
		}
	}
	return spans, nil
}

// Chunk splits text into fragments owned by documentID. The configuration
// is validated before any work is done; an invalid one yields
// rag.ErrConfiguration and no fragments. Fragments that are whitespace only
// are dropped, and indexes are assigned to the remaining fragments in
// reading order, so identical input always produces identical ids.
func Chunk(documentID, text string, cfg Config) ([]rag.Fragment, error) {
	runes := []rune(text)
	spans, err := Spans(len(runes), cfg)
	if err != nil {
		return nil, err
	}

	fragments := make([]rag.Fragment, 0, len(spans))
	for _, sp := range spans {
		content := string(runes[sp.Start:sp.End])
		if strings.TrimSpace(content) == "" {
			continue
		}
		index := len(fragments)
		fragments = append(fragments, rag.Fragment{
			ID:         FragmentID(documentID, index),
			DocumentID: documentID,
			Index:      index,
			Text:       content,
			Start:      sp.Start,
			End:        sp.End,
		})
	}
	return fragments, nil
}

// FragmentID returns the deterministic id of the fragment at index within
// documentID.
func FragmentID(documentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, index)
}
