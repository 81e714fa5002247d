// Package rag defines the retrieval core: the fragment model, the scoring
// capability shared by the lexical and vector scorers, the mode dispatcher,
// and the embedding and vector-mirror boundaries that adapters implement.
// Nothing in this package performs I/O except through an injected Embedder
// or VectorStore.
package rag

import (
	"context"
	"fmt"
	"strings"
)

// Fragment is a contiguous, possibly overlapping slice of a document's text
// and the unit of retrieval.
type Fragment struct {
	// ID is derived from the owning document id and Index, so reprocessing
	// with identical settings reproduces identical ids.
	ID string `json:"id"`

	// DocumentID identifies the owning document.
	DocumentID string `json:"documentId"`

	// Index is the fragment's position in the document's reading order.
	Index int `json:"index"`

	// Text is the fragment content. It is never empty after trimming.
	Text string `json:"text"`

	// Start is the character offset of the first rune of Text in the
	// document text.
	Start int `json:"start"`

	// End is the character offset one past the last rune of Text.
	End int `json:"end"`

	// Embedding is the fragment's vector. It is nil until the fragment has
	// been processed in vector mode. A present all-zero vector is a valid
	// embedding and is distinct from nil.
	Embedding []float32 `json:"embedding,omitempty"`
}

// HasEmbedding reports whether vector-mode processing attached a vector.
func (f Fragment) HasEmbedding() bool {
	return len(f.Embedding) > 0
}

// ScoredFragment pairs a fragment with the score it was ranked by.
// It is never persisted.
type ScoredFragment struct {
	// Fragment is the ranked fragment.
	Fragment Fragment `json:"fragment"`

	// Score is the relevance assigned by the scorer. Fallback results
	// carry a zero score.
	Score float64 `json:"score"`
}

// Mode selects the scoring strategy for a retrieval call.
type Mode string

const (
	// ModeLexical ranks fragments with TF-IDF over the query tokens.
	ModeLexical Mode = "lexical"

	// ModeVector ranks fragments by cosine similarity of embeddings.
	ModeVector Mode = "vector"
)

// ParseMode converts a configuration value into a Mode. Matching is
// case-insensitive; "tfidf" is accepted for lexical and "semantic" or
// "embedding" for vector.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lexical", "tfidf", "tf-idf":
		return ModeLexical, nil
	case "vector", "semantic", "embedding", "embeddings":
		return ModeVector, nil
	default:
		return "", fmt.Errorf("rag: unknown retrieval mode %q (valid: lexical, vector): %w", s, ErrConfiguration)
	}
}

// String implements fmt.Stringer.
func (m Mode) String() string { return string(m) }

// Scorer is the capability both retrieval strategies implement.
// Implementations must not mutate pool or any fragment in it.
type Scorer interface {
	// Score returns at most k fragments from pool ranked by relevance to
	// query, highest first.
	Score(ctx context.Context, query string, pool []Fragment, k int) ([]ScoredFragment, error)
}

// Embedder converts text into dense vectors. Implementations must fail with
// an error rather than return zero vectors when the backend is unavailable.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed returns the embedding of a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one embedding per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore mirrors embedded fragments into an external vector database.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores or replaces the given fragments. Every fragment must
	// carry an embedding.
	Upsert(ctx context.Context, fragments []Fragment) error

	// DeleteDocument removes every fragment owned by documentID.
	DeleteDocument(ctx context.Context, documentID string) error

	// Close releases any resources held by the store.
	Close() error
}

// Observer receives one event per completed retrieval call.
type Observer interface {
	// ObserveRetrieval records the mode, outcome ("ok", "fallback",
	// "empty" or "error"), result count and latency of one call.
	ObserveRetrieval(mode string, outcome string, results int, seconds float64)
}
