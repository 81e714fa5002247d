package rag

import (
	"context"
	"fmt"
	"math"
)

// VectorScorer ranks fragments by cosine similarity between the query
// embedding and each fragment's embedding.
//
// Fragments without an embedding are ignored. A pool in which no fragment
// carries an embedding yields an empty result and a nil error: the pool was
// never processed in vector mode. The scorer never falls back to lexical
// ranking.
type VectorScorer struct {
	// embedder produces the query embedding.
	embedder Embedder
}

// NewVectorScorer constructs a VectorScorer that embeds queries with e.
func NewVectorScorer(e Embedder) (*VectorScorer, error) {
	if e == nil {
		return nil, fmt.Errorf("rag: vector scorer requires an embedder: %w", ErrConfiguration)
	}
	return &VectorScorer{embedder: e}, nil
}

// Score implements Scorer. An embedder failure is returned wrapped in
// ErrEmbeddingUnavailable and no partial result is produced.
func (s *VectorScorer) Score(ctx context.Context, query string, pool []Fragment, k int) ([]ScoredFragment, error) {
	candidates := make([]Fragment, 0, len(pool))
	for _, f := range pool {
		if f.HasEmbedding() {
			candidates = append(candidates, f)
		}
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("rag: embed query: %w: %w", ErrEmbeddingUnavailable, err)
	}
	if len(queryVec) == 0 {
		return nil, fmt.Errorf("rag: embed query: provider returned an empty vector: %w", ErrEmbeddingUnavailable)
	}

	if len(candidates) == 0 {
		return []ScoredFragment{}, nil
	}

	scored := make([]ScoredFragment, len(candidates))
	for i, f := range candidates {
		scored[i] = ScoredFragment{Fragment: f, Score: Cosine(queryVec, f.Embedding)}
	}

	rank(scored)
	return truncate(scored, k), nil
}

// Cosine returns dot(a, b) / (|a| * |b|) computed in float64. It returns 0
// when either vector has zero norm or the lengths differ. The result is
// symmetric and clamped to [-1, 1].
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(-1, math.Min(1, sim))
}
