package rag

import (
	"context"
	"math"
	"slices"
	"strings"

	"github.com/54b3r/docqa-go/internal/tokenize"
)

// LexicalScorer ranks fragments by TF-IDF against the query tokens.
//
// Document frequency counts fragments whose lower-cased text contains the
// token as a substring, while term frequency counts exact matches among the
// fragment's whitespace-separated words. Inverse document frequency is
// ln(N / (1 + df)) and is not clamped, so a token present in most fragments
// lowers their score.
//
// When the query has no tokens, the pool is empty, or no fragment scores
// above zero, the first k fragments of the pool are returned in pool order.
// A non-empty pool therefore never yields an empty result.
type LexicalScorer struct{}

// NewLexicalScorer constructs a LexicalScorer.
func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{}
}

// Score implements Scorer. It never returns an error.
func (s *LexicalScorer) Score(_ context.Context, query string, pool []Fragment, k int) ([]ScoredFragment, error) {
	terms := tokenize.Tokenize(query)
	if len(terms) == 0 || len(pool) == 0 {
		return firstK(pool, k), nil
	}

	lowered := make([]string, len(pool))
	for i, f := range pool {
		lowered[i] = strings.ToLower(f.Text)
	}

	total := float64(len(pool))
	idf := make(map[string]float64, len(terms))
	for _, term := range terms {
		if _, seen := idf[term]; seen {
			continue
		}
		df := 0
		for _, text := range lowered {
			if strings.Contains(text, term) {
				df++
			}
		}
		idf[term] = math.Log(total / float64(1+df))
	}

	scored := make([]ScoredFragment, 0, len(pool))
	for i, f := range pool {
		words := strings.Fields(lowered[i])
		if len(words) == 0 {
			continue
		}
		counts := make(map[string]int, len(words))
		for _, w := range words {
			counts[w]++
		}

		var score float64
		for _, term := range terms {
			tf := float64(counts[term]) / float64(len(words))
			score += tf * idf[term]
		}
		if score > 0 {
			scored = append(scored, ScoredFragment{Fragment: f, Score: score})
		}
	}

	if len(scored) == 0 {
		return firstK(pool, k), nil
	}

	rank(scored)
	return truncate(scored, k), nil
}

// firstK returns the first k fragments of pool with a zero score.
func firstK(pool []Fragment, k int) []ScoredFragment {
	n := min(max(k, 0), len(pool))
	out := make([]ScoredFragment, n)
	for i := range n {
		out[i] = ScoredFragment{Fragment: pool[i]}
	}
	return out
}

// rank sorts by descending score. Equal scores keep pool order.
func rank(scored []ScoredFragment) {
	slices.SortStableFunc(scored, func(a, b ScoredFragment) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
}

// truncate returns at most k leading elements of scored.
func truncate(scored []ScoredFragment, k int) []ScoredFragment {
	if k < 0 {
		k = 0
	}
	if len(scored) > k {
		return scored[:k]
	}
	return scored
}
