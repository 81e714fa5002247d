// Package budget estimates the token cost of retrieved fragments and trims a
// ranked result list to fit a context budget. Downstream language models use
// different tokenizers, so this package uses a conservative character-based
// heuristic: 1 token ≈ 4 characters (English prose and code).
package budget

import (
	"unicode/utf8"

	"github.com/54b3r/docqa-go/internal/rag"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// perFragmentOverhead approximates the separator and source label a
	// caller adds around each fragment.
	perFragmentOverhead = 8
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := utf8.RuneCountInString(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateFragments returns the estimated total token count of results,
// including a small per-fragment overhead.
func EstimateFragments(results []rag.ScoredFragment) int {
	total := 0
	for _, r := range results {
		total += perFragmentOverhead + Estimate(r.Fragment.Text)
	}
	return total
}

// Fit returns the longest rank-order prefix of results whose estimated cost
// is at most maxTokens. The ranking is never reordered: a fragment that does
// not fit ends the prefix even when a later, shorter one would. maxTokens <= 0
// disables trimming.
//
// The returned slice aliases results.
func Fit(results []rag.ScoredFragment, maxTokens int) []rag.ScoredFragment {
	if maxTokens <= 0 {
		return results
	}

	used := 0
	for i, r := range results {
		used += perFragmentOverhead + Estimate(r.Fragment.Text)
		if used > maxTokens {
			return results[:i]
		}
	}
	return results
}
