// Package tokenize turns free text into index terms for lexical scoring.
// Terms are lower-cased runs of letters and digits longer than one rune,
// with common English noise words removed.
package tokenize

import (
	"strings"
	"unicode"
)

// stopWords holds pronouns, articles, auxiliary verbs, conjunctions and
// frequent prepositions that carry no retrieval signal.
var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		a about above after again against all am an and any are aren as at
		be because been before being below between both but by
		can cannot could couldn did didn do does doesn doing don down during
		each few for from further had hadn has hasn have haven having he her
		here hers herself him himself his how if in into is isn it its itself
		just let me more most mustn my myself no nor not now of off on once
		only or other ought our ours ourselves out over own same shan she
		should shouldn so some such than that the their theirs them themselves
		then there these they this those through to too under until up upon
		us very was wasn we were weren what when where which while who whom
		why will with won would wouldn you your yours yourself yourselves
		also may might must shall within without via per ll ve re
	`) {
		stopWords[w] = struct{}{}
	}
}

// isStopWord reports whether the lower-cased word is in the stop-word set.
func isStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}

// Tokenize lower-cases text, splits it on every rune that is not a letter or
// digit, and returns the tokens longer than one rune that are not stop
// words, in their original order. Duplicates are preserved.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) <= 1 {
			continue
		}
		if isStopWord(f) {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}
