// Package tokenizer splits query text into the lower-cased terms both channel
// indexes were built with.
package tokenizer

import (
	"regexp"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// A token is one leading word character, '#' or '@', followed by 2 to 24
// word characters, each optionally preceded by a single apostrophe or hyphen.
var wordPattern = regexp.MustCompile(`[#@\p{L}\p{N}_](?:['\-]?[\p{L}\p{N}_]){2,24}`)

// Tokenize returns the terms of text in the order they appear. Repeated terms
// are kept; the scorer counts them. Characters that match no token are
// skipped.
func Tokenize(text string) []string {
	matches := wordPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	// Casers carry state and must not be shared between goroutines.
	lower := cases.Lower(language.Und)
	terms := make([]string, len(matches))
	for i, m := range matches {
		terms[i] = lower.String(m)
	}
	return terms
}

// Counts folds terms into a multiset. The returned order slice lists each
// distinct term once, in order of first appearance.
func Counts(terms []string) (counts map[string]int, order []string) {
	counts = make(map[string]int, len(terms))
	order = make([]string, 0, len(terms))
	for _, t := range terms {
		if counts[t] == 0 {
			order = append(order, t)
		}
		counts[t]++
	}
	return counts, order
}
