package knowledge

import (
	"strings"
	"unicode"
)

// NormalizeQuestion lowercases, strips punctuation, and collapses whitespace
// so the same question always produces the same matchable key.
func NormalizeQuestion(q string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, q)
	return strings.Join(strings.Fields(mapped), " ")
}

// Common words that carry no matching signal.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "be": {},
	"do": {}, "does": {}, "did": {}, "can": {}, "could": {}, "will": {},
	"what": {}, "how": {}, "when": {}, "where": {}, "who": {}, "why": {},
	"i": {}, "you": {}, "your": {}, "we": {}, "our": {}, "my": {}, "me": {},
	"it": {}, "this": {}, "that": {}, "to": {}, "of": {}, "in": {}, "on": {},
	"for": {}, "with": {}, "and": {}, "or": {}, "about": {}, "there": {},
}

// Terms normalizes text and returns its unique significant words, in order
// of first appearance.
func Terms(text string) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, w := range strings.Fields(NormalizeQuestion(text)) {
		if _, stop := stopwords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		terms = append(terms, w)
	}
	return terms
}
