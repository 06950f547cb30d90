package model

import "strings"

// Keywords returns the set of non-stopword tokens of at least 3 characters,
// lowercased. Used for relevance scoring and topic continuity.
func Keywords(text string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?\"'()[]{}|")
		if len(w) >= 3 && !stopWords[w] {
			words[w] = true
		}
	}
	return words
}

// KeywordScore scores how many of the query's keywords appear in the content,
// normalized by query keyword count. Returns 0 when the query has no
// keywords.
func KeywordScore(query, content string) float64 {
	queryWords := Keywords(query)
	if len(queryWords) == 0 {
		return 0
	}
	contentWords := Keywords(content)

	overlap := 0
	for w := range queryWords {
		if contentWords[w] {
			overlap++
		}
	}
	return float64(overlap) / float64(len(queryWords))
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "had": true,
	"her": true, "was": true, "one": true, "our": true, "out": true,
	"has": true, "have": true, "this": true, "that": true, "with": true,
	"from": true, "they": true, "been": true, "said": true, "each": true,
	"which": true, "their": true, "will": true, "other": true, "about": true,
	"many": true, "then": true, "them": true, "these": true, "some": true,
	"would": true, "make": true, "like": true, "into": true, "time": true,
}
