package retrieval

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minKeywordLen = 3
	maxKeywords   = 8
)

// ExtractKeywords splits a question on non-word characters and keeps words of at least
// three characters, at most eight, in order. If none qualify the trimmed question itself
// is the only keyword.
func ExtractKeywords(question string) []string {
	q := strings.TrimSpace(question)
	if q == "" {
		return nil
	}
	words := strings.FieldsFunc(q, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
	keywords := make([]string, 0, maxKeywords)
	for _, w := range words {
		if utf8.RuneCountInString(w) >= minKeywordLen {
			keywords = append(keywords, w)
			if len(keywords) == maxKeywords {
				break
			}
		}
	}
	if len(keywords) == 0 {
		return []string{q}
	}
	return keywords
}
