package heuristics

import (
	"regexp"
	"strings"
)

// humanFalsePositives are phrases that mention humans without asking for one.
var humanFalsePositives = []string{
	"human resources",
	"human rights",
	"human error",
	"human nature",
	"human body",
	"hr policy",
	"hr department",
	"hr team",
}

// humanPhraseRe matches a communication verb followed by a noun that refers to a person.
// Only pronouns, prepositions, articles and a few adjectives may sit between them, and a
// possessive noun ("manager's") does not count.
var humanPhraseRe = regexp.MustCompile(`(?i)\b(?:speak|talk|chat|connect|transfer|reach|contact|escalate)\b` +
	`(?:\s+(?:me|us|it|this|to|with|a|an|the|some|your|one|of|real|live|actual))*` +
	`\s+(?:human|humans|person|agent|representative|rep|someone|somebody|operator|staff|manager|support\s+team|customer\s+service)` +
	`(?:$|[^\w'’])`)

var humanKeywords = []string{
	"live agent",
	"live person",
	"real person",
	"human agent",
	"human being",
	"customer service representative",
	"support representative",
	"speak to support",
	"talk to support",
}

// HumanIntent reports whether the question asks to be put in touch with a person.
func HumanIntent(question string) bool {
	q := strings.ToLower(collapse(question))
	if q == "" {
		return false
	}
	for _, fp := range humanFalsePositives {
		if strings.Contains(q, fp) {
			return false
		}
	}
	if humanPhraseRe.MatchString(q) {
		return true
	}
	for _, k := range humanKeywords {
		if strings.Contains(q, k) {
			return true
		}
	}
	return false
}
