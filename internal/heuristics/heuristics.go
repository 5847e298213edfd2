// Package heuristics classifies a question as small talk, a name statement or a request
// for a human before any retrieval happens. Classification is pure: it reads the
// question and recent history and never writes anywhere.
package heuristics

import (
	"regexp"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// Kind is the outcome of classification.
type Kind string

// Classification kinds, in ladder order.
const (
	KindDirectName  Kind = "direct_name_statement"
	KindNameReply   Kind = "name_reply"
	KindGreeting    Kind = "greeting"
	KindThanks      Kind = "thanks"
	KindFarewell    Kind = "farewell"
	KindHumanIntent Kind = "human_intent"
	KindNone        Kind = "none"
)

// Classification carries the matched kind and, for name kinds, the captured name.
type Classification struct {
	Kind Kind
	Name string
}

// IsSmallTalk reports whether the kind is a greeting, thanks or farewell.
func (c Classification) IsSmallTalk() bool {
	return c.Kind == KindGreeting || c.Kind == KindThanks || c.Kind == KindFarewell
}

type rule struct {
	kind  Kind
	match func(question string, history []models.ConversationTurn) (name string, ok bool)
}

// ladder is evaluated top to bottom; the first matching rule wins.
var ladder = []rule{
	{KindDirectName, func(q string, _ []models.ConversationTurn) (string, bool) { return DirectName(q) }},
	{KindNameReply, matchNameReply},
	{KindGreeting, wholeMessage(greetingRe)},
	{KindThanks, wholeMessage(thanksRe)},
	{KindFarewell, wholeMessage(farewellRe)},
	{KindHumanIntent, func(q string, _ []models.ConversationTurn) (string, bool) { return "", HumanIntent(q) }},
}

// Classify runs the ladder over the question. history is oldest first.
func Classify(question string, history []models.ConversationTurn) Classification {
	q := strings.TrimSpace(question)
	if q == "" {
		return Classification{Kind: KindNone}
	}
	for _, r := range ladder {
		if name, ok := r.match(q, history); ok {
			return Classification{Kind: r.kind, Name: name}
		}
	}
	return Classification{Kind: KindNone}
}

var (
	greetingRe = regexp.MustCompile(`(?i)^(?:hi|hello|hey|hiya|howdy|hola|yo|greetings|good\s+(?:morning|afternoon|evening|day))(?:\s+(?:there|team|all|everyone|folks))?$`)
	thanksRe   = regexp.MustCompile(`(?i)^(?:thanks|thank\s+you|thx|ty|cheers|many\s+thanks|much\s+appreciated|appreciate\s+it|thanks\s+a\s+lot|thank\s+you\s+(?:so|very)\s+much|thanks\s+so\s+much)(?:\s+(?:again|a\s+lot))?$`)
	farewellRe = regexp.MustCompile(`(?i)^(?:bye|goodbye|good\s+bye|bye\s+bye|see\s+(?:you|ya)(?:\s+later)?|later|talk\s+(?:to\s+you\s+)?later|have\s+a\s+(?:good|nice|great)\s+(?:day|one|night|evening)|good\s+night)$`)

	trailingNoise = regexp.MustCompile(`[\s!.,?~]+$`)
)

// wholeMessage matches when re covers the whole question once trailing punctuation is removed.
func wholeMessage(re *regexp.Regexp) func(string, []models.ConversationTurn) (string, bool) {
	return func(q string, _ []models.ConversationTurn) (string, bool) {
		normalized := collapse(trailingNoise.ReplaceAllString(q, ""))
		return "", re.MatchString(normalized)
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
