package heuristics

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hyperjump/kotae/internal/models"
)

const (
	minNameChars = 2
	maxNameChars = 40
	maxNameWords = 3
)

var (
	// Strong cues may be followed by more text after the name.
	strongCueRe = regexp.MustCompile(`(?i)\b(?:my\s+name\s+is|call\s+me)\s+([^.,!?;:\n]+)`)
	// Weak cues must be followed by the name alone up to the end of the clause.
	weakCueRe = regexp.MustCompile(`(?i)\b(?:i\s+am|i'm|i’m|it's|it’s|this\s+is)\s+([^.,!?;:\n]+)`)

	nameRequestRe = regexp.MustCompile(`(?i)what\s+name\s+should\s+i\s+call\s+you`)
	nameWordRe    = regexp.MustCompile(`^\p{L}[\p{L}'’\-]*$`)
)

// nameStopWords rejects phrases like "I'm looking for..." or "this is urgent" and replies
// that are questions or support requests rather than names.
var nameStopWords = toSet(
	// sentence glue
	"a", "an", "the", "and", "or", "but", "so", "not", "no", "yes", "yeah", "ok", "okay",
	"just", "also", "very", "really", "still", "here", "there", "now", "today", "tomorrow",
	"later", "back", "again", "at", "in", "on", "to", "for", "of", "with", "from", "about",
	"it", "this", "that", "i", "me", "my", "you", "your", "we", "our", "they", "he", "she",
	"please", "pls", "thanks", "thank", "hello", "hi", "hey", "bye",
	// question words
	"what", "how", "why", "when", "where", "who", "which", "can", "could", "would", "should",
	"will", "do", "does", "did", "is", "are", "was", "were", "be", "been", "have", "has", "had",
	// states and activities
	"looking", "trying", "wondering", "asking", "calling", "writing", "going", "having",
	"interested", "new", "fine", "good", "great", "well", "sorry", "sure", "glad", "happy",
	"ready", "able", "unable", "done", "urgent", "confused", "stuck", "lost", "waiting",
	"getting", "planning", "hoping",
	// support nouns
	"customer", "user", "client", "admin", "agent", "human", "person", "support", "help",
	"issue", "problem", "question", "refund", "order", "account", "price", "pricing",
	"policy", "service", "team", "bot", "assistant",
)

func toSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// DirectName returns a name the user states about themselves anywhere in text.
func DirectName(text string) (string, bool) {
	for _, m := range strongCueRe.FindAllStringSubmatch(text, -1) {
		if name, ok := leadingName(m[1]); ok {
			return name, true
		}
	}
	for _, m := range weakCueRe.FindAllStringSubmatch(text, -1) {
		if name, ok := wholeName(m[1]); ok {
			return name, true
		}
	}
	return "", false
}

// AsksForName reports whether an assistant message requested the user's name.
func AsksForName(text string) bool {
	return nameRequestRe.MatchString(text)
}

// NameReply accepts a bare name sent in answer to a name request: 1–3 name-like words
// with none of ?!,:;./\ and no stop words.
func NameReply(text string) (string, bool) {
	t := strings.TrimSpace(text)
	if strings.ContainsAny(t, `?!,:;./\`) {
		return "", false
	}
	return wholeName(t)
}

func matchNameReply(q string, history []models.ConversationTurn) (string, bool) {
	last, ok := lastAssistantTurn(history)
	if !ok || !AsksForName(last.Content) {
		return "", false
	}
	return NameReply(q)
}

// KnownName infers the user's preferred name from history (oldest first): the latest
// user turn that states a name directly, or answers a name request with one.
func KnownName(history []models.ConversationTurn) string {
	for i := len(history) - 1; i >= 0; i-- {
		turn := history[i]
		if turn.Role != models.RoleUser {
			continue
		}
		if name, ok := DirectName(turn.Content); ok {
			return name
		}
		if i > 0 && history[i-1].Role == models.RoleAssistant && AsksForName(history[i-1].Content) {
			if name, ok := NameReply(turn.Content); ok {
				return name
			}
		}
	}
	return ""
}

func lastAssistantTurn(history []models.ConversationTurn) (models.ConversationTurn, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleAssistant {
			return history[i], true
		}
	}
	return models.ConversationTurn{}, false
}

// leadingName takes name-like words from the start of clause until a stop word.
func leadingName(clause string) (string, bool) {
	var words []string
	for _, w := range strings.Fields(clause) {
		if !isNameWord(w) || len(words) == maxNameWords {
			break
		}
		words = append(words, w)
	}
	return formatName(words)
}

// wholeName requires every word of clause to be part of the name.
func wholeName(clause string) (string, bool) {
	words := strings.Fields(clause)
	if len(words) == 0 || len(words) > maxNameWords {
		return "", false
	}
	for _, w := range words {
		if !isNameWord(w) {
			return "", false
		}
	}
	return formatName(words)
}

func isNameWord(w string) bool {
	if !nameWordRe.MatchString(w) {
		return false
	}
	_, stop := nameStopWords[strings.ToLower(w)]
	return !stop
}

func formatName(words []string) (string, bool) {
	if len(words) == 0 {
		return "", false
	}
	titled := make([]string, len(words))
	for i, w := range words {
		titled[i] = titleWord(w)
	}
	name := strings.Join(titled, " ")
	if n := utf8.RuneCountInString(name); n < minNameChars || n > maxNameChars {
		return "", false
	}
	return name, true
}

func titleWord(w string) string {
	runes := []rune(strings.ToLower(w))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
