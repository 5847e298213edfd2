// Package grounding extracts citation tokens from generated answers and decides whether
// an answer is grounded in the chunks retrieved for the same call.
package grounding

import (
	"regexp"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// RefusalSentence is the canonical refusal. It is compared exactly after trimming the
// answer, never the sentence itself.
const RefusalSentence = "I don't have that information in the provided documents."

const citationPattern = `\[([^\[\]:\s]+):([^\[\]\s]+)\]`

var (
	citationRe = regexp.MustCompile(citationPattern)
	stripRe    = regexp.MustCompile(`\s*` + citationPattern + `\s*`)
	spacesRe   = regexp.MustCompile(`\s{2,}`)
)

// CitationKey is a (document_id, chunk_id) pair named by a citation token.
type CitationKey struct {
	DocumentID string
	ChunkID    string
}

// Token renders the key in wire form.
func (k CitationKey) Token() string {
	return "[" + k.DocumentID + ":" + k.ChunkID + "]"
}

// IsRefusal reports whether the trimmed answer is exactly the refusal sentence.
func IsRefusal(answer string) bool {
	return strings.TrimSpace(answer) == RefusalSentence
}

// ExtractCitations returns the citation keys of answer in order of first appearance.
func ExtractCitations(answer string) []CitationKey {
	var keys []CitationKey
	seen := make(map[CitationKey]struct{})
	for _, m := range citationRe.FindAllStringSubmatch(answer, -1) {
		k := CitationKey{DocumentID: m[1], ChunkID: m[2]}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// Validate reports whether answer is grounded in chunks. The refusal sentence is valid
// with no citations. Any other answer needs at least one citation and every cited pair
// must have been retrieved. The returned keys are the extracted citations either way.
func Validate(answer string, chunks []models.RetrievedChunk) (bool, []CitationKey) {
	if IsRefusal(answer) {
		return true, nil
	}
	keys := ExtractCitations(answer)
	if len(keys) == 0 {
		return false, nil
	}
	retrieved := make(map[CitationKey]struct{}, len(chunks))
	for _, c := range chunks {
		retrieved[CitationKey{DocumentID: c.DocumentID, ChunkID: c.ChunkID}] = struct{}{}
	}
	for _, k := range keys {
		if _, ok := retrieved[k]; !ok {
			return false, keys
		}
	}
	return true, keys
}

// Assemble joins keys back against chunks into citation objects, keeping key order.
// Keys naming chunks that were not retrieved are dropped.
func Assemble(keys []CitationKey, chunks []models.RetrievedChunk) []models.Citation {
	byKey := make(map[CitationKey]models.RetrievedChunk, len(chunks))
	for _, c := range chunks {
		k := CitationKey{DocumentID: c.DocumentID, ChunkID: c.ChunkID}
		if _, ok := byKey[k]; !ok {
			byKey[k] = c
		}
	}
	out := make([]models.Citation, 0, len(keys))
	for _, k := range keys {
		c, ok := byKey[k]
		if !ok {
			continue
		}
		out = append(out, models.Citation{DocumentID: c.DocumentID, ChunkID: c.ChunkID, ChunkIndex: c.ChunkIndex})
	}
	return out
}

// StripCitations removes citation tags and collapses whitespace, for channels that
// display plain text.
func StripCitations(answer string) string {
	text := strings.Join(strings.Fields(answer), " ")
	text = stripRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(spacesRe.ReplaceAllString(text, " "))
}
