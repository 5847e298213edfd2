package grounding

import (
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/kotae/internal/models"
)

// Resolution reasons.
const (
	ReasonFailed        = "citation_validation:failed"
	ReasonHealed        = "citation_validation:fallback_top_chunk"
	ReasonAnswerTooLong = "generation:answer_too_long"
)

// DefaultMaxAnswerChars is the answer length ceiling used when none is configured.
const DefaultMaxAnswerChars = 4000

// Options controls how Resolve treats invalid answers.
type Options struct {
	// MaxAnswerChars is the length ceiling in characters; 0 uses DefaultMaxAnswerChars.
	MaxAnswerChars int
	// HealWithTopChunk lets an uncited answer be accepted by citing the top chunk.
	HealWithTopChunk bool
}

// Resolution is the final answer text with its validated citation keys.
type Resolution struct {
	Answer  string
	Keys    []CitationKey
	Refused bool
	// Reason is empty for a cleanly grounded answer.
	Reason string
}

// Resolve applies the length guard, validation and the fallback policy to a generated
// answer. Raw chunk text is never returned as the answer.
func Resolve(answer string, chunks []models.RetrievedChunk, opts Options) Resolution {
	limit := opts.MaxAnswerChars
	if limit <= 0 {
		limit = DefaultMaxAnswerChars
	}
	answer = strings.TrimSpace(answer)
	if utf8.RuneCountInString(answer) > limit {
		return refusal(ReasonAnswerTooLong)
	}

	ok, keys := Validate(answer, chunks)
	if ok {
		if IsRefusal(answer) {
			return Resolution{Answer: RefusalSentence, Refused: true}
		}
		return Resolution{Answer: answer, Keys: keys}
	}

	// An uncited answer is a format miss; a citation to an unknown chunk is fabrication.
	if opts.HealWithTopChunk && answer != "" && len(keys) == 0 && len(chunks) > 0 {
		top := CitationKey{DocumentID: chunks[0].DocumentID, ChunkID: chunks[0].ChunkID}
		healed := answer + " " + top.Token()
		if utf8.RuneCountInString(healed) <= limit {
			return Resolution{Answer: healed, Keys: []CitationKey{top}, Reason: ReasonHealed}
		}
	}
	return refusal(ReasonFailed)
}

func refusal(reason string) Resolution {
	return Resolution{Answer: RefusalSentence, Refused: true, Reason: reason}
}
