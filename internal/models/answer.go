package models

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Request bounds.
const (
	MaxQuestionChars = 2000
	MaxTopK          = 20
	MaxMemoryTurns   = 40
)

// AskRequest is a question submitted to the answer pipeline.
type AskRequest struct {
	Question       string `json:"question" validate:"required,min=1,max=2000"`
	TopK           int    `json:"top_k,omitempty" validate:"min=1,max=20"`
	ConversationID string `json:"conversation_id,omitempty" validate:"omitempty,max=64"`
	// MemoryTurns is a pointer so an explicit 0 (no history) differs from "use default".
	MemoryTurns *int `json:"memory_turns,omitempty" validate:"omitempty,min=0,max=40"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Normalize applies defaults and validates the request. Returns an error describing the
// first invalid field.
func (r *AskRequest) Normalize(defaultTopK, defaultMemoryTurns int) error {
	if strings.TrimSpace(r.Question) == "" {
		return fmt.Errorf("question cannot be empty")
	}
	if r.TopK == 0 {
		r.TopK = defaultTopK
	}
	if r.MemoryTurns == nil {
		n := defaultMemoryTurns
		r.MemoryTurns = &n
	}
	if err := requestValidator().Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid %s: failed %q constraint", strings.ToLower(fe.Field()), fe.Tag())
		}
		return err
	}
	return nil
}

// Memory returns the normalized history window size.
func (r *AskRequest) Memory() int {
	if r.MemoryTurns == nil {
		return 0
	}
	return *r.MemoryTurns
}

// Citation references a retrieved chunk that supports an answer.
type Citation struct {
	DocumentID string `json:"document_id"`
	ChunkID    string `json:"chunk_id"`
	ChunkIndex int    `json:"chunk_index"`
}

// Coverage counts what retrieval produced for a call.
type Coverage struct {
	DocCount   int `json:"doc_count"`
	ChunkCount int `json:"chunk_count"`
}

// CoverageOf computes distinct document and chunk counts of a retrieval result.
func CoverageOf(chunks []RetrievedChunk) Coverage {
	docs := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		docs[c.DocumentID] = struct{}{}
	}
	return Coverage{DocCount: len(docs), ChunkCount: len(chunks)}
}

// AnswerResult is the single output of the pipeline for one call.
type AnswerResult struct {
	Answer       string     `json:"answer"`
	Refused      bool       `json:"refused"`
	Citations    []Citation `json:"citations"`
	PolicyReason string     `json:"policy_reason,omitempty"`
	Coverage     Coverage   `json:"coverage"`
}

// AskResponse is the wire response for an ask call.
type AskResponse struct {
	AnswerResult
	ConversationID string           `json:"conversation_id"`
	Sources        []RetrievedChunk `json:"sources,omitempty"`
}
