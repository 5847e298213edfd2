package pipeline

import (
	"context"

	"github.com/hyperjump/kotae/internal/handoff"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/quota"
)

// Conversations is the conversation store as the pipeline uses it.
type Conversations interface {
	GetConversation(ctx context.Context, tenantID, id string) (*models.Conversation, error)
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	RecentTurns(ctx context.Context, conversationID string, limit int) ([]models.ConversationTurn, error)
	AppendTurns(ctx context.Context, conversationID string, turns ...models.ConversationTurn) error
}

// Documents resolves the documents backing retrieved chunks.
type Documents interface {
	GetDocumentsByIDs(ctx context.Context, tenantID string, ids []string) ([]*models.Document, error)
}

// Retriever finds tenant chunks relevant to a question.
type Retriever interface {
	Search(ctx context.Context, tenantID, question string, topK int) ([]models.RetrievedChunk, error)
}

// QuestionPolicy is the pre-retrieval policy stage.
type QuestionPolicy interface {
	Evaluate(ctx context.Context, tenantID, question string) (models.PolicyDecision, error)
}

// DocumentPolicy is the post-retrieval policy stage.
type DocumentPolicy interface {
	Evaluate(documents []*models.Document, role string) models.PolicyDecision
}

// Generator produces answer text. It never fails; upstream errors come back as a fallback result.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) llm.Result
}

// RateLimiter returns a rate_limit reason, or "" when the call may proceed.
type RateLimiter interface {
	Check(ctx context.Context, tenantID, requesterID string) string
}

// QuotaChecker reports the tenant's usage against its quota.
type QuotaChecker interface {
	Check(ctx context.Context, tenantID string) (quota.Status, error)
}

// Handoffs opens human handoff tickets.
type Handoffs interface {
	Create(ctx context.Context, t handoff.Ticket) (*models.HandoffRequest, error)
}

// Recorder takes audit and usage records without blocking.
type Recorder interface {
	SubmitAudit(rec *models.AuditRecord)
	SubmitUsage(rec *models.UsageRecord)
}
