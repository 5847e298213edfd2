// Package storage defines the persistence interfaces for tenant knowledge,
// conversations, policies and the usage ledger.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrNotFound is returned (wrapped) when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// DocumentStore persists tenant documents and their chunks.
type DocumentStore interface {
	// CreateDocument inserts the document and all of its chunks atomically.
	CreateDocument(ctx context.Context, doc *models.Document, chunks []*models.Chunk) error
	GetDocument(ctx context.Context, tenantID, id string) (*models.Document, error)
	GetDocumentByFilename(ctx context.Context, tenantID, filename string) (*models.Document, error)
	GetDocumentsByIDs(ctx context.Context, tenantID string, ids []string) ([]*models.Document, error)
	ListDocuments(ctx context.Context, tenantID string, offset, limit int) ([]*models.Document, error)
	DeleteDocument(ctx context.Context, tenantID, id string) error
}

// ChunkStore reads chunks for retrieval.
type ChunkStore interface {
	// ChunksWithEmbeddings returns the tenant's chunks that carry an embedding.
	ChunksWithEmbeddings(ctx context.Context, tenantID string) ([]*models.Chunk, error)
	// SearchChunksByKeywords returns chunks containing any keyword as a
	// case-insensitive substring, ordered by (document_id, chunk_index).
	SearchChunksByKeywords(ctx context.Context, tenantID string, keywords []string, limit int) ([]*models.Chunk, error)
	CountChunks(ctx context.Context, tenantID string) (int64, error)
}

// ConversationStore owns conversations and their turns.
type ConversationStore interface {
	GetConversation(ctx context.Context, tenantID, id string) (*models.Conversation, error)
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	// RecentTurns returns at most limit turns, oldest first.
	RecentTurns(ctx context.Context, conversationID string, limit int) ([]models.ConversationTurn, error)
	// AppendTurns appends turns in order and updates last activity in one transaction.
	AppendTurns(ctx context.Context, conversationID string, turns ...models.ConversationTurn) error
	SetAIPaused(ctx context.Context, tenantID, id string, paused bool, by string) error
}

// PolicyStore persists tenant policies.
type PolicyStore interface {
	// GetTenantPolicy returns nil without error when the tenant has no policy.
	GetTenantPolicy(ctx context.Context, tenantID string) (*models.TenantPolicy, error)
	UpsertTenantPolicy(ctx context.Context, tenantID string, policy *models.TenantPolicy) error
}

// UsageStore persists the usage ledger and tenant quotas.
type UsageStore interface {
	RecordUsage(ctx context.Context, rec *models.UsageRecord) error
	CountRequestsSince(ctx context.Context, tenantID string, since time.Time) (int, error)
	SumTokensSince(ctx context.Context, tenantID string, since time.Time) (int64, error)
	// GetUsageLimit returns nil without error when the tenant has no explicit limit.
	GetUsageLimit(ctx context.Context, tenantID string) (*models.UsageLimit, error)
	SetUsageLimit(ctx context.Context, limit *models.UsageLimit) error
	SummarizeUsage(ctx context.Context, tenantID string, days int) (*models.UsageSummary, error)
}

// AuditStore persists audit records.
type AuditStore interface {
	RecordAudit(ctx context.Context, rec *models.AuditRecord) error
}

// HandoffStore persists handoff tickets.
type HandoffStore interface {
	CreateHandoff(ctx context.Context, h *models.HandoffRequest) error
	GetHandoff(ctx context.Context, tenantID, id string) (*models.HandoffRequest, error)
}

// Storage is the full persistence surface.
type Storage interface {
	DocumentStore
	ChunkStore
	ConversationStore
	PolicyStore
	UsageStore
	AuditStore
	HandoffStore

	Close() error
}
