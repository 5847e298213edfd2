package models

import "time"

// AuditRecord is the per-call audit trail written after every pipeline exit.
// Retrieved chunks and citations carry identifiers only, never chunk text.
type AuditRecord struct {
	ID                  string     `json:"id"`
	TenantID            string     `json:"tenant_id"`
	RequesterID         string     `json:"requester_id"`
	ConversationID      string     `json:"conversation_id"`
	Question            string     `json:"question"`
	Answer              string     `json:"answer"`
	RetrievedChunks     []Citation `json:"retrieved_chunks"`
	Citations           []Citation `json:"citations"`
	Refused             bool       `json:"refused"`
	Model               string     `json:"model,omitempty"`
	LatencyMS           int64      `json:"latency_ms"`
	PromptTokens        *int       `json:"prompt_tokens,omitempty"`
	CompletionTokens    *int       `json:"completion_tokens,omitempty"`
	TotalTokens         *int       `json:"total_tokens,omitempty"`
	PolicyReason        string     `json:"policy_reason,omitempty"`
	RetrievalDocCount   int        `json:"retrieval_doc_count"`
	RetrievalChunkCount int        `json:"retrieval_chunk_count"`
	CreatedAt           time.Time  `json:"created_at"`
}

// UsageRecord is one entry of the tenant usage ledger.
type UsageRecord struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	RequesterID string    `json:"requester_id"`
	Channel     string    `json:"channel"`
	Refused     bool      `json:"refused"`
	TotalTokens int       `json:"total_tokens"`
	LatencyMS   int64     `json:"latency_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// UsageLimit holds a tenant's quota.
type UsageLimit struct {
	TenantID          string `json:"tenant_id"`
	DailyRequestLimit int    `json:"daily_request_limit"`
	MonthlyTokenLimit int64  `json:"monthly_token_limit"`
}

// UsageSummary aggregates the usage ledger over a window.
type UsageSummary struct {
	WindowDays      int            `json:"window_days"`
	TotalRequests   int            `json:"total_requests"`
	TotalTokens     int64          `json:"total_tokens"`
	AvgLatencyMS    *float64       `json:"avg_latency_ms"`
	RefusedRequests int            `json:"refused_requests"`
	ByChannel       map[string]int `json:"by_channel"`
}

// Handoff statuses.
const (
	HandoffStatusNew = "new"
)

// HandoffRequest is a ticket asking a human agent to take over.
type HandoffRequest struct {
	ID                 string    `json:"id"`
	TenantID           string    `json:"tenant_id"`
	ConversationID     string    `json:"conversation_id,omitempty"`
	UserID             string    `json:"user_id"`
	SourceChannel      string    `json:"source_channel"`
	Question           string    `json:"question"`
	Reason             string    `json:"reason,omitempty"`
	Status             string    `json:"status"`
	Priority           string    `json:"priority"`
	FirstResponseDueAt time.Time `json:"first_response_due_at"`
	ResolutionDueAt    time.Time `json:"resolution_due_at"`
	CreatedAt          time.Time `json:"created_at"`
}
