package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

// RecordUsage appends an entry to the usage ledger.
func (s *SQLiteStorage) RecordUsage(ctx context.Context, rec *models.UsageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_events (id, tenant_id, requester_id, channel, refused, total_tokens, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TenantID, rec.RequesterID, rec.Channel, boolToInt(rec.Refused),
		rec.TotalTokens, rec.LatencyMS, rec.CreatedAt.UTC(),
	)
	return err
}

// CountRequestsSince counts the tenant's ledger entries created at or after since.
func (s *SQLiteStorage) CountRequestsSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM usage_events WHERE tenant_id = ? AND created_at >= ?`,
		tenantID, since.UTC(),
	).Scan(&count)
	return count, err
}

// SumTokensSince sums the tenant's tokens recorded at or after since.
func (s *SQLiteStorage) SumTokensSince(ctx context.Context, tenantID string, since time.Time) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total_tokens), 0) FROM usage_events WHERE tenant_id = ? AND created_at >= ?`,
		tenantID, since.UTC(),
	).Scan(&total)
	return total, err
}

// GetUsageLimit returns the tenant's explicit quota, or nil if none was set.
func (s *SQLiteStorage) GetUsageLimit(ctx context.Context, tenantID string) (*models.UsageLimit, error) {
	limit := models.UsageLimit{TenantID: tenantID}
	err := s.db.QueryRowContext(ctx,
		`SELECT daily_request_limit, monthly_token_limit FROM usage_limits WHERE tenant_id = ?`, tenantID,
	).Scan(&limit.DailyRequestLimit, &limit.MonthlyTokenLimit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &limit, nil
}

// SetUsageLimit creates or replaces a tenant's quota.
func (s *SQLiteStorage) SetUsageLimit(ctx context.Context, limit *models.UsageLimit) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_limits (tenant_id, daily_request_limit, monthly_token_limit) VALUES (?, ?, ?)
		 ON CONFLICT(tenant_id) DO UPDATE SET
			daily_request_limit = excluded.daily_request_limit,
			monthly_token_limit = excluded.monthly_token_limit`,
		limit.TenantID, limit.DailyRequestLimit, limit.MonthlyTokenLimit,
	)
	return err
}

// SummarizeUsage aggregates the tenant's ledger over the last days days.
func (s *SQLiteStorage) SummarizeUsage(ctx context.Context, tenantID string, days int) (*models.UsageSummary, error) {
	if days < 1 {
		days = 1
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	summary := &models.UsageSummary{WindowDays: days, ByChannel: map[string]int{}}

	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(total_tokens), 0), AVG(latency_ms), COALESCE(SUM(refused), 0)
		 FROM usage_events WHERE tenant_id = ? AND created_at >= ?`,
		tenantID, since,
	).Scan(&summary.TotalRequests, &summary.TotalTokens, &avg, &summary.RefusedRequests)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize usage: %w", err)
	}
	if avg.Valid {
		v := avg.Float64
		summary.AvgLatencyMS = &v
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT channel, COUNT(*) FROM usage_events WHERE tenant_id = ? AND created_at >= ? GROUP BY channel`,
		tenantID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize usage by channel: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var channel string
		var n int
		if err := rows.Scan(&channel, &n); err != nil {
			return nil, err
		}
		summary.ByChannel[channel] = n
	}
	return summary, rows.Err()
}

// RecordAudit writes an audit record. Chunk text is never stored, only identifiers.
func (s *SQLiteStorage) RecordAudit(ctx context.Context, rec *models.AuditRecord) error {
	retrieved, err := json.Marshal(nonNilCitations(rec.RetrievedChunks))
	if err != nil {
		return fmt.Errorf("failed to marshal retrieved chunks: %w", err)
	}
	citations, err := json.Marshal(nonNilCitations(rec.Citations))
	if err != nil {
		return fmt.Errorf("failed to marshal citations: %w", err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, tenant_id, requester_id, conversation_id, question, answer,
			retrieved_chunks, citations, refused, model, latency_ms, prompt_tokens, completion_tokens,
			total_tokens, policy_reason, retrieval_doc_count, retrieval_chunk_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TenantID, rec.RequesterID, rec.ConversationID, rec.Question, rec.Answer,
		string(retrieved), string(citations), boolToInt(rec.Refused), rec.Model, rec.LatencyMS,
		nullableInt(rec.PromptTokens), nullableInt(rec.CompletionTokens), nullableInt(rec.TotalTokens),
		rec.PolicyReason, rec.RetrievalDocCount, rec.RetrievalChunkCount, rec.CreatedAt.UTC(),
	)
	return err
}

// CountAuditRecords returns the number of audit records for a tenant.
func (s *SQLiteStorage) CountAuditRecords(ctx context.Context, tenantID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs WHERE tenant_id = ?`, tenantID).Scan(&count)
	return count, err
}

// CreateHandoff inserts a handoff ticket.
func (s *SQLiteStorage) CreateHandoff(ctx context.Context, h *models.HandoffRequest) error {
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO handoff_requests (id, tenant_id, conversation_id, user_id, source_channel, question,
			reason, status, priority, first_response_due_at, resolution_due_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.TenantID, h.ConversationID, h.UserID, h.SourceChannel, h.Question,
		h.Reason, h.Status, h.Priority, h.FirstResponseDueAt.UTC(), h.ResolutionDueAt.UTC(), h.CreatedAt.UTC(),
	)
	return err
}

// GetHandoff returns a tenant handoff ticket by ID.
func (s *SQLiteStorage) GetHandoff(ctx context.Context, tenantID, id string) (*models.HandoffRequest, error) {
	var h models.HandoffRequest
	var convID, reason sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, conversation_id, user_id, source_channel, question, reason, status, priority,
			first_response_due_at, resolution_due_at, created_at
		 FROM handoff_requests WHERE tenant_id = ? AND id = ?`, tenantID, id,
	).Scan(&h.ID, &h.TenantID, &convID, &h.UserID, &h.SourceChannel, &h.Question, &reason,
		&h.Status, &h.Priority, &h.FirstResponseDueAt, &h.ResolutionDueAt, &h.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("handoff not found: %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	h.ConversationID = convID.String
	h.Reason = reason.String
	return &h, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nonNilCitations(c []models.Citation) []models.Citation {
	if c == nil {
		return []models.Citation{}
	}
	return c
}
