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

// GetConversation returns a tenant conversation by ID.
func (s *SQLiteStorage) GetConversation(ctx context.Context, tenantID, id string) (*models.Conversation, error) {
	var conv models.Conversation
	var paused int
	var pausedAt sql.NullTime
	var pausedBy sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, user_id, created_at, last_activity_at, ai_paused, ai_paused_at, ai_paused_by_user_id
		 FROM conversations WHERE tenant_id = ? AND id = ?`, tenantID, id,
	).Scan(&conv.ID, &conv.TenantID, &conv.UserID, &conv.CreatedAt, &conv.LastActivityAt,
		&paused, &pausedAt, &pausedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation not found: %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	conv.AIPaused = paused != 0
	if pausedAt.Valid {
		t := pausedAt.Time
		conv.AIPausedAt = &t
	}
	conv.AIPausedBy = pausedBy.String
	return &conv, nil
}

// CreateConversation inserts a conversation.
func (s *SQLiteStorage) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	now := time.Now().UTC()
	conv.CreatedAt = now
	conv.LastActivityAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, tenant_id, user_id, created_at, last_activity_at)
		 VALUES (?, ?, ?, ?, ?)`,
		conv.ID, conv.TenantID, conv.UserID, conv.CreatedAt, conv.LastActivityAt,
	)
	return err
}

// RecentTurns returns the last limit turns of a conversation, oldest first.
func (s *SQLiteStorage) RecentTurns(ctx context.Context, conversationID string, limit int) ([]models.ConversationTurn, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM (
			SELECT seq, role, content, created_at FROM messages
			WHERE conversation_id = ? ORDER BY seq DESC LIMIT ?
		 ) ORDER BY seq ASC`,
		conversationID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []models.ConversationTurn
	for rows.Next() {
		var turn models.ConversationTurn
		if err := rows.Scan(&turn.Role, &turn.Content, &turn.CreatedAt); err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// AppendTurns appends turns in order and touches the conversation's last activity.
func (s *SQLiteStorage) AppendTurns(ctx context.Context, conversationID string, turns ...models.ConversationTurn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET last_activity_at = ? WHERE id = ?`, now, conversationID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conversation not found: %s: %w", conversationID, ErrNotFound)
	}
	for _, turn := range turns {
		createdAt := turn.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (conversation_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
			conversationID, turn.Role, turn.Content, createdAt,
		); err != nil {
			return fmt.Errorf("failed to append %s turn: %w", turn.Role, err)
		}
	}
	return tx.Commit()
}

// SetAIPaused flags or clears the AI-paused state of a tenant conversation.
func (s *SQLiteStorage) SetAIPaused(ctx context.Context, tenantID, id string, paused bool, by string) error {
	var res sql.Result
	var err error
	if paused {
		res, err = s.db.ExecContext(ctx,
			`UPDATE conversations SET ai_paused = 1, ai_paused_at = ?, ai_paused_by_user_id = ?
			 WHERE tenant_id = ? AND id = ?`,
			time.Now().UTC(), by, tenantID, id)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE conversations SET ai_paused = 0, ai_paused_at = NULL, ai_paused_by_user_id = NULL
			 WHERE tenant_id = ? AND id = ?`,
			tenantID, id)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conversation not found: %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetTenantPolicy returns the tenant's policy, or nil if none was stored.
func (s *SQLiteStorage) GetTenantPolicy(ctx context.Context, tenantID string) (*models.TenantPolicy, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT policy FROM tenant_policies WHERE tenant_id = ?`, tenantID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var policy models.TenantPolicy
	if err := json.Unmarshal([]byte(raw), &policy); err != nil {
		return nil, fmt.Errorf("failed to unmarshal policy: %w", err)
	}
	return &policy, nil
}

// UpsertTenantPolicy replaces the tenant's policy.
func (s *SQLiteStorage) UpsertTenantPolicy(ctx context.Context, tenantID string, policy *models.TenantPolicy) error {
	raw, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("failed to marshal policy: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tenant_policies (tenant_id, policy, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(tenant_id) DO UPDATE SET policy = excluded.policy, updated_at = excluded.updated_at`,
		tenantID, string(raw), time.Now().UTC(),
	)
	return err
}
