package models

import "time"

// Conversation turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleAgent     = "agent"
)

// Conversation is a tenant-scoped chat thread owned by one requester.
type Conversation struct {
	ID             string     `json:"id" db:"id"`
	TenantID       string     `json:"tenant_id" db:"tenant_id"`
	UserID         string     `json:"user_id" db:"user_id"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	LastActivityAt time.Time  `json:"last_activity_at" db:"last_activity_at"`
	AIPaused       bool       `json:"ai_paused" db:"ai_paused"`
	AIPausedAt     *time.Time `json:"ai_paused_at,omitempty" db:"ai_paused_at"`
	AIPausedBy     string     `json:"ai_paused_by,omitempty" db:"ai_paused_by_user_id"`
}

// ConversationTurn is one message in a conversation.
type ConversationTurn struct {
	Role      string    `json:"role" db:"role"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
