// Package handoff opens human handoff tickets and notifies an optional webhook.
package handoff

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/pkg/utils"
)

// SLA targets for new tickets.
const (
	FirstResponseWithin = 15 * time.Minute
	ResolutionWithin    = 24 * time.Hour
	PriorityNormal      = "normal"
)

const webhookTimeout = 3 * time.Second

// Ticket is the input for a new handoff.
type Ticket struct {
	TenantID       string
	ConversationID string
	UserID         string
	SourceChannel  string
	Question       string
	Reason         string
}

// Creator persists handoff tickets and emits them to a webhook.
type Creator struct {
	store      storage.HandoffStore
	webhookURL string
	client     *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures a Creator.
type Option func(*Creator)

// WithWebhook sets the URL new tickets are posted to. Empty disables the webhook.
func WithWebhook(url string) Option {
	return func(c *Creator) { c.webhookURL = url }
}

// WithHTTPClient overrides the webhook client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Creator) { c.client = client }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Creator) { c.logger = l }
}

// NewCreator creates a handoff creator backed by store.
func NewCreator(store storage.HandoffStore, opts ...Option) *Creator {
	c := &Creator{
		store:  store,
		client: &http.Client{Timeout: webhookTimeout},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = utils.OrNop(c.logger)
	return c
}

// Create stores a new ticket and returns it. The webhook is best effort: its failure is
// logged and never fails the call.
func (c *Creator) Create(ctx context.Context, t Ticket) (*models.HandoffRequest, error) {
	channel := t.SourceChannel
	if channel == "" {
		channel = models.ChannelAPI
	}
	now := c.now().UTC()
	h := &models.HandoffRequest{
		ID:                 newTicketID(),
		TenantID:           t.TenantID,
		ConversationID:     t.ConversationID,
		UserID:             t.UserID,
		SourceChannel:      channel,
		Question:           t.Question,
		Reason:             t.Reason,
		Status:             models.HandoffStatusNew,
		Priority:           PriorityNormal,
		FirstResponseDueAt: now.Add(FirstResponseWithin),
		ResolutionDueAt:    now.Add(ResolutionWithin),
		CreatedAt:          now,
	}
	if err := c.store.CreateHandoff(ctx, h); err != nil {
		return nil, fmt.Errorf("failed to create handoff: %w", err)
	}
	c.logger.Info("Handoff created",
		zap.String("tenant_id", h.TenantID),
		zap.String("handoff_id", h.ID),
		zap.String("channel", h.SourceChannel))

	if c.webhookURL != "" {
		if err := c.emit(ctx, h); err != nil {
			c.logger.Warn("Handoff webhook failed", zap.String("handoff_id", h.ID), zap.Error(err))
		}
	}
	return h, nil
}

type webhookPayload struct {
	ID             string `json:"id"`
	TenantID       string `json:"tenant_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	UserID         string `json:"user_id"`
	SourceChannel  string `json:"source_channel"`
	Question       string `json:"question"`
	Reason         string `json:"reason,omitempty"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
}

func (c *Creator) emit(ctx context.Context, h *models.HandoffRequest) error {
	body, err := json.Marshal(webhookPayload{
		ID:             h.ID,
		TenantID:       h.TenantID,
		ConversationID: h.ConversationID,
		UserID:         h.UserID,
		SourceChannel:  h.SourceChannel,
		Question:       h.Question,
		Reason:         h.Reason,
		Status:         h.Status,
		CreatedAt:      h.CreatedAt.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), webhookTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}

// Message is the reply shown to the user once a ticket is open.
func Message(h *models.HandoffRequest) string {
	return "I have connected you to our support team. Please hold while an agent takes over. Ticket ID: " + h.ID
}

// newTicketID returns "ho_" followed by 24 hex characters.
func newTicketID() string {
	return "ho_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:24]
}
