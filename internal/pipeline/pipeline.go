// Package pipeline answers tenant questions. Ask runs a fixed sequence of guards,
// conversational shortcuts, policy stages, retrieval, generation and grounding; every
// exit produces one AnswerResult and runs the same bookkeeping.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/grounding"
	"github.com/hyperjump/kotae/internal/handoff"
	"github.com/hyperjump/kotae/internal/heuristics"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/policy"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Policy reasons set by the pipeline itself.
const (
	ReasonAIPaused            = "ai_paused"
	ReasonSmallTalk           = "conversation:small_talk"
	ReasonNameCaptured        = "conversation:name_captured"
	ReasonNameReplyCaptured   = "conversation:name_reply_captured"
	ReasonHandoff             = "handoff:auto_intent_detected"
	ReasonHandoffFailed       = "handoff:failed"
	ReasonNoContext           = "retrieval:no_context"
	ReasonUpstreamUnavailable = "generation:upstream_unavailable"
)

// Fixed replies.
const (
	MessageAIPaused       = "A support agent is handling this conversation and will reply here shortly."
	MessageRateLimited    = "Rate limit exceeded. Please retry shortly."
	MessageQuotaReached   = "Your organization has reached its usage limit. Please try again later."
	MessageHandoffFailed  = "I couldn't reach our support team right now. Please try again in a few minutes."
	MessagePolicyRefusal  = "Request refused by policy."
	MessageDocumentPolicy = "Request refused by document access policy."
)

// ErrInvalidRequest is returned (wrapped) when the requester or request fails validation.
var ErrInvalidRequest = errors.New("invalid request")

// Dependencies are the collaborators of a Pipeline. Limiter, Quota and Recorder may be nil.
type Dependencies struct {
	Conversations Conversations
	Documents     Documents
	Retriever     Retriever
	Questions     QuestionPolicy
	DocumentRules DocumentPolicy
	Generator     Generator
	Handoffs      Handoffs
	Limiter       RateLimiter
	Quota         QuotaChecker
	Recorder      Recorder
}

// Pipeline is immutable after New and safe for concurrent use.
type Pipeline struct {
	deps        Dependencies
	persona     config.PersonaConfig
	grounding   grounding.Options
	defaultTopK int
	defaultMem  int
	metrics     *metrics.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithPersona sets the fallback bot and company names for requesters that carry none.
func WithPersona(persona config.PersonaConfig) Option {
	return func(p *Pipeline) { p.persona = persona }
}

// WithGrounding sets the answer length ceiling and healing policy.
func WithGrounding(opts grounding.Options) Option {
	return func(p *Pipeline) { p.grounding = opts }
}

// WithDefaults sets the top_k and memory_turns applied when a request leaves them unset.
func WithDefaults(topK, memoryTurns int) Option {
	return func(p *Pipeline) {
		p.defaultTopK = topK
		p.defaultMem = memoryTurns
	}
}

// New creates a pipeline. All dependencies except Limiter, Quota and Recorder are required.
func New(deps Dependencies, opts ...Option) (*Pipeline, error) {
	switch {
	case deps.Conversations == nil:
		return nil, fmt.Errorf("pipeline: conversation store is required")
	case deps.Documents == nil:
		return nil, fmt.Errorf("pipeline: document store is required")
	case deps.Retriever == nil:
		return nil, fmt.Errorf("pipeline: retriever is required")
	case deps.Questions == nil || deps.DocumentRules == nil:
		return nil, fmt.Errorf("pipeline: both policy stages are required")
	case deps.Generator == nil:
		return nil, fmt.Errorf("pipeline: generator is required")
	case deps.Handoffs == nil:
		return nil, fmt.Errorf("pipeline: handoff creator is required")
	}
	p := &Pipeline{
		deps:        deps,
		persona:     config.PersonaConfig{BotName: "AI Assistant", CompanyName: "our team"},
		grounding:   grounding.Options{MaxAnswerChars: grounding.DefaultMaxAnswerChars, HealWithTopChunk: true},
		defaultTopK: 5,
		defaultMem:  8,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = utils.OrNop(p.logger)
	return p, nil
}

// outcome is everything one call decided, before bookkeeping.
type outcome struct {
	result    models.AnswerResult
	retrieved []models.RetrievedChunk
	sources   []models.RetrievedChunk
	gen       *llm.Result
}

func shortCircuit(answer, reason string) outcome {
	return outcome{result: models.AnswerResult{
		Answer:       answer,
		Refused:      true,
		Citations:    []models.Citation{},
		PolicyReason: reason,
	}}
}

// Ask answers one question for who. Decision outcomes (refusals included) are returned as
// responses; an error means a store the pipeline depends on failed, or the request was
// invalid (ErrInvalidRequest).
func (p *Pipeline) Ask(ctx context.Context, who models.Requester, req models.AskRequest) (*models.AskResponse, error) {
	start := p.now()
	if who == nil || strings.TrimSpace(who.TenantID()) == "" || strings.TrimSpace(who.ID()) == "" {
		return nil, fmt.Errorf("%w: requester must carry a tenant and an id", ErrInvalidRequest)
	}
	if err := req.Normalize(p.defaultTopK, p.defaultMem); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	conv, err := p.conversation(ctx, who, req.ConversationID)
	if err != nil {
		return nil, err
	}
	history, err := p.deps.Conversations.RecentTurns(ctx, conv.ID, req.Memory())
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	out, err := p.decide(ctx, who, req, conv, history)
	if err != nil {
		return nil, err
	}
	if err := p.finish(ctx, who, req, conv, out, start); err != nil {
		return nil, err
	}
	return &models.AskResponse{
		AnswerResult:   out.result,
		ConversationID: conv.ID,
		Sources:        out.sources,
	}, nil
}

// conversation returns the requester's conversation with id, or a new one when id is
// empty, unknown, or owned by someone else.
func (p *Pipeline) conversation(ctx context.Context, who models.Requester, id string) (*models.Conversation, error) {
	if id != "" {
		conv, err := p.deps.Conversations.GetConversation(ctx, who.TenantID(), id)
		switch {
		case err == nil && conv.UserID == who.ID():
			return conv, nil
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("failed to load conversation: %w", err)
		}
	}
	conv := &models.Conversation{
		ID:       utils.NewID("conv"),
		TenantID: who.TenantID(),
		UserID:   who.ID(),
	}
	if err := p.deps.Conversations.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

func (p *Pipeline) decide(ctx context.Context, who models.Requester, req models.AskRequest,
	conv *models.Conversation, history []models.ConversationTurn) (outcome, error) {
	tenantID := who.TenantID()

	if conv.AIPaused {
		return shortCircuit(MessageAIPaused, ReasonAIPaused), nil
	}

	if p.deps.Limiter != nil {
		if reason := p.deps.Limiter.Check(ctx, tenantID, who.ID()); reason != "" {
			return shortCircuit(MessageRateLimited, reason), nil
		}
	}

	if p.deps.Quota != nil {
		st, err := p.deps.Quota.Check(ctx, tenantID)
		if err != nil {
			p.logger.Warn("Quota check failed, allowing request",
				zap.String("tenant_id", tenantID), zap.Error(err))
		} else if st.Exceeded() {
			return shortCircuit(MessageQuotaReached, st.Reason), nil
		}
	}

	replies := p.replies(who)
	class := heuristics.Classify(req.Question, history)
	switch {
	case class.Kind == heuristics.KindDirectName:
		return shortCircuit(replies.NameAck(class.Name), ReasonNameCaptured), nil
	case class.Kind == heuristics.KindNameReply:
		return shortCircuit(replies.NameAck(class.Name), ReasonNameReplyCaptured), nil
	case class.IsSmallTalk():
		return shortCircuit(replies.SmallTalk(class.Kind, heuristics.KnownName(history)), ReasonSmallTalk), nil
	case class.Kind == heuristics.KindHumanIntent:
		return p.handoff(ctx, who, req, conv), nil
	}

	decision, err := p.deps.Questions.Evaluate(ctx, tenantID, req.Question)
	if err != nil {
		return outcome{}, fmt.Errorf("failed to evaluate question policy: %w", err)
	}
	if !decision.Allowed() {
		return shortCircuit(orDefault(decision.Message, MessagePolicyRefusal), decision.Reason), nil
	}

	chunks, err := p.deps.Retriever.Search(ctx, tenantID, req.Question, req.TopK)
	if err != nil {
		return outcome{}, fmt.Errorf("failed to retrieve context: %w", err)
	}
	if len(chunks) == 0 {
		return shortCircuit(grounding.RefusalSentence, ReasonNoContext), nil
	}

	docs, err := p.deps.Documents.GetDocumentsByIDs(ctx, tenantID, policy.BackingDocumentIDs(chunks))
	if err != nil {
		return outcome{}, fmt.Errorf("failed to load backing documents: %w", err)
	}
	if decision := p.deps.DocumentRules.Evaluate(docs, who.Role()); !decision.Allowed() {
		out := shortCircuit(orDefault(decision.Message, MessageDocumentPolicy), decision.Reason)
		out.result.Coverage = models.CoverageOf(chunks)
		out.retrieved = chunks
		return out, nil
	}

	return p.generate(ctx, who, req, history, chunks), nil
}

func (p *Pipeline) handoff(ctx context.Context, who models.Requester, req models.AskRequest, conv *models.Conversation) outcome {
	h, err := p.deps.Handoffs.Create(ctx, handoff.Ticket{
		TenantID:       who.TenantID(),
		ConversationID: conv.ID,
		UserID:         who.ID(),
		SourceChannel:  who.SourceChannel(),
		Question:       req.Question,
		Reason:         ReasonHandoff,
	})
	if err != nil {
		p.logger.Error("Handoff creation failed",
			zap.String("tenant_id", who.TenantID()),
			zap.String("conversation_id", conv.ID),
			zap.Error(err))
		return shortCircuit(MessageHandoffFailed, ReasonHandoffFailed)
	}
	return shortCircuit(handoff.Message(h), ReasonHandoff)
}

func (p *Pipeline) generate(ctx context.Context, who models.Requester, req models.AskRequest,
	history []models.ConversationTurn, chunks []models.RetrievedChunk) outcome {
	replies := p.replies(who)
	gen := p.deps.Generator.Generate(ctx, llm.Request{
		System: SystemPrompt(replies.BotName, replies.CompanyName),
		User:   UserPrompt(req.Question, chunks, history, heuristics.KnownName(history)),
	})

	res := grounding.Resolve(gen.Text, chunks, p.grounding)
	reason := res.Reason
	if gen.Fallback && reason == "" {
		reason = ReasonUpstreamUnavailable
	}
	return outcome{
		result: models.AnswerResult{
			Answer:       res.Answer,
			Refused:      res.Refused,
			Citations:    grounding.Assemble(res.Keys, chunks),
			PolicyReason: reason,
			Coverage:     models.CoverageOf(chunks),
		},
		retrieved: chunks,
		sources:   chunks,
		gen:       &gen,
	}
}

// finish appends both turns, submits the audit and usage records and observes the call.
func (p *Pipeline) finish(ctx context.Context, who models.Requester, req models.AskRequest,
	conv *models.Conversation, out outcome, start time.Time) error {
	now := p.now()
	if err := p.deps.Conversations.AppendTurns(ctx, conv.ID,
		models.ConversationTurn{Role: models.RoleUser, Content: req.Question, CreatedAt: now.UTC()},
		models.ConversationTurn{Role: models.RoleAssistant, Content: out.result.Answer, CreatedAt: now.UTC()},
	); err != nil {
		return fmt.Errorf("failed to append turns: %w", err)
	}

	elapsed := now.Sub(start)
	latency := elapsed.Milliseconds()
	audit := &models.AuditRecord{
		ID:                  utils.NewID("audit"),
		TenantID:            who.TenantID(),
		RequesterID:         who.ID(),
		ConversationID:      conv.ID,
		Question:            req.Question,
		Answer:              out.result.Answer,
		RetrievedChunks:     retrievedIDs(out.retrieved),
		Citations:           out.result.Citations,
		Refused:             out.result.Refused,
		LatencyMS:           latency,
		PolicyReason:        out.result.PolicyReason,
		RetrievalDocCount:   out.result.Coverage.DocCount,
		RetrievalChunkCount: out.result.Coverage.ChunkCount,
		CreatedAt:           now.UTC(),
	}
	tokens := 0
	if out.gen != nil {
		audit.Model = out.gen.Model
		audit.PromptTokens = out.gen.PromptTokens
		audit.CompletionTokens = out.gen.CompletionTokens
		audit.TotalTokens = out.gen.TotalTokens
		tokens = max(0, out.gen.TotalTokensOrZero())
	}
	if p.deps.Recorder != nil {
		p.deps.Recorder.SubmitAudit(audit)
		p.deps.Recorder.SubmitUsage(&models.UsageRecord{
			ID:          utils.NewID("usage"),
			TenantID:    who.TenantID(),
			RequesterID: who.ID(),
			Channel:     who.SourceChannel(),
			Refused:     out.result.Refused,
			TotalTokens: tokens,
			LatencyMS:   latency,
			CreatedAt:   now.UTC(),
		})
	}

	p.metrics.ObserveAsk(out.result.PolicyReason, out.result.Refused, elapsed)
	if out.gen != nil {
		p.metrics.AddTokens(out.gen.Model, tokens)
	}
	p.logger.Info("Question answered",
		zap.String("tenant_id", who.TenantID()),
		zap.String("requester_id", who.ID()),
		zap.String("channel", who.SourceChannel()),
		zap.String("conversation_id", conv.ID),
		zap.Bool("refused", out.result.Refused),
		zap.String("policy_reason", out.result.PolicyReason),
		zap.Int("citations", len(out.result.Citations)),
		zap.Int("chunks", out.result.Coverage.ChunkCount),
		zap.Duration("elapsed", elapsed))
	return nil
}

func (p *Pipeline) replies(who models.Requester) heuristics.Replies {
	return heuristics.Replies{
		CompanyName: orDefault(who.DisplayName(), p.persona.CompanyName),
		BotName:     orDefault(who.BotDisplayName(), p.persona.BotName),
	}
}

func retrievedIDs(chunks []models.RetrievedChunk) []models.Citation {
	out := make([]models.Citation, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, models.Citation{DocumentID: c.DocumentID, ChunkID: c.ChunkID, ChunkIndex: c.ChunkIndex})
	}
	return out
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
