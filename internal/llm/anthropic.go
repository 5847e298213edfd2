package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/pkg/utils"
)

const anthropicDefaultMaxTokens = 1024

// AnthropicProvider calls the Anthropic Messages API.
type AnthropicProvider struct {
	client      anthropic.Client
	model       string
	temperature float32
	maxTokens   int64
	logger      *zap.Logger
}

var _ Provider = (*AnthropicProvider)(nil)

// NewAnthropicProvider creates a provider from cfg.
func NewAnthropicProvider(cfg config.LLMConfig, logger *zap.Logger) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(cfg.APIKey))}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSpace(cfg.BaseURL)))
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	return &AnthropicProvider{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		logger:      utils.OrNop(logger),
	}, nil
}

// Model returns the configured model name.
func (a *AnthropicProvider) Model() string {
	return a.model
}

// Complete sends one user message with the system prompt.
func (a *AnthropicProvider) Complete(ctx context.Context, req Request) (Completion, error) {
	a.logger.Debug("generating answer via Anthropic", zap.String("model", a.model))
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   a.maxTokens,
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.User))},
		Temperature: anthropic.Float(float64(a.temperature)),
	}
	if strings.TrimSpace(req.System) != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return Completion{}, fmt.Errorf("anthropic message failed: %w", err)
	}
	var text strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	if text.Len() == 0 {
		return Completion{}, fmt.Errorf("anthropic returned no text content")
	}
	in, out := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)
	return Completion{
		Text:             text.String(),
		PromptTokens:     in,
		CompletionTokens: out,
		TotalTokens:      in + out,
	}, nil
}
