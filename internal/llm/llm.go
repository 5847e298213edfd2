// Package llm turns a grounded prompt into answer text. Providers talk to upstream
// models; Generator wraps a provider so that any upstream failure becomes a fixed
// fallback answer instead of an error.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Request is one generation call.
type Request struct {
	System string
	User   string
}

// Completion is a successful upstream response.
type Completion struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider is an upstream model. Errors are returned as-is; Generator decides what to do.
type Provider interface {
	Complete(ctx context.Context, req Request) (Completion, error)
	Model() string
}

// Result is what the answer pipeline sees. Fallback marks that the upstream failed and
// Text holds the fallback answer; token counts are nil in that case.
type Result struct {
	Text             string
	Fallback         bool
	Model            string
	PromptTokens     *int
	CompletionTokens *int
	TotalTokens      *int
}

// TotalTokensOrZero returns the total token count, or 0 when unknown.
func (r Result) TotalTokensOrZero() int {
	if r.TotalTokens == nil {
		return 0
	}
	return *r.TotalTokens
}

// Generator is a provider that fails closed.
type Generator struct {
	provider Provider
	fallback string
	timeout  time.Duration
	logger   *zap.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithTimeout bounds each upstream call.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		g.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

// NewGenerator wraps provider; fallback is returned verbatim whenever the provider fails.
func NewGenerator(provider Provider, fallback string, opts ...Option) *Generator {
	g := &Generator{provider: provider, fallback: fallback}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = utils.OrNop(g.logger)
	return g
}

// Generate never returns an error. The upstream call is not retried.
func (g *Generator) Generate(ctx context.Context, req Request) Result {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	model := g.provider.Model()
	start := time.Now()
	c, err := g.provider.Complete(ctx, req)
	if err != nil {
		g.logger.Warn("answer generation failed, using fallback",
			zap.String("model", model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return Result{Text: g.fallback, Fallback: true, Model: model}
	}
	total := c.TotalTokens
	if total == 0 {
		total = c.PromptTokens + c.CompletionTokens
	}
	prompt, completion := c.PromptTokens, c.CompletionTokens
	return Result{
		Text:             c.Text,
		Model:            model,
		PromptTokens:     &prompt,
		CompletionTokens: &completion,
		TotalTokens:      &total,
	}
}

// NewProvider builds the provider named by cfg.Provider.
func NewProvider(cfg config.LLMConfig, logger *zap.Logger) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai":
		return NewOpenAIProvider(cfg, logger)
	case "anthropic":
		return NewAnthropicProvider(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
