package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kotae/internal/config"
)

const fallback = "I don't have that information in the provided documents."

func TestGenerator_Success(t *testing.T) {
	p := &StaticProvider{Text: "Refunds within 30 days. [d1:c7]", Usage: Completion{PromptTokens: 10, CompletionTokens: 5}}
	g := NewGenerator(p, fallback)

	res := g.Generate(context.Background(), Request{System: "sys", User: "q"})
	assert.False(t, res.Fallback)
	assert.Equal(t, "Refunds within 30 days. [d1:c7]", res.Text)
	require.NotNil(t, res.TotalTokens)
	assert.Equal(t, 15, *res.TotalTokens)
	assert.Equal(t, 15, res.TotalTokensOrZero())
	assert.Equal(t, "static", res.Model)

	reqs := p.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "sys", reqs[0].System)
}

func TestGenerator_FailsClosed(t *testing.T) {
	g := NewGenerator(&StaticProvider{Err: errors.New("503 upstream")}, fallback)

	res := g.Generate(context.Background(), Request{User: "q"})
	assert.True(t, res.Fallback)
	assert.Equal(t, fallback, res.Text)
	assert.Nil(t, res.PromptTokens)
	assert.Nil(t, res.CompletionTokens)
	assert.Nil(t, res.TotalTokens)
	assert.Equal(t, 0, res.TotalTokensOrZero())
}

type slowProvider struct{}

func (slowProvider) Model() string { return "slow" }

func (slowProvider) Complete(ctx context.Context, req Request) (Completion, error) {
	select {
	case <-ctx.Done():
		return Completion{}, ctx.Err()
	case <-time.After(5 * time.Second):
		return Completion{Text: "late"}, nil
	}
}

func TestGenerator_Timeout(t *testing.T) {
	g := NewGenerator(slowProvider{}, fallback, WithTimeout(20*time.Millisecond))
	res := g.Generate(context.Background(), Request{User: "q"})
	assert.True(t, res.Fallback)
	assert.Equal(t, fallback, res.Text)
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(config.LLMConfig{Provider: "openai", APIKey: "k", Model: "gpt-4o-mini"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", p.Model())

	p, err = NewProvider(config.LLMConfig{Provider: "Anthropic", APIKey: "k", Model: "claude-3-5-haiku-latest"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "claude-3-5-haiku-latest", p.Model())

	_, err = NewProvider(config.LLMConfig{Provider: "mystery", APIKey: "k"}, nil)
	assert.Error(t, err)

	_, err = NewProvider(config.LLMConfig{Provider: "openai"}, nil)
	assert.Error(t, err, "missing key should fail")
}

func TestOpenAIProvider_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body.Model)
		if assert.Len(t, body.Messages, 2) {
			assert.Equal(t, "system", body.Messages[0].Role)
			assert.Equal(t, "question", body.Messages[1].Content)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Answer [d1:c1]"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":12,"completion_tokens":4,"total_tokens":16}}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(config.LLMConfig{APIKey: "k", BaseURL: srv.URL + "/v1", Model: "gpt-4o-mini", Temperature: 0.2}, nil)
	require.NoError(t, err)
	c, err := p.Complete(context.Background(), Request{System: "rules", User: "question"})
	require.NoError(t, err)
	assert.Equal(t, "Answer [d1:c1]", c.Text)
	assert.Equal(t, 16, c.TotalTokens)
}

func TestAnthropicProvider_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-3-5-haiku-latest", body["model"])
		assert.NotNil(t, body["system"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest",
			"content":[{"type":"text","text":"Answer [d1:c1]"}],"stop_reason":"end_turn","stop_sequence":null,
			"usage":{"input_tokens":20,"output_tokens":6}}`))
	}))
	defer srv.Close()

	p, err := NewAnthropicProvider(config.LLMConfig{APIKey: "k", BaseURL: srv.URL, Model: "claude-3-5-haiku-latest"}, nil)
	require.NoError(t, err)
	c, err := p.Complete(context.Background(), Request{System: "rules", User: "question"})
	require.NoError(t, err)
	assert.Equal(t, "Answer [d1:c1]", c.Text)
	assert.Equal(t, 20, c.PromptTokens)
	assert.Equal(t, 26, c.TotalTokens)
}

func TestOpenAIProvider_UpstreamErrorBecomesFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(config.LLMConfig{APIKey: "k", BaseURL: srv.URL + "/v1", Model: "gpt-4o-mini"}, nil)
	require.NoError(t, err)
	res := NewGenerator(p, fallback).Generate(context.Background(), Request{User: "q"})
	assert.True(t, res.Fallback)
	assert.Equal(t, fallback, res.Text)
}
