package llm

import (
	"context"
	"sync"
)

// StaticProvider replies with a fixed text or error. It backs tests and the offline
// `ask --dry-run` mode, and records the prompts it receives.
type StaticProvider struct {
	Text  string
	Err   error
	Name  string
	Usage Completion

	mu       sync.Mutex
	requests []Request
}

var _ Provider = (*StaticProvider)(nil)

// Model returns Name, or "static".
func (s *StaticProvider) Model() string {
	if s.Name == "" {
		return "static"
	}
	return s.Name
}

// Complete records req and returns the configured response.
func (s *StaticProvider) Complete(ctx context.Context, req Request) (Completion, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.Err != nil {
		return Completion{}, s.Err
	}
	c := s.Usage
	c.Text = s.Text
	return c, nil
}

// Requests returns the prompts received so far.
func (s *StaticProvider) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}
