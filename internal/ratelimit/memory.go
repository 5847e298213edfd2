package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepInterval is how often idle keys are dropped.
const sweepInterval = time.Minute

type window struct {
	hits   []time.Time
	length time.Duration
}

// Memory is a process-local sliding-window limiter. Each instance enforces its own
// windows, so limits multiply when several instances run behind a load balancer.
type Memory struct {
	mu        sync.Mutex
	windows   map[string]*window
	lastSweep time.Time
	now       func() time.Time
}

// NewMemory creates an in-process limiter.
func NewMemory() *Memory {
	return &Memory{windows: make(map[string]*window), now: time.Now}
}

// CheckAndIncrement implements Limiter.
func (m *Memory) CheckAndIncrement(ctx context.Context, key string, limit int, length time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)

	w := m.windows[key]
	if w == nil {
		w = &window{}
		m.windows[key] = w
	}
	w.length = length
	w.prune(now)
	if len(w.hits) >= limit {
		return false, nil
	}
	w.hits = append(w.hits, now)
	return true, nil
}

// Len returns the number of keys currently tracked.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.length)
	i := 0
	for i < len(w.hits) && w.hits[i].Before(cutoff) {
		i++
	}
	w.hits = w.hits[i:]
}

// sweep drops keys with no hits left in their window. Must hold mu.
func (m *Memory) sweep(now time.Time) {
	if now.Sub(m.lastSweep) < sweepInterval {
		return
	}
	m.lastSweep = now
	for key, w := range m.windows {
		w.prune(now)
		if len(w.hits) == 0 {
			delete(m.windows, key)
		}
	}
}
