// Package ratelimit enforces sliding-window request limits per tenant and per requester.
// The in-process backend serves a single instance; the Redis backend shares the windows
// between instances.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Limiter atomically checks a key's window and records the hit when it is under limit.
type Limiter interface {
	// CheckAndIncrement reports whether another hit fits into the window ending now.
	// A rejected hit is not recorded.
	CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Rate limit reasons.
const (
	ReasonTenant = "rate_limit:tenant"
	ReasonUser   = "rate_limit:user"
)

// Backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Guard applies the tenant and requester limits.
type Guard struct {
	limiter     Limiter
	window      time.Duration
	tenantLimit int
	userLimit   int
	logger      *zap.Logger
}

// NewGuard creates a guard. Non-positive limits disable that dimension.
func NewGuard(limiter Limiter, cfg config.LimitsConfig, logger *zap.Logger) *Guard {
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	return &Guard{
		limiter:     limiter,
		window:      window,
		tenantLimit: cfg.TenantPerWindow,
		userLimit:   cfg.UserPerWindow,
		logger:      utils.OrNop(logger),
	}
}

// Check records one request for the tenant and the requester. It returns the reason of
// the first exceeded dimension, tenant before user, or "" when the request may proceed.
// Backend errors fail open.
func (g *Guard) Check(ctx context.Context, tenantID, requesterID string) string {
	if g.tenantLimit > 0 && !g.allow(ctx, "tenant:"+tenantID, g.tenantLimit) {
		return ReasonTenant
	}
	if g.userLimit > 0 && !g.allow(ctx, "user:"+tenantID+":"+requesterID, g.userLimit) {
		return ReasonUser
	}
	return ""
}

func (g *Guard) allow(ctx context.Context, key string, limit int) bool {
	ok, err := g.limiter.CheckAndIncrement(ctx, key, limit, g.window)
	if err != nil {
		g.logger.Warn("rate limiter unavailable, allowing request", zap.String("key", key), zap.Error(err))
		return true
	}
	return ok
}

// New builds the limiter selected by cfg.Backend. The returned close function releases
// backend connections.
func New(cfg config.LimitsConfig, rcfg config.RedisConfig) (Limiter, func() error, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendMemory:
		return NewMemory(), func() error { return nil }, nil
	case BackendRedis:
		if rcfg.Addr == "" {
			return nil, nil, fmt.Errorf("redis rate limit backend requires redis.addr")
		}
		l := NewRedisFromConfig(rcfg)
		return l, l.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown rate limit backend: %s", cfg.Backend)
	}
}
