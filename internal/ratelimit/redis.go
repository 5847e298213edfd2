package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hyperjump/kotae/internal/config"
)

// slidingWindow prunes expired hits, then adds one if the window has room.
// KEYS[1] key; ARGV now_ms, window_ms, limit, member.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. (now - window))
if redis.call('ZCARD', key) >= limit then
  return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

// Redis is a sliding-window limiter on a Redis sorted set per key. The check and the
// increment run in one script, so concurrent callers cannot both pass a boundary.
type Redis struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedis creates a limiter on an existing client. Keys are namespaced with prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix, now: time.Now}
}

// NewRedisFromConfig connects a new client.
func NewRedisFromConfig(cfg config.RedisConfig) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedis(client, cfg.KeyPrefix)
}

// CheckAndIncrement implements Limiter.
func (r *Redis) CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := r.now().UnixMilli()
	member := fmt.Sprintf("%d-%s", now, uuid.NewString())
	res, err := slidingWindow.Run(ctx, r.client, []string{r.prefix + key},
		now, window.Milliseconds(), limit, member).Int()
	if err != nil {
		return false, fmt.Errorf("redis rate limit: %w", err)
	}
	return res == 1, nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
