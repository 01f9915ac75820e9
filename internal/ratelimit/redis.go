package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Counter increment and expiry must be one atomic step so concurrent
// pipeline tasks never race the window reset.
var hitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// RedisLimiter keeps the shared counters in Redis so the windows
// survive restarts and are visible across processes. On any Redis
// failure it falls back to the in-process limiter rather than letting
// the pipeline run unmetered.
type RedisLimiter struct {
	client   *redis.Client
	prefix   string
	fallback *MemoryLimiter
	logger   *zap.Logger
}

func NewRedis(client *redis.Client, logger *zap.Logger) *RedisLimiter {
	return &RedisLimiter{
		client:   client,
		prefix:   "nukeguard:rl:",
		fallback: NewMemory(),
		logger:   logger,
	}
}

func (l *RedisLimiter) Hit(ctx context.Context, key string, limit int, window time.Duration) Decision {
	if window <= 0 {
		window = time.Minute
	}
	if l.client == nil {
		return l.fallback.Hit(ctx, key, limit, window)
	}

	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	res, err := hitScript.Run(cctx, l.client, []string{l.prefix + key}, window.Milliseconds()).Result()
	if err != nil {
		l.logger.Warn("redis limiter unavailable, using in-process counters",
			zap.String("key", key), zap.Error(err))
		return l.fallback.Hit(ctx, key, limit, window)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		return l.fallback.Hit(ctx, key, limit, window)
	}
	count, _ := vals[0].(int64)
	ttlMs, _ := vals[1].(int64)
	if ttlMs < 0 {
		ttlMs = window.Milliseconds()
	}

	return decide(count, limit, time.Duration(ttlMs)*time.Millisecond)
}
