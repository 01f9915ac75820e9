package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryLimiterWindow(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()
	key := ScopeKey("tenant", 1, "actor", 2, "ban")

	first := l.Hit(ctx, key, 2, 50*time.Millisecond)
	require.True(t, first.Allowed)
	assert.EqualValues(t, 1, first.Count)
	assert.Equal(t, 1, first.Remaining)

	second := l.Hit(ctx, key, 2, 50*time.Millisecond)
	require.True(t, second.Allowed)
	assert.Equal(t, 0, second.Remaining)

	third := l.Hit(ctx, key, 2, 50*time.Millisecond)
	require.False(t, third.Allowed)
	assert.Positive(t, third.RetryAfter)

	time.Sleep(70 * time.Millisecond)
	reset := l.Hit(ctx, key, 2, 50*time.Millisecond)
	require.True(t, reset.Allowed)
	assert.EqualValues(t, 1, reset.Count)
}

func TestMemoryLimiterZeroLimitExceedsImmediately(t *testing.T) {
	l := NewMemory()
	d := l.Hit(context.Background(), "k", 0, time.Minute)
	assert.False(t, d.Allowed)
	assert.EqualValues(t, 1, d.Count)
}

func TestRedisLimiterWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := NewRedis(client, zap.NewNop())
	ctx := context.Background()

	first := l.Hit(ctx, "actor:u1", 1, 25*time.Millisecond)
	require.True(t, first.Allowed)

	second := l.Hit(ctx, "actor:u1", 1, 25*time.Millisecond)
	require.False(t, second.Allowed)

	mr.FastForward(30 * time.Millisecond)
	reset := l.Hit(ctx, "actor:u1", 1, 25*time.Millisecond)
	require.True(t, reset.Allowed)
	assert.EqualValues(t, 1, reset.Count)
}

func TestRedisLimiterFallsBackWhenUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:1",
		DialTimeout:  5 * time.Millisecond,
		ReadTimeout:  5 * time.Millisecond,
		WriteTimeout: 5 * time.Millisecond,
		MaxRetries:   0,
	})
	l := NewRedis(client, zap.NewNop())

	d := l.Hit(context.Background(), "actor:u1", 1, time.Second)
	require.True(t, d.Allowed)

	d = l.Hit(context.Background(), "actor:u1", 1, time.Second)
	assert.False(t, d.Allowed, "fallback counters must still meter hits")
}

func TestScopeKey(t *testing.T) {
	assert.Equal(t, "antinuke:42:7:ban", ScopeKey("antinuke", uint64(42), uint64(7), "ban"))
}
