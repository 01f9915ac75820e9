package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Decision is the outcome of one counted hit against a window.
type Decision struct {
	Allowed    bool
	Count      int64
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter is the shared sliding-window counter used by every pipeline
// component. One primitive serves two purposes on purpose: throttling
// the system's own upstream calls and thresholding abusive actors.
type Limiter interface {
	// Hit records one occurrence under key and reports whether the
	// count within the window is still at or below limit. A limit of 0
	// means the very first hit already exceeds.
	Hit(ctx context.Context, key string, limit int, window time.Duration) Decision
}

// ScopeKey builds the canonical counter key for a scope. Parts are
// joined with ':' so keys stay readable in Redis.
func ScopeKey(parts ...any) string {
	key := ""
	for i, p := range parts {
		if i > 0 {
			key += ":"
		}
		key += fmt.Sprint(p)
	}
	return key
}

type memoryEntry struct {
	count   int64
	resetAt time.Time
}

// MemoryLimiter is the process-local backend. Counters expire with
// their window; expired entries are swept on access.
type MemoryLimiter struct {
	mu    sync.Mutex
	items map[string]memoryEntry
}

func NewMemory() *MemoryLimiter {
	return &MemoryLimiter{items: make(map[string]memoryEntry)}
}

func (l *MemoryLimiter) Hit(_ context.Context, key string, limit int, window time.Duration) Decision {
	if window <= 0 {
		window = time.Minute
	}
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	curr, ok := l.items[key]
	if !ok || now.After(curr.resetAt) {
		curr = memoryEntry{resetAt: now.Add(window)}
	}
	curr.count++
	l.items[key] = curr

	if len(l.items) > sweepThreshold {
		l.sweep(now)
	}

	return decide(curr.count, limit, curr.resetAt.Sub(now))
}

const sweepThreshold = 4096

func (l *MemoryLimiter) sweep(now time.Time) {
	for k, v := range l.items {
		if now.After(v.resetAt) {
			delete(l.items, k)
		}
	}
}

// Len reports live counter cardinality, for the probe.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

func decide(count int64, limit int, ttl time.Duration) Decision {
	allowed := count <= int64(limit)
	remaining := int64(limit) - count
	if remaining < 0 {
		remaining = 0
	}
	d := Decision{
		Allowed:   allowed,
		Count:     count,
		Limit:     limit,
		Remaining: int(remaining),
	}
	if !allowed {
		d.RetryAfter = ttl
	}
	return d
}
