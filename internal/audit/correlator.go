package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"go-nukeguard/internal/models"
	"go-nukeguard/internal/ratelimit"
)

const (
	// freshness bounds how old an audit entry may be and still explain
	// the event we are trying to attribute.
	freshness = 3 * time.Second
	// cacheTTL keeps one resolution alive across a burst of related
	// events so each of them does not refetch.
	cacheTTL = 30 * time.Second

	// Fetch self-throttle per tenant, so a noisy tenant cannot burn
	// the platform's API quota through us.
	fetchLimit  = 10
	fetchWindow = 5 * time.Second
)

// Entry is one audit-trail record as the fetcher returns it.
type Entry struct {
	ActorID    uint64
	TargetID   uint64
	Reason     string
	ActorIsBot bool
	CreatedAt  time.Time
}

// Fetcher queries the tenant's audit trail for the most recent entry
// matching a raw action. The gateway session adapter implements it.
type Fetcher interface {
	LatestEntry(ctx context.Context, tenantID uint64, action models.RawAction) (Entry, error)
}

type cacheEntry struct {
	actor    Resolved
	cachedAt time.Time
}

type cacheKey struct {
	tenantID uint64
	action   models.ActionType
}

// Resolved is a successfully attributed actor.
type Resolved struct {
	ActorID    uint64
	ActorIsBot bool
}

// Correlator attributes an actor to an event that did not natively
// carry one, against the tenant's eventually-consistent audit trail.
type Correlator struct {
	fetcher Fetcher
	limiter ratelimit.Limiter
	selfID  uint64
	logger  *zap.Logger

	mu    sync.Mutex
	cache map[cacheKey]cacheEntry
}

func NewCorrelator(fetcher Fetcher, limiter ratelimit.Limiter, selfID uint64, logger *zap.Logger) *Correlator {
	return &Correlator{
		fetcher: fetcher,
		limiter: limiter,
		selfID:  selfID,
		logger:  logger,
		cache:   make(map[cacheKey]cacheEntry),
	}
}

// Resolve returns the actor behind the most recent raw action of this
// kind, or ok=false when attribution is unavailable. Unavailable means
// skipped, never guessed: a mis-attributed punishment is worse than a
// missed detection, so every failure path fails closed.
func (c *Correlator) Resolve(ctx context.Context, tenantID uint64, action models.ActionType, raw models.RawAction) (Resolved, bool) {
	key := cacheKey{tenantID: tenantID, action: action}

	c.mu.Lock()
	if entry, ok := c.cache[key]; ok && time.Since(entry.cachedAt) < cacheTTL {
		c.mu.Unlock()
		return entry.actor, true
	}
	c.mu.Unlock()

	throttle := c.limiter.Hit(ctx, ratelimit.ScopeKey("audit-fetch", tenantID), fetchLimit, fetchWindow)
	if !throttle.Allowed {
		c.logger.Debug("audit fetch self-throttled",
			zap.Uint64("tenant_id", tenantID), zap.String("action", action.String()))
		return Resolved{}, false
	}

	entry, err := c.fetcher.LatestEntry(ctx, tenantID, raw)
	if err != nil {
		c.logger.Warn("audit fetch failed, skipping attribution",
			zap.Uint64("tenant_id", tenantID), zap.String("action", action.String()), zap.Error(err))
		return Resolved{}, false
	}
	if entry.ActorID == 0 || time.Since(entry.CreatedAt) > freshness {
		return Resolved{}, false
	}

	resolved := Resolved{ActorID: entry.ActorID, ActorIsBot: entry.ActorIsBot}

	// The system acting on behalf of a human leaves the human's ID as
	// a reason suffix; attribute to them, not to ourselves.
	if entry.ActorID == c.selfID {
		trueActor, ok := models.ActorFromReason(entry.Reason)
		if !ok {
			return Resolved{}, false
		}
		resolved = Resolved{ActorID: trueActor}
	}

	c.mu.Lock()
	c.cache[key] = cacheEntry{actor: resolved, cachedAt: time.Now()}
	if len(c.cache) > cacheSweepThreshold {
		now := time.Now()
		for k, v := range c.cache {
			if now.Sub(v.cachedAt) >= cacheTTL {
				delete(c.cache, k)
			}
		}
	}
	c.mu.Unlock()

	return resolved, true
}

const cacheSweepThreshold = 1024

// CacheLen reports live cache cardinality, for the probe.
func (c *Correlator) CacheLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}
