package policy

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTTL bounds how stale a cached policy may get even if a write
// notification is lost.
const DefaultTTL = 60 * time.Second

type cacheEntry struct {
	policy   *TenantPolicy
	cachedAt time.Time
}

// CachedStore is a read-through cache over the config store with
// explicit invalidation on write. The decision path reads policy on
// every event, so hitting the backing store each time would turn the
// config database into the pipeline bottleneck.
type CachedStore struct {
	backend Store
	ttl     time.Duration
	logger  *zap.Logger

	mu      sync.RWMutex
	entries map[uint64]cacheEntry
}

func NewCachedStore(backend Store, ttl time.Duration, logger *zap.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CachedStore{
		backend: backend,
		ttl:     ttl,
		logger:  logger,
		entries: make(map[uint64]cacheEntry),
	}
}

func (c *CachedStore) GetPolicy(ctx context.Context, tenantID uint64) (*TenantPolicy, error) {
	c.mu.RLock()
	entry, ok := c.entries[tenantID]
	c.mu.RUnlock()

	if ok && time.Since(entry.cachedAt) < c.ttl {
		return entry.policy, nil
	}

	policy, err := c.backend.GetPolicy(ctx, tenantID)
	if err != nil {
		// Serve the stale entry rather than dropping protection while
		// the config store is briefly unreachable.
		if ok {
			c.logger.Warn("policy refresh failed, serving stale entry",
				zap.Uint64("tenant_id", tenantID), zap.Error(err))
			return entry.policy, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.entries[tenantID] = cacheEntry{policy: policy, cachedAt: time.Now()}
	c.mu.Unlock()
	return policy, nil
}

// Invalidate drops a tenant's cached policy. The admin surface calls
// this on every write instead of the core polling for changes.
func (c *CachedStore) Invalidate(tenantID uint64) {
	c.mu.Lock()
	delete(c.entries, tenantID)
	c.mu.Unlock()
}

// Len reports cached tenant cardinality, for the probe.
func (c *CachedStore) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
