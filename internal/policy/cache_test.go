package policy

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"go-nukeguard/internal/models"
)

type countingStore struct {
	calls  atomic.Int64
	policy *TenantPolicy
	err    error
}

func (s *countingStore) GetPolicy(ctx context.Context, tenantID uint64) (*TenantPolicy, error) {
	s.calls.Add(1)
	return s.policy, s.err
}

func somePolicy() *TenantPolicy {
	return &TenantPolicy{
		TenantID: 1,
		Enabled:  map[models.ActionType]bool{models.ActionBan: true},
		Thresholds: map[models.ActionType]int{
			models.ActionBan: 3,
		},
	}
}

func TestCachedStoreReadThrough(t *testing.T) {
	backend := &countingStore{policy: somePolicy()}
	cache := NewCachedStore(backend, time.Minute, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		p, err := cache.GetPolicy(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, p)
	}
	assert.EqualValues(t, 1, backend.calls.Load(), "repeat reads must hit the cache")
}

func TestCachedStoreInvalidate(t *testing.T) {
	backend := &countingStore{policy: somePolicy()}
	cache := NewCachedStore(backend, time.Minute, zap.NewNop())
	ctx := context.Background()

	_, err := cache.GetPolicy(ctx, 1)
	require.NoError(t, err)

	cache.Invalidate(1)

	_, err = cache.GetPolicy(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, backend.calls.Load())
}

func TestCachedStoreTTLExpiry(t *testing.T) {
	backend := &countingStore{policy: somePolicy()}
	cache := NewCachedStore(backend, 10*time.Millisecond, zap.NewNop())
	ctx := context.Background()

	_, err := cache.GetPolicy(ctx, 1)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = cache.GetPolicy(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, backend.calls.Load(), "entries must not outlive the TTL")
}

func TestCachedStoreServesStaleOnBackendError(t *testing.T) {
	backend := &countingStore{policy: somePolicy()}
	cache := NewCachedStore(backend, 10*time.Millisecond, zap.NewNop())
	ctx := context.Background()

	p, err := cache.GetPolicy(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, p)

	backend.err = errors.New("config store down")
	time.Sleep(20 * time.Millisecond)

	p, err = cache.GetPolicy(ctx, 1)
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestThresholdZeroIsConfigured(t *testing.T) {
	p := &TenantPolicy{
		TenantID:   1,
		Enabled:    map[models.ActionType]bool{models.ActionBan: true},
		Thresholds: map[models.ActionType]int{},
	}
	assert.True(t, p.ActionEnabled(models.ActionBan))
	assert.Zero(t, p.Threshold(models.ActionBan))
	assert.False(t, p.ActionEnabled(models.ActionKick))
}
