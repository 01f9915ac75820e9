package audit

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
	"go-nukeguard/internal/ratelimit"
)

type fakeFetcher struct {
	calls atomic.Int64
	entry Entry
	err   error
}

func (f *fakeFetcher) LatestEntry(ctx context.Context, tenantID uint64, action models.RawAction) (Entry, error) {
	f.calls.Add(1)
	return f.entry, f.err
}

const selfID = uint64(100)

func newCorrelator(f *fakeFetcher) *Correlator {
	return NewCorrelator(f, ratelimit.NewMemory(), selfID, zap.NewNop())
}

func TestResolveFreshEntry(t *testing.T) {
	f := &fakeFetcher{entry: Entry{ActorID: 7, CreatedAt: time.Now()}}
	c := newCorrelator(f)

	r, ok := c.Resolve(context.Background(), 1, models.ActionBan, models.RawMemberBanAdd)
	require.True(t, ok)
	assert.EqualValues(t, 7, r.ActorID)
}

func TestResolveCachesBurst(t *testing.T) {
	f := &fakeFetcher{entry: Entry{ActorID: 7, CreatedAt: time.Now()}}
	c := newCorrelator(f)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, ok := c.Resolve(ctx, 1, models.ActionBan, models.RawMemberBanAdd)
		require.True(t, ok)
	}
	assert.EqualValues(t, 1, f.calls.Load(), "a burst of related events must share one fetch")
}

func TestResolveStaleEntryUnresolved(t *testing.T) {
	f := &fakeFetcher{entry: Entry{ActorID: 7, CreatedAt: time.Now().Add(-10 * time.Second)}}
	c := newCorrelator(f)

	_, ok := c.Resolve(context.Background(), 1, models.ActionBan, models.RawMemberBanAdd)
	assert.False(t, ok, "entries older than the freshness window must not attribute")
}

func TestResolveFetchErrorFailsClosed(t *testing.T) {
	f := &fakeFetcher{err: errors.New("upstream 500")}
	c := newCorrelator(f)

	_, ok := c.Resolve(context.Background(), 1, models.ActionBan, models.RawMemberBanAdd)
	assert.False(t, ok)
}

func TestResolveSelfThrottle(t *testing.T) {
	f := &fakeFetcher{err: errors.New("never fresh")}
	c := newCorrelator(f)
	ctx := context.Background()

	// Errors are not cached, so each call costs one fetch until the
	// throttle trips.
	for i := 0; i < fetchLimit+5; i++ {
		c.Resolve(ctx, 1, models.ActionBan, models.RawMemberBanAdd)
	}
	assert.EqualValues(t, fetchLimit, f.calls.Load(), "throttled resolves must not fetch")
}

func TestResolveSystemActorReattributed(t *testing.T) {
	f := &fakeFetcher{entry: Entry{
		ActorID:   selfID,
		Reason:    "muted for spam | 9001",
		CreatedAt: time.Now(),
	}}
	c := newCorrelator(f)

	r, ok := c.Resolve(context.Background(), 1, models.ActionKick, models.RawMemberKick)
	require.True(t, ok)
	assert.EqualValues(t, 9001, r.ActorID)
}

func TestResolveSystemActorWithoutHintUnresolved(t *testing.T) {
	f := &fakeFetcher{entry: Entry{ActorID: selfID, Reason: "routine maintenance", CreatedAt: time.Now()}}
	c := newCorrelator(f)

	_, ok := c.Resolve(context.Background(), 1, models.ActionKick, models.RawMemberKick)
	assert.False(t, ok, "the system's own unattributed actions never count against anyone")
}
