package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"go-nukeguard/internal/models"
)

type capture struct {
	mu     sync.Mutex
	events []models.ActionEvent
}

func (c *capture) handle(_ context.Context, event models.ActionEvent) {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
}

func (c *capture) all() []models.ActionEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.ActionEvent(nil), c.events...)
}

func TestSubmitNormalizesAndDispatches(t *testing.T) {
	cap := &capture{}
	in := New(cap.handle, 0, 4, zap.NewNop())

	ok := in.Submit(context.Background(), models.RawEvent{
		TenantID:   1,
		ActorID:    2,
		TargetID:   3,
		Action:     models.RawMemberBanAdd,
		OccurredAt: time.Now(),
	})
	require.True(t, ok)
	in.Drain()

	events := cap.all()
	require.Len(t, events, 1)
	assert.Equal(t, models.ActionBan, events[0].Action)
	assert.Equal(t, uint64(2), events[0].ActorID)
}

func TestSubmitDropsUnknownRawAction(t *testing.T) {
	cap := &capture{}
	in := New(cap.handle, 0, 4, zap.NewNop())

	ok := in.Submit(context.Background(), models.RawEvent{
		TenantID: 1,
		Action:   models.RawAction(9999),
	})

	assert.False(t, ok)
	in.Drain()
	assert.Empty(t, cap.all())
}

func TestSubmitReattributesSelfActor(t *testing.T) {
	const selfID = 777
	cap := &capture{}
	in := New(cap.handle, selfID, 4, zap.NewNop())

	ok := in.Submit(context.Background(), models.RawEvent{
		TenantID: 1,
		ActorID:  selfID,
		TargetID: 3,
		Action:   models.RawMemberBanAdd,
		Reason:   "mass ban detected | 424242",
	})
	require.True(t, ok)
	in.Drain()

	events := cap.all()
	require.Len(t, events, 1)
	assert.Equal(t, uint64(424242), events[0].ActorID)
	assert.False(t, events[0].ActorIsBot)
}

func TestSubmitDropsOwnActionsWithoutAttribution(t *testing.T) {
	const selfID = 777
	cap := &capture{}
	in := New(cap.handle, selfID, 4, zap.NewNop())

	ok := in.Submit(context.Background(), models.RawEvent{
		TenantID: 1,
		ActorID:  selfID,
		Action:   models.RawMemberBanAdd,
		Reason:   "routine moderation",
	})

	assert.False(t, ok)
	in.Drain()
	assert.Empty(t, cap.all())
}

func TestPanicInHandlerDoesNotHaltIngest(t *testing.T) {
	var calls int
	var mu sync.Mutex
	in := New(func(_ context.Context, _ models.ActionEvent) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			panic("malformed payload")
		}
	}, 0, 4, zap.NewNop())

	for i := 0; i < 2; i++ {
		in.Submit(context.Background(), models.RawEvent{
			TenantID: 1,
			ActorID:  2,
			Action:   models.RawMemberBanAdd,
		})
	}
	in.Drain()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, in.QueueDepth())
}

func TestSubmitBlocksAtConcurrencyBoundUntilSlotFrees(t *testing.T) {
	release := make(chan struct{})
	in := New(func(_ context.Context, _ models.ActionEvent) {
		<-release
	}, 0, 1, zap.NewNop())

	require.True(t, in.Submit(context.Background(), models.RawEvent{TenantID: 1, ActorID: 2, Action: models.RawMemberBanAdd}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.False(t, in.Submit(ctx, models.RawEvent{TenantID: 1, ActorID: 2, Action: models.RawMemberBanAdd}),
		"second submit must not proceed while the only slot is held")

	close(release)
	in.Drain()
	assert.Equal(t, 0, in.QueueDepth())
}
