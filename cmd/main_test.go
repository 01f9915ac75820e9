package main

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"go-nukeguard/internal/cleanup"
	"go-nukeguard/internal/locks"
	"go-nukeguard/internal/models"
	"go-nukeguard/internal/outcome"
	"go-nukeguard/internal/policy"
	"go-nukeguard/internal/punish"
	"go-nukeguard/internal/ratelimit"
)

type stubDirectory struct{}

func (stubDirectory) SelfID() uint64                             { return 999 }
func (stubDirectory) IsSuperAdmin(uint64) bool                   { return false }
func (stubDirectory) OwnerOf(_ context.Context, _ uint64) uint64 { return 0 }
func (stubDirectory) RankOf(_ context.Context, _, actorID uint64) (int, bool) {
	if actorID == 999 {
		return 10, true
	}
	return 1, true
}

// gatedExecutor holds the ban call open until the reversal has run,
// so a sequential wiring times out instead of passing.
type gatedExecutor struct {
	cleanupDone <-chan struct{}
	sawCleanup  atomic.Bool
}

func (g *gatedExecutor) Ban(_ context.Context, _, _ uint64, _ string) error {
	select {
	case <-g.cleanupDone:
		g.sawCleanup.Store(true)
	case <-time.After(2 * time.Second):
	}
	return nil
}

func (g *gatedExecutor) Kick(_ context.Context, _, _ uint64, _ string) error       { return nil }
func (g *gatedExecutor) StripRoles(_ context.Context, _, _ uint64, _ string) error { return nil }

type signalReverser struct {
	done chan struct{}
	once sync.Once
}

func (s *signalReverser) Unban(_ context.Context, _, _ uint64, _ string) error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *signalReverser) BanUser(_ context.Context, _, _ uint64, _ string) error { return nil }
func (s *signalReverser) DeleteObject(_ context.Context, _, _ uint64, _ cleanup.ObjectKind, _ string) error {
	return nil
}
func (s *signalReverser) RestoreObject(_ context.Context, _ uint64, _ cleanup.Snapshot, _ string) error {
	return nil
}

func TestRespondRunsCleanupAlongsidePunishment(t *testing.T) {
	done := make(chan struct{})
	exec := &gatedExecutor{cleanupDone: done}
	rev := &signalReverser{done: done}

	engine := punish.NewEngine(exec, stubDirectory{}, ratelimit.NewMemory(), locks.NewPair(), outcome.NewStream(), zap.NewNop())
	coord := cleanup.NewCoordinator(rev, cleanup.NewTracker(), ratelimit.NewMemory(), outcome.NewStream(), zap.NewNop())

	action, ok := models.Normalize(models.RawMemberBanAdd)
	require.True(t, ok)
	event := models.ActionEvent{
		TenantID:   1,
		ActorID:    2,
		TargetID:   42,
		Action:     action,
		Raw:        models.RawMemberBanAdd,
		OccurredAt: time.Now(),
	}

	respond(context.Background(), engine, coord, event, &policy.TenantPolicy{Punishment: policy.PunishBan}, "caught")

	assert.True(t, exec.sawCleanup.Load(), "reversal must not wait out the punishment")
}
