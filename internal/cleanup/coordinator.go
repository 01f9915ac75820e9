package cleanup

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"go-nukeguard/internal/models"
	"go-nukeguard/internal/outcome"
	"go-nukeguard/internal/punish"
	"go-nukeguard/internal/ratelimit"
)

// Reverser undoes damaging platform actions. The REST dispatcher
// implements it.
type Reverser interface {
	// Unban lifts a ban the abuser placed.
	Unban(ctx context.Context, tenantID, userID uint64, reason string) error
	// BanUser removes an injected account (the bot the abuser added).
	BanUser(ctx context.Context, tenantID, userID uint64, reason string) error
	// DeleteObject removes an object the abuser created.
	DeleteObject(ctx context.Context, tenantID, objectID uint64, kind ObjectKind, reason string) error
	// RestoreObject recreates a deleted object or reverts an edited
	// one from its prior snapshot.
	RestoreObject(ctx context.Context, tenantID uint64, snap Snapshot, reason string) error
}

// TaskKind is one reversal operation.
type TaskKind uint8

const (
	TaskUnban TaskKind = iota
	TaskRemoveBot
	TaskDeleteObject
	TaskRestoreObject
)

// Task is one best-effort reversal unit. Tasks from the same burst
// run concurrently and fail independently.
type Task struct {
	Kind     TaskKind
	TenantID uint64
	TargetID uint64
	Object   ObjectKind
	Snapshot Snapshot
	HasSnap  bool
}

const (
	gateLimit  = 3
	gateWindow = 5 * time.Second
)

// Coordinator executes reversals under the same bounded retry policy
// as punishment, gated per tenant so a mass deletion does not turn
// into a mass API storm.
type Coordinator struct {
	reverser Reverser
	tracker  *Tracker
	limiter  ratelimit.Limiter
	stream   *outcome.Stream
	logger   *zap.Logger

	sleep func(context.Context, time.Duration)
}

func NewCoordinator(reverser Reverser, tracker *Tracker, limiter ratelimit.Limiter, stream *outcome.Stream, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		reverser: reverser,
		tracker:  tracker,
		limiter:  limiter,
		stream:   stream,
		logger:   logger,
		sleep: func(ctx context.Context, d time.Duration) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
			case <-t.C:
			}
		},
	}
}

// TasksFor maps one violating event to its reversal, consulting the
// snapshot tracker for restore sources. An event can yield no task
// (nothing reversible, or no prior state survived).
func (c *Coordinator) TasksFor(event models.ActionEvent) []Task {
	switch event.Raw {
	case models.RawMemberBanAdd:
		return []Task{{Kind: TaskUnban, TenantID: event.TenantID, TargetID: event.TargetID}}
	case models.RawBotAdd:
		return []Task{{Kind: TaskRemoveBot, TenantID: event.TenantID, TargetID: event.TargetID}}
	case models.RawChannelCreate:
		return []Task{{Kind: TaskDeleteObject, TenantID: event.TenantID, TargetID: event.TargetID, Object: ObjectChannel}}
	case models.RawRoleCreate:
		return []Task{{Kind: TaskDeleteObject, TenantID: event.TenantID, TargetID: event.TargetID, Object: ObjectRole}}
	case models.RawWebhookCreate, models.RawWebhookUpdate:
		return []Task{{Kind: TaskDeleteObject, TenantID: event.TenantID, TargetID: event.TargetID, Object: ObjectWebhook}}
	case models.RawChannelDelete:
		return c.restoreTask(event, ObjectChannel, false)
	case models.RawChannelUpdate:
		return c.restoreTask(event, ObjectChannel, true)
	case models.RawRoleDelete:
		return c.restoreTask(event, ObjectRole, false)
	case models.RawRoleUpdate:
		return c.restoreTask(event, ObjectRole, true)
	case models.RawGuildUpdate:
		return c.restoreTask(event, ObjectGuildProfile, true)
	}
	return nil
}

// preEdit selects the snapshot source. Edits restore from the entry
// before the one the update event itself tracked; deletions restore
// from the freshest entry.
func (c *Coordinator) restoreTask(event models.ActionEvent, kind ObjectKind, preEdit bool) []Task {
	objectID := event.TargetID
	if kind == ObjectGuildProfile {
		objectID = event.TenantID
	}
	var snap Snapshot
	var ok bool
	if preEdit {
		snap, ok = c.tracker.Prior(event.TenantID, objectID)
	} else {
		snap, ok = c.tracker.Latest(event.TenantID, objectID)
	}
	if !ok {
		c.logger.Debug("no prior state for restore",
			zap.Uint64("tenant_id", event.TenantID),
			zap.Uint64("object_id", objectID),
			zap.String("kind", kind.String()))
		return nil
	}
	return []Task{{
		Kind:     TaskRestoreObject,
		TenantID: event.TenantID,
		TargetID: objectID,
		Object:   kind,
		Snapshot: snap,
		HasSnap:  true,
	}}
}

// Run derives and executes the reversal burst for one violating
// event. One task failing, even permanently, never aborts its
// siblings. Every task settles with an outcome on the stream.
func (c *Coordinator) Run(ctx context.Context, event models.ActionEvent, reason string) {
	c.RunTasks(ctx, event, reason, c.TasksFor(event))
}

// RunTasks executes an explicit burst; Run is the usual entry.
func (c *Coordinator) RunTasks(ctx context.Context, event models.ActionEvent, reason string, tasks []Task) {
	if len(tasks) == 0 {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			c.runOne(gctx, event, reason, task)
			return nil // isolation: sibling errors stay local
		})
	}
	g.Wait()
}

func (c *Coordinator) runOne(ctx context.Context, event models.ActionEvent, reason string, task Task) {
	settle := func(result outcome.Result, attempts int) {
		if c.stream != nil {
			c.stream.Publish(outcome.NewCleanup(task.TenantID, event.ActorID, task.TargetID, event.Action, result, reason, attempts))
		}
	}

	gate := c.limiter.Hit(ctx, ratelimit.ScopeKey("cleanup", task.TenantID), gateLimit, gateWindow)
	if !gate.Allowed {
		c.logger.Warn("cleanup gated, dropping reversal",
			zap.Uint64("tenant_id", task.TenantID),
			zap.Uint64("target_id", task.TargetID))
		settle(outcome.ResultSuppressed, 0)
		return
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= punish.MaxAttempts; attempt++ {
		attempts = attempt
		lastErr = c.apply(ctx, reason, task)
		if lastErr == nil {
			c.logger.Info("cleanup applied",
				zap.Uint64("tenant_id", task.TenantID),
				zap.Uint64("target_id", task.TargetID),
				zap.Int("attempt", attempt))
			settle(outcome.ResultCleanupDone, attempt)
			return
		}

		class, retryAfter := punish.Classify(lastErr)
		if class != punish.ClassTransient || attempt == punish.MaxAttempts {
			break
		}
		c.sleep(ctx, punish.BackoffDelay(attempt, retryAfter))
		if ctx.Err() != nil {
			break
		}
	}

	c.logger.Warn("cleanup abandoned",
		zap.Uint64("tenant_id", task.TenantID),
		zap.Uint64("target_id", task.TargetID),
		zap.Error(lastErr))
	settle(outcome.ResultCleanupError, attempts)
}

func (c *Coordinator) apply(ctx context.Context, reason string, task Task) error {
	switch task.Kind {
	case TaskUnban:
		return c.reverser.Unban(ctx, task.TenantID, task.TargetID, reason)
	case TaskRemoveBot:
		return c.reverser.BanUser(ctx, task.TenantID, task.TargetID, reason)
	case TaskDeleteObject:
		return c.reverser.DeleteObject(ctx, task.TenantID, task.TargetID, task.Object, reason)
	case TaskRestoreObject:
		return c.reverser.RestoreObject(ctx, task.TenantID, task.Snapshot, reason)
	}
	return nil
}
