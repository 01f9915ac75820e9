package punish

import (
	"context"
	"time"

	"go.uber.org/zap"

	"go-nukeguard/internal/locks"
	"go-nukeguard/internal/models"
	"go-nukeguard/internal/outcome"
	"go-nukeguard/internal/policy"
	"go-nukeguard/internal/ratelimit"
	"go-nukeguard/internal/trust"
)

// Executor performs the irreversible corrective action against the
// platform. The REST dispatcher implements it.
type Executor interface {
	Ban(ctx context.Context, tenantID, actorID uint64, reason string) error
	Kick(ctx context.Context, tenantID, actorID uint64, reason string) error
	StripRoles(ctx context.Context, tenantID, actorID uint64, reason string) error
}

// State is the engine's per-execution lifecycle. Settled is terminal;
// retries stay inside Executing and never re-enter Evaluating.
type State uint8

const (
	StateIdle State = iota
	StateEvaluating
	StateExecuting
	StateSettled
)

// Punishment-storm guards, re-checked under the locks so that one
// noisy detection burst cannot fan out into a ban storm.
const (
	punishGlobalLimit  = 10
	punishGlobalWindow = 10 * time.Second
	punishTenantLimit  = 5
	punishTenantWindow = 10 * time.Second
	punishActorLimit   = 1
	punishActorWindow  = 60 * time.Second
)

// Engine executes punishments exactly-once-in-flight per (tenant,
// actor): the lock pair serializes, the actor-scope limiter absorbs
// duplicate triggers from the same burst.
type Engine struct {
	executor Executor
	dir      trust.Directory
	limiter  ratelimit.Limiter
	locks    *locks.Pair
	stream   *outcome.Stream
	logger   *zap.Logger

	// sleep is swapped in tests to observe delays without waiting.
	sleep func(context.Context, time.Duration)
}

func NewEngine(executor Executor, dir trust.Directory, limiter ratelimit.Limiter, lockPair *locks.Pair, stream *outcome.Stream, logger *zap.Logger) *Engine {
	return &Engine{
		executor: executor,
		dir:      dir,
		limiter:  limiter,
		locks:    lockPair,
		stream:   stream,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// ResolveKind picks the punishment the actor receives. Automated
// accounts are always banned: a kicked or stripped bot can simply be
// re-invited with the same permissions.
func ResolveKind(pol *policy.TenantPolicy, actorIsBot bool) policy.PunishmentKind {
	if actorIsBot {
		return policy.PunishBan
	}
	if pol == nil {
		return policy.PunishBan
	}
	return pol.Punishment
}

// Execute drives one violating event through the state machine and
// always settles. It never returns an error: every failure class is a
// normal outcome on the stream.
func (e *Engine) Execute(ctx context.Context, event models.ActionEvent, pol *policy.TenantPolicy, reason string) State {
	state := StateEvaluating

	kind := ResolveKind(pol, event.ActorIsBot)

	state = StateExecuting
	release := e.locks.AcquireBoth(event.TenantID, event.ActorID)
	defer release()

	settle := func(result outcome.Result, attempts int) State {
		state = StateSettled
		e.stream.Publish(outcome.New(event.TenantID, event.ActorID, event.TargetID, event.Action, kind, result, reason, attempts))
		return state
	}

	// Storm guards, most general first. Saturation aborts with no API
	// call; the duplicate trigger was already handled.
	if g := e.limiter.Hit(ctx, ratelimit.ScopeKey("punish", "global"), punishGlobalLimit, punishGlobalWindow); !g.Allowed {
		return settle(outcome.ResultSuppressed, 0)
	}
	if tn := e.limiter.Hit(ctx, ratelimit.ScopeKey("punish", "tenant", event.TenantID), punishTenantLimit, punishTenantWindow); !tn.Allowed {
		return settle(outcome.ResultSuppressed, 0)
	}
	actorKey := ratelimit.ScopeKey("punishment", event.TenantID, event.ActorID)
	if a := e.limiter.Hit(ctx, actorKey, punishActorLimit, punishActorWindow); !a.Allowed {
		return settle(outcome.ResultSuppressed, 0)
	}

	// Hierarchy re-check under the locks: the actor may have gained
	// rank or be the owner; neither is an error, just "cannot act".
	if !e.canActOn(ctx, event.TenantID, event.ActorID) {
		return settle(outcome.ResultCannotAct, 0)
	}

	call := e.callFor(kind)

	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		lastErr = call(ctx, event.TenantID, event.ActorID, reason)
		if lastErr == nil {
			e.logger.Info("punishment executed",
				zap.Uint64("tenant_id", event.TenantID),
				zap.Uint64("actor_id", event.ActorID),
				zap.String("kind", kind.String()),
				zap.Int("attempt", attempt))
			return settle(outcome.ResultExecuted, attempt)
		}

		class, retryAfter := Classify(lastErr)
		switch class {
		case ClassDenied:
			e.logger.Warn("punishment denied by platform",
				zap.Uint64("tenant_id", event.TenantID),
				zap.Uint64("actor_id", event.ActorID),
				zap.Error(lastErr))
			return settle(outcome.ResultDenied, attempt)
		case ClassNotFound:
			// Tenant or actor gone mid-flight; nothing left to punish.
			return settle(outcome.ResultCannotAct, attempt)
		case ClassTransient:
			if attempt == MaxAttempts {
				break
			}
			e.sleep(ctx, BackoffDelay(attempt, retryAfter))
			if ctx.Err() != nil {
				return settle(outcome.ResultFailed, attempt)
			}
		default:
			e.logger.Error("punishment aborted",
				zap.Uint64("tenant_id", event.TenantID),
				zap.Uint64("actor_id", event.ActorID),
				zap.Error(lastErr))
			return settle(outcome.ResultFailed, attempt)
		}
	}

	e.logger.Error("punishment retries exhausted",
		zap.Uint64("tenant_id", event.TenantID),
		zap.Uint64("actor_id", event.ActorID),
		zap.Error(lastErr))
	return settle(outcome.ResultFailed, MaxAttempts)
}

func (e *Engine) callFor(kind policy.PunishmentKind) func(context.Context, uint64, uint64, string) error {
	switch kind {
	case policy.PunishKick:
		return e.executor.Kick
	case policy.PunishStripRoles:
		return e.executor.StripRoles
	default:
		return e.executor.Ban
	}
}

// canActOn verifies the actor is strictly below the system's own rank
// and is not the tenant owner.
func (e *Engine) canActOn(ctx context.Context, tenantID, actorID uint64) bool {
	if owner := e.dir.OwnerOf(ctx, tenantID); owner != 0 && actorID == owner {
		return false
	}
	actorRank, ok := e.dir.RankOf(ctx, tenantID, actorID)
	if !ok {
		return false
	}
	selfRank, ok := e.dir.RankOf(ctx, tenantID, e.dir.SelfID())
	if !ok {
		return false
	}
	return actorRank < selfRank
}
