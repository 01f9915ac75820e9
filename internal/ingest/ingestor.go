package ingest

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"go-nukeguard/internal/models"
)

// DefaultConcurrency bounds in-flight event evaluations. Past this
// the submitter blocks rather than spawning unbounded goroutines
// during a burst.
const DefaultConcurrency = 256

// Handler receives one normalized event. The ingestor calls it from
// its own goroutine per event.
type Handler func(ctx context.Context, event models.ActionEvent)

// Ingestor turns raw platform events into normalized actions and
// hands them to the pipeline. Unrecognized raw codes are dropped
// here so downstream only ever sees the closed action set.
type Ingestor struct {
	handler Handler
	selfID  uint64
	logger  *zap.Logger

	sem   chan struct{}
	depth atomic.Int64
	wg    sync.WaitGroup
}

func New(handler Handler, selfID uint64, concurrency int, logger *zap.Logger) *Ingestor {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Ingestor{
		handler: handler,
		selfID:  selfID,
		logger:  logger,
		sem:     make(chan struct{}, concurrency),
	}
}

// Submit normalizes and dispatches one raw event. It returns false
// when the event carries no recognized action and was dropped.
func (in *Ingestor) Submit(ctx context.Context, raw models.RawEvent) bool {
	action, ok := models.Normalize(raw.Action)
	if !ok {
		in.logger.Debug("dropping unrecognized raw action",
			zap.Int("raw", int(raw.Action)),
			zap.Uint64("tenant_id", raw.TenantID))
		return false
	}

	event := models.ActionEvent{
		TenantID:   raw.TenantID,
		ActorID:    raw.ActorID,
		TargetID:   raw.TargetID,
		Action:     action,
		Raw:        raw.Action,
		Reason:     raw.Reason,
		ActorIsBot: raw.ActorIsBot,
		OccurredAt: raw.OccurredAt,
	}

	// Actions our own account performed on behalf of a human carry
	// the real actor in the reason suffix. Without the suffix the
	// event is ours and not abuse.
	if event.ActorID == in.selfID && in.selfID != 0 {
		actor, ok := models.ActorFromReason(event.Reason)
		if !ok {
			return false
		}
		event.ActorID = actor
		event.ActorIsBot = false
	}

	select {
	case in.sem <- struct{}{}:
	case <-ctx.Done():
		return false
	}
	in.depth.Add(1)
	in.wg.Add(1)
	go in.run(ctx, event)
	return true
}

func (in *Ingestor) run(ctx context.Context, event models.ActionEvent) {
	defer func() {
		if r := recover(); r != nil {
			in.logger.Error("pipeline panic recovered",
				zap.Any("panic", r),
				zap.Uint64("tenant_id", event.TenantID),
				zap.Uint64("actor_id", event.ActorID),
				zap.ByteString("stack", debug.Stack()))
		}
		in.depth.Add(-1)
		<-in.sem
		in.wg.Done()
	}()
	in.handler(ctx, event)
}

// QueueDepth reports events currently being evaluated, for the probe.
func (in *Ingestor) QueueDepth() int {
	return int(in.depth.Load())
}

// Drain blocks until every in-flight evaluation finishes.
func (in *Ingestor) Drain() {
	in.wg.Wait()
}
