package probe

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Watchdog tracks liveness of the long-running loops (gateway read,
// outcome publisher). Components heartbeat; silence past their
// threshold flips them unhealthy until the next beat.
type Watchdog struct {
	mu         sync.RWMutex
	components map[string]*componentHealth
	interval   time.Duration
	logger     *zap.Logger
}

type componentHealth struct {
	lastBeat  atomic.Int64
	healthy   atomic.Bool
	threshold time.Duration
}

func NewWatchdog(interval time.Duration, logger *zap.Logger) *Watchdog {
	return &Watchdog{
		components: make(map[string]*componentHealth),
		interval:   interval,
		logger:     logger,
	}
}

func (w *Watchdog) Register(name string, threshold time.Duration) {
	c := &componentHealth{threshold: threshold}
	c.healthy.Store(true)
	w.mu.Lock()
	w.components[name] = c
	w.mu.Unlock()
}

func (w *Watchdog) Heartbeat(name string) {
	w.mu.RLock()
	c := w.components[name]
	w.mu.RUnlock()
	if c != nil {
		c.lastBeat.Store(time.Now().UnixNano())
		c.healthy.Store(true)
	}
}

// Run blocks, sweeping components every interval until ctx ends.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

func (w *Watchdog) sweep() {
	now := time.Now().UnixNano()
	w.mu.RLock()
	defer w.mu.RUnlock()
	for name, c := range w.components {
		last := c.lastBeat.Load()
		if last == 0 {
			continue
		}
		elapsed := time.Duration(now - last)
		if elapsed > c.threshold && c.healthy.CompareAndSwap(true, false) {
			w.logger.Error("component stopped heartbeating",
				zap.String("component", name),
				zap.Duration("silent_for", elapsed))
		}
	}
}

// Status snapshots per-component health.
func (w *Watchdog) Status() map[string]bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[string]bool, len(w.components))
	for name, c := range w.components {
		out[name] = c.healthy.Load()
	}
	return out
}

func (w *Watchdog) Healthy() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, c := range w.components {
		if !c.healthy.Load() {
			return false
		}
	}
	return true
}
