package probe

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// Sizes exposes live cardinalities from the pipeline so an operator
// can see lock registry or cache growth before it matters.
type Sizes struct {
	QueueDepth     func() int
	TenantLocks    func() int
	ActorLocks     func() int
	PolicyCache    func() int
	Snapshots      func() int
	LimiterEntries func() int
}

// Server is the operational surface: liveness, pipeline sizes, and
// host load. It exposes nothing tenant-facing.
type Server struct {
	watchdog *Watchdog
	sizes    Sizes
	logger   *zap.Logger
	started  time.Time
}

func NewServer(watchdog *Watchdog, sizes Sizes, logger *zap.Logger) *Server {
	return &Server{
		watchdog: watchdog,
		sizes:    sizes,
		logger:   logger,
		started:  time.Now(),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/statsz", s.handleStats)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	healthy := s.watchdog.Healthy()
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"healthy":    healthy,
		"components": s.watchdog.Status(),
		"uptime_s":   int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"uptime_s": int64(time.Since(s.started).Seconds()),
	}

	if s.sizes.QueueDepth != nil {
		body["queue_depth"] = s.sizes.QueueDepth()
	}
	if s.sizes.TenantLocks != nil {
		body["tenant_locks"] = s.sizes.TenantLocks()
	}
	if s.sizes.ActorLocks != nil {
		body["actor_locks"] = s.sizes.ActorLocks()
	}
	if s.sizes.PolicyCache != nil {
		body["policy_cache"] = s.sizes.PolicyCache()
	}
	if s.sizes.Snapshots != nil {
		body["snapshots"] = s.sizes.Snapshots()
	}
	if s.sizes.LimiterEntries != nil {
		body["limiter_entries"] = s.sizes.LimiterEntries()
	}

	if vm, err := mem.VirtualMemoryWithContext(r.Context()); err == nil {
		body["mem_used_pct"] = vm.UsedPercent
	}
	if pcts, err := cpu.PercentWithContext(r.Context(), 0, false); err == nil && len(pcts) > 0 {
		body["cpu_pct"] = pcts[0]
	}

	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// ListenAndServe runs the probe on addr until the server errors.
func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("probe listening", zap.String("addr", addr))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}
