package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"go-nukeguard/internal/audit"
	"go-nukeguard/internal/cleanup"
	"go-nukeguard/internal/config"
	"go-nukeguard/internal/database"
	"go-nukeguard/internal/decide"
	"go-nukeguard/internal/dispatcher"
	"go-nukeguard/internal/gateway"
	"go-nukeguard/internal/ingest"
	"go-nukeguard/internal/locks"
	"go-nukeguard/internal/logging"
	"go-nukeguard/internal/models"
	"go-nukeguard/internal/notifier"
	"go-nukeguard/internal/outcome"
	"go-nukeguard/internal/policy"
	"go-nukeguard/internal/probe"
	"go-nukeguard/internal/punish"
	"go-nukeguard/internal/ratelimit"
	"go-nukeguard/internal/trust"
	"go-nukeguard/pkg/memory"
)

func main() {
	logger := logging.New()
	defer logger.Sync()

	cfgPath := os.Getenv("NUKEGUARD_CONFIG")
	if cfgPath == "" {
		cfgPath = "config.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	if cfg.Runtime.MemoryLock {
		if err := memory.LockAll(); err != nil {
			logger.Warn("memory lock unavailable", zap.Error(err))
		} else {
			logger.Info("memory locked")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer db.Close()

	limiter := buildLimiter(cfg, logger)
	store := policy.NewCachedStore(db, policy.DefaultTTL, logger)

	watchdog := probe.NewWatchdog(30*time.Second, logger)
	watchdog.Register("gateway", 5*time.Minute)
	beat := func() { watchdog.Heartbeat("gateway") }

	session, err := gateway.NewSession(cfg.Bot.Token, cfg.Bot.SuperAdmins, logger)
	if err != nil {
		logger.Fatal("session", zap.Error(err))
	}
	session.SetHeartbeat(beat)
	if cfg.Bot.Transport == config.TransportRaw {
		// The raw reader carries the event feed; the session stays up
		// for REST calls and audit fetches only.
		session.UseLeanIntents()
	}
	if err := session.Connect(); err != nil {
		logger.Fatal("connect", zap.Error(err))
	}
	defer session.Close()

	correlator := audit.NewCorrelator(session, limiter, session.SelfID(), logger)
	decider := decide.NewDecider(store, trust.NewEvaluator(session), correlator, limiter, logger)

	stream := outcome.NewStream()
	startOutcomeConsumers(ctx, cfg, db, stream, logger)
	startNotifier(ctx, cfg, session, stream, logger)

	pool := dispatcher.NewPool(cfg.Network.HTTPPoolSize)
	rest := dispatcher.NewClient(cfg.Network.APIBaseURL, cfg.Bot.Token, pool, logger)
	rest.SetRoleRetainer(session.RetainedRoles)

	lockPair := locks.NewPair()
	engine := punish.NewEngine(rest, session, limiter, lockPair, stream, logger)

	tracker := cleanup.NewTracker()
	coordinator := cleanup.NewCoordinator(rest, tracker, limiter, stream, logger)

	handler := func(ctx context.Context, event models.ActionEvent) {
		res := decider.Evaluate(ctx, event)
		if res.Verdict != decide.VerdictExceeded {
			return
		}
		reason := punish.Reason(punish.CaughtReason(event.Action))
		respond(ctx, engine, coordinator, res.Event, res.Policy, reason)
	}

	ingestor := ingest.New(handler, session.SelfID(), cfg.Runtime.Concurrency, logger)

	go watchdog.Run(ctx)

	switch cfg.Bot.Transport {
	case config.TransportRaw:
		go runRawReader(ctx, cfg, ingestor, beat, logger)
	default:
		session.RegisterHandlers(ctx, ingestor, tracker)
	}

	go serveProbe(cfg, watchdog, ingestor, lockPair, store, tracker, limiter, logger)

	logger.Info("nukeguard running",
		zap.String("transport", cfg.Bot.Transport),
		zap.Uint64("self_id", session.SelfID()))

	waitForSignal()

	logger.Info("shutting down")
	cancel()
	ingestor.Drain()
}

// respond runs the punishment and the damage reversal side by side.
// The reversal must not sit behind the punishment's retry backoff;
// the damage stands until it runs.
func respond(ctx context.Context, engine *punish.Engine, coordinator *cleanup.Coordinator,
	event models.ActionEvent, pol *policy.TenantPolicy, reason string) {

	done := make(chan struct{})
	go func() {
		defer close(done)
		coordinator.Run(ctx, event, reason)
	}()
	engine.Execute(ctx, event, pol, reason)
	<-done
}

func buildLimiter(cfg *config.Config, logger *zap.Logger) ratelimit.Limiter {
	if !cfg.Redis.Enabled {
		return ratelimit.NewMemory()
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})
	return ratelimit.NewRedis(client, logger)
}

func startOutcomeConsumers(ctx context.Context, cfg *config.Config, db *database.Database, stream *outcome.Stream, logger *zap.Logger) {
	persist := stream.Subscribe(256)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case o := <-persist:
				logger.Info("outcome",
					zap.String("id", o.ID),
					zap.Uint64("tenant_id", o.TenantID),
					zap.Uint64("actor_id", o.ActorID),
					zap.String("action", o.ActionName),
					zap.String("punishment", o.Kind),
					zap.String("result", string(o.Result)))
				err := db.RecordOutcome(ctx, o.ID, o.TenantID, o.ActorID,
					o.ActionName, o.Kind, string(o.Result), o.Reason)
				if err != nil {
					logger.Warn("outcome persist failed", zap.Error(err), zap.String("id", o.ID))
				}
			}
		}
	}()

	if cfg.Kafka.Enabled {
		pub := outcome.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		go pub.Run(ctx, stream.Subscribe(256))
	}
}

func startNotifier(ctx context.Context, cfg *config.Config, session *gateway.Session, stream *outcome.Stream, logger *zap.Logger) {
	if cfg.Notify.ChannelID == 0 {
		return
	}
	n := notifier.New(session, cfg.Notify.ChannelID, logger)
	go n.Run(ctx, stream.Subscribe(64))
}

func runRawReader(ctx context.Context, cfg *config.Config, in *ingest.Ingestor, beat func(), logger *zap.Logger) {
	for ctx.Err() == nil {
		reader := gateway.NewRawReader(cfg.Bot.Token, in, logger)
		reader.SetHeartbeat(beat)
		if err := reader.Connect(ctx); err != nil {
			logger.Error("raw gateway connect failed", zap.Error(err))
		} else if err := reader.ReadLoop(ctx); err != nil {
			logger.Error("raw gateway dropped", zap.Error(err))
		}
		reader.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func serveProbe(cfg *config.Config, watchdog *probe.Watchdog, in *ingest.Ingestor,
	lockPair *locks.Pair, store *policy.CachedStore, tracker *cleanup.Tracker,
	limiter ratelimit.Limiter, logger *zap.Logger) {

	sizes := probe.Sizes{
		QueueDepth:  in.QueueDepth,
		TenantLocks: lockPair.Tenants.Len,
		ActorLocks:  lockPair.Actors.Len,
		PolicyCache: store.Len,
		Snapshots:   tracker.Len,
	}
	if mem, ok := limiter.(*ratelimit.MemoryLimiter); ok {
		sizes.LimiterEntries = mem.Len
	}
	srv := probe.NewServer(watchdog, sizes, logger)
	if err := srv.ListenAndServe(cfg.Probe.Addr); err != nil {
		logger.Error("probe stopped", zap.Error(err))
	}
}

func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}
