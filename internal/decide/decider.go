package decide

import (
	"context"
	"time"

	"go.uber.org/zap"

	"go-nukeguard/internal/audit"
	"go-nukeguard/internal/models"
	"go-nukeguard/internal/policy"
	"go-nukeguard/internal/ratelimit"
	"go-nukeguard/internal/trust"
)

// Verdict is the binary outcome of threshold evaluation. Everything
// that is not a positive detection is Trusted: exempt actors,
// unresolved attribution, self-protective suppression, and counts
// still inside the tenant's tolerance.
type Verdict uint8

const (
	VerdictTrusted Verdict = iota
	VerdictExceeded
)

func (v Verdict) String() string {
	if v == VerdictExceeded {
		return "exceeded"
	}
	return "trusted"
}

// Scope limits protecting the decision engine itself. These meter the
// whole pipeline, not any tenant's tolerance: when they saturate we
// suppress detections rather than melt down.
const (
	globalLimit   = 100
	globalWindow  = 10 * time.Second
	tenantLimit   = 20
	tenantWindow  = 10 * time.Second
	abuseWindow   = 60 * time.Second
)

// Result carries the verdict plus everything the punishment engine
// needs without re-querying: the resolved event and tenant policy.
type Result struct {
	Verdict Verdict
	Event   models.ActionEvent
	Policy  *policy.TenantPolicy
}

// Decider combines trust, attribution, and the shared limiter into a
// single evaluate step.
type Decider struct {
	policies   policy.Store
	trust      *trust.Evaluator
	correlator *audit.Correlator
	limiter    ratelimit.Limiter
	logger     *zap.Logger
}

func NewDecider(policies policy.Store, trustEval *trust.Evaluator, correlator *audit.Correlator, limiter ratelimit.Limiter, logger *zap.Logger) *Decider {
	return &Decider{
		policies:   policies,
		trust:      trustEval,
		correlator: correlator,
		limiter:    limiter,
		logger:     logger,
	}
}

// Evaluate decides whether the event's actor has exceeded the tenant's
// tolerance for this action. The same limiter primitive is hit at
// three scopes of increasing specificity; only the most specific one
// can produce a detection, the two above it only ever suppress.
func (d *Decider) Evaluate(ctx context.Context, event models.ActionEvent) Result {
	res := Result{Verdict: VerdictTrusted, Event: event}

	pol, err := d.policies.GetPolicy(ctx, event.TenantID)
	if err != nil {
		d.logger.Warn("policy load failed, skipping event",
			zap.Uint64("tenant_id", event.TenantID), zap.Error(err))
		return res
	}
	res.Policy = pol

	// Disabled actions cost nothing: no audit fetch, no counters.
	if !pol.ActionEnabled(event.Action) {
		return res
	}

	if event.ActorID != 0 && d.trust.IsExempt(ctx, event.TenantID, pol, event.ActorID) {
		return res
	}

	if event.ActorID == 0 {
		resolved, ok := d.correlator.Resolve(ctx, event.TenantID, event.Action, event.Raw)
		if !ok {
			// Attribution unavailable: skip, never guess.
			return res
		}
		event.ActorID = resolved.ActorID
		event.ActorIsBot = resolved.ActorIsBot
		res.Event = event

		if d.trust.IsExempt(ctx, event.TenantID, pol, event.ActorID) {
			return res
		}
	}

	// Self-protective scopes: saturation suppresses, it never detects.
	if g := d.limiter.Hit(ctx, ratelimit.ScopeKey("detect", "global"), globalLimit, globalWindow); !g.Allowed {
		d.logger.Warn("global detection scope saturated, suppressing",
			zap.Uint64("tenant_id", event.TenantID))
		return res
	}
	if tn := d.limiter.Hit(ctx, ratelimit.ScopeKey("detect", "tenant", event.TenantID), tenantLimit, tenantWindow); !tn.Allowed {
		d.logger.Warn("tenant detection scope saturated, suppressing",
			zap.Uint64("tenant_id", event.TenantID))
		return res
	}

	// The abuse scope: threshold 0 means the first occurrence already
	// exceeds.
	threshold := pol.Threshold(event.Action)
	abuseKey := ratelimit.ScopeKey("antinuke", event.TenantID, event.ActorID, event.Action.String())
	if a := d.limiter.Hit(ctx, abuseKey, threshold, abuseWindow); !a.Allowed {
		d.logger.Info("threshold exceeded",
			zap.Uint64("tenant_id", event.TenantID),
			zap.Uint64("actor_id", event.ActorID),
			zap.String("action", event.Action.String()),
			zap.Int("threshold", threshold),
			zap.Int64("count", a.Count))
		res.Verdict = VerdictExceeded
	}
	return res
}
