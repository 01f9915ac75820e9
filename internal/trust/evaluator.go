package trust

import (
	"context"

	"go-nukeguard/internal/policy"
)

// Directory answers identity and hierarchy questions about accounts.
// The gateway session adapter implements it from platform state.
type Directory interface {
	// SelfID is the system's own account.
	SelfID() uint64
	// IsSuperAdmin reports whether the account is a global operator.
	IsSuperAdmin(actorID uint64) bool
	// OwnerOf returns the tenant owner's account, 0 if unknown.
	OwnerOf(ctx context.Context, tenantID uint64) uint64
	// RankOf returns the actor's effective privilege rank within the
	// tenant; higher outranks lower. ok is false when the actor is not
	// reachable in the tenant (left, unknown).
	RankOf(ctx context.Context, tenantID, actorID uint64) (rank int, ok bool)
}

// Evaluator short-circuits exempt actors before any counter capacity
// is spent on them.
type Evaluator struct {
	dir Directory
}

func NewEvaluator(dir Directory) *Evaluator {
	return &Evaluator{dir: dir}
}

// IsExempt applies the exemption checks cheapest-first: self account,
// global super-admin, tenant owner, whitelist and trusted admins, then
// hierarchy. An actor the system could not act on anyway (rank at or
// above its own) is exempt rather than an error.
func (e *Evaluator) IsExempt(ctx context.Context, tenantID uint64, pol *policy.TenantPolicy, actorID uint64) bool {
	if actorID == e.dir.SelfID() {
		return true
	}
	if e.dir.IsSuperAdmin(actorID) {
		return true
	}
	if owner := e.dir.OwnerOf(ctx, tenantID); owner != 0 && actorID == owner {
		return true
	}
	if pol.IsWhitelisted(actorID) || pol.IsTrustedAdmin(actorID) {
		return true
	}

	actorRank, ok := e.dir.RankOf(ctx, tenantID, actorID)
	if !ok {
		// Unreachable actors cannot be punished either way.
		return true
	}
	selfRank, ok := e.dir.RankOf(ctx, tenantID, e.dir.SelfID())
	if !ok {
		return true
	}
	return actorRank >= selfRank
}
