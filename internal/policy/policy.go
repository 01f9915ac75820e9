package policy

import (
	"context"

	"go-nukeguard/internal/models"
)

// PunishmentKind is what a violating actor receives.
type PunishmentKind uint8

const (
	PunishBan PunishmentKind = iota
	PunishKick
	PunishStripRoles
)

func (p PunishmentKind) String() string {
	switch p {
	case PunishKick:
		return "kick"
	case PunishStripRoles:
		return "strip"
	default:
		return "ban"
	}
}

func ParsePunishmentKind(s string) PunishmentKind {
	switch s {
	case "kick":
		return PunishKick
	case "strip":
		return PunishStripRoles
	default:
		return PunishBan
	}
}

// TenantPolicy is one tenant's protection configuration. Enabled and
// Thresholds are tracked separately: a threshold of 0 on an enabled
// action means the first occurrence already violates, it never means
// "not configured".
type TenantPolicy struct {
	TenantID      uint64
	Enabled       map[models.ActionType]bool
	Thresholds    map[models.ActionType]int
	Punishment    PunishmentKind
	Whitelist     map[uint64]bool
	TrustedAdmins map[uint64]bool
}

// ActionEnabled reports whether the tenant thresholds this action at
// all. A nil policy (tenant never configured) protects nothing.
func (p *TenantPolicy) ActionEnabled(action models.ActionType) bool {
	if p == nil {
		return false
	}
	return p.Enabled[action]
}

// Threshold returns the tolerated count for an action, 0 by default.
func (p *TenantPolicy) Threshold(action models.ActionType) int {
	if p == nil {
		return 0
	}
	return p.Thresholds[action]
}

func (p *TenantPolicy) IsWhitelisted(actorID uint64) bool {
	return p != nil && p.Whitelist[actorID]
}

func (p *TenantPolicy) IsTrustedAdmin(actorID uint64) bool {
	return p != nil && p.TrustedAdmins[actorID]
}

// Store is the read-only view of the external config store. A nil
// policy with nil error means the tenant has no protection configured.
type Store interface {
	GetPolicy(ctx context.Context, tenantID uint64) (*TenantPolicy, error)
}
