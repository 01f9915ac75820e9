package models

import "time"

// RawAction identifies the platform-level event kind before
// normalization. The values mirror Discord audit log action codes so
// the raw gateway reader and the session adapter feed the same table.
type RawAction int

const (
	RawGuildUpdate      RawAction = 1
	RawChannelCreate    RawAction = 10
	RawChannelUpdate    RawAction = 11
	RawChannelDelete    RawAction = 12
	RawMemberKick       RawAction = 20
	RawMemberPrune      RawAction = 21
	RawMemberBanAdd     RawAction = 22
	RawMemberRoleUpdate RawAction = 25
	RawBotAdd           RawAction = 28
	RawRoleCreate       RawAction = 30
	RawRoleUpdate       RawAction = 31
	RawRoleDelete       RawAction = 32
	RawWebhookCreate    RawAction = 50
	RawWebhookUpdate    RawAction = 51
	RawWebhookDelete    RawAction = 52
)

// normalizeTable is the static, exhaustive mapping from raw platform
// actions to thresholded action types. Missing entries mean the raw
// event is outside the protected set and is dropped at ingest.
var normalizeTable = map[RawAction]ActionType{
	RawGuildUpdate:      ActionGuildUpdate,
	RawChannelCreate:    ActionChannelUpdate,
	RawChannelUpdate:    ActionChannelUpdate,
	RawChannelDelete:    ActionChannelUpdate,
	RawMemberKick:       ActionKick,
	RawMemberPrune:      ActionMemberPrune,
	RawMemberBanAdd:     ActionBan,
	RawMemberRoleUpdate: ActionRoleUpdate,
	RawBotAdd:           ActionBotAdd,
	RawRoleCreate:       ActionRoleUpdate,
	RawRoleUpdate:       ActionRoleUpdate,
	RawRoleDelete:       ActionRoleUpdate,
	RawWebhookCreate:    ActionWebhooks,
	RawWebhookUpdate:    ActionWebhooks,
	RawWebhookDelete:    ActionWebhooks,
}

// Normalize collapses a raw action onto its ActionType.
func Normalize(raw RawAction) (ActionType, bool) {
	t, ok := normalizeTable[raw]
	return t, ok
}

// RawEvent is what the gateway adapters hand to the ingestor: one
// platform event, consumed once, never mutated.
type RawEvent struct {
	TenantID   uint64
	ActorID    uint64 // 0 when the platform did not attribute the event
	TargetID   uint64
	Action     RawAction
	Reason     string // free-text audit reason, may carry the true actor
	ActorIsBot bool
	OccurredAt time.Time
}

// ActionEvent is the normalized unit the decision pipeline consumes.
type ActionEvent struct {
	TenantID   uint64
	ActorID    uint64
	TargetID   uint64
	Action     ActionType
	Raw        RawAction
	Reason     string
	ActorIsBot bool
	OccurredAt time.Time
}

// Destructive reports whether the raw action created or removed a
// platform object, i.e. whether cleanup should run after punishment.
func (e ActionEvent) Destructive() bool {
	switch e.Raw {
	case RawMemberBanAdd, RawBotAdd,
		RawChannelCreate, RawChannelDelete, RawChannelUpdate,
		RawRoleCreate, RawRoleDelete, RawRoleUpdate,
		RawGuildUpdate,
		RawWebhookCreate, RawWebhookUpdate, RawWebhookDelete:
		return true
	}
	return false
}
