package models

// ActionType is the closed set of thresholded action categories.
// Raw audit actions collapse onto these: any create/delete/update
// variant counts against the matching *Update type, and anything
// webhook-related counts against Webhooks.
type ActionType uint8

const (
	ActionUnknown ActionType = iota
	ActionBotAdd
	ActionRoleUpdate
	ActionChannelUpdate
	ActionGuildUpdate
	ActionKick
	ActionBan
	ActionMemberPrune
	ActionWebhooks
)

func (a ActionType) String() string {
	switch a {
	case ActionBotAdd:
		return "bot_add"
	case ActionRoleUpdate:
		return "role_update"
	case ActionChannelUpdate:
		return "channel_update"
	case ActionGuildUpdate:
		return "guild_update"
	case ActionKick:
		return "kick"
	case ActionBan:
		return "ban"
	case ActionMemberPrune:
		return "member_prune"
	case ActionWebhooks:
		return "webhooks"
	default:
		return "unknown"
	}
}

// ParseActionType maps a stored column/key name back to its type.
func ParseActionType(s string) ActionType {
	switch s {
	case "bot_add":
		return ActionBotAdd
	case "role_update":
		return ActionRoleUpdate
	case "channel_update":
		return ActionChannelUpdate
	case "guild_update":
		return ActionGuildUpdate
	case "kick":
		return ActionKick
	case "ban":
		return ActionBan
	case "member_prune":
		return ActionMemberPrune
	case "webhooks":
		return ActionWebhooks
	default:
		return ActionUnknown
	}
}

// AllActionTypes lists every thresholded type, in enable-table order.
var AllActionTypes = []ActionType{
	ActionBotAdd,
	ActionRoleUpdate,
	ActionChannelUpdate,
	ActionGuildUpdate,
	ActionKick,
	ActionBan,
	ActionMemberPrune,
	ActionWebhooks,
}
