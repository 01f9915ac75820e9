package punish

import "go-nukeguard/internal/models"

const reasonPrefix = "[ nukeguard ] "

// Reason formats the audit reason attached to every punitive and
// reversal API call so moderators can tell enforcement from abuse at
// a glance.
func Reason(text string) string {
	return reasonPrefix + text
}

var caughtReasons = map[models.ActionType]string{
	models.ActionBan:           "User caught banning members",
	models.ActionKick:          "User caught kicking members",
	models.ActionChannelUpdate: "User caught creating, deleting or editing channels",
	models.ActionRoleUpdate:    "User caught creating, deleting or editing roles",
	models.ActionGuildUpdate:   "User caught editing the server profile",
	models.ActionBotAdd:        "User caught adding bots",
	models.ActionMemberPrune:   "User caught pruning members",
	models.ActionWebhooks:      "User caught managing webhooks",
}

// CaughtReason is the human explanation for a threshold violation.
func CaughtReason(action models.ActionType) string {
	if r, ok := caughtReasons[action]; ok {
		return r
	}
	return "User caught performing destructive actions"
}
