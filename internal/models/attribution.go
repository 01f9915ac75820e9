package models

import (
	"strconv"
	"strings"
)

// ReasonDelimiter separates a human-readable reason from the actor the
// system acted on behalf of, e.g. "mute evasion | 1234567890".
const ReasonDelimiter = " | "

// ActorFromReason extracts the true actor encoded as a trailing
// "... | <actor_id>" suffix in an audit reason. Events performed by
// the system on behalf of a human carry the human's ID this way.
func ActorFromReason(reason string) (uint64, bool) {
	if !strings.Contains(reason, "|") {
		return 0, false
	}
	parts := strings.Split(reason, ReasonDelimiter)
	last := strings.TrimSpace(parts[len(parts)-1])
	id, err := strconv.ParseUint(last, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
