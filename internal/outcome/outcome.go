package outcome

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"go-nukeguard/internal/models"
	"go-nukeguard/internal/policy"
)

// Result classifies how a punishment or cleanup settled.
type Result string

const (
	ResultExecuted     Result = "executed"
	ResultCannotAct    Result = "cannot_act"
	ResultDenied       Result = "permission_denied"
	ResultSuppressed   Result = "rate_suppressed"
	ResultFailed       Result = "failed"
	ResultCleanupDone  Result = "cleanup_done"
	ResultCleanupError Result = "cleanup_failed"
)

// Outcome is one observability record emitted per settled punishment
// or cleanup. External logging and alerting consume the stream; the
// core itself never surfaces failures to users.
type Outcome struct {
	ID         string                `json:"id"`
	TenantID   uint64                `json:"tenant_id"`
	ActorID    uint64                `json:"actor_id"`
	TargetID   uint64                `json:"target_id,omitempty"`
	Action     models.ActionType     `json:"-"`
	ActionName string                `json:"action"`
	Punishment policy.PunishmentKind `json:"-"`
	Kind       string                `json:"punishment"`
	Result     Result                `json:"result"`
	Reason     string                `json:"reason"`
	Attempts   int                   `json:"attempts"`
	At         time.Time             `json:"at"`
}

// New fills derived fields and stamps the record.
func New(tenantID, actorID, targetID uint64, action models.ActionType, kind policy.PunishmentKind, result Result, reason string, attempts int) Outcome {
	return Outcome{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		ActorID:    actorID,
		TargetID:   targetID,
		Action:     action,
		ActionName: action.String(),
		Punishment: kind,
		Kind:       kind.String(),
		Result:     result,
		Reason:     reason,
		Attempts:   attempts,
		At:         time.Now(),
	}
}

// NewCleanup stamps a reversal record. Reversals carry no punishment
// kind.
func NewCleanup(tenantID, actorID, targetID uint64, action models.ActionType, result Result, reason string, attempts int) Outcome {
	return Outcome{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		ActorID:    actorID,
		TargetID:   targetID,
		Action:     action,
		ActionName: action.String(),
		Kind:       "none",
		Result:     result,
		Reason:     reason,
		Attempts:   attempts,
		At:         time.Now(),
	}
}

// Stream fans outcomes out to subscribers. Publishing never blocks:
// a slow consumer loses records rather than stalling the punishment
// path.
type Stream struct {
	mu   sync.RWMutex
	subs []chan Outcome
}

func NewStream() *Stream {
	return &Stream{}
}

// Subscribe returns a buffered channel receiving future outcomes.
func (s *Stream) Subscribe(buffer int) <-chan Outcome {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Outcome, buffer)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

func (s *Stream) Publish(o Outcome) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- o:
		default:
		}
	}
}
