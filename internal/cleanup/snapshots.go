package cleanup

import (
	"sync"
	"time"
)

// ObjectKind identifies what a snapshot or reversal target is.
type ObjectKind uint8

const (
	ObjectChannel ObjectKind = iota
	ObjectRole
	ObjectWebhook
	ObjectGuildProfile
)

func (o ObjectKind) String() string {
	switch o {
	case ObjectChannel:
		return "channel"
	case ObjectRole:
		return "role"
	case ObjectWebhook:
		return "webhook"
	case ObjectGuildProfile:
		return "guild_profile"
	default:
		return "unknown"
	}
}

// Snapshot is the prior known state of a platform object, captured
// from gateway events before anything destructive happened to it, so
// a restore has a source to rebuild from.
type Snapshot struct {
	TenantID   uint64
	ObjectID   uint64
	Kind       ObjectKind
	Name       string
	Position   int
	Permission int64
	Properties map[string]string
	TakenAt    time.Time
}

// retention bounds how long prior state is useful; a restore hours
// later would fight legitimate edits made since.
const retention = 15 * time.Minute

// Tracker keeps the two most recent snapshots per object. The gateway
// adapter feeds it on every create/update event it sees; update events
// record the post-edit state, so a restore triggered by that same edit
// must reach one entry further back.
type Tracker struct {
	mu    sync.RWMutex
	items map[snapKey]history
}

type snapKey struct {
	tenantID uint64
	objectID uint64
}

type history struct {
	cur     Snapshot
	prev    Snapshot
	hasPrev bool
}

func NewTracker() *Tracker {
	return &Tracker{items: make(map[snapKey]history)}
}

func (t *Tracker) Track(s Snapshot) {
	if s.TakenAt.IsZero() {
		s.TakenAt = time.Now()
	}
	key := snapKey{tenantID: s.TenantID, objectID: s.ObjectID}
	t.mu.Lock()
	h, ok := t.items[key]
	if ok {
		h.prev, h.hasPrev = h.cur, true
	}
	h.cur = s
	t.items[key] = h
	if len(t.items) > snapSweepThreshold {
		now := time.Now()
		for k, v := range t.items {
			if now.Sub(v.cur.TakenAt) > retention {
				delete(t.items, k)
			}
		}
	}
	t.mu.Unlock()
}

const snapSweepThreshold = 2048

// Latest returns the freshest prior state for an object, if any is
// still within retention. Deletions restore from it: the delete event
// itself never overwrites the entry.
func (t *Tracker) Latest(tenantID, objectID uint64) (Snapshot, bool) {
	t.mu.RLock()
	h, ok := t.items[snapKey{tenantID: tenantID, objectID: objectID}]
	t.mu.RUnlock()
	if !ok || time.Since(h.cur.TakenAt) > retention {
		return Snapshot{}, false
	}
	return h.cur, true
}

// Prior returns the state before the freshest one. Edits restore from
// it: by the time cleanup runs, the update event has usually already
// tracked the edited state, and restoring that would re-apply the
// damage. When only one snapshot exists it is returned; the displacing
// update has not arrived yet and the entry is still pre-edit.
func (t *Tracker) Prior(tenantID, objectID uint64) (Snapshot, bool) {
	t.mu.RLock()
	h, ok := t.items[snapKey{tenantID: tenantID, objectID: objectID}]
	t.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	if h.hasPrev && time.Since(h.prev.TakenAt) <= retention {
		return h.prev, true
	}
	if time.Since(h.cur.TakenAt) > retention {
		return Snapshot{}, false
	}
	return h.cur, true
}

// Len reports live snapshot cardinality, for the probe.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}
