package locks

import "sync"

// Registry hands out one mutex per key, created lazily and evicted
// once the last holder releases it, so the map tracks only keys with
// contention instead of growing for the process lifetime.
type Registry struct {
	mu      sync.Mutex
	entries map[uint64]*entry
}

type entry struct {
	lock sync.Mutex
	refs int
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[uint64]*entry)}
}

// Acquire blocks until the key's mutex is held and returns the release
// function. Callers must release on every exit path.
func (r *Registry) Acquire(key uint64) func() {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		e = &entry{}
		r.entries[key] = e
	}
	e.refs++
	r.mu.Unlock()

	e.lock.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.lock.Unlock()
			r.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(r.entries, key)
			}
			r.mu.Unlock()
		})
	}
}

// Len reports live entry cardinality, for the probe.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Pair holds the two registries the punishment engine locks against.
// Order is fixed: the tenant lock is always taken before the actor
// lock so concurrent punishments can never deadlock.
type Pair struct {
	Tenants *Registry
	Actors  *Registry
}

func NewPair() *Pair {
	return &Pair{Tenants: NewRegistry(), Actors: NewRegistry()}
}

// AcquireBoth takes the tenant lock, then the actor lock, and returns
// a release for both in the reverse order.
func (p *Pair) AcquireBoth(tenantID, actorID uint64) func() {
	releaseTenant := p.Tenants.Acquire(tenantID)
	releaseActor := p.Actors.Acquire(actorID)
	return func() {
		releaseActor()
		releaseTenant()
	}
}
