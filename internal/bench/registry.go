package bench

import "sync"

// Registry is the lookup table of runs by id, the only structure shared
// between the coordinator, the broadcaster, and API readers. Readers
// receive snapshots, never the live run, so a concurrent write cannot
// expose a half-updated run.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*run
}

func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*run)}
}

func (g *Registry) add(r *run) {
	g.mu.Lock()
	g.runs[r.id] = r
	g.mu.Unlock()
}

func (g *Registry) get(id string) (*run, bool) {
	g.mu.RLock()
	r, ok := g.runs[id]
	g.mu.RUnlock()
	return r, ok
}

// Snapshot returns a consistent view of one run, or ok=false if the id
// is unknown.
func (g *Registry) Snapshot(id string) (Snapshot, bool) {
	r, ok := g.get(id)
	if !ok {
		return Snapshot{}, false
	}
	return r.snapshot(), true
}

// ActiveIDs lists runs that have not reached a terminal state.
func (g *Registry) ActiveIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ids []string
	for id, r := range g.runs {
		if !r.currentState().Terminal() {
			ids = append(ids, id)
		}
	}
	return ids
}
