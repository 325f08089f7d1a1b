package task

import (
	"sync"
)

// Graph is an append-only mapping from task IDs to their specs, forming a
// directed acyclic dependency graph. Specs are never overwritten or removed;
// the graph only grows. All operations are concurrency-safe, but a graph must
// be treated as read-only once handed to a scheduler run.
type Graph struct {
	// mutex protects specs and order during concurrent access.
	mutex sync.RWMutex
	// specs stores every task spec, keyed by its unique ID.
	specs map[ID]*Spec
	// order retains insertion order, for deterministic iteration.
	order []ID
}

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		specs: make(map[ID]*Spec),
	}
}

// Add binds a spec to an ID. Re-adding the same ID is allowed only when the
// new spec is structurally identical to the existing one (deduplication); a
// structurally different spec yields a DependencyConflict.
func (g *Graph) Add(id ID, spec *Spec) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.addLocked(id, spec)
}

func (g *Graph) addLocked(id ID, spec *Spec) error {
	if existing, ok := g.specs[id]; ok {
		if existing.Fingerprint() != spec.Fingerprint() {
			return &DependencyConflict{TaskID: id}
		}
		return nil
	}
	g.specs[id] = spec
	g.order = append(g.order, id)
	return nil
}

// Spec returns the spec bound to id, if any.
func (g *Graph) Spec(id ID) (*Spec, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	s, ok := g.specs[id]
	return s, ok
}

// Has reports whether id is defined in the graph.
func (g *Graph) Has(id ID) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	_, ok := g.specs[id]
	return ok
}

// Len returns the number of tasks in the graph.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.specs)
}

// IDs returns every task ID in insertion order.
func (g *Graph) IDs() []ID {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	ids := make([]ID, len(g.order))
	copy(ids, g.order)
	return ids
}

// Deps returns the dependencies of id, in argument order, deduplicated.
func (g *Graph) Deps(id ID) ([]ID, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	s, ok := g.specs[id]
	if !ok {
		return nil, false
	}
	return s.Deps(), true
}

// snapshot copies the graph's ids and spec pointers under a read lock.
func (g *Graph) snapshot() ([]ID, map[ID]*Spec) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	ids := make([]ID, len(g.order))
	copy(ids, g.order)
	specs := make(map[ID]*Spec, len(g.specs))
	for id, s := range g.specs {
		specs[id] = s
	}
	return ids, specs
}

// Merge combines two graphs into one, sharing structure rather than deep
// copying: the smaller graph's specs are appended to the larger graph, which
// is returned. Specs are pointers, so merge cost is proportional to the
// smaller graph's size, keeping deep delayed-call chains linear overall.
//
// Identical IDs deduplicate when their fingerprints match; a fingerprint
// mismatch reports a DependencyConflict and leaves the target graph with the
// original spec.
func Merge(a, b *Graph) (*Graph, error) {
	if a == b || b == nil {
		return a, nil
	}
	if a == nil {
		return b, nil
	}

	into, from := a, b
	if from.Len() > into.Len() {
		into, from = from, into
	}

	ids, specs := from.snapshot()

	into.mutex.Lock()
	defer into.mutex.Unlock()
	for _, id := range ids {
		if err := into.addLocked(id, specs[id]); err != nil {
			return nil, err
		}
	}
	return into, nil
}
