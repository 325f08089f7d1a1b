// Package delayed wraps ordinary callables so that invoking them records a
// pending task into a shared dependency graph instead of executing. A single
// Compute call later resolves the accumulated graph through a backend.
package delayed

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vk/delayedgo/internal/backend"
	"github.com/vk/delayedgo/internal/registry"
	"github.com/vk/delayedgo/internal/scheduler"
	"github.com/vk/delayedgo/internal/task"
)

// Func is a deferred callable. Calling it builds graph structure; nothing
// executes and no error from the wrapped function can surface until Compute.
type Func struct {
	name string
	fn   task.Func
}

// Wrap marks fn as delayed. name may be empty for anonymous callables; a
// non-empty name makes calls fingerprint-stable (deduplicable across
// independently built handles) and process-transferable.
func Wrap(name string, fn task.Func) *Func {
	return &Func{name: name, fn: fn}
}

// Registered looks name up in the registry and returns it as a delayed
// callable.
func Registered(r *registry.Registry, name string) (*Func, error) {
	fn, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("delayed: %q is not registered", name)
	}
	return &Func{name: name, fn: fn}, nil
}

// Call records one pending invocation and returns a handle to its future
// result. Handle arguments become dependency edges and their graphs are
// merged into the new handle's graph; anything else is stored as a literal.
//
// A wrapped function that itself returns a *Handle is not flattened: the
// task's value is the handle object, not the result it points at.
func (f *Func) Call(args ...any) (*Handle, error) {
	graph := task.New()
	specArgs := make([]task.Arg, len(args))
	for i, a := range args {
		h, ok := a.(*Handle)
		if !ok {
			specArgs[i] = task.Literal(a)
			continue
		}
		merged, err := task.Merge(graph, h.graph)
		if err != nil {
			return nil, err
		}
		graph = merged
		specArgs[i] = task.Ref(h.id)
	}

	id := mintID(f.name)
	if err := graph.Add(id, task.Call(f.name, f.fn, specArgs...)); err != nil {
		return nil, err
	}
	return &Handle{id: id, graph: graph}, nil
}

// Value records a literal as a graph node and returns its handle. It is the
// entry point for feeding plain data into a delayed computation explicitly.
func Value(v any) (*Handle, error) {
	graph := task.New()
	id := mintID("value")
	if err := graph.Add(id, task.Value(v)); err != nil {
		return nil, err
	}
	return &Handle{id: id, graph: graph}, nil
}

// mintID produces a graph-unique task ID. The callable name prefixes the
// random token purely for log and error readability.
func mintID(name string) task.ID {
	if name == "" {
		name = "call"
	}
	return task.ID(fmt.Sprintf("%s-%s", name, uuid.NewString()))
}

// Handle is a deferred value: a task ID paired with the graph that defines
// it. Handles are cheap to copy around and may share one graph.
type Handle struct {
	id    task.ID
	graph *task.Graph
}

// ID returns the task identifier the handle resolves to.
func (h *Handle) ID() task.ID { return h.id }

// Graph exposes the accumulated graph for introspection. Callers must treat
// it as read-only.
func (h *Handle) Graph() *task.Graph { return h.graph }

// Compute executes the handle's reachable subgraph on b and returns the
// handle's value. The graph is left untouched, so calling Compute again (or
// computing another handle over the same graph) re-resolves from scratch.
func (h *Handle) Compute(ctx context.Context, b backend.Backend) (any, error) {
	res, err := scheduler.Run(ctx, h.graph, []task.ID{h.id}, b)
	if err != nil {
		if outcome, ok := res[h.id]; ok && outcome.Err != nil {
			return nil, outcome.Err
		}
		return nil, err
	}
	return res[h.id].Value, nil
}
