// Package scheduler walks a task graph from requested targets, dispatching
// ready tasks to an execution backend and assembling per-target outcomes.
//
// The dispatch loop is dependency-driven: a task is handed to the backend
// only after every task it references has produced a result. Structural
// problems (unknown targets, dangling references, cycles) abort the run
// before any task executes. Per-task failures are isolated: transitive
// dependents of a failed task are skipped, independent branches run to
// completion.
package scheduler

import (
	"context"
	"fmt"
	"sort"

	"github.com/vk/delayedgo/internal/backend"
	"github.com/vk/delayedgo/internal/ctxlog"
	"github.com/vk/delayedgo/internal/task"
)

// Outcome is the result of one requested target: a value or an error chain
// leading from the target down to the root cause.
type Outcome struct {
	Value any
	Err   error
}

// Result maps each requested target to its outcome.
type Result map[task.ID]Outcome

// Run executes the subgraph of g reachable from targets on the given backend
// and returns one outcome per target.
//
// When one or more targets fail, the returned error is a *task.AggregateFailure
// naming every failed target; the Result still carries the successful ones.
// Structural errors (unknown target, dangling reference, cycle) are returned
// alone, before any task is dispatched.
func Run(ctx context.Context, g *task.Graph, targets []task.ID, b backend.Backend) (Result, error) {
	logger := ctxlog.FromContext(ctx)

	targets = dedupe(targets)
	if len(targets) == 0 {
		return nil, fmt.Errorf("no targets requested")
	}
	for _, tgt := range targets {
		if !g.Has(tgt) {
			return nil, fmt.Errorf("unknown target task '%s'", tgt)
		}
	}

	reach, err := reachableFrom(g, targets)
	if err != nil {
		return nil, err
	}
	logger.Debug("Computed reachable subgraph.", "tasks", len(reach), "targets", len(targets))

	if err := detectCycles(g, reach); err != nil {
		return nil, err
	}
	logger.Debug("Cycle detection passed.")

	st := newRunState(g, reach)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	total := len(reach)
	tasks := make(chan backend.Task, total)
	completions := make(chan backend.Completion, total)
	b.Start(runCtx, tasks, completions)
	logger.Debug("Backend started.", "kind", b.Kind())

	st.dispatch(tasks, st.initialReady())

	canceled := false
	for st.finalized() < total {
		var c backend.Completion
		if canceled {
			if st.inflight == 0 {
				st.cancelRemaining(ctx.Err())
				break
			}
			c = <-completions
		} else {
			select {
			case <-ctx.Done():
				logger.Warn("Run canceled, no further tasks will be dispatched.")
				canceled = true
				continue
			case c = <-completions:
			}
		}

		st.inflight--
		if c.Err != nil {
			logger.Error("Task failed.", "taskID", c.ID, "error", c.Err)
			st.fail(c.ID, c.Err)
			continue
		}

		logger.Debug("Task completed.", "taskID", c.ID)
		st.results[c.ID] = c.Value
		if !canceled {
			st.dispatch(tasks, st.unlockDependents(c.ID))
		}
	}
	close(tasks)

	res := make(Result, len(targets))
	agg := make(map[task.ID]error)
	for _, tgt := range targets {
		if failErr, ok := st.failures[tgt]; ok {
			res[tgt] = Outcome{Err: failErr}
			agg[tgt] = failErr
			continue
		}
		res[tgt] = Outcome{Value: st.results[tgt]}
	}

	if len(agg) > 0 {
		return res, &task.AggregateFailure{Failures: agg}
	}
	logger.Debug("All targets resolved.")
	return res, nil
}

// runState is the scheduler's mutable bookkeeping for a single run. It is
// only touched from the dispatch loop goroutine; the graph itself stays
// read-only throughout.
type runState struct {
	graph      *task.Graph
	depCount   map[task.ID]int
	dependents map[task.ID][]task.ID
	results    map[task.ID]any
	failures   map[task.ID]error
	inflight   int
}

func newRunState(g *task.Graph, reach map[task.ID]struct{}) *runState {
	st := &runState{
		graph:      g,
		depCount:   make(map[task.ID]int, len(reach)),
		dependents: make(map[task.ID][]task.ID),
		results:    make(map[task.ID]any, len(reach)),
		failures:   make(map[task.ID]error),
	}
	for id := range reach {
		deps, _ := g.Deps(id)
		st.depCount[id] = len(deps)
		for _, dep := range deps {
			st.dependents[dep] = append(st.dependents[dep], id)
		}
	}
	return st
}

func (st *runState) finalized() int {
	return len(st.results) + len(st.failures)
}

// initialReady returns every reachable task with no dependencies.
func (st *runState) initialReady() []task.ID {
	var ready []task.ID
	for id, n := range st.depCount {
		if n == 0 {
			ready = append(ready, id)
		}
	}
	return ready
}

// dispatch resolves arguments and enqueues the given tasks in ascending ID
// order. Sorted enqueueing is what makes serial runs deterministic; pooled
// backends are free to complete them in any order.
func (st *runState) dispatch(tasks chan<- backend.Task, ready []task.ID) {
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
	for _, id := range ready {
		spec, _ := st.graph.Spec(id)
		args := make([]any, len(spec.Args))
		for i, a := range spec.Args {
			if a.IsRef() {
				args[i] = st.results[a.Ref()]
			} else {
				args[i] = a.Value()
			}
		}
		tasks <- backend.Task{ID: id, Name: spec.FuncName, Fn: spec.Func, Args: args}
		st.inflight++
	}
}

// unlockDependents decrements dependency counts after id succeeded and
// returns the tasks that just became ready.
func (st *runState) unlockDependents(id task.ID) []task.ID {
	var ready []task.ID
	for _, dep := range st.dependents[id] {
		st.depCount[dep]--
		if st.depCount[dep] == 0 {
			ready = append(ready, dep)
		}
	}
	return ready
}

// fail records a task failure and recursively marks every transitive
// dependent skipped. Skipped tasks are never dispatched, so the resulting
// error chains thread each intermediate task between root cause and target.
func (st *runState) fail(id task.ID, err error) {
	st.failures[id] = err
	st.skipDependents(id, err)
}

func (st *runState) skipDependents(id task.ID, cause error) {
	for _, dep := range st.dependents[id] {
		if _, done := st.failures[dep]; done {
			continue
		}
		if _, done := st.results[dep]; done {
			continue
		}
		skipErr := &task.TaskExecutionError{
			TaskID: dep,
			Err:    fmt.Errorf("skipped due to upstream failure of '%s': %w", id, cause),
		}
		st.failures[dep] = skipErr
		st.skipDependents(dep, skipErr)
	}
}

// cancelRemaining finalizes every not-yet-finalized task after cancellation.
func (st *runState) cancelRemaining(cause error) {
	if cause == nil {
		cause = context.Canceled
	}
	for id := range st.depCount {
		if _, done := st.failures[id]; done {
			continue
		}
		if _, done := st.results[id]; done {
			continue
		}
		st.failures[id] = &task.TaskExecutionError{TaskID: id, Err: cause}
	}
}

// reachableFrom collects the transitive closure of the targets, failing on
// references to tasks the graph does not define.
func reachableFrom(g *task.Graph, targets []task.ID) (map[task.ID]struct{}, error) {
	reach := make(map[task.ID]struct{})
	var visit func(id task.ID) error
	visit = func(id task.ID) error {
		if _, seen := reach[id]; seen {
			return nil
		}
		deps, ok := g.Deps(id)
		if !ok {
			return fmt.Errorf("reference to undefined task '%s'", id)
		}
		reach[id] = struct{}{}
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return fmt.Errorf("task '%s': %w", id, err)
			}
		}
		return nil
	}
	for _, tgt := range targets {
		if err := visit(tgt); err != nil {
			return nil, err
		}
	}
	return reach, nil
}

// detectCycles checks the reachable subgraph for circular dependencies using
// DFS with visiting/visited sets.
func detectCycles(g *task.Graph, reach map[task.ID]struct{}) error {
	visiting := make(map[task.ID]bool)
	visited := make(map[task.ID]bool)

	var visit func(id task.ID) error
	visit = func(id task.ID) error {
		visiting[id] = true
		deps, _ := g.Deps(id)
		for _, dep := range deps {
			if visiting[dep] {
				return &task.CyclicGraphError{TaskID: dep}
			}
			if !visited[dep] {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		delete(visiting, id)
		visited[id] = true
		return nil
	}

	for id := range reach {
		if !visited[id] {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func dedupe(ids []task.ID) []task.ID {
	seen := make(map[task.ID]struct{}, len(ids))
	var out []task.ID
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
