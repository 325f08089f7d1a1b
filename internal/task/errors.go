package task

import (
	"fmt"
	"sort"
	"strings"
)

// CyclicGraphError reports a cycle in the subgraph reachable from the
// requested targets. It names one task involved in the cycle.
type CyclicGraphError struct {
	TaskID ID
}

func (e *CyclicGraphError) Error() string {
	return fmt.Sprintf("cycle detected involving task '%s'", e.TaskID)
}

// DependencyConflict reports a merge-time collision: the same TaskId bound to
// structurally different specs.
type DependencyConflict struct {
	TaskID ID
}

func (e *DependencyConflict) Error() string {
	return fmt.Sprintf("task '%s' already defined with a different spec", e.TaskID)
}

// TaskExecutionError wraps a failure produced while (or instead of) running a
// task's callable. For tasks skipped because an upstream task failed, Err
// chains through every intermediate task up to the root cause.
type TaskExecutionError struct {
	TaskID ID
	Err    error
}

func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("task '%s': %v", e.TaskID, e.Err)
}

func (e *TaskExecutionError) Unwrap() error { return e.Err }

// TransferError reports that a callable or value could not cross a process
// isolation boundary. Only process-pool backends produce it.
type TransferError struct {
	TaskID ID
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("task '%s' is not transferable: %v", e.TaskID, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// AggregateFailure is returned by a run when one or more requested targets
// could not be produced. Failures maps each failed target to its causal
// error chain; targets absent from the map resolved successfully.
type AggregateFailure struct {
	Failures map[ID]error
}

func (e *AggregateFailure) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for id := range e.Failures {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d target(s) failed", len(ids))
	for _, id := range ids {
		fmt.Fprintf(&sb, "; %s: %v", id, e.Failures[ID(id)])
	}
	return sb.String()
}
