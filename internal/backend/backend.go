// Package backend defines the execution-backend contract the scheduler
// dispatches ready tasks through, plus the in-process implementations:
// Serial (one task at a time, deterministic) and Pool (bounded goroutine
// pool). The process-pool implementation lives in the procpool subpackage.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/delayedgo/internal/task"
)

// Kind identifies a backend's concurrency strategy.
type Kind string

const (
	KindSerial   Kind = "serial"
	KindPool     Kind = "pool"
	KindProcPool Kind = "procpool"
)

// Task is one ready unit of work: a callable with fully resolved positional
// arguments. A nil Fn marks a value node, which resolves to its first
// argument without invoking anything.
type Task struct {
	ID task.ID
	// Name is the registry name of the callable, empty for anonymous ones.
	Name string
	Fn   task.Func
	Args []any
}

// Completion reports the outcome of one dispatched task.
type Completion struct {
	ID    task.ID
	Value any
	Err   error
}

// Backend runs batches of ready tasks under some concurrency strategy.
//
// Start launches the backend's workers and returns immediately. Workers
// consume tasks until the channel is closed and report exactly one Completion
// per received task. The caller must size completions so sends never block
// indefinitely (the scheduler uses the reachable task count). Swapping one
// backend for another changes latency, never results.
type Backend interface {
	Start(ctx context.Context, tasks <-chan Task, completions chan<- Completion)
	Kind() Kind
}

// Options tunes a backend. The zero value is valid.
type Options struct {
	// Workers bounds concurrent task execution for pooled backends.
	// Non-positive means DefaultWorkers.
	Workers int
	// TaskTimeout, when positive, bounds each task's execution. It is a
	// convenience knob, not a scheduling invariant.
	TaskTimeout time.Duration
}

// DefaultWorkers is the pool size used when Options.Workers is unset.
const DefaultWorkers = 4

func (o Options) workers() int {
	if o.Workers <= 0 {
		return DefaultWorkers
	}
	return o.Workers
}

// invoke executes one task, converting panics and timeouts into a per-task
// error. The result error is already wrapped as a TaskExecutionError.
func invoke(ctx context.Context, t Task, timeout time.Duration) Completion {
	if t.Fn == nil {
		if len(t.Args) == 0 {
			return Completion{ID: t.ID, Err: &task.TaskExecutionError{
				TaskID: t.ID,
				Err:    fmt.Errorf("value node has no stored value"),
			}}
		}
		return Completion{ID: t.ID, Value: t.Args[0]}
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	value, err := call(ctx, t)
	if err != nil {
		return Completion{ID: t.ID, Err: &task.TaskExecutionError{TaskID: t.ID, Err: err}}
	}
	return Completion{ID: t.ID, Value: value}
}

// call runs the callable, recovering a panic into an error so one misbehaving
// task cannot take down the whole run.
func call(ctx context.Context, t Task) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callable panicked: %v", r)
		}
	}()
	return t.Fn(ctx, t.Args)
}
