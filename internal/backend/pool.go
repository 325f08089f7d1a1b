package backend

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/vk/delayedgo/internal/ctxlog"
	"github.com/vk/delayedgo/internal/task"
)

// Pool executes up to N tasks concurrently in goroutines sharing process
// memory. Tasks must be free of unsynchronized shared mutable state; that
// burden is on the task author, not the scheduler.
type Pool struct {
	opts Options
}

// NewPool creates a pooled backend with opts.Workers concurrency.
func NewPool(opts Options) *Pool {
	return &Pool{opts: opts}
}

// Kind implements Backend.
func (p *Pool) Kind() Kind { return KindPool }

// Start implements Backend. A dispatcher goroutine acquires a semaphore slot
// per task and runs each in its own goroutine, so no more than Workers tasks
// execute at once.
func (p *Pool) Start(ctx context.Context, tasks <-chan Task, completions chan<- Completion) {
	logger := ctxlog.FromContext(ctx)
	workers := p.opts.workers()
	sem := semaphore.NewWeighted(int64(workers))

	go func() {
		logger.Debug("Pool backend started.", "workers", workers)
		for t := range tasks {
			if err := sem.Acquire(ctx, 1); err != nil {
				// Context canceled while waiting for a slot. The task was
				// dispatched, so it still owes a completion, but it is never
				// run.
				completions <- Completion{ID: t.ID, Err: &task.TaskExecutionError{TaskID: t.ID, Err: err}}
				continue
			}
			go func(t Task) {
				defer sem.Release(1)
				logger.Debug("Executing task.", "taskID", t.ID)
				completions <- invoke(ctx, t, p.opts.TaskTimeout)
			}(t)
		}
		logger.Debug("Pool backend finished dispatching.")
	}()
}
