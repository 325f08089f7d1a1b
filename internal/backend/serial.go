package backend

import (
	"context"

	"github.com/vk/delayedgo/internal/ctxlog"
	"github.com/vk/delayedgo/internal/task"
)

// Serial executes strictly one task at a time, in the order tasks arrive.
// The scheduler enqueues ready tasks in ascending ID order, so serial runs
// are fully deterministic and reproducible in tests.
type Serial struct {
	opts Options
}

// NewSerial creates a serial backend.
func NewSerial(opts Options) *Serial {
	return &Serial{opts: opts}
}

// Kind implements Backend.
func (s *Serial) Kind() Kind { return KindSerial }

// Start implements Backend. A single goroutine drains the task channel.
func (s *Serial) Start(ctx context.Context, tasks <-chan Task, completions chan<- Completion) {
	logger := ctxlog.FromContext(ctx)
	go func() {
		logger.Debug("Serial backend started.")
		for t := range tasks {
			if err := ctx.Err(); err != nil {
				completions <- Completion{ID: t.ID, Err: &task.TaskExecutionError{TaskID: t.ID, Err: err}}
				continue
			}
			logger.Debug("Executing task.", "taskID", t.ID)
			completions <- invoke(ctx, t, s.opts.TaskTimeout)
		}
		logger.Debug("Serial backend finished.")
	}()
}
