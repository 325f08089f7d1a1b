// Package procpool implements the process-pool execution backend: up to N
// re-exec'd worker children with isolated memory, fed tasks over msgpack
// pipes. Only registry-named callables with msgpack-representable arguments
// and results can cross the boundary; anything else surfaces as a
// TransferError for that task.
package procpool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/vk/delayedgo/internal/backend"
	"github.com/vk/delayedgo/internal/ctxlog"
	"github.com/vk/delayedgo/internal/task"
)

// Options tunes the process pool. The zero value re-execs the current binary
// with backend.DefaultWorkers children.
type Options struct {
	// Workers is the number of child processes. Non-positive means
	// backend.DefaultWorkers.
	Workers int
	// Command is the worker command line. Empty means re-exec the current
	// executable; the child must route to Serve when IsWorker reports true.
	Command []string
	// Env is appended to the inherited environment of each child.
	Env []string
}

func (o Options) workers() int {
	if o.Workers <= 0 {
		return backend.DefaultWorkers
	}
	return o.Workers
}

// ProcPool is the parent side of the pool.
type ProcPool struct {
	opts Options
}

// New creates a process-pool backend.
func New(opts Options) *ProcPool {
	return &ProcPool{opts: opts}
}

// Kind implements backend.Backend.
func (p *ProcPool) Kind() backend.Kind { return backend.KindProcPool }

// Start implements backend.Backend. Each worker goroutine owns one child
// process and feeds it tasks sequentially; N workers give N-way parallelism.
// Canceling ctx kills the children, forcibly terminating in-flight tasks.
func (p *ProcPool) Start(ctx context.Context, tasks <-chan backend.Task, completions chan<- backend.Completion) {
	logger := ctxlog.FromContext(ctx)
	workers := p.opts.workers()
	logger.Debug("Process pool starting.", "workers", workers)
	for i := 0; i < workers; i++ {
		go p.worker(ctx, i, tasks, completions)
	}
}

func (p *ProcPool) worker(ctx context.Context, workerID int, tasks <-chan backend.Task, completions chan<- backend.Completion) {
	logger := ctxlog.FromContext(ctx).With("workerID", workerID)

	child, err := p.spawn(ctx)
	if err != nil {
		logger.Error("Failed to spawn worker child.", "error", err)
		// Every task this worker would have served still owes a completion.
		for t := range tasks {
			completions <- backend.Completion{ID: t.ID, Err: &task.TaskExecutionError{
				TaskID: t.ID,
				Err:    fmt.Errorf("spawning pool worker: %w", err),
			}}
		}
		return
	}
	defer child.stop()
	logger.Debug("Worker child spawned.", "pid", child.cmd.Process.Pid)

	for t := range tasks {
		completions <- child.run(ctx, t)
	}
	logger.Debug("Worker finished.")
}

// child is one spawned worker process with its encoder/decoder pair.
type child struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	enc   *msgpack.Encoder
	dec   *msgpack.Decoder
}

func (p *ProcPool) spawn(ctx context.Context) (*child, error) {
	argv := p.opts.Command
	if len(argv) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locating current executable: %w", err)
		}
		argv = []string{exe}
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), WorkerEnv+"=1")
	cmd.Env = append(cmd.Env, p.opts.Env...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	c := newChildConn(stdin, stdout)
	c.cmd = cmd
	return c, nil
}

// newChildConn wires the msgpack codec pair around a request/response stream.
func newChildConn(in io.WriteCloser, out io.Reader) *child {
	dec := msgpack.NewDecoder(out)
	dec.UseLooseInterfaceDecoding(true)
	return &child{
		stdin: in,
		enc:   msgpack.NewEncoder(in),
		dec:   dec,
	}
}

// run sends one task to the child and waits for its response. Transferability
// is checked on the parent side before anything hits the pipe.
func (c *child) run(ctx context.Context, t backend.Task) backend.Completion {
	if t.Fn == nil {
		// Value nodes resolve in the parent; their values already live here.
		if len(t.Args) == 0 {
			return backend.Completion{ID: t.ID, Err: &task.TaskExecutionError{
				TaskID: t.ID,
				Err:    errors.New("value node has no stored value"),
			}}
		}
		return backend.Completion{ID: t.ID, Value: t.Args[0]}
	}

	if t.Name == "" {
		return backend.Completion{ID: t.ID, Err: &task.TransferError{
			TaskID: t.ID,
			Err:    errors.New("anonymous callable cannot cross the process boundary; register it by name"),
		}}
	}

	req := request{ID: string(t.ID), Name: t.Name, Args: t.Args}
	if _, err := msgpack.Marshal(req); err != nil {
		return backend.Completion{ID: t.ID, Err: &task.TransferError{
			TaskID: t.ID,
			Err:    fmt.Errorf("arguments cannot cross the process boundary: %w", err),
		}}
	}

	if err := c.enc.Encode(req); err != nil {
		return c.pipeFailure(t.ID, err)
	}
	var resp response
	if err := c.dec.Decode(&resp); err != nil {
		return c.pipeFailure(t.ID, err)
	}

	switch {
	case resp.Failed && resp.Transfer:
		return backend.Completion{ID: t.ID, Err: &task.TransferError{TaskID: t.ID, Err: errors.New(resp.ErrMsg)}}
	case resp.Failed:
		return backend.Completion{ID: t.ID, Err: &task.TaskExecutionError{TaskID: t.ID, Err: errors.New(resp.ErrMsg)}}
	default:
		return backend.Completion{ID: t.ID, Value: resp.Value}
	}
}

// pipeFailure reports a broken child pipe, usually a crashed or killed child.
func (c *child) pipeFailure(id task.ID, err error) backend.Completion {
	return backend.Completion{ID: id, Err: &task.TaskExecutionError{
		TaskID: id,
		Err:    fmt.Errorf("pool worker pipe: %w", err),
	}}
}

// stop closes the child's stdin so it exits cleanly, then reaps it.
func (c *child) stop() {
	_ = c.stdin.Close()
	_ = c.cmd.Wait()
}
