package procpool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/vk/delayedgo/internal/registry"
	"github.com/vk/delayedgo/internal/task"
)

// WorkerEnv marks a process as a pool worker child. The parent sets it when
// spawning; binaries embedding this backend must check IsWorker early in main
// and hand control to Serve.
const WorkerEnv = "DELAYEDGO_WORKER"

// IsWorker reports whether this process was spawned as a pool worker.
func IsWorker() bool {
	return os.Getenv(WorkerEnv) == "1"
}

// Serve runs the worker side of the pool protocol: decode a request, resolve
// the callable by registry name, execute, encode the response. It returns
// when the parent closes the request stream.
func Serve(ctx context.Context, r *registry.Registry, in io.Reader, out io.Writer) error {
	dec := msgpack.NewDecoder(in)
	dec.UseLooseInterfaceDecoding(true)
	enc := msgpack.NewEncoder(out)

	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("worker: decoding request: %w", err)
		}
		if err := enc.Encode(execute(ctx, r, req)); err != nil {
			return fmt.Errorf("worker: encoding response: %w", err)
		}
	}
}

// execute runs one request. Results are pre-marshaled so an unencodable value
// becomes a transfer-error response instead of corrupting the stream.
func execute(ctx context.Context, r *registry.Registry, req request) response {
	fn, ok := r.Lookup(req.Name)
	if !ok {
		return response{
			ID:       req.ID,
			Failed:   true,
			Transfer: true,
			ErrMsg:   fmt.Sprintf("callable %q is not registered in the worker", req.Name),
		}
	}

	value, err := run(ctx, fn, req.Args)
	if err != nil {
		return response{ID: req.ID, Failed: true, ErrMsg: err.Error()}
	}

	if _, err := msgpack.Marshal(value); err != nil {
		return response{
			ID:       req.ID,
			Failed:   true,
			Transfer: true,
			ErrMsg:   fmt.Sprintf("result cannot cross the process boundary: %v", err),
		}
	}
	return response{ID: req.ID, Value: value}
}

func run(ctx context.Context, fn task.Func, args []any) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callable panicked: %v", r)
		}
	}()
	return fn(ctx, args)
}
