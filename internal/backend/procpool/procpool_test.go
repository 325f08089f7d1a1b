package procpool

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/delayedgo/internal/backend"
	"github.com/vk/delayedgo/internal/registry"
	"github.com/vk/delayedgo/internal/task"
)

// workerRegistry is the callable set served by both the in-process Serve tests
// and the re-exec'd worker children.
func workerRegistry() *registry.Registry {
	r := registry.New()
	r.MustRegister("inc", func(_ context.Context, args []any) (any, error) {
		n, ok := args[0].(int64)
		if !ok {
			return nil, fmt.Errorf("inc wants int64, got %T", args[0])
		}
		return n + 1, nil
	})
	r.MustRegister("boom", func(_ context.Context, _ []any) (any, error) {
		return nil, fmt.Errorf("boom")
	})
	r.MustRegister("panicky", func(_ context.Context, _ []any) (any, error) {
		panic("kaboom")
	})
	r.MustRegister("leaky", func(_ context.Context, _ []any) (any, error) {
		return make(chan int), nil
	})
	return r
}

// TestMain routes re-exec'd test binaries into worker mode, mirroring what an
// embedding binary's main does.
func TestMain(m *testing.M) {
	if IsWorker() {
		if err := Serve(context.Background(), workerRegistry(), os.Stdin, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// serveChild runs Serve in-process over pipes, standing in for a real child.
func serveChild(t *testing.T) *child {
	t.Helper()
	// OS pipes, like the real stdin/stdout pipes, are buffered; synchronous
	// io.Pipe deadlocks on msgpack's zero-length writes for empty strings.
	reqR, reqW, err := os.Pipe()
	require.NoError(t, err)
	respR, respW, err := os.Pipe()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- Serve(context.Background(), workerRegistry(), reqR, respW)
	}()
	t.Cleanup(func() {
		_ = reqW.Close()
		require.NoError(t, <-done)
	})

	c := newChildConn(reqW, respR)
	return c
}

func TestServeExecutesNamedCallable(t *testing.T) {
	c := serveChild(t)

	got := c.run(context.Background(), backend.Task{
		ID:   "n",
		Name: "inc",
		Fn:   func(_ context.Context, _ []any) (any, error) { return nil, nil },
		Args: []any{int64(41)},
	})

	require.NoError(t, got.Err)
	assert.Equal(t, int64(42), got.Value)
}

func TestServeUnknownCallableIsTransferError(t *testing.T) {
	c := serveChild(t)

	got := c.run(context.Background(), backend.Task{
		ID:   "n",
		Name: "no-such-fn",
		Fn:   func(_ context.Context, _ []any) (any, error) { return nil, nil },
	})

	require.Error(t, got.Err)
	var transfer *task.TransferError
	require.ErrorAs(t, got.Err, &transfer)
	assert.Contains(t, transfer.Error(), "not registered")
}

func TestServeCallableFailure(t *testing.T) {
	c := serveChild(t)

	got := c.run(context.Background(), backend.Task{
		ID:   "n",
		Name: "boom",
		Fn:   func(_ context.Context, _ []any) (any, error) { return nil, nil },
	})

	require.Error(t, got.Err)
	var execErr *task.TaskExecutionError
	require.ErrorAs(t, got.Err, &execErr)
	assert.ErrorContains(t, got.Err, "boom")
}

func TestServeRecoversWorkerPanic(t *testing.T) {
	c := serveChild(t)

	got := c.run(context.Background(), backend.Task{
		ID:   "n",
		Name: "panicky",
		Fn:   func(_ context.Context, _ []any) (any, error) { return nil, nil },
	})

	require.Error(t, got.Err)
	assert.ErrorContains(t, got.Err, "callable panicked")
}

func TestServeUnencodableResultIsTransferError(t *testing.T) {
	c := serveChild(t)

	got := c.run(context.Background(), backend.Task{
		ID:   "n",
		Name: "leaky",
		Fn:   func(_ context.Context, _ []any) (any, error) { return nil, nil },
	})

	require.Error(t, got.Err)
	var transfer *task.TransferError
	require.ErrorAs(t, got.Err, &transfer)
	assert.Contains(t, transfer.Error(), "cannot cross the process boundary")
}

func TestRunRejectsAnonymousCallable(t *testing.T) {
	c := serveChild(t)

	got := c.run(context.Background(), backend.Task{
		ID: "anon",
		Fn: func(_ context.Context, _ []any) (any, error) { return 1, nil },
	})

	require.Error(t, got.Err)
	var transfer *task.TransferError
	require.ErrorAs(t, got.Err, &transfer)
	assert.Contains(t, transfer.Error(), "register it by name")
}

func TestRunRejectsUnencodableArguments(t *testing.T) {
	c := serveChild(t)

	got := c.run(context.Background(), backend.Task{
		ID:   "n",
		Name: "inc",
		Fn:   func(_ context.Context, _ []any) (any, error) { return nil, nil },
		Args: []any{make(chan int)},
	})

	require.Error(t, got.Err)
	var transfer *task.TransferError
	require.ErrorAs(t, got.Err, &transfer)
}

func TestRunResolvesValueNodesLocally(t *testing.T) {
	c := serveChild(t)

	got := c.run(context.Background(), backend.Task{ID: "v", Args: []any{"hello"}})

	require.NoError(t, got.Err)
	assert.Equal(t, "hello", got.Value)
}

// TestProcPoolAgainstRealChildren re-execs the test binary as workers and runs
// a small batch through the full pipe protocol.
func TestProcPoolAgainstRealChildren(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns child processes")
	}

	p := New(Options{Workers: 2, Command: []string{os.Args[0]}})
	assert.Equal(t, backend.KindProcPool, p.Kind())

	tasks := make(chan backend.Task, 3)
	completions := make(chan backend.Completion, 3)
	p.Start(context.Background(), tasks, completions)

	noop := func(_ context.Context, _ []any) (any, error) { return nil, nil }
	tasks <- backend.Task{ID: "a", Name: "inc", Fn: noop, Args: []any{int64(1)}}
	tasks <- backend.Task{ID: "b", Name: "inc", Fn: noop, Args: []any{int64(2)}}
	tasks <- backend.Task{ID: "c", Name: "boom", Fn: noop}
	close(tasks)

	out := make(map[task.ID]backend.Completion, 3)
	for i := 0; i < 3; i++ {
		c := <-completions
		out[c.ID] = c
	}

	require.NoError(t, out["a"].Err)
	assert.Equal(t, int64(2), out["a"].Value)
	require.NoError(t, out["b"].Err)
	assert.Equal(t, int64(3), out["b"].Value)
	require.Error(t, out["c"].Err)
	assert.ErrorContains(t, out["c"].Err, "boom")
}
