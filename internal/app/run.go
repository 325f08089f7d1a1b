package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/vk/delayedgo/internal/backend"
	"github.com/vk/delayedgo/internal/backend/procpool"
	"github.com/vk/delayedgo/internal/ctxlog"
	"github.com/vk/delayedgo/internal/hclgrid"
	"github.com/vk/delayedgo/internal/scheduler"
	"github.com/vk/delayedgo/internal/task"
)

// Run executes the main application logic based on the provided configuration.
func (a *App) Run(ctx context.Context, cfg *Config) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	graph, err := a.loadGraph(ctx, cfg.GridPath)
	if err != nil {
		return fmt.Errorf("failed to load grid: %w", err)
	}
	a.logger.Debug("Grid loaded into task graph.", "task_count", graph.Len())

	targets := make([]task.ID, 0, len(cfg.Targets))
	for _, t := range cfg.Targets {
		targets = append(targets, task.ID(t))
	}
	if len(targets) == 0 {
		targets = hclgrid.Sinks(graph)
		a.logger.Debug("No targets given, computing every sink task.", "targets", targets)
	}
	if len(targets) == 0 {
		a.logger.Warn("No tasks found in grid, execution not required.")
		return nil
	}

	b := a.newBackend(cfg)
	a.logger.Info("Starting execution.", "backend", b.Kind(), "targets", len(targets))

	res, runErr := scheduler.Run(ctx, graph, targets, b)
	if runErr != nil {
		var agg *task.AggregateFailure
		if !errors.As(runErr, &agg) {
			return runErr
		}
	}

	a.printResults(res, targets)
	if runErr != nil {
		return fmt.Errorf("execution failed: %w", runErr)
	}
	a.logger.Info("Execution finished.")
	return nil
}

// loadGraph loads a grid from a single file, or from every .hcl file under
// path when it names a directory.
func (a *App) loadGraph(ctx context.Context, path string) (*task.Graph, error) {
	loader := hclgrid.NewLoader(a.registry)
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return loader.LoadDir(ctx, path)
	}
	return loader.LoadFile(ctx, path)
}

// newBackend constructs the execution backend named by the config.
func (a *App) newBackend(cfg *Config) backend.Backend {
	opts := backend.Options{Workers: cfg.Workers}
	switch backend.Kind(cfg.Backend) {
	case backend.KindPool:
		return backend.NewPool(opts)
	case backend.KindProcPool:
		return procpool.New(procpool.Options{Workers: cfg.Workers})
	default:
		return backend.NewSerial(opts)
	}
}

// printResults writes one line per requested target, successes and failures
// alike, in sorted target order.
func (a *App) printResults(res scheduler.Result, targets []task.ID) {
	sorted := make([]task.ID, len(targets))
	copy(sorted, targets)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	for _, tgt := range sorted {
		outcome, ok := res[tgt]
		if !ok {
			continue
		}
		if outcome.Err != nil {
			fmt.Fprintf(a.outW, "%s: error: %v\n", tgt, outcome.Err)
			continue
		}
		fmt.Fprintf(a.outW, "%s = %v\n", tgt, outcome.Value)
	}
}
