package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/vk/delayedgo/internal/app"
	"github.com/vk/delayedgo/internal/backend/procpool"
	"github.com/vk/delayedgo/internal/builtins"
	"github.com/vk/delayedgo/internal/cli"
	"github.com/vk/delayedgo/internal/registry"
)

// main is the entrypoint for the delayedgo application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// When re-exec'd as a process-pool worker, serve tasks and nothing else.
	if procpool.IsWorker() {
		if err := runWorker(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	// The real main function handles errors and exit codes.
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(outW io.Writer, args []string) error {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	delayedApp := app.NewApp(outW, os.Stderr, appConfig)
	return delayedApp.Run(context.Background(), appConfig)
}

// runWorker is the child side of the procpool backend. It must register the
// same callables as the parent so registry names resolve identically.
func runWorker() error {
	reg := registry.New()
	builtins.MustRegister(reg)
	return procpool.Serve(context.Background(), reg, os.Stdin, os.Stdout)
}
