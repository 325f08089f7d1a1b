package app

import (
	"io"
	"log/slog"

	"github.com/vk/delayedgo/internal/builtins"
	"github.com/vk/delayedgo/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	registry *registry.Registry
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
// Results are written to outW; logs go to logW.
func NewApp(outW, logW io.Writer, cfg *Config) *App {
	logger := newLogger(cfg, logW)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	builtins.MustRegister(reg)
	logger.Debug("Builtin callables registered.", "names", reg.Names())

	return &App{
		outW:     outW,
		logger:   logger,
		registry: reg,
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}
