package app

import (
	"errors"
	"fmt"

	"github.com/vk/delayedgo/internal/backend"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	GridPath string // hcl grid file
	Targets  []string

	Backend   string
	Workers   int
	LogFormat string
	LogLevel  string
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.GridPath == "" {
		return nil, errors.New("GridPath is a required configuration field and cannot be empty")
	}

	switch backend.Kind(cfg.Backend) {
	case backend.KindSerial, backend.KindPool, backend.KindProcPool:
	case "":
		cfg.Backend = string(backend.KindSerial)
	default:
		return nil, fmt.Errorf("unknown backend %q: must be 'serial', 'pool', or 'procpool'", cfg.Backend)
	}

	switch cfg.LogFormat {
	case "text", "json":
	case "":
		cfg.LogFormat = "json"
	default:
		return nil, fmt.Errorf("unknown log format %q: must be 'text' or 'json'", cfg.LogFormat)
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if _, ok := logLevels[cfg.LogLevel]; !ok {
		return nil, fmt.Errorf("unknown log level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel)
	}

	return &cfg, nil
}
