package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePositionalGridPath(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse([]string{"grid.hcl"}, &out)

	require.NoError(t, err)
	require.False(t, exit)
	require.NotNil(t, cfg)
	assert.Equal(t, "grid.hcl", cfg.GridPath)
	assert.Equal(t, "serial", cfg.Backend)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.Targets)
}

func TestParseAllFlags(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse([]string{
		"--grid", "pipeline.hcl",
		"--targets", "z, total,",
		"--backend", "pool",
		"--workers", "8",
		"--log-format", "text",
		"--log-level", "debug",
	}, &out)

	require.NoError(t, err)
	require.False(t, exit)
	require.NotNil(t, cfg)
	assert.Equal(t, "pipeline.hcl", cfg.GridPath)
	assert.Equal(t, []string{"z", "total"}, cfg.Targets)
	assert.Equal(t, "pool", cfg.Backend)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestParseShorthandGridFlag(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse([]string{"-g", "grid.hcl"}, &out)

	require.NoError(t, err)
	require.False(t, exit)
	assert.Equal(t, "grid.hcl", cfg.GridPath)
}

func TestParseGridFlagBeatsPositional(t *testing.T) {
	var out bytes.Buffer
	cfg, _, err := Parse([]string{"--grid", "flagged.hcl", "positional.hcl"}, &out)

	require.NoError(t, err)
	assert.Equal(t, "flagged.hcl", cfg.GridPath)
}

func TestParseHelpRequestsCleanExit(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse([]string{"-h"}, &out)

	require.NoError(t, err)
	assert.True(t, exit)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "Usage:")
}

func TestParseNoArgsPrintsUsage(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse(nil, &out)

	require.NoError(t, err)
	assert.True(t, exit)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "Usage:")
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"--no-such-flag", "grid.hcl"}},
		{"invalid log-format", []string{"--log-format", "yaml", "grid.hcl"}},
		{"invalid log-level", []string{"--log-level", "loud", "grid.hcl"}},
		{"invalid backend", []string{"--backend", "quantum", "grid.hcl"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			cfg, exit, err := Parse(tc.args, &out)

			require.Error(t, err)
			assert.False(t, exit)
			assert.Nil(t, cfg)

			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
		})
	}
}
