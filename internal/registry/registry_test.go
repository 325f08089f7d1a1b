package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	echo := func(_ context.Context, args []any) (any, error) { return args, nil }

	t.Run("register and lookup", func(t *testing.T) {
		r := New()
		require.NoError(t, r.Register("echo", echo))

		fn, ok := r.Lookup("echo")
		require.True(t, ok)
		require.NotNil(t, fn)

		_, ok = r.Lookup("missing")
		assert.False(t, ok)
	})

	t.Run("duplicate names are rejected", func(t *testing.T) {
		r := New()
		require.NoError(t, r.Register("echo", echo))
		assert.ErrorContains(t, r.Register("echo", echo), "already registered")
	})

	t.Run("empty name and nil callable are rejected", func(t *testing.T) {
		r := New()
		assert.ErrorContains(t, r.Register("", echo), "cannot be empty")
		assert.ErrorContains(t, r.Register("nilfn", nil), "cannot be nil")
	})

	t.Run("names are sorted", func(t *testing.T) {
		r := New()
		r.MustRegister("zeta", echo)
		r.MustRegister("alpha", echo)
		assert.Equal(t, []string{"alpha", "zeta"}, r.Names())
	})
}
