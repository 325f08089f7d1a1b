package task

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint(t *testing.T) {
	t.Run("identical named specs match", func(t *testing.T) {
		a := Call("inc", noop, Ref("x"), Literal(5))
		b := Call("inc", noop, Ref("x"), Literal(5))
		assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	})

	t.Run("named specs match regardless of function identity", func(t *testing.T) {
		other := func(_ context.Context, _ []any) (any, error) { return nil, nil }
		a := Call("inc", noop, Ref("x"))
		b := Call("inc", other, Ref("x"))
		assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	})

	t.Run("different names differ", func(t *testing.T) {
		a := Call("inc", noop, Ref("x"))
		b := Call("dec", noop, Ref("x"))
		assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	})

	t.Run("different literals differ", func(t *testing.T) {
		assert.NotEqual(t, Value(1).Fingerprint(), Value(2).Fingerprint())
	})

	t.Run("literal type matters", func(t *testing.T) {
		assert.NotEqual(t, Value(1).Fingerprint(), Value("1").Fingerprint())
	})

	t.Run("refs and literals are distinct", func(t *testing.T) {
		a := Call("inc", noop, Ref("x"))
		b := Call("inc", noop, Literal("x"))
		assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	})

	t.Run("anonymous callables digest by identity", func(t *testing.T) {
		f := func(_ context.Context, _ []any) (any, error) { return 1, nil }
		g := func(_ context.Context, _ []any) (any, error) { return 2, nil }
		assert.Equal(t, Call("", f).Fingerprint(), Call("", f).Fingerprint())
		assert.NotEqual(t, Call("", f).Fingerprint(), Call("", g).Fingerprint())
	})
}
