package task

import "context"

// ID uniquely names a task within a Graph.
type ID string

// Func is the uniform calling convention for task callables. Arguments arrive
// fully resolved, in the positional order declared by the Spec.
type Func func(ctx context.Context, args []any) (any, error)

// ArgKind discriminates between the two kinds of task arguments.
type ArgKind int

const (
	// KindLiteral marks an argument whose value is stored inline.
	KindLiteral ArgKind = iota
	// KindRef marks an argument that refers to another task's result.
	KindRef
)

// Arg is a single positional argument of a Spec: either a literal value or a
// reference to another task, which doubles as a dependency edge.
type Arg struct {
	kind    ArgKind
	ref     ID
	literal any
}

// Literal wraps a concrete value as a task argument.
func Literal(v any) Arg {
	return Arg{kind: KindLiteral, literal: v}
}

// Ref wraps a task reference as a task argument, creating a dependency edge.
func Ref(id ID) Arg {
	return Arg{kind: KindRef, ref: id}
}

// Kind reports whether the argument is a literal or a reference.
func (a Arg) Kind() ArgKind { return a.kind }

// IsRef reports whether the argument references another task.
func (a Arg) IsRef() bool { return a.kind == KindRef }

// Ref returns the referenced task ID. It is only meaningful when IsRef is true.
func (a Arg) Ref() ID { return a.ref }

// Value returns the literal value. It is only meaningful when IsRef is false.
func (a Arg) Value() any { return a.literal }

// Spec describes one pending computation: a callable plus its ordered
// arguments. A Spec with a nil Func is a value node; it resolves to its single
// argument (a stored literal, or an alias of another task).
type Spec struct {
	// FuncName is the registry name of the callable, when it has one. Named
	// callables fingerprint stably across processes and are the only callables
	// a process-pool backend can transfer.
	FuncName string
	// Func executes the task. Nil for value nodes.
	Func Func
	// Args are the positional arguments, literals and references mixed.
	Args []Arg
}

// Deps returns the IDs this spec depends on, in argument order, deduplicated.
func (s *Spec) Deps() []ID {
	var deps []ID
	seen := make(map[ID]struct{})
	for _, a := range s.Args {
		if !a.IsRef() {
			continue
		}
		if _, ok := seen[a.Ref()]; ok {
			continue
		}
		seen[a.Ref()] = struct{}{}
		deps = append(deps, a.Ref())
	}
	return deps
}

// Value builds a Spec holding a literal value.
func Value(v any) *Spec {
	return &Spec{Args: []Arg{Literal(v)}}
}

// Call builds a Spec invoking fn with the given arguments. name may be empty
// for anonymous callables.
func Call(name string, fn Func, args ...Arg) *Spec {
	return &Spec{FuncName: name, Func: fn, Args: args}
}
