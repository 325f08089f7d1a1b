// Package builtins registers the callables shipped with the CLI: enough
// arithmetic, aggregation, and file loading to express the classic
// load-count-sum pipelines in grid files. The engine itself treats these as
// opaque black boxes, same as any user-registered callable.
package builtins

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"reflect"

	"github.com/vk/delayedgo/internal/registry"
)

// Register installs every builtin into r.
func Register(r *registry.Registry) error {
	builtins := map[string]func(context.Context, []any) (any, error){
		"inc":        inc,
		"add":        add,
		"sum":        sum,
		"len":        length,
		"count":      length,
		"read_lines": readLines,
	}
	for name, fn := range builtins {
		if err := r.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// MustRegister is Register for program init paths, panicking on error.
func MustRegister(r *registry.Registry) {
	if err := Register(r); err != nil {
		panic(err)
	}
}

func inc(_ context.Context, args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("inc: want 1 argument, got %d", len(args))
	}
	n, err := toInt64(args[0])
	if err != nil {
		return nil, fmt.Errorf("inc: %w", err)
	}
	return n + 1, nil
}

func add(_ context.Context, args []any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("add: want 2 arguments, got %d", len(args))
	}
	a, err := toInt64(args[0])
	if err != nil {
		return nil, fmt.Errorf("add: %w", err)
	}
	b, err := toInt64(args[1])
	if err != nil {
		return nil, fmt.Errorf("add: %w", err)
	}
	return a + b, nil
}

// sum totals its arguments. A single slice argument is summed element-wise,
// so both sum(a, b, c) and sum([a, b, c]) work.
func sum(_ context.Context, args []any) (any, error) {
	if len(args) == 1 {
		if elems, ok := asSlice(args[0]); ok {
			args = elems
		}
	}
	var total int64
	for _, a := range args {
		n, err := toInt64(a)
		if err != nil {
			return nil, fmt.Errorf("sum: %w", err)
		}
		total += n
	}
	return total, nil
}

func length(_ context.Context, args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("len: want 1 argument, got %d", len(args))
	}
	switch v := args[0].(type) {
	case string:
		return int64(len(v)), nil
	case nil:
		return int64(0), nil
	}
	rv := reflect.ValueOf(args[0])
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return int64(rv.Len()), nil
	}
	return nil, fmt.Errorf("len: unsupported type %T", args[0])
}

func readLines(_ context.Context, args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("read_lines: want 1 argument, got %d", len(args))
	}
	path, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("read_lines: want a file path string, got %T", args[0])
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read_lines: %w", err)
	}
	defer f.Close()

	var lines []any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read_lines: %w", err)
	}
	return lines, nil
}

// toInt64 normalizes the numeric representations that reach callables: Go
// ints from library callers, int64/float64 from grid files, and whatever
// integer width msgpack chose on the way back from a pool worker.
func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float32:
		return floatToInt64(float64(n))
	case float64:
		return floatToInt64(n)
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

// floatToInt64 accepts only floats that are exactly an integer; truncating
// 2.9 to 2 would corrupt results silently.
func floatToInt64(f float64) (int64, error) {
	i := int64(f)
	if float64(i) != f {
		return 0, fmt.Errorf("not an integer: %v", f)
	}
	return i, nil
}

func asSlice(v any) ([]any, bool) {
	if elems, ok := v.([]any); ok {
		return elems, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	elems := make([]any, rv.Len())
	for i := range elems {
		elems[i] = rv.Index(i).Interface()
	}
	return elems, true
}
