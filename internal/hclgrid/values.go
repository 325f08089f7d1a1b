package hclgrid

import (
	"fmt"
	"math/big"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/delayedgo/internal/task"
)

// evalStatic evaluates an expression with no variables in scope and converts
// the result to a plain Go value.
func evalStatic(expr hcl.Expression) (any, error) {
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("expression is not statically evaluable: %w", diags)
	}
	return ctyToGo(val)
}

// evalString is evalStatic restricted to strings.
func evalString(expr hcl.Expression) (string, error) {
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return "", fmt.Errorf("expression is not statically evaluable: %w", diags)
	}
	if val.Type() != cty.String || val.IsNull() {
		return "", fmt.Errorf("expected a string, got %s", val.Type().FriendlyName())
	}
	return val.AsString(), nil
}

// ctyToGo converts a cty.Value to a Go value. Whole numbers become int64 so
// arithmetic callables see integers, everything else follows the natural
// mapping.
func ctyToGo(val cty.Value) (any, error) {
	if !val.IsKnown() || val.IsNull() {
		return nil, nil
	}
	if val.Type().IsPrimitiveType() {
		switch val.Type() {
		case cty.String:
			return val.AsString(), nil
		case cty.Number:
			bf := val.AsBigFloat()
			if i, acc := bf.Int64(); acc == big.Exact {
				return i, nil
			}
			f, _ := bf.Float64()
			return f, nil
		case cty.Bool:
			return val.True(), nil
		default:
			return nil, fmt.Errorf("unsupported primitive type: %s", val.Type().FriendlyName())
		}
	}
	if val.Type().IsObjectType() || val.Type().IsMapType() {
		out := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			converted, err := ctyToGo(v)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = converted
		}
		return out, nil
	}
	if val.Type().IsTupleType() || val.Type().IsListType() {
		var out []any
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			converted, err := ctyToGo(v)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported cty.Type for conversion: %s", val.Type().FriendlyName())
}

// Sinks returns the tasks no other task depends on, in insertion order. They
// are the default compute targets when the caller names none.
func Sinks(g *task.Graph) []task.ID {
	depended := make(map[task.ID]struct{})
	for _, id := range g.IDs() {
		deps, _ := g.Deps(id)
		for _, dep := range deps {
			depended[dep] = struct{}{}
		}
	}
	var sinks []task.ID
	for _, id := range g.IDs() {
		if _, ok := depended[id]; !ok {
			sinks = append(sinks, id)
		}
	}
	return sinks
}
