// Package hclgrid loads declarative HCL grid files into a task graph. Each
// `task` block either holds a literal value or calls a registered function;
// `task.<name>` traversals inside args become dependency edges, mirroring how
// expression references imply ordering in declarative pipeline tools.
package hclgrid

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/delayedgo/internal/ctxlog"
	"github.com/vk/delayedgo/internal/fsutil"
	"github.com/vk/delayedgo/internal/registry"
	"github.com/vk/delayedgo/internal/task"
)

// Loader translates grid files against a registry of named callables.
type Loader struct {
	reg *registry.Registry
}

// NewLoader creates a grid file loader.
func NewLoader(reg *registry.Registry) *Loader {
	return &Loader{reg: reg}
}

// taskBlock is a raw `task "<name>" { ... }` block. The body is kept opaque
// and read attribute-by-attribute so argument expressions stay inspectable.
type taskBlock struct {
	Name string   `hcl:"name,label"`
	Body hcl.Body `hcl:",remain"`
}

// gridRoot is the top-level structure of a grid file.
type gridRoot struct {
	Tasks  []*taskBlock `hcl:"task,block"`
	Remain hcl.Body     `hcl:",remain"`
}

// LoadFile parses and translates one grid file.
func (l *Loader) LoadFile(ctx context.Context, path string) (*task.Graph, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse grid file %s: %w", path, diags)
	}
	return l.translate(ctx, file.Body)
}

// LoadDir loads every .hcl file under dir into a single graph. Files are
// translated in sorted path order and may reference tasks defined in other
// files; task names must be unique across the whole directory.
func (l *Loader) LoadDir(ctx context.Context, dir string) (*task.Graph, error) {
	paths, err := fsutil.FindFilesByExtension(dir, ".hcl")
	if err != nil {
		return nil, fmt.Errorf("failed to scan grid directory %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no .hcl grid files found under %s", dir)
	}

	parser := hclparse.NewParser()
	graph := task.New()
	seen := make(map[string]struct{})
	for _, path := range paths {
		file, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse grid file %s: %w", path, diags)
		}
		if err := l.translateInto(ctx, file.Body, graph, seen); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := validateRefs(graph); err != nil {
		return nil, err
	}
	return graph, nil
}

// Load parses and translates grid source from memory; filename only labels
// diagnostics.
func (l *Loader) Load(ctx context.Context, filename string, src []byte) (*task.Graph, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse grid source %s: %w", filename, diags)
	}
	return l.translate(ctx, file.Body)
}

func (l *Loader) translate(ctx context.Context, body hcl.Body) (*task.Graph, error) {
	graph := task.New()
	if err := l.translateInto(ctx, body, graph, make(map[string]struct{})); err != nil {
		return nil, err
	}
	if err := validateRefs(graph); err != nil {
		return nil, err
	}
	return graph, nil
}

// translateInto decodes one body's task blocks into graph. The seen set spans
// bodies so duplicate names across a grid directory are caught.
func (l *Loader) translateInto(ctx context.Context, body hcl.Body, graph *task.Graph, seen map[string]struct{}) error {
	logger := ctxlog.FromContext(ctx)

	var root gridRoot
	if diags := gohcl.DecodeBody(body, nil, &root); diags.HasErrors() {
		return fmt.Errorf("failed to decode grid blocks: %w", diags)
	}
	logger.Debug("Grid file decoded.", "task_count", len(root.Tasks))

	for _, block := range root.Tasks {
		if _, dup := seen[block.Name]; dup {
			return fmt.Errorf("duplicate task definition '%s'", block.Name)
		}
		seen[block.Name] = struct{}{}

		spec, err := l.translateTask(block)
		if err != nil {
			return err
		}
		if err := graph.Add(task.ID(block.Name), spec); err != nil {
			return err
		}
		logger.Debug("Added grid task.", "id", block.Name, "deps", spec.Deps())
	}
	return nil
}

// validateRefs rejects dangling references. Forward references are legal
// within and across files; every reference just has to resolve somewhere
// before the scheduler sees the graph.
func validateRefs(graph *task.Graph) error {
	for _, id := range graph.IDs() {
		deps, _ := graph.Deps(id)
		for _, dep := range deps {
			if !graph.Has(dep) {
				return fmt.Errorf("task '%s' references undefined task '%s'", id, dep)
			}
		}
	}
	return nil
}

// translateTask converts one block into a value node or a named call spec.
func (l *Loader) translateTask(block *taskBlock) (*task.Spec, error) {
	attrs, diags := block.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("task '%s': %w", block.Name, diags)
	}

	literalAttr := attrs["literal"]
	callAttr := attrs["call"]
	argsAttr := attrs["args"]
	for name := range attrs {
		switch name {
		case "literal", "call", "args":
		default:
			return nil, fmt.Errorf("task '%s': unsupported attribute %q", block.Name, name)
		}
	}

	switch {
	case literalAttr != nil && callAttr != nil:
		return nil, fmt.Errorf("task '%s': 'literal' and 'call' are mutually exclusive", block.Name)

	case literalAttr != nil:
		if argsAttr != nil {
			return nil, fmt.Errorf("task '%s': a literal task takes no 'args'", block.Name)
		}
		val, err := evalStatic(literalAttr.Expr)
		if err != nil {
			return nil, fmt.Errorf("task '%s': literal: %w", block.Name, err)
		}
		return task.Value(val), nil

	case callAttr != nil:
		name, err := evalString(callAttr.Expr)
		if err != nil {
			return nil, fmt.Errorf("task '%s': call: %w", block.Name, err)
		}
		fn, ok := l.reg.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("task '%s': unknown callable %q", block.Name, name)
		}
		args, err := translateArgs(argsAttr)
		if err != nil {
			return nil, fmt.Errorf("task '%s': %w", block.Name, err)
		}
		return task.Call(name, fn, args...), nil

	default:
		return nil, fmt.Errorf("task '%s': needs either 'literal' or 'call'", block.Name)
	}
}

// translateArgs splits an `args = [...]` list into task arguments. Elements
// whose expression traverses `task.<name>` become references; everything else
// must evaluate statically and is stored as a literal.
func translateArgs(attr *hcl.Attribute) ([]task.Arg, error) {
	if attr == nil {
		return nil, nil
	}
	exprs, diags := hcl.ExprList(attr.Expr)
	if diags.HasErrors() {
		return nil, fmt.Errorf("'args' must be a list: %w", diags)
	}

	args := make([]task.Arg, 0, len(exprs))
	for i, expr := range exprs {
		ref, ok, err := taskReference(expr)
		if err != nil {
			return nil, fmt.Errorf("args[%d]: %w", i, err)
		}
		if ok {
			args = append(args, task.Ref(ref))
			continue
		}
		val, err := evalStatic(expr)
		if err != nil {
			return nil, fmt.Errorf("args[%d]: %w", i, err)
		}
		args = append(args, task.Literal(val))
	}
	return args, nil
}

// taskReference recognizes an argument that is exactly a `task.<name>`
// traversal. Task results do not exist at load time, so an expression that
// merely mentions task.* (arithmetic, string templates) cannot be evaluated
// and is an error rather than a silently truncated reference.
func taskReference(expr hcl.Expression) (task.ID, bool, error) {
	traversal, diags := hcl.AbsTraversalForExpr(expr)
	if !diags.HasErrors() && traversal.RootName() == "task" {
		if len(traversal) < 2 {
			return "", false, fmt.Errorf("'task' must be followed by a task name, like task.a")
		}
		nameAttr, ok := traversal[1].(hcl.TraverseAttr)
		if !ok {
			return "", false, fmt.Errorf("'task' must be followed by a task name, like task.a")
		}
		return task.ID(nameAttr.Name), true, nil
	}

	for _, v := range expr.Variables() {
		if v.RootName() == "task" {
			return "", false, fmt.Errorf("a task reference must stand alone as task.<name>; computing over a task result needs its own task")
		}
	}
	return "", false, nil
}
