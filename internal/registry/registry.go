// Package registry holds named task callables. A name is what makes a
// callable transferable: process-pool workers resolve tasks by registry name,
// and named specs fingerprint stably across independently built graphs.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vk/delayedgo/internal/task"
)

// Registry maps callable names to functions for a single application
// instance. All operations are concurrency-safe.
type Registry struct {
	mutex sync.RWMutex
	fns   map[string]task.Func
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		fns: make(map[string]task.Func),
	}
}

// Register binds a name to a callable. Registering an already-used name is an
// error; names are identity, so silent replacement would let two processes
// disagree about what a spec means.
func (r *Registry) Register(name string, fn task.Func) error {
	if name == "" {
		return fmt.Errorf("registry: name cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("registry: callable for %q cannot be nil", name)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, exists := r.fns[name]; exists {
		return fmt.Errorf("registry: %q already registered", name)
	}
	r.fns[name] = fn
	return nil
}

// MustRegister is Register for program init paths, panicking on error.
func (r *Registry) MustRegister(name string, fn task.Func) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// Lookup returns the callable registered under name.
func (r *Registry) Lookup(name string) (task.Func, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	fn, ok := r.fns[name]
	return fn, ok
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	names := make([]string, 0, len(r.fns))
	for name := range r.fns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
