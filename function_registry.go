package ssar

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Function represents a callable registered against evaluators.
type Function func(args ...any) (any, error)

// FunctionRegistry stores custom predicate functions keyed by name.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

// NewFunctionRegistry constructs an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		functions: make(map[string]Function),
	}
}

// NewBuiltinRegistry returns a registry preloaded with the functions predicate
// expressions commonly need when comparing attribute values.
func NewBuiltinRegistry() *FunctionRegistry {
	r := NewFunctionRegistry()
	_ = r.Register("pow2", func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("ssar: pow2 expects 1 argument, got %d", len(args))
		}
		n, ok := NormalizeValue(args[0]).(int64)
		if !ok {
			return false, nil
		}
		return n > 0 && n&(n-1) == 0, nil
	})
	_ = r.Register("cmp", func(args ...any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("ssar: cmp expects 2 arguments, got %d", len(args))
		}
		c, ok := CompareNumbers(args[0], args[1])
		if !ok {
			return nil, fmt.Errorf("ssar: cmp requires numeric arguments")
		}
		return int64(c), nil
	})
	_ = r.Register("has_suffix", func(args ...any) (any, error) {
		if len(args) < 2 {
			return nil, fmt.Errorf("ssar: has_suffix expects a value and at least one suffix")
		}
		value := strings.ToLower(fmt.Sprint(args[0]))
		for _, suffix := range args[1:] {
			if strings.HasSuffix(value, strings.ToLower(fmt.Sprint(suffix))) {
				return true, nil
			}
		}
		return false, nil
	})
	return r
}

// Register stores fn under name guarding against duplicates.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	if fn == nil {
		return fmt.Errorf("ssar: function %q is nil", name)
	}
	if name == "" {
		return fmt.Errorf("ssar: function name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]Function)
	}
	key := strings.ToLower(name)
	if _, exists := r.functions[key]; exists {
		return fmt.Errorf("ssar: function %q already registered", name)
	}
	r.functions[key] = fn
	return nil
}

// Clone returns a shallow copy of the registry.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := &FunctionRegistry{
		functions: make(map[string]Function, len(r.functions)),
	}
	for name, fn := range r.functions {
		clone.functions[name] = fn
	}
	return clone
}

// Call executes the function registered for name.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("ssar: function registry is nil")
	}
	r.mu.RLock()
	fn := r.functions[strings.ToLower(name)]
	r.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("ssar: function %q not registered", name)
	}
	return fn(args...)
}

// Names returns registered function names sorted alphabetically.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
