// Package types holds the named value types that template tokens refer to.
//
// A type is a match pattern plus an optional converter. Templates reference
// types by name ("[n:int]"); the compiler resolves the pattern at compile
// time and the engine runs the converter on every captured value.
//
// Names are case-insensitive. Registering an existing name overwrites it;
// patterns that were already compiled keep the pattern they resolved.
package types

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Converter turns a captured string into a typed value.
// Converters report failure with a *ConversionError.
type Converter func(raw string) (any, error)

// Spec is one registered type.
type Spec struct {
	// Name is the lower-cased registry key.
	Name string

	// Pattern is the regular expression a capture of this type must match.
	Pattern string

	// Convert is optional. A nil converter leaves captures as strings.
	Convert Converter
}

// Registry maps type names to specs.
//
// Thread-safety: all methods are safe for concurrent use. Engines read the
// registry on every parse while adapters may register types at runtime.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]Spec
}

// New creates a registry with the default types installed.
func New() *Registry {
	r := &Registry{specs: make(map[string]Spec)}
	installDefaults(r)
	return r
}

// Register stores the spec under the lower-cased name, replacing any
// previous definition. The pattern is not validated here; an invalid
// pattern surfaces when a template using it is compiled.
func (r *Registry) Register(name, pattern string, convert Converter) {
	key := strings.ToLower(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[key] = Spec{Name: key, Pattern: pattern, Convert: convert}
}

// Get looks up a type by name, ignoring case.
func (r *Registry) Get(name string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[strings.ToLower(name)]
	return spec, ok
}

// Available returns a snapshot of every registered name and its pattern.
func (r *Registry) Available() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.specs))
	for name, spec := range r.specs {
		out[name] = spec.Pattern
	}
	return out
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Convert applies the named type's converter to raw.
//
// It returns raw unchanged when the type is unknown or has no converter,
// and (raw, err) when the converter fails or panics, so callers that
// want best-effort typing can ignore the error.
func (r *Registry) Convert(name, raw string) (v any, err error) {
	spec, ok := r.Get(name)
	if !ok || spec.Convert == nil {
		return raw, nil
	}
	defer func() {
		if p := recover(); p != nil {
			v, err = raw, &ConversionError{Type: spec.Name, Value: raw, Err: fmt.Errorf("converter panicked: %v", p)}
		}
	}()
	v, err = spec.Convert(raw)
	if err != nil {
		return raw, err
	}
	return v, nil
}
