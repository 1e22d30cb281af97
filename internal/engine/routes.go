package engine

import (
	"github.com/roach88/omnilink/internal/compiler"
	"github.com/roach88/omnilink/internal/ir"
)

// Predicate decides whether a route handles an event.
type Predicate interface {
	Match(ev ir.Event) bool
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(ev ir.Event) bool

// Match calls f(ev).
func (f PredicateFunc) Match(ev ir.Event) bool {
	return f(ev)
}

// TemplatePredicate matches events whose normalized template equals
// Normalized.
type TemplatePredicate struct {
	Normalized string
}

// ForTemplate builds a TemplatePredicate from raw template text.
func ForTemplate(template string) TemplatePredicate {
	return TemplatePredicate{Normalized: compiler.Normalize(template)}
}

// Match reports whether ev matched the template.
func (p TemplatePredicate) Match(ev ir.Event) bool {
	return ev.Matched && ev.NormalizedTemplate == p.Normalized
}

// Always matches every event, matched or not.
type Always struct{}

// Match returns true.
func (Always) Match(ir.Event) bool { return true }

// Matched matches every event that matched some template.
type Matched struct{}

// Match returns ev.Matched.
func (Matched) Match(ev ir.Event) bool { return ev.Matched }

// Handler produces the result of a routed event.
type Handler interface {
	Handle(ev ir.Event) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ev ir.Event) (any, error)

// Handle calls f(ev).
func (f HandlerFunc) Handle(ev ir.Event) (any, error) {
	return f(ev)
}

// Middleware observes every handled event.
type Middleware interface {
	Process(ev ir.Event) error
}

// MiddlewareFunc adapts a function to Middleware.
type MiddlewareFunc func(ev ir.Event) error

// Process calls f(ev).
func (f MiddlewareFunc) Process(ev ir.Event) error {
	return f(ev)
}

type route struct {
	predicate Predicate
	handler   Handler
}
