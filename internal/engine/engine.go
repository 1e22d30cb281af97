package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/roach88/omnilink/internal/compiler"
	"github.com/roach88/omnilink/internal/ir"
	"github.com/roach88/omnilink/internal/types"
)

// Counter keys.
const (
	CounterCalls           = "handle.calls"
	CounterOKTrue          = "handle.ok.true"
	CounterOKFalse         = "handle.ok.false"
	CounterRouteError      = "handle.route.error"
	CounterMiddlewareError = "handle.middleware.error"
)

// Engine matches text commands against templates and dispatches them.
//
// Thread-safety model:
//   - Handle, Parse and every registration method are safe from any goroutine
//   - one mutex guards patterns, routes, middleware, history and counters
//   - handlers and middleware run outside the lock, against a point-in-time
//     snapshot of the route and middleware lists
//
// INVARIANTS:
//   - patterns, routes and middleware are append-only
//   - the patterns slice is copy-on-write; a reader's snapshot never changes
//   - history never holds more than its capacity
type Engine struct {
	types  *types.Registry
	clock  Clock
	seq    *Sequence
	ids    IDGenerator
	logger *slog.Logger

	historySize int

	mu       sync.Mutex
	patterns []*compiler.Pattern
	routes   []route
	before   []Middleware
	after    []Middleware
	history  *history
	counters map[string]int64
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithTypes sets the type registry templates are compiled against.
// Default: types.New().
func WithTypes(reg *types.Registry) EngineOption {
	return func(e *Engine) {
		e.types = reg
	}
}

// WithHistorySize sets the number of retained events (default 200).
// Zero keeps no history.
func WithHistorySize(n int) EngineOption {
	return func(e *Engine) {
		e.historySize = n
	}
}

// WithClock sets the timestamp source.
func WithClock(c Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithSequence sets the logical clock, e.g. to continue after a journal.
func WithSequence(s *Sequence) EngineOption {
	return func(e *Engine) {
		e.seq = s
	}
}

// WithIDGenerator sets the event ID generator (default UUIDv7).
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithLogger sets the logger for contained failures.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine and registers templates in order.
//
// Any template that fails to compile aborts construction.
func New(templates []string, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		clock:       SystemClock{},
		seq:         NewSequence(),
		ids:         UUIDv7Generator{},
		logger:      slog.Default(),
		historySize: DefaultHistorySize,
		counters:    make(map[string]int64),
	}

	for _, opt := range opts {
		opt(e)
	}
	if e.types == nil {
		e.types = types.New()
	}
	e.history = newHistory(e.historySize)

	for _, t := range templates {
		if err := e.AddTemplate(t); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// Types returns the registry templates are compiled against.
func (e *Engine) Types() *types.Registry {
	return e.types
}

// AddTemplate compiles template and appends it to the pattern list.
// A failed compile leaves the list unchanged.
func (e *Engine) AddTemplate(template string) error {
	p, err := compiler.Compile(template, e.types)
	if err != nil {
		return fmt.Errorf("add template: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.patterns = append(slices.Clip(e.patterns), p)
	return nil
}

// Templates returns the raw templates in registration order.
func (e *Engine) Templates() []string {
	ps := e.snapshotPatterns()
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Template
	}
	return out
}

// Patterns returns the compiled patterns in registration order.
func (e *Engine) Patterns() []*compiler.Pattern {
	return slices.Clone(e.snapshotPatterns())
}

func (e *Engine) snapshotPatterns() []*compiler.Pattern {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.patterns
}

// On registers a route. Routes are tried in registration order.
func (e *Engine) On(p Predicate, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.routes = append(slices.Clip(e.routes), route{predicate: p, handler: h})
}

// OnTemplate routes events that matched template.
func (e *Engine) OnTemplate(template string, h Handler) {
	e.On(ForTemplate(template), h)
}

// Before registers middleware run before routing on every Handle call.
func (e *Engine) Before(m Middleware) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.before = append(slices.Clip(e.before), m)
}

// After registers middleware run after routing on every Handle call.
func (e *Engine) After(m Middleware) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.after = append(slices.Clip(e.after), m)
}

// Parse matches text against the templates in registration order.
//
// The first full match wins. Typed captures are converted; a failed
// conversion keeps the raw string. Parse never fails: no match is a
// ParseResult with Matched false and empty Vars.
func (e *Engine) Parse(text string) ir.ParseResult {
	norm := compiler.Normalize(text)
	for _, p := range e.snapshotPatterns() {
		raw, ok := p.Match(norm)
		if !ok {
			continue
		}
		pairs := make([]ir.Var, len(raw))
		for i, c := range p.Captures {
			pairs[i] = ir.V(c.Name, e.convert(c, raw[i]))
		}
		return ir.ParseResult{
			Matched:            true,
			Template:           p.Template,
			NormalizedTemplate: p.Normalized,
			Vars:               ir.NewVars(pairs...),
		}
	}
	return ir.ParseResult{}
}

func (e *Engine) convert(c compiler.Capture, raw string) any {
	if c.Type == "" {
		return raw
	}
	v, err := e.types.Convert(c.Type, raw)
	if err != nil {
		e.logger.Debug("conversion failed, keeping raw value",
			"capture", c.Name, "type", c.Type, "value", raw, "error", err)
	}
	return v
}

// Handle runs the full pipeline for one command and always returns a
// well-formed Result.
func (e *Engine) Handle(text string, meta ir.Meta) ir.Result {
	if meta == nil {
		meta = ir.Meta{}
	}
	ts := e.clock.Now()
	parsed := e.Parse(text)

	ev := ir.Event{
		ID:                 e.ids.Generate(),
		Command:            text,
		Text:               compiler.Normalize(text),
		Matched:            parsed.Matched,
		Template:           parsed.Template,
		NormalizedTemplate: parsed.NormalizedTemplate,
		Vars:               parsed.Vars,
		Meta:               meta,
		Timestamp:          ts,
	}

	// Seq is taken under the lock so history order and seq order agree.
	e.mu.Lock()
	ev.Seq = e.seq.Next()
	e.history.push(ev)
	e.counters[CounterCalls]++
	e.counters["handle.ok."+strconv.FormatBool(ev.Matched)]++
	routes, before, after := e.routes, e.before, e.after
	e.mu.Unlock()

	e.runMiddleware("before", before, ev)
	result := e.dispatch(routes, ev)
	e.runMiddleware("after", after, ev)

	return ir.Result{
		OK:                 ev.Matched,
		Template:           ev.Template,
		NormalizedTemplate: ev.NormalizedTemplate,
		Vars:               ev.Vars,
		Result:             result,
		Meta:               meta,
		Timestamp:          ts,
	}
}

// dispatch invokes the first route whose predicate holds. A failing
// predicate or handler stops routing and yields an ir.ErrorResult.
func (e *Engine) dispatch(routes []route, ev ir.Event) any {
	for i, r := range routes {
		matched, err := e.callPredicate(i, r.predicate, ev)
		if err == nil && !matched {
			continue
		}
		var result any
		if err == nil {
			result, err = e.callHandler(i, r.handler, ev)
		}
		if err != nil {
			e.count(CounterRouteError)
			e.logger.Error("route failed",
				"command", ev.Command, "event_id", ev.ID, "error", err)
			msg := err.Error()
			var de *DispatchError
			if errors.As(err, &de) {
				msg = de.Message()
			}
			return ir.ErrorResult{Error: msg}
		}
		return result
	}
	return nil
}

func (e *Engine) callPredicate(i int, p Predicate, ev ir.Event) (matched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &DispatchError{Code: ErrCodeRouteFailed, Stage: "predicate", Index: i, EventID: ev.ID, Recovered: r}
		}
	}()
	return p.Match(ev), nil
}

func (e *Engine) callHandler(i int, h Handler, ev ir.Event) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &DispatchError{Code: ErrCodeRouteFailed, Stage: "handler", Index: i, EventID: ev.ID, Recovered: r}
		}
	}()
	result, err = h.Handle(ev)
	if err != nil {
		return nil, &DispatchError{Code: ErrCodeRouteFailed, Stage: "handler", Index: i, EventID: ev.ID, Err: err}
	}
	return result, nil
}

func (e *Engine) runMiddleware(stage string, chain []Middleware, ev ir.Event) {
	for i, m := range chain {
		if err := callMiddleware(stage, i, m, ev); err != nil {
			e.count(CounterMiddlewareError)
			e.logger.Error("middleware failed",
				"stage", stage, "command", ev.Command, "event_id", ev.ID, "error", err)
		}
	}
}

func callMiddleware(stage string, i int, m Middleware, ev ir.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &DispatchError{Code: ErrCodeMiddlewareFailed, Stage: stage, Index: i, EventID: ev.ID, Recovered: r}
		}
	}()
	if err := m.Process(ev); err != nil {
		return &DispatchError{Code: ErrCodeMiddlewareFailed, Stage: stage, Index: i, EventID: ev.ID, Err: err}
	}
	return nil
}

func (e *Engine) count(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counters[key]++
}

// History returns the retained events, oldest first.
func (e *Engine) History() []ir.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.snapshot()
}

// HistoryLen returns the number of retained events.
func (e *Engine) HistoryLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.len()
}

// Metrics returns a snapshot of the counters.
func (e *Engine) Metrics() map[string]int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.counters)
}
