package harness

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/roach88/omnilink/internal/bridge"
	"github.com/roach88/omnilink/internal/compiler"
	"github.com/roach88/omnilink/internal/engine"
	"github.com/roach88/omnilink/internal/ir"
	"github.com/roach88/omnilink/internal/source"
	"github.com/roach88/omnilink/internal/testutil"
	"github.com/roach88/omnilink/internal/types"
)

// StepInterval is how far the scenario clock advances per step.
const StepInterval = time.Second

// Harness executes one scenario against a fresh engine.
type Harness struct {
	scenario *Scenario
	engine   *engine.Engine
	logger   *slog.Logger
}

// Option configures a run.
type Option func(*Harness)

// WithLogger sets the logger the engine reports contained failures to.
// Runs are silent by default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Install custom types into a fresh registry
//  2. Build an engine with a fixed clock and sequential IDs
//  3. Register templates (inline, then file, then catalog) and routes
//  4. Handle every step, checking its expect clause
//  5. Evaluate assertions against the trace and engine state
//
// Setup failures (bad types, templates that do not compile) are returned
// as errors; behavioral mismatches are recorded in Result.Errors.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		scenario: scenario,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	for _, opt := range opts {
		opt(h)
	}

	eng, err := h.buildEngine()
	if err != nil {
		return nil, err
	}
	h.engine = eng

	result := NewResult()
	for i, step := range scenario.Steps {
		res := eng.Handle(step.Command, ir.Meta(step.Meta))
		ts := newTraceStep(i, step.Command, res, bridge.Feedback(res))
		result.Trace = append(result.Trace, ts)
		if step.Expect != nil {
			for _, msg := range checkExpect(ts, res, *step.Expect) {
				result.AddError(fmt.Sprintf("step %d (%q): %s", i+1, step.Command, msg))
			}
		}
	}

	result.Metrics = eng.Metrics()
	result.HistoryLen = eng.HistoryLen()

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) buildEngine() (*engine.Engine, error) {
	s := h.scenario

	reg := types.New()
	if err := installTypes(reg, s.Types); err != nil {
		return nil, fmt.Errorf("install types: %w", err)
	}

	opts := []engine.EngineOption{
		engine.WithTypes(reg),
		engine.WithClock(testutil.NewFixedClock(testutil.DefaultEpoch, StepInterval)),
		engine.WithIDGenerator(testutil.NewSequenceIDs("evt")),
		engine.WithLogger(h.logger),
	}
	if s.HistorySize != nil {
		opts = append(opts, engine.WithHistorySize(*s.HistorySize))
	}

	eng, err := engine.New(s.Templates, opts...)
	if err != nil {
		return nil, fmt.Errorf("register templates: %w", err)
	}
	if s.TemplateFile != "" {
		if err := source.Register(source.File{Path: s.TemplateFile}, eng); err != nil {
			return nil, fmt.Errorf("register template file: %w", err)
		}
	}
	if s.Catalog != "" {
		if err := source.Register(source.Catalog{Path: s.Catalog, Types: reg}, eng); err != nil {
			return nil, fmt.Errorf("register catalog: %w", err)
		}
	}

	for _, r := range s.Routes {
		eng.On(r.predicate(), r.handler())
	}
	return eng, nil
}

// installTypes registers custom types in name order so a type may borrow
// the converter of another custom type declared before it alphabetically.
func installTypes(reg *types.Registry, specs map[string]TypeSpec) error {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	slices.Sort(names)

	cat := &compiler.Catalog{}
	for _, name := range names {
		t := specs[name]
		cat.Types = append(cat.Types, compiler.TypeDef{Name: name, Pattern: t.Pattern, ConvertAs: t.ConvertAs})
	}
	return cat.Apply(reg)
}

func (r Route) predicate() engine.Predicate {
	if r.Template == "" {
		return engine.Matched{}
	}
	return engine.ForTemplate(r.Template)
}

func (r Route) handler() engine.Handler {
	return engine.HandlerFunc(func(ev ir.Event) (any, error) {
		switch {
		case r.Error != "":
			return nil, errors.New(r.Error)
		case r.Echo:
			return ev.Vars.Map(), nil
		default:
			return r.Result, nil
		}
	})
}

// checkExpect returns one message per mismatched field.
func checkExpect(ts TraceStep, res ir.Result, want Expect) []string {
	var msgs []string
	if want.OK != nil && *want.OK != res.OK {
		msgs = append(msgs, fmt.Sprintf("ok: expected %v, got %v", *want.OK, res.OK))
	}
	if want.Template != "" && compiler.Normalize(want.Template) != res.NormalizedTemplate {
		msgs = append(msgs, fmt.Sprintf("template: expected %q, got %q", want.Template, res.Template))
	}
	if len(want.Vars) > 0 {
		if missing := varsSubset(res.Vars, want.Vars); missing != "" {
			msgs = append(msgs, "vars: "+missing)
		}
	}
	if want.Feedback != nil && *want.Feedback != ts.Feedback {
		msgs = append(msgs, fmt.Sprintf("feedback: expected %v, got %v", *want.Feedback, ts.Feedback))
	}
	if want.Result != nil && !matchValue(res.Result, want.Result) {
		msgs = append(msgs, fmt.Sprintf("result: expected %v, got %v", want.Result, res.Result))
	}
	if want.Error != "" {
		msg, failed := ir.FailureOf(res.Result)
		if !failed || !strings.Contains(msg, want.Error) {
			msgs = append(msgs, fmt.Sprintf("error: expected failure containing %q, got %v", want.Error, res.Result))
		}
	}
	return msgs
}
