package harness

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/omnilink/internal/compiler"
	"github.com/roach88/omnilink/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string      // Assertion type for categorization
	Expected string      // Human-readable expected outcome
	Actual   string      // Human-readable actual outcome
	Trace    []TraceStep // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, s := range e.Trace {
		tmpl := "<unmatched>"
		if s.Template != nil {
			tmpl = *s.Template
		}
		fmt.Fprintf(&buf, "  [%d] %q -> %s %v\n", s.Step, s.Command, tmpl, s.Vars.Map())
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var msgs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			msgs = append(msgs, fmt.Sprintf("assertion %d: %v", i+1, err))
		}
	}
	return msgs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(result.Trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(result.Trace, a)
	case AssertTraceCount:
		return assertTraceCount(result.Trace, a)
	case AssertMetric:
		got := result.Metrics[a.Metric]
		if got != int64(a.Count) {
			return &AssertionError{
				Type:     AssertMetric,
				Expected: fmt.Sprintf("%s = %d", a.Metric, a.Count),
				Actual:   fmt.Sprintf("%s = %d", a.Metric, got),
				Trace:    result.Trace,
			}
		}
		return nil
	case AssertHistoryLen:
		if result.HistoryLen != a.Count {
			return &AssertionError{
				Type:     AssertHistoryLen,
				Expected: fmt.Sprintf("%d retained events", a.Count),
				Actual:   fmt.Sprintf("%d retained events", result.HistoryLen),
				Trace:    result.Trace,
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// matchedTemplate reports whether step s matched template.
// An empty template matches unmatched steps.
func matchedTemplate(s TraceStep, template string) bool {
	if template == "" {
		return s.Template == nil
	}
	return s.Template != nil && compiler.Normalize(*s.Template) == compiler.Normalize(template)
}

// assertTraceContains checks that some step matched the template with
// the given vars (subset semantics).
func assertTraceContains(trace []TraceStep, a Assertion) error {
	for _, s := range trace {
		if matchedTemplate(s, a.Template) && varsSubset(s.Vars, a.Vars) == "" {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("template %q with vars %v", a.Template, a.Vars),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that templates were first matched in order.
// Other steps may come between them.
func assertTraceOrder(trace []TraceStep, a Assertion) error {
	positions := make([]int, len(a.Templates))
	for i, tmpl := range a.Templates {
		positions[i] = -1
		for j, s := range trace {
			if s.Template != nil && matchedTemplate(s, tmpl) {
				positions[i] = j
				break
			}
		}
		if positions[i] < 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("template %q in trace", tmpl),
				Actual:   "not found in trace",
				Trace:    trace,
			}
		}
	}
	if !sort.IntsAreSorted(positions) {
		return &AssertionError{
			Type:     AssertTraceOrder,
			Expected: fmt.Sprintf("order %v", a.Templates),
			Actual:   fmt.Sprintf("first matched at steps %v", stepNumbers(positions)),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceCount checks how many steps matched the template.
func assertTraceCount(trace []TraceStep, a Assertion) error {
	n := 0
	for _, s := range trace {
		if matchedTemplate(s, a.Template) {
			n++
		}
	}
	if n != a.Count {
		what := fmt.Sprintf("template %q", a.Template)
		if a.Template == "" {
			what = "unmatched commands"
		}
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%s %d times", what, a.Count),
			Actual:   fmt.Sprintf("%d times", n),
			Trace:    trace,
		}
	}
	return nil
}

func stepNumbers(positions []int) []int {
	out := make([]int, len(positions))
	for i, p := range positions {
		out[i] = p + 1
	}
	return out
}

// varsSubset returns "" when every expected var is captured with a
// matching value, else a description of the first mismatch in name order.
func varsSubset(got ir.Vars, want map[string]any) string {
	names := make([]string, 0, len(want))
	for name := range want {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v, ok := got.Get(name)
		if !ok {
			return fmt.Sprintf("%s: not captured", name)
		}
		if !matchValue(v, want[name]) {
			return fmt.Sprintf("%s: expected %v (%T), got %v (%T)", name, want[name], want[name], v, v)
		}
	}
	return ""
}

// matchValue compares a produced value with an expected YAML value.
// Numbers compare by value across int and float kinds; mappings use
// subset semantics; everything else uses deep equality.
func matchValue(got, want any) bool {
	if gf, ok := toFloat(got); ok {
		wf, ok := toFloat(want)
		return ok && gf == wf
	}

	if wm, ok := want.(map[string]any); ok {
		gm, ok := toMap(got)
		if !ok {
			return false
		}
		for k, wv := range wm {
			gv, ok := gm[k]
			if !ok || !matchValue(gv, wv) {
				return false
			}
		}
		return true
	}

	if ws, ok := want.([]any); ok {
		gv := reflect.ValueOf(got)
		if gv.Kind() != reflect.Slice || gv.Len() != len(ws) {
			return false
		}
		for i := range ws {
			if !matchValue(gv.Index(i).Interface(), ws[i]) {
				return false
			}
		}
		return true
	}

	return reflect.DeepEqual(got, want)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// toMap views handler results as mappings. ir.Ack and ir.ErrorResult
// are exposed under their JSON field names.
func toMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case ir.Meta:
		return m, true
	case ir.Ack:
		out := map[string]any{"ack": m.Ack}
		if m.Error != "" {
			out["error"] = m.Error
		}
		return out, true
	case ir.ErrorResult:
		return map[string]any{"error": m.Error}, true
	}
	return nil, false
}
