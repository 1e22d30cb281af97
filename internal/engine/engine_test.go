package engine

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/omnilink/internal/compiler"
	"github.com/roach88/omnilink/internal/ir"
	"github.com/roach88/omnilink/internal/testutil"
	"github.com/roach88/omnilink/internal/types"
)

const moveTemplate = "move_[color]_[piece]_from_[location1]_to_[location2]"

// newTestEngine builds an engine with a deterministic clock and IDs and a
// discarded log, then applies opts.
func newTestEngine(t *testing.T, templates []string, opts ...EngineOption) *Engine {
	t.Helper()
	base := []EngineOption{
		WithClock(testutil.NewFixedClock(time.Time{}, time.Second)),
		WithIDGenerator(testutil.NewSequenceIDs("evt")),
		WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
	}
	e, err := New(templates, append(base, opts...)...)
	require.NoError(t, err)
	return e
}

func TestParse_MoveTemplate(t *testing.T) {
	e := newTestEngine(t, []string{moveTemplate})

	got := e.Parse("move_white_knight_from_c2_to_c3")

	require.True(t, got.Matched)
	assert.Equal(t, moveTemplate, got.Template)
	assert.Equal(t, moveTemplate, got.NormalizedTemplate)
	assert.Equal(t, map[string]any{
		"color": "white", "piece": "knight", "location1": "c2", "location2": "c3",
	}, got.Vars.Map())
	assert.Equal(t, []string{"color", "piece", "location1", "location2"}, got.Vars.Names())
}

func TestParse_SpokenFormPreservesCase(t *testing.T) {
	e := newTestEngine(t, []string{"move [color] [piece] from [location1] to [location2]"})

	got := e.Parse("  Move WHITE knight   from C2 to c3 ")

	require.True(t, got.Matched)
	v, _ := got.Vars.Get("location1")
	assert.Equal(t, "C2", v)
	v, _ = got.Vars.Get("color")
	assert.Equal(t, "WHITE", v)
}

func TestParse_TypedInt(t *testing.T) {
	e := newTestEngine(t, []string{"set_[n:int]"})

	got := e.Parse("set_42")
	require.True(t, got.Matched)
	n, _ := got.Vars.Get("n")
	assert.Equal(t, 42, n)

	got = e.Parse("set_abc")
	assert.False(t, got.Matched)
	assert.Empty(t, got.Template)
	assert.Equal(t, 0, got.Vars.Len())
}

func TestParse_ConversionFailureKeepsRaw(t *testing.T) {
	reg := types.New()
	reg.Register("even", `\d+`, func(raw string) (any, error) {
		return nil, &types.ConversionError{Type: "even", Value: raw, Err: errors.New("odd")}
	})
	e := newTestEngine(t, []string{"set [n:even]"}, WithTypes(reg))

	got := e.Parse("set 7")
	require.True(t, got.Matched)
	n, _ := got.Vars.Get("n")
	assert.Equal(t, "7", n)
}

func TestHandle_PanickingConverterKeepsRaw(t *testing.T) {
	reg := types.New()
	reg.Register("boom", `\d+`, func(string) (any, error) { panic("bad") })
	e := newTestEngine(t, []string{"set [n:boom]"}, WithTypes(reg))

	var res ir.Result
	require.NotPanics(t, func() { res = e.Handle("set 1", nil) })
	assert.True(t, res.OK)
	n, _ := res.Vars.Get("n")
	assert.Equal(t, "1", n)
	assert.Equal(t, int64(1), e.Metrics()[CounterCalls])
}

func TestParse_LargeIntegerIsBigInt(t *testing.T) {
	e := newTestEngine(t, []string{"set [n:int]"})

	got := e.Parse("set 99999999999999999999999")
	n, _ := got.Vars.Get("n")
	want, _ := new(big.Int).SetString("99999999999999999999999", 10)
	assert.Equal(t, want, n)
}

func TestParse_LiteralRegexNeverConverted(t *testing.T) {
	e := newTestEngine(t, []string{"set [n:/\\d+/]"})

	got := e.Parse("set 7")
	n, _ := got.Vars.Get("n")
	assert.Equal(t, "7", n)
}

func TestParse_FirstRegisteredWins(t *testing.T) {
	e := newTestEngine(t, []string{"go_[x]", "go_[x:int]"})
	got := e.Parse("go_7")
	assert.Equal(t, "go_[x]", got.Template)
	x, _ := got.Vars.Get("x")
	assert.Equal(t, "7", x)

	e = newTestEngine(t, []string{"go_[x:int]", "go_[x]"})
	got = e.Parse("go_7")
	assert.Equal(t, "go_[x:int]", got.Template)
	x, _ = got.Vars.Get("x")
	assert.Equal(t, 7, x)
}

func TestParse_Idempotent(t *testing.T) {
	e := newTestEngine(t, []string{moveTemplate, "set [n:num]"})

	for _, text := range []string{"move white pawn from e2 to e4", "set 2.5", "nothing"} {
		first := e.Parse(text)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, e.Parse(text))
		}
	}
	assert.Empty(t, e.History(), "parse must not record history")
}

func TestParse_VarsHaveDeclaredNames(t *testing.T) {
	templates := []string{
		"[] and [:int]",
		"pick [a] [b:alpha] [c:/x+/]",
	}
	e := newTestEngine(t, templates)

	got := e.Parse("pick one two xxx")
	require.Equal(t, templates[1], got.Template)
	assert.Equal(t, []string{"a", "b", "c"}, got.Vars.Names())

	got = e.Parse("foo and 3")
	require.Equal(t, templates[0], got.Template)
	assert.Equal(t, []string{"var1", "var2"}, got.Vars.Names())
}

func TestNew_UnknownTypeAbortsConstruction(t *testing.T) {
	_, err := New([]string{"ok [a]", "bad [n:widget]"})
	require.Error(t, err)
	assert.True(t, compiler.IsUnknownType(err))
	assert.Contains(t, err.Error(), "bad [n:widget]")
}

func TestAddTemplate_FailureLeavesListUnchanged(t *testing.T) {
	e := newTestEngine(t, []string{"a [x]"})

	err := e.AddTemplate("b [x:nope]")
	require.Error(t, err)
	assert.Equal(t, []string{"a [x]"}, e.Templates())

	require.NoError(t, e.AddTemplate("c [x]"))
	assert.Equal(t, []string{"a [x]", "c [x]"}, e.Templates())
}

func TestAddTemplate_SnapshotIsStable(t *testing.T) {
	e := newTestEngine(t, []string{"a"})
	before := e.Patterns()

	require.NoError(t, e.AddTemplate("b"))
	assert.Len(t, before, 1)
	assert.Len(t, e.Patterns(), 2)
}

func TestTypeReregistration_OnlyAffectsLaterTemplates(t *testing.T) {
	reg := types.New()
	reg.Register("code", `[a-z]{2}`, nil)
	e := newTestEngine(t, []string{"first [c:code]"}, WithTypes(reg))

	reg.Register("code", `\d{3}`, nil)
	require.NoError(t, e.AddTemplate("second [c:code]"))

	assert.True(t, e.Parse("first ab").Matched)
	assert.False(t, e.Parse("first 123").Matched)
	assert.True(t, e.Parse("second 123").Matched)
	assert.False(t, e.Parse("second ab").Matched)
}

func TestHandle_ResultShape(t *testing.T) {
	e := newTestEngine(t, []string{"set [n:int]"})
	meta := ir.Meta{"source": "test"}

	res := e.Handle("set 5", meta)

	assert.True(t, res.OK)
	assert.Equal(t, "set [n:int]", res.Template)
	assert.Equal(t, "set_[n:int]", res.NormalizedTemplate)
	n, _ := res.Vars.Get("n")
	assert.Equal(t, 5, n)
	assert.Nil(t, res.Result)
	assert.Equal(t, meta, res.Meta)
	assert.Equal(t, testutil.DefaultEpoch, res.Timestamp)
}

func TestHandle_UnmatchedDefaultsMeta(t *testing.T) {
	e := newTestEngine(t, []string{"set [n:int]"})

	res := e.Handle("hello there", nil)

	assert.False(t, res.OK)
	assert.Empty(t, res.Template)
	assert.NotNil(t, res.Meta)
	assert.Empty(t, res.Meta)

	hist := e.History()
	require.Len(t, hist, 1)
	assert.Equal(t, "hello there", hist[0].Command)
	assert.Equal(t, "hello_there", hist[0].Text)
	assert.False(t, hist[0].Matched)
	assert.NotNil(t, hist[0].Meta)
}

func TestHandle_Counters(t *testing.T) {
	e := newTestEngine(t, []string{"ping"})

	e.Handle("ping", nil)
	e.Handle("ping", nil)
	e.Handle("pong", nil)

	m := e.Metrics()
	assert.Equal(t, int64(3), m[CounterCalls])
	assert.Equal(t, int64(2), m[CounterOKTrue])
	assert.Equal(t, int64(1), m[CounterOKFalse])

	m[CounterCalls] = 100
	assert.Equal(t, int64(3), e.Metrics()[CounterCalls], "metrics must be a snapshot")
}

func TestHandle_HistoryBounded(t *testing.T) {
	e := newTestEngine(t, []string{"cmd [n:int]"})

	for i := 1; i <= 201; i++ {
		e.Handle(fmt.Sprintf("cmd %d", i), nil)
	}

	hist := e.History()
	require.Len(t, hist, DefaultHistorySize)
	assert.Equal(t, "cmd 2", hist[0].Command, "oldest event must be evicted")
	assert.Equal(t, "cmd 201", hist[len(hist)-1].Command)
	for _, ev := range hist {
		assert.NotEqual(t, "cmd 1", ev.Command)
	}
}

func TestHandle_HistorySizeOption(t *testing.T) {
	e := newTestEngine(t, nil, WithHistorySize(3))
	for i := 0; i < 10; i++ {
		e.Handle(fmt.Sprintf("c%d", i), nil)
	}
	hist := e.History()
	require.Len(t, hist, 3)
	assert.Equal(t, []string{"c7", "c8", "c9"}, []string{hist[0].Command, hist[1].Command, hist[2].Command})

	none := newTestEngine(t, nil, WithHistorySize(0))
	none.Handle("x", nil)
	assert.Empty(t, none.History())
	assert.Equal(t, int64(1), none.Metrics()[CounterCalls])
}

func TestHandle_EventsAreSequenced(t *testing.T) {
	e := newTestEngine(t, nil)
	e.Handle("a", nil)
	e.Handle("b", nil)

	hist := e.History()
	assert.Equal(t, int64(1), hist[0].Seq)
	assert.Equal(t, int64(2), hist[1].Seq)
	assert.Equal(t, "evt-1", hist[0].ID)
	assert.True(t, hist[1].Timestamp.After(hist[0].Timestamp))
}

func TestRouting_FirstMatchWins(t *testing.T) {
	e := newTestEngine(t, []string{"go [x]"})
	var calls []string

	e.On(PredicateFunc(func(ev ir.Event) bool { return false }), HandlerFunc(func(ir.Event) (any, error) {
		calls = append(calls, "never")
		return nil, nil
	}))
	e.OnTemplate("go   [x]", HandlerFunc(func(ev ir.Event) (any, error) {
		calls = append(calls, "template")
		x, _ := ev.Vars.String("x")
		return "went " + x, nil
	}))
	e.On(Always{}, HandlerFunc(func(ir.Event) (any, error) {
		calls = append(calls, "fallback")
		return "fallback", nil
	}))

	res := e.Handle("go north", nil)
	assert.Equal(t, "went north", res.Result)

	res = e.Handle("stop", nil)
	assert.Equal(t, "fallback", res.Result)

	assert.Equal(t, []string{"template", "fallback"}, calls)
}

func TestRouting_NoRouteLeavesResultNil(t *testing.T) {
	e := newTestEngine(t, []string{"go [x]"})
	e.On(Matched{}, HandlerFunc(func(ir.Event) (any, error) { return "hit", nil }))

	assert.Nil(t, e.Handle("nope", nil).Result)
	assert.Equal(t, "hit", e.Handle("go x", nil).Result)
}

func TestRouting_HandlerErrorStopsRouting(t *testing.T) {
	e := newTestEngine(t, []string{"go [x]"})
	later := false

	e.On(Always{}, HandlerFunc(func(ir.Event) (any, error) {
		return nil, errors.New("board offline")
	}))
	e.On(Always{}, HandlerFunc(func(ir.Event) (any, error) {
		later = true
		return "later", nil
	}))

	res := e.Handle("go x", nil)
	assert.Equal(t, ir.ErrorResult{Error: "board offline"}, res.Result)
	assert.True(t, res.OK)
	assert.False(t, later)
	assert.Equal(t, int64(1), e.Metrics()[CounterRouteError])
}

func TestRouting_HandlerPanicBecomesErrorResult(t *testing.T) {
	e := newTestEngine(t, nil)
	e.On(Always{}, HandlerFunc(func(ir.Event) (any, error) {
		panic("kaboom")
	}))

	var res ir.Result
	require.NotPanics(t, func() { res = e.Handle("x", nil) })
	assert.Equal(t, ir.ErrorResult{Error: "kaboom"}, res.Result)
}

func TestRouting_PredicatePanicStopsRouting(t *testing.T) {
	e := newTestEngine(t, nil)
	handled := false
	e.On(PredicateFunc(func(ir.Event) bool { panic("bad predicate") }), HandlerFunc(func(ir.Event) (any, error) {
		handled = true
		return nil, nil
	}))
	e.On(Always{}, HandlerFunc(func(ir.Event) (any, error) {
		handled = true
		return nil, nil
	}))

	res := e.Handle("x", nil)
	assert.Equal(t, ir.ErrorResult{Error: "bad predicate"}, res.Result)
	assert.False(t, handled)
}

func TestMiddleware_OrderAndContainment(t *testing.T) {
	var log []string
	var mu sync.Mutex
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		log = append(log, s)
	}

	e := newTestEngine(t, []string{"go [x]"})
	e.Before(MiddlewareFunc(func(ev ir.Event) error { record("before1"); return nil }))
	e.Before(MiddlewareFunc(func(ev ir.Event) error { record("before2"); return errors.New("ignored") }))
	e.Before(MiddlewareFunc(func(ev ir.Event) error { record("before3"); panic("also ignored") }))
	e.On(Always{}, HandlerFunc(func(ir.Event) (any, error) { record("handler"); return "ok", nil }))
	e.After(MiddlewareFunc(func(ev ir.Event) error { record("after1"); return nil }))

	res := e.Handle("unmatched text", nil)

	assert.Equal(t, "ok", res.Result)
	assert.Equal(t, []string{"before1", "before2", "before3", "handler", "after1"}, log)
	assert.Equal(t, int64(2), e.Metrics()[CounterMiddlewareError])
}

func TestMiddleware_RunsAfterRouteFailure(t *testing.T) {
	e := newTestEngine(t, nil)
	afterRan := false
	e.On(Always{}, HandlerFunc(func(ir.Event) (any, error) { return nil, errors.New("x") }))
	e.After(MiddlewareFunc(func(ir.Event) error { afterRan = true; return nil }))

	e.Handle("anything", nil)
	assert.True(t, afterRan)
}

func TestMiddleware_SeesEvent(t *testing.T) {
	e := newTestEngine(t, []string{"set [n:int]"})
	var seen ir.Event
	e.After(MiddlewareFunc(func(ev ir.Event) error { seen = ev; return nil }))

	e.Handle("set 3", ir.Meta{"k": "v"})

	assert.Equal(t, "set 3", seen.Command)
	assert.True(t, seen.Matched)
	assert.Equal(t, "v", seen.Meta["k"])
	assert.Equal(t, e.History()[0], seen)
}

func TestHandle_ConcurrentBookkeeping(t *testing.T) {
	e, err := New([]string{"cmd [n:int]"}, WithHistorySize(1000),
		WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
	require.NoError(t, err)

	var handled sync.WaitGroup
	block := make(chan struct{})
	e.On(PredicateFunc(func(ev ir.Event) bool {
		n, _ := ev.Vars.Get("n")
		return n == 0
	}), HandlerFunc(func(ir.Event) (any, error) {
		<-block
		return "slow", nil
	}))

	// A slow handler must not stall bookkeeping for other callers.
	handled.Add(1)
	go func() {
		defer handled.Done()
		e.Handle("cmd 0", nil)
	}()

	const goroutines = 20
	const perGoroutine = 25
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				e.Handle(fmt.Sprintf("cmd %d", g*perGoroutine+i+1), nil)
			}
		}(g)
	}
	wg.Wait()

	m := e.Metrics()
	assert.GreaterOrEqual(t, m[CounterCalls], int64(goroutines*perGoroutine))

	close(block)
	handled.Wait()

	m = e.Metrics()
	assert.Equal(t, int64(goroutines*perGoroutine+1), m[CounterCalls])
	assert.Equal(t, goroutines*perGoroutine+1, e.HistoryLen())

	history := e.History()
	for i := 1; i < len(history); i++ {
		require.Equal(t, history[i-1].Seq+1, history[i].Seq, "history order must follow seq order at %d", i)
	}
}

func TestHandle_ConcurrentTemplateAddition(t *testing.T) {
	e := newTestEngine(t, []string{"base"})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			assert.NoError(t, e.AddTemplate(fmt.Sprintf("t%d [x]", i)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			assert.True(t, e.Parse("base").Matched)
		}
	}()
	wg.Wait()

	assert.Len(t, e.Templates(), 101)
	assert.True(t, e.Parse("t99 y").Matched)
}

func TestDispatchError_Format(t *testing.T) {
	err := &DispatchError{Code: ErrCodeRouteFailed, Stage: "handler", Index: 2, EventID: "evt-1", Err: errors.New("boom")}
	assert.Equal(t, "ROUTE_FAILED: handler[2] error: boom (event=evt-1)", err.Error())
	assert.False(t, IsPanic(err))
	assert.ErrorContains(t, errors.Unwrap(err), "boom")

	p := &DispatchError{Code: ErrCodeMiddlewareFailed, Stage: "after", Index: 0, EventID: "evt-2", Recovered: "oops"}
	assert.True(t, IsPanic(fmt.Errorf("wrapped: %w", p)))
	assert.Equal(t, "oops", p.Message())
}
