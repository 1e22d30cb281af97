package harness

import (
	"time"

	"github.com/roach88/omnilink/internal/ir"
)

// TraceStep records one handled step.
type TraceStep struct {
	Step      int       `json:"step"`
	Command   string    `json:"command"`
	OK        bool      `json:"ok"`
	Template  *string   `json:"template"` // null when unmatched
	Vars      ir.Vars   `json:"vars"`
	Result    any       `json:"result"`
	Feedback  bool      `json:"feedback"`
	Timestamp time.Time `json:"timestamp"`
}

// newTraceStep converts an engine result.
func newTraceStep(i int, command string, res ir.Result, feedback bool) TraceStep {
	var tmpl *string
	if res.OK {
		t := res.Template
		tmpl = &t
	}
	return TraceStep{
		Step:      i + 1,
		Command:   command,
		OK:        res.OK,
		Template:  tmpl,
		Vars:      res.Vars,
		Result:    res.Result,
		Feedback:  feedback,
		Timestamp: res.Timestamp,
	}
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds one entry per step, in order.
	Trace []TraceStep `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Metrics is the engine's counter snapshot after the last step.
	Metrics map[string]int64 `json:"metrics,omitempty"`

	// HistoryLen is the number of events the engine retained.
	HistoryLen int `json:"history_len"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceStep{},
		Errors:  []string{},
		Metrics: map[string]int64{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
