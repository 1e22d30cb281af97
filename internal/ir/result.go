package ir

import (
	"encoding/json"
	"time"
)

// Result is what handle() returns to every caller.
//
// Result holds the value returned by the routed handler, an ErrorResult
// when the route failed, or nil when no route matched.
type Result struct {
	OK                 bool      `json:"ok"`
	Template           string    `json:"template"`
	NormalizedTemplate string    `json:"normalized_template"`
	Vars               Vars      `json:"vars"`
	Result             any       `json:"result"`
	Meta               Meta      `json:"meta"`
	Timestamp          time.Time `json:"timestamp"`
}

// MarshalJSON renders unmatched templates as null.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		OK                 bool      `json:"ok"`
		Template           *string   `json:"template"`
		NormalizedTemplate *string   `json:"normalized_template"`
		Vars               Vars      `json:"vars"`
		Result             any       `json:"result"`
		Meta               Meta      `json:"meta"`
		Timestamp          time.Time `json:"timestamp"`
	}{
		OK:                 r.OK,
		Template:           nullable(r.Template),
		NormalizedTemplate: nullable(r.NormalizedTemplate),
		Vars:               r.Vars,
		Result:             r.Result,
		Meta:               r.Meta,
		Timestamp:          r.Timestamp,
	})
}

// ErrorResult is the result a failed predicate or handler produces.
type ErrorResult struct {
	Error string `json:"error"`
}

// FailureMessage implements Failure.
func (e ErrorResult) FailureMessage() string {
	return e.Error
}

// Ack is the acknowledgement handlers return for domain actions.
// Ack false without an Error is a declined action, not a failure.
type Ack struct {
	Ack   bool   `json:"ack"`
	Error string `json:"error,omitempty"`
}

// FailureMessage implements Failure.
func (a Ack) FailureMessage() string {
	return a.Error
}

// Failure is implemented by handler results that represent a failed action.
// A non-empty message marks the result as failed.
type Failure interface {
	FailureMessage() string
}

// FailureOf reports whether a handler result represents a failure and,
// if so, its message.
//
// Recognized failures: ErrorResult, any Failure with a non-empty message,
// and maps whose "error" entry is truthy.
func FailureOf(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case ErrorResult:
		return val.Error, true
	case *ErrorResult:
		if val == nil {
			return "", false
		}
		return val.Error, true
	case Failure:
		msg := val.FailureMessage()
		return msg, msg != ""
	case map[string]any:
		return mapFailure(val)
	case Meta:
		return mapFailure(val)
	}
	return "", false
}

func mapFailure(m map[string]any) (string, bool) {
	e, ok := m["error"]
	if !ok || !truthy(e) {
		return "", false
	}
	if s, isString := e.(string); isString {
		return s, true
	}
	b, err := json.Marshal(e)
	if err != nil {
		return "error", true
	}
	return string(b), true
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	}
	return true
}
