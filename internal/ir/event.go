package ir

import (
	"encoding/json"
	"time"
)

// Version constants for the event schema and engine.
const (
	// SchemaVersion is the journal/event schema version.
	SchemaVersion = "1"

	// EngineVersion is the omnilink engine version.
	EngineVersion = "0.1.0"
)

// Meta is the opaque mapping a caller attaches to a command.
// The engine never inspects or modifies it.
type Meta map[string]any

// Get returns the entry under key.
func (m Meta) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}

// ParseResult is the outcome of matching one text against the template list.
type ParseResult struct {
	Matched            bool   `json:"matched"`
	Template           string `json:"template"`            // empty when unmatched
	NormalizedTemplate string `json:"normalized_template"` // empty when unmatched
	Vars               Vars   `json:"vars"`
}

// MarshalJSON renders unmatched templates as null.
func (p ParseResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Matched            bool    `json:"matched"`
		Template           *string `json:"template"`
		NormalizedTemplate *string `json:"normalized_template"`
		Vars               Vars    `json:"vars"`
	}{
		Matched:            p.Matched,
		Template:           nullable(p.Template),
		NormalizedTemplate: nullable(p.NormalizedTemplate),
		Vars:               p.Vars,
	})
}

// Event records one handle() call. Events are created once and never
// mutated; history and the journal hold copies.
type Event struct {
	ID                 string    `json:"id"`
	Seq                int64     `json:"seq"`                 // per-engine logical clock
	Command            string    `json:"command"`             // raw text as received
	Text               string    `json:"text"`                // normalized command
	Matched            bool      `json:"matched"`
	Template           string    `json:"template"`            // empty when unmatched
	NormalizedTemplate string    `json:"normalized_template"` // empty when unmatched
	Vars               Vars      `json:"vars"`
	Meta               Meta      `json:"meta"`
	Timestamp          time.Time `json:"timestamp"`
}

// MarshalJSON renders unmatched templates as null.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID                 string    `json:"id"`
		Seq                int64     `json:"seq"`
		Command            string    `json:"command"`
		Text               string    `json:"text"`
		Matched            bool      `json:"matched"`
		Template           *string   `json:"template"`
		NormalizedTemplate *string   `json:"normalized_template"`
		Vars               Vars      `json:"vars"`
		Meta               Meta      `json:"meta"`
		Timestamp          time.Time `json:"timestamp"`
	}{
		ID:                 e.ID,
		Seq:                e.Seq,
		Command:            e.Command,
		Text:               e.Text,
		Matched:            e.Matched,
		Template:           nullable(e.Template),
		NormalizedTemplate: nullable(e.NormalizedTemplate),
		Vars:               e.Vars,
		Meta:               e.Meta,
		Timestamp:          e.Timestamp,
	})
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
