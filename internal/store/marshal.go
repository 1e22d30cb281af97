package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/omnilink/internal/ir"
)

// timestampLayout is fixed-width so stored timestamps sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// marshalVars converts captures to JSON TEXT, preserving capture order.
func marshalVars(v ir.Vars) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal vars: %w", err)
	}
	return string(data), nil
}

// marshalMeta converts meta to JSON TEXT.
// HTML escaping is disabled so journal rows stay readable.
func marshalMeta(m ir.Meta) (string, error) {
	if m == nil {
		m = ir.Meta{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return "", fmt.Errorf("marshal meta: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalVars parses JSON TEXT into Vars.
// Integral numbers come back as int.
func unmarshalVars(data string) (ir.Vars, error) {
	var v ir.Vars
	if data == "" || data == "{}" {
		return v, nil
	}
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return v, fmt.Errorf("unmarshal vars: %w", err)
	}
	return v, nil
}

// unmarshalMeta parses JSON TEXT into Meta.
func unmarshalMeta(data string) (ir.Meta, error) {
	if data == "" || data == "{}" {
		return ir.Meta{}, nil
	}
	var m ir.Meta
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("unmarshal meta: %w", err)
	}
	if m == nil {
		m = ir.Meta{}
	}
	return m, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
