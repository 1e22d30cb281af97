package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
)

// Var is one captured name/value pair.
type Var struct {
	Name  string
	Value any
}

// Vars is an ordered, read-only mapping of capture names to values.
//
// Order is insertion order. Setting a name twice keeps the first position
// and the last value, which is what a template with a repeated token name
// produces.
type Vars struct {
	entries []Var
}

// NewVars builds Vars from pairs in order.
func NewVars(pairs ...Var) Vars {
	var v Vars
	for _, p := range pairs {
		v = v.with(p.Name, p.Value)
	}
	return v
}

// V is a shorthand for Var.
func V(name string, value any) Var {
	return Var{Name: name, Value: value}
}

func (v Vars) with(name string, value any) Vars {
	for i := range v.entries {
		if v.entries[i].Name == name {
			v.entries[i].Value = value
			return v
		}
	}
	v.entries = append(v.entries, Var{Name: name, Value: value})
	return v
}

// Len returns the number of captures.
func (v Vars) Len() int {
	return len(v.entries)
}

// Get returns the value captured under name.
func (v Vars) Get(name string) (any, bool) {
	for _, e := range v.entries {
		if e.Name == name {
			return e.Value, true
		}
	}
	return nil, false
}

// String returns the value under name formatted as a string.
// Non-string values are rendered with fmt.Sprint.
func (v Vars) String(name string) (string, bool) {
	val, ok := v.Get(name)
	if !ok || val == nil {
		return "", false
	}
	if s, isString := val.(string); isString {
		return s, true
	}
	return fmt.Sprint(val), true
}

// Names returns capture names in order.
func (v Vars) Names() []string {
	names := make([]string, len(v.entries))
	for i, e := range v.entries {
		names[i] = e.Name
	}
	return names
}

// Entries returns a copy of the pairs in order.
func (v Vars) Entries() []Var {
	out := make([]Var, len(v.entries))
	copy(out, v.entries)
	return out
}

// All iterates name/value pairs in order.
func (v Vars) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for _, e := range v.entries {
			if !yield(e.Name, e.Value) {
				return
			}
		}
	}
}

// Map returns an unordered copy.
func (v Vars) Map() map[string]any {
	m := make(map[string]any, len(v.entries))
	for _, e := range v.entries {
		m[e.Name] = e.Value
	}
	return m
}

// MarshalJSON encodes Vars as a JSON object with keys in capture order.
func (v Vars) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range v.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Value)
		if err != nil {
			return nil, fmt.Errorf("var %q: %w", e.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping key order.
// Whole numbers decode as int, other numbers as float64.
func (v *Vars) UnmarshalJSON(data []byte) error {
	*v = Vars{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode vars: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("decode vars: expected object, got %v", tok)
	}

	var out Vars
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode vars: %w", err)
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("decode vars: expected key, got %v", tok)
		}
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decode vars[%q]: %w", name, err)
		}
		out = out.with(name, fromJSONNumbers(raw))
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decode vars: %w", err)
	}

	*v = out
	return nil
}

// fromJSONNumbers replaces json.Number values produced by UseNumber.
func fromJSONNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return int(n)
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case []any:
		for i := range val {
			val[i] = fromJSONNumbers(val[i])
		}
		return val
	case map[string]any:
		for k := range val {
			val[k] = fromJSONNumbers(val[k])
		}
		return val
	default:
		return v
	}
}
