package types

import (
	"fmt"
	"errors"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
)

// ConversionError reports a captured value that its type could not convert.
type ConversionError struct {
	Type  string
	Value string
	Err   error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %q to %s: %v", e.Value, e.Type, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

const uuidPattern = `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[1-5][0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}`

var integerRe = regexp.MustCompile(`^-?\d+$`)

func installDefaults(r *Registry) {
	// text
	r.Register("alpha", `[A-Za-z]+`, nil)
	r.Register("letters", `[A-Za-z]+`, nil)
	r.Register("word", `[A-Za-z]+`, nil)
	r.Register("lower", `[a-z]+`, nil)
	r.Register("upper", `[A-Z]+`, nil)
	r.Register("slug", `[A-Za-z0-9_-]+`, nil)
	r.Register("alnum", `[A-Za-z0-9]+`, nil)
	r.Register("alphanumeric", `[A-Za-z0-9]+`, nil)

	// numbers and booleans
	r.Register("int", `-?\d+`, convertInt("int"))
	r.Register("float", `-?\d+(?:\.\d+)?`, convertFloat)
	r.Register("num", `-?\d+(?:\.\d+)?`, convertNum)
	r.Register("digit", `\d`, convertInt("digit"))
	r.Register("digits", `\d+`, convertInt("digits"))
	r.Register("bool", `(?:true|false|0|1)`, convertBool)

	// identifiers and time-like values stay strings
	r.Register("uuid", uuidPattern, nil)
	r.Register("date", `\d{4}-\d{2}-\d{2}`, nil)
	r.Register("time", `\d{2}:\d{2}(?::\d{2})?`, nil)
	r.Register("datetime", `\d{4}-\d{2}-\d{2}T\d{2}:\d{2}(?::\d{2})?Z?`, nil)

	r.Register("any", `.+`, nil)
}

// convertInt yields an int, or a *big.Int for values beyond int64.
func convertInt(name string) Converter {
	return func(raw string) (any, error) {
		n, err := parseInteger(raw)
		if err != nil {
			return nil, &ConversionError{Type: name, Value: raw, Err: err}
		}
		return n, nil
	}
}

func parseInteger(raw string) (any, error) {
	n, err := strconv.Atoi(raw)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, strconv.ErrRange) {
		return nil, err
	}
	b, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, err
	}
	return b, nil
}

func convertFloat(raw string) (any, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, &ConversionError{Type: "float", Value: raw, Err: err}
	}
	return f, nil
}

// convertNum yields an int when the value has no fractional part and a
// float64 otherwise ("3.0" -> 3, "2.5" -> 2.5).
func convertNum(raw string) (any, error) {
	if integerRe.MatchString(raw) {
		if n, err := parseInteger(raw); err == nil {
			return n, nil
		}
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, &ConversionError{Type: "num", Value: raw, Err: err}
	}
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return int(f), nil
	}
	return f, nil
}

// convertBool never fails: anything other than "true" or "1" is false.
func convertBool(raw string) (any, error) {
	v := strings.ToLower(raw)
	return v == "true" || v == "1", nil
}
