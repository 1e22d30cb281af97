package engine

import (
	"errors"
	"fmt"
)

// DispatchError represents a failure contained by Handle.
//
// Dispatch errors are never returned to Handle's caller. They are logged,
// counted, and (for routes) turned into an ir.ErrorResult.
type DispatchError struct {
	// Code identifies the error category.
	Code DispatchErrorCode

	// Stage is "predicate", "handler", "before" or "after".
	Stage string

	// Index is the position of the failing route or middleware.
	Index int

	// EventID identifies the event being handled.
	EventID string

	// Err is the returned error, or nil for a panic.
	Err error

	// Recovered is the panic value, or nil for a returned error.
	Recovered any
}

// DispatchErrorCode categorizes dispatch errors.
type DispatchErrorCode string

const (
	// ErrCodeRouteFailed indicates a route's predicate or handler failed.
	ErrCodeRouteFailed DispatchErrorCode = "ROUTE_FAILED"

	// ErrCodeMiddlewareFailed indicates a before/after middleware failed.
	ErrCodeMiddlewareFailed DispatchErrorCode = "MIDDLEWARE_FAILED"
)

// Message is the failure text without code or location, as exposed in
// ir.ErrorResult.
func (e *DispatchError) Message() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprint(e.Recovered)
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	kind := "error"
	if e.Err == nil {
		kind = "panic"
	}
	return fmt.Sprintf("%s: %s[%d] %s: %s (event=%s)", e.Code, e.Stage, e.Index, kind, e.Message(), e.EventID)
}

// Unwrap returns the handler's own error.
func (e *DispatchError) Unwrap() error {
	return e.Err
}

// IsPanic reports whether err is a DispatchError caused by a panic.
func IsPanic(err error) bool {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Err == nil
	}
	return false
}
