package compiler

import (
	"errors"
	"fmt"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// UnknownTypeError reports a token that references an unregistered type.
type UnknownTypeError struct {
	Type     string
	Template string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown type %q in template: %s", e.Type, e.Template)
}

// IsUnknownType reports whether err is or wraps an *UnknownTypeError.
func IsUnknownType(err error) bool {
	var ute *UnknownTypeError
	return errors.As(err, &ute)
}

// CompileError represents a compilation error with optional source position.
// Field names the template or catalog field that failed.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// First error with position info
	firstErr := errs[0]
	positions := cueerrors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
