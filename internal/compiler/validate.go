package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/omnilink/internal/types"
)

// Validation error codes (E100-E199)
const (
	ErrTemplateEmpty      = "E101" // template is blank
	ErrUnknownType        = "E102" // token references an unregistered type
	ErrInvalidPattern     = "E103" // token regex does not compile
	ErrDuplicateCapture   = "E104" // capture name used twice in one template
	ErrShadowedTemplate   = "E105" // identical normalized template registered earlier
	ErrUnbalancedBrackets = "E106" // stray '[' or ']'
)

// ValidationError represents a template validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate compiles every template against reg and reports all problems
// found (does not fail-fast). Line is the 1-based position in templates.
func Validate(templates []string, reg *types.Registry) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]int)

	for i, tmpl := range templates {
		line := i + 1

		if strings.TrimSpace(tmpl) == "" {
			errs = append(errs, ValidationError{
				Field:   "template",
				Message: "template is empty",
				Code:    ErrTemplateEmpty,
				Line:    line,
			})
			continue
		}

		if msg := checkBrackets(tmpl); msg != "" {
			errs = append(errs, ValidationError{
				Field:   tmpl,
				Message: msg,
				Code:    ErrUnbalancedBrackets,
				Line:    line,
			})
		}

		p, err := Compile(tmpl, reg)
		if err != nil {
			errs = append(errs, compileValidationError(tmpl, line, err))
			continue
		}

		names := make(map[string]bool, len(p.Captures))
		for _, c := range p.Captures {
			if names[c.Name] {
				errs = append(errs, ValidationError{
					Field:   tmpl,
					Message: fmt.Sprintf("capture %q appears more than once; the last value wins", c.Name),
					Code:    ErrDuplicateCapture,
					Line:    line,
				})
			}
			names[c.Name] = true
		}

		if first, dup := seen[p.Normalized]; dup {
			errs = append(errs, ValidationError{
				Field:   tmpl,
				Message: fmt.Sprintf("never matches: same as template on line %d", first),
				Code:    ErrShadowedTemplate,
				Line:    line,
			})
		} else {
			seen[p.Normalized] = line
		}
	}

	return errs
}

func compileValidationError(tmpl string, line int, err error) ValidationError {
	var ute *UnknownTypeError
	if errors.As(err, &ute) {
		return ValidationError{
			Field:   tmpl,
			Message: fmt.Sprintf("unknown type %q", ute.Type),
			Code:    ErrUnknownType,
			Line:    line,
		}
	}
	var ce *CompileError
	if errors.As(err, &ce) {
		return ValidationError{
			Field:   tmpl,
			Message: ce.Message,
			Code:    ErrInvalidPattern,
			Line:    line,
		}
	}
	return ValidationError{Field: tmpl, Message: err.Error(), Code: ErrInvalidPattern, Line: line}
}

// checkBrackets reports nested or unmatched brackets outside of tokens.
// Literal regexes containing ']' cannot be expressed in a token.
func checkBrackets(tmpl string) string {
	depth := 0
	for i, r := range tmpl {
		switch r {
		case '[':
			if depth > 0 {
				return fmt.Sprintf("nested '[' at offset %d", i)
			}
			depth++
		case ']':
			if depth == 0 {
				return fmt.Sprintf("unmatched ']' at offset %d", i)
			}
			depth--
		}
	}
	if depth > 0 {
		return "unclosed '['"
	}
	return ""
}
