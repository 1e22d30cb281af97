package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/omnilink/internal/compiler"
	"github.com/roach88/omnilink/internal/types"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool                       `json:"valid"`
	Templates int                        `json:"templates"`
	Errors    []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <templates>",
		Short: "Compile templates and report every problem",
		Long: `Compile every template in a line file or CUE catalog without
stopping at the first failure.

Reports unknown types, invalid regexes, unbalanced brackets, repeated
capture names and templates that can never match because an identical
one is registered earlier.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	reg := types.New()
	templates, err := loadTemplates(f, path, reg)
	if err != nil {
		return err
	}
	if len(templates) == 0 {
		return f.fail(ExitCommandError, ErrCodeLoad, fmt.Sprintf("no templates found in %s", path), nil)
	}

	errs := compiler.Validate(templates, reg)
	if len(errs) > 0 {
		return outputValidationErrors(f, len(templates), errs)
	}
	return outputValidateSuccess(f, len(templates))
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(f *OutputFormatter, count int) error {
	if f.JSON() {
		return f.Success(ValidationResult{Valid: true, Templates: count})
	}
	fmt.Fprintf(f.Writer, "✓ All %d template(s) valid\n", count)
	return nil
}

// outputValidationErrors outputs every validation error.
func outputValidationErrors(f *OutputFormatter, count int, errs []compiler.ValidationError) error {
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if f.JSON() {
		result := ValidationResult{Valid: false, Templates: count, Errors: errs}
		if err := f.Failure(errs[0].Code, errs[0].Message, result); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintln(f.Writer, "✗ Validation failed")
	fmt.Fprintln(f.Writer)
	for _, e := range errs {
		if e.Line > 0 {
			fmt.Fprintf(f.Writer, "line %d: %s\n", e.Line, e.Field)
		}
		fmt.Fprintf(f.Writer, "  %s: %s\n\n", e.Code, e.Message)
	}
	return exitErr
}
