package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/omnilink/internal/engine"
	"github.com/roach88/omnilink/internal/ir"
)

// NewParseCommand creates the parse command.
func NewParseCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <templates> <text...>",
		Short: "Match text against a template file",
		Long: `Match one command against the templates in a line file or CUE catalog
and print the first matching template with its captured values.

Exit codes:
  0 - The text matched a template
  1 - No template matched
  2 - Command error (templates not found or invalid)

Examples:
  omnilink parse templates.txt move white knight from b1 to c3
  omnilink parse catalog.cue "wait 5 seconds" --format json`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(rootOpts, args[0], strings.Join(args[1:], " "), cmd)
		},
	}
	return cmd
}

func runParse(opts *RootOptions, path, text string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	eng, err := loadEngine(f, path,
		engine.WithHistorySize(0),
		engine.WithLogger(opts.logger(cmd.ErrOrStderr(), slog.LevelWarn)),
	)
	if err != nil {
		return err
	}

	res := eng.Parse(text)
	if !res.Matched {
		msg := fmt.Sprintf("no template matched %q", text)
		if f.JSON() {
			_ = f.Failure(ErrCodeNoMatch, msg, res)
		} else {
			fmt.Fprintln(f.Writer, "✗ No template matched")
		}
		return NewExitError(ExitFailure, msg)
	}

	if f.JSON() {
		return f.Success(res)
	}
	printParse(f, res)
	return nil
}

func printParse(f *OutputFormatter, res ir.ParseResult) {
	w := f.Writer
	fmt.Fprintf(w, "✓ %s\n", res.Template)
	for _, v := range res.Vars.Entries() {
		fmt.Fprintf(w, "  %s = %s\n", v.Name, formatValue(v.Value))
	}
}
