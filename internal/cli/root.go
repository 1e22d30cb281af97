package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/omnilink/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // TOML config path; empty reads config.DefaultPath

	// Environ overrides the process environment for config loading.
	// Nil reads os.Environ.
	Environ map[string]string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the omnilink CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "omnilink",
		Short: "omnilink - text command templates and dispatch",
		Long: `Match free-form text commands against human-authored templates
and dispatch them to handlers.

Templates mix literal words with bracketed tokens: [name] captures one
word, [name:type] captures a registered type, and [name:/regex/]
captures a literal regex.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "config file (default "+config.DefaultPath+")")

	cmd.AddCommand(NewParseCommand(opts))
	cmd.AddCommand(NewTypesCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewListenCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// logger builds the text logger commands hand to components.
// --verbose forces debug level.
func (o *RootOptions) logger(w io.Writer, level slog.Level) *slog.Logger {
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig layers defaults, the config file and the environment.
func (o *RootOptions) loadConfig(f *OutputFormatter) (*config.Config, error) {
	cfg, err := config.Load(o.Config, o.Environ)
	if err != nil {
		return nil, f.fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	return cfg, nil
}
