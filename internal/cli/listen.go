package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/omnilink/internal/board"
	"github.com/roach88/omnilink/internal/bridge/tcp"
)

// ListenOptions holds flags for the listen command.
type ListenOptions struct {
	*RootOptions
	Addr     string // overrides listen host/port from config
	EchoOnly bool
}

// NewListenCommand creates the listen command.
func NewListenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Receive forwarded commands over TCP",
		Long: `Accept payloads from a forwarding omnilink, execute the chess moves
they carry against the board controller, and echo each payload to
stdout.

The listen address, delimiter and encoding come from TCP_CLIENT_*
settings and fall back to the forwarder's.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address host:port (default from config)")
	cmd.Flags().BoolVar(&opts.EchoOnly, "echo-only", false, "echo payloads without moving pieces")

	return cmd
}

func runListen(opts *ListenOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	cfg, err := opts.loadConfig(f)
	if err != nil {
		return err
	}
	logger := opts.logger(cmd.ErrOrStderr(), cfg.SlogLevel())

	lcfg := cfg.ListenerConfig()
	addr := firstNonEmpty(opts.Addr, lcfg.Addr)

	var mover board.Mover
	if !opts.EchoOnly {
		mover = board.NewClient(cfg.BoardURL, board.WithLogger(logger))
	}
	ln, err := tcp.NewListener(lcfg, mover, cmd.OutOrStdout(), tcp.WithListenerLogger(logger))
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeConfig, "invalid listener config", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ln.ListenAndServe(ctx, addr); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitCommandError, "listen failed", err)
	}
	return nil
}
