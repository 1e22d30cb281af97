package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/omnilink/internal/board"
	"github.com/roach88/omnilink/internal/bridge/mqtt"
	"github.com/roach88/omnilink/internal/bridge/remote"
	"github.com/roach88/omnilink/internal/bridge/tcp"
	"github.com/roach88/omnilink/internal/bridge/ws"
	"github.com/roach88/omnilink/internal/config"
	"github.com/roach88/omnilink/internal/engine"
	"github.com/roach88/omnilink/internal/outbox"
	"github.com/roach88/omnilink/internal/publish"
	"github.com/roach88/omnilink/internal/source"
	"github.com/roach88/omnilink/internal/store"
)

// DefaultWSAddr is the WebSocket listen address when none is configured.
const DefaultWSAddr = ":8767"

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Templates        string // overrides config templates/catalog
	Database         string // overrides config journal_db
	MQTT             bool
	Remote           bool
	WS               bool
	WSAddr           string
	WSPath           string
	Forward          bool
	ForwardUnmatched bool // forward unmatched commands too
	Watch            bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine behind the selected adapters",
		Long: `Load templates, build the engine and feed it commands from the
selected adapters until SIGINT or SIGTERM.

Matched chess moves are sent to the board controller. With --forward,
matched commands are forwarded over TCP instead, and with
--forward-unmatched every command is. Every handled command
is journaled when a database is configured.

Examples:
  omnilink serve --templates templates.txt --mqtt
  omnilink serve --templates catalog.cue --remote --ws --db journal.db
  omnilink serve --templates templates.txt --mqtt --forward --watch`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Templates, "templates", "", "templates file or CUE catalog (default from config)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "journal database (default from config)")
	cmd.Flags().BoolVar(&opts.MQTT, "mqtt", false, "subscribe to MQTT commands")
	cmd.Flags().BoolVar(&opts.Remote, "remote", false, "poll the remote record store")
	cmd.Flags().BoolVar(&opts.WS, "ws", false, "serve a WebSocket command endpoint")
	cmd.Flags().StringVar(&opts.WSAddr, "ws-addr", "", "WebSocket listen address (default from config, else "+DefaultWSAddr+")")
	cmd.Flags().StringVar(&opts.WSPath, "ws-path", "/ws", "WebSocket endpoint path")
	cmd.Flags().BoolVar(&opts.Forward, "forward", false, "forward matched commands over TCP instead of moving pieces")
	cmd.Flags().BoolVar(&opts.ForwardUnmatched, "forward-unmatched", false, "with --forward, also forward commands that matched no template")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "register templates appended to the templates file")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	if !opts.MQTT && !opts.Remote && !opts.WS {
		return f.fail(ExitCommandError, ErrCodeGeneric, "no adapter selected (use --mqtt, --remote or --ws)", nil)
	}
	if opts.ForwardUnmatched && !opts.Forward {
		return f.fail(ExitCommandError, ErrCodeGeneric, "--forward-unmatched requires --forward", nil)
	}

	cfg, err := opts.loadConfig(f)
	if err != nil {
		return err
	}
	logger := opts.logger(cmd.ErrOrStderr(), cfg.SlogLevel())

	path := templatesPath(opts.Templates, cfg)
	if path == "" {
		return f.fail(ExitCommandError, ErrCodeLoad, "no templates configured (use --templates or OMNILINK_TEMPLATES)", nil)
	}
	eng, err := loadEngine(f, path,
		engine.WithHistorySize(cfg.HistorySize),
		engine.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	if db := firstNonEmpty(opts.Database, cfg.JournalDB); db != "" {
		st, err := store.Open(db)
		if err != nil {
			return f.fail(ExitCommandError, ErrCodeDatabase, "failed to open journal", err)
		}
		defer st.Close()
		eng.After(store.JournalMiddleware(st, store.DefaultJournalTimeout))
		logger.Info("journal attached", "db", db)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	// Adapters are built first so the action handler can publish
	// through them; none of them runs before the handler is registered.
	var (
		runners []func(context.Context) error
		pubs    publish.Multi
	)

	if opts.MQTT {
		mcfg := cfg.MQTTConfig()
		if err := mcfg.Validate(); err != nil {
			return f.fail(ExitCommandError, ErrCodeConfig, "invalid mqtt config", err)
		}
		b := mqtt.New(mcfg, eng, mqtt.WithLogger(logger))
		pubs = append(pubs, b)
		runners = append(runners, b.Run)
	}

	if opts.WS {
		srv := ws.New(eng, ws.WithLogger(logger))
		addr := firstNonEmpty(opts.WSAddr, cfg.WSAddr, DefaultWSAddr)
		pubs = append(pubs, srv)
		runners = append(runners, func(ctx context.Context) error {
			return srv.ListenAndServe(ctx, addr, opts.WSPath)
		})
	}

	if opts.Remote {
		client, err := remote.NewClient(cfg.RemoteConfig())
		if err != nil {
			return f.fail(ExitCommandError, ErrCodeConfig, "invalid remote config", err)
		}
		poller := remote.NewPoller(client, eng,
			remote.WithInterval(cfg.Remote.PollInterval.Std()),
			remote.WithLogger(logger),
		)
		runners = append(runners, poller.Run)
	}

	action, err := registerAction(opts, cfg, eng, pubs, logger)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeConfig, "failed to set up command action", err)
	}
	runners = append(runners, action...)

	if opts.Watch {
		resolved, err := source.Resolve(path, "")
		if err != nil {
			return f.fail(ExitCommandError, ErrCodeNotFound, "cannot watch templates", err)
		}
		w, err := source.NewWatcher(resolved, templateSource(resolved, eng.Types()), eng, source.WithLogger(logger))
		if err != nil {
			return f.fail(ExitCommandError, ErrCodeGeneric, "cannot watch templates", err)
		}
		defer w.Close()
		runners = append(runners, w.Run)
	}

	for _, run := range runners {
		g.Go(func() error { return run(gctx) })
	}

	logger.Info("omnilink serving",
		"templates", len(eng.Templates()),
		"mqtt", opts.MQTT, "remote", opts.Remote, "ws", opts.WS, "forward", opts.Forward)

	err = g.Wait()
	logger.Info("omnilink stopped", "handled", eng.Metrics()[engine.CounterCalls])
	if err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitCommandError, "serve failed", err)
	}
	return nil
}

// registerAction routes commands to the board controller, or to the TCP
// forwarder with --forward, and returns the workers that deliver them.
func registerAction(opts *ServeOptions, cfg *config.Config, eng *engine.Engine, pubs publish.Multi, logger *slog.Logger) ([]func(context.Context) error, error) {
	if opts.Forward {
		fwd, err := tcp.NewForwarder(cfg.ForwarderConfig(), tcp.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		var route engine.Predicate = engine.Matched{}
		if opts.ForwardUnmatched {
			route = engine.Always{}
		}
		eng.On(route, fwd)
		return []func(context.Context) error{fwd.Run}, nil
	}

	client := board.NewClient(cfg.BoardURL, board.WithLogger(logger))
	moves := outbox.NewQueue[board.Move]()
	eng.On(engine.Always{}, board.NewMoveHandler(moves))
	runners := []func(context.Context) error{board.NewMoveWorker(moves, client, logger).Run}

	if len(pubs) == 0 {
		return runners, nil
	}
	client.OnMove(board.PublishContextOnMove(client, pubs, logger))
	if interval := cfg.ContextInterval.Std(); interval > 0 {
		p, err := publish.NewPeriodic(pubs, board.ContextProducer(client), interval, publish.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		runners = append(runners, p.Run)
	}
	return runners, nil
}

func templatesPath(flag string, cfg *config.Config) string {
	return firstNonEmpty(flag, cfg.Catalog, cfg.Templates)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
