package tcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/roach88/omnilink/internal/board"
)

// ListenerConfig configures the receiving end.
type ListenerConfig struct {
	Addr      string
	Delimiter string // empty reads each connection to EOF
	Encoding  string
}

// Listener accepts forwarded payloads, executes the moves they carry,
// and echoes each payload as one line to its output.
type Listener struct {
	codec  *codec
	mover  board.Mover
	out    io.Writer
	logger *slog.Logger

	outMu sync.Mutex
	wg    sync.WaitGroup
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithListenerLogger sets the listener's logger.
func WithListenerLogger(l *slog.Logger) ListenerOption {
	return func(ln *Listener) {
		ln.logger = l
	}
}

// NewListener creates a listener executing moves through mover and
// echoing payloads to out. mover may be nil to only echo.
func NewListener(cfg ListenerConfig, mover board.Mover, out io.Writer, opts ...ListenerOption) (*Listener, error) {
	c, err := newCodec(cfg.Encoding, UnescapeDelimiter(cfg.Delimiter))
	if err != nil {
		return nil, fmt.Errorf("tcp listener: %w", err)
	}
	l := &Listener{codec: c, mover: mover, out: out, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (l *Listener) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("tcp listen %s: %w", addr, err)
	}
	return l.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then waits for
// in-flight connections and returns ctx.Err().
func (l *Listener) Serve(ctx context.Context, ln net.Listener) error {
	l.logger.Info("tcp listener started", "addr", ln.Addr().String(),
		"encoding", l.codec.name, "delimiter", fmt.Sprintf("%q", l.codec.delimiter))

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			l.wg.Wait()
			if ctx.Err() != nil {
				l.logger.Info("tcp listener stopped")
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("tcp accept: %w", err)
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			defer conn.Close()
			l.handleConn(ctx, conn)
		}()
	}
}

func (l *Listener) handleConn(ctx context.Context, conn net.Conn) {
	data, err := l.read(conn)
	if err != nil {
		l.logger.Error("tcp read failed", "remote", conn.RemoteAddr().String(), "error", err)
		return
	}
	if len(data) == 0 {
		return
	}
	l.HandlePayload(ctx, data)
}

// read returns one delimited payload, or everything up to EOF when no
// delimiter is configured.
func (l *Listener) read(r io.Reader) ([]byte, error) {
	if len(l.codec.delimiter) == 0 {
		return io.ReadAll(r)
	}
	last := l.codec.delimiter[len(l.codec.delimiter)-1]
	br := bufio.NewReader(r)
	var buf []byte
	for {
		chunk, err := br.ReadBytes(last)
		buf = append(buf, chunk...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return buf, nil
			}
			return buf, err
		}
		if len(buf) >= len(l.codec.delimiter) && strings.HasSuffix(string(buf), string(l.codec.delimiter)) {
			return buf, nil
		}
	}
}

// HandlePayload decodes one payload, executes the move it carries and
// echoes it.
//
// The move is taken from the first source that yields a valid one: the
// JSON vars, the JSON command, then the raw payload text.
func (l *Listener) HandlePayload(ctx context.Context, data []byte) {
	text, err := l.codec.unframe(data)
	if err != nil {
		l.logger.Error("tcp decode failed", "error", err)
		return
	}
	payload := strings.TrimSpace(text)
	if payload == "" {
		l.logger.Debug("tcp empty payload")
		return
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		parsed = nil
		l.logger.Info("tcp command", "command", payload)
	} else if cmd, _ := parsed["command"].(string); cmd != "" {
		l.logger.Info("tcp command", "command", cmd)
	}

	l.maybeMove(ctx, payload, parsed)

	l.outMu.Lock()
	fmt.Fprintln(l.out, payload)
	l.outMu.Unlock()
}

func (l *Listener) maybeMove(ctx context.Context, payload string, parsed map[string]any) {
	if l.mover == nil {
		return
	}
	if parsed != nil {
		if vars, ok := parsed["vars"].(map[string]any); ok {
			if m, ok := board.MoveFromMap(vars); ok && l.execute(ctx, m) {
				return
			}
		}
		if cmd, ok := parsed["command"].(string); ok {
			if m, ok := board.ParseMoveCommand(cmd); ok && l.execute(ctx, m) {
				return
			}
		}
	}
	if m, ok := board.ParseMoveCommand(payload); ok {
		l.execute(ctx, m)
	}
}

func (l *Listener) execute(ctx context.Context, m board.Move) bool {
	if err := l.mover.MovePiece(ctx, m); err != nil {
		l.logger.Error("tcp move failed", "move", m.String(), "error", err)
		return false
	}
	l.logger.Info("tcp move executed", "move", m.String())
	return true
}
