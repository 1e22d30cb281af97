// Package ws serves a WebSocket command endpoint.
//
// Every text frame a client sends is a command payload (raw text or the
// JSON object bridge.DecodeCommand accepts) and is answered with a
// {"feedback": bool} frame. Context pushes are broadcast to every
// connected client as {"context": "..."}.
package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/omnilink/internal/bridge"
	"github.com/roach88/omnilink/internal/ir"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// DefaultMaxClients limits concurrent connections.
	DefaultMaxClients = 100
)

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex // one writer at a time
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *client) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Server is the WebSocket adapter.
type Server struct {
	handler    bridge.Handler
	upgrader   websocket.Upgrader
	maxClients int
	logger     *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMaxClients limits concurrent connections.
func WithMaxClients(n int) Option {
	return func(s *Server) {
		s.maxClients = n
	}
}

// WithCheckOrigin overrides the upgrader's origin check. By default only
// requests without an Origin header or from the same host are accepted.
func WithCheckOrigin(f func(r *http.Request) bool) Option {
	return func(s *Server) {
		s.upgrader.CheckOrigin = f
	}
}

// New creates a server relaying commands to h.
func New(h bridge.Handler, opts ...Option) *Server {
	s := &Server{
		handler: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		maxClients: DefaultMaxClients,
		logger:     slog.Default(),
		clients:    make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// ServeHTTP upgrades the request and serves commands until the client
// goes away.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.Clients() >= s.maxClients {
		http.Error(w, "maximum clients reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn}
	s.add(c)
	defer func() {
		s.remove(c)
		conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go s.keepAlive(c, done)

	s.logger.Info("websocket client connected", "remote", r.RemoteAddr)
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", "remote", r.RemoteAddr, "error", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		feedback := s.handle(data)
		if err := c.write(bridge.EncodeFeedback(feedback)); err != nil {
			s.logger.Warn("websocket write failed", "remote", r.RemoteAddr, "error", err)
			return
		}
	}
}

func (s *Server) handle(data []byte) bool {
	cmd, err := bridge.DecodeCommand(data)
	if err != nil {
		s.logger.Warn("websocket decode failed", "error", err)
		return false
	}
	if cmd.Meta == nil {
		cmd.Meta = ir.Meta{}
	}
	if _, ok := cmd.Meta["source"]; !ok {
		cmd.Meta["source"] = "ws"
	}
	_, feedback := bridge.Dispatch(s.handler, cmd)
	s.logger.Debug("websocket command handled", "command", cmd.Text, "feedback", feedback)
	return feedback
}

func (s *Server) keepAlive(c *client, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

func (s *Server) add(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c] = struct{}{}
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c)
}

// PublishContext broadcasts {"context": text} to every client. Clients
// that fail the write are skipped; the error joins their failures.
func (s *Server) PublishContext(_ context.Context, text string) error {
	payload := bridge.EncodeContext(text)

	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	var errs []error
	for _, c := range clients {
		if err := c.write(payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ListenAndServe serves the endpoint at path on addr until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr, path string) error {
	if path == "" {
		path = "/ws"
	}
	mux := http.NewServeMux()
	mux.Handle(path, s)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("websocket endpoint listening", "addr", addr, "path", path)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("websocket server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("websocket shutdown: %w", err)
	}
	s.logger.Info("websocket endpoint stopped")
	return ctx.Err()
}
