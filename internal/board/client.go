package board

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DefaultURL is the board controller's default address.
const DefaultURL = "http://localhost:8765"

// Mover issues moves.
type Mover interface {
	MovePiece(ctx context.Context, m Move) error
}

// MoveListener is notified after a move was sent.
type MoveListener func(ctx context.Context, m Move)

// Client talks to the board controller over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger

	mu        sync.Mutex
	listeners []MoveListener
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client (5s timeout).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a client for the controller at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 5 * time.Second}
	}
	return c
}

// OnMove registers a listener. Listeners run in registration order after
// every successful MovePiece.
func (c *Client) OnMove(l MoveListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Send posts a raw board command as {"cmd": cmd}.
func (c *Client) Send(ctx context.Context, cmd string) error {
	body, err := json.Marshal(map[string]string{"cmd": cmd})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("board send: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("board send %q: %w", cmd, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("board send %q: status %d", cmd, resp.StatusCode)
	}
	return nil
}

// MovePiece validates m, sends it, then notifies the move listeners.
func (c *Client) MovePiece(ctx context.Context, m Move) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := c.Send(ctx, m.Command()); err != nil {
		return err
	}
	c.logger.Info("move sent", "move", m.String())

	c.mu.Lock()
	listeners := append([]MoveListener(nil), c.listeners...)
	c.mu.Unlock()
	for _, l := range listeners {
		l(ctx, m)
	}
	return nil
}

// ErrContextUnavailable is returned when the controller's /context
// endpoint fails.
var ErrContextUnavailable = errors.New("board context unavailable")

// Context fetches the board status from /context.
//
// A non-JSON body is returned trimmed. For a JSON object, full mode
// describes every piece's location after the context summary; otherwise
// the first of the context, status and data entries is returned.
func (c *Client) Context(ctx context.Context, full bool) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/context", nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrContextUnavailable, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrContextUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d", ErrContextUnavailable, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrContextUnavailable, err)
	}
	return describeContext(body, full), nil
}
