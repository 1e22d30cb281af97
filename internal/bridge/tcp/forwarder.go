package tcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/roach88/omnilink/internal/ir"
	"github.com/roach88/omnilink/internal/outbox"
)

// ForwarderConfig locates the receiving endpoint.
type ForwarderConfig struct {
	Host      string
	Port      int
	Timeout   time.Duration
	Delimiter string
	Encoding  string
}

// Payload is what the forwarder sends for one event.
type Payload struct {
	Command   string    `json:"command"`
	Template  string    `json:"template,omitempty"`
	Vars      *ir.Vars  `json:"vars,omitempty"`
	Meta      ir.Meta   `json:"meta,omitempty"`
	Text      string    `json:"text,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PayloadFromEvent builds the payload for ev. Empty vars and meta are
// omitted.
func PayloadFromEvent(ev ir.Event) Payload {
	p := Payload{
		Command:   ev.Command,
		Template:  ev.Template,
		Text:      ev.Text,
		Timestamp: ev.Timestamp,
	}
	if ev.Vars.Len() > 0 {
		v := ev.Vars
		p.Vars = &v
	}
	if len(ev.Meta) > 0 {
		p.Meta = ev.Meta
	}
	return p
}

// Forwarder is an engine handler that queues every event it receives for
// delivery to a TCP endpoint. Run drains the queue.
type Forwarder struct {
	addr    string
	timeout time.Duration
	codec   *codec
	queue   *outbox.Queue[Payload]
	logger  *slog.Logger
}

// ForwarderOption configures a Forwarder.
type ForwarderOption func(*Forwarder)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ForwarderOption {
	return func(f *Forwarder) {
		f.logger = l
	}
}

// NewForwarder validates cfg and creates a forwarder.
func NewForwarder(cfg ForwarderConfig, opts ...ForwarderOption) (*Forwarder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	c, err := newCodec(cfg.Encoding, UnescapeDelimiter(cfg.Delimiter))
	if err != nil {
		return nil, fmt.Errorf("tcp forwarder: %w", err)
	}

	f := &Forwarder{
		addr:    net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		timeout: cfg.Timeout,
		codec:   c,
		queue:   outbox.NewQueue[Payload](),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Addr is the endpoint address.
func (f *Forwarder) Addr() string {
	return f.addr
}

// Handle implements engine.Handler. Events without command text are
// declined.
func (f *Forwarder) Handle(ev ir.Event) (any, error) {
	if ev.Command == "" {
		f.logger.Warn("tcp forwarder: event has no command", "event_id", ev.ID)
		return ir.Ack{Ack: false}, nil
	}
	if !f.queue.Enqueue(PayloadFromEvent(ev)) {
		return ir.Ack{Ack: false, Error: "forwarder stopped"}, nil
	}
	return ir.Ack{Ack: true}, nil
}

// Send delivers one payload on its own connection.
func (f *Forwarder) Send(ctx context.Context, p Payload) error {
	text, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("tcp send: %w", err)
	}
	data, err := f.codec.frame(string(text))
	if err != nil {
		return fmt.Errorf("tcp send: %w", err)
	}

	d := net.Dialer{Timeout: f.timeout}
	conn, err := d.DialContext(ctx, "tcp", f.addr)
	if err != nil {
		return fmt.Errorf("tcp send failed: %w", err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(f.timeout)); err != nil {
		return fmt.Errorf("tcp send failed: %w", err)
	}
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("tcp send failed: %w", err)
	}
	f.logger.Info("tcp forwarded", "addr", f.addr, "command", p.Command)
	return nil
}

// Run delivers queued payloads until ctx is cancelled or Close was
// called and the queue drained.
func (f *Forwarder) Run(ctx context.Context) error {
	w := outbox.NewWorker("tcp-forward", f.queue, f.Send, outbox.WithLogger[Payload](f.logger))
	return w.Run(ctx)
}

// Close stops accepting events. Queued payloads are still delivered.
func (f *Forwarder) Close() {
	f.queue.Close()
}
