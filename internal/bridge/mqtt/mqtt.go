// Package mqtt bridges an MQTT broker to the engine.
//
// Commands arrive on the command topic as raw text or a JSON object (see
// bridge.DecodeCommand). Every command is answered with only
// {"feedback": bool}, on the command's reply_to topic or the feedback
// topic. Context strings go to the context topic as {"context": "..."}.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/roach88/omnilink/internal/bridge"
)

// Transport values.
const (
	TransportWebsockets = "websockets"
	TransportTCP        = "tcp"
)

// Default topics.
const (
	DefaultCommandTopic  = "olink/commands"
	DefaultFeedbackTopic = "olink/commands_feedback"
	DefaultContextTopic  = "olink/context"
)

// Config describes the broker connection and topics.
type Config struct {
	Host      string
	Transport string // websockets or tcp
	Port      int    // 0 picks 9001 for websockets, 1883 for tcp
	Username  string
	Password  string
	ClientID  string

	CommandTopic  string
	FeedbackTopic string
	ContextTopic  string

	QoSSub    byte
	QoSPub    byte
	KeepAlive time.Duration

	// PublishTimeout bounds how long a publish waits for the broker.
	PublishTimeout time.Duration
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.Transport == "" {
		c.Transport = TransportWebsockets
	}
	if c.Port == 0 {
		c.Port = 1883
		if c.Transport == TransportWebsockets {
			c.Port = 9001
		}
	}
	if c.CommandTopic == "" {
		c.CommandTopic = DefaultCommandTopic
	}
	if c.FeedbackTopic == "" {
		c.FeedbackTopic = DefaultFeedbackTopic
	}
	if c.ContextTopic == "" {
		c.ContextTopic = DefaultContextTopic
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = 60 * time.Second
	}
	if c.PublishTimeout == 0 {
		c.PublishTimeout = 5 * time.Second
	}
	return c
}

// BrokerURL returns the broker address for the configured transport.
func (c Config) BrokerURL() string {
	c = c.withDefaults()
	if c.Transport == TransportWebsockets {
		return fmt.Sprintf("ws://%s:%d/mqtt", c.Host, c.Port)
	}
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}

// Validate checks the fields a connection needs.
func (c Config) Validate() error {
	if c.Host == "" {
		return errors.New("mqtt: host is required")
	}
	switch c.Transport {
	case "", TransportWebsockets, TransportTCP:
	default:
		return fmt.Errorf("mqtt: unknown transport %q (want websockets or tcp)", c.Transport)
	}
	if c.QoSSub > 2 || c.QoSPub > 2 {
		return fmt.Errorf("mqtt: qos must be 0, 1 or 2")
	}
	return nil
}

// Bridge relays commands from MQTT into a bridge.Handler.
type Bridge struct {
	cfg     Config
	handler bridge.Handler
	client  paho.Client
	logger  *slog.Logger
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge's logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = l
	}
}

// WithClient uses c instead of a paho client built from the config.
// The caller is responsible for calling OnConnect when c connects.
func WithClient(c paho.Client) Option {
	return func(b *Bridge) {
		b.client = c
	}
}

// New creates a bridge. The connection is made by Run.
func New(cfg Config, h bridge.Handler, opts ...Option) *Bridge {
	b := &Bridge{
		cfg:     cfg.withDefaults(),
		handler: h,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.client == nil {
		b.client = paho.NewClient(b.clientOptions())
	}
	return b
}

func (b *Bridge) clientOptions() *paho.ClientOptions {
	opts := paho.NewClientOptions().
		AddBroker(b.cfg.BrokerURL()).
		SetClientID(b.cfg.ClientID).
		SetKeepAlive(b.cfg.KeepAlive).
		SetAutoReconnect(true).
		// Handlers publish replies; they must run concurrently with the
		// client's receive loop.
		SetOrderMatters(false).
		SetOnConnectHandler(b.OnConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			b.logger.Warn("mqtt connection lost", "error", err)
		})
	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
		opts.SetPassword(b.cfg.Password)
	}
	return opts
}

// Run connects, serves until ctx is cancelled, then disconnects.
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("mqtt bridge connecting",
		"broker", b.cfg.BrokerURL(), "command_topic", b.cfg.CommandTopic)

	if err := wait(ctx, b.client.Connect()); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", b.cfg.BrokerURL(), err)
	}

	<-ctx.Done()
	b.client.Disconnect(250)
	b.logger.Info("mqtt bridge stopped")
	return ctx.Err()
}

// OnConnect subscribes to the command topic. It runs on every
// (re)connect.
func (b *Bridge) OnConnect(c paho.Client) {
	b.logger.Info("mqtt connected", "broker", b.cfg.BrokerURL(), "transport", b.cfg.Transport)
	tok := c.Subscribe(b.cfg.CommandTopic, b.cfg.QoSSub, b.OnMessage)
	if !tok.WaitTimeout(b.cfg.PublishTimeout) {
		b.logger.Error("mqtt subscribe timed out", "topic", b.cfg.CommandTopic)
		return
	}
	if err := tok.Error(); err != nil {
		b.logger.Error("mqtt subscribe failed", "topic", b.cfg.CommandTopic, "error", err)
		return
	}
	b.logger.Info("mqtt subscribed", "topic", b.cfg.CommandTopic)
}

// OnMessage handles one command message.
func (b *Bridge) OnMessage(c paho.Client, msg paho.Message) {
	cmd, err := bridge.DecodeCommand(msg.Payload())
	if err != nil {
		b.logger.Warn("mqtt decode failed", "topic", msg.Topic(), "error", err)
		b.reply(c, "", false)
		return
	}
	b.logger.Debug("mqtt command received", "topic", msg.Topic(), "command", cmd.Text)

	_, feedback := bridge.Dispatch(b.handler, cmd)
	b.reply(c, cmd.ReplyTo, feedback)
}

func (b *Bridge) reply(c paho.Client, replyTo string, feedback bool) {
	topic := replyTo
	if topic == "" {
		topic = b.cfg.FeedbackTopic
	}
	if err := b.publish(c, topic, bridge.EncodeFeedback(feedback)); err != nil {
		b.logger.Error("mqtt feedback publish failed", "topic", topic, "error", err)
		return
	}
	b.logger.Debug("mqtt feedback sent", "topic", topic, "feedback", feedback)
}

// PublishContext publishes {"context": text} to the context topic.
func (b *Bridge) PublishContext(ctx context.Context, text string) error {
	tok := b.client.Publish(b.cfg.ContextTopic, b.cfg.QoSPub, false, bridge.EncodeContext(text))
	if err := wait(ctx, tok); err != nil {
		return fmt.Errorf("mqtt publish context: %w", err)
	}
	return nil
}

func (b *Bridge) publish(c paho.Client, topic string, payload []byte) error {
	tok := c.Publish(topic, b.cfg.QoSPub, false, payload)
	if !tok.WaitTimeout(b.cfg.PublishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return tok.Error()
}

// wait blocks until tok completes or ctx is done. A completed token
// wins over a done ctx.
func wait(ctx context.Context, tok paho.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	default:
	}
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
