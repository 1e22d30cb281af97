// Package config loads omnilink settings.
//
// Settings are layered: Default, then an optional TOML file, then
// environment overrides, then Resolve fills values derived from others.
// Validate reports every problem at once.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/roach88/omnilink/internal/board"
	"github.com/roach88/omnilink/internal/bridge/mqtt"
	"github.com/roach88/omnilink/internal/bridge/remote"
	"github.com/roach88/omnilink/internal/bridge/tcp"
	"github.com/roach88/omnilink/internal/engine"
)

// DefaultPath is the config file read when none is given.
const DefaultPath = "omnilink.toml"

// Duration is a time.Duration written as "2s" or "1m30s" in files.
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full omnilink configuration.
type Config struct {
	LogLevel        string   `toml:"log_level"`
	Templates       string   `toml:"templates"`
	Catalog         string   `toml:"catalog"`
	JournalDB       string   `toml:"journal_db"`
	HistorySize     int      `toml:"history_size"`
	ContextInterval Duration `toml:"context_interval"` // 0 disables periodic context
	WSAddr          string   `toml:"ws_addr"`
	BoardURL        string   `toml:"board_url"`

	MQTT    MQTT       `toml:"mqtt"`
	Remote  Remote     `toml:"remote"`
	Forward TCPForward `toml:"forward"`
	Listen  TCPListen  `toml:"listen"`
}

// MQTT configures the publish/subscribe adapter.
type MQTT struct {
	Host          string `toml:"host"`
	Transport     string `toml:"transport"`
	Port          int    `toml:"port"` // 0 picks the transport's default
	Username      string `toml:"username"`
	Password      string `toml:"password"`
	ClientID      string `toml:"client_id"`
	CommandTopic  string `toml:"command_topic"`
	FeedbackTopic string `toml:"feedback_topic"`
	ContextTopic  string `toml:"context_topic"`
	QoSSub        int    `toml:"qos_sub"`
	QoSPub        int    `toml:"qos_pub"`
	KeepAlive     int    `toml:"keepalive"` // seconds
}

// Remote configures the polling adapter.
type Remote struct {
	BaseURL      string   `toml:"base_url"`
	AnonKey      string   `toml:"anon_key"`
	UserKey      string   `toml:"user_key"`
	PollInterval Duration `toml:"poll_interval"`
	Timeout      Duration `toml:"timeout"`
}

// TCPForward configures the socket forwarder.
type TCPForward struct {
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	Timeout   int    `toml:"timeout"` // seconds
	Delimiter string `toml:"delimiter"`
	Encoding  string `toml:"encoding"`
}

// TCPListen configures the receiving listener. Unset port, delimiter
// and encoding fall back to the forwarder's.
type TCPListen struct {
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	Delimiter string `toml:"delimiter"`
	Encoding  string `toml:"encoding"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel:    "info",
		HistorySize: engine.DefaultHistorySize,
		BoardURL:    board.DefaultURL,
		MQTT: MQTT{
			Transport:     mqtt.TransportWebsockets,
			CommandTopic:  mqtt.DefaultCommandTopic,
			FeedbackTopic: mqtt.DefaultFeedbackTopic,
			ContextTopic:  mqtt.DefaultContextTopic,
			KeepAlive:     60,
		},
		Remote: Remote{
			PollInterval: Duration(remote.DefaultPollInterval),
			Timeout:      Duration(remote.DefaultTimeout),
		},
		Forward: TCPForward{
			Host:      tcp.DefaultHost,
			Port:      tcp.DefaultPort,
			Timeout:   5,
			Delimiter: tcp.DefaultDelimiter,
			Encoding:  tcp.DefaultEncoding,
		},
		Listen: TCPListen{
			Host: "0.0.0.0",
		},
	}
}

// Load builds a Config from defaults, the file at path and environ.
//
// An empty path reads DefaultPath. A missing file is not an error.
// A nil environ reads the process environment.
func Load(path string, environ map[string]string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}
	if err := LoadFile(path, &cfg); err != nil {
		return nil, err
	}
	if err := ApplyEnv(&cfg, environ); err != nil {
		return nil, err
	}
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile merges the TOML file at path into cfg.
// Keys the file omits keep their current values; unknown keys are errors.
func LoadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil // File doesn't exist, not an error
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	defer f.Close()

	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			keys := make([]string, len(strict.Errors))
			for i := range strict.Errors {
				keys[i] = strings.Join(strict.Errors[i].Key(), ".")
			}
			return fmt.Errorf("config file %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
		return fmt.Errorf("config file %s: %w", path, err)
	}
	return nil
}

// Resolve fills values derived from other settings.
func (c *Config) Resolve() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.MQTT.Transport = strings.ToLower(strings.TrimSpace(c.MQTT.Transport))

	c.Forward.Delimiter = tcp.UnescapeDelimiter(c.Forward.Delimiter)
	if c.Listen.Port == 0 {
		c.Listen.Port = c.Forward.Port
	}
	if c.Listen.Encoding == "" {
		c.Listen.Encoding = c.Forward.Encoding
	}
	if c.Listen.Delimiter == "" {
		c.Listen.Delimiter = c.Forward.Delimiter
	}
	c.Listen.Delimiter = tcp.UnescapeDelimiter(c.Listen.Delimiter)
}

// SlogLevel maps LogLevel to a slog level. Unknown names are info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// MQTTConfig converts the MQTT section for the mqtt bridge.
func (c *Config) MQTTConfig() mqtt.Config {
	return mqtt.Config{
		Host:          c.MQTT.Host,
		Transport:     c.MQTT.Transport,
		Port:          c.MQTT.Port,
		Username:      c.MQTT.Username,
		Password:      c.MQTT.Password,
		ClientID:      c.MQTT.ClientID,
		CommandTopic:  c.MQTT.CommandTopic,
		FeedbackTopic: c.MQTT.FeedbackTopic,
		ContextTopic:  c.MQTT.ContextTopic,
		QoSSub:        byte(c.MQTT.QoSSub),
		QoSPub:        byte(c.MQTT.QoSPub),
		KeepAlive:     time.Duration(c.MQTT.KeepAlive) * time.Second,
	}
}

// RemoteConfig converts the remote section for the remote client.
func (c *Config) RemoteConfig() remote.Config {
	return remote.Config{
		BaseURL: c.Remote.BaseURL,
		AnonKey: c.Remote.AnonKey,
		UserKey: c.Remote.UserKey,
		Timeout: c.Remote.Timeout.Std(),
	}
}

// ForwarderConfig converts the forward section for the TCP forwarder.
func (c *Config) ForwarderConfig() tcp.ForwarderConfig {
	return tcp.ForwarderConfig{
		Host:      c.Forward.Host,
		Port:      c.Forward.Port,
		Timeout:   time.Duration(c.Forward.Timeout) * time.Second,
		Delimiter: c.Forward.Delimiter,
		Encoding:  c.Forward.Encoding,
	}
}

// ListenerConfig converts the listen section for the TCP listener.
func (c *Config) ListenerConfig() tcp.ListenerConfig {
	return tcp.ListenerConfig{
		Addr:      net.JoinHostPort(c.Listen.Host, strconv.Itoa(c.Listen.Port)),
		Delimiter: c.Listen.Delimiter,
		Encoding:  c.Listen.Encoding,
	}
}
