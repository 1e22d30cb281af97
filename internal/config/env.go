package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// Environment variables with special handling.
const (
	envFeedbackTopic       = "MQTT_FEEDBACK_TOPIC"
	envLegacyResponseTopic = "MQTT_RESPONSE_TOPIC"
)

// overrides holds raw env values. It is seeded from the current Config
// so variables that are unset leave those values alone.
type overrides struct {
	LogLevel        string        `env:"OMNILINK_LOG_LEVEL"`
	Templates       string        `env:"OMNILINK_TEMPLATES"`
	Catalog         string        `env:"OMNILINK_CATALOG"`
	JournalDB       string        `env:"OMNILINK_JOURNAL_DB"`
	HistorySize     int           `env:"OMNILINK_HISTORY_SIZE"`
	ContextInterval time.Duration `env:"OMNILINK_CONTEXT_INTERVAL"`
	WSAddr          string        `env:"OMNILINK_WS_ADDR"`
	BoardURL        string        `env:"CHESS_SERVER_URL"`

	MQTTHost          string `env:"MQTT_HOST"`
	MQTTTransport     string `env:"MQTT_TRANSPORT"`
	MQTTPort          int    `env:"MQTT_PORT"`
	MQTTUsername      string `env:"MQTT_USERNAME"`
	MQTTPassword      string `env:"MQTT_PASSWORD"`
	MQTTClientID      string `env:"MQTT_CLIENT_ID"`
	MQTTCommandTopic  string `env:"MQTT_COMMAND_TOPIC"`
	MQTTFeedbackTopic string `env:"MQTT_FEEDBACK_TOPIC"`
	MQTTResponseTopic string `env:"MQTT_RESPONSE_TOPIC"`
	MQTTContextTopic  string `env:"MQTT_CONTEXT_TOPIC"`
	MQTTQoSSub        int    `env:"MQTT_QOS_SUB"`
	MQTTQoSPub        int    `env:"MQTT_QOS_PUB"`
	MQTTKeepAlive     int    `env:"MQTT_KEEPALIVE"`

	RemoteBaseURL      string        `env:"OMNILINK_REMOTE_BASE_URL"`
	RemoteAnonKey      string        `env:"OMNILINK_REMOTE_ANON_KEY"`
	RemoteUserKey      string        `env:"OMNILINK_REMOTE_USER_KEY"`
	RemotePollInterval time.Duration `env:"OMNILINK_REMOTE_POLL_INTERVAL"`
	RemoteTimeout      time.Duration `env:"OMNILINK_REMOTE_TIMEOUT"`

	ForwardHost      string `env:"TCP_ADAPTER_HOST"`
	ForwardPort      int    `env:"TCP_ADAPTER_PORT"`
	ForwardTimeout   int    `env:"TCP_ADAPTER_TIMEOUT"`
	ForwardDelimiter string `env:"TCP_ADAPTER_DELIMITER"`
	ForwardEncoding  string `env:"TCP_ADAPTER_ENCODING"`

	ListenHost      string `env:"TCP_CLIENT_HOST"`
	ListenPort      int    `env:"TCP_CLIENT_PORT"`
	ListenDelimiter string `env:"TCP_CLIENT_DELIMITER"`
	ListenEncoding  string `env:"TCP_CLIENT_ENCODING"`
}

// ApplyEnv overrides cfg with the variables set in environ.
// A nil environ reads the process environment.
//
// MQTT_RESPONSE_TOPIC is honored as the feedback topic when
// MQTT_FEEDBACK_TOPIC is not set.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	if environ == nil {
		environ = env.ToMap(os.Environ())
	}

	o := seed(cfg)
	if err := env.ParseWithOptions(&o, env.Options{Environment: environ}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if _, ok := environ[envFeedbackTopic]; !ok && o.MQTTResponseTopic != "" {
		o.MQTTFeedbackTopic = o.MQTTResponseTopic
	}
	o.apply(cfg)
	return nil
}

func seed(c *Config) overrides {
	return overrides{
		LogLevel:        c.LogLevel,
		Templates:       c.Templates,
		Catalog:         c.Catalog,
		JournalDB:       c.JournalDB,
		HistorySize:     c.HistorySize,
		ContextInterval: c.ContextInterval.Std(),
		WSAddr:          c.WSAddr,
		BoardURL:        c.BoardURL,

		MQTTHost:          c.MQTT.Host,
		MQTTTransport:     c.MQTT.Transport,
		MQTTPort:          c.MQTT.Port,
		MQTTUsername:      c.MQTT.Username,
		MQTTPassword:      c.MQTT.Password,
		MQTTClientID:      c.MQTT.ClientID,
		MQTTCommandTopic:  c.MQTT.CommandTopic,
		MQTTFeedbackTopic: c.MQTT.FeedbackTopic,
		MQTTContextTopic:  c.MQTT.ContextTopic,
		MQTTQoSSub:        c.MQTT.QoSSub,
		MQTTQoSPub:        c.MQTT.QoSPub,
		MQTTKeepAlive:     c.MQTT.KeepAlive,

		RemoteBaseURL:      c.Remote.BaseURL,
		RemoteAnonKey:      c.Remote.AnonKey,
		RemoteUserKey:      c.Remote.UserKey,
		RemotePollInterval: c.Remote.PollInterval.Std(),
		RemoteTimeout:      c.Remote.Timeout.Std(),

		ForwardHost:      c.Forward.Host,
		ForwardPort:      c.Forward.Port,
		ForwardTimeout:   c.Forward.Timeout,
		ForwardDelimiter: c.Forward.Delimiter,
		ForwardEncoding:  c.Forward.Encoding,

		ListenHost:      c.Listen.Host,
		ListenPort:      c.Listen.Port,
		ListenDelimiter: c.Listen.Delimiter,
		ListenEncoding:  c.Listen.Encoding,
	}
}

func (o overrides) apply(c *Config) {
	c.LogLevel = o.LogLevel
	c.Templates = o.Templates
	c.Catalog = o.Catalog
	c.JournalDB = o.JournalDB
	c.HistorySize = o.HistorySize
	c.ContextInterval = Duration(o.ContextInterval)
	c.WSAddr = o.WSAddr
	c.BoardURL = o.BoardURL

	c.MQTT = MQTT{
		Host:          o.MQTTHost,
		Transport:     o.MQTTTransport,
		Port:          o.MQTTPort,
		Username:      o.MQTTUsername,
		Password:      o.MQTTPassword,
		ClientID:      o.MQTTClientID,
		CommandTopic:  o.MQTTCommandTopic,
		FeedbackTopic: o.MQTTFeedbackTopic,
		ContextTopic:  o.MQTTContextTopic,
		QoSSub:        o.MQTTQoSSub,
		QoSPub:        o.MQTTQoSPub,
		KeepAlive:     o.MQTTKeepAlive,
	}
	c.Remote = Remote{
		BaseURL:      o.RemoteBaseURL,
		AnonKey:      o.RemoteAnonKey,
		UserKey:      o.RemoteUserKey,
		PollInterval: Duration(o.RemotePollInterval),
		Timeout:      Duration(o.RemoteTimeout),
	}
	c.Forward = TCPForward{
		Host:      o.ForwardHost,
		Port:      o.ForwardPort,
		Timeout:   o.ForwardTimeout,
		Delimiter: o.ForwardDelimiter,
		Encoding:  o.ForwardEncoding,
	}
	c.Listen = TCPListen{
		Host:      o.ListenHost,
		Port:      o.ListenPort,
		Delimiter: o.ListenDelimiter,
		Encoding:  o.ListenEncoding,
	}
}
