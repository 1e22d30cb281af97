package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/omnilink/internal/bridge/mqtt"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"), map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 200, cfg.HistorySize)
	assert.Equal(t, "http://localhost:8765", cfg.BoardURL)
	assert.Equal(t, time.Duration(0), cfg.ContextInterval.Std())

	assert.Equal(t, "websockets", cfg.MQTT.Transport)
	assert.Equal(t, "olink/commands", cfg.MQTT.CommandTopic)
	assert.Equal(t, "olink/commands_feedback", cfg.MQTT.FeedbackTopic)
	assert.Equal(t, "olink/context", cfg.MQTT.ContextTopic)
	assert.Equal(t, 60, cfg.MQTT.KeepAlive)

	assert.Equal(t, 2*time.Second, cfg.Remote.PollInterval.Std())
	assert.Equal(t, 10*time.Second, cfg.Remote.Timeout.Std())

	assert.Equal(t, TCPForward{Host: "localhost", Port: 8766, Timeout: 5, Delimiter: "\n", Encoding: "utf-8"}, cfg.Forward)
	assert.Equal(t, TCPListen{Host: "0.0.0.0", Port: 8766, Delimiter: "\n", Encoding: "utf-8"}, cfg.Listen)
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load("testdata/omnilink.toml", map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "commands.txt", cfg.Templates)
	assert.Equal(t, 50, cfg.HistorySize)
	assert.Equal(t, 30*time.Second, cfg.ContextInterval.Std())
	assert.Equal(t, ":8080", cfg.WSAddr)

	assert.Equal(t, "broker.local", cfg.MQTT.Host)
	assert.Equal(t, "tcp", cfg.MQTT.Transport)
	assert.Equal(t, "chess/feedback", cfg.MQTT.FeedbackTopic)
	assert.Equal(t, "olink/commands", cfg.MQTT.CommandTopic, "omitted keys keep defaults")
	assert.Equal(t, 1, cfg.MQTT.QoSPub)

	assert.Equal(t, 5*time.Second, cfg.Remote.PollInterval.Std())

	assert.Equal(t, "\r\n", cfg.Forward.Delimiter)
	assert.Equal(t, 9000, cfg.Listen.Port, "listener falls back to forwarder port")
	assert.Equal(t, "latin1", cfg.Listen.Encoding)
	assert.Equal(t, "\r\n", cfg.Listen.Delimiter)
}

func TestLoad_UnknownKey(t *testing.T) {
	_, err := Load("testdata/unknown_key.toml", map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "colour")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	cfg, err := Load("testdata/omnilink.toml", map[string]string{
		"MQTT_HOST":                 "env-broker",
		"MQTT_PORT":                 "8883",
		"OMNILINK_HISTORY_SIZE":     "0",
		"OMNILINK_CONTEXT_INTERVAL": "1m",
		"TCP_ADAPTER_DELIMITER":     `\n`,
		"TCP_CLIENT_PORT":           "7000",
		"TCP_CLIENT_HOST":           "127.0.0.1",
	})
	require.NoError(t, err)

	assert.Equal(t, "env-broker", cfg.MQTT.Host)
	assert.Equal(t, 8883, cfg.MQTT.Port)
	assert.Equal(t, "tcp", cfg.MQTT.Transport, "unset variables keep file values")
	assert.Equal(t, 0, cfg.HistorySize)
	assert.Equal(t, time.Minute, cfg.ContextInterval.Std())
	assert.Equal(t, "\n", cfg.Forward.Delimiter)
	assert.Equal(t, "\n", cfg.Listen.Delimiter)
	assert.Equal(t, "127.0.0.1:7000", cfg.ListenerConfig().Addr)
}

func TestApplyEnv_LegacyResponseTopic(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
		want    string
	}{
		{"default", map[string]string{}, "olink/commands_feedback"},
		{"legacy only", map[string]string{"MQTT_RESPONSE_TOPIC": "legacy/out"}, "legacy/out"},
		{"feedback wins", map[string]string{
			"MQTT_RESPONSE_TOPIC": "legacy/out",
			"MQTT_FEEDBACK_TOPIC": "new/out",
		}, "new/out"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			require.NoError(t, ApplyEnv(&cfg, tt.environ))
			assert.Equal(t, tt.want, cfg.MQTT.FeedbackTopic)
		})
	}
}

func TestApplyEnv_ListenerFallsBackToAdapter(t *testing.T) {
	cfg := Default()
	require.NoError(t, ApplyEnv(&cfg, map[string]string{
		"TCP_ADAPTER_PORT":     "9100",
		"TCP_ADAPTER_ENCODING": "utf-16",
		"TCP_CLIENT_ENCODING":  "latin1",
	}))
	cfg.Resolve()

	assert.Equal(t, 9100, cfg.Listen.Port)
	assert.Equal(t, "latin1", cfg.Listen.Encoding)
	assert.Equal(t, "0.0.0.0:9100", cfg.ListenerConfig().Addr)
}

func TestApplyEnv_BadValue(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(&cfg, map[string]string{"MQTT_PORT": "abc"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		fields []string
	}{
		{"valid", func(*Config) {}, nil},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, []string{"log_level"}},
		{"negative history", func(c *Config) { c.HistorySize = -1 }, []string{"history_size"}},
		{"bad transport", func(c *Config) { c.MQTT.Transport = "udp" }, []string{"mqtt.transport"}},
		{"bad qos", func(c *Config) { c.MQTT.QoSSub = 3 }, []string{"mqtt.qos_sub"}},
		{"zero poll interval", func(c *Config) { c.Remote.PollInterval = 0 }, []string{"remote.poll_interval"}},
		{"several", func(c *Config) {
			c.Forward.Port = 70000
			c.MQTT.QoSPub = -1
		}, []string{"forward.port", "listen.port", "mqtt.qos_pub"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			cfg.Resolve()
			err := cfg.Validate()
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsValidation(err))
			for _, f := range tt.fields {
				assert.Contains(t, err.Error(), "config "+f+"=")
			}
		})
	}
}

func TestConverters(t *testing.T) {
	cfg := Default()
	cfg.MQTT.Host = "broker"
	cfg.MQTT.QoSSub = 1
	cfg.Remote.BaseURL = "https://x"
	cfg.Resolve()

	m := cfg.MQTTConfig()
	assert.Equal(t, "ws://broker:9001/mqtt", m.BrokerURL())
	assert.Equal(t, byte(1), m.QoSSub)
	assert.Equal(t, time.Minute, m.KeepAlive)
	assert.Equal(t, mqtt.DefaultFeedbackTopic, m.FeedbackTopic)

	r := cfg.RemoteConfig()
	assert.Equal(t, "https://x", r.BaseURL)
	assert.Equal(t, 10*time.Second, r.Timeout)

	f := cfg.ForwarderConfig()
	assert.Equal(t, 5*time.Second, f.Timeout)
	assert.Equal(t, 8766, f.Port)
}

func TestSlogLevel(t *testing.T) {
	cfg := Default()
	for level, want := range map[string]string{
		"debug": "DEBUG", "info": "INFO", "warn": "WARN", "error": "ERROR", "": "INFO",
	} {
		cfg.LogLevel = level
		assert.Equal(t, want, cfg.SlogLevel().String(), level)
	}
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte(" 1m30s ")))
	assert.Equal(t, 90*time.Second, d.Std())

	out, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(out))

	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
