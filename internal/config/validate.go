package config

import (
	"errors"
	"fmt"

	"github.com/roach88/omnilink/internal/bridge/mqtt"
)

// ValidationError is one invalid setting.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config %s=%v: %s", e.Field, e.Value, e.Message)
}

// Validate reports every invalid setting, joined.
// Adapter credentials are checked by the adapters that need them.
func (c *Config) Validate() error {
	var errs []error
	add := func(field string, value any, msg string) {
		errs = append(errs, &ValidationError{Field: field, Value: value, Message: msg})
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("log_level", c.LogLevel, "want debug, info, warn or error")
	}
	if c.HistorySize < 0 {
		add("history_size", c.HistorySize, "must not be negative")
	}
	if c.ContextInterval < 0 {
		add("context_interval", c.ContextInterval.Std(), "must not be negative")
	}

	switch c.MQTT.Transport {
	case mqtt.TransportWebsockets, mqtt.TransportTCP:
	default:
		add("mqtt.transport", c.MQTT.Transport, "want websockets or tcp")
	}
	checkPort := func(field string, port int, allowZero bool) {
		if port < 0 || port > 65535 || (port == 0 && !allowZero) {
			add(field, port, "not a valid port")
		}
	}
	checkPort("mqtt.port", c.MQTT.Port, true)
	checkPort("forward.port", c.Forward.Port, false)
	checkPort("listen.port", c.Listen.Port, false)
	checkQoS := func(field string, qos int) {
		if qos < 0 || qos > 2 {
			add(field, qos, "want 0, 1 or 2")
		}
	}
	checkQoS("mqtt.qos_sub", c.MQTT.QoSSub)
	checkQoS("mqtt.qos_pub", c.MQTT.QoSPub)
	if c.MQTT.KeepAlive < 0 {
		add("mqtt.keepalive", c.MQTT.KeepAlive, "must not be negative")
	}

	if c.Remote.PollInterval <= 0 {
		add("remote.poll_interval", c.Remote.PollInterval.Std(), "must be positive")
	}
	if c.Remote.Timeout < 0 {
		add("remote.timeout", c.Remote.Timeout.Std(), "must not be negative")
	}
	if c.Forward.Timeout < 0 {
		add("forward.timeout", c.Forward.Timeout, "must not be negative")
	}

	return errors.Join(errs...)
}

// IsValidation reports whether err contains a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
