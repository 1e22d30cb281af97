package mqtt

import (
	"errors"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { <-t.done; return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	Topic   string
	QoS     byte
	Payload string
}

type subscription struct {
	Topic   string
	QoS     byte
	Handler paho.MessageHandler
}

type fakeClient struct {
	mu           sync.Mutex
	published    []published
	subs         []subscription
	connects     int
	disconnected bool
	connectErr   error
	publishErr   error
}

func (c *fakeClient) IsConnected() bool      { return true }
func (c *fakeClient) IsConnectionOpen() bool { return true }

func (c *fakeClient) Connect() paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	return doneToken(c.connectErr)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	var s string
	switch p := payload.(type) {
	case []byte:
		s = string(p)
	case string:
		s = p
	}
	c.published = append(c.published, published{Topic: topic, QoS: qos, Payload: s})
	return doneToken(c.publishErr)
}

func (c *fakeClient) Subscribe(topic string, qos byte, cb paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, subscription{Topic: topic, QoS: qos, Handler: cb})
	return doneToken(nil)
}

func (c *fakeClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return doneToken(errors.New("not supported"))
}

func (c *fakeClient) Unsubscribe(...string) paho.Token { return doneToken(nil) }

func (c *fakeClient) AddRoute(string, paho.MessageHandler) {}

func (c *fakeClient) OptionsReader() paho.ClientOptionsReader {
	return paho.ClientOptionsReader{}
}

func (c *fakeClient) sent() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.published...)
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}
