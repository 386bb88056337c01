package hfp

import (
	"context"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mini-rodalies-3d/tracker/internal/log"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

// fakeBroker records commands and lets tests push messages
type fakeBroker struct {
	opts *mqtt.ClientOptions

	mu           sync.Mutex
	open         bool
	subscribed   []string
	unsubscribed []string
	callbacks    map[string]mqtt.MessageHandler
	disconnects  int
}

func (f *fakeBroker) IsConnected() bool      { return f.IsConnectionOpen() }
func (f *fakeBroker) IsConnectionOpen() bool { f.mu.Lock(); defer f.mu.Unlock(); return f.open }

func (f *fakeBroker) Connect() mqtt.Token {
	f.mu.Lock()
	f.open = true
	f.mu.Unlock()
	if f.opts.OnConnect != nil {
		f.opts.OnConnect(f)
	}
	return doneToken{}
}

func (f *fakeBroker) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	f.disconnects++
}

func (f *fakeBroker) Publish(string, byte, bool, interface{}) mqtt.Token { return doneToken{} }

func (f *fakeBroker) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, topic)
	f.callbacks[topic] = cb
	return doneToken{}
}

func (f *fakeBroker) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return doneToken{}
}

func (f *fakeBroker) Unsubscribe(topics ...string) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, topics...)
	for _, t := range topics {
		delete(f.callbacks, t)
	}
	return doneToken{}
}

func (f *fakeBroker) AddRoute(string, mqtt.MessageHandler) {}

func (f *fakeBroker) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.NewOptionsReader(f.opts)
}

func (f *fakeBroker) push(topic string, payload []byte) {
	f.mu.Lock()
	cb := f.callbacks[topic]
	f.mu.Unlock()
	if cb != nil {
		cb(f, fakeMessage{topic: topic, payload: payload})
	}
}

func (f *fakeBroker) commands() (subs, unsubs []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subscribed...), append([]string(nil), f.unsubscribed...)
}

func newTestClient(t *testing.T) (*Client, *fakeBroker) {
	t.Helper()
	broker := &fakeBroker{callbacks: make(map[string]mqtt.MessageHandler)}
	c := NewClient("tcp://broker.test:1883", "", log.Discard())
	c.newClient = func(opts *mqtt.ClientOptions) mqtt.Client {
		broker.opts = opts
		return broker
	}
	return c, broker
}

func TestClient_RepeatedCommandsAreNoOps(t *testing.T) {
	c, broker := newTestClient(t)
	require.NoError(t, c.Connect(context.Background(), func(string, []byte) {}))

	require.NoError(t, c.Subscribe("a"))
	require.NoError(t, c.Subscribe("a"))
	require.NoError(t, c.Unsubscribe("b"))
	require.NoError(t, c.Unsubscribe("a"))
	require.NoError(t, c.Unsubscribe("a"))

	subs, unsubs := broker.commands()
	assert.Equal(t, []string{"a"}, subs)
	assert.Equal(t, []string{"a"}, unsubs)
	assert.Empty(t, c.Topics())
}

func TestClient_SubscriptionsBeforeConnectAreRestored(t *testing.T) {
	c, broker := newTestClient(t)

	require.NoError(t, c.Subscribe("b"))
	require.NoError(t, c.Subscribe("a"))
	assert.Equal(t, []string{"a", "b"}, c.Topics())

	require.NoError(t, c.Connect(context.Background(), func(string, []byte) {}))

	subs, _ := broker.commands()
	assert.Equal(t, []string{"a", "b"}, subs)
}

func TestClient_ReconnectResubscribes(t *testing.T) {
	c, broker := newTestClient(t)
	require.NoError(t, c.Connect(context.Background(), func(string, []byte) {}))
	require.NoError(t, c.Subscribe("a"))

	broker.opts.OnConnect(broker)

	subs, _ := broker.commands()
	assert.Equal(t, []string{"a", "a"}, subs)
}

func TestClient_DeliversUntilClosed(t *testing.T) {
	c, broker := newTestClient(t)

	var mu sync.Mutex
	var got []string
	require.NoError(t, c.Connect(context.Background(), func(topic string, payload []byte) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, topic+"="+string(payload))
	}))
	require.NoError(t, c.Subscribe("a"))

	broker.push("a", []byte("1"))
	require.NoError(t, c.Close())
	broker.push("a", []byte("2"))

	mu.Lock()
	assert.Equal(t, []string{"a=1"}, got)
	mu.Unlock()

	assert.Equal(t, 1, broker.disconnects)
	assert.ErrorIs(t, c.Subscribe("b"), ErrClosed)
	assert.ErrorIs(t, c.Connect(context.Background(), nil), ErrClosed)

	// idempotent
	require.NoError(t, c.Close())
	assert.Equal(t, 1, broker.disconnects)
}
