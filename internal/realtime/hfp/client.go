package hfp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/mini-rodalies-3d/tracker/internal/log"
)

const (
	qosAtMostOnce     = 0
	disconnectQuiesce = 250 // ms
)

var ErrClosed = errors.New("hfp: client closed")

// Client is the MQTT transport for the positioning feed. It remembers the
// active topic set so repeated subscribe/unsubscribe calls are no-ops and
// the set is restored after a reconnect. Commands are fire-and-forget:
// broker acknowledgements are only logged.
type Client struct {
	brokerURL string
	clientID  string
	lg        *log.Logger

	// newClient is swapped out in tests
	newClient func(*mqtt.ClientOptions) mqtt.Client

	mu      sync.Mutex
	conn    mqtt.Client
	handler func(topic string, payload []byte)
	topics  map[string]struct{}
	closed  bool
}

// NewClient creates an MQTT transport; an empty clientID gets a random one
func NewClient(brokerURL, clientID string, lg *log.Logger) *Client {
	if clientID == "" {
		clientID = "tracker-" + uuid.NewString()
	}
	return &Client{
		brokerURL: brokerURL,
		clientID:  clientID,
		lg:        lg,
		newClient: mqtt.NewClient,
		topics:    make(map[string]struct{}),
	}
}

// Connect dials the broker and routes every message to handle. It returns
// once connected, when ctx is done, or on a connection error.
func (c *Client) Connect(ctx context.Context, handle func(topic string, payload []byte)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.handler = handle
	opts := mqtt.NewClientOptions().
		AddBroker(c.brokerURL).
		SetClientID(c.clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(15 * time.Second).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			c.lg.Warn("MQTT connection lost", "broker", c.brokerURL, "error", err)
		})
	c.conn = c.newClient(opts)
	conn := c.conn
	c.mu.Unlock()

	token := conn.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to connect to %s: %w", c.brokerURL, err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	c.lg.Info("MQTT connected", "broker", c.brokerURL, "client_id", c.clientID)
	return nil
}

// onConnect restores the topic set; with a clean session the broker has
// forgotten it after every reconnect.
func (c *Client) onConnect(conn mqtt.Client) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	topics := sortedTopics(c.topics)
	c.mu.Unlock()

	for _, topic := range topics {
		c.watch("subscribe", topic, conn.Subscribe(topic, qosAtMostOnce, c.deliver))
	}
}

func (c *Client) deliver(_ mqtt.Client, msg mqtt.Message) {
	c.mu.Lock()
	handle, closed := c.handler, c.closed
	c.mu.Unlock()

	if closed || handle == nil {
		return
	}
	handle(msg.Topic(), msg.Payload())
}

// Subscribe adds topic to the active set. Subscribing to a topic already in
// the set does nothing.
func (c *Client) Subscribe(topic string) error {
	conn, changed, err := c.update(topic, true)
	if err != nil || !changed || conn == nil {
		return err
	}
	c.watch("subscribe", topic, conn.Subscribe(topic, qosAtMostOnce, c.deliver))
	return nil
}

// Unsubscribe removes topic from the active set; unknown topics are ignored
func (c *Client) Unsubscribe(topic string) error {
	conn, changed, err := c.update(topic, false)
	if err != nil || !changed || conn == nil {
		return err
	}
	c.watch("unsubscribe", topic, conn.Unsubscribe(topic))
	return nil
}

// update edits the topic set and returns the connection to notify, if any.
// Broker calls happen outside c.mu since paho may be blocked delivering a
// message to c.deliver.
func (c *Client) update(topic string, add bool) (mqtt.Client, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, false, ErrClosed
	}
	_, present := c.topics[topic]
	if present == add {
		return nil, false, nil
	}
	if add {
		c.topics[topic] = struct{}{}
	} else {
		delete(c.topics, topic)
	}
	if c.conn == nil || !c.conn.IsConnectionOpen() {
		return nil, true, nil
	}
	return c.conn, true, nil
}

// Topics returns the active topic set, sorted
func (c *Client) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedTopics(c.topics)
}

// Close disconnects. No new delivery starts after Close returns.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.handler = nil
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		conn.Disconnect(disconnectQuiesce)
	}
	c.lg.Info("MQTT disconnected", "broker", c.brokerURL)
	return nil
}

// watch logs the outcome of a broker command without blocking the caller
func (c *Client) watch(op, topic string, token mqtt.Token) {
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			c.lg.Warn("MQTT command failed", "op", op, "topic", topic, "error", err)
		} else {
			c.lg.Debug("MQTT command acknowledged", "op", op, "topic", topic)
		}
	}()
}

func sortedTopics(m map[string]struct{}) []string {
	topics := make([]string, 0, len(m))
	for t := range m {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}
