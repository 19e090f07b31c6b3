// Copyright © 2026 The Airseekers Community
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package mqtt

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/apex/log"
	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/airseekers-community/device-connector-bridge/types"
)

// ConnectTimeout is how long Connect waits for the broker's acknowledgement
var ConnectTimeout = 10 * time.Second

// DisconnectQuiesce is how long Disconnect waits for in-flight work before
// the network loop is stopped regardless
var DisconnectQuiesce = 5 * time.Second

// AckTimeout is how long Subscribe and Publish wait for their acknowledgement
var AckTimeout = 5 * time.Second

// KeepAlive is the MQTT keep-alive interval
var KeepAlive = 60 * time.Second

// QoS 1 on both directions: the broker confirms subscriptions and publishes,
// which is what the acknowledgement tracking below relies on.
var (
	SubscribeQoS byte = 0x01
	PublishQoS   byte = 0x01
)

// State of the broker connection
type State int32

// Connection states. Transitions are driven by broker acknowledgements and
// connection-lost callbacks, never set ahead of them.
const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "disconnected"
}

// Handler receives inbound messages. The payload is the decoded JSON value
// when the message body parses as JSON, the raw text otherwise.
type Handler func(topic string, payload interface{})

// Client connects to the Airseekers MQTT broker with the TLS identity issued
// by the cloud. All methods are safe for concurrent use; every wait is
// bounded by a timeout.
type Client struct {
	ctx  log.Interface
	cert *types.IoTCertificate

	// newClient is replaced in tests
	newClient func(*paho.ClientOptions) paho.Client

	mu     sync.Mutex
	client paho.Client
	creds  *credentials

	stateMu sync.RWMutex
	state   State

	pending *pendingOps

	handlerMu sync.RWMutex
	handler   Handler
}

// New returns a new Client for the given TLS identity. The identity is
// consumed by Connect; inbound messages go to handler, which may be nil.
func New(cert *types.IoTCertificate, handler Handler, ctx log.Interface) *Client {
	return &Client{
		ctx:  ctx.WithField("Connector", "MQTT"),
		cert: cert,
		newClient: func(opts *paho.ClientOptions) paho.Client {
			return paho.NewClient(opts)
		},
		pending: newPendingOps(),
		handler: handler,
	}
}

// State returns the current connection state
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// IsConnected returns whether the client is connected to the broker
func (c *Client) IsConnected() bool {
	if c.State() != Connected {
		return false
	}
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	return client != nil && client.IsConnected()
}

func (c *Client) setState(state State) {
	c.stateMu.Lock()
	c.state = state
	c.stateMu.Unlock()
}

// transition moves from one state to another; it reports false when the
// client was not in the expected state.
func (c *Client) transition(from, to State) bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.state != from {
		return false
	}
	c.state = to
	return true
}

// SetHandler replaces the inbound message handler
func (c *Client) SetHandler(handler Handler) {
	c.handlerMu.Lock()
	c.handler = handler
	c.handlerMu.Unlock()
}

// Connect provisions the TLS identity, starts the network loop and waits for
// the broker's connect acknowledgement. On failure or timeout the provisioned
// credentials are destroyed and the state is Disconnected again. Only one
// connection attempt may be in flight at a time.
func (c *Client) Connect() error {
	if !c.transition(Disconnected, Connecting) {
		return ErrAlreadyConnected
	}

	if _, _, err := net.SplitHostPort(c.cert.Broker); err != nil {
		c.setState(Disconnected)
		return fmt.Errorf("mqtt: invalid broker address %q: %s", c.cert.Broker, err)
	}

	creds, err := provision(c.cert)
	if err != nil {
		c.setState(Disconnected)
		return err
	}

	opts := paho.NewClientOptions()
	opts.AddBroker("ssl://" + c.cert.Broker)
	opts.SetClientID(c.cert.ClientID)
	opts.SetTLSConfig(creds.TLSConfig())
	opts.SetKeepAlive(KeepAlive)
	opts.SetCleanSession(true)
	// the lifecycle is explicit: a lost connection is reported, not repaired
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(ConnectTimeout)
	opts.SetOnConnectHandler(func(_ paho.Client) {
		c.ctx.Debug("Broker acknowledged connection")
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.handleConnectionLost(err)
	})
	opts.SetDefaultPublishHandler(func(_ paho.Client, msg paho.Message) {
		c.handleMessage(msg.Topic(), msg.Payload())
	})

	client := c.newClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(ConnectTimeout) {
		client.Disconnect(0)
		creds.destroy()
		c.setState(Disconnected)
		return ErrConnectTimeout
	}
	if err := token.Error(); err != nil {
		creds.destroy()
		c.setState(Disconnected)
		return fmt.Errorf("mqtt: could not connect to broker: %s", err)
	}

	c.mu.Lock()
	c.client = client
	c.creds = creds
	c.mu.Unlock()
	c.setState(Connected)
	c.ctx.WithField("Broker", c.cert.Broker).Info("Connected")
	return nil
}

func (c *Client) handleConnectionLost(err error) {
	c.setState(Disconnected)
	// the network loop is already gone, but the provisioned key material
	// must still be wiped before a reconnect provisions new credentials
	_, creds := c.release()
	if creds != nil {
		creds.destroy()
	}
	c.ctx.WithError(err).Warn("Connection lost")
}

// release moves the transport and credentials out of the client so that
// each is torn down at most once.
func (c *Client) release() (paho.Client, *credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	client, creds := c.client, c.creds
	c.client = nil
	c.creds = nil
	return client, creds
}

// Disconnect requests a disconnect from the broker and waits up to
// DisconnectQuiesce for in-flight work; after that the network loop is
// stopped regardless. The provisioned credentials are destroyed in every
// case, including when the connection was already lost. Calling Disconnect
// when not connected is a no-op.
func (c *Client) Disconnect() {
	wasConnected := c.transition(Connected, Disconnected)

	client, creds := c.release()
	if client != nil {
		client.Disconnect(uint(DisconnectQuiesce / time.Millisecond))
	}
	if creds != nil {
		creds.destroy()
	}
	if wasConnected {
		c.ctx.Info("Disconnected")
	}
}

// Subscribe subscribes to a topic and waits for the broker's acknowledgement.
// A second subscribe to the same topic while the first is still unacknowledged
// is refused with ErrOperationPending.
func (c *Client) Subscribe(topic string) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	key := subscribeKey(topic)
	if err := c.pending.add(key); err != nil {
		return err
	}
	defer c.pending.remove(key)

	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}

	token := client.Subscribe(topic, SubscribeQoS, func(_ paho.Client, msg paho.Message) {
		c.handleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(AckTimeout) {
		c.ctx.WithField("Topic", topic).Warn("Subscribe not acknowledged in time")
		return ErrAckTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: could not subscribe to %s: %s", topic, err)
	}
	c.ctx.WithField("Topic", topic).Debug("Subscribed")
	return nil
}

// Unsubscribe removes a topic subscription and waits for the broker's
// acknowledgement.
func (c *Client) Unsubscribe(topic string) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	key := unsubscribeKey(topic)
	if err := c.pending.add(key); err != nil {
		return err
	}
	defer c.pending.remove(key)

	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}

	token := client.Unsubscribe(topic)
	if !token.WaitTimeout(AckTimeout) {
		c.ctx.WithField("Topic", topic).Warn("Unsubscribe not acknowledged in time")
		return ErrAckTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: could not unsubscribe from %s: %s", topic, err)
	}
	c.ctx.WithField("Topic", topic).Debug("Unsubscribed")
	return nil
}

// Publish sends a payload to a topic. Maps, slices and structs are encoded
// as JSON; strings and byte slices are sent as-is. When the message is
// flushed immediately Publish returns without waiting; otherwise it waits up
// to AckTimeout for the broker's acknowledgement, correlated by the
// broker-assigned message id.
func (c *Client) Publish(topic string, payload interface{}) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	body, err := encodePayload(payload)
	if err != nil {
		return fmt.Errorf("mqtt: could not encode payload: %s", err)
	}

	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}

	token := client.Publish(topic, PublishQoS, false, body)
	select {
	case <-token.Done():
		// flushed (or refused) before we got here: nothing to track
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt: could not publish to %s: %s", topic, err)
		}
		c.ctx.WithField("Topic", topic).Debug("Published")
		return nil
	default:
	}

	key := publishKey(messageID(token))
	if err := c.pending.add(key); err != nil {
		return err
	}
	defer c.pending.remove(key)

	if !token.WaitTimeout(AckTimeout) {
		c.ctx.WithField("Topic", topic).Warn("Publish not acknowledged in time")
		return ErrAckTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: could not publish to %s: %s", topic, err)
	}
	c.ctx.WithField("Topic", topic).Debug("Published")
	return nil
}

func (c *Client) pendingCount() int {
	return c.pending.len()
}

// handleMessage is invoked from paho's delivery goroutine. Decoding happens
// here; delivery to the handler happens on a fresh goroutine so the delivery
// loop can continue with the next network event immediately.
func (c *Client) handleMessage(topic string, payload []byte) {
	c.handlerMu.RLock()
	handler := c.handler
	c.handlerMu.RUnlock()
	if handler == nil {
		c.ctx.WithField("Topic", topic).Debug("No handler registered, dropping message")
		return
	}
	decoded := decodePayload(payload)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				c.ctx.WithField("Topic", topic).WithField("Panic", p).Error("Message handler panicked")
			}
		}()
		handler(topic, decoded)
	}()
}

func decodePayload(payload []byte) interface{} {
	var decoded interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return string(payload)
	}
	return decoded
}

func encodePayload(payload interface{}) ([]byte, error) {
	switch p := payload.(type) {
	case string:
		return []byte(p), nil
	case []byte:
		return p, nil
	default:
		return json.Marshal(p)
	}
}

// messageIDer is implemented by paho's publish tokens
type messageIDer interface {
	MessageID() uint16
}

func messageID(token paho.Token) uint16 {
	if t, ok := token.(messageIDer); ok {
		return t.MessageID()
	}
	return 0
}
