// Copyright © 2026 The Airseekers Community
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package mqtt

import (
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// fakeToken implements paho.Token (and the message id accessor of publish
// tokens) with test-controlled completion.
type fakeToken struct {
	mu   sync.Mutex
	done chan struct{}
	err  error
	mid  uint16
}

func newFakeToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func completedToken(err error) *fakeToken {
	t := newFakeToken()
	t.complete(err)
	return t
}

func (t *fakeToken) complete(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
	close(t.done)
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} {
	return t.done
}

func (t *fakeToken) Error() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *fakeToken) MessageID() uint16 {
	return t.mid
}

// fakeClient implements paho.Client without a network. Tokens returned by
// Connect, Subscribe and Publish are configured by the test.
type fakeClient struct {
	mu sync.Mutex

	connected bool

	connectToken    *fakeToken
	subscribeToken  *fakeToken
	publishToken    *fakeToken
	nextPublishMID  uint16
	subscriptions   map[string]paho.MessageHandler
	publishes       []fakePublish
	subscribeCalls  int
	disconnectCalls int
}

type fakePublish struct {
	topic   string
	payload []byte
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		subscriptions: make(map[string]paho.MessageHandler),
	}
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) IsConnectionOpen() bool {
	return c.IsConnected()
}

func (c *fakeClient) Connect() paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	token := c.connectToken
	if token == nil {
		token = completedToken(nil)
	}
	select {
	case <-token.Done():
		c.connected = token.Error() == nil
	default:
		go func() {
			<-token.Done()
			c.mu.Lock()
			c.connected = token.Error() == nil
			c.mu.Unlock()
		}()
	}
	return token
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCalls++
	c.connected = false
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	var body []byte
	switch p := payload.(type) {
	case string:
		body = []byte(p)
	case []byte:
		body = p
	}
	c.publishes = append(c.publishes, fakePublish{topic: topic, payload: body})
	token := c.publishToken
	if token == nil {
		token = completedToken(nil)
	}
	token.mid = c.nextPublishMID
	return token
}

func (c *fakeClient) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribeCalls++
	c.subscriptions[topic] = callback
	token := c.subscribeToken
	if token == nil {
		token = completedToken(nil)
	}
	return token
}

func (c *fakeClient) SubscribeMultiple(filters map[string]byte, callback paho.MessageHandler) paho.Token {
	for topic := range filters {
		c.Subscribe(topic, filters[topic], callback)
	}
	return completedToken(nil)
}

func (c *fakeClient) Unsubscribe(topics ...string) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		delete(c.subscriptions, topic)
	}
	return completedToken(nil)
}

func (c *fakeClient) AddRoute(topic string, callback paho.MessageHandler) {}

func (c *fakeClient) OptionsReader() paho.ClientOptionsReader {
	return paho.ClientOptionsReader{}
}

// deliver invokes the handler registered for a topic, the way paho's router
// would from its delivery goroutine
func (c *fakeClient) deliver(topic string, payload []byte) {
	c.mu.Lock()
	handler := c.subscriptions[topic]
	c.mu.Unlock()
	if handler != nil {
		handler(c, &fakeMessage{topic: topic, payload: payload})
	}
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return SubscribeQoS }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}
