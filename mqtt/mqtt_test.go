// Copyright © 2026 The Airseekers Community
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package mqtt

import (
	"bytes"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/text"
	paho "github.com/eclipse/paho.mqtt.golang"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	// the production timeouts are far too long for tests
	ConnectTimeout = 200 * time.Millisecond
	DisconnectQuiesce = 20 * time.Millisecond
	AckTimeout = 100 * time.Millisecond
	os.Exit(m.Run())
}

func newTestContext(c C) (log.Interface, func()) {
	var logs bytes.Buffer
	ctx := &log.Logger{
		Handler: text.New(&logs),
		Level:   log.DebugLevel,
	}
	return ctx, func() {
		if logs.Len() > 0 {
			c.Printf("\n%s", logs.String())
		}
	}
}

func TestConnect(t *testing.T) {
	Convey("Given a new Client with a fake transport", t, func(c C) {
		ctx, dump := newTestContext(c)
		defer dump()

		fake := newFakeClient()
		var capturedOpts *paho.ClientOptions
		client := New(testIdentity(t), nil, ctx)
		client.newClient = func(opts *paho.ClientOptions) paho.Client {
			capturedOpts = opts
			return fake
		}

		Convey("The initial state should be Disconnected", func() {
			So(client.State(), ShouldEqual, Disconnected)
			So(client.IsConnected(), ShouldBeFalse)
		})

		Convey("When the broker acknowledges the connection", func() {
			err := client.Connect()
			Convey("There should be no error and the state should be Connected", func() {
				So(err, ShouldBeNil)
				So(client.State(), ShouldEqual, Connected)
				So(client.IsConnected(), ShouldBeTrue)
			})
			Convey("A second Connect should be refused", func() {
				So(client.Connect(), ShouldEqual, ErrAlreadyConnected)
			})
			Convey("When the connection is lost", func() {
				creds := client.creds
				So(creds, ShouldNotBeNil)
				capturedOpts.OnConnectionLost(fake, errors.New("broken pipe"))
				Convey("The state should be Disconnected again", func() {
					So(client.State(), ShouldEqual, Disconnected)
				})
				Convey("The provisioned credentials should be destroyed", func() {
					So(creds.destroyed(), ShouldBeTrue)
				})
				Convey("A Disconnect afterwards should be a no-op", func() {
					client.Disconnect()
					So(fake.disconnectCalls, ShouldEqual, 0)
					So(creds.destroyed(), ShouldBeTrue)
				})
			})
		})

		Convey("When the broker refuses the connection", func() {
			fake.connectToken = completedToken(errors.New("bad certificate"))
			err := client.Connect()
			Convey("There should be an error and the state should be Disconnected", func() {
				So(err, ShouldNotBeNil)
				So(client.State(), ShouldEqual, Disconnected)
				So(client.IsConnected(), ShouldBeFalse)
			})
		})

		Convey("When the broker never acknowledges the connection", func() {
			fake.connectToken = newFakeToken()
			err := client.Connect()
			Convey("Connect should time out and stop the network loop", func() {
				So(err, ShouldEqual, ErrConnectTimeout)
				So(client.State(), ShouldEqual, Disconnected)
				So(fake.disconnectCalls, ShouldEqual, 1)
			})
		})
	})

	Convey("Given a Client with a broken TLS identity", t, func(c C) {
		ctx, dump := newTestContext(c)
		defer dump()

		identity := testIdentity(t)
		identity.CA = "not a certificate"
		client := New(identity, nil, ctx)

		Convey("Connect should fail without retrying", func() {
			So(client.Connect(), ShouldEqual, ErrInvalidCA)
			So(client.State(), ShouldEqual, Disconnected)
		})
	})

	Convey("Given a Client with a malformed broker address", t, func(c C) {
		ctx, dump := newTestContext(c)
		defer dump()

		identity := testIdentity(t)
		identity.Broker = "no-port-here"
		client := New(identity, nil, ctx)

		Convey("Connect should fail and the state should be Disconnected", func() {
			So(client.Connect(), ShouldNotBeNil)
			So(client.State(), ShouldEqual, Disconnected)
		})
	})
}

func TestDisconnect(t *testing.T) {
	Convey("Given a connected Client", t, func(c C) {
		ctx, dump := newTestContext(c)
		defer dump()

		fake := newFakeClient()
		client := New(testIdentity(t), nil, ctx)
		client.newClient = func(opts *paho.ClientOptions) paho.Client { return fake }
		So(client.Connect(), ShouldBeNil)

		Convey("When calling Disconnect", func() {
			client.Disconnect()
			Convey("The transport should have been told to disconnect once", func() {
				So(fake.disconnectCalls, ShouldEqual, 1)
				So(client.State(), ShouldEqual, Disconnected)
			})
			Convey("A second Disconnect should be a no-op", func() {
				client.Disconnect()
				So(fake.disconnectCalls, ShouldEqual, 1)
			})
		})
	})

	Convey("Given a Client that never connected", t, func(c C) {
		ctx, dump := newTestContext(c)
		defer dump()

		client := New(testIdentity(t), nil, ctx)
		Convey("Disconnect should be a no-op", func() {
			client.Disconnect()
			So(client.State(), ShouldEqual, Disconnected)
		})
	})
}

func TestSubscribe(t *testing.T) {
	Convey("Given a Client with a fake transport", t, func(c C) {
		ctx, dump := newTestContext(c)
		defer dump()

		fake := newFakeClient()
		client := New(testIdentity(t), nil, ctx)
		client.newClient = func(opts *paho.ClientOptions) paho.Client { return fake }

		Convey("Subscribe before Connect should fail without touching the transport", func() {
			So(client.Subscribe("device/42/status"), ShouldEqual, ErrNotConnected)
			So(fake.subscribeCalls, ShouldEqual, 0)
		})

		Convey("When connected", func() {
			So(client.Connect(), ShouldBeNil)

			Convey("Subscribe should succeed when the broker acknowledges", func() {
				So(client.Subscribe("device/42/status"), ShouldBeNil)
				So(fake.subscriptions, ShouldContainKey, "device/42/status")
				So(client.pendingCount(), ShouldEqual, 0)
			})

			Convey("Subscribe should time out when the acknowledgement never arrives", func() {
				fake.subscribeToken = newFakeToken()
				err := client.Subscribe("device/42/status")
				Convey("There should be a timeout error and no pending record left", func() {
					So(err, ShouldEqual, ErrAckTimeout)
					So(client.pendingCount(), ShouldEqual, 0)
				})
			})

			Convey("A concurrent subscribe to the same topic should be refused", func() {
				fake.subscribeToken = newFakeToken()
				first := make(chan error, 1)
				go func() {
					first <- client.Subscribe("device/42/status")
				}()
				time.Sleep(20 * time.Millisecond)
				So(client.Subscribe("device/42/status"), ShouldEqual, ErrOperationPending)
				So(<-first, ShouldEqual, ErrAckTimeout)
			})

			Convey("Subscribe should report a synchronous refusal immediately", func() {
				fake.subscribeToken = completedToken(errors.New("connection exception"))
				err := client.Subscribe("device/42/status")
				So(err, ShouldNotBeNil)
				So(client.pendingCount(), ShouldEqual, 0)
			})
		})
	})
}

func TestUnsubscribe(t *testing.T) {
	Convey("Given a Client with a fake transport", t, func(c C) {
		ctx, dump := newTestContext(c)
		defer dump()

		fake := newFakeClient()
		client := New(testIdentity(t), nil, ctx)
		client.newClient = func(opts *paho.ClientOptions) paho.Client { return fake }

		Convey("Unsubscribe before Connect should fail", func() {
			So(client.Unsubscribe("device/42/status"), ShouldEqual, ErrNotConnected)
		})

		Convey("When connected and subscribed", func() {
			So(client.Connect(), ShouldBeNil)
			So(client.Subscribe("device/42/status"), ShouldBeNil)

			Convey("Unsubscribe should remove the subscription", func() {
				So(client.Unsubscribe("device/42/status"), ShouldBeNil)
				So(fake.subscriptions, ShouldNotContainKey, "device/42/status")
				So(client.pendingCount(), ShouldEqual, 0)
			})
		})
	})
}

func TestPublish(t *testing.T) {
	Convey("Given a connected Client with a fake transport", t, func(c C) {
		ctx, dump := newTestContext(c)
		defer dump()

		fake := newFakeClient()
		client := New(testIdentity(t), nil, ctx)
		client.newClient = func(opts *paho.ClientOptions) paho.Client { return fake }

		Convey("Publish before Connect should fail", func() {
			So(client.Publish("device/42/command", "x"), ShouldEqual, ErrNotConnected)
		})

		Convey("When connected", func() {
			So(client.Connect(), ShouldBeNil)

			Convey("A publish that is flushed immediately should return without tracking", func() {
				err := client.Publish("device/42/command", map[string]interface{}{"action": "lock"})
				So(err, ShouldBeNil)
				So(client.pendingCount(), ShouldEqual, 0)
				So(fake.publishes, ShouldHaveLength, 1)
				So(string(fake.publishes[0].payload), ShouldEqual, `{"action":"lock"}`)
			})

			Convey("String payloads should be sent as-is", func() {
				So(client.Publish("device/42/command", "raw-text"), ShouldBeNil)
				So(string(fake.publishes[0].payload), ShouldEqual, "raw-text")
			})

			Convey("A publish acknowledged later should wait for the acknowledgement", func() {
				token := newFakeToken()
				token.mid = 7
				fake.publishToken = token
				fake.nextPublishMID = 7
				go func() {
					time.Sleep(30 * time.Millisecond)
					token.complete(nil)
				}()
				So(client.Publish("device/42/command", "payload"), ShouldBeNil)
				So(client.pendingCount(), ShouldEqual, 0)
			})

			Convey("A publish that is never acknowledged should time out and clean up", func() {
				stale := newFakeToken()
				stale.mid = 9
				fake.publishToken = stale
				fake.nextPublishMID = 9
				So(client.Publish("device/42/command", "payload"), ShouldEqual, ErrAckTimeout)
				So(client.pendingCount(), ShouldEqual, 0)

				Convey("A late acknowledgement must not affect a new publish reusing the id", func() {
					stale.complete(errors.New("too late"))
					fake.publishToken = completedToken(nil)
					So(client.Publish("device/42/command", "payload"), ShouldBeNil)
					So(client.pendingCount(), ShouldEqual, 0)
				})
			})
		})
	})
}

func TestDispatch(t *testing.T) {
	Convey("Given a connected Client with a handler", t, func(c C) {
		ctx, dump := newTestContext(c)
		defer dump()

		type delivery struct {
			topic   string
			payload interface{}
		}
		received := make(chan delivery, 1)

		fake := newFakeClient()
		client := New(testIdentity(t), func(topic string, payload interface{}) {
			received <- delivery{topic, payload}
		}, ctx)
		client.newClient = func(opts *paho.ClientOptions) paho.Client { return fake }
		So(client.Connect(), ShouldBeNil)
		So(client.Subscribe("device/42/status"), ShouldBeNil)

		Convey("A JSON payload should arrive decoded", func() {
			fake.deliver("device/42/status", []byte(`{"battery":80}`))
			select {
			case msg := <-received:
				So(msg.topic, ShouldEqual, "device/42/status")
				payload, ok := msg.payload.(map[string]interface{})
				So(ok, ShouldBeTrue)
				So(payload["battery"], ShouldEqual, 80)
			case <-time.After(time.Second):
				So("Timeout Exceeded", ShouldBeFalse)
			}
		})

		Convey("A non-JSON payload should arrive as raw text", func() {
			fake.deliver("device/42/status", []byte("not-json"))
			select {
			case msg := <-received:
				So(msg.payload, ShouldEqual, "not-json")
			case <-time.After(time.Second):
				So("Timeout Exceeded", ShouldBeFalse)
			}
		})

		Convey("A panicking handler should not break the delivery path", func() {
			client.SetHandler(func(topic string, payload interface{}) {
				panic("boom")
			})
			fake.deliver("device/42/status", []byte(`{}`))
			time.Sleep(20 * time.Millisecond)
			// next delivery still works
			client.SetHandler(func(topic string, payload interface{}) {
				received <- delivery{topic, payload}
			})
			fake.deliver("device/42/status", []byte(`{}`))
			select {
			case <-received:
			case <-time.After(time.Second):
				So("Timeout Exceeded", ShouldBeFalse)
			}
		})
	})

	Convey("Given a connected Client without a handler", t, func(c C) {
		ctx, dump := newTestContext(c)
		defer dump()

		fake := newFakeClient()
		client := New(testIdentity(t), nil, ctx)
		client.newClient = func(opts *paho.ClientOptions) paho.Client { return fake }
		So(client.Connect(), ShouldBeNil)
		So(client.Subscribe("device/42/status"), ShouldBeNil)

		Convey("Messages should be dropped silently", func() {
			So(func() {
				fake.deliver("device/42/status", []byte(`{"battery":80}`))
			}, ShouldNotPanic)
		})
	})
}
