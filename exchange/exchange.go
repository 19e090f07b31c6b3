// Copyright © 2026 The Airseekers Community
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/airseekers-community/device-connector-bridge/discovery"
	"github.com/airseekers-community/device-connector-bridge/middleware"
	"github.com/airseekers-community/device-connector-bridge/mqtt"
	"github.com/airseekers-community/device-connector-bridge/types"
	"github.com/apex/log"
	mapset "github.com/deckarep/golang-set"
)

// Cloud is the account API surface the exchange drives
type Cloud interface {
	ServerHost() (string, error)
	Login() error
	IoTCertificate() (*types.IoTCertificate, error)
	Devices() ([]types.Device, error)
	LockDevice(deviceID string) error
	UnlockDevice(deviceID string) error
	BindDevice(deviceID string) error
	UnbindDevice(deviceID string) error
}

// Broker is the MQTT surface the exchange drives
type Broker interface {
	Connect() error
	Disconnect()
	Subscribe(topic string) error
	Unsubscribe(topic string) error
	Publish(topic string, payload interface{}) error
	IsConnected() bool
}

// Exchange connects the account API, the MQTT broker and the local
// BLE scanner. It owns the set of watched devices, routes their inbound
// status messages through the middleware chain to the registered consumer,
// and sends commands the other way.
type Exchange struct {
	ctx log.Interface
	mu  sync.Mutex

	cloud     Cloud
	broker    Broker
	newBroker func(cert *types.IoTCertificate, handler mqtt.Handler, ctx log.Interface) Broker
	scanner   *discovery.Scanner

	middleware middleware.Chain

	devices deviceState

	consumerMu sync.RWMutex
	consumer   func(*types.StatusMessage)
}

// New initializes a new Exchange on top of the given account client
func New(cloud Cloud, ctx log.Interface) *Exchange {
	return &Exchange{
		ctx:   ctx,
		cloud: cloud,
		newBroker: func(cert *types.IoTCertificate, handler mqtt.Handler, ctx log.Interface) Broker {
			return mqtt.New(cert, handler, ctx)
		},
		devices: mapset.NewSet(),
	}
}

// SetScanner sets the BLE scanner used during discovery. Without a scanner,
// discovery returns cloud devices only.
func (b *Exchange) SetScanner(scanner *discovery.Scanner) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scanner = scanner
}

// SetMiddleware sets the middleware chain that messages pass through
func (b *Exchange) SetMiddleware(chain middleware.Chain) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = chain
}

// SetConsumer registers the callback that receives status messages after
// they pass the middleware chain
func (b *Exchange) SetConsumer(f func(*types.StatusMessage)) {
	b.consumerMu.Lock()
	defer b.consumerMu.Unlock()
	b.consumer = f
}

// Init resolves the regional server host and logs in
func (b *Exchange) Init() error {
	host, err := b.cloud.ServerHost()
	if err != nil {
		return err
	}
	b.ctx.WithField("Host", host).Debug("Resolved server host")
	return b.cloud.Login()
}

// Discover lists the account's cloud devices and, when a scanner is
// configured, scans for nearby devices over BLE
func (b *Exchange) Discover(ctx context.Context, scanDuration time.Duration) (*discovery.Result, error) {
	b.mu.Lock()
	scanner := b.scanner
	b.mu.Unlock()
	return discovery.Discover(ctx, b.cloud, scanner, scanDuration, b.ctx)
}

// ErrDeviceNotFound is returned when the account does not have the requested device
var ErrDeviceNotFound = errors.New("exchange: device not found")

// DeviceStatus returns the cloud's view of a single device
func (b *Exchange) DeviceStatus(deviceID string) (*types.Device, error) {
	devices, err := b.cloud.Devices()
	if err != nil {
		return nil, err
	}
	for _, device := range devices {
		if device.ID == deviceID {
			return &device, nil
		}
	}
	return nil, ErrDeviceNotFound
}

// Control actions accepted by Control
const (
	ActionLock   = "lock"
	ActionUnlock = "unlock"
	ActionBind   = "bind"
	ActionUnbind = "unbind"
)

// Control performs a device action through the account API
func (b *Exchange) Control(deviceID, action string) error {
	var err error
	switch action {
	case ActionLock:
		err = b.cloud.LockDevice(deviceID)
	case ActionUnlock:
		err = b.cloud.UnlockDevice(deviceID)
	case ActionBind:
		err = b.cloud.BindDevice(deviceID)
	case ActionUnbind:
		err = b.cloud.UnbindDevice(deviceID)
	default:
		return fmt.Errorf("exchange: unknown action %q", action)
	}
	if err != nil {
		return err
	}
	b.ctx.WithFields(log.Fields{
		"DeviceID": deviceID,
		"Action":   action,
	}).Info("Performed device action")
	return nil
}

// SetupMQTT fetches the account's IoT certificate and connects to the broker
// it names. Inbound messages are dispatched to the exchange's handler.
func (b *Exchange) SetupMQTT() error {
	cert, err := b.cloud.IoTCertificate()
	if err != nil {
		return err
	}
	b.mu.Lock()
	broker := b.newBroker(cert, b.handle, b.ctx)
	b.mu.Unlock()
	if err := broker.Connect(); err != nil {
		return err
	}
	b.mu.Lock()
	b.broker = broker
	b.mu.Unlock()
	return nil
}

// Teardown disconnects from the broker. Watched devices stay in the set so
// they are watched again after the next SetupMQTT.
func (b *Exchange) Teardown() {
	b.mu.Lock()
	broker := b.broker
	b.broker = nil
	b.mu.Unlock()
	if broker != nil {
		broker.Disconnect()
	}
}

// IsConnected reports whether the exchange has a connected broker
func (b *Exchange) IsConnected() bool {
	b.mu.Lock()
	broker := b.broker
	b.mu.Unlock()
	return broker != nil && broker.IsConnected()
}

func (b *Exchange) getBroker() (Broker, error) {
	b.mu.Lock()
	broker := b.broker
	b.mu.Unlock()
	if broker == nil {
		return nil, mqtt.ErrNotConnected
	}
	return broker, nil
}

// WatchDevice subscribes to a device's status topic and adds it to the
// watched set
func (b *Exchange) WatchDevice(deviceID string) error {
	if b.devices.Contains(deviceID) {
		b.ctx.WithField("DeviceID", deviceID).Debug("Device already watched")
		return nil
	}
	broker, err := b.getBroker()
	if err != nil {
		return err
	}
	if err := broker.Subscribe(types.StatusTopic(deviceID)); err != nil {
		return err
	}
	b.devices.Add(deviceID)
	watchedDevices.Set(float64(len(b.devices.ToSlice())))
	b.ctx.WithField("DeviceID", deviceID).Info("Watching device")
	return nil
}

// UnwatchDevice removes a device from the watched set and drops its
// status subscription
func (b *Exchange) UnwatchDevice(deviceID string) error {
	if !b.devices.Contains(deviceID) {
		return nil
	}
	if broker, err := b.getBroker(); err == nil {
		if err := broker.Unsubscribe(types.StatusTopic(deviceID)); err != nil {
			b.ctx.WithField("DeviceID", deviceID).WithError(err).Warn("Could not unsubscribe from status")
		}
	}
	b.devices.Remove(deviceID)
	watchedDevices.Set(float64(len(b.devices.ToSlice())))
	b.middleware.Forget(deviceID)
	b.ctx.WithField("DeviceID", deviceID).Info("Unwatched device")
	return nil
}

// WatchedDevices returns the ids of the currently watched devices
func (b *Exchange) WatchedDevices() (deviceIDs []string) {
	for _, id := range b.devices.ToSlice() {
		if id, ok := id.(string); ok {
			deviceIDs = append(deviceIDs, id)
		}
	}
	return
}

// SendCommand publishes a command to a device's command topic after running
// it through the middleware chain
func (b *Exchange) SendCommand(deviceID string, command map[string]interface{}) error {
	broker, err := b.getBroker()
	if err != nil {
		return err
	}
	msg := &types.CommandMessage{DeviceID: deviceID, Command: command}
	if err := b.middleware.Execute(middleware.NewContext(), msg); err != nil {
		b.ctx.WithField("DeviceID", deviceID).WithError(err).Debug("Command dropped by middleware")
		return err
	}
	if err := broker.Publish(types.CommandTopic(deviceID), msg.Command); err != nil {
		return err
	}
	registerCommand()
	b.ctx.WithField("DeviceID", deviceID).Info("Sent command")
	return nil
}

// handle is the broker's inbound handler. It runs on the dispatch goroutine
// that the mqtt client spawns per message, so blocking here does not stall
// the network loop.
func (b *Exchange) handle(topic string, payload interface{}) {
	deviceID := types.DeviceIDFromTopic(topic)
	if deviceID == "" {
		b.ctx.WithField("Topic", topic).Warn("Message on unexpected topic")
		return
	}
	msg := &types.StatusMessage{DeviceID: deviceID, Topic: topic, Payload: payload}
	if err := b.middleware.Execute(middleware.NewContext(), msg); err != nil {
		b.ctx.WithField("DeviceID", deviceID).WithError(err).Debug("Status dropped by middleware")
		return
	}
	registerStatus()
	b.consumerMu.RLock()
	consumer := b.consumer
	b.consumerMu.RUnlock()
	if consumer != nil {
		consumer(msg)
	}
	b.ctx.WithField("DeviceID", deviceID).Debug("Handled status")
}
