// Copyright © 2026 The Airseekers Community
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package types

import (
	"fmt"
	"strings"
)

// IoTCertificate is the TLS identity issued by the Airseekers cloud for the
// MQTT broker connection. It is consumed exactly once per connection attempt.
type IoTCertificate struct {
	CA         string `json:"ca"`
	CertKey    string `json:"cert_key"`
	PrivateKey string `json:"private_key"`
	Broker     string `json:"mqtt_broker"` // host:port
	ClientID   string `json:"mqtt_client_id"`
}

// Device is a device as listed by the cloud
type Device struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Model    string `json:"model"`
	Online   bool   `json:"online"`
	Battery  int    `json:"battery"`
	Firmware string `json:"firmware_version"`

	// Raw contains the full device record, including fields not modeled above
	Raw map[string]interface{} `json:"-"`
}

// BLEDevice is a device discovered over Bluetooth LE
type BLEDevice struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	RSSI    int    `json:"rssi,omitempty"`
}

// StatusMessage is used internally for inbound device state
type StatusMessage struct {
	DeviceID string
	Topic    string
	Payload  interface{}
}

// CommandMessage is used internally for outbound device control
type CommandMessage struct {
	DeviceID string
	Command  map[string]interface{}
}

// Topic formats for device status and command messages
var (
	StatusTopicFormat  = "device/%s/status"
	CommandTopicFormat = "device/%s/command"
)

// StatusTopic returns the status topic for the given device
func StatusTopic(deviceID string) string {
	return fmt.Sprintf(StatusTopicFormat, deviceID)
}

// CommandTopic returns the command topic for the given device
func CommandTopic(deviceID string) string {
	return fmt.Sprintf(CommandTopicFormat, deviceID)
}

// DeviceIDFromTopic extracts the device ID from a device/<id>/... topic.
// It returns an empty string if the topic does not match.
func DeviceIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "device" {
		return ""
	}
	return parts[1]
}
