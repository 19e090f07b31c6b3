// Copyright © 2026 The Airseekers Community
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package account

import (
	"encoding/json"
	"fmt"

	"github.com/airseekers-community/device-connector-bridge/types"
)

// IoTCertificate requests the TLS identity for the MQTT broker connection
func (c *Client) IoTCertificate() (*types.IoTCertificate, error) {
	if err := c.ensureAuthenticated(); err != nil {
		return nil, err
	}
	res, err := c.do("POST", "/api/web/device/iot-cert", map[string]string{}, true)
	if err != nil {
		return nil, err
	}
	if res.Code != 0 || res.Data == nil {
		return nil, fmt.Errorf("account: could not get IoT certificate: %s", res.Msg)
	}
	var cert types.IoTCertificate
	if err := json.Unmarshal(res.Data, &cert); err != nil {
		return nil, err
	}
	return &cert, nil
}

// Devices lists the devices bound to the account
func (c *Client) Devices() ([]types.Device, error) {
	if err := c.ensureAuthenticated(); err != nil {
		return nil, err
	}
	res, err := c.do("GET", "/api/web/device", nil, true)
	if err != nil {
		return nil, err
	}
	if res.Code != 0 || res.Data == nil {
		return nil, fmt.Errorf("account: could not list devices: %s", res.Msg)
	}
	var list struct {
		List  []map[string]interface{} `json:"list"`
		Total int                      `json:"total"`
	}
	if err := json.Unmarshal(res.Data, &list); err != nil {
		return nil, err
	}
	devices := make([]types.Device, 0, len(list.List))
	for _, raw := range list.List {
		devices = append(devices, deviceFromRaw(raw))
	}
	return devices, nil
}

func deviceFromRaw(raw map[string]interface{}) types.Device {
	device := types.Device{Raw: raw}
	if v, ok := raw["id"].(string); ok {
		device.ID = v
	}
	if v, ok := raw["name"].(string); ok {
		device.Name = v
	}
	if v, ok := raw["model"].(string); ok {
		device.Model = v
	}
	if v, ok := raw["online"].(bool); ok {
		device.Online = v
	}
	if v, ok := raw["battery"].(float64); ok {
		device.Battery = int(v)
	}
	if v, ok := raw["firmware_version"].(string); ok {
		device.Firmware = v
	}
	return device
}

func (c *Client) deviceAction(endpoint, deviceID string) error {
	if err := c.ensureAuthenticated(); err != nil {
		return err
	}
	res, err := c.do("POST", endpoint, map[string]string{"device_id": deviceID}, true)
	if err != nil {
		return err
	}
	if res.Code != 0 {
		return fmt.Errorf("account: %s failed for device %s: %s", endpoint, deviceID, res.Msg)
	}
	return nil
}

// BindDevice binds a device to the account
func (c *Client) BindDevice(deviceID string) error {
	return c.deviceAction("/api/web/device/bind", deviceID)
}

// UnbindDevice removes a device from the account
func (c *Client) UnbindDevice(deviceID string) error {
	return c.deviceAction("/api/web/device/unbind", deviceID)
}

// LockDevice locks a device
func (c *Client) LockDevice(deviceID string) error {
	return c.deviceAction("/api/web/device/lock", deviceID)
}

// UnlockDevice unlocks a device
func (c *Client) UnlockDevice(deviceID string) error {
	return c.deviceAction("/api/web/device/unlock", deviceID)
}

// DeviceMap fetches the stored mowing map for a device
func (c *Client) DeviceMap(deviceID string) (map[string]interface{}, error) {
	return c.deviceData("GET", "/api/web/device/map?device_id="+deviceID, "map")
}

// LatestFirmware returns the latest firmware available for a device
func (c *Client) LatestFirmware(deviceID string) (map[string]interface{}, error) {
	return c.deviceData("GET", "/api/web/firmware/latest?device_id="+deviceID, "firmware")
}

// UpgradeFirmware schedules a firmware upgrade for a device
func (c *Client) UpgradeFirmware(deviceID string) error {
	return c.deviceAction("/api/web/firmware/upgrade", deviceID)
}

func (c *Client) deviceData(method, endpoint, what string) (map[string]interface{}, error) {
	if err := c.ensureAuthenticated(); err != nil {
		return nil, err
	}
	res, err := c.do(method, endpoint, nil, true)
	if err != nil {
		return nil, err
	}
	if res.Code != 0 {
		return nil, fmt.Errorf("account: could not get device %s: %s", what, res.Msg)
	}
	data := make(map[string]interface{})
	if res.Data != nil {
		if err := json.Unmarshal(res.Data, &data); err != nil {
			return nil, err
		}
	}
	return data, nil
}
