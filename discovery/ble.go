// Copyright © 2026 The Airseekers Community
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/go-ble/ble"
	"github.com/pkg/errors"

	"github.com/airseekers-community/device-connector-bridge/types"
)

// ServiceUUIDs are the GATT service UUIDs advertised by Airseekers devices
var ServiceUUIDs = []ble.UUID{
	ble.MustParse("b725d2d0-353a-11f0-8d6e-09546e761b8b"),
	ble.MustParse("88992250-360c-11f0-90a3-792c334dd14f"),
	ble.MustParse("3f1dbe80-3538-11f0-8d6e-09546e761b8b"),
}

// AdvScanner is the part of a BLE device the scanner needs. It is implemented
// by go-ble devices (linux.Device among others).
type AdvScanner interface {
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
}

// Scanner scans for Airseekers BLE advertisements and remembers every device
// it has seen
type Scanner struct {
	ctx   log.Interface
	dev   AdvScanner
	uuids []ble.UUID

	mu         sync.Mutex
	discovered map[string]types.BLEDevice
}

// NewScanner returns a Scanner on the given BLE device, filtering on the
// Airseekers service UUIDs
func NewScanner(dev AdvScanner, ctx log.Interface) *Scanner {
	return &Scanner{
		ctx:        ctx.WithField("Connector", "BLE"),
		dev:        dev,
		uuids:      ServiceUUIDs,
		discovered: make(map[string]types.BLEDevice),
	}
}

// Scan runs a scan for at most the given duration and returns the matching
// devices, deduplicated by address
func (s *Scanner) Scan(ctx context.Context, duration time.Duration) ([]types.BLEDevice, error) {
	scanCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	var mu sync.Mutex
	found := make(map[string]types.BLEDevice)

	err := s.dev.Scan(scanCtx, false, func(a ble.Advertisement) {
		if !s.matches(a) {
			return
		}
		device := types.BLEDevice{
			Address: a.Addr().String(),
			Name:    a.LocalName(),
			RSSI:    a.RSSI(),
		}
		mu.Lock()
		found[device.Address] = device
		mu.Unlock()
		s.remember(device)
	})
	// the scan ending because its time is up is not an error
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return nil, errors.Wrap(err, "failed to scan for advertisements")
	}

	mu.Lock()
	defer mu.Unlock()
	devices := make([]types.BLEDevice, 0, len(found))
	for _, device := range found {
		devices = append(devices, device)
	}
	s.ctx.WithField("Devices", len(devices)).Info("BLE scan finished")
	return devices, nil
}

func (s *Scanner) matches(a ble.Advertisement) bool {
	for _, advertised := range a.Services() {
		for _, uuid := range s.uuids {
			if advertised.Equal(uuid) {
				return true
			}
		}
	}
	return false
}

func (s *Scanner) remember(device types.BLEDevice) {
	s.mu.Lock()
	s.discovered[device.Address] = device
	s.mu.Unlock()
}

// DeviceByAddress returns a previously discovered device
func (s *Scanner) DeviceByAddress(address string) (types.BLEDevice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	device, ok := s.discovered[address]
	return device, ok
}
