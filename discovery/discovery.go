// Copyright © 2026 The Airseekers Community
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package discovery finds Airseekers devices, both through the cloud device
// listing and by scanning for their BLE advertisements.
package discovery

import (
	"context"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/airseekers-community/device-connector-bridge/types"
)

// DefaultScanDuration is how long a BLE scan runs when no duration is given
var DefaultScanDuration = 10 * time.Second

// DeviceLister lists the devices bound to a cloud account
type DeviceLister interface {
	Devices() ([]types.Device, error)
}

// Result of a discovery run
type Result struct {
	Cloud []types.Device
	BLE   []types.BLEDevice
}

// Discover runs the cloud listing and the BLE scan concurrently. A failing
// BLE scan degrades to an empty list with a warning (the host may simply not
// have an adapter); a failing cloud listing fails the whole run.
func Discover(ctx context.Context, lister DeviceLister, scanner *Scanner, scanDuration time.Duration, logctx log.Interface) (*Result, error) {
	if scanDuration <= 0 {
		scanDuration = DefaultScanDuration
	}

	result := new(Result)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		devices, err := lister.Devices()
		if err != nil {
			return errors.Wrap(err, "could not list cloud devices")
		}
		result.Cloud = devices
		return nil
	})

	if scanner != nil {
		g.Go(func() error {
			devices, err := scanner.Scan(gctx, scanDuration)
			if err != nil {
				logctx.WithError(err).Warn("BLE scan failed")
				return nil
			}
			result.BLE = devices
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}
