// Copyright © 2026 The Airseekers Community
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package debug

import (
	"github.com/airseekers-community/device-connector-bridge/middleware"
	"github.com/airseekers-community/device-connector-bridge/types"
	"github.com/apex/log"
)

// New returns a middleware that debugs traffic
func New(ctx log.Interface) *Debug {
	return &Debug{ctx: ctx}
}

// Debug middleware
type Debug struct {
	ctx log.Interface
}

// HandleStatus debugs inbound status traffic
func (d *Debug) HandleStatus(_ middleware.Context, msg *types.StatusMessage) error {
	d.ctx.WithFields(log.Fields{
		"DeviceID": msg.DeviceID,
		"Topic":    msg.Topic,
		"Payload":  msg.Payload,
	}).Debug("Received status")
	return nil
}

// HandleCommand debugs outbound command traffic
func (d *Debug) HandleCommand(_ middleware.Context, msg *types.CommandMessage) error {
	d.ctx.WithFields(log.Fields{
		"DeviceID": msg.DeviceID,
		"Command":  msg.Command,
	}).Debug("Sending command")
	return nil
}
