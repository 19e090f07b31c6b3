// Copyright © 2026 The Airseekers Community
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package deduplicate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/airseekers-community/device-connector-bridge/middleware"
	"github.com/airseekers-community/device-connector-bridge/types"
)

// NewDeduplicate returns a middleware that deduplicates status messages
// repeated by devices that republish unchanged state
func NewDeduplicate() *Deduplicate {
	return &Deduplicate{
		lastStatus: make(map[string][]byte),
	}
}

// Deduplicate middleware
type Deduplicate struct {
	mu         sync.Mutex
	lastStatus map[string][]byte
}

// ErrDuplicateMessage is returned when a status message is received multiple times
var ErrDuplicateMessage = errors.New("deduplicate: already handled this message")

// HandleStatus blocks duplicate messages
func (d *Deduplicate) HandleStatus(_ middleware.Context, msg *types.StatusMessage) error {
	fingerprint, err := json.Marshal(msg.Payload)
	if err != nil {
		fingerprint = []byte(fmt.Sprintf("%v", msg.Payload))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lastStatus[msg.DeviceID]; ok {
		if bytes.Equal(fingerprint, last) {
			return ErrDuplicateMessage
		}
	}
	d.lastStatus[msg.DeviceID] = fingerprint
	return nil
}

// Forget drops the remembered state for a device, for example when it is
// unwatched or reconnects
func (d *Deduplicate) Forget(deviceID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.lastStatus, deviceID)
}
