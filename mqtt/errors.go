// Copyright © 2026 The Airseekers Community
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package mqtt

import "errors"

// Errors returned by the client
var (
	// ErrNotConnected is returned when an operation requires a connection
	ErrNotConnected = errors.New("mqtt: not connected to broker")

	// ErrAlreadyConnected is returned by Connect when a connection attempt is
	// already in flight or the client is already connected
	ErrAlreadyConnected = errors.New("mqtt: already connected")

	// ErrConnectTimeout is returned when the broker does not acknowledge the
	// connection within ConnectTimeout
	ErrConnectTimeout = errors.New("mqtt: connect timeout")

	// ErrAckTimeout is returned when the broker does not acknowledge a
	// subscribe or publish within AckTimeout
	ErrAckTimeout = errors.New("mqtt: acknowledgement timeout")

	// ErrOperationPending is returned when an operation with the same
	// correlation key is still awaiting its acknowledgement
	ErrOperationPending = errors.New("mqtt: operation already pending for this key")

	// ErrInvalidCA is returned when the CA certificate cannot be parsed
	ErrInvalidCA = errors.New("mqtt: could not parse CA certificate")
)
