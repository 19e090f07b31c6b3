// Copyright © 2026 The Airseekers Community
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package mqtt implements the real-time connection to the Airseekers MQTT
// broker. The paho client runs its network loop on its own goroutine and
// reports connection, subscription and publish acknowledgements through
// asynchronous callbacks; this package turns those into blocking calls with
// an explicit timeout on every wait, tracks the connection state, and owns
// the lifecycle of the TLS identity used to open the connection.
package mqtt
