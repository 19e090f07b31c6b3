// Copyright © 2026 The Airseekers Community
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package exchange

import (
	"github.com/prometheus/client_golang/prometheus"
)

var watchedDevices = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "airseekers",
		Subsystem: "bridge",
		Name:      "watched_devices",
		Help:      "Number of watched devices.",
	},
)

var handledCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "airseekers",
		Subsystem: "bridge",
		Name:      "messages_handled_total",
		Help:      "Total number of messages handled.",
	}, []string{"message_type"},
)

func registerStatus() {
	handledCounter.WithLabelValues("Status").Inc()
}

func registerCommand() {
	handledCounter.WithLabelValues("Command").Inc()
}

func init() {
	prometheus.MustRegister(watchedDevices)
	prometheus.MustRegister(handledCounter)
}
