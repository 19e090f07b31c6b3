// Copyright © 2026 The Airseekers Community
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package statusserver exposes the bridge's health and metrics over HTTP.
package statusserver

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/apex/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Source provides the state reported on /healthz
type Source interface {
	IsConnected() bool
	WatchedDevices() []string
}

// Server serves /metrics and /healthz
type Server struct {
	ctx    log.Interface
	source Source
	server *http.Server
}

// New initializes a new status server
func New(source Source, ctx log.Interface) *Server {
	return &Server{
		ctx:    ctx,
		source: source,
	}
}

type health struct {
	MQTT           string `json:"mqtt"`
	WatchedDevices int    `json:"watched_devices"`
}

// Handler returns the HTTP handler for the status server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		state := "disconnected"
		if s.source.IsConnected() {
			state = "connected"
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(health{
			MQTT:           state,
			WatchedDevices: len(s.source.WatchedDevices()),
		})
	})
	return mux
}

// ListenAndServe serves the status server on the given address until
// Shutdown is called
func (s *Server) ListenAndServe(address string) error {
	s.server = &http.Server{Addr: address, Handler: s.Handler()}
	s.ctx.WithField("Address", address).Info("Serving status")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the status server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
