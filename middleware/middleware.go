// Copyright © 2026 The Airseekers Community
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package middleware implements a chain of handlers that inbound status
// messages and outbound commands pass through before the exchange acts on
// them. A middleware returning an error drops the message.
package middleware

import (
	"github.com/airseekers-community/device-connector-bridge/types"
)

// Context for middleware
type Context interface {
	Set(k, v interface{})
	Get(k interface{}) interface{}
}

// NewContext returns a new middleware context
func NewContext() Context {
	return &context{
		data: make(map[interface{}]interface{}),
	}
}

type context struct {
	data map[interface{}]interface{}
}

func (c *context) Set(k, v interface{}) {
	c.data[k] = v
}

func (c *context) Get(k interface{}) interface{} {
	if v, ok := c.data[k]; ok {
		return v
	}
	return nil
}

// Chain of middleware
type Chain []interface{}

// Execute the chain
func (c Chain) Execute(ctx Context, msg interface{}) error {
	switch msg := msg.(type) {
	case *types.StatusMessage:
		return c.filterStatus().Execute(ctx, msg)
	case *types.CommandMessage:
		return c.filterCommand().Execute(ctx, msg)
	}
	return nil
}

// Status middleware
type Status interface {
	HandleStatus(Context, *types.StatusMessage) error
}

type statusChain []Status

func (c statusChain) Execute(ctx Context, msg *types.StatusMessage) error {
	for _, middleware := range c {
		err := middleware.HandleStatus(ctx, msg)
		if err != nil {
			return err
		}
	}
	return nil
}

func (c Chain) filterStatus() (filtered statusChain) {
	for _, middleware := range c {
		if c, ok := middleware.(Status); ok {
			filtered = append(filtered, c)
		}
	}
	return
}

// Forgetter is implemented by middleware that keep per-device state
type Forgetter interface {
	Forget(deviceID string)
}

// Forget drops any per-device state kept by middleware in the chain
func (c Chain) Forget(deviceID string) {
	for _, middleware := range c {
		if m, ok := middleware.(Forgetter); ok {
			m.Forget(deviceID)
		}
	}
}

// Command middleware
type Command interface {
	HandleCommand(Context, *types.CommandMessage) error
}

type commandChain []Command

func (c commandChain) Execute(ctx Context, msg *types.CommandMessage) error {
	for _, middleware := range c {
		err := middleware.HandleCommand(ctx, msg)
		if err != nil {
			return err
		}
	}
	return nil
}

func (c Chain) filterCommand() (filtered commandChain) {
	for _, middleware := range c {
		if c, ok := middleware.(Command); ok {
			filtered = append(filtered, c)
		}
	}
	return
}
