// Copyright © 2026 The Airseekers Community
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package auth stores cloud API tokens so that the bridge can survive a
// restart without a full login. Tokens are kept per account, either in memory
// or in Redis.
package auth

import (
	"errors"
	"time"
)

// Interface for account token storage
type Interface interface {
	// SetTokens stores the token pair for an account
	SetTokens(account, access, refresh string, expires time.Time) error

	// Tokens returns the stored token pair for an account
	Tokens(account string) (access, refresh string, expires time.Time, err error)

	// GetToken returns a valid access token for an account; it exchanges the
	// refresh token for a new access token if necessary
	GetToken(account string) (token string, err error)

	Delete(account string) error

	SetExchanger(Exchanger)
}

// Exchanger exchanges a refresh token for a new access token
type Exchanger interface {
	Exchange(account, refreshToken string) (token string, expires time.Time, err error)
}

// ErrAccountNotFound is returned when no tokens are stored for an account
var ErrAccountNotFound = errors.New("auth: account not found")

// ErrNoValidToken is returned when an account has neither a valid access
// token nor a refresh token to exchange
var ErrNoValidToken = errors.New("auth: account does not have a valid access token")
