// Copyright © 2026 The Airseekers Community
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package auth

import (
	"sync"
	"time"
)

type memoryAccount struct {
	access       string
	refresh      string
	tokenExpires time.Time
	sync.Mutex
}

// Memory implements the token storage interface with an in-memory backend
type Memory struct {
	accounts map[string]*memoryAccount
	mu       sync.RWMutex
	Exchanger
}

// NewMemory returns a new token storage interface with an in-memory backend
func NewMemory() Interface {
	return &Memory{
		accounts: make(map[string]*memoryAccount),
	}
}

// SetTokens stores the token pair for an account
func (m *Memory) SetTokens(account, access, refresh string, expires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if acc, ok := m.accounts[account]; ok {
		acc.Lock()
		defer acc.Unlock()
		acc.access = access
		if refresh != "" {
			acc.refresh = refresh
		}
		acc.tokenExpires = expires
	} else {
		m.accounts[account] = &memoryAccount{
			access:       access,
			refresh:      refresh,
			tokenExpires: expires,
		}
	}
	return nil
}

// Tokens returns the stored token pair for an account
func (m *Memory) Tokens(account string) (string, string, time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acc, ok := m.accounts[account]
	if !ok {
		return "", "", time.Time{}, ErrAccountNotFound
	}
	acc.Lock()
	defer acc.Unlock()
	return acc.access, acc.refresh, acc.tokenExpires, nil
}

// GetToken returns a valid access token for an account
func (m *Memory) GetToken(account string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acc, ok := m.accounts[account]
	if !ok {
		return "", ErrAccountNotFound
	}
	acc.Lock()
	defer acc.Unlock()
	if acc.access != "" && acc.tokenExpires.After(time.Now()) {
		return acc.access, nil
	}
	if acc.refresh != "" && m.Exchanger != nil {
		token, expires, err := m.Exchange(account, acc.refresh)
		if err != nil {
			return "", err
		}
		acc.access = token
		acc.tokenExpires = expires
		return token, nil
	}
	return "", ErrNoValidToken
}

// Delete removes the stored tokens for an account
func (m *Memory) Delete(account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, account)
	return nil
}

// SetExchanger sets the component that will exchange refresh tokens for access tokens
func (m *Memory) SetExchanger(e Exchanger) {
	m.Exchanger = e
}
