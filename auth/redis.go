// Copyright © 2026 The Airseekers Community
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package auth

import (
	"time"

	redis "gopkg.in/redis.v5"
)

// Redis implements the token storage interface with a Redis backend
type Redis struct {
	prefix string
	client *redis.Client
	Exchanger
}

// DefaultRedisPrefix is used as prefix when no prefix is given
var DefaultRedisPrefix = "account:"

var redisKey = struct {
	access       string
	refresh      string
	tokenExpires string
}{
	access:       "access_token",
	refresh:      "refresh_token",
	tokenExpires: "token_expires",
}

// NewRedis returns a new token storage interface with a Redis backend
func NewRedis(client *redis.Client, prefix string) Interface {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{
		client: client,
		prefix: prefix,
	}
}

// SetTokens stores the token pair for an account
func (r *Redis) SetTokens(account, access, refresh string, expires time.Time) error {
	data := map[string]string{
		redisKey.access: access,
	}
	if refresh != "" {
		data[redisKey.refresh] = refresh
	}
	if expires.IsZero() {
		data[redisKey.tokenExpires] = ""
	} else {
		data[redisKey.tokenExpires] = expires.Format(time.RFC3339)
	}
	return r.client.HMSet(r.prefix+account, data).Err()
}

// Tokens returns the stored token pair for an account
func (r *Redis) Tokens(account string) (string, string, time.Time, error) {
	res, err := r.client.HGetAll(r.prefix + account).Result()
	if err == redis.Nil || len(res) == 0 {
		return "", "", time.Time{}, ErrAccountNotFound
	}
	if err != nil {
		return "", "", time.Time{}, err
	}
	var expires time.Time
	if expiresStr := res[redisKey.tokenExpires]; expiresStr != "" {
		expires, err = time.Parse(time.RFC3339, expiresStr)
		if err != nil {
			return "", "", time.Time{}, err
		}
	}
	return res[redisKey.access], res[redisKey.refresh], expires, nil
}

// GetToken returns a valid access token for an account
func (r *Redis) GetToken(account string) (string, error) {
	access, refresh, expires, err := r.Tokens(account)
	if err != nil {
		return "", err
	}
	if access != "" && expires.After(time.Now()) {
		return access, nil
	}
	if refresh != "" && r.Exchanger != nil {
		token, expires, err := r.Exchange(account, refresh)
		if err != nil {
			return "", err
		}
		if err := r.SetTokens(account, token, "", expires); err != nil {
			return "", err
		}
		return token, nil
	}
	return "", ErrNoValidToken
}

// Delete removes the stored tokens for an account
func (r *Redis) Delete(account string) error {
	return r.client.Del(r.prefix + account).Err()
}

// SetExchanger sets the component that will exchange refresh tokens for access tokens
func (r *Redis) SetExchanger(e Exchanger) {
	r.Exchanger = e
}
