// Copyright © 2026 The Airseekers Community
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package account implements the client for the Airseekers cloud REST API.
// It handles login, token refresh and regional server-host discovery, and
// issues the device and IoT-certificate requests the bridge needs.
package account

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
)

// DefaultServer is the initial API server. Login and server-host discovery
// may replace it with a regional host.
var DefaultServer = "https://cloud-eu.airseekers-robotics.com"

// AppVersion is sent with every request; the cloud rejects unknown clients
var AppVersion = "1.0.7(2025052706)"

// TokenValidity is how long an access token is considered valid. The API does
// not report an expiry, the mobile app assumes 23 hours.
var TokenValidity = 23 * time.Hour

// RequestTimeout bounds every HTTP request
var RequestTimeout = 30 * time.Second

// Response is the envelope around every API response
type Response struct {
	Code      int             `json:"code"`
	Data      json.RawMessage `json:"data"`
	ErrorCode int             `json:"errorCode"`
	Msg       string          `json:"msg"`
}

// TokenFunc is called whenever the client obtains new tokens, so that they
// can be persisted outside the client
type TokenFunc func(access, refresh string, expires time.Time)

// Client is an authenticated client for the Airseekers cloud
type Client struct {
	ctx log.Interface

	email    string
	password string
	http     *http.Client

	mu           sync.Mutex
	baseURL      string
	accessToken  string
	refreshToken string
	tokenExpires time.Time
	onTokens     TokenFunc
}

// New returns a new Client for the given credentials
func New(email, password string, ctx log.Interface) *Client {
	return &Client{
		ctx:      ctx.WithField("Connector", "Account"),
		email:    email,
		password: password,
		baseURL:  DefaultServer,
		http:     &http.Client{Timeout: RequestTimeout},
	}
}

// SetServer overrides the API server the client starts with. Login and
// ServerHost may switch the client to a regional host later.
func (c *Client) SetServer(server string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = server
}

// OnTokens registers a function that is called with every new token pair
func (c *Client) OnTokens(f TokenFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTokens = f
}

// RestoreTokens seeds the client with a previously persisted token pair
func (c *Client) RestoreTokens(access, refresh string, expires time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = access
	c.refreshToken = refresh
	c.tokenExpires = expires
}

func (c *Client) setTokens(access, refresh string, expires time.Time) {
	c.mu.Lock()
	c.accessToken = access
	if refresh != "" {
		c.refreshToken = refresh
	}
	c.tokenExpires = expires
	onTokens := c.onTokens
	refreshToken := c.refreshToken
	c.mu.Unlock()
	if onTokens != nil {
		onTokens(access, refreshToken, expires)
	}
}

func (c *Client) do(method, endpoint string, body interface{}, includeAuth bool) (*Response, error) {
	c.mu.Lock()
	base := c.baseURL
	token := c.accessToken
	c.mu.Unlock()

	u := strings.TrimRight(base, "/") + endpoint

	var reqBody *bytes.Buffer
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("account: could not encode request: %s", err)
		}
		reqBody = bytes.NewBuffer(encoded)
	} else {
		reqBody = new(bytes.Buffer)
	}

	req, err := http.NewRequest(method, u, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/json,*/*")
	req.Header.Set("accept-language", "en-US")
	req.Header.Set("app-version", AppVersion)
	req.Header.Set("content-type", "application/json")
	if includeAuth {
		if token != "" {
			req.Header.Set("authorization", "Bearer "+token)
		} else {
			req.Header.Set("authorization", "Bearer")
		}
	}

	c.ctx.WithField("Method", method).WithField("URL", u).Debug("Performing request")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	var response Response
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("account: could not decode response: %s", err)
	}
	return &response, nil
}

type serverHostResponse struct {
	Host string `json:"host"`
}

// ServerHost asks the API for the regional server host and switches the
// client over to it
func (c *Client) ServerHost() (string, error) {
	res, err := c.do("GET", "/api/web/server-host", nil, false)
	if err != nil {
		return "", err
	}
	if res.Code != 0 || res.Data == nil {
		return "", fmt.Errorf("account: could not get server host: %s", res.Msg)
	}
	var host serverHostResponse
	if err := json.Unmarshal(res.Data, &host); err != nil {
		return "", err
	}
	c.mu.Lock()
	c.baseURL = host.Host
	c.mu.Unlock()
	return host.Host, nil
}

type loginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Host         string `json:"host"`
	Language     string `json:"language"`
}

// Login authenticates with email and password and stores the token pair
func (c *Client) Login() error {
	res, err := c.do("POST", "/user/login", map[string]string{
		"email":    c.email,
		"password": c.password,
	}, false)
	if err != nil {
		return err
	}
	if res.Code != 0 || res.Data == nil {
		return fmt.Errorf("account: login failed: %s", res.Msg)
	}
	var login loginResponse
	if err := json.Unmarshal(res.Data, &login); err != nil {
		return err
	}
	c.mu.Lock()
	if login.Host != "" {
		c.baseURL = login.Host
	}
	c.mu.Unlock()
	c.setTokens(login.AccessToken, login.RefreshToken, time.Now().Add(TokenValidity))
	c.ctx.Info("Logged in")
	return nil
}

// RefreshToken exchanges the stored refresh token for a new access token
func (c *Client) RefreshToken() error {
	c.mu.Lock()
	refresh := c.refreshToken
	c.mu.Unlock()
	if refresh == "" {
		return ErrNoRefreshToken
	}
	access, expires, err := c.Exchange(c.email, refresh)
	if err != nil {
		return err
	}
	c.setTokens(access, "", expires)
	return nil
}

// Exchange exchanges a refresh token for an access token. It implements
// auth.Exchanger; the account argument is ignored because the client is bound
// to a single account.
func (c *Client) Exchange(_ string, refreshToken string) (string, time.Time, error) {
	res, err := c.do("POST", "/api/web/user/refresh-token", map[string]string{
		"refresh_token": refreshToken,
	}, true)
	if err != nil {
		return "", time.Time{}, err
	}
	if res.Code != 0 || res.Data == nil {
		return "", time.Time{}, fmt.Errorf("account: could not refresh token: %s", res.Msg)
	}
	var refreshed struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(res.Data, &refreshed); err != nil {
		return "", time.Time{}, err
	}
	c.ctx.Debug("Refreshed access token")
	return refreshed.AccessToken, time.Now().Add(TokenValidity), nil
}

// ensureAuthenticated makes sure the client has a valid access token: it logs
// in when there is none, and refreshes an expired one, falling back to a full
// login when the refresh fails.
func (c *Client) ensureAuthenticated() error {
	c.mu.Lock()
	token := c.accessToken
	expires := c.tokenExpires
	c.mu.Unlock()

	if token == "" {
		return c.Login()
	}
	if !expires.After(time.Now()) {
		if err := c.RefreshToken(); err != nil {
			c.ctx.WithError(err).Warn("Could not refresh token, logging in again")
			return c.Login()
		}
	}
	return nil
}

// IsAuthorized reports whether the stored credentials are still accepted
func (c *Client) IsAuthorized() (bool, error) {
	if err := c.ensureAuthenticated(); err != nil {
		return false, err
	}
	res, err := c.do("GET", "/api/web/user/is-authorized?123=1", nil, true)
	if err != nil {
		return false, err
	}
	return res.Code == 0, nil
}
