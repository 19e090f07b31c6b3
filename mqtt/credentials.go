// Copyright © 2026 The Airseekers Community
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"sync"

	"github.com/airseekers-community/device-connector-bridge/types"
)

// credentials is the materialized form of the TLS identity issued by the
// cloud. It lives for exactly one connection: provisioned by Connect and
// destroyed on every exit path out of the connection's lifetime.
type credentials struct {
	mu        sync.Mutex
	tlsConfig *tls.Config
	certPEM   []byte
	keyPEM    []byte
	released  bool
}

// provision parses the PEM-encoded identity into a TLS configuration for
// mutual TLS: the CA verifies the broker, the client pair authenticates us.
// The PEM text never touches the filesystem. Provisioning failures are fatal
// for the connection attempt and are never retried.
func provision(cert *types.IoTCertificate) (*credentials, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM([]byte(cert.CA)) {
		return nil, ErrInvalidCA
	}
	certPEM := []byte(cert.CertKey)
	keyPEM := []byte(cert.PrivateKey)
	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("mqtt: could not load client certificate: %s", err)
	}
	return &credentials{
		tlsConfig: &tls.Config{
			RootCAs:      pool,
			Certificates: []tls.Certificate{pair},
		},
		certPEM: certPEM,
		keyPEM:  keyPEM,
	}, nil
}

// TLSConfig returns the provisioned TLS configuration, or nil after destroy
func (c *credentials) TLSConfig() *tls.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tlsConfig
}

// destroy wipes the retained PEM material and drops the TLS configuration.
// It is safe to call more than once; the material is destroyed exactly once.
func (c *credentials) destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return
	}
	for i := range c.keyPEM {
		c.keyPEM[i] = 0
	}
	for i := range c.certPEM {
		c.certPEM[i] = 0
	}
	c.keyPEM = nil
	c.certPEM = nil
	c.tlsConfig = nil
	c.released = true
}

func (c *credentials) destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}
