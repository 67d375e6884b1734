// Copyright (c) 2026 Tom Gelhausen and/or affiliates.
//
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dnsclient

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync"

	"github.com/miekg/dns"
	"github.com/quic-go/quic-go/http3"
)

// doh3Client implements Client for DNS over HTTPS on HTTP/3: RFC 8484
// at the application layer over a QUIC transport (RFC 9000), trading
// the TCP handshake for reduced connection-establishment latency.
type doh3Client struct {
	endpoint  string
	mu        sync.Mutex
	h3Client  *http.Client
	transport *http3.Transport
}

// NewDoH3Client creates a DNS-over-HTTPS client on HTTP/3 for the given
// endpoint URL.
func NewDoH3Client(endpoint string) Client {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS13,
	}
	h3Transport := &http3.Transport{
		TLSClientConfig: tlsConfig,
	}
	return &doh3Client{
		endpoint:  endpoint,
		transport: h3Transport,
		h3Client: &http.Client{
			Transport: h3Transport,
			Timeout:   readTimeout + dialTimeout,
		},
	}
}

// SetTLSConfig replaces the QUIC transport with one using cfg. HTTP/3
// requires TLS 1.3 minimum; lower settings are raised.
func (c *doh3Client) SetTLSConfig(cfg *tls.Config) {
	if cfg == nil {
		return
	}
	if cfg.MinVersion < tls.VersionTLS13 {
		cfg.MinVersion = tls.VersionTLS13
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.transport.Close()
	c.transport = &http3.Transport{
		TLSClientConfig: cfg,
	}
	c.h3Client = &http.Client{
		Transport: c.transport,
		Timeout:   readTimeout + dialTimeout,
	}
}

// Close shuts the QUIC transport down.
func (c *doh3Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport.Close()
}

// Net returns the network type of the client.
func (c *doh3Client) Net() string {
	return DOH3
}

// Endpoint returns the DoH server URL.
func (c *doh3Client) Endpoint() string {
	return c.endpoint
}

// Exchange sends the query via HTTP/3 POST per RFC 8484.
func (c *doh3Client) Exchange(ctx context.Context, query *dns.Msg) (*dns.Msg, error) {
	c.mu.Lock()
	hc := c.h3Client
	c.mu.Unlock()
	return dohRoundTrip(ctx, hc, c.endpoint, query)
}
