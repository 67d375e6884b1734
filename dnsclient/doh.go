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
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
)

// dohMaxResponseSize caps the DNS response body read over DoH (64 KiB)
// so a malicious server cannot force unbounded allocation.
const dohMaxResponseSize = 64 * 1024

// dohContentType is the MIME type for DNS wire-format messages
// (RFC 8484 section 6).
const dohContentType = "application/dns-message"

// dohClient implements Client for DNS over HTTPS (RFC 8484) using HTTP
// POST with the application/dns-message content type.
type dohClient struct {
	endpoint   string // full URL, e.g. "https://dns.example/dns-query"
	mu         sync.Mutex
	httpClient *http.Client
}

// NewDoHClient creates a DNS-over-HTTPS client for the given endpoint
// URL over an HTTP/2 connection-pooling transport.
func NewDoHClient(endpoint string) Client {
	return &dohClient{
		endpoint:   endpoint,
		httpClient: newHTTP2Client(nil),
	}
}

// newHTTP2Client creates an http.Client backed by an HTTP/2-capable
// transport. The TLS config is cloned to prevent external mutation.
func newHTTP2Client(tlsConfig *tls.Config) *http.Client {
	if tlsConfig == nil {
		tlsConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	} else {
		tlsConfig = tlsConfig.Clone()
	}
	tr := &http.Transport{
		TLSClientConfig:     tlsConfig,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        connPoolSize,
		MaxIdleConnsPerHost: connPoolSize,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout: dialTimeout,
		}).DialContext,
	}
	return &http.Client{
		Transport: tr,
		Timeout:   readTimeout + dialTimeout,
	}
}

// SetTLSConfig replaces the HTTP transport with one using cfg. Idle
// connections of the old transport are closed.
func (c *dohClient) SetTLSConfig(cfg *tls.Config) {
	if cfg == nil {
		return
	}
	cfg.MinVersion = tls.VersionTLS12

	newClient := newHTTP2Client(cfg)

	c.mu.Lock()
	old := c.httpClient
	c.httpClient = newClient
	c.mu.Unlock()

	if tr, ok := old.Transport.(*http.Transport); ok {
		tr.CloseIdleConnections()
	}
}

// Close releases idle HTTP connections.
func (c *dohClient) Close() error {
	c.mu.Lock()
	hc := c.httpClient
	c.mu.Unlock()
	if tr, ok := hc.Transport.(*http.Transport); ok {
		tr.CloseIdleConnections()
	}
	return nil
}

// Net returns the network type of the client.
func (c *dohClient) Net() string {
	return DOH
}

// Endpoint returns the DoH server URL.
func (c *dohClient) Endpoint() string {
	return c.endpoint
}

// Exchange sends the query via HTTP POST per RFC 8484.
func (c *dohClient) Exchange(ctx context.Context, query *dns.Msg) (*dns.Msg, error) {
	c.mu.Lock()
	hc := c.httpClient
	c.mu.Unlock()
	return dohRoundTrip(ctx, hc, c.endpoint, query)
}

// dohRoundTrip performs one RFC 8484 POST exchange; shared between the
// HTTP/2 and HTTP/3 clients.
func dohRoundTrip(ctx context.Context, hc *http.Client, endpoint string, query *dns.Msg) (*dns.Msg, error) {
	ctx, finish := withExchangeSpan(ctx, endpoint)
	defer finish()
	start := time.Now()

	packed, err := query.Pack()
	if err != nil {
		return nil, errors.Wrap(err, "DoH: failed to pack DNS request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(packed))
	if err != nil {
		return nil, errors.Wrap(err, "DoH: failed to create HTTP request")
	}
	req.Header.Set("Content-Type", dohContentType)
	req.Header.Set("Accept", dohContentType)

	resp, err := hc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "DoH: HTTP request failed")
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("DoH: unexpected HTTP status %d from %s",
			resp.StatusCode, endpoint)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, dohMaxResponseSize))
	if err != nil {
		return nil, errors.Wrap(err, "DoH: failed to read response body")
	}

	ret := new(dns.Msg)
	if err := ret.Unpack(body); err != nil {
		return nil, errors.Wrap(err, "DoH: failed to unpack DNS response")
	}
	if ret.Id != query.Id {
		return nil, errors.Errorf("DoH: response ID %d does not match query ID %d",
			ret.Id, query.Id)
	}

	observeResponse(endpoint, ret, start)
	return ret, nil
}
