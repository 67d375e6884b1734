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
	"encoding/binary"
	"io"
	"math"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"
)

// doqALPN is the ALPN token for DNS over QUIC per RFC 9250 §7.2.
const doqALPN = "doq"

// doqMaxMessageSize caps the DNS message payload over DoQ (64 KiB),
// protecting against excessive allocation from malicious peers.
const doqMaxMessageSize = 64 * 1024

// DoQ application error codes, RFC 9250 §8.4.
const (
	doqNoError       quic.ApplicationErrorCode = 0x0
	doqInternalError quic.ApplicationErrorCode = 0x1
)

// doqClient implements Client for DNS over QUIC (RFC 9250): one QUIC
// stream per query on a persistent connection, giving TLS 1.3
// encryption with per-query multiplexing.
type doqClient struct {
	addr      string // host:port of the DoQ server
	mu        sync.Mutex
	conn      *quic.Conn
	tlsConfig *tls.Config
}

// NewDoQClient creates a DNS-over-QUIC client for addr in host:port
// form, e.g. "dns.example.com:853".
func NewDoQClient(addr string) Client {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS13,
		NextProtos: []string{doqALPN},
	}
	return &doqClient{
		addr:      addr,
		tlsConfig: tlsConfig,
	}
}

// SetTLSConfig updates the TLS configuration for QUIC connections. Any
// existing connection is closed to force a reconnect under the new
// config; QUIC's TLS 1.3 minimum is enforced.
func (c *doqClient) SetTLSConfig(cfg *tls.Config) {
	if cfg == nil {
		return
	}
	if cfg.MinVersion < tls.VersionTLS13 {
		cfg.MinVersion = tls.VersionTLS13
	}
	cfg.NextProtos = []string{doqALPN}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.CloseWithError(doqNoError, "TLS config changed")
		c.conn = nil
	}
	c.tlsConfig = cfg
}

// Close terminates the QUIC connection cleanly.
func (c *doqClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.CloseWithError(doqNoError, "client closed")
	c.conn = nil
	return err
}

// Net returns the network type of the client.
func (c *doqClient) Net() string {
	return DOQ
}

// Endpoint returns the server address in host:port form.
func (c *doqClient) Endpoint() string {
	return c.addr
}

// Exchange sends the query over a dedicated QUIC stream per RFC 9250
// §4.2: 2-byte length prefix, client closes its sending half after the
// write.
func (c *doqClient) Exchange(ctx context.Context, query *dns.Msg) (*dns.Msg, error) {
	ctx, finish := withExchangeSpan(ctx, c.addr)
	defer finish()
	start := time.Now()

	conn, err := c.getOrDialConn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "DoQ: failed to establish QUIC connection")
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		// Connection may have died; reset and retry once.
		c.resetConn()
		conn, err = c.getOrDialConn(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "DoQ: failed to re-establish QUIC connection")
		}
		stream, err = conn.OpenStreamSync(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "DoQ: failed to open QUIC stream")
		}
	}

	ret, err := c.exchangeOnStream(ctx, stream, query)
	if err != nil {
		return nil, err
	}

	observeResponse(c.addr, ret, start)
	return ret, nil
}

func (c *doqClient) getOrDialConn(ctx context.Context) (*quic.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}
	conn, err := quic.DialAddr(ctx, c.addr, c.tlsConfig, nil)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return conn, nil
}

func (c *doqClient) resetConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.CloseWithError(doqInternalError, "connection reset")
		c.conn = nil
	}
}

func (c *doqClient) exchangeOnStream(ctx context.Context, stream *quic.Stream, query *dns.Msg) (*dns.Msg, error) {
	defer stream.Close() //nolint:errcheck // best-effort close

	if err := c.writeQuery(ctx, stream, query); err != nil {
		return nil, err
	}
	return c.readResponse(ctx, stream, query.Id)
}

// writeQuery packs and writes the query with its 2-byte length prefix.
func (c *doqClient) writeQuery(ctx context.Context, stream *quic.Stream, query *dns.Msg) error {
	if err := stream.SetWriteDeadline(deadlineFromCtx(ctx, dialTimeout)); err != nil {
		return errors.Wrap(err, "DoQ: failed to set write deadline")
	}

	packed, err := query.Pack()
	if err != nil {
		return errors.Wrap(err, "DoQ: failed to pack DNS request")
	}
	if len(packed) > math.MaxUint16 {
		return errors.Errorf("DoQ: packed DNS message too large (%d bytes)", len(packed))
	}

	buf := make([]byte, 2+len(packed))
	binary.BigEndian.PutUint16(buf[:2], uint16(len(packed))) //nolint:gosec // bound checked above
	copy(buf[2:], packed)

	if _, err = stream.Write(buf); err != nil {
		return errors.Wrap(err, "DoQ: failed to write DNS query to stream")
	}
	return nil
}

// readResponse reads one length-prefixed DNS message from the stream.
func (c *doqClient) readResponse(ctx context.Context, stream *quic.Stream, queryID uint16) (*dns.Msg, error) {
	if err := stream.SetReadDeadline(deadlineFromCtx(ctx, readTimeout)); err != nil {
		return nil, errors.Wrap(err, "DoQ: failed to set read deadline")
	}

	var lengthPrefix [2]byte
	if _, err := io.ReadFull(stream, lengthPrefix[:]); err != nil {
		return nil, errors.Wrap(err, "DoQ: failed to read response length prefix")
	}
	length := binary.BigEndian.Uint16(lengthPrefix[:])
	if length == 0 || int(length) > doqMaxMessageSize {
		return nil, errors.Errorf("DoQ: invalid response length %d", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(stream, payload); err != nil {
		return nil, errors.Wrap(err, "DoQ: failed to read response payload")
	}

	ret := new(dns.Msg)
	if err := ret.Unpack(payload); err != nil {
		return nil, errors.Wrap(err, "DoQ: failed to unpack DNS response")
	}
	if ret.Id != queryID {
		return nil, errors.Errorf("DoQ: response ID %d does not match query ID %d",
			ret.Id, queryID)
	}
	return ret, nil
}
