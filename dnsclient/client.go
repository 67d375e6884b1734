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

// Package dnsclient exchanges DNS messages with upstream servers over
// classic UDP/TCP, DNS over TLS, DoH (HTTP/2 and HTTP/3) and DoQ, and
// provides the transaction factory the resolution engine plugs in.
package dnsclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/miekg/dns"
	ot "github.com/opentracing/opentracing-go"
	otext "github.com/opentracing/opentracing-go/ext"
	"github.com/pkg/errors"
)

var errMaxReadLoopExceeded = errors.New("maximum read loop iterations exceeded without matching response ID")

// Client is the proxy for one remote DNS server.
type Client interface {
	Exchange(ctx context.Context, query *dns.Msg) (*dns.Msg, error)
	Endpoint() string
	Net() string
	SetTLSConfig(*tls.Config)
	Close() error
}

// NewClient creates a classic-transport client for addr over the given
// network (UDP, TCP or TCPTLS). Encrypted HTTP- and QUIC-based clients
// have their own constructors.
func NewClient(addr, network string) Client {
	return &client{
		addr:      addr,
		net:       network,
		transport: newTransport(addr),
	}
}

type client struct {
	transport transport
	addr      string
	net       string
}

// SetTLSConfig switches the client to DNS over TLS.
func (c *client) SetTLSConfig(cfg *tls.Config) {
	if cfg != nil {
		c.net = TCPTLS
	}
	c.transport.SetTLSConfig(cfg)
}

// Net returns the network type of the client.
func (c *client) Net() string {
	return c.net
}

// Endpoint returns the address of the DNS server.
func (c *client) Endpoint() string {
	return c.addr
}

// Close drains the connection pool.
func (c *client) Close() error {
	c.transport.Close()
	return nil
}

// Exchange sends query and waits for the matching response.
func (c *client) Exchange(ctx context.Context, query *dns.Msg) (msg *dns.Msg, err error) {
	ctx, finish := withExchangeSpan(ctx, c.addr)
	defer finish()
	start := time.Now()

	conn, err := c.transport.Dial(ctx, c.net)
	if err != nil {
		return nil, err
	}

	conn.UDPSize = clampUDPSize(query.Len())

	// cancelled tracks whether the context-cancellation goroutine closed
	// the connection; such a connection must not go back to the pool.
	var cancelled atomic.Bool
	done := make(chan struct{})
	defer func() {
		close(done)
		if err != nil || cancelled.Load() {
			_ = conn.Close()
		} else {
			c.transport.Yield(conn)
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			cancelled.Store(true)
			_ = conn.Close()
		case <-done:
		}
	}()

	msg, err = c.exchangeMsg(conn, query)
	if err != nil {
		return nil, err
	}

	observeResponse(c.addr, msg, start)
	return msg, nil
}

// exchangeMsg writes the query and reads responses until one carries
// the matching ID.
func (c *client) exchangeMsg(conn *dns.Conn, query *dns.Msg) (*dns.Msg, error) {
	if err := conn.SetWriteDeadline(time.Now().Add(dialTimeout)); err != nil {
		return nil, err
	}
	if err := conn.WriteMsg(query); err != nil {
		return nil, err
	}
	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return nil, err
	}
	for range maxReadLoopIterations {
		ret, err := conn.ReadMsg()
		if err != nil {
			return nil, err
		}
		if query.Id == ret.Id {
			return ret, nil
		}
	}
	return nil, errMaxReadLoopExceeded
}

// clampUDPSize restricts the advertised UDP buffer to the valid DNS
// range [512, 65535].
func clampUDPSize(size int) uint16 {
	if size < 512 {
		size = 512
	}
	if size > math.MaxUint16 {
		size = math.MaxUint16
	}
	return uint16(size)
}

func observeResponse(addr string, msg *dns.Msg, start time.Time) {
	rc, ok := dns.RcodeToString[msg.Rcode]
	if !ok {
		rc = fmt.Sprint(msg.Rcode)
	}
	RequestCount.WithLabelValues(addr).Add(1)
	RcodeCount.WithLabelValues(rc, addr).Add(1)
	RequestDuration.WithLabelValues(addr).Observe(time.Since(start).Seconds())
}

func withExchangeSpan(ctx context.Context, addr string) (context.Context, func()) {
	span := ot.SpanFromContext(ctx)
	if span == nil {
		return ctx, func() {}
	}
	childSpan := span.Tracer().StartSpan("exchange", ot.ChildOf(span.Context()))
	otext.PeerAddress.Set(childSpan, addr)
	return ot.ContextWithSpan(ctx, childSpan), childSpan.Finish
}

// deadlineFromCtx derives an absolute deadline from ctx, falling back
// to now+fallback when ctx carries none.
func deadlineFromCtx(ctx context.Context, fallback time.Duration) time.Time {
	if deadline, ok := ctx.Deadline(); ok {
		return deadline
	}
	return time.Now().Add(fallback)
}
