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
	"net"
	"sync"

	"github.com/miekg/dns"
	ot "github.com/opentracing/opentracing-go"
)

// transport connects to a remote DNS endpoint over a specific network,
// pooling stream connections for reuse.
type transport interface {
	Dial(ctx context.Context, net string) (*dns.Conn, error)
	// Yield returns a healthy connection to the pool. Only call it for
	// connections that completed a request-response cycle; close failed
	// connections instead.
	Yield(conn *dns.Conn)
	SetTLSConfig(*tls.Config)
	// Close drains the connection pool.
	Close()
}

func newTransport(addr string) transport {
	return &transportImpl{
		addr: addr,
		pool: make(chan *dns.Conn, connPoolSize),
	}
}

type transportImpl struct {
	tlsConfig *tls.Config
	addr      string
	mu        sync.Mutex // protects tlsConfig reads during concurrent Dial
	pool      chan *dns.Conn
}

func (t *transportImpl) SetTLSConfig(c *tls.Config) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tlsConfig = c
}

func (t *transportImpl) Close() {
	for {
		select {
		case conn := <-t.pool:
			_ = conn.Close()
		default:
			return
		}
	}
}

// Yield returns a connection to the pool, closing it when the pool is
// full. UDP connections are always closed; they are cheap to recreate.
func (t *transportImpl) Yield(conn *dns.Conn) {
	if conn == nil {
		return
	}
	select {
	case t.pool <- conn:
	default:
		_ = conn.Close()
	}
}

// Dial returns a pooled connection if available, or creates a new one.
func (t *transportImpl) Dial(ctx context.Context, network string) (*dns.Conn, error) {
	t.mu.Lock()
	tlsCfg := t.tlsConfig
	t.mu.Unlock()

	if tlsCfg != nil {
		network = TCPTLS
	}

	if network == TCP || network == TCPTLS {
		select {
		case conn := <-t.pool:
			return conn, nil
		default:
		}
	}

	if network == TCPTLS {
		return t.dial(ctx, &dns.Client{Net: network, Dialer: &net.Dialer{Timeout: dialTimeout}, TLSConfig: tlsCfg})
	}
	return t.dial(ctx, &dns.Client{Net: network, Dialer: &net.Dialer{Timeout: dialTimeout}})
}

func (t *transportImpl) dial(ctx context.Context, c *dns.Client) (*dns.Conn, error) {
	span := ot.SpanFromContext(ctx)
	if span != nil {
		childSpan := span.Tracer().StartSpan("dial", ot.ChildOf(span.Context()))
		defer childSpan.Finish()
	}
	conn, err := c.DialContext(ctx, t.addr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
