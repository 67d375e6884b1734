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

package hostresolve

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// txKey identifies one transaction shape in the mock factory.
type txKey struct {
	hostname string
	qtype    QueryType
	secure   bool
}

type txHandler func(ctx context.Context) (*dns.Msg, error)

// mockFactory scripts transaction outcomes per (hostname, qtype,
// secure) and counts how often each was started, which is how the
// tests observe job sharing.
type mockFactory struct {
	mu       sync.Mutex
	handlers map[txKey]txHandler
	started  map[txKey]int
}

func newMockFactory() *mockFactory {
	return &mockFactory{
		handlers: make(map[txKey]txHandler),
		started:  make(map[txKey]int),
	}
}

func (f *mockFactory) on(hostname string, qtype QueryType, secure bool, h txHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[txKey{hostname, qtype, secure}] = h
}

func (f *mockFactory) respond(hostname string, qtype QueryType, secure bool, msg *dns.Msg) {
	f.on(hostname, qtype, secure, func(context.Context) (*dns.Msg, error) {
		return msg, nil
	})
}

func (f *mockFactory) fail(hostname string, qtype QueryType, secure bool, err error) {
	f.on(hostname, qtype, secure, func(context.Context) (*dns.Msg, error) {
		return nil, err
	})
}

func (f *mockFactory) startedCount(hostname string, qtype QueryType, secure bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started[txKey{hostname, qtype, secure}]
}

func (f *mockFactory) NewTransaction(hostname string, qtype QueryType, secure bool) Transaction {
	return &mockTransaction{factory: f, key: txKey{hostname, qtype, secure}}
}

type mockTransaction struct {
	factory *mockFactory
	key     txKey
}

func (t *mockTransaction) Start(ctx context.Context) (*dns.Msg, error) {
	t.factory.mu.Lock()
	t.factory.started[t.key]++
	h := t.factory.handlers[t.key]
	t.factory.mu.Unlock()
	if h == nil {
		return nil, errors.Errorf("unscripted transaction %v", t.key)
	}
	return h(ctx)
}

// delayed wraps a handler with a context-aware delay.
func delayed(d time.Duration, h txHandler) txHandler {
	return func(ctx context.Context) (*dns.Msg, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d):
		}
		return h(ctx)
	}
}

func mustRR(t *testing.T, s string) dns.RR {
	t.Helper()
	rr, err := dns.NewRR(s)
	require.NoError(t, err)
	return rr
}

func answerMsg(t *testing.T, qname string, qtype uint16, rrs ...string) *dns.Msg {
	t.Helper()
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(qname), qtype)
	m.Response = true
	for _, s := range rrs {
		m.Answer = append(m.Answer, mustRR(t, s))
	}
	return m
}

func nxdomainMsg(t *testing.T, qname string, qtype uint16, negTTL uint32) *dns.Msg {
	t.Helper()
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(qname), qtype)
	m.Response = true
	m.Rcode = dns.RcodeNameError
	m.Ns = append(m.Ns, mustRR(t,
		"example. 300 IN SOA ns.example. admin.example. 1 7200 900 1209600 "+
			itoa(negTTL)))
	return m
}

func servfailMsg(t *testing.T, qname string, qtype uint16) *dns.Msg {
	return rcodeMsg(t, qname, qtype, dns.RcodeServerFailure)
}

func rcodeMsg(t *testing.T, qname string, qtype uint16, rcode int) *dns.Msg {
	t.Helper()
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(qname), qtype)
	m.Response = true
	m.Rcode = rcode
	return m
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// newTestResolver builds a resolver on the mock factory with both
// transports enabled and a tiny dispatcher when asked.
func newTestResolver(t *testing.T, factory TransactionFactory, mutate ...func(*Options)) *Resolver {
	t.Helper()
	opts := Options{
		Transactions:         factory,
		SecureTransactions:   false,
		InsecureTransactions: true,
		IPv6Probe:            func(context.Context) bool { return true },
	}
	for _, m := range mutate {
		m(&opts)
	}
	r, err := NewResolver(opts)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}
