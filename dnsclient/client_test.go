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
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	resolver "github.com/TomTonic/hostresolve"
)

// startUDPServer runs a local dns.Server answering via handler.
func startUDPServer(t *testing.T, handler dns.HandlerFunc) (addr string, shutdown func()) {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &dns.Server{
		PacketConn: pc,
		Handler:    handler,
	}
	started := make(chan struct{})
	s.NotifyStartedFunc = func() { close(started) }
	go func() {
		_ = s.ActivateAndServe()
	}()
	<-started
	return pc.LocalAddr().String(), func() { _ = s.Shutdown() }
}

func aHandler(name, ip string) dns.HandlerFunc {
	return func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		rr, _ := dns.NewRR(name + " 300 IN A " + ip)
		m.Answer = append(m.Answer, rr)
		_ = w.WriteMsg(m)
	}
}

func TestClientExchange(t *testing.T) {
	defer goleak.VerifyNone(t)
	addr, shutdown := startUDPServer(t, aHandler("ok.example.", "192.0.2.10"))
	defer shutdown()

	c := NewClient(addr, UDP)
	defer c.Close() //nolint:errcheck

	query := new(dns.Msg)
	query.SetQuestion("ok.example.", dns.TypeA)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	msg, err := c.Exchange(ctx, query)
	require.NoError(t, err)
	require.Equal(t, dns.RcodeSuccess, msg.Rcode)
	require.Len(t, msg.Answer, 1)
}

func TestClientExchangeContextCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)
	addr, shutdown := startUDPServer(t, func(dns.ResponseWriter, *dns.Msg) {
		// Never answer.
	})
	defer shutdown()

	c := NewClient(addr, UDP)
	defer c.Close() //nolint:errcheck

	query := new(dns.Msg)
	query.SetQuestion("slow.example.", dns.TypeA)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Exchange(ctx, query)
	require.Error(t, err)
}

func TestClientNetAndEndpoint(t *testing.T) {
	c := NewClient("192.0.2.1:53", UDP)
	require.Equal(t, UDP, c.Net())
	require.Equal(t, "192.0.2.1:53", c.Endpoint())
	require.NoError(t, c.Close())
}

func TestClampUDPSize(t *testing.T) {
	require.EqualValues(t, 512, clampUDPSize(100))
	require.EqualValues(t, 4096, clampUDPSize(4096))
	require.EqualValues(t, 65535, clampUDPSize(1<<20))
}

func TestFactoryTransaction(t *testing.T) {
	defer goleak.VerifyNone(t)
	addr, shutdown := startUDPServer(t, aHandler("ok.example.", "192.0.2.10"))
	defer shutdown()

	f, err := NewFactory(Config{
		InsecureServers: []Server{{Addr: addr, Net: UDP}},
	})
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	require.True(t, f.HasInsecureServers())
	require.False(t, f.HasSecureServers())

	tx := f.NewTransaction("ok.example", resolver.QueryTypeA, false)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	msg, err := tx.Start(ctx)
	require.NoError(t, err)
	require.Len(t, msg.Answer, 1)
}

func TestFactoryTriesNextServerOnFailure(t *testing.T) {
	defer goleak.VerifyNone(t)
	// First server never answers; second does.
	deadAddr, deadShutdown := startUDPServer(t, func(dns.ResponseWriter, *dns.Msg) {})
	defer deadShutdown()
	liveAddr, liveShutdown := startUDPServer(t, aHandler("fallback.example.", "192.0.2.20"))
	defer liveShutdown()

	f, err := NewFactory(Config{
		InsecureServers: []Server{
			{Addr: deadAddr, Net: UDP},
			{Addr: liveAddr, Net: UDP},
		},
	})
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	tx := f.NewTransaction("fallback.example", resolver.QueryTypeA, false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	msg, err := tx.Start(ctx)
	require.NoError(t, err)
	require.Len(t, msg.Answer, 1)
}

func TestFactoryRejectsPlaintextSecureServer(t *testing.T) {
	_, err := NewFactory(Config{
		SecureServers: []Server{{Addr: "192.0.2.1:53", Net: UDP}},
	})
	require.Error(t, err)
}

func TestFactoryRejectsUnknownPolicy(t *testing.T) {
	_, err := NewFactory(Config{Policy: "round-robin"})
	require.Error(t, err)
}

func TestTransactionNoServers(t *testing.T) {
	f, err := NewFactory(Config{})
	require.NoError(t, err)
	tx := f.NewTransaction("nowhere.example", resolver.QueryTypeA, true)
	_, err = tx.Start(context.Background())
	require.Error(t, err)
}
