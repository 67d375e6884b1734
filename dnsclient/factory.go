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
	"time"

	"github.com/miekg/dns"
	"github.com/pkg/errors"

	resolver "github.com/TomTonic/hostresolve"
	"github.com/TomTonic/hostresolve/internal/selector"
)

// Server describes one upstream DNS server.
type Server struct {
	// Addr is a host:port for classic transports and DoQ, or a full URL
	// for DoH transports.
	Addr string
	// Net selects the transport: UDP, TCP, TCPTLS, DOH, DOH3 or DOQ.
	Net string
	// Weight biases server selection under PolicyWeightedRandom. Zero
	// means weight 1.
	Weight int
}

// Config assembles a Factory.
type Config struct {
	// InsecureServers serve classic DNS transactions.
	InsecureServers []Server
	// SecureServers serve encrypted transactions (TCPTLS, DOH, DOH3,
	// DOQ).
	SecureServers []Server
	// Policy is the server-selection policy, PolicySequential by
	// default.
	Policy string
	// Tap optionally mirrors queries and responses as dnstap frames.
	Tap *Tapper
}

type upstream struct {
	client Client
	weight int
}

// Factory builds transactions over a fixed upstream set. It implements
// the resolution engine's transaction-factory contract: one Factory
// serves both the secure and the insecure transaction pools.
type Factory struct {
	insecure []upstream
	secure   []upstream
	policy   string
	tap      *Tapper
}

// NewFactory validates cfg and dials nothing yet; connections are
// established lazily by the per-transport clients.
func NewFactory(cfg Config) (*Factory, error) {
	policy := cfg.Policy
	if policy == "" {
		policy = PolicySequential
	}
	if policy != PolicySequential && policy != PolicyWeightedRandom {
		return nil, errors.Errorf("unknown server selection policy %q", policy)
	}

	f := &Factory{policy: policy, tap: cfg.Tap}
	for _, spec := range cfg.InsecureServers {
		client, err := newClientFor(spec, false)
		if err != nil {
			return nil, err
		}
		f.insecure = append(f.insecure, upstream{client: client, weight: weightOf(spec)})
	}
	for _, spec := range cfg.SecureServers {
		client, err := newClientFor(spec, true)
		if err != nil {
			return nil, err
		}
		f.secure = append(f.secure, upstream{client: client, weight: weightOf(spec)})
	}
	return f, nil
}

func weightOf(spec Server) int {
	if spec.Weight <= 0 {
		return 1
	}
	return spec.Weight
}

func newClientFor(spec Server, secure bool) (Client, error) {
	switch spec.Net {
	case DOH:
		return NewDoHClient(spec.Addr), nil
	case DOH3:
		return NewDoH3Client(spec.Addr), nil
	case DOQ:
		return NewDoQClient(spec.Addr), nil
	case TCPTLS:
		return NewClient(spec.Addr, TCPTLS), nil
	case UDP, TCP:
		if secure {
			return nil, errors.Errorf("plaintext transport %q not allowed for secure server %s",
				spec.Net, spec.Addr)
		}
		return NewClient(spec.Addr, spec.Net), nil
	case "":
		if secure {
			return NewClient(spec.Addr, TCPTLS), nil
		}
		return NewClient(spec.Addr, UDP), nil
	}
	return nil, errors.Errorf("unknown transport %q for server %s", spec.Net, spec.Addr)
}

// HasSecureServers reports whether encrypted transactions can run.
func (f *Factory) HasSecureServers() bool { return len(f.secure) > 0 }

// HasInsecureServers reports whether classic transactions can run.
func (f *Factory) HasInsecureServers() bool { return len(f.insecure) > 0 }

// Close closes every upstream client.
func (f *Factory) Close() error {
	var firstErr error
	for _, u := range append(append([]upstream(nil), f.insecure...), f.secure...) {
		if err := u.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewTransaction builds one transaction for hostname and qtype over the
// secure or insecure upstream pool.
func (f *Factory) NewTransaction(hostname string, qtype resolver.QueryType, secure bool) resolver.Transaction {
	pool := f.insecure
	if secure {
		pool = f.secure
	}
	return &transaction{
		factory:  f,
		pool:     pool,
		hostname: hostname,
		qtype:    qtype,
	}
}

type picker interface {
	Pick() upstream
}

func (f *Factory) newPicker(pool []upstream) picker {
	if f.policy == PolicyWeightedRandom {
		weights := make([]int, len(pool))
		for i, u := range pool {
			weights[i] = u.weight
		}
		return selector.NewWeightedRandSelector(pool, weights)
	}
	return selector.NewSequentialSelector(pool)
}

// transaction tries each upstream of its pool once, in policy order,
// and returns the first response. Response validation beyond ID
// matching is the engine's business; rcodes travel up unjudged.
type transaction struct {
	factory  *Factory
	pool     []upstream
	hostname string
	qtype    resolver.QueryType
}

// Start implements the engine's transaction contract.
func (t *transaction) Start(ctx context.Context) (*dns.Msg, error) {
	if len(t.pool) == 0 {
		return nil, errors.Errorf("no upstream servers configured for %q", t.hostname)
	}

	query := new(dns.Msg)
	query.SetQuestion(dns.Fqdn(t.hostname), uint16(t.qtype))
	query.RecursionDesired = true
	query.SetEdns0(ednsUDPSize, false)

	sel := t.factory.newPicker(t.pool)
	var lastErr error
	for {
		u := sel.Pick()
		if u.client == nil {
			break
		}
		t.factory.tap.TapQuery(query, u.client.Endpoint())
		msg, err := u.client.Exchange(ctx, query)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, errors.Wrapf(err, "transaction for %q cancelled", t.hostname)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(attemptDelay):
			}
			continue
		}
		t.factory.tap.TapResponse(msg, u.client.Endpoint())
		return msg, nil
	}
	return nil, errors.Wrapf(lastErr, "every upstream failed for %q", t.hostname)
}
