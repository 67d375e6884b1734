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
	"net"
	"net/netip"
	"time"

	"github.com/pkg/errors"
)

// SystemResolver delegates a lookup to the platform resolver. The
// canonical name is returned only when requested; implementations may
// return "" otherwise.
type SystemResolver interface {
	ResolveSystem(ctx context.Context, hostname string, wantCanonical bool) ([]netip.Addr, string, error)
}

// netSystemResolver is the default SystemResolver on net.Resolver.
type netSystemResolver struct {
	resolver *net.Resolver
}

func (r *netSystemResolver) ResolveSystem(ctx context.Context, hostname string, wantCanonical bool) ([]netip.Addr, string, error) {
	res := r.resolver
	if res == nil {
		res = net.DefaultResolver
	}
	ips, err := res.LookupIPAddr(ctx, hostname)
	if err != nil {
		return nil, "", errors.Wrapf(err, "system lookup for %q", hostname)
	}
	var addrs []netip.Addr
	for _, ip := range ips {
		if addr, ok := netip.AddrFromSlice(ip.IP); ok {
			addrs = append(addrs, addr.Unmap())
		}
	}
	canonical := ""
	if wantCanonical {
		// Best effort; addresses already resolved.
		if cname, cerr := res.LookupCNAME(ctx, hostname); cerr == nil {
			canonical = trimFqdn(cname)
		}
	}
	return addrs, canonical, nil
}

// systemTask wraps a SystemResolver with the retry schedule and family
// filtering of a planned system step.
type systemTask struct {
	resolver      SystemResolver
	hostname      string
	queryTypes    QueryTypeSet
	wantCanonical bool
	attempts      int
	retryInitial  time.Duration
}

func newSystemTask(resolver SystemResolver, hostname string, types QueryTypeSet, wantCanonical bool) *systemTask {
	if resolver == nil {
		resolver = &netSystemResolver{}
	}
	return &systemTask{
		resolver:      resolver,
		hostname:      hostname,
		queryTypes:    types,
		wantCanonical: wantCanonical,
		attempts:      defaultSystemAttempts,
		retryInitial:  defaultSystemRetryInitial,
	}
}

// run performs up to the configured attempts with a doubling delay
// between them. System answers carry no TTL, so results get the default.
func (t *systemTask) run(ctx context.Context) (*Result, *stepFailure) {
	ctx, finish := withChildSpan(ctx, "systemtask", t.hostname)
	defer finish()

	var lastErr error
	delay := t.retryInitial
	for attempt := 0; attempt < t.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, failStep(errors.Wrap(ErrCancelled, ctx.Err().Error()), false)
			case <-time.After(delay):
			}
			delay *= 2
		}

		addrs, canonical, err := t.resolver.ResolveSystem(ctx, t.hostname, t.wantCanonical)
		if err != nil {
			if ctx.Err() != nil {
				return nil, failStep(errors.Wrap(ErrCancelled, ctx.Err().Error()), false)
			}
			var dnsErr *net.DNSError
			if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
				return nil, failStep(errors.Wrapf(ErrNameNotResolved,
					"system resolver: no such host %q", t.hostname), false)
			}
			lastErr = err
			log.Debugf("system lookup attempt %d for %q failed: %v",
				attempt+1, t.hostname, err)
			continue
		}

		endpoints := t.filterFamilies(addrs)
		if len(endpoints) == 0 {
			return nil, failStep(errors.Wrapf(ErrNameNotResolved,
				"system resolver returned no usable address for %q", t.hostname), false)
		}
		result := &Result{
			Endpoints: endpoints,
			TTL:       defaultAnswerTTL,
			Source:    ResultSourceSystem,
		}
		if canonical != "" {
			result.Aliases = []string{canonical}
		}
		return result, nil
	}
	return nil, failStep(errors.Wrapf(lastErr,
		"system resolution for %q failed after %d attempts", t.hostname, t.attempts), true)
}

// filterFamilies keeps only addresses of the queried families.
func (t *systemTask) filterFamilies(addrs []netip.Addr) []Endpoint {
	want4 := t.queryTypes.Has(QueryTypeA)
	want6 := t.queryTypes.Has(QueryTypeAAAA)
	var out []Endpoint
	for _, addr := range addrs {
		addr = addr.Unmap()
		if addr.Is4() && !want4 {
			continue
		}
		if addr.Is6() && !addr.Is4In6() && !want6 {
			continue
		}
		out = append(out, Endpoint{Addr: addr})
	}
	return out
}
