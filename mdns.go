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
	"net/netip"
	"time"

	"github.com/pkg/errors"
)

// MulticastResolver answers queries over mDNS. Implementations handle
// the multicast transport themselves; the engine only schedules them.
type MulticastResolver interface {
	ResolveMulticast(ctx context.Context, hostname string, qtype QueryType) ([]netip.Addr, time.Duration, error)
}

// mdnsTask queries a MulticastResolver for every address type in the
// set. mDNS answers are link-scoped and never written to the cache.
type mdnsTask struct {
	resolver   MulticastResolver
	hostname   string
	queryTypes QueryTypeSet
}

func (t *mdnsTask) run(ctx context.Context) (*Result, *stepFailure) {
	if t.resolver == nil {
		return nil, failStep(errors.Errorf(
			"no multicast resolver configured for %q", t.hostname), true)
	}
	ctx, finish := withChildSpan(ctx, "mdnstask", t.hostname)
	defer finish()

	result := &Result{
		TTL:    -1,
		Source: ResultSourceMulticastDNS,
	}
	for _, qtype := range t.queryTypes.Types() {
		if !qtype.IsAddress() {
			continue
		}
		addrs, ttl, err := t.resolver.ResolveMulticast(ctx, t.hostname, qtype)
		if err != nil {
			if ctx.Err() != nil {
				return nil, failStep(errors.Wrap(ErrCancelled, ctx.Err().Error()), false)
			}
			return nil, failStep(errors.Wrapf(err,
				"mdns %s query for %q", qtype, t.hostname), true)
		}
		for _, addr := range addrs {
			result.Endpoints = append(result.Endpoints, Endpoint{Addr: addr.Unmap()})
		}
		if len(addrs) > 0 {
			result.TTL = minTTL(result.TTL, ttl)
		}
	}
	if len(result.Endpoints) == 0 {
		return nil, failStep(errors.Wrapf(ErrNameNotResolved,
			"no mdns answer for %q", t.hostname), false)
	}
	if result.TTL < 0 {
		result.TTL = defaultAnswerTTL
	}
	return result, nil
}
