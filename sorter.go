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
	"sort"
)

// AddressSorter orders merged endpoints by connection preference. It is
// invoked only when the merged set contains at least one IPv6 address;
// IPv4-only results keep response order.
//
// A sorter may drop endpoints it considers unusable. An empty result
// after a successful sort turns the resolution into ErrNameNotResolved;
// a sort error is treated like a transient network failure.
type AddressSorter interface {
	Sort(ctx context.Context, endpoints []Endpoint) ([]Endpoint, error)
}

// defaultSorter orders addresses by the RFC 6724 section 2.1 precedence
// table. It has no view of local source addresses, so the
// source-address-dependent rules are skipped.
type defaultSorter struct{}

func (defaultSorter) Sort(_ context.Context, endpoints []Endpoint) ([]Endpoint, error) {
	out := append([]Endpoint(nil), endpoints...)
	sort.SliceStable(out, func(i, j int) bool {
		return precedence(out[i].Addr) > precedence(out[j].Addr)
	})
	return out, nil
}

var (
	prefix4in6      = netip.MustParsePrefix("::ffff:0:0/96")
	prefix6to4      = netip.MustParsePrefix("2002::/16")
	prefixTeredo    = netip.MustParsePrefix("2001::/32")
	prefixULA       = netip.MustParsePrefix("fc00::/7")
	prefixSiteLocal = netip.MustParsePrefix("fec0::/10")
)

// precedence is the RFC 6724 policy-table precedence of addr.
func precedence(addr netip.Addr) int {
	v6 := addr
	if addr.Is4() {
		v6 = netip.AddrFrom16(addr.As16())
	}
	switch {
	case v6 == netip.IPv6Loopback() || addr.Is4() && addr.IsLoopback():
		return 50
	case addr.Is4() || prefix4in6.Contains(v6):
		return 35
	case prefix6to4.Contains(v6):
		return 30
	case prefixTeredo.Contains(v6):
		return 5
	case prefixULA.Contains(v6):
		return 3
	case prefixSiteLocal.Contains(v6):
		return 1
	}
	return 40
}

// containsIPv6 reports whether any endpoint carries a non-mapped IPv6
// address, the condition for running the sorter at all.
func containsIPv6(endpoints []Endpoint) bool {
	for _, e := range endpoints {
		if e.Addr.Is6() && !e.Addr.Is4In6() {
			return true
		}
	}
	return false
}
