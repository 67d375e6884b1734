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
	"net/netip"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/idna"
)

// ResolveParams tune one resolution. The zero value asks for an
// unspecified-type, any-source, automatic-secure-mode lookup at medium
// priority with normal cache usage.
type ResolveParams struct {
	// QueryTypes selects explicit query types. Empty means unspecified:
	// the engine resolves A and AAAA, plus HTTPS for https/wss requests.
	QueryTypes QueryTypeSet
	Source     Source
	SecureMode SecureMode
	CacheUsage CacheUsage
	Priority   Priority
	Flags      ResolveFlags
	// AnonymizationKey partitions cache and job sharing between network
	// contexts; requests with different keys never share anything.
	AnonymizationKey string
	// Network names a bound target network; "" is the default network.
	Network string
}

// request is one caller's pending resolution. It is handed to a job for
// delivery and read again only after done is closed.
type request struct {
	host       Host
	queryTypes QueryTypeSet
	flags      ResolveFlags
	priority   Priority

	done   chan struct{}
	result *Result
	err    error

	job      *job
	jobIndex int
}

func (req *request) deliver(result *Result, err error) {
	req.result = result
	req.err = err
	close(req.done)
}

// canonicalizeHostname normalizes a hostname to lowercase ASCII (IDNA
// 2008 lookup form) with no trailing dot and validates its length.
func canonicalizeHostname(hostname string) (string, error) {
	name := strings.TrimSuffix(strings.ToLower(hostname), ".")
	if name == "" {
		return "", errors.Wrap(ErrNameNotResolved, "empty hostname")
	}
	ascii, err := idna.Lookup.ToASCII(name)
	if err != nil {
		// Accept names that are plain ASCII host labels even when the
		// strict lookup profile rejects them, like underscore names.
		if !isPlainASCIIName(name) {
			return "", errors.Wrapf(ErrNameNotResolved,
				"invalid hostname %q: %v", hostname, err)
		}
		ascii = name
	}
	if len(ascii) > maxHostnameLength {
		return "", errors.Wrapf(ErrNameNotResolved,
			"hostname %q exceeds %d octets", hostname, maxHostnameLength)
	}
	return ascii, nil
}

func isPlainASCIIName(name string) bool {
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}

// parseLiteral recognizes IP literals, bracketed IPv6 forms included.
// Zone suffixes are preserved.
func parseLiteral(hostname string) (netip.Addr, bool) {
	name := hostname
	if strings.HasPrefix(name, "[") && strings.HasSuffix(name, "]") {
		name = name[1 : len(name)-1]
	}
	addr, err := netip.ParseAddr(name)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// isLocalhostName implements the RFC 6761 section 6.3 rule: localhost
// and anything under it resolve to loopback without ever hitting the
// network.
func isLocalhostName(hostname string) bool {
	return hostname == "localhost" || strings.HasSuffix(hostname, ".localhost")
}

// isMulticastName reports a canonicalized name in the RFC 6762 .local
// special-use domain.
func isMulticastName(hostname string) bool {
	return strings.HasSuffix(hostname, ".local")
}

// localhostResult builds the fixed loopback answer for the queried
// families.
func localhostResult(types QueryTypeSet) *Result {
	result := &Result{
		TTL:    defaultAnswerTTL,
		Source: ResultSourceLocalhost,
	}
	if types.Has(QueryTypeAAAA) {
		result.Endpoints = append(result.Endpoints, Endpoint{Addr: netip.IPv6Loopback()})
	}
	if types.Has(QueryTypeA) {
		result.Endpoints = append(result.Endpoints,
			Endpoint{Addr: netip.AddrFrom4([4]byte{127, 0, 0, 1})})
	}
	return result
}

// literalResult answers an IP-literal hostname, or fails when the
// literal's family was excluded from the query.
func literalResult(addr netip.Addr, types QueryTypeSet) (*Result, error) {
	is6 := addr.Is6() && !addr.Is4In6()
	if is6 && !types.Has(QueryTypeAAAA) {
		return nil, errors.Wrapf(ErrNameNotResolved,
			"ipv6 literal %s excluded by query types", addr)
	}
	if !is6 && !types.Has(QueryTypeA) {
		return nil, errors.Wrapf(ErrNameNotResolved,
			"ipv4 literal %s excluded by query types", addr)
	}
	return &Result{
		Endpoints: []Endpoint{{Addr: addr}},
		TTL:       defaultAnswerTTL,
		Source:    ResultSourceLiteral,
	}, nil
}

// effectiveQueryTypes expands an unspecified query-type set. AAAA is
// dropped, with a marker flag, when IPv6 looks unreachable; explicit
// type sets are never rewritten.
func effectiveQueryTypes(host Host, params ResolveParams, ipv6Reachable bool) (QueryTypeSet, ResolveFlags) {
	flags := params.Flags
	if !params.QueryTypes.Empty() {
		return params.QueryTypes, flags
	}
	types := NewQueryTypeSet(QueryTypeA, QueryTypeAAAA)
	if host.Scheme == "https" || host.Scheme == "wss" {
		types |= NewQueryTypeSet(QueryTypeHTTPS)
	}
	if !ipv6Reachable {
		types &^= NewQueryTypeSet(QueryTypeAAAA)
		flags |= FlagDefaultFamilyDueToNoIPv6
	}
	return types, flags
}

// fixupResult applies per-request adjustments to a delivered result:
// endpoint ports from the request's port or scheme default, and
// metadata target ports.
func fixupResult(result *Result, host Host) *Result {
	out := result.clone()
	port := host.Port
	if port == 0 {
		port = schemeDefaultPorts[host.Scheme]
	}
	if port == 0 {
		port = defaultPort
	}
	for i := range out.Endpoints {
		if out.Endpoints[i].Port == 0 {
			out.Endpoints[i].Port = port
		}
	}
	return out
}
