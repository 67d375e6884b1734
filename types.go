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
	"time"

	"github.com/miekg/dns"
)

// QueryType identifies a single DNS query type. Values match the DNS
// wire-format type codes used by github.com/miekg/dns.
type QueryType uint16

// Query types the engine resolves. QueryTypeUnspecified means "let the
// engine pick the effective set" (normally A+AAAA, plus HTTPS for
// https/wss requests).
const (
	QueryTypeUnspecified QueryType = 0
	QueryTypeA           QueryType = QueryType(dns.TypeA)
	QueryTypeAAAA        QueryType = QueryType(dns.TypeAAAA)
	QueryTypeHTTPS       QueryType = QueryType(dns.TypeHTTPS)
	QueryTypePTR         QueryType = QueryType(dns.TypePTR)
	QueryTypeTXT         QueryType = QueryType(dns.TypeTXT)
)

// IsAddress reports whether the query type yields IP addresses.
func (t QueryType) IsAddress() bool {
	return t == QueryTypeA || t == QueryTypeAAAA
}

func (t QueryType) String() string {
	if t == QueryTypeUnspecified {
		return "UNSPECIFIED"
	}
	return dns.TypeToString[uint16(t)]
}

// QueryTypeSet is a small set of query types with a deterministic
// iteration order (A, AAAA, HTTPS, PTR, TXT). The zero value is empty.
type QueryTypeSet uint8

const (
	qtsA QueryTypeSet = 1 << iota
	qtsAAAA
	qtsHTTPS
	qtsPTR
	qtsTXT
)

// queryTypeOrder fixes the iteration order; address types come first so
// they get the transaction head start.
var queryTypeOrder = []struct {
	bit QueryTypeSet
	typ QueryType
}{
	{qtsA, QueryTypeA},
	{qtsAAAA, QueryTypeAAAA},
	{qtsHTTPS, QueryTypeHTTPS},
	{qtsPTR, QueryTypePTR},
	{qtsTXT, QueryTypeTXT},
}

// NewQueryTypeSet builds a set from the given types. Unsupported types
// are ignored.
func NewQueryTypeSet(types ...QueryType) QueryTypeSet {
	var s QueryTypeSet
	for _, t := range types {
		for _, e := range queryTypeOrder {
			if e.typ == t {
				s |= e.bit
			}
		}
	}
	return s
}

// Has reports whether t is in the set.
func (s QueryTypeSet) Has(t QueryType) bool {
	for _, e := range queryTypeOrder {
		if e.typ == t {
			return s&e.bit != 0
		}
	}
	return false
}

// Types returns the members in deterministic order.
func (s QueryTypeSet) Types() []QueryType {
	var out []QueryType
	for _, e := range queryTypeOrder {
		if s&e.bit != 0 {
			out = append(out, e.typ)
		}
	}
	return out
}

// HasAddressType reports whether the set contains A or AAAA.
func (s QueryTypeSet) HasAddressType() bool {
	return s&(qtsA|qtsAAAA) != 0
}

// Empty reports whether no type is set.
func (s QueryTypeSet) Empty() bool { return s == 0 }

// Source restricts which resolution mechanisms a request may use.
type Source uint8

const (
	// SourceAny lets the planner choose (default).
	SourceAny Source = iota
	// SourceSystem forces the platform resolver.
	SourceSystem
	// SourceDNS forces the built-in DNS client, no system fallback.
	SourceDNS
	// SourceMulticastDNS forces mDNS.
	SourceMulticastDNS
	// SourceLocalOnly allows only cache/hosts/literal answers and never
	// suspends the caller.
	SourceLocalOnly
)

func (s Source) String() string {
	switch s {
	case SourceAny:
		return "any"
	case SourceSystem:
		return "system"
	case SourceDNS:
		return "dns"
	case SourceMulticastDNS:
		return "mdns"
	case SourceLocalOnly:
		return "local-only"
	}
	return "unknown"
}

// SecureMode is the secure-DNS (DoH) policy for a request.
type SecureMode uint8

const (
	// SecureModeOff sends only plaintext DNS.
	SecureModeOff SecureMode = iota
	// SecureModeAutomatic tries secure DNS first and falls back.
	SecureModeAutomatic
	// SecureModeSecure requires secure DNS; no insecure fallback of any
	// kind, including the system resolver.
	SecureModeSecure
)

func (m SecureMode) String() string {
	switch m {
	case SecureModeOff:
		return "off"
	case SecureModeAutomatic:
		return "automatic"
	case SecureModeSecure:
		return "secure"
	}
	return "unknown"
}

// CacheUsage controls whether and how the result cache is consulted.
type CacheUsage uint8

const (
	// CacheUsageAllowed consults the cache, fresh entries only.
	CacheUsageAllowed CacheUsage = iota
	// CacheUsageStaleAllowed also accepts stale entries and prioritizes
	// local lookups over bounded latency.
	CacheUsageStaleAllowed
	// CacheUsageDisallowed skips cache reads and writes.
	CacheUsageDisallowed
)

// ResolveFlags tweak resolution behavior.
type ResolveFlags uint8

const (
	// FlagCanonicalName requests the system-provided canonical name; it
	// forces system resolution for address queries.
	FlagCanonicalName ResolveFlags = 1 << iota
	// FlagDefaultFamilyDueToNoIPv6 marks AAAA having been dropped from
	// the effective query set because IPv6 appeared unreachable.
	FlagDefaultFamilyDueToNoIPv6
)

// Priority orders jobs in the dispatcher. Higher values run first.
type Priority int

// Request priorities, lowest to highest.
const (
	PriorityIdle Priority = iota
	PriorityLowest
	PriorityLow
	PriorityMedium
	PriorityHigh
	PriorityHighest
)

// Host is the target of one resolution: either a bare hostname or a
// scheme-host-port triple. The zero Port means "unspecified".
type Host struct {
	Scheme   string
	Hostname string
	Port     uint16
}

// HostnameOnly builds a Host with no scheme or port.
func HostnameOnly(hostname string) Host {
	return Host{Hostname: hostname}
}

// resolutionKey identifies a logical unit of in-flight work. Two
// requests with equal keys share one job; requests with different keys
// never do. The struct is comparable and used directly as a map key.
type resolutionKey struct {
	host             Host
	queryTypes       QueryTypeSet
	flags            ResolveFlags
	source           Source
	secureMode       SecureMode
	anonymizationKey string
	network          string
}

// ResultSource records which mechanism produced a result.
type ResultSource uint8

const (
	ResultSourceUnknown ResultSource = iota
	ResultSourceDNS
	ResultSourceSecureDNS
	ResultSourceSystem
	ResultSourceHosts
	ResultSourceCache
	ResultSourcePreset
	ResultSourceMulticastDNS
	ResultSourceLiteral
	ResultSourceLocalhost
	ResultSourceNAT64
)

func (s ResultSource) String() string {
	switch s {
	case ResultSourceDNS:
		return "dns"
	case ResultSourceSecureDNS:
		return "secure-dns"
	case ResultSourceSystem:
		return "system"
	case ResultSourceHosts:
		return "hosts"
	case ResultSourceCache:
		return "cache"
	case ResultSourcePreset:
		return "preset"
	case ResultSourceMulticastDNS:
		return "mdns"
	case ResultSourceLiteral:
		return "literal"
	case ResultSourceLocalhost:
		return "localhost"
	case ResultSourceNAT64:
		return "nat64"
	}
	return "unknown"
}

// Endpoint is one resolved network endpoint.
type Endpoint struct {
	Addr netip.Addr
	Port uint16
}

func (e Endpoint) String() string {
	return netip.AddrPortFrom(e.Addr, e.Port).String()
}

// EndpointMetadata is protocol information extracted from one HTTPS/SVCB
// service record.
type EndpointMetadata struct {
	Priority   uint16
	TargetName string
	ALPNs      []string
	Port       uint16
	IPv4Hints  []netip.Addr
	IPv6Hints  []netip.Addr
}

// SupportsCommonProtocols reports whether the metadata is compatible
// with a plain HTTPS client (no ALPN constraint, or a mainstream ALPN).
func (m *EndpointMetadata) SupportsCommonProtocols() bool {
	if len(m.ALPNs) == 0 {
		return true
	}
	for _, a := range m.ALPNs {
		switch a {
		case "http/1.1", "h2", "h3":
			return true
		}
	}
	return false
}

// RecordKind distinguishes the typed records produced by extraction.
type RecordKind uint8

const (
	// RecordData carries endpoints (A/AAAA answers).
	RecordData RecordKind = iota
	// RecordAlias carries one CNAME/alias link.
	RecordAlias
	// RecordMetadata carries HTTPS/SVCB service metadata.
	RecordMetadata
	// RecordError is an authoritative negative answer with a TTL.
	RecordError
)

// Record is one typed unit extracted from a DNS response.
type Record struct {
	Kind        RecordKind
	Type        QueryType
	TTL         time.Duration
	Name        string
	Endpoints   []Endpoint
	AliasTarget string
	Metadata    *EndpointMetadata
	Err         error
}

// Staleness annotates a cache entry returned past its freshness.
type Staleness struct {
	// ExpiredBy is how far past its TTL the entry is; negative when the
	// entry is only generation-stale. An entry is stale the instant its
	// TTL elapses, so zero means TTL-stale.
	ExpiredBy time.Duration
	// Generations is how many network changes occurred since the entry
	// was created.
	Generations int
}

// IsStale reports whether the annotation describes an actually stale
// entry.
func (s Staleness) IsStale() bool {
	return s.ExpiredBy >= 0 || s.Generations > 0
}

// Result is the terminal outcome of a successful resolution.
type Result struct {
	// Endpoints is the authoritative, preference-ordered endpoint list.
	Endpoints []Endpoint
	// Aliases is the deduplicated alias/canonical-name set, or exactly
	// the system-provided name when FlagCanonicalName was requested.
	Aliases []string
	// Metadata holds HTTPS/SVCB service metadata, priority-ordered.
	Metadata []EndpointMetadata
	// TTL is the minimum TTL across the merged records.
	TTL time.Duration
	// Secure reports whether the answer came over secure transport.
	Secure bool
	// Source records the mechanism that produced the answer.
	Source ResultSource
	// Stale is non-nil when the answer was served from a stale cache
	// entry under CacheUsageStaleAllowed.
	Stale *Staleness
}

// clone returns a copy safe to hand to one caller for per-request
// fix-up without affecting the shared original.
func (r *Result) clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	out.Endpoints = append([]Endpoint(nil), r.Endpoints...)
	out.Aliases = append([]string(nil), r.Aliases...)
	out.Metadata = append([]EndpointMetadata(nil), r.Metadata...)
	if r.Stale != nil {
		st := *r.Stale
		out.Stale = &st
	}
	return &out
}
