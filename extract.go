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
	"time"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
)

// extractRecords turns a DNS response into the typed records the merge
// step consumes: data, alias, metadata, or an authoritative error
// record carrying the negative TTL.
//
// NXDOMAIN and NODATA are answers, not failures; both produce a
// RecordError with ErrNameNotResolved and a nil error return. A non-OK
// rcode other than NXDOMAIN is a server failure. Answer records whose
// owner is outside the CNAME chain from the query name are ignored, as
// RFC 1034 section 3.6.2 requires resolvers to do.
func extractRecords(qname string, qtype QueryType, msg *dns.Msg) ([]Record, error) {
	if msg == nil {
		return nil, errors.Wrap(errMalformedResponse, "nil response")
	}
	switch msg.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return []Record{negativeRecord(qtype, msg)}, nil
	case dns.RcodeServerFailure:
		return nil, errors.Wrap(errServerFailure, "rcode SERVFAIL")
	default:
		return nil, errors.Wrapf(errUnexpectedRcode, "rcode %s",
			dns.RcodeToString[msg.Rcode])
	}

	chain, aliases := followAliases(dns.Fqdn(qname), msg)

	var (
		records   []Record
		endpoints []Endpoint
		dataTTL   = time.Duration(-1)
	)
	records = append(records, aliases...)

	for _, rr := range msg.Answer {
		owner := strings.ToLower(rr.Header().Name)
		if !chain[owner] {
			continue
		}
		ttl := rrTTL(rr)
		switch a := rr.(type) {
		case *dns.A:
			if qtype != QueryTypeA {
				continue
			}
			addr, ok := addrFromIP(a.A)
			if !ok {
				continue
			}
			endpoints = append(endpoints, Endpoint{Addr: addr})
			dataTTL = minTTL(dataTTL, ttl)
		case *dns.AAAA:
			if qtype != QueryTypeAAAA {
				continue
			}
			addr, ok := addrFromIP(a.AAAA)
			if !ok {
				continue
			}
			endpoints = append(endpoints, Endpoint{Addr: addr})
			dataTTL = minTTL(dataTTL, ttl)
		case *dns.HTTPS:
			if qtype != QueryTypeHTTPS {
				continue
			}
			records = append(records, httpsRecord(&a.SVCB, ttl))
		}
	}

	if len(endpoints) > 0 {
		records = append(records, Record{
			Kind:      RecordData,
			Type:      qtype,
			TTL:       dataTTL,
			Name:      qname,
			Endpoints: endpoints,
		})
	}

	if !hasSubstantiveRecord(records, qtype) {
		records = append(records, negativeRecord(qtype, msg))
	}
	return records, nil
}

// followAliases walks the CNAME chain starting at qname and returns the
// set of acceptable owner names plus one alias record per link. Chains
// longer than the answer section are cut, which also breaks loops.
func followAliases(qname string, msg *dns.Msg) (map[string]bool, []Record) {
	chain := map[string]bool{strings.ToLower(qname): true}
	var aliases []Record

	current := strings.ToLower(qname)
	for range msg.Answer {
		var next string
		for _, rr := range msg.Answer {
			cname, ok := rr.(*dns.CNAME)
			if !ok || strings.ToLower(cname.Hdr.Name) != current {
				continue
			}
			next = strings.ToLower(cname.Target)
			aliases = append(aliases, Record{
				Kind:        RecordAlias,
				TTL:         rrTTL(rr),
				Name:        trimFqdn(current),
				AliasTarget: trimFqdn(next),
			})
			break
		}
		if next == "" || chain[next] {
			break
		}
		chain[next] = true
		current = next
	}
	return chain, aliases
}

// httpsRecord maps one HTTPS RR to a metadata or alias record.
// Priority 0 is the alias form per RFC 9460 section 2.4.2.
func httpsRecord(svcb *dns.SVCB, ttl time.Duration) Record {
	if svcb.Priority == 0 {
		return Record{
			Kind:        RecordAlias,
			Type:        QueryTypeHTTPS,
			TTL:         ttl,
			Name:        trimFqdn(svcb.Hdr.Name),
			AliasTarget: trimFqdn(svcb.Target),
		}
	}
	meta := &EndpointMetadata{
		Priority:   svcb.Priority,
		TargetName: trimFqdn(svcb.Target),
	}
	for _, kv := range svcb.Value {
		switch v := kv.(type) {
		case *dns.SVCBAlpn:
			meta.ALPNs = append(meta.ALPNs, v.Alpn...)
		case *dns.SVCBPort:
			meta.Port = v.Port
		case *dns.SVCBIPv4Hint:
			for _, ip := range v.Hint {
				if addr, ok := addrFromIP(ip); ok {
					meta.IPv4Hints = append(meta.IPv4Hints, addr)
				}
			}
		case *dns.SVCBIPv6Hint:
			for _, ip := range v.Hint {
				if addr, ok := addrFromIP(ip); ok {
					meta.IPv6Hints = append(meta.IPv6Hints, addr)
				}
			}
		}
	}
	return Record{
		Kind:     RecordMetadata,
		Type:     QueryTypeHTTPS,
		TTL:      ttl,
		Name:     trimFqdn(svcb.Hdr.Name),
		Metadata: meta,
	}
}

// negativeRecord builds the authoritative miss for qtype with the
// negative TTL from the SOA record, RFC 2308 section 5 style.
func negativeRecord(qtype QueryType, msg *dns.Msg) Record {
	ttl := defaultAnswerTTL
	for _, rr := range msg.Ns {
		soa, ok := rr.(*dns.SOA)
		if !ok {
			continue
		}
		ttl = rrTTL(rr)
		if min := time.Duration(soa.Minttl) * time.Second; min < ttl {
			ttl = min
		}
		break
	}
	return Record{
		Kind: RecordError,
		Type: qtype,
		TTL:  ttl,
		Err:  ErrNameNotResolved,
	}
}

// hasSubstantiveRecord reports whether records answers qtype with more
// than aliases. A pure CNAME chain with no terminal data is NODATA.
func hasSubstantiveRecord(records []Record, qtype QueryType) bool {
	for _, r := range records {
		if r.Kind == RecordData || r.Kind == RecordError {
			return true
		}
		if r.Kind == RecordMetadata && r.Type == qtype {
			return true
		}
	}
	return false
}

func rrTTL(rr dns.RR) time.Duration {
	return time.Duration(rr.Header().Ttl) * time.Second
}

func minTTL(current, next time.Duration) time.Duration {
	if current < 0 || next < current {
		return next
	}
	return current
}

func addrFromIP(ip []byte) (netip.Addr, bool) {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

func trimFqdn(name string) string {
	return strings.TrimSuffix(name, ".")
}
