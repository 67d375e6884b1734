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

	"github.com/pkg/errors"
)

// NAT64Synthesizer maps an IPv4 address into the network's NAT64
// prefix, RFC 7050 style. Implementations typically learn the prefix by
// resolving ipv4only.arpa. Returning no addresses with a nil error
// means "no NAT64 on this network" and leaves the IPv4 literal as is.
type NAT64Synthesizer interface {
	SynthesizeIPv6(ctx context.Context, ipv4 netip.Addr) ([]netip.Addr, error)
}

// synthesizeNAT64 resolves an IPv4 literal through the synthesizer,
// falling back to the literal itself when synthesis is unavailable.
func synthesizeNAT64(ctx context.Context, synth NAT64Synthesizer, ipv4 netip.Addr) (*Result, *stepFailure) {
	if synth == nil {
		return nil, failStep(errors.Errorf(
			"no nat64 synthesizer configured for %s", ipv4), true)
	}
	synthesized, err := synth.SynthesizeIPv6(ctx, ipv4)
	if err != nil {
		return nil, failStep(errors.Wrapf(err, "nat64 synthesis for %s", ipv4), true)
	}
	result := &Result{
		TTL:    defaultAnswerTTL,
		Source: ResultSourceNAT64,
	}
	for _, addr := range synthesized {
		result.Endpoints = append(result.Endpoints, Endpoint{Addr: addr})
	}
	if len(result.Endpoints) == 0 {
		result.Endpoints = []Endpoint{{Addr: ipv4}}
		result.Source = ResultSourceLiteral
	}
	return result, nil
}
