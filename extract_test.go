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
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func TestExtractRecordsAddresses(t *testing.T) {
	msg := answerMsg(t, "ok.example", dns.TypeA,
		"ok.example. 120 IN A 192.0.2.1",
		"ok.example. 60 IN A 192.0.2.2")

	records, err := extractRecords("ok.example", QueryTypeA, msg)
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]
	require.Equal(t, RecordData, rec.Kind)
	require.Len(t, rec.Endpoints, 2)
	require.Equal(t, "192.0.2.1", rec.Endpoints[0].Addr.String())
	require.Equal(t, time.Minute, rec.TTL, "data TTL is the minimum")
}

func TestExtractRecordsFollowsCNAMEChain(t *testing.T) {
	msg := answerMsg(t, "www.example", dns.TypeA,
		"www.example. 300 IN CNAME cdn.example.",
		"cdn.example. 300 IN CNAME edge.example.",
		"edge.example. 120 IN A 198.51.100.5")

	records, err := extractRecords("www.example", QueryTypeA, msg)
	require.NoError(t, err)

	var aliases []string
	var data *Record
	for i, rec := range records {
		switch rec.Kind {
		case RecordAlias:
			aliases = append(aliases, rec.AliasTarget)
		case RecordData:
			data = &records[i]
		}
	}
	require.Equal(t, []string{"cdn.example", "edge.example"}, aliases)
	require.NotNil(t, data)
	require.Equal(t, "198.51.100.5", data.Endpoints[0].Addr.String())
}

func TestExtractRecordsIgnoresOffChainAnswers(t *testing.T) {
	msg := answerMsg(t, "victim.example", dns.TypeA,
		"victim.example. 300 IN A 192.0.2.1",
		"unrelated.example. 300 IN A 203.0.113.99")

	records, err := extractRecords("victim.example", QueryTypeA, msg)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Len(t, records[0].Endpoints, 1)
	require.Equal(t, "192.0.2.1", records[0].Endpoints[0].Addr.String())
}

func TestExtractRecordsNXDomain(t *testing.T) {
	records, err := extractRecords("missing.example", QueryTypeA,
		nxdomainMsg(t, "missing.example", dns.TypeA, 30))
	require.NoError(t, err, "NXDOMAIN is an answer, not a failure")
	require.Len(t, records, 1)
	require.Equal(t, RecordError, records[0].Kind)
	require.ErrorIs(t, records[0].Err, ErrNameNotResolved)
	require.Equal(t, 30*time.Second, records[0].TTL, "negative TTL from SOA minimum")
}

func TestExtractRecordsNoData(t *testing.T) {
	msg := answerMsg(t, "v4only.example", dns.TypeAAAA)
	records, err := extractRecords("v4only.example", QueryTypeAAAA, msg)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, RecordError, records[0].Kind)
}

func TestExtractRecordsServfail(t *testing.T) {
	_, err := extractRecords("broken.example", QueryTypeA,
		servfailMsg(t, "broken.example", dns.TypeA))
	require.ErrorIs(t, err, errServerFailure)
}

func TestExtractRecordsRefusedIsNotServerFailure(t *testing.T) {
	_, err := extractRecords("walled.example", QueryTypeA,
		rcodeMsg(t, "walled.example", dns.TypeA, dns.RcodeRefused))
	require.ErrorIs(t, err, errUnexpectedRcode)
	require.NotErrorIs(t, err, errServerFailure)
}

func TestExtractRecordsHTTPSMetadata(t *testing.T) {
	msg := answerMsg(t, "svc.example", dns.TypeHTTPS,
		`svc.example. 300 IN HTTPS 1 . alpn="h2,h3" port=8443 ipv4hint=192.0.2.1`)

	records, err := extractRecords("svc.example", QueryTypeHTTPS, msg)
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]
	require.Equal(t, RecordMetadata, rec.Kind)
	require.EqualValues(t, 1, rec.Metadata.Priority)
	require.Equal(t, []string{"h2", "h3"}, rec.Metadata.ALPNs)
	require.EqualValues(t, 8443, rec.Metadata.Port)
	require.Len(t, rec.Metadata.IPv4Hints, 1)
	require.True(t, rec.Metadata.SupportsCommonProtocols())
}

func TestExtractRecordsHTTPSAliasForm(t *testing.T) {
	msg := answerMsg(t, "alias.example", dns.TypeHTTPS,
		"alias.example. 300 IN HTTPS 0 pool.example.")

	records, err := extractRecords("alias.example", QueryTypeHTTPS, msg)
	require.NoError(t, err)
	require.Len(t, records, 2, "alias record plus synthesized NODATA")
	require.Equal(t, RecordAlias, records[0].Kind)
	require.Equal(t, "pool.example", records[0].AliasTarget)
}

func FuzzExtractRecords(f *testing.F) {
	seed := new(dns.Msg)
	seed.SetQuestion("fuzz.example.", dns.TypeA)
	seed.Response = true
	if rr, err := dns.NewRR("fuzz.example. 60 IN A 192.0.2.1"); err == nil {
		seed.Answer = append(seed.Answer, rr)
	}
	if packed, err := seed.Pack(); err == nil {
		f.Add(packed)
	}
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		msg := new(dns.Msg)
		if err := msg.Unpack(data); err != nil {
			return
		}
		// Must never panic, whatever the wire data decoded into.
		_, _ = extractRecords("fuzz.example", QueryTypeA, msg)
		_, _ = extractRecords("fuzz.example", QueryTypeHTTPS, msg)
	})
}
