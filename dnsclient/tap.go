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
	"time"

	dnstap "github.com/dnstap/golang-dnstap"
	"github.com/miekg/dns"
	"google.golang.org/protobuf/proto"
)

// Tapper emits resolver queries and responses as dnstap frames. A nil
// Tapper is a no-op, so callers never have to guard their tap calls.
type Tapper struct {
	out dnstap.Output
}

// NewTapper wraps a dnstap output. The caller owns the output's
// RunOutputLoop goroutine and Close.
func NewTapper(out dnstap.Output) *Tapper {
	return &Tapper{out: out}
}

// TapQuery emits a resolver-query frame for msg. Encoding failures are
// dropped; taps must never affect resolution.
func (t *Tapper) TapQuery(msg *dns.Msg, server string) {
	if t == nil || t.out == nil {
		return
	}
	t.emit(dnstap.Message_RESOLVER_QUERY, msg, server)
}

// TapResponse emits a resolver-response frame for msg.
func (t *Tapper) TapResponse(msg *dns.Msg, server string) {
	if t == nil || t.out == nil {
		return
	}
	t.emit(dnstap.Message_RESOLVER_RESPONSE, msg, server)
}

func (t *Tapper) emit(msgType dnstap.Message_Type, msg *dns.Msg, server string) {
	packed, err := msg.Pack()
	if err != nil {
		return
	}
	now := time.Now()
	sec := uint64(now.Unix())
	nsec := uint32(now.Nanosecond())

	m := &dnstap.Message{
		Type: msgType.Enum(),
	}
	if msgType == dnstap.Message_RESOLVER_QUERY {
		m.QueryMessage = packed
		m.QueryTimeSec = &sec
		m.QueryTimeNsec = &nsec
	} else {
		m.ResponseMessage = packed
		m.ResponseTimeSec = &sec
		m.ResponseTimeNsec = &nsec
	}
	identity := []byte(server)

	frame, err := proto.Marshal(&dnstap.Dnstap{
		Type:     dnstap.Dnstap_MESSAGE.Enum(),
		Identity: identity,
		Message:  m,
	})
	if err != nil {
		return
	}
	select {
	case t.out.GetOutputChannel() <- frame:
	default:
		// Tap backpressure never blocks resolution.
	}
}
