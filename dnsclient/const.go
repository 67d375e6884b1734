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

import "time"

const (
	connPoolSize = 2

	dialTimeout  = 2 * time.Second
	readTimeout  = 2 * time.Second
	attemptDelay = 100 * time.Millisecond

	// maxReadLoopIterations bounds how many mismatched-ID responses are
	// read before an exchange is abandoned. Guards against an upstream
	// spraying responses with wrong IDs.
	maxReadLoopIterations = 100

	// ednsUDPSize is the EDNS0 advertised payload size for UDP queries.
	ednsUDPSize = 4096

	// PolicySequential tries servers in configuration order.
	PolicySequential = "sequential"
	// PolicyWeightedRandom tries servers in weighted random order
	// without replacement.
	PolicyWeightedRandom = "weighted-random"

	// UDP net type for a Client.
	UDP = "udp"
	// TCP net type for a Client.
	TCP = "tcp"
	// TCPTLS net type for a Client (DNS over TLS).
	TCPTLS = "tcp-tls"
	// DOH net type for a Client (DNS over HTTPS, HTTP/2).
	DOH = "doh"
	// DOH3 net type for a Client (DNS over HTTPS, HTTP/3).
	DOH3 = "doh3"
	// DOQ net type for a Client (DNS over QUIC).
	DOQ = "doq"
)
