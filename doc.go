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

// Package hostresolve - layered host-name resolution engine.
//
// Given a hostname (or scheme+host+port) the engine produces network
// endpoints using a planned sequence of strategies: result cache, hosts
// file, configuration presets, a built-in DNS stub-resolver client
// (plain UDP/TCP, DoT, DoH, DoH3, DoQ via package dnsclient), the
// platform resolver, multicast DNS and NAT64 synthesis.
//
// Concurrent callers resolving the same logical name share one in-flight
// job and one set of underlying DNS transactions. Address (A/AAAA) and
// HTTPS/SVCB queries for one job run as parallel transactions and are
// merged into a single result. Results are cached with TTL and a
// staleness generation that is bumped on network changes.
package hostresolve
