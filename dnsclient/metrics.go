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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Per-upstream metrics, labeled by server address so misbehaving
// upstreams stand out.
var (
	// RequestCount counts queries sent per upstream.
	RequestCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hostresolve",
		Subsystem: "upstream",
		Name:      "request_count_total",
		Help:      "Counter of DNS queries per upstream server.",
	}, []string{"to"})

	// RcodeCount counts response codes per upstream.
	RcodeCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hostresolve",
		Subsystem: "upstream",
		Name:      "response_rcode_count_total",
		Help:      "Counter of response rcodes per upstream server.",
	}, []string{"rcode", "to"})

	// RequestDuration observes per-upstream round-trip time.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hostresolve",
		Subsystem: "upstream",
		Name:      "request_duration_seconds",
		Buckets:   prometheus.DefBuckets,
		Help:      "Histogram of per-upstream request durations.",
	}, []string{"to"})
)
