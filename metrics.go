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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the resolution engine. Transaction-level collectors are
// labeled by query type so address and HTTPS transactions can be told
// apart; job/request collectors are labeled by outcome.
var (
	// ResolveCount counts resolution requests by terminal source
	// ("cache", "dns", "system", ...) or "error".
	ResolveCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hostresolve",
		Name:      "resolve_count_total",
		Help:      "Counter of resolution requests by terminal source.",
	}, []string{"source"})

	// CacheHitCount counts result-cache hits, split by staleness.
	CacheHitCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hostresolve",
		Name:      "cache_hit_count_total",
		Help:      "Counter of result cache hits.",
	}, []string{"stale"})

	// JobCount counts jobs by how they ended.
	JobCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hostresolve",
		Name:      "job_count_total",
		Help:      "Counter of resolution jobs by outcome.",
	}, []string{"outcome"})

	// TransactionCount counts started DNS transactions.
	TransactionCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hostresolve",
		Name:      "transaction_count_total",
		Help:      "Counter of DNS transactions by query type and security.",
	}, []string{"qtype", "secure"})

	// TransactionDuration observes transaction round-trip time.
	TransactionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hostresolve",
		Name:      "transaction_duration_seconds",
		Buckets:   prometheus.DefBuckets,
		Help:      "Histogram of DNS transaction durations.",
	}, []string{"qtype"})
)
