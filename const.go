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

import "time"

const (
	// defaultMaxConcurrentJobs bounds the number of jobs holding a
	// dispatcher slot at once. Extra slots claimed by parallel DNS
	// transactions count against the same bound.
	defaultMaxConcurrentJobs = 32

	// defaultMaxQueuedJobs bounds the dispatcher queue; enqueueing beyond
	// this evicts the lowest-priority queued job with ErrQueueFull.
	defaultMaxQueuedJobs = 100

	// defaultCacheMaxEntries bounds the result cache.
	defaultCacheMaxEntries = 1000

	// defaultAnswerTTL is used when a response carries no usable TTL.
	defaultAnswerTTL = 1 * time.Minute

	// maxHostnameLength rejects hostnames longer than the DNS limit.
	maxHostnameLength = 253

	// ipv6ProbeValidity is how long a settled reachability probe result
	// is trusted before a new probe is scheduled.
	ipv6ProbeValidity = 1 * time.Second

	// Supplemental-transaction timeout: once every address transaction of
	// a DNS step has finished and only HTTPS-style transactions remain,
	// the step waits clamp(elapsed*percent/100, min, max) and then
	// completes with what it has.
	defaultHTTPSTimeoutPercent = 20
	defaultHTTPSTimeoutMin     = 100 * time.Millisecond
	defaultHTTPSTimeoutMax     = 2 * time.Second

	// System resolver retry schedule: attempts with doubling delay.
	defaultSystemAttempts     = 2
	defaultSystemRetryInitial = 250 * time.Millisecond

	// defaultPort is used for endpoint fix-up when the request carries no
	// port and no scheme to infer one from.
	defaultPort = 0
)

// Default ports inferred from a request's scheme during result fix-up.
var schemeDefaultPorts = map[string]uint16{
	"http":  80,
	"https": 443,
	"ws":    80,
	"wss":   443,
}
