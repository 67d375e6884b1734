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

import "github.com/pkg/errors"

// Error taxonomy. Sentinels are matched with errors.Is; transient
// transport failures are arbitrary wrapped errors and classified by
// exclusion.
var (
	// ErrCacheMiss is not a failure; it signals "try the next planned
	// step". It is the terminal error of LOCAL_ONLY requests that found
	// nothing locally.
	ErrCacheMiss = errors.New("hostresolve: cache miss")

	// ErrNameNotResolved is an authoritative negative result: NXDOMAIN,
	// an empty answer, a sort that pruned every address, or no address
	// of a usable family.
	ErrNameNotResolved = errors.New("hostresolve: name not resolved")

	// ErrFatalProtocol terminates a whole job with no further fallback:
	// an enforced secure HTTPS/SVCB transaction failed with a server
	// failure.
	ErrFatalProtocol = errors.New("hostresolve: fatal secure transaction failure")

	// ErrMustUpgrade reports that an HTTPS record mandates an HTTP to
	// HTTPS upgrade; resolving insecurely would silently downgrade, so
	// the job fails with no fallback.
	ErrMustUpgrade = errors.New("hostresolve: scheme upgrade required")

	// ErrSortFailed is an address-sorter failure; treated like a
	// transient network error, fallback allowed.
	ErrSortFailed = errors.New("hostresolve: address sort failed")

	// ErrCancelled reports request- or job-level cancellation, eviction
	// included. Never retried.
	ErrCancelled = errors.New("hostresolve: resolution cancelled")

	// ErrNetworkChanged aborts in-flight jobs whose remaining steps
	// assumed a configuration invalidated by a network change.
	ErrNetworkChanged = errors.New("hostresolve: network changed")

	// ErrQueueFull is delivered when a queued job is evicted because the
	// dispatcher queue grew too large.
	ErrQueueFull = errors.New("hostresolve: dispatcher queue too large")

	// ErrShutdown fails all new and in-flight requests after the manager
	// shut down.
	ErrShutdown = errors.New("hostresolve: resolver shut down")

	// errServerFailure marks a SERVFAIL response; transient unless it
	// fails an enforced secure HTTPS transaction.
	errServerFailure = errors.New("hostresolve: dns server failure")

	// errUnexpectedRcode marks a failure rcode other than SERVFAIL,
	// REFUSED and FORMERR included. Never fatal, even under an enforced
	// secure policy.
	errUnexpectedRcode = errors.New("hostresolve: unexpected dns response code")

	// errMalformedResponse marks a response the extractor rejected.
	errMalformedResponse = errors.New("hostresolve: malformed dns response")
)

// stepFailure is the outcome of one failed task-sequence step. Fatal,
// upgrade, cancellation and shutdown failures never allow fallback;
// network-class failures do.
type stepFailure struct {
	err           error
	allowFallback bool
}

func failStep(err error, allowFallback bool) *stepFailure {
	return &stepFailure{err: err, allowFallback: allowFallback}
}
