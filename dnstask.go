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
	"sort"
	"strconv"
	"time"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
)

// Transaction is one in-flight DNS query against the configured
// servers, retries and server rotation included. Start blocks until a
// response arrives, the transport fails, or ctx is done.
type Transaction interface {
	Start(ctx context.Context) (*dns.Msg, error)
}

// TransactionFactory mints transactions for a hostname and query type.
// The secure flag selects the encrypted transport set.
type TransactionFactory interface {
	NewTransaction(hostname string, qtype QueryType, secure bool) Transaction
}

// errorBehavior is how a failed transaction affects its task.
type errorBehavior uint8

const (
	// behaviorFallback fails the task; the job may fall back to the next
	// planned step.
	behaviorFallback errorBehavior = iota
	// behaviorSynthesizeEmpty replaces the failed transaction's results
	// with nothing and lets the task continue.
	behaviorSynthesizeEmpty
	// behaviorFatalOrEmpty fails the whole resolution with no fallback on
	// a SERVFAIL; every other failure, transport errors and non-SERVFAIL
	// rcodes included, synthesizes an empty answer instead.
	behaviorFatalOrEmpty
)

type transactionInfo struct {
	qtype    QueryType
	behavior errorBehavior
}

// dnsTask runs the transactions of one secure or insecure DNS step and
// merges their records into a single result. Address transactions start
// first; additional transactions run in parallel only when the
// dispatcher has spare slots, otherwise they reuse the slot of whichever
// transaction finishes next.
type dnsTask struct {
	factory    TransactionFactory
	dispatcher *dispatcher
	sorter     AddressSorter

	hostname   string
	scheme     string
	queryTypes QueryTypeSet
	secure     bool
	// secureEnforced marks a step whose request-level secure mode forbids
	// any insecure fallback. It makes HTTPS server failures fatal and
	// disables the supplemental timeout.
	secureEnforced bool

	timeoutPercent int
	timeoutMin     time.Duration
	timeoutMax     time.Duration
}

func newDNSTask(factory TransactionFactory, disp *dispatcher, sorter AddressSorter,
	hostname, scheme string, types QueryTypeSet, secure, secureEnforced bool) *dnsTask {
	if sorter == nil {
		sorter = defaultSorter{}
	}
	return &dnsTask{
		factory:        factory,
		dispatcher:     disp,
		sorter:         sorter,
		hostname:       hostname,
		scheme:         scheme,
		queryTypes:     types,
		secure:         secure,
		secureEnforced: secureEnforced,
		timeoutPercent: defaultHTTPSTimeoutPercent,
		timeoutMin:     defaultHTTPSTimeoutMin,
		timeoutMax:     defaultHTTPSTimeoutMax,
	}
}

// transactions maps the query-type set to transaction plans. Address
// types come first so supplemental types never delay them.
func (t *dnsTask) transactions() []transactionInfo {
	var out []transactionInfo
	for _, qtype := range t.queryTypes.Types() {
		behavior := behaviorFallback
		if qtype == QueryTypeHTTPS {
			// Address resolution must not break when service metadata is
			// unavailable, except under an enforced secure policy where a
			// broken HTTPS answer could hide a mandatory upgrade.
			behavior = behaviorSynthesizeEmpty
			if t.secure && t.secureEnforced {
				behavior = behaviorFatalOrEmpty
			}
		}
		out = append(out, transactionInfo{qtype: qtype, behavior: behavior})
	}
	return out
}

type txOutcome struct {
	info    transactionInfo
	records []Record
	err     error
}

// run executes the step. The returned stepFailure is nil on success; a
// non-nil Result may accompany ErrNameNotResolved to carry the negative
// TTL for caching.
func (t *dnsTask) run(ctx context.Context) (*Result, *stepFailure) {
	ctx, finish := withChildSpan(ctx, "dnstask", t.hostname)
	defer finish()
	cancelCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pending := t.transactions()
	results := make(chan txOutcome, len(pending))
	addressRemaining := 0
	for _, info := range pending {
		if info.qtype.IsAddress() {
			addressRemaining++
		}
	}

	started := time.Now()
	running := 0
	extraSlots := 0
	defer func() {
		if extraSlots > 0 && t.dispatcher != nil {
			t.dispatcher.release(extraSlots)
		}
	}()

	start := func(info transactionInfo) {
		running++
		TransactionCount.WithLabelValues(
			info.qtype.String(), strconv.FormatBool(t.secure)).Inc()
		go func() {
			txStart := time.Now()
			msg, err := t.factory.NewTransaction(t.hostname, info.qtype, t.secure).
				Start(cancelCtx)
			TransactionDuration.WithLabelValues(info.qtype.String()).
				Observe(time.Since(txStart).Seconds())
			var recs []Record
			if err == nil {
				recs, err = extractRecords(t.hostname, info.qtype, msg)
			}
			results <- txOutcome{info: info, records: recs, err: err}
		}()
	}

	// The first transaction runs on the slot the job already holds.
	start(pending[0])
	pending = pending[1:]
	for len(pending) > 0 && t.dispatcher != nil && t.dispatcher.tryAcquireExtraSlot() {
		extraSlots++
		start(pending[0])
		pending = pending[1:]
	}

	perType := make(map[QueryType][]Record)
	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for running > 0 {
		select {
		case <-ctx.Done():
			return nil, failStep(errors.Wrap(ErrCancelled, ctx.Err().Error()), false)

		case <-timerC:
			// Every supplemental transaction left is discardable; complete
			// with what the address transactions produced.
			log.Debugf("supplemental transactions for %q timed out after %v",
				t.hostname, time.Since(started))
			cancel()
			return t.merge(cancelCtx, perType)

		case out := <-results:
			running--
			if out.info.qtype.IsAddress() {
				addressRemaining--
			}

			if fail := t.handleOutcome(out, perType); fail != nil {
				cancel()
				return nil, fail
			}

			if len(pending) > 0 {
				start(pending[0])
				pending = pending[1:]
			} else if extraSlots > 0 && t.dispatcher != nil {
				// No transaction reuses the freed slot; return it now
				// instead of at the end of the step.
				t.dispatcher.release(1)
				extraSlots--
			}

			// Once addresses are in and only discardable supplemental
			// transactions remain, bound the extra wait.
			if addressRemaining == 0 && running+len(pending) > 0 &&
				timer == nil && !t.secureEnforced {
				timer = time.NewTimer(t.supplementalTimeout(time.Since(started)))
				timerC = timer.C
			}
		}
	}

	return t.merge(cancelCtx, perType)
}

// handleOutcome files a completed transaction's records, applying its
// error behavior on failure. A non-nil return fails the whole task.
func (t *dnsTask) handleOutcome(out txOutcome, perType map[QueryType][]Record) *stepFailure {
	if out.err == nil {
		perType[out.info.qtype] = out.records
		return nil
	}
	switch out.info.behavior {
	case behaviorSynthesizeEmpty:
		log.Debugf("%s transaction for %q failed, synthesizing empty: %v",
			out.info.qtype, t.hostname, out.err)
		perType[out.info.qtype] = nil
		return nil
	case behaviorFatalOrEmpty:
		if errors.Is(out.err, errServerFailure) {
			return failStep(errors.Wrapf(ErrFatalProtocol,
				"%s transaction for %q: %v", out.info.qtype, t.hostname, out.err), false)
		}
		log.Debugf("%s transaction for %q failed non-fatally, synthesizing empty: %v",
			out.info.qtype, t.hostname, out.err)
		perType[out.info.qtype] = nil
		return nil
	}
	return failStep(errors.Wrapf(out.err, "%s transaction for %q",
		out.info.qtype, t.hostname), true)
}

// supplementalTimeout derives the extra wait from the time the address
// transactions took: elapsed*percent/100, floored at 1ms and clamped to
// the configured bounds.
func (t *dnsTask) supplementalTimeout(elapsed time.Duration) time.Duration {
	d := elapsed * time.Duration(t.timeoutPercent) / 100
	if d < time.Millisecond {
		d = time.Millisecond
	}
	if d < t.timeoutMin {
		d = t.timeoutMin
	}
	if d > t.timeoutMax {
		d = t.timeoutMax
	}
	return d
}

// mergeTypeOrder makes merging deterministic: IPv6 endpoints and alias
// chains take precedence over IPv4, metadata comes last.
var mergeTypeOrder = []QueryType{
	QueryTypeAAAA, QueryTypeA, QueryTypeHTTPS, QueryTypePTR, QueryTypeTXT,
}

// merge combines the per-type record buckets into one Result and applies
// the post-merge policies: upgrade detection, sorting, negative
// synthesis.
func (t *dnsTask) merge(ctx context.Context, perType map[QueryType][]Record) (*Result, *stepFailure) {
	result := &Result{
		Secure: t.secure,
		Source: ResultSourceDNS,
		TTL:    -1,
	}
	if t.secure {
		result.Source = ResultSourceSecureDNS
	}

	seenAlias := make(map[string]bool)
	var negativeTTL time.Duration = -1
	sawData := false

	for _, qtype := range mergeTypeOrder {
		for _, rec := range perType[qtype] {
			switch rec.Kind {
			case RecordData:
				result.Endpoints = append(result.Endpoints, rec.Endpoints...)
				result.TTL = minTTL(result.TTL, rec.TTL)
				sawData = true
			case RecordAlias:
				for _, name := range []string{rec.Name, rec.AliasTarget} {
					if name != "" && !seenAlias[name] {
						seenAlias[name] = true
						result.Aliases = append(result.Aliases, name)
					}
				}
				result.TTL = minTTL(result.TTL, rec.TTL)
			case RecordMetadata:
				result.Metadata = append(result.Metadata, *rec.Metadata)
				result.TTL = minTTL(result.TTL, rec.TTL)
			case RecordError:
				negativeTTL = minTTL(negativeTTL, rec.TTL)
			}
		}
	}

	sort.SliceStable(result.Metadata, func(i, j int) bool {
		return result.Metadata[i].Priority < result.Metadata[j].Priority
	})

	// Metadata nobody can speak is as good as none.
	if len(result.Metadata) > 0 && !anyCompatible(result.Metadata) {
		result.Metadata = nil
	}

	// An upgradable scheme with usable HTTPS metadata must not resolve
	// as if the service were plaintext-only.
	if len(result.Metadata) > 0 && (t.scheme == "http" || t.scheme == "ws") {
		return nil, failStep(errors.Wrapf(ErrMustUpgrade,
			"https service metadata published for %q", t.hostname), false)
	}

	if !sawData && t.queryTypes.HasAddressType() && len(result.Metadata) == 0 {
		if negativeTTL < 0 {
			negativeTTL = defaultAnswerTTL
		}
		result.TTL = negativeTTL
		return result, failStep(errors.Wrapf(ErrNameNotResolved,
			"no addresses for %q", t.hostname), false)
	}

	if containsIPv6(result.Endpoints) {
		sorted, err := t.sorter.Sort(ctx, result.Endpoints)
		if err != nil {
			return nil, failStep(errors.Wrapf(ErrSortFailed,
				"sorting %d addresses for %q: %v",
				len(result.Endpoints), t.hostname, err), true)
		}
		if len(sorted) == 0 {
			return nil, failStep(errors.Wrapf(ErrNameNotResolved,
				"sorter rejected every address for %q", t.hostname), false)
		}
		result.Endpoints = sorted
	}

	if result.TTL < 0 {
		result.TTL = defaultAnswerTTL
	}
	return result, nil
}

func anyCompatible(metadata []EndpointMetadata) bool {
	for i := range metadata {
		if metadata[i].SupportsCommonProtocols() {
			return true
		}
	}
	return false
}
