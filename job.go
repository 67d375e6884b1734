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
	"sync"

	"github.com/pkg/errors"
)

// job is the unit of shared resolution work. All concurrently attached
// requests with the same resolution key ride one job and receive the
// same outcome. A job owns one dispatcher slot while running; its DNS
// steps may claim extra slots for parallel transactions.
type job struct {
	resolver   *Resolver
	key        resolutionKey
	cacheUsage CacheUsage
	steps      []TaskType

	ctx    context.Context
	cancel context.CancelFunc

	mu sync.Mutex
	// requests keeps attachment order; detached requests leave nil holes
	// so attached indices stay stable.
	requests    []*request
	numRequests int
	priority    Priority
	started     bool
	finalized   bool
	// abortErr overrides the step-level cancellation error so waiters
	// learn why the job was torn down.
	abortErr error
}

func newJob(r *Resolver, key resolutionKey, cacheUsage CacheUsage, steps []TaskType) *job {
	ctx, cancel := context.WithCancel(context.Background())
	return &job{
		resolver:   r,
		key:        key,
		cacheUsage: cacheUsage,
		steps:      steps,
		ctx:        ctx,
		cancel:     cancel,
		priority:   PriorityIdle,
	}
}

// attach adds req to the job and reports false when the job already
// finalized, in which case the caller must start over.
func (j *job) attach(req *request) bool {
	j.mu.Lock()
	if j.finalized {
		j.mu.Unlock()
		return false
	}
	req.job = j
	req.jobIndex = len(j.requests)
	j.requests = append(j.requests, req)
	j.numRequests++
	raise := req.priority > j.priority
	if raise {
		j.priority = req.priority
	}
	j.mu.Unlock()
	if raise {
		j.resolver.dispatcher.changePriority(j)
	}
	return true
}

// detach removes req, typically on caller cancellation. The last detach
// aborts the job; otherwise the job's priority is recomputed so a
// departed high-priority waiter stops boosting it.
func (j *job) detach(req *request) {
	j.mu.Lock()
	if j.finalized || req.jobIndex >= len(j.requests) || j.requests[req.jobIndex] != req {
		j.mu.Unlock()
		return
	}
	j.requests[req.jobIndex] = nil
	j.numRequests--
	empty := j.numRequests == 0
	lowered := false
	if !empty && req.priority == j.priority {
		max := PriorityIdle
		for _, other := range j.requests {
			if other != nil && other.priority > max {
				max = other.priority
			}
		}
		if max < j.priority {
			j.priority = max
			lowered = true
		}
	}
	j.mu.Unlock()

	if empty {
		j.abort(errors.Wrap(ErrCancelled, "all requests detached"))
		return
	}
	if lowered {
		j.resolver.dispatcher.changePriority(j)
	}
}

// abort terminates the job early, delivering err to whatever requests
// remain. Used for detach-to-zero, network changes and shutdown.
func (j *job) abort(err error) {
	j.mu.Lock()
	if j.abortErr == nil {
		j.abortErr = err
	}
	j.mu.Unlock()
	j.cancel()
	if j.resolver.dispatcher.remove(j) {
		// Still queued: no slot held, nothing running.
		j.finalize(nil, err, false)
		return
	}
	// Already running; the cancelled context unwinds the current step,
	// which finalizes. Queued-eviction and finished jobs get here too,
	// where finalize is a no-op.
	j.mu.Lock()
	started := j.started
	j.mu.Unlock()
	if !started {
		j.finalize(nil, err, false)
	}
}

// dispatchPriority implements runnable.
func (j *job) dispatchPriority() Priority {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.priority
}

// evictScheduled implements runnable: the dispatcher dropped this job
// from an overlong queue.
func (j *job) evictScheduled() {
	j.cancel()
	j.finalize(nil, errors.Wrapf(ErrQueueFull, "resolving %q", j.key.host.Hostname), false)
}

// runScheduled implements runnable: walk the planned steps until one
// succeeds or fails without fallback.
func (j *job) runScheduled() {
	j.mu.Lock()
	j.started = true
	j.mu.Unlock()

	var lastFail *stepFailure
	var negative *Result
	for i, step := range j.steps {
		if err := j.ctx.Err(); err != nil {
			j.finalize(nil, errors.Wrap(ErrCancelled, err.Error()), true)
			return
		}

		result, fail := j.runStep(step)
		if fail == nil {
			j.finalize(result, nil, true)
			return
		}
		lastFail = fail
		if result != nil {
			negative = result
		}
		if !fail.allowFallback {
			break
		}
		if i < len(j.steps)-1 {
			log.Debugf("step %s for %q failed, falling back: %v",
				step, j.key.host.Hostname, fail.err)
		}
	}

	if lastFail == nil {
		// A job is only created when non-local steps remain.
		lastFail = failStep(errors.Wrapf(ErrNameNotResolved,
			"no resolution step produced an answer for %q", j.key.host.Hostname), false)
	}
	j.finalize(negative, lastFail.err, true)
}

func (j *job) runStep(step TaskType) (*Result, *stepFailure) {
	r := j.resolver
	hostname := j.key.host.Hostname

	switch step {
	case TaskSecureDNS:
		task := newDNSTask(r.transactions, r.dispatcher, r.sorter,
			hostname, j.key.host.Scheme, j.key.queryTypes,
			true, j.key.secureMode == SecureModeSecure)
		return task.run(j.ctx)

	case TaskInsecureCacheLookup:
		// The mid-sequence lookup of a non-prioritized automatic plan: a
		// cached insecure answer is consulted only after secure DNS
		// failed.
		if result, cerr, ok := r.cacheLookup(j.key, secureNoFilter, false); ok {
			if cerr != nil {
				return nil, failStep(cerr, false)
			}
			return result, nil
		}
		return nil, failStep(errors.Wrapf(ErrCacheMiss,
			"no insecure cache entry for %q", hostname), true)

	case TaskInsecureDNS:
		task := newDNSTask(r.transactions, r.dispatcher, r.sorter,
			hostname, j.key.host.Scheme, j.key.queryTypes, false, false)
		return task.run(j.ctx)

	case TaskSystem:
		task := newSystemTask(r.systemResolver, hostname, j.key.queryTypes,
			j.key.flags&FlagCanonicalName != 0)
		return task.run(j.ctx)

	case TaskMDNS:
		task := &mdnsTask{
			resolver:   r.multicastResolver,
			hostname:   hostname,
			queryTypes: j.key.queryTypes,
		}
		return task.run(j.ctx)
	}

	return nil, failStep(errors.Errorf("unexpected %s step in job for %q",
		step, hostname), true)
}

// finalize delivers the terminal outcome exactly once. The job leaves
// the resolver's table before delivery so a request arriving during
// delivery starts fresh work instead of attaching to a dead job.
func (j *job) finalize(result *Result, err error, releaseSlot bool) {
	j.mu.Lock()
	if j.finalized {
		j.mu.Unlock()
		if releaseSlot {
			j.resolver.dispatcher.release(1)
		}
		return
	}
	j.finalized = true
	if err != nil && j.abortErr != nil {
		err = j.abortErr
		result = nil
	}
	waiters := make([]*request, 0, len(j.requests))
	for _, req := range j.requests {
		if req != nil {
			waiters = append(waiters, req)
		}
	}
	j.mu.Unlock()

	j.resolver.removeJob(j.key, j)
	j.cancel()

	if err == nil && result != nil {
		j.resolver.storeResult(j.key, j.cacheUsage, result, nil)
		JobCount.WithLabelValues("ok").Inc()
	} else {
		if errors.Is(err, ErrNameNotResolved) && result != nil {
			// Authoritative negatives are cacheable with their TTL.
			j.resolver.storeResult(j.key, j.cacheUsage, result, err)
		}
		JobCount.WithLabelValues(outcomeLabel(err)).Inc()
	}

	for _, req := range waiters {
		req.deliver(result, err)
	}
	if releaseSlot {
		j.resolver.dispatcher.release(1)
	}
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrNameNotResolved):
		return "name_not_resolved"
	case errors.Is(err, ErrFatalProtocol):
		return "fatal"
	case errors.Is(err, ErrMustUpgrade):
		return "must_upgrade"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrNetworkChanged):
		return "network_changed"
	case errors.Is(err, ErrQueueFull):
		return "evicted"
	case errors.Is(err, ErrShutdown):
		return "shutdown"
	}
	return "error"
}
