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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeRunnable records dispatcher callbacks. It never releases its slot
// on its own; tests drive release explicitly.
type fakeRunnable struct {
	prio    Priority
	mu      sync.Mutex
	ran     bool
	evicted bool
	notify  chan *fakeRunnable
}

func (f *fakeRunnable) dispatchPriority() Priority { return f.prio }

func (f *fakeRunnable) runScheduled() {
	f.mu.Lock()
	f.ran = true
	f.mu.Unlock()
	if f.notify != nil {
		f.notify <- f
	}
}

func (f *fakeRunnable) evictScheduled() {
	f.mu.Lock()
	f.evicted = true
	f.mu.Unlock()
	if f.notify != nil {
		f.notify <- f
	}
}

func (f *fakeRunnable) wasRun() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ran
}

func (f *fakeRunnable) wasEvicted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.evicted
}

func TestDispatcherRunsUpToLimit(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := newDispatcher(2, 10)
	notify := make(chan *fakeRunnable, 8)

	a := &fakeRunnable{prio: PriorityMedium, notify: notify}
	b := &fakeRunnable{prio: PriorityMedium, notify: notify}
	c := &fakeRunnable{prio: PriorityMedium, notify: notify}
	d.enqueue(a)
	d.enqueue(b)
	d.enqueue(c)

	started := map[*fakeRunnable]bool{<-notify: true, <-notify: true}
	require.True(t, started[a])
	require.True(t, started[b])
	require.Equal(t, 2, d.runningSlots())
	require.Equal(t, 1, d.queuedLen())
	require.False(t, c.wasRun())

	d.release(1)
	require.Equal(t, c, <-notify)
	require.Equal(t, 0, d.queuedLen())
	d.release(2)
}

func TestDispatcherGrantsByPriority(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := newDispatcher(1, 10)
	notify := make(chan *fakeRunnable, 8)

	blocker := &fakeRunnable{prio: PriorityHighest, notify: notify}
	d.enqueue(blocker)
	require.Equal(t, blocker, <-notify)

	low := &fakeRunnable{prio: PriorityLow, notify: notify}
	high := &fakeRunnable{prio: PriorityHigh, notify: notify}
	medium := &fakeRunnable{prio: PriorityMedium, notify: notify}
	d.enqueue(low)
	d.enqueue(high)
	d.enqueue(medium)

	d.release(1)
	require.Equal(t, high, <-notify)
	d.release(1)
	require.Equal(t, medium, <-notify)
	d.release(1)
	require.Equal(t, low, <-notify)
	d.release(1)
}

func TestDispatcherFIFOWithinPriority(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := newDispatcher(1, 10)
	notify := make(chan *fakeRunnable, 8)

	blocker := &fakeRunnable{prio: PriorityHighest, notify: notify}
	d.enqueue(blocker)
	require.Equal(t, blocker, <-notify)

	first := &fakeRunnable{prio: PriorityMedium, notify: notify}
	second := &fakeRunnable{prio: PriorityMedium, notify: notify}
	d.enqueue(first)
	d.enqueue(second)

	d.release(1)
	require.Equal(t, first, <-notify)
	d.release(1)
	require.Equal(t, second, <-notify)
	d.release(1)
}

func TestDispatcherEvictsWorstOnOverflow(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := newDispatcher(1, 2)
	notify := make(chan *fakeRunnable, 8)

	blocker := &fakeRunnable{prio: PriorityHighest, notify: notify}
	d.enqueue(blocker)
	require.Equal(t, blocker, <-notify)

	oldLow := &fakeRunnable{prio: PriorityLow, notify: notify}
	high := &fakeRunnable{prio: PriorityHigh, notify: notify}
	newLow := &fakeRunnable{prio: PriorityLow, notify: notify}
	d.enqueue(oldLow)
	d.enqueue(high)
	// Overflow: newLow shares the lowest priority with oldLow and is
	// newer, so it is the victim.
	d.enqueue(newLow)

	require.Equal(t, newLow, <-notify)
	require.True(t, newLow.wasEvicted())
	require.False(t, newLow.wasRun())
	require.Equal(t, 2, d.queuedLen())
	require.False(t, oldLow.wasEvicted())

	d.release(1)
	require.Equal(t, high, <-notify)
	d.release(1)
	require.Equal(t, oldLow, <-notify)
	d.release(1)
}

func TestDispatcherExtraSlots(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := newDispatcher(2, 10)
	notify := make(chan *fakeRunnable, 8)

	a := &fakeRunnable{prio: PriorityMedium, notify: notify}
	d.enqueue(a)
	require.Equal(t, a, <-notify)

	require.True(t, d.tryAcquireExtraSlot())
	require.False(t, d.tryAcquireExtraSlot(), "extra slots count against the bound")
	require.Equal(t, 2, d.runningSlots())

	queued := &fakeRunnable{prio: PriorityMedium, notify: notify}
	d.enqueue(queued)
	require.False(t, queued.wasRun())

	d.release(1)
	require.Equal(t, queued, <-notify)
	d.release(2)
}

func TestDispatcherRemoveQueued(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := newDispatcher(1, 10)
	notify := make(chan *fakeRunnable, 8)

	blocker := &fakeRunnable{prio: PriorityHighest, notify: notify}
	d.enqueue(blocker)
	require.Equal(t, blocker, <-notify)

	queued := &fakeRunnable{prio: PriorityMedium, notify: notify}
	d.enqueue(queued)
	require.True(t, d.remove(queued))
	require.False(t, d.remove(queued), "second remove finds nothing")
	require.False(t, d.remove(blocker), "running entries are not queued")

	d.release(1)
	require.Equal(t, 0, d.queuedLen())
	select {
	case r := <-notify:
		t.Fatalf("unexpected callback for %v", r)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatcherChangePriority(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := newDispatcher(1, 10)
	notify := make(chan *fakeRunnable, 8)

	blocker := &fakeRunnable{prio: PriorityHighest, notify: notify}
	d.enqueue(blocker)
	require.Equal(t, blocker, <-notify)

	was := &fakeRunnable{prio: PriorityLow, notify: notify}
	other := &fakeRunnable{prio: PriorityMedium, notify: notify}
	d.enqueue(was)
	d.enqueue(other)

	was.prio = PriorityHigh
	d.changePriority(was)

	d.release(1)
	require.Equal(t, was, <-notify, "raised priority wins the next slot")
	d.release(1)
	require.Equal(t, other, <-notify)
	d.release(1)
}
