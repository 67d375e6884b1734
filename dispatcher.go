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
	"container/heap"
	"sync"
)

// runnable is a unit of work scheduled by the dispatcher.
type runnable interface {
	// dispatchPriority is read under the dispatcher lock.
	dispatchPriority() Priority
	// runScheduled is invoked on a fresh goroutine once a slot is
	// granted. The holder must return the slot via release.
	runScheduled()
	// evictScheduled is invoked, also on a fresh goroutine, when the
	// entry is dropped because the queue grew too large.
	evictScheduled()
}

type queuedItem struct {
	r     runnable
	prio  Priority
	seq   uint64
	index int
}

// queueHeap orders by priority descending, FIFO within a priority.
type queueHeap []*queuedItem

func (h queueHeap) Len() int { return len(h) }

func (h queueHeap) Less(i, j int) bool {
	if h[i].prio != h[j].prio {
		return h[i].prio > h[j].prio
	}
	return h[i].seq < h[j].seq
}

func (h queueHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *queueHeap) Push(x any) {
	item := x.(*queuedItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *queueHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// dispatcher bounds concurrent resolution work. Each running job holds
// one slot; a job's parallel DNS transactions may claim extra slots,
// counted against the same bound, so total in-flight network work stays
// bounded regardless of per-job fan-out.
type dispatcher struct {
	mu         sync.Mutex
	maxRunning int
	maxQueued  int
	running    int
	seq        uint64
	queue      queueHeap
	items      map[runnable]*queuedItem
}

func newDispatcher(maxRunning, maxQueued int) *dispatcher {
	if maxRunning <= 0 {
		maxRunning = defaultMaxConcurrentJobs
	}
	if maxQueued <= 0 {
		maxQueued = defaultMaxQueuedJobs
	}
	return &dispatcher{
		maxRunning: maxRunning,
		maxQueued:  maxQueued,
		items:      make(map[runnable]*queuedItem),
	}
}

// enqueue schedules r: immediately when a slot is free, otherwise
// queued by priority. Overflow evicts the lowest-priority queued entry,
// the most recently enqueued among equals.
func (d *dispatcher) enqueue(r runnable) {
	d.mu.Lock()
	if d.running < d.maxRunning {
		d.running++
		d.mu.Unlock()
		go r.runScheduled()
		return
	}

	d.seq++
	item := &queuedItem{r: r, prio: r.dispatchPriority(), seq: d.seq}
	heap.Push(&d.queue, item)
	d.items[r] = item

	var evict runnable
	if len(d.queue) > d.maxQueued {
		if victim := d.worstQueued(); victim != nil {
			heap.Remove(&d.queue, victim.index)
			delete(d.items, victim.r)
			evict = victim.r
		}
	}
	d.mu.Unlock()

	if evict != nil {
		go evict.evictScheduled()
	}
}

// release returns n slots and grants queued work.
func (d *dispatcher) release(n int) {
	d.mu.Lock()
	d.running -= n
	granted := d.grantLocked()
	d.mu.Unlock()
	for _, r := range granted {
		go r.runScheduled()
	}
}

// tryAcquireExtraSlot claims one additional slot without queueing.
// Callers fall back to sequential work when none is free.
func (d *dispatcher) tryAcquireExtraSlot() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running < d.maxRunning {
		d.running++
		return true
	}
	return false
}

// remove withdraws r from the queue, reporting whether it was queued.
// A false return means r already runs (or finished) and the caller must
// not assume it still owns it.
func (d *dispatcher) remove(r runnable) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	item, ok := d.items[r]
	if !ok {
		return false
	}
	heap.Remove(&d.queue, item.index)
	delete(d.items, r)
	return true
}

// changePriority re-sorts r after its priority changed. No-op when r is
// not queued.
func (d *dispatcher) changePriority(r runnable) {
	d.mu.Lock()
	defer d.mu.Unlock()
	item, ok := d.items[r]
	if !ok {
		return
	}
	item.prio = r.dispatchPriority()
	heap.Fix(&d.queue, item.index)
}

func (d *dispatcher) queuedLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func (d *dispatcher) runningSlots() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *dispatcher) grantLocked() []runnable {
	var granted []runnable
	for d.running < d.maxRunning && len(d.queue) > 0 {
		item := heap.Pop(&d.queue).(*queuedItem)
		delete(d.items, item.r)
		d.running++
		granted = append(granted, item.r)
	}
	return granted
}

// worstQueued returns the eviction victim: lowest priority, most
// recently enqueued among equals. Linear scan; the queue is small.
func (d *dispatcher) worstQueued() *queuedItem {
	var worst *queuedItem
	for _, item := range d.queue {
		if worst == nil ||
			item.prio < worst.prio ||
			(item.prio == worst.prio && item.seq > worst.seq) {
			worst = item
		}
	}
	return worst
}
