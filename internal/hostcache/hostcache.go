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

// Package hostcache implements the keyed, TTL- and generation-aware
// result store of the resolution engine.
//
// Entries are bucketed by (name, network-anonymization key); the
// secondary dimensions (query type, source, security, flags) are
// filtered by a linear scan of the bucket, which stays small per
// hostname. An entry is stale when its wall-clock TTL expired or when
// its creation generation differs from the cache generation; the
// generation is bumped in O(1) on network changes and staleness is
// evaluated lazily. Expiry is inclusive: an entry is stale the instant
// its TTL elapses, which makes zero-TTL entries stale from creation,
// reachable only through LookupStale.
//
// Eviction contract: when the cache exceeds capacity, entries already
// stale by generation are evicted first (oldest inserted among them),
// then the oldest-inserted entry overall.
package hostcache

import (
	"container/list"
	"sync"
	"time"
)

// Wildcard markers for Query fields.
const (
	// TypeUnspecified as a query matches entries of any type; as an
	// entry type it answers queries of any type.
	TypeUnspecified uint16 = 0

	// SecureAny ignores the security dimension during lookup.
	SecureAny int8 = -1
	// SecureNo matches insecure entries only.
	SecureNo int8 = 0
	// SecureYes matches secure entries only.
	SecureYes int8 = 1
)

// Key identifies the slot one cache entry answers.
type Key struct {
	// Name is the hostname, or the scheme://host:port form for
	// scheme-qualified requests.
	Name string
	// AnonymizationKey partitions the cache between network contexts.
	AnonymizationKey string
	// QueryType is a DNS type code, or TypeUnspecified for an entry that
	// answers any query type.
	QueryType uint16
	// Source is the request's source restriction (engine enum; zero is
	// the unrestricted value and acts as a wildcard).
	Source uint8
	// Flags are the resolver flags, matched exactly.
	Flags uint8
	// Secure records whether the result was obtained over secure DNS.
	Secure bool
}

// Query selects entries during lookup. QueryType and Source use the
// same wildcard conventions as Key; Secure is a tri-state.
type Query struct {
	Name             string
	AnonymizationKey string
	QueryType        uint16
	Source           uint8
	Flags            uint8
	Secure           int8
}

// Entry is one immutable cached result. Updates replace entries, they
// never mutate them.
type Entry[V any] struct {
	Key   Key
	Value V
	TTL   time.Duration

	created    time.Time
	generation uint64
}

// Expires returns the wall-clock freshness deadline.
func (e *Entry[V]) Expires() time.Time {
	return e.created.Add(e.TTL)
}

// Staleness describes how stale an entry is.
type Staleness struct {
	// ExpiredBy is how far past the TTL the entry is; negative while
	// still within TTL. An entry is stale the instant its TTL elapses,
	// so a zero-TTL entry is stale from creation.
	ExpiredBy time.Duration
	// Generations counts network changes since the entry was created.
	Generations int
}

// IsStale reports whether either staleness dimension triggered.
func (s Staleness) IsStale() bool {
	return s.ExpiredBy >= 0 || s.Generations > 0
}

type bucketKey struct {
	name string
	nak  string
}

type record[V any] struct {
	entry Entry[V]
	elem  *list.Element
	seq   uint64
}

// Cache is the generation-aware result store. Safe for concurrent use.
type Cache[V any] struct {
	mu         sync.Mutex
	maxEntries int
	generation uint64
	seq        uint64
	size       int
	buckets    map[bucketKey][]*record[V]
	order      *list.List // of *record[V], insertion order
}

// New creates a Cache bounded to maxEntries (<=0 means unbounded).
func New[V any](maxEntries int) *Cache[V] {
	return &Cache[V]{
		maxEntries: maxEntries,
		buckets:    make(map[bucketKey][]*record[V]),
		order:      list.New(),
	}
}

// Len returns the number of stored entries, stale included.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Generation returns the current staleness generation.
func (c *Cache[V]) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// MakeAllResultsStale marks every current entry stale by bumping the
// generation counter. O(1); entries are not deleted.
func (c *Cache[V]) MakeAllResultsStale() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
}

// Clear drops every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buckets = make(map[bucketKey][]*record[V])
	c.order.Init()
	c.size = 0
}

// Lookup returns the best non-stale entry matching q, or nil. When
// several entries match a wildcard query, the secure one wins, then the
// most recently set.
func (c *Cache[V]) Lookup(q Query, now time.Time) *Entry[V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	var best *record[V]
	for _, rec := range c.buckets[bucketKey{q.Name, q.AnonymizationKey}] {
		if !matches(q, &rec.entry.Key) {
			continue
		}
		if c.staleness(&rec.entry, now).IsStale() {
			continue
		}
		if best == nil || better(rec, best) {
			best = rec
		}
	}
	if best == nil {
		return nil
	}
	entry := best.entry
	return &entry
}

// LookupStale returns the best entry matching q whether stale or not,
// annotated with its staleness. Same preference order as Lookup.
func (c *Cache[V]) LookupStale(q Query, now time.Time) (*Entry[V], Staleness) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var best *record[V]
	for _, rec := range c.buckets[bucketKey{q.Name, q.AnonymizationKey}] {
		if !matches(q, &rec.entry.Key) {
			continue
		}
		if best == nil || better(rec, best) {
			best = rec
		}
	}
	if best == nil {
		return nil, Staleness{}
	}
	entry := best.entry
	return &entry, c.staleness(&best.entry, now)
}

// Set inserts a new entry. Any existing entry the new entry's key space
// would also answer is evicted first, including wildcard-typed entries
// shadowed by a typed insert. Capacity eviction runs afterwards.
func (c *Cache[V]) Set(key Key, value V, ttl time.Duration, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bk := bucketKey{key.Name, key.AnonymizationKey}
	bucket := c.buckets[bk]
	kept := bucket[:0]
	for _, rec := range bucket {
		if overlaps(&key, &rec.entry.Key) {
			c.order.Remove(rec.elem)
			c.size--
			continue
		}
		kept = append(kept, rec)
	}

	c.seq++
	rec := &record[V]{
		entry: Entry[V]{
			Key:        key,
			Value:      value,
			TTL:        ttl,
			created:    now,
			generation: c.generation,
		},
		seq: c.seq,
	}
	rec.elem = c.order.PushBack(rec)
	c.buckets[bk] = append(kept, rec)
	c.size++

	c.evictOverCapacity()
}

func (c *Cache[V]) staleness(e *Entry[V], now time.Time) Staleness {
	return Staleness{
		ExpiredBy:   now.Sub(e.created) - e.TTL,
		Generations: int(c.generation - e.generation),
	}
}

// better implements the wildcard tie-break: most secure first, then
// most recently set.
func better[V any](a, b *record[V]) bool {
	if a.entry.Key.Secure != b.entry.Key.Secure {
		return a.entry.Key.Secure
	}
	return a.seq > b.seq
}

func matches(q Query, k *Key) bool {
	if q.Flags != k.Flags {
		return false
	}
	if q.QueryType != TypeUnspecified && k.QueryType != TypeUnspecified &&
		q.QueryType != k.QueryType {
		return false
	}
	if q.Source != 0 && k.Source != 0 && q.Source != k.Source {
		return false
	}
	if q.Secure != SecureAny && k.Secure != (q.Secure == SecureYes) {
		return false
	}
	return true
}

// overlaps reports whether an entry under old would shadow lookups that
// the new key also answers. Such entries are evicted on Set so a fresh
// typed entry is never hidden behind a stale wildcard one.
func overlaps(newKey, old *Key) bool {
	if newKey.Flags != old.Flags || newKey.Secure != old.Secure {
		return false
	}
	typeOverlap := newKey.QueryType == TypeUnspecified ||
		old.QueryType == TypeUnspecified ||
		newKey.QueryType == old.QueryType
	sourceOverlap := newKey.Source == 0 || old.Source == 0 ||
		newKey.Source == old.Source
	return typeOverlap && sourceOverlap
}

// evictOverCapacity enforces maxEntries: generation-stale entries go
// first (oldest inserted among them), then the oldest-inserted entry.
func (c *Cache[V]) evictOverCapacity() {
	if c.maxEntries <= 0 {
		return
	}
	for c.size > c.maxEntries {
		var victim *record[V]
		for el := c.order.Front(); el != nil; el = el.Next() {
			rec := el.Value.(*record[V])
			if rec.entry.generation != c.generation {
				victim = rec
				break
			}
		}
		if victim == nil {
			victim = c.order.Front().Value.(*record[V])
		}
		c.remove(victim)
	}
}

func (c *Cache[V]) remove(rec *record[V]) {
	bk := bucketKey{rec.entry.Key.Name, rec.entry.Key.AnonymizationKey}
	bucket := c.buckets[bk]
	for i, r := range bucket {
		if r == rec {
			c.buckets[bk] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(c.buckets[bk]) == 0 {
		delete(c.buckets, bk)
	}
	c.order.Remove(rec.elem)
	c.size--
}
