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
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/TomTonic/hostresolve/internal/hostcache"
	"github.com/TomTonic/hostresolve/internal/hostsfile"
)

// Options configure a Resolver. Only Transactions is required for
// DNS-backed resolution; everything else has a usable default.
type Options struct {
	// Transactions mints the DNS transactions of secure and insecure DNS
	// steps. nil disables built-in DNS and routes everything to the
	// system resolver.
	Transactions TransactionFactory
	// SecureTransactions marks an encrypted transport as configured and
	// usable.
	SecureTransactions bool
	// InsecureTransactions permits classic UDP/TCP DNS.
	InsecureTransactions bool
	// SystemFallback appends a system-resolver step after failed DNS
	// steps for SourceAny requests.
	SystemFallback bool

	// SystemResolver overrides the platform lookup used by system steps.
	SystemResolver SystemResolver
	// MulticastResolver serves SourceMulticastDNS requests.
	MulticastResolver MulticastResolver
	// NAT64 synthesizes IPv6 addresses for IPv4 literals on IPv6-only
	// networks.
	NAT64 NAT64Synthesizer
	// Sorter overrides the RFC 6724 default address sorter.
	Sorter AddressSorter

	// HostsPath loads a HOSTS-style file for the hosts step; HostsFile
	// takes precedence when both are set.
	HostsPath string
	HostsFile *hostsfile.File

	// Presets are fixed addresses for specific hostnames served during
	// secure-DNS bootstrap, keyed by lowercase hostname.
	Presets map[string][]netip.Addr
	// SecureServerNames lists the encrypted resolvers' own hostnames;
	// these get the bootstrap task ordering under automatic mode.
	SecureServerNames []string

	// IPv6Probe overrides IPv6 reachability detection. The default
	// inspects local interfaces for a routable IPv6 address.
	IPv6Probe func(ctx context.Context) bool
	// IPv6OnlyNetwork reports an IPv6-only network, enabling NAT64
	// synthesis for IPv4 literals.
	IPv6OnlyNetwork func() bool

	MaxConcurrentJobs int
	MaxQueuedJobs     int
	CacheMaxEntries   int
}

// cacheValue is what the result cache stores per entry.
type cacheValue struct {
	result   Result
	negative bool
}

// Secure-dimension filters for cache lookups.
const (
	secureAnyFilter = hostcache.SecureAny
	secureNoFilter  = hostcache.SecureNo
	secureYesFilter = hostcache.SecureYes
)

// Resolver is the host resolution engine: it plans task sequences,
// merges equivalent concurrent work into shared jobs, bounds
// concurrency through a priority dispatcher and caches results with
// network-generation awareness. Safe for concurrent use.
type Resolver struct {
	transactions      TransactionFactory
	secureTx          bool
	insecureTx        bool
	systemFallback    bool
	systemResolver    SystemResolver
	multicastResolver MulticastResolver
	nat64             NAT64Synthesizer
	sorter            AddressSorter
	hosts             *hostsfile.File
	presets           map[string][]netip.Addr
	bootstrapNames    map[string]bool
	ipv6Probe         func(ctx context.Context) bool
	ipv6OnlyNetwork   func() bool

	dispatcher *dispatcher
	cache      *hostcache.Cache[cacheValue]

	mu     sync.Mutex
	jobs   map[resolutionKey]*job
	closed bool

	probeMu      sync.Mutex
	probeValue   bool
	probeValid   bool
	probeExpires time.Time
}

// NewResolver builds a Resolver from opts.
func NewResolver(opts Options) (*Resolver, error) {
	hosts := opts.HostsFile
	if hosts == nil && opts.HostsPath != "" {
		loaded, err := hostsfile.Load(opts.HostsPath)
		if err != nil {
			return nil, err
		}
		hosts = loaded
	}
	sorter := opts.Sorter
	if sorter == nil {
		sorter = defaultSorter{}
	}
	probe := opts.IPv6Probe
	if probe == nil {
		probe = func(context.Context) bool { return hasRoutableIPv6Interface() }
	}
	cacheSize := opts.CacheMaxEntries
	if cacheSize == 0 {
		cacheSize = defaultCacheMaxEntries
	}
	bootstrap := make(map[string]bool, len(opts.SecureServerNames))
	for _, name := range opts.SecureServerNames {
		if canonical, err := canonicalizeHostname(name); err == nil {
			bootstrap[canonical] = true
		}
	}

	return &Resolver{
		transactions:      opts.Transactions,
		secureTx:          opts.SecureTransactions && opts.Transactions != nil,
		insecureTx:        opts.InsecureTransactions && opts.Transactions != nil,
		systemFallback:    opts.SystemFallback,
		systemResolver:    opts.SystemResolver,
		multicastResolver: opts.MulticastResolver,
		nat64:             opts.NAT64,
		sorter:            sorter,
		hosts:             hosts,
		presets:           opts.Presets,
		bootstrapNames:    bootstrap,
		ipv6Probe:         probe,
		ipv6OnlyNetwork:   opts.IPv6OnlyNetwork,
		dispatcher:        newDispatcher(opts.MaxConcurrentJobs, opts.MaxQueuedJobs),
		cache:             hostcache.New[cacheValue](cacheSize),
		jobs:              make(map[resolutionKey]*job),
	}, nil
}

// Resolve runs one resolution to completion: canonicalization, literal
// and localhost short-cuts, planning, inline local steps, then either a
// fresh or a joined job for the network steps. It blocks until an
// outcome is available or ctx is done; cancellation detaches this
// caller without stopping work others still wait on.
func (r *Resolver) Resolve(ctx context.Context, host Host, params ResolveParams) (*Result, error) {
	if r.isClosed() {
		return nil, errors.Wrap(ErrShutdown, "resolve")
	}

	ctx, finish := withChildSpan(ctx, "resolve", host.Hostname)
	defer finish()

	// Literals never reach name canonicalization; bracketed IPv6 forms
	// would not survive it.
	if addr, ok := parseLiteral(host.Hostname); ok {
		return r.resolveLiteral(ctx, host, params, addr)
	}

	canonical, err := canonicalizeHostname(host.Hostname)
	if err != nil {
		ResolveCount.WithLabelValues("error").Inc()
		return nil, err
	}
	host.Hostname = canonical

	ipv6 := r.ipv6Reachable(ctx, params.Source == SourceLocalOnly)
	types, flags := effectiveQueryTypes(host, params, ipv6)
	if types.Empty() {
		ResolveCount.WithLabelValues("error").Inc()
		return nil, errors.Wrap(ErrNameNotResolved, "empty query type set")
	}

	if isLocalhostName(host.Hostname) && types.HasAddressType() {
		ResolveCount.WithLabelValues(ResultSourceLocalhost.String()).Inc()
		return fixupResult(localhostResult(types), host), nil
	}

	source := params.Source
	if flags&FlagCanonicalName != 0 && source == SourceAny && types.HasAddressType() {
		// Only the platform resolver can report its canonical name.
		source = SourceSystem
	}
	if source == SourceAny && isMulticastName(host.Hostname) {
		// Names under .local are link-local, RFC 6762: the platform
		// resolver handles address queries, mDNS everything else.
		if types.HasAddressType() {
			source = SourceSystem
		} else {
			source = SourceMulticastDNS
		}
	}

	key := resolutionKey{
		host:             host,
		queryTypes:       types,
		flags:            flags,
		source:           source,
		secureMode:       params.SecureMode,
		anonymizationKey: params.AnonymizationKey,
		network:          params.Network,
	}

	sequence := BuildTaskSequence(PlanParams{
		QueryTypes:                  types,
		Source:                      source,
		SecureMode:                  params.SecureMode,
		CacheUsage:                  params.CacheUsage,
		Bootstrap:                   r.bootstrapNames[host.Hostname],
		PrioritizeLocalLookups:      params.CacheUsage == CacheUsageStaleAllowed,
		SecureTransactionsAvailable: r.secureTx,
		InsecureTransactionsAllowed: r.insecureTx,
		SystemFallbackAllowed:       r.systemFallback,
	})
	locals, remote := splitSequence(sequence)

	if result, lerr, done := r.resolveLocally(key, params.CacheUsage, locals); done {
		if lerr != nil {
			ResolveCount.WithLabelValues("error").Inc()
			return nil, lerr
		}
		ResolveCount.WithLabelValues(result.Source.String()).Inc()
		return fixupResult(result, host), nil
	}

	if len(remote) == 0 {
		// Nothing local answered and the plan has no network steps; for
		// local-only requests this is the defined miss outcome.
		ResolveCount.WithLabelValues("error").Inc()
		return nil, errors.Wrapf(ErrCacheMiss, "no local answer for %q", host.Hostname)
	}

	req := &request{
		host:       host,
		queryTypes: types,
		flags:      flags,
		priority:   params.Priority,
		done:       make(chan struct{}),
	}
	if err := r.attachRequest(key, params.CacheUsage, remote, req); err != nil {
		ResolveCount.WithLabelValues("error").Inc()
		return nil, err
	}

	select {
	case <-ctx.Done():
		req.job.detach(req)
		ResolveCount.WithLabelValues("error").Inc()
		return nil, errors.Wrapf(ErrCancelled, "resolving %q: %v", host.Hostname, ctx.Err())
	case <-req.done:
	}

	if req.err != nil {
		ResolveCount.WithLabelValues("error").Inc()
		return nil, req.err
	}
	ResolveCount.WithLabelValues(req.result.Source.String()).Inc()
	return fixupResult(req.result, host), nil
}

// resolveLiteral answers IP-literal hostnames without planning. IPv4
// literals on IPv6-only networks go through NAT64 synthesis first.
func (r *Resolver) resolveLiteral(ctx context.Context, host Host, params ResolveParams, addr netip.Addr) (*Result, error) {
	types, _ := effectiveQueryTypes(host, params, true)

	if addr.Is4() && r.nat64 != nil && r.ipv6OnlyNetwork != nil && r.ipv6OnlyNetwork() {
		if result, fail := synthesizeNAT64(ctx, r.nat64, addr); fail == nil {
			ResolveCount.WithLabelValues(result.Source.String()).Inc()
			return fixupResult(result, host), nil
		} else {
			log.Debugf("nat64 synthesis for %s failed: %v", addr, fail.err)
		}
	}

	result, err := literalResult(addr, types)
	if err != nil {
		ResolveCount.WithLabelValues("error").Inc()
		return nil, err
	}
	ResolveCount.WithLabelValues(result.Source.String()).Inc()
	return fixupResult(result, host), nil
}

// resolveLocally walks the plan's local steps inline. done is false
// only when every step missed.
func (r *Resolver) resolveLocally(key resolutionKey, usage CacheUsage, locals []TaskType) (*Result, error, bool) {
	staleOK := usage == CacheUsageStaleAllowed
	for _, step := range locals {
		switch step {
		case TaskCacheLookup:
			if result, err, ok := r.cacheLookup(key, secureAnyFilter, staleOK); ok {
				return result, err, true
			}
		case TaskSecureCacheLookup:
			if result, err, ok := r.cacheLookup(key, secureYesFilter, staleOK); ok {
				return result, err, true
			}
		case TaskInsecureCacheLookup:
			if result, err, ok := r.cacheLookup(key, secureNoFilter, staleOK); ok {
				return result, err, true
			}
		case TaskConfigPreset:
			if result := r.presetResult(key); result != nil {
				return result, nil, true
			}
		case TaskHosts:
			if result := r.hostsResult(key); result != nil {
				return result, nil, true
			}
		}
	}
	return nil, nil, false
}

// cacheLookup probes the result cache under key's identity with the
// given secure filter. Stale entries are only served when staleOK.
func (r *Resolver) cacheLookup(key resolutionKey, secure int8, staleOK bool) (*Result, error, bool) {
	query := cacheQueryFor(key, secure)
	now := time.Now()

	entry := r.cache.Lookup(query, now)
	var staleness *Staleness
	if entry == nil && staleOK {
		stale, st := r.cache.LookupStale(query, now)
		if stale != nil && st.IsStale() {
			entry = stale
			staleness = &Staleness{ExpiredBy: st.ExpiredBy, Generations: st.Generations}
		}
	}
	if entry == nil {
		return nil, nil, false
	}

	CacheHitCount.WithLabelValues(fmt.Sprintf("%t", staleness != nil)).Inc()
	if entry.Value.negative {
		return nil, errors.Wrapf(ErrNameNotResolved,
			"cached negative for %q", key.host.Hostname), true
	}
	result := entry.Value.result.clone()
	result.Source = ResultSourceCache
	result.Stale = staleness
	return result, nil, true
}

func (r *Resolver) presetResult(key resolutionKey) *Result {
	addrs := r.presets[key.host.Hostname]
	if len(addrs) == 0 {
		return nil
	}
	result := &Result{
		TTL:    defaultAnswerTTL,
		Source: ResultSourcePreset,
	}
	for _, addr := range addrs {
		if familyWanted(addr, key.queryTypes) {
			result.Endpoints = append(result.Endpoints, Endpoint{Addr: addr.Unmap()})
		}
	}
	if len(result.Endpoints) == 0 {
		return nil
	}
	return result
}

func (r *Resolver) hostsResult(key resolutionKey) *Result {
	addrs := r.hosts.Lookup(key.host.Hostname)
	if len(addrs) == 0 {
		return nil
	}
	result := &Result{
		TTL:    defaultAnswerTTL,
		Source: ResultSourceHosts,
	}
	for _, addr := range addrs {
		if familyWanted(addr, key.queryTypes) {
			result.Endpoints = append(result.Endpoints, Endpoint{Addr: addr})
		}
	}
	if len(result.Endpoints) == 0 {
		return nil
	}
	return result
}

// attachRequest joins req to the in-flight job under key or creates
// one. Retries when it loses the race against a finalizing job.
func (r *Resolver) attachRequest(key resolutionKey, usage CacheUsage, steps []TaskType, req *request) error {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return errors.Wrap(ErrShutdown, "attach")
		}
		j, ok := r.jobs[key]
		if !ok {
			j = newJob(r, key, usage, steps)
			r.jobs[key] = j
			r.mu.Unlock()
			j.attach(req)
			r.dispatcher.enqueue(j)
			return nil
		}
		r.mu.Unlock()
		if j.attach(req) {
			return nil
		}
		// The job finalized between lookup and attach; its results are
		// in the cache or its failure was specific to the old attempt.
	}
}

// removeJob drops j from the table if it is still the job under key.
func (r *Resolver) removeJob(key resolutionKey, j *job) {
	r.mu.Lock()
	if r.jobs[key] == j {
		delete(r.jobs, key)
	}
	r.mu.Unlock()
}

// storeResult writes a terminal job outcome to the cache. Negative
// outcomes are stored when err is the authoritative miss. Link-scoped
// mDNS answers are never cached.
func (r *Resolver) storeResult(key resolutionKey, usage CacheUsage, result *Result, err error) {
	if usage == CacheUsageDisallowed || result.Source == ResultSourceMulticastDNS {
		return
	}
	if result.TTL < 0 {
		return
	}
	value := cacheValue{result: *result.clone(), negative: err != nil}
	r.cache.Set(cacheKeyFor(key, result.Secure), value, result.TTL, time.Now())
}

// OnNetworkChanged reacts to a connectivity change: every cached result
// becomes stale and every in-flight job bound to the default network is
// aborted. Jobs bound to an explicit network keep running.
func (r *Resolver) OnNetworkChanged() {
	r.cache.MakeAllResultsStale()

	r.probeMu.Lock()
	r.probeValid = false
	r.probeMu.Unlock()

	r.mu.Lock()
	var affected []*job
	for key, j := range r.jobs {
		if key.network == "" {
			affected = append(affected, j)
		}
	}
	r.mu.Unlock()

	log.Debugf("network changed: %d jobs aborted, cache generation bumped", len(affected))
	for _, j := range affected {
		j.abort(errors.Wrap(ErrNetworkChanged, "job aborted"))
	}
}

// Close shuts the resolver down. In-flight and subsequent requests fail
// with ErrShutdown; the cache is dropped.
func (r *Resolver) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	jobs := make([]*job, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	r.mu.Unlock()

	for _, j := range jobs {
		j.abort(errors.Wrap(ErrShutdown, "job aborted"))
	}
	r.cache.Clear()
}

// CacheSize returns the number of cached entries, stale included.
func (r *Resolver) CacheSize() int { return r.cache.Len() }

// MetricsSummary returns a one-line load snapshot for logs.
func (r *Resolver) MetricsSummary() string {
	r.mu.Lock()
	inflight := len(r.jobs)
	r.mu.Unlock()
	return fmt.Sprintf("jobs: %d in-flight, slots: %d running/%d queued, cache: %d entries (generation %d)",
		inflight, r.dispatcher.runningSlots(), r.dispatcher.queuedLen(),
		r.cache.Len(), r.cache.Generation())
}

func (r *Resolver) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// ipv6Reachable returns the cached probe verdict, refreshing it after
// ipv6ProbeValidity. Local-only requests never wait on a probe: they
// use the last verdict and default to reachable.
func (r *Resolver) ipv6Reachable(ctx context.Context, localOnly bool) bool {
	r.probeMu.Lock()
	if r.probeValid && time.Now().Before(r.probeExpires) {
		v := r.probeValue
		r.probeMu.Unlock()
		return v
	}
	if localOnly {
		v := r.probeValue
		valid := r.probeValid
		r.probeMu.Unlock()
		if !valid {
			return true
		}
		return v
	}
	r.probeMu.Unlock()

	value := r.ipv6Probe(ctx)

	r.probeMu.Lock()
	r.probeValue = value
	r.probeValid = true
	r.probeExpires = time.Now().Add(ipv6ProbeValidity)
	r.probeMu.Unlock()
	return value
}

// hasRoutableIPv6Interface reports whether any up, non-loopback
// interface carries a global unicast IPv6 address.
func hasRoutableIPv6Interface() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		logErrIfNotNil(errors.Wrap(err, "listing interfaces"))
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipNet.IP
			if ip.To4() == nil && ip.IsGlobalUnicast() {
				return true
			}
		}
	}
	return false
}

// splitSequence separates the leading local steps from the rest.
func splitSequence(sequence []TaskType) (locals, remote []TaskType) {
	for i, step := range sequence {
		if !step.IsLocal() {
			return sequence[:i], sequence[i:]
		}
	}
	return sequence, nil
}

func familyWanted(addr netip.Addr, types QueryTypeSet) bool {
	if addr.Is6() && !addr.Is4In6() {
		return types.Has(QueryTypeAAAA)
	}
	return types.Has(QueryTypeA)
}

// cacheName is the cache identity of a request target: the bare
// hostname, or the full scheme-host-port form for scheme-qualified
// requests so differently-schemed lookups never alias.
func cacheName(host Host) string {
	if host.Scheme == "" {
		return host.Hostname
	}
	return fmt.Sprintf("%s://%s:%d", host.Scheme, host.Hostname, host.Port)
}

// cachePartition folds the network binding into the anonymization-key
// dimension; both partition the cache the same way.
func cachePartition(key resolutionKey) string {
	if key.network == "" {
		return key.anonymizationKey
	}
	return key.anonymizationKey + "|" + key.network
}

func cacheTypeFor(types QueryTypeSet) uint16 {
	if single := types.Types(); len(single) == 1 {
		return uint16(single[0])
	}
	return hostcache.TypeUnspecified
}

func cacheSourceFor(source Source) uint8 {
	// Local-only restricts where lookups happen, not what may answer
	// them; it searches the cache as an unrestricted request.
	if source == SourceLocalOnly {
		return uint8(SourceAny)
	}
	return uint8(source)
}

func cacheKeyFor(key resolutionKey, secure bool) hostcache.Key {
	return hostcache.Key{
		Name:             cacheName(key.host),
		AnonymizationKey: cachePartition(key),
		QueryType:        cacheTypeFor(key.queryTypes),
		Source:           cacheSourceFor(key.source),
		Flags:            uint8(key.flags),
		Secure:           secure,
	}
}

func cacheQueryFor(key resolutionKey, secure int8) hostcache.Query {
	return hostcache.Query{
		Name:             cacheName(key.host),
		AnonymizationKey: cachePartition(key),
		QueryType:        cacheTypeFor(key.queryTypes),
		Source:           cacheSourceFor(key.source),
		Flags:            uint8(key.flags),
		Secure:           secure,
	}
}
