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

// TaskType is one step of a resolution task sequence. Local steps are
// synchronous probes of in-process state; non-local steps perform
// network work and are subject to dispatcher scheduling.
type TaskType uint8

const (
	// TaskCacheLookup probes the result cache for entries of either
	// security level. Automatic secure mode uses it only when local
	// lookups are prioritized; otherwise the lookup is split into a
	// secure lookup up front and an insecure lookup between the secure
	// and insecure DNS steps.
	TaskCacheLookup TaskType = iota
	// TaskSecureCacheLookup probes the cache for secure entries only.
	TaskSecureCacheLookup
	// TaskInsecureCacheLookup probes the cache for insecure entries only.
	TaskInsecureCacheLookup
	// TaskConfigPreset serves preset addresses published in the DNS
	// configuration for specific hostnames, typically the DoH servers
	// themselves during bootstrap.
	TaskConfigPreset
	// TaskHosts consults the HOSTS-style static address file.
	TaskHosts
	// TaskSecureDNS runs DNS transactions over an encrypted transport.
	TaskSecureDNS
	// TaskInsecureDNS runs classic UDP/TCP DNS transactions.
	TaskInsecureDNS
	// TaskSystem delegates to the operating system resolver.
	TaskSystem
	// TaskMDNS resolves via multicast DNS.
	TaskMDNS
	// TaskNAT64 synthesizes an IPv6 address for an IPv4 literal on an
	// IPv6-only network.
	TaskNAT64
)

// IsLocal reports whether the step completes without network I/O. Local
// steps run inline during request resolution, before a job is created.
func (t TaskType) IsLocal() bool {
	switch t {
	case TaskCacheLookup, TaskSecureCacheLookup, TaskInsecureCacheLookup,
		TaskConfigPreset, TaskHosts:
		return true
	}
	return false
}

func (t TaskType) String() string {
	switch t {
	case TaskCacheLookup:
		return "cache_lookup"
	case TaskSecureCacheLookup:
		return "secure_cache_lookup"
	case TaskInsecureCacheLookup:
		return "insecure_cache_lookup"
	case TaskConfigPreset:
		return "config_preset"
	case TaskHosts:
		return "hosts"
	case TaskSecureDNS:
		return "secure_dns"
	case TaskInsecureDNS:
		return "insecure_dns"
	case TaskSystem:
		return "system"
	case TaskMDNS:
		return "mdns"
	case TaskNAT64:
		return "nat64"
	}
	return "unknown"
}

// PlanParams are the inputs of task-sequence planning. The capability
// fields describe what the current configuration can actually do and
// are filled in by the manager.
type PlanParams struct {
	QueryTypes QueryTypeSet
	Source     Source
	SecureMode SecureMode
	CacheUsage CacheUsage

	// Bootstrap requests the secure-bootstrap ordering used to resolve
	// the encrypted resolvers' own hostnames under automatic mode.
	Bootstrap bool
	// PrioritizeLocalLookups front-loads every cache lookup. When false,
	// automatic mode keeps the insecure cache lookup behind the secure
	// DNS step so a cached insecure answer cannot pre-empt an available
	// secure transport.
	PrioritizeLocalLookups bool

	// SecureTransactionsAvailable is true when an encrypted transport is
	// configured and currently usable.
	SecureTransactionsAvailable bool
	// InsecureTransactionsAllowed is true when a classic DNS config is
	// present and insecure queries are permitted.
	InsecureTransactionsAllowed bool
	// SystemFallbackAllowed permits appending a system-resolver step
	// after failed DNS steps for address-only queries.
	SystemFallbackAllowed bool
}

// BuildTaskSequence maps request parameters and resolver capabilities
// to the ordered steps a resolution will attempt. The returned sequence
// lists every local step before any non-local step, except for the
// insecure cache lookup interleaved between the secure and insecure DNS
// steps of a non-prioritized automatic sequence.
//
// The HOSTS step is included only when the query wants addresses and
// the sequence starts with neither the system resolver, which consults
// the OS hosts database on its own, nor mDNS, which serves names the
// hosts file does not.
func BuildTaskSequence(p PlanParams) []TaskType {
	var locals, remote []TaskType

	cacheAllowed := p.CacheUsage != CacheUsageDisallowed

	switch p.Source {
	case SourceLocalOnly:
		locals = localLookupSteps(p.SecureMode, cacheAllowed)

	case SourceSystem:
		if cacheAllowed {
			locals = append(locals, TaskInsecureCacheLookup)
		}
		remote = append(remote, TaskSystem)

	case SourceMulticastDNS:
		remote = append(remote, TaskMDNS)

	case SourceAny, SourceDNS:
		dnsUsable := p.SecureTransactionsAvailable || p.InsecureTransactionsAllowed
		if p.Source == SourceAny && !dnsUsable {
			if cacheAllowed {
				locals = append(locals, TaskInsecureCacheLookup)
			}
			remote = append(remote, TaskSystem)
			break
		}
		locals, remote = dnsSteps(p, cacheAllowed)
		// A secure-mode sequence never degrades to the system resolver;
		// its answers are as insecure as plain DNS.
		if p.Source == SourceAny && p.SystemFallbackAllowed &&
			p.SecureMode != SecureModeSecure {
			remote = append(remote, TaskSystem)
		}
	}

	if p.QueryTypes.HasAddressType() && wantsHostsStep(remote) {
		locals = append(locals, TaskHosts)
	}

	return append(locals, remote...)
}

// localLookupSteps returns the cache steps of a sequence with no
// network tasks.
func localLookupSteps(mode SecureMode, cacheAllowed bool) []TaskType {
	if !cacheAllowed {
		return nil
	}
	switch mode {
	case SecureModeSecure:
		return []TaskType{TaskSecureCacheLookup}
	case SecureModeOff:
		return []TaskType{TaskInsecureCacheLookup}
	}
	return []TaskType{TaskCacheLookup}
}

// dnsSteps returns the local and remote steps of a DNS-backed sequence
// per the effective secure mode.
func dnsSteps(p PlanParams, cacheAllowed bool) (locals, remote []TaskType) {
	switch p.SecureMode {
	case SecureModeSecure:
		if cacheAllowed {
			locals = append(locals, TaskSecureCacheLookup)
		}
		remote = append(remote, TaskSecureDNS)

	case SecureModeAutomatic:
		switch {
		case !p.SecureTransactionsAvailable:
			// Nothing secure can run; plan a purely insecure sequence but
			// keep matching cached secure results.
			if cacheAllowed {
				locals = append(locals, TaskCacheLookup)
			}
			if p.InsecureTransactionsAllowed {
				remote = append(remote, TaskInsecureDNS)
			}

		case p.Bootstrap:
			// The encrypted resolvers' own names must not wait on the
			// encrypted transport. Serve anything local first, then go
			// insecure; the secure result is refreshed out of band.
			if cacheAllowed {
				locals = append(locals, TaskSecureCacheLookup)
			}
			locals = append(locals, TaskConfigPreset)
			if cacheAllowed {
				locals = append(locals, TaskInsecureCacheLookup)
			}
			if p.InsecureTransactionsAllowed {
				remote = append(remote, TaskInsecureDNS)
			}

		default:
			if cacheAllowed {
				if p.PrioritizeLocalLookups {
					locals = append(locals, TaskCacheLookup)
				} else {
					locals = append(locals, TaskSecureCacheLookup)
				}
			}
			remote = append(remote, TaskSecureDNS)
			if p.InsecureTransactionsAllowed {
				if cacheAllowed && !p.PrioritizeLocalLookups {
					remote = append(remote, TaskInsecureCacheLookup)
				}
				remote = append(remote, TaskInsecureDNS)
			}
		}

	case SecureModeOff:
		if cacheAllowed {
			locals = append(locals, TaskInsecureCacheLookup)
		}
		if p.InsecureTransactionsAllowed {
			remote = append(remote, TaskInsecureDNS)
		}
	}
	return locals, remote
}

// wantsHostsStep reports whether the HOSTS file should be consulted
// before the given non-local steps.
func wantsHostsStep(remote []TaskType) bool {
	if len(remote) == 0 {
		return true
	}
	switch remote[0] {
	case TaskSystem, TaskMDNS:
		return false
	}
	return true
}
