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
	"testing"

	"github.com/stretchr/testify/require"
)

func addrTypes() QueryTypeSet {
	return NewQueryTypeSet(QueryTypeA, QueryTypeAAAA)
}

func TestBuildTaskSequence(t *testing.T) {
	tests := []struct {
		name string
		p    PlanParams
		want []TaskType
	}{
		{
			name: "automatic splits cache lookups around secure dns",
			p: PlanParams{
				QueryTypes: addrTypes(), Source: SourceAny,
				SecureMode:                  SecureModeAutomatic,
				SecureTransactionsAvailable: true,
				InsecureTransactionsAllowed: true,
			},
			want: []TaskType{
				TaskSecureCacheLookup, TaskHosts,
				TaskSecureDNS, TaskInsecureCacheLookup, TaskInsecureDNS,
			},
		},
		{
			name: "automatic prioritizing local lookups front-loads the cache",
			p: PlanParams{
				QueryTypes: addrTypes(), Source: SourceAny,
				SecureMode:                  SecureModeAutomatic,
				PrioritizeLocalLookups:      true,
				SecureTransactionsAvailable: true,
				InsecureTransactionsAllowed: true,
			},
			want: []TaskType{TaskCacheLookup, TaskHosts, TaskSecureDNS, TaskInsecureDNS},
		},
		{
			name: "automatic without secure transport",
			p: PlanParams{
				QueryTypes: addrTypes(), Source: SourceAny,
				SecureMode:                  SecureModeAutomatic,
				InsecureTransactionsAllowed: true,
			},
			want: []TaskType{TaskCacheLookup, TaskHosts, TaskInsecureDNS},
		},
		{
			name: "secure mode never plans insecure dns",
			p: PlanParams{
				QueryTypes: addrTypes(), Source: SourceAny,
				SecureMode:                  SecureModeSecure,
				SecureTransactionsAvailable: true,
				InsecureTransactionsAllowed: true,
			},
			want: []TaskType{TaskSecureCacheLookup, TaskHosts, TaskSecureDNS},
		},
		{
			name: "secure mode never appends the system fallback",
			p: PlanParams{
				QueryTypes: addrTypes(), Source: SourceAny,
				SecureMode:                  SecureModeSecure,
				SecureTransactionsAvailable: true,
				InsecureTransactionsAllowed: true,
				SystemFallbackAllowed:       true,
			},
			want: []TaskType{TaskSecureCacheLookup, TaskHosts, TaskSecureDNS},
		},
		{
			name: "off mode",
			p: PlanParams{
				QueryTypes: addrTypes(), Source: SourceAny,
				SecureMode:                  SecureModeOff,
				InsecureTransactionsAllowed: true,
			},
			want: []TaskType{TaskInsecureCacheLookup, TaskHosts, TaskInsecureDNS},
		},
		{
			name: "bootstrap serves presets before insecure dns",
			p: PlanParams{
				QueryTypes: addrTypes(), Source: SourceAny,
				SecureMode:                  SecureModeAutomatic,
				SecureTransactionsAvailable: true,
				InsecureTransactionsAllowed: true,
				Bootstrap:                   true,
			},
			want: []TaskType{
				TaskSecureCacheLookup, TaskConfigPreset,
				TaskInsecureCacheLookup, TaskHosts, TaskInsecureDNS,
			},
		},
		{
			name: "no dns config falls back to system without hosts step",
			p: PlanParams{
				QueryTypes: addrTypes(), Source: SourceAny,
				SecureMode: SecureModeAutomatic,
			},
			want: []TaskType{TaskInsecureCacheLookup, TaskSystem},
		},
		{
			name: "system fallback appended after dns",
			p: PlanParams{
				QueryTypes: addrTypes(), Source: SourceAny,
				SecureMode:                  SecureModeOff,
				InsecureTransactionsAllowed: true,
				SystemFallbackAllowed:       true,
			},
			want: []TaskType{TaskInsecureCacheLookup, TaskHosts, TaskInsecureDNS, TaskSystem},
		},
		{
			name: "source system",
			p: PlanParams{
				QueryTypes: addrTypes(), Source: SourceSystem,
				SecureMode:                  SecureModeAutomatic,
				SecureTransactionsAvailable: true,
				InsecureTransactionsAllowed: true,
			},
			want: []TaskType{TaskInsecureCacheLookup, TaskSystem},
		},
		{
			name: "source dns ignores system fallback",
			p: PlanParams{
				QueryTypes: addrTypes(), Source: SourceDNS,
				SecureMode:                  SecureModeOff,
				InsecureTransactionsAllowed: true,
				SystemFallbackAllowed:       true,
			},
			want: []TaskType{TaskInsecureCacheLookup, TaskHosts, TaskInsecureDNS},
		},
		{
			name: "source mdns",
			p: PlanParams{
				QueryTypes: addrTypes(), Source: SourceMulticastDNS,
				SecureMode: SecureModeAutomatic,
			},
			want: []TaskType{TaskMDNS},
		},
		{
			name: "local only automatic",
			p: PlanParams{
				QueryTypes: addrTypes(), Source: SourceLocalOnly,
				SecureMode:                  SecureModeAutomatic,
				SecureTransactionsAvailable: true,
				InsecureTransactionsAllowed: true,
			},
			want: []TaskType{TaskCacheLookup, TaskHosts},
		},
		{
			name: "local only secure",
			p: PlanParams{
				QueryTypes: addrTypes(), Source: SourceLocalOnly,
				SecureMode: SecureModeSecure,
			},
			want: []TaskType{TaskSecureCacheLookup, TaskHosts},
		},
		{
			name: "cache disallowed drops lookup steps",
			p: PlanParams{
				QueryTypes: addrTypes(), Source: SourceAny,
				SecureMode:                  SecureModeAutomatic,
				CacheUsage:                  CacheUsageDisallowed,
				SecureTransactionsAvailable: true,
				InsecureTransactionsAllowed: true,
			},
			want: []TaskType{TaskHosts, TaskSecureDNS, TaskInsecureDNS},
		},
		{
			name: "non-address query skips hosts",
			p: PlanParams{
				QueryTypes: NewQueryTypeSet(QueryTypeTXT),
				Source:     SourceAny,
				SecureMode: SecureModeOff,
				InsecureTransactionsAllowed: true,
			},
			want: []TaskType{TaskInsecureCacheLookup, TaskInsecureDNS},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, BuildTaskSequence(tt.p))
		})
	}
}

func TestTaskTypeIsLocal(t *testing.T) {
	locals := []TaskType{
		TaskCacheLookup, TaskSecureCacheLookup, TaskInsecureCacheLookup,
		TaskConfigPreset, TaskHosts,
	}
	for _, task := range locals {
		require.True(t, task.IsLocal(), task.String())
	}
	remote := []TaskType{TaskSecureDNS, TaskInsecureDNS, TaskSystem, TaskMDNS, TaskNAT64}
	for _, task := range remote {
		require.False(t, task.IsLocal(), task.String())
	}
}

func TestLocalStepsAlwaysPrecedeRemoteSteps(t *testing.T) {
	modes := []SecureMode{SecureModeOff, SecureModeAutomatic, SecureModeSecure}
	sources := []Source{SourceAny, SourceSystem, SourceDNS, SourceMulticastDNS, SourceLocalOnly}
	for _, mode := range modes {
		for _, source := range sources {
			for _, bootstrap := range []bool{false, true} {
				for _, prioritize := range []bool{false, true} {
					seq := BuildTaskSequence(PlanParams{
						QueryTypes: addrTypes(), Source: source,
						SecureMode:                  mode,
						Bootstrap:                   bootstrap,
						PrioritizeLocalLookups:      prioritize,
						SecureTransactionsAvailable: true,
						InsecureTransactionsAllowed: true,
						SystemFallbackAllowed:       true,
					})
					seenRemote := false
					for _, task := range seq {
						if !task.IsLocal() {
							seenRemote = true
							continue
						}
						// The insecure cache lookup between the secure and
						// insecure DNS steps is the one sanctioned exception.
						if task == TaskInsecureCacheLookup && seenRemote {
							continue
						}
						require.False(t, seenRemote,
							"local step %s after remote step in %v", task, seq)
					}
				}
			}
		}
	}
}
