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
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// fakeSystemResolver scripts one outcome per call, in order.
type fakeSystemResolver struct {
	calls     int
	addrs     [][]netip.Addr
	canonical string
	errs      []error
}

func (f *fakeSystemResolver) ResolveSystem(_ context.Context, _ string, wantCanonical bool) ([]netip.Addr, string, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, "", f.errs[i]
	}
	var addrs []netip.Addr
	if i < len(f.addrs) {
		addrs = f.addrs[i]
	}
	canonical := ""
	if wantCanonical {
		canonical = f.canonical
	}
	return addrs, canonical, nil
}

func TestSystemTaskSuccess(t *testing.T) {
	fake := &fakeSystemResolver{
		addrs: [][]netip.Addr{{
			netip.MustParseAddr("192.0.2.1"),
			netip.MustParseAddr("2001:db8::1"),
		}},
	}
	task := newSystemTask(fake, "host.example", NewQueryTypeSet(QueryTypeA, QueryTypeAAAA), false)
	result, fail := task.run(context.Background())
	require.Nil(t, fail)
	require.Len(t, result.Endpoints, 2)
	require.Equal(t, ResultSourceSystem, result.Source)
	require.Equal(t, defaultAnswerTTL, result.TTL)
	require.Empty(t, result.Aliases)
	require.Equal(t, 1, fake.calls)
}

func TestSystemTaskRetriesTransientFailure(t *testing.T) {
	fake := &fakeSystemResolver{
		errs:  []error{errors.New("temporary failure")},
		addrs: [][]netip.Addr{nil, {netip.MustParseAddr("192.0.2.7")}},
	}
	task := newSystemTask(fake, "flaky.example", NewQueryTypeSet(QueryTypeA), false)
	task.retryInitial = time.Millisecond

	result, fail := task.run(context.Background())
	require.Nil(t, fail)
	require.Equal(t, 2, fake.calls)
	require.Equal(t, "192.0.2.7", result.Endpoints[0].Addr.String())
}

func TestSystemTaskGivesUpAfterAttempts(t *testing.T) {
	fake := &fakeSystemResolver{
		errs: []error{errors.New("down"), errors.New("still down")},
	}
	task := newSystemTask(fake, "down.example", NewQueryTypeSet(QueryTypeA), false)
	task.retryInitial = time.Millisecond

	_, fail := task.run(context.Background())
	require.NotNil(t, fail)
	require.True(t, fail.allowFallback)
	require.Equal(t, defaultSystemAttempts, fake.calls)
}

func TestSystemTaskNotFoundIsAuthoritative(t *testing.T) {
	fake := &fakeSystemResolver{
		errs: []error{&net.DNSError{Err: "no such host", Name: "gone.example", IsNotFound: true}},
	}
	task := newSystemTask(fake, "gone.example", NewQueryTypeSet(QueryTypeA), false)

	_, fail := task.run(context.Background())
	require.NotNil(t, fail)
	require.ErrorIs(t, fail.err, ErrNameNotResolved)
	require.False(t, fail.allowFallback)
	require.Equal(t, 1, fake.calls, "authoritative negatives are not retried")
}

func TestSystemTaskFiltersFamilies(t *testing.T) {
	fake := &fakeSystemResolver{
		addrs: [][]netip.Addr{{
			netip.MustParseAddr("192.0.2.1"),
			netip.MustParseAddr("2001:db8::1"),
		}},
	}
	task := newSystemTask(fake, "host.example", NewQueryTypeSet(QueryTypeAAAA), false)
	result, fail := task.run(context.Background())
	require.Nil(t, fail)
	require.Len(t, result.Endpoints, 1)
	require.Equal(t, "2001:db8::1", result.Endpoints[0].Addr.String())
}

func TestSystemTaskEmptyAfterFilterIsNotResolved(t *testing.T) {
	fake := &fakeSystemResolver{
		addrs: [][]netip.Addr{{netip.MustParseAddr("192.0.2.1")}},
	}
	task := newSystemTask(fake, "v4only.example", NewQueryTypeSet(QueryTypeAAAA), false)
	_, fail := task.run(context.Background())
	require.NotNil(t, fail)
	require.ErrorIs(t, fail.err, ErrNameNotResolved)
}

func TestSystemTaskCanonicalName(t *testing.T) {
	fake := &fakeSystemResolver{
		addrs:     [][]netip.Addr{{netip.MustParseAddr("192.0.2.1")}},
		canonical: "real.example",
	}
	task := newSystemTask(fake, "alias.example", NewQueryTypeSet(QueryTypeA), true)
	result, fail := task.run(context.Background())
	require.Nil(t, fail)
	require.Equal(t, []string{"real.example"}, result.Aliases)
}

func TestSystemTaskCancelledBetweenAttempts(t *testing.T) {
	fake := &fakeSystemResolver{
		errs: []error{errors.New("down"), errors.New("down")},
	}
	task := newSystemTask(fake, "slow.example", NewQueryTypeSet(QueryTypeA), false)
	task.retryInitial = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, fail := task.run(ctx)
	require.NotNil(t, fail)
	require.ErrorIs(t, fail.err, ErrCancelled)
	require.Equal(t, 1, fake.calls)
}
