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

package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequentialPicksInOrder(t *testing.T) {
	s := NewSequentialSelector([]string{"a", "b", "c"})
	assert.Equal(t, 3, s.Remaining())
	assert.Equal(t, "a", s.Pick())
	assert.Equal(t, "b", s.Pick())
	assert.Equal(t, "c", s.Pick())
	assert.Equal(t, "", s.Pick(), "exhausted selector returns zero value")
	assert.Zero(t, s.Remaining())
}

func TestSequentialEmpty(t *testing.T) {
	s := NewSequentialSelector[int](nil)
	assert.Zero(t, s.Pick())
}

// WeightedRand draws from a non-seedable source, so assert membership
// and exhaustion rather than order.
func TestWeightedRandPicksWithoutReplacement(t *testing.T) {
	testCases := map[string]struct {
		values  []string
		weights []int
		picks   int
		excess  int
	}{
		"uniform":        {[]string{"a", "b", "c", "d"}, []int{1, 1, 1, 1}, 4, 0},
		"skewed":         {[]string{"a", "b", "c"}, []int{100, 10, 1}, 3, 0},
		"partial":        {[]string{"a", "b", "c", "d"}, []int{5, 5, 5, 5}, 2, 0},
		"over-exhausted": {[]string{"a", "b"}, []int{3, 7}, 4, 2},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			w := NewWeightedRandSelector(tc.values, tc.weights)
			allowed := make(map[string]bool, len(tc.values))
			for _, v := range tc.values {
				allowed[v] = true
			}
			picked := make(map[string]bool)
			defaults := 0
			for i := 0; i < tc.picks; i++ {
				v := w.Pick()
				if v == "" {
					defaults++
					continue
				}
				assert.True(t, allowed[v], "picked %q outside the value set", v)
				assert.False(t, picked[v], "picked %q twice", v)
				picked[v] = true
			}
			assert.Equal(t, tc.picks-tc.excess, len(picked))
			assert.Equal(t, tc.excess, defaults)
		})
	}
}

func TestWeightedRandZeroWeightNeverPicked(t *testing.T) {
	w := NewWeightedRandSelector([]string{"on", "off"}, []int{10, 0})
	assert.Equal(t, 1, w.Remaining())
	assert.Equal(t, "on", w.Pick())
	assert.Equal(t, "", w.Pick())
}
