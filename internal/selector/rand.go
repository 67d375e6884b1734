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

import "math/rand/v2"

// WeightedRand picks elements without replacement, each draw weighted
// by the remaining elements' weights. Servers with a higher weight tend
// to be tried earlier without being pinned to a fixed order.
type WeightedRand[T any] struct {
	values  []T
	weights []int
	total   int
}

// NewWeightedRandSelector pairs values with weights. Missing weights
// default to 1, non-positive weights disable their element.
func NewWeightedRandSelector[T any](values []T, weights []int) *WeightedRand[T] {
	w := &WeightedRand[T]{
		values:  append([]T(nil), values...),
		weights: make([]int, len(values)),
	}
	for i := range values {
		weight := 1
		if i < len(weights) {
			weight = weights[i]
		}
		if weight < 0 {
			weight = 0
		}
		w.weights[i] = weight
		w.total += weight
	}
	return w
}

// Pick draws one element and removes it from the pool. Returns the zero
// value of T once the pool is exhausted.
func (w *WeightedRand[T]) Pick() T {
	var zero T
	if w.total <= 0 {
		return zero
	}
	target := rand.IntN(w.total)
	for i, weight := range w.weights {
		if weight == 0 {
			continue
		}
		if target < weight {
			v := w.values[i]
			w.total -= weight
			w.weights[i] = 0
			return v
		}
		target -= weight
	}
	return zero
}

// Remaining reports how many elements can still be picked.
func (w *WeightedRand[T]) Remaining() int {
	n := 0
	for _, weight := range w.weights {
		if weight > 0 {
			n++
		}
	}
	return n
}
