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

// Package selector provides pick-one-at-a-time strategies over a fixed
// element set, used to choose the next DNS server for an attempt.
package selector

// Sequential picks elements in their original order, each at most once.
type Sequential[T any] struct {
	values []T
	idx    int
}

// NewSequentialSelector wraps values without copying them.
func NewSequentialSelector[T any](values []T) *Sequential[T] {
	return &Sequential[T]{values: values}
}

// Pick returns the next unpicked element, or the zero value of T when
// all elements are spent.
func (s *Sequential[T]) Pick() T {
	var zero T
	if s.idx >= len(s.values) {
		return zero
	}
	v := s.values[s.idx]
	s.idx++
	return v
}

// Remaining reports how many elements are left to pick.
func (s *Sequential[T]) Remaining() int {
	return len(s.values) - s.idx
}
