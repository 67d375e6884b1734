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

	ot "github.com/opentracing/opentracing-go"
)

// withChildSpan starts a child span of any span found in ctx and tags it
// with the operation name and hostname. Returns the (possibly unchanged)
// context and a finish func; both are no-ops when no parent span exists.
func withChildSpan(ctx context.Context, operation, hostname string) (context.Context, func()) {
	span := ot.SpanFromContext(ctx)
	if span == nil {
		return ctx, func() {}
	}
	childSpan := span.Tracer().StartSpan(operation, ot.ChildOf(span.Context()))
	childSpan.SetTag("hostname", hostname)
	return ot.ContextWithSpan(ctx, childSpan), childSpan.Finish
}
