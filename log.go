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

import "go.uber.org/zap"

// log is the package logger. It defaults to a no-op logger; embedding
// applications install their own via SetLogger.
var log = zap.NewNop().Sugar()

// SetLogger replaces the package logger. Passing nil restores the no-op
// logger. Not safe to call concurrently with in-flight resolutions.
func SetLogger(l *zap.Logger) {
	if l == nil {
		log = zap.NewNop().Sugar()
		return
	}
	log = l.Sugar()
}

func logErrIfNotNil(err error) {
	if err == nil {
		return
	}
	log.Error(err)
}
