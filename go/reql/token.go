/*
Copyright 2026 The ReQL Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package reql

import (
	"math"
	"sync/atomic"
)

// tokenSeed is where the process-wide token counter starts. Uniqueness is
// only required per connection, but a process-global counter is a stronger
// guarantee and makes tokens recognizable in server logs.
const tokenSeed uint64 = 0x5ADFACE

var tokenCounter atomic.Uint64

func init() {
	tokenCounter.Store(tokenSeed)
}

// nextToken returns a query token that is unique for the lifetime of the
// process, across all connections and goroutines.
func nextToken() uint64 {
	token := tokenCounter.Add(1) - 1
	if token == math.MaxUint64 {
		// 2^64 - 0x5ADFACE allocations. Not reachable; if it ever is,
		// reusing tokens would silently cross-deliver responses.
		panic("reql: query token counter wrapped")
	}
	return token
}
