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

// Package reql implements the client side of the RethinkDB wire protocol:
// a binary, length-prefixed framing with JSON payloads, multiplexing many
// concurrent queries over one TCP connection by 64-bit tokens.
//
// Connect dials and authenticates (SCRAM-SHA-256 by default, the legacy
// auth-key handshake on request) and returns a Conn whose read loop
// demultiplexes server responses back to per-query waiters. Queries are
// started with an opaque serialized term payload; streamed result sets
// come back batch by batch through cursor continuations.
//
// The package is the connection engine only. It does not build query
// terms, pool connections, or retry anything.
package reql
