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

// This file contains the wire protocol constants: handshake magics, frame
// geometry, and the query / response type codes.

const (
	// connBufferSize is the size of the read buffer sitting between the
	// socket and the frame parser.
	connBufferSize = 8192

	// frameHeaderSize is the fixed prefix of every query and response
	// frame: an 8-byte token followed by a 4-byte payload length, both
	// little-endian.
	frameHeaderSize = 12

	// maxFrameSize caps the advertised payload length of a response
	// frame. Anything bigger is treated as a corrupt stream.
	maxFrameSize = 64 << 20

	// maxHandshakeMessageSize caps a single zero-terminated handshake
	// message. Guards against a stream that never produces the
	// terminator.
	maxHandshakeMessageSize = 1 << 20
)

// Handshake magic numbers, sent little-endian as the first four bytes on the
// wire.
const (
	// magicV0_4 starts the legacy auth-key handshake.
	magicV0_4 uint32 = 0x400C2D20

	// magicV1_0 starts the SCRAM-SHA-256 handshake.
	magicV1_0 uint32 = 0x34C2BDC3

	// magicProtocolJSON selects the JSON term protocol in the V0_4
	// handshake.
	magicProtocolJSON uint32 = 0x7E6970C7
)

// handshakeSuccessV0_4 is the literal zero-terminated reply a V0_4 server
// sends on success.
const handshakeSuccessV0_4 = "SUCCESS"

// Query type codes. A query payload is a JSON array whose first element is
// one of these.
const (
	// QueryStart begins evaluation of a new term.
	QueryStart = 1
	// QueryContinue requests the next batch of a partial sequence.
	QueryContinue = 2
	// QueryStop aborts a partial sequence.
	QueryStop = 3
	// QueryNoreplyWait waits for all previous noreply writes to settle.
	QueryNoreplyWait = 4
	// QueryServerInfo asks the server to describe itself.
	QueryServerInfo = 5
)

// Response type codes, the "t" field of a response envelope.
const (
	responseSuccessAtom     = 1
	responseSuccessSequence = 2
	responseSuccessPartial  = 3
	responseWaitComplete    = 4
	responseServerInfo      = 5
	responseClientError     = 16
	responseCompileError    = 17
	responseRuntimeError    = 18
)

// Response note codes, the "n" field of a response envelope. Feed notes mark
// a partial sequence that never terminates on its own.
const (
	NoteSequenceFeed     = 1
	NoteAtomFeed         = 2
	NoteOrderByLimitFeed = 3
	NoteUnittestFeed     = 4
	NoteIncludesStates   = 5
)

// ConnState is the lifecycle state of a Conn.
type ConnState int32

const (
	// StateUnconnected is a Conn that has not dialed yet.
	StateUnconnected ConnState = iota
	// StateHandshake is a dialed Conn still negotiating.
	StateHandshake
	// StateConnected is an authenticated Conn with a running read loop.
	StateConnected
	// StateErrored is a Conn poisoned by a transport or protocol error.
	// Non-recoverable.
	StateErrored
	// StateTerminated is a Conn shut down by Close.
	StateTerminated
)

func (s ConnState) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateHandshake:
		return "handshake"
	case StateConnected:
		return "connected"
	case StateErrored:
		return "errored"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}
