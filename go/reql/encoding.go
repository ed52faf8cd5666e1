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
	"encoding/binary"
)

// This file contains the data encoding and decoding functions.
//
// The same assumptions are made for all the encoding functions:
// - there is enough space to write the data in the buffer. If not, we
// will panic with out of bounds.
// - all functions start writing at 'pos' in the buffer, and return the next
// position.

func writeUint32(data []byte, pos int, value uint32) int {
	binary.LittleEndian.PutUint32(data[pos:], value)
	return pos + 4
}

func writeUint64(data []byte, pos int, value uint64) int {
	binary.LittleEndian.PutUint64(data[pos:], value)
	return pos + 8
}

func writeEOFString(data []byte, pos int, value string) int {
	pos += copy(data[pos:], value)
	return pos
}

func readUint32(data []byte, pos int) (uint32, int, bool) {
	if pos+4 > len(data) {
		return 0, 0, false
	}
	return binary.LittleEndian.Uint32(data[pos:]), pos + 4, true
}

func readUint64(data []byte, pos int) (uint64, int, bool) {
	if pos+8 > len(data) {
		return 0, 0, false
	}
	return binary.LittleEndian.Uint64(data[pos:]), pos + 8, true
}

// encodeFrame builds a complete query frame: token, payload length, payload.
func encodeFrame(token uint64, payload []byte) []byte {
	data := make([]byte, frameHeaderSize+len(payload))
	pos := writeUint64(data, 0, token)
	pos = writeUint32(data, pos, uint32(len(payload)))
	copy(data[pos:], payload)
	return data
}

// parseFrameHeader splits the fixed 12-byte response prefix into the token
// and the payload length.
func parseFrameHeader(header []byte) (token uint64, length uint32, ok bool) {
	token, pos, ok := readUint64(header, 0)
	if !ok {
		return 0, 0, false
	}
	length, _, ok = readUint32(header, pos)
	if !ok {
		return 0, 0, false
	}
	return token, length, true
}
