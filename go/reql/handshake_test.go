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
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHandshakeV1Success drives the full state machine against a SCRAM
// verifier that knows the password.
func TestHandshakeV1Success(t *testing.T) {
	h := newHandshake(&ConnParams{Username: "admin", Password: "hunter2", Protocol: ProtocolV1_0})

	opening, err := h.start()
	require.NoError(t, err)
	require.Len(t, opening, 4)
	magic, _, ok := readUint32(opening, 0)
	require.True(t, ok)
	assert.Equal(t, magicV1_0, magic)

	// Server hello.
	out, done, err := h.advance([]byte(testServerHello))
	require.NoError(t, err)
	require.False(t, done)

	var first struct {
		ProtocolVersion      int    `json:"protocol_version"`
		AuthenticationMethod string `json:"authentication_method"`
		Authentication       string `json:"authentication"`
	}
	require.NoError(t, json.Unmarshal(out, &first))
	assert.Equal(t, 0, first.ProtocolVersion)
	assert.Equal(t, "SCRAM-SHA-256", first.AuthenticationMethod)

	// SCRAM challenge.
	scram := newScramServer("hunter2")
	serverFirst, err := scram.handleClientFirst(first.Authentication)
	require.NoError(t, err)
	out, done, err = h.advance([]byte(fmt.Sprintf(`{"success":true,"authentication":%q}`, serverFirst)))
	require.NoError(t, err)
	require.False(t, done)

	var final struct {
		Authentication string `json:"authentication"`
	}
	require.NoError(t, json.Unmarshal(out, &final))
	serverFinal, err := scram.handleClientFinal(final.Authentication)
	require.NoError(t, err, "server rejected the client proof")

	// Server signature.
	out, done, err = h.advance([]byte(fmt.Sprintf(`{"success":true,"authentication":%q}`, serverFinal)))
	require.NoError(t, err)
	assert.True(t, done)
	assert.Nil(t, out)
}

func TestHandshakeV1WrongPassword(t *testing.T) {
	h := newHandshake(&ConnParams{Username: "admin", Password: "wrong", Protocol: ProtocolV1_0})
	_, err := h.start()
	require.NoError(t, err)

	out, _, err := h.advance([]byte(testServerHello))
	require.NoError(t, err)
	var first struct {
		Authentication string `json:"authentication"`
	}
	require.NoError(t, json.Unmarshal(out, &first))

	scram := newScramServer("hunter2")
	serverFirst, err := scram.handleClientFirst(first.Authentication)
	require.NoError(t, err)
	out, _, err = h.advance([]byte(fmt.Sprintf(`{"success":true,"authentication":%q}`, serverFirst)))
	require.NoError(t, err)

	var final struct {
		Authentication string `json:"authentication"`
	}
	require.NoError(t, json.Unmarshal(out, &final))
	_, err = scram.handleClientFinal(final.Authentication)
	require.Error(t, err, "verifier must reject a proof for the wrong password")
}

func TestHandshakeV1Rejection(t *testing.T) {
	h := newHandshake(&ConnParams{Protocol: ProtocolV1_0})
	_, err := h.start()
	require.NoError(t, err)

	_, _, err = h.advance([]byte(`{"success":false,"error":"Incompatible protocol"}`))
	require.Error(t, err)
	assert.Equal(t, ErrHandshake, CodeOf(err))
	assert.Contains(t, err.Error(), "Incompatible protocol")
}

func TestHandshakeV1VersionWindow(t *testing.T) {
	h := newHandshake(&ConnParams{Protocol: ProtocolV1_0})
	_, err := h.start()
	require.NoError(t, err)

	_, _, err = h.advance([]byte(`{"success":true,"min_protocol_version":1,"max_protocol_version":3,"server_version":"9.9"}`))
	require.Error(t, err)
	assert.Equal(t, ErrHandshake, CodeOf(err))
}

func TestHandshakeV1NonJSONReply(t *testing.T) {
	h := newHandshake(&ConnParams{Protocol: ProtocolV1_0})
	_, err := h.start()
	require.NoError(t, err)

	_, _, err = h.advance([]byte("ERROR: this port is for HTTP"))
	require.Error(t, err)
	assert.Equal(t, ErrHandshake, CodeOf(err))
	assert.Contains(t, err.Error(), "ERROR: this port is for HTTP")
}

func TestHandshakeV1AuthRejection(t *testing.T) {
	h := newHandshake(&ConnParams{Protocol: ProtocolV1_0})
	_, err := h.start()
	require.NoError(t, err)
	_, _, err = h.advance([]byte(testServerHello))
	require.NoError(t, err)

	_, _, err = h.advance([]byte(`{"success":false,"error":"Wrong password","error_code":12}`))
	require.Error(t, err)
	assert.Equal(t, ErrAuth, CodeOf(err))
	assert.Contains(t, err.Error(), "Wrong password")
}

func TestHandshakeV0_4(t *testing.T) {
	h := newHandshake(&ConnParams{AuthKey: "hunter2", Protocol: ProtocolV0_4})

	opening, err := h.start()
	require.NoError(t, err)

	// magic | key length | key | wire protocol, all little-endian.
	magic, pos, ok := readUint32(opening, 0)
	require.True(t, ok)
	assert.Equal(t, magicV0_4, magic)
	keyLen, pos, ok := readUint32(opening, pos)
	require.True(t, ok)
	require.EqualValues(t, len("hunter2"), keyLen)
	assert.Equal(t, "hunter2", string(opening[pos:pos+int(keyLen)]))
	proto, pos, ok := readUint32(opening, pos+int(keyLen))
	require.True(t, ok)
	assert.Equal(t, magicProtocolJSON, proto)
	assert.Len(t, opening, pos)

	out, done, err := h.advance([]byte(handshakeSuccessV0_4))
	require.NoError(t, err)
	assert.True(t, done)
	assert.Nil(t, out)
}

func TestHandshakeV0_4Rejection(t *testing.T) {
	h := newHandshake(&ConnParams{Protocol: ProtocolV0_4})
	_, err := h.start()
	require.NoError(t, err)

	_, _, err = h.advance([]byte("ERROR: Incorrect authorization key."))
	require.Error(t, err)
	assert.Equal(t, ErrHandshake, CodeOf(err))
	assert.Contains(t, err.Error(), "Incorrect authorization key")
}

func TestHandshakeDoubleStart(t *testing.T) {
	h := newHandshake(&ConnParams{Protocol: ProtocolV1_0})
	_, err := h.start()
	require.NoError(t, err)
	_, err = h.start()
	require.Error(t, err)
}
