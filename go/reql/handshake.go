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
)

// The handshake is an explicit state machine so it can be driven and tested
// without a socket. start() produces the bytes that open the exchange;
// every server message then goes through advance(), which returns the next
// message to send (zero-terminated by the caller for V1_0) until done.
//
// V0_4:  sentMagic -> authenticated
// V1_0:  sentMagic -> sentClientFirst -> sentClientFinal -> authenticated

type handshakeState int

const (
	handshakeInit handshakeState = iota
	handshakeSentMagic
	handshakeSentClientFirst
	handshakeSentClientFinal
	handshakeAuthenticated
)

// clientProtocolVersion is the sub-protocol version the client requests in
// its first V1_0 auth message. The server's advertised window must contain
// it.
const clientProtocolVersion = 0

type handshake struct {
	params *ConnParams
	state  handshakeState
	scram  *scramClient
}

func newHandshake(params *ConnParams) *handshake {
	return &handshake{params: params}
}

// start returns the raw bytes that open the handshake. They are written to
// the socket as-is.
func (h *handshake) start() ([]byte, error) {
	if h.state != handshakeInit {
		return nil, NewError(ErrHandshake, "handshake already started")
	}
	h.state = handshakeSentMagic

	if h.params.Protocol == ProtocolV0_4 {
		// magic | key length | key | wire protocol
		key := h.params.AuthKey
		data := make([]byte, 4+4+len(key)+4)
		pos := writeUint32(data, 0, magicV0_4)
		pos = writeUint32(data, pos, uint32(len(key)))
		pos = writeEOFString(data, pos, key)
		writeUint32(data, pos, magicProtocolJSON)
		return data, nil
	}

	data := make([]byte, 4)
	writeUint32(data, 0, magicV1_0)
	return data, nil
}

// advance consumes one zero-terminated server message (without the
// terminator) and returns the next client message, if any, and whether the
// handshake completed.
func (h *handshake) advance(msg []byte) (out []byte, done bool, err error) {
	if h.params.Protocol == ProtocolV0_4 {
		return h.advanceV0_4(msg)
	}
	switch h.state {
	case handshakeSentMagic:
		out, err = h.handleHello(msg)
		if err != nil {
			return nil, false, err
		}
		h.state = handshakeSentClientFirst
		return out, false, nil
	case handshakeSentClientFirst:
		out, err = h.handleServerFirst(msg)
		if err != nil {
			return nil, false, err
		}
		h.state = handshakeSentClientFinal
		return out, false, nil
	case handshakeSentClientFinal:
		if err := h.handleServerFinal(msg); err != nil {
			return nil, false, err
		}
		h.state = handshakeAuthenticated
		return nil, true, nil
	}
	return nil, false, NewError(ErrHandshake, "handshake advanced in state %d", h.state)
}

func (h *handshake) advanceV0_4(msg []byte) ([]byte, bool, error) {
	if h.state != handshakeSentMagic {
		return nil, false, NewError(ErrHandshake, "handshake advanced in state %d", h.state)
	}
	if string(msg) != handshakeSuccessV0_4 {
		return nil, false, NewError(ErrHandshake, "%s", string(msg))
	}
	h.state = handshakeAuthenticated
	return nil, true, nil
}

// handshakeReply is the JSON shape of every V1_0 server message.
type handshakeReply struct {
	Success            *bool  `json:"success"`
	MinProtocolVersion *int64 `json:"min_protocol_version"`
	MaxProtocolVersion *int64 `json:"max_protocol_version"`
	ServerVersion      string `json:"server_version"`
	Authentication     string `json:"authentication"`
	Error              string `json:"error"`
	ErrorCode          int64  `json:"error_code"`
}

// parseReply decodes a server handshake message. A reply that is not JSON
// at all is the server's way of reporting a hard error as a raw string.
func parseReply(msg []byte) (*handshakeReply, *Error) {
	var reply handshakeReply
	if err := json.Unmarshal(msg, &reply); err != nil {
		return nil, NewError(ErrHandshake, "%s", string(msg))
	}
	return &reply, nil
}

// handleHello checks the server's first message (version window and server
// version) and produces the client-first auth message.
func (h *handshake) handleHello(msg []byte) ([]byte, error) {
	reply, perr := parseReply(msg)
	if perr != nil {
		return nil, perr
	}
	if reply.Success == nil || !*reply.Success {
		if reply.Error != "" {
			return nil, NewError(ErrHandshake, "%s", reply.Error)
		}
		return nil, NewError(ErrHandshake, "server rejected the protocol version")
	}
	if reply.MinProtocolVersion != nil && reply.MaxProtocolVersion != nil {
		if clientProtocolVersion < *reply.MinProtocolVersion || clientProtocolVersion > *reply.MaxProtocolVersion {
			return nil, NewError(ErrHandshake, "unsupported protocol version %d, expected between %d and %d",
				clientProtocolVersion, *reply.MinProtocolVersion, *reply.MaxProtocolVersion)
		}
	}

	if h.scram == nil {
		scram, err := newScramClient(h.params.Username, h.params.Password)
		if err != nil {
			return nil, NewError(ErrAuth, "%v", err)
		}
		h.scram = scram
	}
	return json.Marshal(struct {
		ProtocolVersion      int    `json:"protocol_version"`
		AuthenticationMethod string `json:"authentication_method"`
		Authentication       string `json:"authentication"`
	}{
		ProtocolVersion:      clientProtocolVersion,
		AuthenticationMethod: "SCRAM-SHA-256",
		Authentication:       h.scram.clientFirstMessage(),
	})
}

// handleServerFirst runs the SCRAM challenge and produces the client-final
// message with the proof.
func (h *handshake) handleServerFirst(msg []byte) ([]byte, error) {
	reply, perr := parseReply(msg)
	if perr != nil {
		return nil, perr
	}
	if reply.Success == nil || !*reply.Success {
		return nil, authRejection(reply)
	}
	clientFinal, err := h.scram.handleServerFirst(reply.Authentication)
	if err != nil {
		return nil, NewError(ErrAuth, "%v", err)
	}
	return json.Marshal(struct {
		Authentication string `json:"authentication"`
	}{Authentication: clientFinal})
}

// handleServerFinal verifies the server signature.
func (h *handshake) handleServerFinal(msg []byte) error {
	reply, perr := parseReply(msg)
	if perr != nil {
		return perr
	}
	if reply.Success == nil || !*reply.Success {
		return authRejection(reply)
	}
	if err := h.scram.handleServerFinal(reply.Authentication); err != nil {
		return NewError(ErrAuth, "%v", err)
	}
	return nil
}

func authRejection(reply *handshakeReply) *Error {
	if reply.Error != "" {
		return NewError(ErrAuth, "%s", reply.Error)
	}
	return NewError(ErrAuth, "server rejected authentication")
}
