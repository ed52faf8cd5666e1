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
	"bufio"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"

	"golang.org/x/crypto/pbkdf2"

	"github.com/stretchr/testify/require"
)

// The in-process fake server for connection tests. It speaks just enough
// of the server side of the wire protocol: the V1_0 and V0_4 handshakes
// (including a real SCRAM verifier) and scripted query/response frames.

// scramServer verifies a SCRAM-SHA-256 client against a known password.
type scramServer struct {
	password        string
	serverNonce     string
	salt            []byte
	iterations      int
	clientFirstBare string
	serverFirst     string
}

func newScramServer(password string) *scramServer {
	return &scramServer{
		password:    password,
		serverNonce: "3rfcNHYJY1ZVvWVs7j",
		salt:        []byte("server-salt-0123"),
		iterations:  4096,
	}
}

func (s *scramServer) handleClientFirst(clientFirst string) (string, error) {
	bare, ok := strings.CutPrefix(clientFirst, "n,,")
	if !ok {
		return "", fmt.Errorf("client first message %q has no gs2 header", clientFirst)
	}
	s.clientFirstBare = bare
	attrs, err := parseScramMessage(bare)
	if err != nil {
		return "", err
	}
	s.serverFirst = fmt.Sprintf("r=%s%s,s=%s,i=%d",
		attrs["r"], s.serverNonce, base64.StdEncoding.EncodeToString(s.salt), s.iterations)
	return s.serverFirst, nil
}

func (s *scramServer) handleClientFinal(clientFinal string) (string, error) {
	idx := strings.LastIndex(clientFinal, ",p=")
	if idx < 0 {
		return "", fmt.Errorf("client final message %q has no proof", clientFinal)
	}
	withoutProof := clientFinal[:idx]
	proof, err := base64.StdEncoding.DecodeString(clientFinal[idx+3:])
	if err != nil {
		return "", fmt.Errorf("invalid proof base64: %v", err)
	}

	authMessage := s.clientFirstBare + "," + s.serverFirst + "," + withoutProof
	saltedPassword := pbkdf2.Key([]byte(s.password), s.salt, s.iterations, sha256.Size, sha256.New)
	clientKey := hmacSHA256(saltedPassword, "Client Key")
	storedKey := sha256.Sum256(clientKey)
	clientSignature := hmacSHA256(storedKey[:], authMessage)

	expected := make([]byte, len(clientKey))
	for i := range clientKey {
		expected[i] = clientKey[i] ^ clientSignature[i]
	}
	if string(proof) != string(expected) {
		return "", fmt.Errorf("invalid client proof")
	}

	serverKey := hmacSHA256(saltedPassword, "Server Key")
	return "v=" + base64.StdEncoding.EncodeToString(hmacSHA256(serverKey, authMessage)), nil
}

// serverConn wraps the server end of one accepted connection.
type serverConn struct {
	t    *testing.T
	conn net.Conn
	br   *bufio.Reader
}

func (sc *serverConn) readMagic() uint32 {
	var buf [4]byte
	_, err := io.ReadFull(sc.br, buf[:])
	require.NoError(sc.t, err)
	return binary.LittleEndian.Uint32(buf[:])
}

// readMsg reads one zero-terminated handshake message.
func (sc *serverConn) readMsg() string {
	msg, err := sc.br.ReadString(0)
	require.NoError(sc.t, err)
	return strings.TrimSuffix(msg, "\x00")
}

// writeMsg writes one zero-terminated handshake message.
func (sc *serverConn) writeMsg(msg string) {
	_, err := sc.conn.Write(append([]byte(msg), 0))
	require.NoError(sc.t, err)
}

const testServerHello = `{"success":true,"min_protocol_version":0,"max_protocol_version":0,"server_version":"2.4.4"}`

// handshakeV1 runs the server side of the SCRAM handshake.
func (sc *serverConn) handshakeV1(password string) {
	require.Equal(sc.t, magicV1_0, sc.readMagic())
	sc.writeMsg(testServerHello)

	var first struct {
		ProtocolVersion      int    `json:"protocol_version"`
		AuthenticationMethod string `json:"authentication_method"`
		Authentication       string `json:"authentication"`
	}
	require.NoError(sc.t, json.Unmarshal([]byte(sc.readMsg()), &first))
	require.Equal(sc.t, "SCRAM-SHA-256", first.AuthenticationMethod)

	scram := newScramServer(password)
	serverFirst, err := scram.handleClientFirst(first.Authentication)
	require.NoError(sc.t, err)
	sc.writeMsg(fmt.Sprintf(`{"success":true,"authentication":%q}`, serverFirst))

	var final struct {
		Authentication string `json:"authentication"`
	}
	require.NoError(sc.t, json.Unmarshal([]byte(sc.readMsg()), &final))
	serverFinal, err := scram.handleClientFinal(final.Authentication)
	if err != nil {
		sc.writeMsg(fmt.Sprintf(`{"success":false,"error":%q,"error_code":12}`, err.Error()))
		sc.t.Errorf("scram verification failed: %v", err)
		return
	}
	sc.writeMsg(fmt.Sprintf(`{"success":true,"authentication":%q}`, serverFinal))
}

// handshakeV0_4 runs the server side of the legacy handshake.
func (sc *serverConn) handshakeV0_4(wantKey string) {
	require.Equal(sc.t, magicV0_4, sc.readMagic())

	var lenBuf [4]byte
	_, err := io.ReadFull(sc.br, lenBuf[:])
	require.NoError(sc.t, err)
	key := make([]byte, binary.LittleEndian.Uint32(lenBuf[:]))
	_, err = io.ReadFull(sc.br, key)
	require.NoError(sc.t, err)
	require.Equal(sc.t, wantKey, string(key))

	require.Equal(sc.t, magicProtocolJSON, sc.readMagic())
	sc.writeMsg(handshakeSuccessV0_4)
}

// readQuery reads one query frame.
func (sc *serverConn) readQuery() (uint64, []byte) {
	header := make([]byte, frameHeaderSize)
	_, err := io.ReadFull(sc.br, header)
	require.NoError(sc.t, err)
	token, length, ok := parseFrameHeader(header)
	require.True(sc.t, ok)
	payload := make([]byte, length)
	_, err = io.ReadFull(sc.br, payload)
	require.NoError(sc.t, err)
	return token, payload
}

// reply sends one response frame.
func (sc *serverConn) reply(token uint64, payload string) {
	_, err := sc.conn.Write(encodeFrame(token, []byte(payload)))
	require.NoError(sc.t, err)
}

func (sc *serverConn) close() {
	_ = sc.conn.Close()
}

// testServer accepts exactly one connection and hands it to the given
// handler on its own goroutine. The connection stays open after the
// handler returns, until the test ends: tests that want a disconnect close
// it explicitly.
type testServer struct {
	t        *testing.T
	listener net.Listener
	done     chan struct{}
	wg       sync.WaitGroup
}

// newRawTestServer leaves the handshake to the handler.
func newRawTestServer(t *testing.T, handler func(sc *serverConn)) *testServer {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ts := &testServer{t: t, listener: listener, done: make(chan struct{})}
	ts.wg.Add(1)
	go func() {
		defer ts.wg.Done()
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handler(&serverConn{t: t, conn: conn, br: bufio.NewReader(conn)})
		<-ts.done
	}()

	t.Cleanup(func() {
		close(ts.done)
		listener.Close()
		ts.wg.Wait()
	})
	return ts
}

// newTestServer performs the V1_0 handshake with an empty password, then
// hands the connection to serve.
func newTestServer(t *testing.T, serve func(sc *serverConn)) *testServer {
	return newRawTestServer(t, func(sc *serverConn) {
		sc.handshakeV1("")
		if serve != nil {
			serve(sc)
		}
	})
}

// params returns ConnParams pointing at the fake server.
func (ts *testServer) params() *ConnParams {
	addr := ts.listener.Addr().(*net.TCPAddr)
	return &ConnParams{Host: "127.0.0.1", Port: addr.Port}
}
