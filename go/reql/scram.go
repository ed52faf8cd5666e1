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
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// SCRAM-SHA-256 client side, RFC 5802 with the SHA-256 parameters of
// RFC 7677. The server proves knowledge of the salted password through the
// v= signature in its final message; a mismatch there fails the handshake
// even if the server accepted the client proof.

const scramNonceLen = 18

// gs2Header says: no channel binding, no authzid.
const gs2Header = "n,,"

// scramClient holds the per-handshake SCRAM state. It is created when the
// client first message is built and discarded when the handshake finishes.
type scramClient struct {
	username    string
	password    string
	clientNonce string

	clientFirstBare string
	serverSignature []byte
}

func newScramClient(username, password string) (*scramClient, error) {
	nonce := make([]byte, scramNonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating client nonce: %w", err)
	}
	return newScramClientWithNonce(username, password, base64.StdEncoding.EncodeToString(nonce)), nil
}

// newScramClientWithNonce exists so tests can drive the RFC vectors with a
// fixed nonce.
func newScramClientWithNonce(username, password, nonce string) *scramClient {
	return &scramClient{
		username:    username,
		password:    password,
		clientNonce: nonce,
	}
}

// clientFirstMessage returns the full client first message, including the
// GS2 header.
func (s *scramClient) clientFirstMessage() string {
	s.clientFirstBare = "n=" + saslnameEscape(s.username) + ",r=" + s.clientNonce
	return gs2Header + s.clientFirstBare
}

// handleServerFirst consumes the server first message and returns the
// client final message carrying the proof.
func (s *scramClient) handleServerFirst(serverFirst string) (string, error) {
	attrs, err := parseScramMessage(serverFirst)
	if err != nil {
		return "", err
	}

	combinedNonce, ok := attrs["r"]
	if !ok {
		return "", fmt.Errorf("server first message has no nonce")
	}
	// The combined nonce must extend ours, or someone is splicing
	// messages between two handshakes.
	if !strings.HasPrefix(combinedNonce, s.clientNonce) || combinedNonce == s.clientNonce {
		return "", fmt.Errorf("server nonce does not extend client nonce")
	}

	saltB64, ok := attrs["s"]
	if !ok {
		return "", fmt.Errorf("server first message has no salt")
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return "", fmt.Errorf("invalid salt: %v", err)
	}

	iterStr, ok := attrs["i"]
	if !ok {
		return "", fmt.Errorf("server first message has no iteration count")
	}
	iterations, err := strconv.Atoi(iterStr)
	if err != nil || iterations < 1 {
		return "", fmt.Errorf("invalid iteration count %q", iterStr)
	}

	saltedPassword := pbkdf2.Key([]byte(s.password), salt, iterations, sha256.Size, sha256.New)
	clientKey := hmacSHA256(saltedPassword, "Client Key")
	storedKey := sha256.Sum256(clientKey)

	withoutProof := "c=" + base64.StdEncoding.EncodeToString([]byte(gs2Header)) + ",r=" + combinedNonce
	authMessage := s.clientFirstBare + "," + serverFirst + "," + withoutProof

	clientSignature := hmacSHA256(storedKey[:], authMessage)
	proof := make([]byte, len(clientKey))
	for i := range clientKey {
		proof[i] = clientKey[i] ^ clientSignature[i]
	}

	serverKey := hmacSHA256(saltedPassword, "Server Key")
	s.serverSignature = hmacSHA256(serverKey, authMessage)

	return withoutProof + ",p=" + base64.StdEncoding.EncodeToString(proof), nil
}

// handleServerFinal verifies the server signature in the server final
// message.
func (s *scramClient) handleServerFinal(serverFinal string) error {
	attrs, err := parseScramMessage(serverFinal)
	if err != nil {
		return err
	}
	if e, ok := attrs["e"]; ok {
		return fmt.Errorf("server rejected authentication: %s", e)
	}
	vB64, ok := attrs["v"]
	if !ok {
		return fmt.Errorf("server final message has no signature")
	}
	signature, err := base64.StdEncoding.DecodeString(vB64)
	if err != nil {
		return fmt.Errorf("invalid server signature: %v", err)
	}
	if !hmac.Equal(signature, s.serverSignature) {
		return fmt.Errorf("server signature mismatch")
	}
	return nil
}

func hmacSHA256(key []byte, message string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return mac.Sum(nil)
}

// parseScramMessage splits "k1=v1,k2=v2" into a map. Values may themselves
// contain '=' (base64), so only the first '=' of each pair separates.
func parseScramMessage(msg string) (map[string]string, error) {
	attrs := make(map[string]string)
	for _, part := range strings.Split(msg, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok || len(k) != 1 {
			return nil, fmt.Errorf("malformed SCRAM attribute %q", part)
		}
		attrs[k] = v
	}
	return attrs, nil
}

// saslnameEscape encodes '=' and ',' in a username per RFC 5802.
func saslnameEscape(name string) string {
	name = strings.ReplaceAll(name, "=", "=3D")
	return strings.ReplaceAll(name, ",", "=2C")
}
