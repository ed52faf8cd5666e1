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
	"context"
	"net"
	"strconv"
	"time"
)

// Connect dials the server and runs the handshake. On success the read
// loop is running and the connection accepts queries. ctx bounds dialing
// and the handshake only; it does not cancel the established connection.
func Connect(ctx context.Context, params *ConnParams) (*Conn, error) {
	cp := ConnParams{}
	if params != nil {
		cp = *params
	}
	cp.normalize()

	var dialer net.Dialer
	netConn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(cp.Host, strconv.Itoa(cp.Port)))
	if err != nil {
		return nil, wrapError(ErrConnect, err)
	}

	c := newConn(netConn)
	if err := c.runHandshake(ctx, &cp); err != nil {
		c.closeSocket()
		c.mu.Lock()
		c.state = StateErrored
		c.connErr = err
		c.mu.Unlock()
		return nil, err
	}

	c.mu.Lock()
	c.state = StateConnected
	c.mu.Unlock()
	go c.readLoop()
	return c, nil
}

// ConnectURL is Connect for a rethinkdb:// connection URL.
func ConnectURL(ctx context.Context, rawURL string) (*Conn, error) {
	params, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	return Connect(ctx, params)
}

// runHandshake drives the handshake state machine over the socket: write
// the opening bytes, then alternate zero-terminated server messages with
// the machine's replies until it reports completion.
func (c *Conn) runHandshake(ctx context.Context, params *ConnParams) error {
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.netConn.SetDeadline(deadline); err != nil {
			return wrapError(ErrIO, err)
		}
		defer func() {
			_ = c.netConn.SetDeadline(time.Time{})
		}()
	}

	h := newHandshake(params)
	opening, err := h.start()
	if err != nil {
		return err
	}
	if err := c.writeHandshakeMessage(opening, false); err != nil {
		return wrapError(ErrIO, err)
	}

	for {
		msg, err := c.readZeroTerminated()
		if err != nil {
			return wrapError(ErrIO, err)
		}
		out, done, err := h.advance(msg)
		if err != nil {
			return err
		}
		if out != nil {
			if err := c.writeHandshakeMessage(out, true); err != nil {
				return wrapError(ErrIO, err)
			}
		}
		if done {
			return nil
		}
	}
}

// writeHandshakeMessage writes one handshake message, appending the 0x00
// terminator for the JSON messages of the V1_0 exchange.
func (c *Conn) writeHandshakeMessage(data []byte, zeroTerminate bool) error {
	if _, err := c.writer.Write(data); err != nil {
		return err
	}
	if zeroTerminate {
		if _, err := c.writer.Write([]byte{0}); err != nil {
			return err
		}
	}
	return c.writer.Flush()
}

// readZeroTerminated reads up to and including the next 0x00 byte and
// returns everything before it. It keeps reading until the terminator
// shows up, however many reads that takes.
func (c *Conn) readZeroTerminated() ([]byte, error) {
	var msg []byte
	for {
		b, err := c.bufferedReader.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == 0 {
			return msg, nil
		}
		msg = append(msg, b)
		if len(msg) > maxHandshakeMessageSize {
			return nil, NewError(ErrProtocol, "handshake message exceeds %d bytes with no terminator", maxHandshakeMessageSize)
		}
	}
}
