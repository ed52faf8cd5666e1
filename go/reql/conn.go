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
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"reql.io/reql/go/log"
)

// Conn is one authenticated connection to the server. Many queries
// multiplex over it concurrently, told apart by their 64-bit tokens.
//
// Two parties touch the socket: the read loop goroutine, the only reader,
// and callers writing frames under the lane mutex. Every write and every
// in-flight-map mutation is serialized through that mutex, so frames never
// interleave and a waiter is always registered strictly after its query's
// bytes were handed to the OS.
type Conn struct {
	netConn        net.Conn
	bufferedReader *bufio.Reader
	writer         *pooledWriter

	// headerBuf backs response frame headers. Only the read loop
	// touches it.
	headerBuf [frameHeaderSize]byte

	// mu is the serialization lane.
	mu      sync.Mutex
	state   ConnState
	connErr error
	pending map[uint64]Waiter

	closeOnce sync.Once
}

// pendingDelivery is a waiter pulled out of the in-flight map during a
// drain, delivered after the lane is released.
type pendingDelivery struct {
	token  uint64
	waiter Waiter
}

func newConn(netConn net.Conn) *Conn {
	return &Conn{
		netConn:        netConn,
		bufferedReader: bufio.NewReaderSize(netConn, connBufferSize),
		writer:         newPooledWriter(netConn),
		state:          StateHandshake,
		pending:        make(map[uint64]Waiter),
	}
}

// Prebuilt payloads for the queries that carry no term.
var (
	queryContinuePayload    = []byte("[2]")
	queryStopPayload        = []byte("[3]")
	queryNoreplyWaitPayload = []byte("[4]")
	queryServerInfoPayload  = []byte("[5]")
)

// StartQuery sends a START frame carrying the serialized query payload (a
// JSON array, [1, term, options]) under a freshly allocated token. On
// success the waiter is guaranteed exactly one terminal delivery, possibly
// preceded by partial deliveries when the result streams.
func (c *Conn) StartQuery(payload []byte, w Waiter) (uint64, error) {
	token := nextToken()
	if err := c.sendFrame(token, payload, w, false); err != nil {
		return 0, err
	}
	return token, nil
}

// ContinueQuery sends a CONTINUE frame for a token with a partial sequence
// outstanding, re-arming it with a new waiter. Callers normally go through
// the Continuation handle instead.
func (c *Conn) ContinueQuery(token uint64, w Waiter) error {
	return c.sendFrame(token, queryContinuePayload, w, true)
}

// StopQuery sends a STOP frame. The server answers with one terminal
// response, which frees the token and fires whatever waiter is armed.
func (c *Conn) StopQuery(token uint64) error {
	return c.sendFrame(token, queryStopPayload, nil, false)
}

// NoreplyWait asks the server to settle all previous noreply writes. The
// waiter fires once the server has caught up.
func (c *Conn) NoreplyWait(w Waiter) (uint64, error) {
	token := nextToken()
	if err := c.sendFrame(token, queryNoreplyWaitPayload, w, false); err != nil {
		return 0, err
	}
	return token, nil
}

// ServerInfo asks the server to describe itself. The waiter receives a
// single atom.
func (c *Conn) ServerInfo(w Waiter) (uint64, error) {
	token := nextToken()
	if err := c.sendFrame(token, queryServerInfoPayload, w, false); err != nil {
		return 0, err
	}
	return token, nil
}

// sendFrame pushes one query frame through the lane. With replace set, the
// token must already be in flight (a cursor continuation) and w supplants
// the previous waiter; otherwise w, if non-nil, is registered fresh. In
// both cases registration happens strictly after the write succeeded.
func (c *Conn) sendFrame(token uint64, payload []byte, w Waiter, replace bool) error {
	c.mu.Lock()
	if c.state != StateConnected {
		err := c.notConnectedLocked()
		c.mu.Unlock()
		return err
	}
	if replace {
		if _, ok := c.pending[token]; !ok {
			c.mu.Unlock()
			return NewError(ErrContinuationMisuse, "no query in flight for token %d", token)
		}
	}
	if err := c.writeFrame(token, payload); err != nil {
		// A write failure poisons the whole connection. This query's
		// waiter was never registered, so the caller hears about it
		// through the return value; everyone else gets drained.
		deliveries := c.fatalLocked(wrapError(ErrIO, err))
		c.mu.Unlock()
		c.deliverDisconnects(deliveries)
		return NewError(ErrIO, "write failed: %v", err)
	}
	if w != nil {
		c.pending[token] = w
	}
	c.mu.Unlock()
	return nil
}

// writeFrame appends one frame to the socket. Callers hold the lane.
func (c *Conn) writeFrame(token uint64, payload []byte) error {
	if _, err := c.writer.Write(encodeFrame(token, payload)); err != nil {
		return err
	}
	return c.writer.Flush()
}

// readFrame blocks for the next response frame. Only the read loop calls
// it.
func (c *Conn) readFrame() (uint64, []byte, error) {
	if _, err := io.ReadFull(c.bufferedReader, c.headerBuf[:]); err != nil {
		return 0, nil, err
	}
	token, length, _ := parseFrameHeader(c.headerBuf[:])
	if length > maxFrameSize {
		return 0, nil, fmt.Errorf("response payload of %d bytes exceeds the %d byte limit", length, maxFrameSize)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(c.bufferedReader, payload); err != nil {
		return 0, nil, err
	}
	return token, payload, nil
}

// readLoop demultiplexes responses back to their waiters until the
// connection dies. It is the socket's only reader.
func (c *Conn) readLoop() {
	for {
		token, payload, err := c.readFrame()
		if err != nil {
			c.fatal(wrapError(ErrIO, err))
			return
		}
		resp, derr := decodeResponse(c, token, payload)
		if derr != nil {
			c.fatal(NewError(ErrProtocol, "invalid response for token %d: %v", token, derr))
			return
		}

		c.mu.Lock()
		w, ok := c.pending[token]
		if ok && resp.Terminal() {
			// The token is freed before the waiter runs, so a
			// waiter restarting the query can never collide with
			// its own stale entry.
			delete(c.pending, token)
		}
		c.mu.Unlock()

		if !ok {
			// The server may still answer a query we already
			// stopped. Never fatal.
			log.V(2).Infof("reql: discarding response for unknown token %d", token)
			continue
		}
		w(resp)
	}
}

// fatal poisons the connection and drains every in-flight waiter with a
// disconnect error, unless a Close or an earlier fatal already settled
// things.
func (c *Conn) fatal(err error) {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	deliveries := c.fatalLocked(err)
	c.mu.Unlock()
	c.deliverDisconnects(deliveries)
}

// fatalLocked transitions to Errored, empties the in-flight map and closes
// the socket. Callers hold the lane and deliver the returned waiters after
// releasing it.
func (c *Conn) fatalLocked(err error) []pendingDelivery {
	c.state = StateErrored
	c.connErr = err
	deliveries := c.takePendingLocked()
	c.closeSocket()
	return deliveries
}

func (c *Conn) takePendingLocked() []pendingDelivery {
	deliveries := make([]pendingDelivery, 0, len(c.pending))
	for token, w := range c.pending {
		deliveries = append(deliveries, pendingDelivery{token: token, waiter: w})
	}
	clear(c.pending)
	return deliveries
}

// deliverDisconnects fires each drained waiter once with a terminal
// disconnect error. No waiter is ever abandoned.
func (c *Conn) deliverDisconnects(deliveries []pendingDelivery) {
	for _, d := range deliveries {
		d.waiter(&Response{
			Token: d.token,
			Kind:  KindError,
			Err:   NewError(ErrIO, "disconnected"),
		})
	}
}

// Close shuts the connection down. In-flight waiters are drained with a
// disconnect error. Idempotent; all later operations fail with a
// not-connected error.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.state == StateTerminated {
		c.mu.Unlock()
		return
	}
	c.state = StateTerminated
	deliveries := c.takePendingLocked()
	c.closeSocket()
	c.mu.Unlock()
	c.deliverDisconnects(deliveries)
}

func (c *Conn) closeSocket() {
	c.closeOnce.Do(func() {
		if err := c.netConn.Close(); err != nil {
			log.V(2).Infof("reql: closing socket: %v", err)
		}
	})
}

func (c *Conn) notConnectedLocked() *Error {
	if c.state == StateErrored && c.connErr != nil {
		return NewError(ErrNotConnected, "connection is errored: %v", c.connErr)
	}
	return NewError(ErrNotConnected, "connection is %v", c.state)
}

// IsConnected reports whether queries can be started.
func (c *Conn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected
}

// State returns the connection lifecycle state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnError returns the error that poisoned the connection, nil while it
// is healthy or after a clean Close.
func (c *Conn) ConnError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connErr
}

// RemoteAddr returns the server address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.netConn.RemoteAddr()
}

// RunQuery is the synchronous convenience wrapper around StartQuery: it
// sends the payload and blocks for the first response. A per-query server
// error comes back as the error. A streamed result comes back as a Rows
// response whose continuation is still armed; wrap it in a Cursor to walk
// the rest.
func (c *Conn) RunQuery(ctx context.Context, payload []byte) (*Response, error) {
	ch := make(chan *Response, 1)
	token, err := c.StartQuery(payload, func(r *Response) { ch <- r })
	if err != nil {
		return nil, err
	}
	select {
	case resp := <-ch:
		if resp.Kind == KindError {
			return nil, resp.Err
		}
		return resp, nil
	case <-ctx.Done():
		// Tell the server to drop the query. Its terminal reply
		// consumes the waiter, whose delivery lands in the buffered
		// channel and gets collected.
		_ = c.StopQuery(token)
		return nil, ctx.Err()
	}
}
