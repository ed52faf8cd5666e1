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
	"sync/atomic"

	"reql.io/reql/go/reqltypes"
)

// Continuation is the one-shot handle attached to a partial sequence.
// Firing it sends a CONTINUE frame for the same token and re-arms the
// query with a fresh waiter. The server keeps cursor state per token, so
// there can only ever be one outstanding CONTINUE: a second Next on the
// same handle is refused.
type Continuation struct {
	conn  *Conn
	token uint64
	used  atomic.Bool
}

// Token returns the query token the continuation belongs to.
func (cn *Continuation) Token() uint64 {
	return cn.token
}

// Next requests the next batch. The waiter receives it (or a terminal
// response) exactly once.
func (cn *Continuation) Next(w Waiter) error {
	if cn.used.Swap(true) {
		return NewError(ErrContinuationMisuse, "continuation for token %d fired twice", cn.token)
	}
	return cn.conn.ContinueQuery(cn.token, w)
}

// Cursor walks a streamed result set batch by batch. It wraps the Rows
// responses of one query and drives the continuation handles so callers
// never touch them directly.
type Cursor struct {
	conn  *Conn
	token uint64

	batch []reqltypes.Value
	more  *Continuation
}

// NewCursor builds a Cursor from the first Rows response of a query.
func NewCursor(conn *Conn, resp *Response) (*Cursor, error) {
	if resp.Kind != KindRows {
		return nil, NewError(ErrUnknown, "cannot build a cursor from a %v response", resp.Kind)
	}
	return &Cursor{
		conn:  conn,
		token: resp.Token,
		batch: resp.Rows,
		more:  resp.More,
	}, nil
}

// Batch returns the current batch of documents.
func (c *Cursor) Batch() []reqltypes.Value {
	return c.batch
}

// More reports whether the server holds further batches.
func (c *Cursor) More() bool {
	return c.more != nil
}

// Next fetches the next batch, blocking until the server answers or ctx
// expires. It returns nil documents once the sequence is exhausted.
func (c *Cursor) Next(ctx context.Context) ([]reqltypes.Value, error) {
	if c.more == nil {
		return nil, nil
	}

	ch := make(chan *Response, 1)
	if err := c.more.Next(func(r *Response) { ch <- r }); err != nil {
		return nil, err
	}
	c.more = nil

	select {
	case resp := <-ch:
		switch resp.Kind {
		case KindRows:
			c.batch = resp.Rows
			c.more = resp.More
			return resp.Rows, nil
		case KindValue:
			// A trailing scalar batch; surface it as one document.
			c.batch = []reqltypes.Value{resp.Value}
			c.more = resp.More
			return c.batch, nil
		case KindError:
			c.batch = nil
			return nil, resp.Err
		}
		c.batch = nil
		return nil, NewError(ErrProtocol, "unexpected %v response while continuing token %d", resp.Kind, c.token)
	case <-ctx.Done():
		_ = c.conn.StopQuery(c.token)
		return nil, ctx.Err()
	}
}

// Close stops the query on the server if the sequence was not exhausted.
// Safe to call at any point.
func (c *Cursor) Close() error {
	if c.more == nil {
		return nil
	}
	c.more = nil
	return c.conn.StopQuery(c.token)
}
