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

	"github.com/buger/jsonparser"

	"reql.io/reql/go/reqltypes"
)

// Waiter receives one decoded response. A waiter fires exactly once per
// delivery; a streaming query re-arms by handing a new waiter to the
// response's continuation. Waiters run on the connection's read loop, so
// they must not block.
type Waiter func(*Response)

// ResponseKind tags the decoded form of a server reply.
type ResponseKind int

const (
	// KindValue is a single atom (or a sequence of scalars collapsed
	// into one array value).
	KindValue ResponseKind = iota
	// KindRows is a batch of row documents.
	KindRows
	// KindError is a per-query server error.
	KindError
	// KindUnknown is a response type code this driver does not know.
	// Kept non-fatal for forward compatibility.
	KindUnknown
)

func (k ResponseKind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindRows:
		return "rows"
	case KindError:
		return "error"
	}
	return "unknown"
}

// Response is the decoded form of one server reply.
type Response struct {
	Token uint64
	Kind  ResponseKind

	// Value is set for KindValue.
	Value reqltypes.Value

	// Rows is set for KindRows.
	Rows []reqltypes.Value

	// Err is set for KindError.
	Err *Error

	// More is the continuation handle, present iff the server signaled
	// that more rows remain. Firing it once fetches the next batch;
	// firing it twice is a caller bug.
	More *Continuation

	// Notes carries the envelope's "n" field. Feed notes mark streams
	// that never terminate on their own.
	Notes []int64

	// Backtrace and Profile carry the raw "b" and "p" fields, when
	// present.
	Backtrace json.RawMessage
	Profile   json.RawMessage
}

// Terminal reports whether this delivery frees the query's token. Partial
// sequences are the only non-terminal responses.
func (r *Response) Terminal() bool {
	return r.More == nil
}

// IsFeed reports whether the server marked the sequence as a changefeed.
func (r *Response) IsFeed() bool {
	for _, n := range r.Notes {
		switch n {
		case NoteSequenceFeed, NoteAtomFeed, NoteOrderByLimitFeed, NoteUnittestFeed:
			return true
		}
	}
	return false
}

// decodeResponse parses a response payload into a Response. A non-nil
// error means the envelope itself is malformed, which poisons the
// connection.
func decodeResponse(c *Conn, token uint64, payload []byte) (*Response, error) {
	t, err := jsonparser.GetInt(payload, "t")
	if err != nil {
		return nil, fmt.Errorf("missing response type: %v", err)
	}

	resp := &Response{Token: token}
	decodeEnvelopeExtras(resp, payload)

	switch t {
	case responseSuccessAtom, responseServerInfo:
		value, err := decodeAtom(payload)
		if err != nil {
			return nil, err
		}
		resp.Kind = KindValue
		resp.Value = value

	case responseSuccessSequence, responseSuccessPartial:
		if err := decodeSequence(resp, payload); err != nil {
			return nil, err
		}
		if t == responseSuccessPartial {
			resp.More = &Continuation{conn: c, token: token}
		}

	case responseWaitComplete:
		resp.Kind = KindValue
		resp.Value = reqltypes.NULL

	case responseClientError, responseCompileError, responseRuntimeError:
		if err := decodeError(resp, t, payload); err != nil {
			return nil, err
		}

	default:
		resp.Kind = KindUnknown
	}
	return resp, nil
}

// decodeEnvelopeExtras copies the optional envelope fields: notes,
// backtrace, profile.
func decodeEnvelopeExtras(resp *Response, payload []byte) {
	_, _ = jsonparser.ArrayEach(payload, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
		if dataType != jsonparser.Number {
			return
		}
		if n, err := jsonparser.ParseInt(value); err == nil {
			resp.Notes = append(resp.Notes, n)
		}
	}, "n")

	if raw, dataType, _, err := jsonparser.Get(payload, "b"); err == nil && dataType != jsonparser.NotExist {
		resp.Backtrace = append(json.RawMessage(nil), raw...)
	}
	if raw, dataType, _, err := jsonparser.Get(payload, "p"); err == nil && dataType != jsonparser.NotExist {
		resp.Profile = append(json.RawMessage(nil), raw...)
	}
}

// resultArray extracts the raw "r" array.
func resultArray(payload []byte) ([]byte, error) {
	raw, dataType, _, err := jsonparser.Get(payload, "r")
	if err != nil {
		return nil, fmt.Errorf("missing result array: %v", err)
	}
	if dataType != jsonparser.Array {
		return nil, fmt.Errorf("result field is %v, not an array", dataType)
	}
	return raw, nil
}

func decodeAtom(payload []byte) (reqltypes.Value, error) {
	raw, err := resultArray(payload)
	if err != nil {
		return reqltypes.NULL, err
	}
	values, err := reqltypes.DecodeArray(raw)
	if err != nil {
		return reqltypes.NULL, err
	}
	if len(values) != 1 {
		return reqltypes.NULL, fmt.Errorf("atom response carries %d results, want 1", len(values))
	}
	return values[0], nil
}

// decodeSequence fills in a sequence response: an array of objects becomes
// a batch of rows, an array of scalars collapses into a single array
// value.
func decodeSequence(resp *Response, payload []byte) error {
	raw, err := resultArray(payload)
	if err != nil {
		return err
	}
	values, err := reqltypes.DecodeArray(raw)
	if err != nil {
		return err
	}
	for _, v := range values {
		if v.Type() != reqltypes.Object {
			resp.Kind = KindValue
			resp.Value = reqltypes.NewArray(values)
			return nil
		}
	}
	resp.Kind = KindRows
	resp.Rows = values
	return nil
}

func decodeError(resp *Response, t int64, payload []byte) error {
	raw, err := resultArray(payload)
	if err != nil {
		return err
	}
	values, err := reqltypes.DecodeArray(raw)
	if err != nil {
		return err
	}
	if len(values) != 1 {
		return fmt.Errorf("error response carries %d results, want 1", len(values))
	}
	msg, err := values[0].ToString()
	if err != nil {
		return fmt.Errorf("error response message is %v, not a string", values[0].Type())
	}

	code := ErrRuntimeQuery
	switch t {
	case responseClientError:
		code = ErrClientQuery
	case responseCompileError:
		code = ErrCompileQuery
	}
	resp.Kind = KindError
	resp.Err = NewError(code, "%s", msg)
	if subtype, err := jsonparser.GetInt(payload, "e"); err == nil {
		resp.Err.ErrType = int(subtype)
	}
	return nil
}
