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
	"errors"
	"fmt"
)

// ErrorCode classifies every error the driver produces.
type ErrorCode int

const (
	// ErrUnknown is the zero code.
	ErrUnknown ErrorCode = iota

	// ErrConnect is a DNS, TCP, or socket creation failure. Nothing is
	// in flight yet when it happens.
	ErrConnect

	// ErrHandshake is a protocol-version rejection or a malformed
	// handshake reply. Fatal to the connection attempt.
	ErrHandshake

	// ErrAuth is a SCRAM failure: bad credentials, bad server
	// signature, missing fields. Fatal to the connection attempt.
	ErrAuth

	// ErrIO is a socket read or write failure after the handshake.
	// Fatal: every in-flight waiter is drained with a disconnect error.
	ErrIO

	// ErrProtocol is an unparseable response envelope. Fatal, handled
	// like ErrIO.
	ErrProtocol

	// ErrNotConnected is an operation attempted on a closed or errored
	// connection. Returned synchronously.
	ErrNotConnected

	// ErrContinuationMisuse is a cursor continuation handle invoked
	// twice. A bug in the caller.
	ErrContinuationMisuse

	// ErrClientQuery, ErrCompileQuery and ErrRuntimeQuery are
	// server-reported per-query errors. Not fatal: only the owning
	// query's waiter sees them, and its token is freed.
	ErrClientQuery
	ErrCompileQuery
	ErrRuntimeQuery
)

func (c ErrorCode) String() string {
	switch c {
	case ErrConnect:
		return "connect"
	case ErrHandshake:
		return "handshake"
	case ErrAuth:
		return "auth"
	case ErrIO:
		return "io"
	case ErrProtocol:
		return "protocol"
	case ErrNotConnected:
		return "not connected"
	case ErrContinuationMisuse:
		return "continuation misuse"
	case ErrClientQuery:
		return "client error"
	case ErrCompileQuery:
		return "compile error"
	case ErrRuntimeQuery:
		return "runtime error"
	}
	return "unknown"
}

// Error is the error structure returned from calling a driver function or
// delivered to a waiter.
type Error struct {
	Code    ErrorCode
	Message string

	// ErrType is the server's fine-grained error subtype (the "e" field
	// of an error envelope), zero when the server did not send one.
	ErrType int

	// wrapped is the underlying cause, if any.
	wrapped error
}

// NewError creates a new Error.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// wrapError creates an Error whose cause is preserved for errors.Is/As.
func wrapError(code ErrorCode, err error) *Error {
	return &Error{
		Code:    code,
		Message: err.Error(),
		wrapped: err,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s (reql: %v)", e.Message, e.Code)
}

// Unwrap exposes the cause to the errors package.
func (e *Error) Unwrap() error {
	return e.wrapped
}

// IsQueryError reports whether the error is a server-reported per-query
// error, i.e. one that does not poison the connection.
func (e *Error) IsQueryError() bool {
	switch e.Code {
	case ErrClientQuery, ErrCompileQuery, ErrRuntimeQuery:
		return true
	}
	return false
}

// CodeOf extracts the ErrorCode from any error, ErrUnknown if it is not a
// driver error.
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrUnknown
}
