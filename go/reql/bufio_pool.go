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
	"io"
	"sync"
)

// The Conn writes one frame (or one handshake message) at a time and
// flushes after each. pooledWriter borrows a *bufio.Writer from a
// process-wide pool for the duration of one such burst: the first Write
// takes a writer from the pool, Flush hands the bytes to the socket and
// returns the writer. A Conn that is idle between frames therefore holds
// no write buffer at all.

var writersPool = sync.Pool{New: func() any { return bufio.NewWriterSize(nil, connBufferSize) }}

type pooledWriter struct {
	w  io.Writer
	bw *bufio.Writer
}

func newPooledWriter(w io.Writer) *pooledWriter {
	return &pooledWriter{w: w}
}

func (pw *pooledWriter) Write(b []byte) (int, error) {
	if pw.bw == nil {
		pw.bw = writersPool.Get().(*bufio.Writer)
		pw.bw.Reset(pw.w)
	}
	return pw.bw.Write(b)
}

// Flush pushes buffered bytes to the underlying writer and returns the
// bufio.Writer to the pool. Safe to call with nothing buffered.
func (pw *pooledWriter) Flush() error {
	if pw.bw == nil {
		return nil
	}
	err := pw.bw.Flush()
	// remove the reference before pooling
	pw.bw.Reset(nil)
	writersPool.Put(pw.bw)
	pw.bw = nil
	return err
}
