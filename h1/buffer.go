/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package h1 is the HTTP/1.1 wire codec: an incremental request decoder,
// a response encoder, and the stateful Codec that glues them together
// for one connection.
package h1

import "github.com/valyala/bytebufferpool"

// Buffer is the growable byte buffer the decoder reads from and the
// connection loop appends to as bytes arrive off the wire. It wraps a
// pooled bytebufferpool.ByteBuffer and tracks a read cursor so bytes
// already consumed by a completed decode are not re-scanned by the
// next one.
type Buffer struct {
	bb  *bytebufferpool.ByteBuffer
	off int // read cursor into bb.B
}

var pool bytebufferpool.Pool

// NewBuffer returns a Buffer backed by a pooled byte slice.
func NewBuffer() *Buffer {
	return &Buffer{bb: pool.Get()}
}

// Release returns the underlying storage to the pool. The Buffer must
// not be used afterward.
func (b *Buffer) Release() {
	pool.Put(b.bb)
	b.bb = nil
}

// Append appends p to the buffer, to be called whenever more bytes
// arrive off the wire.
func (b *Buffer) Append(p []byte) {
	b.bb.B = append(b.bb.B, p...)
}

// Unread returns the slice of not-yet-consumed bytes.
func (b *Buffer) Unread() []byte {
	return b.bb.B[b.off:]
}

// Advance marks n bytes as consumed, typically called by the decoder
// after a successful parse.
func (b *Buffer) Advance(n int) {
	b.off += n
	if b.off == len(b.bb.B) {
		b.bb.Reset()
		b.off = 0
	}
}

// Len reports the number of unread bytes.
func (b *Buffer) Len() int { return len(b.bb.B) - b.off }

// Compact drops already-consumed bytes from the front of the backing
// array, so a long-lived connection buffer doesn't grow unboundedly
// across many pipelined requests.
func (b *Buffer) Compact() {
	if b.off == 0 {
		return
	}
	n := copy(b.bb.B, b.bb.B[b.off:])
	b.bb.B = b.bb.B[:n]
	b.off = 0
}
