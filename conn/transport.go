/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package conn

import (
	"bufio"
	"io"
	"net"

	"github.com/relaywire/h1d/h1"
	"github.com/relaywire/h1d/request"
	"github.com/relaywire/h1d/response"
)

// readChunkSize is the size of each underlying net.Conn.Read call used
// to refill a FramedTransport's decode buffer.
const readChunkSize = 4096

// FramedTransport pairs a net.Conn with an h1.Codec, exposing
// message-level read/write over the connection's shared, incrementally
// appended read buffer: bytes past a decoded head belong to the body or
// the next pipelined request and must never be dropped. An upgrade
// service that takes over a connection receives the same
// FramedTransport so it can drain whatever is left in the buffer before
// reading raw bytes off Conn itself.
type FramedTransport struct {
	Conn  net.Conn
	Codec *h1.Codec

	buf    *h1.Buffer
	writer *bufio.Writer
}

// NewFramedTransport wraps c with codec, taking a pooled decode buffer
// and allocating a fresh 4 KiB write buffer.
func NewFramedTransport(c net.Conn, codec *h1.Codec) *FramedTransport {
	return &FramedTransport{
		Conn:   c,
		Codec:  codec,
		buf:    h1.NewBuffer(),
		writer: bufio.NewWriterSize(c, 4<<10),
	}
}

// Release returns the transport's pooled buffer. Must be called exactly
// once, after the transport is no longer in use (including by an
// upgrade service).
func (ft *FramedTransport) Release() { ft.buf.Release() }

// fill is the h1.Filler this transport hands to Codec.Decode and to any
// BodyStream it returns: one blocking Read off the wire, appended to
// buf. Returns io.EOF once the peer has closed its write side.
func (ft *FramedTransport) fill(buf *h1.Buffer) error {
	tmp := make([]byte, readChunkSize)
	n, err := ft.Conn.Read(tmp)
	if n > 0 {
		buf.Append(tmp[:n])
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return io.EOF
	}
	return nil
}

// ReadDecode reads off the wire until a full request head is available,
// then decodes it. It returns io.EOF (with nil head) if the connection
// closed before any bytes of a new head arrived — the clean-termination
// case distinguished from a mid-head close, which instead surfaces as
// io.ErrUnexpectedEOF.
func (ft *FramedTransport) ReadDecode() (*request.Head, h1.Payload, error) {
	for {
		head, payload, ok, err := ft.Codec.Decode(ft.buf, ft.fill)
		if err != nil {
			return nil, h1.Payload{}, err
		}
		if ok {
			return head, payload, nil
		}
		if err := ft.fill(ft.buf); err != nil {
			if err == io.EOF && ft.buf.Len() == 0 {
				return nil, h1.Payload{}, io.EOF
			}
			if err == io.EOF {
				return nil, h1.Payload{}, io.ErrUnexpectedEOF
			}
			return nil, h1.Payload{}, err
		}
	}
}

// Write100Continue sends the 100-Continue preface directly, bypassing
// Codec — it is not a full response head, and must precede any read of
// the request body.
func (ft *FramedTransport) Write100Continue() error {
	if _, err := ft.writer.WriteString("HTTP/1.1 100 Continue\r\n\r\n"); err != nil {
		return err
	}
	return ft.writer.Flush()
}

// EncodeMessage writes msg through Codec onto the transport's write
// buffer without flushing — callers batch a head plus its chunks and
// flush once at the end of the response.
func (ft *FramedTransport) EncodeMessage(msg h1.Message[*response.Head]) error {
	return ft.Codec.EncodeMessage(ft.writer, msg)
}

// EncodeChunk writes one response body fragment through Codec.
func (ft *FramedTransport) EncodeChunk(chunk []byte) error {
	return ft.Codec.EncodeChunk(ft.writer, chunk)
}

// EncodeEOF terminates the in-flight response body through Codec.
func (ft *FramedTransport) EncodeEOF() error {
	return ft.Codec.EncodeEOF(ft.writer)
}

// EncodeErrorHead writes a complete, bodyless response head — used for
// parse-error replies, which never go through the normal Item/Chunk/EOF
// sequence.
func (ft *FramedTransport) EncodeErrorHead(head *response.Head) error {
	return ft.Codec.Encode(ft.writer, head, h1.SizeEmpty)
}

// Flush pushes any buffered, unwritten bytes onto the wire.
func (ft *FramedTransport) Flush() error { return ft.writer.Flush() }

// CloseWrite shuts down the write half if the underlying connection
// supports half-close (as *net.TCPConn does), signalling the peer that
// no more data is coming while still allowing a final drain read.
func (ft *FramedTransport) CloseWrite() error {
	if cw, ok := ft.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return nil
}

// Unread returns bytes already buffered but not yet consumed by a
// decode — the trailing bytes an upgrade handover must not drop.
func (ft *FramedTransport) Unread() []byte { return ft.buf.Unread() }
