/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package h1

import (
	"io"
	"strconv"

	"github.com/relaywire/h1d/hdr"
	"github.com/relaywire/h1d/response"
)

// DateProvider returns the current time formatted as an RFC 7231
// IMF-fixdate, suitable for the Date response header. Pluggable so
// tests can pin a fixed value instead of depending on wall-clock time.
type DateProvider func() string

// Encoder serializes response heads and body chunks onto an io.Writer,
// mirroring Decoder on the write side.
type Encoder struct {
	now DateProvider
}

// NewEncoder returns an Encoder that stamps Date headers using now.
func NewEncoder(now DateProvider) *Encoder {
	return &Encoder{now: now}
}

// Encode writes head's status line, headers, and framing header to w. head
// must already carry every application header; Encode adds Date (if
// absent), Connection (per ctype), and the body-framing header implied
// by size.
func (e *Encoder) Encode(w io.Writer, head *response.Head, size BodySize, version Version, ctype ConnType) error {
	ws, ok := w.(stringWriterIface)
	if !ok {
		ws = &simpleStringWriter{w}
	}

	if err := writeStatusLine(ws, version, head); err != nil {
		return err
	}

	if head.Header.Get(hdr.Date) == "" && e.now != nil {
		head.Header.Set(hdr.Date, e.now())
	}
	writeConnectionHeader(head.Header, ctype, version)
	writeFramingHeader(head.Header, size, version)

	if err := head.Header.Write(w); err != nil {
		return err
	}
	_, err := ws.WriteString("\r\n")
	return err
}

// EncodeChunk writes one chunked-transfer-encoding chunk. An empty
// chunk is a no-op; use EncodeEOF to terminate the body.
func (e *Encoder) EncodeChunk(w io.Writer, chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	if _, err := io.WriteString(w, strconv.FormatInt(int64(len(chunk)), 16)+"\r\n"); err != nil {
		return err
	}
	if _, err := w.Write(chunk); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

// EncodeEOF terminates a chunked body with the final zero-length chunk.
// For bodies framed with Content-Length or written until close, there is
// nothing to write and EncodeEOF is a no-op.
func (e *Encoder) EncodeEOF(w io.Writer, size BodySize, version Version) error {
	if size.Kind != SizeStreamKind || !version.AtLeast(1, 1) {
		return nil
	}
	_, err := io.WriteString(w, "0\r\n\r\n")
	return err
}

func writeStatusLine(ws stringWriterIface, version Version, head *response.Head) error {
	status := strconv.Itoa(head.StatusCode)
	_, err := ws.WriteString(version.String() + " " + status + " " + head.ReasonText() + "\r\n")
	return err
}

// writeConnectionHeader sets the Connection response header to reflect
// ctype, overriding whatever the handler may have set directly — the
// codec's connection-type decision always wins. Keep-alive is the
// HTTP/1.1 default and emits nothing; HTTP/1.0 peers need the explicit
// "keep-alive" token to know the connection stays open.
func writeConnectionHeader(h hdr.Header, ctype ConnType, version Version) {
	switch ctype {
	case ConnClose:
		h.Set(hdr.Connection, "close")
	case ConnUpgrade:
		h.Set(hdr.Connection, "upgrade")
	case ConnKeepAlive:
		if version.AtLeast(1, 1) {
			h.Del(hdr.Connection)
		} else {
			h.Set(hdr.Connection, "keep-alive")
		}
	}
}

// writeFramingHeader emits exactly the header the body size demands:
// Content-Length for a sized body, chunked Transfer-Encoding for an
// HTTP/1.1 stream, nothing for an HTTP/1.0 stream (framed by connection
// close) or for SizeNone/SizeEmptyKind.
func writeFramingHeader(h hdr.Header, size BodySize, version Version) {
	switch size.Kind {
	case SizeSizedKind:
		h.Set(hdr.ContentLength, strconv.FormatUint(size.Sized, 10))
	case SizeStreamKind:
		if version.AtLeast(1, 1) {
			h.Set(hdr.TransferEncoding, "chunked")
		}
	}
}

// stringWriterIface lets Encode prefer w's native WriteString when it
// has one, without requiring callers to pass a *bufio.Writer.
type stringWriterIface interface {
	WriteString(s string) (int, error)
}

type simpleStringWriter struct{ w io.Writer }

func (s *simpleStringWriter) WriteString(str string) (int, error) {
	return s.w.Write([]byte(str))
}
