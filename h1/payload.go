/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package h1

import (
	"io"

	"github.com/relaywire/h1d/hdr"
)

// PayloadKind tags the decoder's output payload handle: no body, a
// framed body, a stream read until connection close, or a raw upgrade
// passthrough.
type PayloadKind uint8

const (
	PayloadNone PayloadKind = iota
	PayloadBody
	PayloadStreamKind
	PayloadUpgrade
)

// Payload is the decoder's payload handle: a kind tag plus, for every
// kind but PayloadNone, a BodyStream that consumes subsequent bytes from
// the same connection buffer as they arrive.
type Payload struct {
	Kind PayloadKind
	Body *BodyStream
}

// Filler is called by a BodyStream when it needs more bytes than are
// currently buffered. It must append newly read bytes to buf (typically
// by issuing one Read on the underlying net.Conn) and return io.EOF once
// the peer has closed its write side. This lets a BodyStream keep
// pulling from a connection's shared, incrementally-appended buffer
// while still giving request handlers a plain io.Reader to consume
//, instead of forcing every
// caller to drive a decode poll loop themselves.
type Filler func(buf *Buffer) error

// bodyMode distinguishes how a BodyStream delimits the end of the body.
type bodyMode uint8

const (
	modeLength bodyMode = iota
	modeChunked
	modeUntilClose
	modeRaw // upgrade: raw passthrough, caller owns framing
)

// chunkPhase tracks progress through a single chunked-encoding frame.
type chunkPhase uint8

const (
	phaseSize chunkPhase = iota
	phaseSizeCR
	phaseData
	phaseDataCR
	phaseDataLF
	phaseTrailer
	phaseDone
)

// BodyStream is the decoder's payload handle: an io.Reader that pulls
// from the shared connection Buffer, requesting more bytes via fill when
// the buffer runs dry mid-body, rather than reading the socket
// directly.
type BodyStream struct {
	mode bodyMode
	buf  *Buffer
	fill Filler

	remaining uint64 // modeLength: bytes left to deliver
	done      bool   // modeUntilClose/modeRaw: true once fill returned io.EOF

	phase   chunkPhase
	chunkSz uint64 // modeChunked: remaining bytes in the current chunk
	trailer hdr.Header
	maxHead int // header-size budget, reused to bound trailer size
}

func newLengthStream(buf *Buffer, fill Filler, n uint64) *BodyStream {
	return &BodyStream{mode: modeLength, buf: buf, fill: fill, remaining: n}
}

func newChunkedStream(buf *Buffer, fill Filler, maxHead int) *BodyStream {
	return &BodyStream{mode: modeChunked, buf: buf, fill: fill, phase: phaseSize, maxHead: maxHead}
}

func newUntilCloseStream(buf *Buffer, fill Filler) *BodyStream {
	return &BodyStream{mode: modeUntilClose, buf: buf, fill: fill}
}

func newRawStream(buf *Buffer, fill Filler) *BodyStream {
	return &BodyStream{mode: modeRaw, buf: buf, fill: fill}
}

// Trailer returns the trailer headers parsed after a chunked body's
// final 0-length chunk. Empty before the body has been fully read.
func (b *BodyStream) Trailer() hdr.Header { return b.trailer }

func (b *BodyStream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	switch b.mode {
	case modeLength:
		return b.readLength(p)
	case modeChunked:
		return b.readChunked(p)
	case modeUntilClose, modeRaw:
		return b.readUntilClose(p)
	default:
		return 0, io.EOF
	}
}

func (b *BodyStream) readLength(p []byte) (int, error) {
	if b.remaining == 0 {
		return 0, io.EOF
	}
	if err := b.ensure(1); err != nil && b.buf.Len() == 0 {
		return 0, err
	}
	n := copy(p, b.buf.Unread())
	if uint64(n) > b.remaining {
		n = int(b.remaining)
	}
	b.buf.Advance(n)
	b.remaining -= uint64(n)
	if b.remaining == 0 {
		return n, io.EOF
	}
	if n == 0 {
		return 0, io.ErrUnexpectedEOF
	}
	return n, nil
}

func (b *BodyStream) readUntilClose(p []byte) (int, error) {
	if b.done && b.buf.Len() == 0 {
		return 0, io.EOF
	}
	if b.buf.Len() == 0 {
		if err := b.fill(b.buf); err != nil {
			b.done = true
			if err == io.EOF {
				return 0, io.EOF
			}
			return 0, err
		}
	}
	n := copy(p, b.buf.Unread())
	b.buf.Advance(n)
	return n, nil
}

// ensure blocks (via fill) until at least n bytes are buffered or the
// connection hits EOF.
func (b *BodyStream) ensure(n int) error {
	for b.buf.Len() < n {
		if err := b.fill(b.buf); err != nil {
			return err
		}
	}
	return nil
}

func (b *BodyStream) readChunked(p []byte) (int, error) {
	for {
		switch b.phase {
		case phaseDone:
			return 0, io.EOF
		case phaseData:
			if b.chunkSz == 0 {
				b.phase = phaseDataCR
				continue
			}
			if err := b.ensure(1); err != nil {
				return 0, err
			}
			n := copy(p, b.buf.Unread())
			if uint64(n) > b.chunkSz {
				n = int(b.chunkSz)
			}
			b.buf.Advance(n)
			b.chunkSz -= uint64(n)
			return n, nil
		default:
			if err := b.advanceChunkHeader(); err != nil {
				return 0, err
			}
		}
	}
}

// advanceChunkHeader parses as much of the chunk framing (size line,
// trailing CRLFs, trailer block) as is currently buffered, refilling via
// b.fill when it needs more. It mutates b.phase/b.chunkSz/b.trailer.
func (b *BodyStream) advanceChunkHeader() error {
	switch b.phase {
	case phaseSize:
		line, ok, err := readLine(b.buf, b.fill, b.maxHead)
		if err != nil {
			return err
		}
		if !ok {
			return io.ErrUnexpectedEOF
		}
		sz, perr := parseChunkSize(line)
		if perr != nil {
			return perr
		}
		b.chunkSz = sz
		if sz == 0 {
			b.phase = phaseTrailer
		} else {
			b.phase = phaseData
		}
		return nil
	case phaseDataCR, phaseDataLF:
		if err := b.ensure(2); err != nil {
			return err
		}
		if b.buf.Unread()[0] != '\r' || b.buf.Unread()[1] != '\n' {
			return newParseError(ErrMalformed, "missing CRLF after chunk data")
		}
		b.buf.Advance(2)
		b.phase = phaseSize
		return nil
	case phaseTrailer:
		trailer, err := readTrailerBlock(b.buf, b.fill, b.maxHead)
		if err != nil {
			return err
		}
		b.trailer = trailer
		b.phase = phaseDone
		return nil
	default:
		return nil
	}
}

// readLine reads one CRLF-terminated line (without the CRLF) from buf,
// refilling via fill as needed, bounded by maxLen.
func readLine(buf *Buffer, fill Filler, maxLen int) (string, bool, error) {
	for {
		if i := indexCRLF(buf.Unread()); i >= 0 {
			line := string(buf.Unread()[:i])
			buf.Advance(i + 2)
			return line, true, nil
		}
		if maxLen > 0 && buf.Len() > maxLen {
			return "", false, newParseError(ErrTooLarge, "chunk size line too large")
		}
		if err := fill(buf); err != nil {
			return "", false, err
		}
	}
}

func indexCRLF(b []byte) int {
	for i := 0; i+1 < len(b); i++ {
		if b[i] == '\r' && b[i+1] == '\n' {
			return i
		}
	}
	return -1
}

func parseChunkSize(line string) (uint64, error) {
	if i := indexByte(line, ';'); i >= 0 {
		line = line[:i] // chunk-extensions are ignored
	}
	if line == "" {
		return 0, newParseError(ErrMalformed, "empty chunk size")
	}
	var n uint64
	for i := 0; i < len(line); i++ {
		c := line[i]
		var v uint64
		switch {
		case '0' <= c && c <= '9':
			v = uint64(c - '0')
		case 'a' <= c && c <= 'f':
			v = uint64(c-'a') + 10
		case 'A' <= c && c <= 'F':
			v = uint64(c-'A') + 10
		default:
			return 0, newParseError(ErrMalformed, "invalid chunk size digit")
		}
		n = n*16 + v
	}
	return n, nil
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// readTrailerBlock parses a (possibly empty) trailer header block
// terminated by a blank line, bounded by maxLen total bytes.
func readTrailerBlock(buf *Buffer, fill Filler, maxLen int) (hdr.Header, error) {
	h := make(hdr.Header)
	for {
		line, ok, err := readLine(buf, fill, maxLen)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, io.ErrUnexpectedEOF
		}
		if line == "" {
			return h, nil
		}
		i := indexByte(line, ':')
		if i < 0 {
			return nil, newParseError(ErrMalformed, "malformed trailer field")
		}
		key := hdr.CanonicalHeaderKey(hdr.TrimString(line[:i]))
		val := hdr.TrimString(line[i+1:])
		h.Add(key, val)
	}
}
