/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package h1

import (
	"strconv"

	"github.com/relaywire/h1d/hdr"
	"github.com/relaywire/h1d/request"
)

// DecoderLimits bounds the header count and total byte size of a single
// request head.
type DecoderLimits struct {
	MaxHeaderBytes int // total bytes of the head (request line + headers)
	MaxHeaderLines int // number of header fields
}

// DefaultDecoderLimits allows a 1MB head and a generous header-count
// ceiling.
var DefaultDecoderLimits = DecoderLimits{
	MaxHeaderBytes: 1 << 20,
	MaxHeaderLines: 256,
}

// Decoder parses a request head plus payload framing from a byte
// buffer, incrementally. A single
// Decoder is reused across every request on a connection — decode state
// never straddles two calls; everything it needs to resume crossing a
// short read lives in Buffer itself (unconsumed bytes) or in the
// BodyStream returned by the previous call.
type Decoder struct {
	limits DecoderLimits
}

// NewDecoder returns a Decoder bounded by limits.
func NewDecoder(limits DecoderLimits) *Decoder {
	return &Decoder{limits: limits}
}

// Decode attempts to parse one request head from buf's unread bytes.
// It returns (nil, Payload{}, false, nil) when buf does not yet hold a
// complete head, a ParseError when the head is malformed, or a parsed
// head plus its payload framing on
// success. fill is passed through to the returned Payload's BodyStream
// so the body can keep pulling bytes off the wire as the caller reads it.
func (d *Decoder) Decode(buf *Buffer, fill Filler) (*request.Head, Payload, bool, error) {
	head, consumed, err := d.tryParseHead(buf.Unread())
	if err != nil {
		return nil, Payload{}, false, err
	}
	if head == nil {
		if d.limits.MaxHeaderBytes > 0 && buf.Len() > d.limits.MaxHeaderBytes {
			return nil, Payload{}, false, newParseError(ErrTooLarge, "request head exceeds header size limit")
		}
		return nil, Payload{}, false, nil
	}
	buf.Advance(consumed)

	payload, err := d.classifyPayload(head, buf, fill)
	if err != nil {
		return nil, Payload{}, false, err
	}
	return head, payload, true, nil
}

// tryParseHead scans b for a complete request line + header block
// (terminated by CRLFCRLF). It returns (nil, 0, nil) if b does not yet
// contain a full head.
func (d *Decoder) tryParseHead(b []byte) (*request.Head, int, error) {
	end := indexDoubleCRLF(b)
	if end < 0 {
		return nil, 0, nil
	}
	headBytes := b[:end+2] // keep the CRLF that ends the last head line
	total := end + 4

	if d.limits.MaxHeaderBytes > 0 && total > d.limits.MaxHeaderBytes {
		return nil, 0, newParseError(ErrTooLarge, "request head exceeds header size limit")
	}

	lineEnd := indexCRLF(headBytes)
	if lineEnd < 0 {
		return nil, 0, newParseError(ErrMalformed, "missing request line terminator")
	}
	reqLine := string(headBytes[:lineEnd])
	rest := headBytes[lineEnd+2:]

	method, target, major, minor, err := parseRequestLine(reqLine)
	if err != nil {
		return nil, 0, err
	}

	h := make(hdr.Header)
	if _, err := parseHeaderBlock(rest, h, d.limits.MaxHeaderLines); err != nil {
		return nil, 0, err
	}

	head := &request.Head{
		Method:     method,
		Target:     target,
		ProtoMajor: major,
		ProtoMinor: minor,
		Header:     h,
		Host:       h.Get(hdr.Host),
	}
	path, query := splitTarget(target)
	head.Path, head.RawQuery = path, query
	head.Close = head.WantsClose()

	return head, total, nil
}

// parseRequestLine tokenizes "METHOD SP target SP HTTP/M.m" per RFC 7230
// §3.1.1. Unknown methods are accepted as extension tokens; versions
// outside [1.0, 1.1] fail with ErrVersion.
func parseRequestLine(line string) (method, target string, major, minor int, err error) {
	sp1 := indexByte(line, ' ')
	if sp1 < 0 {
		return "", "", 0, 0, newParseError(ErrMalformed, "malformed request line")
	}
	method = line[:sp1]
	if !validMethodToken(method) {
		return "", "", 0, 0, newParseError(ErrMalformed, "invalid method token")
	}
	rest := line[sp1+1:]
	sp2 := lastIndexByte(rest, ' ')
	if sp2 < 0 {
		return "", "", 0, 0, newParseError(ErrMalformed, "malformed request line")
	}
	target = rest[:sp2]
	if target == "" {
		return "", "", 0, 0, newParseError(ErrMalformed, "empty request target")
	}
	proto := rest[sp2+1:]
	major, minor, err = parseHTTPVersion(proto)
	if err != nil {
		return "", "", 0, 0, err
	}
	return method, target, major, minor, nil
}

func parseHTTPVersion(s string) (int, int, error) {
	const prefix = "HTTP/"
	if len(s) != len(prefix)+3 || s[:len(prefix)] != prefix || s[len(prefix)+1] != '.' {
		return 0, 0, newParseError(ErrVersion, "malformed protocol version")
	}
	major := s[len(prefix)]
	minor := s[len(prefix)+2]
	if major < '0' || major > '9' || minor < '0' || minor > '9' {
		return 0, 0, newParseError(ErrVersion, "malformed protocol version")
	}
	maj, min := int(major-'0'), int(minor-'0')
	if maj != 1 || (min != 0 && min != 1) {
		return 0, 0, newParseError(ErrVersion, "unsupported HTTP version")
	}
	return maj, min, nil
}

func validMethodToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !hdr.IsTokenRune(rune(s[i])) {
			return false
		}
	}
	return true
}

func splitTarget(target string) (path, query string) {
	if target == "*" {
		return "*", ""
	}
	if i := indexByte(target, '?'); i >= 0 {
		return target[:i], target[i+1:]
	}
	return target, ""
}

// parseHeaderBlock parses CRLF-separated "Name: value" fields from b
// (no trailing CRLFCRLF — that was already stripped by the caller) into
// h, enforcing maxLines. Obsolete line-folding (RFC 7230 §3.2.4) is
// rejected, not unfolded, matching modern HTTP/1.1 parser practice.
func parseHeaderBlock(b []byte, h hdr.Header, maxLines int) (int, error) {
	n := 0
	for len(b) > 0 {
		i := indexCRLF(b)
		var line []byte
		if i < 0 {
			line, b = b, nil
		} else {
			line, b = b[:i], b[i+2:]
		}
		if len(line) == 0 {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			return 0, newParseError(ErrMalformed, "obsolete header line folding is not supported")
		}
		colon := indexByteB(line, ':')
		if colon < 0 {
			return 0, newParseError(ErrMalformed, "malformed header field")
		}
		key := string(line[:colon])
		if !hdr.ValidHeaderFieldName(key) {
			return 0, newParseError(ErrMalformed, "invalid header field name")
		}
		val := hdr.TrimString(string(line[colon+1:]))
		if !hdr.ValidHeaderFieldValue(val) {
			return 0, newParseError(ErrMalformed, "invalid header field value")
		}
		h.Add(key, val)
		n++
		if maxLines > 0 && n > maxLines {
			return 0, newParseError(ErrTooLarge, "too many header fields")
		}
	}
	return n, nil
}

// classifyPayload selects the body framing for a decoded head, in
// priority order: chunked, upgrade/CONNECT, sized, then HTTP/1.0
// until-close.
func (d *Decoder) classifyPayload(head *request.Head, buf *Buffer, fill Filler) (Payload, error) {
	te := head.Header[hdr.TransferEncoding]
	cl := head.Header[hdr.ContentLength]

	if len(te) > 0 && len(cl) > 0 {
		return Payload{}, newParseError(ErrHeaderConflict, "Content-Length and Transfer-Encoding both present")
	}

	contentLength, hasCL, err := dedupContentLength(cl)
	if err != nil {
		return Payload{}, err
	}
	head.ContentLength = -1
	if hasCL {
		head.ContentLength = contentLength
	}
	head.TransferEncoding = te

	isChunked := len(te) > 0 && te[len(te)-1] == "chunked"

	switch {
	case isChunked:
		body := newChunkedStream(buf, fill, d.limits.MaxHeaderBytes)
		return Payload{Kind: PayloadBody, Body: body}, nil

	case head.Method == "CONNECT" || head.IsUpgrade():
		body := newRawStream(buf, fill)
		return Payload{Kind: PayloadUpgrade, Body: body}, nil

	case hasCL && contentLength > 0:
		body := newLengthStream(buf, fill, uint64(contentLength))
		return Payload{Kind: PayloadBody, Body: body}, nil

	case hasCL: // Content-Length: 0
		return Payload{Kind: PayloadNone}, nil

	case !bodyAllowedMethod(head.Method):
		return Payload{Kind: PayloadNone}, nil

	case head.ProtoMajor == 1 && head.ProtoMinor == 0:
		body := newUntilCloseStream(buf, fill)
		return Payload{Kind: PayloadStreamKind, Body: body}, nil

	default:
		return Payload{Kind: PayloadNone}, nil
	}
}

func bodyAllowedMethod(method string) bool {
	switch method {
	case "GET", "HEAD", "DELETE", "OPTIONS", "TRACE":
		return false
	}
	return true
}

// dedupContentLength accepts multiple Content-Length values only when
// they all agree; disagreeing duplicates are rejected as smuggling risk.
func dedupContentLength(values []string) (int64, bool, error) {
	if len(values) == 0 {
		return 0, false, nil
	}
	first := hdr.TrimString(values[0])
	for _, v := range values[1:] {
		if hdr.TrimString(v) != first {
			return 0, false, newParseError(ErrHeaderConflict, "conflicting Content-Length values")
		}
	}
	n, err := strconv.ParseInt(first, 10, 64)
	if err != nil || n < 0 {
		return 0, false, newParseError(ErrMalformed, "invalid Content-Length")
	}
	return n, true, nil
}

func indexDoubleCRLF(b []byte) int {
	for i := 0; i+3 < len(b); i++ {
		if b[i] == '\r' && b[i+1] == '\n' && b[i+2] == '\r' && b[i+3] == '\n' {
			return i
		}
	}
	return -1
}

func lastIndexByte(s string, b byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func indexByteB(b []byte, c byte) int {
	for i := 0; i < len(b); i++ {
		if b[i] == c {
			return i
		}
	}
	return -1
}
