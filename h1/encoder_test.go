/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package h1

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/relaywire/h1d/response"
)

func fixedClock() DateProvider { return func() string { return "Wed, 21 Oct 2026 07:28:00 GMT" } }

// Concatenating EncodeChunk outputs plus EncodeEOF yields exactly
// hex(|ci|)\r\n ci \r\n ... 0\r\n\r\n.
func TestChunkThenEOFWireFormat(t *testing.T) {
	c := NewCodec(DefaultDecoderLimits, fixedClock(), true)
	c.version = Version11

	var buf bytes.Buffer
	head := response.NewHead(200)
	if err := c.Encode(&buf, head, SizeStream); err != nil {
		t.Fatalf("encode head: %v", err)
	}
	buf.Reset() // isolate body framing from the head for this assertion

	chunks := []string{"hello", " ", "world"}
	for _, c1 := range chunks {
		if err := c.EncodeChunk(&buf, []byte(c1)); err != nil {
			t.Fatalf("encode chunk: %v", err)
		}
	}
	if err := c.EncodeEOF(&buf); err != nil {
		t.Fatalf("encode eof: %v", err)
	}

	want := "5\r\nhello\r\n1\r\n \r\n5\r\nworld\r\n0\r\n\r\n"
	if buf.String() != want {
		t.Fatalf("wire = %q, want %q", buf.String(), want)
	}
}

// Zero-byte chunk is a no-op: no output, no stream termination.
func TestZeroByteChunkIsNoop(t *testing.T) {
	c := NewCodec(DefaultDecoderLimits, fixedClock(), true)
	c.version = Version11
	c.bodyKind = SizeStreamKind

	var buf bytes.Buffer
	if err := c.EncodeChunk(&buf, nil); err != nil {
		t.Fatalf("encode empty chunk: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no output for empty chunk, got %q", buf.String())
	}
}

// Sized bodies are written as raw bytes, never chunk-framed — EncodeEOF
// for a sized body is a no-op, since Content-Length already delimits it.
func TestSizedBodyWritesRawBytes(t *testing.T) {
	c := NewCodec(DefaultDecoderLimits, fixedClock(), true)
	c.version = Version11

	var head bytes.Buffer
	h := response.NewHead(200)
	if err := c.Encode(&head, h, SizeSized(11)); err != nil {
		t.Fatalf("encode head: %v", err)
	}
	if !strings.Contains(head.String(), "Content-Length: 11\r\n") {
		t.Fatalf("head missing Content-Length: %q", head.String())
	}

	var body bytes.Buffer
	if err := c.EncodeChunk(&body, []byte("hello world")); err != nil {
		t.Fatalf("encode chunk: %v", err)
	}
	if body.String() != "hello world" {
		t.Fatalf("body = %q, want raw passthrough", body.String())
	}
	if err := c.EncodeEOF(&body); err != nil {
		t.Fatalf("encode eof: %v", err)
	}
	if body.String() != "hello world" {
		t.Fatalf("EncodeEOF must be a no-op for a sized body, got %q", body.String())
	}
}

// HEAD suppresses the body even though the handler supplies one.
func TestHeadSuppressesBody(t *testing.T) {
	c := NewCodec(DefaultDecoderLimits, fixedClock(), true)
	reqBuf := NewBuffer()
	reqBuf.Append([]byte("HEAD / HTTP/1.1\r\n\r\n"))
	if _, _, ok, err := c.Decode(reqBuf, func(*Buffer) error { return nil }); err != nil || !ok {
		t.Fatalf("decode HEAD request: ok=%v err=%v", ok, err)
	}

	var out bytes.Buffer
	h := response.NewHead(200)
	if err := c.Encode(&out, h, SizeSized(11)); err != nil {
		t.Fatalf("encode head: %v", err)
	}
	head := out.String()
	if !strings.Contains(head, "Content-Length: 11\r\n") {
		t.Fatalf("head missing Content-Length, got %q", head)
	}
	blankLine := strings.Index(head, "\r\n\r\n")
	if blankLine < 0 || blankLine+4 != len(head) {
		t.Fatalf("expected nothing after the blank line, got %q", head)
	}

	if err := c.EncodeChunk(&out, []byte("hello world")); err != nil {
		t.Fatalf("encode chunk: %v", err)
	}
	if out.Len() != len(head) {
		t.Fatalf("HEAD response must not grow with body bytes, got %q", out.String())
	}
}

// Once keep-alive is disabled by policy, every decode+encode cycle
// leaves KeepAlive() false.
func TestKeepAliveDisabledNeverReuses(t *testing.T) {
	c := NewCodec(DefaultDecoderLimits, fixedClock(), false)
	buf := NewBuffer()
	buf.Append([]byte("GET / HTTP/1.1\r\n\r\n"))

	if _, _, ok, err := c.Decode(buf, func(*Buffer) error { return nil }); err != nil || !ok {
		t.Fatalf("decode: ok=%v err=%v", ok, err)
	}
	if c.KeepAlive() {
		t.Fatal("keepalive() must be false when KeepAliveEnabled is false")
	}

	var out bytes.Buffer
	h := response.NewHead(200)
	if err := c.Encode(&out, h, SizeEmpty); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(out.String(), "Connection: close\r\n") {
		t.Fatalf("expected explicit Connection: close, got %q", out.String())
	}
}

// After EncodeEOF, the codec accepts a new head without any
// intervening reset call.
func TestEncodeEOFThenNewItem(t *testing.T) {
	c := NewCodec(DefaultDecoderLimits, fixedClock(), true)
	c.version = Version11

	var first bytes.Buffer
	if err := c.Encode(&first, response.NewHead(200), SizeStream); err != nil {
		t.Fatalf("encode first head: %v", err)
	}
	if err := c.EncodeChunk(&first, []byte("a")); err != nil {
		t.Fatalf("encode chunk: %v", err)
	}
	if err := c.EncodeEOF(&first); err != nil {
		t.Fatalf("encode eof: %v", err)
	}

	var second bytes.Buffer
	if err := c.Encode(&second, response.NewHead(204), SizeNoneVal); err != nil {
		t.Fatalf("encode second head immediately after EOF: %v", err)
	}
	if !strings.HasPrefix(second.String(), "HTTP/1.1 204") {
		t.Fatalf("second head = %q", second.String())
	}
}

// An HTTP/1.0 connection kept alive by explicit opt-in must carry
// Connection: keep-alive on the response, since keep-alive is not the
// 1.0 default.
func TestHTTP10KeepAliveHeaderEmitted(t *testing.T) {
	c := NewCodec(DefaultDecoderLimits, fixedClock(), true)
	buf := NewBuffer()
	buf.Append([]byte("GET / HTTP/1.0\r\nConnection: keep-alive\r\n\r\n"))
	if _, _, ok, err := c.Decode(buf, func(*Buffer) error { return nil }); err != nil || !ok {
		t.Fatalf("decode: ok=%v err=%v", ok, err)
	}
	if !c.KeepAlive() {
		t.Fatal("expected keep-alive after explicit 1.0 opt-in")
	}

	var out bytes.Buffer
	if err := c.Encode(&out, response.NewHead(200), SizeEmpty); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.HasPrefix(out.String(), "HTTP/1.0 200") {
		t.Fatalf("status line must use the request's version, got %q", out.String())
	}
	if !strings.Contains(out.String(), "Connection: keep-alive\r\n") {
		t.Fatalf("HTTP/1.0 keep-alive response must say so explicitly, got %q", out.String())
	}
}

// An explicit Connection: close on the response head overrides a codec
// decision of KeepAlive.
func TestExplicitCloseOverridesKeepAlive(t *testing.T) {
	c := NewCodec(DefaultDecoderLimits, fixedClock(), true)
	buf := NewBuffer()
	buf.Append([]byte("GET / HTTP/1.1\r\n\r\n"))
	if _, _, ok, err := c.Decode(buf, func(*Buffer) error { return nil }); err != nil || !ok {
		t.Fatalf("decode: ok=%v err=%v", ok, err)
	}
	if !c.KeepAlive() {
		t.Fatal("HTTP/1.1 should default to keep-alive")
	}

	var out bytes.Buffer
	h := response.NewHead(200)
	h.Header.Set("Connection", "close")
	if err := c.Encode(&out, h, SizeEmpty); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(out.String(), "Connection: close\r\n") {
		t.Fatalf("explicit close must be honored, got %q", out.String())
	}
	if c.KeepAlive() {
		t.Fatal("codec must adopt the explicit close decision")
	}
}

// Round-trip law: an encoded sized response re-parses with the stdlib
// HTTP/1.1 reader to the same status, headers, and body.
func TestEncodedResponseRoundTripsThroughReferenceParser(t *testing.T) {
	c := NewCodec(DefaultDecoderLimits, fixedClock(), true)
	c.version = Version11

	body := "hello world"
	h := response.NewHead(200)
	h.Header.Set("Content-Type", "text/plain")

	var out bytes.Buffer
	if err := c.Encode(&out, h, SizeSized(uint64(len(body)))); err != nil {
		t.Fatalf("encode head: %v", err)
	}
	if err := c.EncodeChunk(&out, []byte(body)); err != nil {
		t.Fatalf("encode body: %v", err)
	}
	if err := c.EncodeEOF(&out); err != nil {
		t.Fatalf("encode eof: %v", err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(&out), nil)
	if err != nil {
		t.Fatalf("reference parser rejected our output: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "text/plain" {
		t.Fatalf("Content-Type = %q", got)
	}
	if resp.ContentLength != int64(len(body)) {
		t.Fatalf("ContentLength = %d, want %d", resp.ContentLength, len(body))
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(b) != body {
		t.Fatalf("body = %q, want %q", b, body)
	}
}

// An explicit Connection: keep-alive in the response head never
// overrides a codec decision of Close.
func TestExplicitKeepAliveDoesNotOverrideClose(t *testing.T) {
	c := NewCodec(DefaultDecoderLimits, fixedClock(), true)
	buf := NewBuffer()
	buf.Append([]byte("GET / HTTP/1.1\r\nConnection: close\r\n\r\n"))
	if _, _, ok, err := c.Decode(buf, func(*Buffer) error { return nil }); err != nil || !ok {
		t.Fatalf("decode: ok=%v err=%v", ok, err)
	}

	var out bytes.Buffer
	h := response.NewHead(200)
	h.Header.Set("Connection", "keep-alive")
	if err := c.Encode(&out, h, SizeEmpty); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(out.String(), "Connection: close\r\n") {
		t.Fatalf("codec's Close decision must win, got %q", out.String())
	}
}
