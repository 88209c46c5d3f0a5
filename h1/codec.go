/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package h1

import (
	"io"

	"github.com/relaywire/h1d/hdr"
	"github.com/relaywire/h1d/request"
	"github.com/relaywire/h1d/response"
)

// codecState records where a Codec is in its per-request lifecycle. It
// is only recorded: no Codec method checks it to reject calls made out
// of order.
type codecState uint8

const (
	stateIdle codecState = iota
	stateHeadDecoded
	stateBodyDecoding
	stateHeadEncoded
	stateBodyEncoding
)

// Codec composes a Decoder and Encoder with the per-connection state
// that has to outlive any single request: the negotiated protocol
// version, the most recently decided connection type, and the packed
// Flags bitset. One Codec is created per accepted connection and reused
// across every pipelined request on it.
type Codec struct {
	dec *Decoder
	enc *Encoder

	flags            Flags
	version          Version
	ctype            ConnType
	keepAliveEnabled bool

	// bodyKind is the SizeKind of the response head most recently
	// passed to Encode. EncodeChunk and EncodeEOF dispatch on it rather
	// than trusting the caller to resupply a consistent BodySize on
	// every call.
	bodyKind SizeKind

	state codecState
}

// NewCodec returns a Codec bounded by limits and stamping Date headers
// via now, with connection reuse permitted according to keepAliveEnabled.
func NewCodec(limits DecoderLimits, now DateProvider, keepAliveEnabled bool) *Codec {
	c := &Codec{
		dec:     NewDecoder(limits),
		enc:     NewEncoder(now),
		version: Version11,
		ctype:   ConnKeepAlive,
	}
	c.keepAliveEnabled = keepAliveEnabled
	c.flags = c.flags.With(FlagKeepAliveEnabled, keepAliveEnabled)
	return c
}

// Upgrade reports whether the most recently decoded request switched
// this connection into upgrade mode.
func (c *Codec) Upgrade() bool { return c.ctype == ConnUpgrade }

// KeepAlive reports whether the connection should remain open for
// another request after the in-flight one completes.
func (c *Codec) KeepAlive() bool { return c.ctype == ConnKeepAlive }

// KeepAliveEnabled reports the server-level policy this Codec was
// constructed with, independent of any single request's outcome.
func (c *Codec) KeepAliveEnabled() bool { return c.keepAliveEnabled }

// ConnType returns the connection disposition decided by the most
// recent Decode call, as since adjusted by Encode's reconciliation of an
// explicit Connection header or by ForceClose.
func (c *Codec) ConnType() ConnType { return c.ctype }

// Version returns the protocol version of the most recently decoded
// request.
func (c *Codec) Version() Version { return c.version }

// Limits returns the header-size configuration this Codec's decoder
// enforces.
func (c *Codec) Limits() DecoderLimits { return c.dec.limits }

// ForceClose overrides the Codec's connection-type decision to
// ConnClose, for the dispatcher-level policies that unconditionally
// override it (a truncated mid-body response, an expect-continue
// rejection) regardless of what the request's Connection header asked
// for.
func (c *Codec) ForceClose() { c.ctype = ConnClose }

// Decode parses the next request head off buf, refilling via fill when
// more bytes are needed. It returns ok=false (with a nil error) when buf
// holds an incomplete head — the caller should read more off the wire
// and retry. Decoding a request head also recomputes the Codec's
// connection-type decision, which Encode later uses to pick the
// Connection response header.
func (c *Codec) Decode(buf *Buffer, fill Filler) (*request.Head, Payload, bool, error) {
	head, payload, ok, err := c.dec.Decode(buf, fill)
	if err != nil || !ok {
		return nil, Payload{}, ok, err
	}

	c.version = Version{Major: head.ProtoMajor, Minor: head.ProtoMinor}
	c.flags = c.flags.With(FlagHead, head.Method == "HEAD")
	c.flags = c.flags.With(FlagStream, payload.Kind == PayloadStreamKind)

	sig := ConnSignals{
		Close:       head.WantsClose(),
		KeepAlive:   head.WantsKeepAlive(),
		WantUpgrade: head.IsUpgrade(),
	}
	c.ctype = DecideConnType(sig, c.version, c.keepAliveEnabled)
	c.state = stateHeadDecoded

	return head, payload, true, nil
}

// Encode writes head's status line, headers, and framing header to w,
// applying the Codec's current connection type and protocol version.
// A Connection header set explicitly on head reconciles against the
// Codec's decision first: an explicit close or upgrade overrides the
// Codec, while an explicit keep-alive is ignored — the Codec never
// reopens a connection it already decided to tear down. For a HEAD
// request (tracked via Flags), size still determines the framing
// header written, and any EncodeChunk calls that follow write nothing.
func (c *Codec) Encode(w io.Writer, head *response.Head, size BodySize) error {
	c.reconcileConnType(head)
	c.state = stateHeadEncoded
	err := c.enc.Encode(w, head, size, c.version, c.ctype)
	c.bodyKind = size.Kind
	if err == nil && (size.Kind == SizeStreamKind || size.Kind == SizeSizedKind) {
		c.state = stateBodyEncoding
	} else {
		c.state = stateIdle
	}
	return err
}

// reconcileConnType folds an explicit Connection header on a response
// head into the Codec's connection-type decision before encoding.
func (c *Codec) reconcileConnType(head *response.Head) {
	v := head.Header.Get(hdr.Connection)
	if v == "" {
		return
	}
	switch {
	case hdr.HasToken(v, "close"):
		c.ctype = ConnClose
	case hdr.HasToken(v, "upgrade"):
		c.ctype = ConnUpgrade
	}
	// An explicit keep-alive preserves whatever the Codec decided.
}

// EncodeChunk writes one body chunk, framed according to the BodySize
// of the head most recently passed to Encode: a chunked-transfer frame
// for a SizeStream body on HTTP/1.1, raw passthrough bytes for a sized
// body or an HTTP/1.0 until-close stream (Content-Length, or the
// absence of any framing header, already told the peer how to delimit
// it), and a no-op for SizeNone/SizeEmptyKind, where no body section is
// permitted at all. Always a no-op for HEAD requests, since their
// response never carries a body regardless of framing.
func (c *Codec) EncodeChunk(w io.Writer, chunk []byte) error {
	if c.flags.Has(FlagHead) || len(chunk) == 0 {
		return nil
	}
	switch c.bodyKind {
	case SizeStreamKind:
		if c.version.AtLeast(1, 1) {
			return c.enc.EncodeChunk(w, chunk)
		}
		_, err := w.Write(chunk)
		return err
	case SizeSizedKind:
		_, err := w.Write(chunk)
		return err
	default: // SizeNone, SizeEmptyKind
		return nil
	}
}

// EncodeEOF terminates the in-flight response body and resets the Codec
// to accept the next request head. Only a SizeStream body on HTTP/1.1
// writes anything (the terminating zero-length chunk); every other
// framing is self-delimiting and EncodeEOF is a no-op for it.
func (c *Codec) EncodeEOF(w io.Writer) error {
	defer func() { c.state = stateIdle }()
	if c.flags.Has(FlagHead) {
		return nil
	}
	return c.enc.EncodeEOF(w, BodySize{Kind: c.bodyKind}, c.version)
}

// EncodeMessage dispatches msg to Encode, EncodeChunk, or EncodeEOF
// according to its Kind — the single entry point a caller needs for
// the tagged write side.
func (c *Codec) EncodeMessage(w io.Writer, msg Message[*response.Head]) error {
	switch msg.Kind {
	case MsgItem:
		return c.Encode(w, msg.Head, msg.BodySize)
	case MsgChunk:
		return c.EncodeChunk(w, msg.Chunk)
	case MsgChunkEOF:
		return c.EncodeEOF(w)
	default:
		return nil
	}
}
