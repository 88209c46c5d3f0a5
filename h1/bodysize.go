/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package h1

// SizeKind distinguishes the variants of BodySize.
type SizeKind uint8

const (
	// SizeNone means no body section applies at all (e.g. a 1xx/204/304
	// response, or a bodyless request method).
	SizeNone SizeKind = iota
	// SizeEmptyKind means a body section is allowed but is zero bytes.
	SizeEmptyKind
	// SizeSizedKind means a body of known length, framed with
	// Content-Length.
	SizeSizedKind
	// SizeStreamKind means an indefinite-length body, framed with
	// chunked transfer-encoding (HTTP/1.1) or connection-close (HTTP/1.0).
	SizeStreamKind
)

// BodySize determines how Encoder frames a response body, and how
// Decoder classifies the payload it just parsed.
type BodySize struct {
	Kind  SizeKind
	Sized uint64 // valid only when Kind == SizeSizedKind
}

// SizeNoneVal, SizeEmpty, SizeStream are the zero-argument BodySize
// constructors; SizeSized builds the sized variant.
var (
	SizeNoneVal = BodySize{Kind: SizeNone}
	SizeEmpty   = BodySize{Kind: SizeEmptyKind}
	SizeStream  = BodySize{Kind: SizeStreamKind}
)

// SizeSized returns a BodySize framing a body of exactly n bytes.
func SizeSized(n uint64) BodySize { return BodySize{Kind: SizeSizedKind, Sized: n} }

// NeedsFramingHeader reports whether this BodySize requires the encoder
// to emit a Content-Length or Transfer-Encoding header.
func (b BodySize) NeedsFramingHeader() bool {
	return b.Kind == SizeSizedKind || b.Kind == SizeStreamKind
}
