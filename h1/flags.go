/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package h1

// Flags is a packed per-connection bitset: three independent bits
// reflecting the most recently decoded request plus server-level
// policy, kept as a small integer with named bit constants rather than
// three separate booleans.
type Flags uint8

const (
	// FlagHead is set when the current request's method is HEAD; the
	// encoder must suppress any response body for it.
	FlagHead Flags = 1 << iota
	// FlagKeepAliveEnabled reflects server-level policy: whether
	// connection reuse is permitted at all.
	FlagKeepAliveEnabled
	// FlagStream is set when the current request's payload is an
	// HTTP/1.0 until-close stream (PayloadStreamKind). A chunked body
	// decodes as PayloadBody and does not set it.
	FlagStream
)

// Has reports whether all bits in mask are set.
func (f Flags) Has(mask Flags) bool { return f&mask == mask }

// Set returns f with mask's bits set.
func (f Flags) Set(mask Flags) Flags { return f | mask }

// Clear returns f with mask's bits cleared.
func (f Flags) Clear(mask Flags) Flags { return f &^ mask }

// With returns f with mask's bits set to on.
func (f Flags) With(mask Flags, on bool) Flags {
	if on {
		return f.Set(mask)
	}
	return f.Clear(mask)
}
