/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package hdr implements the case-insensitive, multi-valued header map
// shared by the request decoder and the response encoder, together with
// the canonicalization, field-validation, and token-matching rules of
// RFC 7230.
package hdr

import (
	"io"
	"sort"
	"strings"
)

// Header maps canonicalized field names to their values, in order of
// arrival.
type Header map[string][]string

// Add appends value under key, canonicalizing key first.
func (h Header) Add(key, value string) {
	key = CanonicalHeaderKey(key)
	h[key] = append(h[key], value)
}

// Set replaces all values stored under key with value.
func (h Header) Set(key, value string) {
	h[CanonicalHeaderKey(key)] = []string{value}
}

// Get returns the first value stored under key, or "" when the key is
// absent.
func (h Header) Get(key string) string {
	if vs := h[CanonicalHeaderKey(key)]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Del removes all values stored under key.
func (h Header) Del(key string) {
	delete(h, CanonicalHeaderKey(key))
}

// Clone returns a copy of h whose value slices may be mutated
// independently of the original.
func (h Header) Clone() Header {
	h2 := make(Header, len(h))
	for k, vs := range h {
		h2[k] = append([]string(nil), vs...)
	}
	return h2
}

// Write serializes h in wire format, one "Key: value\r\n" line per
// value, keys in sorted order.
func (h Header) Write(w io.Writer) error {
	return h.WriteSubset(w, nil)
}

// WriteSubset is Write, skipping keys for which exclude[key] is true.
// Keys are written as stored; only Add/Set/Get/Del canonicalize.
func (h Header) WriteSubset(w io.Writer, exclude map[string]bool) error {
	keys := make([]string, 0, len(h))
	for k := range h {
		if exclude == nil || !exclude[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var line []byte
	for _, k := range keys {
		for _, v := range h[k] {
			line = append(line[:0], k...)
			line = append(line, ':', ' ')
			line = append(line, sanitizeFieldValue(v)...)
			line = append(line, '\r', '\n')
			if _, err := w.Write(line); err != nil {
				return err
			}
		}
	}
	return nil
}

// sanitizeFieldValue strips a value of header-framing bytes before it
// goes on the wire: embedded CR/LF become spaces, surrounding
// whitespace is dropped. A stored value can never break the header
// block this way.
func sanitizeFieldValue(v string) string {
	if strings.ContainsAny(v, "\r\n") {
		b := []byte(v)
		for i, c := range b {
			if c == '\r' || c == '\n' {
				b[i] = ' '
			}
		}
		v = string(b)
	}
	return TrimString(v)
}
