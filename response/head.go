/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package response holds the server-side view of a response head, the
// input to h1.Encoder: status, reason, and headers. Body transfer is
// modeled separately by h1.BodySize and the chunk-by-chunk message
// stream.
package response

import "github.com/relaywire/h1d/hdr"

// Head is a response status line plus headers, as produced by a
// flow.MainService (or by the dispatcher for its own error replies) and
// consumed by h1.Codec.Encode.
type Head struct {
	StatusCode int
	// Reason overrides the default textual reason phrase for StatusCode
	// when non-empty.
	Reason string
	Header hdr.Header
}

// NewHead returns a Head with an initialized, empty header map.
func NewHead(status int) *Head {
	return &Head{StatusCode: status, Header: make(hdr.Header)}
}

// Clone returns a deep copy of h, safe to mutate independently.
func (h *Head) Clone() *Head {
	c := &Head{StatusCode: h.StatusCode, Reason: h.Reason}
	if h.Header != nil {
		c.Header = h.Header.Clone()
	}
	return c
}
