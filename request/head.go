/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package request holds the server-side view of a decoded HTTP request
// head, the output of h1.Decoder.
package request

import (
	"context"
	"net"

	"github.com/relaywire/h1d/hdr"
)

// Head is the parsed request line plus headers. It never carries a body
// reader directly — the body is handed back alongside Head as a
// h1.Payload, keeping head parsing and body streaming independent.
type Head struct {
	Method     string
	Target     string // raw request-target, as it appeared on the wire
	Path       string
	RawQuery   string
	ProtoMajor int
	ProtoMinor int
	Header     hdr.Header
	Host       string

	ContentLength    int64 // -1 if unknown/chunked
	TransferEncoding []string
	Close            bool // request carried "Connection: close"

	RemoteAddr net.Addr
	// Extensions is a per-request copy of the connection's extension
	// bag, seeded by the connect callback. Handlers may mutate it freely
	// without it leaking into the next pipelined request.
	Extensions map[string]any

	ctx context.Context
}

// ProtoAtLeast reports whether the HTTP protocol used in the request is
// at least major.minor.
func (h *Head) ProtoAtLeast(major, minor int) bool {
	return h.ProtoMajor > major || (h.ProtoMajor == major && h.ProtoMinor >= minor)
}

// Context returns the request's context, set once by the dispatcher
// before the main service is invoked. Never nil after decode.
func (h *Head) Context() context.Context {
	if h.ctx == nil {
		return context.Background()
	}
	return h.ctx
}

// WithContext returns a shallow copy of h with its context changed to
// ctx, mirroring net/http's Request.WithContext contract (ctx must be
// non-nil).
func (h *Head) WithContext(ctx context.Context) *Head {
	if ctx == nil {
		panic("request: nil context")
	}
	h2 := new(Head)
	*h2 = *h
	h2.ctx = ctx
	return h2
}

// Expects100Continue reports whether the request carries
// "Expect: 100-continue", per RFC 7231 §5.1.1.
func (h *Head) Expects100Continue() bool {
	return hdr.TrimString(h.Header.Get(hdr.Expect)) == "100-continue"
}

// IsUpgrade reports whether the request asked to switch protocols via
// "Connection: upgrade".
func (h *Head) IsUpgrade() bool {
	return hdr.HasToken(h.Header.Get(hdr.Connection), "upgrade")
}

// WantsClose reports whether the request carried "Connection: close".
func (h *Head) WantsClose() bool {
	return hdr.HasToken(h.Header.Get(hdr.Connection), "close")
}

// WantsKeepAlive reports whether the request carried
// "Connection: keep-alive" (only meaningful for HTTP/1.0 opt-in).
func (h *Head) WantsKeepAlive() bool {
	return hdr.HasToken(h.Header.Get(hdr.Connection), "keep-alive")
}
