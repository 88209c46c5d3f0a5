/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package flow holds the collaborator contracts a connection needs —
// the main application service plus the expect-continue and upgrade
// auxiliary services — and the immutable triple that binds them to one
// connection.
package flow

import (
	"context"
	"io"
	"net"

	"github.com/relaywire/h1d/h1"
	"github.com/relaywire/h1d/request"
	"github.com/relaywire/h1d/response"
)

// MainService handles every request that isn't rejected by the expect
// service. It returns the response head, the BodySize to frame it with,
// and an io.Reader the dispatcher pumps chunk by chunk (nil for bodies
// of SizeNone/SizeEmptyKind).
type MainService interface {
	Ready(ctx context.Context) error
	Handle(ctx context.Context, req *request.Head, body h1.Payload) (*response.Head, h1.BodySize, io.Reader, error)
}

// ExpectService decides whether a request carrying "Expect:
// 100-continue" may proceed. On success it returns the (possibly
// rewritten) request to forward to MainService; on failure it returns
// an error, and the dispatcher sends a 500 response instead of the 100
// Continue preface and closes the connection.
type ExpectService interface {
	Ready(ctx context.Context) error
	Handle(ctx context.Context, req *request.Head) (*request.Head, error)
}

// UpgradeService takes ownership of a connection once its switching
// response has been written. FramedTransport is declared by the conn
// package; it is referenced here only as an opaque interface{} boundary
// to avoid an import cycle (flow is imported by conn, not the reverse).
type UpgradeService interface {
	Ready(ctx context.Context) error
	Handle(ctx context.Context, req *request.Head, transport any) error
}

// ConnectCallback is invoked once per accepted connection, before any
// bytes are read, contributing extensions that request.Head.Extensions
// copies into every request on that connection.
type ConnectCallback func(net.Conn) map[string]any

// NopConnectCallback contributes no extensions.
func NopConnectCallback(net.Conn) map[string]any { return nil }

// identityExpect forwards every request unchanged and never rejects,
// the default when a configuration opts out of its own expect service.
// An expect service is always present on a Flow, even when the caller
// never configured one.
type identityExpect struct{}

func (identityExpect) Ready(context.Context) error { return nil }

func (identityExpect) Handle(_ context.Context, req *request.Head) (*request.Head, error) {
	return req, nil
}

// IdentityExpect is the default ExpectService: always ready, always
// forwards.
var IdentityExpect ExpectService = identityExpect{}
