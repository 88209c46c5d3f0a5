/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package conn implements the connection orchestrator: protocol
// negotiation, the H1 dispatch loop, and the framed transport pairing a
// net.Conn with an h1.Codec.
package conn

import "fmt"

// TimeoutKind distinguishes the three places a deadline can fire:
// waiting for a request head, waiting for the next pipelined request
// on an idle keep-alive connection, and a graceful-shutdown deadline.
type TimeoutKind uint8

const (
	TimeoutClientHead TimeoutKind = iota
	TimeoutKeepAliveIdle
	TimeoutShutdown
)

func (k TimeoutKind) String() string {
	switch k {
	case TimeoutClientHead:
		return "client-head"
	case TimeoutKeepAliveIdle:
		return "keep-alive-idle"
	case TimeoutShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// IOError wraps a socket read/write failure. Always terminal.
type IOError struct{ Err error }

func (e *IOError) Error() string { return fmt.Sprintf("conn: io error: %v", e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// TimeoutError is one of {client-head, keep-alive-idle, shutdown}.
// Terminal; no response is emitted if a head has not been read yet.
type TimeoutError struct{ Kind TimeoutKind }

func (e *TimeoutError) Error() string { return fmt.Sprintf("conn: timeout (%s)", e.Kind) }

// ServiceError wraps a failure from the main, expect, or upgrade
// service. The dispatcher emits a 500 only when the service failed
// before producing its own error response.
type ServiceError struct{ Err error }

func (e *ServiceError) Error() string { return fmt.Sprintf("conn: service error: %v", e.Err) }
func (e *ServiceError) Unwrap() error { return e.Err }

// H2HandshakeError wraps a failed HTTP/2 server preface handshake.
// Terminal.
type H2HandshakeError struct{ Err error }

func (e *H2HandshakeError) Error() string { return fmt.Sprintf("conn: h2 handshake error: %v", e.Err) }
func (e *H2HandshakeError) Unwrap() error { return e.Err }
