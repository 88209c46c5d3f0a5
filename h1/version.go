/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package h1

import "fmt"

// Version is an HTTP protocol version. This codec only decodes 1.0 and
// 1.1; any other version fails to parse.
type Version struct {
	Major, Minor int
}

// Version11 and Version10 are the only versions this codec decodes.
var (
	Version11 = Version{1, 1}
	Version10 = Version{1, 0}
)

// AtLeast reports whether v is >= major.minor.
func (v Version) AtLeast(major, minor int) bool {
	return v.Major > major || (v.Major == major && v.Minor >= minor)
}

func (v Version) String() string {
	return fmt.Sprintf("HTTP/%d.%d", v.Major, v.Minor)
}

// ConnType is the connection disposition derived from a request's
// Connection header and server policy.
type ConnType uint8

const (
	// ConnKeepAlive means the connection may be reused for another
	// request/response cycle.
	ConnKeepAlive ConnType = iota
	// ConnClose means the connection is torn down after this response.
	ConnClose
	// ConnUpgrade means the connection is handed to an upgrade service
	// after this response's head is sent.
	ConnUpgrade
)

func (c ConnType) String() string {
	switch c {
	case ConnKeepAlive:
		return "keep-alive"
	case ConnClose:
		return "close"
	case ConnUpgrade:
		return "upgrade"
	default:
		return "unknown"
	}
}

// ConnSignals summarizes what a decoded request's Connection header(s)
// asked for, independent of protocol version or server policy.
type ConnSignals struct {
	Close       bool // "Connection: close" present
	KeepAlive   bool // "Connection: keep-alive" present
	WantUpgrade bool // "Connection: upgrade" present
}

// DecideConnType is a pure function: given a decoded request head's
// Connection-related signals, its protocol version, and whether the
// server allows keep-alive at all, it decides the connection's
// disposition. An upgrade request always yields ConnUpgrade.
// ConnKeepAlive is only ever returned when keep-alive is enabled by
// policy; every other path falls back to ConnClose.
func DecideConnType(sig ConnSignals, proto Version, keepAliveEnabled bool) ConnType {
	switch {
	case sig.WantUpgrade:
		return ConnUpgrade
	case sig.Close:
		return ConnClose
	case !keepAliveEnabled:
		return ConnClose
	case proto.AtLeast(1, 1):
		// HTTP/1.1 defaults to keep-alive unless Close was requested.
		return ConnKeepAlive
	case sig.KeepAlive:
		// HTTP/1.0 must opt in explicitly (S3).
		return ConnKeepAlive
	default:
		return ConnClose
	}
}
