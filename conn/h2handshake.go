/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package conn

import (
	"fmt"
	"io"
	"net"

	"golang.org/x/net/http2"
)

// performH2Handshake reads and validates the 24-byte HTTP/2 client
// preface and writes the server's initial (empty) SETTINGS frame. This
// is the full extent of HTTP/2 support handled here: the connection is
// handed off to an HTTP/2 dispatcher immediately afterward, so nothing
// beyond the Framer handshake types from golang.org/x/net/http2 is
// imported here.
func performH2Handshake(c net.Conn) error {
	preface := make([]byte, len(http2.ClientPreface))
	if _, err := io.ReadFull(c, preface); err != nil {
		return fmt.Errorf("conn: reading HTTP/2 client preface: %w", err)
	}
	if string(preface) != http2.ClientPreface {
		return fmt.Errorf("conn: invalid HTTP/2 client preface")
	}

	fr := http2.NewFramer(c, c)
	if err := fr.WriteSettings(); err != nil {
		return fmt.Errorf("conn: writing server SETTINGS frame: %w", err)
	}
	return nil
}
