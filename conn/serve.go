/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package conn

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/relaywire/h1d/flow"
)

// defaultTCPKeepAlivePeriod is the probe interval applied to accepted
// connections when the flow.KeepAliveOS policy is selected and no
// interval is configured.
const defaultTCPKeepAlivePeriod = 3 * time.Minute

// tcpKeepAliveListener wraps a TCPListener so every accepted connection
// has OS-level TCP keep-alive probes enabled — the reaping mechanism
// flow.KeepAliveOS delegates idle-connection cleanup to, in place of an
// application timer.
type tcpKeepAliveListener struct {
	*net.TCPListener
	period time.Duration
}

func (l tcpKeepAliveListener) Accept() (net.Conn, error) {
	conn, err := l.AcceptTCP()
	if err != nil {
		return conn, err
	}
	conn.SetKeepAlive(true)
	conn.SetKeepAlivePeriod(l.period)
	return conn, nil
}

// Serve accepts connections from ln until ctx is cancelled or Accept
// fails, running Handle for each on its own goroutine. Before every
// Accept it awaits the Flow's combined readiness, so backpressure from
// any of the three services reaches the acceptor. For connections that
// arrive over TLS, the handshake runs here and ALPN selects the
// protocol; plain TCP connections default to HTTP/1.
func (h *Handler) Serve(ctx context.Context, ln net.Listener) error {
	if h.Config.KeepAliveMode == flow.KeepAliveOS {
		if tl, ok := ln.(*net.TCPListener); ok {
			period := defaultTCPKeepAlivePeriod
			if h.Config.KeepAliveSeconds > 0 {
				period = time.Duration(h.Config.KeepAliveSeconds) * time.Second
			}
			ln = tcpKeepAliveListener{tl, period}
		}
	}

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	logger := h.Config.GetLogger()
	for {
		if err := h.Ready(ctx); err != nil {
			return err
		}
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}
		go h.serveConn(ctx, c, logger)
	}
}

// serveConn completes the TLS handshake when applicable, resolves the
// protocol, and runs the per-connection Handle.
func (h *Handler) serveConn(ctx context.Context, c net.Conn, logger *zap.Logger) {
	proto := ProtocolHTTP1
	if tc, ok := c.(*tls.Conn); ok {
		if err := tc.HandshakeContext(ctx); err != nil {
			logger.Debug("tls handshake failed",
				zap.String("remote_addr", addrString(c.RemoteAddr())), zap.Error(err))
			c.Close()
			return
		}
		proto = ProtocolFromALPN(tc.ConnectionState().NegotiatedProtocol)
	}
	if err := h.Handle(ctx, c, proto, c.RemoteAddr()); err != nil {
		logger.Debug("connection terminated with error",
			zap.String("remote_addr", addrString(c.RemoteAddr())), zap.Error(err))
	}
}
