/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package conn

import (
	"context"
	"fmt"
	"net"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relaywire/h1d/flow"
	"github.com/relaywire/h1d/h1"
)

// Protocol is the pre-negotiated transport the acceptor has already
// decided for a connection — by ALPN for a TLS listener, or defaulted
// to HTTP/1 for a plain TCP listener — before Handler.Handle is called.
type Protocol uint8

const (
	ProtocolHTTP1 Protocol = iota
	ProtocolHTTP2
)

func (p Protocol) String() string {
	if p == ProtocolHTTP2 {
		return "h2"
	}
	return "http/1.1"
}

// ProtocolFromALPN maps a crypto/tls negotiated-protocol string to a
// Protocol. Only "h2" selects HTTP/2; every other ALPN value, including
// "http/1.1" and the empty string from a plain TCP listener, defaults
// to HTTP/1.
func ProtocolFromALPN(negotiated string) Protocol {
	if negotiated == "h2" {
		return ProtocolHTTP2
	}
	return ProtocolHTTP1
}

// Handler is the per-connection entry point: it owns the Flow shared by
// every connection accepted for this service, the ServiceConfig, and
// the connect callback contributing per-connection extensions.
type Handler struct {
	Flow    *flow.Flow
	Config  *flow.ServiceConfig
	Connect flow.ConnectCallback

	// H2Dispatch receives connections that completed the HTTP/2 server
	// preface handshake, along with the flow, config, and peer address.
	// The HTTP/2 dispatcher itself lives outside this package; when
	// unset, handshaken connections are closed.
	H2Dispatch func(ctx context.Context, c net.Conn, fl *flow.Flow, cfg *flow.ServiceConfig, peer net.Addr) error
}

// NewHandler returns a Handler, defaulting Config and Connect when nil.
func NewHandler(fl *flow.Flow, cfg *flow.ServiceConfig, connect flow.ConnectCallback) *Handler {
	if cfg == nil {
		cfg = flow.DefaultServiceConfig()
	}
	if connect == nil {
		connect = flow.NopConnectCallback
	}
	return &Handler{Flow: fl, Config: cfg, Connect: connect}
}

// Ready reports the combined readiness of the handler's Flow — main,
// expect, and (if configured) upgrade — so an acceptor can apply
// backpressure before accepting further connections.
func (h *Handler) Ready(ctx context.Context) error { return h.Flow.Ready(ctx) }

// Handle negotiates protocol for one accepted connection and either
// runs the H1 dispatch loop directly or performs the H2 handshake and
// hands off — the H2 dispatcher itself runs elsewhere and is not part
// of this package.
func (h *Handler) Handle(ctx context.Context, c net.Conn, proto Protocol, peerAddr net.Addr) error {
	connID := uuid.NewString()
	logger := h.Config.GetLogger().With(
		zap.String("conn_id", connID),
		zap.String("remote_addr", addrString(peerAddr)),
		zap.Stringer("protocol", proto),
	)

	activeConnections.Inc()
	defer activeConnections.Dec()

	extensions := h.Connect(c)

	switch proto {
	case ProtocolHTTP2:
		if err := performH2Handshake(c); err != nil {
			logger.Error("h2 handshake failed", zap.Error(err))
			return &H2HandshakeError{Err: err}
		}
		if h.H2Dispatch == nil {
			logger.Debug("h2 handshake complete but no h2 dispatcher is wired, closing")
			return c.Close()
		}
		logger.Debug("h2 handshake complete, handing connection to h2 dispatcher")
		return h.H2Dispatch(ctx, c, h.Flow, h.Config, peerAddr)
	case ProtocolHTTP1:
		codec := h1.NewCodec(h.Config.HeaderLimits, h.Config.DateProvider(), h.Config.KeepAliveEnabled())
		transport := NewFramedTransport(c, codec)
		defer transport.Release()

		d := &Dispatcher{
			Transport:  transport,
			Flow:       h.Flow,
			Config:     h.Config,
			PeerAddr:   peerAddr,
			Extensions: extensions,
			Logger:     logger,
			ConnID:     connID,
		}
		return d.Serve(ctx)
	default:
		return fmt.Errorf("conn: unknown protocol %d", proto)
	}
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
