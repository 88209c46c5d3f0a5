/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package conn

import (
	"context"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/relaywire/h1d/flow"
	"github.com/relaywire/h1d/h1"
	"github.com/relaywire/h1d/hdr"
	"github.com/relaywire/h1d/request"
	"github.com/relaywire/h1d/response"
)

// responseCopyBufSize is the chunk size used to pump a main service's
// response body reader through Codec.EncodeChunk.
const responseCopyBufSize = 32 * 1024

// Dispatcher drives the read-decode-invoke-encode-write loop for one
// HTTP/1 connection. It owns the FramedTransport, the Flow shared
// across the connection, per-connection data, config, and peer
// address. A single goroutine runs this loop per connection, which is
// what keeps pipelined requests strictly ordered: request N+1 is not
// decoded until request N's response has been fully encoded.
type Dispatcher struct {
	Transport  *FramedTransport
	Flow       *flow.Flow
	Config     *flow.ServiceConfig
	PeerAddr   net.Addr
	Extensions map[string]any
	Logger     *zap.Logger
	ConnID     string

	// served counts completed request/response cycles on this
	// connection, distinguishing a client-head timeout (nothing served
	// yet) from a keep-alive idle timeout between requests.
	served int
}

// Serve runs the dispatch loop until the connection is closed, handed
// off to an upgrade service, or ctx is cancelled. It never returns an
// error for a clean peer-initiated close. Cancellation mid-response
// forces the socket closed without writing a trailer; cancellation
// while idle between requests terminates cleanly.
func (d *Dispatcher) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { d.Transport.Conn.Close() })
	defer stop()

	for {
		keepAliveDeadline := d.armKeepAliveDeadline()
		req, payload, err := d.readRequest(ctx, keepAliveDeadline)
		if err != nil {
			return d.handleReadError(ctx, err)
		}

		req.RemoteAddr = d.PeerAddr
		req.Extensions = cloneExtensions(d.Extensions)

		reqCtx, cancel := context.WithCancel(ctx)
		req = req.WithContext(reqCtx)

		head, size, body, forceClose, err := d.invoke(reqCtx, req, payload)
		if err != nil {
			cancel()
			return &IOError{Err: err}
		}
		if !forceClose { // an expect rejection never reaches the main service
			requestsDispatched.Inc()
		}

		if forceClose {
			d.Transport.Codec.ForceClose()
		}

		if err := d.writeResponse(head, size, body); err != nil {
			cancel()
			d.Logger.Error("write response failed", zap.Error(err))
			return &IOError{Err: err}
		}
		cancel()
		d.served++

		switch d.Transport.Codec.ConnType() {
		case h1.ConnKeepAlive:
			continue
		case h1.ConnUpgrade:
			if d.Flow.HasUpgrade() && req.IsUpgrade() {
				if err := d.Flow.Upgrade.Ready(ctx); err != nil {
					d.closeConn()
					return err
				}
				upgradeHandovers.Inc()
				return d.Flow.Upgrade.Handle(ctx, req, d.Transport)
			}
			d.closeConn()
			return nil
		default: // h1.ConnClose
			return d.shutdown()
		}
	}
}

// shutdown flushes any buffered response bytes, closes the write half
// so the peer sees a clean FIN, and allows a bounded drain for the
// peer's own FIN before fully closing the socket. Exceeding the drain
// budget surfaces as a shutdown timeout.
func (d *Dispatcher) shutdown() error {
	_ = d.Transport.Flush()
	cw, ok := d.Transport.Conn.(interface{ CloseWrite() error })
	if ok && d.Config.ClientShutdownTimeout > 0 {
		_ = cw.CloseWrite()
		_ = d.Transport.Conn.SetReadDeadline(time.Now().Add(d.Config.ClientShutdownTimeout))
		buf := make([]byte, 256)
		for {
			_, err := d.Transport.Conn.Read(buf)
			if err == nil {
				continue
			}
			if ne, isNet := err.(net.Error); isNet && ne.Timeout() {
				d.Logger.Error("client shutdown timeout", zap.String("conn_id", d.ConnID))
				_ = d.Transport.Conn.Close()
				return &TimeoutError{Kind: TimeoutShutdown}
			}
			break
		}
	}
	_ = d.Transport.Conn.Close()
	return nil
}

// armKeepAliveDeadline computes the absolute deadline for the upcoming
// read, racing the configured keep-alive idle timer against the read
// itself. A zero Time means no deadline.
func (d *Dispatcher) armKeepAliveDeadline() time.Time {
	if d.Config.KeepAliveMode != flow.KeepAliveTimeout || d.Config.KeepAliveSeconds <= 0 {
		return time.Time{}
	}
	return time.Now().Add(time.Duration(d.Config.KeepAliveSeconds) * time.Second)
}

// readRequest awaits combined main+expect readiness, then reads and
// decodes one request head, applying keepAliveDeadline as the
// connection's read deadline beforehand.
func (d *Dispatcher) readRequest(ctx context.Context, keepAliveDeadline time.Time) (*request.Head, h1.Payload, error) {
	if err := d.awaitMainExpectReady(ctx); err != nil {
		return nil, h1.Payload{}, err
	}

	deadline := keepAliveDeadline
	if d.Config.ClientTimeout > 0 {
		clientDeadline := time.Now().Add(d.Config.ClientTimeout)
		if deadline.IsZero() || clientDeadline.Before(deadline) {
			deadline = clientDeadline
		}
	}
	if !deadline.IsZero() {
		_ = d.Transport.Conn.SetReadDeadline(deadline)
	}

	req, payload, err := d.Transport.ReadDecode()
	if err == nil {
		_ = d.Transport.Conn.SetReadDeadline(time.Time{})
	}
	return req, payload, err
}

// awaitMainExpectReady blocks until main+expect report ready or ctx is
// cancelled. Readiness is checked before every read; upgrade readiness
// is intentionally excluded here — it is only consulted once a request
// actually asks to upgrade.
func (d *Dispatcher) awaitMainExpectReady(ctx context.Context) error {
	if err := d.Flow.Main.Ready(ctx); err != nil {
		return err
	}
	return d.Flow.Expect.Ready(ctx)
}

// handleReadError classifies a failed readRequest into the right
// terminal outcome: a clean EOF and a cancellation close quietly and
// return nil, a read deadline closes and returns a TimeoutError of the
// client-head or keep-alive-idle kind, a malformed head gets a
// best-effort error response before closing, and anything else
// propagates as an IOError.
func (d *Dispatcher) handleReadError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		d.Logger.Debug("dispatch cancelled while awaiting a request", zap.String("conn_id", d.ConnID))
		d.closeConn()
		return nil
	}
	if err == io.EOF {
		d.Logger.Debug("connection closed cleanly", zap.String("conn_id", d.ConnID))
		d.closeConn()
		return nil
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		if d.served == 0 {
			d.Logger.Error("client request timeout before first head", zap.String("conn_id", d.ConnID))
			d.closeConn()
			return &TimeoutError{Kind: TimeoutClientHead}
		}
		d.Logger.Error("connection idle timeout", zap.String("conn_id", d.ConnID))
		keepAliveTimeouts.Inc()
		d.closeConn()
		return &TimeoutError{Kind: TimeoutKeepAliveIdle}
	}
	if perr, ok := err.(*h1.ParseError); ok {
		d.Logger.Debug("request parse error", zap.String("conn_id", d.ConnID), zap.String("kind", perr.Kind.String()))
		parseErrorsByKind.WithLabelValues(perr.Kind.String()).Inc()
		d.writeParseErrorResponse(perr)
		d.closeConn()
		return nil
	}
	d.Logger.Error("connection read error", zap.String("conn_id", d.ConnID), zap.Error(err))
	d.closeConn()
	return &IOError{Err: err}
}

// writeParseErrorResponse converts a head-boundary parse error into a
// 400 (or 431 for TooLarge) response and writes it best-effort; a
// malformed head means there is no guarantee the peer can even parse
// our reply, so errors writing it are swallowed.
func (d *Dispatcher) writeParseErrorResponse(perr *h1.ParseError) {
	status := 400
	if perr.Kind == h1.ErrTooLarge {
		status = 431
	}
	head := response.NewHead(status)
	head.Header.Set(hdr.Connection, "close")
	head.Header.Set(hdr.ContentLength, "0")
	_ = d.Transport.EncodeErrorHead(head)
	_ = d.Transport.Flush()
}

// invoke runs the expect/main services for one decoded request,
// returning the response to encode. forceClose is true when the expect
// service rejected the request — the connection is torn down
// deterministically afterward regardless of what the codec would have
// otherwise decided.
func (d *Dispatcher) invoke(ctx context.Context, req *request.Head, payload h1.Payload) (*response.Head, h1.BodySize, io.Reader, bool, error) {
	if req.Expects100Continue() {
		fwd, err := d.Flow.Expect.Handle(ctx, req)
		if err != nil {
			return d.errorResponse(500, err), h1.SizeEmpty, nil, true, nil
		}
		req = fwd
		if err := d.Transport.Write100Continue(); err != nil {
			return nil, h1.BodySize{}, nil, true, err
		}
	}

	head, size, body, err := d.Flow.Main.Handle(ctx, req, payload)
	if err != nil {
		d.Logger.Debug("main service error", zap.String("conn_id", d.ConnID), zap.Error(err))
		return d.errorResponse(500, err), h1.SizeEmpty, nil, false, nil
	}
	return head, size, body, false, nil
}

// errorResponse builds a minimal response head for a service failure
// that occurred before the service produced its own response.
func (d *Dispatcher) errorResponse(status int, cause error) *response.Head {
	d.Logger.Error("service failed before producing a response", zap.String("conn_id", d.ConnID), zap.Error(&ServiceError{Err: cause}))
	head := response.NewHead(status)
	head.Header.Set(hdr.ContentLength, "0")
	return head
}

// writeResponse encodes head's status line/headers, pumps body through
// Codec.EncodeChunk, and writes the terminating EOF marker, then
// flushes the transport once. HEAD suppression is enforced by Codec
// itself, not here.
func (d *Dispatcher) writeResponse(head *response.Head, size h1.BodySize, body io.Reader) error {
	if err := d.Transport.EncodeMessage(h1.Item(head, size)); err != nil {
		return err
	}

	truncated := false
	if body != nil {
		buf := make([]byte, responseCopyBufSize)
		for {
			n, rerr := body.Read(buf)
			if n > 0 {
				if werr := d.Transport.EncodeChunk(buf[:n]); werr != nil {
					return werr
				}
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				// Mid-body read failure from the service: the response
				// is truncated and the socket closed.
				d.Logger.Debug("response body read error, truncating", zap.String("conn_id", d.ConnID), zap.Error(rerr))
				truncated = true
				break
			}
		}
	}

	if truncated {
		d.Transport.Codec.ForceClose()
		return d.Transport.Flush()
	}

	if err := d.Transport.EncodeEOF(); err != nil {
		return err
	}
	return d.Transport.Flush()
}

func (d *Dispatcher) closeConn() {
	_ = d.Transport.Flush()
	_ = d.Transport.Conn.Close()
}

// cloneExtensions returns a fresh copy of ext so a handler mutating its
// own request's extensions never leaks into the next pipelined request
// on the same connection.
func cloneExtensions(ext map[string]any) map[string]any {
	if len(ext) == 0 {
		return nil
	}
	out := make(map[string]any, len(ext))
	for k, v := range ext {
		out[k] = v
	}
	return out
}
