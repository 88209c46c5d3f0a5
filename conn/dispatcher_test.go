/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package conn

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/relaywire/h1d/flow"
	"github.com/relaywire/h1d/h1"
	"github.com/relaywire/h1d/request"
	"github.com/relaywire/h1d/response"
)

// echoMain answers every request with a fixed body, unless fn is set,
// in which case fn decides the response.
type echoMain struct {
	fn func(ctx context.Context, req *request.Head, body h1.Payload) (*response.Head, h1.BodySize, io.Reader, error)
}

func (m *echoMain) Ready(context.Context) error { return nil }
func (m *echoMain) Handle(ctx context.Context, req *request.Head, body h1.Payload) (*response.Head, h1.BodySize, io.Reader, error) {
	if m.fn != nil {
		return m.fn(ctx, req, body)
	}
	text := "hello world"
	head := response.NewHead(200)
	return head, h1.SizeSized(uint64(len(text))), strings.NewReader(text), nil
}

func acceptingExpect() flow.ExpectService { return flow.IdentityExpect }

func newTestDispatcher(t *testing.T, server net.Conn, main flow.MainService, expect flow.ExpectService, upgrade flow.UpgradeService) *Dispatcher {
	t.Helper()
	codec := h1.NewCodec(h1.DefaultDecoderLimits, func() string { return "Wed, 21 Oct 2026 07:28:00 GMT" }, true)
	transport := NewFramedTransport(server, codec)
	t.Cleanup(transport.Release)
	return &Dispatcher{
		Transport: transport,
		Flow:      flow.New(main, expect, upgrade),
		Config:    flow.DefaultServiceConfig(),
		PeerAddr:  server.RemoteAddr(),
		Logger:    zap.NewNop(),
		ConnID:    "test-conn",
	}
}

// HEAD suppresses the body end to end: the handler's body is discarded
// after the head, even though Content-Length reflects its full length.
func TestDispatcherHeadSuppressesBodyEndToEnd(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	d := newTestDispatcher(t, server, &echoMain{}, nil, nil)
	done := make(chan error, 1)
	go func() { done <- d.Serve(context.Background()) }()

	if _, err := client.Write([]byte("HEAD / HTTP/1.1\r\nConnection: close\r\n\r\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}

	resp := readAllFrom(t, client)
	if err := <-done; err != nil {
		t.Fatalf("Serve() = %v", err)
	}

	if !strings.Contains(resp, "Content-Length: 11\r\n") {
		t.Fatalf("response missing Content-Length, got %q", resp)
	}
	if !strings.HasSuffix(resp, "\r\n\r\n") {
		t.Fatalf("response must end at the blank line with no body, got %q", resp)
	}
}

// The 100-Continue preface precedes any body read.
func TestDispatcher100ContinueGating(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	var sawBodyBeforeContinue bool
	main := &echoMain{fn: func(ctx context.Context, req *request.Head, body h1.Payload) (*response.Head, h1.BodySize, io.Reader, error) {
		b, _ := io.ReadAll(body.Body)
		if string(b) != "hello" {
			sawBodyBeforeContinue = true
		}
		head := response.NewHead(200)
		return head, h1.SizeEmpty, nil, nil
	}}

	d := newTestDispatcher(t, server, main, acceptingExpect(), nil)
	done := make(chan error, 1)
	go func() { done <- d.Serve(context.Background()) }()

	req := "POST /upload HTTP/1.1\r\nExpect: 100-continue\r\nContent-Length: 5\r\nConnection: close\r\n\r\n"
	if _, err := client.Write([]byte(req)); err != nil {
		t.Fatalf("write request head: %v", err)
	}

	preface := make([]byte, len("HTTP/1.1 100 Continue\r\n\r\n"))
	if _, err := io.ReadFull(client, preface); err != nil {
		t.Fatalf("reading 100-continue preface: %v", err)
	}
	if string(preface) != "HTTP/1.1 100 Continue\r\n\r\n" {
		t.Fatalf("preface = %q", preface)
	}

	if _, err := client.Write([]byte("hello")); err != nil {
		t.Fatalf("write body: %v", err)
	}

	readAllFrom(t, client)
	if err := <-done; err != nil {
		t.Fatalf("Serve() = %v", err)
	}
	if sawBodyBeforeContinue {
		t.Fatal("main service observed a corrupted body")
	}
}

// Expect-continue rejection forces the connection closed deterministically.
func TestDispatcherExpectRejectionForcesClose(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	rejecting := rejectingExpectService{}
	d := newTestDispatcher(t, server, &echoMain{}, rejecting, nil)
	done := make(chan error, 1)
	go func() { done <- d.Serve(context.Background()) }()

	req := "POST /upload HTTP/1.1\r\nExpect: 100-continue\r\nContent-Length: 5\r\n\r\nhello"
	if _, err := client.Write([]byte(req)); err != nil {
		t.Fatalf("write request: %v", err)
	}

	resp := readAllFrom(t, client)
	if err := <-done; err != nil {
		t.Fatalf("Serve() = %v", err)
	}
	if !strings.Contains(resp, "500") {
		t.Fatalf("expected a 500 response for expect rejection, got %q", resp)
	}
	if !strings.Contains(resp, "Connection: close\r\n") {
		t.Fatalf("expect rejection must force Connection: close, got %q", resp)
	}
}

type rejectingExpectService struct{}

func (rejectingExpectService) Ready(context.Context) error { return nil }
func (rejectingExpectService) Handle(context.Context, *request.Head) (*request.Head, error) {
	return nil, errors.New("rejected")
}

// Keep-alive connections serve a second request after the first
// completes.
func TestDispatcherKeepAliveServesSecondRequest(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	var handled int
	main := &echoMain{fn: func(ctx context.Context, req *request.Head, body h1.Payload) (*response.Head, h1.BodySize, io.Reader, error) {
		handled++
		text := "ok"
		return response.NewHead(200), h1.SizeSized(uint64(len(text))), strings.NewReader(text), nil
	}}

	d := newTestDispatcher(t, server, main, nil, nil)
	done := make(chan error, 1)
	go func() { done <- d.Serve(context.Background()) }()

	if _, err := client.Write([]byte("GET /a HTTP/1.1\r\n\r\n")); err != nil {
		t.Fatalf("write first request: %v", err)
	}
	readN(t, client, len("HTTP/1.1 200 OK\r\n")+200) // drain enough to clear the first response

	if _, err := client.Write([]byte("GET /b HTTP/1.1\r\nConnection: close\r\n\r\n")); err != nil {
		t.Fatalf("write second request: %v", err)
	}
	readAllFrom(t, client)

	if err := <-done; err != nil {
		t.Fatalf("Serve() = %v", err)
	}
	if handled != 2 {
		t.Fatalf("handled = %d, want 2", handled)
	}
}

// capturingUpgrade records the request and transport handed to it.
type capturingUpgrade struct {
	req       *request.Head
	transport *FramedTransport
	done      chan struct{}
}

func (u *capturingUpgrade) Ready(context.Context) error { return nil }
func (u *capturingUpgrade) Handle(_ context.Context, req *request.Head, transport any) error {
	u.req = req
	u.transport = transport.(*FramedTransport)
	close(u.done)
	return nil
}

// After a 101 response the dispatcher relinquishes the framed transport
// to the upgrade service, with bytes past the request head still
// buffered.
func TestDispatcherUpgradeHandover(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	upgrade := &capturingUpgrade{done: make(chan struct{})}
	main := &echoMain{fn: func(ctx context.Context, req *request.Head, body h1.Payload) (*response.Head, h1.BodySize, io.Reader, error) {
		if body.Kind != h1.PayloadUpgrade {
			t.Errorf("payload kind = %v, want PayloadUpgrade", body.Kind)
		}
		head := response.NewHead(101)
		head.Header.Set("Upgrade", "websocket")
		return head, h1.SizeNoneVal, nil, nil
	}}

	d := newTestDispatcher(t, server, main, nil, upgrade)
	done := make(chan error, 1)
	go func() { done <- d.Serve(context.Background()) }()

	req := "GET /chat HTTP/1.1\r\nConnection: upgrade\r\nUpgrade: websocket\r\n\r\nfirst-frame"
	if _, err := client.Write([]byte(req)); err != nil {
		t.Fatalf("write request: %v", err)
	}

	resp := readN(t, client, 4096)
	if !strings.Contains(resp, "101 Switching Protocols") {
		t.Fatalf("response = %q", resp)
	}
	if !strings.Contains(resp, "Connection: upgrade\r\n") {
		t.Fatalf("switching response must carry Connection: upgrade, got %q", resp)
	}

	select {
	case <-upgrade.done:
	case <-time.After(2 * time.Second):
		t.Fatal("upgrade service was never invoked")
	}
	if err := <-done; err != nil {
		t.Fatalf("Serve() = %v", err)
	}
	if upgrade.req == nil || upgrade.req.Target != "/chat" {
		t.Fatalf("upgrade request = %+v", upgrade.req)
	}
	if got := string(upgrade.transport.Unread()); got != "first-frame" {
		t.Fatalf("buffered bytes after handover = %q, want %q", got, "first-frame")
	}
}

// Cancellation while idle between requests terminates cleanly.
func TestDispatcherCancelWhileIdle(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	d := newTestDispatcher(t, server, &echoMain{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve() = %v, want nil on idle cancellation", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

// A malformed request head gets a 400 and the connection closes.
func TestDispatcherParseErrorGets400(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	d := newTestDispatcher(t, server, &echoMain{}, nil, nil)
	done := make(chan error, 1)
	go func() { done <- d.Serve(context.Background()) }()

	if _, err := client.Write([]byte("NOT A REQUEST LINE\r\n\r\n")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	resp := readAllFrom(t, client)
	if err := <-done; err != nil {
		t.Fatalf("Serve() = %v", err)
	}
	if !strings.Contains(resp, "400 Bad Request") {
		t.Fatalf("response = %q, want a 400", resp)
	}
	if !strings.Contains(resp, "Connection: close\r\n") {
		t.Fatalf("parse-error response must close the connection, got %q", resp)
	}
}

func readAllFrom(t *testing.T, c net.Conn) string {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	b, err := io.ReadAll(c)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("reading response: %v", err)
	}
	return string(b)
}

// readN reads up to n bytes (or until the peer would block), tolerating
// a short read — used to drain a non-final pipelined response.
func readN(t *testing.T, c net.Conn, n int) string {
	t.Helper()
	buf := make([]byte, n)
	c.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	total := 0
	for total < n {
		k, err := c.Read(buf[total:])
		total += k
		if err != nil {
			break
		}
	}
	c.SetReadDeadline(time.Time{})
	return string(buf[:total])
}
