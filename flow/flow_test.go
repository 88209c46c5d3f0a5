/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package flow

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/relaywire/h1d/h1"
	"github.com/relaywire/h1d/hdr"
	"github.com/relaywire/h1d/request"
	"github.com/relaywire/h1d/response"
)

type stubMain struct {
	readyErr error
}

func (s *stubMain) Ready(context.Context) error { return s.readyErr }
func (s *stubMain) Handle(context.Context, *request.Head, h1.Payload) (*response.Head, h1.BodySize, io.Reader, error) {
	return response.NewHead(200), h1.SizeEmpty, nil, nil
}

type stubUpgrade struct {
	readyErr error
}

func (s *stubUpgrade) Ready(context.Context) error { return s.readyErr }
func (s *stubUpgrade) Handle(context.Context, *request.Head, any) error { return nil }

func TestIdentityExpectForwardsUnchanged(t *testing.T) {
	req := &request.Head{Method: "GET"}
	got, err := IdentityExpect.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != req {
		t.Fatal("identity expect must forward the same request")
	}
}

func TestNewDefaultsExpectToIdentity(t *testing.T) {
	f := New(&stubMain{}, nil, nil)
	if f.Expect != IdentityExpect {
		t.Fatal("nil expect must default to IdentityExpect")
	}
	if f.HasUpgrade() {
		t.Fatal("no upgrade service was configured")
	}
}

func TestReadyShortCircuitsOnFirstNotReady(t *testing.T) {
	wantErr := errors.New("main not ready")
	f := New(&stubMain{readyErr: wantErr}, nil, &stubUpgrade{readyErr: errors.New("should never be reached")})
	if err := f.Ready(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("Ready() = %v, want %v", err, wantErr)
	}
}

func TestReadyAllGreen(t *testing.T) {
	f := New(&stubMain{}, IdentityExpect, &stubUpgrade{})
	if err := f.Ready(context.Background()); err != nil {
		t.Fatalf("Ready() = %v, want nil", err)
	}
}

func TestKeepAliveEnabled(t *testing.T) {
	cfg := &ServiceConfig{KeepAliveMode: KeepAliveDisabled}
	if cfg.KeepAliveEnabled() {
		t.Fatal("KeepAliveDisabled must report KeepAliveEnabled() == false")
	}
	cfg.KeepAliveMode = KeepAliveTimeout
	if !cfg.KeepAliveEnabled() {
		t.Fatal("KeepAliveTimeout must report KeepAliveEnabled() == true")
	}
}

func TestDateProviderFormatsRFC7231(t *testing.T) {
	cfg := &ServiceConfig{}
	date := cfg.DateProvider()()
	if _, err := time.Parse(hdr.TimeFormat, date); err != nil {
		t.Fatalf("DateProvider produced unparseable date %q: %v", date, err)
	}
}
