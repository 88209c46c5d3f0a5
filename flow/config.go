/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package flow

import (
	"time"

	"go.uber.org/zap"

	"github.com/relaywire/h1d/h1"
	"github.com/relaywire/h1d/hdr"
)

// KeepAliveMode selects how a connection's idle time between requests
// is bounded.
type KeepAliveMode uint8

const (
	// KeepAliveDisabled forces ConnClose after every response.
	KeepAliveDisabled KeepAliveMode = iota
	// KeepAliveTimeout arms an idle timer of ServiceConfig.KeepAliveSeconds
	// between requests on a reused connection.
	KeepAliveTimeout
	// KeepAliveOS leaves idle-connection reaping to the OS/listener
	// (e.g. TCP keep-alive probes) instead of an application timer.
	KeepAliveOS
)

// ServiceConfig is the read-only, shared-by-pointer configuration a
// Codec and a conn.Dispatcher consult for timeouts, header limits, and
// the keep-alive policy.
type ServiceConfig struct {
	KeepAliveMode    KeepAliveMode
	KeepAliveSeconds int

	// ClientTimeout bounds the time from accept to a fully read request
	// head.
	ClientTimeout time.Duration
	// ClientShutdownTimeout bounds a graceful close's flush/drain budget.
	ClientShutdownTimeout time.Duration

	HeaderLimits h1.DecoderLimits

	// Now sources the Date header. Defaults to time.Now if nil. The
	// keep-alive and client-timeout deadlines always use time.Now.
	Now func() time.Time

	Logger *zap.Logger
}

// clock returns cfg.Now, or time.Now if unset.
func (cfg *ServiceConfig) clock() func() time.Time {
	if cfg.Now != nil {
		return cfg.Now
	}
	return time.Now
}

// DateProvider adapts cfg's clock into an h1.DateProvider, formatting
// per RFC 7231 IMF-fixdate.
func (cfg *ServiceConfig) DateProvider() h1.DateProvider {
	clock := cfg.clock()
	return func() string {
		return clock().UTC().Format(hdr.TimeFormat)
	}
}

// KeepAliveEnabled reports whether the codec may ever decide
// ConnKeepAlive under this policy.
func (cfg *ServiceConfig) KeepAliveEnabled() bool {
	return cfg.KeepAliveMode != KeepAliveDisabled
}

// logger returns cfg.Logger, or a no-op logger if unset, so callers
// never need a nil check.
func (cfg *ServiceConfig) logger() *zap.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	return zap.NewNop()
}

// GetLogger returns cfg.Logger, or a no-op logger when unset.
func (cfg *ServiceConfig) GetLogger() *zap.Logger { return cfg.logger() }

// DefaultServiceConfig returns a config with a 1MB header budget and
// short, server-appropriate timeouts.
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		KeepAliveMode:         KeepAliveTimeout,
		KeepAliveSeconds:      5,
		ClientTimeout:         10 * time.Second,
		ClientShutdownTimeout: 5 * time.Second,
		HeaderLimits:          h1.DefaultDecoderLimits,
	}
}
