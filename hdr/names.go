/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package hdr

import "time"

// Field names the codec and its callers reference, in canonical case.
const (
	// Connection management and framing.
	Connection       = "Connection"
	ContentLength    = "Content-Length"
	TransferEncoding = "Transfer-Encoding"
	Trailer          = "Trailer"
	UpgradeHeader    = "Upgrade"
	Expect           = "Expect"
	Host             = "Host"

	// Representation and negotiation.
	Accept          = "Accept"
	AcceptEncoding  = "Accept-Encoding"
	AcceptLanguage  = "Accept-Language"
	ContentEncoding = "Content-Encoding"
	ContentType     = "Content-Type"

	// Caching and conditionals.
	CacheControl    = "Cache-Control"
	Date            = "Date"
	Etag            = "Etag"
	Expires         = "Expires"
	IfModifiedSince = "If-Modified-Since"
	IfNoneMatch     = "If-None-Match"
	LastModified    = "Last-Modified"
	Pragma          = "Pragma"

	// Request context.
	Authorization   = "Authorization"
	CookieHeader    = "Cookie"
	Referer         = "Referer"
	UserAgent       = "User-Agent"
	Via             = "Via"
	XForwardedFor   = "X-Forwarded-For"
	Location        = "Location"
	ServerHeader    = "Server"
	SetCookieHeader = "Set-Cookie"
)

// TimeFormat is the IMF-fixdate layout HTTP dates are emitted in.
const TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// ParseTime parses an HTTP date header value, accepting the three
// formats RFC 7231 §7.1.1.1 allows: IMF-fixdate, the obsolete RFC 850
// form, and ANSI C asctime.
func ParseTime(value string) (time.Time, error) {
	var t time.Time
	var err error
	for _, layout := range []string{TimeFormat, time.RFC850, time.ANSIC} {
		if t, err = time.Parse(layout, value); err == nil {
			break
		}
	}
	return t, err
}
