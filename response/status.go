/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package response

import "strconv"

// reasonPhrases covers the status codes this codec's dispatch loop and
// its own tests actually emit. It is deliberately not an exhaustive
// IANA registry mirror — callers may always set Head.Reason explicitly.
var reasonPhrases = map[int]string{
	100: "Continue",
	101: "Switching Protocols",
	200: "OK",
	201: "Created",
	202: "Accepted",
	204: "No Content",
	206: "Partial Content",
	301: "Moved Permanently",
	302: "Found",
	304: "Not Modified",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	408: "Request Timeout",
	413: "Request Entity Too Large",
	431: "Request Header Fields Too Large",
	500: "Internal Server Error",
	501: "Not Implemented",
	502: "Bad Gateway",
	503: "Service Unavailable",
}

// ReasonPhrase returns the default reason phrase for code, or a
// "Status <code>" placeholder for codes not in reasonPhrases.
func ReasonPhrase(code int) string {
	if p, ok := reasonPhrases[code]; ok {
		return p
	}
	return "Status " + strconv.Itoa(code)
}

// ReasonText returns h.Reason if set, otherwise ReasonPhrase(h.StatusCode).
func (h *Head) ReasonText() string {
	if h.Reason != "" {
		return h.Reason
	}
	return ReasonPhrase(h.StatusCode)
}

// BodyAllowed reports whether a response with this status code may
// carry a body, per RFC 7230 §3.3.
func BodyAllowed(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == 204:
		return false
	case status == 304:
		return false
	}
	return true
}
