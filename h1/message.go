/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package h1

// MessageKind tags the value written into an Encoder via
// Codec.EncodeMessage.
type MessageKind uint8

const (
	// MsgItem carries a complete head plus a body-size hint.
	MsgItem MessageKind = iota
	// MsgChunk carries a body fragment.
	MsgChunk
	// MsgChunkEOF marks the end of the body.
	MsgChunkEOF
)

// Message is the tagged value the Codec's write side accepts. H is the
// response head type (response.Head in this repo); generics keep the
// codec decoupled from the response package without resorting to
// interface{}.
type Message[H any] struct {
	Kind     MessageKind
	Head     H // valid when Kind == MsgItem
	BodySize BodySize
	Chunk    []byte // valid when Kind == MsgChunk
}

// Item builds a MsgItem message.
func Item[H any](head H, size BodySize) Message[H] {
	return Message[H]{Kind: MsgItem, Head: head, BodySize: size}
}

// Chunk builds a MsgChunk message.
func Chunk[H any](b []byte) Message[H] {
	return Message[H]{Kind: MsgChunk, Chunk: b}
}

// ChunkEOF builds a MsgChunkEOF message.
func ChunkEOF[H any]() Message[H] {
	return Message[H]{Kind: MsgChunkEOF}
}
