// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pbcodec implements the message-level half of the proto3 wire
// codec: a Builder that frames typed field values (including back-patched
// length-delimited sub-messages and packed-repeated blocks) onto a
// wire.ByteWriter, and a Parser that does the inverse over a
// wire.ByteReader. Generated message types (see package internal/gengo and
// cmd/protoc-gen-microproto) are the only intended callers.
package pbcodec

// Message is implemented by every generated protocol buffer message type.
type Message interface {
	// EstimateSize returns an upper bound on the message's encoded byte
	// length. Returning 0 means "unknown, treat as unbounded" (the
	// builder back-patch protocol substitutes the maximum 10-byte
	// varint-length reservation in that case).
	EstimateSize() int

	// Encode appends the message's wire-format encoding to b.
	Encode(b *Builder) error

	// Decode populates the message's fields by reading from p until p is
	// exhausted.
	Decode(p *Parser) error
}
