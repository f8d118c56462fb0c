// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package wire implements the low-level byte streams and varint/field-header
// primitives that make up the proto3 wire format: varint and zig-zag
// arithmetic, field-header framing, fixed32/fixed64 raw-byte framing, and
// the stream abstractions that the message builder and parser in package
// pbcodec are layered on top of.
package wire

import "errors"

// ErrOutOfSpace is returned when an output stream is full, or an input
// stream is exhausted before a complete value could be read.
var ErrOutOfSpace = errors.New("wire: out of space")

// ErrInvalidPosition is returned by (ByteWriter).WriteAt when pos falls
// outside the region already written to the stream.
var ErrInvalidPosition = errors.New("wire: invalid write_at position")

// ErrInvalidInput is returned for a malformed varint (no terminator byte
// within 10 bytes), a group wire type encountered while skipping, or a
// length-delimited value whose declared length exceeds the remaining input.
var ErrInvalidInput = errors.New("wire: invalid input")

// ErrGeneralError reports an unexpected backing-store failure, e.g. an
// allocation failure in a growable output stream.
//
// ErrOutOfMemory is a documented alias: callers may compare against either
// name, but the two are never distinguished internally.
var ErrGeneralError = errors.New("wire: general error")

// ErrOutOfMemory is an alias for ErrGeneralError (see spec: the two codes
// are "aliased semantically in practice").
var ErrOutOfMemory = ErrGeneralError
