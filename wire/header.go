// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

// Type is the 3-bit wire type that accompanies every field id on the wire.
type Type uint8

const (
	VarintType   Type = 0
	Fixed64Type  Type = 1
	BytesType    Type = 2 // length-delimited
	StartGroup   Type = 3 // deprecated proto2 framing; recognized, never produced
	EndGroup     Type = 4 // deprecated proto2 framing; recognized, never produced
	Fixed32Type  Type = 5
)

// Number is a proto field id, 1..2^32-1 in practice.
type Number uint32

// tagShift is the number of low bits a field header reserves for the wire
// type.
const tagShift = 3

// EncodeTag packs a field number and wire type into the value a field
// header's varint carries.
func EncodeTag(num Number, typ Type) uint64 {
	return uint64(num)<<tagShift | uint64(typ&0x7)
}

// DecodeTag splits a field header's varint value back into a field number
// and wire type.
func DecodeTag(v uint64) (Number, Type) {
	return Number(v >> tagShift), Type(v & 0x7)
}

// AppendTag appends a field header (id<<3 | wire type) as a varint.
func AppendTag(b []byte, num Number, typ Type) []byte {
	return AppendVarint(b, EncodeTag(num, typ))
}
