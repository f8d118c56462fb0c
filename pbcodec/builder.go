// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pbcodec

import (
	"math"

	"github.com/protoforge/microproto/wire"
)

// Builder frames typed field values onto a wire.ByteWriter in the shape
// generated Encode methods expect: header, then payload, one call per
// field. It carries a sticky error: once set, every further call is a
// no-op that returns the same error, so a generated Encode body can issue
// its calls unconditionally and check LastError once at the end.
type Builder struct {
	w       wire.ByteWriter
	err     error
	scratch [10]byte
}

// NewBuilder returns a Builder that frames onto w.
func NewBuilder(w wire.ByteWriter) *Builder {
	return &Builder{w: w}
}

// LastError reports the first error encountered, or nil.
func (b *Builder) LastError() error { return b.err }

// fail records err as the sticky error if none is set yet, and returns it.
func (b *Builder) fail(err error) error {
	if b.err == nil {
		b.err = err
	}
	return b.err
}

func (b *Builder) writeTag(num wire.Number, typ wire.Type) error {
	return b.w.Write(wire.AppendTag(nil, num, typ))
}

func (b *Builder) writeVarintField(num wire.Number, v uint64) error {
	if b.err != nil {
		return b.err
	}
	if err := b.writeTag(num, wire.VarintType); err != nil {
		return b.fail(err)
	}
	if err := b.w.Write(wire.AppendVarint(nil, v)); err != nil {
		return b.fail(err)
	}
	return nil
}

func (b *Builder) writeFixed32Field(num wire.Number, v uint32) error {
	if b.err != nil {
		return b.err
	}
	if err := b.writeTag(num, wire.Fixed32Type); err != nil {
		return b.fail(err)
	}
	if err := b.w.Write(wire.AppendFixed32(nil, v)); err != nil {
		return b.fail(err)
	}
	return nil
}

func (b *Builder) writeFixed64Field(num wire.Number, v uint64) error {
	if b.err != nil {
		return b.err
	}
	if err := b.writeTag(num, wire.Fixed64Type); err != nil {
		return b.fail(err)
	}
	if err := b.w.Write(wire.AppendFixed64(nil, v)); err != nil {
		return b.fail(err)
	}
	return nil
}

// Int32, Int64, Uint32, Uint64, Bool encode as plain (non-zig-zag) varints;
// negative int32/int64 values sign-extend to 64 bits on the wire, per
// proto3.
func (b *Builder) Int32(num wire.Number, v int32) error { return b.writeVarintField(num, uint64(int64(v))) }
func (b *Builder) Int64(num wire.Number, v int64) error { return b.writeVarintField(num, uint64(v)) }
func (b *Builder) Uint32(num wire.Number, v uint32) error { return b.writeVarintField(num, uint64(v)) }
func (b *Builder) Uint64(num wire.Number, v uint64) error { return b.writeVarintField(num, v) }
func (b *Builder) Bool(num wire.Number, v bool) error {
	if v {
		return b.writeVarintField(num, 1)
	}
	return b.writeVarintField(num, 0)
}

// Sint32 and Sint64 zig-zag encode before writing the varint.
func (b *Builder) Sint32(num wire.Number, v int32) error {
	return b.writeVarintField(num, wire.EncodeZigZag(int64(v)))
}
func (b *Builder) Sint64(num wire.Number, v int64) error {
	return b.writeVarintField(num, wire.EncodeZigZag(v))
}

// Fixed32, Sfixed32, Float32 all use 4-byte little-endian framing.
func (b *Builder) Fixed32(num wire.Number, v uint32) error  { return b.writeFixed32Field(num, v) }
func (b *Builder) Sfixed32(num wire.Number, v int32) error  { return b.writeFixed32Field(num, uint32(v)) }
func (b *Builder) Float32(num wire.Number, v float32) error {
	return b.writeFixed32Field(num, math.Float32bits(v))
}

// Fixed64, Sfixed64, Float64 all use 8-byte little-endian framing.
func (b *Builder) Fixed64(num wire.Number, v uint64) error  { return b.writeFixed64Field(num, v) }
func (b *Builder) Sfixed64(num wire.Number, v int64) error  { return b.writeFixed64Field(num, uint64(v)) }
func (b *Builder) Float64(num wire.Number, v float64) error {
	return b.writeFixed64Field(num, math.Float64bits(v))
}

// String and Bytes share the same length-delimited emitter. Neither
// validates UTF-8: proto3 bytes semantics apply to both, matching the
// source this codec is modeled on.
func (b *Builder) String(num wire.Number, v string) error { return b.writeBytesField(num, []byte(v)) }
func (b *Builder) Bytes(num wire.Number, v []byte) error  { return b.writeBytesField(num, v) }

func (b *Builder) writeBytesField(num wire.Number, v []byte) error {
	if b.err != nil {
		return b.err
	}
	if err := b.writeTag(num, wire.BytesType); err != nil {
		return b.fail(err)
	}
	if err := b.w.Write(wire.AppendVarint(nil, uint64(len(v)))); err != nil {
		return b.fail(err)
	}
	if err := b.w.Write(v); err != nil {
		return b.fail(err)
	}
	return nil
}

// Message encodes m as a length-delimited sub-message field, using the
// reserve/encode/patch protocol: m.EstimateSize() sizes a worst-case
// reservation for the length varint, m.Encode writes the payload in place,
// and the reservation is patched with the true length afterward. A nil m
// writes nothing (an absent owned-optional sub-message omits the field
// entirely).
func (b *Builder) Message(num wire.Number, m Message) error {
	if m == nil {
		return b.err
	}
	return b.lengthDelimited(num, m.EstimateSize(), m.Encode)
}

// lengthDelimited implements the back-patch protocol shared by sub-message
// and packed-varint framing: emit the header, reserve a worst-case-width
// length varint, let payload write the content, then patch the reservation
// with the true length padded out to the same width.
func (b *Builder) lengthDelimited(num wire.Number, estimate int, payload func(*Builder) error) error {
	if b.err != nil {
		return b.err
	}
	if err := b.writeTag(num, wire.BytesType); err != nil {
		return b.fail(err)
	}

	u := uint64(estimate)
	if estimate == 0 {
		u = math.MaxUint64 // "unknown, treat as unbounded"
	}
	d := wire.SizeVarint(u)

	pos := b.w.Position()
	if err := b.w.Write(make([]byte, d)); err != nil {
		return b.fail(err)
	}

	if err := payload(b); err != nil {
		return b.fail(err)
	}
	if b.err != nil {
		return b.err
	}

	real := b.w.Position() - (pos + int64(d))
	if real < 0 || uint64(real) > u {
		return b.fail(wire.ErrGeneralError)
	}

	padded := wire.AppendVarintPadded(b.scratch[:0], uint64(real), d)
	if err := b.w.WriteAt(pos, padded); err != nil {
		return b.fail(err)
	}
	return nil
}

// PackedInt32, PackedInt64, PackedUint32, PackedUint64, and PackedBool
// frame a repeated scalar field as a single length-delimited blob of
// concatenated varints, reserving a 10-bytes-per-element worst case.
func (b *Builder) PackedInt32(num wire.Number, vs []int32) error {
	return b.packedVarint(num, len(vs), func(b *Builder) error {
		for _, v := range vs {
			if err := b.w.Write(wire.AppendVarint(nil, uint64(int64(v)))); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Builder) PackedInt64(num wire.Number, vs []int64) error {
	return b.packedVarint(num, len(vs), func(b *Builder) error {
		for _, v := range vs {
			if err := b.w.Write(wire.AppendVarint(nil, uint64(v))); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Builder) PackedUint32(num wire.Number, vs []uint32) error {
	return b.packedVarint(num, len(vs), func(b *Builder) error {
		for _, v := range vs {
			if err := b.w.Write(wire.AppendVarint(nil, uint64(v))); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Builder) PackedUint64(num wire.Number, vs []uint64) error {
	return b.packedVarint(num, len(vs), func(b *Builder) error {
		for _, v := range vs {
			if err := b.w.Write(wire.AppendVarint(nil, v)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Builder) PackedBool(num wire.Number, vs []bool) error {
	return b.packedVarint(num, len(vs), func(b *Builder) error {
		for _, v := range vs {
			x := uint64(0)
			if v {
				x = 1
			}
			if err := b.w.Write(wire.AppendVarint(nil, x)); err != nil {
				return err
			}
		}
		return nil
	})
}

// PackedSint32 and PackedSint64 are the zig-zag-encoded packed forms.
func (b *Builder) PackedSint32(num wire.Number, vs []int32) error {
	return b.packedVarint(num, len(vs), func(b *Builder) error {
		for _, v := range vs {
			if err := b.w.Write(wire.AppendVarint(nil, wire.EncodeZigZag(int64(v)))); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Builder) PackedSint64(num wire.Number, vs []int64) error {
	return b.packedVarint(num, len(vs), func(b *Builder) error {
		for _, v := range vs {
			if err := b.w.Write(wire.AppendVarint(nil, wire.EncodeZigZag(v))); err != nil {
				return err
			}
		}
		return nil
	})
}

// packedVarint reserves a 10-bytes-per-element worst case for n varints and
// lets payload write the concatenated elements.
func (b *Builder) packedVarint(num wire.Number, n int, payload func(*Builder) error) error {
	return b.lengthDelimited(num, 10*n, payload)
}

// PackedFixed32, PackedSfixed32, and PackedFloat32 frame a repeated
// fixed-width field as a single blob of exactly 4*len(vs) bytes: the exact
// length is known up front, so no back-patching is needed.
func (b *Builder) PackedFixed32(num wire.Number, vs []uint32) error {
	return b.packedFixed(num, 4*len(vs), func(buf []byte) []byte {
		for _, v := range vs {
			buf = wire.AppendFixed32(buf, v)
		}
		return buf
	})
}

func (b *Builder) PackedSfixed32(num wire.Number, vs []int32) error {
	return b.packedFixed(num, 4*len(vs), func(buf []byte) []byte {
		for _, v := range vs {
			buf = wire.AppendFixed32(buf, uint32(v))
		}
		return buf
	})
}

func (b *Builder) PackedFloat32(num wire.Number, vs []float32) error {
	return b.packedFixed(num, 4*len(vs), func(buf []byte) []byte {
		for _, v := range vs {
			buf = wire.AppendFixed32(buf, math.Float32bits(v))
		}
		return buf
	})
}

// PackedFixed64, PackedSfixed64, and PackedFloat64 are the 8-byte analogues.
func (b *Builder) PackedFixed64(num wire.Number, vs []uint64) error {
	return b.packedFixed(num, 8*len(vs), func(buf []byte) []byte {
		for _, v := range vs {
			buf = wire.AppendFixed64(buf, v)
		}
		return buf
	})
}

func (b *Builder) PackedSfixed64(num wire.Number, vs []int64) error {
	return b.packedFixed(num, 8*len(vs), func(buf []byte) []byte {
		for _, v := range vs {
			buf = wire.AppendFixed64(buf, uint64(v))
		}
		return buf
	})
}

func (b *Builder) PackedFloat64(num wire.Number, vs []float64) error {
	return b.packedFixed(num, 8*len(vs), func(buf []byte) []byte {
		for _, v := range vs {
			buf = wire.AppendFixed64(buf, math.Float64bits(v))
		}
		return buf
	})
}

func (b *Builder) packedFixed(num wire.Number, length int, encode func([]byte) []byte) error {
	if b.err != nil {
		return b.err
	}
	if err := b.writeTag(num, wire.BytesType); err != nil {
		return b.fail(err)
	}
	if err := b.w.Write(wire.AppendVarint(nil, uint64(length))); err != nil {
		return b.fail(err)
	}
	if err := b.w.Write(encode(make([]byte, 0, length))); err != nil {
		return b.fail(err)
	}
	return nil
}
