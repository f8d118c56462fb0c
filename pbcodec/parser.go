// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pbcodec

import (
	"math"

	"github.com/protoforge/microproto/wire"
)

// Parser reads typed field values from a wire.ByteReader in the shape
// generated Decode methods expect: NextField advances to (and, if
// necessary, skips past) the next field header, then the caller dispatches
// on FieldNumber to the correctly-typed accessor.
//
// Invariant: immediately after NextField returns true, the current field
// has not been consumed. Calling any typed accessor, or SkipField, marks it
// consumed. The next call to NextField skips the field first if it was
// never consumed.
type Parser struct {
	r        wire.ByteReader
	num      wire.Number
	typ      wire.Type
	consumed bool
	started  bool
}

// NewParser returns a Parser reading from r.
func NewParser(r wire.ByteReader) *Parser {
	return &Parser{r: r, consumed: true}
}

// FieldNumber returns the current field's id. Only meaningful after
// NextField has returned (true, nil).
func (p *Parser) FieldNumber() wire.Number { return p.num }

// WireType returns the current field's wire type.
func (p *Parser) WireType() wire.Type { return p.typ }

// NextField skips the previous field if it was not consumed, then reads
// the next field header. It returns (false, nil) at end of input.
func (p *Parser) NextField() (bool, error) {
	if p.started && !p.consumed {
		if err := wire.SkipField(p.r, p.typ); err != nil {
			return false, err
		}
	}
	p.started = true
	if p.r.BytesAvailable() == 0 {
		return false, nil
	}
	num, typ, err := wire.ReadTag(p.r)
	if err != nil {
		return false, err
	}
	p.num, p.typ, p.consumed = num, typ, false
	return true, nil
}

// SkipField discards the current field's payload without interpreting it;
// used by a generated decode loop's default/unknown-field case.
func (p *Parser) SkipField() error {
	p.consumed = true
	return wire.SkipField(p.r, p.typ)
}

func (p *Parser) readVarint() (uint64, error) {
	p.consumed = true
	if p.typ != wire.VarintType {
		return 0, wire.ErrInvalidInput
	}
	return wire.ReadVarint(p.r)
}

func (p *Parser) readFixed32() (uint32, error) {
	p.consumed = true
	if p.typ != wire.Fixed32Type {
		return 0, wire.ErrInvalidInput
	}
	return wire.ReadFixed32(p.r)
}

func (p *Parser) readFixed64() (uint64, error) {
	p.consumed = true
	if p.typ != wire.Fixed64Type {
		return 0, wire.ErrInvalidInput
	}
	return wire.ReadFixed64(p.r)
}

// Int32, Int64, Uint32, Uint64, and Bool read a raw varint and narrow it by
// explicit cast; callers must pick the accessor matching their schema.
func (p *Parser) Int32(v *int32) error {
	x, err := p.readVarint()
	if err != nil {
		return err
	}
	*v = int32(x)
	return nil
}

func (p *Parser) Int64(v *int64) error {
	x, err := p.readVarint()
	if err != nil {
		return err
	}
	*v = int64(x)
	return nil
}

func (p *Parser) Uint32(v *uint32) error {
	x, err := p.readVarint()
	if err != nil {
		return err
	}
	*v = uint32(x)
	return nil
}

func (p *Parser) Uint64(v *uint64) error {
	x, err := p.readVarint()
	if err != nil {
		return err
	}
	*v = x
	return nil
}

func (p *Parser) Bool(v *bool) error {
	x, err := p.readVarint()
	if err != nil {
		return err
	}
	*v = x != 0
	return nil
}

// Sint32 and Sint64 read a varint and undo zig-zag.
func (p *Parser) Sint32(v *int32) error {
	x, err := p.readVarint()
	if err != nil {
		return err
	}
	*v = int32(wire.DecodeZigZag(x))
	return nil
}

func (p *Parser) Sint64(v *int64) error {
	x, err := p.readVarint()
	if err != nil {
		return err
	}
	*v = wire.DecodeZigZag(x)
	return nil
}

// Fixed32 and Sfixed32 read a raw 4-byte little-endian value.
func (p *Parser) Fixed32(v *uint32) error {
	x, err := p.readFixed32()
	if err != nil {
		return err
	}
	*v = x
	return nil
}

func (p *Parser) Sfixed32(v *int32) error {
	x, err := p.readFixed32()
	if err != nil {
		return err
	}
	*v = int32(x)
	return nil
}

// Fixed64 and Sfixed64 read a raw 8-byte little-endian value.
func (p *Parser) Fixed64(v *uint64) error {
	x, err := p.readFixed64()
	if err != nil {
		return err
	}
	*v = x
	return nil
}

func (p *Parser) Sfixed64(v *int64) error {
	x, err := p.readFixed64()
	if err != nil {
		return err
	}
	*v = int64(x)
	return nil
}

// Float32 tolerates both fixed32 and fixed64 on the wire (promoting via
// cast), matching the small wire-type mismatches proto3 permits.
func (p *Parser) Float32(v *float32) error {
	p.consumed = true
	switch p.typ {
	case wire.Fixed32Type:
		x, err := wire.ReadFixed32(p.r)
		if err != nil {
			return err
		}
		*v = math.Float32frombits(x)
		return nil
	case wire.Fixed64Type:
		x, err := wire.ReadFixed64(p.r)
		if err != nil {
			return err
		}
		*v = float32(math.Float64frombits(x))
		return nil
	default:
		return wire.ErrInvalidInput
	}
}

// Float64 tolerates both fixed64 and fixed32 on the wire.
func (p *Parser) Float64(v *float64) error {
	p.consumed = true
	switch p.typ {
	case wire.Fixed64Type:
		x, err := wire.ReadFixed64(p.r)
		if err != nil {
			return err
		}
		*v = math.Float64frombits(x)
		return nil
	case wire.Fixed32Type:
		x, err := wire.ReadFixed32(p.r)
		if err != nil {
			return err
		}
		*v = float64(math.Float32frombits(x))
		return nil
	default:
		return wire.ErrInvalidInput
	}
}

// readBytes reads a length-delimited value's raw bytes.
func (p *Parser) readBytes() ([]byte, error) {
	p.consumed = true
	if p.typ != wire.BytesType {
		return nil, wire.ErrInvalidInput
	}
	n, err := wire.ReadVarint(p.r)
	if err != nil {
		return nil, err
	}
	if int64(n) > p.r.BytesAvailable() {
		return nil, wire.ErrInvalidInput
	}
	return p.r.Read(int(n))
}

// String reads a length-delimited value as a string. No UTF-8 validation
// is performed.
func (p *Parser) String(v *string) error {
	b, err := p.readBytes()
	if err != nil {
		return err
	}
	*v = string(b)
	return nil
}

// Bytes reads a length-delimited value as a freshly allocated []byte.
func (p *Parser) Bytes(v *[]byte) error {
	b, err := p.readBytes()
	if err != nil {
		return err
	}
	*v = append([]byte(nil), b...)
	return nil
}

// Message decodes the current length-delimited field into m, via a fresh
// Parser over a bounded sub-stream. If m's Decode does not drain the
// sub-stream, the parent is advanced past whatever remains so the parent's
// position stays correct.
func (p *Parser) Message(m Message) error {
	p.consumed = true
	if p.typ != wire.BytesType {
		return wire.ErrInvalidInput
	}
	n, err := wire.ReadVarint(p.r)
	if err != nil {
		return err
	}
	if int64(n) > p.r.BytesAvailable() {
		return wire.ErrInvalidInput
	}
	sub := wire.NewSubReader(p.r, int64(n))
	sp := NewParser(sub)
	if err := m.Decode(sp); err != nil {
		return err
	}
	return sub.Drain()
}

// packedVarintElements reads the current length-delimited field as a
// concatenated run of varints, decoding each with convert.
func packedVarintElements[T any](p *Parser, convert func(uint64) T) ([]T, error) {
	p.consumed = true
	if p.typ != wire.BytesType {
		return nil, wire.ErrInvalidInput
	}
	n, err := wire.ReadVarint(p.r)
	if err != nil {
		return nil, err
	}
	if int64(n) > p.r.BytesAvailable() {
		return nil, wire.ErrInvalidInput
	}
	sub := wire.NewSubReader(p.r, int64(n))
	var out []T
	for sub.BytesAvailable() > 0 {
		v, err := wire.ReadVarint(sub)
		if err != nil {
			return nil, err
		}
		out = append(out, convert(v))
	}
	return out, nil
}

// PackedInt32, PackedInt64, PackedUint32, PackedUint64, and PackedBool read
// a packed-varint blob. Call only when WireType() == wire.BytesType; a
// generated repeated-field dispatcher checks that first and otherwise falls
// back to a single unpacked element via the scalar accessor, so the wire
// stays compatible with either encoding of the same field.
func (p *Parser) PackedInt32() ([]int32, error) {
	return packedVarintElements(p, func(v uint64) int32 { return int32(v) })
}

func (p *Parser) PackedInt64() ([]int64, error) {
	return packedVarintElements(p, func(v uint64) int64 { return int64(v) })
}

func (p *Parser) PackedUint32() ([]uint32, error) {
	return packedVarintElements(p, func(v uint64) uint32 { return uint32(v) })
}

func (p *Parser) PackedUint64() ([]uint64, error) {
	return packedVarintElements(p, func(v uint64) uint64 { return v })
}

func (p *Parser) PackedBool() ([]bool, error) {
	return packedVarintElements(p, func(v uint64) bool { return v != 0 })
}

// PackedSint32 and PackedSint64 undo zig-zag per element.
func (p *Parser) PackedSint32() ([]int32, error) {
	return packedVarintElements(p, func(v uint64) int32 { return int32(wire.DecodeZigZag(v)) })
}

func (p *Parser) PackedSint64() ([]int64, error) {
	return packedVarintElements(p, func(v uint64) int64 { return wire.DecodeZigZag(v) })
}

// packedFixedElements reads the current length-delimited field as a
// concatenated run of fixed-width elements.
func packedFixedElements[T any](p *Parser, width int, convert func([]byte) T) ([]T, error) {
	p.consumed = true
	if p.typ != wire.BytesType {
		return nil, wire.ErrInvalidInput
	}
	n, err := wire.ReadVarint(p.r)
	if err != nil {
		return nil, err
	}
	if n%uint64(width) != 0 {
		return nil, wire.ErrInvalidInput
	}
	if int64(n) > p.r.BytesAvailable() {
		return nil, wire.ErrInvalidInput
	}
	data, err := p.r.Read(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, int(n)/width)
	for i := 0; i < len(data); i += width {
		out = append(out, convert(data[i:i+width]))
	}
	return out, nil
}

// PackedFixed32, PackedSfixed32, and PackedFloat32 read a packed
// fixed-32-bit blob.
func (p *Parser) PackedFixed32() ([]uint32, error) {
	return packedFixedElements(p, 4, func(b []byte) uint32 { v, _ := wire.ConsumeFixed32(b); return v })
}

func (p *Parser) PackedSfixed32() ([]int32, error) {
	return packedFixedElements(p, 4, func(b []byte) int32 { v, _ := wire.ConsumeFixed32(b); return int32(v) })
}

func (p *Parser) PackedFloat32() ([]float32, error) {
	return packedFixedElements(p, 4, func(b []byte) float32 {
		v, _ := wire.ConsumeFixed32(b)
		return math.Float32frombits(v)
	})
}

// PackedFixed64, PackedSfixed64, and PackedFloat64 read a packed
// fixed-64-bit blob.
func (p *Parser) PackedFixed64() ([]uint64, error) {
	return packedFixedElements(p, 8, func(b []byte) uint64 { v, _ := wire.ConsumeFixed64(b); return v })
}

func (p *Parser) PackedSfixed64() ([]int64, error) {
	return packedFixedElements(p, 8, func(b []byte) int64 { v, _ := wire.ConsumeFixed64(b); return int64(v) })
}

func (p *Parser) PackedFloat64() ([]float64, error) {
	return packedFixedElements(p, 8, func(b []byte) float64 {
		v, _ := wire.ConsumeFixed64(b)
		return math.Float64frombits(v)
	})
}
