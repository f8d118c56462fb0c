// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

// ReadVarint decodes a single varint from r. It prefers Peek, scanning the
// peeked window for the terminating (MSB-clear) byte and then Skip-ing past
// it so no bytes are copied twice; if Peek reports unsupported (returns no
// bytes), it falls back to up to 10 single-byte Reads.
func ReadVarint(r ByteReader) (uint64, error) {
	peeked, err := r.Peek(maxVarintLen64)
	if err != nil {
		return 0, err
	}
	if len(peeked) > 0 {
		v, n := ConsumeVarint(peeked)
		if n == 0 {
			// No terminator found in the peeked window.
			if len(peeked) >= maxVarintLen64 {
				return 0, ErrInvalidInput
			}
			return 0, ErrOutOfSpace
		}
		if err := r.Skip(n); err != nil {
			return 0, err
		}
		return v, nil
	}

	// Peek unsupported: fall back to byte-at-a-time reads.
	var v uint64
	for i := 0; i < maxVarintLen64; i++ {
		b, err := r.Read(1)
		if err != nil {
			return 0, err
		}
		c := b[0]
		v |= uint64(c&0x7f) << (7 * uint(i))
		if c < 0x80 {
			return v, nil
		}
		if i == maxVarintLen64-1 {
			return 0, ErrInvalidInput
		}
	}
	return 0, ErrInvalidInput
}

// ReadTag decodes a field header, splitting it into a field number and wire
// type.
func ReadTag(r ByteReader) (Number, Type, error) {
	v, err := ReadVarint(r)
	if err != nil {
		return 0, 0, err
	}
	num, typ := DecodeTag(v)
	return num, typ, nil
}

// ReadFixed32 reads a 4-byte little-endian value.
func ReadFixed32(r ByteReader) (uint32, error) {
	b, err := r.Read(4)
	if err != nil {
		return 0, err
	}
	v, _ := ConsumeFixed32(b)
	return v, nil
}

// ReadFixed64 reads an 8-byte little-endian value.
func ReadFixed64(r ByteReader) (uint64, error) {
	b, err := r.Read(8)
	if err != nil {
		return 0, err
	}
	v, _ := ConsumeFixed64(b)
	return v, nil
}

// SkipField advances r past the payload of a field of wire type typ,
// assuming its header has already been consumed. The group wire types are
// recognized but rejected: proto2 groups are not supported by this codec.
func SkipField(r ByteReader, typ Type) error {
	switch typ {
	case VarintType:
		_, err := ReadVarint(r)
		return err
	case Fixed32Type:
		return r.Skip(4)
	case Fixed64Type:
		return r.Skip(8)
	case BytesType:
		n, err := ReadVarint(r)
		if err != nil {
			return err
		}
		if int64(n) > r.BytesAvailable() {
			return ErrInvalidInput
		}
		return r.Skip(int(n))
	case StartGroup, EndGroup:
		return ErrInvalidInput
	default:
		return ErrInvalidInput
	}
}
