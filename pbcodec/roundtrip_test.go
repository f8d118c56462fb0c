// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pbcodec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/protoforge/microproto/wire"
)

// innerMsg models: message B_inner { repeated int32 f1 [packed=true] = 1; int32 f2 = 2; }
type innerMsg struct {
	F1 []int32
	F2 int32
}

func (m *innerMsg) EstimateSize() int {
	size := 0
	if len(m.F1) > 0 {
		size += 11 + 10*len(m.F1) // header + worst-case length varint + worst-case payload
	}
	size += 11 // f2
	return size
}

func (m *innerMsg) Encode(b *Builder) error {
	if len(m.F1) > 0 {
		if err := b.PackedInt32(1, m.F1); err != nil {
			return err
		}
	}
	return b.Int32(2, m.F2)
}

func (m *innerMsg) Decode(p *Parser) error {
	for {
		ok, err := p.NextField()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch p.FieldNumber() {
		case 1:
			if p.WireType() == wire.BytesType {
				vs, err := p.PackedInt32()
				if err != nil {
					return err
				}
				m.F1 = append(m.F1, vs...)
			} else {
				var v int32
				if err := p.Int32(&v); err != nil {
					return err
				}
				m.F1 = append(m.F1, v)
			}
		case 2:
			if err := p.Int32(&m.F2); err != nil {
				return err
			}
		default:
			if err := p.SkipField(); err != nil {
				return err
			}
		}
	}
}

// outerMsg models: message B { string f1 = 1; B_inner f2 = 2; float f3 = 3; }
type outerMsg struct {
	F1 string
	F2 *innerMsg
	F3 float32
}

func (m *outerMsg) EstimateSize() int {
	size := 11 + len(m.F1)
	if m.F2 != nil {
		size += 11 + m.F2.EstimateSize()
	}
	size += 11
	return size
}

func (m *outerMsg) Encode(b *Builder) error {
	if err := b.String(1, m.F1); err != nil {
		return err
	}
	if m.F2 != nil {
		if err := b.Message(2, m.F2); err != nil {
			return err
		}
	}
	return b.Float32(3, m.F3)
}

func (m *outerMsg) Decode(p *Parser) error {
	for {
		ok, err := p.NextField()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch p.FieldNumber() {
		case 1:
			if err := p.String(&m.F1); err != nil {
				return err
			}
		case 2:
			m.F2 = &innerMsg{}
			if err := p.Message(m.F2); err != nil {
				return err
			}
		case 3:
			if err := p.Float32(&m.F3); err != nil {
				return err
			}
		default:
			if err := p.SkipField(); err != nil {
				return err
			}
		}
	}
}

func encodeToBytes(t *testing.T, m Message) []byte {
	t.Helper()
	w := wire.NewBufferWriter(nil)
	b := NewBuilder(w)
	if err := m.Encode(b); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := b.LastError(); err != nil {
		t.Fatalf("LastError after Encode: %v", err)
	}
	return w.Bytes()
}

func TestNestedMessageRoundTrip(t *testing.T) {
	orig := &outerMsg{
		F1: "Hello world",
		F2: &innerMsg{F1: []int32{12345}, F2: 6789},
		F3: 1.0,
	}
	encoded := encodeToBytes(t, orig)

	if len(encoded) > orig.EstimateSize() {
		t.Fatalf("len(encode(M))=%d exceeds EstimateSize()=%d", len(encoded), orig.EstimateSize())
	}

	// The string and float fields are unambiguous: verify their exact
	// wire bytes against the spec's worked example.
	wantPrefix := []byte{0x0a, 0x0b}
	wantPrefix = append(wantPrefix, []byte("Hello world")...)
	if !bytes.HasPrefix(encoded, wantPrefix) {
		t.Fatalf("field 1 framing = % x, want prefix % x", encoded, wantPrefix)
	}
	wantSuffix := []byte{0x1d, 0x00, 0x00, 0x80, 0x3f}
	if !bytes.HasSuffix(encoded, wantSuffix) {
		t.Fatalf("field 3 framing = % x, want suffix % x", encoded, wantSuffix)
	}

	got := &outerMsg{}
	p := NewParser(wire.NewArrayReader(encoded))
	if err := got.Decode(p); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.F1 != orig.F1 || got.F3 != orig.F3 {
		t.Fatalf("got = %+v, want %+v", got, orig)
	}
	if got.F2 == nil || got.F2.F2 != orig.F2.F2 || len(got.F2.F1) != 1 || got.F2.F1[0] != 12345 {
		t.Fatalf("got.F2 = %+v, want %+v", got.F2, orig.F2)
	}
}

// TestPackedVsUnpackedTolerance reproduces the spec's scenario 4: a
// repeated int32 field given either as two unpacked varint occurrences or
// as one packed length-delimited blob must decode to the same []int32.
func TestPackedVsUnpackedTolerance(t *testing.T) {
	unpacked := wire.AppendTag(nil, 1, wire.VarintType)
	unpacked = wire.AppendVarint(unpacked, 1)
	unpacked = wire.AppendTag(unpacked, 1, wire.VarintType)
	unpacked = wire.AppendVarint(unpacked, 2)

	packedPayload := wire.AppendVarint(nil, 1)
	packedPayload = wire.AppendVarint(packedPayload, 2)
	packed := wire.AppendTag(nil, 1, wire.BytesType)
	packed = wire.AppendVarint(packed, uint64(len(packedPayload)))
	packed = append(packed, packedPayload...)

	for _, tc := range []struct {
		name string
		buf  []byte
	}{
		{"unpacked", unpacked},
		{"packed", packed},
	} {
		m := &innerMsg{}
		p := NewParser(wire.NewArrayReader(tc.buf))
		if err := m.Decode(p); err != nil {
			t.Fatalf("%s: Decode: %v", tc.name, err)
		}
		if len(m.F1) != 2 || m.F1[0] != 1 || m.F1[1] != 2 {
			t.Fatalf("%s: F1 = %v, want [1 2]", tc.name, m.F1)
		}
	}
}

// overEstimated is a Message whose EstimateSize badly overestimates its
// true encoded length, to exercise back-patch padding (spec scenario 5).
type overEstimated struct {
	estimate int
	payload  func(*Builder) error
}

func (m *overEstimated) EstimateSize() int           { return m.estimate }
func (m *overEstimated) Encode(b *Builder) error      { return m.payload(b) }
func (m *overEstimated) Decode(p *Parser) error       { return nil }

func TestBackPatchedLengthPadding(t *testing.T) {
	inner := &overEstimated{
		estimate: 300,
	}
	// The sub-message's true encoded length is exactly one byte: write a
	// single raw byte directly rather than through a typed emitter (whose
	// header+value would itself be more than one byte).
	inner.payload = func(b *Builder) error {
		return b.w.Write([]byte{0x00})
	}

	w := wire.NewBufferWriter(nil)
	b := NewBuilder(w)
	if err := b.Message(7, inner); err != nil {
		t.Fatalf("Message: %v", err)
	}
	encoded := w.Bytes()

	// tag(7, bytes) + padded-length(1, width=2) + 1 content byte.
	wantTag := wire.AppendTag(nil, 7, wire.BytesType)
	want := append(append([]byte{}, wantTag...), 0x81, 0x00, 0x00)
	if !bytes.Equal(encoded, want) {
		t.Fatalf("encoded = % x, want % x", encoded, want)
	}

	// It must decode back to exactly one content byte: the padded length
	// varint reads as 1 and exactly one byte follows it.
	r := wire.NewArrayReader(encoded)
	num, typ, err := wire.ReadTag(r)
	if err != nil || num != 7 || typ != wire.BytesType {
		t.Fatalf("ReadTag = (%d, %v, %v)", num, typ, err)
	}
	length, err := wire.ReadVarint(r)
	if err != nil || length != 1 {
		t.Fatalf("declared length = (%d, %v), want 1", length, err)
	}
	if r.BytesAvailable() != 1 {
		t.Fatalf("BytesAvailable = %d, want 1", r.BytesAvailable())
	}
}

// TestUnknownFieldSkip reproduces the spec's scenario 6: a message with one
// unrecognized field of each wire type must decode cleanly, discarding the
// unknown fields and populating the known one.
func TestUnknownFieldSkip(t *testing.T) {
	var buf []byte
	buf = wire.AppendTag(buf, 50, wire.VarintType)
	buf = wire.AppendVarint(buf, 42)
	buf = wire.AppendTag(buf, 51, wire.Fixed32Type)
	buf = wire.AppendFixed32(buf, 1)
	buf = wire.AppendTag(buf, 52, wire.Fixed64Type)
	buf = wire.AppendFixed64(buf, 1)
	buf = wire.AppendTag(buf, 53, wire.BytesType)
	buf = wire.AppendVarint(buf, 3)
	buf = append(buf, 'x', 'y', 'z')
	buf = wire.AppendTag(buf, 2, wire.VarintType)
	buf = wire.AppendVarint(buf, 6789)

	m := &innerMsg{}
	p := NewParser(wire.NewArrayReader(buf))
	if err := m.Decode(p); err != nil {
		t.Fatalf("Decode with unknown fields: %v", err)
	}
	if m.F2 != 6789 || len(m.F1) != 0 {
		t.Fatalf("got = %+v, want F2=6789 F1=[]", m)
	}
}

func TestSubMessageLengthExceedsInput(t *testing.T) {
	buf := wire.AppendTag(nil, 2, wire.BytesType)
	buf = wire.AppendVarint(buf, 100) // declares 100 bytes, none follow

	m := &outerMsg{}
	p := NewParser(wire.NewArrayReader(buf))
	if err := m.Decode(p); !errors.Is(err, wire.ErrInvalidInput) {
		t.Fatalf("Decode with over-long sub-message length = %v, want ErrInvalidInput", err)
	}
}
