// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gengo generates Go source from a protogen.File: a types file
// declaring one struct per message, and a codec file giving each struct its
// EstimateSize, Encode, and Decode methods against pbcodec.
package gengo

import (
	"fmt"

	"github.com/protoforge/microproto/protogen"
)

const (
	pbcodecImportPath = protogen.GoImportPath("github.com/protoforge/microproto/pbcodec")
	wireImportPath    = protogen.GoImportPath("github.com/protoforge/microproto/wire")
)

func pbcodecIdent(name string) protogen.GoIdent { return pbcodecImportPath.Ident(name) }
func wireIdent(name string) protogen.GoIdent    { return wireImportPath.Ident(name) }

// GenerateFile emits f's types file and codec file into gen. It always
// returns nil: unsupported constructs (groups, oneofs) are already rejected
// by protogen.New, and this layer performs no checks of its own.
func GenerateFile(gen *protogen.Plugin, f *protogen.File) error {
	messages := allMessages(f)

	types := gen.NewGeneratedFile(f.GeneratedFilenamePrefix+".microproto.go", f.GoImportPath)
	for _, m := range messages {
		generateMessageType(types, m)
	}

	codec := gen.NewGeneratedFile(f.GeneratedFilenamePrefix+".microproto_codec.go", f.GoImportPath)
	for _, m := range messages {
		generateEstimateSize(codec, m)
		generateEncode(codec, m)
		generateDecode(codec, m)
	}
	return nil
}

// allMessages flattens f's message tree (top-level and nested) into
// declaration order: a message always precedes anything nested inside it,
// matching how protoc itself orders DescriptorProto.NestedType.
func allMessages(f *protogen.File) []*protogen.Message {
	var out []*protogen.Message
	var walk func([]*protogen.Message)
	walk = func(ms []*protogen.Message) {
		for _, m := range ms {
			out = append(out, m)
			walk(m.Messages)
		}
	}
	walk(f.Messages)
	return out
}

func generateMessageType(g *protogen.GeneratedFile, m *protogen.Message) {
	g.P("// ", m.GoIdent.GoName, " is generated from message ", m.Desc.GetName(), ".")
	g.P("type ", m.GoIdent, " struct {")
	for _, fld := range m.Fields {
		g.P(fld.GoName, " ", fieldTypeExpr(g, fld))
	}
	g.P("}")
	g.P()
}

// fieldTypeExpr renders fld's Go field type as source, resolving message
// references through g so their import gets registered.
func fieldTypeExpr(g *protogen.GeneratedFile, fld *protogen.Field) string {
	base := fld.Kind.GoType()
	if fld.Kind == protogen.KindMessage {
		base = "*" + g.QualifiedGoIdent(fld.MessageType.GoIdent)
	}
	if fld.Repeated {
		return "[]" + base
	}
	return base
}

// fieldEstimate is a conservative (never-too-small) per-element byte count
// used to size EstimateSize, which only needs to upper-bound the true
// encoded length: the Builder back-patch protocol tolerates arbitrary
// overestimates and pads the real length out to the reserved width.
func fieldEstimate(fld *protogen.Field) string {
	const tagMax = 5 // varint tag, supports field numbers up to 2^32-1

	switch fld.Kind {
	case protogen.KindFixed32, protogen.KindSfixed32, protogen.KindFloat32:
		return fmt.Sprintf("%d", tagMax+4)
	case protogen.KindFixed64, protogen.KindSfixed64, protogen.KindFloat64:
		return fmt.Sprintf("%d", tagMax+8)
	default:
		return fmt.Sprintf("%d", tagMax+10) // every varint kind, worst case
	}
}

func generateEstimateSize(g *protogen.GeneratedFile, m *protogen.Message) {
	g.P("func (m *", m.GoIdent, ") EstimateSize() int {")
	g.P("size := 0")
	for _, fld := range m.Fields {
		switch {
		case fld.Kind == protogen.KindMessage && fld.Repeated:
			g.P("for _, v := range m.", fld.GoName, " {")
			g.P("if v != nil { size += 15 + v.EstimateSize() }")
			g.P("}")
		case fld.Kind == protogen.KindMessage:
			g.P("if m.", fld.GoName, " != nil { size += 15 + m.", fld.GoName, ".EstimateSize() }")
		case fld.Kind == protogen.KindString || fld.Kind == protogen.KindBytes:
			if fld.Repeated {
				g.P("for _, v := range m.", fld.GoName, " { size += 15 + len(v) }")
			} else {
				g.P("size += 15 + len(m.", fld.GoName, ")")
			}
		case fld.Repeated && fld.Packed:
			g.P("if len(m.", fld.GoName, ") > 0 { size += 15 + len(m.", fld.GoName, ")*10 }")
		case fld.Repeated:
			g.P("size += len(m.", fld.GoName, ") * ", fieldEstimate(fld))
		default:
			g.P("size += ", fieldEstimate(fld))
		}
	}
	g.P("return size")
	g.P("}")
	g.P()
}

func generateEncode(g *protogen.GeneratedFile, m *protogen.Message) {
	g.P("func (m *", m.GoIdent, ") Encode(b *", pbcodecIdent("Builder"), ") error {")
	for _, fld := range m.Fields {
		num := fld.Desc.GetNumber()
		switch {
		case fld.Kind == protogen.KindMessage && fld.Repeated:
			g.P("for _, v := range m.", fld.GoName, " {")
			g.P("if v == nil {")
			g.P("continue")
			g.P("}")
			g.P("if err := b.Message(", num, ", v); err != nil {")
			g.P("return err")
			g.P("}")
			g.P("}")
		case fld.Kind == protogen.KindMessage:
			g.P("if m.", fld.GoName, " != nil {")
			g.P("if err := b.Message(", num, ", m.", fld.GoName, "); err != nil {")
			g.P("return err")
			g.P("}")
			g.P("}")
		case fld.Repeated && fld.Packed:
			g.P("if len(m.", fld.GoName, ") > 0 {")
			g.P("if err := b.Packed", fld.Kind.MethodSuffix(), "(", num, ", m.", fld.GoName, "); err != nil {")
			g.P("return err")
			g.P("}")
			g.P("}")
		case fld.Repeated:
			g.P("for _, v := range m.", fld.GoName, " {")
			g.P("if err := b.", fld.Kind.MethodSuffix(), "(", num, ", v); err != nil {")
			g.P("return err")
			g.P("}")
			g.P("}")
		default:
			g.P("if err := b.", fld.Kind.MethodSuffix(), "(", num, ", m.", fld.GoName, "); err != nil {")
			g.P("return err")
			g.P("}")
		}
	}
	g.P("return nil")
	g.P("}")
	g.P()
}

func generateDecode(g *protogen.GeneratedFile, m *protogen.Message) {
	g.P("func (m *", m.GoIdent, ") Decode(p *", pbcodecIdent("Parser"), ") error {")
	g.P("for {")
	g.P("ok, err := p.NextField()")
	g.P("if err != nil {")
	g.P("return err")
	g.P("}")
	g.P("if !ok {")
	g.P("return nil")
	g.P("}")
	g.P("switch p.FieldNumber() {")
	for _, fld := range m.Fields {
		g.P("case ", fld.Desc.GetNumber(), ":")
		generateFieldDecode(g, fld)
	}
	g.P("default:")
	g.P("if err := p.SkipField(); err != nil {")
	g.P("return err")
	g.P("}")
	g.P("}")
	g.P("}")
	g.P("}")
	g.P()
}

func generateFieldDecode(g *protogen.GeneratedFile, fld *protogen.Field) {
	suffix := fld.Kind.MethodSuffix()
	switch {
	case fld.Kind == protogen.KindMessage && fld.Repeated:
		g.P("v := &", fld.MessageType.GoIdent, "{}")
		g.P("if err := p.Message(v); err != nil {")
		g.P("return err")
		g.P("}")
		g.P("m.", fld.GoName, " = append(m.", fld.GoName, ", v)")
	case fld.Kind == protogen.KindMessage:
		g.P("m.", fld.GoName, " = &", fld.MessageType.GoIdent, "{}")
		g.P("if err := p.Message(m.", fld.GoName, "); err != nil {")
		g.P("return err")
		g.P("}")
	case fld.Repeated && fld.Packed:
		// Tolerate either a packed blob or a lone unpacked occurrence of
		// the same field, matching the wire-compatibility proto3 expects
		// when a producer's packed setting differs from this schema's.
		g.P("if p.WireType() == ", wireIdent("BytesType"), " {")
		g.P("vs, err := p.Packed", suffix, "()")
		g.P("if err != nil {")
		g.P("return err")
		g.P("}")
		g.P("m.", fld.GoName, " = append(m.", fld.GoName, ", vs...)")
		g.P("} else {")
		g.P("var v ", fld.Kind.GoType())
		g.P("if err := p.", suffix, "(&v); err != nil {")
		g.P("return err")
		g.P("}")
		g.P("m.", fld.GoName, " = append(m.", fld.GoName, ", v)")
		g.P("}")
	case fld.Repeated:
		g.P("var v ", fld.Kind.GoType())
		g.P("if err := p.", suffix, "(&v); err != nil {")
		g.P("return err")
		g.P("}")
		g.P("m.", fld.GoName, " = append(m.", fld.GoName, ", v)")
	default:
		g.P("if err := p.", suffix, "(&m.", fld.GoName, "); err != nil {")
		g.P("return err")
		g.P("}")
	}
}
