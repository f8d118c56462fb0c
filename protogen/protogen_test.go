// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package protogen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/pluginpb"
)

func label(l descriptorpb.FieldDescriptorProto_Label) *descriptorpb.FieldDescriptorProto_Label { return &l }
func ftype(t descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto_Type    { return &t }

func scalarField(name string, num int32, t descriptorpb.FieldDescriptorProto_Type, repeated bool) *descriptorpb.FieldDescriptorProto {
	l := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
	if repeated {
		l = descriptorpb.FieldDescriptorProto_LABEL_REPEATED
	}
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(num),
		Label:  label(l),
		Type:   ftype(t),
	}
}

func testRequest() *pluginpb.CodeGeneratorRequest {
	inner := &descriptorpb.DescriptorProto{
		Name: proto.String("Inner"),
		Field: []*descriptorpb.FieldDescriptorProto{
			scalarField("f1", 1, descriptorpb.FieldDescriptorProto_TYPE_INT32, true),
			scalarField("f2", 2, descriptorpb.FieldDescriptorProto_TYPE_INT32, false),
		},
	}
	outer := &descriptorpb.DescriptorProto{
		Name: proto.String("Outer"),
		Field: []*descriptorpb.FieldDescriptorProto{
			scalarField("f1", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING, false),
			{
				Name:     proto.String("f2"),
				Number:   proto.Int32(2),
				Label:    label(descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL),
				Type:     ftype(descriptorpb.FieldDescriptorProto_TYPE_MESSAGE),
				TypeName: proto.String(".example.Outer.Inner"),
			},
			scalarField("f3", 3, descriptorpb.FieldDescriptorProto_TYPE_FLOAT, false),
		},
		NestedType: []*descriptorpb.DescriptorProto{inner},
	}
	fd := &descriptorpb.FileDescriptorProto{
		Name:    proto.String("example/outer.proto"),
		Package: proto.String("example"),
		Syntax:  proto.String("proto3"),
		Options: &descriptorpb.FileOptions{
			GoPackage: proto.String("github.com/protoforge/microproto/example;example"),
		},
		MessageType: []*descriptorpb.DescriptorProto{outer},
	}
	return &pluginpb.CodeGeneratorRequest{
		FileToGenerate: []string{"example/outer.proto"},
		ProtoFile:      []*descriptorpb.FileDescriptorProto{fd},
	}
}

func TestNewBuildsFileMessageFieldGraph(t *testing.T) {
	gen, err := New(testRequest(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(gen.Files) != 1 {
		t.Fatalf("len(Files) = %d, want 1", len(gen.Files))
	}
	f := gen.Files[0]
	if !f.Generate {
		t.Fatalf("Generate = false, want true")
	}
	if f.GoImportPath != "github.com/protoforge/microproto/example" {
		t.Fatalf("GoImportPath = %q", f.GoImportPath)
	}
	if f.GoPackageName != "example" {
		t.Fatalf("GoPackageName = %q", f.GoPackageName)
	}
	if len(f.Messages) != 1 || f.Messages[0].GoIdent.GoName != "Outer" {
		t.Fatalf("Messages = %+v", f.Messages)
	}
	outer := f.Messages[0]
	if len(outer.Messages) != 1 || outer.Messages[0].GoIdent.GoName != "Outer_Inner" {
		t.Fatalf("nested Messages = %+v", outer.Messages)
	}

	f2 := outer.Fields[1]
	if f2.Kind != KindMessage || f2.MessageType == nil || f2.MessageType.GoIdent.GoName != "Outer_Inner" {
		t.Fatalf("f2 = %+v", f2)
	}

	inner := outer.Messages[0]
	if !inner.Fields[0].Repeated || !inner.Fields[0].Packed {
		t.Fatalf("inner.f1 = %+v, want repeated+packed by proto3 default", inner.Fields[0])
	}
}

func TestParamFuncReceivesUnknownParameters(t *testing.T) {
	req := testRequest()
	req.Parameter = proto.String("paths=source_relative,plugins=micro,foo=bar")

	var got [][2]string
	opts := &Options{ParamFunc: func(name, value string) error {
		got = append(got, [2]string{name, value})
		return nil
	}}
	gen, err := New(req, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(got) != 2 || got[0][0] != "plugins" || got[1][0] != "foo" {
		t.Fatalf("ParamFunc calls = %v", got)
	}
	if gen.Files[0].GeneratedFilenamePrefix != "example/outer" {
		t.Fatalf("GeneratedFilenamePrefix = %q, want example/outer (source_relative)", gen.Files[0].GeneratedFilenamePrefix)
	}
}

func TestUnknownParameterWithoutParamFuncErrors(t *testing.T) {
	req := testRequest()
	req.Parameter = proto.String("bogus=1")
	if _, err := New(req, nil); err == nil {
		t.Fatalf("New: want error for unrecognized parameter, got nil")
	}
}

func TestOneofFieldRejected(t *testing.T) {
	req := testRequest()
	req.ProtoFile[0].MessageType[0].Field = append(req.ProtoFile[0].MessageType[0].Field,
		&descriptorpb.FieldDescriptorProto{
			Name:       proto.String("f4"),
			Number:     proto.Int32(4),
			Label:      label(descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL),
			Type:       ftype(descriptorpb.FieldDescriptorProto_TYPE_INT32),
			OneofIndex: proto.Int32(0),
		})
	if _, err := New(req, nil); err == nil || !strings.Contains(err.Error(), "oneof") {
		t.Fatalf("New: err = %v, want an oneof-rejection error", err)
	}
}

func TestGeneratedFileContentIncludesImportsAndPackage(t *testing.T) {
	gen, err := New(testRequest(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f := gen.Files[0]
	g := gen.NewGeneratedFile(f.GeneratedFilenamePrefix+".microproto.go", f.GoImportPath)
	g.P("type Outer struct {")
	g.P("F1 string")
	g.P("F2 *", f.Messages[0].Messages[0].GoIdent)
	g.P("F3 wire.Type")
	g.P("}")
	g.Import(GoImportPath("github.com/protoforge/microproto/wire"))

	content, err := g.Content()
	require.NoError(t, err)
	src := string(content)
	assert.Contains(t, src, "package example")
	assert.Contains(t, src, "github.com/protoforge/microproto/wire")
	assert.Contains(t, src, "type Outer struct")
}
