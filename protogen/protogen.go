// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package protogen provides support for writing protoc plugins.
//
// Plugins for protoc, the Protocol Buffers Compiler, are programs which read
// a CodeGeneratorRequest protocol buffer from standard input and write a
// CodeGeneratorResponse protocol buffer to standard output. This package
// provides the scaffolding for plugins that emit Go code: it walks the
// descriptor tree protoc hands over and exposes it as Files, Messages, and
// Fields with their Go-side identifiers already resolved, so a generator
// only has to decide what to print.
package protogen

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/imports"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/pluginpb"
)

// Run executes f as a protoc plugin: it reads a CodeGeneratorRequest from
// os.Stdin, invokes f, and writes the resulting CodeGeneratorResponse to
// os.Stdout. If reading or writing fails, Run reports to os.Stderr and
// exits with status 1; errors from f itself are carried in the response's
// Error field instead, so protoc can report them without this process
// needing a non-zero exit.
//
// A nil opts is equivalent to a zero-valued one.
func Run(opts *Options, f func(*Plugin) error) {
	if err := run(opts, f); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", filepath.Base(os.Args[0]), err)
		os.Exit(1)
	}
}

func run(opts *Options, f func(*Plugin) error) error {
	if len(os.Args) > 1 {
		return fmt.Errorf("unknown argument %q (this program should be run by protoc, not directly)", os.Args[1])
	}
	in, err := ioutil.ReadAll(os.Stdin)
	if err != nil {
		return err
	}
	req := &pluginpb.CodeGeneratorRequest{}
	if err := proto.Unmarshal(in, req); err != nil {
		return fmt.Errorf("parsing CodeGeneratorRequest: %w", err)
	}
	gen, err := New(req, opts)
	if err != nil {
		return err
	}
	if err := f(gen); err != nil {
		gen.Error(err)
	}
	resp := gen.Response()
	out, err := proto.Marshal(resp)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}

// A Plugin is a single protoc plugin invocation.
type Plugin struct {
	// Request is the CodeGeneratorRequest protoc sent.
	Request *pluginpb.CodeGeneratorRequest

	// Files holds every file protoc described, in the topological order
	// protoc provides (each file appears before anything that imports
	// it). Only files with Generate set were named on the command line;
	// the rest are transitive dependencies kept around so their message
	// types can be referenced.
	Files []*File

	filesByName    map[string]*File
	messagesByName map[string]*Message

	opts *Options
	err  error

	mu       sync.Mutex
	genFiles []*GeneratedFile
}

// Options customizes New and Run.
type Options struct {
	// ParamFunc, if non-nil, is called with each generator parameter New
	// does not itself interpret (i.e. every key=value pair other than
	// "paths" and "M<file>=<import>"). Plugins register flags this way:
	// var enableFoo bool
	// opts.ParamFunc = func(name, value string) error { ... }
	ParamFunc func(name, value string) error

	// ImportRewriteFunc, if non-nil, rewrites a file's default Go import
	// path (e.g. to vendor it, or to point it at a replacement module).
	ImportRewriteFunc func(GoImportPath) GoImportPath
}

// pathType controls how a generated file's Go import path is derived from
// its .proto path when no M<file>=<import> mapping and no go_package file
// option supplies one outright.
type pathType int

const (
	pathTypeImport pathType = iota
	pathTypeSourceRelative
)

// New parses req's parameters and builds the descriptor graph described by
// req.ProtoFile.
func New(req *pluginpb.CodeGeneratorRequest, opts *Options) (*Plugin, error) {
	if opts == nil {
		opts = &Options{}
	}
	gen := &Plugin{
		Request:        req,
		filesByName:    make(map[string]*File),
		messagesByName: make(map[string]*Message),
		opts:           opts,
	}

	// Output paths mirror the .proto path unless paths=import is given.
	paths := pathTypeSourceRelative
	importPaths := make(map[string]GoImportPath) // proto file name -> explicit Mfoo.proto=path

	for _, param := range strings.Split(req.GetParameter(), ",") {
		if param == "" {
			continue
		}
		var name, value string
		if i := strings.Index(param, "="); i >= 0 {
			name, value = param[:i], param[i+1:]
		} else {
			name = param
		}
		switch {
		case name == "paths":
			switch value {
			case "import":
				paths = pathTypeImport
			case "source_relative":
				paths = pathTypeSourceRelative
			default:
				return nil, fmt.Errorf("unknown value %q for paths parameter", value)
			}
		case strings.HasPrefix(name, "M"):
			importPaths[name[1:]] = GoImportPath(value)
		case opts.ParamFunc != nil:
			if err := opts.ParamFunc(name, value); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown generator parameter %q", name)
		}
	}

	generate := make(map[string]bool)
	for _, name := range req.GetFileToGenerate() {
		generate[name] = true
	}

	for _, fd := range req.GetProtoFile() {
		f, err := newFile(gen, fd, paths, importPaths[fd.GetName()])
		if err != nil {
			return nil, fmt.Errorf("file %q: %w", fd.GetName(), err)
		}
		f.Generate = generate[fd.GetName()]
		gen.Files = append(gen.Files, f)
		gen.filesByName[fd.GetName()] = f
	}
	return gen, nil
}

// FileByPath looks up a dependency by its .proto path, as used in a
// FieldDescriptorProto's type_name cross-reference.
func (gen *Plugin) FileByPath(name string) *File { return gen.filesByName[name] }

// Error records the first error passed to it; later calls are no-ops. A
// generator function returning a non-nil error has it routed here
// automatically by Run.
func (gen *Plugin) Error(err error) {
	if gen.err == nil {
		gen.err = err
	}
}

// Response assembles the CodeGeneratorResponse to send back to protoc.
func (gen *Plugin) Response() *pluginpb.CodeGeneratorResponse {
	if gen.err != nil {
		return &pluginpb.CodeGeneratorResponse{Error: proto.String(gen.err.Error())}
	}
	resp := &pluginpb.CodeGeneratorResponse{}
	for _, g := range gen.genFiles {
		content, err := g.Content()
		if err != nil {
			return &pluginpb.CodeGeneratorResponse{
				Error: proto.String(fmt.Sprintf("%s: %v", g.filename, err)),
			}
		}
		resp.File = append(resp.File, &pluginpb.CodeGeneratorResponse_File{
			Name:    proto.String(g.filename),
			Content: proto.String(string(content)),
		})
	}
	return resp
}

// NewGeneratedFile creates a GeneratedFile for output path filename, whose
// contents live in Go package goImportPath. Safe to call concurrently from
// GenerateAllFiles.
func (gen *Plugin) NewGeneratedFile(filename string, goImportPath GoImportPath) *GeneratedFile {
	g := &GeneratedFile{
		gen:          gen,
		filename:     filename,
		goImportPath: goImportPath,
		imports:      map[GoImportPath]bool{goImportPath: true},
	}
	gen.mu.Lock()
	gen.genFiles = append(gen.genFiles, g)
	gen.mu.Unlock()
	return g
}

// GenerateAllFiles calls generate once per file with Generate set, running
// the calls concurrently via errgroup: code generation for one file does
// not depend on another's output, so there is no reason to serialize it.
// It returns the first error any call returns, after all calls complete.
func (gen *Plugin) GenerateAllFiles(generate func(f *File) error) error {
	var eg errgroup.Group
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for _, f := range gen.Files {
		if !f.Generate {
			continue
		}
		f := f
		eg.Go(func() error { return generate(f) })
	}
	return eg.Wait()
}

// A File describes a .proto file.
type File struct {
	Desc *descriptorpb.FileDescriptorProto

	GoImportPath  GoImportPath
	GoPackageName GoPackageName

	Messages []*Message

	// Generate is true for files named explicitly in the
	// CodeGeneratorRequest's file_to_generate list; false for files kept
	// around only because something Generate imports depends on them.
	Generate bool

	// GeneratedFilenamePrefix is the .proto path with its extension
	// stripped, e.g. "foo/bar" for "foo/bar.proto" under the default
	// paths=source_relative; under paths=import the directory is
	// GoImportPath instead of the .proto file's own directory.
	GeneratedFilenamePrefix string
}

func newFile(gen *Plugin, fd *descriptorpb.FileDescriptorProto, paths pathType, explicitImport GoImportPath) (*File, error) {
	f := &File{Desc: fd}

	switch {
	case explicitImport != "":
		f.GoImportPath = explicitImport
	case fd.GetOptions().GetGoPackage() != "":
		imp, _ := splitGoPackageOption(fd.GetOptions().GetGoPackage())
		f.GoImportPath = imp
	case paths == pathTypeSourceRelative:
		f.GoImportPath = GoImportPath(path.Dir(fd.GetName()))
	default:
		f.GoImportPath = GoImportPath(fd.GetPackage())
	}
	if gen.opts.ImportRewriteFunc != nil {
		f.GoImportPath = gen.opts.ImportRewriteFunc(f.GoImportPath)
	}

	if _, name := splitGoPackageOption(fd.GetOptions().GetGoPackage()); name != "" {
		f.GoPackageName = cleanPackageName(name)
	} else {
		f.GoPackageName = cleanPackageName(baseName(string(f.GoImportPath)))
	}

	switch paths {
	case pathTypeSourceRelative:
		f.GeneratedFilenamePrefix = strings.TrimSuffix(fd.GetName(), filepath.Ext(fd.GetName()))
	default:
		dir := string(f.GoImportPath)
		f.GeneratedFilenamePrefix = path.Join(dir, baseName(fd.GetName()))
	}

	for _, md := range fd.GetMessageType() {
		m, err := newMessage(gen, f, nil, md)
		if err != nil {
			return nil, err
		}
		f.Messages = append(f.Messages, m)
	}
	// Field Go types referencing message types need every message in the
	// file registered first, so resolve fields in a second pass.
	for _, m := range f.Messages {
		if err := resolveFields(gen, m); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// splitGoPackageOption splits a go_package option value of the form
// "import/path;name" into its import path and override package name.
// Either half may be empty.
func splitGoPackageOption(v string) (GoImportPath, string) {
	if i := strings.LastIndex(v, ";"); i >= 0 {
		return GoImportPath(v[:i]), v[i+1:]
	}
	return GoImportPath(v), ""
}

// A Message describes a message declaration.
type Message struct {
	Desc *descriptorpb.DescriptorProto

	GoIdent GoIdent

	Fields   []*Field
	Messages []*Message // nested message declarations

	file     *File
	fullName string
}

func newMessage(gen *Plugin, f *File, parent *Message, md *descriptorpb.DescriptorProto) (*Message, error) {
	m := &Message{Desc: md, file: f}
	if parent == nil {
		m.GoIdent = GoIdent{GoName: camelCase(md.GetName()), GoImportPath: f.GoImportPath}
		m.fullName = joinFullName(f.Desc.GetPackage(), md.GetName())
	} else {
		m.GoIdent = GoIdent{GoName: parent.GoIdent.GoName + "_" + camelCase(md.GetName()), GoImportPath: f.GoImportPath}
		m.fullName = joinFullName(parent.fullName, md.GetName())
	}
	gen.messagesByName[m.fullName] = m

	for _, nested := range md.GetNestedType() {
		if nested.GetOptions().GetMapEntry() {
			// Synthetic map-entry messages never surface as a Go type;
			// a field referencing one is a map, which this codec does
			// not support as a first-class kind (see SPEC_FULL.md).
			continue
		}
		nm, err := newMessage(gen, f, m, nested)
		if err != nil {
			return nil, err
		}
		m.Messages = append(m.Messages, nm)
	}

	for _, fdesc := range md.GetField() {
		if fdesc.OneofIndex != nil {
			return nil, fmt.Errorf("message %s: oneof fields are not supported", m.fullName)
		}
		field := &Field{Desc: fdesc, GoName: camelCase(fdesc.GetName())}
		m.Fields = append(m.Fields, field)
	}
	return m, nil
}

func joinFullName(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

// resolveFields fills in each field's Go type, now that every message in
// the file has a GoIdent assigned.
func resolveFields(gen *Plugin, m *Message) error {
	for _, field := range m.Fields {
		if err := resolveField(gen, m, field); err != nil {
			return err
		}
	}
	for _, nested := range m.Messages {
		if err := resolveFields(gen, nested); err != nil {
			return err
		}
	}
	return nil
}

func resolveField(gen *Plugin, m *Message, field *Field) error {
	fd := field.Desc
	if fd.GetType() == descriptorpb.FieldDescriptorProto_TYPE_GROUP {
		return fmt.Errorf("message %s, field %s: groups are not supported", m.fullName, fd.GetName())
	}

	kind, goType, err := fieldKindAndGoType(fd.GetType())
	if err != nil {
		return fmt.Errorf("message %s, field %s: %w", m.fullName, fd.GetName(), err)
	}
	field.Kind = kind

	if kind == KindMessage {
		target := gen.messagesByName[strings.TrimPrefix(fd.GetTypeName(), ".")]
		if target == nil {
			return fmt.Errorf("message %s, field %s: unresolved message type %q", m.fullName, fd.GetName(), fd.GetTypeName())
		}
		field.MessageType = target
		goType = "*" + qualifiedLocalType(m.file, target.GoIdent)
	}

	field.Repeated = fd.GetLabel() == descriptorpb.FieldDescriptorProto_LABEL_REPEATED
	if field.Repeated {
		field.GoType = "[]" + goType
		field.Packed = isPackable(kind) && (fd.GetOptions() == nil || fd.GetOptions().Packed == nil || fd.GetOptions().GetPacked())
	} else {
		field.GoType = goType
	}
	return nil
}

// qualifiedLocalType renders ident as Go source would reference it from
// within file f: bare if ident belongs to f's own package, otherwise
// package-qualified. Generated code resolves this for real through
// GeneratedFile.QualifiedGoIdent; this helper only precomputes the display
// string stored on Field.
func qualifiedLocalType(f *File, ident GoIdent) string {
	if ident.GoImportPath == f.GoImportPath {
		return ident.GoName
	}
	return string(cleanPackageName(baseName(string(ident.GoImportPath)))) + "." + ident.GoName
}

// A FieldKind identifies which family of Builder/Parser methods a field
// dispatches to; it is the one piece of information the generator needs
// beyond the raw descriptor type to print the right codec calls.
type FieldKind int

const (
	KindInt32 FieldKind = iota
	KindInt64
	KindUint32
	KindUint64
	KindBool
	KindSint32
	KindSint64
	KindFixed32
	KindSfixed32
	KindFloat32
	KindFixed64
	KindSfixed64
	KindFloat64
	KindString
	KindBytes
	KindMessage
)

// GoType returns the scalar Go type k maps to. It returns "" for
// KindMessage, whose type is the referenced Message's own GoIdent instead.
func (k FieldKind) GoType() string {
	switch k {
	case KindInt32, KindSint32, KindSfixed32:
		return "int32"
	case KindInt64, KindSint64, KindSfixed64:
		return "int64"
	case KindUint32, KindFixed32:
		return "uint32"
	case KindUint64, KindFixed64:
		return "uint64"
	case KindBool:
		return "bool"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	case KindBytes:
		return "[]byte"
	default:
		return ""
	}
}

// MethodSuffix returns the pbcodec Builder/Parser method name for k, e.g.
// "Int32" for Builder.Int32/Parser.Int32. Repeated packable fields prepend
// "Packed" themselves; MethodSuffix names only the scalar form.
func (k FieldKind) MethodSuffix() string {
	switch k {
	case KindInt32:
		return "Int32"
	case KindInt64:
		return "Int64"
	case KindUint32:
		return "Uint32"
	case KindUint64:
		return "Uint64"
	case KindBool:
		return "Bool"
	case KindSint32:
		return "Sint32"
	case KindSint64:
		return "Sint64"
	case KindFixed32:
		return "Fixed32"
	case KindSfixed32:
		return "Sfixed32"
	case KindFloat32:
		return "Float32"
	case KindFixed64:
		return "Fixed64"
	case KindSfixed64:
		return "Sfixed64"
	case KindFloat64:
		return "Float64"
	case KindString:
		return "String"
	case KindBytes:
		return "Bytes"
	default:
		return ""
	}
}

// isPackable reports whether repeated fields of kind default to packed
// encoding in proto3: every scalar numeric or bool kind; strings, bytes,
// and messages never pack.
func isPackable(k FieldKind) bool {
	switch k {
	case KindString, KindBytes, KindMessage:
		return false
	default:
		return true
	}
}

func fieldKindAndGoType(t descriptorpb.FieldDescriptorProto_Type) (FieldKind, string, error) {
	switch t {
	case descriptorpb.FieldDescriptorProto_TYPE_INT32:
		return KindInt32, "int32", nil
	case descriptorpb.FieldDescriptorProto_TYPE_INT64:
		return KindInt64, "int64", nil
	case descriptorpb.FieldDescriptorProto_TYPE_UINT32:
		return KindUint32, "uint32", nil
	case descriptorpb.FieldDescriptorProto_TYPE_UINT64:
		return KindUint64, "uint64", nil
	case descriptorpb.FieldDescriptorProto_TYPE_BOOL:
		return KindBool, "bool", nil
	case descriptorpb.FieldDescriptorProto_TYPE_SINT32:
		return KindSint32, "int32", nil
	case descriptorpb.FieldDescriptorProto_TYPE_SINT64:
		return KindSint64, "int64", nil
	case descriptorpb.FieldDescriptorProto_TYPE_FIXED32:
		return KindFixed32, "uint32", nil
	case descriptorpb.FieldDescriptorProto_TYPE_SFIXED32:
		return KindSfixed32, "int32", nil
	case descriptorpb.FieldDescriptorProto_TYPE_FLOAT:
		return KindFloat32, "float32", nil
	case descriptorpb.FieldDescriptorProto_TYPE_FIXED64:
		return KindFixed64, "uint64", nil
	case descriptorpb.FieldDescriptorProto_TYPE_SFIXED64:
		return KindSfixed64, "int64", nil
	case descriptorpb.FieldDescriptorProto_TYPE_DOUBLE:
		return KindFloat64, "float64", nil
	case descriptorpb.FieldDescriptorProto_TYPE_STRING:
		return KindString, "string", nil
	case descriptorpb.FieldDescriptorProto_TYPE_BYTES:
		return KindBytes, "[]byte", nil
	case descriptorpb.FieldDescriptorProto_TYPE_MESSAGE:
		return KindMessage, "", nil
	case descriptorpb.FieldDescriptorProto_TYPE_ENUM:
		// Enumerations pass through as the plain int32 varint that
		// underlies them; see DESIGN.md's Open Question decisions.
		return KindInt32, "int32", nil
	default:
		return 0, "", fmt.Errorf("unsupported field type %v", t)
	}
}

// A Field describes a message field.
type Field struct {
	Desc *descriptorpb.FieldDescriptorProto

	GoName string
	GoType string
	Kind   FieldKind

	Repeated bool
	Packed   bool

	// MessageType is set when Kind == KindMessage.
	MessageType *Message
}

// GeneratedFile is an output .go file under construction. Source is
// accumulated into an internal buffer via P and friends; Content renders
// the final formatted source, including the package clause and import
// block, on demand.
type GeneratedFile struct {
	gen          *Plugin
	filename     string
	goImportPath GoImportPath

	buf     bytes.Buffer
	imports map[GoImportPath]bool
}

// Filename returns the generated file's output path.
func (g *GeneratedFile) Filename() string { return g.filename }

// P prints its arguments to the generated file's body, each call ending in
// a newline. A GoIdent argument is rendered package-qualified (registering
// its import as a side effect); every other argument is rendered via
// fmt.Sprint.
func (g *GeneratedFile) P(v ...interface{}) {
	for _, x := range v {
		switch x := x.(type) {
		case GoIdent:
			fmt.Fprint(&g.buf, g.QualifiedGoIdent(x))
		default:
			fmt.Fprint(&g.buf, x)
		}
	}
	fmt.Fprintln(&g.buf)
}

// QualifiedGoIdent returns the Go expression referring to ident from within
// g, registering ident's package as an import if it is not g's own package.
func (g *GeneratedFile) QualifiedGoIdent(ident GoIdent) string {
	if ident.GoImportPath == g.goImportPath {
		return ident.GoName
	}
	g.imports[ident.GoImportPath] = true
	return string(cleanPackageName(baseName(string(ident.GoImportPath)))) + "." + ident.GoName
}

// Import registers an import with no accompanying identifier, for packages
// referenced only through a manually-built qualifier string.
func (g *GeneratedFile) Import(importPath GoImportPath) { g.imports[importPath] = true }

// Content renders the file's final, formatted source: package clause,
// import block, then the accumulated body.
func (g *GeneratedFile) Content() ([]byte, error) {
	var out bytes.Buffer
	fmt.Fprintln(&out, "// Code generated by protoc-gen-microproto. DO NOT EDIT.")
	fmt.Fprintln(&out)
	pkgName := baseName(string(g.goImportPath))
	fmt.Fprintf(&out, "package %s\n\n", cleanGoName(pkgName))

	var paths []string
	for p := range g.imports {
		if p == g.goImportPath {
			continue
		}
		paths = append(paths, string(p))
	}
	sort.Strings(paths)
	if len(paths) > 0 {
		fmt.Fprintln(&out, "import (")
		for _, p := range paths {
			fmt.Fprintf(&out, "\t%s\n", strconv.Quote(p))
		}
		fmt.Fprintln(&out, ")")
		fmt.Fprintln(&out)
	}
	if _, err := io.Copy(&out, bytes.NewReader(g.buf.Bytes())); err != nil {
		return nil, err
	}

	formatted, err := imports.Process(g.filename, out.Bytes(), nil)
	if err != nil {
		return nil, fmt.Errorf("formatting %s: %w", g.filename, err)
	}
	return formatted, nil
}
