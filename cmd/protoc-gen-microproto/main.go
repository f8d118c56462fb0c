// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// protoc-gen-microproto is a plugin for protoc, the Google protocol buffer
// compiler, that generates Go types and a hand-written-style wire codec
// (see packages wire and pbcodec) rather than reflection-backed message
// types. Build this binary onto $PATH as protoc-gen-microproto and run
//
//	protoc --microproto_out=paths=source_relative:. foo/bar.proto
//
// to produce foo/bar.microproto.go and foo/bar.microproto_codec.go.
package main

import (
	"flag"

	"github.com/protoforge/microproto/internal/gengo"
	"github.com/protoforge/microproto/protogen"
)

func main() {
	var (
		flags        flag.FlagSet
		importPrefix = flags.String("import_prefix", "", "prefix to prepend to import paths")
	)
	importRewriteFunc := func(importPath protogen.GoImportPath) protogen.GoImportPath {
		if *importPrefix != "" {
			return protogen.GoImportPath(*importPrefix) + importPath
		}
		return importPath
	}
	opts := &protogen.Options{
		ParamFunc:         flags.Set,
		ImportRewriteFunc: importRewriteFunc,
	}
	protogen.Run(opts, func(gen *protogen.Plugin) error {
		return gen.GenerateAllFiles(func(f *protogen.File) error {
			return gengo.GenerateFile(gen, f)
		})
	})
}
