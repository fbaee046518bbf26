// Copyright 2026 The Machostrip Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Machostrip strips unreferenced symbols from a Mach-O static archive
// library.
//
// Usage:
//
//	machostrip [flags] -pattern regexp source.a dest.a
//
// Apple's strip cannot suppress undefined symbols in an object file
// built under the default two-level namespace, so machostrip works at
// the object level instead: it lists the archive's global defined
// symbols with nm, keeps those whose name starts with a match of
// -pattern, unpacks the archive with ar, relinks every member into a
// single relocatable object (ld -r) restricted to the preserved
// symbols, and repacks that object with libtool into a new archive at
// dest. The preserved symbol names are also written to a sidecar file
// next to source, with its extension replaced by ".symbols".
//
// All four tools are found on $PATH unless overridden with -nm, -ar,
// -ld, or -libtool. Machostrip exits 0 after dest is written, 2 on a
// usage error, and 1 when a tool is missing or fails; a failed run
// never overwrites an existing dest.
//
// See https://developer.apple.com/documentation/xcode/build-settings-reference
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/amyspark/machostrip/internal/striplib"
	"github.com/amyspark/machostrip/internal/symbols"
	"github.com/amyspark/machostrip/internal/toolchain"
)

var (
	pattern = flag.String("pattern", "", "preserve symbols whose name starts with a match of `regexp` (required)")
	nmPath  = flag.String("nm", "", "`path` to the nm (or llvm-nm) executable")
	arPath  = flag.String("ar", "", "`path` to the ar executable")
	ldPath  = flag.String("ld", "", "`path` to the ld executable")
	libtool = flag.String("libtool", "", "`path` to the libtool executable")
	check   = flag.Bool("check", false, "verify that dest exports no symbol outside the preserve set")
	verbose = flag.Bool("v", false, "log each external command before running it")
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: machostrip [flags] -pattern regexp source.a dest.a\n")
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("machostrip: ")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 2 {
		usage()
	}
	if *pattern == "" {
		fmt.Fprintf(os.Stderr, "machostrip: -pattern is required\n")
		usage()
	}
	re, err := symbols.CompilePattern(*pattern)
	if err != nil {
		fmt.Fprintf(os.Stderr, "machostrip: invalid -pattern: %v\n", err)
		usage()
	}

	tools, err := toolchain.ResolveTools(toolchain.Overrides{
		NM:      *nmPath,
		AR:      *arPath,
		LD:      *ldPath,
		Libtool: *libtool,
	})
	if err != nil {
		log.Fatal(err)
	}

	cfg := &striplib.Config{
		Source:  flag.Arg(0),
		Dest:    flag.Arg(1),
		Pattern: re,
		Tools:   tools,
		Check:   *check,
		Log:     log.Default(),
	}
	if *verbose {
		cfg.Echo = log.Default()
	}
	if err := striplib.Run(cfg); err != nil {
		log.Fatal(err)
	}
}
