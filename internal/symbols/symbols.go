// Copyright 2026 The Machostrip Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package symbols lists, filters, and persists the global defined
// symbols of a Mach-O static archive.
//
// The listing itself is delegated to nm; this package only parses its
// portable output format and decides which symbols survive stripping.
package symbols

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/amyspark/machostrip/internal/toolchain"
)

// An Entry is one line of the symbol listing: a global, defined symbol
// and the archive member that defines it. The member name is kept for
// diagnostics only; filtering operates on symbol names.
type Entry struct {
	Object string
	Name   string
}

// List invokes nm against the archive and returns one Entry per
// global, defined symbol. The flags request global symbols only (-g),
// names only (-j), POSIX portable output (-P), no undefined symbols
// (-U), and the defining member's pathname on every line (-A).
func List(echo *log.Logger, nm, archive string) ([]Entry, error) {
	abs, err := filepath.Abs(archive)
	if err != nil {
		return nil, err
	}
	out, err := toolchain.Run(echo, "", nm, "-gjPUA", abs)
	if err != nil {
		return nil, fmt.Errorf("listing symbols of %s: %w", archive, err)
	}
	return parseListing(out)
}

var memberRE = regexp.MustCompile(`^.+\[(.+)\]:$`)

// parseListing parses nm -gjPUA output. Each line looks like
//
//	libfoo.a[member.o]: _foo_init T 500 0
//
// The first space-separated field carries the member object name
// between brackets, the second is the symbol name. Member and symbol
// names are assumed to contain no spaces; nm does not escape them.
func parseListing(out string) ([]Entry, error) {
	var entries []Entry
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, " ")
		if len(fields) < 2 {
			return nil, fmt.Errorf("malformed symbol listing line %q", line)
		}
		m := memberRE.FindStringSubmatch(fields[0])
		if m == nil {
			return nil, fmt.Errorf("malformed symbol listing line %q: no archive member suffix", line)
		}
		entries = append(entries, Entry{Object: m[1], Name: fields[1]})
	}
	return entries, nil
}

// CompilePattern compiles a preserve pattern, anchoring the match at
// the start of the symbol name: "_foo.*" preserves "_foo_init", but
// "foo" does not.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("^(?:" + pattern + ")")
}

// Filter returns the sorted, deduplicated names of the entries whose
// symbol name matches pattern. Everything else becomes a candidate for
// stripping.
func Filter(entries []Entry, pattern *regexp.Regexp) []string {
	seen := make(map[string]bool)
	var keep []string
	for _, e := range entries {
		if !pattern.MatchString(e.Name) || seen[e.Name] {
			continue
		}
		seen[e.Name] = true
		keep = append(keep, e.Name)
	}
	sort.Strings(keep)
	return keep
}

const preserveHeader = "# Symbols preserved by machostrip"

// PreserveListPath returns the sidecar path for archive: the archive
// path with its extension replaced by ".symbols".
func PreserveListPath(archive string) string {
	return strings.TrimSuffix(archive, filepath.Ext(archive)) + ".symbols"
}

// WritePreserveList writes the preserve set to path: a comment header,
// then one bare symbol per line. This is the format the linker's
// -exported_symbols_list option consumes (comment lines are ignored
// by ld).
func WritePreserveList(path string, syms []string) error {
	var sb strings.Builder
	sb.WriteString(preserveHeader + "\n")
	for _, s := range syms {
		sb.WriteString(s + "\n")
	}
	return os.WriteFile(path, []byte(sb.String()), 0666)
}

// ReadPreserveList parses a preserve list back into its symbol names,
// skipping comment and blank lines.
func ReadPreserveList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var syms []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		syms = append(syms, line)
	}
	return syms, nil
}
