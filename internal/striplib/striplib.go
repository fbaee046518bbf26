// Copyright 2026 The Machostrip Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package striplib strips unreferenced symbols from a Mach-O static
// archive.
//
// Apple's strip cannot -undefined suppress an object file built under
// the default two-level namespace, so the stripping happens at the
// object level instead: the archive is unpacked, every member is
// relinked (ld -r) into a single relocatable object restricted to an
// exported-symbols list, and that object is repacked into a new
// archive. Symbols outside the list that are not needed for relocation
// are removed by the linker itself.
package striplib

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/amyspark/machostrip/internal/symbols"
	"github.com/amyspark/machostrip/internal/toolchain"
)

// Config describes one stripping run.
type Config struct {
	Source  string          // input static archive
	Dest    string          // output static archive, written only on success
	Pattern *regexp.Regexp  // symbols matching at the start of their name are preserved
	Tools   toolchain.Tools // resolved external tools
	Check   bool            // re-list Dest afterward and fail if a stripped symbol survived
	Log     *log.Logger     // progress output, must be non-nil
	Echo    *log.Logger     // command echo; nil disables it
}

// Run executes the pipeline: list symbols, filter, write the preserve
// list sidecar, unpack, relink, repack. The scratch directory holding
// the unpacked members is removed on every exit path. Dest is written
// only by the final repacking step, so a failed run leaves any
// preexisting file at Dest untouched.
func Run(cfg *Config) (err error) {
	source, err := filepath.Abs(cfg.Source)
	if err != nil {
		return err
	}
	dest, err := filepath.Abs(cfg.Dest)
	if err != nil {
		return err
	}

	entries, err := symbols.List(cfg.Echo, cfg.Tools.NM, source)
	if err != nil {
		return err
	}
	keep := symbols.Filter(entries, cfg.Pattern)

	cfg.Log.Printf("symbols to preserve:")
	for _, s := range keep {
		cfg.Log.Printf("\t%s", s)
	}

	list := symbols.PreserveListPath(source)
	if err := symbols.WritePreserveList(list, keep); err != nil {
		return fmt.Errorf("writing preserve list: %w", err)
	}

	scratch, err := os.MkdirTemp("", "machostrip")
	if err != nil {
		return err
	}
	defer func() {
		if rerr := os.RemoveAll(scratch); rerr != nil && err == nil {
			err = rerr
		}
	}()

	if err := unpack(cfg, scratch, source); err != nil {
		return err
	}
	obj, err := relink(cfg, scratch, source, list)
	if err != nil {
		return err
	}
	if err := repack(cfg, obj, dest); err != nil {
		return err
	}
	if cfg.Check {
		if err := check(cfg, dest, keep); err != nil {
			return err
		}
	}
	return nil
}

// unpack extracts every member of source into the scratch directory.
// Members of a Mach-O static archive are stored flat, so they all land
// directly in scratch.
func unpack(cfg *Config, scratch, source string) error {
	cfg.Log.Printf("unpacking %s with ar", source)
	if _, err := toolchain.Run(cfg.Echo, scratch, cfg.Tools.AR, "xv", source); err != nil {
		return fmt.Errorf("unpacking %s: %w", source, err)
	}
	return nil
}

// relink performs the single-object prelink: every unpacked member is
// linked relocatable into one object, exporting only the symbols named
// in the preserve list. This is the step that does the stripping.
func relink(cfg *Config, scratch, source, list string) (string, error) {
	objs, err := filepath.Glob(filepath.Join(scratch, "*.o"))
	if err != nil {
		return "", err
	}
	if len(objs) == 0 {
		return "", fmt.Errorf("no object files unpacked from %s", source)
	}

	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	obj := filepath.Join(scratch, base+".prelinked.o")

	args := []string{"-r", "-exported_symbols_list", list, "-o", obj}
	for _, o := range objs {
		args = append(args, filepath.Base(o))
	}

	cfg.Log.Printf("performing single-object prelinking")
	if _, err := toolchain.Run(cfg.Echo, scratch, cfg.Tools.LD, args...); err != nil {
		surfaceStderr(cfg.Log, err)
		return "", fmt.Errorf("prelinking %s: %w", source, err)
	}
	return obj, nil
}

// repack wraps the prelinked object into a new static archive at dest,
// overwriting any existing file there.
func repack(cfg *Config, obj, dest string) error {
	cfg.Log.Printf("repacking library to %s", dest)
	if _, err := toolchain.Run(cfg.Echo, "", cfg.Tools.Libtool, "-static", "-o", dest, obj); err != nil {
		surfaceStderr(cfg.Log, err)
		return fmt.Errorf("repacking to %s: %w", dest, err)
	}
	return nil
}

// check re-lists the destination archive and fails if any global
// defined symbol outside the preserve set survived. The linker may
// legitimately keep non-exported symbols for relocation, but it demotes
// them to local, so they no longer show up in a global-only listing.
func check(cfg *Config, dest string, keep []string) error {
	entries, err := symbols.List(cfg.Echo, cfg.Tools.NM, dest)
	if err != nil {
		return fmt.Errorf("checking %s: %w", dest, err)
	}
	want := make(map[string]bool, len(keep))
	for _, s := range keep {
		want[s] = true
	}
	leaked := make(map[string]bool)
	for _, e := range entries {
		if !want[e.Name] {
			leaked[e.Name] = true
		}
	}
	if len(leaked) > 0 {
		names := make([]string, 0, len(leaked))
		for s := range leaked {
			names = append(names, s)
		}
		sort.Strings(names)
		return fmt.Errorf("%s still exports %s", dest, strings.Join(names, ", "))
	}
	return nil
}

// surfaceStderr echoes a failed tool's standard error to the operator
// before the failure propagates.
func surfaceStderr(logger *log.Logger, err error) {
	var rerr *toolchain.RunError
	if errors.As(err, &rerr) && rerr.Stderr != "" {
		logger.Printf("%s", strings.TrimRight(rerr.Stderr, "\n"))
	}
}
