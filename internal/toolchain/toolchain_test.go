// Copyright 2026 The Machostrip Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package toolchain

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// writeTool writes an executable shell script named name into dir and
// returns its path.
func writeTool(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func skipWithoutSh(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test tools are shell scripts")
	}
}

func TestResolve(t *testing.T) {
	skipWithoutSh(t)
	dir := t.TempDir()
	nm := writeTool(t, dir, "nm", "exit 0\n")
	t.Setenv("PATH", dir)

	got, err := Resolve("nm", "")
	if err != nil {
		t.Fatalf("Resolve(nm) = %v", err)
	}
	if got != nm {
		t.Errorf("Resolve(nm) = %q, want %q", got, nm)
	}
}

func TestResolveMissing(t *testing.T) {
	skipWithoutSh(t)
	t.Setenv("PATH", t.TempDir())

	if _, err := Resolve("ld", ""); err == nil {
		t.Fatal("Resolve(ld) succeeded with empty PATH")
	} else if !strings.Contains(err.Error(), "ld executable") {
		t.Errorf("Resolve(ld) error = %q, want it to name the missing tool", err)
	}
}

func TestResolveOverride(t *testing.T) {
	skipWithoutSh(t)
	dir := t.TempDir()
	llvmNM := writeTool(t, dir, "llvm-nm", "exit 0\n")
	t.Setenv("PATH", t.TempDir()) // no nm findable without the override

	got, err := Resolve("nm", llvmNM)
	if err != nil {
		t.Fatalf("Resolve(nm, override) = %v", err)
	}
	if got != llvmNM {
		t.Errorf("Resolve(nm, override) = %q, want %q", got, llvmNM)
	}

	if _, err := Resolve("nm", filepath.Join(dir, "no-such-nm")); err == nil {
		t.Error("Resolve(nm, bad override) succeeded")
	}
}

func TestResolveToolsFailsOnFirstMissing(t *testing.T) {
	skipWithoutSh(t)
	dir := t.TempDir()
	for _, name := range []string{"ar", "ld", "libtool"} {
		writeTool(t, dir, name, "exit 0\n")
	}
	t.Setenv("PATH", dir)

	if _, err := ResolveTools(Overrides{}); err == nil {
		t.Fatal("ResolveTools succeeded without an nm on PATH")
	} else if !strings.Contains(err.Error(), "nm executable") {
		t.Errorf("ResolveTools error = %q, want it to name nm", err)
	}
}

func TestRun(t *testing.T) {
	skipWithoutSh(t)
	dir := t.TempDir()
	tool := writeTool(t, dir, "chatty", "echo out\necho err >&2\n")

	out, err := Run(nil, "", tool, "arg")
	if err != nil {
		t.Fatalf("Run = %v", err)
	}
	if out != "out\n" {
		t.Errorf("Run stdout = %q, want %q", out, "out\n")
	}
}

func TestRunFailure(t *testing.T) {
	skipWithoutSh(t)
	dir := t.TempDir()
	tool := writeTool(t, dir, "broken", "echo partial\necho boom >&2\nexit 3\n")

	out, err := Run(nil, "", tool)
	if err == nil {
		t.Fatal("Run of failing tool succeeded")
	}
	var rerr *RunError
	if !errors.As(err, &rerr) {
		t.Fatalf("Run error = %T, want *RunError", err)
	}
	if rerr.Stderr != "boom\n" {
		t.Errorf("RunError.Stderr = %q, want %q", rerr.Stderr, "boom\n")
	}
	if out != "partial\n" {
		t.Errorf("Run stdout on failure = %q, want %q", out, "partial\n")
	}
}

func TestRunDir(t *testing.T) {
	skipWithoutSh(t)
	bin := t.TempDir()
	tool := writeTool(t, bin, "whereami", "pwd\n")

	work, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	out, err := Run(nil, work, tool)
	if err != nil {
		t.Fatalf("Run = %v", err)
	}
	if got := strings.TrimSpace(out); got != work {
		t.Errorf("tool ran in %q, want %q", got, work)
	}
}
