// Copyright 2026 The Machostrip Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package toolchain locates and runs the external binaries that the
// stripping pipeline delegates all binary-format work to: the symbol
// lister (nm), the archiver (ar), the linker (ld), and the static
// librarian (libtool).
package toolchain

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
)

// Tools holds resolved paths for the external tools one run needs.
type Tools struct {
	NM      string
	AR      string
	LD      string
	Libtool string
}

// Overrides holds caller-supplied tool paths. An empty field means the
// tool is searched for on $PATH instead.
type Overrides struct {
	NM      string
	AR      string
	LD      string
	Libtool string
}

// ResolveTools resolves every tool the pipeline will invoke.
// It is called before any file-system mutation so that a missing tool
// fails the run with no side effects.
func ResolveTools(o Overrides) (Tools, error) {
	var t Tools
	var err error
	if t.NM, err = Resolve("nm", o.NM); err != nil {
		return Tools{}, err
	}
	if t.AR, err = Resolve("ar", o.AR); err != nil {
		return Tools{}, err
	}
	if t.LD, err = Resolve("ld", o.LD); err != nil {
		return Tools{}, err
	}
	if t.Libtool, err = Resolve("libtool", o.Libtool); err != nil {
		return Tools{}, err
	}
	return t, nil
}

// Resolve returns the path of the named tool. If override is non-empty
// it is used instead of searching $PATH, after checking that it names
// an executable.
func Resolve(name, override string) (string, error) {
	exe := name
	if override != "" {
		exe = override
	}
	path, err := exec.LookPath(exe)
	if err != nil {
		return "", fmt.Errorf("a valid %s executable is needed: %w", name, err)
	}
	return path, nil
}

// A RunError reports an external tool that could not be started or
// exited non-zero. Stderr carries the tool's standard error output
// verbatim so callers can surface it to the operator.
type RunError struct {
	Tool   string
	Args   []string
	Stderr string
	Err    error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Tool, strings.Join(e.Args, " "), e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// Run executes tool with args, using dir as the working directory
// (the calling process's working directory is never changed; an empty
// dir means the current one). It returns the tool's standard output.
// On failure the returned error is a *RunError carrying the captured
// standard error text.
//
// If echo is non-nil, the command line is logged before running.
func Run(echo *log.Logger, dir, tool string, args ...string) (string, error) {
	cmd := exec.Command(tool, args...)
	setDir(cmd, dir)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if echo != nil {
		echo.Printf("running %s %s", tool, strings.Join(args, " "))
	}
	if err := cmd.Run(); err != nil {
		return stdout.String(), &RunError{Tool: tool, Args: args, Stderr: stderr.String(), Err: err}
	}
	return stdout.String(), nil
}

// setDir sets cmd.Dir to dir and updates cmd.Env so that PWD matches,
// for tools that consult it. An empty dir leaves cmd.Dir unset and
// points PWD at the current working directory.
func setDir(cmd *exec.Cmd, dir string) {
	if dir == "" {
		dir, _ = os.Getwd()
	} else {
		cmd.Dir = dir
	}
	env := cmd.Env
	if env == nil {
		env = os.Environ()
	}
	out := env[:0]
	for _, kv := range env {
		if !strings.HasPrefix(kv, "PWD=") {
			out = append(out, kv)
		}
	}
	cmd.Env = append(out, "PWD="+dir)
}
