// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ValidationResult holds the result of a preflight check.
type ValidationResult struct {
	Name    string
	Passed  bool
	Message string
	Warning bool // True if this is a warning, not an error.
}

// Validator runs the preflight checks that must pass before any policy
// is compiled or hook written.
type Validator struct {
	results []ValidationResult
	first   *PreflightError
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Results returns all validation results.
func (v *Validator) Results() []ValidationResult {
	return v.results
}

// HasErrors returns true if any validation failed.
func (v *Validator) HasErrors() bool {
	return v.first != nil
}

// Err returns the first failure as a PreflightError, or nil.
func (v *Validator) Err() error {
	if v.first == nil {
		return nil
	}
	return v.first
}

func (v *Validator) pass(name, message string) {
	v.results = append(v.results, ValidationResult{Name: name, Passed: true, Message: message})
}

func (v *Validator) warn(name, message string) {
	v.results = append(v.results, ValidationResult{Name: name, Passed: true, Message: message, Warning: true})
}

func (v *Validator) fail(name string, err error) {
	v.results = append(v.results, ValidationResult{Name: name, Message: err.Error()})
	if v.first == nil {
		v.first = &PreflightError{Check: name, Err: err}
	}
}

// ValidateBackend checks that the backend binary is an executable file
// and can express baseline.
func (v *Validator) ValidateBackend(backend Backend, baseline Baseline) {
	info, err := os.Stat(backend.Path())
	if err != nil {
		v.fail("backend", fmt.Errorf("cannot stat %s: %w", backend.Path(), err))
		return
	}
	if info.IsDir() || info.Mode()&0o111 == 0 {
		v.fail("backend", fmt.Errorf("%s is not executable", backend.Path()))
		return
	}
	if !backend.Capabilities().Supports(baseline) {
		v.fail("backend", fmt.Errorf("%s does not support the %s baseline", backend.Name(), baseline))
		return
	}
	v.pass("backend", fmt.Sprintf("%s at %s", backend.Name(), backend.Path()))
}

// ValidateWorkingDirectory checks that dir is an existing absolute
// directory.
func (v *Validator) ValidateWorkingDirectory(dir string) {
	if !filepath.IsAbs(dir) {
		v.fail("workdir", fmt.Errorf("%s is not absolute", dir))
		return
	}
	info, err := os.Stat(dir)
	if err != nil {
		v.fail("workdir", err)
		return
	}
	if !info.IsDir() {
		v.fail("workdir", fmt.Errorf("%s is not a directory", dir))
		return
	}
	v.pass("workdir", dir)
}

// ValidateCommand resolves name the way the sandboxed shell will and
// returns the resolved path, or "" after recording a failure.
func (v *Validator) ValidateCommand(name, pathEnv, workDir string) string {
	path, err := ResolveCommand(name, pathEnv, workDir)
	if err != nil {
		v.fail("command", err)
		return ""
	}
	v.pass("command", path)
	return path
}

// ValidateCommandVisible checks that a resolved command is readable
// under the compiled policy. Under DefaultDeny a binary outside the
// bound roots would resolve on the host but not inside the sandbox.
func (v *Validator) ValidateCommandVisible(policy *Policy, path string) {
	if policy.Access(path) == Hidden {
		v.fail("command-visible", fmt.Errorf("%s is not visible inside the sandbox under the %s baseline", path, policy.Baseline))
		return
	}
	v.pass("command-visible", path)
}

// ValidateHooks records the outcome of repository detection. A
// missing repository is not an error: hooks are simply not managed.
func (v *Validator) ValidateHooks(hooksDir string, detectErr error) {
	switch {
	case detectErr != nil:
		v.warn("hooks", detectErr.Error())
	case hooksDir == "":
		v.warn("hooks", "not inside a git repository, hooks not managed")
	default:
		v.pass("hooks", hooksDir)
	}
}

// PrintResults writes validation results in a human-readable format.
func (v *Validator) PrintResults(w io.Writer) {
	for _, result := range v.results {
		var status string
		switch {
		case !result.Passed:
			status = "FAIL"
		case result.Warning:
			status = "WARN"
		default:
			status = "PASS"
		}
		fmt.Fprintf(w, "[%s] %s: %s\n", status, result.Name, result.Message)
	}
}

// ErrCommandNotFound is wrapped by ResolveCommand when no executable
// matches.
var ErrCommandNotFound = errors.New("command not found")

// ResolveCommand resolves name to an executable file. Names containing
// a slash are taken relative to workDir; bare names are searched in the
// colon-separated pathEnv, where empty entries mean workDir.
func ResolveCommand(name, pathEnv, workDir string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty command: %w", ErrCommandNotFound)
	}
	if strings.Contains(name, "/") {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, path)
		}
		if err := checkExecutable(path); err != nil {
			return "", fmt.Errorf("%s: %w", name, err)
		}
		return filepath.Clean(path), nil
	}
	for _, dir := range filepath.SplitList(pathEnv) {
		if dir == "" {
			dir = workDir
		} else if !filepath.IsAbs(dir) {
			dir = filepath.Join(workDir, dir)
		}
		path := filepath.Join(dir, name)
		if checkExecutable(path) == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%s: %w in PATH", name, ErrCommandNotFound)
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrCommandNotFound
		}
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("is a directory")
	}
	if info.Mode()&0o111 == 0 {
		return fmt.Errorf("not executable")
	}
	return nil
}
