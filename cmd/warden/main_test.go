// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bureau-foundation/warden/lib/config"
	"github.com/bureau-foundation/warden/lib/hookguard"
	"github.com/bureau-foundation/warden/lib/overrides"
	"github.com/bureau-foundation/warden/sandbox"
)

const testConfig = `sandbox:
  backend: bwrap
  baseline: readonly
policy:
  cache_paths: [".cache/warden-test"]
  app_config_paths: []
launcher:
  default_command: ["sh"]
`

// harness runs warden against a scratch home, project, and fake
// bubblewrap binary. Process replacement is captured, not performed.
type harness struct {
	t          *testing.T
	home       string
	project    string
	configPath string
	bwrap      string

	stdout bytes.Buffer
	stderr bytes.Buffer

	execed bool
	argv   []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	h := &harness{
		t:          t,
		home:       filepath.Join(root, "home"),
		project:    filepath.Join(root, "project"),
		configPath: filepath.Join(root, "config.yaml"),
		bwrap:      filepath.Join(root, "bin", "bwrap"),
	}
	for _, dir := range []string{h.home, h.project, filepath.Dir(h.bwrap)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(h.bwrap, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(h.configPath, []byte(testConfig), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("HOME", h.home)
	t.Setenv("WARDEN_CONFIG", h.configPath)
	t.Setenv("WARDEN_DEBUG", "")
	t.Setenv("GIT_CONFIG_GLOBAL", "/dev/null")
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")

	savedDetect, savedExec, savedChdir := detectBackend, execProcess, chdir
	t.Cleanup(func() {
		detectBackend, execProcess, chdir = savedDetect, savedExec, savedChdir
	})
	detectBackend = func(preference string, options sandbox.BackendOptions) (sandbox.Backend, error) {
		return sandbox.NewBwrapBackend(h.bwrap, options.Bwrap), nil
	}
	execProcess = func(path string, argv []string, env []string) error {
		h.execed = true
		h.argv = argv
		return nil
	}
	chdir = func(string) error { return nil }
	return h
}

func (h *harness) run(args ...string) error {
	h.t.Helper()
	h.stdout.Reset()
	h.stderr.Reset()
	h.execed = false
	h.argv = nil
	return run(context.Background(), args, h.project, &h.stdout, &h.stderr)
}

func (h *harness) initRepository() string {
	h.t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		h.t.Skip("git not available")
	}
	command := exec.Command("git", "init", "--quiet", h.project)
	if output, err := command.CombinedOutput(); err != nil {
		h.t.Fatalf("git init: %v\n%s", err, output)
	}
	return filepath.Join(h.project, ".git", "hooks")
}

// indexOfSequence returns the index in argv where sequence starts, or
// -1.
func indexOfSequence(argv []string, sequence ...string) int {
	for i := 0; i+len(sequence) <= len(argv); i++ {
		if slices.Equal(argv[i:i+len(sequence)], sequence) {
			return i
		}
	}
	return -1
}

func TestRun_DryRunPrintsInvocation(t *testing.T) {
	h := newHarness(t)

	if err := h.run("--dry-run", "-w", "notes", "sh", "-c", "true"); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, h.stderr.String())
	}
	if h.execed {
		t.Error("dry run replaced the process")
	}

	lines := strings.Split(strings.TrimSuffix(h.stdout.String(), "\n"), "\n")
	if lines[0] != h.bwrap+" \\" {
		t.Errorf("first line = %q, want the backend path", lines[0])
	}
	if last := lines[len(lines)-1]; last != "  -- sh -c true" {
		t.Errorf("last line = %q", last)
	}
	notes := filepath.Join(h.project, "notes")
	for _, want := range []string{
		"  --ro-bind / / \\",
		"  --bind " + h.project + " " + h.project + " \\",
		"  --bind " + notes + " " + notes + " \\",
	} {
		if !slices.Contains(lines, want) {
			t.Errorf("output missing %q:\n%s", want, h.stdout.String())
		}
	}

	if info, err := os.Stat(notes); err != nil || !info.IsDir() {
		t.Errorf("requested writable path not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.home, ".cache", "warden-test")); err != nil {
		t.Errorf("cache directory not created: %v", err)
	}
}

func TestRun_ExecHandsOffToBackend(t *testing.T) {
	h := newHarness(t)

	if err := h.run("sh", "-c", "exit 3"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !h.execed {
		t.Fatal("process was not replaced")
	}
	if h.argv[0] != h.bwrap {
		t.Errorf("argv[0] = %q, want %q", h.argv[0], h.bwrap)
	}
	if indexOfSequence(h.argv, "--setenv", "WARDEN_SANDBOX", "1") < 0 {
		t.Errorf("argv does not advertise the sandbox: %q", h.argv)
	}
	if indexOfSequence(h.argv, "--setenv", "WARDEN_PROJECT_DIR", h.project) < 0 {
		t.Errorf("argv does not advertise the project: %q", h.argv)
	}
	if indexOfSequence(h.argv, "--", "sh", "-c", "exit 3") != len(h.argv)-4 {
		t.Errorf("command is not at the end of argv: %q", h.argv)
	}
}

func TestRun_DefaultCommandFromConfig(t *testing.T) {
	h := newHarness(t)

	if err := h.run("--dry-run"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasSuffix(h.stdout.String(), "  -- sh\n") {
		t.Errorf("default command not used:\n%s", h.stdout.String())
	}
}

func TestRun_InstallsHooksInRepository(t *testing.T) {
	h := newHarness(t)
	hooksDir := h.initRepository()

	if err := h.run("sh"); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, h.stderr.String())
	}
	for _, name := range hookguard.HookNames {
		if _, err := os.Stat(filepath.Join(hooksDir, name)); err != nil {
			t.Errorf("hook %s not installed: %v", name, err)
		}
	}

	project := indexOfSequence(h.argv, "--bind", h.project, h.project)
	hooks := indexOfSequence(h.argv, "--ro-bind", hooksDir, hooksDir)
	if project < 0 || hooks < 0 || hooks < project {
		t.Errorf("hooks directory must be re-restricted after the project grant (project at %d, hooks at %d): %q", project, hooks, h.argv)
	}
	if indexOfSequence(h.argv, "--setenv", "WARDEN_HOOKS_DIR", hooksDir) < 0 {
		t.Errorf("argv does not advertise the hooks directory: %q", h.argv)
	}
}

func TestRun_HooksSkipped(t *testing.T) {
	for _, args := range [][]string{
		{"--no-hooks", "sh"},
		{"--dry-run", "sh"},
	} {
		t.Run(args[0], func(t *testing.T) {
			h := newHarness(t)
			hooksDir := h.initRepository()

			if err := h.run(args...); err != nil {
				t.Fatalf("run: %v", err)
			}
			if _, err := os.Stat(filepath.Join(hooksDir, "pre-commit")); !errors.Is(err, os.ErrNotExist) {
				t.Errorf("pre-commit hook installed with %s (stat error %v)", args[0], err)
			}
		})
	}
}

func TestRun_SaveDefault(t *testing.T) {
	h := newHarness(t)

	if err := h.run("--save-default", "--dry-run", "sh", "-x"); err != nil {
		t.Fatalf("run: %v", err)
	}
	cfg, err := config.LoadFile(h.configPath)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if diff := cmp.Diff([]string{"sh", "-x"}, cfg.Launcher.DefaultCommand); diff != "" {
		t.Errorf("default command mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_SaveDefaultRequiresPassingPreflight(t *testing.T) {
	h := newHarness(t)
	before, err := os.ReadFile(h.configPath)
	if err != nil {
		t.Fatal(err)
	}

	err = h.run("--save-default", "--dry-run", "warden-no-such-command")
	var preflight *sandbox.PreflightError
	if !errors.As(err, &preflight) {
		t.Fatalf("run error = %v, want *PreflightError", err)
	}

	after, err := os.ReadFile(h.configPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Errorf("config changed by a failed invocation:\n%s", after)
	}
	cfg, err := config.LoadFile(h.configPath)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if diff := cmp.Diff([]string{"sh"}, cfg.Launcher.DefaultCommand); diff != "" {
		t.Errorf("default command mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_PreflightFailures(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		backend   func(h *harness) (sandbox.Backend, error)
		wantCheck string
	}{
		{
			name:      "command not found",
			args:      []string{"warden-no-such-command"},
			wantCheck: "command",
		},
		{
			name: "no backend",
			args: []string{"sh"},
			backend: func(*harness) (sandbox.Backend, error) {
				return nil, &sandbox.PreflightError{Check: "backend", Err: errors.New("bwrap not found")}
			},
			wantCheck: "backend",
		},
		{
			name: "baseline unsupported by backend",
			args: []string{"--baseline", "deny", "sh"},
			backend: func(h *harness) (sandbox.Backend, error) {
				return sandbox.NewSeatbeltBackend(h.bwrap), nil
			},
			wantCheck: "backend",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			h := newHarness(t)
			if test.backend != nil {
				detectBackend = func(string, sandbox.BackendOptions) (sandbox.Backend, error) {
					return test.backend(h)
				}
			}

			err := h.run(test.args...)
			var preflight *sandbox.PreflightError
			if !errors.As(err, &preflight) {
				t.Fatalf("run error = %v, want *PreflightError", err)
			}
			if preflight.Check != test.wantCheck {
				t.Errorf("Check = %q, want %q", preflight.Check, test.wantCheck)
			}
			if h.execed {
				t.Error("process replaced despite preflight failure")
			}
			if _, err := os.Stat(filepath.Join(h.home, ".cache", "warden-test")); !errors.Is(err, os.ErrNotExist) {
				t.Errorf("compilation ran before preflight passed (stat error %v)", err)
			}
		})
	}
}

func TestRun_LaunchFailure(t *testing.T) {
	h := newHarness(t)
	execProcess = func(string, []string, []string) error {
		return errors.New("exec format error")
	}

	err := h.run("sh")
	var failure *sandbox.LaunchFailure
	if !errors.As(err, &failure) {
		t.Fatalf("run error = %v, want *LaunchFailure", err)
	}
	if failure.Path != h.bwrap {
		t.Errorf("Path = %q, want %q", failure.Path, h.bwrap)
	}
}

func TestRun_UsageError(t *testing.T) {
	h := newHarness(t)

	err := h.run("--frobnicate", "sh")
	var usage *overrides.UsageError
	if !errors.As(err, &usage) {
		t.Fatalf("run error = %v, want *UsageError", err)
	}
}

func TestRun_HelpAndVersion(t *testing.T) {
	h := newHarness(t)

	if err := h.run("--help"); err != nil {
		t.Fatalf("run --help: %v", err)
	}
	if !strings.Contains(h.stdout.String(), "-w, --write") {
		t.Errorf("help output missing flags:\n%s", h.stdout.String())
	}

	if err := h.run("--version"); err != nil {
		t.Fatalf("run --version: %v", err)
	}
	if !strings.HasPrefix(h.stdout.String(), "warden ") {
		t.Errorf("version output = %q", h.stdout.String())
	}
}

func TestRun_SelfTestOutsideSession(t *testing.T) {
	h := newHarness(t)
	t.Setenv("WARDEN_PROJECT_DIR", "")

	if err := h.run("--self-test"); err == nil {
		t.Error("--self-test outside a session should fail")
	}
}
