// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"os"
	"os/exec"
	"slices"
)

// BwrapOptions tunes the bubblewrap backend.
type BwrapOptions struct {
	// Unshare lists namespaces to unshare: pid, ipc, uts, cgroup, net,
	// user.
	Unshare []string

	// NewSession detaches the command from the controlling terminal.
	NewSession bool
}

// BwrapBackend renders sessions as bubblewrap invocations. The host
// filesystem is re-bound path for path (source equals destination) in
// policy order, so later binds shadow earlier ones for their subtree.
type BwrapBackend struct {
	path    string
	options BwrapOptions
}

// NewBwrapBackend returns a backend using the bwrap binary at path.
func NewBwrapBackend(path string, options BwrapOptions) *BwrapBackend {
	return &BwrapBackend{path: path, options: options}
}

func (b *BwrapBackend) Name() string { return "bwrap" }

func (b *BwrapBackend) Path() string { return b.path }

func (b *BwrapBackend) Capabilities() Capabilities {
	return Capabilities{
		Name:       "bwrap",
		TryBind:    true,
		Baselines:  []Baseline{DefaultReadOnly, DefaultDeny},
		Namespaces: true,
	}
}

// Render builds: bwrap <lifetime> <namespaces> <rules> <dev/proc>
// --chdir DIR --clearenv <setenv...> -- COMMAND ARGS.
func (b *BwrapBackend) Render(session *Session) ([]string, error) {
	if session.Policy == nil {
		return nil, fmt.Errorf("session has no policy")
	}
	if session.Command == "" {
		return nil, fmt.Errorf("session has no command")
	}

	args := []string{b.path, "--die-with-parent"}
	for _, namespace := range b.options.Unshare {
		args = append(args, "--unshare-"+namespace)
	}
	if b.options.NewSession {
		args = append(args, "--new-session")
	}

	for _, rule := range session.Policy.Rules {
		flag, err := bwrapBindFlag(rule.Mode)
		if err != nil {
			return nil, err
		}
		args = append(args, flag, rule.Path, rule.Path)
	}

	// Fresh /dev and /proc go on top of whatever the rules bound there.
	args = append(args, "--dev", "/dev", "--proc", "/proc")

	if session.WorkDir != "" {
		args = append(args, "--chdir", session.WorkDir)
	}

	args = append(args, "--clearenv")
	keys := make([]string, 0, len(session.Env))
	for key := range session.Env {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		args = append(args, "--setenv", key, session.Env[key])
	}

	args = append(args, "--", session.Command)
	args = append(args, session.Args...)
	return args, nil
}

// Environ returns a minimal environment for the bwrap process. bwrap
// applies --clearenv inside the sandbox, but its own environment stays
// readable through /proc/<pid>/environ, so it gets only what it needs
// to run.
func (b *BwrapBackend) Environ(session *Session) []string {
	return []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"TERM=" + session.Env["TERM"],
	}
}

func bwrapBindFlag(mode Mode) (string, error) {
	switch mode {
	case ReadOnly:
		return "--ro-bind", nil
	case ReadWrite:
		return "--bind", nil
	case ReadWriteIfExists:
		return "--bind-try", nil
	default:
		return "", fmt.Errorf("unknown mode %v", mode)
	}
}

// bwrapLocations are checked before PATH.
var bwrapLocations = []string{
	"/usr/bin/bwrap",
	"/usr/local/bin/bwrap",
	"/bin/bwrap",
}

// BwrapPath returns the path to the bwrap executable.
func BwrapPath() (string, error) {
	for _, path := range bwrapLocations {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	if path, err := exec.LookPath("bwrap"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("bwrap not found in standard locations or PATH")
}
