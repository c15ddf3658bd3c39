// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SandboxExecPath is the macOS seatbelt launcher.
const SandboxExecPath = "/usr/bin/sandbox-exec"

// SeatbeltBackend renders sessions as sandbox-exec invocations with an
// inline SBPL profile. SBPL is last-match-wins like the policy itself,
// so rules translate one to one. Reads are never restricted, which is
// why only the DefaultReadOnly baseline is supported.
type SeatbeltBackend struct {
	path string

	// canonicalize maps a path to the form the kernel reports to the
	// sandbox (macOS resolves /tmp to /private/tmp before matching).
	canonicalize func(string) string
}

// NewSeatbeltBackend returns a backend using the sandbox-exec binary
// at path.
func NewSeatbeltBackend(path string) *SeatbeltBackend {
	return &SeatbeltBackend{path: path, canonicalize: canonicalizePath}
}

func (b *SeatbeltBackend) Name() string { return "seatbelt" }

func (b *SeatbeltBackend) Path() string { return b.path }

func (b *SeatbeltBackend) Capabilities() Capabilities {
	return Capabilities{
		Name:      "seatbelt",
		Baselines: []Baseline{DefaultReadOnly},
	}
}

// Render builds: sandbox-exec -p PROFILE -- COMMAND ARGS.
func (b *SeatbeltBackend) Render(session *Session) ([]string, error) {
	if session.Policy == nil {
		return nil, fmt.Errorf("session has no policy")
	}
	if session.Command == "" {
		return nil, fmt.Errorf("session has no command")
	}
	profile, err := b.Profile(session.Policy)
	if err != nil {
		return nil, err
	}
	args := []string{b.path, "-p", profile, "--", session.Command}
	return append(args, session.Args...), nil
}

// Profile renders policy as SBPL.
func (b *SeatbeltBackend) Profile(policy *Policy) (string, error) {
	if policy.Baseline != DefaultReadOnly {
		return "", fmt.Errorf("seatbelt supports only the %s baseline", DefaultReadOnly)
	}

	var profile strings.Builder
	profile.WriteString("(version 1)\n")
	profile.WriteString("(allow default)\n")
	profile.WriteString("(deny file-write*)\n")
	for _, rule := range policy.Rules {
		action := "deny"
		if rule.Mode.Writable() {
			action = "allow"
		}
		path := b.canonicalize(rule.Path)
		fmt.Fprintf(&profile, "(%s file-write* (subpath \"%s\")) ; %s\n", action, escapeForSBPL(path), rule.Source)
	}

	// Terminals and the null devices stay writable.
	profile.WriteString("(allow file-write* (literal \"/dev/null\") (literal \"/dev/zero\"))\n")
	profile.WriteString("(allow file-write* (regex #\"^/dev/(ttys[0-9]+|pty[a-z][0-9a-f]|fd/[0-9]+)$\"))\n")
	profile.WriteString("(allow file-ioctl (regex #\"^/dev/(ttys|pty)\"))\n")
	return profile.String(), nil
}

// Environ passes the session environment straight through:
// sandbox-exec replaces itself with the command.
func (b *SeatbeltBackend) Environ(session *Session) []string {
	return session.SortedEnv()
}

// escapeForSBPL escapes s for use inside an SBPL string literal.
func escapeForSBPL(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = strings.ReplaceAll(s, "\t", "\\t")
	return s
}

// canonicalizePath resolves symlinks, falling back to the well-known
// macOS /tmp and /var links when the path does not exist.
func canonicalizePath(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return filepath.Clean(resolved)
	}
	cleaned := filepath.Clean(path)
	for _, link := range []string{"/tmp", "/var"} {
		if cleaned == link || strings.HasPrefix(cleaned, link+"/") {
			return "/private" + cleaned
		}
	}
	return cleaned
}
