// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"slices"
	"strings"

	"github.com/oklog/ulid/v2"
)

// Session is one invocation's fully resolved sandbox request: the
// compiled policy, the command, and the environment it will see.
// Sessions are never persisted.
type Session struct {
	// ID is a ULID advertised to the command as WARDEN_SESSION_ID.
	ID string

	Policy *Policy

	// WorkDir is the command's working directory inside the sandbox.
	WorkDir string

	// Command is the command as given on the command line. The
	// backend resolves it against PATH inside the sandbox.
	Command string

	// CommandPath is Command resolved on the host during preflight.
	CommandPath string

	Args []string

	// Env is the complete environment of the command.
	Env map[string]string
}

// SessionConfig holds the inputs to NewSession.
type SessionConfig struct {
	Plan        *Plan
	WorkDir     string
	Command     string
	CommandPath string
	Args        []string

	// HostEnv is the invoking process's environment in os.Environ form.
	HostEnv []string

	// Passthrough names extra host variables to propagate.
	Passthrough []string
}

// propagatedEnv lists the host variables every session receives.
// Variables with the LC_ prefix are also propagated.
var propagatedEnv = []string{
	"HOME", "USER", "LOGNAME", "SHELL",
	"LANG", "LANGUAGE",
	"TERM", "COLORTERM",
	"TZ", "PATH",
}

// NewSession builds the session for a compiled plan.
func NewSession(config SessionConfig) (*Session, error) {
	if config.Plan == nil || config.Plan.Policy == nil {
		return nil, fmt.Errorf("session requires a compiled policy")
	}
	if config.Command == "" {
		return nil, fmt.Errorf("session requires a command")
	}

	session := &Session{
		ID:          ulid.Make().String(),
		Policy:      config.Plan.Policy,
		WorkDir:     config.WorkDir,
		Command:     config.Command,
		CommandPath: config.CommandPath,
		Args:        config.Args,
	}
	session.Env = sessionEnv(config.HostEnv, config.Passthrough)

	policy := config.Plan.Policy
	session.Env["WARDEN_SANDBOX"] = "1"
	session.Env["WARDEN_SESSION_ID"] = session.ID
	session.Env["WARDEN_PROJECT_DIR"] = policy.ProjectDir
	session.Env["WARDEN_BASELINE"] = policy.Baseline.String()
	if policy.HooksDir != "" {
		session.Env["WARDEN_HOOKS_DIR"] = policy.HooksDir
	}
	if len(config.Plan.Databases) > 0 {
		session.Env["WARDEN_WRITABLE_DBS"] = strings.Join(config.Plan.Databases, ",")
	}
	return session, nil
}

// sessionEnv selects the propagated subset of a host environment.
// Later duplicates win, matching how the process itself would see them.
func sessionEnv(host []string, passthrough []string) map[string]string {
	env := make(map[string]string)
	for _, entry := range host {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			continue
		}
		if strings.HasPrefix(key, "LC_") || slices.Contains(propagatedEnv, key) || slices.Contains(passthrough, key) {
			env[key] = value
		}
	}
	return env
}

// SortedEnv returns the session environment as sorted KEY=VALUE
// entries.
func (s *Session) SortedEnv() []string {
	keys := make([]string, 0, len(s.Env))
	for key := range s.Env {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	entries := make([]string, 0, len(keys))
	for _, key := range keys {
		entries = append(entries, key+"="+s.Env[key])
	}
	return entries
}
