// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import "fmt"

// PreflightError reports a fatal condition detected before any policy
// is compiled or any process is replaced: no usable backend, an
// unresolvable command, an unreadable configuration.
type PreflightError struct {
	// Check names the failed check ("backend", "command", "config").
	Check string
	Err   error
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("preflight %s: %v", e.Check, e.Err)
}

func (e *PreflightError) Unwrap() error { return e.Err }

// LaunchFailure reports that process replacement returned. Successful
// replacement never returns, so any LaunchFailure is terminal.
type LaunchFailure struct {
	Backend string
	Path    string
	Err     error
}

func (e *LaunchFailure) Error() string {
	return fmt.Sprintf("launching %s (%s): %v", e.Backend, e.Path, e.Err)
}

func (e *LaunchFailure) Unwrap() error { return e.Err }

// WarningKind classifies a non-fatal Warning.
type WarningKind string

const (
	// PolicyResolutionWarning: a requested or configured path could
	// not be resolved or created, so no rule was emitted for it.
	PolicyResolutionWarning WarningKind = "policy-resolution"

	// HookInstallWarning: a hook file was left untouched because it is
	// foreign or was modified after installation.
	HookInstallWarning WarningKind = "hook-install"
)

// Warning is a non-fatal diagnostic. Warnings are logged and returned
// alongside results; they never abort an invocation.
type Warning struct {
	Kind    WarningKind
	Subject string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s: %s", w.Kind, w.Subject, w.Message)
}
