// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Warden runs a command (by default an AI coding agent) inside a
// filesystem sandbox scoped to the current project.
//
// The project directory, package-manager caches, and explicitly
// requested paths are writable; the rest of the host is read-only or
// hidden depending on the baseline. Inside a git repository warden
// installs protective hooks and binds the hooks directory read-only so
// the sandboxed command cannot disable them.
//
// Usage:
//
//	warden [flags] [-w PATH]... [-d NAME]... [COMMAND [ARGS...]]
//
// Warden replaces itself with the isolation backend (bubblewrap on
// Linux, sandbox-exec on macOS); the command's exit status becomes
// warden's. Run "warden --self-test" inside a session to check that
// the boundary holds.
package main
