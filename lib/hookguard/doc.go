// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hookguard installs protective git hooks into a repository's
// hooks directory before a sandboxed session starts.
//
// Three hooks are managed: pre-commit rejects oversized staged blobs,
// pre-push rejects deleting or rewriting protected branches, and
// pre-rebase rejects rebasing a protected branch. Each script is
// rendered from an embedded template, checked with a POSIX shell
// parser, and stamped with a marker line and a keyed BLAKE3 digest of
// its body.
//
// A hook path is in one of three states. Absent paths are filled
// atomically without ever replacing a file that appears concurrently.
// Paths carrying the marker are left alone (with a warning when the
// digest no longer matches). Anything else is foreign: the user's own
// hook, which is reported once and never modified.
//
// The sandbox binds the hooks directory read-only, so the sandboxed
// process cannot remove or edit what this package installs.
package hookguard
