// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package overrides normalizes warden's command line into a [Request]
// for extra writable paths and databases, plus the ambient options and
// the command to run.
//
// The -w/--write and -d/--writable-db flags are repeatable and each
// value may be a colon-joined list; both spellings produce the same
// ordered result. Option parsing stops at the first non-flag token so
// that the command's own flags are never interpreted. Parsing is pure:
// relative paths are resolved against a caller-supplied working
// directory and nothing touches the filesystem.
package overrides
