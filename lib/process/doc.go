// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for warden:
//
//   - Fatal error reporting to stderr when the structured logger may
//     not be initialized, followed by exit code 1.
//   - Replacement of the current process image (execve) for the final
//     hand-off to the isolation backend.
package process
