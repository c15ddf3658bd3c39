// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// ExecFunc has the signature of execve(2) as exposed by unix.Exec.
// Callers that replace the process hold an ExecFunc so tests can
// capture the call instead of losing the test binary.
type ExecFunc func(path string, argv []string, env []string) error

// Replace replaces the current process image with path. On success it
// never returns; the new program inherits the PID, open descriptors
// without close-on-exec, and ownership of the exit status. On failure
// the current process is untouched and the error is returned.
func Replace(path string, argv []string, env []string) error {
	if err := unix.Exec(path, argv, env); err != nil {
		return fmt.Errorf("exec %s: %w", path, err)
	}
	return nil
}
