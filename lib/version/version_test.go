// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	original := GitCommit
	t.Cleanup(func() { GitCommit = original })

	GitCommit = "abc1234"
	info := Info()
	if !strings.HasPrefix(info, Version+" ") {
		t.Errorf("Info() = %q, want prefix %q", info, Version)
	}
	if !strings.Contains(info, "abc1234") {
		t.Errorf("Info() = %q, want to contain commit", info)
	}
}

func TestFull(t *testing.T) {
	full := Full()
	if !strings.Contains(full, "Go: go") {
		t.Errorf("Full() = %q, want Go version line", full)
	}
}
