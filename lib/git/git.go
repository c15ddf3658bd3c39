// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package git provides typed access to the git repository that
// contains the sandboxed project. warden uses it to find the
// repository root and the directory git runs hooks from, so the hook
// guard installs into the right place and the policy compiler can
// re-restrict that directory. All commands target the repository root
// via the -C flag, which every Repository method injects.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNotRepository is returned by Discover when no enclosing git
// repository exists.
var ErrNotRepository = errors.New("not inside a git repository")

// Repository is a git working tree rooted at a specific directory.
type Repository struct {
	root   string
	gitDir string
}

// Discover walks up from dir to the nearest directory containing a
// .git entry. A .git directory is the git dir itself; a .git file (a
// linked worktree or submodule) is a "gitdir: <path>" pointer.
func Discover(dir string) (*Repository, error) {
	current, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}

	for {
		candidate := filepath.Join(current, ".git")
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return &Repository{root: current, gitDir: candidate}, nil
			}
			gitDir, err := readGitFile(candidate)
			if err != nil {
				return nil, err
			}
			return &Repository{root: current, gitDir: gitDir}, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("inspecting %s: %w", candidate, err)
		}

		parent := filepath.Dir(current)
		if parent == current {
			return nil, ErrNotRepository
		}
		current = parent
	}
}

// readGitFile parses a "gitdir: <path>" file. Relative paths are
// relative to the directory containing the file.
func readGitFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	line := strings.TrimSpace(string(data))
	target, ok := strings.CutPrefix(line, "gitdir:")
	if !ok {
		return "", fmt.Errorf("%s: not a gitdir pointer", path)
	}
	target = strings.TrimSpace(target)
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(path), target)
	}
	return filepath.Clean(target), nil
}

// Root returns the working tree root.
func (r *Repository) Root() string {
	return r.root
}

// GitDir returns the repository's git directory.
func (r *Repository) GitDir() string {
	return r.gitDir
}

// Run executes a git command targeting this repository and returns
// stdout. Stderr is captured separately and included in error messages
// on failure.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.root}, args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", fullArgs...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), r.root, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// HooksDir returns the absolute directory git runs hooks from. It asks
// git itself, which honors core.hooksPath and linked worktrees. When
// the git binary is unavailable it falls back to the hooks directory
// of the common git dir.
func (r *Repository) HooksDir(ctx context.Context) (string, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return filepath.Join(r.commonDir(), "hooks"), nil
	}

	output, err := r.Run(ctx, "rev-parse", "--git-path", "hooks")
	if err != nil {
		return "", err
	}
	hooks := strings.TrimSpace(output)
	if hooks == "" {
		return "", fmt.Errorf("git rev-parse --git-path hooks in %s: empty output", r.root)
	}
	if !filepath.IsAbs(hooks) {
		hooks = filepath.Join(r.root, hooks)
	}
	return filepath.Clean(hooks), nil
}

// commonDir returns the git directory shared by all worktrees. Linked
// worktrees record it in a "commondir" file relative to their own git
// dir.
func (r *Repository) commonDir() string {
	data, err := os.ReadFile(filepath.Join(r.gitDir, "commondir"))
	if err != nil {
		return r.gitDir
	}
	common := strings.TrimSpace(string(data))
	if !filepath.IsAbs(common) {
		common = filepath.Join(r.gitDir, common)
	}
	return filepath.Clean(common)
}
