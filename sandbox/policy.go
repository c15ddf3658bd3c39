// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Mode is the view an AccessRule gives of its path.
type Mode int

const (
	// ReadOnly binds the path visible but immutable.
	ReadOnly Mode = iota

	// ReadWrite binds the path mutable. The source must exist.
	ReadWrite

	// ReadWriteIfExists binds the path mutable when it exists on the
	// host and is silently skipped otherwise.
	ReadWriteIfExists
)

// String returns the short form used in logs and dry-run output.
func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "ro"
	case ReadWrite:
		return "rw"
	case ReadWriteIfExists:
		return "rw-try"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Writable reports whether the mode grants write access.
func (m Mode) Writable() bool {
	return m == ReadWrite || m == ReadWriteIfExists
}

// Baseline is the visibility of paths no rule covers.
type Baseline int

const (
	// DefaultReadOnly leaves the whole host filesystem visible but
	// immutable.
	DefaultReadOnly Baseline = iota

	// DefaultDeny hides everything no rule covers.
	DefaultDeny
)

// String returns the configuration spelling of the baseline.
func (b Baseline) String() string {
	switch b {
	case DefaultReadOnly:
		return "readonly"
	case DefaultDeny:
		return "deny"
	default:
		return fmt.Sprintf("Baseline(%d)", int(b))
	}
}

// ParseBaseline parses "readonly" or "deny".
func ParseBaseline(name string) (Baseline, error) {
	switch name {
	case "readonly":
		return DefaultReadOnly, nil
	case "deny":
		return DefaultDeny, nil
	default:
		return 0, fmt.Errorf("unknown baseline %q (want readonly or deny)", name)
	}
}

// Rule sources name the compiler step that emitted a rule.
const (
	SourceRoot     = "root"
	SourceSystem   = "system"
	SourceHome     = "home"
	SourceScratch  = "scratch"
	SourceCache    = "cache"
	SourceApp      = "app"
	SourceProject  = "project"
	SourceDatabase = "database"
	SourceWrite    = "write"
	SourceHooks    = "hooks"
)

// AccessRule maps a host path to a view of the same path inside the
// sandbox.
type AccessRule struct {
	Path   string
	Mode   Mode
	Source string
}

func (r AccessRule) String() string {
	return fmt.Sprintf("%s %s (%s)", r.Mode, r.Path, r.Source)
}

// Access is the effective view of a path under a Policy.
type Access int

const (
	Hidden Access = iota
	Readable
	Writable
)

func (a Access) String() string {
	switch a {
	case Hidden:
		return "hidden"
	case Readable:
		return "readable"
	case Writable:
		return "writable"
	default:
		return fmt.Sprintf("Access(%d)", int(a))
	}
}

// Policy is an ordered sequence of access rules over a baseline.
//
// Rules are applied left to right and the last applicable rule wins: a
// rule applies to a path when its Path equals the path or is an
// ancestor directory of it. A later rule covering an overlapping path
// therefore supersedes an earlier one for its subtree, which is exactly
// how positional bind mounts compose. Paths no rule covers fall back to
// the Baseline.
type Policy struct {
	Baseline Baseline
	Rules    []AccessRule

	// ProjectDir is the working directory the sandbox makes writable.
	ProjectDir string

	// HooksDir is the git hook directory re-restricted after the
	// project rule. Empty when no repository was detected.
	HooksDir string
}

// Access evaluates the policy for path.
func (p *Policy) Access(path string) Access {
	path = filepath.Clean(path)
	for i := len(p.Rules) - 1; i >= 0; i-- {
		rule := p.Rules[i]
		if !covers(rule.Path, path) {
			continue
		}
		if rule.Mode.Writable() {
			return Writable
		}
		return Readable
	}
	if p.Baseline == DefaultReadOnly {
		return Readable
	}
	return Hidden
}

// Verify checks the ordering invariants every compiled policy holds:
// the last project-root write rule follows every rule covering the
// project directory or one of its ancestors, and the hook directory
// re-restriction follows that project rule with nothing after it
// re-opening the hook directory.
func (p *Policy) Verify() error {
	if p.ProjectDir == "" {
		return fmt.Errorf("policy has no project directory")
	}

	project := p.lastIndex(func(rule AccessRule) bool {
		return rule.Source == SourceProject && rule.Path == p.ProjectDir && rule.Mode.Writable()
	})
	if project < 0 {
		return fmt.Errorf("policy has no write rule for project %s", p.ProjectDir)
	}
	for i := project + 1; i < len(p.Rules); i++ {
		if covers(p.Rules[i].Path, p.ProjectDir) {
			return fmt.Errorf("rule %d (%s) covers project %s after the project rule", i, p.Rules[i], p.ProjectDir)
		}
	}

	if p.HooksDir == "" {
		return nil
	}
	hooks := p.lastIndex(func(rule AccessRule) bool {
		return rule.Source == SourceHooks && rule.Path == p.HooksDir && rule.Mode == ReadOnly
	})
	if hooks < 0 {
		return fmt.Errorf("policy has no read-only rule for hook directory %s", p.HooksDir)
	}
	if hooks < project {
		return fmt.Errorf("hook directory rule %d precedes project rule %d", hooks, project)
	}
	for i := hooks + 1; i < len(p.Rules); i++ {
		rule := p.Rules[i]
		overlaps := covers(rule.Path, p.HooksDir) || covers(p.HooksDir, rule.Path)
		if overlaps && rule.Mode.Writable() {
			return fmt.Errorf("rule %d (%s) re-opens hook directory %s", i, rule, p.HooksDir)
		}
	}
	return nil
}

func (p *Policy) lastIndex(match func(AccessRule) bool) int {
	for i := len(p.Rules) - 1; i >= 0; i-- {
		if match(p.Rules[i]) {
			return i
		}
	}
	return -1
}

// covers reports whether a rule on ancestor applies to path. Both must
// be clean absolute paths.
func covers(ancestor, path string) bool {
	if ancestor == "/" || ancestor == path {
		return true
	}
	return strings.HasPrefix(path, ancestor+"/")
}
