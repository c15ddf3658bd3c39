// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// Expectation is whether a probe should succeed.
type Expectation int

const (
	Deny Expectation = iota
	Allow
)

func (e Expectation) String() string {
	if e == Allow {
		return "ALLOW"
	}
	return "DENY"
}

// ProbeOperation is the filesystem operation a probe attempts.
type ProbeOperation int

const (
	// ProbeWrite creates and removes a file inside the target
	// directory.
	ProbeWrite ProbeOperation = iota

	// ProbeRead checks that the target is visible and readable.
	ProbeRead
)

// Outcome classifies a probe result against its expectation.
type Outcome int

const (
	Success Outcome = iota

	// Leak: a DENY probe succeeded.
	Leak

	// OverRestriction: an ALLOW probe failed.
	OverRestriction

	// Skipped: the probe's target does not apply (no repository, the
	// project is the home directory).
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Leak:
		return "leak"
	case OverRestriction:
		return "over-restriction"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// ProbeContext holds the session facts probe targets are derived from.
type ProbeContext struct {
	ProjectDir string
	HomeDir    string
	HooksDir   string
	Baseline   Baseline
}

// Probe is one boundary check.
type Probe struct {
	Name        string
	Description string
	Operation   ProbeOperation

	// Target returns the directory or path to probe, or "" when the
	// probe does not apply.
	Target func(ProbeContext) string
}

// ProbeCatalog is the fixed set of boundary probes. Expectations
// holds what each should do under each baseline.
var ProbeCatalog = []Probe{
	{
		Name:        "project-write",
		Description: "Create a file in the project directory",
		Operation:   ProbeWrite,
		Target:      func(c ProbeContext) string { return c.ProjectDir },
	},
	{
		Name:        "hooks-write",
		Description: "Create a file in the git hook directory",
		Operation:   ProbeWrite,
		Target:      func(c ProbeContext) string { return c.HooksDir },
	},
	{
		Name:        "etc-write",
		Description: "Create a file in /etc",
		Operation:   ProbeWrite,
		Target:      func(ProbeContext) string { return "/etc" },
	},
	{
		Name:        "usr-write",
		Description: "Create a file in /usr",
		Operation:   ProbeWrite,
		Target:      func(ProbeContext) string { return "/usr" },
	},
	{
		Name:        "root-write",
		Description: "Create a file in /",
		Operation:   ProbeWrite,
		Target:      func(ProbeContext) string { return "/" },
	},
	{
		Name:        "home-write",
		Description: "Create a file directly in the home directory",
		Operation:   ProbeWrite,
		Target: func(c ProbeContext) string {
			if c.HomeDir == "" || c.HomeDir == c.ProjectDir {
				return ""
			}
			return c.HomeDir
		},
	},
	{
		Name:        "ssh-write",
		Description: "Create a file in ~/.ssh",
		Operation:   ProbeWrite,
		Target: func(c ProbeContext) string {
			if c.HomeDir == "" {
				return ""
			}
			ssh := filepath.Join(c.HomeDir, ".ssh")
			// A project containing ~/.ssh is granted it with the rest
			// of the project.
			if c.ProjectDir != "" && covers(c.ProjectDir, ssh) {
				return ""
			}
			return ssh
		},
	},
	{
		Name:        "tmp-write",
		Description: "Create a file in /tmp",
		Operation:   ProbeWrite,
		Target:      func(ProbeContext) string { return "/tmp" },
	},
	{
		Name:        "cache-write",
		Description: "Create a file in the Go build cache",
		Operation:   ProbeWrite,
		Target: func(c ProbeContext) string {
			if c.HomeDir == "" {
				return ""
			}
			return filepath.Join(c.HomeDir, ".cache", "go-build")
		},
	},
	{
		Name:        "home-read",
		Description: "Read the home directory",
		Operation:   ProbeRead,
		Target:      func(c ProbeContext) string { return c.HomeDir },
	},
	{
		Name:        "etc-read",
		Description: "Read /etc",
		Operation:   ProbeRead,
		Target:      func(ProbeContext) string { return "/etc" },
	},
	{
		Name:        "var-log-read",
		Description: "Read /var/log, outside every bound root",
		Operation:   ProbeRead,
		Target:      func(ProbeContext) string { return "/var/log" },
	},
}

// Expectations maps probe name and baseline to the expected result.
// Intentional policy changes update this table and nothing else.
var Expectations = map[string]map[Baseline]Expectation{
	"project-write": {DefaultReadOnly: Allow, DefaultDeny: Allow},
	"hooks-write":   {DefaultReadOnly: Deny, DefaultDeny: Deny},
	"etc-write":     {DefaultReadOnly: Deny, DefaultDeny: Deny},
	"usr-write":     {DefaultReadOnly: Deny, DefaultDeny: Deny},
	"root-write":    {DefaultReadOnly: Deny, DefaultDeny: Deny},
	"home-write":    {DefaultReadOnly: Deny, DefaultDeny: Deny},
	"ssh-write":     {DefaultReadOnly: Deny, DefaultDeny: Deny},
	"tmp-write":     {DefaultReadOnly: Allow, DefaultDeny: Allow},
	"cache-write":   {DefaultReadOnly: Allow, DefaultDeny: Allow},
	"home-read":     {DefaultReadOnly: Allow, DefaultDeny: Allow},
	"etc-read":      {DefaultReadOnly: Allow, DefaultDeny: Allow},
	"var-log-read":  {DefaultReadOnly: Allow, DefaultDeny: Deny},
}

// Prober performs probe operations. A nil error means the operation
// was permitted.
type Prober interface {
	Write(dir string) error
	Read(path string) error
}

// HostProber performs real filesystem operations. Run inside a
// session it observes the sandbox as the command does.
type HostProber struct{}

func (HostProber) Write(dir string) error {
	file, err := os.CreateTemp(dir, ".warden-probe-*")
	if err != nil {
		return err
	}
	name := file.Name()
	file.Close()
	return os.Remove(name)
}

func (HostProber) Read(path string) error {
	return unix.Access(path, unix.R_OK)
}

var errProbeDenied = errors.New("denied by policy")

// PolicyProber answers probes by evaluating a compiled Policy, with no
// backend involved.
type PolicyProber struct {
	Policy *Policy
}

func (p PolicyProber) Write(dir string) error {
	if p.Policy.Access(filepath.Join(dir, ".warden-probe")) != Writable {
		return errProbeDenied
	}
	return nil
}

func (p PolicyProber) Read(path string) error {
	if p.Policy.Access(path) == Hidden {
		return errProbeDenied
	}
	return nil
}

// ProbeResult holds the result of one probe.
type ProbeResult struct {
	Probe    *Probe
	Target   string
	Expected Expectation
	Outcome  Outcome

	// Error is the operation's error, if it failed.
	Error string
}

// Passed reports whether the result is not a failure.
func (r ProbeResult) Passed() bool {
	return r.Outcome == Success || r.Outcome == Skipped
}

// Oracle runs the probe catalog and compares results to Expectations.
type Oracle struct {
	prober  Prober
	context ProbeContext
	probes  []Probe
	results []ProbeResult
}

// NewOracle creates an oracle running ProbeCatalog.
func NewOracle(prober Prober, context ProbeContext) *Oracle {
	return &Oracle{prober: prober, context: context, probes: ProbeCatalog}
}

// Run executes every probe and returns the results.
func (o *Oracle) Run() []ProbeResult {
	o.results = make([]ProbeResult, 0, len(o.probes))
	for i := range o.probes {
		probe := &o.probes[i]
		result := ProbeResult{
			Probe:    probe,
			Expected: Expectations[probe.Name][o.context.Baseline],
		}
		result.Target = probe.Target(o.context)
		if result.Target == "" {
			result.Outcome = Skipped
			o.results = append(o.results, result)
			continue
		}

		var err error
		switch probe.Operation {
		case ProbeWrite:
			err = o.prober.Write(result.Target)
		case ProbeRead:
			err = o.prober.Read(result.Target)
		}
		if err != nil {
			result.Error = err.Error()
		}

		switch {
		case err == nil && result.Expected == Deny:
			result.Outcome = Leak
		case err != nil && result.Expected == Allow:
			result.Outcome = OverRestriction
		default:
			result.Outcome = Success
		}
		o.results = append(o.results, result)
	}
	return o.results
}

// Summary returns counts of passed (including skipped) and failed
// probes.
func (o *Oracle) Summary() (passed, failed int) {
	for _, result := range o.results {
		if result.Passed() {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

// HasFailures returns true if any probe leaked or was over-restricted.
func (o *Oracle) HasFailures() bool {
	_, failed := o.Summary()
	return failed > 0
}

// PrintResults writes probe results to w.
func (o *Oracle) PrintResults(w io.Writer) {
	fmt.Fprintf(w, "Running sandbox boundary probes (baseline %s)...\n\n", o.context.Baseline)

	for _, result := range o.results {
		var status string
		switch {
		case result.Outcome == Skipped:
			status = "[SKIP]"
		case result.Passed():
			status = "[PASS]"
		default:
			status = "[FAIL]"
		}
		fmt.Fprintf(w, "%s %s: %s (expect %s)\n", status, result.Probe.Name, result.Probe.Description, result.Expected)
		if !result.Passed() {
			detail := result.Error
			if detail == "" {
				detail = "operation succeeded"
			}
			fmt.Fprintf(w, "       %s at %s: %s\n", result.Outcome, result.Target, detail)
		}
	}

	passed, failed := o.Summary()
	fmt.Fprintf(w, "\n%d/%d probes passed", passed, passed+failed)
	if failed == 0 {
		fmt.Fprintf(w, " - sandbox boundary verified\n")
	} else {
		fmt.Fprintf(w, " - %d boundary violations!\n", failed)
	}
}

// ProbeContextFromEnv reads the context a session advertises to its
// command.
func ProbeContextFromEnv(getenv func(string) string) (ProbeContext, error) {
	context := ProbeContext{
		ProjectDir: getenv("WARDEN_PROJECT_DIR"),
		HooksDir:   getenv("WARDEN_HOOKS_DIR"),
		HomeDir:    getenv("HOME"),
	}
	if context.ProjectDir == "" {
		return ProbeContext{}, fmt.Errorf("WARDEN_PROJECT_DIR is not set (not running inside a warden session?)")
	}
	baseline, err := ParseBaseline(strings.TrimSpace(getenv("WARDEN_BASELINE")))
	if err != nil {
		return ProbeContext{}, fmt.Errorf("WARDEN_BASELINE: %w", err)
	}
	context.Baseline = baseline
	return context, nil
}
