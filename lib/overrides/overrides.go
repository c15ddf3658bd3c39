// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package overrides

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
)

// Request is the normalized set of writable overrides, in
// first-seen order with duplicates dropped.
type Request struct {
	// Paths are absolute, cleaned paths.
	Paths []string

	// Databases are lower-cased kind identifiers, or "sqlite:<path>"
	// with the path kept verbatim.
	Databases []string
}

// Options is the parsed command line.
type Options struct {
	Request Request

	// Baseline is "", "readonly", or "deny". Empty defers to the
	// configuration.
	Baseline string

	// ConfigPath is the --config value, possibly empty.
	ConfigPath string

	DryRun      bool
	SelfTest    bool
	NoHooks     bool
	SaveDefault bool
	Debug       bool
	Version     bool
	Help        bool

	// Command is the command and its arguments. Empty means the
	// configured default command.
	Command []string
}

// UsageError reports a malformed command line.
type UsageError struct {
	Err error

	// Suggestion is the closest defined flag to an unknown one.
	Suggestion string
}

func (e *UsageError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%v (did you mean %s?)", e.Err, e.Suggestion)
	}
	return e.Err.Error()
}

func (e *UsageError) Unwrap() error { return e.Err }

// flagValues receives the raw flag values during parsing.
type flagValues struct {
	options   *Options
	writes    []string
	databases []string
}

func newFlagSet(values *flagValues) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("warden", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.SetOutput(io.Discard)
	flagSet.SortFlags = false

	options := values.options
	flagSet.StringArrayVarP(&values.writes, "write", "w", nil, "make `PATH` writable (repeatable, colon-separated list)")
	flagSet.StringArrayVarP(&values.databases, "writable-db", "d", nil, "make database `NAME` writable: mysql, postgres, redis, mongodb, sqlite:PATH (repeatable, colon-separated list)")
	flagSet.StringVar(&options.Baseline, "baseline", "", "visibility of uncovered paths: `readonly` or deny (default from config)")
	flagSet.StringVar(&options.ConfigPath, "config", "", "configuration `FILE` (default $XDG_CONFIG_HOME/warden/config.yaml)")
	flagSet.BoolVar(&options.DryRun, "dry-run", false, "print the backend invocation instead of running it")
	flagSet.BoolVar(&options.SelfTest, "self-test", false, "probe the sandbox boundary from inside a session")
	flagSet.BoolVar(&options.NoHooks, "no-hooks", false, "do not install protective git hooks")
	flagSet.BoolVar(&options.SaveDefault, "save-default", false, "record COMMAND as the default command in the configuration")
	flagSet.BoolVar(&options.Debug, "debug", false, "enable debug logging")
	flagSet.BoolVar(&options.Version, "version", false, "print version information")
	flagSet.BoolVarP(&options.Help, "help", "h", false, "show help")
	return flagSet
}

// Parse parses warden's arguments (without the program name). workDir
// must be absolute; relative -w paths are resolved against it.
func Parse(args []string, workDir string) (*Options, error) {
	if !filepath.IsAbs(workDir) {
		return nil, fmt.Errorf("working directory %q is not absolute", workDir)
	}

	values := &flagValues{options: &Options{}}
	flagSet := newFlagSet(values)
	if err := flagSet.Parse(args); err != nil {
		return nil, &UsageError{Err: err, Suggestion: suggestFlag(args, newFlagSet(&flagValues{options: &Options{}}))}
	}

	options := values.options
	options.Command = flagSet.Args()
	switch options.Baseline {
	case "", "readonly", "deny":
	default:
		return nil, &UsageError{Err: fmt.Errorf("invalid --baseline %q (want readonly or deny)", options.Baseline)}
	}
	if options.SaveDefault && len(options.Command) == 0 {
		return nil, &UsageError{Err: fmt.Errorf("--save-default requires a command")}
	}

	options.Request = Request{
		Paths:     MergePaths(values.writes, workDir),
		Databases: MergeDatabases(values.databases),
	}
	return options, nil
}

// Usage returns the flag descriptions for help output.
func Usage() string {
	return newFlagSet(&flagValues{options: &Options{}}).FlagUsages()
}

// MergePaths splits each value on ':' and returns the absolute,
// cleaned paths in order. Empty elements and repeats are dropped.
func MergePaths(values []string, workDir string) []string {
	var paths []string
	seen := make(map[string]bool)
	for _, value := range values {
		for _, element := range strings.Split(value, ":") {
			if element == "" {
				continue
			}
			path := element
			if !filepath.IsAbs(path) {
				path = filepath.Join(workDir, path)
			}
			path = filepath.Clean(path)
			if seen[path] {
				continue
			}
			seen[path] = true
			paths = append(paths, path)
		}
	}
	return paths
}

// MergeDatabases splits each value on ':' and returns the database
// identifiers in order. A "sqlite" element consumes the element after
// it as its database path, so "sqlite:/x/app.db" is one identifier.
// Empty elements and repeats are dropped.
func MergeDatabases(values []string) []string {
	var identifiers []string
	seen := make(map[string]bool)
	for _, value := range values {
		elements := strings.Split(value, ":")
		for i := 0; i < len(elements); i++ {
			element := elements[i]
			if element == "" {
				continue
			}
			identifier := strings.ToLower(element)
			if identifier == "sqlite" {
				path := ""
				if i+1 < len(elements) {
					i++
					path = elements[i]
				}
				identifier = "sqlite:" + path
			}
			if seen[identifier] {
				continue
			}
			seen[identifier] = true
			identifiers = append(identifiers, identifier)
		}
	}
	return identifiers
}
