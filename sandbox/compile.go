// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Filesystem is the compiler's view of the host. OSFilesystem is the
// real implementation; tests substitute synthetic trees.
type Filesystem interface {
	// Exists reports whether path exists (following symlinks).
	Exists(path string) bool

	// MkdirAll creates path and any missing parents.
	MkdirAll(path string) error
}

// OSFilesystem implements Filesystem against the host.
type OSFilesystem struct{}

func (OSFilesystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (OSFilesystem) MkdirAll(path string) error {
	return os.MkdirAll(path, 0o755)
}

// Tables are the static path lists the compiler combines with a
// request. They come from the configuration record.
type Tables struct {
	// SystemRoots are bound read-only when they exist.
	SystemRoots []string

	// ScratchPaths are bound read-write when they exist.
	ScratchPaths []string

	// CachePaths are relative to the home directory. Each is created
	// when absent and bound read-write.
	CachePaths []string

	// AppConfigPaths are absolute paths bound read-write when they
	// exist.
	AppConfigPaths []string

	// Databases is the candidate table for -d identifiers. Nil means
	// DefaultDatabases.
	Databases []DatabaseKind
}

// CompilerConfig configures a Compiler.
type CompilerConfig struct {
	Tables       Tables
	Capabilities Capabilities

	// Filesystem defaults to OSFilesystem.
	Filesystem Filesystem

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Compiler turns a request into an ordered Policy.
type Compiler struct {
	tables       Tables
	capabilities Capabilities
	fs           Filesystem
	logger       *slog.Logger
}

// NewCompiler returns a Compiler for the given tables and backend
// capabilities.
func NewCompiler(config CompilerConfig) *Compiler {
	if config.Filesystem == nil {
		config.Filesystem = OSFilesystem{}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Tables.Databases == nil {
		config.Tables.Databases = DefaultDatabases
	}
	return &Compiler{
		tables:       config.Tables,
		capabilities: config.Capabilities,
		fs:           config.Filesystem,
		logger:       config.Logger,
	}
}

// CompileInput is one invocation's request.
type CompileInput struct {
	// WritablePaths are absolute paths from -w, in request order.
	WritablePaths []string

	// Databases are identifiers from -d, in request order.
	Databases []string

	// WorkDir is the project directory. Must be absolute.
	WorkDir string

	// HomeDir is the invoking user's home directory. Must be absolute.
	HomeDir string

	// HooksDir is the repository's hook directory, or empty when the
	// working directory is not inside a repository.
	HooksDir string

	Baseline Baseline
}

// Plan is the result of a compilation.
type Plan struct {
	Policy *Policy

	// Databases lists the identifiers that resolved to at least one
	// rule, in request order.
	Databases []string

	Warnings []Warning
}

// Compile builds the policy for input. Rules are appended in a fixed
// order so that narrower grants land after the broader restrictions
// they refine:
//
//  1. read-only root (DefaultReadOnly only), then existing system roots
//  2. the home directory, read-only
//  3. scratch, cache, and application paths, then the project
//     directory, read-write
//  4. requested databases, then requested paths, read-write
//  5. the project directory again if a request covered it
//  6. the hook directory, read-only
//
// Unresolvable entries produce warnings rather than errors. The
// returned policy has passed Policy.Verify.
func (c *Compiler) Compile(input CompileInput) (*Plan, error) {
	if !filepath.IsAbs(input.WorkDir) {
		return nil, fmt.Errorf("working directory %q is not absolute", input.WorkDir)
	}
	if !filepath.IsAbs(input.HomeDir) {
		return nil, fmt.Errorf("home directory %q is not absolute", input.HomeDir)
	}
	if !c.capabilities.Supports(input.Baseline) {
		return nil, fmt.Errorf("backend %s does not support baseline %s", c.capabilities.Name, input.Baseline)
	}

	projectDir := filepath.Clean(input.WorkDir)
	homeDir := filepath.Clean(input.HomeDir)
	hooksDir := ""
	if input.HooksDir != "" {
		hooksDir = filepath.Clean(input.HooksDir)
	}

	b := &planBuilder{
		compiler: c,
		plan: &Plan{Policy: &Policy{
			Baseline:   input.Baseline,
			ProjectDir: projectDir,
			HooksDir:   hooksDir,
		}},
	}

	if input.Baseline == DefaultReadOnly {
		b.add("/", ReadOnly, SourceRoot)
	}
	for _, root := range c.tables.SystemRoots {
		if c.fs.Exists(root) {
			b.add(root, ReadOnly, SourceSystem)
		}
	}

	if c.fs.Exists(homeDir) {
		b.add(homeDir, ReadOnly, SourceHome)
	} else {
		b.warn(homeDir, "home directory does not exist")
	}

	for _, path := range c.tables.ScratchPaths {
		b.addIfExists(path, SourceScratch)
	}
	for _, relative := range c.tables.CachePaths {
		path := filepath.Join(homeDir, relative)
		if err := b.ensureDir(path); err != nil {
			b.warn(path, fmt.Sprintf("cache directory unavailable: %v", err))
			continue
		}
		b.add(path, ReadWrite, SourceCache)
	}
	for _, path := range c.tables.AppConfigPaths {
		b.addIfExists(path, SourceApp)
	}
	b.add(projectDir, ReadWrite, SourceProject)

	requested := len(b.plan.Policy.Rules)

	for _, identifier := range input.Databases {
		resolution := resolveDatabase(c.tables.Databases, identifier, projectDir, c.fs)
		if resolution.err != nil {
			b.warn(identifier, resolution.err.Error())
			continue
		}
		for _, path := range resolution.paths {
			b.add(path, ReadWrite, SourceDatabase)
		}
		b.plan.Databases = append(b.plan.Databases, resolution.name)
	}

	for _, path := range input.WritablePaths {
		if !filepath.IsAbs(path) {
			b.warn(path, "writable path is not absolute")
			continue
		}
		path = filepath.Clean(path)
		if err := b.ensureDir(path); err != nil {
			b.warn(path, fmt.Sprintf("cannot create writable path: %v", err))
			continue
		}
		b.add(path, ReadWrite, SourceWrite)
	}

	for _, rule := range b.plan.Policy.Rules[requested:] {
		if covers(rule.Path, projectDir) {
			b.add(projectDir, ReadWrite, SourceProject)
			break
		}
	}

	if hooksDir != "" {
		// The hook directory must exist for the read-only bind to land;
		// without it the project grant would leave it writable.
		if err := b.ensureDir(hooksDir); err != nil {
			return nil, fmt.Errorf("creating hook directory %s: %w", hooksDir, err)
		}
		b.add(hooksDir, ReadOnly, SourceHooks)
	}

	if err := b.plan.Policy.Verify(); err != nil {
		return nil, fmt.Errorf("compiled policy is inconsistent: %w", err)
	}
	c.logger.Debug("compiled sandbox policy",
		"baseline", input.Baseline.String(),
		"rules", len(b.plan.Policy.Rules),
		"warnings", len(b.plan.Warnings),
	)
	return b.plan, nil
}

type planBuilder struct {
	compiler *Compiler
	plan     *Plan
}

func (b *planBuilder) add(path string, mode Mode, source string) {
	b.plan.Policy.Rules = append(b.plan.Policy.Rules, AccessRule{
		Path:   filepath.Clean(path),
		Mode:   mode,
		Source: source,
	})
}

// addIfExists emits a read-write rule that is skipped when path is
// absent. Backends with native try-binds resolve existence at mount
// time; for the rest the compiler resolves it now.
func (b *planBuilder) addIfExists(path, source string) {
	if b.compiler.capabilities.TryBind {
		b.add(path, ReadWriteIfExists, source)
		return
	}
	if b.compiler.fs.Exists(path) {
		b.add(path, ReadWrite, source)
		return
	}
	b.compiler.logger.Debug("skipping absent path", "path", path, "source", source)
}

func (b *planBuilder) ensureDir(path string) error {
	if b.compiler.fs.Exists(path) {
		return nil
	}
	if err := b.compiler.fs.MkdirAll(path); err != nil {
		return err
	}
	if !b.compiler.fs.Exists(path) {
		return errors.New("directory missing after creation")
	}
	return nil
}

func (b *planBuilder) warn(subject, message string) {
	warning := Warning{Kind: PolicyResolutionWarning, Subject: subject, Message: message}
	b.plan.Warnings = append(b.plan.Warnings, warning)
	b.compiler.logger.Warn(message, "kind", string(warning.Kind), "subject", subject)
}
