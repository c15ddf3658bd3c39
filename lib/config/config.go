// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Backend names accepted by sandbox.backend.
const (
	BackendAuto     = "auto"
	BackendBwrap    = "bwrap"
	BackendSeatbelt = "seatbelt"
)

// Baseline names accepted by sandbox.baseline and --baseline.
const (
	BaselineReadOnly = "readonly"
	BaselineDeny     = "deny"
)

// Config is the warden configuration record.
type Config struct {
	// Sandbox selects and tunes the isolation backend.
	Sandbox SandboxConfig `yaml:"sandbox"`

	// Policy holds the static tables the policy compiler combines
	// with per-invocation requests.
	Policy PolicyConfig `yaml:"policy"`

	// Hooks configures the protective git hooks.
	Hooks HooksConfig `yaml:"hooks"`

	// Launcher configures the command handed to the sandbox.
	Launcher LauncherConfig `yaml:"launcher"`

	// path is where the record was loaded from (or will be saved to).
	path string

	// unexpanded holds the path tables as written, before
	// expandVariables. Save writes these back so ${VAR} references
	// survive a round trip.
	unexpanded PolicyConfig
}

// SandboxConfig selects and tunes the isolation backend.
type SandboxConfig struct {
	// Backend is "auto" (probe the host), "bwrap", or "seatbelt".
	Backend string `yaml:"backend"`

	// Baseline is the visibility of paths no rule covers: "readonly"
	// or "deny".
	Baseline string `yaml:"baseline"`

	// Unshare lists the namespaces bwrap unshares. Valid names: pid,
	// ipc, uts, cgroup, net, user. The network namespace is shared by
	// default because package managers need the network.
	Unshare []string `yaml:"unshare"`

	// NewSession detaches the command from the controlling terminal
	// (bwrap --new-session). Off by default: interactive programs need
	// job control on the terminal they were started from.
	NewSession bool `yaml:"new_session"`
}

// PolicyConfig holds the compiler's static tables.
type PolicyConfig struct {
	// SystemRoots are bound read-only when they exist.
	SystemRoots []string `yaml:"system_roots"`

	// ScratchPaths are generic temporary locations bound read-write
	// when they exist.
	ScratchPaths []string `yaml:"scratch_paths"`

	// CachePaths are package-manager cache and config directories,
	// relative to the home directory. Each is created if absent and
	// bound read-write.
	CachePaths []string `yaml:"cache_paths"`

	// AppConfigPaths are the target application's own configuration
	// files and directories, bound read-write when they exist.
	AppConfigPaths []string `yaml:"app_config_paths"`
}

// HooksConfig configures the protective git hooks.
type HooksConfig struct {
	// Enabled turns hook installation on. --no-hooks overrides it.
	Enabled bool `yaml:"enabled"`

	// ProtectedBranches are branch names that must not be force-pushed,
	// deleted, or rebased.
	ProtectedBranches []string `yaml:"protected_branches"`

	// MaxFileSize is the largest blob the pre-commit hook accepts, in
	// humanized form ("50MiB", "10 MB").
	MaxFileSize string `yaml:"max_file_size"`
}

// LauncherConfig configures the command handed to the sandbox.
type LauncherConfig struct {
	// DefaultCommand is the command and arguments run when the command
	// line names none.
	DefaultCommand []string `yaml:"default_command"`

	// PassthroughEnv names additional host environment variables to
	// propagate into the sandbox.
	PassthroughEnv []string `yaml:"passthrough_env"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Sandbox: SandboxConfig{
			Backend:  BackendAuto,
			Baseline: BaselineReadOnly,
			Unshare:  []string{"pid", "ipc", "uts", "cgroup"},
		},
		Policy: PolicyConfig{
			SystemRoots: []string{
				"/usr", "/bin", "/sbin", "/lib", "/lib32", "/lib64", "/libx32",
				"/etc", "/opt", "/nix", "/run/current-system",
			},
			ScratchPaths: []string{"/tmp", "/var/tmp"},
			CachePaths: []string{
				".cache/go-build",
				"go/pkg/mod",
				".npm",
				".cache/pip",
				".cache/uv",
				".cargo/registry",
				".cargo/git",
				".rustup",
				".cache/yarn",
				".local/share/pnpm",
				".gradle/caches",
				".m2/repository",
				".bundle",
				".cache/pre-commit",
				".cache/deno",
				".bun/install/cache",
			},
			AppConfigPaths: []string{
				"${HOME}/.claude",
				"${HOME}/.claude.json",
			},
		},
		Hooks: HooksConfig{
			Enabled:           true,
			ProtectedBranches: []string{"main", "master"},
			MaxFileSize:       "50MiB",
		},
		Launcher: LauncherConfig{
			DefaultCommand: []string{"claude"},
		},
	}
}

// ResolvePath returns the configuration file to use and whether it was
// named explicitly. explicit is the --config flag value, possibly empty.
func ResolvePath(explicit string) (path string, required bool, err error) {
	if explicit != "" {
		return explicit, true, nil
	}
	if fromEnv := os.Getenv("WARDEN_CONFIG"); fromEnv != "" {
		return fromEnv, true, nil
	}
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", false, fmt.Errorf("locating configuration: %w", err)
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "warden", "config.yaml"), false, nil
}

// Load resolves the configuration path (see [ResolvePath]) and loads
// it. An absent optional file yields the defaults.
func Load(explicit string) (*Config, error) {
	path, required, err := ResolvePath(explicit)
	if err != nil {
		return nil, err
	}
	if !required {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			cfg.path = path
			cfg.expandVariables()
			return cfg, nil
		}
	}
	return LoadFile(path)
}

// LoadFile loads the configuration from a specific file. The file must
// exist. Values in the file override the defaults field by field.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Path returns the file the record was loaded from or will be saved to.
func (c *Config) Path() string {
	return c.path
}

// SetPath changes the file Save writes to.
func (c *Config) SetPath(path string) {
	c.path = path
}

// Save writes the record atomically to its path, creating the parent
// directory if needed.
func (c *Config) Save() error {
	if c.path == "" {
		return fmt.Errorf("config has no path")
	}
	record := *c
	record.Policy = c.recordedPolicy()
	data, err := yaml.Marshal(&record)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	directory := filepath.Dir(c.path)
	if err := os.MkdirAll(directory, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", directory, err)
	}

	temporary, err := os.CreateTemp(directory, ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("creating temporary config file: %w", err)
	}
	temporaryPath := temporary.Name()

	// Write, sync, close. On any failure remove the temporary file and
	// report the first error.
	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary config file: %w", err)
	}
	if err := temporary.Sync(); err != nil {
		temporary.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary config file: %w", err)
	}
	if err := temporary.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary config file: %w", err)
	}
	if err := os.Rename(temporaryPath, c.path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming config file into place: %w", err)
	}

	if parent, err := os.Open(directory); err == nil {
		parent.Sync()
		parent.Close()
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	backends := []string{BackendAuto, BackendBwrap, BackendSeatbelt}
	if !slices.Contains(backends, c.Sandbox.Backend) {
		errs = append(errs, fmt.Errorf("sandbox.backend must be one of: %v", backends))
	}

	baselines := []string{BaselineReadOnly, BaselineDeny}
	if !slices.Contains(baselines, c.Sandbox.Baseline) {
		errs = append(errs, fmt.Errorf("sandbox.baseline must be one of: %v", baselines))
	}

	namespaces := []string{"pid", "ipc", "uts", "cgroup", "net", "user"}
	for _, name := range c.Sandbox.Unshare {
		if !slices.Contains(namespaces, name) {
			errs = append(errs, fmt.Errorf("sandbox.unshare: unknown namespace %q", name))
		}
	}

	for _, path := range c.Policy.CachePaths {
		if filepath.IsAbs(path) {
			errs = append(errs, fmt.Errorf("policy.cache_paths: %q must be relative to the home directory", path))
		}
	}

	if _, err := c.MaxFileSizeBytes(); err != nil {
		errs = append(errs, err)
	}

	if len(c.Launcher.DefaultCommand) == 0 {
		errs = append(errs, fmt.Errorf("launcher.default_command is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// MaxFileSizeBytes parses Hooks.MaxFileSize.
func (c *Config) MaxFileSizeBytes() (uint64, error) {
	size, err := humanize.ParseBytes(c.Hooks.MaxFileSize)
	if err != nil {
		return 0, fmt.Errorf("hooks.max_file_size %q: %w", c.Hooks.MaxFileSize, err)
	}
	if size == 0 {
		return 0, fmt.Errorf("hooks.max_file_size must be positive")
	}
	return size, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in the
// path tables.
func (c *Config) expandVariables() {
	c.unexpanded = PolicyConfig{
		SystemRoots:    slices.Clone(c.Policy.SystemRoots),
		ScratchPaths:   slices.Clone(c.Policy.ScratchPaths),
		AppConfigPaths: slices.Clone(c.Policy.AppConfigPaths),
	}
	vars := pathVars()
	for _, table := range [][]string{
		c.Policy.SystemRoots,
		c.Policy.ScratchPaths,
		c.Policy.AppConfigPaths,
	} {
		for i := range table {
			table[i] = expandVars(table[i], vars)
		}
	}
}

func pathVars() map[string]string {
	return map[string]string{
		"HOME": os.Getenv("HOME"),
	}
}

// recordedPolicy returns the path tables as they should be written:
// entries still equal to the expansion of their original form are
// replaced by that form. Entries changed since loading are written as
// they are.
func (c *Config) recordedPolicy() PolicyConfig {
	vars := pathVars()
	policy := c.Policy
	policy.SystemRoots = restoreUnexpanded(c.Policy.SystemRoots, c.unexpanded.SystemRoots, vars)
	policy.ScratchPaths = restoreUnexpanded(c.Policy.ScratchPaths, c.unexpanded.ScratchPaths, vars)
	policy.AppConfigPaths = restoreUnexpanded(c.Policy.AppConfigPaths, c.unexpanded.AppConfigPaths, vars)
	return policy
}

func restoreUnexpanded(current, raw []string, vars map[string]string) []string {
	if len(current) != len(raw) {
		return current
	}
	restored := slices.Clone(current)
	for i := range restored {
		if expandVars(raw[i], vars) == current[i] {
			restored[i] = raw[i]
		}
	}
	return restored
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns. Provided
// vars take precedence over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}
