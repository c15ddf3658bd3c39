// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/bureau-foundation/warden/lib/config"
	"github.com/bureau-foundation/warden/lib/git"
	"github.com/bureau-foundation/warden/lib/hookguard"
	"github.com/bureau-foundation/warden/lib/overrides"
	"github.com/bureau-foundation/warden/lib/process"
	"github.com/bureau-foundation/warden/lib/version"
	"github.com/bureau-foundation/warden/sandbox"
)

// Replaced in tests.
var (
	detectBackend                  = sandbox.DetectBackend
	execProcess   process.ExecFunc = process.Replace
	chdir                          = os.Chdir
)

// errBoundaryViolation is returned by --self-test when any probe
// fails. The report has already been printed.
var errBoundaryViolation = errors.New("sandbox boundary violations detected")

func main() {
	workDir, err := os.Getwd()
	if err != nil {
		process.Fatal(fmt.Errorf("determining working directory: %w", err))
	}
	if err := run(context.Background(), os.Args[1:], workDir, os.Stdout, os.Stderr); err != nil {
		process.Fatal(err)
	}
}

// run executes one invocation. On the launch path it only returns on
// failure: success replaces the process.
func run(ctx context.Context, args []string, workDir string, stdout, stderr io.Writer) error {
	options, err := overrides.Parse(args, workDir)
	if err != nil {
		return err
	}
	if options.Help {
		printUsage(stdout)
		return nil
	}
	if options.Version {
		fmt.Fprintf(stdout, "warden %s\n", version.Full())
		return nil
	}

	logger := newLogger(stderr, options.Debug)

	if options.SelfTest {
		return selfTest(stdout)
	}

	cfg, err := config.Load(options.ConfigPath)
	if err != nil {
		return &sandbox.PreflightError{Check: "config", Err: err}
	}

	baselineName := options.Baseline
	if baselineName == "" {
		baselineName = cfg.Sandbox.Baseline
	}
	baseline, err := sandbox.ParseBaseline(baselineName)
	if err != nil {
		return &sandbox.PreflightError{Check: "config", Err: err}
	}

	command := options.Command
	if len(command) == 0 {
		command = cfg.Launcher.DefaultCommand
	}
	if len(command) == 0 {
		return &overrides.UsageError{Err: errors.New("no command given and launcher.default_command is empty")}
	}

	// Preflight: nothing below compiles or writes until the host can
	// run a sandbox at all and the command resolves.
	backend, err := detectBackend(cfg.Sandbox.Backend, sandbox.BackendOptions{
		Bwrap: sandbox.BwrapOptions{
			Unshare:    cfg.Sandbox.Unshare,
			NewSession: cfg.Sandbox.NewSession,
		},
	})
	if err != nil {
		return err
	}
	validator := sandbox.NewValidator()
	validator.ValidateBackend(backend, baseline)
	validator.ValidateWorkingDirectory(workDir)
	commandPath := validator.ValidateCommand(command[0], os.Getenv("PATH"), workDir)

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return &sandbox.PreflightError{Check: "home", Err: err}
	}

	hooksDir, detectErr := detectHooksDir(ctx, workDir)
	validator.ValidateHooks(hooksDir, detectErr)
	if options.Debug {
		validator.PrintResults(stderr)
	}
	if err := validator.Err(); err != nil {
		return err
	}

	compiler := sandbox.NewCompiler(sandbox.CompilerConfig{
		Tables: sandbox.Tables{
			SystemRoots:    cfg.Policy.SystemRoots,
			ScratchPaths:   cfg.Policy.ScratchPaths,
			CachePaths:     cfg.Policy.CachePaths,
			AppConfigPaths: cfg.Policy.AppConfigPaths,
		},
		Capabilities: backend.Capabilities(),
		Logger:       logger,
	})
	plan, err := compiler.Compile(sandbox.CompileInput{
		WritablePaths: options.Request.Paths,
		Databases:     options.Request.Databases,
		WorkDir:       workDir,
		HomeDir:       homeDir,
		HooksDir:      hooksDir,
		Baseline:      baseline,
	})
	if err != nil {
		return err
	}

	visibility := sandbox.NewValidator()
	visibility.ValidateCommandVisible(plan.Policy, commandPath)
	if err := visibility.Err(); err != nil {
		return err
	}

	// Only a command that passed preflight becomes the default.
	if options.SaveDefault {
		cfg.Launcher.DefaultCommand = command
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("saving default command: %w", err)
		}
		logger.Info("saved default command", "command", strings.Join(command, " "), "config", cfg.Path())
	}

	warnings := plan.Warnings
	if hooksDir != "" && cfg.Hooks.Enabled && !options.NoHooks && !options.DryRun {
		hookWarnings, err := guardHooks(cfg, hooksDir, logger)
		if err != nil {
			return err
		}
		warnings = append(warnings, hookWarnings...)
	}

	session, err := sandbox.NewSession(sandbox.SessionConfig{
		Plan:        plan,
		WorkDir:     workDir,
		Command:     command[0],
		CommandPath: commandPath,
		Args:        command[1:],
		HostEnv:     os.Environ(),
		Passthrough: cfg.Launcher.PassthroughEnv,
	})
	if err != nil {
		return err
	}
	logger.Debug("session prepared",
		"session", session.ID,
		"backend", backend.Name(),
		"databases", plan.Databases,
		"warnings", len(warnings),
	)

	launcher := sandbox.NewLauncher(sandbox.LauncherConfig{
		Backend: backend,
		Exec:    execProcess,
		Chdir:   chdir,
		Logger:  logger,
	})
	if options.DryRun {
		return launcher.DryRun(stdout, session)
	}
	return launcher.Exec(session)
}

// detectHooksDir returns the hooks directory of the repository
// containing workDir, or "" when there is none.
func detectHooksDir(ctx context.Context, workDir string) (string, error) {
	repository, err := git.Discover(workDir)
	if errors.Is(err, git.ErrNotRepository) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return repository.HooksDir(ctx)
}

// guardHooks installs the protective hooks and converts the guard's
// warnings to session warnings.
func guardHooks(cfg *config.Config, hooksDir string, logger *slog.Logger) ([]sandbox.Warning, error) {
	maxFileSize, err := cfg.MaxFileSizeBytes()
	if err != nil {
		return nil, &sandbox.PreflightError{Check: "config", Err: err}
	}
	guard, err := hookguard.New(hookguard.Config{
		HooksDir: hooksDir,
		Settings: hookguard.Settings{
			ProtectedBranches: cfg.Hooks.ProtectedBranches,
			MaxFileSize:       maxFileSize,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, &sandbox.PreflightError{Check: "hooks", Err: err}
	}
	result, err := guard.Ensure()
	if err != nil {
		return nil, &sandbox.PreflightError{Check: "hooks", Err: err}
	}
	if len(result.Installed) > 0 {
		logger.Info("installed git hooks", "hooks", result.Installed, "dir", hooksDir)
	}

	warnings := make([]sandbox.Warning, 0, len(result.Warnings))
	for _, warning := range result.Warnings {
		warnings = append(warnings, sandbox.Warning{
			Kind:    sandbox.HookInstallWarning,
			Subject: warning.Path,
			Message: warning.Message,
		})
	}
	return warnings, nil
}

// selfTest probes the boundary of the session warden is running in.
func selfTest(stdout io.Writer) error {
	probeContext, err := sandbox.ProbeContextFromEnv(os.Getenv)
	if err != nil {
		return err
	}
	oracle := sandbox.NewOracle(sandbox.HostProber{}, probeContext)
	oracle.Run()
	oracle.PrintResults(stdout)
	if oracle.HasFailures() {
		return errBoundaryViolation
	}
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `warden - run a command in a project-scoped filesystem sandbox

Usage:
  warden [flags] [COMMAND [ARGS...]]

Without COMMAND, launcher.default_command from the configuration runs.
Option parsing stops at the first non-flag argument, so flags after
COMMAND belong to it.

Flags:
%s
Examples:
  warden                          Run the default command
  warden -w ~/notes claude        Also allow writes to ~/notes
  warden -d postgres:redis        Allow writes to local Postgres and Redis
  warden -d sqlite:data/app.db    Allow writes to a SQLite database directory
  warden --dry-run bash           Print the backend invocation
  warden --self-test              Check the boundary from inside a session
`, overrides.Usage())
}
