// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/bureau-foundation/warden/lib/process"
)

// LauncherConfig configures a Launcher.
type LauncherConfig struct {
	Backend Backend

	// Exec replaces the process. Defaults to process.Replace.
	Exec process.ExecFunc

	// Chdir changes the working directory before Exec. Defaults to
	// os.Chdir.
	Chdir func(string) error

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Launcher hands a Session to its backend by replacing the current
// process. There is no fork and no retry: the sandboxed command takes
// over the PID, the terminal, and the exit status.
type Launcher struct {
	backend Backend
	exec    process.ExecFunc
	chdir   func(string) error
	logger  *slog.Logger
}

// NewLauncher creates a launcher for backend.
func NewLauncher(config LauncherConfig) *Launcher {
	if config.Exec == nil {
		config.Exec = process.Replace
	}
	if config.Chdir == nil {
		config.Chdir = os.Chdir
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Launcher{
		backend: config.Backend,
		exec:    config.Exec,
		chdir:   config.Chdir,
		logger:  config.Logger,
	}
}

// Exec renders session and replaces the current process with it. It
// returns only on failure, always as a *LaunchFailure.
func (l *Launcher) Exec(session *Session) error {
	argv, err := l.backend.Render(session)
	if err != nil {
		return &LaunchFailure{Backend: l.backend.Name(), Path: l.backend.Path(), Err: err}
	}
	if session.WorkDir != "" {
		if err := l.chdir(session.WorkDir); err != nil {
			return &LaunchFailure{Backend: l.backend.Name(), Path: l.backend.Path(), Err: err}
		}
	}

	l.logger.Info("launching sandboxed command",
		"session", session.ID,
		"backend", l.backend.Name(),
		"command", session.Command,
		"baseline", session.Policy.Baseline.String(),
		"rules", len(session.Policy.Rules),
	)
	l.logger.Debug("backend invocation", "argv", argv)

	err = l.exec(argv[0], argv, l.backend.Environ(session))
	if err == nil {
		// Only a substituted ExecFunc can return without error.
		return nil
	}
	return &LaunchFailure{Backend: l.backend.Name(), Path: argv[0], Err: err}
}

// DryRun writes the rendered invocation to w, one directive per line,
// each word shell-quoted so the output can be pasted into a shell.
func (l *Launcher) DryRun(w io.Writer, session *Session) error {
	argv, err := l.backend.Render(session)
	if err != nil {
		return err
	}
	lines, err := FormatInvocation(argv)
	if err != nil {
		return err
	}
	for i, line := range lines {
		suffix := " \\"
		if i == len(lines)-1 {
			suffix = ""
		}
		indent := "  "
		if i == 0 {
			indent = ""
		}
		if _, err := fmt.Fprintf(w, "%s%s%s\n", indent, line, suffix); err != nil {
			return err
		}
	}
	return nil
}

// directiveArity is the number of values each known backend flag
// consumes. Unknown flags consume none.
var directiveArity = map[string]int{
	"--ro-bind":  2,
	"--bind":     2,
	"--bind-try": 2,
	"--setenv":   2,
	"--dev":      1,
	"--proc":     1,
	"--chdir":    1,
	"-p":         1,
}

// FormatInvocation groups argv into directive lines: the binary, then
// one line per flag with its values, then "--" with the command.
func FormatInvocation(argv []string) ([]string, error) {
	quoted := make([]string, len(argv))
	for i, word := range argv {
		q, err := syntax.Quote(word, syntax.LangBash)
		if err != nil {
			return nil, fmt.Errorf("quoting %q: %w", word, err)
		}
		quoted[i] = q
	}

	var lines []string
	for i := 0; i < len(argv); {
		if i == 0 {
			lines = append(lines, quoted[0])
			i++
			continue
		}
		if argv[i] == "--" {
			lines = append(lines, strings.Join(quoted[i:], " "))
			break
		}
		end := i + 1 + directiveArity[argv[i]]
		if end > len(argv) {
			end = len(argv)
		}
		lines = append(lines, strings.Join(quoted[i:end], " "))
		i = end
	}
	return lines, nil
}
