// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hookguard

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// HookRecord describes one managed hook name as found on disk.
type HookRecord struct {
	Name string
	Path string

	// Installed is true when the file carries the warden marker.
	Installed bool

	// Foreign is true when a file (or symlink, or directory) without
	// the marker occupies the path. Foreign hooks are never modified.
	Foreign bool

	// Modified is true when the marker is present but the digest does
	// not match the body.
	Modified bool
}

// Absent reports whether nothing occupies the hook path.
func (r HookRecord) Absent() bool {
	return !r.Installed && !r.Foreign
}

// Warning is a non-fatal condition found while guarding hooks.
type Warning struct {
	Hook    string
	Path    string
	Message string
}

// Result is the outcome of Ensure.
type Result struct {
	// Records is the state of every hook after Ensure, in HookNames
	// order.
	Records []HookRecord

	// Installed lists the hooks this run wrote.
	Installed []string

	Warnings []Warning
}

// Config holds the parameters for New.
type Config struct {
	// HooksDir is the repository's effective hooks directory.
	HooksDir string

	Settings Settings

	// Logger receives installation and warning messages. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Guard installs warden's hooks into one hooks directory without
// disturbing hooks it did not write.
type Guard struct {
	hooksDir string
	scripts  map[string][]byte
	logger   *slog.Logger
}

// New renders the hook scripts for config.Settings. It fails if the
// settings cannot produce valid scripts.
func New(config Config) (*Guard, error) {
	if !filepath.IsAbs(config.HooksDir) {
		return nil, fmt.Errorf("hooks directory %q is not absolute", config.HooksDir)
	}
	scripts, err := RenderScripts(config.Settings)
	if err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{hooksDir: config.HooksDir, scripts: scripts, logger: logger}, nil
}

// Script returns the rendered content for a hook name.
func (g *Guard) Script(name string) []byte {
	return g.scripts[name]
}

// Scan reports the current state of every managed hook name without
// writing anything.
func (g *Guard) Scan() ([]HookRecord, error) {
	records := make([]HookRecord, 0, len(HookNames))
	for _, name := range HookNames {
		record, err := g.inspect(name)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// Ensure installs every absent hook and warns once about each foreign
// or modified one. Installed hooks are left as they are. Running
// Ensure twice writes nothing the second time.
func (g *Guard) Ensure() (*Result, error) {
	if err := os.MkdirAll(g.hooksDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating hooks directory: %w", err)
	}

	result := &Result{}
	for _, name := range HookNames {
		record, err := g.inspect(name)
		if err != nil {
			return nil, err
		}
		if record.Absent() {
			installed, err := g.install(record.Path, g.scripts[name])
			if err != nil {
				return nil, fmt.Errorf("installing %s hook: %w", name, err)
			}
			if installed {
				result.Installed = append(result.Installed, name)
				g.logger.Debug("installed git hook", "hook", name, "path", record.Path)
			}
			// Whether we won or a concurrent run did, the file now
			// on disk is what we report.
			record, err = g.inspect(name)
			if err != nil {
				return nil, err
			}
		}

		switch {
		case record.Foreign:
			result.warn(g.logger, record, "existing hook was not written by warden; leaving it in place")
		case record.Modified:
			result.warn(g.logger, record, "warden hook content does not match its digest; leaving it in place")
		}
		result.Records = append(result.Records, record)
	}
	return result, nil
}

func (r *Result) warn(logger *slog.Logger, record HookRecord, message string) {
	r.Warnings = append(r.Warnings, Warning{Hook: record.Name, Path: record.Path, Message: message})
	logger.Warn(message, "hook", record.Name, "path", record.Path)
}

// inspect classifies the file at the hook's path. Symlinks are not
// followed: a symlink is foreign whatever it points at.
func (g *Guard) inspect(name string) (HookRecord, error) {
	path := filepath.Join(g.hooksDir, name)
	record := HookRecord{Name: name, Path: path}

	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return record, nil
	}
	if err != nil {
		return record, fmt.Errorf("inspecting %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		record.Foreign = true
		return record, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return record, fmt.Errorf("reading %s: %w", path, err)
	}
	header := inspectContent(content)
	switch {
	case !header.managed:
		record.Foreign = true
	case !header.intact:
		record.Installed = true
		record.Modified = true
	default:
		record.Installed = true
	}
	return record, nil
}

// install creates path with content unless something already exists
// there. The content is written to a temporary file in the same
// directory and hard-linked into place, so the hook appears complete
// or not at all and an existing file is never replaced. Returns false
// when another writer got there first.
func (g *Guard) install(path string, content []byte) (bool, error) {
	temp, err := os.CreateTemp(filepath.Dir(path), ".warden-hook-*")
	if err != nil {
		return false, err
	}
	tempPath := temp.Name()
	defer os.Remove(tempPath)

	if _, err := temp.Write(content); err != nil {
		temp.Close()
		return false, err
	}
	if err := temp.Chmod(0o755); err != nil {
		temp.Close()
		return false, err
	}
	if err := temp.Close(); err != nil {
		return false, err
	}

	err = os.Link(tempPath, path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrExist):
		return false, nil
	}

	// Some filesystems refuse hard links. O_EXCL still never clobbers.
	g.logger.Debug("hard link failed, creating hook directly", "path", path, "error", err)
	return createExclusive(path, content)
}

func createExclusive(path string, content []byte) (bool, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o755)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := file.Write(content); err != nil {
		file.Close()
		return false, err
	}
	if err := file.Chmod(0o755); err != nil {
		file.Close()
		return false, err
	}
	return true, file.Close()
}
