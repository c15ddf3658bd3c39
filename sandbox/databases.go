// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DatabaseKind is a database engine whose socket or data directories
// can be made writable with -d.
type DatabaseKind struct {
	// Name is the canonical identifier.
	Name string

	// Aliases are accepted in place of Name.
	Aliases []string

	// Candidates are checked in order; every one that exists is bound
	// read-write.
	Candidates []string
}

// SQLitePrefix introduces a file-backed database identifier:
// "sqlite:<path>" makes the directory containing <path> writable.
const SQLitePrefix = "sqlite:"

// DefaultDatabases is the built-in candidate table.
var DefaultDatabases = []DatabaseKind{
	{
		Name:       "mysql",
		Aliases:    []string{"mariadb"},
		Candidates: []string{"/var/run/mysqld", "/run/mysqld", "/tmp/mysql.sock", "/var/lib/mysql"},
	},
	{
		Name:       "postgres",
		Aliases:    []string{"postgresql", "pg"},
		Candidates: []string{"/var/run/postgresql", "/run/postgresql", "/tmp/.s.PGSQL.5432"},
	},
	{
		Name:       "redis",
		Candidates: []string{"/var/run/redis", "/run/redis", "/tmp/redis.sock"},
	},
	{
		Name:       "mongodb",
		Aliases:    []string{"mongo"},
		Candidates: []string{"/tmp/mongodb-27017.sock", "/var/lib/mongodb"},
	},
}

type databaseResolution struct {
	name  string
	paths []string
	err   error
}

func resolveDatabase(table []DatabaseKind, identifier, workDir string, fs Filesystem) databaseResolution {
	if path, ok := strings.CutPrefix(identifier, SQLitePrefix); ok {
		if path == "" {
			return databaseResolution{err: fmt.Errorf("sqlite identifier has no database path")}
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, path)
		}
		path = filepath.Clean(path)
		dir := filepath.Dir(path)
		if !fs.Exists(dir) {
			if err := fs.MkdirAll(dir); err != nil {
				return databaseResolution{err: fmt.Errorf("cannot create sqlite directory %s: %w", dir, err)}
			}
		}
		return databaseResolution{name: SQLitePrefix + path, paths: []string{dir}}
	}

	kind, ok := lookupDatabase(table, identifier)
	if !ok {
		return databaseResolution{err: fmt.Errorf("unknown database %q", identifier)}
	}
	var paths []string
	for _, candidate := range kind.Candidates {
		if fs.Exists(candidate) {
			paths = append(paths, candidate)
		}
	}
	if len(paths) == 0 {
		return databaseResolution{err: fmt.Errorf("no socket or data path found for %s", kind.Name)}
	}
	return databaseResolution{name: kind.Name, paths: paths}
}

func lookupDatabase(table []DatabaseKind, identifier string) (DatabaseKind, bool) {
	identifier = strings.ToLower(identifier)
	for _, kind := range table {
		if kind.Name == identifier {
			return kind, true
		}
		for _, alias := range kind.Aliases {
			if alias == identifier {
				return kind, true
			}
		}
	}
	return DatabaseKind{}, false
}
