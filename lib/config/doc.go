// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides the warden configuration record.
//
// The record is a single YAML file. Its location is resolved by
// [ResolvePath]: an explicit --config flag, else the WARDEN_CONFIG
// environment variable, else $XDG_CONFIG_HOME/warden/config.yaml
// (~/.config/warden/config.yaml when XDG_CONFIG_HOME is unset).
//
// Read contract: an explicitly named file must exist and parse. The
// default location is optional; when absent, [Default] values are used
// unchanged. A file that exists but fails to parse or validate is
// always an error. Fields omitted from the file keep their defaults.
//
// Write contract: [Config.Save] is the only writer. It replaces the
// file atomically (write temporary, fsync, rename) so a concurrent
// reader sees either the old or the new record, never a partial one.
// The CLI calls it only for --save-default, which records the default
// command used when no COMMAND is given. There is no other persisted
// state: nothing remembers the last command implicitly.
//
// Path fields undergo ${VAR} and ${VAR:-default} expansion after
// loading.
package config
