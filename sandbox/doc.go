// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandbox compiles a filesystem access policy for a development
// tool and hands the tool to an isolation backend.
//
// A [Policy] is an ordered list of [AccessRule] values over a
// [Baseline]. Order is the whole point: rules are evaluated
// last-applicable-wins, the way positional bind mounts compose, so a
// narrow grant placed after a broad restriction refines it and a
// restriction placed after a grant re-closes part of it. [Policy.Access]
// implements the evaluation rule and [Policy.Verify] checks the two
// ordering invariants every compiled policy must hold: the project
// directory's write grant comes after everything covering it, and the
// git hook directory's read-only rule comes after the project grant.
//
// [Compiler] builds a policy from static tables (system roots, scratch
// paths, package caches, application config) and a per-invocation
// request (writable paths, database identifiers). Host existence is
// queried through [Filesystem] so the compiler can be exercised against
// synthetic trees. Problems with individual entries produce [Warning]
// values, never errors.
//
// [Backend] is the strategy that renders a [Session] into an argv.
// [BwrapBackend] (Linux, bubblewrap) expresses both baselines and
// native bind-if-exists; [SeatbeltBackend] (macOS, sandbox-exec) only
// restricts writes, so it supports [DefaultReadOnly] alone. The
// compiler consults the backend's [Capabilities] and degrades
// [ReadWriteIfExists] itself when the backend cannot express it.
// [DetectBackend] picks a backend by probing the host.
//
// [Validator] runs preflight checks before anything is compiled.
// [Launcher] replaces the current process with the rendered invocation
// or prints it for --dry-run.
//
// [Oracle] runs a fixed catalog of write and read probes against a
// [Prober] and compares results with the [Expectations] table.
// [HostProber] probes the real filesystem from inside a session;
// [PolicyProber] evaluates a compiled policy directly and serves as the
// compiler's acceptance suite.
package sandbox
