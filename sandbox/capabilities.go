// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Backend names accepted by DetectBackend.
const (
	BackendAuto     = "auto"
	BackendBwrap    = "bwrap"
	BackendSeatbelt = "seatbelt"
)

// BackendOptions configures the backend DetectBackend returns.
type BackendOptions struct {
	Bwrap BwrapOptions
}

// hostProbe is what DetectBackend asks of the host. Tests replace it.
type hostProbe struct {
	goos       string
	bwrapPath  func() (string, error)
	stat       func(string) (os.FileInfo, error)
	readSysctl func(string) ([]byte, error)
}

var defaultProbe = hostProbe{
	goos:       runtime.GOOS,
	bwrapPath:  BwrapPath,
	stat:       os.Stat,
	readSysctl: os.ReadFile,
}

// DetectBackend selects an isolation backend. preference is "auto"
// (choose by platform), "bwrap", or "seatbelt". Failure to find a
// usable backend is a PreflightError.
func DetectBackend(preference string, options BackendOptions) (Backend, error) {
	return defaultProbe.detect(preference, options)
}

func (p hostProbe) detect(preference string, options BackendOptions) (Backend, error) {
	if preference == "" || preference == BackendAuto {
		switch p.goos {
		case "linux":
			preference = BackendBwrap
		case "darwin":
			preference = BackendSeatbelt
		default:
			return nil, &PreflightError{Check: "backend", Err: fmt.Errorf("no isolation backend for %s", p.goos)}
		}
	}

	switch preference {
	case BackendBwrap:
		path, err := p.bwrapPath()
		if err != nil {
			return nil, &PreflightError{Check: "backend", Err: err}
		}
		if reason := p.userNamespaceReason(); reason != "" {
			return nil, &PreflightError{Check: "backend", Err: errors.New(reason)}
		}
		return NewBwrapBackend(path, options.Bwrap), nil

	case BackendSeatbelt:
		if _, err := p.stat(SandboxExecPath); err != nil {
			return nil, &PreflightError{Check: "backend", Err: fmt.Errorf("sandbox-exec not found: %w", err)}
		}
		return NewSeatbeltBackend(SandboxExecPath), nil

	default:
		return nil, &PreflightError{Check: "backend", Err: fmt.Errorf("unknown backend %q", preference)}
	}
}

// userNamespaceReason returns why unprivileged user namespaces are
// unavailable, or "" when the sysctl does not forbid them. A missing
// sysctl usually means they are allowed.
func (p hostProbe) userNamespaceReason() string {
	data, err := p.readSysctl("/proc/sys/kernel/unprivileged_userns_clone")
	if err == nil && strings.TrimSpace(string(data)) == "0" {
		return "unprivileged user namespaces not enabled (set kernel.unprivileged_userns_clone=1)"
	}
	return ""
}
