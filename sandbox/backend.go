// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

// Backend renders a Session into a concrete isolation invocation.
// Implementations are stateless apart from their resolved binary path
// and options.
type Backend interface {
	// Name identifies the backend ("bwrap", "seatbelt").
	Name() string

	// Path is the absolute path of the backend binary.
	Path() string

	// Capabilities describes what the backend can express. The
	// compiler consults it before emitting rules.
	Capabilities() Capabilities

	// Render returns the full argv for process replacement. argv[0]
	// is Path().
	Render(session *Session) ([]string, error)

	// Environ returns the environment of the backend process itself.
	Environ(session *Session) []string
}

// Capabilities describes what an isolation backend supports.
type Capabilities struct {
	// Name is the backend name.
	Name string

	// TryBind is true when the backend can bind a path only if it
	// exists at mount time. Without it the compiler resolves
	// existence up front.
	TryBind bool

	// Baselines lists the supported Baseline values.
	Baselines []Baseline

	// Namespaces is true when process, IPC, and UTS isolation are
	// available in addition to filesystem rules.
	Namespaces bool
}

// Supports reports whether baseline can be expressed by the backend.
func (c Capabilities) Supports(baseline Baseline) bool {
	for _, supported := range c.Baselines {
		if supported == baseline {
			return true
		}
	}
	return false
}
