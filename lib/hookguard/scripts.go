// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hookguard

import (
	"bytes"
	"embed"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/dustin/go-humanize"
	"github.com/zeebo/blake3"
	"mvdan.cc/sh/v3/syntax"
)

//go:embed hooks/*.sh.tmpl
var templateFiles embed.FS

const (
	// Marker identifies a hook file written by warden. Files without it
	// are foreign and never touched.
	Marker = "# warden-managed-hook"

	// digestPrefix starts the line carrying the hex BLAKE3 digest of
	// the script body.
	digestPrefix = "# warden-digest: "

	shebang = "#!/bin/sh"
)

// HookNames are the hooks warden manages, in installation order.
var HookNames = []string{"pre-commit", "pre-push", "pre-rebase"}

// digestKey is the BLAKE3 key for hook body digests: the ASCII bytes
// of "warden.hook" zero-padded to 32 bytes.
var digestKey = [32]byte{
	'w', 'a', 'r', 'd', 'e', 'n', '.', 'h', 'o', 'o', 'k', 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// branchPattern restricts protected branch names to characters that
// are inert inside a double-quoted shell word.
var branchPattern = regexp.MustCompile(`^[A-Za-z0-9._/-]+$`)

// Settings parameterize the rendered scripts.
type Settings struct {
	// ProtectedBranches may not be deleted, force-pushed, or rebased.
	ProtectedBranches []string

	// MaxFileSize is the largest staged blob pre-commit accepts, in
	// bytes.
	MaxFileSize uint64
}

type templateData struct {
	Branches string
	MaxBytes uint64
	MaxSize  string
}

// digest returns the hex keyed BLAKE3 digest of body.
func digest(body []byte) string {
	hasher, err := blake3.NewKeyed(digestKey[:])
	if err != nil {
		// NewKeyed only fails on a key that is not 32 bytes.
		panic("hookguard: blake3.NewKeyed: " + err.Error())
	}
	hasher.Write(body)
	return hex.EncodeToString(hasher.Sum(nil))
}

// RenderScripts renders every hook in HookNames and checks that each
// parses as a POSIX shell program. The result maps hook name to the
// complete file content, header included.
func RenderScripts(settings Settings) (map[string][]byte, error) {
	if len(settings.ProtectedBranches) == 0 {
		return nil, fmt.Errorf("no protected branches configured")
	}
	for _, branch := range settings.ProtectedBranches {
		if !branchPattern.MatchString(branch) {
			return nil, fmt.Errorf("protected branch %q contains characters outside [A-Za-z0-9._/-]", branch)
		}
	}
	if settings.MaxFileSize == 0 {
		return nil, fmt.Errorf("maximum file size must be positive")
	}

	data := templateData{
		Branches: strings.Join(settings.ProtectedBranches, " "),
		MaxBytes: settings.MaxFileSize,
		MaxSize:  humanize.IBytes(settings.MaxFileSize),
	}
	parser := syntax.NewParser(syntax.Variant(syntax.LangPOSIX))

	scripts := make(map[string][]byte, len(HookNames))
	for _, name := range HookNames {
		file := "hooks/" + name + ".sh.tmpl"
		tmpl, err := template.ParseFS(templateFiles, file)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", file, err)
		}
		var body bytes.Buffer
		if err := tmpl.Execute(&body, data); err != nil {
			return nil, fmt.Errorf("rendering %s: %w", name, err)
		}
		script := assemble(body.Bytes())
		if _, err := parser.Parse(bytes.NewReader(script), name); err != nil {
			return nil, fmt.Errorf("rendered %s hook is not valid POSIX shell: %w", name, err)
		}
		scripts[name] = script
	}
	return scripts, nil
}

// assemble prefixes body with the shebang, marker, and digest lines.
func assemble(body []byte) []byte {
	var script bytes.Buffer
	script.WriteString(shebang + "\n")
	script.WriteString(Marker + "\n")
	script.WriteString(digestPrefix + digest(body) + "\n")
	script.Write(body)
	return script.Bytes()
}

// header is what the first lines of a hook file say about it.
type header struct {
	managed bool
	intact  bool
}

// inspectContent classifies hook file content. The marker must appear
// in the first two lines; the digest line must follow it directly and
// cover everything after itself.
func inspectContent(content []byte) header {
	rest := content
	var lines []string
	for i := 0; i < 3 && len(rest) > 0; i++ {
		line, remaining, _ := bytes.Cut(rest, []byte("\n"))
		lines = append(lines, string(line))
		rest = remaining
	}

	markerLine := -1
	for i := 0; i < len(lines) && i < 2; i++ {
		if strings.TrimRight(lines[i], "\r") == Marker {
			markerLine = i
			break
		}
	}
	if markerLine < 0 {
		return header{}
	}
	if markerLine+1 >= len(lines) || !strings.HasPrefix(lines[markerLine+1], digestPrefix) {
		return header{managed: true}
	}

	// Body starts after the digest line.
	offset := 0
	for i := 0; i <= markerLine+1; i++ {
		offset += len(lines[i]) + 1
	}
	if offset > len(content) {
		offset = len(content)
	}
	want := strings.TrimPrefix(lines[markerLine+1], digestPrefix)
	return header{managed: true, intact: digest(content[offset:]) == want}
}
