// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hookguard

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestGuard(t *testing.T, hooksDir string) *Guard {
	t.Helper()
	guard, err := New(Config{
		HooksDir: hooksDir,
		Settings: defaultSettings,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return guard
}

func TestEnsure_InstallsAndIsIdempotent(t *testing.T) {
	t.Parallel()

	hooksDir := filepath.Join(t.TempDir(), "hooks")
	guard := newTestGuard(t, hooksDir)

	first, err := guard.Ensure()
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if diff := cmp.Diff(HookNames, first.Installed); diff != "" {
		t.Errorf("installed mismatch (-want +got):\n%s", diff)
	}
	if len(first.Warnings) != 0 {
		t.Errorf("unexpected warnings: %+v", first.Warnings)
	}
	for _, name := range HookNames {
		path := filepath.Join(hooksDir, name)
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat %s: %v", path, err)
		}
		if info.Mode().Perm() != 0o755 {
			t.Errorf("%s mode = %v, want 0755", name, info.Mode().Perm())
		}
		content, _ := os.ReadFile(path)
		if !bytes.Equal(content, guard.Script(name)) {
			t.Errorf("%s content differs from the rendered script", name)
		}
	}

	second, err := guard.Ensure()
	if err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if len(second.Installed) != 0 || len(second.Warnings) != 0 {
		t.Errorf("second Ensure = installed %v, warnings %+v; want neither", second.Installed, second.Warnings)
	}
	for _, record := range second.Records {
		if !record.Installed || record.Foreign || record.Modified {
			t.Errorf("record %+v, want installed", record)
		}
	}

	leftovers, _ := filepath.Glob(filepath.Join(hooksDir, ".warden-hook-*"))
	if len(leftovers) != 0 {
		t.Errorf("temporary files left behind: %v", leftovers)
	}
}

func TestEnsure_LeavesForeignHookAlone(t *testing.T) {
	t.Parallel()

	hooksDir := t.TempDir()
	userHook := []byte("#!/bin/sh\nexec make lint\n")
	prePush := filepath.Join(hooksDir, "pre-push")
	if err := os.WriteFile(prePush, userHook, 0o700); err != nil {
		t.Fatal(err)
	}
	guard := newTestGuard(t, hooksDir)

	result, err := guard.Ensure()
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if diff := cmp.Diff([]string{"pre-commit", "pre-rebase"}, result.Installed); diff != "" {
		t.Errorf("installed mismatch (-want +got):\n%s", diff)
	}
	wantWarnings := []Warning{{
		Hook:    "pre-push",
		Path:    prePush,
		Message: "existing hook was not written by warden; leaving it in place",
	}}
	if diff := cmp.Diff(wantWarnings, result.Warnings); diff != "" {
		t.Errorf("warnings mismatch (-want +got):\n%s", diff)
	}

	content, _ := os.ReadFile(prePush)
	if !bytes.Equal(content, userHook) {
		t.Errorf("foreign hook was modified:\n%s", content)
	}
	info, _ := os.Stat(prePush)
	if info.Mode().Perm() != 0o700 {
		t.Errorf("foreign hook mode changed to %v", info.Mode().Perm())
	}
}

func TestEnsure_SymlinkIsForeign(t *testing.T) {
	t.Parallel()

	hooksDir := t.TempDir()
	guard := newTestGuard(t, hooksDir)

	// A symlink to a genuine warden script is still not ours to manage.
	target := filepath.Join(t.TempDir(), "shared-hook")
	if err := os.WriteFile(target, guard.Script("pre-commit"), 0o755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(hooksDir, "pre-commit")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}

	records, err := guard.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !records[0].Foreign {
		t.Errorf("symlinked pre-commit record = %+v, want foreign", records[0])
	}

	if _, err := guard.Ensure(); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if resolved, err := os.Readlink(link); err != nil || resolved != target {
		t.Errorf("symlink changed: %q, %v", resolved, err)
	}
}

func TestEnsure_ReportsModifiedHook(t *testing.T) {
	t.Parallel()

	hooksDir := t.TempDir()
	guard := newTestGuard(t, hooksDir)
	if _, err := guard.Ensure(); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	path := filepath.Join(hooksDir, "pre-rebase")
	tampered := bytes.Replace(guard.Script("pre-rebase"), []byte("exit 1"), []byte("exit 0"), 1)
	if err := os.WriteFile(path, tampered, 0o755); err != nil {
		t.Fatal(err)
	}

	result, err := guard.Ensure()
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if len(result.Installed) != 0 {
		t.Errorf("installed %v, want nothing", result.Installed)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Hook != "pre-rebase" {
		t.Fatalf("warnings = %+v, want one for pre-rebase", result.Warnings)
	}
	record := result.Records[2]
	if !record.Installed || !record.Modified || record.Foreign {
		t.Errorf("record = %+v, want installed and modified", record)
	}
	content, _ := os.ReadFile(path)
	if !bytes.Equal(content, tampered) {
		t.Error("modified hook was rewritten")
	}
}

func TestInstall_NeverClobbers(t *testing.T) {
	t.Parallel()

	hooksDir := t.TempDir()
	guard := newTestGuard(t, hooksDir)
	path := filepath.Join(hooksDir, "pre-commit")
	if err := os.WriteFile(path, []byte("winner\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	// Simulates losing the race after the absence check.
	installed, err := guard.install(path, guard.Script("pre-commit"))
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if installed {
		t.Error("install reported success over an existing file")
	}
	content, _ := os.ReadFile(path)
	if string(content) != "winner\n" {
		t.Errorf("existing file overwritten: %q", content)
	}

	installed, err = createExclusive(path, []byte("loser\n"))
	if err != nil || installed {
		t.Errorf("createExclusive = %v, %v; want false, nil", installed, err)
	}
}

func TestNew_RequiresAbsoluteDir(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{HooksDir: ".git/hooks", Settings: defaultSettings}); err == nil {
		t.Error("New with relative hooks directory should fail")
	}
}

// testRepo is a scratch git repository with warden's hooks installed.
type testRepo struct {
	t   *testing.T
	dir string
	env []string
}

func newTestRepo(t *testing.T, dir string) *testRepo {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	repo := &testRepo{
		t:   t,
		dir: dir,
		env: append(os.Environ(),
			"GIT_CONFIG_GLOBAL=/dev/null",
			"GIT_CONFIG_NOSYSTEM=1",
			"GIT_AUTHOR_NAME=Warden Test",
			"GIT_AUTHOR_EMAIL=warden@example.com",
			"GIT_COMMITTER_NAME=Warden Test",
			"GIT_COMMITTER_EMAIL=warden@example.com",
		),
	}
	repo.mustGit("init", "--quiet")
	repo.mustGit("symbolic-ref", "HEAD", "refs/heads/main")
	return repo
}

func (r *testRepo) git(args ...string) (string, error) {
	r.t.Helper()
	command := exec.Command("git", args...)
	command.Dir = r.dir
	command.Env = r.env
	output, err := command.CombinedOutput()
	return string(output), err
}

func (r *testRepo) mustGit(args ...string) string {
	r.t.Helper()
	output, err := r.git(args...)
	if err != nil {
		r.t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, output)
	}
	return output
}

func (r *testRepo) sparseFile(name string, size int64) {
	r.t.Helper()
	file, err := os.Create(filepath.Join(r.dir, name))
	if err != nil {
		r.t.Fatal(err)
	}
	defer file.Close()
	if err := file.Truncate(size); err != nil {
		r.t.Fatal(err)
	}
}

func (r *testRepo) installHooks() {
	r.t.Helper()
	guard := newTestGuard(r.t, filepath.Join(r.dir, ".git", "hooks"))
	if _, err := guard.Ensure(); err != nil {
		r.t.Fatalf("Ensure: %v", err)
	}
}

func TestPreCommit_RejectsOversizedBlob(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t, t.TempDir())
	repo.installHooks()

	repo.sparseFile("small.bin", 10<<20)
	repo.mustGit("add", "small.bin")
	repo.mustGit("commit", "--quiet", "-m", "small")

	repo.sparseFile("large.bin", 60<<20)
	repo.mustGit("add", "large.bin")
	output, err := repo.git("commit", "--quiet", "-m", "large")
	if err == nil {
		t.Fatal("commit of a 60 MiB blob should be rejected")
	}
	if !strings.Contains(output, "large.bin") || !strings.Contains(output, "50 MiB") {
		t.Errorf("rejection output = %q", output)
	}
	if log := repo.mustGit("log", "--format=%s"); strings.Contains(log, "large") {
		t.Errorf("rejected commit is in history:\n%s", log)
	}
}

func TestPreCommit_RejectsOversizedBlobWithQuotedPath(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t, t.TempDir())
	repo.installHooks()

	// Non-ASCII names are C-quoted by git diff unless core.quotePath
	// is off, so the size check must not depend on the printed path.
	repo.sparseFile("données.bin", 60<<20)
	repo.mustGit("add", "données.bin")
	output, err := repo.git("commit", "--quiet", "-m", "quoted")
	if err == nil {
		t.Fatal("commit of a 60 MiB blob with a non-ASCII name should be rejected")
	}
	if !strings.Contains(output, "donn") || !strings.Contains(output, "50 MiB") {
		t.Errorf("rejection output = %q", output)
	}
	if _, err := repo.git("rev-parse", "--verify", "--quiet", "HEAD"); err == nil {
		t.Error("rejected commit created HEAD")
	}
}

func TestPrePush_ProtectsBranches(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	remote := filepath.Join(root, "remote.git")
	work := filepath.Join(root, "work")
	if err := os.Mkdir(work, 0o755); err != nil {
		t.Fatal(err)
	}

	repo := newTestRepo(t, work)
	repo.mustGit("init", "--quiet", "--bare", remote)
	repo.mustGit("remote", "add", "origin", remote)
	repo.mustGit("commit", "--quiet", "--allow-empty", "-m", "first")
	repo.mustGit("push", "--quiet", "origin", "main")
	repo.installHooks()

	repo.mustGit("commit", "--quiet", "--allow-empty", "-m", "second")
	repo.mustGit("push", "--quiet", "origin", "main")

	repo.mustGit("commit", "--quiet", "--amend", "--allow-empty", "-m", "rewritten")
	output, err := repo.git("push", "--force", "origin", "main")
	if err == nil {
		t.Error("force push to main should be rejected")
	}
	if !strings.Contains(output, "non-fast-forward") {
		t.Errorf("force push output = %q", output)
	}

	output, err = repo.git("push", "origin", ":main")
	if err == nil {
		t.Error("deleting main should be rejected")
	}
	if !strings.Contains(output, "refusing to delete") {
		t.Errorf("delete output = %q", output)
	}

	repo.mustGit("checkout", "--quiet", "-b", "feature")
	repo.mustGit("push", "--quiet", "origin", "feature")
	repo.mustGit("commit", "--quiet", "--amend", "--allow-empty", "-m", "feature rewritten")
	repo.mustGit("push", "--quiet", "--force", "origin", "feature")
	repo.mustGit("push", "--quiet", "origin", ":feature")
}

func TestPreRebase_ProtectsBranches(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t, t.TempDir())
	repo.mustGit("commit", "--quiet", "--allow-empty", "-m", "first")
	repo.installHooks()
	repo.mustGit("remote", "add", "origin", filepath.Join(t.TempDir(), "remote.git"))
	repo.mustGit("checkout", "--quiet", "-b", "topic")
	hook := filepath.Join(repo.dir, ".git", "hooks", "pre-rebase")

	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"protected upstream", []string{"main"}, true},
		{"protected remote upstream", []string{"origin/master"}, true},
		{"protected remote-tracking ref", []string{"refs/remotes/origin/main"}, true},
		{"protected full branch ref", []string{"refs/heads/master"}, true},
		{"local branch ending in protected name", []string{"feature/main"}, false},
		{"local branch argument ending in protected name", []string{"develop", "feature/master"}, false},
		{"protected branch argument", []string{"topic", "main"}, true},
		{"unprotected", []string{"develop"}, false},
		{"unprotected explicit branch", []string{"develop", "topic"}, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			command := exec.Command(hook, test.args...)
			command.Dir = repo.dir
			command.Env = repo.env
			output, err := command.CombinedOutput()
			if test.wantErr != (err != nil) {
				t.Errorf("pre-rebase %v: err = %v, wantErr %v\n%s", test.args, err, test.wantErr, output)
			}
		})
	}

	// With no branch argument the current branch is checked.
	repo.mustGit("checkout", "--quiet", "main")
	command := exec.Command(hook, "develop")
	command.Dir = repo.dir
	command.Env = repo.env
	if output, err := command.CombinedOutput(); err == nil {
		t.Errorf("rebasing the checked-out main should be rejected\n%s", output)
	}
}
