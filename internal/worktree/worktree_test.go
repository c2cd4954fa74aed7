package worktree

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	run("init", "-q")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", ".")
	run("commit", "-q", "-m", "init")
	return dir
}

func TestIsRepo(t *testing.T) {
	repo := initRepo(t)
	if !IsRepo(context.Background(), repo) {
		t.Fatalf("expected %s to be detected as a git repo", repo)
	}
	if IsRepo(context.Background(), t.TempDir()) {
		t.Fatalf("expected non-repo dir to not be detected as a git repo")
	}
}

func TestCreateAndRemove(t *testing.T) {
	repo := initRepo(t)
	dest := filepath.Join(t.TempDir(), "wt")

	ctx := context.Background()
	path, err := Create(ctx, repo, dest, "clhorde/test-branch")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if path != dest {
		t.Fatalf("got %q, want %q", path, dest)
	}
	if _, err := os.Stat(filepath.Join(dest, "README.md")); err != nil {
		t.Fatalf("worktree missing checked-out file: %v", err)
	}

	if err := Remove(ctx, repo, dest); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("expected worktree directory removed")
	}
}

func TestPush(t *testing.T) {
	repo := initRepo(t)

	bare := t.TempDir()
	cmd := exec.Command("git", "init", "-q", "--bare", bare)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git init --bare: %v: %s", err, out)
	}
	remote := exec.Command("git", "remote", "add", "origin", bare)
	remote.Dir = repo
	if out, err := remote.CombinedOutput(); err != nil {
		t.Fatalf("git remote add: %v: %s", err, out)
	}

	ctx := context.Background()
	dest := filepath.Join(t.TempDir(), "wt")
	branch := "clhorde/test-push"
	if _, err := Create(ctx, repo, dest, branch); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := Push(ctx, dest); err != nil {
		t.Fatalf("Push: %v", err)
	}

	check := exec.Command("git", "rev-parse", "refs/heads/"+branch)
	check.Dir = bare
	if out, err := check.CombinedOutput(); err != nil {
		t.Fatalf("branch missing on remote after push: %v: %s", err, out)
	}
}

func TestSourceRepo(t *testing.T) {
	repo := initRepo(t)
	dest := filepath.Join(t.TempDir(), "wt")
	if _, err := Create(context.Background(), repo, dest, "clhorde/test-branch"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := SourceRepo(dest)
	if err != nil {
		t.Fatalf("SourceRepo: %v", err)
	}
	// Resolve symlinks so /tmp vs /private/tmp style differences don't fail the comparison.
	wantAbs, _ := filepath.EvalSymlinks(repo)
	gotAbs, _ := filepath.EvalSymlinks(got)
	if gotAbs != wantAbs {
		t.Fatalf("got %q, want %q", gotAbs, wantAbs)
	}
}
