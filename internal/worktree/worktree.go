// Package worktree is a thin process-invocation wrapper around `git
// worktree`: it creates and removes an isolated working copy of a source
// tree for a single prompt. It holds no state of its own — the orchestrator
// records the returned path on the prompt and is responsible for cleanup.
package worktree

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

func readGitFile(worktreePath string) (string, error) {
	data, err := os.ReadFile(filepath.Join(worktreePath, ".git"))
	if err != nil {
		return "", fmt.Errorf("worktree: reading %s/.git: %w", worktreePath, err)
	}
	return string(data), nil
}

// IsRepo reports whether dir is inside a git working tree.
func IsRepo(ctx context.Context, dir string) bool {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--git-dir")
	cmd.Dir = dir
	return cmd.Run() == nil
}

// Create adds a worktree at sourceRepo's current HEAD, rooted at destDir,
// checked out onto a new local branch so the worktree's commits have
// somewhere to push to. destDir's parent must already exist.
func Create(ctx context.Context, sourceRepo, destDir, branch string) (string, error) {
	absRepo, err := filepath.Abs(sourceRepo)
	if err != nil {
		return "", fmt.Errorf("worktree: resolving repo path: %w", err)
	}

	head := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
	head.Dir = absRepo
	out, err := head.Output()
	if err != nil {
		return "", fmt.Errorf("worktree: resolving HEAD of %s: %w", absRepo, err)
	}
	sha := strings.TrimSpace(string(out))

	add := exec.CommandContext(ctx, "git", "worktree", "add", "-b", branch, destDir, sha)
	add.Dir = absRepo
	if out, err := add.CombinedOutput(); err != nil {
		return "", fmt.Errorf("worktree: creating %s: %w: %s", destDir, err, strings.TrimSpace(string(out)))
	}
	return destDir, nil
}

// Push pushes worktreePath's checked-out branch to its origin remote,
// creating the upstream tracking ref so a pull request can reference it.
func Push(ctx context.Context, worktreePath string) error {
	cmd := exec.CommandContext(ctx, "git", "push", "-u", "origin", "HEAD")
	cmd.Dir = worktreePath
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("worktree: pushing %s: %w: %s", worktreePath, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Remove force-removes the worktree at path with `git worktree remove
// --force` run in sourceRepo, which also deletes its administrative files
// there so a later `git worktree list` does not show it.
func Remove(ctx context.Context, sourceRepo, path string) error {
	rm := exec.CommandContext(ctx, "git", "worktree", "remove", "--force", path)
	rm.Dir = sourceRepo
	if out, err := rm.CombinedOutput(); err != nil {
		return fmt.Errorf("worktree: removing %s: %w: %s", path, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// SourceRepo extracts the main repository path from a worktree's `.git`
// file, which contains a line of the form `gitdir: <repo>/.git/worktrees/<name>`.
func SourceRepo(worktreePath string) (string, error) {
	data, err := readGitFile(worktreePath)
	if err != nil {
		return "", err
	}
	const prefix = "gitdir: "
	if !strings.HasPrefix(data, prefix) {
		return "", fmt.Errorf("worktree: %s/.git has unexpected format", worktreePath)
	}
	gitDir := strings.TrimSpace(data[len(prefix):])
	idx := strings.LastIndex(gitDir, string(filepath.Separator)+".git"+string(filepath.Separator))
	if idx == -1 {
		return "", fmt.Errorf("worktree: could not locate source repo from %s", gitDir)
	}
	return gitDir[:idx], nil
}
