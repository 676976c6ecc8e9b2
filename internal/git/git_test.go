package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// initRepo creates a fresh repository with local identity so commits work on
// machines without global git config.
func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	run(t, dir, "init")
	run(t, dir, "config", "user.email", "test@example.com")
	run(t, dir, "config", "user.name", "test")
	run(t, dir, "config", "commit.gpgsign", "false")
	return dir
}

func run(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %s: %v: %s", strings.Join(args, " "), err, out)
	}
}

func TestIsRepo(t *testing.T) {
	dir := initRepo(t)
	ctx := context.Background()

	if !IsRepo(ctx, dir) {
		t.Fatal("initialized repo not detected")
	}
	if IsRepo(ctx, t.TempDir()) {
		t.Fatal("plain directory reported as repo")
	}
}

func TestCommitAll(t *testing.T) {
	dir := initRepo(t)
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := CommitAll(ctx, dir, AutoCommitMessage); err != nil {
		t.Fatalf("commit: %v", err)
	}

	sha, err := HeadSHA(ctx, dir)
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if len(sha) != 40 {
		t.Fatalf("sha = %q, want 40 hex chars", sha)
	}

	out, err := exec.Command("git", "-C", dir, "log", "-1", "--format=%s").Output()
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(out)); got != AutoCommitMessage {
		t.Fatalf("commit subject = %q, want %q", got, AutoCommitMessage)
	}
}

func TestCommitAll_nothingToCommit(t *testing.T) {
	dir := initRepo(t)
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := CommitAll(ctx, dir, "first"); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := CommitAll(ctx, dir, "second"); err == nil {
		t.Fatal("expected error when the tree is clean")
	}
}

func TestHeadSHA_emptyRepo(t *testing.T) {
	dir := initRepo(t)
	if _, err := HeadSHA(context.Background(), dir); err == nil {
		t.Fatal("expected error before the first commit")
	}
}

func TestBranch(t *testing.T) {
	dir := initRepo(t)
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := CommitAll(ctx, dir, "first"); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if name := Branch(ctx, dir); name == "" {
		t.Fatal("expected a branch name on a fresh repo")
	}

	sha, err := HeadSHA(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	run(t, dir, "checkout", "--detach", sha)
	if name := Branch(ctx, dir); name != "" {
		t.Fatalf("detached head branch = %q, want empty", name)
	}
}

func TestDirtyFiles(t *testing.T) {
	dir := initRepo(t)
	ctx := context.Background()

	if n := DirtyFiles(ctx, dir); n != 0 {
		t.Fatalf("fresh repo dirty count = %d, want 0", n)
	}
	for _, name := range []string{"a.txt", "b.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if n := DirtyFiles(ctx, dir); n != 2 {
		t.Fatalf("dirty count = %d, want 2", n)
	}
	if n := DirtyFiles(ctx, t.TempDir()); n != 0 {
		t.Fatalf("non-repo dirty count = %d, want 0", n)
	}
}
