package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

// createTestGitRepo initializes a temporary git repository for testing.
func createTestGitRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()

	cmd := exec.CommandContext(context.Background(), "git", "init")
	cmd.Dir = dir
	if err := cmd.Run(); err != nil {
		t.Fatalf("failed to init git repo: %v", err)
	}

	_ = exec.CommandContext(context.Background(), "git", "-C", dir, "config", "user.email", "test@example.com").Run() // #nosec G204
	_ = exec.CommandContext(context.Background(), "git", "-C", dir, "config", "user.name", "Test User").Run()         // #nosec G204
	_ = exec.CommandContext(context.Background(), "git", "-C", dir, "config", "commit.gpgsign", "false").Run()        // #nosec G204

	return dir
}

func TestRunCommand_Success(t *testing.T) {
	dir := createTestGitRepo(t)

	output, err := RunCommand(context.Background(), dir, "rev-parse", "--git-dir")

	require.NoError(t, err)
	assert.Equal(t, ".git", output)
}

func TestRunCommand_WithStderr(t *testing.T) {
	dir := createTestGitRepo(t)

	_, err := RunCommand(context.Background(), dir, "show", "nonexistent-commit-hash")

	require.ErrorIs(t, err, overseererrors.ErrGitOperation)
	assert.Contains(t, err.Error(), "git show failed")
}

func TestRunCommand_NoArgs(t *testing.T) {
	_, err := RunCommand(context.Background(), t.TempDir())
	require.ErrorIs(t, err, overseererrors.ErrEmptyValue)
}

func TestNewRunner_NotARepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	_, err := NewRunner(context.Background(), t.TempDir(), zerolog.Nop())
	require.ErrorIs(t, err, overseererrors.ErrNotGitRepo)
}

func TestCLIRunner_StatusAddCommit(t *testing.T) {
	ctx := context.Background()
	dir := createTestGitRepo(t)
	r, err := NewRunner(ctx, dir, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o600))

	status, err := r.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go"}, status.Untracked)
	assert.False(t, status.IsClean())

	require.NoError(t, r.Add(ctx, []string{"main.go"}))
	status, err = r.Status(ctx)
	require.NoError(t, err)
	require.True(t, status.HasStagedChanges())
	assert.Equal(t, ChangeAdded, status.Staged[0].Status)

	require.NoError(t, r.Commit(ctx, "initial"))
	head, err := r.Head(ctx)
	require.NoError(t, err)
	assert.Len(t, head, 40)

	status, err = r.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.IsClean())

	require.ErrorIs(t, r.Commit(ctx, "  "), overseererrors.ErrEmptyValue)
	require.NoError(t, r.Add(ctx, nil))
}

func TestParseGitStatus(t *testing.T) {
	out := "## main...origin/main [ahead 1]\n" +
		"M  staged.go\n" +
		" M unstaged.go\n" +
		"MM both.go\n" +
		"R  old.go -> new.go\n" +
		"?? fresh.go\n"

	s := parseGitStatus(out)

	assert.Equal(t, "main", s.Branch)
	require.Len(t, s.Staged, 3)
	assert.Equal(t, "new.go", s.Staged[2].Path)
	assert.Equal(t, "old.go", s.Staged[2].OldPath)
	require.Len(t, s.Unstaged, 2)
	assert.Equal(t, []string{"fresh.go"}, s.Untracked)
	assert.True(t, s.Touches("both.go"))
	assert.True(t, s.Touches("fresh.go"))
	assert.False(t, s.Touches("other.go"))
}
