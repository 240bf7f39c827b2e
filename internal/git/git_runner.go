package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

// CLIRunner implements Runner using the git CLI.
type CLIRunner struct {
	workDir string
	retry   LockRetryConfig
	logger  zerolog.Logger
}

// NewRunner creates a CLIRunner for workDir. It returns ErrNotGitRepo when
// workDir is not inside a git work tree.
func NewRunner(ctx context.Context, workDir string, logger zerolog.Logger) (*CLIRunner, error) {
	if workDir == "" {
		return nil, fmt.Errorf("work directory cannot be empty: %w", overseererrors.ErrEmptyValue)
	}

	r := &CLIRunner{workDir: workDir, retry: DefaultLockRetryConfig(), logger: logger}
	if _, err := RunCommand(ctx, workDir, "rev-parse", "--git-dir"); err != nil {
		return nil, fmt.Errorf("%w: %w", overseererrors.ErrNotGitRepo, err)
	}
	return r, nil
}

// Status returns the current working tree status.
func (r *CLIRunner) Status(ctx context.Context) (*Status, error) {
	output, err := r.runGitCommand(ctx, "status", "--porcelain", "-uall", "--branch")
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	return parseGitStatus(output), nil
}

// Add stages the given paths.
func (r *CLIRunner) Add(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"add", "--"}, paths...)
	if _, err := r.runGitCommand(ctx, args...); err != nil {
		return fmt.Errorf("failed to add files: %w", err)
	}
	return nil
}

// Commit creates a commit with the given message.
func (r *CLIRunner) Commit(ctx context.Context, message string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("commit message cannot be empty: %w", overseererrors.ErrEmptyValue)
	}
	// Checkpoints skip repository hooks.
	if _, err := r.runGitCommand(ctx, "commit", "--no-verify", "--cleanup=strip", "-m", message); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Head returns the revision of HEAD.
func (r *CLIRunner) Head(ctx context.Context) (string, error) {
	out, err := r.runGitCommand(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return out, nil
}

func (r *CLIRunner) runGitCommand(ctx context.Context, args ...string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return RunWithLockRetry(ctx, r.retry, r.logger, func(ctx context.Context) (string, error) {
		return RunCommand(ctx, r.workDir, args...)
	})
}

// parseGitStatus parses `git status --porcelain --branch` output.
func parseGitStatus(output string) *Status {
	status := &Status{
		Staged:    []FileChange{},
		Unstaged:  []FileChange{},
		Untracked: []string{},
	}

	for _, line := range strings.Split(output, "\n") {
		if len(line) < 2 {
			continue
		}

		// ## branch...origin/branch [ahead N]
		if strings.HasPrefix(line, "## ") {
			branch := strings.TrimPrefix(line, "## ")
			status.Branch = strings.SplitN(branch, "...", 2)[0]
			continue
		}
		if len(line) < 4 {
			continue
		}

		indexStatus := line[0]
		workTreeStatus := line[1]
		path := strings.TrimSpace(line[3:])

		var oldPath string
		if strings.Contains(path, " -> ") {
			parts := strings.SplitN(path, " -> ", 2)
			oldPath = parts[0]
			path = parts[1]
		}

		if indexStatus == '?' && workTreeStatus == '?' {
			status.Untracked = append(status.Untracked, path)
			continue
		}
		if indexStatus != ' ' && indexStatus != '?' {
			status.Staged = append(status.Staged, FileChange{Path: path, Status: ChangeType(string(indexStatus)), OldPath: oldPath})
		}
		if workTreeStatus != ' ' && workTreeStatus != '?' {
			status.Unstaged = append(status.Unstaged, FileChange{Path: path, Status: ChangeType(string(workTreeStatus)), OldPath: oldPath})
		}
	}

	return status
}

var _ Runner = (*CLIRunner)(nil)
