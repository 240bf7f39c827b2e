// Package git records self-modification checkpoints in the source tree's
// git repository.
//
// Only the handful of porcelain commands a checkpoint needs are wrapped:
// status, add, commit and rev-parse. Every command runs with the source root
// as its working directory and never touches a remote.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

// RunCommand executes a git command in workDir and returns its trimmed stdout.
// Failures wrap ErrGitOperation and carry stderr.
func RunCommand(ctx context.Context, workDir string, args ...string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("git command: %w", overseererrors.ErrEmptyValue)
	}

	cmd := exec.CommandContext(ctx, "git", args...) //#nosec G204 -- args are constructed internally
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if stderr.Len() > 0 {
			return "", fmt.Errorf("git %s failed: %s: %w", args[0], strings.TrimSpace(stderr.String()), overseererrors.ErrGitOperation)
		}
		return "", fmt.Errorf("git %s failed: %w", args[0], overseererrors.ErrGitOperation)
	}

	return strings.TrimSpace(stdout.String()), nil
}
