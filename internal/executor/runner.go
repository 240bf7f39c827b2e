package executor

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/mrz1836/overseer/internal/constants"
	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

// Invocation is a validated argv ready to run.
type Invocation struct {
	Argv           []string
	Dir            string
	MaxOutputBytes int

	// Stdin is fed to the process when set.
	Stdin []byte
}

// RunOutput is what a CommandRunner captured.
type RunOutput struct {
	Stdout         string
	Stderr         string
	ExitCode       int
	Truncated      bool
	TruncatedBytes int64
}

// CommandRunner spawns processes. It is the only place a process is started,
// so tests can count spawns by injecting their own implementation.
type CommandRunner interface {
	// Run starts the invocation and waits for it. ctx carries the deadline;
	// cancelling it must terminate the process tree.
	Run(ctx context.Context, inv Invocation) (RunOutput, error)
}

// ProcessRunner implements CommandRunner with os/exec. Each process gets its
// own process group so cancellation kills every descendant.
type ProcessRunner struct {
	// WaitDelay bounds how long pipes are drained after the process is killed.
	WaitDelay time.Duration
}

// Run executes inv without a shell.
func (r *ProcessRunner) Run(ctx context.Context, inv Invocation) (RunOutput, error) {
	if len(inv.Argv) == 0 {
		return RunOutput{ExitCode: domain.ExitCodeUnavailable}, overseererrors.Wrap(overseererrors.ErrEmptyValue, "argv")
	}

	limit := inv.MaxOutputBytes
	if limit <= 0 {
		limit = constants.DefaultMaxOutputBytes
	}
	stdout := newLimitedWriter(limit)
	stderr := newLimitedWriter(limit)

	//nolint:gosec // argv has passed the safety policy or comes from trusted configuration
	cmd := exec.CommandContext(ctx, inv.Argv[0], inv.Argv[1:]...)
	cmd.Dir = inv.Dir
	if inv.Stdin != nil {
		cmd.Stdin = bytes.NewReader(inv.Stdin)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = constants.ProcessWaitDelay
	}
	configureProcessGroup(cmd)

	err := cmd.Run()

	out := RunOutput{
		Stdout:         stdout.String(),
		Stderr:         stderr.String(),
		ExitCode:       exitCode(err),
		Truncated:      stdout.Truncated() || stderr.Truncated(),
		TruncatedBytes: stdout.Dropped() + stderr.Dropped(),
	}
	return out, err
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return domain.ExitCodeUnavailable
}

var _ CommandRunner = (*ProcessRunner)(nil)
