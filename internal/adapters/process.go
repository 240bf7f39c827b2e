// Package adapters connects the control core to the outside world: external
// planner and patch generator programs, the operator's instruction inbox and
// the billing confirmation policy.
package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mrz1836/overseer/internal/executor"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
	"github.com/mrz1836/overseer/internal/logging"
)

// maxResponseBytes caps a collaborator's JSON answer.
const maxResponseBytes = 4 * 1024 * 1024

// maxStderrRunes caps the stderr quoted in an error.
const maxStderrRunes = 500

// ProcessOption configures a process-backed collaborator.
type ProcessOption func(*process)

// WithRunner replaces the process runner.
func WithRunner(r executor.CommandRunner) ProcessOption {
	return func(p *process) { p.runner = r }
}

// WithTimeout bounds each call. Zero leaves only the caller's deadline.
func WithTimeout(d time.Duration) ProcessOption {
	return func(p *process) { p.timeout = d }
}

// WithDir sets the working directory of the program.
func WithDir(dir string) ProcessOption {
	return func(p *process) { p.dir = dir }
}

// process runs a program that reads one JSON document on stdin and answers
// with one JSON document on stdout.
type process struct {
	argv    []string
	dir     string
	timeout time.Duration
	runner  executor.CommandRunner
}

func newProcess(argv []string, opts []ProcessOption) process {
	p := process{argv: argv, runner: &executor.ProcessRunner{}}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

func (p process) call(ctx context.Context, in, out any) error {
	if len(p.argv) == 0 {
		return overseererrors.Wrap(overseererrors.ErrEmptyValue, "collaborator command")
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	res, err := p.runner.Run(ctx, executor.Invocation{
		Argv:           p.argv,
		Dir:            p.dir,
		MaxOutputBytes: maxResponseBytes,
		Stdin:          payload,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", p.argv[0], ctxErr)
		}
		return fmt.Errorf("%s exited %d: %w: %s", p.argv[0], res.ExitCode, err,
			logging.Truncate(strings.TrimSpace(res.Stderr), maxStderrRunes))
	}
	if res.Truncated {
		return fmt.Errorf("%s answered with more than %d bytes", p.argv[0], maxResponseBytes)
	}
	body := strings.TrimSpace(res.Stdout)
	if body == "" {
		return fmt.Errorf("%s answered with no output", p.argv[0])
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("decode %s answer: %w", p.argv[0], err)
	}
	return nil
}
