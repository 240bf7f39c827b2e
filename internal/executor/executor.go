// Package executor validates planner-proposed commands against a safety policy
// and runs the survivors without a shell, capturing bounded output.
//
// Validation is pure: a rejected command never reaches the CommandRunner.
// Execution never fails past its own boundary; every failure is reported in
// the returned domain.CommandResult.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/overseer/internal/clock"
	"github.com/mrz1836/overseer/internal/constants"
	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
	"github.com/mrz1836/overseer/internal/fsutil"
	"github.com/mrz1836/overseer/internal/logging"
)

// logPreviewRunes bounds command output copied into log events.
const logPreviewRunes = 500

// Executor runs commands that pass its Policy.
type Executor struct {
	policy    *Policy
	runner    CommandRunner
	timeout   time.Duration
	maxOutput int
	clock     clock.Clock
	logger    zerolog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithRunner replaces the process runner (for testing).
func WithRunner(r CommandRunner) Option {
	return func(e *Executor) { e.runner = r }
}

// WithTimeout sets the per-command timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithMaxOutputBytes caps captured output per stream.
func WithMaxOutputBytes(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxOutput = n
		}
	}
}

// WithClock sets the clock used for result timestamps.
func WithClock(c clock.Clock) Option {
	return func(e *Executor) { e.clock = clock.OrReal(c) }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// New creates an Executor for policy.
func New(policy *Policy, opts ...Option) *Executor {
	e := &Executor{
		policy:    policy,
		runner:    &ProcessRunner{WaitDelay: constants.ProcessWaitDelay},
		timeout:   constants.DefaultCommandTimeout,
		maxOutput: constants.DefaultMaxOutputBytes,
		clock:     clock.RealClock{},
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the executor's safety policy.
func (e *Executor) Policy() *Policy {
	return e.policy
}

// Validate checks spec against the safety policy without side effects.
func (e *Executor) Validate(spec domain.CommandSpec) error {
	_, err := e.policy.Check(spec.Command)
	return err
}

// Execute validates and runs spec inside the sandbox root.
func (e *Executor) Execute(ctx context.Context, spec domain.CommandSpec) domain.CommandResult {
	started := e.clock.Now()
	log := e.logger.With().Str("command", logging.Truncate(spec.Command, 200)).Logger()

	argv, err := e.policy.Check(spec.Command)
	if err != nil {
		log.Warn().Err(err).Msg("command rejected by safety policy")
		return e.failure(spec, started, overseererrors.KindSafetyViolation, err.Error())
	}

	if err := os.MkdirAll(e.policy.Root(), fsutil.DirPerm); err != nil {
		return e.failure(spec, started, overseererrors.KindCommandExecutionError,
			fmt.Sprintf("prepare sandbox: %v", err))
	}

	result := e.run(ctx, spec, argv, e.policy.Root(), e.timeout, started)
	e.logResult(&log, result)
	return result
}

// RunTests runs a trusted argv in dir with an explicit timeout. The argv comes
// from configuration, not the planner, so the allow-list is not consulted.
func (e *Executor) RunTests(ctx context.Context, dir string, argv []string, timeout time.Duration) domain.CommandResult {
	started := e.clock.Now()
	spec := domain.CommandSpec{Command: strings.Join(argv, " "), Intent: "verify modification"}
	if len(argv) == 0 {
		return e.failure(spec, started, overseererrors.KindCommandExecutionError, "no test command configured")
	}
	if timeout <= 0 {
		timeout = constants.DefaultTestTimeout
	}

	log := e.logger.With().Str("command", spec.Command).Str("dir", dir).Logger()
	log.Info().Dur("timeout", timeout).Msg("running verification tests")

	result := e.run(ctx, spec, argv, dir, timeout, started)
	e.logResult(&log, result)
	return result
}

func (e *Executor) run(ctx context.Context, spec domain.CommandSpec, argv []string, dir string, timeout time.Duration, started time.Time) (result domain.CommandResult) {
	defer func() {
		if r := recover(); r != nil {
			result = e.failure(spec, started, overseererrors.KindCommandExecutionError, fmt.Sprintf("runner panic: %v", r))
		}
	}()

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, runErr := e.runner.Run(cmdCtx, Invocation{
		Argv:           argv,
		Dir:            dir,
		MaxOutputBytes: e.maxOutput,
	})

	completed := e.clock.Now()
	result = domain.CommandResult{
		Command:        spec.Command,
		Intent:         spec.Intent,
		Stdout:         out.Stdout,
		Stderr:         out.Stderr,
		ExitCode:       out.ExitCode,
		Truncated:      out.Truncated,
		TruncatedBytes: out.TruncatedBytes,
		StartedAt:      started,
		CompletedAt:    completed,
		DurationMs:     completed.Sub(started).Milliseconds(),
	}

	switch {
	case errors.Is(cmdCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		result.TimedOut = true
		result.ExitCode = domain.ExitCodeUnavailable
		result.Kind = overseererrors.KindCommandExecutionError
		result.Error = fmt.Sprintf("command timed out after %s", timeout)
	case ctx.Err() != nil:
		result.ExitCode = domain.ExitCodeUnavailable
		result.Kind = overseererrors.KindCommandExecutionError
		result.Error = fmt.Sprintf("command canceled: %v", ctx.Err())
	case runErr != nil && out.ExitCode > 0:
		result.Kind = overseererrors.KindCommandExecutionError
		result.Error = fmt.Sprintf("exit status %d", out.ExitCode)
	case runErr != nil:
		result.ExitCode = domain.ExitCodeUnavailable
		result.Kind = overseererrors.KindCommandExecutionError
		result.Error = fmt.Sprintf("failed to run: %v", runErr)
	case out.ExitCode != 0:
		result.Kind = overseererrors.KindCommandExecutionError
		result.Error = fmt.Sprintf("exit status %d", out.ExitCode)
	default:
		result.Success = true
	}
	return result
}

func (e *Executor) failure(spec domain.CommandSpec, started time.Time, kind overseererrors.Kind, msg string) domain.CommandResult {
	completed := e.clock.Now()
	return domain.CommandResult{
		Command:     spec.Command,
		Intent:      spec.Intent,
		ExitCode:    domain.ExitCodeUnavailable,
		Kind:        kind,
		Error:       msg,
		StartedAt:   started,
		CompletedAt: completed,
		DurationMs:  completed.Sub(started).Milliseconds(),
	}
}

func (e *Executor) logResult(log *zerolog.Logger, result domain.CommandResult) {
	if result.Success {
		log.Info().
			Int("exit_code", result.ExitCode).
			Int64("duration_ms", result.DurationMs).
			Bool("truncated", result.Truncated).
			Msg("command completed")
		return
	}
	log.Error().
		Str("kind", string(result.Kind)).
		Str("error", result.Error).
		Int("exit_code", result.ExitCode).
		Int64("duration_ms", result.DurationMs).
		Str("stderr", logging.Truncate(result.Stderr, logPreviewRunes)).
		Msg("command failed")
}
