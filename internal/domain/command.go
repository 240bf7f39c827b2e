package domain

import (
	"time"

	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

// ExitCodeUnavailable is recorded when a command never produced an exit status
// (rejected, failed to spawn, or killed on timeout).
const ExitCodeUnavailable = -1

// CommandSpec is a single shell action proposed by the planner.
type CommandSpec struct {
	// Command is the command line, tokenized without a shell.
	Command string `json:"command"`

	// Intent is the planner's stated purpose for the command.
	Intent string `json:"intent,omitempty"`
}

// CommandResult is the immutable outcome of executing one CommandSpec.
type CommandResult struct {
	Command string `json:"command"`
	Intent  string `json:"intent,omitempty"`

	// Success is true only for a validated command that exited zero in time.
	Success bool `json:"success"`

	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`

	// Kind classifies a failure; empty on success.
	Kind overseererrors.Kind `json:"kind,omitempty"`

	// Error is the human-readable explanation of a failure.
	Error string `json:"error,omitempty"`

	TimedOut       bool  `json:"timed_out,omitempty"`
	Truncated      bool  `json:"truncated,omitempty"`
	TruncatedBytes int64 `json:"truncated_bytes,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
}

// Rejected reports whether the command was refused by the safety policy.
func (r CommandResult) Rejected() bool {
	return r.Kind == overseererrors.KindSafetyViolation
}
