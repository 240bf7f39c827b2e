// Package errors provides centralized error handling for overseer.
//
// This package defines sentinel errors used for programmatic error categorization
// throughout the control core. All error types can be checked using errors.Is().
// KindOf maps any error chain onto the closed set of failure kinds that
// records and notifications carry.
//
// IMPORTANT: This package MUST NOT import any other internal packages.
// Only standard library imports are allowed.
package errors

import "errors"

// Sentinel errors for the failure kinds of the control core.
var (
	// ErrSafetyViolation indicates that a command was rejected by the executor's
	// safety policy before any process was spawned.
	ErrSafetyViolation = errors.New("safety violation")

	// ErrBudgetExceeded indicates that today's spend reached the stop threshold
	// and metered calls are refused until rollover or an operator override.
	ErrBudgetExceeded = errors.New("budget exceeded")

	// ErrBudgetWarning indicates that spend crossed a warn or escalate threshold.
	// Admission is still granted once.
	ErrBudgetWarning = errors.New("budget warning")

	// ErrModificationRiskTooHigh indicates that a modification plan was assessed
	// as high risk and was not applied.
	ErrModificationRiskTooHigh = errors.New("modification risk too high")

	// ErrTestFailure indicates that verification failed after a modification was
	// applied and the change was rolled back.
	ErrTestFailure = errors.New("verification tests failed")

	// ErrBackupFailure indicates that snapshot creation failed before any write.
	ErrBackupFailure = errors.New("backup failed")

	// ErrCommandExecution indicates a non-zero exit, a timeout or a spawn failure.
	ErrCommandExecution = errors.New("command execution failed")

	// ErrNotificationDelivery indicates a transport failure in a notifier.
	ErrNotificationDelivery = errors.New("notification delivery failed")

	// ErrIterationCrash indicates an unexpected fault caught at the iteration boundary.
	ErrIterationCrash = errors.New("iteration crashed")

	// ErrPlannerFailure indicates that the external planner failed or returned
	// a decision that could not be decoded.
	ErrPlannerFailure = errors.New("planner failed")

	// ErrPersistence indicates that control state could not be written.
	ErrPersistence = errors.New("state persistence failed")
)

// Sentinel errors for configuration problems.
var (
	// ErrConfigNil indicates that a nil config was passed to validation.
	ErrConfigNil = errors.New("config is nil")

	// ErrConfigInvalidScheduler indicates an invalid scheduler configuration value.
	ErrConfigInvalidScheduler = errors.New("invalid scheduler configuration")

	// ErrConfigInvalidBilling indicates an invalid billing configuration value.
	ErrConfigInvalidBilling = errors.New("invalid billing configuration")

	// ErrConfigInvalidExecutor indicates an invalid executor configuration value.
	ErrConfigInvalidExecutor = errors.New("invalid executor configuration")

	// ErrConfigInvalidSelfMod indicates an invalid self-modification configuration value.
	ErrConfigInvalidSelfMod = errors.New("invalid self-modification configuration")

	// ErrConfigInvalidNotify indicates an invalid notification configuration value.
	ErrConfigInvalidNotify = errors.New("invalid notification configuration")

	// ErrConfigInvalidStorage indicates an invalid storage configuration value.
	ErrConfigInvalidStorage = errors.New("invalid storage configuration")
)

// Sentinel errors shared by stores and state machines.
var (
	// ErrLockTimedOut indicates that a file lock could not be acquired in time.
	ErrLockTimedOut = errors.New("lock acquisition timed out")

	// ErrModificationInProgress indicates that another modification holds the lock.
	ErrModificationInProgress = errors.New("modification already in progress")

	// ErrSchedulerRunning indicates that the loop was started twice.
	ErrSchedulerRunning = errors.New("scheduler already running")

	// ErrInvalidTransition indicates a state machine was asked to make a move
	// that its transition table does not allow.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrEmptyValue indicates that a required value was empty.
	ErrEmptyValue = errors.New("value cannot be empty")

	// ErrInvalidArgument indicates that an argument had an unacceptable value.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound indicates that a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCorruptState indicates that a persisted record could not be decoded.
	ErrCorruptState = errors.New("corrupt state file")

	// ErrPathOutsideRoot indicates that a path escapes its permitted root directory.
	ErrPathOutsideRoot = errors.New("path outside permitted root")

	// ErrGitOperation indicates that a git command failed.
	ErrGitOperation = errors.New("git operation failed")

	// ErrNotGitRepo indicates that a directory is not inside a git work tree.
	ErrNotGitRepo = errors.New("not a git repository")
)

// Sentinel errors for command-line input.
var (
	// ErrInvalidOutputFormat indicates an unsupported --output value.
	ErrInvalidOutputFormat = errors.New("invalid output format")
)

// UsageError marks an error caused by invalid command-line input. The CLI
// exits with status 2 for it.
type UsageError struct {
	Err error
}

// NewUsageError wraps err as invalid input.
func NewUsageError(err error) *UsageError {
	return &UsageError{Err: err}
}

func (e *UsageError) Error() string {
	return e.Err.Error()
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

// IsUsageError reports whether err was caused by invalid input.
func IsUsageError(err error) bool {
	var e *UsageError
	return errors.As(err, &e)
}
