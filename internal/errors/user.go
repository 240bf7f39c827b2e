package errors

import "errors"

// ErrorInfo holds user-facing message and suggested action for an error.
type ErrorInfo struct {
	// Message is the user-friendly error description.
	Message string
	// Action is a suggested action to resolve the issue (empty if none).
	Action string
}

// errorEntry pairs a sentinel error with its user-facing info.
type errorEntry struct {
	err  error
	info ErrorInfo
}

// errorInfoEntries maps sentinel errors to the explanation an operator sees in
// history and notifications. A slice keeps errors.Is traversal order stable.
//
//nolint:gochecknoglobals // Pre-built mapping for efficiency
var errorInfoEntries = []errorEntry{
	// ===================
	// Execution
	// ===================
	{
		err: ErrSafetyViolation,
		info: ErrorInfo{
			Message: "The command was rejected by the safety policy and was not run.",
			Action:  "Use an allowed program with permitted arguments, or enable its category in executor.categories.",
		},
	},
	{
		err: ErrCommandExecution,
		info: ErrorInfo{
			Message: "The command ran but did not succeed (non-zero exit, timeout or spawn failure).",
			Action:  "Inspect the captured stderr on the iteration record.",
		},
	},

	// ===================
	// Billing
	// ===================
	{
		err: ErrBudgetExceeded,
		info: ErrorInfo{
			Message: "Today's spend reached the stop threshold. Metered calls are paused until tomorrow.",
			Action:  "Run 'overseer billing override --amount N' to extend today's budget.",
		},
	},
	{
		err: ErrBudgetWarning,
		info: ErrorInfo{
			Message: "Today's spend crossed a warning threshold.",
			Action:  "Run 'overseer billing summary' to review spend.",
		},
	},

	// ===================
	// Self-modification
	// ===================
	{
		err: ErrModificationRiskTooHigh,
		info: ErrorInfo{
			Message: "The proposed code change was rated high risk and was not applied.",
			Action:  "Review the plan findings with 'overseer audit' and apply manually if appropriate.",
		},
	},
	{
		err: ErrTestFailure,
		info: ErrorInfo{
			Message: "Tests failed after the change was applied. All touched files were restored.",
			Action:  "Check the verification output in the modification audit log.",
		},
	},
	{
		err: ErrBackupFailure,
		info: ErrorInfo{
			Message: "A backup could not be created, so no file was modified.",
			Action:  "Check free disk space and permissions of the state directory.",
		},
	},
	{
		err: ErrModificationInProgress,
		info: ErrorInfo{
			Message: "Another modification is already being applied.",
			Action:  "Wait for it to finish. A stale lock clears when its process exits.",
		},
	},

	// ===================
	// Loop & collaborators
	// ===================
	{
		err: ErrPlannerFailure,
		info: ErrorInfo{
			Message: "The planner did not return a usable decision.",
			Action:  "Check planner.command and its stderr in the log file.",
		},
	},
	{
		err: ErrNotificationDelivery,
		info: ErrorInfo{
			Message: "A notification could not be delivered. The loop continued.",
			Action:  "",
		},
	},
	{
		err: ErrPersistence,
		info: ErrorInfo{
			Message: "Control state could not be saved.",
			Action:  "Check free disk space and permissions of storage.state_dir.",
		},
	},
	{
		err: ErrLockTimedOut,
		info: ErrorInfo{
			Message: "A state file is locked by another process.",
			Action:  "Make sure only one overseer loop runs against this state directory.",
		},
	},
	{
		err: ErrIterationCrash,
		info: ErrorInfo{
			Message: "An iteration failed unexpectedly and was skipped.",
			Action:  "Inspect the iteration record and the log file for the cause.",
		},
	},

	// ===================
	// Configuration
	// ===================
	{
		err: ErrConfigNil,
		info: ErrorInfo{
			Message: "No configuration was loaded.",
			Action:  "",
		},
	},
	{
		err: ErrConfigInvalidBilling,
		info: ErrorInfo{
			Message: "The billing configuration is invalid.",
			Action:  "Thresholds must be positive and ordered warn < escalate < stop.",
		},
	},
	{
		err: ErrConfigInvalidExecutor,
		info: ErrorInfo{
			Message: "The executor configuration is invalid.",
			Action:  "Check executor.work_dir, executor.timeout and executor.categories.",
		},
	},
}

// errorInfoMap provides O(1) lookup for direct sentinel error matches.
//
//nolint:gochecknoglobals // Pre-built mapping for O(1) lookup performance
var errorInfoMap = buildErrorInfoMap()

func buildErrorInfoMap() map[error]ErrorInfo {
	m := make(map[error]ErrorInfo, len(errorInfoEntries))
	for _, entry := range errorInfoEntries {
		m[entry.err] = entry.info
	}
	return m
}

// getErrorInfo looks up the ErrorInfo for a given error, trying a direct map hit
// first and errors.Is traversal second.
func getErrorInfo(err error) ErrorInfo {
	if info, ok := errorInfoMap[err]; ok {
		return info
	}
	for _, entry := range errorInfoEntries {
		if errors.Is(err, entry.err) {
			return entry.info
		}
	}
	return ErrorInfo{Message: err.Error()}
}

// UserMessage returns a human-readable explanation for err.
// For unrecognized errors, it returns the error's original message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	return getErrorInfo(err).Message
}

// Actionable returns a human-readable explanation along with a suggested action.
// The action is empty when there is nothing the operator can do.
func Actionable(err error) (message, action string) {
	if err == nil {
		return "", ""
	}
	info := getErrorInfo(err)
	return info.Message, info.Action
}

// Explain combines the explanation with the underlying error text, which is the
// form stored on records so an operator sees both why and what.
func Explain(err error) string {
	if err == nil {
		return ""
	}
	info := getErrorInfo(err)
	if info.Message == err.Error() {
		return info.Message
	}
	return info.Message + " (" + err.Error() + ")"
}
