package errors

import "errors"

// Kind classifies a failure for records, notifications and metrics.
type Kind string

// Failure kinds. The zero value means no failure.
const (
	KindNone                        Kind = ""
	KindSafetyViolation             Kind = "safety_violation"
	KindBudgetExceeded              Kind = "budget_exceeded"
	KindBudgetWarning               Kind = "budget_warning"
	KindModificationRiskTooHigh     Kind = "modification_risk_too_high"
	KindTestFailure                 Kind = "test_failure"
	KindBackupFailure               Kind = "backup_failure"
	KindCommandExecutionError       Kind = "command_execution_error"
	KindNotificationDeliveryFailure Kind = "notification_delivery_failure"
	KindIterationCrash              Kind = "iteration_crash"
	KindPlannerFailure              Kind = "planner_failure"
	KindPersistenceFailure          Kind = "persistence_failure"
)

// kindEntries is ordered: the first sentinel found in the chain wins.
//
//nolint:gochecknoglobals // Pre-built mapping
var kindEntries = []struct {
	err  error
	kind Kind
}{
	{ErrSafetyViolation, KindSafetyViolation},
	{ErrBudgetExceeded, KindBudgetExceeded},
	{ErrBudgetWarning, KindBudgetWarning},
	{ErrModificationRiskTooHigh, KindModificationRiskTooHigh},
	{ErrTestFailure, KindTestFailure},
	{ErrBackupFailure, KindBackupFailure},
	{ErrCommandExecution, KindCommandExecutionError},
	{ErrNotificationDelivery, KindNotificationDeliveryFailure},
	{ErrPlannerFailure, KindPlannerFailure},
	{ErrPersistence, KindPersistenceFailure},
	{ErrIterationCrash, KindIterationCrash},
}

// KindOf returns the failure kind for err. Errors that match no sentinel are
// classified as iteration crashes; a nil error has KindNone.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, entry := range kindEntries {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	return KindIterationCrash
}

// Sentinel returns the sentinel error for a kind, or nil for KindNone and
// unknown kinds.
func (k Kind) Sentinel() error {
	for _, entry := range kindEntries {
		if entry.kind == k {
			return entry.err
		}
	}
	return nil
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k == KindNone {
		return "none"
	}
	return string(k)
}
