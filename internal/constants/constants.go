// Package constants provides centralized constant values used throughout overseer.
// This package is the single source of truth for all shared constants and MUST NOT
// import any other internal packages.
package constants

import "time"

// Directory names used by overseer for organizing data.
const (
	// OverseerHome is the hidden directory name where overseer stores all its data.
	// This directory is created in the user's home directory.
	OverseerHome = ".overseer"

	// StateDir is the directory name where persisted control state is stored.
	StateDir = "state"

	// LogsDir is the directory name where log files are stored.
	LogsDir = "logs"

	// BillingDir holds the per-day ledger files.
	BillingDir = "billing"

	// CooldownsDir holds one cooldown record per alert class.
	CooldownsDir = "cooldowns"

	// HistoryDir holds the iteration history.
	HistoryDir = "history"

	// SelfModDir holds the modification audit log, backups and lock.
	SelfModDir = "selfmod"

	// BackupsDir is the directory under SelfModDir that holds backup snapshots.
	BackupsDir = "backups"
)

// Scheduler defaults.
const (
	// DefaultIterationInterval is the pause between successful iterations.
	DefaultIterationInterval = 30 * time.Second

	// DefaultFailureBackoff is the pause after a failed iteration.
	DefaultFailureBackoff = 60 * time.Second

	// DefaultSummaryEvery is the iteration cadence of summary notifications.
	DefaultSummaryEvery = 10

	// DefaultDegradedAfter is the number of consecutive same-kind failures
	// that trigger a degraded-mode alert.
	DefaultDegradedAfter = 3

	// DefaultMaxCommands caps the commands accepted from a single decision.
	DefaultMaxCommands = 10

	// DefaultHistoryWindow is the number of recent records handed to the planner.
	DefaultHistoryWindow = 5

	// DefaultPlannerTimeout bounds a single planning call.
	DefaultPlannerTimeout = 2 * time.Minute

	// DefaultMaintenanceSchedule runs housekeeping at the top of every hour.
	DefaultMaintenanceSchedule = "0 * * * *"

	// MaxExplanationLength caps the planner explanation stored on a record.
	MaxExplanationLength = 4000
)

// Executor defaults.
const (
	// DefaultCommandTimeout bounds a single planner-proposed command.
	DefaultCommandTimeout = 30 * time.Second

	// DefaultMaxOutputBytes caps captured output per stream.
	DefaultMaxOutputBytes = 10000

	// ProcessWaitDelay bounds how long output pipes are drained after a kill.
	ProcessWaitDelay = 2 * time.Second
)

// Self-modification defaults.
const (
	// DefaultTestTimeout bounds the verification test run.
	DefaultTestTimeout = 5 * time.Minute

	// DefaultMaxChangedLines is the change size above which a plan is at least medium risk.
	DefaultMaxChangedLines = 200

	// DefaultBackupRetention is how long backup snapshots are kept before pruning.
	DefaultBackupRetention = 7 * 24 * time.Hour

	// BackupTimestampFormat is appended to backed-up file stems.
	BackupTimestampFormat = "20060102_150405"
)

// Notification defaults.
const (
	// DefaultStartupCooldown suppresses repeated startup notices across restarts.
	DefaultStartupCooldown = 5 * time.Minute

	// DefaultSummaryCooldown suppresses duplicate summaries after a restart.
	DefaultSummaryCooldown = time.Minute

	// DefaultDegradedCooldown suppresses repeated degraded-mode alerts.
	DefaultDegradedCooldown = 30 * time.Minute

	// DefaultBudgetCooldown suppresses repeated budget warnings.
	DefaultBudgetCooldown = 15 * time.Minute
)

// Billing defaults. Amounts are in the configured currency.
const (
	DefaultNormalWarn      = 200.0
	DefaultNormalStop      = 300.0
	DefaultSpecialWarn     = 500.0
	DefaultSpecialEscalate = 900.0
	DefaultSpecialStop     = 1000.0

	// DefaultSpecialCycleDays makes every sixth day (counted from the anchor) a special day.
	DefaultSpecialCycleDays = 6

	// DefaultConfirmTimeout bounds a confirmation request; silence counts as deny.
	DefaultConfirmTimeout = 10 * time.Minute

	// LedgerDateFormat keys ledger files by local calendar day.
	LedgerDateFormat = "2006-01-02"
)

// Storage defaults.
const (
	// DefaultHistoryRetain is the number of iteration records kept by maintenance.
	DefaultHistoryRetain = 1000

	// DefaultLockTimeout bounds file lock acquisition.
	DefaultLockTimeout = 5 * time.Second

	// LockRetryInterval is the pause between lock attempts.
	LockRetryInterval = 50 * time.Millisecond
)
