package constants

// Log file names.
const (
	// CLILogFileName is the name of the rotating process log.
	// This file is located in ~/.overseer/logs/overseer.log
	CLILogFileName = "overseer.log"

	// LogMaxSizeMB is the size at which the log file rotates.
	LogMaxSizeMB = 10

	// LogMaxBackups is the number of rotated log files kept.
	LogMaxBackups = 5

	// LogMaxAgeDays is the age after which rotated log files are removed.
	LogMaxAgeDays = 30

	// LogCompress enables gzip compression of rotated log files.
	LogCompress = true
)

// Configuration file names.
const (
	// ConfigFileName is the name of both the global and project configuration files.
	ConfigFileName = "config.yaml"
)

// State file names.
const (
	GoalFileName         = "goal.json"
	GoalHistoryFileName  = "goal_history.jsonl"
	IterationsFileName   = "iterations.jsonl"
	HistoryDBFileName    = "history.db"
	AuditLogFileName     = "modifications.jsonl"
	ModifyLockFileName   = "modify.lock"
	InflightFileName     = "inflight.json"
	BackupManifestName   = "manifest.json"
	LedgerAnchorFileName = "anchor.json"
	InboxOffsetFileName  = "inbox.offset"
	LockFileSuffix       = ".lock"
)
