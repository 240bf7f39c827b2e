// Package config provides configuration management for overseer with layered precedence.
//
// Configuration sources are loaded in the following order (highest precedence first):
//  1. Environment variables (OVERSEER_* prefix, "." replaced by "_")
//  2. Project config (.overseer/config.yaml)
//  3. Global config (~/.overseer/config.yaml)
//  4. Built-in defaults
//
// IMPORTANT: This package may import internal/constants and internal/errors,
// but MUST NOT import internal/domain or other internal packages.
package config

import "time"

// Config is the root configuration structure for overseer.
type Config struct {
	// Scheduler controls the iteration loop.
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`

	// Billing controls spend admission.
	Billing BillingConfig `yaml:"billing" mapstructure:"billing"`

	// Executor controls the command safety policy and runner.
	Executor ExecutorConfig `yaml:"executor" mapstructure:"executor"`

	// SelfMod controls the self-modification engine.
	SelfMod SelfModConfig `yaml:"selfmod" mapstructure:"selfmod"`

	// Notify controls alert cooldowns and outbound rate.
	Notify NotifyConfig `yaml:"notify" mapstructure:"notify"`

	// Storage controls where control state is persisted.
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Planner configures the external collaborators.
	Planner PlannerConfig `yaml:"planner" mapstructure:"planner"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// SchedulerConfig contains settings for the iteration loop.
type SchedulerConfig struct {
	// Interval is the pause between successful iterations.
	// Default: 30s
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`

	// Backoff is the pause after a failed iteration.
	// Default: 60s
	Backoff time.Duration `yaml:"backoff" mapstructure:"backoff"`

	// SummaryEvery sends a summary notification every N iterations.
	// Default: 10
	SummaryEvery int `yaml:"summary_every" mapstructure:"summary_every"`

	// DegradedAfter is the number of consecutive same-kind failures that
	// trigger a degraded-mode alert.
	// Default: 3
	DegradedAfter int `yaml:"degraded_after" mapstructure:"degraded_after"`

	// MaxCommands caps the commands accepted from one decision.
	// Default: 10
	MaxCommands int `yaml:"max_commands" mapstructure:"max_commands"`

	// HistoryWindow is the number of recent iterations handed to the planner.
	// Default: 5
	HistoryWindow int `yaml:"history_window" mapstructure:"history_window"`

	// PlannerTimeout bounds one planning call.
	// Default: 2m
	PlannerTimeout time.Duration `yaml:"planner_timeout" mapstructure:"planner_timeout"`

	// MaintenanceSchedule is a standard five-field cron expression.
	// Default: "0 * * * *"
	MaintenanceSchedule string `yaml:"maintenance_schedule" mapstructure:"maintenance_schedule"`

	// InitialGoal is used when no goal has been persisted yet.
	InitialGoal string `yaml:"initial_goal" mapstructure:"initial_goal"`

	// PlanningEstimate is the expected usage of one planning call, used for admission.
	PlanningEstimate UsageEstimate `yaml:"planning_estimate" mapstructure:"planning_estimate"`
}

// UsageEstimate describes the expected token usage of a metered call.
type UsageEstimate struct {
	Model        string `yaml:"model" mapstructure:"model"`
	InputTokens  int    `yaml:"input_tokens" mapstructure:"input_tokens"`
	OutputTokens int    `yaml:"output_tokens" mapstructure:"output_tokens"`
}

// Thresholds is one day type's threshold set. Escalate is zero on normal days.
type Thresholds struct {
	Warn     float64 `yaml:"warn" mapstructure:"warn"`
	Escalate float64 `yaml:"escalate" mapstructure:"escalate"`
	Stop     float64 `yaml:"stop" mapstructure:"stop"`
}

// ModelPrice is the per-1K-token price of a model.
// Model names contain dots and cannot be used as viper map keys.
type ModelPrice struct {
	Model       string  `yaml:"model" mapstructure:"model"`
	InputPer1K  float64 `yaml:"input_per_1k" mapstructure:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k" mapstructure:"output_per_1k"`
}

// BillingConfig contains settings for the billing guard.
type BillingConfig struct {
	// Normal thresholds apply on ordinary days.
	// Default: warn 200, stop 300
	Normal Thresholds `yaml:"normal" mapstructure:"normal"`

	// Special thresholds apply on special days.
	// Default: warn 500, escalate 900, stop 1000
	Special Thresholds `yaml:"special" mapstructure:"special"`

	// SpecialCycleDays makes every Nth day after the anchor date special.
	// Zero disables special days.
	// Default: 6
	SpecialCycleDays int `yaml:"special_cycle_days" mapstructure:"special_cycle_days"`

	// ConfirmTimeout bounds a confirmation request. Silence counts as deny.
	// Default: 10m
	ConfirmTimeout time.Duration `yaml:"confirm_timeout" mapstructure:"confirm_timeout"`

	// Currency is the unit of all amounts, used in messages only.
	// Default: "JPY"
	Currency string `yaml:"currency" mapstructure:"currency"`

	// DefaultModel prices usage whose model is not listed in Pricing.
	// Default: "gpt-4.1-mini"
	DefaultModel string `yaml:"default_model" mapstructure:"default_model"`

	// Pricing lists per-1K-token prices by model.
	Pricing []ModelPrice `yaml:"pricing" mapstructure:"pricing"`
}

// ExecutorConfig contains settings for the command executor.
type ExecutorConfig struct {
	// WorkDir is the sandbox root. Commands run here and file operations
	// must stay inside it. Empty means $OVERSEER_HOME/workspace.
	WorkDir string `yaml:"work_dir" mapstructure:"work_dir"`

	// Timeout bounds one command.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// MaxOutputBytes caps captured stdout and stderr separately.
	// Default: 10000
	MaxOutputBytes int `yaml:"max_output_bytes" mapstructure:"max_output_bytes"`

	// Categories lists the enabled command categories.
	// Default: inspect, status, file, network
	Categories []string `yaml:"categories" mapstructure:"categories"`

	// DeniedPaths may never appear as an argument, even to read-only commands.
	DeniedPaths []string `yaml:"denied_paths" mapstructure:"denied_paths"`

	// ExtraDangerousPatterns are additional regular expressions rejected on the full command line.
	ExtraDangerousPatterns []string `yaml:"extra_dangerous_patterns" mapstructure:"extra_dangerous_patterns"`
}

// SelfModConfig contains settings for the self-modification engine.
type SelfModConfig struct {
	// SourceRoot is the tree the engine may modify.
	// Default: "."
	SourceRoot string `yaml:"source_root" mapstructure:"source_root"`

	// AutoApply permits applying low-risk plans without an operator.
	// Default: true
	AutoApply bool `yaml:"auto_apply" mapstructure:"auto_apply"`

	// AllowMedium permits auto-applying medium-risk plans.
	// Default: false
	AllowMedium bool `yaml:"allow_medium" mapstructure:"allow_medium"`

	// TestCommand is the argv of the verification test suite.
	// Default: ["go", "test", "./..."]
	TestCommand []string `yaml:"test_command" mapstructure:"test_command"`

	// TestTimeout bounds verification.
	// Default: 5m
	TestTimeout time.Duration `yaml:"test_timeout" mapstructure:"test_timeout"`

	// MaxChangedLines makes larger plans at least medium risk.
	// Default: 200
	MaxChangedLines int `yaml:"max_changed_lines" mapstructure:"max_changed_lines"`

	// ProtectedPaths are path prefixes whose modification is always high risk.
	ProtectedPaths []string `yaml:"protected_paths" mapstructure:"protected_paths"`

	// RulesFile optionally replaces the built-in YAML risk rules.
	RulesFile string `yaml:"rules_file" mapstructure:"rules_file"`

	// GitCheckpoint commits each successful modification.
	// Default: false
	GitCheckpoint bool `yaml:"git_checkpoint" mapstructure:"git_checkpoint"`

	// BackupRetention is how long snapshots are kept before maintenance prunes them.
	// Default: 168h
	BackupRetention time.Duration `yaml:"backup_retention" mapstructure:"backup_retention"`

	// IncludeExts limits whole-tree analysis to these file extensions.
	// Default: [".go"]
	IncludeExts []string `yaml:"include_exts" mapstructure:"include_exts"`

	// SkipDirs are directory names skipped by whole-tree analysis.
	SkipDirs []string `yaml:"skip_dirs" mapstructure:"skip_dirs"`

	// PatchEstimate is the expected usage of one patch generation call.
	PatchEstimate UsageEstimate `yaml:"patch_estimate" mapstructure:"patch_estimate"`
}

// NotifyConfig contains settings for the notification gate.
type NotifyConfig struct {
	StartupCooldown  time.Duration `yaml:"startup_cooldown" mapstructure:"startup_cooldown"`
	SummaryCooldown  time.Duration `yaml:"summary_cooldown" mapstructure:"summary_cooldown"`
	DegradedCooldown time.Duration `yaml:"degraded_cooldown" mapstructure:"degraded_cooldown"`
	BudgetCooldown   time.Duration `yaml:"budget_cooldown" mapstructure:"budget_cooldown"`

	// RatePerMinute caps outbound notifications. Zero disables the limit.
	// Default: 20
	RatePerMinute int `yaml:"rate_per_minute" mapstructure:"rate_per_minute"`

	// Burst is the number of notifications allowed at once.
	// Default: 5
	Burst int `yaml:"burst" mapstructure:"burst"`

	// Bell rings the terminal bell on stderr with each alert.
	// Default: false
	Bell bool `yaml:"bell" mapstructure:"bell"`
}

// StorageConfig contains settings for persisted state.
type StorageConfig struct {
	// StateDir holds the ledger, cooldowns, goal, history and audit log.
	// Empty means $OVERSEER_HOME/state.
	StateDir string `yaml:"state_dir" mapstructure:"state_dir"`

	// HistoryBackend is "jsonl" or "sqlite".
	// Default: "jsonl"
	HistoryBackend string `yaml:"history_backend" mapstructure:"history_backend"`

	// HistoryRetain is the number of iteration records kept by maintenance.
	// Default: 1000
	HistoryRetain int `yaml:"history_retain" mapstructure:"history_retain"`

	// LockTimeout bounds file lock acquisition.
	// Default: 5s
	LockTimeout time.Duration `yaml:"lock_timeout" mapstructure:"lock_timeout"`
}

// PlannerConfig configures the external collaborators.
type PlannerConfig struct {
	// Command is the argv of the planner program (JSON over stdin/stdout).
	Command []string `yaml:"command" mapstructure:"command"`

	// PatchCommand is the argv of the patch generator program.
	PatchCommand []string `yaml:"patch_command" mapstructure:"patch_command"`

	// Inbox is the JSON-lines file operators append instructions to.
	Inbox string `yaml:"inbox" mapstructure:"inbox"`

	// Confirm is the static confirmation policy: "approve" or "deny".
	// Default: "deny"
	Confirm string `yaml:"confirm" mapstructure:"confirm"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the address to serve /metrics on. Empty disables the endpoint.
	Listen string `yaml:"listen" mapstructure:"listen"`
}

// History backends.
const (
	HistoryBackendJSONL  = "jsonl"
	HistoryBackendSQLite = "sqlite"
)

// Confirmation policies.
const (
	ConfirmApprove = "approve"
	ConfirmDeny    = "deny"
)

// Command categories accepted in executor.categories.
var knownCategories = map[string]bool{
	"inspect":   true,
	"status":    true,
	"file":      true,
	"network":   true,
	"toolchain": true,
}
