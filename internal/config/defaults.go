package config

import "github.com/mrz1836/overseer/internal/constants"

// DefaultModel is the model used to price usage that names no known model.
const DefaultModel = "gpt-4.1-mini"

// DefaultPricing returns the built-in per-1K-token prices.
func DefaultPricing() []ModelPrice {
	return []ModelPrice{
		{Model: "gpt-4.1-mini", InputPer1K: 0.015, OutputPer1K: 0.060},
		{Model: "gpt-4", InputPer1K: 3.0, OutputPer1K: 6.0},
	}
}

// DefaultConfig returns a new Config with sensible default values.
// These defaults are applied when no configuration file is present
// or when specific values are not set.
func DefaultConfig() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			Interval:            constants.DefaultIterationInterval,
			Backoff:             constants.DefaultFailureBackoff,
			SummaryEvery:        constants.DefaultSummaryEvery,
			DegradedAfter:       constants.DefaultDegradedAfter,
			MaxCommands:         constants.DefaultMaxCommands,
			HistoryWindow:       constants.DefaultHistoryWindow,
			PlannerTimeout:      constants.DefaultPlannerTimeout,
			MaintenanceSchedule: constants.DefaultMaintenanceSchedule,
			InitialGoal:         "keep the host healthy and report anything unusual",
			PlanningEstimate: UsageEstimate{
				Model:        DefaultModel,
				InputTokens:  1500,
				OutputTokens: 500,
			},
		},
		Billing: BillingConfig{
			Normal: Thresholds{
				Warn: constants.DefaultNormalWarn,
				Stop: constants.DefaultNormalStop,
			},
			Special: Thresholds{
				Warn:     constants.DefaultSpecialWarn,
				Escalate: constants.DefaultSpecialEscalate,
				Stop:     constants.DefaultSpecialStop,
			},
			SpecialCycleDays: constants.DefaultSpecialCycleDays,
			ConfirmTimeout:   constants.DefaultConfirmTimeout,
			Currency:         "JPY",
			DefaultModel:     DefaultModel,
			Pricing:          DefaultPricing(),
		},
		Executor: ExecutorConfig{
			WorkDir:        "", // resolved to $OVERSEER_HOME/workspace
			Timeout:        constants.DefaultCommandTimeout,
			MaxOutputBytes: constants.DefaultMaxOutputBytes,
			Categories:     []string{"inspect", "status", "file", "network"},
			DeniedPaths:    []string{"/etc/shadow", "/etc/sudoers", "/root/.ssh", "/proc/kcore"},
		},
		SelfMod: SelfModConfig{
			SourceRoot:      ".",
			AutoApply:       true,
			AllowMedium:     false,
			TestCommand:     []string{"go", "test", "./..."},
			TestTimeout:     constants.DefaultTestTimeout,
			MaxChangedLines: constants.DefaultMaxChangedLines,
			ProtectedPaths:  []string{"go.mod", "go.sum", "internal/billing", "internal/executor"},
			GitCheckpoint:   false,
			BackupRetention: constants.DefaultBackupRetention,
			IncludeExts:     []string{".go"},
			SkipDirs:        []string{".git", "vendor", "node_modules", constants.OverseerHome},
			PatchEstimate: UsageEstimate{
				Model:        DefaultModel,
				InputTokens:  6000,
				OutputTokens: 2000,
			},
		},
		Notify: NotifyConfig{
			StartupCooldown:  constants.DefaultStartupCooldown,
			SummaryCooldown:  constants.DefaultSummaryCooldown,
			DegradedCooldown: constants.DefaultDegradedCooldown,
			BudgetCooldown:   constants.DefaultBudgetCooldown,
			RatePerMinute:    20,
			Burst:            5,
		},
		Storage: StorageConfig{
			StateDir:       "", // resolved to $OVERSEER_HOME/state
			HistoryBackend: HistoryBackendJSONL,
			HistoryRetain:  constants.DefaultHistoryRetain,
			LockTimeout:    constants.DefaultLockTimeout,
		},
		Planner: PlannerConfig{
			Confirm: ConfirmDeny,
		},
	}
}
