package config

import (
	"regexp"

	"github.com/robfig/cron/v3"

	"github.com/mrz1836/overseer/internal/errors"
)

// Validate checks the configuration for invalid values.
// It returns an error describing the first invalid field found.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.ErrConfigNil
	}

	if err := validateSchedulerConfig(&cfg.Scheduler); err != nil {
		return err
	}
	if err := validateBillingConfig(&cfg.Billing); err != nil {
		return err
	}
	if err := validateExecutorConfig(&cfg.Executor); err != nil {
		return err
	}
	if err := validateSelfModConfig(&cfg.SelfMod); err != nil {
		return err
	}
	if err := validateNotifyConfig(&cfg.Notify); err != nil {
		return err
	}
	if err := validateStorageConfig(&cfg.Storage); err != nil {
		return err
	}
	return validatePlannerConfig(&cfg.Planner)
}

func validateSchedulerConfig(cfg *SchedulerConfig) error {
	if cfg.Interval <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidScheduler, "scheduler.interval must be positive, got %s", cfg.Interval)
	}
	if cfg.Backoff <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidScheduler, "scheduler.backoff must be positive, got %s", cfg.Backoff)
	}
	if cfg.SummaryEvery < 0 {
		return errors.Wrapf(errors.ErrConfigInvalidScheduler, "scheduler.summary_every must be non-negative, got %d", cfg.SummaryEvery)
	}
	if cfg.DegradedAfter < 1 {
		return errors.Wrapf(errors.ErrConfigInvalidScheduler, "scheduler.degraded_after must be at least 1, got %d", cfg.DegradedAfter)
	}
	if cfg.MaxCommands < 1 {
		return errors.Wrapf(errors.ErrConfigInvalidScheduler, "scheduler.max_commands must be at least 1, got %d", cfg.MaxCommands)
	}
	if cfg.HistoryWindow < 0 {
		return errors.Wrapf(errors.ErrConfigInvalidScheduler, "scheduler.history_window must be non-negative, got %d", cfg.HistoryWindow)
	}
	if cfg.PlannerTimeout <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidScheduler, "scheduler.planner_timeout must be positive, got %s", cfg.PlannerTimeout)
	}
	if cfg.MaintenanceSchedule != "" {
		if _, err := cron.ParseStandard(cfg.MaintenanceSchedule); err != nil {
			return errors.Wrapf(errors.ErrConfigInvalidScheduler, "scheduler.maintenance_schedule %q: %v", cfg.MaintenanceSchedule, err)
		}
	}
	if cfg.PlanningEstimate.InputTokens < 0 || cfg.PlanningEstimate.OutputTokens < 0 {
		return errors.Wrap(errors.ErrConfigInvalidScheduler, "scheduler.planning_estimate token counts must be non-negative")
	}
	return nil
}

func validateThresholds(name string, t Thresholds, requireEscalate bool) error {
	if t.Warn <= 0 || t.Stop <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidBilling, "billing.%s thresholds must be positive, got warn=%v stop=%v", name, t.Warn, t.Stop)
	}
	if t.Warn >= t.Stop {
		return errors.Wrapf(errors.ErrConfigInvalidBilling, "billing.%s.warn (%v) must be below stop (%v)", name, t.Warn, t.Stop)
	}
	if t.Escalate == 0 && !requireEscalate {
		return nil
	}
	if t.Escalate <= t.Warn || t.Escalate >= t.Stop {
		return errors.Wrapf(errors.ErrConfigInvalidBilling,
			"billing.%s.escalate (%v) must lie strictly between warn (%v) and stop (%v)", name, t.Escalate, t.Warn, t.Stop)
	}
	return nil
}

func validateBillingConfig(cfg *BillingConfig) error {
	if err := validateThresholds("normal", cfg.Normal, false); err != nil {
		return err
	}
	if err := validateThresholds("special", cfg.Special, true); err != nil {
		return err
	}
	if cfg.SpecialCycleDays < 0 {
		return errors.Wrapf(errors.ErrConfigInvalidBilling, "billing.special_cycle_days must be non-negative, got %d", cfg.SpecialCycleDays)
	}
	if cfg.ConfirmTimeout <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidBilling, "billing.confirm_timeout must be positive, got %s", cfg.ConfirmTimeout)
	}
	if cfg.DefaultModel == "" {
		return errors.Wrap(errors.ErrConfigInvalidBilling, "billing.default_model must not be empty")
	}
	seen := make(map[string]bool, len(cfg.Pricing))
	for _, p := range cfg.Pricing {
		if p.Model == "" {
			return errors.Wrap(errors.ErrConfigInvalidBilling, "billing.pricing entries must name a model")
		}
		if p.InputPer1K < 0 || p.OutputPer1K < 0 {
			return errors.Wrapf(errors.ErrConfigInvalidBilling, "billing.pricing %q has a negative rate", p.Model)
		}
		if seen[p.Model] {
			return errors.Wrapf(errors.ErrConfigInvalidBilling, "billing.pricing lists %q twice", p.Model)
		}
		seen[p.Model] = true
	}
	if !seen[cfg.DefaultModel] {
		return errors.Wrapf(errors.ErrConfigInvalidBilling, "billing.default_model %q has no pricing entry", cfg.DefaultModel)
	}
	return nil
}

func validateExecutorConfig(cfg *ExecutorConfig) error {
	if cfg.Timeout <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidExecutor, "executor.timeout must be positive, got %s", cfg.Timeout)
	}
	if cfg.MaxOutputBytes <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidExecutor, "executor.max_output_bytes must be positive, got %d", cfg.MaxOutputBytes)
	}
	for _, c := range cfg.Categories {
		if !knownCategories[c] {
			return errors.Wrapf(errors.ErrConfigInvalidExecutor, "executor.categories: unknown category %q", c)
		}
	}
	for _, p := range cfg.ExtraDangerousPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return errors.Wrapf(errors.ErrConfigInvalidExecutor, "executor.extra_dangerous_patterns %q: %v", p, err)
		}
	}
	return nil
}

func validateSelfModConfig(cfg *SelfModConfig) error {
	if cfg.SourceRoot == "" {
		return errors.Wrap(errors.ErrConfigInvalidSelfMod, "selfmod.source_root must not be empty")
	}
	if len(cfg.TestCommand) == 0 {
		return errors.Wrap(errors.ErrConfigInvalidSelfMod, "selfmod.test_command must not be empty")
	}
	if cfg.TestTimeout <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidSelfMod, "selfmod.test_timeout must be positive, got %s", cfg.TestTimeout)
	}
	if cfg.MaxChangedLines < 1 {
		return errors.Wrapf(errors.ErrConfigInvalidSelfMod, "selfmod.max_changed_lines must be at least 1, got %d", cfg.MaxChangedLines)
	}
	if cfg.BackupRetention <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidSelfMod, "selfmod.backup_retention must be positive, got %s", cfg.BackupRetention)
	}
	return nil
}

func validateNotifyConfig(cfg *NotifyConfig) error {
	for name, d := range map[string]int64{
		"startup_cooldown":  int64(cfg.StartupCooldown),
		"summary_cooldown":  int64(cfg.SummaryCooldown),
		"degraded_cooldown": int64(cfg.DegradedCooldown),
		"budget_cooldown":   int64(cfg.BudgetCooldown),
	} {
		if d < 0 {
			return errors.Wrapf(errors.ErrConfigInvalidNotify, "notify.%s must be non-negative", name)
		}
	}
	if cfg.RatePerMinute < 0 {
		return errors.Wrapf(errors.ErrConfigInvalidNotify, "notify.rate_per_minute must be non-negative, got %d", cfg.RatePerMinute)
	}
	if cfg.RatePerMinute > 0 && cfg.Burst < 1 {
		return errors.Wrapf(errors.ErrConfigInvalidNotify, "notify.burst must be at least 1 when rate limiting, got %d", cfg.Burst)
	}
	return nil
}

func validateStorageConfig(cfg *StorageConfig) error {
	switch cfg.HistoryBackend {
	case HistoryBackendJSONL, HistoryBackendSQLite:
	default:
		return errors.Wrapf(errors.ErrConfigInvalidStorage, "storage.history_backend must be %q or %q, got %q",
			HistoryBackendJSONL, HistoryBackendSQLite, cfg.HistoryBackend)
	}
	if cfg.HistoryRetain < 1 {
		return errors.Wrapf(errors.ErrConfigInvalidStorage, "storage.history_retain must be at least 1, got %d", cfg.HistoryRetain)
	}
	if cfg.LockTimeout <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidStorage, "storage.lock_timeout must be positive, got %s", cfg.LockTimeout)
	}
	return nil
}

func validatePlannerConfig(cfg *PlannerConfig) error {
	switch cfg.Confirm {
	case ConfirmApprove, ConfirmDeny:
		return nil
	default:
		return errors.Wrapf(errors.ErrInvalidArgument, "planner.confirm must be %q or %q, got %q", ConfirmApprove, ConfirmDeny, cfg.Confirm)
	}
}
