package config

import (
	"context"
	stderrors "errors"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/mrz1836/overseer/internal/errors"
)

// newViperInstance creates a new Viper instance with the OVERSEER_ environment
// prefix, the key replacer and all defaults.
func newViperInstance() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("OVERSEER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func isConfigNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var configNotFoundErr viper.ConfigFileNotFoundError
	return stderrors.As(err, &configNotFoundErr)
}

// unmarshalAndValidate unmarshals viper config into Config struct and validates it.
func unmarshalAndValidate(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viperDecoderOption()); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if len(cfg.Billing.Pricing) == 0 {
		cfg.Billing.Pricing = DefaultPricing()
	}
	if err := Validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return &cfg, nil
}

// Load reads configuration from all available sources with proper precedence.
// Configuration is loaded in the following order (highest precedence first):
//  1. Environment variables (OVERSEER_* prefix)
//  2. Project config (.overseer/config.yaml)
//  3. Global config (~/.overseer/config.yaml)
//  4. Built-in defaults
//
// Missing config files are not an error.
func Load(ctx context.Context) (*Config, error) {
	global, err := GlobalConfigPath()
	if err != nil || !fileExists(global) {
		global = ""
	}
	project := ProjectConfigPath()
	if !fileExists(project) {
		project = ""
	}

	cfg, err := LoadFromPaths(ctx, project, global)
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Debug().
		Str("component", "config").
		Str("global_config", global).
		Str("project_config", project).
		Dur("scheduler.interval", cfg.Scheduler.Interval).
		Str("storage.history_backend", cfg.Storage.HistoryBackend).
		Msg("configuration loaded")

	return cfg, nil
}

// LoadFromPaths loads configuration from specific file paths.
//
// projectConfigPath is the path to project-level config (higher priority).
// globalConfigPath is the path to global config (lower priority).
// Either path can be empty to skip that level.
func LoadFromPaths(_ context.Context, projectConfigPath, globalConfigPath string) (*Config, error) {
	v := newViperInstance()

	if globalConfigPath != "" {
		v.SetConfigFile(globalConfigPath)
		if err := v.ReadInConfig(); err != nil && !isConfigNotFoundError(err) && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "failed to read global config: %s", globalConfigPath)
		}
	}

	if projectConfigPath != "" {
		v.SetConfigFile(projectConfigPath)
		if err := v.MergeInConfig(); err != nil && !isConfigNotFoundError(err) && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "failed to read project config: %s", projectConfigPath)
		}
	}

	return unmarshalAndValidate(v)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// setDefaults configures all default values on the Viper instance.
// Keys must match the YAML tag names exactly, and values must match DefaultConfig().
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("scheduler.interval", d.Scheduler.Interval.String())
	v.SetDefault("scheduler.backoff", d.Scheduler.Backoff.String())
	v.SetDefault("scheduler.summary_every", d.Scheduler.SummaryEvery)
	v.SetDefault("scheduler.degraded_after", d.Scheduler.DegradedAfter)
	v.SetDefault("scheduler.max_commands", d.Scheduler.MaxCommands)
	v.SetDefault("scheduler.history_window", d.Scheduler.HistoryWindow)
	v.SetDefault("scheduler.planner_timeout", d.Scheduler.PlannerTimeout.String())
	v.SetDefault("scheduler.maintenance_schedule", d.Scheduler.MaintenanceSchedule)
	v.SetDefault("scheduler.initial_goal", d.Scheduler.InitialGoal)
	v.SetDefault("scheduler.planning_estimate.model", d.Scheduler.PlanningEstimate.Model)
	v.SetDefault("scheduler.planning_estimate.input_tokens", d.Scheduler.PlanningEstimate.InputTokens)
	v.SetDefault("scheduler.planning_estimate.output_tokens", d.Scheduler.PlanningEstimate.OutputTokens)

	v.SetDefault("billing.normal.warn", d.Billing.Normal.Warn)
	v.SetDefault("billing.normal.escalate", d.Billing.Normal.Escalate)
	v.SetDefault("billing.normal.stop", d.Billing.Normal.Stop)
	v.SetDefault("billing.special.warn", d.Billing.Special.Warn)
	v.SetDefault("billing.special.escalate", d.Billing.Special.Escalate)
	v.SetDefault("billing.special.stop", d.Billing.Special.Stop)
	v.SetDefault("billing.special_cycle_days", d.Billing.SpecialCycleDays)
	v.SetDefault("billing.confirm_timeout", d.Billing.ConfirmTimeout.String())
	v.SetDefault("billing.currency", d.Billing.Currency)
	v.SetDefault("billing.default_model", d.Billing.DefaultModel)

	v.SetDefault("executor.work_dir", d.Executor.WorkDir)
	v.SetDefault("executor.timeout", d.Executor.Timeout.String())
	v.SetDefault("executor.max_output_bytes", d.Executor.MaxOutputBytes)
	v.SetDefault("executor.categories", d.Executor.Categories)
	v.SetDefault("executor.denied_paths", d.Executor.DeniedPaths)
	v.SetDefault("executor.extra_dangerous_patterns", []string{})

	v.SetDefault("selfmod.source_root", d.SelfMod.SourceRoot)
	v.SetDefault("selfmod.auto_apply", d.SelfMod.AutoApply)
	v.SetDefault("selfmod.allow_medium", d.SelfMod.AllowMedium)
	v.SetDefault("selfmod.test_command", d.SelfMod.TestCommand)
	v.SetDefault("selfmod.test_timeout", d.SelfMod.TestTimeout.String())
	v.SetDefault("selfmod.max_changed_lines", d.SelfMod.MaxChangedLines)
	v.SetDefault("selfmod.protected_paths", d.SelfMod.ProtectedPaths)
	v.SetDefault("selfmod.rules_file", "")
	v.SetDefault("selfmod.git_checkpoint", d.SelfMod.GitCheckpoint)
	v.SetDefault("selfmod.backup_retention", d.SelfMod.BackupRetention.String())
	v.SetDefault("selfmod.include_exts", d.SelfMod.IncludeExts)
	v.SetDefault("selfmod.skip_dirs", d.SelfMod.SkipDirs)
	v.SetDefault("selfmod.patch_estimate.model", d.SelfMod.PatchEstimate.Model)
	v.SetDefault("selfmod.patch_estimate.input_tokens", d.SelfMod.PatchEstimate.InputTokens)
	v.SetDefault("selfmod.patch_estimate.output_tokens", d.SelfMod.PatchEstimate.OutputTokens)

	v.SetDefault("notify.startup_cooldown", d.Notify.StartupCooldown.String())
	v.SetDefault("notify.summary_cooldown", d.Notify.SummaryCooldown.String())
	v.SetDefault("notify.degraded_cooldown", d.Notify.DegradedCooldown.String())
	v.SetDefault("notify.budget_cooldown", d.Notify.BudgetCooldown.String())
	v.SetDefault("notify.rate_per_minute", d.Notify.RatePerMinute)
	v.SetDefault("notify.burst", d.Notify.Burst)
	v.SetDefault("notify.bell", d.Notify.Bell)

	v.SetDefault("storage.state_dir", d.Storage.StateDir)
	v.SetDefault("storage.history_backend", d.Storage.HistoryBackend)
	v.SetDefault("storage.history_retain", d.Storage.HistoryRetain)
	v.SetDefault("storage.lock_timeout", d.Storage.LockTimeout.String())

	v.SetDefault("planner.command", []string{})
	v.SetDefault("planner.patch_command", []string{})
	v.SetDefault("planner.inbox", "")
	v.SetDefault("planner.confirm", d.Planner.Confirm)

	v.SetDefault("metrics.listen", "")
}

// viperDecoderOption returns the decoder option that converts duration strings
// and comma-separated lists during unmarshal.
func viperDecoderOption() viper.DecoderConfigOption {
	return viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	)
}
