package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mrz1836/overseer/internal/adapters"
	"github.com/mrz1836/overseer/internal/billing"
	"github.com/mrz1836/overseer/internal/config"
	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
	"github.com/mrz1836/overseer/internal/executor"
	"github.com/mrz1836/overseer/internal/git"
	"github.com/mrz1836/overseer/internal/goal"
	"github.com/mrz1836/overseer/internal/history"
	"github.com/mrz1836/overseer/internal/notify"
	"github.com/mrz1836/overseer/internal/scheduler"
	"github.com/mrz1836/overseer/internal/selfmod"
)

// app holds the components built from one configuration. Every command
// builds one, uses what it needs and closes it.
type app struct {
	cfg      *config.Config
	stateDir string
	logger   zerolog.Logger

	guard    *billing.Guard
	executor *executor.Executor
	engine   *selfmod.Engine
	gate     *notify.Gate
	history  history.Store
	goals    *goal.Store
}

// loadConfig honors --config, falling back to the layered defaults.
func loadConfig(ctx context.Context, cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Load(ctx)
	}
	return config.LoadFromPaths(ctx, "", path)
}

// openApp loads the configuration and builds the components. Alerts are
// written to alerts in addition to the log.
func openApp(ctx context.Context, cmd *cobra.Command, alerts io.Writer) (*app, error) {
	logger := GetLogger()
	ctx = logger.WithContext(ctx)

	cfg, err := loadConfig(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg, logger, alerts)
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, alerts io.Writer) (*app, error) {
	stateDir, err := cfg.Storage.ResolveStateDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: create state directory: %w", overseererrors.ErrPersistence, err)
	}

	a := &app{cfg: cfg, stateDir: stateDir, logger: logger}

	if a.guard, err = newGuard(cfg, stateDir, logger); err != nil {
		return nil, err
	}
	if a.executor, err = newExecutor(cfg, logger); err != nil {
		return nil, err
	}
	a.gate = notify.NewGate(stateDir, newNotifier(cfg, logger, alerts),
		notify.WithLogger(logger),
		notify.WithLockTimeout(cfg.Storage.LockTimeout),
	)
	a.goals = goal.NewStore(stateDir)
	if a.history, err = history.Open(ctx, cfg.Storage.HistoryBackend, stateDir, cfg.Storage.LockTimeout); err != nil {
		return nil, err
	}
	if a.engine, err = newEngine(ctx, cfg, stateDir, a.guard, a.executor, logger); err != nil {
		_ = a.history.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the history store.
func (a *app) Close() error {
	return a.history.Close()
}

func newGuard(cfg *config.Config, stateDir string, logger zerolog.Logger) (*billing.Guard, error) {
	rates := make(map[string]billing.Rate, len(cfg.Billing.Pricing))
	for _, p := range cfg.Billing.Pricing {
		rates[p.Model] = billing.Rate{InputPer1K: p.InputPer1K, OutputPer1K: p.OutputPer1K}
	}
	pricing, err := billing.NewPricing(cfg.Billing.DefaultModel, rates)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", overseererrors.ErrConfigInvalidBilling, err)
	}

	ledger := billing.NewFileLedger(stateDir, cfg.Storage.LockTimeout)
	confirmer := adapters.NewStaticConfirmer(cfg.Planner.Confirm == config.ConfirmApprove, logger)
	return billing.NewGuard(ledger, pricing, billing.Config{
		Normal:           thresholds(cfg.Billing.Normal),
		Special:          thresholds(cfg.Billing.Special),
		SpecialCycleDays: cfg.Billing.SpecialCycleDays,
		ConfirmTimeout:   cfg.Billing.ConfirmTimeout,
		Currency:         cfg.Billing.Currency,
	}, billing.WithConfirmer(confirmer), billing.WithLogger(logger)), nil
}

func thresholds(t config.Thresholds) billing.Thresholds {
	return billing.Thresholds{Warn: t.Warn, Escalate: t.Escalate, Stop: t.Stop}
}

func newExecutor(cfg *config.Config, logger zerolog.Logger) (*executor.Executor, error) {
	root, err := cfg.Executor.ResolveWorkDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create sandbox root: %w", err)
	}

	opts := []executor.PolicyOption{executor.WithDeniedPaths(cfg.Executor.DeniedPaths...)}
	if len(cfg.Executor.Categories) > 0 {
		cats := make([]executor.Category, 0, len(cfg.Executor.Categories))
		for _, c := range cfg.Executor.Categories {
			cats = append(cats, executor.Category(c))
		}
		opts = append(opts, executor.WithCategories(cats...))
	}
	if len(cfg.Executor.ExtraDangerousPatterns) > 0 {
		opts = append(opts, executor.WithDangerousPatterns(cfg.Executor.ExtraDangerousPatterns...))
	}
	policy, err := executor.NewPolicy(root, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", overseererrors.ErrConfigInvalidExecutor, err)
	}

	return executor.New(policy,
		executor.WithTimeout(cfg.Executor.Timeout),
		executor.WithMaxOutputBytes(cfg.Executor.MaxOutputBytes),
		executor.WithLogger(logger),
	), nil
}

// newNotifier fans alerts out to the log and to alerts, under the
// configured outbound rate.
func newNotifier(cfg *config.Config, logger zerolog.Logger, alerts io.Writer) notify.Notifier {
	var n notify.Notifier = notify.NewLogNotifier(logger)
	if alerts != nil {
		n = notify.MultiNotifier{n, notify.NewWriterNotifier(alerts, cfg.Notify.Bell)}
	}
	if cfg.Notify.RatePerMinute > 0 {
		n = notify.NewRateLimitedNotifier(n, cfg.Notify.RatePerMinute, cfg.Notify.Burst, logger)
	}
	return n
}

func newEngine(ctx context.Context, cfg *config.Config, stateDir string, budget selfmod.Budget, tests selfmod.TestRunner, logger zerolog.Logger) (*selfmod.Engine, error) {
	sm := cfg.SelfMod
	rules, err := selfmod.LoadRules(sm.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", overseererrors.ErrConfigInvalidSelfMod, err)
	}
	assessor, err := selfmod.NewAssessor(rules, sm.ProtectedPaths, sm.MaxChangedLines)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", overseererrors.ErrConfigInvalidSelfMod, err)
	}

	var generator selfmod.PatchGenerator = unconfiguredGenerator{}
	if len(cfg.Planner.PatchCommand) > 0 {
		generator = adapters.NewProcessPatchGenerator(cfg.Planner.PatchCommand, adapters.WithDir(sm.SourceRoot))
	}

	opts := []selfmod.Option{selfmod.WithBudget(budget), selfmod.WithLogger(logger)}
	if sm.GitCheckpoint {
		runner, err := git.NewRunner(ctx, sm.SourceRoot, logger)
		if err != nil {
			return nil, fmt.Errorf("%w: git_checkpoint: %w", overseererrors.ErrConfigInvalidSelfMod, err)
		}
		opts = append(opts, selfmod.WithCheckpointer(git.NewCheckpointer(runner, logger)))
	}

	return selfmod.New(selfmod.Config{
		SourceRoot:    sm.SourceRoot,
		StateDir:      stateDir,
		TestCommand:   sm.TestCommand,
		TestTimeout:   sm.TestTimeout,
		Gather:        selfmod.GatherOptions{IncludeExts: sm.IncludeExts, SkipDirs: sm.SkipDirs},
		PatchEstimate: usage(sm.PatchEstimate),
	}, generator, assessor, tests, opts...)
}

// unconfiguredGenerator fails every request when no patch program is set.
type unconfiguredGenerator struct{}

func (unconfiguredGenerator) Generate(context.Context, selfmod.Request, []selfmod.SourceFile) (selfmod.Proposal, error) {
	return selfmod.Proposal{}, overseererrors.Wrap(overseererrors.ErrPlannerFailure, "no patch generator configured (planner.patch_command)")
}

func usage(u config.UsageEstimate) domain.Usage {
	return domain.Usage{Model: u.Model, InputTokens: u.InputTokens, OutputTokens: u.OutputTokens}
}

// newScheduler builds the loop around planner. source and m may be nil.
func (a *app) newScheduler(planner scheduler.Planner, source scheduler.CommandSource, m scheduler.Metrics) (*scheduler.Scheduler, error) {
	sc := a.cfg.Scheduler
	cfg := scheduler.Config{
		Interval:            sc.Interval,
		Backoff:             sc.Backoff,
		SummaryEvery:        sc.SummaryEvery,
		DegradedAfter:       sc.DegradedAfter,
		MaxCommands:         sc.MaxCommands,
		HistoryWindow:       sc.HistoryWindow,
		PlannerTimeout:      sc.PlannerTimeout,
		PlanningEstimate:    usage(sc.PlanningEstimate),
		InitialGoal:         sc.InitialGoal,
		AutoApply:           a.cfg.SelfMod.AutoApply,
		AllowMedium:         a.cfg.SelfMod.AllowMedium,
		MaintenanceSchedule: sc.MaintenanceSchedule,
		BackupRetention:     a.cfg.SelfMod.BackupRetention,
		HistoryRetain:       a.cfg.Storage.HistoryRetain,
		Cooldowns: scheduler.Cooldowns{
			Startup:  a.cfg.Notify.StartupCooldown,
			Summary:  a.cfg.Notify.SummaryCooldown,
			Degraded: a.cfg.Notify.DegradedCooldown,
			Budget:   a.cfg.Notify.BudgetCooldown,
		},
	}

	opts := []scheduler.Option{
		scheduler.WithGate(a.gate),
		scheduler.WithModifier(a.engine),
		scheduler.WithLogger(a.logger),
	}
	if source != nil {
		opts = append(opts, scheduler.WithCommandSource(source))
	}
	if m != nil {
		opts = append(opts, scheduler.WithMetrics(m))
	}
	return scheduler.New(cfg, planner, a.guard, a.executor, a.history, a.goals, opts...)
}

// planner returns the configured external planner.
func (a *app) planner() (scheduler.Planner, error) {
	if len(a.cfg.Planner.Command) == 0 {
		return nil, overseererrors.Wrap(overseererrors.ErrEmptyValue, "planner.command is not configured")
	}
	return adapters.NewProcessPlanner(a.cfg.Planner.Command), nil
}

// commandSource returns the operator inbox.
func (a *app) commandSource() *adapters.FileCommandSource {
	return adapters.NewFileCommandSource(a.cfg.Planner.Inbox, a.stateDir, nil, a.logger)
}
