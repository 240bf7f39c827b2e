// Package scheduler drives the agent's control loop.
//
// Each iteration observes the command source, asks the planner for a
// decision under billing admission, validates the decision, runs its
// commands, optionally runs one self-modification, applies goal succession
// and persists an IterationRecord before the next iteration begins.
// Iterations are strictly sequential. A failure or panic inside one
// iteration is recorded on its record and followed by a backoff; it never
// ends the loop. Stop is cooperative and only takes effect between
// iterations.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/mrz1836/overseer/internal/billing"
	"github.com/mrz1836/overseer/internal/clock"
	"github.com/mrz1836/overseer/internal/constants"
	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
	"github.com/mrz1836/overseer/internal/history"
	"github.com/mrz1836/overseer/internal/notify"
	"github.com/mrz1836/overseer/internal/selfmod"
)

// Planner decides what the next iteration does.
type Planner interface {
	Plan(ctx context.Context, goal domain.Goal, recent []domain.IterationRecord) (domain.Decision, error)
}

// CommandSource delivers operator instructions in arrival order.
type CommandSource interface {
	Poll(ctx context.Context) ([]domain.Instruction, error)
}

// Executor runs one planner command. It never returns an error; failures
// are carried in the result.
type Executor interface {
	Execute(ctx context.Context, spec domain.CommandSpec) domain.CommandResult
}

// Budget admits and records metered planner calls.
type Budget interface {
	Admit(ctx context.Context, estimate float64) (billing.Decision, error)
	Record(ctx context.Context, c billing.Charge) error
	Cost(model string, inputTokens, outputTokens int) float64
}

// Modifier is the self-modification engine as seen by the loop.
type Modifier interface {
	Run(ctx context.Context, req selfmod.Request, policy selfmod.Policy) (selfmod.Result, error)
	Recover(ctx context.Context) (bool, error)
	PruneBackups(ctx context.Context, olderThan time.Duration) (int, error)
	Busy() bool
}

// Gate delivers operator notifications, deduplicated per alert class.
type Gate interface {
	Notify(ctx context.Context, class string, cooldown time.Duration, message string) bool
	NotifyStructured(ctx context.Context, class string, cooldown time.Duration, log notify.StructuredLog) bool
	Send(ctx context.Context, class, message string)
}

// GoalStore persists the current goal.
type GoalStore interface {
	LoadOr(ctx context.Context, fallback string, now time.Time) (domain.Goal, error)
	Save(ctx context.Context, g domain.Goal, sequence int64) error
}

// Cooldowns are the notification cooldowns the loop uses per alert class.
type Cooldowns struct {
	Startup  time.Duration
	Summary  time.Duration
	Degraded time.Duration
	Budget   time.Duration
}

// Config holds the loop's settings. Zero values take the package defaults.
type Config struct {
	Interval       time.Duration
	Backoff        time.Duration
	SummaryEvery   int
	DegradedAfter  int
	MaxCommands    int
	HistoryWindow  int
	PlannerTimeout time.Duration

	// PlanningEstimate is admitted before each planning call and charged
	// when the planner reports no usage.
	PlanningEstimate domain.Usage

	// InitialGoal is used when no goal has been persisted.
	InitialGoal string

	// AutoApply and AllowMedium bound what a planner modification request
	// may apply on its own.
	AutoApply   bool
	AllowMedium bool

	// MaintenanceSchedule is a standard five-field cron expression. Empty
	// disables maintenance.
	MaintenanceSchedule string
	BackupRetention     time.Duration
	HistoryRetain       int

	Cooldowns Cooldowns
}

func (c Config) withDefaults() Config {
	if c.Interval == 0 {
		c.Interval = constants.DefaultIterationInterval
	}
	if c.Backoff == 0 {
		c.Backoff = constants.DefaultFailureBackoff
	}
	if c.SummaryEvery == 0 {
		c.SummaryEvery = constants.DefaultSummaryEvery
	}
	if c.DegradedAfter == 0 {
		c.DegradedAfter = constants.DefaultDegradedAfter
	}
	if c.MaxCommands == 0 {
		c.MaxCommands = constants.DefaultMaxCommands
	}
	if c.HistoryWindow == 0 {
		c.HistoryWindow = constants.DefaultHistoryWindow
	}
	if c.PlannerTimeout == 0 {
		c.PlannerTimeout = constants.DefaultPlannerTimeout
	}
	if c.BackupRetention == 0 {
		c.BackupRetention = constants.DefaultBackupRetention
	}
	if c.HistoryRetain == 0 {
		c.HistoryRetain = constants.DefaultHistoryRetain
	}
	if c.Cooldowns.Startup == 0 {
		c.Cooldowns.Startup = constants.DefaultStartupCooldown
	}
	if c.Cooldowns.Summary == 0 {
		c.Cooldowns.Summary = constants.DefaultSummaryCooldown
	}
	if c.Cooldowns.Degraded == 0 {
		c.Cooldowns.Degraded = constants.DefaultDegradedCooldown
	}
	if c.Cooldowns.Budget == 0 {
		c.Cooldowns.Budget = constants.DefaultBudgetCooldown
	}
	return c
}

func (c Config) validate() error {
	switch {
	case c.Interval < 0, c.Backoff < 0, c.PlannerTimeout < 0:
		return overseererrors.Wrap(overseererrors.ErrConfigInvalidScheduler, "durations must not be negative")
	case c.SummaryEvery < 0, c.DegradedAfter < 0, c.MaxCommands < 0, c.HistoryWindow < 0, c.HistoryRetain < 0:
		return overseererrors.Wrap(overseererrors.ErrConfigInvalidScheduler, "counts must not be negative")
	}
	return nil
}

// Scheduler is the iteration loop.
type Scheduler struct {
	cfg      Config
	planner  Planner
	budget   Budget
	executor Executor
	history  history.Store
	goals    GoalStore

	source      CommandSource
	gate        Gate
	modifier    Modifier
	metrics     Metrics
	clock       clock.Clock
	logger      zerolog.Logger
	maintenance cron.Schedule

	running  atomic.Bool
	stopping atomic.Bool
	stopCh   chan struct{}

	mu          sync.Mutex
	state       domain.IterationState
	goal        domain.Goal
	sequence    int64
	failureKind overseererrors.Kind
	failures    int
	prepared    bool
	nextMaint   time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithCommandSource polls src for operator instructions once per iteration.
func WithCommandSource(src CommandSource) Option {
	return func(s *Scheduler) { s.source = src }
}

// WithGate sends notifications through g.
func WithGate(g Gate) Option {
	return func(s *Scheduler) { s.gate = g }
}

// WithModifier enables planner-requested self-modification through m.
func WithModifier(m Modifier) Option {
	return func(s *Scheduler) { s.modifier = m }
}

// WithMetrics records loop metrics in m.
func WithMetrics(m Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithClock sets the clock used for timestamps and the maintenance schedule.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = clock.OrReal(c) }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New creates a scheduler. The planner, budget, executor, history and goal
// store are required.
func New(cfg Config, planner Planner, budget Budget, executor Executor, hist history.Store, goals GoalStore, opts ...Option) (*Scheduler, error) {
	if planner == nil || budget == nil || executor == nil || hist == nil || goals == nil {
		return nil, overseererrors.Wrap(overseererrors.ErrInvalidArgument, "scheduler dependencies must not be nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		cfg:      cfg.withDefaults(),
		planner:  planner,
		budget:   budget,
		executor: executor,
		history:  hist,
		goals:    goals,
		gate:     nopGate{},
		metrics:  NoopMetrics{},
		clock:    clock.RealClock{},
		logger:   zerolog.Nop(),
		stopCh:   make(chan struct{}, 1),
		state:    domain.StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	if expr := strings.TrimSpace(s.cfg.MaintenanceSchedule); expr != "" {
		sched, err := cron.ParseStandard(expr)
		if err != nil {
			return nil, fmt.Errorf("%w: maintenance schedule %q: %w", overseererrors.ErrConfigInvalidScheduler, expr, err)
		}
		s.maintenance = sched
	}
	return s, nil
}

// Run drives iterations until ctx is canceled or Stop is called. Neither
// interrupts an iteration in progress: the running iteration completes
// with its own timeouts and is persisted first. Run returns an error only
// when the loop cannot start.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return overseererrors.ErrSchedulerRunning
	}
	defer s.running.Store(false)

	logger := s.loggerFor(ctx)
	if err := s.prepare(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	startSeq, g := s.sequence, s.goal
	s.mu.Unlock()
	logger.Info().
		Int64("last_sequence", startSeq).
		Str("goal", g.Text).
		Dur("interval", s.cfg.Interval).
		Msg("starting iteration loop")
	s.gate.Notify(ctx, notify.ClassStartup, s.cfg.Cooldowns.Startup,
		fmt.Sprintf("overseer started; next iteration %d; goal: %s", startSeq+1, g.Text))

	for !s.stopRequested(ctx) {
		s.maintain(ctx)

		rec := s.iterate(context.WithoutCancel(ctx))
		pause := s.cfg.Interval
		if rec.Failed() {
			pause = s.cfg.Backoff
		}
		if !s.wait(ctx, pause) {
			break
		}
	}

	s.mu.Lock()
	if CanTransition(s.state, domain.StateStopped) {
		s.state = domain.StateStopped
	}
	lastSeq := s.sequence
	s.mu.Unlock()

	logger.Info().Int64("last_sequence", lastSeq).Msg("iteration loop stopped")
	s.gate.Send(context.WithoutCancel(ctx), notify.ClassShutdown,
		fmt.Sprintf("overseer stopped after iteration %d", lastSeq))
	return nil
}

// RunOnce runs a single iteration outside the loop and returns its record.
func (s *Scheduler) RunOnce(ctx context.Context) (domain.IterationRecord, error) {
	if !s.running.CompareAndSwap(false, true) {
		return domain.IterationRecord{}, overseererrors.ErrSchedulerRunning
	}
	defer s.running.Store(false)

	if err := s.prepare(ctx); err != nil {
		return domain.IterationRecord{}, err
	}
	return s.iterate(ctx), nil
}

// Stop asks the loop to end after the current iteration. It does not wait.
func (s *Scheduler) Stop() {
	s.stopping.Store(true)
	select {
	case s.stopCh <- struct{}{}:
	default:
	}
}

// State returns the current iteration state.
func (s *Scheduler) State() domain.IterationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Goal returns the goal in force.
func (s *Scheduler) Goal() domain.Goal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.goal
}

// Sequence returns the number of the last completed iteration.
func (s *Scheduler) Sequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequence
}

// prepare loads the sequence counter and goal, and restores the source tree
// if a previous process died mid-modification. It runs once per Scheduler.
func (s *Scheduler) prepare(ctx context.Context) error {
	s.mu.Lock()
	done := s.prepared
	s.mu.Unlock()
	if done {
		return nil
	}

	logger := s.loggerFor(ctx)
	last, err := s.history.LastSequence(ctx)
	if err != nil {
		return overseererrors.Wrap(err, "read last iteration sequence")
	}
	now := s.clock.Now()
	g, err := s.goals.LoadOr(ctx, s.cfg.InitialGoal, now)
	if err != nil {
		logger.Warn().Err(err).Msg("persisted goal unreadable, using the initial goal")
	}

	if s.modifier != nil {
		recovered, err := s.modifier.Recover(ctx)
		switch {
		case err != nil:
			logger.Error().Err(err).Msg("failed to recover interrupted modification")
			s.gate.Send(ctx, notify.ClassModification,
				fmt.Sprintf("an interrupted modification could not be rolled back: %v", err))
		case recovered:
			s.gate.Send(ctx, notify.ClassModification, "an interrupted modification was rolled back at startup")
		}
	}

	s.mu.Lock()
	s.sequence = last
	s.goal = g
	if s.maintenance != nil {
		s.nextMaint = s.maintenance.Next(now)
	}
	s.prepared = true
	s.mu.Unlock()
	return nil
}

// stopRequested reports whether the loop should end before another iteration.
func (s *Scheduler) stopRequested(ctx context.Context) bool {
	return s.stopping.Load() || ctx.Err() != nil
}

// wait pauses between iterations. It returns false when the loop should end.
func (s *Scheduler) wait(ctx context.Context, d time.Duration) bool {
	if s.stopRequested(ctx) {
		return false
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-s.stopCh:
		return false
	case <-timer.C:
		return !s.stopRequested(ctx)
	}
}

// maintain prunes old backups and history when the schedule is due.
func (s *Scheduler) maintain(ctx context.Context) {
	if s.maintenance == nil {
		return
	}
	now := s.clock.Now()
	s.mu.Lock()
	due := !now.Before(s.nextMaint)
	if due {
		s.nextMaint = s.maintenance.Next(now)
	}
	s.mu.Unlock()
	if !due {
		return
	}

	logger := s.loggerFor(ctx)
	if s.modifier != nil {
		if n, err := s.modifier.PruneBackups(ctx, s.cfg.BackupRetention); err != nil {
			logger.Warn().Err(err).Msg("backup pruning skipped")
		} else if n > 0 {
			logger.Info().Int("removed", n).Msg("pruned old backups")
		}
	}
	if n, err := s.history.Prune(ctx, s.cfg.HistoryRetain); err != nil {
		logger.Warn().Err(err).Msg("history pruning failed")
	} else if n > 0 {
		logger.Info().Int("removed", n).Int("retained", s.cfg.HistoryRetain).Msg("pruned iteration history")
	}
}

func (s *Scheduler) loggerFor(ctx context.Context) *zerolog.Logger {
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &s.logger
	}
	return logger
}

// nopGate drops every notification.
type nopGate struct{}

func (nopGate) Notify(context.Context, string, time.Duration, string) bool { return false }

func (nopGate) NotifyStructured(context.Context, string, time.Duration, notify.StructuredLog) bool {
	return false
}

func (nopGate) Send(context.Context, string, string) {}
