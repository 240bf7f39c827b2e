package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mrz1836/overseer/internal/billing"
	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
	"github.com/mrz1836/overseer/internal/logging"
	"github.com/mrz1836/overseer/internal/notify"
	"github.com/mrz1836/overseer/internal/selfmod"
)

// iteration carries the working state of one pass through the loop.
type iteration struct {
	rec      domain.IterationRecord
	decision domain.Decision
	logger   zerolog.Logger
	now      func() time.Time
}

func (it *iteration) note(step domain.IterationState, kind overseererrors.Kind, message string) {
	it.rec.AddNote(step, kind, message, it.now())
}

type step struct {
	state domain.IterationState
	run   func(context.Context, *iteration) error
}

// iterate runs one iteration, persists its record and updates the failure
// streak. It never panics and never returns an error: every failure ends up
// on the returned record.
func (s *Scheduler) iterate(ctx context.Context) domain.IterationRecord {
	s.mu.Lock()
	seq := s.sequence + 1
	s.mu.Unlock()

	it := &iteration{
		rec: domain.IterationRecord{
			ID:        uuid.NewString(),
			Sequence:  seq,
			Outcome:   domain.OutcomeSuccess,
			StartedAt: s.clock.Now(),
		},
		logger: s.loggerFor(ctx).With().Int64("iteration", seq).Logger(),
		now:    s.clock.Now,
	}
	ctx = it.logger.WithContext(ctx)

	s.runSteps(ctx, it)
	s.enterIdle()
	it.rec.CompletedAt = s.clock.Now()

	s.persist(ctx, it)
	s.complete(ctx, it)
	return it.rec
}

// recoverCrash records a recovered panic as an iteration crash. It must be
// deferred directly. An empty stage names the current state.
func (s *Scheduler) recoverCrash(it *iteration, stage string) {
	r := recover()
	if r == nil {
		return
	}
	if stage == "" {
		stage = string(s.State())
	}
	it.rec.Fail(overseererrors.KindIterationCrash, fmt.Sprintf("panic during %s: %v", stage, r))
	it.logger.Error().
		Str("step", stage).
		Str("panic", fmt.Sprint(r)).
		Str("stack", string(debug.Stack())).
		Msg("iteration panicked")
}

func (s *Scheduler) persist(ctx context.Context, it *iteration) {
	defer s.recoverCrash(it, "persisting")

	if err := s.history.Append(ctx, it.rec); err != nil {
		it.logger.Error().Err(err).Msg("failed to persist iteration record")
		if !it.rec.Failed() {
			it.rec.Fail(overseererrors.KindPersistenceFailure, fmt.Sprintf("record not persisted: %v", err))
		}
	}
}

// runSteps walks the state machine. A panic in any step is recovered here
// and recorded as an iteration crash.
func (s *Scheduler) runSteps(ctx context.Context, it *iteration) {
	defer s.recoverCrash(it, "")

	s.observe(ctx, it)
	steps := []step{
		{domain.StatePlanning, s.plan},
		{domain.StateAdmitting, s.admit},
		{domain.StateActing, s.act},
		{domain.StateEvaluating, s.evaluate},
	}
	for _, st := range steps {
		if err := s.enter(st.state); err != nil {
			it.rec.Fail(overseererrors.KindIterationCrash, err.Error())
			it.logger.Error().Err(err).Msg("iteration state machine refused a transition")
			return
		}
		if err := st.run(ctx, it); err != nil {
			it.rec.Fail(overseererrors.KindOf(err), fmt.Sprintf("%s: %v", st.state, err))
			it.logger.Warn().Err(err).Str("step", string(st.state)).Msg("iteration step failed")
			return
		}
	}
}

func (s *Scheduler) enter(to domain.IterationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !CanTransition(s.state, to) {
		return transitionError(s.state, to)
	}
	s.state = to
	return nil
}

func (s *Scheduler) enterIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if CanTransition(s.state, domain.StateIdle) {
		s.state = domain.StateIdle
	}
}

// observe polls the command source once. The last instruction received
// becomes the goal for this iteration's planning step.
func (s *Scheduler) observe(ctx context.Context, it *iteration) {
	defer func() { it.rec.Goal = s.Goal() }()
	if s.source == nil {
		return
	}

	instructions, err := s.source.Poll(ctx)
	if err != nil {
		it.note(domain.StateIdle, overseererrors.KindNone, fmt.Sprintf("command source unavailable: %v", err))
		it.logger.Warn().Err(err).Msg("failed to poll command source")
		return
	}

	var latest *domain.Instruction
	accepted := 0
	for i := range instructions {
		if strings.TrimSpace(instructions[i].Text) == "" {
			continue
		}
		latest = &instructions[i]
		accepted++
	}
	if latest == nil {
		return
	}
	if accepted > 1 {
		it.note(domain.StateIdle, overseererrors.KindNone,
			fmt.Sprintf("%d instructions received; only the latest was applied", accepted))
	}

	at := latest.ReceivedAt
	if at.IsZero() {
		at = it.now()
	}
	g := domain.Goal{
		Text:  logging.Truncate(strings.TrimSpace(latest.Text), maxGoalRunes),
		SetBy: domain.GoalSetByOperator,
		SetAt: at,
	}
	s.mu.Lock()
	s.goal = g
	s.mu.Unlock()

	if err := s.goals.Save(ctx, g, it.rec.Sequence); err != nil {
		it.note(domain.StateIdle, overseererrors.KindOf(err), fmt.Sprintf("goal not persisted: %v", err))
		it.logger.Error().Err(err).Msg("failed to persist operator goal")
	}
	it.logger.Info().Str("goal", g.Text).Msg("operator instruction applied")
	s.gate.Send(ctx, notify.ClassInstruction, "Instruction received. New goal: "+g.Text)
}

// plan admits the planning call, runs the planner and records its usage.
func (s *Scheduler) plan(ctx context.Context, it *iteration) error {
	est := s.cfg.PlanningEstimate
	d, err := s.budget.Admit(ctx, s.budget.Cost(est.Model, est.InputTokens, est.OutputTokens))
	if err != nil {
		return fmt.Errorf("planning admission: %w", err)
	}
	s.metrics.AdmissionDecided(d.Verdict.String())
	switch d.Verdict {
	case billing.Deny:
		s.gate.Notify(ctx, notify.ClassBudgetExceeded, s.cfg.Cooldowns.Budget, "Planning blocked: "+d.Reason)
		return d.Err()
	case billing.WarnAndAllow:
		it.note(domain.StatePlanning, overseererrors.KindBudgetWarning, d.Reason)
		s.gate.Notify(ctx, notify.ClassBudgetWarning, s.cfg.Cooldowns.Budget, d.Reason)
	case billing.Allow:
	}

	recent, err := s.history.Recent(ctx, s.cfg.HistoryWindow)
	if err != nil {
		it.note(domain.StatePlanning, overseererrors.KindOf(err), fmt.Sprintf("recent history unavailable: %v", err))
		recent = nil
	}

	pctx, cancel := context.WithTimeout(ctx, s.cfg.PlannerTimeout)
	decision, err := s.planner.Plan(pctx, it.rec.Goal, recent)
	cancel()
	s.recordUsage(ctx, it, decision.Usage)
	if err != nil {
		if !errors.Is(err, overseererrors.ErrPlannerFailure) {
			err = fmt.Errorf("%w: %w", overseererrors.ErrPlannerFailure, err)
		}
		return err
	}
	it.decision = decision
	return nil
}

// recordUsage charges the planning call. The estimate stands in when the
// planner reports nothing, so a failing planner still costs something.
func (s *Scheduler) recordUsage(ctx context.Context, it *iteration, usage *domain.Usage) {
	u := s.cfg.PlanningEstimate
	if usage != nil && usage.InputTokens+usage.OutputTokens > 0 {
		u.InputTokens, u.OutputTokens = usage.InputTokens, usage.OutputTokens
		if usage.Model != "" {
			u.Model = usage.Model
		}
	}
	charge := billing.Charge{
		Cost:         s.budget.Cost(u.Model, u.InputTokens, u.OutputTokens),
		Model:        u.Model,
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
	}
	err := s.budget.Record(ctx, charge)
	if err == nil {
		return
	}
	kind := overseererrors.KindOf(err)
	it.note(domain.StatePlanning, kind, fmt.Sprintf("recording planner usage: %v", err))
	it.logger.Warn().Err(err).Float64("cost", charge.Cost).Msg("planner usage recorded with an error")
	if kind == overseererrors.KindBudgetExceeded {
		s.gate.Notify(ctx, notify.ClassBudgetExceeded, s.cfg.Cooldowns.Budget, err.Error())
	}
}

// admit validates the decision. Rejected fields are dropped with a note.
func (s *Scheduler) admit(_ context.Context, it *iteration) error {
	clean, findings := sanitize(it.decision, s.cfg.MaxCommands)
	for _, f := range findings {
		it.note(domain.StateAdmitting, f.kind, f.message)
	}
	if len(findings) > 0 {
		it.logger.Warn().Int("findings", len(findings)).Msg("planner decision adjusted")
	}
	it.decision = clean
	it.rec.Decision = &clean
	return nil
}

// act runs the decision's commands in order. Command failures are results,
// not iteration failures.
func (s *Scheduler) act(ctx context.Context, it *iteration) error {
	cmds := it.decision.Commands
	if len(cmds) == 0 {
		return nil
	}
	if s.modifier != nil && s.modifier.Busy() {
		it.note(domain.StateActing, overseererrors.KindNone,
			fmt.Sprintf("%d commands skipped: a modification is in flight against the source tree", len(cmds)))
		it.logger.Warn().Msg("commands skipped while a modification holds the lock")
		return nil
	}

	for _, spec := range cmds {
		res := s.executor.Execute(ctx, spec)
		it.rec.Results = append(it.rec.Results, res)
		s.metrics.CommandExecuted(res.Success, res.Kind, time.Duration(res.DurationMs)*time.Millisecond)
	}
	if n := it.rec.CommandFailures(); n > 0 {
		it.logger.Info().Int("failed", n).Int("total", len(cmds)).Msg("some commands failed")
	}
	return nil
}

// evaluate runs a requested modification to completion, then applies goal
// succession.
func (s *Scheduler) evaluate(ctx context.Context, it *iteration) error {
	if mr := it.decision.Modification; mr != nil {
		s.modify(ctx, it, *mr)
	}

	next, changed := nextGoal(it.rec.Goal, it.decision, it.now())
	if !changed {
		return nil
	}
	s.mu.Lock()
	s.goal = next
	s.mu.Unlock()
	if err := s.goals.Save(ctx, next, it.rec.Sequence); err != nil {
		it.note(domain.StateEvaluating, overseererrors.KindOf(err), fmt.Sprintf("goal not persisted: %v", err))
		it.logger.Error().Err(err).Msg("failed to persist next goal")
	}
	it.logger.Info().Str("goal", next.Text).Msg("goal updated from planner suggestion")
	return nil
}

func (s *Scheduler) modify(ctx context.Context, it *iteration, mr domain.ModificationRequest) {
	if s.modifier == nil {
		it.note(domain.StateEvaluating, overseererrors.KindNone, "modification request ignored: self-modification is disabled")
		return
	}

	policy := selfmod.Policy{AutoApply: mr.AutoApply && s.cfg.AutoApply, AllowMedium: s.cfg.AllowMedium}
	res, err := s.modifier.Run(ctx, selfmod.FromDecision(mr), policy)
	rec := res.Record
	if rec.ID != "" {
		it.rec.Modification = &domain.ModificationSummary{
			ModificationID: rec.ID,
			State:          string(rec.State),
			RiskLevel:      rec.RiskLevel,
			Success:        rec.Success,
			Files:          rec.Files,
			Reason:         rec.Reason,
		}
		s.metrics.ModificationFinished(rec.State, rec.RiskLevel)
	}
	if err != nil {
		kind := overseererrors.KindOf(err)
		if errors.Is(err, overseererrors.ErrModificationInProgress) {
			kind = overseererrors.KindNone
		}
		it.note(domain.StateEvaluating, kind, fmt.Sprintf("modification not applied: %v", err))
	}

	switch rec.State {
	case domain.ModCommitted, domain.ModRolledBack:
		s.gate.Send(ctx, notify.ClassModification,
			fmt.Sprintf("Modification %s %s: %s (%s)", rec.ID, rec.State, rec.Summary, rec.Reason))
	default:
	}
}

// complete updates counters and sends the degraded and summary notices.
func (s *Scheduler) complete(ctx context.Context, it *iteration) {
	defer s.recoverCrash(it, "completing")

	rec := it.rec
	duration := rec.CompletedAt.Sub(rec.StartedAt)
	s.metrics.IterationCompleted(rec.Outcome, rec.FailureKind, duration)

	s.mu.Lock()
	s.sequence = rec.Sequence
	if rec.Failed() {
		if rec.FailureKind == s.failureKind {
			s.failures++
		} else {
			s.failureKind = rec.FailureKind
			s.failures = 1
		}
	} else {
		s.failureKind = overseererrors.KindNone
		s.failures = 0
	}
	streak := s.failures
	s.mu.Unlock()

	var event *zerolog.Event
	if rec.Failed() {
		event = it.logger.Warn().Str("failure_kind", rec.FailureKind.String()).Str("reason", rec.FailureReason)
	} else {
		event = it.logger.Info()
	}
	event.
		Str("outcome", string(rec.Outcome)).
		Int("commands", len(rec.Results)).
		Int("command_failures", rec.CommandFailures()).
		Dur("duration", duration).
		Msg("iteration completed")

	if rec.Failed() && streak >= s.cfg.DegradedAfter {
		s.gate.Notify(ctx, notify.DegradedClass(rec.FailureKind), s.cfg.Cooldowns.Degraded,
			fmt.Sprintf("Degraded: %d consecutive %s failures. Last: %s", streak, rec.FailureKind, rec.FailureReason))
	}
	if rec.Sequence%int64(s.cfg.SummaryEvery) == 0 {
		s.gate.NotifyStructured(ctx, notify.ClassIterationSummary, s.cfg.Cooldowns.Summary, summaryLog(rec))
	}
}

// summaryLog builds the structured report for rec.
func summaryLog(rec domain.IterationRecord) notify.StructuredLog {
	log := notify.StructuredLog{
		Iteration:   rec.Sequence,
		Goal:        rec.Goal.Text,
		Results:     rec.Results,
		Outcome:     rec.Outcome,
		FailureKind: rec.FailureKind,
		At:          rec.CompletedAt,
	}
	if rec.Decision != nil {
		log.Thinking = rec.Decision.Explanation
		for _, c := range rec.Decision.Commands {
			log.Commands = append(log.Commands, c.Command)
		}
	}
	if log.Thinking == "" {
		log.Thinking = rec.FailureReason
	}
	return log
}
