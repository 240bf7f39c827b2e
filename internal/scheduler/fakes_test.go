package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mrz1836/overseer/internal/billing"
	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
	"github.com/mrz1836/overseer/internal/goal"
	"github.com/mrz1836/overseer/internal/history"
	"github.com/mrz1836/overseer/internal/notify"
	"github.com/mrz1836/overseer/internal/selfmod"
	"github.com/mrz1836/overseer/internal/testutil"
)

type planCall struct {
	goal   domain.Goal
	recent int
}

// fakePlanner returns decisions in order, repeating the last one.
type fakePlanner struct {
	mu        sync.Mutex
	decisions []domain.Decision
	err       error
	panicWith any
	calls     []planCall

	// entered and release, when set, make Plan block until release closes.
	entered chan struct{}
	release chan struct{}
}

func (p *fakePlanner) Plan(ctx context.Context, g domain.Goal, recent []domain.IterationRecord) (domain.Decision, error) {
	p.mu.Lock()
	p.calls = append(p.calls, planCall{goal: g, recent: len(recent)})
	n := len(p.calls)
	p.mu.Unlock()

	if p.entered != nil {
		p.entered <- struct{}{}
		select {
		case <-p.release:
		case <-ctx.Done():
			return domain.Decision{}, ctx.Err()
		}
	}
	if p.panicWith != nil {
		panic(p.panicWith)
	}
	if p.err != nil {
		return domain.Decision{}, p.err
	}
	if len(p.decisions) == 0 {
		return domain.Decision{Explanation: "nothing to do"}, nil
	}
	idx := n - 1
	if idx >= len(p.decisions) {
		idx = len(p.decisions) - 1
	}
	return p.decisions[idx], nil
}

func (p *fakePlanner) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *fakePlanner) call(i int) planCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[i]
}

// fakeSource hands out one batch per poll.
type fakeSource struct {
	batches [][]domain.Instruction
	err     error
	polls   int
}

func (s *fakeSource) Poll(context.Context) ([]domain.Instruction, error) {
	s.polls++
	if s.err != nil {
		return nil, s.err
	}
	if len(s.batches) == 0 {
		return nil, nil
	}
	batch := s.batches[0]
	s.batches = s.batches[1:]
	return batch, nil
}

// fakeExecutor counts spawns and succeeds unless told otherwise.
type fakeExecutor struct {
	mu    sync.Mutex
	specs []domain.CommandSpec
	fail  map[string]bool
}

func (e *fakeExecutor) Execute(_ context.Context, spec domain.CommandSpec) domain.CommandResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.specs = append(e.specs, spec)
	res := domain.CommandResult{Command: spec.Command, Intent: spec.Intent, Success: true, DurationMs: 5}
	if e.fail[spec.Command] {
		res.Success = false
		res.ExitCode = 1
		res.Kind = overseererrors.KindCommandExecutionError
		res.Error = "exit status 1"
	}
	return res
}

func (e *fakeExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.specs)
}

// fakeBudget returns queued verdicts, then Allow. Cost is tokens / 1000.
type fakeBudget struct {
	mu        sync.Mutex
	verdicts  []billing.Verdict
	admits    []float64
	charges   []billing.Charge
	recordErr error
}

func (b *fakeBudget) Admit(_ context.Context, estimate float64) (billing.Decision, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.admits = append(b.admits, estimate)
	v := billing.Allow
	if len(b.verdicts) > 0 {
		v, b.verdicts = b.verdicts[0], b.verdicts[1:]
	}
	return billing.Decision{Verdict: v, Reason: "spend " + v.String()}, nil
}

func (b *fakeBudget) Record(_ context.Context, c billing.Charge) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.charges = append(b.charges, c)
	return b.recordErr
}

func (b *fakeBudget) Cost(_ string, in, out int) float64 {
	return float64(in+out) / 1000
}

type sentNotice struct {
	class   string
	message string
}

// fakeGate records everything and never suppresses.
type fakeGate struct {
	mu         sync.Mutex
	notices    []sentNotice
	structured []notify.StructuredLog
	sends      []sentNotice
}

func (g *fakeGate) Notify(_ context.Context, class string, _ time.Duration, message string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.notices = append(g.notices, sentNotice{class, message})
	return true
}

func (g *fakeGate) NotifyStructured(_ context.Context, _ string, _ time.Duration, log notify.StructuredLog) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.structured = append(g.structured, log)
	return true
}

func (g *fakeGate) Send(_ context.Context, class, message string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sends = append(g.sends, sentNotice{class, message})
}

func (g *fakeGate) noticeCount(class string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, s := range g.notices {
		if s.class == class {
			n++
		}
	}
	return n
}

func (g *fakeGate) sendCount(class string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, s := range g.sends {
		if s.class == class {
			n++
		}
	}
	return n
}

type modifyCall struct {
	req    selfmod.Request
	policy selfmod.Policy
}

// fakeModifier returns a canned result.
type fakeModifier struct {
	result    selfmod.Result
	err       error
	calls     []modifyCall
	busy      bool
	recovered bool
	prunes    []time.Duration
}

func (m *fakeModifier) Run(_ context.Context, req selfmod.Request, policy selfmod.Policy) (selfmod.Result, error) {
	m.calls = append(m.calls, modifyCall{req, policy})
	return m.result, m.err
}

func (m *fakeModifier) Recover(context.Context) (bool, error) { return m.recovered, nil }

func (m *fakeModifier) PruneBackups(_ context.Context, olderThan time.Duration) (int, error) {
	m.prunes = append(m.prunes, olderThan)
	return 0, nil
}

func (m *fakeModifier) Busy() bool { return m.busy }

// fakeMetrics counts calls.
type fakeMetrics struct {
	mu            sync.Mutex
	iterations    map[domain.Outcome]int
	verdicts      []string
	commands      int
	modifications []domain.ModificationState
}

func (m *fakeMetrics) IterationCompleted(outcome domain.Outcome, _ overseererrors.Kind, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.iterations == nil {
		m.iterations = map[domain.Outcome]int{}
	}
	m.iterations[outcome]++
}

func (m *fakeMetrics) AdmissionDecided(verdict string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verdicts = append(m.verdicts, verdict)
}

func (m *fakeMetrics) CommandExecuted(bool, overseererrors.Kind, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands++
}

func (m *fakeMetrics) ModificationFinished(state domain.ModificationState, _ domain.RiskLevel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modifications = append(m.modifications, state)
}

var _ Metrics = (*fakeMetrics)(nil)

// failingHistory rejects every append.
type failingHistory struct {
	history.Store
}

func (failingHistory) Append(context.Context, domain.IterationRecord) error {
	return overseererrors.Wrap(overseererrors.ErrPersistence, "disk full")
}

// panickingHistory panics on every append.
type panickingHistory struct {
	history.Store
}

func (panickingHistory) Append(context.Context, domain.IterationRecord) error {
	panic("history store corrupted")
}

// panickingGate panics when asked for a summary.
type panickingGate struct {
	*fakeGate
}

func (panickingGate) NotifyStructured(context.Context, string, time.Duration, notify.StructuredLog) bool {
	panic("summary formatter broke")
}

// panickingNotifier is a transport that panics on structured reports.
type panickingNotifier struct {
	notify.NopNotifier
}

func (panickingNotifier) SendStructuredLog(context.Context, notify.StructuredLog) error {
	panic("transport blew up")
}

// testStart is a Monday morning, half past the hour.
var testStart = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

type fixture struct {
	planner  *fakePlanner
	source   *fakeSource
	executor *fakeExecutor
	budget   *fakeBudget
	gate     *fakeGate
	modifier *fakeModifier
	metrics  *fakeMetrics
	hist     history.Store
	goals    *goal.Store
	clock    *testutil.FakeClock
	stateDir string
}

func testConfig() Config {
	return Config{
		Interval:         time.Millisecond,
		Backoff:          time.Millisecond,
		SummaryEvery:     3,
		DegradedAfter:    3,
		MaxCommands:      4,
		HistoryWindow:    2,
		PlannerTimeout:   time.Second,
		PlanningEstimate: domain.Usage{Model: "gpt-4.1-mini", InputTokens: 1500, OutputTokens: 500},
		InitialGoal:      "watch the disk",
		AutoApply:        true,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	return &fixture{
		planner:  &fakePlanner{},
		source:   &fakeSource{},
		executor: &fakeExecutor{},
		budget:   &fakeBudget{},
		gate:     &fakeGate{},
		modifier: &fakeModifier{},
		metrics:  &fakeMetrics{},
		hist:     history.NewFileStore(filepath.Join(dir, "history", "iterations.jsonl"), time.Second),
		goals:    goal.NewStore(dir),
		clock:    testutil.NewFakeClock(testStart),
		stateDir: dir,
	}
}

func (f *fixture) scheduler(t *testing.T, cfg Config, opts ...Option) *Scheduler {
	t.Helper()
	base := []Option{
		WithCommandSource(f.source),
		WithGate(f.gate),
		WithModifier(f.modifier),
		WithMetrics(f.metrics),
		WithClock(f.clock),
	}
	s, err := New(cfg, f.planner, f.budget, f.executor, f.hist, f.goals, append(base, opts...)...)
	require.NoError(t, err)
	return s
}

func (f *fixture) records(t *testing.T) []domain.IterationRecord {
	t.Helper()
	recs, err := f.hist.Recent(context.Background(), 0)
	require.NoError(t, err)
	return recs
}
