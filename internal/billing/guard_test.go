package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/overseer/internal/constants"
	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
	"github.com/mrz1836/overseer/internal/testutil"
)

// mockConfirmer records every confirmation request.
type mockConfirmer struct {
	mu      sync.Mutex
	calls   []string
	approve bool
	err     error
	block   bool
}

func (m *mockConfirmer) RequestConfirmation(ctx context.Context, _ float64, reason string) (bool, error) {
	m.mu.Lock()
	m.calls = append(m.calls, reason)
	m.mu.Unlock()
	if m.block {
		<-ctx.Done()
		return false, ctx.Err()
	}
	return m.approve, m.err
}

func (m *mockConfirmer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func testConfig() Config {
	return Config{
		Normal:           Thresholds{Warn: constants.DefaultNormalWarn, Stop: constants.DefaultNormalStop},
		Special:          Thresholds{Warn: constants.DefaultSpecialWarn, Escalate: constants.DefaultSpecialEscalate, Stop: constants.DefaultSpecialStop},
		SpecialCycleDays: constants.DefaultSpecialCycleDays,
		ConfirmTimeout:   time.Second,
		Currency:         "JPY",
	}
}

func testPricing(t *testing.T) *Pricing {
	t.Helper()
	p, err := NewPricing("gpt-4.1-mini", map[string]Rate{
		"gpt-4.1-mini": {InputPer1K: 0.015, OutputPer1K: 0.060},
		"gpt-4":        {InputPer1K: 3.0, OutputPer1K: 6.0},
	})
	require.NoError(t, err)
	return p
}

// ordinaryDay is one day after the anchor, so it is never special.
var ordinaryDay = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

const anchorDate = "2026-03-01"

func newGuard(t *testing.T, now time.Time, opts ...Option) (*Guard, *testutil.FakeClock) {
	t.Helper()
	ledger := NewMemoryLedger()
	ledger.SetAnchor(anchorDate)
	clk := testutil.NewFakeClock(now)
	opts = append([]Option{WithClock(clk)}, opts...)
	return NewGuard(ledger, testPricing(t), testConfig(), opts...), clk
}

func TestAdmit_DenyOnceStopReached(t *testing.T) {
	ctx := context.Background()
	g, _ := newGuard(t, ordinaryDay)

	costs := []float64{120, 90, 60, 30}
	var recordErr error
	for _, c := range costs {
		recordErr = g.Record(ctx, Charge{Cost: c})
	}
	require.ErrorIs(t, recordErr, overseererrors.ErrBudgetExceeded, "crossing stop is reported by the call that crossed it")

	for _, estimate := range []float64{0, 0.01, 1, 50} {
		d, err := g.Admit(ctx, estimate)
		require.NoError(t, err)
		assert.Equal(t, Deny, d.Verdict, "estimate %v", estimate)
		assert.Equal(t, domain.TierStop, d.Tier)
		require.ErrorIs(t, d.Err(), overseererrors.ErrBudgetExceeded)
	}

	s, err := g.Summary(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 300.0, s.Spend, 0.0001, "the increment that crossed stop is still recorded")
	assert.True(t, s.Tripped)
	assert.Equal(t, domain.DayNormal, s.DayType)
	assert.InDelta(t, 0.0, s.Remaining, 0.0001)
}

func TestAdmit_ProjectionAboveStopDenied(t *testing.T) {
	ctx := context.Background()
	confirmer := &mockConfirmer{approve: true}
	g, _ := newGuard(t, ordinaryDay, WithConfirmer(confirmer))
	require.NoError(t, g.Record(ctx, Charge{Cost: 250}))

	d, err := g.Admit(ctx, 60)
	require.NoError(t, err)

	assert.Equal(t, Deny, d.Verdict)
	assert.Equal(t, 0, confirmer.count(), "a denial never asks for confirmation")
}

func TestAdmit_SpecialDayEscalateAsksConfirmer(t *testing.T) {
	ctx := context.Background()
	confirmer := &mockConfirmer{approve: true}
	// The anchor day itself is special.
	g, _ := newGuard(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), WithConfirmer(confirmer))
	require.NoError(t, g.Record(ctx, Charge{Cost: 850}))

	d, err := g.Admit(ctx, 100)
	require.NoError(t, err)

	assert.Equal(t, WarnAndAllow, d.Verdict)
	assert.Equal(t, domain.TierEscalate, d.Tier)
	assert.Equal(t, domain.DaySpecial, d.DayType)
	assert.True(t, d.Confirmed)
	require.Equal(t, 1, confirmer.count())
	assert.Contains(t, confirmer.calls[0], "escalate")
}

func TestAdmit_SpecialDayEscalateDeclined(t *testing.T) {
	ctx := context.Background()
	confirmer := &mockConfirmer{approve: false}
	g, _ := newGuard(t, time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC), WithConfirmer(confirmer))
	require.NoError(t, g.Record(ctx, Charge{Cost: 850}))

	d, err := g.Admit(ctx, 100)
	require.NoError(t, err)

	assert.Equal(t, Deny, d.Verdict)
	assert.Contains(t, d.Reason, "declined")
	assert.Equal(t, 1, confirmer.count())
}

func TestAdmit_WarnCrossing(t *testing.T) {
	ctx := context.Background()
	confirmer := &mockConfirmer{approve: true}
	g, _ := newGuard(t, ordinaryDay, WithConfirmer(confirmer))
	require.NoError(t, g.Record(ctx, Charge{Cost: 150}))

	d, err := g.Admit(ctx, 60)
	require.NoError(t, err)
	assert.Equal(t, WarnAndAllow, d.Verdict)
	assert.Equal(t, domain.TierWarn, d.Tier)
	assert.Equal(t, 1, confirmer.count())

	// Once spend is past warn, later calls warn without asking again.
	require.NoError(t, g.Record(ctx, Charge{Cost: 60}))
	d, err = g.Admit(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, WarnAndAllow, d.Verdict)
	assert.Equal(t, 1, confirmer.count())
}

func TestAdmit_ConfirmationTimeoutDenies(t *testing.T) {
	ctx := context.Background()
	confirmer := &mockConfirmer{block: true}
	ledger := NewMemoryLedger()
	ledger.SetAnchor(anchorDate)
	cfg := testConfig()
	cfg.ConfirmTimeout = 20 * time.Millisecond
	g := NewGuard(ledger, testPricing(t), cfg,
		WithClock(testutil.NewFakeClock(ordinaryDay)), WithConfirmer(confirmer))
	require.NoError(t, g.Record(ctx, Charge{Cost: 190}))

	d, err := g.Admit(ctx, 20)
	require.NoError(t, err)

	assert.Equal(t, Deny, d.Verdict)
	assert.Contains(t, d.Reason, "timed out")
}

func TestAdmit_NilConfirmerApproves(t *testing.T) {
	ctx := context.Background()
	g, _ := newGuard(t, ordinaryDay)
	require.NoError(t, g.Record(ctx, Charge{Cost: 190}))

	d, err := g.Admit(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, WarnAndAllow, d.Verdict)
	assert.True(t, d.Confirmed)
}

func TestAdmit_AllowBelowWarn(t *testing.T) {
	g, _ := newGuard(t, ordinaryDay)

	d, err := g.Admit(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, Allow, d.Verdict)
	assert.True(t, d.Allowed())
	assert.NoError(t, d.Err())
}

func TestAdmit_RolloverResetsSpend(t *testing.T) {
	ctx := context.Background()
	g, clk := newGuard(t, ordinaryDay.Add(14*time.Hour))
	require.ErrorIs(t, g.Record(ctx, Charge{Cost: 300}), overseererrors.ErrBudgetExceeded)

	d, err := g.Admit(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, Deny, d.Verdict)

	clk.Advance(2 * time.Hour) // past midnight
	d, err = g.Admit(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, Allow, d.Verdict)
	assert.InDelta(t, 0.0, d.Spend, 0.0001)
}

func TestOverride_ClearsTrip(t *testing.T) {
	ctx := context.Background()
	g, _ := newGuard(t, ordinaryDay)
	require.ErrorIs(t, g.Record(ctx, Charge{Cost: 300}), overseererrors.ErrBudgetExceeded)

	day, err := g.Override(ctx, 100)
	require.NoError(t, err)
	assert.False(t, day.Tripped)
	assert.InDelta(t, 100.0, day.OverrideAllowance, 0.0001)

	d, err := g.Admit(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, WarnAndAllow, d.Verdict)
	assert.Equal(t, domain.TierWarn, d.Tier, "the allowance moves stop to 400")

	_, err = g.Override(ctx, 0)
	require.ErrorIs(t, err, overseererrors.ErrInvalidArgument)
}

func TestRecord_RejectsNegativeCost(t *testing.T) {
	g, _ := newGuard(t, ordinaryDay)
	require.ErrorIs(t, g.Record(context.Background(), Charge{Cost: -1}), overseererrors.ErrInvalidArgument)
}

func TestRecord_TracksTokensAndTier(t *testing.T) {
	ctx := context.Background()
	g, _ := newGuard(t, ordinaryDay)

	require.NoError(t, g.Record(ctx, g.ChargeFor("gpt-4", 10000, 20000)))

	s, err := g.Summary(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 150.0, s.Spend, 0.0001)
	assert.Equal(t, 1, s.Requests)
	assert.Equal(t, domain.TierNone, s.Tier)

	require.NoError(t, g.Record(ctx, Charge{Cost: 60}))
	s, err = g.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.TierWarn, s.Tier)
	assert.InDelta(t, 90.0, s.Remaining, 0.0001)
}

func TestGuard_SpendSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	clk := testutil.NewFakeClock(ordinaryDay)

	first := NewGuard(NewFileLedger(dir, time.Second), testPricing(t), testConfig(), WithClock(clk))
	require.NoError(t, first.Record(ctx, Charge{Cost: 120}))

	second := NewGuard(NewFileLedger(dir, time.Second), testPricing(t), testConfig(), WithClock(clk))
	s, err := second.Summary(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 120.0, s.Spend, 0.0001)

	// The anchor was created on first use, so today is special for both.
	assert.Equal(t, domain.DaySpecial, s.DayType)
}

func TestGuard_History(t *testing.T) {
	ctx := context.Background()
	g, clk := newGuard(t, ordinaryDay)

	require.NoError(t, g.Record(ctx, Charge{Cost: 10}))
	clk.Advance(24 * time.Hour)
	require.NoError(t, g.Record(ctx, Charge{Cost: 20}))
	clk.Advance(24 * time.Hour)
	require.NoError(t, g.Record(ctx, Charge{Cost: 30}))

	days, err := g.History(ctx, 2)
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, "2026-03-03", days[0].Date)
	assert.Equal(t, "2026-03-04", days[1].Date)
	assert.InDelta(t, 50.0, Total(days), 0.0001)
}
