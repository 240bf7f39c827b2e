package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

func TestRiskLevel_Ordering(t *testing.T) {
	assert.True(t, RiskHigh.Above(RiskMedium))
	assert.True(t, RiskMedium.Above(RiskLow))
	assert.False(t, RiskLow.Above(RiskLow))

	assert.Equal(t, RiskMedium, RiskLow.Max(RiskMedium))
	assert.Equal(t, RiskHigh, RiskHigh.Max(RiskLow))
	assert.Equal(t, RiskHigh, RiskLevel("bogus").Max(RiskLow), "unknown levels collapse to high")
}

func TestParseRiskLevel(t *testing.T) {
	tests := map[string]RiskLevel{
		"low":      RiskLow,
		" LOW ":    RiskLow,
		"safe":     RiskLow,
		"medium":   RiskMedium,
		"Moderate": RiskMedium,
		"high":     RiskHigh,
		"critical": RiskHigh,
		"":         RiskHigh,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseRiskLevel(in), "input %q", in)
	}
}

func TestModificationPlan_Helpers(t *testing.T) {
	plan := ModificationPlan{Files: []FileChange{
		{Path: "a.go", AddedLines: 3, RemovedLines: 1},
		{Path: "b/c.go", AddedLines: 2},
	}}
	assert.Equal(t, []string{"a.go", "b/c.go"}, plan.Paths())
	assert.Equal(t, 6, plan.ChangedLines())
}

func TestTier_AtLeast(t *testing.T) {
	assert.True(t, TierStop.AtLeast(TierWarn))
	assert.True(t, TierWarn.AtLeast(TierWarn))
	assert.False(t, TierNone.AtLeast(TierWarn))
	assert.False(t, TierEscalate.AtLeast(TierStop))
}

func TestNotificationCooldown_Ready(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, NotificationCooldown{}.Ready(base, time.Hour))

	c := NotificationCooldown{AlertClass: "startup", LastSentAt: base}
	assert.False(t, c.Ready(base.Add(2*time.Minute), 5*time.Minute))
	assert.True(t, c.Ready(base.Add(5*time.Minute), 5*time.Minute))
}

func TestIterationRecord_Helpers(t *testing.T) {
	now := time.Now()
	rec := IterationRecord{Outcome: OutcomeSuccess, Results: []CommandResult{
		{Command: "ls", Success: true},
		{Command: "rm -rf /", Kind: overseererrors.KindSafetyViolation},
	}}
	assert.False(t, rec.Failed())
	assert.Equal(t, 1, rec.CommandFailures())
	assert.True(t, rec.Results[1].Rejected())

	rec.AddNote(StateAdmitting, overseererrors.KindNone, "dropped 2 commands over the cap", now)
	rec.Fail(overseererrors.KindPlannerFailure, "planner timed out")
	assert.True(t, rec.Failed())
	assert.Equal(t, overseererrors.KindPlannerFailure, rec.FailureKind)
	assert.Len(t, rec.Notes, 1)
}

func TestGoal_IsZero(t *testing.T) {
	assert.True(t, Goal{}.IsZero())
	assert.True(t, Goal{Text: "   "}.IsZero())
	assert.False(t, Goal{Text: "watch disk"}.IsZero())
}
