package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

func TestPricing_Cost(t *testing.T) {
	p := testPricing(t)

	assert.InDelta(t, 0.0525, p.Cost("gpt-4.1-mini", 1500, 500), 1e-9)
	assert.InDelta(t, 6.0, p.Cost("gpt-4", 1000, 500), 1e-9)
	assert.InDelta(t, p.Cost("gpt-4.1-mini", 2000, 1000), p.Cost("unknown", 2000, 1000), 1e-9,
		"unknown models use the default model's rate")
	assert.InDelta(t, 0.0, p.Cost("gpt-4", -5, 0), 1e-9)
}

func TestNewPricing_Validation(t *testing.T) {
	_, err := NewPricing("missing", map[string]Rate{"a": {InputPer1K: 1}})
	require.ErrorIs(t, err, overseererrors.ErrInvalidArgument)

	_, err = NewPricing("a", map[string]Rate{"a": {InputPer1K: -1}})
	require.ErrorIs(t, err, overseererrors.ErrInvalidArgument)
}

func TestDayTypeFor(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		offset int
		want   domain.DayType
	}{
		{0, domain.DaySpecial},
		{1, domain.DayNormal},
		{5, domain.DayNormal},
		{6, domain.DaySpecial},
		{7, domain.DayNormal},
		{12, domain.DaySpecial},
		{30, domain.DaySpecial},
		{-6, domain.DaySpecial},
		{-1, domain.DayNormal},
	}

	for _, tt := range tests {
		day := anchor.AddDate(0, 0, tt.offset).Add(23 * time.Hour)
		assert.Equal(t, tt.want, dayTypeFor(anchor, day, 6), "offset %d", tt.offset)
	}

	assert.Equal(t, domain.DayNormal, dayTypeFor(anchor, anchor, 0), "a zero cycle disables special days")
}

func TestThresholds_TierFor(t *testing.T) {
	special := Thresholds{Warn: 500, Escalate: 900, Stop: 1000}
	normal := Thresholds{Warn: 200, Stop: 300}

	assert.Equal(t, domain.TierNone, special.tierFor(499))
	assert.Equal(t, domain.TierWarn, special.tierFor(500))
	assert.Equal(t, domain.TierEscalate, special.tierFor(900))
	assert.Equal(t, domain.TierStop, special.tierFor(1000))
	assert.Equal(t, domain.TierWarn, normal.tierFor(299.99))
	assert.Equal(t, domain.TierStop, normal.withAllowance(50).tierFor(350))
	assert.Equal(t, domain.TierWarn, normal.withAllowance(50).tierFor(349))
}
