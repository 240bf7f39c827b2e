package billing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/overseer/internal/constants"
	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

func TestFileLedger_UpdateAndGet(t *testing.T) {
	ctx := context.Background()
	l := NewFileLedger(t.TempDir(), time.Second)

	_, found, err := l.Get(ctx, "2026-03-02")
	require.NoError(t, err)
	assert.False(t, found)

	day, err := l.Update(ctx, "2026-03-02", func(d *domain.LedgerDay, exists bool) error {
		assert.False(t, exists)
		d.CumulativeSpend = 12.5
		d.DayType = domain.DayNormal
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", day.Date)

	got, found, err := l.Get(ctx, "2026-03-02")
	require.NoError(t, err)
	require.True(t, found)
	assert.InDelta(t, 12.5, got.CumulativeSpend, 1e-9)

	_, err = os.Stat(filepath.Join(l.Dir(), "2026-03-02.json"))
	require.NoError(t, err)
}

func TestFileLedger_UpdateErrorLeavesRecord(t *testing.T) {
	ctx := context.Background()
	l := NewFileLedger(t.TempDir(), time.Second)
	_, err := l.Update(ctx, "2026-03-02", func(d *domain.LedgerDay, _ bool) error {
		d.CumulativeSpend = 1
		return nil
	})
	require.NoError(t, err)

	_, err = l.Update(ctx, "2026-03-02", func(d *domain.LedgerDay, _ bool) error {
		d.CumulativeSpend = 99
		return overseererrors.ErrInvalidArgument
	})
	require.ErrorIs(t, err, overseererrors.ErrInvalidArgument)

	got, _, err := l.Get(ctx, "2026-03-02")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got.CumulativeSpend, 1e-9)
}

func TestFileLedger_CorruptRecord(t *testing.T) {
	ctx := context.Background()
	l := NewFileLedger(t.TempDir(), time.Second)
	require.NoError(t, os.MkdirAll(l.Dir(), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(l.Dir(), "2026-03-02.json"), []byte("{not json"), 0o600))

	_, _, err := l.Get(ctx, "2026-03-02")
	require.ErrorIs(t, err, overseererrors.ErrCorruptState)
}

func TestFileLedger_AnchorIsStable(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	first := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	a, err := NewFileLedger(dir, time.Second).Anchor(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01", a.StartDate)

	b, err := NewFileLedger(dir, time.Second).Anchor(ctx, first.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01", b.StartDate)

	_, err = os.Stat(filepath.Join(dir, constants.BillingDir, constants.LedgerAnchorFileName))
	require.NoError(t, err)
}

func TestFileLedger_DaysSkipsNonLedgerFiles(t *testing.T) {
	ctx := context.Background()
	l := NewFileLedger(t.TempDir(), time.Second)
	_, err := l.Anchor(ctx, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	for _, date := range []string{"2026-03-03", "2026-03-01"} {
		_, err := l.Update(ctx, date, func(*domain.LedgerDay, bool) error { return nil })
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(l.Dir(), "notes.json"), []byte("{}"), 0o600))

	days, err := l.Days(ctx)
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, "2026-03-01", days[0].Date)
	assert.Equal(t, "2026-03-03", days[1].Date)
}

func TestFileLedger_DaysEmpty(t *testing.T) {
	days, err := NewFileLedger(t.TempDir(), time.Second).Days(context.Background())
	require.NoError(t, err)
	assert.Empty(t, days)
}
