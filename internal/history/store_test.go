package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

func record(seq int64) domain.IterationRecord {
	started := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC).Add(time.Duration(seq) * time.Minute)
	return domain.IterationRecord{
		ID:       fmt.Sprintf("it-%d", seq),
		Sequence: seq,
		Goal:     domain.Goal{Text: "watch disk", SetBy: domain.GoalSetByOperator, SetAt: started},
		Decision: &domain.Decision{
			Explanation: "checking disk usage",
			Commands:    []domain.CommandSpec{{Command: "df -h", Intent: "disk"}},
		},
		Results: []domain.CommandResult{{
			Command:     "df -h",
			Success:     true,
			Stdout:      "/dev/sda1 40%",
			StartedAt:   started,
			CompletedAt: started.Add(time.Second),
			DurationMs:  1000,
		}},
		Outcome:     domain.OutcomeSuccess,
		StartedAt:   started,
		CompletedAt: started.Add(2 * time.Second),
	}
}

// backends opens each Store implementation in its own temp dir.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	file, err := Open(ctx, "jsonl", t.TempDir(), 0)
	require.NoError(t, err)
	sqlite, err := Open(ctx, "sqlite", t.TempDir(), 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = file.Close()
		_ = sqlite.Close()
	})
	return map[string]Store{"jsonl": file, "sqlite": sqlite}
}

func TestStore_AppendRecent(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			recs, err := store.Recent(ctx, 5)
			require.NoError(t, err)
			assert.Empty(t, recs)

			last, err := store.LastSequence(ctx)
			require.NoError(t, err)
			assert.Zero(t, last)

			for seq := int64(1); seq <= 4; seq++ {
				require.NoError(t, store.Append(ctx, record(seq)))
			}

			recs, err = store.Recent(ctx, 2)
			require.NoError(t, err)
			require.Len(t, recs, 2)
			assert.Equal(t, int64(3), recs[0].Sequence, "oldest first")
			assert.Equal(t, int64(4), recs[1].Sequence)
			if diff := cmp.Diff(record(4), recs[1]); diff != "" {
				t.Errorf("record mismatch (-want +got):\n%s", diff)
			}

			all, err := store.Recent(ctx, 0)
			require.NoError(t, err)
			assert.Len(t, all, 4)

			last, err = store.LastSequence(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(4), last)
		})
	}
}

func TestStore_Prune(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for seq := int64(1); seq <= 6; seq++ {
				require.NoError(t, store.Append(ctx, record(seq)))
			}

			n, err := store.Prune(ctx, 4)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			recs, err := store.Recent(ctx, 0)
			require.NoError(t, err)
			require.Len(t, recs, 4)
			assert.Equal(t, int64(3), recs[0].Sequence)

			n, err = store.Prune(ctx, 10)
			require.NoError(t, err)
			assert.Zero(t, n)

			_, err = store.Prune(ctx, 0)
			require.ErrorIs(t, err, overseererrors.ErrInvalidArgument)

			require.NoError(t, store.Append(ctx, record(7)), "appends continue after a prune")
			last, err := store.LastSequence(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(7), last)
		})
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	for _, backend := range []string{"jsonl", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()

			store, err := Open(ctx, backend, dir, 0)
			require.NoError(t, err)
			require.NoError(t, store.Append(ctx, record(1)))
			require.NoError(t, store.Append(ctx, record(2)))
			require.NoError(t, store.Close())

			store, err = Open(ctx, backend, dir, 0)
			require.NoError(t, err)
			defer func() { _ = store.Close() }()

			last, err := store.LastSequence(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(2), last)
		})
	}
}

func TestSQLiteStore_DuplicateSequence(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.Append(ctx, record(1)))
	err = store.Append(ctx, record(1))
	require.ErrorIs(t, err, overseererrors.ErrPersistence)
}

func TestFileStore_SkipsTornLine(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "iterations.jsonl")
	store := NewFileStore(path, 0)
	require.NoError(t, store.Append(ctx, record(1)))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString(`{"id":"it-2","sequ`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	recs, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "it-1", recs[0].ID)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), "postgres", t.TempDir(), 0)
	require.ErrorIs(t, err, overseererrors.ErrConfigInvalidStorage)
}
