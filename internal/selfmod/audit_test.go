package selfmod

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

func TestAuditLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selfmod", "modifications.jsonl")
	log := NewAuditLog(path)
	ctx := context.Background()

	records, err := log.Records(0)
	require.NoError(t, err)
	assert.Empty(t, records)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, log.Append(ctx, domain.ModificationRecord{ID: id, State: domain.ModRejected}))
	}
	require.NoError(t, log.Append(ctx, domain.ModificationRecord{ID: "a", State: domain.ModRolledBack}))

	records, err = log.Records(2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "c", records[0].ID)

	rec, err := log.Find("a")
	require.NoError(t, err)
	assert.Equal(t, domain.ModRolledBack, rec.State, "latest record wins")

	_, err = log.Find("zzz")
	require.ErrorIs(t, err, overseererrors.ErrNotFound)
	assert.Equal(t, path, log.Path())
}

func TestAuditLog_SkipsTornLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modifications.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"id\":\"ok\",\"state\":\"committed\"}\n{\"id\":\"to"), 0o600))

	records, err := NewAuditLog(path).Records(0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ok", records[0].ID)
}
