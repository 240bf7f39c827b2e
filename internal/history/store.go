// Package history persists iteration records.
//
// Two backends implement Store: FileStore appends JSON lines to
// history/iterations.jsonl, and SQLiteStore keeps one row per iteration in
// history/history.db. Both order records by sequence number and survive
// restarts, so the scheduler can continue numbering where it left off.
package history

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mrz1836/overseer/internal/constants"
	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

// Store persists iteration records.
type Store interface {
	// Append persists rec. Records are expected in increasing sequence order.
	Append(ctx context.Context, rec domain.IterationRecord) error

	// Recent returns up to the last n records, oldest first. n <= 0 returns all.
	Recent(ctx context.Context, n int) ([]domain.IterationRecord, error)

	// LastSequence returns the highest stored sequence number, or 0.
	LastSequence(ctx context.Context) (int64, error)

	// Prune keeps the newest retain records and reports how many were removed.
	Prune(ctx context.Context, retain int) (int, error)

	Close() error
}

// Open returns the store for backend rooted at stateDir.
func Open(ctx context.Context, backend, stateDir string, lockTimeout time.Duration) (Store, error) {
	dir := filepath.Join(stateDir, constants.HistoryDir)
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "jsonl":
		return NewFileStore(filepath.Join(dir, constants.IterationsFileName), lockTimeout), nil
	case "sqlite":
		return OpenSQLite(ctx, filepath.Join(dir, constants.HistoryDBFileName))
	default:
		return nil, fmt.Errorf("%w: unknown history backend %q", overseererrors.ErrConfigInvalidStorage, backend)
	}
}

// tail returns the last n records, or all of them when n <= 0.
func tail(records []domain.IterationRecord, n int) []domain.IterationRecord {
	if n > 0 && len(records) > n {
		return records[len(records)-n:]
	}
	return records
}
