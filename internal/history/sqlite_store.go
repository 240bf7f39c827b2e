package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
	"github.com/mrz1836/overseer/internal/fsutil"
)

const schema = `CREATE TABLE IF NOT EXISTS iterations (
	sequence     INTEGER PRIMARY KEY,
	id           TEXT NOT NULL,
	started_at   TEXT NOT NULL,
	outcome      TEXT NOT NULL,
	failure_kind TEXT NOT NULL DEFAULT '',
	record       TEXT NOT NULL
);`

// SQLiteStore keeps iteration records in a SQLite database. The full record
// is stored as JSON next to the columns used for filtering.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), fsutil.DirPerm); err != nil {
		return nil, overseererrors.Wrapf(overseererrors.ErrPersistence, "create history directory: %v", err)
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, overseererrors.Wrapf(overseererrors.ErrPersistence, "open history database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, overseererrors.Wrapf(overseererrors.ErrPersistence, "create history schema: %v", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Append inserts rec. A repeated sequence number is an error.
func (s *SQLiteStore) Append(ctx context.Context, rec domain.IterationRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return overseererrors.Wrapf(overseererrors.ErrPersistence, "encode iteration %d: %v", rec.Sequence, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO iterations (sequence, id, started_at, outcome, failure_kind, record) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Sequence,
		rec.ID,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		string(rec.Outcome),
		string(rec.FailureKind),
		string(data),
	)
	if err != nil {
		return overseererrors.Wrapf(overseererrors.ErrPersistence, "insert iteration %d: %v", rec.Sequence, err)
	}
	return nil
}

// Recent returns the last n records, oldest first.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]domain.IterationRecord, error) {
	query := `SELECT record FROM iterations ORDER BY sequence DESC`
	var args []any
	if n > 0 {
		query += ` LIMIT ?`
		args = append(args, n)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, overseererrors.Wrapf(overseererrors.ErrPersistence, "query history: %v", err)
	}
	defer func() { _ = rows.Close() }()

	var records []domain.IterationRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, overseererrors.Wrapf(overseererrors.ErrPersistence, "scan history: %v", err)
		}
		var rec domain.IterationRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("%w: iteration row: %w", overseererrors.ErrCorruptState, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, overseererrors.Wrapf(overseererrors.ErrPersistence, "read history: %v", err)
	}
	slices.Reverse(records)
	return records, nil
}

// LastSequence returns the highest stored sequence number.
func (s *SQLiteStore) LastSequence(ctx context.Context) (int64, error) {
	var last int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM iterations`).Scan(&last); err != nil {
		return 0, overseererrors.Wrapf(overseererrors.ErrPersistence, "query last sequence: %v", err)
	}
	return last, nil
}

// Prune deletes all but the newest retain rows.
func (s *SQLiteStore) Prune(ctx context.Context, retain int) (int, error) {
	if retain <= 0 {
		return 0, overseererrors.Wrapf(overseererrors.ErrInvalidArgument, "retain must be positive, got %d", retain)
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM iterations WHERE sequence NOT IN (SELECT sequence FROM iterations ORDER BY sequence DESC LIMIT ?)`,
		retain,
	)
	if err != nil {
		return 0, overseererrors.Wrapf(overseererrors.ErrPersistence, "prune history: %v", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, overseererrors.Wrapf(overseererrors.ErrPersistence, "prune history: %v", err)
	}
	return int(n), nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
