package history

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/mrz1836/overseer/internal/constants"
	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
	"github.com/mrz1836/overseer/internal/flock"
	"github.com/mrz1836/overseer/internal/fsutil"
)

// FileStore keeps iteration records as JSON lines. Appends and pruning take
// an exclusive lock on <path>.lock so another process never sees a half
// rewritten file.
type FileStore struct {
	path        string
	lockTimeout time.Duration
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string, lockTimeout time.Duration) *FileStore {
	if lockTimeout <= 0 {
		lockTimeout = constants.DefaultLockTimeout
	}
	return &FileStore{path: path, lockTimeout: lockTimeout}
}

// Path returns the JSON-lines file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) lockPath() string {
	return s.path + constants.LockFileSuffix
}

// Append writes rec as one line.
func (s *FileStore) Append(ctx context.Context, rec domain.IterationRecord) error {
	err := flock.With(ctx, s.lockPath(), s.lockTimeout, func() error {
		return fsutil.AppendJSONLine(ctx, s.path, rec)
	})
	if err != nil {
		return overseererrors.Wrapf(overseererrors.ErrPersistence, "append iteration %d: %v", rec.Sequence, err)
	}
	return nil
}

// Recent returns the last n records. A torn final line is skipped.
func (s *FileStore) Recent(_ context.Context, n int) ([]domain.IterationRecord, error) {
	records, err := s.readAll()
	if err != nil {
		return nil, err
	}
	return tail(records, n), nil
}

// LastSequence returns the sequence of the newest record.
func (s *FileStore) LastSequence(_ context.Context) (int64, error) {
	records, err := s.readAll()
	if err != nil {
		return 0, err
	}
	var last int64
	for _, r := range records {
		if r.Sequence > last {
			last = r.Sequence
		}
	}
	return last, nil
}

// Prune rewrites the file with the newest retain records.
func (s *FileStore) Prune(ctx context.Context, retain int) (int, error) {
	if retain <= 0 {
		return 0, overseererrors.Wrapf(overseererrors.ErrInvalidArgument, "retain must be positive, got %d", retain)
	}

	removed := 0
	err := flock.With(ctx, s.lockPath(), s.lockTimeout, func() error {
		records, err := s.readAll()
		if err != nil {
			return err
		}
		if len(records) <= retain {
			return nil
		}
		keep := records[len(records)-retain:]

		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for _, r := range keep {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		if err := fsutil.AtomicWrite(s.path, buf.Bytes(), fsutil.FilePerm); err != nil {
			return err
		}
		removed = len(records) - retain
		return nil
	})
	if err != nil {
		return 0, overseererrors.Wrapf(overseererrors.ErrPersistence, "prune history: %v", err)
	}
	return removed, nil
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) readAll() ([]domain.IterationRecord, error) {
	var records []domain.IterationRecord
	_, err := fsutil.ReadJSONLines(s.path, func(line []byte) error {
		var rec domain.IterationRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return err
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, overseererrors.Wrap(err, "read history")
	}
	return records, nil
}
