package selfmod

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
	"github.com/mrz1836/overseer/internal/fsutil"
)

// AuditLog is the append-only record of every modification attempt.
type AuditLog struct {
	mu   sync.Mutex
	path string
}

// NewAuditLog returns an audit log backed by path.
func NewAuditLog(path string) *AuditLog {
	return &AuditLog{path: path}
}

// Path returns the log file path.
func (a *AuditLog) Path() string {
	return a.path
}

// Append writes rec as one JSON line.
func (a *AuditLog) Append(ctx context.Context, rec domain.ModificationRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := fsutil.AppendJSONLine(ctx, a.path, rec); err != nil {
		return overseererrors.Wrapf(overseererrors.ErrPersistence, "append audit record %s: %v", rec.ID, err)
	}
	return nil
}

// Records returns up to the last n records, oldest first. n <= 0 returns all.
func (a *AuditLog) Records(n int) ([]domain.ModificationRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var records []domain.ModificationRecord
	_, err := fsutil.ReadJSONLines(a.path, func(line []byte) error {
		var rec domain.ModificationRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return err
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, overseererrors.Wrap(err, "read audit log")
	}
	if n > 0 && len(records) > n {
		records = records[len(records)-n:]
	}
	return records, nil
}

// Find returns the most recent record with id.
func (a *AuditLog) Find(id string) (domain.ModificationRecord, error) {
	records, err := a.Records(0)
	if err != nil {
		return domain.ModificationRecord{}, err
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].ID == id {
			return records[i], nil
		}
	}
	return domain.ModificationRecord{}, overseererrors.Wrapf(overseererrors.ErrNotFound, "modification %s", id)
}
