package selfmod

import (
	"os"
	"time"

	overseererrors "github.com/mrz1836/overseer/internal/errors"
	"github.com/mrz1836/overseer/internal/fsutil"
)

// inflightMarker is written once every backup exists and removed when the
// modification reaches Committed or RolledBack. A marker found at startup
// means a process died mid-apply.
type inflightMarker struct {
	ModificationID string    `json:"modification_id"`
	BackupID       string    `json:"backup_id"`
	Summary        string    `json:"summary"`
	Files          []string  `json:"files"`
	StartedAt      time.Time `json:"started_at"`
	PID            int       `json:"pid"`
}

func writeMarker(path string, m inflightMarker) error {
	if err := fsutil.WriteJSON(path, m); err != nil {
		return overseererrors.Wrapf(overseererrors.ErrPersistence, "write in-flight marker: %v", err)
	}
	return nil
}

func readMarker(path string) (inflightMarker, bool, error) {
	var m inflightMarker
	found, err := fsutil.ReadJSON(path, &m)
	return m, found, err
}

func clearMarker(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return overseererrors.Wrapf(overseererrors.ErrPersistence, "remove in-flight marker: %v", err)
	}
	return nil
}
