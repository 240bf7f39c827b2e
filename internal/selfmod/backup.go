package selfmod

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mrz1836/overseer/internal/clock"
	"github.com/mrz1836/overseer/internal/constants"
	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
	"github.com/mrz1836/overseer/internal/fsutil"
)

// Backup is one snapshot set taken before a plan is applied.
type Backup struct {
	ID         string                  `json:"id"`
	SourceRoot string                  `json:"source_root"`
	CreatedAt  time.Time               `json:"created_at"`
	Snapshots  []domain.BackupSnapshot `json:"snapshots"`
}

// SnapshotPaths returns the location of every snapshot copy.
func (b Backup) SnapshotPaths() []string {
	paths := make([]string, 0, len(b.Snapshots))
	for _, s := range b.Snapshots {
		if s.Existed {
			paths = append(paths, s.SnapshotPath)
		}
	}
	return paths
}

// writeFunc is the file write used for snapshots and restores.
type writeFunc func(path string, data []byte, perm os.FileMode) error

// BackupStore keeps snapshot sets under selfmod/backups/<id>/.
type BackupStore struct {
	dir   string
	clock clock.Clock
	write writeFunc
}

// NewBackupStore returns a store rooted at dir.
func NewBackupStore(dir string, c clock.Clock) *BackupStore {
	return &BackupStore{dir: dir, clock: clock.OrReal(c), write: fsutil.AtomicWrite}
}

// Dir returns the backup directory.
func (s *BackupStore) Dir() string {
	return s.dir
}

// snapshotName builds <stem>_<YYYYmmdd_HHMMSS><ext>.
func snapshotName(base string, at time.Time) string {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return stem + "_" + at.Format(constants.BackupTimestampFormat) + ext
}

// Create snapshots every path (relative to root) and writes the manifest.
// Paths that do not exist yet are recorded so a restore removes them. Any
// failure removes the partial set and returns ErrBackupFailure; nothing under
// root is touched either way.
func (s *BackupStore) Create(ctx context.Context, root string, paths []string) (Backup, error) {
	now := s.clock.Now()
	b := Backup{ID: uuid.NewString(), SourceRoot: root, CreatedAt: now}
	setDir := filepath.Join(s.dir, b.ID)

	fail := func(err error) (Backup, error) {
		_ = os.RemoveAll(setDir)
		return Backup{}, fmt.Errorf("%w: %w", overseererrors.ErrBackupFailure, err)
	}

	for _, rel := range paths {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		src := filepath.Join(root, filepath.FromSlash(rel))
		snap := domain.BackupSnapshot{SourcePath: rel, CreatedAt: now}

		info, err := os.Stat(src)
		switch {
		case errors.Is(err, os.ErrNotExist):
			b.Snapshots = append(b.Snapshots, snap)
			continue
		case err != nil:
			return fail(fmt.Errorf("stat %s: %w", rel, err))
		case !info.Mode().IsRegular():
			return fail(fmt.Errorf("%s is not a regular file", rel))
		}

		data, err := os.ReadFile(src) //nolint:gosec // G304: confined to the source root
		if err != nil {
			return fail(fmt.Errorf("read %s: %w", rel, err))
		}
		sum := sha256.Sum256(data)

		snap.Existed = true
		snap.SHA256 = hex.EncodeToString(sum[:])
		snap.Mode = uint32(info.Mode().Perm())
		snap.SnapshotPath = filepath.Join(setDir, filepath.Dir(filepath.FromSlash(rel)), snapshotName(filepath.Base(rel), now))
		if err := s.write(snap.SnapshotPath, data, fsutil.FilePerm); err != nil {
			return fail(fmt.Errorf("snapshot %s: %w", rel, err))
		}
		b.Snapshots = append(b.Snapshots, snap)
	}

	if err := fsutil.WriteJSON(filepath.Join(setDir, constants.BackupManifestName), b); err != nil {
		return fail(fmt.Errorf("write manifest: %w", err))
	}
	return b, nil
}

// Load reads the manifest of backup id.
func (s *BackupStore) Load(id string) (Backup, error) {
	var b Backup
	found, err := fsutil.ReadJSON(filepath.Join(s.dir, id, constants.BackupManifestName), &b)
	if err != nil {
		return Backup{}, err
	}
	if !found {
		return Backup{}, overseererrors.Wrapf(overseererrors.ErrNotFound, "backup %s", id)
	}
	return b, nil
}

// Restore puts every snapshotted file back byte for byte and removes files
// the plan created. Every snapshot is attempted; failures are joined.
func (s *BackupStore) Restore(b Backup) error {
	var errs []error
	for _, snap := range b.Snapshots {
		target := filepath.Join(b.SourceRoot, filepath.FromSlash(snap.SourcePath))
		if !snap.Existed {
			if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, fmt.Errorf("remove created %s: %w", snap.SourcePath, err))
			}
			continue
		}

		data, err := os.ReadFile(snap.SnapshotPath)
		if err != nil {
			errs = append(errs, fmt.Errorf("read snapshot of %s: %w", snap.SourcePath, err))
			continue
		}
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) != snap.SHA256 {
			errs = append(errs, fmt.Errorf("%w: snapshot of %s fails its checksum", overseererrors.ErrCorruptState, snap.SourcePath))
			continue
		}
		mode := os.FileMode(snap.Mode)
		if mode == 0 {
			mode = fsutil.FilePerm
		}
		if err := s.write(target, data, mode); err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", snap.SourcePath, err))
		}
	}
	return errors.Join(errs...)
}

// List returns every readable backup manifest, oldest first.
func (s *BackupStore) List() ([]Backup, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, overseererrors.Wrap(err, "list backups")
	}

	var backups []Backup
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		b, err := s.Load(e.Name())
		if err != nil {
			continue
		}
		backups = append(backups, b)
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].CreatedAt.Before(backups[j].CreatedAt) })
	return backups, nil
}

// Prune deletes backup sets older than olderThan, except those in keep.
// Directories without a readable manifest are aged by modification time.
func (s *BackupStore) Prune(ctx context.Context, olderThan time.Duration, keep map[string]bool) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, overseererrors.Wrap(err, "list backups")
	}

	cutoff := s.clock.Now().Add(-olderThan)
	pruned := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return pruned, err
		}
		if !e.IsDir() || keep[e.Name()] {
			continue
		}

		created := time.Time{}
		if b, err := s.Load(e.Name()); err == nil {
			created = b.CreatedAt
		} else if info, infoErr := e.Info(); infoErr == nil {
			created = info.ModTime()
		}
		if created.IsZero() || !created.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
			return pruned, overseererrors.Wrapf(err, "remove backup %s", e.Name())
		}
		pruned++
	}
	return pruned, nil
}
