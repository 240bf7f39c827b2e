package flock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mrz1836/overseer/internal/constants"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

// Lock is an exclusive lock on a lock file. The zero value is not usable;
// create one with New. A Lock may be acquired again after Release.
type Lock struct {
	path    string
	timeout time.Duration

	mu   sync.Mutex
	file *os.File
}

// New creates a Lock for path. A non-positive timeout uses the default lock timeout.
func New(path string, timeout time.Duration) *Lock {
	if timeout <= 0 {
		timeout = constants.DefaultLockTimeout
	}
	return &Lock{path: path, timeout: timeout}
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Acquire blocks until the lock is held, the timeout elapses, or ctx is done.
// A timeout is reported as ErrLockTimedOut.
func (l *Lock) Acquire(ctx context.Context) error {
	file, err := l.open()
	if err != nil {
		return err
	}

	deadline := time.Now().Add(l.timeout)
	for {
		select {
		case <-ctx.Done():
			_ = file.Close()
			return ctx.Err()
		default:
		}

		if err := tryExclusive(file.Fd()); err == nil {
			l.hold(file)
			return nil
		}

		if time.Now().After(deadline) {
			_ = file.Close()
			return fmt.Errorf("%s: %w after %v", l.path, overseererrors.ErrLockTimedOut, l.timeout)
		}

		timer := time.NewTimer(constants.LockRetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			_ = file.Close()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TryAcquire attempts the lock once without waiting. It reports false when
// another holder has it.
func (l *Lock) TryAcquire() (bool, error) {
	file, err := l.open()
	if err != nil {
		return false, err
	}
	if err := tryExclusive(file.Fd()); err != nil {
		_ = file.Close()
		return false, nil
	}
	l.hold(file)
	return true, nil
}

// Release unlocks and closes the lock file. Releasing an unheld lock is a no-op.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	_ = unlock(l.file.Fd())
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *Lock) open() (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	//nolint:gosec // G304: lock paths are built from the configured state directory
	file, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	return file, nil
}

func (l *Lock) hold(file *os.File) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.file = file
}

// With runs fn while holding an exclusive lock on path.
func With(ctx context.Context, path string, timeout time.Duration, fn func() error) error {
	lock := New(path, timeout)
	if err := lock.Acquire(ctx); err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()
	return fn()
}
