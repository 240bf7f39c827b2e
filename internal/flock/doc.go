// Package flock provides cross-platform advisory file locking.
//
// Locks are exclusive and held per open file descriptor, so two processes
// (or two Lock values in one process) contend for the same path. The ledger,
// the cooldown records and the modification lock all rely on this to stay
// consistent across rapid restarts.
//
// Usage:
//
//	lock := flock.New(path+".lock", 5*time.Second)
//	if err := lock.Acquire(ctx); err != nil {
//	    return err
//	}
//	defer func() { _ = lock.Release() }()
package flock
