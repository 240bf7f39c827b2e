//go:build unix

package flock

import "syscall"

// tryExclusive acquires an exclusive non-blocking lock on the file descriptor.
// It returns an error if the lock cannot be acquired immediately.
func tryExclusive(fd uintptr) error {
	return syscall.Flock(int(fd), syscall.LOCK_EX|syscall.LOCK_NB)
}

// unlock releases the lock on the file descriptor.
func unlock(fd uintptr) error {
	return syscall.Flock(int(fd), syscall.LOCK_UN)
}
