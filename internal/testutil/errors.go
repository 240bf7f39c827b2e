// Package testutil provides testing utilities for overseer.
//
// This package contains mock errors, a controllable clock and small helpers
// used across test files. It should only be imported by test files (*_test.go).
package testutil

import "errors"

// Mock errors for testing purposes.
var (
	// ErrMockPlanner simulates an unreachable planner.
	ErrMockPlanner = errors.New("planner unreachable")

	// ErrMockTransport simulates a notifier transport failure.
	ErrMockTransport = errors.New("transport failed")

	// ErrMockDisk simulates a failing disk write.
	ErrMockDisk = errors.New("disk write failed")

	// ErrMockSource simulates a failing command source.
	ErrMockSource = errors.New("command source unavailable")
)
