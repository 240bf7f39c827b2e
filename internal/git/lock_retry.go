package git

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LockRetryConfig configures retry behavior for lock file errors.
type LockRetryConfig struct {
	// MaxAttempts is the maximum number of attempts (default: 5).
	MaxAttempts int
	// InitialDelay is the initial delay between retries (default: 100ms).
	InitialDelay time.Duration
	// MaxDelay is the maximum delay cap (default: 2s).
	MaxDelay time.Duration
	// Multiplier is the delay multiplier per attempt (default: 2.0).
	Multiplier float64
}

// DefaultLockRetryConfig returns the retry settings used by CLIRunner.
func DefaultLockRetryConfig() LockRetryConfig {
	return LockRetryConfig{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}
}

// lockFileMarkers are fragments of git's messages when another git process
// holds a repository lock.
//
//nolint:gochecknoglobals // Read-only lookup table
var lockFileMarkers = []string{
	"index.lock",
	"unable to create",
	"another git process seems to be running",
	"cannot lock ref",
}

// MatchesLockFileError reports whether msg describes a held git lock.
func MatchesLockFileError(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range lockFileMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// RunWithLockRetry executes a git operation, retrying with exponential backoff
// while it fails with a lock file error. Other errors are returned immediately.
func RunWithLockRetry[R any](
	ctx context.Context,
	config LockRetryConfig,
	logger zerolog.Logger,
	operation func(ctx context.Context) (R, error),
) (R, error) {
	var zero R
	var lastErr error
	delay := config.InitialDelay
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := operation(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !MatchesLockFileError(err.Error()) {
			return zero, err
		}

		logger.Debug().
			Int("attempt", attempt).
			Int("max_attempts", config.MaxAttempts).
			Dur("delay", delay).
			Err(err).
			Msg("git lock file error, retrying")

		if attempt >= config.MaxAttempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * config.Multiplier)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	logger.Warn().
		Int("attempts", config.MaxAttempts).
		Err(lastErr).
		Msg("git lock file retry exhausted")

	return zero, lastErr
}
