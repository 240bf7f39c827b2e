package git

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) LockRetryConfig {
	return LockRetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDefaultLockRetryConfig(t *testing.T) {
	config := DefaultLockRetryConfig()

	assert.Equal(t, 5, config.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, config.InitialDelay)
	assert.Equal(t, 2*time.Second, config.MaxDelay)
	assert.InDelta(t, 2.0, config.Multiplier, 0.0001)
}

func TestMatchesLockFileError(t *testing.T) {
	assert.True(t, MatchesLockFileError("fatal: Unable to create '/repo/.git/index.lock': File exists."))
	assert.True(t, MatchesLockFileError("Another git process seems to be running in this repository"))
	assert.False(t, MatchesLockFileError("fatal: pathspec 'x' did not match any files"))
}

func TestRunWithLockRetry_LockErrorThenSuccess(t *testing.T) {
	calls := 0
	result, err := RunWithLockRetry(context.Background(), fastRetry(5), zerolog.Nop(), func(_ context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("fatal: unable to create '/path/.git/index.lock': file exists") //nolint:err113 // test error
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestRunWithLockRetry_NonLockErrorNotRetried(t *testing.T) {
	calls := 0
	_, err := RunWithLockRetry(context.Background(), fastRetry(5), zerolog.Nop(), func(_ context.Context) (int, error) {
		calls++
		return 0, errors.New("permission denied") //nolint:err113 // test error
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRunWithLockRetry_Exhausted(t *testing.T) {
	calls := 0
	_, err := RunWithLockRetry(context.Background(), fastRetry(3), zerolog.Nop(), func(_ context.Context) (string, error) {
		calls++
		return "", errors.New("index.lock exists") //nolint:err113 // test error
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRunWithLockRetry_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := RunWithLockRetry(ctx, fastRetry(3), zerolog.Nop(), func(_ context.Context) (string, error) {
		calls++
		return "", nil
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}
