//go:build unix

package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/overseer/internal/domain"
)

func TestProcessRunner_CapturesOutputAndExitCode(t *testing.T) {
	r := &ProcessRunner{}

	out, err := r.Run(context.Background(), Invocation{
		Argv: []string{"sh", "-c", "echo out; echo err 1>&2; exit 3"},
		Dir:  t.TempDir(),
	})

	require.Error(t, err)
	assert.Equal(t, "out\n", out.Stdout)
	assert.Equal(t, "err\n", out.Stderr)
	assert.Equal(t, 3, out.ExitCode)
	assert.False(t, out.Truncated)
}

func TestProcessRunner_FeedsStdin(t *testing.T) {
	r := &ProcessRunner{}

	out, err := r.Run(context.Background(), Invocation{
		Argv:  []string{"cat"},
		Dir:   t.TempDir(),
		Stdin: []byte(`{"goal":"x"}`),
	})

	require.NoError(t, err)
	assert.JSONEq(t, `{"goal":"x"}`, out.Stdout)
}

func TestProcessRunner_TruncatesOutput(t *testing.T) {
	r := &ProcessRunner{}

	out, err := r.Run(context.Background(), Invocation{
		Argv:           []string{"sh", "-c", "i=0; while [ $i -lt 100 ]; do printf 0123456789; i=$((i+1)); done"},
		Dir:            t.TempDir(),
		MaxOutputBytes: 100,
	})

	require.NoError(t, err)
	assert.True(t, out.Truncated)
	assert.Equal(t, int64(900), out.TruncatedBytes)
	assert.True(t, strings.HasSuffix(out.Stdout, "[truncated 900 bytes]"))
}

func TestProcessRunner_TimeoutKillsProcessGroup(t *testing.T) {
	r := &ProcessRunner{WaitDelay: 500 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	out, err := r.Run(ctx, Invocation{
		// The grandchild keeps the pipe open unless the whole group is killed.
		Argv: []string{"sh", "-c", "sleep 30 & sleep 30"},
		Dir:  t.TempDir(),
	})

	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, domain.ExitCodeUnavailable, out.ExitCode)
}

func TestProcessRunner_MissingProgram(t *testing.T) {
	r := &ProcessRunner{}

	out, err := r.Run(context.Background(), Invocation{Argv: []string{"definitely-not-a-real-program-xyz"}})

	require.Error(t, err)
	assert.Equal(t, domain.ExitCodeUnavailable, out.ExitCode)
}

func TestProcessRunner_EmptyArgv(t *testing.T) {
	_, err := (&ProcessRunner{}).Run(context.Background(), Invocation{})
	require.Error(t, err)
}
