package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

func TestWriterNotifier(t *testing.T) {
	ctx := context.Background()

	var buf bytes.Buffer
	require.NoError(t, NewWriterNotifier(&buf, false).Send(ctx, "hello"))
	assert.Equal(t, "hello\n", buf.String())

	buf.Reset()
	require.NoError(t, NewWriterNotifier(&buf, true).Send(ctx, "ring"))
	assert.Equal(t, "\aring\n", buf.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("pipe closed") }

func TestWriterNotifier_WriteError(t *testing.T) {
	err := NewWriterNotifier(failingWriter{}, false).Send(context.Background(), "x")
	require.ErrorIs(t, err, overseererrors.ErrNotificationDelivery)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(zerolog.New(&buf))

	require.NoError(t, n.Send(context.Background(), "startup"))
	require.NoError(t, n.SendStructuredLog(context.Background(), StructuredLog{
		Iteration: 7,
		Goal:      "check disks",
		Results:   []domain.CommandResult{{Command: "df -h", Success: true}, {Command: "du", Success: false}},
	}))

	out := buf.String()
	assert.Contains(t, out, `"message":"startup"`)
	assert.Contains(t, out, `"iteration":7`)
	assert.Contains(t, out, `"failed_commands":1`)
}

func TestMultiNotifier(t *testing.T) {
	ctx := context.Background()
	a := &countingNotifier{}
	b := &countingNotifier{err: errors.New("webhook 500")}
	c := &countingNotifier{}

	err := MultiNotifier{a, b, nil, c}.Send(ctx, "alert")

	require.ErrorIs(t, err, overseererrors.ErrNotificationDelivery)
	assert.Contains(t, err.Error(), "webhook 500")
	assert.Equal(t, 1, a.sent())
	assert.Equal(t, 1, b.sent())
	assert.Equal(t, 1, c.sent(), "a failing notifier does not block later ones")

	require.NoError(t, MultiNotifier{a, c}.SendStructuredLog(ctx, StructuredLog{}))
}

func TestRateLimitedNotifier_DropsWhenEmpty(t *testing.T) {
	ctx := context.Background()
	next := &countingNotifier{}
	r := NewRateLimitedNotifier(next, 1, 2, zerolog.Nop())

	for i := 0; i < 5; i++ {
		require.NoError(t, r.Send(ctx, "storm"))
	}

	assert.Equal(t, 2, next.sent())
	assert.Equal(t, int64(3), r.Dropped())
}

func TestRateLimitedNotifier_Unlimited(t *testing.T) {
	ctx := context.Background()
	next := &countingNotifier{}
	r := NewRateLimitedNotifier(next, 0, 0, zerolog.Nop())

	for i := 0; i < 50; i++ {
		require.NoError(t, r.SendStructuredLog(ctx, StructuredLog{}))
	}
	assert.Equal(t, 50, next.sent())
	assert.Zero(t, r.Dropped())
}

func TestHeading(t *testing.T) {
	tests := map[string]string{
		"startup":                  "Startup",
		"budget_warning":           "Budget Warning",
		"degraded:planner_failure": "Degraded: Planner Failure",
	}
	for class, want := range tests {
		assert.Equal(t, want, Heading(class), class)
	}
}

func TestFormatStructuredLog(t *testing.T) {
	out := FormatStructuredLog(StructuredLog{
		Iteration: 12,
		Goal:      "keep /var below 80%",
		Thinking:  "disk usage looks stable",
		Outcome:   domain.OutcomeFailed,
		Results: []domain.CommandResult{
			{Command: "df -h /var", Success: true, Stdout: "/dev/sda1 40%\n"},
			{Command: "rm -rf /", Success: false, ExitCode: -1, Error: "safety violation: dangerous pattern"},
		},
		FailureKind: overseererrors.KindCommandExecutionError,
	})

	lines := strings.Split(out, "\n")
	assert.Equal(t, "Iteration 12 (Failed)", lines[0])
	assert.Contains(t, out, "Goal: keep /var below 80%")
	assert.Contains(t, out, "1. df -h /var -> ok (exit 0)")
	assert.Contains(t, out, "/dev/sda1 40%")
	assert.Contains(t, out, "2. rm -rf / -> failed (exit -1)")
	assert.Contains(t, out, "safety violation")
	assert.Contains(t, out, "Failure: Command Execution Error")
	assert.False(t, strings.HasSuffix(out, "\n"))
}

func TestFormatStructuredLog_CommandsWithoutResults(t *testing.T) {
	out := FormatStructuredLog(StructuredLog{Iteration: 1, Goal: "g", Commands: []string{"uptime"}})
	assert.Contains(t, out, "Commands:\n  1. uptime")
}
