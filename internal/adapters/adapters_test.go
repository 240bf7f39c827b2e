package adapters

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
	"github.com/mrz1836/overseer/internal/executor"
	"github.com/mrz1836/overseer/internal/selfmod"
	"github.com/mrz1836/overseer/internal/testutil"
)

type fakeRunner struct {
	out   executor.RunOutput
	err   error
	calls int
	stdin []byte
	argv  []string
	wait  bool
}

func (r *fakeRunner) Run(ctx context.Context, inv executor.Invocation) (executor.RunOutput, error) {
	r.calls++
	r.stdin = inv.Stdin
	r.argv = inv.Argv
	if r.wait {
		<-ctx.Done()
		return executor.RunOutput{ExitCode: -1}, ctx.Err()
	}
	return r.out, r.err
}

func TestProcessPlanner_Plan(t *testing.T) {
	runner := &fakeRunner{out: executor.RunOutput{Stdout: `{
		"explanation": "disk is filling up",
		"commands": [{"command": "df -h", "intent": "measure"}],
		"next_goal": "clean tmp",
		"usage": {"model": "m", "input_tokens": 10, "output_tokens": 5},
		"unknown": true
	}`}}
	p := NewProcessPlanner([]string{"planner", "--json"}, WithRunner(runner))

	goal := domain.Goal{Text: "watch disk", SetBy: domain.GoalSetByOperator}
	d, err := p.Plan(context.Background(), goal, nil)
	require.NoError(t, err)

	assert.Equal(t, "disk is filling up", d.Explanation)
	require.Len(t, d.Commands, 1)
	assert.Equal(t, "df -h", d.Commands[0].Command)
	assert.Equal(t, "clean tmp", d.NextGoal)
	require.NotNil(t, d.Usage)
	assert.Equal(t, 10, d.Usage.InputTokens)
	assert.Equal(t, []string{"planner", "--json"}, runner.argv)

	var sent PlanRequest
	require.NoError(t, json.Unmarshal(runner.stdin, &sent))
	assert.Equal(t, "watch disk", sent.Goal.Text)
	assert.NotNil(t, sent.Recent, "recent history is sent as an empty list")
}

func TestProcessPlanner_Failures(t *testing.T) {
	goal := domain.Goal{Text: "g"}
	tests := map[string]*fakeRunner{
		"non-zero exit": {out: executor.RunOutput{ExitCode: 2, Stderr: "boom"}, err: testutil.ErrMockPlanner},
		"empty answer": {out: executor.RunOutput{Stdout: "  "}},
		"not json":     {out: executor.RunOutput{Stdout: "sure, here is a plan"}},
		"truncated":     {out: executor.RunOutput{Stdout: "{", Truncated: true}},
	}
	for name, runner := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewProcessPlanner([]string{"planner"}, WithRunner(runner)).Plan(context.Background(), goal, nil)
			require.ErrorIs(t, err, overseererrors.ErrPlannerFailure)
		})
	}

	_, err := NewProcessPlanner(nil).Plan(context.Background(), goal, nil)
	require.ErrorIs(t, err, overseererrors.ErrEmptyValue)
}

func TestProcessPlanner_Timeout(t *testing.T) {
	runner := &fakeRunner{wait: true}
	p := NewProcessPlanner([]string{"planner"}, WithRunner(runner), WithTimeout(20*time.Millisecond))

	_, err := p.Plan(context.Background(), domain.Goal{Text: "g"}, nil)
	require.ErrorIs(t, err, overseererrors.ErrPlannerFailure)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProcessPatchGenerator_Generate(t *testing.T) {
	runner := &fakeRunner{out: executor.RunOutput{Stdout: `{
		"summary": "add helper",
		"changes": [{"path": "main.go", "content": "package main\n"}],
		"risk_level": "low"
	}`}}
	g := NewProcessPatchGenerator([]string{"patcher"}, WithRunner(runner))

	p, err := g.Generate(context.Background(), selfmod.SingleFile("main.go", "add helper"),
		[]selfmod.SourceFile{{Path: "main.go", Content: "package main\n"}})
	require.NoError(t, err)
	assert.Equal(t, "add helper", p.Summary)
	require.Len(t, p.Changes, 1)
	assert.Equal(t, domain.RiskLow, p.DeclaredRisk)

	var sent PatchRequest
	require.NoError(t, json.Unmarshal(runner.stdin, &sent))
	assert.Equal(t, "main.go", sent.Request.Target)
	require.Len(t, sent.Files, 1)
}

func TestStaticConfirmer(t *testing.T) {
	yes := NewStaticConfirmer(true, zerolog.Nop())
	ok, err := yes.RequestConfirmation(context.Background(), 120, "crossing warn")
	require.NoError(t, err)
	assert.True(t, ok)

	no := NewStaticConfirmer(false, zerolog.Nop())
	ok, err = no.RequestConfirmation(context.Background(), 120, "crossing warn")
	require.NoError(t, err)
	assert.False(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = yes.RequestConfirmation(ctx, 1, "x")
	require.ErrorIs(t, err, context.Canceled)
}

func appendInbox(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString(text)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestFileCommandSource_Poll(t *testing.T) {
	dir := t.TempDir()
	inbox := filepath.Join(dir, "inbox.jsonl")
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	src := NewFileCommandSource(inbox, dir, testutil.NewFakeClock(now), zerolog.Nop())
	ctx := context.Background()

	got, err := src.Poll(ctx)
	require.NoError(t, err)
	assert.Empty(t, got, "missing inbox has nothing")

	appendInbox(t, inbox, "check disk\n# comment\n\n{\"text\":\"rotate logs\",\"received_at\":\"2026-03-01T08:00:00Z\"}\n{bad json}\n")
	got, err = src.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "check disk", got[0].Text)
	assert.Equal(t, now, got[0].ReceivedAt)
	assert.Equal(t, "rotate logs", got[1].Text)
	assert.Equal(t, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), got[1].ReceivedAt)

	got, err = src.Poll(ctx)
	require.NoError(t, err)
	assert.Empty(t, got, "consumed lines are not replayed")

	appendInbox(t, inbox, "partial")
	got, err = src.Poll(ctx)
	require.NoError(t, err)
	assert.Empty(t, got, "an unterminated line waits")

	appendInbox(t, inbox, " line\n")
	restarted := NewFileCommandSource(inbox, dir, testutil.NewFakeClock(now), zerolog.Nop())
	got, err = restarted.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "partial line", got[0].Text)
}

func TestFileCommandSource_TruncatedInboxRestarts(t *testing.T) {
	dir := t.TempDir()
	inbox := filepath.Join(dir, "inbox.txt")
	src := NewFileCommandSource(inbox, dir, nil, zerolog.Nop())
	ctx := context.Background()

	appendInbox(t, inbox, "first instruction\nsecond instruction\n")
	_, err := src.Poll(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(inbox, []byte("new\n"), 0o600))
	got, err := src.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Text)
}

func TestFileCommandSource_OversizeLineIsSkipped(t *testing.T) {
	dir := t.TempDir()
	inbox := filepath.Join(dir, "inbox.txt")
	src := NewFileCommandSource(inbox, dir, nil, zerolog.Nop())
	ctx := context.Background()

	appendInbox(t, inbox, "before\n"+strings.Repeat("x", maxPollBytes+10))
	got, err := src.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "before", got[0].Text)

	got, err = src.Poll(ctx)
	require.NoError(t, err)
	assert.Empty(t, got, "an unterminated oversize line waits")

	appendInbox(t, inbox, "yyy\nafter\n")
	got, err = src.Poll(ctx)
	require.NoError(t, err)
	assert.Empty(t, got, "the oversize line is dropped")

	got, err = src.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "after", got[0].Text)
}

func TestFileCommandSource_Disabled(t *testing.T) {
	got, err := NewFileCommandSource("", t.TempDir(), nil, zerolog.Nop()).Poll(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}
