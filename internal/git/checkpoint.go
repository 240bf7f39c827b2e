package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Checkpointer commits applied self-modifications so each one is a single
// revertible revision.
type Checkpointer struct {
	runner Runner
	logger zerolog.Logger
}

// NewCheckpointer returns a Checkpointer over runner.
func NewCheckpointer(runner Runner, logger zerolog.Logger) *Checkpointer {
	return &Checkpointer{runner: runner, logger: logger}
}

// Checkpoint stages paths and commits them. It returns the new HEAD revision,
// or "" when none of paths had changes to commit.
func (c *Checkpointer) Checkpoint(ctx context.Context, id, summary string, paths []string) (string, error) {
	if len(paths) == 0 {
		return "", nil
	}
	if err := c.runner.Add(ctx, paths); err != nil {
		return "", err
	}

	status, err := c.runner.Status(ctx)
	if err != nil {
		return "", err
	}
	if !status.HasStagedChanges() {
		c.logger.Debug().Str("modification_id", id).Msg("no staged changes, skipping checkpoint")
		return "", nil
	}

	if err := c.runner.Commit(ctx, CommitMessage(id, summary, paths)); err != nil {
		return "", err
	}
	rev, err := c.runner.Head(ctx)
	if err != nil {
		return "", err
	}

	c.logger.Info().
		Str("modification_id", id).
		Str("revision", rev).
		Int("files", len(paths)).
		Msg("modification checkpoint committed")
	return rev, nil
}

// CommitMessage builds the checkpoint commit message.
func CommitMessage(id, summary string, paths []string) string {
	subject := strings.TrimSpace(strings.SplitN(summary, "\n", 2)[0])
	if subject == "" {
		subject = "apply self-modification"
	}
	if len(subject) > 72 {
		subject = subject[:69] + "..."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "overseer: %s\n\n", subject)
	fmt.Fprintf(&b, "Modification: %s\n", id)
	b.WriteString("Files:\n")
	for _, p := range paths {
		fmt.Fprintf(&b, "- %s\n", p)
	}
	return b.String()
}
