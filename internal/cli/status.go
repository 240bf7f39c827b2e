package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mrz1836/overseer/internal/billing"
	"github.com/mrz1836/overseer/internal/domain"
)

// statusReport is the JSON form of overseer status.
type statusReport struct {
	Goal                   domain.Goal             `json:"goal"`
	LastIteration          *domain.IterationRecord `json:"last_iteration,omitempty"`
	Budget                 billing.Summary         `json:"budget"`
	ModificationInProgress bool                    `json:"modification_in_progress"`
	StateDir               string                  `json:"state_dir"`
}

// AddStatusCommand adds the status command to the root command.
func AddStatusCommand(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current goal, last iteration and budget",
		Long: `Show a snapshot of persisted control state: the active goal and who set
it, the most recent iteration, today's spend against its thresholds, and
whether a self-modification currently holds the source tree.

Examples:
  overseer status
  overseer status -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), cmd, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			return runStatus(cmd.Context(), a, cmd.OutOrStdout(), outputFormat(cmd))
		},
	}
	parent.AddCommand(cmd)
}

func runStatus(ctx context.Context, a *app, w io.Writer, output string) error {
	report := statusReport{StateDir: a.stateDir, ModificationInProgress: a.engine.Busy()}

	g, found, err := a.goals.Load(ctx)
	if err != nil {
		return err
	}
	if !found {
		g = domain.Goal{Text: a.cfg.Scheduler.InitialGoal, SetBy: domain.GoalSetByDefault}
	}
	report.Goal = g

	recent, err := a.history.Recent(ctx, 1)
	if err != nil {
		return err
	}
	if len(recent) > 0 {
		report.LastIteration = &recent[0]
	}

	if report.Budget, err = a.guard.Summary(ctx); err != nil {
		return err
	}

	if output == OutputJSON {
		return writeJSON(w, report)
	}

	_, _ = fmt.Fprintf(w, "Goal: %s\n", orDash(report.Goal.Text))
	_, _ = fmt.Fprintf(w, "  set by %s at %s\n", report.Goal.SetBy, formatTime(report.Goal.SetAt))
	printSummary(w, report.Budget)
	if report.ModificationInProgress {
		_, _ = fmt.Fprintln(w, "Self-modification: in progress (commands are paused)")
	}
	_, _ = fmt.Fprintln(w)
	if report.LastIteration == nil {
		_, _ = fmt.Fprintln(w, "No iterations yet.")
		return nil
	}
	printIteration(w, *report.LastIteration)
	return nil
}
