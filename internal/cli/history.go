package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mrz1836/overseer/internal/goal"
	"github.com/mrz1836/overseer/internal/history"
)

// AddHistoryCommand adds the history command to the root command.
func AddHistoryCommand(parent *cobra.Command) {
	var (
		limit   int
		details bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent iterations",
		Long: `List the most recent iteration records, oldest first.

Examples:
  overseer history
  overseer history -n 50
  overseer history --details
  overseer history goals`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), cmd, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			return runHistory(cmd.Context(), a.history, cmd.OutOrStdout(), outputFormat(cmd), limit, details)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of records to show (0 shows all)")
	cmd.Flags().BoolVar(&details, "details", false, "print every record in full")
	cmd.AddCommand(newGoalHistoryCmd())
	parent.AddCommand(cmd)
}

func runHistory(ctx context.Context, store history.Store, w io.Writer, output string, limit int, details bool) error {
	records, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if output == OutputJSON {
		return writeJSON(w, records)
	}
	if len(records) == 0 {
		_, _ = fmt.Fprintln(w, "No iterations yet.")
		return nil
	}
	if details {
		for i, rec := range records {
			if i > 0 {
				_, _ = fmt.Fprintln(w)
			}
			printIteration(w, rec)
		}
		return nil
	}

	tw := newTable(w)
	_, _ = fmt.Fprintln(tw, "SEQ\tSTARTED\tOUTCOME\tKIND\tCOMMANDS\tGOAL")
	for _, rec := range records {
		cmds := fmt.Sprintf("%d", len(rec.Results))
		if n := rec.CommandFailures(); n > 0 {
			cmds = fmt.Sprintf("%d (%d failed)", len(rec.Results), n)
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			rec.Sequence, formatTime(rec.StartedAt), rec.Outcome, orDash(string(rec.FailureKind)), cmds, rec.Goal.Text)
	}
	return tw.Flush()
}

func newGoalHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "goals",
		Short: "List goal changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), cmd, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			return runGoalHistory(a.goals, cmd.OutOrStdout(), outputFormat(cmd), limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of changes to show (0 shows all)")
	return cmd
}

func runGoalHistory(store *goal.Store, w io.Writer, output string, limit int) error {
	changes, err := store.History(limit)
	if err != nil {
		return err
	}
	if output == OutputJSON {
		return writeJSON(w, changes)
	}
	if len(changes) == 0 {
		_, _ = fmt.Fprintln(w, "No goal changes yet.")
		return nil
	}
	tw := newTable(w)
	_, _ = fmt.Fprintln(tw, "AT\tSEQ\tSET BY\tGOAL")
	for _, c := range changes {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", formatTime(c.At), c.Sequence, c.Goal.SetBy, c.Goal.Text)
	}
	return tw.Flush()
}
