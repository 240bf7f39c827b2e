package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
	"github.com/mrz1836/overseer/internal/notify"
)

// AddNotifyCommand adds the notify command group to the root command.
func AddNotifyCommand(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Inspect alert cooldowns",
	}
	cmd.AddCommand(newNotifyCheckCmd())
	parent.AddCommand(cmd)
}

// cooldownStatus is one row of notify check.
type cooldownStatus struct {
	domain.NotificationCooldown

	Ready     bool      `json:"ready"`
	NextAllow time.Time `json:"next_allowed_at"`
}

func newNotifyCheckCmd() *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "check [class]",
		Short: "Show when each alert class last fired",
		Long: `Show the stored cooldown record of every alert class, or of one class,
and whether it may fire now. --reset clears the record of one class so its
next alert is delivered immediately.

Examples:
  overseer notify check
  overseer notify check startup
  overseer notify check degraded:planner_failure --reset`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			class := ""
			if len(args) == 1 {
				class = args[0]
			}
			if reset && class == "" {
				return overseererrors.NewUsageError(fmt.Errorf("%w: --reset requires a class", overseererrors.ErrEmptyValue))
			}

			a, err := openApp(cmd.Context(), cmd, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			return runNotifyCheck(cmd.Context(), a.gate, cmd.OutOrStdout(), outputFormat(cmd), class, reset, time.Now())
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "clear the cooldown of the given class")
	return cmd
}

func runNotifyCheck(ctx context.Context, gate *notify.Gate, w io.Writer, output, class string, reset bool, now time.Time) error {
	if reset {
		if err := gate.Reset(ctx, class); err != nil {
			return err
		}
		if output == OutputJSON {
			return writeJSON(w, map[string]string{"reset": class})
		}
		_, _ = fmt.Fprintf(w, "Cooldown for %s cleared.\n", class)
		return nil
	}

	var records []domain.NotificationCooldown
	if class != "" {
		rec, found, err := gate.Status(ctx, class)
		if err != nil {
			return err
		}
		if !found {
			rec = domain.NotificationCooldown{AlertClass: class}
		}
		records = []domain.NotificationCooldown{rec}
	} else {
		var err error
		if records, err = gate.Records(ctx); err != nil {
			return err
		}
	}

	rows := make([]cooldownStatus, 0, len(records))
	for _, rec := range records {
		row := cooldownStatus{NotificationCooldown: rec, Ready: rec.Ready(now, rec.Cooldown)}
		if !rec.LastSentAt.IsZero() {
			row.NextAllow = rec.LastSentAt.Add(rec.Cooldown)
		}
		rows = append(rows, row)
	}

	if output == OutputJSON {
		return writeJSON(w, rows)
	}
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(w, "No alerts have fired yet.")
		return nil
	}
	tw := newTable(w)
	_, _ = fmt.Fprintln(tw, "CLASS\tLAST SENT\tCOOLDOWN\tREADY")
	for _, r := range rows {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", r.AlertClass, formatTime(r.LastSentAt), r.Cooldown, r.Ready)
	}
	return tw.Flush()
}
