package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mrz1836/overseer/internal/billing"
	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

// AddBillingCommand adds the billing command group to the root command.
func AddBillingCommand(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "billing",
		Short: "Inspect and override the daily budget",
	}
	cmd.AddCommand(newBillingSummaryCmd(), newBillingOverrideCmd())
	parent.AddCommand(cmd)
}

// billingReport is the JSON form of billing summary.
type billingReport struct {
	Today billing.Summary    `json:"today"`
	Days  []domain.LedgerDay `json:"days,omitempty"`
	Total float64            `json:"total,omitempty"`
}

func newBillingSummaryCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show today's spend and recent days",
		Long: `Show today's spend against the thresholds of its day type. Special days
recur every billing.special_cycle_days days from the first recorded day and
carry higher thresholds with an extra escalate tier.

Examples:
  overseer billing summary
  overseer billing summary --days 14 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), cmd, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			return runBillingSummary(cmd.Context(), a.guard, cmd.OutOrStdout(), outputFormat(cmd), days)
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "number of recent days to list (0 lists all)")
	return cmd
}

func runBillingSummary(ctx context.Context, guard *billing.Guard, w io.Writer, output string, days int) error {
	today, err := guard.Summary(ctx)
	if err != nil {
		return err
	}
	history, err := guard.History(ctx, days)
	if err != nil {
		return err
	}

	if output == OutputJSON {
		return writeJSON(w, billingReport{Today: today, Days: history, Total: billing.Total(history)})
	}

	printSummary(w, today)
	if len(history) == 0 {
		return nil
	}
	_, _ = fmt.Fprintln(w)
	tw := newTable(w)
	_, _ = fmt.Fprintln(tw, "DATE\tTYPE\tSPEND\tTIER\tREQUESTS\tTOKENS IN/OUT")
	for _, d := range history {
		tier := string(d.Tier)
		if d.Tripped {
			tier += " (tripped)"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\t%d\t%d/%d\n",
			d.Date, d.DayType, d.CumulativeSpend, tier, d.Requests, d.InputTokens, d.OutputTokens)
	}
	_ = tw.Flush()
	_, _ = fmt.Fprintf(w, "Total over %d days: %.2f %s\n", len(history), billing.Total(history), today.Currency)
	return nil
}

func printSummary(w io.Writer, s billing.Summary) {
	_, _ = fmt.Fprintf(w, "Budget %s (%s day): %.2f / %.2f %s, tier %s\n",
		s.Date, orDash(string(s.DayType)), s.Spend, s.Thresholds.Stop, s.Currency, s.Tier)
	if s.Tripped {
		_, _ = fmt.Fprintln(w, "  metered calls are stopped; run 'overseer billing override --amount N' to continue")
	}
	if s.Allowance > 0 {
		_, _ = fmt.Fprintf(w, "  includes an override allowance of %.2f\n", s.Allowance)
	}
}

func newBillingOverrideCmd() *cobra.Command {
	var amount float64

	cmd := &cobra.Command{
		Use:   "override",
		Short: "Raise today's stop threshold",
		Long: `Raise today's stop threshold by --amount and clear a tripped stop so
metered calls resume. The allowance applies to today only.

Example:
  overseer billing override --amount 150`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if amount <= 0 {
				return overseererrors.NewUsageError(fmt.Errorf("%w: --amount must be positive", overseererrors.ErrInvalidArgument))
			}
			a, err := openApp(cmd.Context(), cmd, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			return runBillingOverride(cmd.Context(), a.guard, cmd.OutOrStdout(), outputFormat(cmd), amount)
		},
	}
	cmd.Flags().Float64Var(&amount, "amount", 0, "allowance to add to today's stop threshold")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func runBillingOverride(ctx context.Context, guard *billing.Guard, w io.Writer, output string, amount float64) error {
	day, err := guard.Override(ctx, amount)
	if err != nil {
		return err
	}
	if output == OutputJSON {
		return writeJSON(w, day)
	}
	_, _ = fmt.Fprintf(w, "Override applied for %s: allowance now %.2f, spend %.2f, tier %s\n",
		day.Date, day.OverrideAllowance, day.CumulativeSpend, day.Tier)
	return nil
}
