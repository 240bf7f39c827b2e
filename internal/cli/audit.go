package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/overseer/internal/domain"
	"github.com/mrz1836/overseer/internal/selfmod"
)

// AddAuditCommand adds the audit command to the root command.
func AddAuditCommand(parent *cobra.Command) {
	var limit int

	cmd := &cobra.Command{
		Use:   "audit [modification-id]",
		Short: "Show the self-modification audit log",
		Long: `Show the self-modification audit log, or one entry in full.

Every attempted modification appears once with its terminal state:
committed, rolled_back, rejected or aborted.

Examples:
  overseer audit
  overseer audit -n 5 -o json
  overseer audit 1f0c2d8e-4b1a-4c3e-9d55-0a6b0f4c2a11`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cmd, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runAudit(a.engine.Audit(), cmd.OutOrStdout(), outputFormat(cmd), id, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show (0 shows all)")
	parent.AddCommand(cmd)
}

func runAudit(log *selfmod.AuditLog, w io.Writer, output, id string, limit int) error {
	if id != "" {
		rec, err := log.Find(id)
		if err != nil {
			return err
		}
		if output == OutputJSON {
			return writeJSON(w, rec)
		}
		printAuditRecord(w, rec)
		return nil
	}

	records, err := log.Records(limit)
	if err != nil {
		return err
	}
	if output == OutputJSON {
		return writeJSON(w, records)
	}
	if len(records) == 0 {
		_, _ = fmt.Fprintln(w, "No modifications recorded.")
		return nil
	}
	tw := newTable(w)
	_, _ = fmt.Fprintln(tw, "TIME\tID\tSTATE\tRISK\tFILES\tSUMMARY")
	for _, rec := range records {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			formatTime(rec.Timestamp), rec.ID, rec.State, rec.RiskLevel, len(rec.Files), firstLine(rec.Summary))
	}
	return tw.Flush()
}

func printAuditRecord(w io.Writer, rec domain.ModificationRecord) {
	_, _ = fmt.Fprintf(w, "Modification %s\n", rec.ID)
	_, _ = fmt.Fprintf(w, "  time:    %s\n", formatTime(rec.Timestamp))
	_, _ = fmt.Fprintf(w, "  state:   %s (success: %t)\n", rec.State, rec.Success)
	_, _ = fmt.Fprintf(w, "  risk:    %s\n", orDash(string(rec.RiskLevel)))
	_, _ = fmt.Fprintf(w, "  summary: %s\n", orDash(rec.Summary))
	_, _ = fmt.Fprintf(w, "  files:   %s\n", orDash(strings.Join(rec.Files, ", ")))
	if rec.BackupID != "" {
		_, _ = fmt.Fprintf(w, "  backup:  %s\n", rec.BackupID)
	}
	if rec.Checkpoint != "" {
		_, _ = fmt.Fprintf(w, "  commit:  %s\n", rec.Checkpoint)
	}
	if rec.Reason != "" {
		_, _ = fmt.Fprintf(w, "  reason:  %s\n", rec.Reason)
	}
	if rec.TestOutput != "" {
		_, _ = fmt.Fprintf(w, "  test output:\n%s\n", indent(rec.TestOutput, "    "))
	}
}
