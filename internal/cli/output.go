package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/overseer/internal/domain"
)

// outputFormat returns the --output value of cmd.
func outputFormat(cmd *cobra.Command) string {
	if f := cmd.Flag("output"); f != nil {
		return f.Value.String()
	}
	return OutputText
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// printIteration renders one record in the text format.
func printIteration(w io.Writer, rec domain.IterationRecord) {
	_, _ = fmt.Fprintf(w, "Iteration %d  %s  %s\n", rec.Sequence, rec.Outcome, formatTime(rec.StartedAt))
	_, _ = fmt.Fprintf(w, "  goal: %s (%s)\n", rec.Goal.Text, rec.Goal.SetBy)
	if rec.Failed() {
		_, _ = fmt.Fprintf(w, "  failure: %s: %s\n", rec.FailureKind, rec.FailureReason)
	}
	if rec.Decision != nil && rec.Decision.Explanation != "" {
		_, _ = fmt.Fprintf(w, "  thinking: %s\n", firstLine(rec.Decision.Explanation))
	}
	for _, res := range rec.Results {
		status := "ok"
		if !res.Success {
			status = fmt.Sprintf("failed (%s)", res.Kind)
		}
		_, _ = fmt.Fprintf(w, "  $ %s  [%s, %dms]\n", res.Command, status, res.DurationMs)
	}
	if m := rec.Modification; m != nil {
		_, _ = fmt.Fprintf(w, "  modification %s: %s (%s risk)\n", m.ModificationID, m.State, m.RiskLevel)
	}
	for _, n := range rec.Notes {
		_, _ = fmt.Fprintf(w, "  note [%s]: %s\n", n.Step, n.Message)
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
