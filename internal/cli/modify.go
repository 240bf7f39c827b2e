package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
	"github.com/mrz1836/overseer/internal/selfmod"
)

type modifyOptions struct {
	file        string
	apply       bool
	allowMedium bool
	showDiff    bool
}

// AddModifyCommand adds the modify command to the root command.
func AddModifyCommand(parent *cobra.Command) {
	opts := &modifyOptions{}

	cmd := &cobra.Command{
		Use:   "modify <request>",
		Short: "Plan, and optionally apply, a change to overseer's own source",
		Long: `Ask the patch generator for a change to the source tree and show the
assessed plan. Nothing is written unless --apply is given.

With --apply a low-risk plan is backed up, written, verified with
selfmod.test_command and committed, or rolled back when verification fails.
Medium-risk plans also need --allow-medium. High-risk plans are never
applied.

Examples:
  overseer modify "add a retry to the inbox poller" --file internal/adapters/inbox.go
  overseer modify "tighten logging" --apply
  overseer modify "rename the config key" --apply --allow-medium -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cmd, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			req := selfmod.WholeTree(args[0])
			if opts.file != "" {
				req = selfmod.SingleFile(opts.file, args[0])
			}
			if err := req.Validate(); err != nil {
				return overseererrors.NewUsageError(err)
			}
			return runModify(a.logger.WithContext(cmd.Context()), a.engine, cmd.OutOrStdout(), outputFormat(cmd), req, opts)
		},
	}
	cmd.Flags().StringVar(&opts.file, "file", "", "limit the change to one file relative to the source root")
	cmd.Flags().BoolVar(&opts.apply, "apply", false, "apply the plan when its risk allows")
	cmd.Flags().BoolVar(&opts.allowMedium, "allow-medium", false, "also apply medium-risk plans")
	cmd.Flags().BoolVar(&opts.showDiff, "diff", true, "print the unified diff of each file")
	parent.AddCommand(cmd)
}

// modifyReport is the JSON form of overseer modify.
type modifyReport struct {
	Plan   domain.ModificationPlan    `json:"plan"`
	Record *domain.ModificationRecord `json:"record,omitempty"`
	Error  string                     `json:"error,omitempty"`
}

func runModify(ctx context.Context, engine *selfmod.Engine, w io.Writer, output string, req selfmod.Request, opts *modifyOptions) error {
	var (
		report modifyReport
		runErr error
	)
	if opts.apply {
		var res selfmod.Result
		res, runErr = engine.Run(ctx, req, selfmod.Policy{AutoApply: true, AllowMedium: opts.allowMedium})
		report.Plan = res.Plan
		if res.Record.ID != "" {
			report.Record = &res.Record
		}
	} else {
		report.Plan, runErr = engine.Analyze(ctx, req)
	}
	if runErr != nil && report.Plan.ID == "" {
		return runErr
	}
	if runErr != nil {
		report.Error = overseererrors.Explain(runErr)
	}

	if output == OutputJSON {
		if err := writeJSON(w, report); err != nil {
			return err
		}
		return runErr
	}

	printPlan(w, report.Plan, opts.showDiff)
	if rec := report.Record; rec != nil {
		_, _ = fmt.Fprintf(w, "\nResult: %s", rec.State)
		if rec.Reason != "" {
			_, _ = fmt.Fprintf(w, " (%s)", rec.Reason)
		}
		_, _ = fmt.Fprintln(w)
		if rec.Checkpoint != "" {
			_, _ = fmt.Fprintf(w, "Checkpoint: %s\n", rec.Checkpoint)
		}
	} else if !opts.apply {
		_, _ = fmt.Fprintln(w, "\nNot applied. Re-run with --apply to apply this plan.")
	}
	return runErr
}

func printPlan(w io.Writer, plan domain.ModificationPlan, showDiff bool) {
	_, _ = fmt.Fprintf(w, "Plan %s (%s)\n", plan.ID, plan.Variant)
	_, _ = fmt.Fprintf(w, "  summary: %s\n", orDash(plan.Summary))
	_, _ = fmt.Fprintf(w, "  risk: %s: %s\n", plan.Risk.Level, plan.Risk.Rationale)
	for _, f := range plan.Risk.Findings {
		loc := f.File
		if f.Line > 0 {
			loc = fmt.Sprintf("%s:%d", f.File, f.Line)
		}
		_, _ = fmt.Fprintf(w, "    [%s] %s %s %s\n", f.Level, f.Rule, orDash(loc), f.Message)
	}
	for _, f := range plan.Files {
		_, _ = fmt.Fprintf(w, "  %s  +%d -%d\n", f.Path, f.AddedLines, f.RemovedLines)
		if showDiff && f.Diff != "" {
			_, _ = fmt.Fprintln(w, indent(f.Diff, "    "))
		}
	}
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
