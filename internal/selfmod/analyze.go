package selfmod

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mrz1836/overseer/internal/billing"
	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

// analyze gathers the source, asks the generator for a proposal and turns it
// into an assessed plan. The returned plan always carries an ID and the
// request, even on error.
func (e *Engine) analyze(ctx context.Context, req Request) (domain.ModificationPlan, error) {
	plan := domain.ModificationPlan{
		ID:        newPlanID(),
		Variant:   req.Variant,
		Request:   req.Text,
		CreatedAt: e.clock.Now(),
	}
	if err := req.Validate(); err != nil {
		return plan, err
	}

	files, err := e.gather(ctx, req)
	if err != nil {
		return plan, err
	}

	if err := e.admit(ctx); err != nil {
		return plan, err
	}
	proposal, genErr := e.generator.Generate(ctx, req, files)
	e.recordUsage(ctx, proposal.Usage)
	if genErr != nil {
		return plan, fmt.Errorf("%w: patch generation: %w", overseererrors.ErrPlannerFailure, genErr)
	}

	plan.Summary = strings.TrimSpace(proposal.Summary)
	if plan.Summary == "" {
		plan.Summary = req.Text
	}

	findings, err := e.buildChanges(&plan, proposal.Changes)
	if err != nil {
		return plan, err
	}
	plan.Risk = e.assessor.Assess(plan, findings, proposal.DeclaredRisk)
	if r := strings.TrimSpace(proposal.Rationale); r != "" {
		plan.Risk.Rationale += "; generator: " + r
	}

	e.logger.Info().
		Str("modification_id", plan.ID).
		Str("variant", string(plan.Variant)).
		Int("files", len(plan.Files)).
		Int("changed_lines", plan.ChangedLines()).
		Str("risk", string(plan.Risk.Level)).
		Msg("modification analyzed")
	return plan, nil
}

func (e *Engine) gather(ctx context.Context, req Request) ([]SourceFile, error) {
	if req.Variant == domain.VariantSingleFile {
		return gatherSingle(e.root, req.Target)
	}
	files, err := gatherTree(ctx, e.root, e.cfg.Gather)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, overseererrors.Wrapf(overseererrors.ErrNotFound, "no eligible source files under %s", e.root)
	}
	return files, nil
}

// admit checks the patch estimate against the budget.
func (e *Engine) admit(ctx context.Context) error {
	if e.budget == nil {
		return nil
	}
	est := e.cfg.PatchEstimate
	d, err := e.budget.Admit(ctx, e.budget.Cost(est.Model, est.InputTokens, est.OutputTokens))
	if err != nil {
		return err
	}
	if !d.Allowed() {
		return d.Err()
	}
	if d.Verdict == billing.WarnAndAllow {
		e.logger.Warn().Str("tier", string(d.Tier)).Str("reason", d.Reason).Msg("patch generation admitted above warning threshold")
	}
	return nil
}

// recordUsage charges the generator call. Missing usage is charged at the
// estimate. Crossing the stop threshold here is logged; the call already
// happened.
func (e *Engine) recordUsage(ctx context.Context, usage *domain.Usage) {
	if e.budget == nil {
		return
	}
	u := e.cfg.PatchEstimate
	if usage != nil {
		u = *usage
	}
	charge := billing.Charge{
		Cost:         e.budget.Cost(u.Model, u.InputTokens, u.OutputTokens),
		Model:        u.Model,
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
	}
	if err := e.budget.Record(ctx, charge); err != nil {
		if errors.Is(err, overseererrors.ErrBudgetExceeded) {
			e.logger.Warn().Err(err).Msg("patch generation pushed spend past the stop threshold")
			return
		}
		e.logger.Error().Err(err).Msg("failed to record patch generation usage")
	}
}

// buildChanges diffs every proposed change against the current tree. Changes
// that leave a file untouched are dropped, a repeated path keeps only its last
// proposal, and paths outside the root are kept for review but flagged high.
// When the last proposal for a path restores the current content, the path
// is dropped entirely.
func (e *Engine) buildChanges(plan *domain.ModificationPlan, changes []ProposedChange) ([]domain.RiskFinding, error) {
	var findings []domain.RiskFinding
	last := make(map[string]int, len(changes))
	for i, c := range changes {
		if _, rel, err := resolveInRoot(e.root, c.Path); err == nil {
			last[rel] = i
		}
	}

	for i, c := range changes {
		abs, rel, err := resolveInRoot(e.root, c.Path)
		if err != nil {
			findings = append(findings, domain.RiskFinding{
				Rule:    RuleOutsideRoot,
				Level:   domain.RiskHigh,
				File:    c.Path,
				Message: err.Error(),
			})
			plan.Files = append(plan.Files, domain.FileChange{Path: c.Path, Reason: c.Reason, Patched: c.Content})
			continue
		}
		if last[rel] != i {
			continue
		}

		original := ""
		data, err := os.ReadFile(abs) //nolint:gosec // G304: confined to the source root
		switch {
		case err == nil:
			original = string(data)
		case !os.IsNotExist(err):
			return findings, overseererrors.Wrapf(err, "read %s", rel)
		}
		if original == c.Content && err == nil {
			continue
		}

		diff, err := unifiedDiff(rel, original, c.Content)
		if err != nil {
			return findings, overseererrors.Wrapf(err, "diff %s", rel)
		}
		added, removed := changeStats(original, c.Content)
		plan.Files = append(plan.Files, domain.FileChange{
			Path:         rel,
			Reason:       c.Reason,
			Original:     original,
			Patched:      c.Content,
			Diff:         diff,
			AddedLines:   len(added),
			RemovedLines: removed,
		})
	}
	return findings, nil
}
