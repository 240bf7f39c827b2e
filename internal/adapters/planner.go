package adapters

import (
	"context"
	"fmt"

	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

// PlanRequest is the document a planner program receives.
type PlanRequest struct {
	Goal   domain.Goal              `json:"goal"`
	Recent []domain.IterationRecord `json:"recent"`
}

// ProcessPlanner asks an external program for the next decision. The answer
// is untrusted; the scheduler validates it.
type ProcessPlanner struct {
	proc process
}

// NewProcessPlanner returns a planner that runs argv for every call.
func NewProcessPlanner(argv []string, opts ...ProcessOption) *ProcessPlanner {
	return &ProcessPlanner{proc: newProcess(argv, opts)}
}

// Plan sends the goal and recent history and decodes a Decision.
func (p *ProcessPlanner) Plan(ctx context.Context, goal domain.Goal, recent []domain.IterationRecord) (domain.Decision, error) {
	if recent == nil {
		recent = []domain.IterationRecord{}
	}
	var d domain.Decision
	if err := p.proc.call(ctx, PlanRequest{Goal: goal, Recent: recent}, &d); err != nil {
		return domain.Decision{}, fmt.Errorf("%w: %w", overseererrors.ErrPlannerFailure, err)
	}
	return d, nil
}
