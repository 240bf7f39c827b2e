package scheduler

import (
	"fmt"

	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

// validTransitions is the iteration state machine. A failed step returns
// straight to Idle; Stopped is only entered between iterations.
//
//nolint:gochecknoglobals // Read-only transition table
var validTransitions = map[domain.IterationState][]domain.IterationState{
	domain.StateIdle:       {domain.StatePlanning, domain.StateStopped},
	domain.StatePlanning:   {domain.StateAdmitting, domain.StateIdle},
	domain.StateAdmitting:  {domain.StateActing, domain.StateIdle},
	domain.StateActing:     {domain.StateEvaluating, domain.StateIdle},
	domain.StateEvaluating: {domain.StateIdle},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to domain.IterationState) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func transitionError(from, to domain.IterationState) error {
	if _, ok := validTransitions[from]; !ok {
		return fmt.Errorf("%w: %s is terminal", overseererrors.ErrInvalidTransition, from)
	}
	return fmt.Errorf("%w: %s -> %s", overseererrors.ErrInvalidTransition, from, to)
}
