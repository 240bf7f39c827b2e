package selfmod

import (
	"fmt"
	"time"

	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

// validTransitions is the modification state machine.
//
//nolint:gochecknoglobals // Read-only transition table
var validTransitions = map[domain.ModificationState][]domain.ModificationState{
	domain.ModAnalyzing: {domain.ModAssessed, domain.ModAborted},
	domain.ModAssessed:  {domain.ModRejected, domain.ModApplying, domain.ModAborted},
	domain.ModApplying:  {domain.ModVerifying, domain.ModRolledBack, domain.ModAborted},
	domain.ModVerifying: {domain.ModCommitted, domain.ModRolledBack},
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s domain.ModificationState) bool {
	_, ok := validTransitions[s]
	return !ok
}

// Transition is one recorded state change.
type Transition struct {
	From domain.ModificationState `json:"from"`
	To   domain.ModificationState `json:"to"`
	At   time.Time                `json:"at"`
}

// machine tracks one modification attempt.
type machine struct {
	state   domain.ModificationState
	history []Transition
	now     func() time.Time
}

func newMachine(now func() time.Time) *machine {
	return &machine{state: domain.ModAnalyzing, now: now}
}

func (m *machine) State() domain.ModificationState {
	return m.state
}

// advance moves to state to when the transition table allows it.
func (m *machine) advance(to domain.ModificationState) error {
	for _, allowed := range validTransitions[m.state] {
		if allowed == to {
			m.history = append(m.history, Transition{From: m.state, To: to, At: m.now()})
			m.state = to
			return nil
		}
	}
	if IsTerminal(m.state) {
		return fmt.Errorf("%w: %s is terminal", overseererrors.ErrInvalidTransition, m.state)
	}
	return fmt.Errorf("%w: %s -> %s", overseererrors.ErrInvalidTransition, m.state, to)
}

// startApplying enters Applying. A high-risk plan can never get there.
func (m *machine) startApplying(level domain.RiskLevel) error {
	if level.Above(domain.RiskMedium) {
		return fmt.Errorf("%w: %s risk plan cannot be applied", overseererrors.ErrModificationRiskTooHigh, level)
	}
	return m.advance(domain.ModApplying)
}
