package domain

import (
	"time"

	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

// IterationState is a state of the scheduler's per-iteration state machine.
type IterationState string

// Iteration states.
const (
	StateIdle       IterationState = "idle"
	StatePlanning   IterationState = "planning"
	StateAdmitting  IterationState = "admitting"
	StateActing     IterationState = "acting"
	StateEvaluating IterationState = "evaluating"
	StateStopped    IterationState = "stopped"
)

// Outcome is the final result of one iteration.
type Outcome string

// Iteration outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// StepNote is a non-fatal observation attached to an iteration, such as a
// dropped planner field or a budget warning.
type StepNote struct {
	Step    IterationState      `json:"step"`
	Kind    overseererrors.Kind `json:"kind,omitempty"`
	Message string              `json:"message"`
	At      time.Time           `json:"at"`
}

// ModificationSummary is the part of a modification attempt kept on the
// iteration record. The full record lives in the audit log.
type ModificationSummary struct {
	ModificationID string    `json:"modification_id"`
	State          string    `json:"state"`
	RiskLevel      RiskLevel `json:"risk_level"`
	Success        bool      `json:"success"`
	Files          []string  `json:"files,omitempty"`
	Reason         string    `json:"reason,omitempty"`
}

// IterationRecord is one pass through the loop. It is created when the
// iteration starts and persisted once it completes.
type IterationRecord struct {
	// ID is a unique identifier for the record.
	ID string `json:"id"`

	// Sequence is the iteration number, continuing across restarts.
	Sequence int64 `json:"sequence"`

	// Goal is the goal in force when planning ran for this iteration.
	Goal Goal `json:"goal"`

	// Decision is the validated planner decision, if planning succeeded.
	Decision *Decision `json:"decision,omitempty"`

	// Results holds one entry per executed command, in order.
	Results []CommandResult `json:"results,omitempty"`

	// Modification summarises a self-modification attempt made this iteration.
	Modification *ModificationSummary `json:"modification,omitempty"`

	// Outcome is success or failed.
	Outcome Outcome `json:"outcome"`

	// FailureKind classifies a failed outcome.
	FailureKind overseererrors.Kind `json:"failure_kind,omitempty"`

	// FailureReason explains a failed outcome to an operator.
	FailureReason string `json:"failure_reason,omitempty"`

	// Notes are non-fatal observations made during the iteration.
	Notes []StepNote `json:"notes,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// AddNote appends a step note.
func (r *IterationRecord) AddNote(step IterationState, kind overseererrors.Kind, message string, at time.Time) {
	r.Notes = append(r.Notes, StepNote{Step: step, Kind: kind, Message: message, At: at})
}

// Fail marks the record failed with the given kind and explanation.
func (r *IterationRecord) Fail(kind overseererrors.Kind, reason string) {
	r.Outcome = OutcomeFailed
	r.FailureKind = kind
	r.FailureReason = reason
}

// Failed reports whether the iteration failed.
func (r IterationRecord) Failed() bool {
	return r.Outcome == OutcomeFailed
}

// CommandFailures counts results that did not succeed.
func (r IterationRecord) CommandFailures() int {
	n := 0
	for _, res := range r.Results {
		if !res.Success {
			n++
		}
	}
	return n
}
