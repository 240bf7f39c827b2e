package domain

import (
	"strings"
	"time"
)

// GoalSource records who set the current goal.
type GoalSource string

// Goal sources.
const (
	// GoalSetByOperator marks a goal delivered through the command source.
	GoalSetByOperator GoalSource = "operator"

	// GoalSetBySelf marks a goal suggested by the planner.
	GoalSetBySelf GoalSource = "self"

	// GoalSetByDefault marks the configured starting goal.
	GoalSetByDefault GoalSource = "default"
)

// Goal is the objective the loop is currently pursuing.
//
// Example JSON representation:
//
//	{
//	    "text": "keep /var below 80% usage",
//	    "set_by": "operator",
//	    "set_at": "2025-12-27T10:00:00Z"
//	}
type Goal struct {
	// Text is the goal as given to the planner.
	Text string `json:"text"`

	// SetBy records who set the goal.
	SetBy GoalSource `json:"set_by"`

	// SetAt is when the goal was set.
	SetAt time.Time `json:"set_at"`
}

// IsZero reports whether no goal has been set.
func (g Goal) IsZero() bool {
	return strings.TrimSpace(g.Text) == ""
}

// Instruction is one inbound operator message from the command source.
type Instruction struct {
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}
