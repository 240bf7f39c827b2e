package scheduler

import (
	"time"

	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

// Metrics collects metrics about iterations and the work they do.
// Implementations can send these to monitoring systems like Prometheus.
type Metrics interface {
	// IterationCompleted is called once per iteration, after it is persisted.
	IterationCompleted(outcome domain.Outcome, kind overseererrors.Kind, duration time.Duration)

	// AdmissionDecided is called with the verdict of each planning admission.
	AdmissionDecided(verdict string)

	// CommandExecuted is called after each command the executor ran or rejected.
	CommandExecuted(success bool, kind overseererrors.Kind, duration time.Duration)

	// ModificationFinished is called when a modification attempt ends.
	ModificationFinished(state domain.ModificationState, risk domain.RiskLevel)
}

// NoopMetrics is a no-op implementation of Metrics for default behavior.
type NoopMetrics struct{}

// Ensure NoopMetrics implements Metrics interface.
var _ Metrics = (*NoopMetrics)(nil)

// IterationCompleted implements Metrics.
func (NoopMetrics) IterationCompleted(domain.Outcome, overseererrors.Kind, time.Duration) {}

// AdmissionDecided implements Metrics.
func (NoopMetrics) AdmissionDecided(string) {}

// CommandExecuted implements Metrics.
func (NoopMetrics) CommandExecuted(bool, overseererrors.Kind, time.Duration) {}

// ModificationFinished implements Metrics.
func (NoopMetrics) ModificationFinished(domain.ModificationState, domain.RiskLevel) {}
