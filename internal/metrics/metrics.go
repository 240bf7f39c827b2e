// Package metrics exports scheduler, billing, executor and self-modification
// counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

const namespace = "overseer"

// Prometheus records loop activity in its own registry.
type Prometheus struct {
	registry *prometheus.Registry

	iterations        *prometheus.CounterVec
	iterationDuration prometheus.Histogram
	admissions        *prometheus.CounterVec
	commands          *prometheus.CounterVec
	commandDuration   prometheus.Histogram
	modifications     *prometheus.CounterVec
	lastIteration     prometheus.Gauge
}

// NewPrometheus registers every collector on a fresh registry, together with
// the Go runtime and process collectors.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Prometheus{
		registry: reg,

		iterations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_total",
			Help:      "Completed loop iterations by outcome and failure kind.",
		}, []string{"outcome", "kind"}),

		iterationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "iteration_duration_seconds",
			Help:      "Wall time of one loop iteration.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}),

		admissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_admissions_total",
			Help:      "Billing admission decisions by verdict.",
		}, []string{"verdict"}),

		commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Planner commands by result and failure kind.",
		}, []string{"result", "kind"}),

		commandDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Wall time of executed commands.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),

		modifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "modifications_total",
			Help:      "Self-modification attempts by final state and risk level.",
		}, []string{"state", "risk"}),

		lastIteration: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_iteration_timestamp_seconds",
			Help:      "Unix time the last iteration finished.",
		}),
	}
}

// Registry returns the registry the collectors live in.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// IterationCompleted counts a finished iteration.
func (p *Prometheus) IterationCompleted(outcome domain.Outcome, kind overseererrors.Kind, duration time.Duration) {
	p.iterations.WithLabelValues(string(outcome), labelKind(kind)).Inc()
	p.iterationDuration.Observe(duration.Seconds())
	p.lastIteration.SetToCurrentTime()
}

// AdmissionDecided counts a billing verdict.
func (p *Prometheus) AdmissionDecided(verdict string) {
	p.admissions.WithLabelValues(verdict).Inc()
}

// CommandExecuted counts one command result.
func (p *Prometheus) CommandExecuted(success bool, kind overseererrors.Kind, duration time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	p.commands.WithLabelValues(result, labelKind(kind)).Inc()
	p.commandDuration.Observe(duration.Seconds())
}

// ModificationFinished counts a modification attempt.
func (p *Prometheus) ModificationFinished(state domain.ModificationState, risk domain.RiskLevel) {
	p.modifications.WithLabelValues(string(state), string(risk)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Serve exposes /metrics on addr until ctx is canceled.
func (p *Prometheus) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return overseererrors.Wrapf(err, "listen on %s", addr)
	}
	return p.serve(ctx, ln, logger)
}

func (p *Prometheus) serve(ctx context.Context, ln net.Listener, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logger.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")

	select {
	case err := <-errCh:
		return overseererrors.Wrap(err, "metrics server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return overseererrors.Wrap(err, "shut down metrics server")
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func labelKind(k overseererrors.Kind) string {
	if k == overseererrors.KindNone {
		return "none"
	}
	return string(k)
}
