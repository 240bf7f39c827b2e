// Package billing implements admission control for metered calls against a
// per-day spend ledger.
//
// Admit is consulted before every metered call and Record after it. Spend for
// a local calendar day never decreases, survives restarts through the Ledger,
// and rolls over implicitly because the day key is derived from the clock on
// every call.
package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/overseer/internal/clock"
	"github.com/mrz1836/overseer/internal/constants"
	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

// Confirmer asks an operator to approve spend that crosses a threshold.
type Confirmer interface {
	RequestConfirmation(ctx context.Context, amount float64, reason string) (bool, error)
}

// Verdict is the outcome of an admission check.
type Verdict int

// Admission verdicts.
const (
	Allow Verdict = iota
	WarnAndAllow
	Deny
)

// String implements fmt.Stringer.
func (v Verdict) String() string {
	switch v {
	case Allow:
		return "allow"
	case WarnAndAllow:
		return "warn_and_allow"
	case Deny:
		return "deny"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Decision explains an admission verdict.
type Decision struct {
	Verdict Verdict
	Tier    domain.Tier
	DayType domain.DayType
	Reason  string

	// Spend is today's spend before the call; Projected includes the estimate.
	Spend     float64
	Projected float64
	Threshold float64

	// Confirmed is true when an operator approved the crossing.
	Confirmed bool
}

// Allowed reports whether the call may proceed.
func (d Decision) Allowed() bool {
	return d.Verdict != Deny
}

// Err returns ErrBudgetExceeded for a denial and nil otherwise.
func (d Decision) Err() error {
	if d.Verdict != Deny {
		return nil
	}
	return overseererrors.Wrap(overseererrors.ErrBudgetExceeded, d.Reason)
}

// Charge is the actual usage of a completed metered call.
type Charge struct {
	Cost         float64
	Model        string
	InputTokens  int
	OutputTokens int
}

// Config holds the guard's thresholds.
type Config struct {
	Normal           Thresholds
	Special          Thresholds
	SpecialCycleDays int
	ConfirmTimeout   time.Duration
	Currency         string
}

// Guard is the billing guard. It is safe for concurrent use within a process;
// the Ledger serializes across processes.
type Guard struct {
	ledger    Ledger
	pricing   *Pricing
	cfg       Config
	confirmer Confirmer
	clock     clock.Clock
	logger    zerolog.Logger

	mu     sync.Mutex
	anchor *time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithConfirmer sets the confirmation channel. Without one, crossings are approved.
func WithConfirmer(c Confirmer) Option {
	return func(g *Guard) { g.confirmer = c }
}

// WithClock sets the clock that selects the ledger day.
func WithClock(c clock.Clock) Option {
	return func(g *Guard) { g.clock = clock.OrReal(c) }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// NewGuard creates a guard over ledger.
func NewGuard(ledger Ledger, pricing *Pricing, cfg Config, opts ...Option) *Guard {
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = constants.DefaultConfirmTimeout
	}
	if cfg.Currency == "" {
		cfg.Currency = "JPY"
	}
	g := &Guard{
		ledger:  ledger,
		pricing: pricing,
		cfg:     cfg,
		clock:   clock.RealClock{},
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Cost prices usage with the guard's price table.
func (g *Guard) Cost(model string, inputTokens, outputTokens int) float64 {
	return g.pricing.Cost(model, inputTokens, outputTokens)
}

// ChargeFor builds a Charge priced from token usage.
func (g *Guard) ChargeFor(model string, inputTokens, outputTokens int) Charge {
	return Charge{
		Cost:         g.Cost(model, inputTokens, outputTokens),
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}
}

// Admit decides whether a call estimated to cost estimate may proceed.
//
// With today's spend S and projection P = S + estimate:
//   - a tripped day, S >= stop or P > stop is denied;
//   - on a special day, crossing escalate asks the confirmer;
//   - crossing warn asks the confirmer;
//   - spend already past warn is allowed with a warning;
//   - anything else is allowed.
//
// A denied or timed-out confirmation denies the call. An error is returned
// only when the ledger cannot be read; the decision is then Deny.
func (g *Guard) Admit(ctx context.Context, estimate float64) (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if estimate < 0 {
		estimate = 0
	}

	now := g.clock.Now()
	day, t, err := g.today(ctx, now)
	if err != nil {
		return Decision{Verdict: Deny, Tier: domain.TierStop, Reason: "ledger unavailable"}, err
	}

	s := day.CumulativeSpend
	p := s + estimate
	d := Decision{DayType: day.DayType, Spend: s, Projected: p}

	switch {
	case day.Tripped || s >= t.Stop:
		d.Verdict, d.Tier, d.Threshold = Deny, domain.TierStop, t.Stop
		d.Reason = fmt.Sprintf("today's spend %.2f %s reached the stop threshold %.2f", s, g.cfg.Currency, t.Stop)
	case p > t.Stop:
		d.Verdict, d.Tier, d.Threshold = Deny, domain.TierStop, t.Stop
		d.Reason = fmt.Sprintf("projected spend %.2f %s would exceed the stop threshold %.2f", p, g.cfg.Currency, t.Stop)
	case day.DayType == domain.DaySpecial && t.Escalate > 0 && s < t.Escalate && p >= t.Escalate:
		d.Tier, d.Threshold = domain.TierEscalate, t.Escalate
		g.confirm(ctx, &d, estimate, "escalate")
	case s < t.Warn && p >= t.Warn:
		d.Tier, d.Threshold = domain.TierWarn, t.Warn
		g.confirm(ctx, &d, estimate, "warn")
	case p >= t.Warn:
		d.Verdict, d.Tier = WarnAndAllow, t.tierFor(p)
		d.Threshold = t.Warn
		if d.Tier == domain.TierEscalate {
			d.Threshold = t.Escalate
		}
		d.Reason = fmt.Sprintf("spend %.2f %s is above the %s threshold %.2f", p, g.cfg.Currency, d.Tier, d.Threshold)
	default:
		d.Verdict, d.Tier = Allow, domain.TierNone
	}

	g.logger.Debug().
		Str("verdict", d.Verdict.String()).
		Str("tier", string(d.Tier)).
		Str("day_type", string(d.DayType)).
		Float64("spend", s).
		Float64("projected", p).
		Msg("admission decided")

	return d, nil
}

func (g *Guard) confirm(ctx context.Context, d *Decision, estimate float64, label string) {
	if g.confirmer == nil {
		d.Verdict, d.Confirmed = WarnAndAllow, true
		d.Reason = fmt.Sprintf("projected spend %.2f %s crosses the %s threshold %.2f", d.Projected, g.cfg.Currency, label, d.Threshold)
		return
	}

	cctx, cancel := context.WithTimeout(ctx, g.cfg.ConfirmTimeout)
	defer cancel()

	msg := fmt.Sprintf("%s day: spend %.2f -> %.2f %s crosses the %s threshold %.2f",
		d.DayType, d.Spend, d.Projected, g.cfg.Currency, label, d.Threshold)
	approved, err := g.confirmer.RequestConfirmation(cctx, estimate, msg)

	switch {
	case err != nil:
		d.Verdict = Deny
		d.Reason = fmt.Sprintf("confirmation for the %s threshold failed: %v", label, err)
		if errors.Is(err, context.DeadlineExceeded) {
			d.Reason = fmt.Sprintf("confirmation for the %s threshold timed out after %s", label, g.cfg.ConfirmTimeout)
		}
	case !approved:
		d.Verdict = Deny
		d.Reason = fmt.Sprintf("operator declined crossing the %s threshold %.2f", label, d.Threshold)
	default:
		d.Verdict, d.Confirmed = WarnAndAllow, true
		d.Reason = fmt.Sprintf("operator approved crossing the %s threshold %.2f", label, d.Threshold)
	}

	g.logger.Info().
		Str("threshold", label).
		Bool("approved", d.Verdict != Deny).
		Str("reason", d.Reason).
		Msg("spend confirmation resolved")
}

// Record adds a completed call's cost to today's ledger. The increment is
// always persisted; ErrBudgetExceeded is returned when the new total reaches
// the stop threshold, after which the day is tripped.
func (g *Guard) Record(ctx context.Context, c Charge) error {
	if c.Cost < 0 {
		return overseererrors.Wrapf(overseererrors.ErrInvalidArgument, "negative cost %v", c.Cost)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	dayType, err := g.dayType(ctx, now)
	if err != nil {
		return err
	}

	var t Thresholds
	day, err := g.ledger.Update(ctx, dateKey(now), func(day *domain.LedgerDay, exists bool) error {
		if !exists {
			*day = domain.LedgerDay{DayType: dayType}
		}
		t = g.thresholds(day.DayType).withAllowance(day.OverrideAllowance)
		day.CumulativeSpend += c.Cost
		day.Requests++
		day.InputTokens += c.InputTokens
		day.OutputTokens += c.OutputTokens
		if tier := t.tierFor(day.CumulativeSpend); tier.AtLeast(day.Tier) {
			day.Tier = tier
		}
		if day.CumulativeSpend >= t.Stop {
			day.Tripped = true
		}
		day.UpdatedAt = now
		return nil
	})
	if err != nil {
		return overseererrors.Wrap(err, "record spend")
	}

	log := g.logger.With().
		Float64("cost", c.Cost).
		Str("model", c.Model).
		Float64("spend", day.CumulativeSpend).
		Str("tier", string(day.Tier)).
		Logger()

	if day.Tripped {
		log.Warn().Float64("stop", t.Stop).Msg("daily budget exhausted")
		return overseererrors.Wrapf(overseererrors.ErrBudgetExceeded,
			"today's spend %.2f %s reached the stop threshold %.2f", day.CumulativeSpend, g.cfg.Currency, t.Stop)
	}
	log.Debug().Msg("spend recorded")
	return nil
}

// Override raises today's stop threshold by allowance and clears the tripped
// flag. It is an operator action.
func (g *Guard) Override(ctx context.Context, allowance float64) (domain.LedgerDay, error) {
	if allowance <= 0 {
		return domain.LedgerDay{}, overseererrors.Wrapf(overseererrors.ErrInvalidArgument, "override allowance must be positive, got %v", allowance)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	dayType, err := g.dayType(ctx, now)
	if err != nil {
		return domain.LedgerDay{}, err
	}

	day, err := g.ledger.Update(ctx, dateKey(now), func(day *domain.LedgerDay, exists bool) error {
		if !exists {
			*day = domain.LedgerDay{DayType: dayType, Tier: domain.TierNone}
		}
		day.OverrideAllowance += allowance
		day.Tripped = false
		day.Tier = g.thresholds(day.DayType).withAllowance(day.OverrideAllowance).tierFor(day.CumulativeSpend)
		day.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.LedgerDay{}, overseererrors.Wrap(err, "apply override")
	}

	g.logger.Warn().
		Float64("allowance", allowance).
		Float64("total_allowance", day.OverrideAllowance).
		Float64("spend", day.CumulativeSpend).
		Msg("operator budget override applied")
	return day, nil
}

// today returns today's record (zero-valued when absent) and its effective thresholds.
func (g *Guard) today(ctx context.Context, now time.Time) (domain.LedgerDay, Thresholds, error) {
	day, found, err := g.ledger.Get(ctx, dateKey(now))
	if err != nil {
		return domain.LedgerDay{}, Thresholds{}, err
	}
	if !found {
		dayType, err := g.dayType(ctx, now)
		if err != nil {
			return domain.LedgerDay{}, Thresholds{}, err
		}
		day = domain.LedgerDay{Date: dateKey(now), DayType: dayType, Tier: domain.TierNone}
	}
	return day, g.thresholds(day.DayType).withAllowance(day.OverrideAllowance), nil
}

func (g *Guard) dayType(ctx context.Context, now time.Time) (domain.DayType, error) {
	if g.anchor == nil {
		a, err := g.ledger.Anchor(ctx, now)
		if err != nil {
			return domain.DayNormal, overseererrors.Wrap(err, "load special-day anchor")
		}
		start, err := time.ParseInLocation(constants.LedgerDateFormat, a.StartDate, now.Location())
		if err != nil {
			return domain.DayNormal, overseererrors.Wrapf(overseererrors.ErrCorruptState, "anchor date %q", a.StartDate)
		}
		g.anchor = &start
	}
	return dayTypeFor(*g.anchor, now, g.cfg.SpecialCycleDays), nil
}

func (g *Guard) thresholds(dt domain.DayType) Thresholds {
	if dt == domain.DaySpecial {
		return g.cfg.Special
	}
	return g.cfg.Normal
}
