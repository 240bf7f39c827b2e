// Package notify deduplicates operator alerts across process restarts and
// delivers them through pluggable notifiers.
//
// A Gate keeps one cooldown record per alert class under state/cooldowns.
// Each check is a read-check-write performed under an exclusive file lock
// with an atomic replace, so two processes starting within the cooldown
// window see exactly one successful check between them.
package notify

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/overseer/internal/clock"
	"github.com/mrz1836/overseer/internal/constants"
	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
	"github.com/mrz1836/overseer/internal/flock"
	"github.com/mrz1836/overseer/internal/fsutil"
)

// Common alert classes.
const (
	ClassStartup          = "startup"
	ClassShutdown         = "shutdown"
	ClassIterationSummary = "iteration_summary"
	ClassBudgetWarning    = "budget_warning"
	ClassBudgetExceeded   = "budget_exceeded"
	ClassModification     = "modification"
	ClassInstruction      = "instruction"
	classDegradedPrefix   = "degraded:"
)

// DegradedClass returns the alert class for repeated failures of kind.
func DegradedClass(kind overseererrors.Kind) string {
	return classDegradedPrefix + string(kind)
}

// Gate decides whether an alert class may fire and sends through a Notifier.
type Gate struct {
	dir         string
	lockTimeout time.Duration
	notifier    Notifier
	clock       clock.Clock
	logger      zerolog.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithClock sets the clock used for cooldown checks.
func WithClock(c clock.Clock) GateOption {
	return func(g *Gate) { g.clock = clock.OrReal(c) }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) GateOption {
	return func(g *Gate) { g.logger = l }
}

// WithLockTimeout bounds cooldown lock acquisition.
func WithLockTimeout(d time.Duration) GateOption {
	return func(g *Gate) { g.lockTimeout = d }
}

// NewGate returns a gate storing cooldowns under stateDir/cooldowns. A nil
// notifier discards messages.
func NewGate(stateDir string, notifier Notifier, opts ...GateOption) *Gate {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	g := &Gate{
		dir:         filepath.Join(stateDir, constants.CooldownsDir),
		lockTimeout: constants.DefaultLockTimeout,
		notifier:    notifier,
		clock:       clock.RealClock{},
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Dir returns the cooldown directory.
func (g *Gate) Dir() string {
	return g.dir
}

// ShouldSend reports whether class may fire now. When it returns true the
// class's last-sent time is advanced to now; otherwise the record is left
// untouched. A class with no record is always ready.
func (g *Gate) ShouldSend(ctx context.Context, class string, cooldown time.Duration) (bool, error) {
	if strings.TrimSpace(class) == "" {
		return false, overseererrors.Wrap(overseererrors.ErrEmptyValue, "alert class")
	}

	path, lockPath := g.paths(class)
	send := false
	err := flock.With(ctx, lockPath, g.lockTimeout, func() error {
		var rec domain.NotificationCooldown
		if _, err := fsutil.ReadJSON(path, &rec); err != nil {
			// An unreadable record is replaced rather than silencing the class forever.
			g.logger.Warn().Err(err).Str("class", class).Msg("discarding unreadable cooldown record")
			rec = domain.NotificationCooldown{}
		}

		now := g.clock.Now()
		if !rec.Ready(now, cooldown) {
			return nil
		}
		rec = domain.NotificationCooldown{AlertClass: class, LastSentAt: now, Cooldown: cooldown}
		if err := fsutil.WriteJSON(path, rec); err != nil {
			return overseererrors.Wrapf(overseererrors.ErrPersistence, "write cooldown %s: %v", class, err)
		}
		send = true
		return nil
	})
	if err != nil {
		return false, overseererrors.Wrapf(err, "check cooldown %s", class)
	}
	return send, nil
}

// Notify sends message when class is ready. Delivery and gate failures are
// logged and swallowed. It reports whether the message was handed to the notifier.
func (g *Gate) Notify(ctx context.Context, class string, cooldown time.Duration, message string) bool {
	if !g.ready(ctx, class, cooldown) {
		return false
	}
	g.deliver(class, func() error { return g.notifier.Send(ctx, FormatAlert(class, message)) })
	return true
}

// NotifyStructured sends an iteration report when class is ready.
func (g *Gate) NotifyStructured(ctx context.Context, class string, cooldown time.Duration, log StructuredLog) bool {
	if !g.ready(ctx, class, cooldown) {
		return false
	}
	g.deliver(class, func() error { return g.notifier.SendStructuredLog(ctx, log) })
	return true
}

// Send delivers message without a cooldown check. It is used for one-off
// notices such as instruction acknowledgments.
func (g *Gate) Send(ctx context.Context, class, message string) {
	g.deliver(class, func() error { return g.notifier.Send(ctx, FormatAlert(class, message)) })
}

// Reset removes the cooldown record for class so it fires on the next check.
func (g *Gate) Reset(ctx context.Context, class string) error {
	path, lockPath := g.paths(class)
	return flock.With(ctx, lockPath, g.lockTimeout, func() error {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return overseererrors.Wrapf(overseererrors.ErrPersistence, "reset cooldown %s: %v", class, err)
		}
		return nil
	})
}

// Status returns the stored record for class. found is false when the class
// has never fired.
func (g *Gate) Status(_ context.Context, class string) (domain.NotificationCooldown, bool, error) {
	path, _ := g.paths(class)
	var rec domain.NotificationCooldown
	found, err := fsutil.ReadJSON(path, &rec)
	if err != nil {
		return domain.NotificationCooldown{}, false, err
	}
	return rec, found, nil
}

// Records lists every stored cooldown record ordered by class.
func (g *Gate) Records(_ context.Context) ([]domain.NotificationCooldown, error) {
	entries, err := os.ReadDir(g.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, overseererrors.Wrap(err, "list cooldowns")
	}

	var records []domain.NotificationCooldown
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		var rec domain.NotificationCooldown
		found, err := fsutil.ReadJSON(filepath.Join(g.dir, e.Name()), &rec)
		if err != nil || !found {
			continue
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].AlertClass < records[j].AlertClass })
	return records, nil
}

func (g *Gate) ready(ctx context.Context, class string, cooldown time.Duration) bool {
	ok, err := g.ShouldSend(ctx, class, cooldown)
	if err != nil {
		g.logger.Warn().Err(err).Str("class", class).Msg("cooldown check failed, suppressing alert")
		return false
	}
	if !ok {
		g.logger.Debug().Str("class", class).Dur("cooldown", cooldown).Msg("alert suppressed by cooldown")
	}
	return ok
}

// deliver runs send and logs its failure. A panicking notifier is reported
// as a delivery failure.
func (g *Gate) deliver(class string, send func() error) {
	if err := safeSend(send); err != nil {
		g.logger.Warn().
			Err(err).
			Str("class", class).
			Str("kind", string(overseererrors.KindNotificationDeliveryFailure)).
			Msg("notification delivery failed")
	}
}

func safeSend(send func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = overseererrors.Wrapf(overseererrors.ErrNotificationDelivery, "notifier panicked: %v", r)
		}
	}()
	return send()
}

func (g *Gate) paths(class string) (record, lock string) {
	name := fileName(class)
	return filepath.Join(g.dir, name+".json"), filepath.Join(g.dir, name+constants.LockFileSuffix)
}

// fileName maps an alert class onto a portable file name.
func fileName(class string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(class))
}
