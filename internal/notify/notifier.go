package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

// StructuredLog is the per-iteration report delivered to operators.
type StructuredLog struct {
	Iteration   int64                  `json:"iteration"`
	Goal        string                 `json:"goal"`
	Thinking    string                 `json:"thinking"`
	Commands    []string               `json:"commands,omitempty"`
	Results     []domain.CommandResult `json:"results,omitempty"`
	Outcome     domain.Outcome         `json:"outcome,omitempty"`
	FailureKind overseererrors.Kind    `json:"failure_kind,omitempty"`
	At          time.Time              `json:"at"`
}

// Notifier delivers messages to an operator channel.
type Notifier interface {
	Send(ctx context.Context, message string) error
	SendStructuredLog(ctx context.Context, log StructuredLog) error
}

// LogNotifier writes notifications to a zerolog logger. It never fails.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier returns a LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

// Send logs message at info level.
func (n *LogNotifier) Send(_ context.Context, message string) error {
	n.logger.Info().Msg(message)
	return nil
}

// SendStructuredLog logs the iteration report with its fields.
func (n *LogNotifier) SendStructuredLog(_ context.Context, log StructuredLog) error {
	failed := 0
	for _, r := range log.Results {
		if !r.Success {
			failed++
		}
	}
	n.logger.Info().
		Int64("iteration", log.Iteration).
		Str("goal", log.Goal).
		Str("outcome", string(log.Outcome)).
		Str("failure_kind", string(log.FailureKind)).
		Int("commands", len(log.Commands)).
		Int("failed_commands", failed).
		Msg("iteration summary")
	return nil
}

// WriterNotifier prints notifications as plain text, optionally ringing the
// terminal bell first.
type WriterNotifier struct {
	mu     sync.Mutex
	writer io.Writer
	bell   bool
}

// NewWriterNotifier returns a notifier that writes to w.
func NewWriterNotifier(w io.Writer, bell bool) *WriterNotifier {
	return &WriterNotifier{writer: w, bell: bell}
}

// Send writes message followed by a newline.
func (n *WriterNotifier) Send(_ context.Context, message string) error {
	return n.write(message)
}

// SendStructuredLog writes the formatted report.
func (n *WriterNotifier) SendStructuredLog(_ context.Context, log StructuredLog) error {
	return n.write(FormatStructuredLog(log))
}

func (n *WriterNotifier) write(text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.bell {
		text = "\a" + text
	}
	if _, err := fmt.Fprintln(n.writer, text); err != nil {
		return fmt.Errorf("%w: %w", overseererrors.ErrNotificationDelivery, err)
	}
	return nil
}

// MultiNotifier fans a notification out to every notifier. One failing target
// does not stop delivery to the others.
type MultiNotifier []Notifier

// Send delivers message to every notifier.
func (m MultiNotifier) Send(ctx context.Context, message string) error {
	return m.each(func(n Notifier) error { return n.Send(ctx, message) })
}

// SendStructuredLog delivers log to every notifier.
func (m MultiNotifier) SendStructuredLog(ctx context.Context, log StructuredLog) error {
	return m.each(func(n Notifier) error { return n.SendStructuredLog(ctx, log) })
}

func (m MultiNotifier) each(fn func(Notifier) error) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := fn(n); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	joined := errors.Join(errs...)
	if errors.Is(joined, overseererrors.ErrNotificationDelivery) {
		return joined
	}
	return fmt.Errorf("%w: %w", overseererrors.ErrNotificationDelivery, joined)
}

// NopNotifier discards everything.
type NopNotifier struct{}

// Send does nothing.
func (NopNotifier) Send(context.Context, string) error { return nil }

// SendStructuredLog does nothing.
func (NopNotifier) SendStructuredLog(context.Context, StructuredLog) error { return nil }

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*WriterNotifier)(nil)
	_ Notifier = MultiNotifier(nil)
	_ Notifier = NopNotifier{}
)
