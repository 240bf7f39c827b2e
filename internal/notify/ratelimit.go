package notify

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RateLimitedNotifier bounds the outbound rate of a Notifier with a token
// bucket. A notification that finds the bucket empty is dropped and logged;
// a storm of alerts never blocks the loop.
type RateLimitedNotifier struct {
	next    Notifier
	limiter *rate.Limiter
	logger  zerolog.Logger
	dropped atomic.Int64
}

// NewRateLimitedNotifier allows perMinute notifications per minute with the
// given burst. perMinute <= 0 disables the limit.
func NewRateLimitedNotifier(next Notifier, perMinute, burst int, logger zerolog.Logger) *RateLimitedNotifier {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedNotifier{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// Send forwards message when a token is available.
func (r *RateLimitedNotifier) Send(ctx context.Context, message string) error {
	if !r.allow("message") {
		return nil
	}
	return r.next.Send(ctx, message)
}

// SendStructuredLog forwards log when a token is available.
func (r *RateLimitedNotifier) SendStructuredLog(ctx context.Context, log StructuredLog) error {
	if !r.allow("structured_log") {
		return nil
	}
	return r.next.SendStructuredLog(ctx, log)
}

// Dropped returns the number of notifications discarded so far.
func (r *RateLimitedNotifier) Dropped() int64 {
	return r.dropped.Load()
}

func (r *RateLimitedNotifier) allow(kind string) bool {
	if r.limiter.Allow() {
		return true
	}
	n := r.dropped.Add(1)
	r.logger.Warn().
		Str("kind", kind).
		Int64("dropped_total", n).
		Msg("notification dropped by rate limit")
	return false
}

var _ Notifier = (*RateLimitedNotifier)(nil)
