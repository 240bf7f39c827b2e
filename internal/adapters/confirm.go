package adapters

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mrz1836/overseer/internal/billing"
)

// StaticConfirmer answers every billing confirmation the same way.
type StaticConfirmer struct {
	approve bool
	logger  zerolog.Logger
}

// NewStaticConfirmer returns a confirmer that approves when approve is true.
func NewStaticConfirmer(approve bool, logger zerolog.Logger) *StaticConfirmer {
	return &StaticConfirmer{approve: approve, logger: logger}
}

// RequestConfirmation logs the request and returns the configured answer.
func (c *StaticConfirmer) RequestConfirmation(ctx context.Context, amount float64, reason string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.logger.Warn().
		Float64("amount", amount).
		Str("reason", reason).
		Bool("approved", c.approve).
		Msg("billing confirmation answered by policy")
	return c.approve, nil
}

var _ billing.Confirmer = (*StaticConfirmer)(nil)
