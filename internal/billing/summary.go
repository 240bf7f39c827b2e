package billing

import (
	"context"
	"math"

	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

// Summary is a snapshot of today's budget.
type Summary struct {
	Date       string         `json:"date"`
	DayType    domain.DayType `json:"day_type"`
	Spend      float64        `json:"spend"`
	Tier       domain.Tier    `json:"tier"`
	Tripped    bool           `json:"tripped"`
	Thresholds Thresholds     `json:"thresholds"`
	Allowance  float64        `json:"override_allowance,omitempty"`
	Remaining  float64        `json:"remaining"`
	Requests   int            `json:"requests"`
	Currency   string         `json:"currency"`
}

// Summary returns today's snapshot. It does not create a ledger record.
func (g *Guard) Summary(ctx context.Context) (Summary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	day, t, err := g.today(ctx, now)
	if err != nil {
		return Summary{}, overseererrors.Wrap(err, "billing summary")
	}

	tier := day.Tier
	if tier == "" {
		tier = t.tierFor(day.CumulativeSpend)
	}
	return Summary{
		Date:       dateKey(now),
		DayType:    day.DayType,
		Spend:      day.CumulativeSpend,
		Tier:       tier,
		Tripped:    day.Tripped,
		Thresholds: t,
		Allowance:  day.OverrideAllowance,
		Remaining:  math.Max(t.Stop-day.CumulativeSpend, 0),
		Requests:   day.Requests,
		Currency:   g.cfg.Currency,
	}, nil
}

// History returns up to the last n stored days, oldest first. n <= 0 returns all.
func (g *Guard) History(ctx context.Context, n int) ([]domain.LedgerDay, error) {
	days, err := g.ledger.Days(ctx)
	if err != nil {
		return nil, overseererrors.Wrap(err, "billing history")
	}
	if n > 0 && len(days) > n {
		days = days[len(days)-n:]
	}
	return days, nil
}

// Total sums spend over days.
func Total(days []domain.LedgerDay) float64 {
	var total float64
	for _, d := range days {
		total += d.CumulativeSpend
	}
	return total
}
