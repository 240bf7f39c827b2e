package billing

import (
	"math"
	"time"

	"github.com/mrz1836/overseer/internal/constants"
	"github.com/mrz1836/overseer/internal/domain"
)

// Thresholds is one day type's threshold set. Escalate is zero when the day
// type has no escalate tier.
type Thresholds struct {
	Warn     float64 `json:"warn"`
	Escalate float64 `json:"escalate,omitempty"`
	Stop     float64 `json:"stop"`
}

// withAllowance returns t with the stop threshold raised by allowance.
func (t Thresholds) withAllowance(allowance float64) Thresholds {
	t.Stop += allowance
	return t
}

// tierFor returns the highest tier spend has reached under t.
func (t Thresholds) tierFor(spend float64) domain.Tier {
	switch {
	case spend >= t.Stop:
		return domain.TierStop
	case t.Escalate > 0 && spend >= t.Escalate:
		return domain.TierEscalate
	case spend >= t.Warn:
		return domain.TierWarn
	default:
		return domain.TierNone
	}
}

// daysBetween counts local calendar days from anchor to day. It is negative
// when day precedes anchor.
func daysBetween(anchor, day time.Time) int {
	loc := day.Location()
	a := anchor.In(loc)
	y1, m1, d1 := a.Date()
	y2, m2, d2 := day.Date()
	start := time.Date(y1, m1, d1, 0, 0, 0, 0, loc)
	end := time.Date(y2, m2, d2, 0, 0, 0, 0, loc)
	return int(math.Round(end.Sub(start).Hours() / 24))
}

// dayTypeFor returns DaySpecial when day falls on the special cycle counted
// from anchor. The anchor day itself is special. A zero cycle disables special days.
func dayTypeFor(anchor, day time.Time, cycle int) domain.DayType {
	if cycle <= 0 {
		return domain.DayNormal
	}
	n := daysBetween(anchor, day)
	if ((n%cycle)+cycle)%cycle == 0 {
		return domain.DaySpecial
	}
	return domain.DayNormal
}

func dateKey(t time.Time) string {
	return t.Format(constants.LedgerDateFormat)
}
