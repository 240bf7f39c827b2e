package domain

import "time"

// DayType selects which threshold set applies to a calendar day.
type DayType string

// Day types.
const (
	DayNormal  DayType = "normal"
	DaySpecial DayType = "special"
)

// Tier is the highest threshold today's spend has reached.
type Tier string

// Threshold tiers in ascending order.
const (
	TierNone     Tier = "none"
	TierWarn     Tier = "warn"
	TierEscalate Tier = "escalate"
	TierStop     Tier = "stop"
)

// tierRank orders tiers for comparisons.
//
//nolint:gochecknoglobals // Static lookup table
var tierRank = map[Tier]int{TierNone: 0, TierWarn: 1, TierEscalate: 2, TierStop: 3}

// AtLeast reports whether t is the same as or above other.
func (t Tier) AtLeast(other Tier) bool {
	return tierRank[t] >= tierRank[other]
}

// LedgerDay is the persisted spend record for one local calendar day.
// It is only ever mutated through the billing guard.
type LedgerDay struct {
	// Date is the local calendar day, formatted YYYY-MM-DD.
	Date string `json:"date"`

	// CumulativeSpend never decreases within a day.
	CumulativeSpend float64 `json:"cumulative_spend"`

	// DayType is fixed when the record is created.
	DayType DayType `json:"day_type"`

	// Tier is the highest threshold reached so far.
	Tier Tier `json:"tier"`

	// Tripped is set once spend reaches the stop threshold. Admissions are
	// denied until rollover or an operator override clears it.
	Tripped bool `json:"tripped"`

	// OverrideAllowance is extra budget granted by an operator for this day.
	OverrideAllowance float64 `json:"override_allowance,omitempty"`

	Requests     int `json:"requests"`
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`

	UpdatedAt time.Time `json:"updated_at"`
}
