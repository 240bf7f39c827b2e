package domain

import "time"

// NotificationCooldown is the persisted dedupe state for one alert class.
type NotificationCooldown struct {
	AlertClass string        `json:"alert_class"`
	LastSentAt time.Time     `json:"last_sent_at"`
	Cooldown   time.Duration `json:"cooldown"`
}

// Ready reports whether an alert may be sent at now under cooldown.
// A zero LastSentAt is always ready.
func (c NotificationCooldown) Ready(now time.Time, cooldown time.Duration) bool {
	if c.LastSentAt.IsZero() {
		return true
	}
	return now.Sub(c.LastSentAt) >= cooldown
}
