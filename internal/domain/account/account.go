// Package account defines the per-tenant member balance record.
// This package is PURE and must NOT import any infrastructure packages.
package account

import "time"

// Balance is one member's token holdings.
type Balance struct {
	Amount       int64     `json:"amount"`
	LastActivity time.Time `json:"last_activity"`
	// Accrued is the passive income already credited since LastActivity.
	Accrued int64 `json:"accrued"`
}

// HasActivity reports whether the member was ever active.
func (b Balance) HasActivity() bool {
	return !b.LastActivity.IsZero()
}

// Touch moves the activity marker to now and restarts passive accrual.
func (b *Balance) Touch(now time.Time) {
	b.LastActivity = now
	b.Accrued = 0
}

// IdleHours is the time since the last activity, in hours.
func (b Balance) IdleHours(now time.Time) float64 {
	if !b.HasActivity() {
		return 0
	}
	h := now.Sub(b.LastActivity).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// PassiveDue is the passive income owed at now beyond what was already credited.
// Earnings are floor(idle hours * rate); nothing is owed before one idle hour.
func (b Balance) PassiveDue(now time.Time, rate float64) int64 {
	h := b.IdleHours(now)
	if h < 1 || rate <= 0 {
		return 0
	}
	total := int64(h * rate)
	if total <= b.Accrued {
		return 0
	}
	return total - b.Accrued
}
