package penalty

import (
	"math"
	"time"
)

// Fees is the pure fee engine. Both the closed-loan path and the
// still-open estimate path must call the same methods so the numbers
// never diverge between the two.
type Fees struct {
	LateRatePerDay float64
	DamageMin      float64
	DamageMax      float64
	DamageDefault  float64
	LostMultiplier float64
}

func DefaultFees() Fees {
	return Fees{
		LateRatePerDay: 5000,
		DamageMin:      50000,
		DamageMax:      500000,
		DamageDefault:  50000,
		LostMultiplier: 1.5,
	}
}

// DaysOverdue counts calendar days from due to at, clamped at zero.
func DaysOverdue(due, at time.Time) int {
	d := truncateDay(at).Sub(truncateDay(due)).Hours() / 24
	if d <= 0 {
		return 0
	}
	return int(math.Round(d))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// LateFee charges per overdue day; past 30 days a one-time replacement
// surcharge of the item price is layered on top of the daily fee.
func (f Fees) LateFee(due, at time.Time, price float64) float64 {
	days := DaysOverdue(due, at)
	return f.lateFeeForDays(days, price)
}

func (f Fees) lateFeeForDays(days int, price float64) float64 {
	if days <= 0 {
		return 0
	}
	base := float64(days) * f.LateRatePerDay
	if days > 30 {
		return base + price
	}
	return base
}

// DamageFee clamps a custom amount into the allowed band; nil means the
// default assessment.
func (f Fees) DamageFee(custom *float64) float64 {
	if custom == nil {
		return f.DamageDefault
	}
	return math.Max(f.DamageMin, math.Min(*custom, f.DamageMax))
}

func (f Fees) LostFee(price float64) float64 {
	return price * f.LostMultiplier
}
