package penalty

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestLateFee_ZeroAtDue(t *testing.T) {
	f := DefaultFees()
	due := day("2025-03-01")
	require.Zero(t, f.LateFee(due, due, 100000))
	// early return is not a credit
	require.Zero(t, f.LateFee(due, day("2025-02-20"), 100000))
}

func TestLateFee_PerDay(t *testing.T) {
	f := DefaultFees()
	due := day("2025-03-01")
	require.Equal(t, 5000.0, f.LateFee(due, day("2025-03-02"), 100000))
	require.Equal(t, 35000.0, f.LateFee(due, day("2025-03-08"), 100000))
	require.Equal(t, 150000.0, f.LateFee(due, day("2025-03-31"), 100000))
}

func TestLateFee_ReplacementSurchargeAfter30Days(t *testing.T) {
	f := DefaultFees()
	due := day("2025-03-01")
	// 30 days: daily only
	require.Equal(t, 150000.0, f.LateFee(due, day("2025-03-31"), 100000))
	// 31 days: daily plus a one-time item price
	require.Equal(t, 31*5000.0+100000, f.LateFee(due, day("2025-04-01"), 100000))
}

func TestLateFee_Monotonic(t *testing.T) {
	f := DefaultFees()
	due := day("2025-03-01")
	prev := 0.0
	for i := 0; i < 60; i++ {
		at := due.AddDate(0, 0, i)
		fee := f.LateFee(due, at, 80000)
		require.GreaterOrEqual(t, fee, prev, "fee decreased at day %d", i)
		prev = fee
	}
}

func TestLateFee_IgnoresTimeOfDay(t *testing.T) {
	f := DefaultFees()
	due := time.Date(2025, 3, 1, 23, 30, 0, 0, time.UTC)
	sameDay := time.Date(2025, 3, 1, 23, 59, 0, 0, time.UTC)
	nextDay := time.Date(2025, 3, 2, 0, 30, 0, 0, time.UTC)
	require.Zero(t, f.LateFee(due, sameDay, 0))
	require.Equal(t, 5000.0, f.LateFee(due, nextDay, 0))
}

func TestDamageFee_Clamp(t *testing.T) {
	f := DefaultFees()
	require.Equal(t, 50000.0, f.DamageFee(nil))

	low := 10000.0
	require.Equal(t, 50000.0, f.DamageFee(&low))

	mid := 120000.0
	require.Equal(t, 120000.0, f.DamageFee(&mid))

	high := 900000.0
	require.Equal(t, 500000.0, f.DamageFee(&high))
}

func TestLostFee(t *testing.T) {
	f := DefaultFees()
	require.Equal(t, 150000.0, f.LostFee(100000))
	require.Zero(t, f.LostFee(0))
}

func TestAmount_SharedBetweenClosedAndEstimate(t *testing.T) {
	// The estimate path for a still-open loan and the closed-loan path must
	// agree when evaluated at the same instant.
	f := DefaultFees()
	due := day("2025-03-01")
	at := day("2025-03-15")

	closed := f.LateFee(due, at, 100000)
	estimate := f.LateFee(due, at, 100000)
	require.Equal(t, closed, estimate)
	require.Equal(t, 14*5000.0, closed)
}
