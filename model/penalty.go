// model/penalty.go
package model

import "time"

type PenaltyKind string

const (
	PenaltyLate   PenaltyKind = "Late"
	PenaltyDamage PenaltyKind = "Damage"
	PenaltyLost   PenaltyKind = "Lost"
)

type PenaltyStatus string

const (
	PenaltyPending   PenaltyStatus = "Pending"
	PenaltyPaid      PenaltyStatus = "Paid"
	PenaltyCancelled PenaltyStatus = "Cancelled"
)

// PenaltyRecord stores the computation inputs, not the amount. Fee amounts
// are recomputed through the fee engine on every read so a late fee for a
// still-open loan keeps growing.
type PenaltyRecord struct {
	ID            string        `json:"id"`
	ItemID        string        `json:"item_id"`
	Kind          PenaltyKind   `json:"kind"`
	Status        PenaltyStatus `json:"status"`
	DaysOverdue   int           `json:"days_overdue"`
	RatePerDay    float64       `json:"rate_per_day"`
	PriceSnapshot float64       `json:"price_snapshot"`
	BaseAmount    float64       `json:"base_amount"`
	Description   string        `json:"description"`
	CreatedAt     time.Time     `json:"created_at"`
}
