// model/card.go
package model

import "time"

type CardType string

const (
	CardStandard CardType = "Standard"
	CardVIP      CardType = "VIP"
)

// LoanPeriodDays is the loan period granted at approval.
func (t CardType) LoanPeriodDays() int {
	if t == CardVIP {
		return 60
	}
	return 45
}

// BorrowLimit caps concurrent non-terminal loan items per reader.
func (t CardType) BorrowLimit() int {
	if t == CardVIP {
		return 8
	}
	return 5
}

func (t CardType) CanBorrowRare() bool { return t == CardVIP }

type CardStatus string

const (
	CardActive    CardStatus = "Active"
	CardSuspended CardStatus = "Suspended"
	CardBlocked   CardStatus = "Blocked"
	CardExpired   CardStatus = "Expired"
)

type ReadingCard struct {
	ID              string     `json:"id"`
	ReaderID        string     `json:"reader_id"`
	Type            CardType   `json:"card_type"`
	Status          CardStatus `json:"status"`
	InfractionCount int        `json:"infraction_count"`
	RegisterDate    time.Time  `json:"register_date"`
}
