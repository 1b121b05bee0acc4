package model

import "time"

type ItemStatus string

const (
	ItemPending       ItemStatus = "Pending"
	ItemActive        ItemStatus = "Active"
	ItemOverdue       ItemStatus = "Overdue"
	ItemPendingReturn ItemStatus = "PendingReturn"
	ItemReturned      ItemStatus = "Returned"
	ItemRejected      ItemStatus = "Rejected"
	ItemLost          ItemStatus = "Lost"
)

// itemTransitions is the closed transition table; anything not listed is illegal.
var itemTransitions = map[ItemStatus][]ItemStatus{
	ItemPending:       {ItemActive, ItemRejected},
	ItemActive:        {ItemOverdue, ItemPendingReturn, ItemReturned, ItemLost},
	ItemOverdue:       {ItemPendingReturn, ItemReturned, ItemLost},
	ItemPendingReturn: {ItemActive, ItemOverdue, ItemReturned, ItemLost},
}

func CanTransition(from, to ItemStatus) bool {
	for _, next := range itemTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s ItemStatus) Terminal() bool {
	return s == ItemReturned || s == ItemRejected || s == ItemLost
}

// Open reports whether the item still holds its copy.
func (s ItemStatus) Open() bool { return !s.Terminal() }

type LoanItem struct {
	ID        string     `json:"id"`
	RequestID string     `json:"request_id"`
	CopyID    string     `json:"copy_id"`
	Status    ItemStatus `json:"status"`
	DueDate   *time.Time `json:"due_date,omitempty"`
	// InfractionCharged records that this item already cost the reader its
	// one infraction; the charge never repeats per item.
	InfractionCharged bool       `json:"infraction_charged"`
	ReturnedAt        *time.Time `json:"returned_at,omitempty"`
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "Pending"
	RequestActive   RequestStatus = "Active"
	RequestRejected RequestStatus = "Rejected"
	RequestClosed   RequestStatus = "Closed"
)

// BorrowRequest is one submission batch. Its status is informative only;
// the authoritative state lives on each LoanItem.
type BorrowRequest struct {
	ID          string        `json:"id"`
	ReaderID    string        `json:"reader_id"`
	LibrarianID *string       `json:"librarian_id,omitempty"`
	Status      RequestStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
}
