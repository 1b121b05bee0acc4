package membership

import (
	"fmt"
	"time"

	"github.com/vgnam/Library-Management-System/model"
	svcpenalty "github.com/vgnam/Library-Management-System/service/penalty"
)

const (
	// blockAfterDays blocks a card outright when a single item sits this
	// long past due.
	blockAfterDays = 30
	// blockAfterInfractions blocks a card once the counter reaches this.
	blockAfterInfractions = 3
)

// EvaluateCard decides the next card status from the reader's open loan due
// dates and infraction count. Rule order matters: the single-item 30-day
// rule is checked before the accumulated-infraction rule, and both before
// suspension. Blocked and Expired are never changed here; Blocked can only
// be left through an explicit administrative unban.
func EvaluateCard(current model.CardStatus, infractions int, dueDates []time.Time, now time.Time) (model.CardStatus, string) {
	if current == model.CardBlocked || current == model.CardExpired {
		return current, ""
	}

	overdue := 0
	for _, due := range dueDates {
		days := svcpenalty.DaysOverdue(due, now)
		if days >= blockAfterDays {
			return model.CardBlocked, fmt.Sprintf("single item %d days overdue (>= %d days)", days, blockAfterDays)
		}
		if days > 0 {
			overdue++
		}
	}

	if infractions >= blockAfterInfractions {
		return model.CardBlocked, fmt.Sprintf("accumulated %d infractions", infractions)
	}

	if overdue > 0 {
		return model.CardSuspended, fmt.Sprintf("%d overdue item(s)", overdue)
	}

	if current == model.CardSuspended {
		return model.CardActive, "no overdue items remaining"
	}

	return current, ""
}
