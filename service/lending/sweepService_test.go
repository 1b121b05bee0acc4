package lending

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vgnam/Library-Management-System/model"
)

func sweepRow(itemID, readerID string, status model.ItemStatus, due time.Time, price float64) ItemDetail {
	return ItemDetail{
		LoanItem: model.LoanItem{ID: itemID, RequestID: "req-" + itemID, CopyID: "copy-" + itemID, Status: status, DueDate: &due},
		ReaderID: readerID,
		Price:    price,
	}
}

func TestRunSweep_MarksOverdueAndChargesInfraction(t *testing.T) {
	f := newFixture()
	f.withCard("r1", model.CardStandard, model.CardActive)
	f.loans.sweepRows = []ItemDetail{
		sweepRow("i1", "r1", model.ItemActive, daysAgo(35), 90000),
	}

	rep, err := f.svc.RunSweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, rep.ItemsMarkedOverdue)
	require.Equal(t, 1, rep.InfractionsAdded)
	require.Equal(t, 1, rep.PenaltiesUpserted)
	require.Equal(t, 1, rep.ReadersEvaluated)

	require.Equal(t, model.ItemOverdue, f.loans.statusWrites["i1"])
	require.Equal(t, []string{"card-r1"}, f.cards.increments)
	require.Len(t, f.penalties.upserts, 1)
	require.Equal(t, 35, f.penalties.upserts[0].DaysOverdue)
	require.Equal(t, []string{"r1"}, f.membership.recompute)
}

func TestRunSweep_WithinGraceStaysActive(t *testing.T) {
	f := newFixture()
	f.withCard("r1", model.CardStandard, model.CardActive)
	f.loans.sweepRows = []ItemDetail{
		sweepRow("i1", "r1", model.ItemActive, daysAgo(3), 90000),
	}

	rep, err := f.svc.RunSweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, rep.ItemsMarkedOverdue)
	require.Zero(t, rep.InfractionsAdded)
	require.Zero(t, rep.PenaltiesUpserted)
	require.Empty(t, f.loans.statusWrites)
	require.Empty(t, f.cards.increments)
	// still recomputed: the card may need suspending even inside the grace window
	require.Equal(t, []string{"r1"}, f.membership.recompute)
}

func TestRunSweep_SecondRunAddsNoInfraction(t *testing.T) {
	f := newFixture()
	f.withCard("r1", model.CardStandard, model.CardActive)
	f.loans.sweepRows = []ItemDetail{
		sweepRow("i1", "r1", model.ItemActive, daysAgo(10), 90000),
	}

	_, err := f.svc.RunSweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"card-r1"}, f.cards.increments)

	// the first run flipped the row; the second sees it already Overdue
	f.loans.sweepRows[0].Status = model.ItemOverdue
	rep, err := f.svc.RunSweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, rep.InfractionsAdded)
	require.Equal(t, []string{"card-r1"}, f.cards.increments)
	// the late estimate is refreshed in place, not duplicated
	require.Equal(t, 1, rep.PenaltiesUpserted)
	require.Len(t, f.penalties.upserts, 1)
}

func TestRunSweep_ChargedItemFlipsWithoutSecondInfraction(t *testing.T) {
	f := newFixture()
	f.withCard("r1", model.CardStandard, model.CardActive)
	row := sweepRow("i1", "r1", model.ItemActive, daysAgo(10), 90000)
	row.InfractionCharged = true
	f.loans.sweepRows = []ItemDetail{row}

	rep, err := f.svc.RunSweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, rep.ItemsMarkedOverdue)
	require.Zero(t, rep.InfractionsAdded)
	require.Equal(t, model.ItemOverdue, f.loans.statusWrites["i1"])
	require.Empty(t, f.cards.increments)
}

func TestRunSweep_ReevaluatesSuspendedReaders(t *testing.T) {
	f := newFixture()
	f.cards.suspended = []string{"r9"}

	rep, err := f.svc.RunSweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, rep.ReadersEvaluated)
	require.Equal(t, []string{"r9"}, f.membership.recompute)
}

func TestRunSweep_OneReaderManyItems(t *testing.T) {
	f := newFixture()
	f.withCard("r1", model.CardStandard, model.CardActive)
	f.loans.sweepRows = []ItemDetail{
		sweepRow("i1", "r1", model.ItemActive, daysAgo(8), 90000),
		sweepRow("i2", "r1", model.ItemActive, daysAgo(12), 70000),
		sweepRow("i3", "r1", model.ItemOverdue, daysAgo(20), 60000),
	}

	rep, err := f.svc.RunSweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, rep.ItemsMarkedOverdue)
	require.Equal(t, 2, rep.InfractionsAdded)
	require.Equal(t, 3, rep.PenaltiesUpserted)
	// the reader is recomputed once, not once per item
	require.Equal(t, 1, rep.ReadersEvaluated)
	require.Equal(t, []string{"card-r1", "card-r1"}, f.cards.increments)
}
