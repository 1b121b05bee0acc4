package membership

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vgnam/Library-Management-System/model"
	"github.com/vgnam/Library-Management-System/util/clock"
	"github.com/vgnam/Library-Management-System/util/database"
)

type fakeRunner struct{}

func (fakeRunner) RunInTx(ctx context.Context, fn func(context.Context, database.DBTX) error) error {
	return fn(ctx, nil)
}
func (fakeRunner) DB() database.DBTX { return nil }

type cardMock struct {
	card     *model.ReadingCard
	statuses []model.CardStatus
}

var _ CardRepo = (*cardMock)(nil)

func (m *cardMock) CardByReader(ctx context.Context, q database.DBTX, readerID string) (*model.ReadingCard, error) {
	return m.card, nil
}
func (m *cardMock) CardByReaderForUpdate(ctx context.Context, q database.DBTX, readerID string) (*model.ReadingCard, error) {
	return m.card, nil
}
func (m *cardMock) UpdateStatus(ctx context.Context, q database.DBTX, cardID string, status model.CardStatus) error {
	m.statuses = append(m.statuses, status)
	return nil
}

type loanMock struct {
	items []model.LoanItem
}

var _ LoanReader = (*loanMock)(nil)

func (m *loanMock) OpenItemsByReader(ctx context.Context, q database.DBTX, readerID string) ([]model.LoanItem, error) {
	return m.items, nil
}

func openItem(due time.Time) model.LoanItem {
	return model.LoanItem{Status: model.ItemActive, DueDate: &due}
}

func TestRecompute_SuspendsAndPersists(t *testing.T) {
	cards := &cardMock{card: &model.ReadingCard{ID: "card-1", ReaderID: "r1", Type: model.CardStandard, Status: model.CardActive}}
	loans := &loanMock{items: []model.LoanItem{openItem(daysAgo(3))}}
	svc := New(fakeRunner{}, cards, loans, clock.Fixed{T: now})

	status, _, err := svc.Recompute(context.Background(), nil, "r1")
	require.NoError(t, err)
	require.Equal(t, model.CardSuspended, status)
	require.Equal(t, []model.CardStatus{model.CardSuspended}, cards.statuses)
}

func TestRecompute_NoWriteWhenUnchanged(t *testing.T) {
	cards := &cardMock{card: &model.ReadingCard{ID: "card-1", ReaderID: "r1", Type: model.CardStandard, Status: model.CardActive}}
	loans := &loanMock{items: []model.LoanItem{openItem(daysAgo(-20))}}
	svc := New(fakeRunner{}, cards, loans, clock.Fixed{T: now})

	status, _, err := svc.Recompute(context.Background(), nil, "r1")
	require.NoError(t, err)
	require.Equal(t, model.CardActive, status)
	require.Empty(t, cards.statuses)
}

func TestUnban_AlwaysToActive(t *testing.T) {
	cards := &cardMock{card: &model.ReadingCard{ID: "card-1", ReaderID: "r1", Type: model.CardVIP, Status: model.CardBlocked, InfractionCount: 4}}
	loans := &loanMock{}
	svc := New(fakeRunner{}, cards, loans, clock.Fixed{T: now})

	info, err := svc.Unban(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, model.CardActive, info.Status)
	require.Equal(t, []model.CardStatus{model.CardActive}, cards.statuses)
	// the counter survives an unban; only the status resets
	require.Equal(t, 4, info.InfractionCount)
}

func TestCardStatus_Snapshot(t *testing.T) {
	cards := &cardMock{card: &model.ReadingCard{ID: "card-1", ReaderID: "r1", Type: model.CardVIP, Status: model.CardActive}}
	loans := &loanMock{items: []model.LoanItem{openItem(daysAgo(2)), openItem(daysAgo(-30))}}
	svc := New(fakeRunner{}, cards, loans, clock.Fixed{T: now})

	info, err := svc.CardStatus(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, 8, info.BorrowLimit)
	require.Equal(t, 60, info.LoanPeriodDays)
	require.Equal(t, 2, info.OpenItems)
	require.Equal(t, 1, info.OverdueItems)
	require.True(t, info.CanBorrow)
}
