package penalty

import (
	"context"
	"strings"
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

type repoMock struct {
	getFn    func(ctx context.Context, q database.DBTX, penaltyID string) (*model.PenaltyRecord, error)
	updateFn func(ctx context.Context, q database.DBTX, penaltyID string, status model.PenaltyStatus, note string) error
	listFn   func(ctx context.Context, q database.DBTX, readerID string, status *model.PenaltyStatus) ([]ReaderPenaltyRow, error)
}

var _ Repo = (*repoMock)(nil)

func (m *repoMock) GetForUpdate(ctx context.Context, q database.DBTX, penaltyID string) (*model.PenaltyRecord, error) {
	return m.getFn(ctx, q, penaltyID)
}
func (m *repoMock) UpdateStatus(ctx context.Context, q database.DBTX, penaltyID string, status model.PenaltyStatus, note string) error {
	if m.updateFn == nil {
		return nil
	}
	return m.updateFn(ctx, q, penaltyID, status, note)
}
func (m *repoMock) ListByReader(ctx context.Context, q database.DBTX, readerID string, status *model.PenaltyStatus) ([]ReaderPenaltyRow, error) {
	return m.listFn(ctx, q, readerID, status)
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newService(m *repoMock) Service {
	return New(fakeRunner{}, m, DefaultFees(), clock.Fixed{T: testNow})
}

func TestPay_MarksPaid(t *testing.T) {
	var gotStatus model.PenaltyStatus
	m := &repoMock{
		getFn: func(ctx context.Context, q database.DBTX, id string) (*model.PenaltyRecord, error) {
			return &model.PenaltyRecord{
				ID: id, Kind: model.PenaltyLate, Status: model.PenaltyPending,
				DaysOverdue: 10, RatePerDay: 5000, PriceSnapshot: 100000,
			}, nil
		},
		updateFn: func(ctx context.Context, q database.DBTX, id string, status model.PenaltyStatus, note string) error {
			gotStatus = status
			if !strings.Contains(note, "Paid on") {
				t.Errorf("payment note missing timestamp: %q", note)
			}
			return nil
		},
	}
	receipt, err := newService(m).Pay(context.Background(), "pen-1", "staff-1")
	require.NoError(t, err)
	require.Equal(t, model.PenaltyPaid, gotStatus)
	require.Equal(t, 50000.0, receipt.Amount)
}

func TestPay_AlreadyPaid(t *testing.T) {
	m := &repoMock{
		getFn: func(ctx context.Context, q database.DBTX, id string) (*model.PenaltyRecord, error) {
			return &model.PenaltyRecord{ID: id, Status: model.PenaltyPaid}, nil
		},
	}
	_, err := newService(m).Pay(context.Background(), "pen-1", "staff-1")
	require.Equal(t, ErrAlreadyPaid, Code(err))
}

func TestCancel_PaidIsRefused(t *testing.T) {
	m := &repoMock{
		getFn: func(ctx context.Context, q database.DBTX, id string) (*model.PenaltyRecord, error) {
			return &model.PenaltyRecord{ID: id, Status: model.PenaltyPaid}, nil
		},
	}
	err := newService(m).Cancel(context.Background(), "pen-1", "issued by mistake")
	require.Equal(t, ErrPaidNotCancelled, Code(err))
}

func TestListByReader_RecomputesAmounts(t *testing.T) {
	due := testNow.AddDate(0, 0, -10)
	returned := testNow.AddDate(0, 0, -3)
	m := &repoMock{
		listFn: func(ctx context.Context, q database.DBTX, readerID string, status *model.PenaltyStatus) ([]ReaderPenaltyRow, error) {
			return []ReaderPenaltyRow{
				{
					// closed loan: frozen at its return date
					PenaltyRecord: model.PenaltyRecord{
						ID: "p1", Kind: model.PenaltyLate, Status: model.PenaltyPending,
						DaysOverdue: 7, RatePerDay: 5000, PriceSnapshot: 100000,
					},
					DueDate: &due, ReturnedAt: &returned,
				},
				{
					// still open: estimate keeps growing with now
					PenaltyRecord: model.PenaltyRecord{
						ID: "p2", Kind: model.PenaltyLate, Status: model.PenaltyPending,
						DaysOverdue: 6, RatePerDay: 5000, PriceSnapshot: 100000,
					},
					DueDate: &due,
				},
				{
					PenaltyRecord: model.PenaltyRecord{
						ID: "p3", Kind: model.PenaltyLost, Status: model.PenaltyPending,
						PriceSnapshot: 100000,
					},
				},
			}, nil
		},
	}
	views, err := newService(m).ListByReader(context.Background(), "reader-1", nil)
	require.NoError(t, err)
	require.Len(t, views, 3)

	require.Equal(t, 7*5000.0, views[0].Amount)
	require.False(t, views[0].Estimated)

	require.Equal(t, 10*5000.0, views[1].Amount)
	require.True(t, views[1].Estimated)

	require.Equal(t, 150000.0, views[2].Amount)
	require.False(t, views[2].Estimated)
}

func TestListByReader_PaidLateFeeIsFrozen(t *testing.T) {
	// item still out, but the penalty was settled at 8 days: the amount must
	// stay at the paid basis instead of growing with now
	due := testNow.AddDate(0, 0, -20)
	m := &repoMock{
		listFn: func(ctx context.Context, q database.DBTX, readerID string, status *model.PenaltyStatus) ([]ReaderPenaltyRow, error) {
			return []ReaderPenaltyRow{
				{
					PenaltyRecord: model.PenaltyRecord{
						ID: "p1", Kind: model.PenaltyLate, Status: model.PenaltyPaid,
						DaysOverdue: 8, RatePerDay: 5000, PriceSnapshot: 100000,
					},
					DueDate: &due,
				},
			}, nil
		},
	}
	views, err := newService(m).ListByReader(context.Background(), "reader-1", nil)
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, 8*5000.0, views[0].Amount)
	require.False(t, views[0].Estimated)
}
