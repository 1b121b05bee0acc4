package penalty

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vgnam/Library-Management-System/model"
	penaltyrepo "github.com/vgnam/Library-Management-System/repository/penalty"
	"github.com/vgnam/Library-Management-System/util/clock"
	"github.com/vgnam/Library-Management-System/util/database"
)

// errors used by callers

type ErrCode string

const (
	ErrNotFound         ErrCode = "PENALTY_NOT_FOUND"
	ErrAlreadyPaid      ErrCode = "ALREADY_PAID"
	ErrCancelled        ErrCode = "CANCELLED"
	ErrPaidNotCancelled ErrCode = "PAID_CANNOT_CANCEL"
)

type codedError struct {
	code   ErrCode
	detail string
}

func (e codedError) Error() string {
	if e.detail == "" {
		return string(e.code)
	}
	return string(e.code) + ": " + e.detail
}
func (e codedError) Code() ErrCode { return e.code }

func makeErr(c ErrCode, detail string) error { return codedError{code: c, detail: detail} }

// Code extracts the error code.
func Code(err error) ErrCode {
	var ce interface{ Code() ErrCode }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}

// ReaderPenaltyRow = repository shape
type ReaderPenaltyRow = penaltyrepo.ReaderPenaltyRow

// View is a penalty with its amount recomputed from the stored inputs.
type View struct {
	model.PenaltyRecord
	Amount    float64 `json:"amount"`
	Estimated bool    `json:"estimated"`
}

type Receipt struct {
	PenaltyID string  `json:"penalty_id"`
	Kind      string  `json:"kind"`
	Amount    float64 `json:"amount"`
	PaidAt    string  `json:"paid_at"`
}

type Repo interface {
	GetForUpdate(ctx context.Context, q database.DBTX, penaltyID string) (*model.PenaltyRecord, error)
	UpdateStatus(ctx context.Context, q database.DBTX, penaltyID string, status model.PenaltyStatus, note string) error
	ListByReader(ctx context.Context, q database.DBTX, readerID string, status *model.PenaltyStatus) ([]ReaderPenaltyRow, error)
}

type Service interface {
	// Pay marks a pending penalty paid at the amount recomputed now.
	Pay(ctx context.Context, penaltyID, staffID string) (*Receipt, error)

	// Cancel voids a pending penalty; paid penalties cannot be cancelled.
	Cancel(ctx context.Context, penaltyID, reason string) error

	ListByReader(ctx context.Context, readerID string, status *model.PenaltyStatus) ([]View, error)
}

type service struct {
	runner database.Runner
	r      Repo
	fees   Fees
	clock  clock.Clock
}

func New(runner database.Runner, r Repo, fees Fees, clk clock.Clock) Service {
	return &service{runner: runner, r: r, fees: fees, clock: clk}
}

// Amount recomputes a penalty's fee from its stored inputs. Late fees for
// still-open items use now as the comparison point, so the second return
// value reports whether the number is an estimate. Settled records are
// frozen at their stored day count.
func (f Fees) Amount(rec model.PenaltyRecord, due, returnedAt *time.Time, now time.Time) (float64, bool) {
	switch rec.Kind {
	case model.PenaltyLate:
		if rec.Status != model.PenaltyPending || due == nil {
			return f.lateFeeForDays(rec.DaysOverdue, rec.PriceSnapshot), false
		}
		if returnedAt != nil {
			return f.LateFee(*due, *returnedAt, rec.PriceSnapshot), false
		}
		return f.LateFee(*due, now, rec.PriceSnapshot), true
	case model.PenaltyDamage:
		return rec.BaseAmount, false
	case model.PenaltyLost:
		return rec.PriceSnapshot * f.LostMultiplier, false
	}
	return 0, false
}

func (s *service) Pay(ctx context.Context, penaltyID, staffID string) (*Receipt, error) {
	var receipt *Receipt
	err := s.runner.RunInTx(ctx, func(ctx context.Context, tx database.DBTX) error {
		rec, err := s.r.GetForUpdate(ctx, tx, penaltyID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return makeErr(ErrNotFound, "")
			}
			return err
		}
		switch rec.Status {
		case model.PenaltyPaid:
			return makeErr(ErrAlreadyPaid, "")
		case model.PenaltyCancelled:
			return makeErr(ErrCancelled, "")
		}

		now := s.clock.Now()
		// A paid late fee is frozen at its stored day count.
		amount, _ := s.fees.Amount(*rec, nil, nil, now)

		note := fmt.Sprintf(" | Paid on %s by %s", now.Format("2006-01-02 15:04"), staffID)
		if err := s.r.UpdateStatus(ctx, tx, penaltyID, model.PenaltyPaid, note); err != nil {
			return err
		}
		receipt = &Receipt{
			PenaltyID: rec.ID,
			Kind:      string(rec.Kind),
			Amount:    amount,
			PaidAt:    now.Format(time.RFC3339),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func (s *service) Cancel(ctx context.Context, penaltyID, reason string) error {
	return s.runner.RunInTx(ctx, func(ctx context.Context, tx database.DBTX) error {
		rec, err := s.r.GetForUpdate(ctx, tx, penaltyID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return makeErr(ErrNotFound, "")
			}
			return err
		}
		if rec.Status == model.PenaltyPaid {
			return makeErr(ErrPaidNotCancelled, "process a refund instead")
		}

		note := fmt.Sprintf(" | Cancelled on %s", s.clock.Now().Format("2006-01-02 15:04"))
		if reason != "" {
			note += ". Reason: " + reason
		}
		return s.r.UpdateStatus(ctx, tx, penaltyID, model.PenaltyCancelled, note)
	})
}

func (s *service) ListByReader(ctx context.Context, readerID string, status *model.PenaltyStatus) ([]View, error) {
	rows, err := s.r.ListByReader(ctx, s.runner.DB(), readerID, status)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	out := make([]View, 0, len(rows))
	for _, row := range rows {
		amount, estimated := s.fees.Amount(row.PenaltyRecord, row.DueDate, row.ReturnedAt, now)
		out = append(out, View{
			PenaltyRecord: row.PenaltyRecord,
			Amount:        amount,
			Estimated:     estimated,
		})
	}
	return out, nil
}
