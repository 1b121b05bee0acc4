package lending

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/vgnam/Library-Management-System/model"
	catalogrepo "github.com/vgnam/Library-Management-System/repository/catalog"
	loanrepo "github.com/vgnam/Library-Management-System/repository/loan"
	membershipsvc "github.com/vgnam/Library-Management-System/service/membership"
	svcpenalty "github.com/vgnam/Library-Management-System/service/penalty"
	"github.com/vgnam/Library-Management-System/util/clock"
	"github.com/vgnam/Library-Management-System/util/database"
)

// repository shapes reused by the service API
type (
	ItemDetail = loanrepo.ItemDetail
	HistoryRow = loanrepo.HistoryRow
)

// ----- collaborator contracts -----

type CatalogRepo interface {
	TitleByID(ctx context.Context, q database.DBTX, titleID string) (*model.BookTitle, error)
	FindAvailableCopy(ctx context.Context, q database.DBTX, titleID string, excluding []string) (string, error)
	Reserve(ctx context.Context, q database.DBTX, copyID string) error
	Release(ctx context.Context, q database.DBTX, copyID string) error
	SetCondition(ctx context.Context, q database.DBTX, copyID string, cond model.CopyCondition) error
}

type LoanRepo interface {
	InsertRequest(ctx context.Context, q database.DBTX, r *model.BorrowRequest) error
	InsertItem(ctx context.Context, q database.DBTX, it *model.LoanItem) error
	RequestByIDForUpdate(ctx context.Context, q database.DBTX, requestID string) (*model.BorrowRequest, error)
	UpdateRequestStatus(ctx context.Context, q database.DBTX, requestID string, status model.RequestStatus, librarianID *string) error
	DeleteRequest(ctx context.Context, q database.DBTX, requestID string) error
	ItemByIDForUpdate(ctx context.Context, q database.DBTX, itemID string) (*ItemDetail, error)
	ItemsByRequestForUpdate(ctx context.Context, q database.DBTX, requestID string) ([]model.LoanItem, error)
	UpdateItemStatus(ctx context.Context, q database.DBTX, itemID string, status model.ItemStatus) error
	MarkItemInfraction(ctx context.Context, q database.DBTX, itemID string) error
	SetItemDue(ctx context.Context, q database.DBTX, itemID string, due time.Time) error
	SetItemReturned(ctx context.Context, q database.DBTX, itemID string, status model.ItemStatus, at time.Time) error
	DeleteItem(ctx context.Context, q database.DBTX, itemID string) error
	OtherOpenItemOnCopy(ctx context.Context, q database.DBTX, copyID, itemID string) (bool, error)
	CountOpenItemsByReader(ctx context.Context, q database.DBTX, readerID string) (int, error)
	OpenItemsDueBeforeForUpdate(ctx context.Context, q database.DBTX, cutoff time.Time) ([]ItemDetail, error)
	OverdueItems(ctx context.Context, q database.DBTX, readerID *string, cutoff time.Time) ([]ItemDetail, error)
	History(ctx context.Context, q database.DBTX, readerID string) ([]HistoryRow, error)
}

type CardRepo interface {
	CardByReaderForUpdate(ctx context.Context, q database.DBTX, readerID string) (*model.ReadingCard, error)
	IncrementInfractions(ctx context.Context, q database.DBTX, cardID string) (int, error)
	ReadersWithCardStatus(ctx context.Context, q database.DBTX, status model.CardStatus) ([]string, error)
}

type PenaltyRepo interface {
	Upsert(ctx context.Context, q database.DBTX, rec *model.PenaltyRecord) error
}

type Membership interface {
	Recompute(ctx context.Context, tx database.DBTX, readerID string) (model.CardStatus, string, error)
	CardStatus(ctx context.Context, readerID string) (*membershipsvc.StatusInfo, error)
}

// ----- dto -----

type SubmitRequest struct {
	ReaderID string   `json:"reader_id" validate:"required"`
	TitleIDs []string `json:"title_ids" validate:"required,min=1,dive,required"`
}

type AssignedCopy struct {
	TitleID string `json:"title_id"`
	CopyID  string `json:"copy_id"`
	ItemID  string `json:"item_id"`
}

type Submission struct {
	RequestID string         `json:"request_id"`
	Items     []AssignedCopy `json:"items"`
}

type Approval struct {
	RequestID string    `json:"request_id"`
	DueDate   time.Time `json:"due_date"`
	Items     int       `json:"items"`
}

type ProcessReturnRequest struct {
	ItemID            string   `json:"item_id" validate:"required"`
	LibrarianID       string   `json:"librarian_id" validate:"required"`
	Condition         string   `json:"condition" validate:"required,oneof=good damaged lost"`
	DamageDescription string   `json:"damage_description" validate:"required_if=Condition damaged"`
	CustomDamageFee   *float64 `json:"custom_damage_fee" validate:"omitempty,gt=0"`
}

type ReturnOutcome struct {
	ItemID      string           `json:"item_id"`
	ItemStatus  model.ItemStatus `json:"item_status"`
	DaysOverdue int              `json:"days_overdue"`
	LateFee     float64          `json:"late_fee"`
	DamageFee   float64          `json:"damage_fee"`
	LostFee     float64          `json:"lost_fee"`
	CardStatus  model.CardStatus `json:"card_status"`
	CardReason  string           `json:"card_reason,omitempty"`
}

type OverdueView struct {
	ItemDetail
	DaysOverdue  int     `json:"days_overdue"`
	EstimatedFee float64 `json:"estimated_fee"`
}

type Service interface {
	// Submit creates a borrow request, tentatively reserving one copy per
	// requested title. All-or-nothing: any failure leaves no trace.
	Submit(ctx context.Context, req SubmitRequest) (*Submission, error)

	// Approve activates a pending request and stamps due dates. A card that
	// is no longer Active auto-rejects the request instead of leaving it
	// pending.
	Approve(ctx context.Context, requestID, librarianID string) (*Approval, error)

	Reject(ctx context.Context, requestID, librarianID string) error

	// Cancel removes a still-pending request on the reader's behalf.
	Cancel(ctx context.Context, readerID, requestID string) error

	RequestReturn(ctx context.Context, readerID, itemID string) error
	CancelReturn(ctx context.Context, readerID, itemID string) error

	// ProcessReturn closes out one item with the staff-assessed condition,
	// records any fees, and recomputes the reader's card status.
	ProcessReturn(ctx context.Context, req ProcessReturnRequest) (*ReturnOutcome, error)

	History(ctx context.Context, readerID string) ([]HistoryRow, error)
	OverdueItems(ctx context.Context, readerID *string) ([]OverdueView, error)

	// CardStatus surfaces the reader's card snapshot alongside the lending
	// operations that depend on it.
	CardStatus(ctx context.Context, readerID string) (*membershipsvc.StatusInfo, error)

	// RunSweep advances all time-driven transitions; safe to run repeatedly.
	RunSweep(ctx context.Context) (*SweepReport, error)
}

// ----- Service implementation -----

type service struct {
	runner     database.Runner
	catalog    CatalogRepo
	loans      LoanRepo
	cards      CardRepo
	penalties  PenaltyRepo
	membership Membership
	fees       svcpenalty.Fees
	clock      clock.Clock
	v          *validator.Validate
	log        *slog.Logger
}

func New(
	runner database.Runner,
	catalog CatalogRepo,
	loans LoanRepo,
	cards CardRepo,
	penalties PenaltyRepo,
	membership Membership,
	fees svcpenalty.Fees,
	clk clock.Clock,
	log *slog.Logger,
) Service {
	return &service{
		runner:     runner,
		catalog:    catalog,
		loans:      loans,
		cards:      cards,
		penalties:  penalties,
		membership: membership,
		fees:       fees,
		clock:      clk,
		v:          validator.New(),
		log:        log,
	}
}

func (s *service) Submit(ctx context.Context, req SubmitRequest) (*Submission, error) {
	if err := s.v.Struct(req); err != nil {
		return nil, makeErr(ErrInvalidInput, err.Error())
	}

	var sub *Submission
	err := s.runner.RunInTx(ctx, func(ctx context.Context, tx database.DBTX) error {
		// The card rules run here, not against the stored status: an item
		// that crossed the block threshold since the last sweep must refuse
		// the submission.
		card, err := s.activeCard(ctx, tx, req.ReaderID)
		if err != nil {
			return err
		}

		open, err := s.loans.CountOpenItemsByReader(ctx, tx, req.ReaderID)
		if err != nil {
			return err
		}
		if limit := card.Type.BorrowLimit(); open+len(req.TitleIDs) > limit {
			return makeErr(ErrLimitReached,
				fmt.Sprintf("%d open + %d requested exceeds limit of %d", open, len(req.TitleIDs), limit))
		}

		br := &model.BorrowRequest{
			ID:        uuid.NewString(),
			ReaderID:  req.ReaderID,
			Status:    model.RequestPending,
			CreatedAt: s.clock.Now(),
		}
		if err := s.loans.InsertRequest(ctx, tx, br); err != nil {
			return err
		}

		// Copies already picked by earlier lines of this request must not be
		// picked again for a second line of the same title.
		var picked []string
		var assigned []AssignedCopy
		for _, titleID := range req.TitleIDs {
			title, err := s.catalog.TitleByID(ctx, tx, titleID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return makeErr(ErrTitleNotFound, titleID)
				}
				return err
			}
			if title.Rare() && !card.Type.CanBorrowRare() {
				return makeErr(ErrRareRequiresVIP, fmt.Sprintf("%q is restricted to VIP cards", title.Name))
			}

			copyID, err := s.catalog.FindAvailableCopy(ctx, tx, titleID, picked)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return makeErr(ErrNoCopyAvailable, fmt.Sprintf("no copies of %q left", title.Name))
				}
				return err
			}
			if err := s.catalog.Reserve(ctx, tx, copyID); err != nil {
				if errors.Is(err, catalogrepo.ErrAlreadyReserved) {
					return makeErr(ErrCopyTaken, copyID)
				}
				return err
			}

			it := &model.LoanItem{
				ID:        uuid.NewString(),
				RequestID: br.ID,
				CopyID:    copyID,
				Status:    model.ItemPending,
			}
			if err := s.loans.InsertItem(ctx, tx, it); err != nil {
				return err
			}
			picked = append(picked, copyID)
			assigned = append(assigned, AssignedCopy{TitleID: titleID, CopyID: copyID, ItemID: it.ID})
		}

		sub = &Submission{RequestID: br.ID, Items: assigned}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *service) Approve(ctx context.Context, requestID, librarianID string) (*Approval, error) {
	var out *Approval
	var refusal error

	err := s.runner.RunInTx(ctx, func(ctx context.Context, tx database.DBTX) error {
		br, items, err := s.pendingRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}

		// Recompute, not the stored status: the card rules run again at
		// approval time.
		status, _, err := s.membership.Recompute(ctx, tx, br.ReaderID)
		if err != nil {
			return err
		}
		card, err := s.cards.CardByReaderForUpdate(ctx, tx, br.ReaderID)
		if err != nil {
			return err
		}
		if status != model.CardActive {
			// Auto-reject rather than leave the request pending; the
			// rejection commits and the caller still sees the refusal.
			for _, it := range items {
				if err := s.loans.UpdateItemStatus(ctx, tx, it.ID, model.ItemRejected); err != nil {
					return err
				}
				if err := s.catalog.Release(ctx, tx, it.CopyID); err != nil {
					return err
				}
			}
			if err := s.loans.UpdateRequestStatus(ctx, tx, requestID, model.RequestRejected, &librarianID); err != nil {
				return err
			}
			refusal = makeErr(ErrCardNotActive,
				fmt.Sprintf("card is %s; request auto-rejected", status))
			return nil
		}

		due := s.clock.Now().AddDate(0, 0, card.Type.LoanPeriodDays())
		for _, it := range items {
			// Closes the race where the copy was taken between submission
			// and approval.
			taken, err := s.loans.OtherOpenItemOnCopy(ctx, tx, it.CopyID, it.ID)
			if err != nil {
				return err
			}
			if taken {
				return makeErr(ErrCopyTaken, it.CopyID)
			}
			if err := s.loans.SetItemDue(ctx, tx, it.ID, due); err != nil {
				return err
			}
			if err := s.loans.UpdateItemStatus(ctx, tx, it.ID, model.ItemActive); err != nil {
				return err
			}
		}
		if err := s.loans.UpdateRequestStatus(ctx, tx, requestID, model.RequestActive, &librarianID); err != nil {
			return err
		}

		out = &Approval{RequestID: requestID, DueDate: due, Items: len(items)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if refusal != nil {
		return nil, refusal
	}
	return out, nil
}

func (s *service) Reject(ctx context.Context, requestID, librarianID string) error {
	return s.runner.RunInTx(ctx, func(ctx context.Context, tx database.DBTX) error {
		_, items, err := s.pendingRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if err := s.loans.UpdateItemStatus(ctx, tx, it.ID, model.ItemRejected); err != nil {
				return err
			}
			if err := s.catalog.Release(ctx, tx, it.CopyID); err != nil {
				return err
			}
		}
		return s.loans.UpdateRequestStatus(ctx, tx, requestID, model.RequestRejected, &librarianID)
	})
}

func (s *service) Cancel(ctx context.Context, readerID, requestID string) error {
	return s.runner.RunInTx(ctx, func(ctx context.Context, tx database.DBTX) error {
		br, items, err := s.pendingRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if br.ReaderID != readerID {
			return makeErr(ErrNotOwner, "request belongs to another reader")
		}
		for _, it := range items {
			if err := s.catalog.Release(ctx, tx, it.CopyID); err != nil {
				return err
			}
			if err := s.loans.DeleteItem(ctx, tx, it.ID); err != nil {
				return err
			}
		}
		return s.loans.DeleteRequest(ctx, tx, requestID)
	})
}

// activeCard runs the card status machine for the reader and returns the
// locked card row, refusing anything that does not come out Active.
func (s *service) activeCard(ctx context.Context, tx database.DBTX, readerID string) (*model.ReadingCard, error) {
	status, reason, err := s.membership.Recompute(ctx, tx, readerID)
	if err != nil {
		if membershipsvc.Code(err) == membershipsvc.ErrReaderNotFound {
			return nil, makeErr(ErrReaderNotFound, readerID)
		}
		return nil, err
	}
	if status != model.CardActive {
		detail := fmt.Sprintf("card is %s", status)
		if reason != "" {
			detail += ": " + reason
		}
		return nil, makeErr(ErrCardNotActive, detail)
	}
	return s.cards.CardByReaderForUpdate(ctx, tx, readerID)
}

// pendingRequest locks the request and its items and verifies everything is
// still Pending.
func (s *service) pendingRequest(ctx context.Context, tx database.DBTX, requestID string) (*model.BorrowRequest, []model.LoanItem, error) {
	br, err := s.loans.RequestByIDForUpdate(ctx, tx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, makeErr(ErrRequestNotFound, requestID)
		}
		return nil, nil, err
	}
	if br.Status != model.RequestPending {
		return nil, nil, makeErr(ErrNotPending, fmt.Sprintf("request is %s", br.Status))
	}
	items, err := s.loans.ItemsByRequestForUpdate(ctx, tx, requestID)
	if err != nil {
		return nil, nil, err
	}
	for _, it := range items {
		if it.Status != model.ItemPending {
			return nil, nil, makeErr(ErrNotPending, fmt.Sprintf("item %s is %s", it.ID, it.Status))
		}
	}
	return br, items, nil
}

func (s *service) RequestReturn(ctx context.Context, readerID, itemID string) error {
	return s.runner.RunInTx(ctx, func(ctx context.Context, tx database.DBTX) error {
		d, err := s.ownedItem(ctx, tx, readerID, itemID)
		if err != nil {
			return err
		}
		if !model.CanTransition(d.Status, model.ItemPendingReturn) {
			return makeErr(ErrNotReturnable, fmt.Sprintf("item is %s", d.Status))
		}
		return s.loans.UpdateItemStatus(ctx, tx, itemID, model.ItemPendingReturn)
	})
}

func (s *service) CancelReturn(ctx context.Context, readerID, itemID string) error {
	return s.runner.RunInTx(ctx, func(ctx context.Context, tx database.DBTX) error {
		d, err := s.ownedItem(ctx, tx, readerID, itemID)
		if err != nil {
			return err
		}
		if d.Status != model.ItemPendingReturn {
			return makeErr(ErrNotPendingReturn, fmt.Sprintf("item is %s", d.Status))
		}
		// Revert based on the current date, not the status it had before.
		// The grace window applies here exactly as in the sweep, and a revert
		// that lands past it charges the infraction the sweep can no longer
		// charge (its guard only fires on Active items).
		target := model.ItemActive
		if d.DueDate != nil && svcpenalty.DaysOverdue(*d.DueDate, s.clock.Now()) > infractionAfterDays {
			target = model.ItemOverdue
		}
		if err := s.loans.UpdateItemStatus(ctx, tx, itemID, target); err != nil {
			return err
		}
		if target == model.ItemOverdue && !d.InfractionCharged {
			card, err := s.cards.CardByReaderForUpdate(ctx, tx, readerID)
			if err != nil {
				return err
			}
			if _, err := s.cards.IncrementInfractions(ctx, tx, card.ID); err != nil {
				return err
			}
			if err := s.loans.MarkItemInfraction(ctx, tx, itemID); err != nil {
				return err
			}
			if _, _, err := s.membership.Recompute(ctx, tx, readerID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *service) ownedItem(ctx context.Context, tx database.DBTX, readerID, itemID string) (*ItemDetail, error) {
	d, err := s.loans.ItemByIDForUpdate(ctx, tx, itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, makeErr(ErrItemNotFound, itemID)
		}
		return nil, err
	}
	if d.ReaderID != readerID {
		return nil, makeErr(ErrNotOwner, "item belongs to another reader")
	}
	return d, nil
}

func (s *service) ProcessReturn(ctx context.Context, req ProcessReturnRequest) (*ReturnOutcome, error) {
	if err := s.v.Struct(req); err != nil {
		return nil, makeErr(ErrInvalidInput, err.Error())
	}
	cond := model.CopyCondition(req.Condition)

	var out *ReturnOutcome
	err := s.runner.RunInTx(ctx, func(ctx context.Context, tx database.DBTX) error {
		d, err := s.loans.ItemByIDForUpdate(ctx, tx, req.ItemID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return makeErr(ErrItemNotFound, req.ItemID)
			}
			return err
		}

		target := model.ItemReturned
		if cond == model.CopyLost {
			target = model.ItemLost
		}
		if !model.CanTransition(d.Status, target) {
			return makeErr(ErrNotReturnable, fmt.Sprintf("item is %s", d.Status))
		}

		now := s.clock.Now()
		out = &ReturnOutcome{ItemID: d.ID, ItemStatus: target}

		if d.DueDate != nil {
			out.DaysOverdue = svcpenalty.DaysOverdue(*d.DueDate, now)
		}
		if out.DaysOverdue > 0 {
			out.LateFee = s.fees.LateFee(*d.DueDate, now, d.Price)
			rec := &model.PenaltyRecord{
				ID:            uuid.NewString(),
				ItemID:        d.ID,
				Kind:          model.PenaltyLate,
				Status:        model.PenaltyPending,
				DaysOverdue:   out.DaysOverdue,
				RatePerDay:    s.fees.LateRatePerDay,
				PriceSnapshot: d.Price,
				Description:   fmt.Sprintf("Late return: %d day(s) overdue", out.DaysOverdue),
				CreatedAt:     now,
			}
			if err := s.penalties.Upsert(ctx, tx, rec); err != nil {
				return err
			}
		}

		switch cond {
		case model.CopyDamaged:
			out.DamageFee = s.fees.DamageFee(req.CustomDamageFee)
			if err := s.catalog.SetCondition(ctx, tx, d.CopyID, model.CopyDamaged); err != nil {
				return err
			}
			rec := &model.PenaltyRecord{
				ID:          uuid.NewString(),
				ItemID:      d.ID,
				Kind:        model.PenaltyDamage,
				Status:      model.PenaltyPending,
				BaseAmount:  out.DamageFee,
				Description: "Book damage: " + req.DamageDescription,
				CreatedAt:   now,
			}
			if err := s.penalties.Upsert(ctx, tx, rec); err != nil {
				return err
			}
		case model.CopyLost:
			out.LostFee = s.fees.LostFee(d.Price)
			if err := s.catalog.SetCondition(ctx, tx, d.CopyID, model.CopyLost); err != nil {
				return err
			}
			rec := &model.PenaltyRecord{
				ID:            uuid.NewString(),
				ItemID:        d.ID,
				Kind:          model.PenaltyLost,
				Status:        model.PenaltyPending,
				PriceSnapshot: d.Price,
				Description:   "Book lost; replacement charged at price snapshot",
				CreatedAt:     now,
			}
			if err := s.penalties.Upsert(ctx, tx, rec); err != nil {
				return err
			}
		}

		if err := s.loans.SetItemReturned(ctx, tx, d.ID, target, now); err != nil {
			return err
		}
		if err := s.catalog.Release(ctx, tx, d.CopyID); err != nil {
			return err
		}

		status, reason, err := s.membership.Recompute(ctx, tx, d.ReaderID)
		if err != nil {
			return err
		}
		out.CardStatus = status
		out.CardReason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) History(ctx context.Context, readerID string) ([]HistoryRow, error) {
	return s.loans.History(ctx, s.runner.DB(), readerID)
}

func (s *service) CardStatus(ctx context.Context, readerID string) (*membershipsvc.StatusInfo, error) {
	return s.membership.CardStatus(ctx, readerID)
}

func (s *service) OverdueItems(ctx context.Context, readerID *string) ([]OverdueView, error) {
	now := s.clock.Now()
	rows, err := s.loans.OverdueItems(ctx, s.runner.DB(), readerID, now)
	if err != nil {
		return nil, err
	}
	out := make([]OverdueView, 0, len(rows))
	for _, d := range rows {
		days := svcpenalty.DaysOverdue(*d.DueDate, now)
		out = append(out, OverdueView{
			ItemDetail:   d,
			DaysOverdue:  days,
			EstimatedFee: s.fees.LateFee(*d.DueDate, now, d.Price),
		})
	}
	return out, nil
}
