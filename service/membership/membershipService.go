package membership

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vgnam/Library-Management-System/model"
	"github.com/vgnam/Library-Management-System/util/clock"
	"github.com/vgnam/Library-Management-System/util/database"
)

type ErrCode string

const (
	ErrReaderNotFound ErrCode = "READER_NOT_FOUND"
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

func Code(err error) ErrCode {
	var ce interface{ Code() ErrCode }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}

type CardRepo interface {
	CardByReader(ctx context.Context, q database.DBTX, readerID string) (*model.ReadingCard, error)
	CardByReaderForUpdate(ctx context.Context, q database.DBTX, readerID string) (*model.ReadingCard, error)
	UpdateStatus(ctx context.Context, q database.DBTX, cardID string, status model.CardStatus) error
}

type LoanReader interface {
	OpenItemsByReader(ctx context.Context, q database.DBTX, readerID string) ([]model.LoanItem, error)
}

// StatusInfo is the card snapshot handed to the API layer.
type StatusInfo struct {
	ReaderID        string           `json:"reader_id"`
	CardID          string           `json:"card_id"`
	CardType        model.CardType   `json:"card_type"`
	Status          model.CardStatus `json:"status"`
	InfractionCount int              `json:"infraction_count"`
	BorrowLimit     int              `json:"borrow_limit"`
	LoanPeriodDays  int              `json:"loan_period_days"`
	OpenItems       int              `json:"open_items"`
	OverdueItems    int              `json:"overdue_items"`
	CanBorrow       bool             `json:"can_borrow"`
}

type Service interface {
	// Recompute runs the card status machine for one reader inside the
	// caller's transaction, under the card row lock.
	Recompute(ctx context.Context, tx database.DBTX, readerID string) (model.CardStatus, string, error)

	// Unban is the administrative override out of Blocked; always to Active.
	Unban(ctx context.Context, readerID string) (*StatusInfo, error)

	CardStatus(ctx context.Context, readerID string) (*StatusInfo, error)
}

type service struct {
	runner database.Runner
	cards  CardRepo
	loans  LoanReader
	clock  clock.Clock
}

func New(runner database.Runner, cards CardRepo, loans LoanReader, clk clock.Clock) Service {
	return &service{runner: runner, cards: cards, loans: loans, clock: clk}
}

func (s *service) Recompute(ctx context.Context, tx database.DBTX, readerID string) (model.CardStatus, string, error) {
	card, err := s.cards.CardByReaderForUpdate(ctx, tx, readerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", makeErr(ErrReaderNotFound, readerID)
		}
		return "", "", err
	}

	items, err := s.loans.OpenItemsByReader(ctx, tx, readerID)
	if err != nil {
		return "", "", err
	}

	next, reason := EvaluateCard(card.Status, card.InfractionCount, openDueDates(items), s.clock.Now())
	if next != card.Status {
		if err := s.cards.UpdateStatus(ctx, tx, card.ID, next); err != nil {
			return "", "", err
		}
	}
	return next, reason, nil
}

func openDueDates(items []model.LoanItem) []time.Time {
	var dues []time.Time
	for _, it := range items {
		if it.Status.Open() && it.DueDate != nil {
			dues = append(dues, *it.DueDate)
		}
	}
	return dues
}

func (s *service) Unban(ctx context.Context, readerID string) (*StatusInfo, error) {
	var info *StatusInfo
	err := s.runner.RunInTx(ctx, func(ctx context.Context, tx database.DBTX) error {
		card, err := s.cards.CardByReaderForUpdate(ctx, tx, readerID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return makeErr(ErrReaderNotFound, readerID)
			}
			return err
		}
		if card.Status != model.CardActive {
			if err := s.cards.UpdateStatus(ctx, tx, card.ID, model.CardActive); err != nil {
				return err
			}
			card.Status = model.CardActive
		}
		snapshot, err := s.buildInfo(ctx, tx, card)
		if err != nil {
			return err
		}
		info = snapshot
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (s *service) CardStatus(ctx context.Context, readerID string) (*StatusInfo, error) {
	card, err := s.cards.CardByReader(ctx, s.runner.DB(), readerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, makeErr(ErrReaderNotFound, readerID)
		}
		return nil, err
	}
	return s.buildInfo(ctx, s.runner.DB(), card)
}

func (s *service) buildInfo(ctx context.Context, q database.DBTX, card *model.ReadingCard) (*StatusInfo, error) {
	items, err := s.loans.OpenItemsByReader(ctx, q, card.ReaderID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	overdue := 0
	for _, due := range openDueDates(items) {
		if now.After(due) {
			overdue++
		}
	}

	limit := card.Type.BorrowLimit()
	return &StatusInfo{
		ReaderID:        card.ReaderID,
		CardID:          card.ID,
		CardType:        card.Type,
		Status:          card.Status,
		InfractionCount: card.InfractionCount,
		BorrowLimit:     limit,
		LoanPeriodDays:  card.Type.LoanPeriodDays(),
		OpenItems:       len(items),
		OverdueItems:    overdue,
		CanBorrow:       card.Status == model.CardActive && len(items) < limit,
	}, nil
}
