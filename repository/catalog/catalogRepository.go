// repository/catalog/repo.go
package catalogrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/vgnam/Library-Management-System/model"
	"github.com/vgnam/Library-Management-System/util/database"
)

// ErrAlreadyReserved is returned when a conditional reserve loses the race.
var ErrAlreadyReserved = errors.New("copy already reserved")

type Repo interface {
	TitleByID(ctx context.Context, q database.DBTX, titleID string) (*model.BookTitle, error)

	// FindAvailableCopy picks one free copy of the title, skipping copies
	// already chosen earlier in the same request. SKIP LOCKED keeps two
	// concurrent submissions off the same row.
	FindAvailableCopy(ctx context.Context, q database.DBTX, titleID string, excluding []string) (string, error)

	// Reserve is the single enforcement point for the one-active-loan-per-copy
	// invariant: a conditional update that only wins if the copy is free.
	Reserve(ctx context.Context, q database.DBTX, copyID string) error
	Release(ctx context.Context, q database.DBTX, copyID string) error
	SetCondition(ctx context.Context, q database.DBTX, copyID string, cond model.CopyCondition) error

	// PriceForCopy resolves the copy's title price for fee snapshots.
	PriceForCopy(ctx context.Context, q database.DBTX, copyID string) (float64, error)
}

type repo struct{}

func New() Repo { return &repo{} }

func (r *repo) TitleByID(ctx context.Context, q database.DBTX, titleID string) (*model.BookTitle, error) {
	const query = `
		SELECT id, name, category, price
		FROM book_titles
		WHERE id = $1`
	var t model.BookTitle
	err := q.QueryRowContext(ctx, query, titleID).Scan(&t.ID, &t.Name, &t.Category, &t.Price)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repo) FindAvailableCopy(ctx context.Context, q database.DBTX, titleID string, excluding []string) (string, error) {
	query := `
		SELECT id
		FROM book_copies
		WHERE title_id = $1
		AND on_loan = FALSE
		AND condition <> 'lost'`
	args := []any{titleID}
	for _, id := range excluding {
		args = append(args, id)
		query += fmt.Sprintf(" AND id <> $%d", len(args))
	}
	query += `
		ORDER BY id
		FOR UPDATE SKIP LOCKED
		LIMIT 1`

	var copyID string
	err := q.QueryRowContext(ctx, query, args...).Scan(&copyID)
	return copyID, err
}

func (r *repo) Reserve(ctx context.Context, q database.DBTX, copyID string) error {
	const query = `
		UPDATE book_copies
		SET on_loan = TRUE
		WHERE id = $1
		AND on_loan = FALSE`
	res, err := q.ExecContext(ctx, query, copyID)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff == 0 {
		return ErrAlreadyReserved
	}
	return nil
}

func (r *repo) Release(ctx context.Context, q database.DBTX, copyID string) error {
	const query = `
		UPDATE book_copies
		SET on_loan = FALSE
		WHERE id = $1`
	_, err := q.ExecContext(ctx, query, copyID)
	return err
}

func (r *repo) SetCondition(ctx context.Context, q database.DBTX, copyID string, cond model.CopyCondition) error {
	const query = `
		UPDATE book_copies
		SET condition = $2
		WHERE id = $1`
	_, err := q.ExecContext(ctx, query, copyID, string(cond))
	return err
}

func (r *repo) PriceForCopy(ctx context.Context, q database.DBTX, copyID string) (float64, error) {
	const query = `
		SELECT t.price
		FROM book_copies c
		JOIN book_titles t ON t.id = c.title_id
		WHERE c.id = $1`
	var price float64
	err := q.QueryRowContext(ctx, query, copyID).Scan(&price)
	return price, err
}
