// repository/membership/repo.go
package membershiprepo

import (
	"context"

	"github.com/vgnam/Library-Management-System/model"
	"github.com/vgnam/Library-Management-System/util/database"
)

type Repo interface {
	CardByReader(ctx context.Context, q database.DBTX, readerID string) (*model.ReadingCard, error)

	// CardByReaderForUpdate locks the card row so two overlapping status
	// recomputations for the same reader serialize.
	CardByReaderForUpdate(ctx context.Context, q database.DBTX, readerID string) (*model.ReadingCard, error)

	UpdateStatus(ctx context.Context, q database.DBTX, cardID string, status model.CardStatus) error

	// IncrementInfractions adds exactly one infraction and returns the new count.
	IncrementInfractions(ctx context.Context, q database.DBTX, cardID string) (int, error)

	// ReadersWithCardStatus lists reader ids whose card currently has the
	// given status (sweep recovery scope).
	ReadersWithCardStatus(ctx context.Context, q database.DBTX, status model.CardStatus) ([]string, error)
}

type repo struct{}

func New() Repo { return &repo{} }

const cardColumns = `id, reader_id, card_type, status, infraction_count, register_date`

func (r *repo) CardByReader(ctx context.Context, q database.DBTX, readerID string) (*model.ReadingCard, error) {
	const query = `
		SELECT ` + cardColumns + `
		FROM reading_cards
		WHERE reader_id = $1`
	return scanCard(q.QueryRowContext(ctx, query, readerID))
}

func (r *repo) CardByReaderForUpdate(ctx context.Context, q database.DBTX, readerID string) (*model.ReadingCard, error) {
	const query = `
		SELECT ` + cardColumns + `
		FROM reading_cards
		WHERE reader_id = $1
		FOR UPDATE`
	return scanCard(q.QueryRowContext(ctx, query, readerID))
}

type rowScanner interface{ Scan(dest ...any) error }

func scanCard(row rowScanner) (*model.ReadingCard, error) {
	var c model.ReadingCard
	err := row.Scan(&c.ID, &c.ReaderID, &c.Type, &c.Status, &c.InfractionCount, &c.RegisterDate)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repo) UpdateStatus(ctx context.Context, q database.DBTX, cardID string, status model.CardStatus) error {
	const query = `
		UPDATE reading_cards
		SET status = $2
		WHERE id = $1`
	_, err := q.ExecContext(ctx, query, cardID, string(status))
	return err
}

func (r *repo) IncrementInfractions(ctx context.Context, q database.DBTX, cardID string) (int, error) {
	const query = `
		UPDATE reading_cards
		SET infraction_count = infraction_count + 1
		WHERE id = $1
		RETURNING infraction_count`
	var count int
	err := q.QueryRowContext(ctx, query, cardID).Scan(&count)
	return count, err
}

func (r *repo) ReadersWithCardStatus(ctx context.Context, q database.DBTX, status model.CardStatus) ([]string, error) {
	const query = `
		SELECT reader_id
		FROM reading_cards
		WHERE status = $1`
	rows, err := q.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
