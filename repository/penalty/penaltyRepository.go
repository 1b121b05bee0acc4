package penaltyrepo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vgnam/Library-Management-System/model"
	"github.com/vgnam/Library-Management-System/util/database"
)

// ErrDuplicate is returned when an insert collides with the (item_id, kind)
// uniqueness constraint outside the upsert path.
var ErrDuplicate = errors.New("penalty already exists for item and kind")

// ReaderPenaltyRow is a penalty joined with the loan item dates needed to
// recompute the amount on read.
type ReaderPenaltyRow struct {
	model.PenaltyRecord
	DueDate    *time.Time `json:"due_date,omitempty"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
}

type Repo interface {
	// Upsert writes the record keyed on (item_id, kind); a second write for
	// the same key refreshes the inputs instead of appending a row, which is
	// what keeps the sweep idempotent. Settled rows (Paid/Cancelled) are left
	// untouched.
	Upsert(ctx context.Context, q database.DBTX, rec *model.PenaltyRecord) error

	GetForUpdate(ctx context.Context, q database.DBTX, penaltyID string) (*model.PenaltyRecord, error)
	UpdateStatus(ctx context.Context, q database.DBTX, penaltyID string, status model.PenaltyStatus, note string) error

	ListByItem(ctx context.Context, q database.DBTX, itemID string) ([]model.PenaltyRecord, error)
	ListByReader(ctx context.Context, q database.DBTX, readerID string, status *model.PenaltyStatus) ([]ReaderPenaltyRow, error)
}

type repo struct{}

func New() Repo { return &repo{} }

func (r *repo) Upsert(ctx context.Context, q database.DBTX, rec *model.PenaltyRecord) error {
	const query = `
		INSERT INTO penalty_records
			(id, item_id, kind, status, days_overdue, rate_per_day, price_snapshot, base_amount, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (item_id, kind) DO UPDATE
		SET days_overdue   = EXCLUDED.days_overdue,
			rate_per_day   = EXCLUDED.rate_per_day,
			price_snapshot = EXCLUDED.price_snapshot,
			base_amount    = EXCLUDED.base_amount,
			description    = EXCLUDED.description
		WHERE penalty_records.status = 'Pending'`
	_, err := q.ExecContext(ctx, query,
		rec.ID, rec.ItemID, string(rec.Kind), string(rec.Status),
		rec.DaysOverdue, rec.RatePerDay, rec.PriceSnapshot, rec.BaseAmount,
		rec.Description, rec.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return ErrDuplicate
	}
	return err
}

const penaltyColumns = `id, item_id, kind, status, days_overdue, rate_per_day, price_snapshot, base_amount, description, created_at`

func (r *repo) GetForUpdate(ctx context.Context, q database.DBTX, penaltyID string) (*model.PenaltyRecord, error) {
	const query = `
		SELECT ` + penaltyColumns + `
		FROM penalty_records
		WHERE id = $1
		FOR UPDATE`
	var p model.PenaltyRecord
	err := q.QueryRowContext(ctx, query, penaltyID).Scan(
		&p.ID, &p.ItemID, &p.Kind, &p.Status, &p.DaysOverdue,
		&p.RatePerDay, &p.PriceSnapshot, &p.BaseAmount, &p.Description, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) UpdateStatus(ctx context.Context, q database.DBTX, penaltyID string, status model.PenaltyStatus, note string) error {
	const query = `
		UPDATE penalty_records
		SET status = $2,
			description = description || $3
		WHERE id = $1`
	_, err := q.ExecContext(ctx, query, penaltyID, string(status), note)
	return err
}

func (r *repo) ListByItem(ctx context.Context, q database.DBTX, itemID string) ([]model.PenaltyRecord, error) {
	const query = `
		SELECT ` + penaltyColumns + `
		FROM penalty_records
		WHERE item_id = $1
		ORDER BY created_at`
	rows, err := q.QueryContext(ctx, query, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PenaltyRecord
	for rows.Next() {
		var p model.PenaltyRecord
		if err := rows.Scan(
			&p.ID, &p.ItemID, &p.Kind, &p.Status, &p.DaysOverdue,
			&p.RatePerDay, &p.PriceSnapshot, &p.BaseAmount, &p.Description, &p.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repo) ListByReader(ctx context.Context, q database.DBTX, readerID string, status *model.PenaltyStatus) ([]ReaderPenaltyRow, error) {
	query := `
		SELECT p.id, p.item_id, p.kind, p.status, p.days_overdue,
			p.rate_per_day, p.price_snapshot, p.base_amount, p.description, p.created_at,
			i.due_date, i.returned_at
		FROM penalty_records p
		JOIN loan_items i ON i.id = p.item_id
		JOIN borrow_requests r ON r.id = i.request_id
		WHERE r.reader_id = $1`
	args := []any{readerID}
	if status != nil {
		query += `
		AND p.status = $2`
		args = append(args, string(*status))
	}
	query += `
		ORDER BY p.created_at DESC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReaderPenaltyRow
	for rows.Next() {
		var p ReaderPenaltyRow
		if err := rows.Scan(
			&p.ID, &p.ItemID, &p.Kind, &p.Status, &p.DaysOverdue,
			&p.RatePerDay, &p.PriceSnapshot, &p.BaseAmount, &p.Description, &p.CreatedAt,
			&p.DueDate, &p.ReturnedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
