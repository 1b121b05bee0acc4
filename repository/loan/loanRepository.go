package loanrepo

import (
	"context"
	"time"

	"github.com/vgnam/Library-Management-System/model"
	"github.com/vgnam/Library-Management-System/util/database"
)

// ItemDetail is a loan item joined with its owning reader and title price.
type ItemDetail struct {
	model.LoanItem
	ReaderID string  `json:"reader_id"`
	Price    float64 `json:"price"`
}

type HistoryRow struct {
	ItemID     string     `json:"item_id"`
	RequestID  string     `json:"request_id"`
	CopyID     string     `json:"copy_id"`
	TitleName  string     `json:"title_name"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	DueDate    *time.Time `json:"due_date,omitempty"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
}

type Repo interface {
	InsertRequest(ctx context.Context, q database.DBTX, r *model.BorrowRequest) error
	InsertItem(ctx context.Context, q database.DBTX, it *model.LoanItem) error

	RequestByIDForUpdate(ctx context.Context, q database.DBTX, requestID string) (*model.BorrowRequest, error)
	UpdateRequestStatus(ctx context.Context, q database.DBTX, requestID string, status model.RequestStatus, librarianID *string) error
	DeleteRequest(ctx context.Context, q database.DBTX, requestID string) error

	ItemByIDForUpdate(ctx context.Context, q database.DBTX, itemID string) (*ItemDetail, error)
	ItemsByRequestForUpdate(ctx context.Context, q database.DBTX, requestID string) ([]model.LoanItem, error)
	UpdateItemStatus(ctx context.Context, q database.DBTX, itemID string, status model.ItemStatus) error

	// MarkItemInfraction flags the item as having cost its one infraction.
	MarkItemInfraction(ctx context.Context, q database.DBTX, itemID string) error

	SetItemDue(ctx context.Context, q database.DBTX, itemID string, due time.Time) error
	SetItemReturned(ctx context.Context, q database.DBTX, itemID string, status model.ItemStatus, at time.Time) error
	DeleteItem(ctx context.Context, q database.DBTX, itemID string) error

	// OtherOpenItemOnCopy reports whether any other non-terminal item holds
	// the copy; approval re-checks this instead of trusting submission state.
	OtherOpenItemOnCopy(ctx context.Context, q database.DBTX, copyID, itemID string) (bool, error)

	OpenItemsByReader(ctx context.Context, q database.DBTX, readerID string) ([]model.LoanItem, error)
	CountOpenItemsByReader(ctx context.Context, q database.DBTX, readerID string) (int, error)

	// OpenItemsDueBeforeForUpdate locks and returns every non-terminal item
	// whose due date has passed (the sweep working set).
	OpenItemsDueBeforeForUpdate(ctx context.Context, q database.DBTX, cutoff time.Time) ([]ItemDetail, error)

	// OverdueItems is the read-only variant, optionally scoped to one reader.
	OverdueItems(ctx context.Context, q database.DBTX, readerID *string, cutoff time.Time) ([]ItemDetail, error)

	History(ctx context.Context, q database.DBTX, readerID string) ([]HistoryRow, error)
}

type repo struct{}

func New() Repo { return &repo{} }

func (r *repo) InsertRequest(ctx context.Context, q database.DBTX, br *model.BorrowRequest) error {
	const query = `
		INSERT INTO borrow_requests (id, reader_id, librarian_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := q.ExecContext(ctx, query, br.ID, br.ReaderID, br.LibrarianID, string(br.Status), br.CreatedAt)
	return err
}

func (r *repo) InsertItem(ctx context.Context, q database.DBTX, it *model.LoanItem) error {
	const query = `
		INSERT INTO loan_items (id, request_id, copy_id, status, due_date, infraction_charged, returned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := q.ExecContext(ctx, query, it.ID, it.RequestID, it.CopyID, string(it.Status), it.DueDate, it.InfractionCharged, it.ReturnedAt)
	return err
}

func (r *repo) RequestByIDForUpdate(ctx context.Context, q database.DBTX, requestID string) (*model.BorrowRequest, error) {
	const query = `
		SELECT id, reader_id, librarian_id, status, created_at
		FROM borrow_requests
		WHERE id = $1
		FOR UPDATE`
	var br model.BorrowRequest
	err := q.QueryRowContext(ctx, query, requestID).Scan(&br.ID, &br.ReaderID, &br.LibrarianID, &br.Status, &br.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &br, nil
}

func (r *repo) UpdateRequestStatus(ctx context.Context, q database.DBTX, requestID string, status model.RequestStatus, librarianID *string) error {
	const query = `
		UPDATE borrow_requests
		SET status = $2,
			librarian_id = COALESCE($3, librarian_id)
		WHERE id = $1`
	_, err := q.ExecContext(ctx, query, requestID, string(status), librarianID)
	return err
}

func (r *repo) DeleteRequest(ctx context.Context, q database.DBTX, requestID string) error {
	const query = `DELETE FROM borrow_requests WHERE id = $1`
	_, err := q.ExecContext(ctx, query, requestID)
	return err
}

const itemDetailQuery = `
	SELECT i.id, i.request_id, i.copy_id, i.status, i.due_date, i.infraction_charged, i.returned_at,
		r.reader_id, t.price
	FROM loan_items i
	JOIN borrow_requests r ON r.id = i.request_id
	JOIN book_copies c ON c.id = i.copy_id
	JOIN book_titles t ON t.id = c.title_id`

func (r *repo) ItemByIDForUpdate(ctx context.Context, q database.DBTX, itemID string) (*ItemDetail, error) {
	const query = itemDetailQuery + `
	WHERE i.id = $1
	FOR UPDATE OF i`
	var d ItemDetail
	err := q.QueryRowContext(ctx, query, itemID).Scan(
		&d.ID, &d.RequestID, &d.CopyID, &d.Status, &d.DueDate, &d.InfractionCharged, &d.ReturnedAt,
		&d.ReaderID, &d.Price,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repo) ItemsByRequestForUpdate(ctx context.Context, q database.DBTX, requestID string) ([]model.LoanItem, error) {
	const query = `
		SELECT id, request_id, copy_id, status, due_date, infraction_charged, returned_at
		FROM loan_items
		WHERE request_id = $1
		ORDER BY id
		FOR UPDATE`
	rows, err := q.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

func (r *repo) UpdateItemStatus(ctx context.Context, q database.DBTX, itemID string, status model.ItemStatus) error {
	const query = `
		UPDATE loan_items
		SET status = $2
		WHERE id = $1`
	_, err := q.ExecContext(ctx, query, itemID, string(status))
	return err
}

func (r *repo) MarkItemInfraction(ctx context.Context, q database.DBTX, itemID string) error {
	const query = `
		UPDATE loan_items
		SET infraction_charged = TRUE
		WHERE id = $1`
	_, err := q.ExecContext(ctx, query, itemID)
	return err
}

func (r *repo) SetItemDue(ctx context.Context, q database.DBTX, itemID string, due time.Time) error {
	const query = `
		UPDATE loan_items
		SET due_date = $2
		WHERE id = $1`
	_, err := q.ExecContext(ctx, query, itemID, due)
	return err
}

func (r *repo) SetItemReturned(ctx context.Context, q database.DBTX, itemID string, status model.ItemStatus, at time.Time) error {
	const query = `
		UPDATE loan_items
		SET status = $2,
			returned_at = $3
		WHERE id = $1`
	_, err := q.ExecContext(ctx, query, itemID, string(status), at)
	return err
}

func (r *repo) DeleteItem(ctx context.Context, q database.DBTX, itemID string) error {
	const query = `DELETE FROM loan_items WHERE id = $1`
	_, err := q.ExecContext(ctx, query, itemID)
	return err
}

func (r *repo) OtherOpenItemOnCopy(ctx context.Context, q database.DBTX, copyID, itemID string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1
			FROM loan_items
			WHERE copy_id = $1
			AND id <> $2
			AND status NOT IN ('Returned', 'Rejected', 'Lost')
		)`
	var exists bool
	err := q.QueryRowContext(ctx, query, copyID, itemID).Scan(&exists)
	return exists, err
}

func (r *repo) OpenItemsByReader(ctx context.Context, q database.DBTX, readerID string) ([]model.LoanItem, error) {
	const query = `
		SELECT i.id, i.request_id, i.copy_id, i.status, i.due_date, i.infraction_charged, i.returned_at
		FROM loan_items i
		JOIN borrow_requests r ON r.id = i.request_id
		WHERE r.reader_id = $1
		AND i.status NOT IN ('Returned', 'Rejected', 'Lost')
		ORDER BY i.id`
	rows, err := q.QueryContext(ctx, query, readerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

func (r *repo) CountOpenItemsByReader(ctx context.Context, q database.DBTX, readerID string) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM loan_items i
		JOIN borrow_requests r ON r.id = i.request_id
		WHERE r.reader_id = $1
		AND i.status NOT IN ('Returned', 'Rejected', 'Lost')`
	var n int
	err := q.QueryRowContext(ctx, query, readerID).Scan(&n)
	return n, err
}

func (r *repo) OpenItemsDueBeforeForUpdate(ctx context.Context, q database.DBTX, cutoff time.Time) ([]ItemDetail, error) {
	const query = itemDetailQuery + `
	WHERE i.status NOT IN ('Returned', 'Rejected', 'Lost')
	AND i.due_date IS NOT NULL
	AND i.due_date < $1
	ORDER BY r.reader_id, i.id
	FOR UPDATE OF i`
	rows, err := q.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDetails(rows)
}

func (r *repo) OverdueItems(ctx context.Context, q database.DBTX, readerID *string, cutoff time.Time) ([]ItemDetail, error) {
	query := itemDetailQuery + `
	WHERE i.status NOT IN ('Returned', 'Rejected', 'Lost')
	AND i.due_date IS NOT NULL
	AND i.due_date < $1`
	args := []any{cutoff}
	if readerID != nil {
		query += `
	AND r.reader_id = $2`
		args = append(args, *readerID)
	}
	query += `
	ORDER BY i.due_date`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDetails(rows)
}

func (r *repo) History(ctx context.Context, q database.DBTX, readerID string) ([]HistoryRow, error) {
	const query = `
		SELECT
			i.id          AS item_id,
			i.request_id  AS request_id,
			i.copy_id     AS copy_id,
			t.name        AS title_name,
			i.status      AS status,
			r.created_at  AS created_at,
			i.due_date    AS due_date,
			i.returned_at AS returned_at
		FROM loan_items i
		JOIN borrow_requests r ON r.id = i.request_id
		JOIN book_copies c ON c.id = i.copy_id
		JOIN book_titles t ON t.id = c.title_id
		WHERE r.reader_id = $1
		ORDER BY r.created_at DESC, i.id DESC`
	rows, err := q.QueryContext(ctx, query, readerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryRow
	for rows.Next() {
		var h HistoryRow
		if err := rows.Scan(
			&h.ItemID, &h.RequestID, &h.CopyID, &h.TitleName,
			&h.Status, &h.CreatedAt, &h.DueDate, &h.ReturnedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

type sqlRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanItems(rows sqlRows) ([]model.LoanItem, error) {
	var out []model.LoanItem
	for rows.Next() {
		var it model.LoanItem
		if err := rows.Scan(&it.ID, &it.RequestID, &it.CopyID, &it.Status, &it.DueDate, &it.InfractionCharged, &it.ReturnedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func scanDetails(rows sqlRows) ([]ItemDetail, error) {
	var out []ItemDetail
	for rows.Next() {
		var d ItemDetail
		if err := rows.Scan(
			&d.ID, &d.RequestID, &d.CopyID, &d.Status, &d.DueDate, &d.InfractionCharged, &d.ReturnedAt,
			&d.ReaderID, &d.Price,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
