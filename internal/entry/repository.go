package entry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Columns is the column list matching Scan.
const Columns = `id, form_id, user_id, payment_status, payment_amount, currency,
	payment_method, transaction_id, payment_date, email, first_name, last_name,
	created_at, updated_at`

type Repository interface {
	GetByID(ctx context.Context, id int64) (*Entry, error)
	// ResetForRetry moves a Failed entry back to Processing so the customer
	// can pay again. It reports whether the row changed.
	ResetForRetry(ctx context.Context, id int64) (bool, error)
	AddNote(ctx context.Context, entryID int64, noteType NoteType, body string) error
	ListNotes(ctx context.Context, entryID int64) ([]Note, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// Scan reads one row selected with Columns.
func Scan(row rowScanner) (*Entry, error) {
	var (
		e      Entry
		status string
		userID sql.NullInt64
		paidAt sql.NullTime
	)
	err := row.Scan(
		&e.ID, &e.FormID, &userID, &status, &e.PaymentAmount, &e.Currency,
		&e.PaymentMethod, &e.TransactionID, &paidAt, &e.Email, &e.FirstName, &e.LastName,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}

	e.PaymentStatus = ParseStatus(status)
	e.Currency = strings.ToUpper(strings.TrimSpace(e.Currency))
	if userID.Valid {
		e.UserID = userID.Int64
	}
	if paidAt.Valid {
		t := paidAt.Time
		e.PaymentDate = &t
	}
	return &e, nil
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Entry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+Columns+` FROM entries WHERE id = $1`, id)

	e, err := Scan(row)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get entry %d: %w", id, err)
	}
	return e, nil
}

func (r *repository) ResetForRetry(ctx context.Context, id int64) (bool, error) {
	const q = `
	UPDATE entries
	SET payment_status = $2, updated_at = now()
	WHERE id = $1 AND payment_status = $3;
	`

	res, err := r.db.ExecContext(ctx, q, id, string(StatusProcessing), string(StatusFailed))
	if err != nil {
		return false, fmt.Errorf("reset entry %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *repository) AddNote(ctx context.Context, entryID int64, noteType NoteType, body string) error {
	return InsertNote(ctx, r.db, entryID, noteType, body)
}

func (r *repository) ListNotes(ctx context.Context, entryID int64) ([]Note, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, entry_id, note_type, note, created_at
		FROM entry_notes WHERE entry_id = $1
		ORDER BY id
	`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var n Note
		var t string
		if err := rows.Scan(&n.ID, &n.EntryID, &t, &n.Body, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Type = NoteType(t)
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// Execer is satisfied by both *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// InsertNote appends an audit note using db or an open transaction.
func InsertNote(ctx context.Context, db Execer, entryID int64, noteType NoteType, body string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO entry_notes (entry_id, note_type, note)
		VALUES ($1, $2, $3)
	`, entryID, string(noteType), body)
	if err != nil {
		return fmt.Errorf("add note to entry %d: %w", entryID, err)
	}
	return nil
}
