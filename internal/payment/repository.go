package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkout-proxy/internal/entry"
)

// Repository is the Processed-Callback Ledger plus the entry writes that
// must commit together with it.
type Repository interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is one unit of work. Returning an error from the WithinTx callback
// rolls every step back, including the ledger insert.
type Tx interface {
	// RecordCallback inserts the action id. It reports false when the id
	// was already recorded.
	RecordCallback(ctx context.Context, actionID string, entryID int64, actionType ActionType) (bool, error)
	LockEntry(ctx context.Context, entryID int64) (*entry.Entry, error)
	UpdatePayment(ctx context.Context, entryID int64, u PaymentUpdate) error
	AddNote(ctx context.Context, entryID int64, noteType entry.NoteType, body string) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&tx{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type tx struct {
	tx *sql.Tx
}

func (t *tx) RecordCallback(
	ctx context.Context,
	actionID string,
	entryID int64,
	actionType ActionType,
) (bool, error) {

	const q = `
	INSERT INTO processed_callbacks (
		action_id,
		entry_id,
		action_type
	)
	VALUES ($1, $2, $3)
	ON CONFLICT (action_id)
	DO NOTHING
	RETURNING action_id;
	`

	var recorded string
	err := t.tx.QueryRowContext(ctx, q, actionID, entryID, string(actionType)).Scan(&recorded)
	if err != nil {
		// Duplicate callback → idempotent success
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("record callback %s: %w", actionID, err)
	}

	return true, nil
}

func (t *tx) LockEntry(ctx context.Context, entryID int64) (*entry.Entry, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+entry.Columns+` FROM entries WHERE id = $1 FOR UPDATE`,
		entryID,
	)

	e, err := entry.Scan(row)
	if err != nil {
		if errors.Is(err, entry.ErrEntryNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("lock entry %d: %w", entryID, err)
	}
	return e, nil
}

func (t *tx) UpdatePayment(ctx context.Context, entryID int64, u PaymentUpdate) error {
	const q = `
	UPDATE entries
	SET payment_status = $2,
		transaction_id = CASE WHEN $3 = '' THEN transaction_id ELSE $3 END,
		payment_method = CASE WHEN $4 = '' THEN payment_method ELSE $4 END,
		payment_date   = COALESCE($5, payment_date),
		payment_amount = COALESCE($6, payment_amount),
		updated_at     = now()
	WHERE id = $1;
	`

	var (
		paidAt sql.NullTime
		amount sql.NullFloat64
	)
	if u.PaymentDate != nil {
		paidAt = sql.NullTime{Time: *u.PaymentDate, Valid: true}
	}
	if u.Amount != nil {
		amount = sql.NullFloat64{Float64: *u.Amount, Valid: true}
	}

	res, err := t.tx.ExecContext(ctx, q,
		entryID,
		string(u.Status),
		u.TransactionID,
		u.PaymentMethod,
		paidAt,
		amount,
	)
	if err != nil {
		return fmt.Errorf("update entry %d: %w", entryID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return entry.ErrEntryNotFound
	}
	return nil
}

func (t *tx) AddNote(ctx context.Context, entryID int64, noteType entry.NoteType, body string) error {
	return entry.InsertNote(ctx, t.tx, entryID, noteType, body)
}
