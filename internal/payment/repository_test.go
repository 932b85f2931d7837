package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"checkout-proxy/internal/entry"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var entryColumns = []string{
	"id", "form_id", "user_id", "payment_status", "payment_amount", "currency",
	"payment_method", "transaction_id", "payment_date", "email", "first_name", "last_name",
	"created_at", "updated_at",
}

func entryRow(id int64, status string) *sqlmock.Rows {
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(entryColumns).AddRow(
		id, int64(3), nil, status, 25.00, "USD",
		"", "", nil, "jane@example.com", "Jane", "Doe", created, created,
	)
}

func TestRepository_WithinTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)

	t.Run("Commit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO entry_notes`).
			WithArgs(int64(501), "notice", "hello").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err := repo.WithinTx(context.Background(), func(tx Tx) error {
			return tx.AddNote(context.Background(), 501, entry.NoteNotice, "hello")
		})
		assert.NoError(t, err)
	})

	t.Run("Rollback on error", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err := repo.WithinTx(context.Background(), func(tx Tx) error { return boom })
		assert.ErrorIs(t, err, boom)
	})

	t.Run("Begin fails", func(t *testing.T) {
		mock.ExpectBegin().WillReturnError(errors.New("no conn"))

		err := repo.WithinTx(context.Background(), func(tx Tx) error { return nil })
		assert.Error(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_RecordCallback(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()

	t.Run("Inserted", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO processed_callbacks`).
			WithArgs("evt_1", int64(501), "complete_payment").
			WillReturnRows(sqlmock.NewRows([]string{"action_id"}).AddRow("evt_1"))
		mock.ExpectCommit()

		var recorded bool
		err := repo.WithinTx(ctx, func(tx Tx) error {
			var err error
			recorded, err = tx.RecordCallback(ctx, "evt_1", 501, ActionCompletePayment)
			return err
		})
		require.NoError(t, err)
		assert.True(t, recorded)
	})

	t.Run("Duplicate", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO processed_callbacks`).
			WithArgs("evt_1", int64(501), "complete_payment").
			WillReturnRows(sqlmock.NewRows([]string{"action_id"}))
		mock.ExpectCommit()

		var recorded bool
		err := repo.WithinTx(ctx, func(tx Tx) error {
			var err error
			recorded, err = tx.RecordCallback(ctx, "evt_1", 501, ActionCompletePayment)
			return err
		})
		require.NoError(t, err)
		assert.False(t, recorded)
	})

	t.Run("DBError", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO processed_callbacks`).
			WillReturnError(errors.New("db error"))
		mock.ExpectRollback()

		err := repo.WithinTx(ctx, func(tx Tx) error {
			_, err := tx.RecordCallback(ctx, "evt_2", 501, ActionFailPayment)
			return err
		})
		assert.Error(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_LockAndUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()

	t.Run("Lock and update", func(t *testing.T) {
		paidAt := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		amount := 25.0

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT (.+) FROM entries WHERE id = \$1 FOR UPDATE`).
			WithArgs(int64(501)).
			WillReturnRows(entryRow(501, "Processing"))
		mock.ExpectExec(`UPDATE entries`).
			WithArgs(int64(501), "Paid", "pay_123", "checkout-com-proxy", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.WithinTx(ctx, func(tx Tx) error {
			e, err := tx.LockEntry(ctx, 501)
			if err != nil {
				return err
			}
			assert.Equal(t, entry.StatusProcessing, e.PaymentStatus)
			return tx.UpdatePayment(ctx, 501, PaymentUpdate{
				Status:        entry.StatusPaid,
				TransactionID: "pay_123",
				PaymentMethod: "checkout-com-proxy",
				PaymentDate:   &paidAt,
				Amount:        &amount,
			})
		})
		assert.NoError(t, err)
	})

	t.Run("Missing entry", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT (.+) FROM entries WHERE id = \$1 FOR UPDATE`).
			WithArgs(int64(999)).
			WillReturnRows(sqlmock.NewRows(entryColumns))
		mock.ExpectRollback()

		err := repo.WithinTx(ctx, func(tx Tx) error {
			_, err := tx.LockEntry(ctx, 999)
			return err
		})
		assert.ErrorIs(t, err, entry.ErrEntryNotFound)
	})

	t.Run("Update hits no row", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE entries`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.WithinTx(ctx, func(tx Tx) error {
			return tx.UpdatePayment(ctx, 777, PaymentUpdate{Status: entry.StatusFailed})
		})
		assert.ErrorIs(t, err, entry.ErrEntryNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
