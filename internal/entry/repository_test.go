package entry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var entryColumns = []string{
	"id", "form_id", "user_id", "payment_status", "payment_amount", "currency",
	"payment_method", "transaction_id", "payment_date", "email", "first_name", "last_name",
	"created_at", "updated_at",
}

func TestParseStatus(t *testing.T) {
	tests := map[string]Status{
		"Paid":        StatusPaid,
		"paid":        StatusPaid,
		" PENDING ":   StatusPending,
		"Processing":  StatusProcessing,
		"failed":      StatusFailed,
		"":            StatusUnpaid,
		"Refunded":    StatusUnpaid,
		"Unpaid":      StatusUnpaid,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseStatus(in), in)
	}

	assert.True(t, StatusPaid.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())
}

func TestRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows(entryColumns).AddRow(
			int64(501), int64(3), nil, "processing", 25.00, "usd",
			"checkout-com-proxy", "", nil, "jane@example.com", "Jane", "Doe",
			created, created,
		)
		mock.ExpectQuery(`SELECT (.+) FROM entries WHERE id = \$1`).
			WithArgs(int64(501)).
			WillReturnRows(rows)

		e, err := repo.GetByID(context.Background(), 501)
		require.NoError(t, err)
		assert.Equal(t, int64(501), e.ID)
		assert.Equal(t, StatusProcessing, e.PaymentStatus)
		assert.Equal(t, 25.00, e.PaymentAmount)
		assert.Equal(t, "USD", e.Currency)
		assert.Zero(t, e.UserID)
		assert.Nil(t, e.PaymentDate)
	})

	t.Run("Paid with date", func(t *testing.T) {
		paid := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
		rows := sqlmock.NewRows(entryColumns).AddRow(
			int64(502), int64(3), int64(7), "Paid", 10.50, "EUR",
			"checkout-com-proxy", "pay_1", paid, "", "", "",
			created, created,
		)
		mock.ExpectQuery(`SELECT (.+) FROM entries WHERE id = \$1`).
			WithArgs(int64(502)).
			WillReturnRows(rows)

		e, err := repo.GetByID(context.Background(), 502)
		require.NoError(t, err)
		assert.Equal(t, StatusPaid, e.PaymentStatus)
		assert.Equal(t, int64(7), e.UserID)
		require.NotNil(t, e.PaymentDate)
		assert.True(t, paid.Equal(*e.PaymentDate))
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM entries WHERE id = \$1`).
			WithArgs(int64(999)).
			WillReturnRows(sqlmock.NewRows(entryColumns))

		_, err := repo.GetByID(context.Background(), 999)
		assert.ErrorIs(t, err, ErrEntryNotFound)
	})

	t.Run("DBError", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM entries WHERE id = \$1`).
			WithArgs(int64(1)).
			WillReturnError(errors.New("db down"))

		_, err := repo.GetByID(context.Background(), 1)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrEntryNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ResetForRetry(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)

	t.Run("Failed entry reset", func(t *testing.T) {
		mock.ExpectExec(`UPDATE entries`).
			WithArgs(int64(501), "Processing", "Failed").
			WillReturnResult(sqlmock.NewResult(0, 1))

		changed, err := repo.ResetForRetry(context.Background(), 501)
		assert.NoError(t, err)
		assert.True(t, changed)
	})

	t.Run("Not failed", func(t *testing.T) {
		mock.ExpectExec(`UPDATE entries`).
			WithArgs(int64(502), "Processing", "Failed").
			WillReturnResult(sqlmock.NewResult(0, 0))

		changed, err := repo.ResetForRetry(context.Background(), 502)
		assert.NoError(t, err)
		assert.False(t, changed)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Notes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)

	t.Run("AddNote", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO entry_notes`).
			WithArgs(int64(501), "success", "Payment completed").
			WillReturnResult(sqlmock.NewResult(1, 1))

		assert.NoError(t, repo.AddNote(context.Background(), 501, NoteSuccess, "Payment completed"))
	})

	t.Run("AddNote DBError", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO entry_notes`).
			WillReturnError(errors.New("db error"))

		err := repo.AddNote(context.Background(), 501, NoteError, "x")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "entry 501")
	})

	t.Run("ListNotes", func(t *testing.T) {
		at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
		mock.ExpectQuery(`SELECT id, entry_id, note_type, note, created_at`).
			WithArgs(int64(501)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "entry_id", "note_type", "note", "created_at"}).
				AddRow(int64(1), int64(501), "success", "Payment completed", at).
				AddRow(int64(2), int64(501), "notice", "Email sent", at))

		notes, err := repo.ListNotes(context.Background(), 501)
		require.NoError(t, err)
		require.Len(t, notes, 2)
		assert.Equal(t, NoteSuccess, notes[0].Type)
		assert.Equal(t, "Email sent", notes[1].Body)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
