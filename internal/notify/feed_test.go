package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedStore_ListActive(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewFeedStore(db)
	cols := []string{"id", "form_id", "name", "event", "template_id", "delay_send", "link_only", "attachment_urls"}

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM notification_feeds`).
			WithArgs(int64(3), EventPaymentCompleted).
			WillReturnRows(sqlmock.NewRows(cols).
				AddRow(int64(1), int64(3), "Receipt", EventPaymentCompleted, int64(12), false, false, []byte(`{https://files.example/receipt.pdf}`)).
				AddRow(int64(2), int64(3), "Follow up", EventPaymentCompleted, int64(13), true, true, []byte(`{}`)))

		feeds, err := store.ListActive(context.Background(), 3, EventPaymentCompleted)
		require.NoError(t, err)
		require.Len(t, feeds, 2)
		assert.Equal(t, int64(12), feeds[0].TemplateID)
		assert.Equal(t, []string{"https://files.example/receipt.pdf"}, feeds[0].AttachmentURLs)
		assert.True(t, feeds[1].DelaySend)
		assert.True(t, feeds[1].LinkOnly)
		assert.Empty(t, feeds[1].AttachmentURLs)
	})

	t.Run("DBError", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM notification_feeds`).
			WillReturnError(errors.New("db down"))

		_, err := store.ListActive(context.Background(), 3, EventPaymentCompleted)
		assert.Error(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
