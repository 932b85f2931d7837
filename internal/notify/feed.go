package notify

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// Feed is one active mail template configured for a form.
type Feed struct {
	ID         int64
	FormID     int64
	Name       string
	Event      string
	TemplateID int64
	DelaySend  bool
	// LinkOnly sends the first attachment url as DOWNLOAD_LINK instead of
	// attaching the files.
	LinkOnly       bool
	AttachmentURLs []string
}

type FeedStore interface {
	ListActive(ctx context.Context, formID int64, event string) ([]Feed, error)
}

type feedStore struct {
	db *sql.DB
}

func NewFeedStore(db *sql.DB) FeedStore {
	return &feedStore{db: db}
}

func (s *feedStore) ListActive(ctx context.Context, formID int64, event string) ([]Feed, error) {
	const q = `
	SELECT id, form_id, name, event, template_id, delay_send, link_only, attachment_urls
	FROM notification_feeds
	WHERE form_id = $1
	  AND event = $2
	  AND is_active = true
	ORDER BY id;
	`

	rows, err := s.db.QueryContext(ctx, q, formID, event)
	if err != nil {
		return nil, fmt.Errorf("list feeds for form %d: %w", formID, err)
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		var f Feed
		if err := rows.Scan(
			&f.ID,
			&f.FormID,
			&f.Name,
			&f.Event,
			&f.TemplateID,
			&f.DelaySend,
			&f.LinkOnly,
			pq.Array(&f.AttachmentURLs),
		); err != nil {
			return nil, err
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}
