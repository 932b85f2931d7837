package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"checkout-proxy/internal/entry"
	"checkout-proxy/internal/logger"
	"checkout-proxy/internal/utils"

	"go.uber.org/zap"
)

// BrevoDispatcher sends every active feed of the entry's form through the
// mailer and leaves an audit note for each outcome.
type BrevoDispatcher struct {
	feeds  FeedStore
	mailer Mailer
	notes  NoteWriter
	delay  time.Duration

	after func(d time.Duration, f func()) *time.Timer

	mu      sync.Mutex
	pending map[*time.Timer]struct{}
}

func NewBrevoDispatcher(feeds FeedStore, mailer Mailer, notes NoteWriter, delay time.Duration) *BrevoDispatcher {
	if delay <= 0 {
		delay = 30 * time.Minute
	}
	return &BrevoDispatcher{
		feeds:   feeds,
		mailer:  mailer,
		notes:   notes,
		delay:   delay,
		after:   time.AfterFunc,
		pending: map[*time.Timer]struct{}{},
	}
}

func (d *BrevoDispatcher) Dispatch(ctx context.Context, event string, e *entry.Entry) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "brevo"),
		zap.Int64("entry_id", e.ID),
	)

	if strings.TrimSpace(e.Email) == "" {
		log.Warn("no email address on entry")
		return ErrMissingRecipient
	}

	feeds, err := d.feeds.ListActive(ctx, e.FormID, event)
	if err != nil {
		return err
	}

	var failed int
	for _, f := range feeds {
		email := d.compose(e, f)

		if f.DelaySend {
			d.schedule(ctx, e.ID, f, email)
			d.note(ctx, e.ID, entry.NoteNotice,
				fmt.Sprintf("Brevo email (Template ID %d) scheduled to be sent after %s.", f.TemplateID, humanDelay(d.delay)))
			continue
		}

		if err := d.mailer.Send(ctx, email); err != nil {
			failed++
			log.Error("brevo send failed", zap.Int64("template_id", f.TemplateID), zap.Error(err))
			d.note(ctx, e.ID, entry.NoteError,
				fmt.Sprintf("Failed to send Brevo email (Template ID %d). Error: %s", f.TemplateID, err))
			continue
		}
		d.note(ctx, e.ID, entry.NoteSuccess,
			fmt.Sprintf("Brevo email (Template ID %d) sent immediately.", f.TemplateID))
	}

	if failed > 0 {
		return fmt.Errorf("brevo: %d of %d feeds failed", failed, len(feeds))
	}
	return nil
}

// Stop cancels mails that have not been sent yet.
func (d *BrevoDispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for t := range d.pending {
		t.Stop()
	}
	if n := len(d.pending); n > 0 {
		logger.L().Warn("dropped delayed mails on shutdown", zap.Int("count", n))
	}
	d.pending = map[*time.Timer]struct{}{}
}

func (d *BrevoDispatcher) schedule(ctx context.Context, entryID int64, f Feed, email Email) {
	sctx := context.WithoutCancel(ctx)
	to := email.To[0].Email

	var t *time.Timer
	d.mu.Lock()
	t = d.after(d.delay, func() {
		d.mu.Lock()
		delete(d.pending, t)
		d.mu.Unlock()

		if err := d.mailer.Send(sctx, email); err != nil {
			logger.FromCtx(sctx).Error("delayed brevo send failed",
				zap.Int64("entry_id", entryID),
				zap.Int64("template_id", f.TemplateID),
				zap.Error(err),
			)
			d.note(sctx, entryID, entry.NoteError, "Failed to send mail on : "+to)
			return
		}
		d.note(sctx, entryID, entry.NoteSuccess, "Delayed mail sended successfully on email: "+to)
	})
	d.pending[t] = struct{}{}
	d.mu.Unlock()
}

func (d *BrevoDispatcher) compose(e *entry.Entry, f Feed) Email {
	orderDate := e.CreatedAt
	if e.PaymentDate != nil {
		orderDate = *e.PaymentDate
	}

	params := map[string]string{
		"FIRST_NAME":     e.FirstName,
		"LAST_NAME":      e.LastName,
		"ORDER_DATE":     orderDate.Format("2006-01-02"),
		"ORDER_TOTAL":    utils.FormatMoney(e.PaymentAmount) + " " + e.Currency,
		"ENTRY_ID":       strconv.FormatInt(e.ID, 10),
		"TRANSACTION_ID": e.TransactionID,
	}

	var attachments []Attachment
	if len(f.AttachmentURLs) > 0 {
		params["DOWNLOAD_LINK"] = f.AttachmentURLs[0]
		if !f.LinkOnly {
			for _, u := range f.AttachmentURLs {
				attachments = append(attachments, Attachment{URL: u, Name: attachmentName(u)})
			}
		}
	}

	return Email{
		TemplateID:  f.TemplateID,
		To:          []Recipient{{Email: e.Email, Name: strings.TrimSpace(e.FirstName + " " + e.LastName)}},
		Params:      params,
		Attachments: attachments,
	}
}

func (d *BrevoDispatcher) note(ctx context.Context, entryID int64, t entry.NoteType, body string) {
	if d.notes == nil {
		return
	}
	if err := d.notes.AddNote(ctx, entryID, t, body); err != nil {
		logger.FromCtx(ctx).Error("failed to add mail note", zap.Int64("entry_id", entryID), zap.Error(err))
	}
}

func attachmentName(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	if i := strings.LastIndex(u, "/"); i >= 0 {
		u = u[i+1:]
	}
	if u == "" {
		return "attachment"
	}
	return u
}

func humanDelay(d time.Duration) string {
	if d%time.Minute == 0 {
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
	return d.String()
}
