package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"checkout-proxy/internal/config"
	"checkout-proxy/internal/entry"
	"checkout-proxy/internal/logger"

	"go.uber.org/zap"
)

// EventPaymentCompleted fires once per entry, after the mutation that
// marked it Paid has committed.
const EventPaymentCompleted = "payment_completed_custom"

var (
	ErrUnknownDriver    = errors.New("unknown notify driver")
	ErrMailerNotReady   = errors.New("brevo api key is not configured")
	ErrMissingRecipient = errors.New("entry has no email address")
)

type Dispatcher interface {
	Dispatch(ctx context.Context, event string, e *entry.Entry) error
}

// NoteWriter appends audit notes to an entry.
type NoteWriter interface {
	AddNote(ctx context.Context, entryID int64, noteType entry.NoteType, body string) error
}

// LogDispatcher only records that the event happened.
type LogDispatcher struct{}

func (LogDispatcher) Dispatch(ctx context.Context, event string, e *entry.Entry) error {
	logger.FromCtx(ctx).Info("notification",
		zap.String("event", event),
		zap.Int64("entry_id", e.ID),
		zap.Int64("form_id", e.FormID),
		zap.String("transaction_id", e.TransactionID),
	)
	return nil
}

// Multi fans an event out to every dispatcher and joins their errors.
type Multi []Dispatcher

func (m Multi) Dispatch(ctx context.Context, event string, e *entry.Entry) error {
	var errs []error
	for _, d := range m {
		if err := d.Dispatch(ctx, event, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Closer releases driver resources (pending timers, producers).
type Closer func() error

// New builds the dispatcher named by cfg.Driver. Drivers may be combined
// with commas, e.g. "brevo,kafka".
func New(cfg config.NotifyConfig, db *sql.DB, notes NoteWriter) (Dispatcher, Closer, error) {
	var (
		out     Multi
		closers []Closer
	)

	for _, name := range splitDrivers(cfg.Driver) {
		switch name {
		case "log":
			out = append(out, LogDispatcher{})
		case "brevo":
			if cfg.BrevoAPIKey == "" {
				return nil, nil, ErrMailerNotReady
			}
			b := NewBrevoDispatcher(NewFeedStore(db), NewBrevoMailer(cfg.BrevoAPIKey), notes, cfg.BrevoDelay)
			out = append(out, b)
			closers = append(closers, func() error { b.Stop(); return nil })
		case "kafka":
			producer, err := NewKafkaProducer(cfg.KafkaBrokers)
			if err != nil {
				return nil, nil, fmt.Errorf("kafka producer: %w", err)
			}
			out = append(out, NewKafkaPublisher(producer, cfg.KafkaTopic))
			closers = append(closers, producer.Close)
		default:
			return nil, nil, fmt.Errorf("%w: %q", ErrUnknownDriver, name)
		}
	}

	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			if err := c(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	if len(out) == 1 {
		return out[0], closeAll, nil
	}
	return out, closeAll, nil
}

func splitDrivers(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = []string{"log"}
	}
	return out
}
