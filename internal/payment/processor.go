package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"checkout-proxy/internal/entry"
	"checkout-proxy/internal/logger"
	"checkout-proxy/internal/metrics"
	"checkout-proxy/internal/notify"
	"checkout-proxy/internal/utils"

	"go.uber.org/zap"
)

// Notifier sends the named notification for an entry.
type Notifier interface {
	Dispatch(ctx context.Context, event string, e *entry.Entry) error
}

// Processor applies payment actions to entries exactly once. Every
// mutation runs in one transaction: the ledger insert, the entry row lock,
// the status update and the audit note.
type Processor struct {
	repo     Repository
	notifier Notifier
	now      func() time.Time

	inflight sync.WaitGroup

	applied     *metrics.Counter
	duplicates  *metrics.Counter
	terminal    *metrics.Counter
	failures    *metrics.Counter
	notifyFails *metrics.Counter
}

func NewProcessor(repo Repository, notifier Notifier, reg *metrics.Registry) *Processor {
	return &Processor{
		repo:        repo,
		notifier:    notifier,
		now:         time.Now,
		applied:     reg.Counter("payment_applied"),
		duplicates:  reg.Counter("payment_skipped_duplicate"),
		terminal:    reg.Counter("payment_skipped_terminal"),
		failures:    reg.Counter("payment_error"),
		notifyFails: reg.Counter("notification_failed"),
	}
}

func (p *Processor) Apply(ctx context.Context, a Action) (Outcome, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "processor"),
		zap.String("action_id", a.ID),
		zap.String("type", string(a.Type)),
		zap.Int64("entry_id", a.EntryID),
	)

	if err := a.Validate(); err != nil {
		p.failures.Inc()
		log.Error("rejected payment action", zap.Error(err))
		return OutcomeError, err
	}

	var updated *entry.Entry
	err := p.repo.WithinTx(ctx, func(tx Tx) error {
		if a.ID != "" {
			recorded, err := tx.RecordCallback(ctx, a.ID, a.EntryID, a.Type)
			if err != nil {
				return err
			}
			if !recorded {
				return &skipError{outcome: OutcomeSkippedDuplicate, reason: "action already processed"}
			}
		}

		e, err := tx.LockEntry(ctx, a.EntryID)
		if err != nil {
			return err
		}
		if a.skips(e.PaymentStatus) {
			return &skipError{
				outcome: OutcomeSkippedTerminal,
				reason:  fmt.Sprintf("entry already %s", e.PaymentStatus),
			}
		}

		u := p.update(a)
		if err := tx.UpdatePayment(ctx, a.EntryID, u); err != nil {
			return err
		}
		noteType, body := p.note(a)
		if err := tx.AddNote(ctx, a.EntryID, noteType, body); err != nil {
			return err
		}

		e.PaymentStatus = u.Status
		if u.TransactionID != "" {
			e.TransactionID = u.TransactionID
		}
		if u.PaymentDate != nil {
			e.PaymentDate = u.PaymentDate
		}
		if u.Amount != nil {
			e.PaymentAmount = *u.Amount
		}
		if u.PaymentMethod != "" {
			e.PaymentMethod = u.PaymentMethod
		}
		updated = e
		return nil
	})

	var skip *skipError
	switch {
	case errors.As(err, &skip):
		if skip.outcome == OutcomeSkippedDuplicate {
			p.duplicates.Inc()
		} else {
			p.terminal.Inc()
		}
		log.Info("payment action skipped", zap.String("outcome", string(skip.outcome)), zap.String("reason", skip.reason))
		return skip.outcome, nil
	case err != nil:
		p.failures.Inc()
		log.Error("payment action failed", zap.Error(err))
		return OutcomeError, err
	}

	p.applied.Inc()
	log.Info("payment action applied", zap.String("status", string(updated.PaymentStatus)))

	if a.Type == ActionCompletePayment {
		p.notifyCompleted(ctx, updated)
	}
	return OutcomeApplied, nil
}

// Wait blocks until notifications started by Apply have finished.
func (p *Processor) Wait() {
	p.inflight.Wait()
}

// notifyCompleted runs after commit so a redirect never waits on mail or
// brokers. Only the call that applied the mutation gets here.
func (p *Processor) notifyCompleted(ctx context.Context, e *entry.Entry) {
	if p.notifier == nil {
		return
	}

	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()

		nctx := context.WithoutCancel(ctx)
		if err := p.notifier.Dispatch(nctx, notify.EventPaymentCompleted, e); err != nil {
			p.notifyFails.Inc()
			logger.FromCtx(nctx).Error("payment completed notification failed",
				zap.Int64("entry_id", e.ID),
				zap.Error(err),
			)
		}
	}()
}

func (p *Processor) update(a Action) PaymentUpdate {
	u := PaymentUpdate{
		Status:        a.targetStatus(),
		TransactionID: a.TransactionID,
		PaymentMethod: a.PaymentMethod,
	}

	if a.Type != ActionFailPayment && a.Amount > 0 {
		amount := a.Amount
		u.Amount = &amount
	}
	if a.Type == ActionCompletePayment {
		paidAt := a.PaymentDate
		if paidAt.IsZero() {
			paidAt = p.now()
		}
		paidAt = paidAt.UTC()
		u.PaymentDate = &paidAt
	}
	return u
}

func (p *Processor) note(a Action) (entry.NoteType, string) {
	switch a.Type {
	case ActionCompletePayment:
		if a.Note != "" {
			return entry.NoteSuccess, a.Note
		}
		return entry.NoteSuccess, fmt.Sprintf("Payment completed. Transaction Id: %s. Amount: %s %s.",
			a.TransactionID, utils.FormatMoney(a.Amount), a.Currency)
	case ActionAddPending:
		if a.Note != "" {
			return entry.NoteNotice, a.Note
		}
		return entry.NoteNotice, fmt.Sprintf("Payment is pending. Transaction Id: %s.", a.TransactionID)
	default:
		if a.Note != "" {
			return entry.NoteError, a.Note
		}
		return entry.NoteError, fmt.Sprintf("Payment failed. Transaction Id: %s.", a.TransactionID)
	}
}
