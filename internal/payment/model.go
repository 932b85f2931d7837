package payment

import (
	"fmt"
	"time"

	"checkout-proxy/internal/entry"
)

type ActionType string

const (
	ActionCompletePayment ActionType = "complete_payment"
	ActionAddPending      ActionType = "add_pending_payment"
	ActionFailPayment     ActionType = "fail_payment"
)

func (t ActionType) Valid() bool {
	switch t {
	case ActionCompletePayment, ActionAddPending, ActionFailPayment:
		return true
	}
	return false
}

type Outcome string

const (
	OutcomeApplied          Outcome = "applied"
	OutcomeSkippedDuplicate Outcome = "skipped_duplicate"
	OutcomeSkippedTerminal  Outcome = "skipped_terminal"
	OutcomeError            Outcome = "error"
)

// Succeeded is true for every outcome a caller should acknowledge.
func (o Outcome) Succeeded() bool {
	return o != OutcomeError
}

// Action is a normalised report that something happened to a payment,
// whichever channel reported it.
type Action struct {
	// ID is the idempotency key recorded in the ledger. Empty IDs skip the ledger.
	ID            string
	Type          ActionType
	EntryID       int64
	TransactionID string
	Amount        float64
	Currency      string
	PaymentMethod string
	PaymentDate   time.Time
	Note          string
}

func (a Action) Validate() error {
	if a.EntryID <= 0 {
		return fmt.Errorf("%w: entry_id is required", ErrInvalidAction)
	}
	if !a.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidAction, a.Type)
	}
	return nil
}

// targetStatus is where the entry ends up when the action applies.
func (a Action) targetStatus() entry.Status {
	switch a.Type {
	case ActionCompletePayment:
		return entry.StatusPaid
	case ActionAddPending:
		return entry.StatusPending
	default:
		return entry.StatusFailed
	}
}

// skips reports whether current already absorbs the action. Paid absorbs
// everything.
func (a Action) skips(current entry.Status) bool {
	if current == entry.StatusPaid {
		return true
	}
	switch a.Type {
	case ActionAddPending:
		return current == entry.StatusProcessing || current == entry.StatusPending
	case ActionFailPayment:
		return current == entry.StatusFailed
	}
	return false
}

// PaymentUpdate is the column set written when an action applies.
type PaymentUpdate struct {
	Status        entry.Status
	TransactionID string
	PaymentMethod string
	PaymentDate   *time.Time
	Amount        *float64
}
