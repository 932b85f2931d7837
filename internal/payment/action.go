package payment

import (
	"fmt"
	"strings"
	"time"

	"checkout-proxy/internal/checkout"
	"checkout-proxy/internal/proxy"
	"checkout-proxy/internal/utils"
)

// ActionBuilder normalises provider payment objects and callbacks into Actions.
type ActionBuilder struct {
	PaymentMethod string
	Now           func() time.Time
}

func (b ActionBuilder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

// FromProviderPayment builds the action for a payment fetched after a 3DS
// return. The id is stable per payment and status so a reloaded return page
// is absorbed by the ledger.
func (b ActionBuilder) FromProviderPayment(entryID int64, p *checkout.Payment) Action {
	status := p.PaymentStatus()
	a := Action{
		ID:            fmt.Sprintf("%s_3ds_%s", p.ID, strings.ReplaceAll(string(status), " ", "_")),
		EntryID:       entryID,
		TransactionID: p.ID,
		Amount:        utils.FromMinorUnits(p.Amount),
		Currency:      p.Currency,
		PaymentMethod: b.PaymentMethod,
	}

	switch {
	case status.Completes():
		a.Type = ActionCompletePayment
		a.PaymentDate = parseTime(p.RequestedOn, b.now())
		a.Note = fmt.Sprintf("Payment completed via 3DS Verification. Amount: %s %s.",
			utils.FormatMoney(a.Amount), a.Currency)
	case status.IsPending():
		a.Type = ActionAddPending
		a.Note = "Payment is pending after 3DS Verification."
	default:
		a.Type = ActionFailPayment
		reason := FailureReason(p)
		if reason == "" {
			reason = "Unknown"
		}
		a.Note = fmt.Sprintf("Payment failed after 3DS Verification. Status: %s. Transaction Id: %s Reason: %s",
			statusLabel(status), p.ID, reason)
	}
	return a
}

// VerificationUnavailable is the fail action used when the Payment Service
// returned no payment object.
func (b ActionBuilder) VerificationUnavailable(entryID int64) Action {
	return Action{
		Type:          ActionFailPayment,
		EntryID:       entryID,
		PaymentMethod: b.PaymentMethod,
		Note:          "3DS Verification failed. Could not retrieve valid payment details from Site B.",
	}
}

// FromCallback maps a provider event to an action. ok is false for event
// types that do not touch the entry.
func (b ActionBuilder) FromCallback(entryID int64, cb proxy.CallbackPayload) (Action, bool) {
	createdAt := parseTime(cb.CreatedOn, b.now())

	id := cb.ID
	if id == "" {
		id = fmt.Sprintf("%s_%d_%d", cb.Data.ID, entryID, createdAt.Unix())
	}

	a := Action{
		ID:            id,
		EntryID:       entryID,
		TransactionID: cb.Data.ID,
		Amount:        utils.FromMinorUnits(cb.Data.Amount),
		Currency:      cb.Data.Currency,
		PaymentMethod: b.PaymentMethod,
	}

	switch cb.Type {
	case proxy.EventPaymentApproved, proxy.EventPaymentCaptured:
		a.Type = ActionCompletePayment
		a.PaymentDate = createdAt
		a.Note = fmt.Sprintf("Payment completed via Webhook of : %s. Amount: %s %s.",
			cb.Type, utils.FormatMoney(a.Amount), a.Currency)
	case proxy.EventPaymentPending:
		a.Type = ActionAddPending
		a.Note = fmt.Sprintf("Payment is pending via Webhook of : %s.", cb.Type)
	case proxy.EventPaymentDeclined, proxy.EventPaymentCanceled, proxy.EventPaymentCaptureDeclined:
		a.Type = ActionFailPayment
		reason := DeclineMessage(string(cb.Data.ResponseCode), cb.Data.ResponseSummary)
		if reason == "" {
			reason = "Unknown"
		}
		a.Note = fmt.Sprintf("Payment failed via Webhook of : %s. Transaction Id: %s Reason: %s",
			cb.Type, cb.Data.ID, reason)
	default:
		return Action{}, false
	}
	return a, true
}

// FailureReason reads actions[0] of a provider payment and maps its code.
func FailureReason(p *checkout.Payment) string {
	if p == nil {
		return ""
	}
	if first := p.FirstAction(); first != nil && (first.ResponseCode != "" || first.ResponseSummary != "") {
		return DeclineMessage(string(first.ResponseCode), first.ResponseSummary)
	}
	return DeclineMessage(string(p.ResponseCode), p.ResponseSummary)
}

func statusLabel(s checkout.PaymentStatus) string {
	if s == checkout.StatusUnknown {
		return "failed"
	}
	return string(s)
}

func parseTime(s string, fallback time.Time) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return fallback
}
