package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"checkout-proxy/internal/checkout"
	"checkout-proxy/internal/utils"
)

// Provider event types carried by the Payment Callback.
const (
	EventPaymentApproved        = "payment_approved"
	EventPaymentCaptured        = "payment_captured"
	EventPaymentPending         = "payment_pending"
	EventPaymentDeclined        = "payment_declined"
	EventPaymentCanceled        = "payment_canceled"
	EventPaymentCaptureDeclined = "payment_capture_declined"
)

var ErrInvalidMessage = errors.New("invalid message")

// AmountLookupRequest is sent by the Payment Service before rendering the card frame.
type AmountLookupRequest struct {
	EntryID int64 `json:"entry_id"`
	UserID  int64 `json:"user_id"`
}

func (r AmountLookupRequest) Validate() error {
	if r.EntryID <= 0 {
		return fmt.Errorf("%w: entry_id is required", ErrInvalidMessage)
	}
	return nil
}

// AmountLookupResponse carries the amount in minor units.
type AmountLookupResponse struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (r AmountLookupResponse) Validate() error {
	if r.Amount <= 0 || len(strings.TrimSpace(r.Currency)) != 3 {
		return fmt.Errorf("%w: amount and currency are required", ErrInvalidMessage)
	}
	return nil
}

type VerifyRequest struct {
	EntryID   int64  `json:"entry_id"`
	SessionID string `json:"cko_session_id"`
}

func (r VerifyRequest) Validate() error {
	if strings.TrimSpace(r.SessionID) == "" {
		return fmt.Errorf("%w: cko_session_id is required", ErrInvalidMessage)
	}
	return nil
}

// VerifyResponse holds either the raw provider payment object or a failure marker.
type VerifyResponse struct {
	Payment json.RawMessage `json:"payment,omitempty"`
	Success *bool           `json:"success,omitempty"`
	Data    *VerifyFailure  `json:"data,omitempty"`
}

type VerifyFailure struct {
	Status string `json:"status"`
}

func VerifyFailed() VerifyResponse {
	f := false
	return VerifyResponse{Success: &f, Data: &VerifyFailure{Status: "Failed"}}
}

// DecodePayment returns nil when the response carries no payment object.
func (r VerifyResponse) DecodePayment() (*checkout.Payment, error) {
	if len(r.Payment) == 0 || string(r.Payment) == "null" {
		return nil, nil
	}
	var p checkout.Payment
	if err := json.Unmarshal(r.Payment, &p); err != nil {
		return nil, err
	}
	if p.Empty() {
		return nil, nil
	}
	return &p, nil
}

// CallbackPayload is the provider webhook shape. The Payment Service forwards
// provider webhooks verbatim and builds the same shape for direct charges.
type CallbackPayload struct {
	ID        string       `json:"id,omitempty"`
	Type      string       `json:"type"`
	Data      CallbackData `json:"data"`
	CreatedOn string       `json:"created_on"`
}

type CallbackData struct {
	ID              string        `json:"id"`
	Reference       string        `json:"reference"`
	Amount          int64         `json:"amount"`
	Currency        string        `json:"currency"`
	Approved        bool          `json:"approved"`
	Status          string        `json:"status,omitempty"`
	ResponseCode    checkout.Code `json:"response_code,omitempty"`
	ResponseSummary string        `json:"response_summary,omitempty"`
}

func (p CallbackPayload) Validate() error {
	if p.Type == "" || p.Data.Reference == "" {
		return fmt.Errorf("%w: type and data.reference are required", ErrInvalidMessage)
	}
	return nil
}

func (p CallbackPayload) EntryID() (int64, error) {
	return utils.ParseEntryID(p.Data.Reference)
}

// Ack is the plain acknowledgement body used by the callback and webhook endpoints.
type Ack struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}
