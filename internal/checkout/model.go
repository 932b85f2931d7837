package checkout

import (
	"encoding/json"
	"strconv"
	"strings"
)

type PaymentStatus string

const (
	StatusAuthorized        PaymentStatus = "authorized"
	StatusCaptured          PaymentStatus = "captured"
	StatusPaid              PaymentStatus = "paid"
	StatusPending           PaymentStatus = "pending"
	StatusPartiallyCaptured PaymentStatus = "partially captured"
	StatusDeferredCapture   PaymentStatus = "deferred capture"
	StatusCardVerified      PaymentStatus = "card verified"
	StatusDeclined          PaymentStatus = "declined"
	StatusCanceled          PaymentStatus = "canceled"
	StatusExpired           PaymentStatus = "expired"
	StatusUnknown           PaymentStatus = ""
)

// ParsePaymentStatus lowercases the provider status once so the rest of the
// code compares constants.
func ParsePaymentStatus(s string) PaymentStatus {
	return PaymentStatus(strings.ToLower(strings.TrimSpace(s)))
}

// IsUserSuccess reports whether the customer should land on the success page.
func (s PaymentStatus) IsUserSuccess() bool {
	switch s {
	case StatusAuthorized, StatusCaptured, StatusPaid, StatusPending,
		StatusPartiallyCaptured, StatusDeferredCapture:
		return true
	}
	return false
}

// Completes reports whether the entry should be marked Paid.
func (s PaymentStatus) Completes() bool {
	switch s {
	case StatusAuthorized, StatusCaptured, StatusPaid, StatusCardVerified:
		return true
	}
	return false
}

func (s PaymentStatus) IsPending() bool {
	return s == StatusPending
}

// Code is a provider response code. The API sends strings but older
// payloads carry plain numbers.
type Code string

func (c *Code) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*c = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*c = Code(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*c = Code(n.String())
	return nil
}

type PaymentRequest struct {
	Token      string
	Amount     int64
	Currency   string
	Reference  string
	Enable3DS  bool
	SuccessURL string
	FailureURL string
}

type PaymentResult struct {
	ID              string
	Approved        bool
	Status          string
	Amount          int64
	Currency        string
	ResponseCode    Code
	ResponseSummary string
	RedirectURL     string
}

// RequiresRedirect means a 3DS challenge is pending in the browser.
func (r *PaymentResult) RequiresRedirect() bool {
	return r != nil && r.RedirectURL != ""
}

type PaymentAction struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	Approved        bool   `json:"approved"`
	ResponseCode    Code   `json:"response_code"`
	ResponseSummary string `json:"response_summary"`
}

// Payment is the provider's payment object as returned by GET /payments/{id}.
type Payment struct {
	ID              string          `json:"id"`
	Status          string          `json:"status"`
	Approved        bool            `json:"approved"`
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency"`
	Reference       string          `json:"reference"`
	RequestedOn     string          `json:"requested_on"`
	ResponseCode    Code            `json:"response_code"`
	ResponseSummary string          `json:"response_summary"`
	Actions         []PaymentAction `json:"actions"`
}

func (p *Payment) PaymentStatus() PaymentStatus {
	return ParsePaymentStatus(p.Status)
}

// Empty reports a payment object that carries nothing usable.
func (p *Payment) Empty() bool {
	return p == nil || (p.ID == "" && p.Status == "")
}

// FirstAction returns actions[0] or nil.
func (p *Payment) FirstAction() *PaymentAction {
	if p == nil || len(p.Actions) == 0 {
		return nil
	}
	return &p.Actions[0]
}

// ReferenceID parses the entry id the payment was created for.
func (p *Payment) ReferenceID() (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(p.Reference), 10, 64)
	return id, err == nil && id > 0
}

type paymentSource struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type threeDS struct {
	Enabled bool `json:"enabled"`
}

type createPaymentBody struct {
	Source              paymentSource `json:"source"`
	Amount              int64         `json:"amount"`
	Currency            string        `json:"currency"`
	Reference           string        `json:"reference"`
	ThreeDS             *threeDS      `json:"3ds,omitempty"`
	SuccessURL          string        `json:"success_url,omitempty"`
	FailureURL          string        `json:"failure_url,omitempty"`
	ProcessingChannelID string        `json:"processing_channel_id,omitempty"`
}

type link struct {
	Href string `json:"href"`
}

type createPaymentResponse struct {
	ID              string `json:"id"`
	Approved        bool   `json:"approved"`
	Status          string `json:"status"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	ResponseCode    Code   `json:"response_code"`
	ResponseSummary string `json:"response_summary"`
	Links           struct {
		Redirect *link `json:"redirect"`
	} `json:"_links"`
}
