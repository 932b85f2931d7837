package checkout

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyPayment = errors.New("provider returned no payment object")
	ErrInvalidInput = errors.New("invalid payment request")
)

// APIError is a non-2xx answer from the provider.
type APIError struct {
	StatusCode int
	RequestID  string   `json:"request_id"`
	ErrorType  string   `json:"error_type"`
	ErrorCodes []string `json:"error_codes"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("checkout api error: status %d", e.StatusCode)
	if e.ErrorType != "" {
		msg += ": " + e.ErrorType
	}
	if len(e.ErrorCodes) > 0 {
		msg += " (" + strings.Join(e.ErrorCodes, ", ") + ")"
	}
	return msg
}

// Summary is a customer-safe description of the rejection.
func (e *APIError) Summary() string {
	if len(e.ErrorCodes) > 0 {
		return strings.ReplaceAll(e.ErrorCodes[0], "_", " ")
	}
	return "Payment was declined."
}
