package merchant

import "errors"

var (
	ErrAlreadyPaid    = errors.New("entry already paid")
	ErrAmountNotFound = errors.New("payment amount not found")
	ErrNotConfigured  = errors.New("payment gateway not configured")
	ErrEntryMismatch  = errors.New("payment reference does not match entry")
)
