package paygate

import "errors"

var (
	ErrNotConfigured       = errors.New("payment service not configured")
	Err3DSNotConfigured    = errors.New("3DS is enabled but the Site A Payment Page URL is not configured")
	ErrAlreadyPaid         = errors.New("entry already paid")
	ErrLookupFailed        = errors.New("could not validate payment session")
	ErrMissingCardToken    = errors.New("card token is required")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrMissingReference    = errors.New("missing reference (entry_id)")
)
