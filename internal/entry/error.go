package entry

import "errors"

var (
	ErrEntryNotFound = errors.New("entry not found")
	ErrNotRetryable  = errors.New("entry is not in a retryable state")
)
