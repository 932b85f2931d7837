package payment

import "errors"

var ErrInvalidAction = errors.New("invalid payment action")

// skipError aborts the unit of work without recording the action.
type skipError struct {
	outcome Outcome
	reason  string
}

func (e *skipError) Error() string {
	return string(e.outcome) + ": " + e.reason
}
