package entry

import (
	"strings"
	"time"
)

type Status string

const (
	StatusUnpaid     Status = "Unpaid"
	StatusProcessing Status = "Processing"
	StatusPending    Status = "Pending"
	StatusPaid       Status = "Paid"
	StatusFailed     Status = "Failed"
)

// ParseStatus normalises a stored or received status. Anything unknown,
// including the empty string, is treated as Unpaid.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "processing":
		return StatusProcessing
	case "pending":
		return StatusPending
	case "paid":
		return StatusPaid
	case "failed":
		return StatusFailed
	default:
		return StatusUnpaid
	}
}

func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusFailed
}

func (s Status) String() string {
	return string(s)
}

type NoteType string

const (
	NoteSuccess NoteType = "success"
	NoteError   NoteType = "error"
	NoteNotice  NoteType = "notice"
)

// Entry is the merchant's record of a submitted order.
type Entry struct {
	ID            int64
	FormID        int64
	UserID        int64
	PaymentStatus Status
	PaymentAmount float64
	Currency      string
	PaymentMethod string
	TransactionID string
	PaymentDate   *time.Time
	Email         string
	FirstName     string
	LastName      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Note struct {
	ID        int64
	EntryID   int64
	Type      NoteType
	Body      string
	CreatedAt time.Time
}
