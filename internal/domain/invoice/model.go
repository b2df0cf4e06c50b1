package invoice

import "time"

// Status is the lifecycle state of an invoice.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusPaid, StatusCancelled:
		return true
	}
	return false
}

// ValidTransition reports whether an invoice may move from one status to
// another: draft -> sent -> paid, and draft or sent -> cancelled.
func ValidTransition(from, to Status) bool {
	switch from {
	case StatusDraft:
		return to == StatusSent || to == StatusCancelled
	case StatusSent:
		return to == StatusPaid || to == StatusCancelled
	}
	return false
}

// Invoice bills the open balance of one account. The amount is derived from
// the attached entries rather than stored.
type Invoice struct {
	ID               string     `json:"id"`
	Number           string     `json:"number"`
	AccountReference string     `json:"account_reference"`
	Status           Status     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	SentAt           *time.Time `json:"sent_at,omitempty"`
	Notes            string     `json:"notes,omitempty"`
}

// Overdue reports whether the invoice is past due and still open.
func (i Invoice) Overdue(now time.Time) bool {
	return i.DueDate != nil &&
		i.Status != StatusPaid &&
		i.Status != StatusCancelled &&
		now.After(*i.DueDate)
}
