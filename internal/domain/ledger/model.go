// Package ledger holds the account and entry model plus the running-balance
// arithmetic everything else in the billing system leans on.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a payer ledger account keyed by the club reference number.
// Accounts usually belong to a member but dangling accounts exist for
// special bookkeeping purposes.
type Account struct {
	Reference       string    `json:"reference"`
	MemberReference string    `json:"member_reference,omitempty"`
	Name            string    `json:"name"`
	CreatedAt       time.Time `json:"created_at"`
}

// Entry is one ledger row on an account. Positive amounts charge the
// account, negative amounts credit it. A non-additive entry resets the
// running balance to its amount instead of accumulating.
type Entry struct {
	ID               string          `json:"id"`
	AccountReference string          `json:"account_reference"`
	Date             time.Time       `json:"date"`
	Amount           decimal.Decimal `json:"amount"`
	Description      string          `json:"description"`
	Additive         bool            `json:"additive"`
	LedgerAccount    string          `json:"ledger_account,omitempty"`
	FlightID         string          `json:"flight_id,omitempty"`
	Tags             []string        `json:"tags,omitempty"`
	Visible          bool            `json:"visible"`
	CreatedAt        time.Time       `json:"created_at"`
}

// HasTag reports whether the entry carries the given tag.
func (e Entry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// BalanceLine pairs an entry with the running balance after applying it.
type BalanceLine struct {
	Entry   Entry           `json:"entry"`
	Balance decimal.Decimal `json:"balance"`
}
