package member

import (
	"strings"
	"time"
)

// Member is a club member known to the billing system. The reference number
// (PIK-viite) doubles as the key of the member's ledger account.
type Member struct {
	Reference string     `json:"reference"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Email     string     `json:"email,omitempty"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
}

// Name returns the member's display name.
func (m Member) Name() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// ValidReference reports whether ref is a usable member reference number.
// References are non-empty and numeric.
func ValidReference(ref string) bool {
	if ref == "" {
		return false
	}
	for _, r := range ref {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
