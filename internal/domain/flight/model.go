package flight

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Flight is a single logged flight. ReferenceID carries the payer reference
// exactly as written in the source data; AccountReference is the resolved
// ledger account and stays empty for payers on the no-invoicing list.
type Flight struct {
	ID               string          `json:"id"`
	Date             time.Time       `json:"date"`
	ReferenceID      string          `json:"reference_id"`
	AccountReference string          `json:"account_reference,omitempty"`
	Aircraft         string          `json:"aircraft"`
	TakeoffTime      time.Time       `json:"takeoff_time"`
	LandingTime      time.Time       `json:"landing_time"`
	TakeoffLocation  string          `json:"takeoff_location,omitempty"`
	LandingLocation  string          `json:"landing_location,omitempty"`
	LandingCount     int             `json:"landing_count"`
	Duration         decimal.Decimal `json:"duration"`
	Purpose          string          `json:"purpose"`
	Captain          string          `json:"captain,omitempty"`
	Passengers       string          `json:"passengers,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	SurchargeReason  string          `json:"surcharge_reason,omitempty"`
	DiscountReason   string          `json:"discount_reason,omitempty"`
	RefundEntryID    string          `json:"refund_entry_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Refunded reports whether the flight's charges have already been refunded.
func (f Flight) Refunded() bool {
	return f.RefundEntryID != ""
}

// Describe renders the flight the way it appears in ledger descriptions.
func (f Flight) Describe() string {
	return "Lento " + f.Aircraft + " " + f.Date.Format("02.01.2006")
}

var icaoPattern = regexp.MustCompile(`^[A-Z]{4}$`)

// ValidLocation reports whether loc looks like a takeoff or landing site:
// a 4-letter ICAO code, optionally required to start with requiredPrefix,
// or the literal "maasto" for an outlanding.
func ValidLocation(loc, requiredPrefix string) bool {
	if loc == "" {
		return false
	}
	if strings.EqualFold(loc, "maasto") {
		return true
	}
	loc = strings.ToUpper(loc)
	if !icaoPattern.MatchString(loc) {
		return false
	}
	if requiredPrefix != "" {
		return strings.HasPrefix(loc, strings.ToUpper(requiredPrefix))
	}
	return true
}
