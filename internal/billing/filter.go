package billing

import (
	"time"

	"github.com/pik-ry/laskutin/internal/domain/flight"
)

// Filter decides whether a rule applies to a flight. A rule's filters are
// combined with AND; OrFilter and NotFilter build the other combinations.
type Filter interface {
	Match(f flight.Flight, ctx *Context) bool
}

// PeriodFilter matches flights dated within [Start, End].
type PeriodFilter struct {
	Start time.Time
	End   time.Time
}

func (p PeriodFilter) Match(f flight.Flight, _ *Context) bool {
	return !f.Date.Before(p.Start) && !f.Date.After(p.End)
}

// AircraftFilter matches flights flown on any of the listed registrations.
type AircraftFilter struct {
	Registrations []string
}

func (a AircraftFilter) Match(f flight.Flight, _ *Context) bool {
	for _, reg := range a.Registrations {
		if f.Aircraft == reg {
			return true
		}
	}
	return false
}

// PurposeFilter matches flights with any of the listed purpose codes.
type PurposeFilter struct {
	Purposes []string
}

func (p PurposeFilter) Match(f flight.Flight, _ *Context) bool {
	for _, purpose := range p.Purposes {
		if f.Purpose == purpose {
			return true
		}
	}
	return false
}

// AccountFilter matches flights paid by any of the listed references.
type AccountFilter struct {
	References []string
}

func (a AccountFilter) Match(f flight.Flight, _ *Context) bool {
	for _, ref := range a.References {
		if f.AccountReference == ref {
			return true
		}
	}
	return false
}

// BirthDateFilter matches flights whose payer was at most MaxAge years old
// on the day of the flight. A payer with no recorded birth date never
// matches and produces a warning, so youth pricing fails closed.
type BirthDateFilter struct {
	MaxAge int
}

func (b BirthDateFilter) Match(f flight.Flight, ctx *Context) bool {
	birth, ok := ctx.BirthDate(f.AccountReference)
	if !ok {
		ctx.Warnf("no birth date for account %s, age filter does not match %s", f.AccountReference, f.Describe())
		return false
	}
	age := f.Date.Sub(birth).Hours() / 24 / 365.25
	return age <= float64(b.MaxAge)
}

// SurchargeFilter matches flights marked with a surcharge reason. An empty
// Reason matches any surcharged flight.
type SurchargeFilter struct {
	Reason string
}

func (s SurchargeFilter) Match(f flight.Flight, _ *Context) bool {
	if s.Reason == "" {
		return f.SurchargeReason != ""
	}
	return f.SurchargeReason == s.Reason
}

// DiscountFilter matches flights marked with a discount reason. An empty
// Reason matches any discounted flight.
type DiscountFilter struct {
	Reason string
}

func (d DiscountFilter) Match(f flight.Flight, _ *Context) bool {
	if d.Reason == "" {
		return f.DiscountReason != ""
	}
	return f.DiscountReason == d.Reason
}

// NotFilter inverts another filter.
type NotFilter struct {
	Inner Filter
}

func (n NotFilter) Match(f flight.Flight, ctx *Context) bool {
	return !n.Inner.Match(f, ctx)
}

// OrFilter matches when any of its filters matches.
type OrFilter struct {
	Filters []Filter
}

func (o OrFilter) Match(f flight.Flight, ctx *Context) bool {
	for _, filter := range o.Filters {
		if filter.Match(f, ctx) {
			return true
		}
	}
	return false
}

func matchAll(filters []Filter, f flight.Flight, ctx *Context) bool {
	for _, filter := range filters {
		if !filter.Match(f, ctx) {
			return false
		}
	}
	return true
}
