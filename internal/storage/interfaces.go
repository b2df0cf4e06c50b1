package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pik-ry/laskutin/internal/domain/aircraft"
	"github.com/pik-ry/laskutin/internal/domain/flight"
	"github.com/pik-ry/laskutin/internal/domain/invoice"
	"github.com/pik-ry/laskutin/internal/domain/ledger"
	"github.com/pik-ry/laskutin/internal/domain/member"
)

// ErrNotFound is returned when a record does not exist. Implementations wrap
// it with the entity and key so callers can use errors.Is.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a create or update collides with an existing
// record or a uniqueness rule.
var ErrConflict = errors.New("conflict")

// MemberStore persists member records keyed by PIK reference.
type MemberStore interface {
	CreateMember(ctx context.Context, m member.Member) (member.Member, error)
	UpdateMember(ctx context.Context, m member.Member) (member.Member, error)
	GetMember(ctx context.Context, reference string) (member.Member, error)
	ListMembers(ctx context.Context) ([]member.Member, error)
	DeleteMember(ctx context.Context, reference string) error
}

// AccountStore persists ledger accounts.
type AccountStore interface {
	CreateAccount(ctx context.Context, acct ledger.Account) (ledger.Account, error)
	UpdateAccount(ctx context.Context, acct ledger.Account) (ledger.Account, error)
	GetAccount(ctx context.Context, reference string) (ledger.Account, error)
	ListAccounts(ctx context.Context) ([]ledger.Account, error)
	DeleteAccount(ctx context.Context, reference string) error
}

// EntryStore persists account entries and their tags.
type EntryStore interface {
	CreateEntry(ctx context.Context, e ledger.Entry) (ledger.Entry, error)
	UpdateEntry(ctx context.Context, e ledger.Entry) (ledger.Entry, error)
	GetEntry(ctx context.Context, id string) (ledger.Entry, error)
	// ListEntries returns entries for one account, or for every account when
	// accountReference is empty, ordered by date then creation.
	ListEntries(ctx context.Context, accountReference string) ([]ledger.Entry, error)
	DeleteEntry(ctx context.Context, id string) error

	// GetEntryByTag returns the entry carrying the exact tag. Used for
	// statement dedup fingerprints, which are unique per entry.
	GetEntryByTag(ctx context.Context, tag string) (ledger.Entry, error)
	// SumEntriesByTag sums the amounts of an account's entries that carry the
	// tag and are dated within the given year.
	SumEntriesByTag(ctx context.Context, accountReference, tag string, year int) (decimal.Decimal, error)
	// ListEntriesByFlight returns the entries produced for one flight.
	ListEntriesByFlight(ctx context.Context, flightID string) ([]ledger.Entry, error)
}

// AircraftStore persists the fleet.
type AircraftStore interface {
	CreateAircraft(ctx context.Context, a aircraft.Aircraft) (aircraft.Aircraft, error)
	UpdateAircraft(ctx context.Context, a aircraft.Aircraft) (aircraft.Aircraft, error)
	GetAircraft(ctx context.Context, registration string) (aircraft.Aircraft, error)
	ListAircraft(ctx context.Context) ([]aircraft.Aircraft, error)
	DeleteAircraft(ctx context.Context, registration string) error
}

// FlightStore persists flight records.
type FlightStore interface {
	CreateFlight(ctx context.Context, f flight.Flight) (flight.Flight, error)
	UpdateFlight(ctx context.Context, f flight.Flight) (flight.Flight, error)
	GetFlight(ctx context.Context, id string) (flight.Flight, error)
	// ListFlights returns flights for one payer reference, or all flights
	// when accountReference is empty, ordered by date then takeoff time.
	ListFlights(ctx context.Context, accountReference string) ([]flight.Flight, error)
	// ListFlightsByPeriod returns flights with start <= date <= end.
	ListFlightsByPeriod(ctx context.Context, start, end time.Time) ([]flight.Flight, error)
	// ListFlightsByAircraftDate returns the flights flown by one aircraft on
	// one calendar day. Used for import dedup.
	ListFlightsByAircraftDate(ctx context.Context, registration string, date time.Time) ([]flight.Flight, error)
	// ListUnbilledFlights returns flights no account entry references yet,
	// ordered by account then date. Zero bounds leave the period open.
	ListUnbilledFlights(ctx context.Context, start, end time.Time) ([]flight.Flight, error)
	DeleteFlight(ctx context.Context, id string) error
}

// InvoiceStore persists invoices and the entry attachments behind them.
type InvoiceStore interface {
	CreateInvoice(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error)
	UpdateInvoice(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error)
	GetInvoice(ctx context.Context, id string) (invoice.Invoice, error)
	// ListInvoices filters by account reference and status; empty values
	// match everything. Ordered by creation time.
	ListInvoices(ctx context.Context, accountReference string, status invoice.Status) ([]invoice.Invoice, error)
	// DeleteInvoice removes the invoice and detaches its entries, returning
	// the number of entries that were attached.
	DeleteInvoice(ctx context.Context, id string) (int, error)

	// AttachEntries links entries to an invoice. Attaching to a cancelled
	// invoice is a conflict.
	AttachEntries(ctx context.Context, invoiceID string, entryIDs []string) error
	// ListInvoiceEntries returns the entries attached to an invoice in date
	// order.
	ListInvoiceEntries(ctx context.Context, invoiceID string) ([]ledger.Entry, error)
	// ListEntryInvoices returns the invoices an entry is attached to.
	ListEntryInvoices(ctx context.Context, entryID string) ([]invoice.Invoice, error)
}
