package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pik-ry/laskutin/internal/domain/aircraft"
	"github.com/pik-ry/laskutin/internal/domain/flight"
	"github.com/pik-ry/laskutin/internal/domain/invoice"
	"github.com/pik-ry/laskutin/internal/domain/ledger"
	"github.com/pik-ry/laskutin/internal/domain/member"
	"github.com/pik-ry/laskutin/internal/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and backs tests and runs without a configured database.
type Store struct {
	mu             sync.RWMutex
	nextID         int64
	members        map[string]member.Member
	accounts       map[string]ledger.Account
	entries        map[string]ledger.Entry
	aircraft       map[string]aircraft.Aircraft
	flights        map[string]flight.Flight
	invoices       map[string]invoice.Invoice
	invoiceEntries map[string][]string
}

var _ storage.MemberStore = (*Store)(nil)
var _ storage.AccountStore = (*Store)(nil)
var _ storage.EntryStore = (*Store)(nil)
var _ storage.AircraftStore = (*Store)(nil)
var _ storage.FlightStore = (*Store)(nil)
var _ storage.InvoiceStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:         1,
		members:        make(map[string]member.Member),
		accounts:       make(map[string]ledger.Account),
		entries:        make(map[string]ledger.Entry),
		aircraft:       make(map[string]aircraft.Aircraft),
		flights:        make(map[string]flight.Flight),
		invoices:       make(map[string]invoice.Invoice),
		invoiceEntries: make(map[string][]string),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// MemberStore implementation --------------------------------------------------

func (s *Store) CreateMember(_ context.Context, m member.Member) (member.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.members[m.Reference]; exists {
		return member.Member{}, fmt.Errorf("member %s: %w", m.Reference, storage.ErrConflict)
	}

	m.CreatedAt = time.Now().UTC()
	s.members[m.Reference] = m
	return cloneMember(m), nil
}

func (s *Store) UpdateMember(_ context.Context, m member.Member) (member.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.members[m.Reference]
	if !ok {
		return member.Member{}, fmt.Errorf("member %s: %w", m.Reference, storage.ErrNotFound)
	}

	m.CreatedAt = original.CreatedAt
	s.members[m.Reference] = m
	return cloneMember(m), nil
}

func (s *Store) GetMember(_ context.Context, reference string) (member.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[reference]
	if !ok {
		return member.Member{}, fmt.Errorf("member %s: %w", reference, storage.ErrNotFound)
	}
	return cloneMember(m), nil
}

func (s *Store) ListMembers(_ context.Context) ([]member.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]member.Member, 0, len(s.members))
	for _, m := range s.members {
		result = append(result, cloneMember(m))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Reference < result[j].Reference })
	return result, nil
}

func (s *Store) DeleteMember(_ context.Context, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[reference]; !ok {
		return fmt.Errorf("member %s: %w", reference, storage.ErrNotFound)
	}
	delete(s.members, reference)
	return nil
}

// AccountStore implementation -------------------------------------------------

func (s *Store) CreateAccount(_ context.Context, acct ledger.Account) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[acct.Reference]; exists {
		return ledger.Account{}, fmt.Errorf("account %s: %w", acct.Reference, storage.ErrConflict)
	}

	acct.CreatedAt = time.Now().UTC()
	s.accounts[acct.Reference] = acct
	return acct, nil
}

func (s *Store) UpdateAccount(_ context.Context, acct ledger.Account) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.accounts[acct.Reference]
	if !ok {
		return ledger.Account{}, fmt.Errorf("account %s: %w", acct.Reference, storage.ErrNotFound)
	}

	acct.CreatedAt = original.CreatedAt
	s.accounts[acct.Reference] = acct
	return acct, nil
}

func (s *Store) GetAccount(_ context.Context, reference string) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[reference]
	if !ok {
		return ledger.Account{}, fmt.Errorf("account %s: %w", reference, storage.ErrNotFound)
	}
	return acct, nil
}

func (s *Store) ListAccounts(_ context.Context) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ledger.Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		result = append(result, acct)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Reference < result[j].Reference })
	return result, nil
}

func (s *Store) DeleteAccount(_ context.Context, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[reference]; !ok {
		return fmt.Errorf("account %s: %w", reference, storage.ErrNotFound)
	}
	delete(s.accounts, reference)
	return nil
}

// EntryStore implementation ---------------------------------------------------

func (s *Store) CreateEntry(_ context.Context, e ledger.Entry) (ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = s.nextIDLocked()
	} else if _, exists := s.entries[e.ID]; exists {
		return ledger.Entry{}, fmt.Errorf("entry %s: %w", e.ID, storage.ErrConflict)
	}

	e.CreatedAt = time.Now().UTC()
	e.Tags = cloneTags(e.Tags)
	s.entries[e.ID] = e
	return cloneEntry(e), nil
}

func (s *Store) UpdateEntry(_ context.Context, e ledger.Entry) (ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.entries[e.ID]
	if !ok {
		return ledger.Entry{}, fmt.Errorf("entry %s: %w", e.ID, storage.ErrNotFound)
	}

	e.CreatedAt = original.CreatedAt
	e.Tags = cloneTags(e.Tags)
	s.entries[e.ID] = e
	return cloneEntry(e), nil
}

func (s *Store) GetEntry(_ context.Context, id string) (ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return ledger.Entry{}, fmt.Errorf("entry %s: %w", id, storage.ErrNotFound)
	}
	return cloneEntry(e), nil
}

func (s *Store) ListEntries(_ context.Context, accountReference string) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []ledger.Entry
	for _, e := range s.entries {
		if accountReference == "" || e.AccountReference == accountReference {
			result = append(result, cloneEntry(e))
		}
	}
	ledger.SortEntries(result)
	return result, nil
}

func (s *Store) DeleteEntry(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return fmt.Errorf("entry %s: %w", id, storage.ErrNotFound)
	}
	for invoiceID, ids := range s.invoiceEntries {
		for _, entryID := range ids {
			if entryID == id {
				return fmt.Errorf("entry %s attached to invoice %s: %w", id, invoiceID, storage.ErrConflict)
			}
		}
	}
	delete(s.entries, id)
	return nil
}

func (s *Store) GetEntryByTag(_ context.Context, tag string) (ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.HasTag(tag) {
			return cloneEntry(e), nil
		}
	}
	return ledger.Entry{}, fmt.Errorf("entry tagged %q: %w", tag, storage.ErrNotFound)
}

func (s *Store) SumEntriesByTag(_ context.Context, accountReference, tag string, year int) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := decimal.Zero
	for _, e := range s.entries {
		if e.AccountReference == accountReference && e.Date.Year() == year && e.HasTag(tag) {
			sum = sum.Add(e.Amount)
		}
	}
	return sum, nil
}

func (s *Store) ListEntriesByFlight(_ context.Context, flightID string) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []ledger.Entry
	for _, e := range s.entries {
		if e.FlightID == flightID {
			result = append(result, cloneEntry(e))
		}
	}
	ledger.SortEntries(result)
	return result, nil
}

// AircraftStore implementation ------------------------------------------------

func (s *Store) CreateAircraft(_ context.Context, a aircraft.Aircraft) (aircraft.Aircraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.aircraft[a.Registration]; exists {
		return aircraft.Aircraft{}, fmt.Errorf("aircraft %s: %w", a.Registration, storage.ErrConflict)
	}
	s.aircraft[a.Registration] = a
	return a, nil
}

func (s *Store) UpdateAircraft(_ context.Context, a aircraft.Aircraft) (aircraft.Aircraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.aircraft[a.Registration]; !ok {
		return aircraft.Aircraft{}, fmt.Errorf("aircraft %s: %w", a.Registration, storage.ErrNotFound)
	}
	s.aircraft[a.Registration] = a
	return a, nil
}

func (s *Store) GetAircraft(_ context.Context, registration string) (aircraft.Aircraft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.aircraft[registration]
	if !ok {
		return aircraft.Aircraft{}, fmt.Errorf("aircraft %s: %w", registration, storage.ErrNotFound)
	}
	return a, nil
}

func (s *Store) ListAircraft(_ context.Context) ([]aircraft.Aircraft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]aircraft.Aircraft, 0, len(s.aircraft))
	for _, a := range s.aircraft {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Registration < result[j].Registration })
	return result, nil
}

func (s *Store) DeleteAircraft(_ context.Context, registration string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.aircraft[registration]; !ok {
		return fmt.Errorf("aircraft %s: %w", registration, storage.ErrNotFound)
	}
	delete(s.aircraft, registration)
	return nil
}

// FlightStore implementation --------------------------------------------------

func (s *Store) CreateFlight(_ context.Context, f flight.Flight) (flight.Flight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.ID == "" {
		f.ID = s.nextIDLocked()
	} else if _, exists := s.flights[f.ID]; exists {
		return flight.Flight{}, fmt.Errorf("flight %s: %w", f.ID, storage.ErrConflict)
	}

	f.CreatedAt = time.Now().UTC()
	s.flights[f.ID] = f
	return f, nil
}

func (s *Store) UpdateFlight(_ context.Context, f flight.Flight) (flight.Flight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.flights[f.ID]
	if !ok {
		return flight.Flight{}, fmt.Errorf("flight %s: %w", f.ID, storage.ErrNotFound)
	}

	f.CreatedAt = original.CreatedAt
	s.flights[f.ID] = f
	return f, nil
}

func (s *Store) GetFlight(_ context.Context, id string) (flight.Flight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.flights[id]
	if !ok {
		return flight.Flight{}, fmt.Errorf("flight %s: %w", id, storage.ErrNotFound)
	}
	return f, nil
}

func (s *Store) ListFlights(_ context.Context, accountReference string) ([]flight.Flight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []flight.Flight
	for _, f := range s.flights {
		if accountReference == "" || f.AccountReference == accountReference {
			result = append(result, f)
		}
	}
	sortFlights(result)
	return result, nil
}

func (s *Store) ListFlightsByPeriod(_ context.Context, start, end time.Time) ([]flight.Flight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []flight.Flight
	for _, f := range s.flights {
		if f.Date.Before(start) || f.Date.After(end) {
			continue
		}
		result = append(result, f)
	}
	sortFlights(result)
	return result, nil
}

func (s *Store) ListFlightsByAircraftDate(_ context.Context, registration string, date time.Time) ([]flight.Flight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	y, m, d := date.Date()
	var result []flight.Flight
	for _, f := range s.flights {
		fy, fm, fd := f.Date.Date()
		if f.Aircraft == registration && fy == y && fm == m && fd == d {
			result = append(result, f)
		}
	}
	sortFlights(result)
	return result, nil
}

func (s *Store) ListUnbilledFlights(_ context.Context, start, end time.Time) ([]flight.Flight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	billed := make(map[string]bool)
	for _, e := range s.entries {
		if e.FlightID != "" {
			billed[e.FlightID] = true
		}
	}

	var result []flight.Flight
	for _, f := range s.flights {
		if billed[f.ID] {
			continue
		}
		if !start.IsZero() && f.Date.Before(start) {
			continue
		}
		if !end.IsZero() && f.Date.After(end) {
			continue
		}
		result = append(result, f)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].AccountReference != result[j].AccountReference {
			return result[i].AccountReference < result[j].AccountReference
		}
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *Store) DeleteFlight(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.flights[id]; !ok {
		return fmt.Errorf("flight %s: %w", id, storage.ErrNotFound)
	}
	delete(s.flights, id)
	return nil
}

// InvoiceStore implementation -------------------------------------------------

func (s *Store) CreateInvoice(_ context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inv.ID == "" {
		inv.ID = s.nextIDLocked()
	} else if _, exists := s.invoices[inv.ID]; exists {
		return invoice.Invoice{}, fmt.Errorf("invoice %s: %w", inv.ID, storage.ErrConflict)
	}

	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	s.invoices[inv.ID] = inv
	return cloneInvoice(inv), nil
}

func (s *Store) UpdateInvoice(_ context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.invoices[inv.ID]
	if !ok {
		return invoice.Invoice{}, fmt.Errorf("invoice %s: %w", inv.ID, storage.ErrNotFound)
	}

	inv.CreatedAt = original.CreatedAt
	s.invoices[inv.ID] = inv
	return cloneInvoice(inv), nil
}

func (s *Store) GetInvoice(_ context.Context, id string) (invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[id]
	if !ok {
		return invoice.Invoice{}, fmt.Errorf("invoice %s: %w", id, storage.ErrNotFound)
	}
	return cloneInvoice(inv), nil
}

func (s *Store) ListInvoices(_ context.Context, accountReference string, status invoice.Status) ([]invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []invoice.Invoice
	for _, inv := range s.invoices {
		if accountReference != "" && inv.AccountReference != accountReference {
			continue
		}
		if status != "" && inv.Status != status {
			continue
		}
		result = append(result, cloneInvoice(inv))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *Store) DeleteInvoice(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.invoices[id]; !ok {
		return 0, fmt.Errorf("invoice %s: %w", id, storage.ErrNotFound)
	}
	detached := len(s.invoiceEntries[id])
	delete(s.invoices, id)
	delete(s.invoiceEntries, id)
	return detached, nil
}

func (s *Store) AttachEntries(_ context.Context, invoiceID string, entryIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[invoiceID]
	if !ok {
		return fmt.Errorf("invoice %s: %w", invoiceID, storage.ErrNotFound)
	}
	if inv.Status == invoice.StatusCancelled {
		return fmt.Errorf("invoice %s is cancelled: %w", invoiceID, storage.ErrConflict)
	}

	attached := make(map[string]bool, len(s.invoiceEntries[invoiceID]))
	for _, id := range s.invoiceEntries[invoiceID] {
		attached[id] = true
	}
	for _, id := range entryIDs {
		if _, ok := s.entries[id]; !ok {
			return fmt.Errorf("entry %s: %w", id, storage.ErrNotFound)
		}
		if attached[id] {
			continue
		}
		s.invoiceEntries[invoiceID] = append(s.invoiceEntries[invoiceID], id)
		attached[id] = true
	}
	return nil
}

func (s *Store) ListInvoiceEntries(_ context.Context, invoiceID string) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.invoices[invoiceID]; !ok {
		return nil, fmt.Errorf("invoice %s: %w", invoiceID, storage.ErrNotFound)
	}
	var result []ledger.Entry
	for _, id := range s.invoiceEntries[invoiceID] {
		if e, ok := s.entries[id]; ok {
			result = append(result, cloneEntry(e))
		}
	}
	ledger.SortEntries(result)
	return result, nil
}

func (s *Store) ListEntryInvoices(_ context.Context, entryID string) ([]invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.entries[entryID]; !ok {
		return nil, fmt.Errorf("entry %s: %w", entryID, storage.ErrNotFound)
	}
	var result []invoice.Invoice
	for invoiceID, ids := range s.invoiceEntries {
		for _, id := range ids {
			if id == entryID {
				result = append(result, cloneInvoice(s.invoices[invoiceID]))
				break
			}
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Helpers --------------------------------------------------------------------

func cloneMember(m member.Member) member.Member {
	if m.BirthDate != nil {
		b := *m.BirthDate
		m.BirthDate = &b
	}
	return m
}

func cloneTags(tags []string) []string {
	return append([]string(nil), tags...)
}

func cloneEntry(e ledger.Entry) ledger.Entry {
	e.Tags = cloneTags(e.Tags)
	return e
}

func cloneInvoice(inv invoice.Invoice) invoice.Invoice {
	if inv.DueDate != nil {
		d := *inv.DueDate
		inv.DueDate = &d
	}
	if inv.SentAt != nil {
		t := *inv.SentAt
		inv.SentAt = &t
	}
	return inv
}

func sortFlights(flights []flight.Flight) {
	sort.Slice(flights, func(i, j int) bool {
		if !flights[i].Date.Equal(flights[j].Date) {
			return flights[i].Date.Before(flights[j].Date)
		}
		if !flights[i].TakeoffTime.Equal(flights[j].TakeoffTime) {
			return flights[i].TakeoffTime.Before(flights[j].TakeoffTime)
		}
		return flights[i].ID < flights[j].ID
	})
}
