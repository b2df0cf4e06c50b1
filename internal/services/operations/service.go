// Package operations manages the fleet and flight records, including the
// flight log CSV import.
package operations

import (
	"context"
	"fmt"
	"strings"
	"time"

	domain "github.com/pik-ry/laskutin/internal/domain/aircraft"
	"github.com/pik-ry/laskutin/internal/domain/flight"
	"github.com/pik-ry/laskutin/internal/storage"
	"github.com/pik-ry/laskutin/pkg/logger"
)

// Alias resolves a flight log aircraft key to a fleet registration. Pseudo
// keys like "1037-opeale" carry the discount reason for the billing rules.
type Alias struct {
	Registration   string
	DiscountReason string
}

// Options carries the operational configuration for imports.
type Options struct {
	// Aliases maps flight log keys (upper-cased) to registrations.
	Aliases map[string]Alias
	// NoInvoicingAircraft lists log keys whose rows are dropped entirely.
	NoInvoicingAircraft []string
	// NoInvoicingReferences lists payer references flown without billing;
	// their flights import with an empty account.
	NoInvoicingReferences []string
	// AllowedPurposes lists known purpose codes; unknown ones warn.
	AllowedPurposes []string
	// ICAOPrefix, when set, requires takeoff and landing codes to carry the
	// prefix (outlandings excepted).
	ICAOPrefix string
}

// Service manages aircraft and flights.
type Service struct {
	aircraft storage.AircraftStore
	flights  storage.FlightStore
	accounts storage.AccountStore
	log      *logger.Logger

	aliases    map[string]Alias
	noAircraft map[string]bool
	noRefs     map[string]bool
	purposes   map[string]bool
	icaoPrefix string
}

// New constructs an operations service.
func New(aircraftStore storage.AircraftStore, flights storage.FlightStore, accounts storage.AccountStore, opts Options, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("operations")
	}
	s := &Service{
		aircraft:   aircraftStore,
		flights:    flights,
		accounts:   accounts,
		log:        log,
		aliases:    make(map[string]Alias, len(opts.Aliases)),
		noAircraft: make(map[string]bool, len(opts.NoInvoicingAircraft)),
		noRefs:     make(map[string]bool, len(opts.NoInvoicingReferences)),
		purposes:   make(map[string]bool, len(opts.AllowedPurposes)),
		icaoPrefix: opts.ICAOPrefix,
	}
	for key, alias := range opts.Aliases {
		alias.Registration = domain.NormalizeRegistration(alias.Registration)
		s.aliases[strings.ToUpper(strings.TrimSpace(key))] = alias
	}
	for _, reg := range opts.NoInvoicingAircraft {
		s.noAircraft[strings.ToUpper(strings.TrimSpace(reg))] = true
	}
	for _, ref := range opts.NoInvoicingReferences {
		s.noRefs[strings.TrimSpace(ref)] = true
	}
	for _, p := range opts.AllowedPurposes {
		s.purposes[strings.ToUpper(strings.TrimSpace(p))] = true
	}
	return s
}

// DefaultFleet returns the club fleet used by seeding.
func DefaultFleet() []domain.Aircraft {
	return []domain.Aircraft{
		{Registration: "OH-650", Name: "Club Astir", CompetitionID: "FK"},
		{Registration: "OH-733", Name: "Acro", CompetitionID: "FQ"},
		{Registration: "OH-787", Name: "LS-4a", CompetitionID: "FM"},
		{Registration: "OH-883", Name: "LS-8", CompetitionID: "FY"},
		{Registration: "OH-952", Name: "DG-1000", CompetitionID: "DG"},
		{Registration: "OH-1035", Name: "LS-4", CompetitionID: "FI"},
		{Registration: "OH-1037", Name: "Tuulia"},
		{Registration: "OH-TOW", Name: "Suhinu"},
	}
}

// Seed creates any missing fleet aircraft and returns how many were added.
func (s *Service) Seed(ctx context.Context) (int, error) {
	created := 0
	for _, a := range DefaultFleet() {
		if _, err := s.aircraft.GetAircraft(ctx, a.Registration); err == nil {
			continue
		}
		if _, err := s.aircraft.CreateAircraft(ctx, a); err != nil {
			return created, fmt.Errorf("seed aircraft %s: %w", a.Registration, err)
		}
		created++
	}
	if created > 0 {
		s.log.Infof("seeded %d aircraft", created)
	}
	return created, nil
}

// CreateAircraft registers a machine in the fleet.
func (s *Service) CreateAircraft(ctx context.Context, a domain.Aircraft) (domain.Aircraft, error) {
	a.Registration = domain.NormalizeRegistration(a.Registration)
	if a.Registration == "" {
		return domain.Aircraft{}, fmt.Errorf("registration is required")
	}
	created, err := s.aircraft.CreateAircraft(ctx, a)
	if err != nil {
		return domain.Aircraft{}, err
	}
	s.log.WithField("registration", created.Registration).Info("aircraft registered")
	return created, nil
}

// GetAircraft returns one fleet machine.
func (s *Service) GetAircraft(ctx context.Context, registration string) (domain.Aircraft, error) {
	return s.aircraft.GetAircraft(ctx, domain.NormalizeRegistration(registration))
}

// ListAircraft returns the fleet.
func (s *Service) ListAircraft(ctx context.Context) ([]domain.Aircraft, error) {
	return s.aircraft.ListAircraft(ctx)
}

// CreateFlight records a single flight, resolving the payer account the same
// way the CSV import does.
func (s *Service) CreateFlight(ctx context.Context, f flight.Flight) (flight.Flight, error) {
	if f.Date.IsZero() {
		return flight.Flight{}, fmt.Errorf("date is required")
	}
	f.Aircraft = domain.NormalizeRegistration(f.Aircraft)
	if _, err := s.aircraft.GetAircraft(ctx, f.Aircraft); err != nil {
		return flight.Flight{}, fmt.Errorf("aircraft lookup: %w", err)
	}
	if f.Duration.Sign() <= 0 {
		return flight.Flight{}, fmt.Errorf("duration must be positive")
	}

	f.ReferenceID = strings.TrimSpace(f.ReferenceID)
	f.AccountReference = ""
	if f.ReferenceID != "" && !s.noRefs[f.ReferenceID] {
		if _, err := s.accounts.GetAccount(ctx, f.ReferenceID); err != nil {
			return flight.Flight{}, fmt.Errorf("account lookup: %w", err)
		}
		f.AccountReference = f.ReferenceID
	}
	if f.LandingCount == 0 {
		f.LandingCount = 1
	}

	created, err := s.flights.CreateFlight(ctx, f)
	if err != nil {
		return flight.Flight{}, err
	}
	s.log.WithField("flight_id", created.ID).
		WithField("aircraft", created.Aircraft).
		Debug("flight recorded")
	return created, nil
}

// GetFlight returns one flight.
func (s *Service) GetFlight(ctx context.Context, id string) (flight.Flight, error) {
	return s.flights.GetFlight(ctx, id)
}

// FlightQuery filters flight listings.
type FlightQuery struct {
	From     time.Time
	To       time.Time
	Aircraft string
	Account  string
}

// QueryFlights lists flights matching the query.
func (s *Service) QueryFlights(ctx context.Context, q FlightQuery) ([]flight.Flight, error) {
	var (
		flights []flight.Flight
		err     error
	)
	switch {
	case q.Account != "":
		flights, err = s.flights.ListFlights(ctx, q.Account)
	case !q.From.IsZero() || !q.To.IsZero():
		from, to := q.From, q.To
		if from.IsZero() {
			from = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
		}
		if to.IsZero() {
			to = time.Date(2200, 1, 1, 0, 0, 0, 0, time.UTC)
		}
		flights, err = s.flights.ListFlightsByPeriod(ctx, from, to)
	default:
		flights, err = s.flights.ListFlights(ctx, "")
	}
	if err != nil {
		return nil, err
	}

	reg := domain.NormalizeRegistration(q.Aircraft)
	result := flights[:0]
	for _, f := range flights {
		if reg != "" && f.Aircraft != reg {
			continue
		}
		if !q.From.IsZero() && f.Date.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && f.Date.After(q.To) {
			continue
		}
		result = append(result, f)
	}
	return result, nil
}
