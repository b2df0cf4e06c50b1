package operations

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pik-ry/laskutin/internal/csvutil"
	domain "github.com/pik-ry/laskutin/internal/domain/aircraft"
	"github.com/pik-ry/laskutin/internal/domain/flight"
	"github.com/pik-ry/laskutin/internal/storage"
)

// Source is one CSV file feeding a flight import.
type Source struct {
	Name   string
	Reader io.Reader
}

// ImportReport summarizes a flight import run.
type ImportReport struct {
	Files      int
	Rows       int
	Imported   int
	Duplicates int
	Skipped    int
	Warnings   []string
	DryRun     bool
}

var flightColumns = []string{
	"Selite", "Tapahtumapäivä", "Maksajan viitenumero",
	"Lähtöaika", "Laskeutumisaika", "Lentoaika_desimaalinen",
}

// ImportFlights reads flight log CSV files. Rows with recoverable problems
// (unknown payer, impossible times, future dates) warn and are skipped; any
// other bad row fails the whole import and nothing is written. Candidates
// matching a stored flight on aircraft and date with an equal takeoff or
// landing time count as duplicates and are skipped.
func (s *Service) ImportFlights(ctx context.Context, sources []Source, dryRun bool) (ImportReport, error) {
	if len(sources) == 0 {
		return ImportReport{}, fmt.Errorf("no files to import")
	}
	report := ImportReport{Files: len(sources), DryRun: dryRun}

	fleet, err := s.aircraft.ListAircraft(ctx)
	if err != nil {
		return report, fmt.Errorf("list aircraft: %w", err)
	}

	var (
		candidates []flight.Flight
		failures   []string
	)
	for _, src := range sources {
		if err := s.parseFlightFile(ctx, src, fleet, &report, &candidates, &failures); err != nil {
			return report, fmt.Errorf("file %s: %w", src.Name, err)
		}
	}

	if len(failures) > 0 {
		for _, msg := range failures {
			s.log.Error(msg)
		}
		return report, fmt.Errorf("failed to import %d rows, nothing was imported", len(failures))
	}

	for _, cand := range candidates {
		dup, err := s.isDuplicate(ctx, cand)
		if err != nil {
			return report, err
		}
		if dup {
			report.Duplicates++
			s.log.WithField("aircraft", cand.Aircraft).
				WithField("date", cand.Date.Format("2006-01-02")).
				Debug("duplicate flight skipped")
			continue
		}
		if !dryRun {
			if _, err := s.flights.CreateFlight(ctx, cand); err != nil {
				return report, fmt.Errorf("save flight: %w", err)
			}
		}
		report.Imported++
	}

	if dryRun {
		s.log.Infof("dry run: would import %d flights from %d files (%d duplicates, %d rows skipped)",
			report.Imported, report.Files, report.Duplicates, report.Skipped)
	} else {
		s.log.Infof("imported %d flights from %d files (%d duplicates, %d rows skipped)",
			report.Imported, report.Files, report.Duplicates, report.Skipped)
	}
	return report, nil
}

func (s *Service) parseFlightFile(ctx context.Context, src Source, fleet []domain.Aircraft, report *ImportReport, out *[]flight.Flight, failures *[]string) error {
	reader := csv.NewReader(src.Reader)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	cols := csvutil.Columns(header)
	if err := csvutil.Require(cols, flightColumns...); err != nil {
		return err
	}

	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read row: %w", err)
		}
		row++
		report.Rows++

		warn := func(format string, args ...interface{}) {
			msg := fmt.Sprintf("%s row %d: %s", src.Name, row, fmt.Sprintf(format, args...))
			report.Warnings = append(report.Warnings, msg)
			s.log.Warn(msg)
		}

		f, skip, err := s.parseFlightRow(ctx, record, cols, fleet, warn)
		switch {
		case err != nil:
			*failures = append(*failures, fmt.Sprintf("%s row %d: %v", src.Name, row, err))
		case skip != "":
			report.Skipped++
			warn("%s", skip)
		default:
			*out = append(*out, f)
		}
	}
	return nil
}

// parseFlightRow turns one CSV record into a flight. A non-empty skip reason
// means the row is dropped with a warning; an error fails the import.
func (s *Service) parseFlightRow(ctx context.Context, record []string, cols map[string]int, fleet []domain.Aircraft, warn func(string, ...interface{})) (flight.Flight, string, error) {
	words := strings.Fields(csvutil.Field(record, cols, "Selite"))
	if len(words) == 0 {
		return flight.Flight{}, "", fmt.Errorf("empty Selite")
	}
	key := strings.ToUpper(words[0])
	if s.noAircraft[key] {
		return flight.Flight{}, fmt.Sprintf("aircraft %s is on the no-invoicing list", key), nil
	}

	registration, discountReason, err := s.resolveAircraft(key, fleet)
	if err != nil {
		return flight.Flight{}, "", err
	}

	ref := csvutil.Field(record, cols, "Maksajan viitenumero")
	accountRef := ""
	if !s.noRefs[ref] {
		if _, err := s.accounts.GetAccount(ctx, ref); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return flight.Flight{}, fmt.Sprintf("account %s not found", ref), nil
			}
			return flight.Flight{}, "", err
		}
		accountRef = ref
	}

	dateStr := csvutil.Field(record, cols, "Tapahtumapäivä")
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return flight.Flight{}, "", fmt.Errorf("invalid date %q, use YYYY-MM-DD", dateStr)
	}
	takeoff, err := parseClock(date, csvutil.Field(record, cols, "Lähtöaika"))
	if err != nil {
		return flight.Flight{}, "", err
	}
	landing, err := parseClock(date, csvutil.Field(record, cols, "Laskeutumisaika"))
	if err != nil {
		return flight.Flight{}, "", err
	}

	if landing.Before(takeoff) {
		return flight.Flight{}, "landing time before takeoff time", nil
	}
	if landing.Sub(takeoff) < time.Minute {
		return flight.Flight{}, "flight shorter than one minute", nil
	}
	if date.After(time.Now()) {
		return flight.Flight{}, "flight date in the future", nil
	}

	durationStr := csvutil.Field(record, cols, "Lentoaika_desimaalinen")
	duration, err := decimal.NewFromString(durationStr)
	if err != nil {
		return flight.Flight{}, "", fmt.Errorf("invalid duration %q", durationStr)
	}

	purpose := csvutil.Field(record, cols, "Tarkoitus")
	if purpose != "" && len(s.purposes) > 0 && !s.purposes[strings.ToUpper(purpose)] {
		warn("unknown purpose code %q", purpose)
	}

	takeoffLoc := csvutil.Field(record, cols, "Lähtöpaikka")
	landingLoc := csvutil.Field(record, cols, "Laskeutumispaikka")
	if takeoffLoc != "" && !flight.ValidLocation(takeoffLoc, s.icaoPrefix) {
		warn("suspicious takeoff location %q", takeoffLoc)
	}
	if landingLoc != "" && !flight.ValidLocation(landingLoc, s.icaoPrefix) {
		warn("suspicious landing location %q", landingLoc)
	}

	captain := csvutil.Field(record, cols, "Opettaja/Päällikkö")
	passenger := csvutil.Field(record, cols, "Oppilas/Matkustaja")
	surcharge := csvutil.Field(record, cols, "Laskutuslisä syy")

	var notes []string
	if captain != "" {
		notes = append(notes, "Pilot: "+captain)
	}
	if passenger != "" {
		notes = append(notes, "Passenger: "+passenger)
	}
	if purpose != "" {
		notes = append(notes, "Purpose: "+purpose)
	}
	if surcharge != "" {
		notes = append(notes, "Billing note: "+surcharge)
	}

	return flight.Flight{
		Date:             date,
		ReferenceID:      ref,
		AccountReference: accountRef,
		Aircraft:         registration,
		TakeoffTime:      takeoff,
		LandingTime:      landing,
		TakeoffLocation:  takeoffLoc,
		LandingLocation:  landingLoc,
		LandingCount:     1,
		Duration:         duration,
		Purpose:          purpose,
		Captain:          captain,
		Passengers:       passenger,
		Notes:            strings.Join(notes, "\n"),
		SurchargeReason:  surcharge,
		DiscountReason:   discountReason,
	}, "", nil
}

// resolveAircraft maps a flight log key to a fleet registration, first
// through the alias map, then by substring match on the registration.
func (s *Service) resolveAircraft(key string, fleet []domain.Aircraft) (string, string, error) {
	if alias, ok := s.aliases[key]; ok {
		for _, a := range fleet {
			if a.Registration == alias.Registration {
				return a.Registration, alias.DiscountReason, nil
			}
		}
		return "", "", fmt.Errorf("aircraft %s for alias %s not found", alias.Registration, key)
	}

	var matches []string
	for _, a := range fleet {
		if strings.Contains(a.Registration, key) {
			matches = append(matches, a.Registration)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], "", nil
	case 0:
		return "", "", fmt.Errorf("aircraft %s not found", key)
	default:
		return "", "", fmt.Errorf("aircraft key %s matches %s", key, strings.Join(matches, ", "))
	}
}

func (s *Service) isDuplicate(ctx context.Context, cand flight.Flight) (bool, error) {
	existing, err := s.flights.ListFlightsByAircraftDate(ctx, cand.Aircraft, cand.Date)
	if err != nil {
		return false, err
	}
	for _, f := range existing {
		if f.TakeoffTime.Equal(cand.TakeoffTime) || f.LandingTime.Equal(cand.LandingTime) {
			return true, nil
		}
	}
	return false, nil
}

func parseClock(date time.Time, value string) (time.Time, error) {
	clock, err := time.Parse("15:04", strings.ReplaceAll(value, ".", ":"))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q, use HH:MM", value)
	}
	return time.Date(date.Year(), date.Month(), date.Day(), clock.Hour(), clock.Minute(), 0, 0, time.UTC), nil
}

