// Package billing runs the pricing engine over unbilled flights and books
// the resulting ledger entries.
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	rules "github.com/pik-ry/laskutin/internal/billing"
	"github.com/pik-ry/laskutin/internal/domain/ledger"
	"github.com/pik-ry/laskutin/internal/storage"
	"github.com/pik-ry/laskutin/pkg/logger"
)

// Service wires the rule engine to the stores.
type Service struct {
	flights storage.FlightStore
	entries storage.EntryStore
	members storage.MemberStore
	engine  *rules.Engine
	log     *logger.Logger
}

// New builds the billing service around a configured engine.
func New(flights storage.FlightStore, entries storage.EntryStore, members storage.MemberStore, engine *rules.Engine, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("billing")
	}
	return &Service{flights: flights, entries: entries, members: members, engine: engine, log: log}
}

// Report summarizes one billing run.
type Report struct {
	Flights   int             `json:"flights"`
	Billed    int             `json:"billed"`
	Skipped   int             `json:"skipped"`
	Entries   int             `json:"entries"`
	Unmatched []string        `json:"unmatched,omitempty"`
	Warnings  []string        `json:"warnings,omitempty"`
	Total     decimal.Decimal `json:"total"`
	DryRun    bool            `json:"dry_run"`
}

// ProcessFlights prices every stored flight that has no ledger entries yet,
// ordered by account then date, and saves the produced entries. Non-zero
// bounds restrict the flight dates considered. Cap usage is seeded from the
// tag sums already stored for the current year, so re-runs keep counting
// where the last run stopped.
func (s *Service) ProcessFlights(ctx context.Context, from, to time.Time, dryRun bool) (Report, error) {
	if s.engine == nil {
		return Report{}, fmt.Errorf("no billing rules configured")
	}
	unbilled, err := s.flights.ListUnbilledFlights(ctx, from, to)
	if err != nil {
		return Report{}, fmt.Errorf("list unbilled flights: %w", err)
	}
	if len(unbilled) == 0 {
		s.log.Info("no new flights to process")
		return Report{DryRun: dryRun, Total: decimal.Zero}, nil
	}

	runCtx, err := s.newRunContext(ctx)
	if err != nil {
		return Report{}, err
	}

	run := s.engine.Run(unbilled, runCtx)
	report := Report{
		Flights:   run.Flights,
		Billed:    run.Billed,
		Skipped:   run.Skipped,
		Entries:   len(run.Entries),
		Unmatched: run.Unmatched,
		Warnings:  run.Warnings,
		Total:     run.Total,
		DryRun:    dryRun,
	}

	if dryRun {
		s.log.Infof("dry run: %d flights would book %d entries totaling %s",
			run.Billed, len(run.Entries), run.Total.StringFixed(2))
		return report, nil
	}

	for _, e := range run.Entries {
		if _, err := s.entries.CreateEntry(ctx, e); err != nil {
			return report, fmt.Errorf("save entry: %w", err)
		}
	}
	s.log.WithField("flights", run.Billed).
		WithField("entries", len(run.Entries)).
		WithField("total", run.Total.StringFixed(2)).
		Info("billing run completed")
	return report, nil
}

// newRunContext loads member birth dates for the age filters and wires cap
// seeding against the stored tag sums of the current year.
func (s *Service) newRunContext(ctx context.Context) (*rules.Context, error) {
	runCtx := rules.NewContext(time.Now().UTC())

	members, err := s.members.ListMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	for _, m := range members {
		if m.BirthDate != nil {
			runCtx.BirthDates[m.Reference] = *m.BirthDate
		}
	}

	year := runCtx.Now.Year()
	runCtx.SeedCap = func(capID, accountReference string) decimal.Decimal {
		sum, err := s.entries.SumEntriesByTag(ctx, accountReference, rules.CapTag(capID), year)
		if err != nil {
			s.log.Warnf("cap %s seed for account %s failed: %v", capID, accountReference, err)
			return decimal.Zero
		}
		return sum
	}
	return runCtx, nil
}

// RefundFlight books a correction entry cancelling every charge booked for
// the flight. The refund carries the union of the charges' cap tags so the
// stored cap sums net out for later runs.
func (s *Service) RefundFlight(ctx context.Context, flightID string) (ledger.Entry, error) {
	f, err := s.flights.GetFlight(ctx, flightID)
	if err != nil {
		return ledger.Entry{}, err
	}
	if f.Refunded() {
		return ledger.Entry{}, fmt.Errorf("flight %s already refunded", flightID)
	}

	entries, err := s.entries.ListEntriesByFlight(ctx, flightID)
	if err != nil {
		return ledger.Entry{}, err
	}

	total := decimal.Zero
	var tags []string
	seen := make(map[string]bool)
	for _, e := range entries {
		if !e.Additive {
			continue
		}
		total = total.Add(e.Amount)
		for _, tag := range e.Tags {
			if !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
	}
	if total.IsZero() {
		return ledger.Entry{}, fmt.Errorf("flight %s has no charges to refund", flightID)
	}

	refund, err := s.entries.CreateEntry(ctx, ledger.Entry{
		AccountReference: f.AccountReference,
		Date:             time.Now().UTC(),
		Amount:           total.Neg(),
		Description:      "Korjaus: Hyvitys " + f.Describe(),
		Additive:         true,
		FlightID:         f.ID,
		Tags:             tags,
		Visible:          true,
	})
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("save refund: %w", err)
	}

	f.RefundEntryID = refund.ID
	if _, err := s.flights.UpdateFlight(ctx, f); err != nil {
		return ledger.Entry{}, fmt.Errorf("link refund: %w", err)
	}

	s.log.WithField("flight", f.Describe()).
		WithField("amount", refund.Amount.StringFixed(2)).
		Info("refund booked")
	return refund, nil
}
