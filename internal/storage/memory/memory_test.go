package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pik-ry/laskutin/internal/domain/flight"
	"github.com/pik-ry/laskutin/internal/domain/invoice"
	"github.com/pik-ry/laskutin/internal/domain/ledger"
	"github.com/pik-ry/laskutin/internal/storage"
)

func TestEntryTagQueries(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.CreateAccount(ctx, ledger.Account{Reference: "110001", Name: "Testi"}); err != nil {
		t.Fatalf("create account: %v", err)
	}

	mk := func(date time.Time, amount string, tags ...string) ledger.Entry {
		e, err := store.CreateEntry(ctx, ledger.Entry{
			AccountReference: "110001",
			Date:             date,
			Amount:           decimal.RequireFromString(amount),
			Description:      "Lento",
			Additive:         true,
			Visible:          true,
			Tags:             tags,
		})
		if err != nil {
			t.Fatalf("create entry: %v", err)
		}
		return e
	}

	mk(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), "100.00", "cap:pursi_hintakatto_2024")
	mk(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), "50.50", "cap:pursi_hintakatto_2024")
	mk(time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), "999.00", "cap:pursi_hintakatto_2024")
	mk(time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), "10.00", "cap:kalustomaksu_hintakatto_2024")

	sum, err := store.SumEntriesByTag(ctx, "110001", "cap:pursi_hintakatto_2024", 2024)
	if err != nil {
		t.Fatalf("sum by tag: %v", err)
	}
	if !sum.Equal(decimal.RequireFromString("150.50")) {
		t.Fatalf("sum = %s, want 150.50", sum)
	}

	tagged := mk(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), "-20.00", "nda:abc123def456")
	got, err := store.GetEntryByTag(ctx, "nda:abc123def456")
	if err != nil {
		t.Fatalf("get by tag: %v", err)
	}
	if got.ID != tagged.ID {
		t.Fatalf("got entry %s, want %s", got.ID, tagged.ID)
	}

	if _, err := store.GetEntryByTag(ctx, "nda:missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing tag err = %v, want ErrNotFound", err)
	}
}

func TestInvoiceAttachmentRules(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.CreateAccount(ctx, ledger.Account{Reference: "110001", Name: "Testi"}); err != nil {
		t.Fatalf("create account: %v", err)
	}
	e, err := store.CreateEntry(ctx, ledger.Entry{
		AccountReference: "110001",
		Date:             time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Amount:           decimal.NewFromInt(30),
		Description:      "Lento",
		Additive:         true,
		Visible:          true,
	})
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}

	inv, err := store.CreateInvoice(ctx, invoice.Invoice{Number: "INV-20240701-110001-9f3a", AccountReference: "110001", Status: invoice.StatusDraft})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if err := store.AttachEntries(ctx, inv.ID, []string{e.ID}); err != nil {
		t.Fatalf("attach: %v", err)
	}
	// Attaching twice stays idempotent.
	if err := store.AttachEntries(ctx, inv.ID, []string{e.ID}); err != nil {
		t.Fatalf("re-attach: %v", err)
	}
	attached, err := store.ListInvoiceEntries(ctx, inv.ID)
	if err != nil {
		t.Fatalf("list invoice entries: %v", err)
	}
	if len(attached) != 1 {
		t.Fatalf("attached count = %d, want 1", len(attached))
	}

	if err := store.DeleteEntry(ctx, e.ID); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("delete attached entry err = %v, want ErrConflict", err)
	}

	invoices, err := store.ListEntryInvoices(ctx, e.ID)
	if err != nil {
		t.Fatalf("list entry invoices: %v", err)
	}
	if len(invoices) != 1 || invoices[0].ID != inv.ID {
		t.Fatalf("entry invoices = %+v, want invoice %s", invoices, inv.ID)
	}

	cancelled := inv
	cancelled.Status = invoice.StatusCancelled
	if _, err := store.UpdateInvoice(ctx, cancelled); err != nil {
		t.Fatalf("cancel invoice: %v", err)
	}
	if err := store.AttachEntries(ctx, inv.ID, []string{e.ID}); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("attach to cancelled err = %v, want ErrConflict", err)
	}

	detached, err := store.DeleteInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("delete invoice: %v", err)
	}
	if detached != 1 {
		t.Fatalf("detached = %d, want 1", detached)
	}
	if err := store.DeleteEntry(ctx, e.ID); err != nil {
		t.Fatalf("delete entry after detach: %v", err)
	}
}

func TestFlightLookups(t *testing.T) {
	store := New()
	ctx := context.Background()

	day := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	mk := func(date time.Time, reg string, takeoff time.Time) flight.Flight {
		f, err := store.CreateFlight(ctx, flight.Flight{
			Date:             date,
			ReferenceID:      "110001",
			AccountReference: "110001",
			Aircraft:         reg,
			TakeoffTime:      takeoff,
			Duration:         decimal.NewFromInt(30),
		})
		if err != nil {
			t.Fatalf("create flight: %v", err)
		}
		return f
	}

	mk(day, "OH-650", day.Add(10*time.Hour))
	mk(day, "OH-650", day.Add(12*time.Hour))
	mk(day, "OH-787", day.Add(11*time.Hour))
	mk(day.AddDate(0, 0, 1), "OH-650", day.AddDate(0, 0, 1).Add(10*time.Hour))

	sameDay, err := store.ListFlightsByAircraftDate(ctx, "OH-650", day)
	if err != nil {
		t.Fatalf("list by aircraft date: %v", err)
	}
	if len(sameDay) != 2 {
		t.Fatalf("flights on day = %d, want 2", len(sameDay))
	}
	if sameDay[0].TakeoffTime.After(sameDay[1].TakeoffTime) {
		t.Fatalf("flights not ordered by takeoff time")
	}

	period, err := store.ListFlightsByPeriod(ctx, day, day)
	if err != nil {
		t.Fatalf("list by period: %v", err)
	}
	if len(period) != 3 {
		t.Fatalf("flights in period = %d, want 3", len(period))
	}
}

func TestUnbilledFlights(t *testing.T) {
	store := New()
	ctx := context.Background()

	day := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	mk := func(ref string, date time.Time) flight.Flight {
		f, err := store.CreateFlight(ctx, flight.Flight{
			Date:             date,
			ReferenceID:      ref,
			AccountReference: ref,
			Aircraft:         "OH-650",
			Duration:         decimal.NewFromInt(30),
		})
		if err != nil {
			t.Fatalf("create flight: %v", err)
		}
		return f
	}

	billed := mk("110002", day)
	mk("110001", day.AddDate(0, 0, 1))
	mk("110001", day)
	old := mk("110001", day.AddDate(0, 0, -30))

	if _, err := store.CreateEntry(ctx, ledger.Entry{
		AccountReference: "110002",
		Date:             day,
		Amount:           decimal.NewFromInt(18),
		Description:      "Lento, OH-650, 60 min",
		Additive:         true,
		FlightID:         billed.ID,
	}); err != nil {
		t.Fatalf("create entry: %v", err)
	}

	unbilled, err := store.ListUnbilledFlights(ctx, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("list unbilled: %v", err)
	}
	if len(unbilled) != 3 {
		t.Fatalf("unbilled = %d, want 3", len(unbilled))
	}
	if unbilled[0].ID != old.ID {
		t.Fatalf("unbilled not ordered by account then date")
	}

	bounded, err := store.ListUnbilledFlights(ctx, day, time.Time{})
	if err != nil {
		t.Fatalf("list unbilled bounded: %v", err)
	}
	if len(bounded) != 2 {
		t.Fatalf("bounded unbilled = %d, want 2", len(bounded))
	}
}
