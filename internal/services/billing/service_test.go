package billing

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	rules "github.com/pik-ry/laskutin/internal/billing"
	"github.com/pik-ry/laskutin/internal/domain/flight"
	"github.com/pik-ry/laskutin/internal/domain/ledger"
	"github.com/pik-ry/laskutin/internal/domain/member"
	"github.com/pik-ry/laskutin/internal/storage/memory"
)

func newService(t *testing.T, root rules.Rule) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	if _, err := store.CreateAccount(context.Background(), ledger.Account{Reference: "113444", Name: "Matti Mallikas"}); err != nil {
		t.Fatalf("create account: %v", err)
	}
	engine := rules.NewEngine(root, []string{"0"}, nil)
	return New(store, store, store, engine, nil), store
}

// thisYear keeps test flights inside the cap year the service seeds from.
func thisYear(month time.Month, d int) time.Time {
	return time.Date(time.Now().UTC().Year(), month, d, 0, 0, 0, 0, time.UTC)
}

func newFlight(ref, reg string, day time.Time, minutes int64) flight.Flight {
	takeoff := day.Add(12 * time.Hour)
	return flight.Flight{
		Date:             day,
		ReferenceID:      ref,
		AccountReference: ref,
		Aircraft:         reg,
		TakeoffTime:      takeoff,
		LandingTime:      takeoff.Add(time.Duration(minutes) * time.Minute),
		LandingCount:     1,
		Duration:         decimal.NewFromInt(minutes),
	}
}

func TestProcessFlights(t *testing.T) {
	svc, store := newService(t, rules.FlightRule{
		PricePerHour:  decimal.NewFromInt(18),
		Hourly:        true,
		LedgerAccount: "3220",
	})
	ctx := context.Background()

	noBilling := newFlight("0", "OH-650", thisYear(6, 3), 20)
	noBilling.AccountReference = ""
	for _, f := range []flight.Flight{
		newFlight("113444", "OH-650", thisYear(6, 1), 60),
		newFlight("113444", "OH-650", thisYear(6, 2), 30),
		noBilling,
	} {
		if _, err := store.CreateFlight(ctx, f); err != nil {
			t.Fatalf("create flight: %v", err)
		}
	}

	report, err := svc.ProcessFlights(ctx, time.Time{}, time.Time{}, false)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if report.Flights != 3 || report.Billed != 2 || report.Skipped != 1 || report.Entries != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if !report.Total.Equal(decimal.RequireFromString("27")) {
		t.Fatalf("got total %s, want 27", report.Total)
	}

	entries, err := store.ListEntries(ctx, "113444")
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	for _, e := range entries {
		if e.FlightID == "" {
			t.Fatalf("entry not linked to its flight: %+v", e)
		}
		if e.LedgerAccount != "3220" {
			t.Fatalf("got ledger account %q, want 3220", e.LedgerAccount)
		}
	}

	// A re-run only sees the still-unbilled no-billing flight and books
	// nothing new.
	again, err := svc.ProcessFlights(ctx, time.Time{}, time.Time{}, false)
	if err != nil {
		t.Fatalf("re-run: %v", err)
	}
	if again.Flights != 1 || again.Entries != 0 || again.Skipped != 1 {
		t.Fatalf("unexpected re-run report: %+v", again)
	}
}

func TestProcessFlightsDryRun(t *testing.T) {
	svc, store := newService(t, rules.FlightRule{PricePerHour: decimal.NewFromInt(18), Hourly: true})
	ctx := context.Background()

	if _, err := store.CreateFlight(ctx, newFlight("113444", "OH-650", thisYear(6, 1), 60)); err != nil {
		t.Fatalf("create flight: %v", err)
	}

	report, err := svc.ProcessFlights(ctx, time.Time{}, time.Time{}, true)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !report.DryRun || report.Entries != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	entries, err := store.ListEntries(ctx, "113444")
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("dry run wrote entries: %+v", entries)
	}
	unbilled, err := store.ListUnbilledFlights(ctx, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("list unbilled: %v", err)
	}
	if len(unbilled) != 1 {
		t.Fatalf("dry run consumed the flight: %+v", unbilled)
	}
}

func TestProcessFlightsSeedsCapFromStore(t *testing.T) {
	root := rules.CappedRule{
		ID:  "kalusto",
		Cap: decimal.NewFromInt(30),
		Inner: rules.FlightRule{
			PricePerHour: decimal.NewFromInt(20),
			Hourly:       true,
		},
	}
	svc, store := newService(t, root)
	ctx := context.Background()

	if _, err := store.CreateFlight(ctx, newFlight("113444", "OH-650", thisYear(6, 1), 60)); err != nil {
		t.Fatalf("create flight: %v", err)
	}
	if _, err := svc.ProcessFlights(ctx, time.Time{}, time.Time{}, false); err != nil {
		t.Fatalf("first run: %v", err)
	}

	if _, err := store.CreateFlight(ctx, newFlight("113444", "OH-650", thisYear(6, 5), 60)); err != nil {
		t.Fatalf("create flight: %v", err)
	}
	if _, err := svc.ProcessFlights(ctx, time.Time{}, time.Time{}, false); err != nil {
		t.Fatalf("second run: %v", err)
	}

	entries, err := store.ListEntries(ctx, "113444")
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if !entries[0].Amount.Equal(decimal.RequireFromString("20")) {
		t.Fatalf("first charge %s, want 20", entries[0].Amount)
	}
	// The second run starts from the stored 20 and may only book up to the
	// 30 cap.
	if !entries[1].Amount.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("second charge %s, want 10", entries[1].Amount)
	}
	if !strings.Contains(entries[1].Description, "rajattu hintakattoon") {
		t.Fatalf("cap note missing from %q", entries[1].Description)
	}
	for _, e := range entries {
		if !e.HasTag(rules.CapTag("kalusto")) {
			t.Fatalf("cap tag missing from %+v", e)
		}
	}
}

func TestProcessFlightsBirthDates(t *testing.T) {
	svc, store := newService(t, rules.FlightRule{
		PricePerHour: decimal.NewFromInt(10),
		Hourly:       true,
		Filters:      []rules.Filter{rules.BirthDateFilter{MaxAge: 25}},
	})
	ctx := context.Background()

	born := time.Now().UTC().AddDate(-20, 0, 0)
	if _, err := store.CreateMember(ctx, member.Member{
		Reference: "113444",
		FirstName: "Nuori",
		LastName:  "Jäsen",
		BirthDate: &born,
		Active:    true,
	}); err != nil {
		t.Fatalf("create member: %v", err)
	}
	if _, err := store.CreateFlight(ctx, newFlight("113444", "OH-650", thisYear(6, 1), 60)); err != nil {
		t.Fatalf("create flight: %v", err)
	}

	report, err := svc.ProcessFlights(ctx, time.Time{}, time.Time{}, false)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if report.Billed != 1 || len(report.Unmatched) != 0 {
		t.Fatalf("young member not billed: %+v", report)
	}
}

func TestRefundFlight(t *testing.T) {
	svc, store := newService(t, rules.FlightRule{})
	ctx := context.Background()

	f, err := store.CreateFlight(ctx, newFlight("113444", "OH-650", thisYear(6, 1), 60))
	if err != nil {
		t.Fatalf("create flight: %v", err)
	}
	seed := []ledger.Entry{
		{AccountReference: "113444", Date: f.Date, Amount: decimal.RequireFromString("18"), Description: "Lento", Additive: true, FlightID: f.ID, Tags: []string{rules.CapTag("pursi")}, Visible: true},
		{AccountReference: "113444", Date: f.Date, Amount: decimal.RequireFromString("6"), Description: "Koululentomaksu", Additive: true, FlightID: f.ID, Visible: true},
		{AccountReference: "113444", Date: f.Date, Amount: decimal.RequireFromString("100"), Description: "Saldo", Additive: false, FlightID: f.ID, Visible: true},
	}
	for _, e := range seed {
		if _, err := store.CreateEntry(ctx, e); err != nil {
			t.Fatalf("create entry: %v", err)
		}
	}

	refund, err := svc.RefundFlight(ctx, f.ID)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if !refund.Amount.Equal(decimal.RequireFromString("-24")) {
		t.Fatalf("got refund %s, want -24", refund.Amount)
	}
	if !strings.HasPrefix(refund.Description, "Korjaus: Hyvitys Lento OH-650") {
		t.Fatalf("unexpected description %q", refund.Description)
	}
	if !refund.HasTag(rules.CapTag("pursi")) {
		t.Fatal("refund lost the cap tag")
	}

	reloaded, err := store.GetFlight(ctx, f.ID)
	if err != nil {
		t.Fatalf("get flight: %v", err)
	}
	if reloaded.RefundEntryID != refund.ID || !reloaded.Refunded() {
		t.Fatalf("refund not linked: %+v", reloaded)
	}

	if _, err := svc.RefundFlight(ctx, f.ID); err == nil {
		t.Fatal("expected error on double refund")
	}

	bare, err := store.CreateFlight(ctx, newFlight("113444", "OH-650", thisYear(6, 2), 30))
	if err != nil {
		t.Fatalf("create flight: %v", err)
	}
	if _, err := svc.RefundFlight(ctx, bare.ID); err == nil {
		t.Fatal("expected error for flight without charges")
	}
}
