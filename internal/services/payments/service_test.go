package payments

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pik-ry/laskutin/internal/domain/ledger"
	"github.com/pik-ry/laskutin/internal/storage/memory"
)

const clubIBAN = "FI4930003000100046"

// fixedLine builds a statement line of the given width with substrings
// placed at their column offsets.
func fixedLine(width int, parts map[int]string) string {
	buf := []byte(strings.Repeat(" ", width))
	for pos, s := range parts {
		copy(buf[pos:], s)
	}
	return string(buf)
}

func headerLine(iban string) string {
	return fixedLine(330, map[int]string{
		0:   "T00",
		292: iban + " NDEAFIHH",
	})
}

func paymentLine(date, sign, cents, reference string) string {
	return fixedLine(190, map[int]string{
		0:   "T10",
		30:  date,
		36:  date,
		42:  date,
		52:  "VIITESIIRTO",
		87:  sign,
		88:  cents,
		108: "J[RVINEN MAIJA",
		159: reference,
	})
}

func statement(lines ...string) Source {
	all := append([]string{headerLine(clubIBAN)}, lines...)
	return Source{Name: "statement.nda", Reader: strings.NewReader(strings.Join(all, "\n"))}
}

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	ctx := context.Background()
	for _, ref := range []string{"114983", "2345"} {
		if _, err := store.CreateAccount(ctx, ledger.Account{Reference: ref}); err != nil {
			t.Fatalf("create account %s: %v", ref, err)
		}
	}
	return New(store, store, Options{AccountIBANs: []string{clubIBAN}}, nil), store
}

func TestImportStatements(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	report, err := svc.ImportStatements(ctx, []Source{statement(
		paymentLine("240705", "+", "000000000000012050", "00000000000000114983"),
		// Bank charges are debits and never book against a member.
		paymentLine("240710", "-", "000000000000000999", "00000000000000002345"),
		// References outside the 4 or 6 digit shapes are not payer refs.
		paymentLine("240711", "+", "000000000000005000", "00000000000012345678"),
		paymentLine("240712", "+", "000000000000003000", "00000000000000000000"),
	)})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.Files != 1 || report.Transactions != 4 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Imported != 1 || report.Failed != 0 || report.Duplicates != 0 {
		t.Fatalf("unexpected counts: %+v", report)
	}

	entries, err := store.ListEntries(ctx, "114983")
	if err != nil || len(entries) != 1 {
		t.Fatalf("entries: %v %v", entries, err)
	}
	e := entries[0]
	if !e.Amount.Equal(decimal.New(-12050, -2)) {
		t.Fatalf("amount = %s, want -120.50", e.Amount)
	}
	if e.Description != "Maksu" || !e.Additive || !e.Visible {
		t.Fatalf("entry = %+v", e)
	}
	if !e.Date.Equal(time.Date(2024, 7, 5, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("date = %s", e.Date)
	}
	if len(e.Tags) != 1 || !strings.HasPrefix(e.Tags[0], "nda:") {
		t.Fatalf("tags = %v", e.Tags)
	}
}

func TestImportStatementsUnknownAccount(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	report, err := svc.ImportStatements(ctx, []Source{statement(
		paymentLine("240705", "+", "000000000000012050", "00000000000000999999"),
	)})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.Imported != 0 || report.Failed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(report.Warnings) != 1 || !strings.Contains(report.Warnings[0], "account 999999 not found") {
		t.Fatalf("warnings = %v", report.Warnings)
	}
	entries, _ := store.ListEntries(ctx, "")
	if len(entries) != 0 {
		t.Fatalf("entries booked for unknown account: %+v", entries)
	}
}

func TestImportStatementsDedup(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	line := paymentLine("240705", "+", "000000000000012050", "00000000000000114983")

	if _, err := svc.ImportStatements(ctx, []Source{statement(line)}); err != nil {
		t.Fatalf("first import: %v", err)
	}
	report, err := svc.ImportStatements(ctx, []Source{statement(line)})
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if report.Imported != 0 || report.Duplicates != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	entries, _ := store.ListEntries(ctx, "114983")
	if len(entries) != 1 {
		t.Fatalf("payment booked twice: %+v", entries)
	}
}

func TestImportStatementsOtherBankAccount(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	other := Source{Name: "other.nda", Reader: strings.NewReader(strings.Join([]string{
		headerLine("FI2112345600000785"),
		paymentLine("240705", "+", "000000000000012050", "00000000000000114983"),
	}, "\n"))}

	report, err := svc.ImportStatements(ctx, []Source{other})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.Imported != 0 || report.Failed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	entries, _ := store.ListEntries(ctx, "")
	if len(entries) != 0 {
		t.Fatalf("foreign statement booked: %+v", entries)
	}
}

func TestImportStatementsBadFileContinues(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	bad := Source{Name: "bad.nda", Reader: strings.NewReader(
		paymentLine("240705", "+", "000000000000012050", "00000000000000114983"),
	)}
	good := statement(paymentLine("240706", "+", "000000000000001800", "00000000000000114983"))

	report, err := svc.ImportStatements(ctx, []Source{bad, good})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.Files != 1 || report.Imported != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(report.Warnings) != 1 || !strings.Contains(report.Warnings[0], "bad.nda") {
		t.Fatalf("warnings = %v", report.Warnings)
	}
	entries, _ := store.ListEntries(ctx, "114983")
	if len(entries) != 1 {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestImportStatementsRequiresConfiguredAccounts(t *testing.T) {
	store := memory.New()
	svc := New(store, store, Options{}, nil)
	if _, err := svc.ImportStatements(context.Background(), nil); err == nil {
		t.Fatal("expected error without configured bank accounts")
	}
}
