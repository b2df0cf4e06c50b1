package cli

import (
	"bytes"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/pik-ry/laskutin/internal/config"
)

const testSettings = `
billing:
  rules_file: rules.yaml
invoicing:
  ledger_account_names:
    "3220": "Purjelentotulot"
logging:
  level: error
  output: discard
`

const testRules = `
rules:
  - kind: flight
    hourly_price: 18
    ledger_account: "3220"
`

const testMembers = `Sukunimi,Etunimi,PIK-viite,Sähköposti,Syntynyt
Mallikas,Matti,113444,matti@example.fi,1.2.1990
`

const testFlights = `Selite,Tapahtumapäivä,Maksajan viitenumero,Lähtöaika,Laskeutumisaika,Lentoaika_desimaalinen,Tarkoitus
650 koululento,2025-07-06,113444,12:00,13:00,60,HAR
`

// testState shares one globalState across commands so in-memory stores
// survive between invocations, the way one process run would.
type testState struct {
	gs     *globalState
	fs     afero.Fs
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newTestState(t *testing.T) *testState {
	t.Helper()
	t.Setenv(config.EnvPath, "")
	fsys := afero.NewMemMapFs()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	return &testState{
		gs:     newGlobalState(fsys, stdout, stderr),
		fs:     fsys,
		stdout: stdout,
		stderr: stderr,
	}
}

func (ts *testState) write(t *testing.T, path, content string) {
	t.Helper()
	if err := afero.WriteFile(ts.fs, path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func (ts *testState) run(args ...string) error {
	root := newRootCommand(ts.gs)
	root.SetArgs(args)
	return root.Execute()
}

func (ts *testState) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	ts.stdout.Reset()
	ts.stderr.Reset()
	if err := ts.run(args...); err != nil {
		t.Fatalf("laskutin %s: %v", strings.Join(args, " "), err)
	}
	return ts.stdout.String()
}

func TestVersion(t *testing.T) {
	ts := newTestState(t)
	out := ts.mustRun(t, "version")

	if !strings.Contains(out, "laskutin v"+Version) {
		t.Fatalf("version output %q misses the version", out)
	}
	if !strings.Contains(out, runtime.Version()) ||
		!strings.Contains(out, runtime.GOOS) ||
		!strings.Contains(out, runtime.GOARCH) {
		t.Fatalf("version output %q misses runtime details", out)
	}
}

func TestNamedConfigMustExist(t *testing.T) {
	ts := newTestState(t)
	err := ts.run("--config", "missing.yaml", "version")
	if err == nil || !strings.Contains(err.Error(), "missing.yaml") {
		t.Fatalf("expected missing config error, got %v", err)
	}
}

func TestImportProcessInvoiceFlow(t *testing.T) {
	ts := newTestState(t)
	ts.write(t, "laskutin.yaml", testSettings)
	ts.write(t, "rules.yaml", testRules)
	ts.write(t, "members.csv", testMembers)
	ts.write(t, "flights.csv", testFlights)

	out := ts.mustRun(t, "seed")
	if !strings.Contains(out, "seeded 8 aircraft") {
		t.Fatalf("unexpected seed output: %q", out)
	}

	out = ts.mustRun(t, "import", "members", "members.csv")
	if !strings.Contains(out, "imported 1 members (0 skipped, 1 accounts created)") {
		t.Fatalf("unexpected member import output: %q", out)
	}

	out = ts.mustRun(t, "import", "flights", "--dry-run", "flights.csv")
	if !strings.Contains(out, "dry run: 1 rows would import 1 flights") {
		t.Fatalf("unexpected dry run output: %q", out)
	}

	out = ts.mustRun(t, "import", "flights", "flights.csv")
	if !strings.Contains(out, "imported 1 flights from 1 files (0 duplicates, 0 skipped)") {
		t.Fatalf("unexpected flight import output: %q", out)
	}

	out = ts.mustRun(t, "process")
	if !strings.Contains(out, "billed 1 of 1 flights, 1 entries totaling 18.00") {
		t.Fatalf("unexpected process output: %q", out)
	}

	out = ts.mustRun(t, "invoice", "--all")
	if !strings.Contains(out, "1 invoices from 1 accounts (0 skipped)") {
		t.Fatalf("unexpected invoice output: %q", out)
	}

	out = ts.mustRun(t, "invoice", "--all", "--delete-drafts")
	if !strings.Contains(out, "1 stale drafts deleted") {
		t.Fatalf("expected draft replacement in output: %q", out)
	}

	out = ts.mustRun(t, "send", "--all", "--dry-run")
	if !strings.Contains(out, "dry run: 1 invoices rendered (0 failed)") {
		t.Fatalf("unexpected dry send output: %q", out)
	}

	out = ts.mustRun(t, "balances")
	if !strings.Contains(out, "113444") || !strings.Contains(out, "18.00") {
		t.Fatalf("unexpected balances output: %q", out)
	}
	if !strings.Contains(out, "1 accounts") {
		t.Fatalf("missing totals line in balances output: %q", out)
	}
}

func TestSendWithoutMailerFails(t *testing.T) {
	ts := newTestState(t)
	ts.write(t, "laskutin.yaml", testSettings)
	ts.write(t, "rules.yaml", testRules)
	ts.write(t, "members.csv", testMembers)
	ts.write(t, "flights.csv", testFlights)

	ts.mustRun(t, "seed")
	ts.mustRun(t, "import", "members", "members.csv")
	ts.mustRun(t, "import", "flights", "flights.csv")
	ts.mustRun(t, "process")
	ts.mustRun(t, "invoice", "--all")

	out := ts.mustRun(t, "send", "--all")
	if !strings.Contains(out, "sent 0 of 1 invoices (1 failed)") {
		t.Fatalf("unexpected send output: %q", out)
	}
	if !strings.Contains(ts.stderr.String(), "no mailer configured") {
		t.Fatalf("expected mailer failure on stderr, got %q", ts.stderr.String())
	}
}

func TestExportLedgerAndAccounts(t *testing.T) {
	ts := newTestState(t)
	ts.write(t, "laskutin.yaml", testSettings)
	ts.write(t, "rules.yaml", testRules)
	ts.write(t, "members.csv", testMembers)
	ts.write(t, "flights.csv", testFlights)

	ts.mustRun(t, "seed")
	ts.mustRun(t, "import", "members", "members.csv")
	ts.mustRun(t, "import", "flights", "flights.csv")
	ts.mustRun(t, "process")

	ts.mustRun(t, "export", "ledger", "-o", "ledger.csv", "--year", "2025")
	data, err := afero.ReadFile(ts.fs, "ledger.csv")
	if err != nil {
		t.Fatalf("read ledger export: %v", err)
	}
	ledger := string(data)
	if !strings.HasPrefix(ledger, "Tosite;Päivämäärä;Nro;Tili;Debet;Kredit;Selite") {
		t.Fatalf("unexpected ledger header: %q", ledger)
	}
	if !strings.Contains(ledger, "1422") || !strings.Contains(ledger, "3220") {
		t.Fatalf("ledger export misses the booking accounts: %q", ledger)
	}
	if !strings.Contains(ledger, "18,00") {
		t.Fatalf("ledger export misses the amount: %q", ledger)
	}

	ts.mustRun(t, "export", "accounts", "-o", "accounts.csv")
	data, err = afero.ReadFile(ts.fs, "accounts.csv")
	if err != nil {
		t.Fatalf("read accounts export: %v", err)
	}
	if !strings.Contains(string(data), "113444") || !strings.Contains(string(data), "Matti Mallikas") {
		t.Fatalf("unexpected accounts export: %q", string(data))
	}
}

func TestExportLedgerRequiresRange(t *testing.T) {
	ts := newTestState(t)
	err := ts.run("export", "ledger", "-o", "ledger.csv")
	if err == nil || !strings.Contains(err.Error(), "--year or --from/--to") {
		t.Fatalf("expected range error, got %v", err)
	}
}

func TestProcessWithoutRules(t *testing.T) {
	ts := newTestState(t)
	err := ts.run("--quiet", "process")
	if err == nil || !strings.Contains(err.Error(), "no billing rules configured") {
		t.Fatalf("expected missing rules error, got %v", err)
	}
}

func TestProcessRejectsBadDate(t *testing.T) {
	ts := newTestState(t)
	err := ts.run("process", "--from", "6.7.2025")
	if err == nil || !strings.Contains(err.Error(), "invalid date") {
		t.Fatalf("expected date error, got %v", err)
	}
}

func TestInvoiceNeedsExactlyOneSelector(t *testing.T) {
	ts := newTestState(t)
	for _, args := range [][]string{
		{"invoice"},
		{"invoice", "--all", "--account", "113444"},
		{"send"},
		{"send", "--all", "--account", "113444"},
	} {
		err := ts.run(args...)
		if err == nil || !strings.Contains(err.Error(), "exactly one of --account or --all") {
			t.Fatalf("laskutin %s: expected selector error, got %v", strings.Join(args, " "), err)
		}
	}
}

func TestImportBankNoMatches(t *testing.T) {
	ts := newTestState(t)
	err := ts.run("--quiet", "import", "bank", "statements/*.nda")
	if err == nil || !strings.Contains(err.Error(), "no statement files match") {
		t.Fatalf("expected no match error, got %v", err)
	}
}
