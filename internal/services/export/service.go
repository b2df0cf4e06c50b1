// Package export writes the bookkeeping views of the ledger: account
// balances, raw entries and Kitsas vouchers.
package export

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/pik-ry/laskutin/internal/services/accounts"
	"github.com/pik-ry/laskutin/internal/storage"
	"github.com/pik-ry/laskutin/pkg/logger"
)

const dateLayout = "02.01.2006"

// Options carries the bookkeeping settings of the exports.
type Options struct {
	// ReceivablesAccount is the ledger account the Kitsas voucher books
	// member receivables on. Defaults to "1422".
	ReceivablesAccount string
	// ReceivablesName is the bookkeeping name of the receivables account.
	ReceivablesName string
	// LedgerAccountNames maps ledger account codes to their bookkeeping
	// names on the voucher contra rows.
	LedgerAccountNames map[string]string
	// FS receives the written files. Defaults to the OS filesystem.
	FS afero.Fs
}

// Service renders the CSV exports.
type Service struct {
	accounts *accounts.Service
	entries  storage.EntryStore
	members  storage.MemberStore
	opts     Options
	log      *logger.Logger
}

// New builds the export service on top of the account summaries.
func New(accountsSvc *accounts.Service, entries storage.EntryStore, members storage.MemberStore, opts Options, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("export")
	}
	if opts.ReceivablesAccount == "" {
		opts.ReceivablesAccount = "1422"
	}
	if opts.ReceivablesName == "" {
		opts.ReceivablesName = "Saamiset jäseniltä"
	}
	if opts.FS == nil {
		opts.FS = afero.NewOsFs()
	}
	return &Service{
		accounts: accountsSvc,
		entries:  entries,
		members:  members,
		opts:     opts,
		log:      log,
	}
}

// WriteAccounts exports every account with its balance, overdue date and
// last payment, ordered by balance from largest debt down. With validOnly
// only accounts backed by a member are written.
func (s *Service) WriteAccounts(ctx context.Context, path string, validOnly bool) (int, error) {
	summaries, err := s.accounts.ListSummaries(ctx, validOnly)
	if err != nil {
		return 0, err
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Balance.GreaterThan(summaries[j].Balance)
	})
	names := map[string]string{}
	members, err := s.members.ListMembers(ctx)
	if err != nil {
		return 0, err
	}
	for _, m := range members {
		names[m.Reference] = m.Name()
	}

	f, err := s.create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Tili", "Nimi", "Saldo", "Erääntynyt", "Viimeisin maksu"}); err != nil {
		return 0, err
	}
	for _, sum := range summaries {
		overdue, payment := "-", "-"
		if sum.OverdueSince != nil {
			overdue = sum.OverdueSince.Format(dateLayout)
		}
		if sum.LastPayment != nil {
			payment = sum.LastPayment.Format(dateLayout)
		}
		row := []string{
			sum.Account.Reference,
			names[sum.Account.MemberReference],
			sum.Balance.StringFixed(2),
			overdue,
			payment,
		}
		if err := w.Write(row); err != nil {
			return 0, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, err
	}

	s.log.Infof("exported %d accounts to %s", len(summaries), path)
	return len(summaries), nil
}

// WriteEntries exports account entries ordered by date. A non-zero year
// keeps only that year's entries and appends a Year column; positiveOnly
// keeps only charges.
func (s *Service) WriteEntries(ctx context.Context, path string, year int, positiveOnly bool) (int, error) {
	entries, err := s.entries.ListEntries(ctx, "")
	if err != nil {
		return 0, err
	}

	f, err := s.create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"Date", "Account ID", "Description", "Amount"}
	if year != 0 {
		header = append(header, "Year")
	}
	if err := w.Write(header); err != nil {
		return 0, err
	}

	written := 0
	for _, e := range entries {
		if year != 0 && e.Date.Year() != year {
			continue
		}
		if positiveOnly && !e.Amount.IsPositive() {
			continue
		}
		row := []string{
			e.Date.Format("2006-01-02"),
			e.AccountReference,
			e.Description,
			e.Amount.StringFixed(2),
		}
		if year != 0 {
			row = append(row, strconv.Itoa(e.Date.Year()))
		}
		if err := w.Write(row); err != nil {
			return 0, err
		}
		written++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, err
	}

	s.log.Infof("exported %d entries to %s", written, path)
	return written, nil
}

// WriteLedger exports entries as double rows for the Kitsas bookkeeping
// software, one voucher per entry: a receivables row and a contra row on
// the entry's ledger account. Entries without a ledger account are skipped
// with a warning. The year and date bounds are inclusive and combine.
func (s *Service) WriteLedger(ctx context.Context, path string, year int, start, end time.Time) (int, error) {
	entries, err := s.entries.ListEntries(ctx, "")
	if err != nil {
		return 0, err
	}

	f, err := s.create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = ';'
	if err := w.Write([]string{"Tosite", "Päivämäärä", "Nro", "Tili", "Debet", "Kredit", "Selite"}); err != nil {
		return 0, err
	}

	written := 0
	voucher := 0
	for _, e := range entries {
		if year != 0 && e.Date.Year() != year {
			continue
		}
		if !start.IsZero() && e.Date.Before(start) {
			continue
		}
		if !end.IsZero() && e.Date.After(end) {
			continue
		}
		if e.LedgerAccount == "" {
			s.log.Warnf("skipping entry %s with no ledger account", e.ID)
			continue
		}
		contraName, ok := s.opts.LedgerAccountNames[e.LedgerAccount]
		if !ok {
			s.log.Errorf("entry %s has unmapped ledger account %s", e.ID, e.LedgerAccount)
		}

		voucher++
		id := strconv.Itoa(voucher)
		date := e.Date.Format(dateLayout)
		amount := strings.ReplaceAll(e.Amount.Abs().StringFixed(2), ".", ",")
		debit, credit := "", ""
		if e.Amount.IsPositive() {
			debit = amount
		} else if e.Amount.IsNegative() {
			credit = amount
		}
		selite := fmt.Sprintf("Lentolasku, %s: %s", e.AccountReference, e.Description)

		if err := w.Write([]string{id, date, s.opts.ReceivablesAccount, s.opts.ReceivablesName, debit, credit, selite}); err != nil {
			return 0, err
		}
		if err := w.Write([]string{id, date, e.LedgerAccount, contraName, credit, debit, selite}); err != nil {
			return 0, err
		}
		written++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, err
	}

	s.log.Infof("exported %d vouchers to %s", written, path)
	return written, nil
}

// create opens the target file, gzip wrapped when the name ends .gz.
func (s *Service) create(path string) (io.WriteCloser, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := s.opts.FS.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := s.opts.FS.Create(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".gz") {
		return &gzipFile{Writer: gzip.NewWriter(f), file: f}, nil
	}
	return f, nil
}

type gzipFile struct {
	*gzip.Writer
	file afero.File
}

func (g *gzipFile) Close() error {
	if err := g.Writer.Close(); err != nil {
		g.file.Close()
		return err
	}
	return g.file.Close()
}
