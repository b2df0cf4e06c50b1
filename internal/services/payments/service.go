// Package payments books bank statement credits against member accounts.
package payments

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pik-ry/laskutin/internal/bank"
	"github.com/pik-ry/laskutin/internal/domain/ledger"
	"github.com/pik-ry/laskutin/internal/storage"
	"github.com/pik-ry/laskutin/pkg/logger"
)

// Options carries the statement import settings.
type Options struct {
	// AccountIBANs are the club bank accounts whose statements are
	// accepted. Transactions on any other account are ignored.
	AccountIBANs []string
}

// Source is one statement file to import.
type Source struct {
	Name   string
	Reader io.Reader
}

// Report sums up one statement import.
type Report struct {
	Files        int
	Transactions int
	Imported     int
	Failed       int
	Duplicates   int
	Warnings     []string
}

// Service imports NDA statement files and books the payments they carry.
type Service struct {
	accounts storage.AccountStore
	entries  storage.EntryStore
	parser   *bank.Parser
	opts     Options
	log      *logger.Logger
}

// New builds the payments service.
func New(accounts storage.AccountStore, entries storage.EntryStore, opts Options, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("payments")
	}
	return &Service{
		accounts: accounts,
		entries:  entries,
		parser:   bank.NewParser(log),
		opts:     opts,
		log:      log,
	}
}

// ImportStatements reads the statement sources and books one payment entry
// per credit on a club account that carries a 4 or 6 digit payer reference.
// Entries are tagged with the statement fingerprint; a transaction already
// booked is counted as a duplicate and skipped. A source that fails to
// parse is reported and the remaining sources still import.
func (s *Service) ImportStatements(ctx context.Context, sources []Source) (Report, error) {
	var report Report
	if len(s.opts.AccountIBANs) == 0 {
		return report, fmt.Errorf("no club bank accounts configured")
	}
	ibans := make(map[string]bool, len(s.opts.AccountIBANs))
	for _, iban := range s.opts.AccountIBANs {
		ibans[iban] = true
	}

	for _, src := range sources {
		txns, err := s.parser.Parse(src.Reader)
		if err != nil {
			warning := fmt.Sprintf("file %s: %v", src.Name, err)
			report.Warnings = append(report.Warnings, warning)
			s.log.Warnf("%s", warning)
			continue
		}
		report.Files++
		report.Transactions += len(txns)

		before := report.Imported
		for _, txn := range txns {
			if err := s.importTransaction(ctx, txn, ibans, &report); err != nil {
				return report, err
			}
		}
		s.log.Infof("file %s completed: %d payments imported", src.Name, report.Imported-before)
	}

	s.log.WithField("imported", report.Imported).
		WithField("failed", report.Failed).
		WithField("duplicates", report.Duplicates).
		Info("statement import completed")
	return report, nil
}

// importTransaction books one transaction, counting it on the report as
// imported, failed or duplicate. Transactions outside the filter fall
// through uncounted.
func (s *Service) importTransaction(ctx context.Context, txn bank.Transaction, ibans map[string]bool, report *Report) error {
	if !ibans[txn.IBAN] || txn.Cents <= 0 {
		return nil
	}
	if l := len(txn.Reference); l != 4 && l != 6 {
		return nil
	}

	warn := func(format string, args ...interface{}) {
		warning := fmt.Sprintf(format, args...)
		report.Warnings = append(report.Warnings, warning)
		s.log.Warnf("%s", warning)
	}

	if _, err := s.accounts.GetAccount(ctx, txn.Reference); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			warn("skipping payment: account %s not found (amount %s, date %s)",
				txn.Reference, txn.Amount().StringFixed(2), txn.Date.Format("2006-01-02"))
			report.Failed++
			return nil
		}
		return err
	}
	if txn.Date.IsZero() {
		warn("skipping payment: no ledger date (account %s, amount %s)",
			txn.Reference, txn.Amount().StringFixed(2))
		report.Failed++
		return nil
	}

	tag := "nda:" + txn.Fingerprint()
	if _, err := s.entries.GetEntryByTag(ctx, tag); err == nil {
		report.Duplicates++
		return nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	entry, err := s.entries.CreateEntry(ctx, ledger.Entry{
		AccountReference: txn.Reference,
		Date:             txn.Date,
		Amount:           txn.Amount().Neg(),
		Description:      "Maksu",
		Additive:         true,
		Tags:             []string{tag},
		Visible:          true,
	})
	if err != nil {
		return err
	}
	report.Imported++
	s.log.WithField("account", txn.Reference).
		WithField("amount", entry.Amount.StringFixed(2)).
		WithField("date", entry.Date.Format("2006-01-02")).
		Debug("payment booked")
	return nil
}
