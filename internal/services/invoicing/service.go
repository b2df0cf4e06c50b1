// Package invoicing turns open account balances into invoices, renders the
// Finnish letter bodies and delivers them over SMTP.
package invoicing

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"text/template"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/afero"

	"github.com/pik-ry/laskutin/internal/domain/invoice"
	"github.com/pik-ry/laskutin/internal/domain/ledger"
	"github.com/pik-ry/laskutin/internal/storage"
	"github.com/pik-ry/laskutin/pkg/logger"
)

// Options carries the installation settings for invoice runs.
type Options struct {
	// ClubName, IBAN and BIC fill the payee lines of the letter.
	ClubName string
	IBAN     string
	BIC      string
	// DueDays is added to the invoice date to get the due date. Defaults
	// to 14.
	DueDays int
	// Template overrides the built-in letter body when non-empty.
	Template string
	// Subject overrides the built-in mail subject line when non-empty.
	Subject string
	// FS receives exported letters. Defaults to the OS filesystem.
	FS afero.Fs
}

// Service generates, renders and sends invoices.
type Service struct {
	invoices storage.InvoiceStore
	accounts storage.AccountStore
	entries  storage.EntryStore
	members  storage.MemberStore
	mailer   Mailer
	letter   *template.Template
	subject  *template.Template
	opts     Options
	log      *logger.Logger
}

// New builds the invoicing service. The mailer may be nil when the
// installation only generates and exports.
func New(invoices storage.InvoiceStore, accounts storage.AccountStore, entries storage.EntryStore, members storage.MemberStore, mailer Mailer, opts Options, log *logger.Logger) (*Service, error) {
	if log == nil {
		log = logger.NewDefault("invoicing")
	}
	if opts.DueDays <= 0 {
		opts.DueDays = 14
	}
	if opts.FS == nil {
		opts.FS = afero.NewOsFs()
	}
	letterText := opts.Template
	if letterText == "" {
		letterText = DefaultTemplate
	}
	letter, err := template.New("letter").Parse(letterText)
	if err != nil {
		return nil, fmt.Errorf("parse letter template: %w", err)
	}
	subjectText := opts.Subject
	if subjectText == "" {
		subjectText = DefaultSubject
	}
	subject, err := template.New("subject").Parse(subjectText)
	if err != nil {
		return nil, fmt.Errorf("parse subject template: %w", err)
	}
	return &Service{
		invoices: invoices,
		accounts: accounts,
		entries:  entries,
		members:  members,
		mailer:   mailer,
		letter:   letter,
		subject:  subject,
		opts:     opts,
		log:      log,
	}, nil
}

// Get returns one invoice by id.
func (s *Service) Get(ctx context.Context, id string) (invoice.Invoice, error) {
	return s.invoices.GetInvoice(ctx, id)
}

// List returns invoices filtered by account reference and status. Empty
// values match everything.
func (s *Service) List(ctx context.Context, reference string, status invoice.Status) ([]invoice.Invoice, error) {
	return s.invoices.ListInvoices(ctx, reference, status)
}

// Entries returns the entries attached to an invoice in date order.
func (s *Service) Entries(ctx context.Context, id string) ([]ledger.Entry, error) {
	return s.invoices.ListInvoiceEntries(ctx, id)
}

// Total sums the attached entry amounts of an invoice.
func (s *Service) Total(ctx context.Context, id string) (decimal.Decimal, error) {
	entries, err := s.invoices.ListInvoiceEntries(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return ledger.Quantize(total), nil
}

// GenerateReport sums up one invoice generation run.
type GenerateReport struct {
	RunID           string   `json:"run_id"`
	Accounts        int      `json:"accounts"`
	Created         int      `json:"created"`
	Skipped         int      `json:"skipped"`
	DraftsDeleted   int      `json:"drafts_deleted"`
	DetachedEntries int      `json:"detached_entries"`
	Exported        int      `json:"exported"`
	Failures        []string `json:"failures,omitempty"`
}

// Generate creates draft invoices for every selected account whose balance
// is positive. An empty reference selects all accounts. Accounts whose
// entries cannot back the balance are reported as failures and left alone.
// With deleteDrafts, every existing draft invoice is deleted first. With a
// non-empty exportDir, each created invoice is also rendered to
// <exportDir>/<reference>.txt.
func (s *Service) Generate(ctx context.Context, reference string, deleteDrafts bool, exportDir string) (GenerateReport, error) {
	now := time.Now().UTC()
	run := uuid.New()
	report := GenerateReport{RunID: hex.EncodeToString(run[:2])}

	if deleteDrafts {
		drafts, err := s.invoices.ListInvoices(ctx, "", invoice.StatusDraft)
		if err != nil {
			return report, err
		}
		for _, d := range drafts {
			detached, err := s.invoices.DeleteInvoice(ctx, d.ID)
			if err != nil {
				return report, err
			}
			report.DraftsDeleted++
			report.DetachedEntries += detached
		}
		if report.DraftsDeleted > 0 {
			s.log.WithField("invoices", report.DraftsDeleted).
				WithField("entries", report.DetachedEntries).
				Info("draft invoices deleted")
		}
	}

	var accts []ledger.Account
	if reference != "" {
		acct, err := s.accounts.GetAccount(ctx, reference)
		if err != nil {
			return report, err
		}
		accts = []ledger.Account{acct}
	} else {
		var err error
		accts, err = s.accounts.ListAccounts(ctx)
		if err != nil {
			return report, err
		}
	}
	report.Accounts = len(accts)

	if exportDir != "" {
		if err := s.opts.FS.MkdirAll(exportDir, 0o755); err != nil {
			return report, fmt.Errorf("export dir: %w", err)
		}
	}

	for _, acct := range accts {
		if err := s.generateOne(ctx, acct, now, report.RunID, exportDir, &report); err != nil {
			return report, err
		}
	}

	s.log.Infof("invoice run %s created %d invoices for %d accounts (%d skipped, %d failed)",
		report.RunID, report.Created, report.Accounts, report.Skipped, len(report.Failures))
	return report, nil
}

func (s *Service) generateOne(ctx context.Context, acct ledger.Account, now time.Time, runID, exportDir string, report *GenerateReport) error {
	entries, err := s.entries.ListEntries(ctx, acct.Reference)
	if err != nil {
		return err
	}
	lines, balance := ledger.Balance(entries)
	if !balance.IsPositive() {
		report.Skipped++
		return nil
	}

	window := ledger.InvoiceWindow(lines)
	if len(window) == 0 {
		report.Failures = append(report.Failures,
			fmt.Sprintf("account %s: balance %s but no entries to attach", acct.Reference, balance.StringFixed(2)))
		return nil
	}
	total := decimal.Zero
	for _, e := range window {
		total = total.Add(e.Amount)
	}
	total = ledger.Quantize(total)
	if !total.Equal(ledger.Quantize(balance)) {
		report.Failures = append(report.Failures,
			fmt.Sprintf("account %s: invoice total %s does not match balance %s", acct.Reference, total.StringFixed(2), balance.StringFixed(2)))
		return nil
	}

	due := now.AddDate(0, 0, s.opts.DueDays)
	created, err := s.invoices.CreateInvoice(ctx, invoice.Invoice{
		ID:               uuid.NewString(),
		Number:           fmt.Sprintf("INV-%s-%s-%s", now.Format("20060102"), acct.Reference, runID),
		AccountReference: acct.Reference,
		Status:           invoice.StatusDraft,
		CreatedAt:        now,
		DueDate:          &due,
	})
	if err != nil {
		return err
	}
	ids := make([]string, len(window))
	for i, e := range window {
		ids[i] = e.ID
	}
	if err := s.invoices.AttachEntries(ctx, created.ID, ids); err != nil {
		return err
	}
	report.Created++
	s.log.WithField("invoice", created.Number).
		WithField("account", acct.Reference).
		WithField("total", total.StringFixed(2)).
		Info("invoice created")

	if exportDir != "" {
		body, err := s.Letter(ctx, created)
		if err != nil {
			return err
		}
		path := filepath.Join(exportDir, acct.Reference+".txt")
		if err := afero.WriteFile(s.opts.FS, path, []byte(body), 0o644); err != nil {
			return fmt.Errorf("export invoice %s: %w", created.Number, err)
		}
		report.Exported++
	}
	return nil
}

// Delete removes a draft invoice and detaches its entries. Non-draft
// invoices are refused.
func (s *Service) Delete(ctx context.Context, id string) error {
	inv, err := s.invoices.GetInvoice(ctx, id)
	if err != nil {
		return err
	}
	if inv.Status != invoice.StatusDraft {
		return fmt.Errorf("invoice %s is %s: %w", inv.Number, inv.Status, storage.ErrConflict)
	}
	detached, err := s.invoices.DeleteInvoice(ctx, id)
	if err != nil {
		return err
	}
	if detached > 0 {
		s.log.WithField("invoice", inv.Number).
			WithField("entries", detached).
			Warn("deleted invoice had entries attached")
	}
	s.log.WithField("invoice", inv.Number).Info("invoice deleted")
	return nil
}

// SetStatus moves an invoice along its lifecycle. Moving to sent stamps
// SentAt.
func (s *Service) SetStatus(ctx context.Context, id string, to invoice.Status) (invoice.Invoice, error) {
	if !to.Valid() {
		return invoice.Invoice{}, fmt.Errorf("unknown status %q", to)
	}
	inv, err := s.invoices.GetInvoice(ctx, id)
	if err != nil {
		return invoice.Invoice{}, err
	}
	if !invoice.ValidTransition(inv.Status, to) {
		return invoice.Invoice{}, fmt.Errorf("cannot move invoice %s from %s to %s: %w", inv.Number, inv.Status, to, storage.ErrConflict)
	}
	inv.Status = to
	if to == invoice.StatusSent && inv.SentAt == nil {
		now := time.Now().UTC()
		inv.SentAt = &now
	}
	updated, err := s.invoices.UpdateInvoice(ctx, inv)
	if err != nil {
		return invoice.Invoice{}, err
	}
	s.log.WithField("invoice", updated.Number).
		WithField("status", string(updated.Status)).
		Info("invoice status updated")
	return updated, nil
}

// Letter renders the invoice letter body. The account balance on the letter
// is the live balance at render time, the total covers the attached entries.
func (s *Service) Letter(ctx context.Context, inv invoice.Invoice) (string, error) {
	acct, err := s.accounts.GetAccount(ctx, inv.AccountReference)
	if err != nil {
		return "", err
	}
	all, err := s.entries.ListEntries(ctx, acct.Reference)
	if err != nil {
		return "", err
	}
	_, balance := ledger.Balance(all)
	attached, err := s.invoices.ListInvoiceEntries(ctx, inv.ID)
	if err != nil {
		return "", err
	}
	var firstName string
	if acct.MemberReference != "" {
		mem, err := s.members.GetMember(ctx, acct.MemberReference)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return "", err
		}
		firstName = mem.FirstName
	}
	var buf bytes.Buffer
	if err := s.letter.Execute(&buf, s.letterData(inv, balance, attached, firstName)); err != nil {
		return "", fmt.Errorf("render letter: %w", err)
	}
	return buf.String(), nil
}

func (s *Service) renderSubject(inv invoice.Invoice) (string, error) {
	var buf bytes.Buffer
	err := s.subject.Execute(&buf, struct {
		Date      string
		Reference string
	}{
		Date:      inv.CreatedAt.Format("01/2006"),
		Reference: inv.AccountReference,
	})
	if err != nil {
		return "", fmt.Errorf("render subject: %w", err)
	}
	return buf.String(), nil
}
