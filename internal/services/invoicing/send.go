package invoicing

import (
	"context"
	"fmt"
	"time"

	"github.com/pik-ry/laskutin/internal/domain/invoice"
)

// SendReport sums up one delivery run.
type SendReport struct {
	Invoices int
	Sent     int
	Failures []string
	DryRun   bool
}

// Send delivers the draft invoices of the selected accounts. An empty
// reference selects all accounts. A failing invoice stays draft and is
// reported; the run continues. With dryRun the letters are rendered but
// nothing is sent or updated.
func (s *Service) Send(ctx context.Context, reference string, dryRun bool) (SendReport, error) {
	report := SendReport{DryRun: dryRun}
	if reference != "" {
		if _, err := s.accounts.GetAccount(ctx, reference); err != nil {
			return report, err
		}
	}
	drafts, err := s.invoices.ListInvoices(ctx, reference, invoice.StatusDraft)
	if err != nil {
		return report, err
	}
	if len(drafts) == 0 {
		return report, fmt.Errorf("no draft invoices to send")
	}
	report.Invoices = len(drafts)

	for _, inv := range drafts {
		if err := s.deliver(ctx, inv, dryRun); err != nil {
			report.Failures = append(report.Failures, fmt.Sprintf("invoice %s: %v", inv.Number, err))
			s.log.WithField("invoice", inv.Number).Warnf("delivery failed: %v", err)
			continue
		}
		if !dryRun {
			report.Sent++
		}
	}

	if dryRun {
		s.log.Infof("dry run rendered %d invoices (%d failed)", report.Invoices-len(report.Failures), len(report.Failures))
	} else {
		s.log.Infof("sent %d of %d invoices (%d failed)", report.Sent, report.Invoices, len(report.Failures))
	}
	return report, nil
}

func (s *Service) deliver(ctx context.Context, inv invoice.Invoice, dryRun bool) error {
	acct, err := s.accounts.GetAccount(ctx, inv.AccountReference)
	if err != nil {
		return err
	}
	if acct.MemberReference == "" {
		return fmt.Errorf("account %s has no member", acct.Reference)
	}
	mem, err := s.members.GetMember(ctx, acct.MemberReference)
	if err != nil {
		return err
	}
	if mem.Email == "" {
		return fmt.Errorf("account %s has no email address", acct.Reference)
	}
	body, err := s.Letter(ctx, inv)
	if err != nil {
		return err
	}
	subject, err := s.renderSubject(inv)
	if err != nil {
		return err
	}

	if dryRun {
		s.log.WithField("invoice", inv.Number).
			WithField("to", mem.Email).
			Info("dry run, letter rendered")
		return nil
	}
	if s.mailer == nil {
		return fmt.Errorf("no mailer configured")
	}
	if err := s.mailer.Send(ctx, Message{To: mem.Email, Subject: subject, Body: body}); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	now := time.Now().UTC()
	inv.Status = invoice.StatusSent
	inv.SentAt = &now
	if _, err := s.invoices.UpdateInvoice(ctx, inv); err != nil {
		return err
	}
	s.log.WithField("invoice", inv.Number).
		WithField("to", mem.Email).
		Info("invoice sent")
	return nil
}
