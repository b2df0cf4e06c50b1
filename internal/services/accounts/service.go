// Package accounts serves ledger accounts: entry history, running balances
// and the summary figures the exports and invoices build on.
package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pik-ry/laskutin/internal/domain/ledger"
	"github.com/pik-ry/laskutin/internal/storage"
	"github.com/pik-ry/laskutin/pkg/logger"
)

// Service answers account and entry queries on top of the stores.
type Service struct {
	accounts storage.AccountStore
	entries  storage.EntryStore
	log      *logger.Logger
}

// New builds the account service.
func New(accounts storage.AccountStore, entries storage.EntryStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("accounts")
	}
	return &Service{accounts: accounts, entries: entries, log: log}
}

// Get returns one account by reference.
func (s *Service) Get(ctx context.Context, reference string) (ledger.Account, error) {
	return s.accounts.GetAccount(ctx, reference)
}

// List returns every account.
func (s *Service) List(ctx context.Context) ([]ledger.Account, error) {
	return s.accounts.ListAccounts(ctx)
}

// AddEntry validates and stores a manual ledger entry.
func (s *Service) AddEntry(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	if e.AccountReference == "" {
		return ledger.Entry{}, fmt.Errorf("account reference is required")
	}
	if e.Date.IsZero() {
		return ledger.Entry{}, fmt.Errorf("entry date is required")
	}
	if e.Description == "" {
		return ledger.Entry{}, fmt.Errorf("description is required")
	}
	if _, err := s.accounts.GetAccount(ctx, e.AccountReference); err != nil {
		return ledger.Entry{}, err
	}
	e.Amount = ledger.Quantize(e.Amount)

	created, err := s.entries.CreateEntry(ctx, e)
	if err != nil {
		return ledger.Entry{}, err
	}
	s.log.WithField("account", created.AccountReference).
		WithField("amount", created.Amount.StringFixed(2)).
		Info("entry added")
	return created, nil
}

// GetEntry returns one entry by id.
func (s *Service) GetEntry(ctx context.Context, id string) (ledger.Entry, error) {
	return s.entries.GetEntry(ctx, id)
}

// DeleteEntry removes an entry. The store refuses when the entry is attached
// to an invoice.
func (s *Service) DeleteEntry(ctx context.Context, id string) error {
	if err := s.entries.DeleteEntry(ctx, id); err != nil {
		return err
	}
	s.log.WithField("entry", id).Info("entry deleted")
	return nil
}

// BalanceLines returns the account's running balance lines. Non-zero bounds
// trim the returned window; the balances themselves are always computed over
// the full history.
func (s *Service) BalanceLines(ctx context.Context, reference string, from, to time.Time) ([]ledger.BalanceLine, error) {
	if _, err := s.accounts.GetAccount(ctx, reference); err != nil {
		return nil, err
	}
	entries, err := s.entries.ListEntries(ctx, reference)
	if err != nil {
		return nil, err
	}
	lines, _ := ledger.Balance(entries)
	if from.IsZero() && to.IsZero() {
		return lines, nil
	}

	window := lines[:0]
	for _, line := range lines {
		if !from.IsZero() && line.Entry.Date.Before(from) {
			continue
		}
		if !to.IsZero() && line.Entry.Date.After(to) {
			continue
		}
		window = append(window, line)
	}
	return window, nil
}

// Balance returns the account's current balance.
func (s *Service) Balance(ctx context.Context, reference string) (decimal.Decimal, error) {
	if _, err := s.accounts.GetAccount(ctx, reference); err != nil {
		return decimal.Zero, err
	}
	entries, err := s.entries.ListEntries(ctx, reference)
	if err != nil {
		return decimal.Zero, err
	}
	_, balance := ledger.Balance(entries)
	return balance, nil
}

// Summary is one account with its headline figures.
type Summary struct {
	Account      ledger.Account  `json:"account"`
	Balance      decimal.Decimal `json:"balance"`
	OverdueSince *time.Time      `json:"overdue_since,omitempty"`
	LastPayment  *time.Time      `json:"last_payment,omitempty"`
}

// Summarize returns the headline figures for one account.
func (s *Service) Summarize(ctx context.Context, reference string) (Summary, error) {
	acct, err := s.accounts.GetAccount(ctx, reference)
	if err != nil {
		return Summary{}, err
	}
	entries, err := s.entries.ListEntries(ctx, reference)
	if err != nil {
		return Summary{}, err
	}
	return summarize(acct, entries), nil
}

// ListSummaries returns the figures for every account in reference order.
// validOnly drops accounts that do not belong to a member.
func (s *Service) ListSummaries(ctx context.Context, validOnly bool) ([]Summary, error) {
	accts, err := s.accounts.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := s.entries.ListEntries(ctx, "")
	if err != nil {
		return nil, err
	}
	byAccount := make(map[string][]ledger.Entry, len(accts))
	for _, e := range entries {
		byAccount[e.AccountReference] = append(byAccount[e.AccountReference], e)
	}

	summaries := make([]Summary, 0, len(accts))
	for _, acct := range accts {
		if validOnly && acct.MemberReference == "" {
			continue
		}
		summaries = append(summaries, summarize(acct, byAccount[acct.Reference]))
	}
	return summaries, nil
}

func summarize(acct ledger.Account, entries []ledger.Entry) Summary {
	lines, balance := ledger.Balance(entries)
	return Summary{
		Account:      acct,
		Balance:      balance,
		OverdueSince: ledger.OverdueSince(lines),
		LastPayment:  ledger.LastPayment(entries),
	}
}

// Totals aggregates balances club-wide. Positive balances count as open
// debt, negative ones as credit held by the member.
type Totals struct {
	Accounts int
	Balance  decimal.Decimal
	Debt     decimal.Decimal
	Credit   decimal.Decimal
}

// SumTotals folds account summaries into club-level totals.
func SumTotals(summaries []Summary) Totals {
	t := Totals{Accounts: len(summaries)}
	for _, sum := range summaries {
		t.Balance = t.Balance.Add(sum.Balance)
		if sum.Balance.Sign() > 0 {
			t.Debt = t.Debt.Add(sum.Balance)
		} else {
			t.Credit = t.Credit.Add(sum.Balance)
		}
	}
	return t
}
