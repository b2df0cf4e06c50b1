package ledger

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Quantize rounds an amount to two decimals, half up.
func Quantize(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// SortEntries orders entries the way balances are computed: by date, then
// creation time, then id.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// Balance computes the running balance line per entry and the final account
// balance. Entries must already be in balance order. An additive entry
// accumulates; a non-additive entry sets the balance to its amount.
func Balance(entries []Entry) ([]BalanceLine, decimal.Decimal) {
	lines := make([]BalanceLine, 0, len(entries))
	current := decimal.Zero

	for _, e := range entries {
		if e.Additive {
			current = current.Add(e.Amount)
		} else {
			current = e.Amount
		}
		lines = append(lines, BalanceLine{Entry: e, Balance: current})
	}

	return lines, Quantize(current)
}

// OverdueSince returns the date the account's open debt started: the date
// of the first line with a positive running balance. It returns nil when
// there are no lines or the final balance is not positive.
func OverdueSince(lines []BalanceLine) *time.Time {
	if len(lines) == 0 {
		return nil
	}
	if lines[len(lines)-1].Balance.Sign() <= 0 {
		return nil
	}
	for _, line := range lines {
		if line.Balance.Sign() > 0 {
			d := line.Entry.Date
			return &d
		}
	}
	d := lines[0].Entry.Date
	return &d
}

// LastPayment returns the date of the newest payment on the account:
// a negative entry whose description mentions "Maksu". Nil when the account
// has never been paid.
func LastPayment(entries []Entry) *time.Time {
	var latest *time.Time
	for i := range entries {
		e := entries[i]
		if e.Amount.Sign() >= 0 {
			continue
		}
		if !strings.Contains(strings.ToLower(e.Description), "maksu") {
			continue
		}
		if latest == nil || e.Date.After(*latest) {
			d := e.Date
			latest = &d
		}
	}
	return latest
}

// InvoiceWindow selects the entries an invoice for the current balance must
// cover. Walking the lines backwards, it stops before a line that sat at
// exactly zero, or right after including a non-additive entry, whose reset
// already carries the earlier history. The result is in chronological order.
func InvoiceWindow(lines []BalanceLine) []Entry {
	var window []Entry
	for i := len(lines) - 1; i >= 0; i-- {
		if lines[i].Balance.IsZero() {
			break
		}
		window = append(window, lines[i].Entry)
		if !lines[i].Entry.Additive {
			break
		}
	}
	for i, j := 0, len(window)-1; i < j; i, j = i+1, j-1 {
		window[i], window[j] = window[j], window[i]
	}
	return window
}
