package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type capKey struct {
	capID   string
	account string
}

// Context carries the state one billing run shares across rules: member
// birth dates for age filters and the running usage of each price cap.
// Cap usage starts from whatever SeedCap reports for the account so runs
// later in the season keep counting where earlier runs left off.
type Context struct {
	Now        time.Time
	BirthDates map[string]time.Time

	// SeedCap returns the amount already accumulated against a cap for an
	// account before this run. Nil means start from zero.
	SeedCap func(capID, accountReference string) decimal.Decimal

	capUsed  map[capKey]decimal.Decimal
	warnings []string
}

// NewContext creates a run context anchored at now.
func NewContext(now time.Time) *Context {
	return &Context{
		Now:        now,
		BirthDates: make(map[string]time.Time),
		capUsed:    make(map[capKey]decimal.Decimal),
	}
}

// BirthDate returns the birth date recorded for an account's member.
func (c *Context) BirthDate(accountReference string) (time.Time, bool) {
	t, ok := c.BirthDates[accountReference]
	return t, ok
}

// CapUsed returns how much of a cap the account has used so far.
func (c *Context) CapUsed(capID, accountReference string) decimal.Decimal {
	key := capKey{capID, accountReference}
	if v, ok := c.capUsed[key]; ok {
		return v
	}
	v := decimal.Zero
	if c.SeedCap != nil {
		v = c.SeedCap(capID, accountReference)
	}
	c.capUsed[key] = v
	return v
}

// AddCapUsed records additional usage against a cap.
func (c *Context) AddCapUsed(capID, accountReference string, amount decimal.Decimal) {
	key := capKey{capID, accountReference}
	c.capUsed[key] = c.CapUsed(capID, accountReference).Add(amount)
}

// Warnf records a warning for the run report.
func (c *Context) Warnf(format string, args ...interface{}) {
	c.warnings = append(c.warnings, fmt.Sprintf(format, args...))
}

// Warnings returns the warnings recorded so far.
func (c *Context) Warnings() []string {
	return c.warnings
}
