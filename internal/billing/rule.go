package billing

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/shopspring/decimal"

	"github.com/pik-ry/laskutin/internal/domain/flight"
	"github.com/pik-ry/laskutin/internal/domain/ledger"
	"github.com/pik-ry/laskutin/pkg/logger"
)

// Rule prices a flight into zero or more ledger entries.
type Rule interface {
	Apply(f flight.Flight, ctx *Context) []ledger.Entry
}

// DefaultFlightTemplate renders the standard flight charge description.
const DefaultFlightTemplate = "Lento, {{.Registration}}, {{.Duration}} min"

var defaultTemplate = template.Must(template.New("flight").Parse(DefaultFlightTemplate))

// TemplateData is what flight description templates render against.
// Duration is whole minutes.
type TemplateData struct {
	Registration string
	Duration     int64
	Date         string
	Purpose      string
	Comment      string
	Surcharge    string
}

// FlightRule produces one charge for a flight that passes all its filters.
// Hourly rules price duration at PricePerHour per 60 minutes; flat rules
// charge FlatPrice regardless of duration.
type FlightRule struct {
	PricePerHour  decimal.Decimal
	FlatPrice     decimal.Decimal
	Hourly        bool
	LedgerAccount string
	Template      *template.Template
	Filters       []Filter
}

func (r FlightRule) Apply(f flight.Flight, ctx *Context) []ledger.Entry {
	if !matchAll(r.Filters, f, ctx) {
		return nil
	}

	amount := r.FlatPrice
	if r.Hourly {
		amount = f.Duration.Mul(r.PricePerHour).Div(decimal.NewFromInt(60))
	}
	amount = ledger.Quantize(amount)

	tmpl := r.Template
	if tmpl == nil {
		tmpl = defaultTemplate
	}
	var buf strings.Builder
	err := tmpl.Execute(&buf, TemplateData{
		Registration: f.Aircraft,
		Duration:     f.Duration.IntPart(),
		Date:         f.Date.Format("02.01.2006"),
		Purpose:      f.Purpose,
		Comment:      f.Notes,
		Surcharge:    f.SurchargeReason,
	})
	description := buf.String()
	if err != nil {
		ctx.Warnf("render description for %s: %v", f.Describe(), err)
		description = f.Describe()
	}

	return []ledger.Entry{{
		AccountReference: f.AccountReference,
		Date:             f.Date,
		Amount:           amount,
		Description:      description,
		Additive:         true,
		LedgerAccount:    r.LedgerAccount,
		FlightID:         f.ID,
		Visible:          true,
	}}
}

// AllRules applies every inner rule and concatenates their entries.
type AllRules struct {
	Rules []Rule
}

func (a AllRules) Apply(f flight.Flight, ctx *Context) []ledger.Entry {
	var entries []ledger.Entry
	for _, rule := range a.Rules {
		entries = append(entries, rule.Apply(f, ctx)...)
	}
	return entries
}

// FirstRule applies inner rules in order and returns the entries of the
// first rule that produces any.
type FirstRule struct {
	Rules []Rule
}

func (r FirstRule) Apply(f flight.Flight, ctx *Context) []ledger.Entry {
	for _, rule := range r.Rules {
		if entries := rule.Apply(f, ctx); len(entries) > 0 {
			return entries
		}
	}
	return nil
}

// CapTag returns the entry tag that marks amounts counted against a cap.
func CapTag(capID string) string {
	return "cap:" + capID
}

// CappedRule limits how much an account pays against one cap per calendar
// year. Entries from the inner rule are passed through until the cap is
// reached, the entry crossing the cap is truncated to exactly reach it, and
// later entries are zeroed, or dropped entirely when DropOverCap is set.
// Every passed entry is tagged so future runs see the accumulated total.
type CappedRule struct {
	ID          string
	Cap         decimal.Decimal
	DropOverCap bool
	Inner       Rule
}

func (c CappedRule) Apply(f flight.Flight, ctx *Context) []ledger.Entry {
	entries := c.Inner.Apply(f, ctx)
	if len(entries) == 0 {
		return nil
	}

	note := fmt.Sprintf(", rajattu hintakattoon (%s€)", c.Cap)
	var result []ledger.Entry
	for _, e := range entries {
		used := ctx.CapUsed(c.ID, e.AccountReference)
		switch {
		case used.GreaterThanOrEqual(c.Cap):
			if c.DropOverCap {
				continue
			}
			e.Amount = decimal.Zero
			e.Description += note
		case used.Add(e.Amount).GreaterThan(c.Cap):
			e.Amount = ledger.Quantize(c.Cap.Sub(used))
			e.Description += note
			ctx.AddCapUsed(c.ID, e.AccountReference, e.Amount)
		default:
			ctx.AddCapUsed(c.ID, e.AccountReference, e.Amount)
		}
		e.Tags = append(e.Tags, CapTag(c.ID))
		result = append(result, e)
	}
	return result
}

// MinimumDurationRule bills short flights as if they lasted MinimumMinutes.
// The inner rule prices and describes the padded duration and Note is
// appended to the produced descriptions.
type MinimumDurationRule struct {
	Inner          Rule
	MinimumMinutes int
	Note           string
}

func (m MinimumDurationRule) Apply(f flight.Flight, ctx *Context) []ledger.Entry {
	minimum := decimal.NewFromInt(int64(m.MinimumMinutes))
	if f.Duration.GreaterThanOrEqual(minimum) {
		return m.Inner.Apply(f, ctx)
	}

	padded := f
	padded.Duration = minimum
	entries := m.Inner.Apply(padded, ctx)
	if m.Note != "" {
		for i := range entries {
			entries[i].Description += " " + m.Note
		}
	}
	return entries
}

// DebugRule logs what its inner rule produced for a flight.
type DebugRule struct {
	Inner Rule
	Log   *logger.Logger
}

func (d DebugRule) Apply(f flight.Flight, ctx *Context) []ledger.Entry {
	entries := d.Inner.Apply(f, ctx)
	if len(entries) > 0 && d.Log != nil {
		for _, e := range entries {
			d.Log.WithFields(map[string]interface{}{
				"flight":      f.Describe(),
				"description": e.Description,
				"amount":      e.Amount.String(),
			}).Debug("rule produced entry")
		}
	}
	return entries
}
