package billing

import (
	"github.com/shopspring/decimal"

	"github.com/pik-ry/laskutin/internal/domain/flight"
	"github.com/pik-ry/laskutin/internal/domain/ledger"
	"github.com/pik-ry/laskutin/pkg/logger"
)

// Engine runs the rule tree over flights. It is a pure pricing machine:
// persisting the produced entries is the caller's job.
type Engine struct {
	Root      Rule
	NoBilling map[string]bool
	Log       *logger.Logger
}

// NewEngine builds an engine for a compiled rule tree. References listed in
// noBilling identify payers whose flights are never priced.
func NewEngine(root Rule, noBilling []string, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewDefault("billing")
	}
	skip := make(map[string]bool, len(noBilling))
	for _, ref := range noBilling {
		skip[ref] = true
	}
	return &Engine{Root: root, NoBilling: skip, Log: log}
}

// RunReport summarizes one engine run.
type RunReport struct {
	Flights   int
	Billed    int
	Skipped   int
	Unmatched []string
	Warnings  []string
	Entries   []ledger.Entry
	Total     decimal.Decimal
}

// Run prices every flight and reports the produced entries. Flights on the
// no-billing list are skipped and flights no rule matches are reported so
// missing rules do not silently drop revenue.
func (e *Engine) Run(flights []flight.Flight, ctx *Context) RunReport {
	report := RunReport{Flights: len(flights), Total: decimal.Zero}

	for _, f := range flights {
		if e.NoBilling[f.ReferenceID] {
			e.Log.WithField("flight", f.Describe()).Debug("skipping no-billing reference")
			report.Skipped++
			continue
		}
		if f.AccountReference == "" {
			ctx.Warnf("flight %s has no account", f.Describe())
			report.Unmatched = append(report.Unmatched, f.Describe())
			continue
		}

		entries := e.Root.Apply(f, ctx)
		if len(entries) == 0 {
			e.Log.WithField("flight", f.Describe()).Warn("no rule matched flight")
			report.Unmatched = append(report.Unmatched, f.Describe())
			continue
		}

		report.Billed++
		for _, entry := range entries {
			report.Total = report.Total.Add(entry.Amount)
		}
		report.Entries = append(report.Entries, entries...)
	}

	report.Warnings = ctx.Warnings()
	return report
}
