package billing

import (
	"errors"
	"fmt"
	"text/template"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/pik-ry/laskutin/pkg/logger"
)

// RulesConfig is the top level of a rules file.
type RulesConfig struct {
	Rules []RuleConfig `yaml:"rules"`
}

// RuleConfig describes one node of the rule tree. Kind selects the rule
// type; the container kinds (all, first, capped, debug) nest children under
// rules.
type RuleConfig struct {
	Kind string `yaml:"kind"`

	// kind: flight
	HourlyPrice    *float64     `yaml:"hourly_price"`
	FlatPrice      *float64     `yaml:"flat_price"`
	LedgerAccount  string       `yaml:"ledger_account"`
	Template       string       `yaml:"template"`
	MinimumMinutes int          `yaml:"minimum_minutes"`
	MinimumNote    string       `yaml:"minimum_note"`
	Filters        FilterConfig `yaml:"filters"`

	// kind: capped
	CapID       string  `yaml:"cap_id"`
	Cap         float64 `yaml:"cap"`
	DropOverCap bool    `yaml:"drop_over_cap"`

	Rules []RuleConfig `yaml:"rules"`
}

// FilterConfig describes the filters of a flight rule. All listed filters
// must match; list-valued filters match any of their values.
type FilterConfig struct {
	Aircraft    []string `yaml:"aircraft"`
	Purposes    []string `yaml:"purposes"`
	Accounts    []string `yaml:"accounts"`
	NotAccounts []string `yaml:"not_accounts"`
	MaxAge      int      `yaml:"max_age"`
	PeriodStart string   `yaml:"period_start"`
	PeriodEnd   string   `yaml:"period_end"`
	Surcharged  bool     `yaml:"surcharged"`
	Surcharge   string   `yaml:"surcharge"`
	Discount    string   `yaml:"discount"`
}

// CompileRules parses YAML rule definitions into an executable rule tree.
func CompileRules(data []byte, log *logger.Logger) (Rule, error) {
	var cfg RulesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if len(cfg.Rules) == 0 {
		return nil, errors.New("rules file defines no rules")
	}
	rules, err := compileRules(cfg.Rules, log)
	if err != nil {
		return nil, err
	}
	return AllRules{Rules: rules}, nil
}

func compileRules(configs []RuleConfig, log *logger.Logger) ([]Rule, error) {
	rules := make([]Rule, 0, len(configs))
	for i, rc := range configs {
		rule, err := compileRule(rc, log)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func compileRule(rc RuleConfig, log *logger.Logger) (Rule, error) {
	switch rc.Kind {
	case "flight":
		return compileFlightRule(rc)

	case "all":
		children, err := compileChildren(rc, log)
		if err != nil {
			return nil, err
		}
		return AllRules{Rules: children}, nil

	case "first":
		children, err := compileChildren(rc, log)
		if err != nil {
			return nil, err
		}
		return FirstRule{Rules: children}, nil

	case "capped":
		if rc.CapID == "" {
			return nil, errors.New("capped rule needs cap_id")
		}
		if rc.Cap <= 0 {
			return nil, fmt.Errorf("capped rule %s needs a positive cap", rc.CapID)
		}
		children, err := compileChildren(rc, log)
		if err != nil {
			return nil, err
		}
		var inner Rule = AllRules{Rules: children}
		if len(children) == 1 {
			inner = children[0]
		}
		return CappedRule{
			ID:          rc.CapID,
			Cap:         decimal.NewFromFloat(rc.Cap),
			DropOverCap: rc.DropOverCap,
			Inner:       inner,
		}, nil

	case "debug":
		children, err := compileChildren(rc, log)
		if err != nil {
			return nil, err
		}
		var inner Rule = AllRules{Rules: children}
		if len(children) == 1 {
			inner = children[0]
		}
		return DebugRule{Inner: inner, Log: log}, nil

	default:
		return nil, fmt.Errorf("unknown rule kind %q", rc.Kind)
	}
}

func compileChildren(rc RuleConfig, log *logger.Logger) ([]Rule, error) {
	if len(rc.Rules) == 0 {
		return nil, fmt.Errorf("%s rule needs child rules", rc.Kind)
	}
	return compileRules(rc.Rules, log)
}

func compileFlightRule(rc RuleConfig) (Rule, error) {
	if rc.HourlyPrice == nil && rc.FlatPrice == nil {
		return nil, errors.New("flight rule needs hourly_price or flat_price")
	}
	if rc.HourlyPrice != nil && rc.FlatPrice != nil {
		return nil, errors.New("flight rule takes hourly_price or flat_price, not both")
	}
	if rc.LedgerAccount == "" {
		return nil, errors.New("flight rule needs ledger_account")
	}

	filters, err := compileFilters(rc.Filters)
	if err != nil {
		return nil, err
	}

	var tmpl *template.Template
	if rc.Template != "" {
		tmpl, err = template.New("flight").Parse(rc.Template)
		if err != nil {
			return nil, fmt.Errorf("parse template: %w", err)
		}
	}

	rule := FlightRule{
		LedgerAccount: rc.LedgerAccount,
		Template:      tmpl,
		Filters:       filters,
	}
	if rc.HourlyPrice != nil {
		rule.Hourly = true
		rule.PricePerHour = decimal.NewFromFloat(*rc.HourlyPrice)
	} else {
		rule.FlatPrice = decimal.NewFromFloat(*rc.FlatPrice)
	}

	if rc.MinimumMinutes > 0 {
		note := rc.MinimumNote
		if note == "" {
			note = fmt.Sprintf("(minimilaskutus %d min)", rc.MinimumMinutes)
		}
		return MinimumDurationRule{Inner: rule, MinimumMinutes: rc.MinimumMinutes, Note: note}, nil
	}
	return rule, nil
}

func compileFilters(fc FilterConfig) ([]Filter, error) {
	var filters []Filter

	if fc.PeriodStart != "" || fc.PeriodEnd != "" {
		if fc.PeriodStart == "" || fc.PeriodEnd == "" {
			return nil, errors.New("period filter needs both period_start and period_end")
		}
		start, err := time.Parse("2006-01-02", fc.PeriodStart)
		if err != nil {
			return nil, fmt.Errorf("parse period_start: %w", err)
		}
		end, err := time.Parse("2006-01-02", fc.PeriodEnd)
		if err != nil {
			return nil, fmt.Errorf("parse period_end: %w", err)
		}
		if end.Before(start) {
			return nil, errors.New("period_end before period_start")
		}
		filters = append(filters, PeriodFilter{Start: start, End: end})
	}
	if len(fc.Aircraft) > 0 {
		filters = append(filters, AircraftFilter{Registrations: fc.Aircraft})
	}
	if len(fc.Purposes) > 0 {
		filters = append(filters, PurposeFilter{Purposes: fc.Purposes})
	}
	if len(fc.Accounts) > 0 {
		filters = append(filters, AccountFilter{References: fc.Accounts})
	}
	if len(fc.NotAccounts) > 0 {
		filters = append(filters, NotFilter{Inner: AccountFilter{References: fc.NotAccounts}})
	}
	if fc.MaxAge > 0 {
		filters = append(filters, BirthDateFilter{MaxAge: fc.MaxAge})
	}
	if fc.Surcharged {
		filters = append(filters, SurchargeFilter{})
	} else if fc.Surcharge != "" {
		filters = append(filters, SurchargeFilter{Reason: fc.Surcharge})
	}
	if fc.Discount != "" {
		filters = append(filters, DiscountFilter{Reason: fc.Discount})
	}

	return filters, nil
}
