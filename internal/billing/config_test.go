package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pik-ry/laskutin/internal/domain/flight"
)

const seasonRules = `
rules:
  - kind: first
    rules:
      - kind: flight
        hourly_price: 91.5
        ledger_account: "3130"
        template: "Lento, TOW (nuorisoalennus), {{.Duration}} min"
        minimum_minutes: 15
        filters:
          aircraft: [OH-TOW]
          max_age: 25
      - kind: flight
        hourly_price: 122
        ledger_account: "3130"
        template: "Lento, TOW, {{.Duration}} min"
        minimum_minutes: 15
        filters:
          aircraft: [OH-TOW]
  - kind: capped
    cap_id: pursi_hintakatto_2024
    cap: 1250
    rules:
      - kind: first
        rules:
          - kind: flight
            hourly_price: 13.5
            ledger_account: "3220"
            template: "Lento (nuorisoalennus), {{.Registration}}, {{.Duration}} min"
            filters:
              aircraft: [OH-650]
              max_age: 25
          - kind: flight
            hourly_price: 18
            ledger_account: "3220"
            filters:
              aircraft: [OH-650]
  - kind: flight
    flat_price: 6
    ledger_account: "3470"
    template: "Koululentomaksu, {{.Registration}}"
    filters:
      aircraft: [OH-650]
      purposes: [KOU]
  - kind: capped
    cap_id: kalustomaksu_hintakatto_2024
    cap: 90
    rules:
      - kind: flight
        hourly_price: 10
        ledger_account: "3010"
        template: "Kalustomaksu, {{.Registration}}, {{.Duration}} min"
        filters:
          aircraft: [OH-650, OH-TOW]
  - kind: flight
    flat_price: 2
    ledger_account: "3610"
    template: "Laskutuslisä, {{.Registration}}, {{.Surcharge}}"
    filters:
      aircraft: [OH-650, OH-TOW]
      surcharged: true
`

func TestCompileSeasonRules(t *testing.T) {
	root, err := CompileRules([]byte(seasonRules), nil)
	require.NoError(t, err)

	ctx := NewContext(time.Now())
	ctx.BirthDates["114983"] = time.Date(2004, 3, 1, 0, 0, 0, 0, time.UTC)

	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	youthGlide := flight.Flight{
		ID: "f1", Date: day, ReferenceID: "114983", AccountReference: "114983",
		Aircraft: "OH-650", Duration: decimal.NewFromInt(60), Purpose: "KOU",
	}

	entries := root.Apply(youthGlide, ctx)
	require.Len(t, entries, 3, "glider KOU flight should produce flight, instruction and equipment charges")

	assert.Equal(t, "Lento (nuorisoalennus), OH-650, 60 min", entries[0].Description)
	assert.True(t, entries[0].Amount.Equal(decimal.RequireFromString("13.5")), "youth hour = %s", entries[0].Amount)
	assert.Contains(t, entries[0].Tags, "cap:pursi_hintakatto_2024")

	assert.Equal(t, "Koululentomaksu, OH-650", entries[1].Description)
	assert.True(t, entries[1].Amount.Equal(decimal.NewFromInt(6)))

	assert.Equal(t, "Kalustomaksu, OH-650, 60 min", entries[2].Description)
	assert.True(t, entries[2].Amount.Equal(decimal.NewFromInt(10)))
	assert.Contains(t, entries[2].Tags, "cap:kalustomaksu_hintakatto_2024")
}

func TestCompiledMinimumBilling(t *testing.T) {
	root, err := CompileRules([]byte(seasonRules), nil)
	require.NoError(t, err)

	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	short := flight.Flight{
		ID: "f2", Date: day, ReferenceID: "225001", AccountReference: "225001",
		Aircraft: "OH-TOW", Duration: decimal.NewFromInt(10), Purpose: "HAR",
	}

	entries := root.Apply(short, NewContext(time.Now()))
	require.Len(t, entries, 2, "tow flight should produce flight and equipment charges")
	// No birth date known, so the youth rule fails closed onto the normal price.
	assert.Equal(t, "Lento, TOW, 15 min (minimilaskutus 15 min)", entries[0].Description)
	assert.True(t, entries[0].Amount.Equal(decimal.RequireFromString("30.50")), "minimum billed = %s", entries[0].Amount)
	// The equipment charge has no minimum and bills the real 10 minutes.
	assert.Equal(t, "Kalustomaksu, OH-TOW, 10 min", entries[1].Description)
	assert.True(t, entries[1].Amount.Equal(decimal.RequireFromString("1.67")), "equipment = %s", entries[1].Amount)
}

func TestCompiledSurchargeRule(t *testing.T) {
	root, err := CompileRules([]byte(seasonRules), nil)
	require.NoError(t, err)

	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	f := flight.Flight{
		ID: "f3", Date: day, ReferenceID: "225001", AccountReference: "225001",
		Aircraft: "OH-650", Duration: decimal.NewFromInt(60), Purpose: "HAR",
		SurchargeReason: "laskutuslisä",
	}

	entries := root.Apply(f, NewContext(time.Now()))
	var found bool
	for _, e := range entries {
		if e.LedgerAccount == "3610" {
			found = true
			assert.Equal(t, "Laskutuslisä, OH-650, laskutuslisä", e.Description)
			assert.True(t, e.Amount.Equal(decimal.NewFromInt(2)))
		}
	}
	assert.True(t, found, "surcharged flight should carry the billing surcharge")
}

func TestCompileRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"unknown kind", "rules:\n  - kind: mystery\n"},
		{"no rules", "rules: []\n"},
		{"both prices", "rules:\n  - kind: flight\n    hourly_price: 10\n    flat_price: 5\n    ledger_account: \"3000\"\n"},
		{"no price", "rules:\n  - kind: flight\n    ledger_account: \"3000\"\n"},
		{"no ledger account", "rules:\n  - kind: flight\n    hourly_price: 10\n"},
		{"capped without id", "rules:\n  - kind: capped\n    cap: 100\n    rules:\n      - kind: flight\n        hourly_price: 10\n        ledger_account: \"3000\"\n"},
		{"capped without children", "rules:\n  - kind: capped\n    cap_id: x\n    cap: 100\n"},
		{"half period", "rules:\n  - kind: flight\n    hourly_price: 10\n    ledger_account: \"3000\"\n    filters:\n      period_start: 2024-01-01\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := CompileRules([]byte(tc.yaml), nil)
			assert.Error(t, err)
		})
	}
}
