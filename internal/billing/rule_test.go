package billing

import (
	"testing"
	"text/template"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pik-ry/laskutin/internal/domain/flight"
)

func glideFlight(reg string, minutes int64) flight.Flight {
	return flight.Flight{
		ID:               "f1",
		Date:             time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		ReferenceID:      "114983",
		AccountReference: "114983",
		Aircraft:         reg,
		Duration:         decimal.NewFromInt(minutes),
		Purpose:          "HAR",
	}
}

func TestFlightRuleHourlyPricing(t *testing.T) {
	rule := FlightRule{
		PricePerHour:  decimal.NewFromInt(122),
		Hourly:        true,
		LedgerAccount: "3130",
		Filters:       []Filter{AircraftFilter{Registrations: []string{"OH-TOW"}}},
	}

	entries := rule.Apply(glideFlight("OH-TOW", 30), NewContext(time.Now()))
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Amount.Equal(decimal.RequireFromString("61.00")), "amount = %s", entries[0].Amount)
	assert.Equal(t, "Lento, OH-TOW, 30 min", entries[0].Description)
	assert.Equal(t, "3130", entries[0].LedgerAccount)
	assert.True(t, entries[0].Additive)
	assert.Equal(t, "f1", entries[0].FlightID)
}

func TestFlightRuleRoundsHalfUp(t *testing.T) {
	rule := FlightRule{
		PricePerHour: decimal.RequireFromString("13.5"),
		Hourly:       true, LedgerAccount: "3220",
	}

	entries := rule.Apply(glideFlight("OH-650", 45), NewContext(time.Now()))
	require.Len(t, entries, 1)
	// 13.5 * 45 / 60 = 10.125 rounds to 10.13
	assert.True(t, entries[0].Amount.Equal(decimal.RequireFromString("10.13")), "amount = %s", entries[0].Amount)
}

func TestFlightRuleFlatPrice(t *testing.T) {
	rule := FlightRule{
		FlatPrice:     decimal.NewFromInt(6),
		LedgerAccount: "3470",
		Template:      mustTemplate(t, "Koululentomaksu, {{.Registration}}"),
		Filters:       []Filter{PurposeFilter{Purposes: []string{"KOU"}}},
	}

	f := glideFlight("OH-650", 35)
	f.Purpose = "KOU"
	entries := rule.Apply(f, NewContext(time.Now()))
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Amount.Equal(decimal.NewFromInt(6)))
	assert.Equal(t, "Koululentomaksu, OH-650", entries[0].Description)

	assert.Empty(t, rule.Apply(glideFlight("OH-650", 35), NewContext(time.Now())), "non-KOU flight should not match")
}

func TestFlightRuleFiltersAreANDed(t *testing.T) {
	rule := FlightRule{
		PricePerHour: decimal.NewFromInt(65), Hourly: true, LedgerAccount: "3150",
		Filters: []Filter{
			AircraftFilter{Registrations: []string{"OH-1037"}},
			DiscountFilter{Reason: "opeale"},
		},
	}

	plain := glideFlight("OH-1037", 60)
	assert.Empty(t, rule.Apply(plain, NewContext(time.Now())))

	discounted := plain
	discounted.DiscountReason = "opeale"
	entries := rule.Apply(discounted, NewContext(time.Now()))
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Amount.Equal(decimal.NewFromInt(65)))
}

func TestBirthDateFilter(t *testing.T) {
	ctx := NewContext(time.Now())
	ctx.BirthDates["114983"] = time.Date(2000, 6, 15, 0, 0, 0, 0, time.UTC)

	youth := BirthDateFilter{MaxAge: 25}
	assert.True(t, youth.Match(glideFlight("OH-650", 30), ctx))

	ctx.BirthDates["114983"] = time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC)
	assert.False(t, youth.Match(glideFlight("OH-650", 30), ctx))

	// Missing birth date fails closed and warns.
	delete(ctx.BirthDates, "114983")
	assert.False(t, youth.Match(glideFlight("OH-650", 30), ctx))
	require.Len(t, ctx.Warnings(), 1)
	assert.Contains(t, ctx.Warnings()[0], "no birth date")
}

func TestFirstRulePicksFirstMatch(t *testing.T) {
	youth := FlightRule{
		PricePerHour: decimal.RequireFromString("13.5"), Hourly: true, LedgerAccount: "3220",
		Filters: []Filter{BirthDateFilter{MaxAge: 25}},
	}
	normal := FlightRule{
		PricePerHour: decimal.NewFromInt(18), Hourly: true, LedgerAccount: "3220",
	}
	rule := FirstRule{Rules: []Rule{youth, normal}}

	ctx := NewContext(time.Now())
	ctx.BirthDates["114983"] = time.Date(2005, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := rule.Apply(glideFlight("OH-650", 60), ctx)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Amount.Equal(decimal.RequireFromString("13.5")), "youth price should win, got %s", entries[0].Amount)

	old := NewContext(time.Now())
	old.BirthDates["114983"] = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	entries = rule.Apply(glideFlight("OH-650", 60), old)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Amount.Equal(decimal.NewFromInt(18)))
}

func TestCappedRuleTruncatesAndZeroes(t *testing.T) {
	inner := FlightRule{PricePerHour: decimal.NewFromInt(10), Hourly: true, LedgerAccount: "3010"}
	rule := CappedRule{ID: "kalustomaksu_hintakatto_2024", Cap: decimal.NewFromInt(90), Inner: inner}
	ctx := NewContext(time.Now())

	// 8 hours at 10/h uses 80 of the 90 cap.
	for i := 0; i < 8; i++ {
		entries := rule.Apply(glideFlight("OH-650", 60), ctx)
		require.Len(t, entries, 1)
		assert.True(t, entries[0].Amount.Equal(decimal.NewFromInt(10)))
		assert.Contains(t, entries[0].Tags, "cap:kalustomaksu_hintakatto_2024")
	}

	// The ninth hour crosses the cap: 80 + 10 stays within, the tenth is zeroed.
	entries := rule.Apply(glideFlight("OH-650", 60), ctx)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Amount.Equal(decimal.NewFromInt(10)))

	entries = rule.Apply(glideFlight("OH-650", 60), ctx)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Amount.IsZero(), "amount over cap = %s", entries[0].Amount)
	assert.Contains(t, entries[0].Description, "rajattu hintakattoon (90€)")
}

func TestCappedRuleTruncatesCrossingEntry(t *testing.T) {
	inner := FlightRule{PricePerHour: decimal.NewFromInt(18), Hourly: true, LedgerAccount: "3220"}
	rule := CappedRule{ID: "pursi_hintakatto_2024", Cap: decimal.NewFromInt(1250), Inner: inner}

	ctx := NewContext(time.Now())
	ctx.SeedCap = func(capID, account string) decimal.Decimal {
		return decimal.NewFromInt(1240)
	}

	entries := rule.Apply(glideFlight("OH-650", 60), ctx)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Amount.Equal(decimal.NewFromInt(10)), "crossing entry = %s, want 10", entries[0].Amount)
	assert.Contains(t, entries[0].Description, "rajattu hintakattoon (1250€)")

	// Cap fully used now, the next entry goes to zero.
	entries = rule.Apply(glideFlight("OH-650", 60), ctx)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Amount.IsZero())
}

func TestCappedRuleDropOverCap(t *testing.T) {
	inner := FlightRule{PricePerHour: decimal.NewFromInt(10), Hourly: true, LedgerAccount: "3010"}
	rule := CappedRule{ID: "testikatto", Cap: decimal.NewFromInt(90), DropOverCap: true, Inner: inner}

	ctx := NewContext(time.Now())
	ctx.SeedCap = func(capID, account string) decimal.Decimal {
		return decimal.NewFromInt(90)
	}

	assert.Empty(t, rule.Apply(glideFlight("OH-650", 60), ctx), "entries at cap should be dropped")
}

func TestMinimumDurationRule(t *testing.T) {
	inner := FlightRule{
		PricePerHour: decimal.NewFromInt(122), Hourly: true, LedgerAccount: "3130",
		Template: mustTemplate(t, "Lento, TOW, {{.Duration}} min"),
	}
	rule := MinimumDurationRule{Inner: inner, MinimumMinutes: 15, Note: "(minimilaskutus 15 min)"}

	entries := rule.Apply(glideFlight("OH-TOW", 10), NewContext(time.Now()))
	require.Len(t, entries, 1)
	// 122 * 15 / 60 = 30.50
	assert.True(t, entries[0].Amount.Equal(decimal.RequireFromString("30.50")), "amount = %s", entries[0].Amount)
	assert.Equal(t, "Lento, TOW, 15 min (minimilaskutus 15 min)", entries[0].Description)

	entries = rule.Apply(glideFlight("OH-TOW", 42), NewContext(time.Now()))
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Amount.Equal(decimal.RequireFromString("85.40")))
	assert.Equal(t, "Lento, TOW, 42 min", entries[0].Description)
}

func mustTemplate(t *testing.T, text string) *template.Template {
	t.Helper()
	tmpl, err := template.New("flight").Parse(text)
	require.NoError(t, err)
	return tmpl
}
