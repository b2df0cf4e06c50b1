package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pik-ry/laskutin/internal/domain/flight"
)

func TestEngineRun(t *testing.T) {
	rule := FlightRule{
		PricePerHour: decimal.NewFromInt(18), Hourly: true, LedgerAccount: "3220",
		Filters: []Filter{AircraftFilter{Registrations: []string{"OH-650"}}},
	}
	engine := NewEngine(AllRules{Rules: []Rule{rule}}, []string{"2000"}, nil)

	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	flights := []flight.Flight{
		{ID: "1", Date: day, ReferenceID: "114983", AccountReference: "114983", Aircraft: "OH-650", Duration: decimal.NewFromInt(60)},
		{ID: "2", Date: day, ReferenceID: "2000", AccountReference: "2000", Aircraft: "OH-650", Duration: decimal.NewFromInt(60)},
		{ID: "3", Date: day, ReferenceID: "114983", AccountReference: "114983", Aircraft: "OH-XXX", Duration: decimal.NewFromInt(60)},
		{ID: "4", Date: day, ReferenceID: "999999", AccountReference: "", Aircraft: "OH-650", Duration: decimal.NewFromInt(60)},
	}

	report := engine.Run(flights, NewContext(time.Now()))

	assert.Equal(t, 4, report.Flights)
	assert.Equal(t, 1, report.Billed)
	assert.Equal(t, 1, report.Skipped, "no-billing reference should be skipped")
	assert.Len(t, report.Unmatched, 2, "unknown aircraft and missing account are unmatched")
	require.Len(t, report.Entries, 1)
	assert.Equal(t, "1", report.Entries[0].FlightID)
	assert.True(t, report.Total.Equal(decimal.NewFromInt(18)))
	require.NotEmpty(t, report.Warnings)
	assert.Contains(t, report.Warnings[0], "no account")
}
