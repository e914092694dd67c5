package vehicles

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carshare/internal/domain/shared/apperr"
	"carshare/internal/domain/shared/money"
)

var now = time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)

func newTestVehicle(t *testing.T) *Vehicle {
	t.Helper()
	v, err := NewVehicle(CreateParams{
		ID:        "veh-1",
		Host:      "host-1",
		Specs:     Specs{Make: "Toyota", Model: "Corolla", Year: 2021, VIN: " 1hgcm82633a004352 "},
		Location:  Location{City: "Austin", Lat: 30.2672, Lon: -97.7431},
		Rates:     Rates{PerDay: money.Must(5000, "USD")},
		Available: true,
		Now:       now,
	})
	require.NoError(t, err)
	return v
}

func TestNewVehicleValidation(t *testing.T) {
	v := newTestVehicle(t)
	assert.Equal(t, "1HGCM82633A004352", v.Specs.VIN)
	assert.Len(t, v.PendingEvents(), 1)

	_, err := NewVehicle(CreateParams{ID: "v", Host: "h", Specs: Specs{Make: "A", Model: "B", Year: 2020}, Now: now})
	assert.ErrorIs(t, err, ErrDailyRate)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	week := money.Must(100, "EUR")
	_, err = NewVehicle(CreateParams{ID: "v", Host: "h", Specs: Specs{Make: "A", Model: "B", Year: 2020}, Rates: Rates{PerDay: money.Must(100, "USD"), PerWeek: &week}, Now: now})
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = NewVehicle(CreateParams{ID: "v", Host: "h", Specs: Specs{Make: "A", Model: "B", Year: 1900}, Rates: Rates{PerDay: money.Must(100, "USD")}, Now: now})
	assert.ErrorIs(t, err, ErrInvalidYear)
}

func TestUpdateRejectsBadRatesWithoutMutation(t *testing.T) {
	v := newTestVehicle(t)
	desc := "new"
	err := v.Update(UpdateParams{Description: &desc, Rates: &Rates{}, Now: now})
	assert.ErrorIs(t, err, ErrDailyRate)
	assert.Empty(t, v.Description)
}

func TestApplyRating(t *testing.T) {
	v := newTestVehicle(t)
	require.NoError(t, v.ApplyRating(5, now))
	require.NoError(t, v.ApplyRating(4, now))
	assert.Equal(t, 2, v.ReviewCount)
	assert.InDelta(t, 4.5, v.Rating, 0.0001)
	assert.ErrorIs(t, v.ApplyRating(6, now), ErrInvalidRating)
}

func TestSearchMatches(t *testing.T) {
	v := newTestVehicle(t)
	tests := []struct {
		name   string
		params SearchParams
		want   bool
	}{
		{"city match", SearchParams{City: " austin "}, true},
		{"city mismatch", SearchParams{City: "dallas"}, false},
		{"price ceiling", SearchParams{MaxDailyCents: 4000}, false},
		{"nearby", SearchParams{NearLat: 30.28, NearLon: -97.75, RadiusKm: 5}, true},
		{"far away", SearchParams{NearLat: 32.77, NearLon: -96.79, RadiusKm: 50}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.params.Normalized().Matches(v))
		})
	}
}
