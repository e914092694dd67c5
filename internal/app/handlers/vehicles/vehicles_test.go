package vehicles

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carshare/internal/app/apptest"
	"carshare/internal/app/policies"
	"carshare/internal/domain/shared/apperr"
	domainuser "carshare/internal/domain/user"
	domainvehicles "carshare/internal/domain/vehicles"
	"carshare/internal/infra/storage/memory"
)

func TestCreateVehicleFillsSpecsAndLocation(t *testing.T) {
	env := apptest.NewEnv(t)
	env.SeedUser(t, apptest.DriverID, "driver@example.com", domainuser.RoleDriver)
	vins := &apptest.VINDecoder{Result: policies.DecodedVIN{Make: "Honda", Model: "Civic", Year: 2020, BodyType: "Sedan", Transmission: "Automatic"}}
	geo := &apptest.Geocoder{Coords: policies.Coordinates{Lat: 30.26, Lon: -97.74}}
	box := memory.NewOutbox(nil, nil)
	h := &CreateVehicleHandler{VINs: vins, Geocoder: geo, Outbox: box, Now: apptest.Clock}

	out, err := h.Handle(env.Ctx, CreateVehicleCommand{
		ActorID: apptest.DriverID,
		VIN:     "1hgcm82633a004352",
		Model:   "Civic Si",
		Address: "100 Congress Ave",
		City:    "Austin",
		Rates:   RatesInput{PerDay: "45.50", PerWeek: "250"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Honda", out.Make)
	assert.Equal(t, "Civic Si", out.Model, "caller values win over decoded ones")
	assert.Equal(t, 2020, out.Year)
	assert.Equal(t, "1HGCM82633A004352", out.VIN)
	assert.Equal(t, "automatic", out.Transmission)
	require.NotNil(t, out.Location.Lat)
	assert.Equal(t, 30.26, *out.Location.Lat)
	assert.Equal(t, []string{"100 Congress Ave, Austin"}, geo.Queries)
	assert.Equal(t, 45.5, out.Rates.PerDay.Amount)
	require.NotNil(t, out.Rates.PerWeek)
	assert.Equal(t, 250.0, out.Rates.PerWeek.Amount)
	assert.Nil(t, out.Rates.PerMonth)
	assert.True(t, out.Available)
	assert.Len(t, box.Delivered(), 1)

	host, err := env.Unit.Users().ByID(env.Ctx, apptest.DriverID)
	require.NoError(t, err)
	assert.True(t, host.HasRole(domainuser.RoleHost))
}

func TestCreateVehicleToleratesLookupFailures(t *testing.T) {
	env := apptest.NewEnv(t)
	env.SeedUser(t, apptest.HostID, "host@example.com", domainuser.RoleHost)
	h := &CreateVehicleHandler{
		VINs:     &apptest.VINDecoder{Err: apptest.ErrFakeUpstream},
		Geocoder: &apptest.Geocoder{Err: apptest.ErrFakeUpstream},
		Now:      apptest.Clock,
	}

	out, err := h.Handle(env.Ctx, CreateVehicleCommand{
		ActorID: apptest.HostID,
		Make:    "Ford",
		Model:   "Focus",
		Year:    2019,
		VIN:     "1FAHP3F20CL148530",
		City:    "Dallas",
		Rates:   RatesInput{PerDay: "39"},
	})
	require.NoError(t, err)
	assert.Nil(t, out.Location.Lat)
	assert.Equal(t, "Ford", out.Make)

	_, err = h.Handle(env.Ctx, CreateVehicleCommand{ActorID: apptest.HostID, Make: "Ford", Model: "Focus", Year: 2019, City: "Dallas"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = h.Handle(env.Ctx, CreateVehicleCommand{ActorID: apptest.HostID, Make: "Ford", Model: "Focus", Year: 1900, City: "Dallas", Rates: RatesInput{PerDay: "39"}})
	assert.ErrorIs(t, err, domainvehicles.ErrInvalidYear)
}

func TestUpdateVehicle(t *testing.T) {
	env := apptest.NewEnv(t)
	env.SeedVehicle(t, "veh-1", apptest.HostID, 5000)
	geo := &apptest.Geocoder{Coords: policies.Coordinates{Lat: 32.77, Lon: -96.79}}
	h := &UpdateVehicleHandler{Geocoder: geo, Now: apptest.Clock}

	_, err := h.Handle(env.Ctx, UpdateVehicleCommand{ActorID: apptest.DriverID, VehicleID: "veh-1"})
	assert.ErrorIs(t, err, domainvehicles.ErrNotOwner)

	city := "Dallas"
	off := false
	out, err := h.Handle(env.Ctx, UpdateVehicleCommand{
		ActorID:   apptest.HostID,
		VehicleID: "veh-1",
		City:      &city,
		Available: &off,
		Rates:     &RatesInput{PerDay: "60", PerMonth: "1200"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Dallas", out.Location.City)
	require.NotNil(t, out.Location.Lat)
	assert.Equal(t, 32.77, *out.Location.Lat)
	assert.False(t, out.Available)
	assert.Equal(t, 60.0, out.Rates.PerDay.Amount)
	assert.Equal(t, 1200.0, out.Rates.PerMonth.Amount)

	_, err = h.Handle(env.Ctx, UpdateVehicleCommand{ActorID: apptest.HostID, VehicleID: "veh-1", Rates: &RatesInput{PerDay: "0"}})
	assert.ErrorIs(t, err, domainvehicles.ErrDailyRate)
}

func TestUploadVehiclePhoto(t *testing.T) {
	env := apptest.NewEnv(t)
	env.SeedVehicle(t, "veh-1", apptest.HostID, 5000)
	up := &apptest.Uploader{}
	h := &UploadVehiclePhotoHandler{Uploader: up, Now: apptest.Clock}

	out, err := h.Handle(env.Ctx, UploadVehiclePhotoCommand{ActorID: apptest.HostID, VehicleID: "veh-1", Filename: "side.PNG", Reader: strings.NewReader("png")})
	require.NoError(t, err)
	require.Len(t, out.Photos, 1)
	assert.True(t, strings.HasPrefix(out.Photos[0], "https://cdn.test/vehicles/veh-1/"))
	assert.True(t, strings.HasSuffix(out.Photos[0], ".png"))

	_, err = h.Handle(env.Ctx, UploadVehiclePhotoCommand{ActorID: apptest.DriverID, VehicleID: "veh-1", Reader: strings.NewReader("x")})
	assert.ErrorIs(t, err, domainvehicles.ErrNotOwner)

	_, err = h.Handle(env.Ctx, UploadVehiclePhotoCommand{ActorID: apptest.HostID, VehicleID: "veh-1"})
	assert.ErrorIs(t, err, ErrPhotoMissing)

	up.Fail = true
	_, err = h.Handle(env.Ctx, UploadVehiclePhotoCommand{ActorID: apptest.HostID, VehicleID: "veh-1", Reader: strings.NewReader("x")})
	assert.ErrorIs(t, err, apperr.ErrUpstream)
}

func TestSearchVehicles(t *testing.T) {
	env := apptest.NewEnv(t)
	env.SeedVehicle(t, "cheap", apptest.HostID, 3000)
	env.SeedVehicle(t, "pricey", apptest.HostID, 12000)
	far := env.SeedVehicle(t, "far", "host-2", 3000)
	far.Location = domainvehicles.Location{City: "Houston", Lat: 29.76, Lon: -95.37}
	require.NoError(t, env.Unit.Vehicles().Save(env.Ctx, far))
	h := &SearchVehiclesHandler{UoWFactory: env.Factory}

	tests := []struct {
		name  string
		query SearchVehiclesQuery
		want  []string
	}{
		{"by city", SearchVehiclesQuery{City: " austin "}, []string{"cheap", "pricey"}},
		{"max daily price", SearchVehiclesQuery{MaxDailyPrice: "50"}, []string{"cheap", "far"}},
		{"radius around Austin", SearchVehiclesQuery{Lat: 30.27, Lon: -97.74, RadiusKm: 25}, []string{"cheap", "pricey"}},
		{"radius around Houston", SearchVehiclesQuery{Lat: 29.7, Lon: -95.4, RadiusKm: 25}, []string{"far"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := h.Handle(env.Ctx, tt.query)
			require.NoError(t, err)
			ids := make([]string, 0, len(out.Items))
			for _, item := range out.Items {
				ids = append(ids, item.ID)
				if tt.query.RadiusKm > 0 {
					assert.NotNil(t, item.DistanceKm)
				}
			}
			assert.ElementsMatch(t, tt.want, ids)
		})
	}

	_, err := h.Handle(env.Ctx, SearchVehiclesQuery{MaxDailyPrice: "abc"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestVehicleQueries(t *testing.T) {
	env := apptest.NewEnv(t)
	env.SeedVehicle(t, "veh-1", apptest.HostID, 5000)
	env.SeedVehicle(t, "veh-2", apptest.HostID, 5000)
	env.SeedVehicle(t, "veh-3", "host-2", 5000)

	got, err := (&GetVehicleHandler{UoWFactory: env.Factory}).Handle(env.Ctx, GetVehicleQuery{VehicleID: "veh-3"})
	require.NoError(t, err)
	assert.Equal(t, "host-2", got.HostID)

	_, err = (&GetVehicleHandler{UoWFactory: env.Factory}).Handle(env.Ctx, GetVehicleQuery{VehicleID: "missing"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	fleet, err := (&ListHostVehiclesHandler{UoWFactory: env.Factory}).Handle(env.Ctx, ListHostVehiclesQuery{ActorID: apptest.HostID})
	require.NoError(t, err)
	assert.Len(t, fleet.Items, 2)
}
