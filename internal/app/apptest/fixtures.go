// Package apptest holds fixtures and port fakes shared by application handler tests.
package apptest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"carshare/internal/app/uow"
	domainbooking "carshare/internal/domain/booking"
	"carshare/internal/domain/pricing"
	"carshare/internal/domain/shared/daterange"
	"carshare/internal/domain/shared/money"
	domainuser "carshare/internal/domain/user"
	domainvehicles "carshare/internal/domain/vehicles"
	"carshare/internal/infra/storage/memory"
)

const (
	DriverID = "driver-1"
	HostID   = "host-1"
	OtherID  = "stranger-1"
)

// Now is the fixed clock used by handler tests.
var Now = time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)

func Clock() time.Time { return Now }

// Day returns midnight UTC of the given March 2025 day.
func Day(d int) time.Time {
	return time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC)
}

// Env is an in-memory store with a unit already in its context.
type Env struct {
	Factory memory.Factory
	Unit    uow.UnitOfWork
	Ctx     context.Context
}

func NewEnv(t *testing.T) *Env {
	t.Helper()
	factory := memory.NewFactory()
	unit, ctx, err := uow.Begin(context.Background(), factory, uow.TxOptions{})
	require.NoError(t, err)
	return &Env{Factory: factory, Unit: unit, Ctx: ctx}
}

func (e *Env) SeedUser(t *testing.T, id, email string, roles ...domainuser.Role) *domainuser.User {
	t.Helper()
	u, err := domainuser.NewUser(domainuser.CreateParams{
		ID:           domainuser.ID(id),
		Email:        email,
		Name:         id,
		PasswordHash: "hash",
		Roles:        roles,
		CreatedAt:    Now,
	})
	require.NoError(t, err)
	require.NoError(t, e.Unit.Users().Save(e.Ctx, u))
	return u
}

func (e *Env) SeedVehicle(t *testing.T, id, host string, perDayCents int64) *domainvehicles.Vehicle {
	t.Helper()
	v, err := domainvehicles.NewVehicle(domainvehicles.CreateParams{
		ID:        domainvehicles.VehicleID(id),
		Host:      domainvehicles.HostID(host),
		Specs:     domainvehicles.Specs{Make: "Toyota", Model: "Corolla", Year: 2021},
		Location:  domainvehicles.Location{City: "Austin", Lat: 30.27, Lon: -97.74},
		Rates:     domainvehicles.Rates{PerDay: money.Must(perDayCents, "USD")},
		Available: true,
		Now:       Now,
	})
	require.NoError(t, err)
	v.ClearEvents()
	require.NoError(t, e.Unit.Vehicles().Save(e.Ctx, v))
	return v
}

// SeedBooking stores a daily booking of vehicle v by DriverID over [start,end] in the
// given status and payment status.
func (e *Env) SeedBooking(t *testing.T, id string, v *domainvehicles.Vehicle, start, end time.Time, status domainbooking.Status, payment domainbooking.PaymentStatus) *domainbooking.Booking {
	t.Helper()
	b, err := domainbooking.NewBooking(domainbooking.CreateParams{
		ID:         domainbooking.BookingID(id),
		Code:       "RSV-" + id,
		Vehicle:    v,
		DriverID:   DriverID,
		Range:      daterange.DateRange{Start: start, End: end},
		PickupTime: "10:00",
		RentalType: pricing.RentalDaily,
		Now:        Now,
	})
	require.NoError(t, err)
	b.ClearEvents()
	b.Status = status
	b.PaymentStatus = payment
	require.NoError(t, e.Unit.Bookings().Save(e.Ctx, b))
	return b
}

func (e *Env) Booking(t *testing.T, id string) *domainbooking.Booking {
	t.Helper()
	b, err := e.Unit.Bookings().ByID(e.Ctx, domainbooking.BookingID(id))
	require.NoError(t, err)
	return b
}
