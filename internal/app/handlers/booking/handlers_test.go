package booking

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carshare/internal/app/apptest"
	domainbooking "carshare/internal/domain/booking"
	"carshare/internal/domain/shared/apperr"
	"carshare/internal/infra/storage/memory"
)

func TestCreateBooking(t *testing.T) {
	env := apptest.NewEnv(t)
	env.SeedVehicle(t, "veh-1", apptest.HostID, 5000)
	box := memory.NewOutbox(nil, nil)
	tel := &apptest.Telemetry{}
	h := &CreateBookingHandler{Sequence: memory.NewSequence(), Outbox: box, Telemetry: tel, Now: apptest.Clock}

	res, err := h.Handle(env.Ctx, CreateBookingCommand{
		ActorID:    apptest.DriverID,
		VehicleID:  "veh-1",
		StartDate:  apptest.Day(1),
		EndDate:    apptest.Day(4),
		PickupTime: "10:00",
		Message:    "Hi, can I pick up early?",
	})
	require.NoError(t, err)
	assert.Equal(t, "RSV-000001", res.Code)
	assert.Equal(t, 3, res.TotalDays)
	assert.Equal(t, 150.0, res.TotalPrice.Amount)
	assert.Equal(t, "pending", res.Status)
	assert.Equal(t, "10:00", res.DropoffTime)
	assert.Equal(t, 1, tel.Created)

	msgs, err := env.Unit.Messages().ListByBooking(env.Ctx, domainbooking.BookingID(res.ID), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, apptest.HostID, msgs[0].RecipientID)

	delivered := box.Delivered()
	require.Len(t, delivered, 1)
	assert.Equal(t, domainbooking.EventRequested, delivered[0].Name)

	second, err := h.Handle(env.Ctx, CreateBookingCommand{
		ActorID: apptest.DriverID, VehicleID: "veh-1", StartDate: apptest.Day(1), EndDate: apptest.Day(4), PickupTime: "10:00",
	})
	require.NoError(t, err)
	assert.Equal(t, "RSV-000002", second.Code, "creation does not run the availability check")
}

func TestCreateBookingRejects(t *testing.T) {
	env := apptest.NewEnv(t)
	env.SeedVehicle(t, "veh-1", apptest.HostID, 5000)
	h := &CreateBookingHandler{Sequence: memory.NewSequence(), Now: apptest.Clock}

	tests := []struct {
		name string
		cmd  CreateBookingCommand
		want error
	}{
		{"own vehicle", CreateBookingCommand{ActorID: apptest.HostID, VehicleID: "veh-1", StartDate: apptest.Day(1), EndDate: apptest.Day(3), PickupTime: "09:00"}, domainbooking.ErrOwnVehicle},
		{"unknown vehicle", CreateBookingCommand{ActorID: apptest.DriverID, VehicleID: "nope", StartDate: apptest.Day(1), EndDate: apptest.Day(3), PickupTime: "09:00"}, apperr.ErrNotFound},
		{"bad pickup", CreateBookingCommand{ActorID: apptest.DriverID, VehicleID: "veh-1", StartDate: apptest.Day(1), EndDate: apptest.Day(3), PickupTime: "9am"}, domainbooking.ErrPickupTime},
		{"start in past", CreateBookingCommand{ActorID: apptest.DriverID, VehicleID: "veh-1", StartDate: apptest.Now.AddDate(0, 0, -2), EndDate: apptest.Day(3), PickupTime: "09:00"}, domainbooking.ErrStartInPast},
		{"end before start", CreateBookingCommand{ActorID: apptest.DriverID, VehicleID: "veh-1", StartDate: apptest.Day(3), EndDate: apptest.Day(3), PickupTime: "09:00"}, apperr.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Handle(env.Ctx, tt.cmd)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	res, err := h.Handle(env.Ctx, CreateBookingCommand{ActorID: apptest.DriverID, VehicleID: "veh-1", StartDate: apptest.Day(1), EndDate: apptest.Day(3), PickupTime: "09:00"})
	require.NoError(t, err)
	assert.Equal(t, "RSV-000001", res.Code, "rejected requests do not draw a code")
}

func TestGetBookingAssignsLegacyCode(t *testing.T) {
	env := apptest.NewEnv(t)
	v := env.SeedVehicle(t, "veh-1", apptest.HostID, 5000)
	b := env.SeedBooking(t, "bk-1", v, apptest.Day(1), apptest.Day(4), domainbooking.StatusPending, domainbooking.PaymentPending)
	b.Code = ""
	require.NoError(t, env.Unit.Bookings().Save(env.Ctx, b))

	seq := memory.NewSequence()
	h := &GetBookingHandler{UoWFactory: env.Factory, Sequence: seq}

	_, err := h.Handle(env.Ctx, GetBookingQuery{ActorID: apptest.OtherID, BookingID: "bk-1"})
	assert.ErrorIs(t, err, domainbooking.ErrNotParticipant)

	got, err := h.Handle(env.Ctx, GetBookingQuery{ActorID: apptest.HostID, BookingID: "bk-1"})
	require.NoError(t, err)
	assert.Equal(t, "RSV-000001", got.Code)

	again, err := h.Handle(env.Ctx, GetBookingQuery{ActorID: apptest.DriverID, BookingID: "bk-1"})
	require.NoError(t, err)
	assert.Equal(t, "RSV-000001", again.Code)
}

func TestListBookingsFiltersByStatus(t *testing.T) {
	env := apptest.NewEnv(t)
	v := env.SeedVehicle(t, "veh-1", apptest.HostID, 5000)
	env.SeedBooking(t, "bk-1", v, apptest.Day(1), apptest.Day(4), domainbooking.StatusPending, domainbooking.PaymentPending)
	env.SeedBooking(t, "bk-2", v, apptest.Day(10), apptest.Day(12), domainbooking.StatusCancelled, domainbooking.PaymentPending)

	driver := &ListDriverBookingsHandler{UoWFactory: env.Factory}
	all, err := driver.Handle(env.Ctx, ListDriverBookingsQuery{ActorID: apptest.DriverID})
	require.NoError(t, err)
	assert.Len(t, all.Items, 2)

	host := &ListHostBookingsHandler{UoWFactory: env.Factory}
	pending, err := host.Handle(env.Ctx, ListHostBookingsQuery{ActorID: apptest.HostID, Status: "pending"})
	require.NoError(t, err)
	require.Len(t, pending.Items, 1)
	assert.Equal(t, "bk-1", pending.Items[0].ID)

	_, err = host.Handle(env.Ctx, ListHostBookingsQuery{ActorID: apptest.HostID, Status: "weird"})
	assert.ErrorIs(t, err, domainbooking.ErrUnknownStatus)
}

func TestUpdateStatus(t *testing.T) {
	env := apptest.NewEnv(t)
	v := env.SeedVehicle(t, "veh-1", apptest.HostID, 5000)
	env.SeedBooking(t, "unpaid", v, apptest.Day(1), apptest.Day(4), domainbooking.StatusPending, domainbooking.PaymentPending)
	env.SeedBooking(t, "paid", v, apptest.Day(10), apptest.Day(12), domainbooking.StatusPending, domainbooking.PaymentPaid)
	h := &UpdateStatusHandler{Now: apptest.Clock}

	for _, target := range []string{"confirmed", "active", "completed"} {
		t.Run(target, func(t *testing.T) {
			_, err := h.Handle(env.Ctx, UpdateStatusCommand{ActorID: apptest.HostID, BookingID: "paid", Status: target})
			assert.ErrorIs(t, err, domainbooking.ErrInvalidTransition)
			assert.Equal(t, domainbooking.StatusPending, env.Booking(t, "paid").Status)
		})
	}

	res, err := h.Handle(env.Ctx, UpdateStatusCommand{ActorID: apptest.DriverID, BookingID: "unpaid", Status: "cancelled"})
	require.NoError(t, err)
	assert.Equal(t, "cancelled", res.Status)

	_, err = h.Handle(env.Ctx, UpdateStatusCommand{ActorID: apptest.HostID, BookingID: "unpaid", Status: "cancelled"})
	assert.ErrorIs(t, err, domainbooking.ErrInvalidTransition)
}

func TestSwitchVehicle(t *testing.T) {
	env := apptest.NewEnv(t)
	v1 := env.SeedVehicle(t, "veh-1", apptest.HostID, 5000)
	v2 := env.SeedVehicle(t, "veh-2", apptest.HostID, 6000)
	v3 := env.SeedVehicle(t, "veh-3", apptest.HostID, 4000)
	env.SeedVehicle(t, "veh-foreign", "host-2", 3000)
	env.SeedBooking(t, "bk-1", v1, apptest.Day(1), apptest.Day(4), domainbooking.StatusConfirmed, domainbooking.PaymentPaid)
	env.SeedBooking(t, "blocker", v3, apptest.Day(4), apptest.Day(6), domainbooking.StatusPending, domainbooking.PaymentPending)

	candidates, err := (&AvailableVehiclesHandler{UoWFactory: env.Factory}).Handle(env.Ctx, AvailableVehiclesQuery{ActorID: apptest.HostID, BookingID: "bk-1"})
	require.NoError(t, err)
	require.Len(t, candidates.Items, 1)
	assert.Equal(t, string(v2.ID), candidates.Items[0].Vehicle.ID)
	assert.Equal(t, 30.0, candidates.Items[0].PriceDiff.Amount)

	box := memory.NewOutbox(nil, nil)
	h := &SwitchVehicleHandler{Outbox: box, Now: apptest.Clock}

	_, err = h.Handle(env.Ctx, SwitchVehicleCommand{ActorID: apptest.HostID, BookingID: "bk-1", VehicleID: "veh-3"})
	var conflict *domainbooking.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, apptest.Day(4), conflict.AvailableUntil)
	assert.Equal(t, "veh-1", string(env.Booking(t, "bk-1").VehicleID))

	_, err = h.Handle(env.Ctx, SwitchVehicleCommand{ActorID: apptest.HostID, BookingID: "bk-1", VehicleID: "veh-foreign"})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = h.Handle(env.Ctx, SwitchVehicleCommand{ActorID: apptest.DriverID, BookingID: "bk-1", VehicleID: "veh-2"})
	assert.ErrorIs(t, err, domainbooking.ErrHostOnly)

	res, err := h.Handle(env.Ctx, SwitchVehicleCommand{ActorID: apptest.HostID, BookingID: "bk-1", VehicleID: "veh-2", Reason: "maintenance"})
	require.NoError(t, err)
	assert.Equal(t, "veh-2", res.VehicleID)
	assert.Equal(t, 180.0, res.TotalPrice.Amount)
	require.Len(t, res.VehicleSwitches, 1)
	assert.Equal(t, 30.0, res.VehicleSwitches[0].PriceDifference.Amount)
	assert.Equal(t, apptest.Day(1), res.StartDate)
	require.Len(t, box.Delivered(), 1)
	assert.Equal(t, domainbooking.EventVehicleSwitched, box.Delivered()[0].Name)
}

func inspectionInput() InspectionInput {
	return InspectionInput{
		Front: Photo{Body: strings.NewReader("jpg"), Filename: "front.jpg", ContentType: "image/jpeg"},
		Back:  Photo{URL: "https://cdn.test/existing-back.jpg"},
		Left:  Photo{Body: strings.NewReader("jpg"), Filename: "left.JPG"},
		Right: Photo{Body: strings.NewReader("png"), ContentType: "image/png"},
		Notes: "scratch on bumper",
	}
}

func TestInspections(t *testing.T) {
	env := apptest.NewEnv(t)
	v := env.SeedVehicle(t, "veh-1", apptest.HostID, 5000)
	env.SeedBooking(t, "bk-1", v, apptest.Day(1), apptest.Day(4), domainbooking.StatusConfirmed, domainbooking.PaymentPaid)
	env.SeedBooking(t, "unpaid", v, apptest.Day(10), apptest.Day(12), domainbooking.StatusConfirmed, domainbooking.PaymentPending)
	up := &apptest.Uploader{}
	h := &InspectionHandler{Uploader: up, Outbox: memory.NewOutbox(nil, nil), Now: apptest.Clock}

	_, err := h.StartRental(env.Ctx, StartRentalCommand{ActorID: apptest.DriverID, BookingID: "unpaid", Inspection: inspectionInput()})
	assert.ErrorIs(t, err, domainbooking.ErrPaymentRequired)
	_, err = h.StartRental(env.Ctx, StartRentalCommand{ActorID: apptest.HostID, BookingID: "bk-1", Inspection: inspectionInput()})
	assert.ErrorIs(t, err, domainbooking.ErrDriverOnly)
	partial := inspectionInput()
	partial.Right = Photo{}
	_, err = h.StartRental(env.Ctx, StartRentalCommand{ActorID: apptest.DriverID, BookingID: "bk-1", Inspection: partial})
	assert.ErrorIs(t, err, domainbooking.ErrPhotosRequired)
	assert.Empty(t, up.Keys, "rejected requests upload nothing")

	res, err := h.StartRental(env.Ctx, StartRentalCommand{ActorID: apptest.DriverID, BookingID: "bk-1", Inspection: inspectionInput()})
	require.NoError(t, err)
	assert.Equal(t, "active", res.Status)
	require.NotNil(t, res.PickupInspection)
	assert.Equal(t, "https://cdn.test/existing-back.jpg", res.PickupInspection.Back)
	assert.True(t, strings.HasPrefix(res.PickupInspection.Front, "https://cdn.test/bookings/bk-1/pickup/front-"))
	assert.True(t, strings.HasSuffix(res.PickupInspection.Left, ".jpg"))
	assert.True(t, strings.HasSuffix(res.PickupInspection.Right, ".png"))
	assert.Len(t, up.Keys, 3)

	_, err = h.StartRental(env.Ctx, StartRentalCommand{ActorID: apptest.DriverID, BookingID: "bk-1", Inspection: inspectionInput()})
	assert.ErrorIs(t, err, domainbooking.ErrInvalidTransition)

	done, err := h.CompleteRental(env.Ctx, CompleteRentalCommand{ActorID: apptest.DriverID, BookingID: "bk-1", Inspection: inspectionInput()})
	require.NoError(t, err)
	assert.Equal(t, "completed", done.Status)
	require.NotNil(t, done.ReturnInspection)

	vehicle, err := env.Unit.Vehicles().ByID(env.Ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, vehicle.TripCount)
}

func TestQuoteExtension(t *testing.T) {
	env := apptest.NewEnv(t)
	v := env.SeedVehicle(t, "veh-1", apptest.HostID, 5000)
	env.SeedBooking(t, "bk-1", v, apptest.Day(1), apptest.Day(4), domainbooking.StatusConfirmed, domainbooking.PaymentPaid)
	gw := apptest.NewGateway()
	h := &QuoteExtensionHandler{Payments: gw}

	quote, err := h.Handle(env.Ctx, QuoteExtensionCommand{ActorID: apptest.DriverID, BookingID: "bk-1", Days: 2})
	require.NoError(t, err)
	assert.Equal(t, 100.0, quote.Cost.Amount)
	assert.Equal(t, 250.0, quote.NewTotal.Amount)
	assert.Equal(t, apptest.Day(6), quote.NewEndDate)
	assert.Equal(t, "pi_ext_1", quote.PaymentIntentID)
	require.Len(t, gw.Intents, 1)
	assert.Equal(t, 2, gw.Intents[0].Days)
	assert.Equal(t, int64(10000), gw.Intents[0].Amount.Amount)
	assert.Equal(t, 3, env.Booking(t, "bk-1").TotalDays, "quoting never mutates the booking")

	env.SeedBooking(t, "next", v, apptest.Day(5), apptest.Day(8), domainbooking.StatusPending, domainbooking.PaymentPending)
	_, err = h.Handle(env.Ctx, QuoteExtensionCommand{ActorID: apptest.DriverID, BookingID: "bk-1", Days: 2})
	var conflict *domainbooking.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, apptest.Day(5), conflict.AvailableUntil)

	gw.Fail = true
	_, err = h.Handle(env.Ctx, QuoteExtensionCommand{ActorID: apptest.DriverID, BookingID: "bk-1", Days: 1})
	assert.ErrorIs(t, err, apperr.ErrUpstream)

	_, err = h.Handle(env.Ctx, QuoteExtensionCommand{ActorID: apptest.HostID, BookingID: "bk-1", Days: 1})
	assert.ErrorIs(t, err, domainbooking.ErrDriverOnly)
}

func TestSelectInsurance(t *testing.T) {
	env := apptest.NewEnv(t)
	v := env.SeedVehicle(t, "veh-1", apptest.HostID, 5000)
	env.SeedBooking(t, "bk-1", v, apptest.Day(1), apptest.Day(4), domainbooking.StatusPending, domainbooking.PaymentPending)
	env.SeedBooking(t, "paid", v, apptest.Day(10), apptest.Day(12), domainbooking.StatusConfirmed, domainbooking.PaymentPaid)
	h := &SelectInsuranceHandler{Now: apptest.Clock}

	res, err := h.Handle(env.Ctx, SelectInsuranceCommand{ActorID: apptest.DriverID, BookingID: "bk-1", Plan: "standard"})
	require.NoError(t, err)
	require.NotNil(t, res.Insurance)
	assert.Equal(t, 75.0, res.Insurance.Total.Amount)
	assert.Equal(t, 225.0, res.TotalPrice.Amount)
	assert.Equal(t, defaultProvider, res.Insurance.Provider)
	assert.True(t, strings.HasPrefix(res.Insurance.PolicyNumber, "POL-bk-1-"))

	res, err = h.Handle(env.Ctx, SelectInsuranceCommand{ActorID: apptest.DriverID, BookingID: "bk-1", Plan: "none"})
	require.NoError(t, err)
	assert.Nil(t, res.Insurance)
	assert.Equal(t, 150.0, res.TotalPrice.Amount)

	_, err = h.Handle(env.Ctx, SelectInsuranceCommand{ActorID: apptest.DriverID, BookingID: "paid", Plan: "basic"})
	assert.ErrorIs(t, err, domainbooking.ErrInsuranceLocked)

	plans, err := (&ListInsurancePlansHandler{Currency: "USD"}).Handle(env.Ctx, ListInsurancePlansQuery{})
	require.NoError(t, err)
	assert.Len(t, plans.Items, 3)
}

func TestReturnReminders(t *testing.T) {
	env := apptest.NewEnv(t)
	v := env.SeedVehicle(t, "veh-1", apptest.HostID, 5000)
	env.SeedBooking(t, "soon", v, apptest.Day(1), apptest.Day(4), domainbooking.StatusActive, domainbooking.PaymentPaid)
	env.SeedBooking(t, "later", v, apptest.Day(10), apptest.Day(20), domainbooking.StatusActive, domainbooking.PaymentPaid)
	env.SeedBooking(t, "confirmed", v, apptest.Day(2), apptest.Day(3), domainbooking.StatusConfirmed, domainbooking.PaymentPaid)

	box := memory.NewOutbox(nil, nil)
	now := apptest.Day(3).Add(12 * time.Hour)
	h := &SendReturnRemindersHandler{Outbox: box, Now: func() time.Time { return now }}

	res, err := h.Handle(env.Ctx, SendReturnRemindersCommand{Window: 24 * time.Hour})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.True(t, env.Booking(t, "soon").ReturnReminderSent)
	assert.False(t, env.Booking(t, "later").ReturnReminderSent)
	require.Len(t, box.Delivered(), 1)
	assert.Equal(t, domainbooking.EventReminderDue, box.Delivered()[0].Name)

	res, err = h.Handle(env.Ctx, SendReturnRemindersCommand{Window: 24 * time.Hour})
	require.NoError(t, err)
	assert.Zero(t, res.Sent)
}

func TestReturnReminderSurvivesStaleSave(t *testing.T) {
	cases := []struct {
		name string
		save func(env *apptest.Env, b *domainbooking.Booking) error
	}{
		{"save", func(env *apptest.Env, b *domainbooking.Booking) error {
			b.DropoffTime = "18:00"
			return env.Unit.Bookings().Save(env.Ctx, b)
		}},
		{"save if payment status", func(env *apptest.Env, b *domainbooking.Booking) error {
			b.MarkRefunded(apptest.Now)
			return env.Unit.Bookings().SaveIfPaymentStatus(env.Ctx, b, domainbooking.PaymentPaid)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := apptest.NewEnv(t)
			v := env.SeedVehicle(t, "veh-1", apptest.HostID, 5000)
			env.SeedBooking(t, "soon", v, apptest.Day(1), apptest.Day(4), domainbooking.StatusActive, domainbooking.PaymentPaid)
			stale := env.Booking(t, "soon")

			box := memory.NewOutbox(nil, nil)
			now := apptest.Day(3).Add(12 * time.Hour)
			h := &SendReturnRemindersHandler{Outbox: box, Now: func() time.Time { return now }}

			res, err := h.Handle(env.Ctx, SendReturnRemindersCommand{Window: 24 * time.Hour})
			require.NoError(t, err)
			require.Equal(t, 1, res.Sent)

			require.NoError(t, tc.save(env, stale))
			assert.True(t, env.Booking(t, "soon").ReturnReminderSent)

			res, err = h.Handle(env.Ctx, SendReturnRemindersCommand{Window: 24 * time.Hour})
			require.NoError(t, err)
			assert.Zero(t, res.Sent)
			assert.Len(t, box.Delivered(), 1)
		})
	}
}

func TestBackfillCodes(t *testing.T) {
	env := apptest.NewEnv(t)
	v := env.SeedVehicle(t, "veh-1", apptest.HostID, 5000)
	for _, id := range []string{"a", "b"} {
		b := env.SeedBooking(t, id, v, apptest.Day(1), apptest.Day(4), domainbooking.StatusPending, domainbooking.PaymentPending)
		b.Code = ""
		require.NoError(t, env.Unit.Bookings().Save(env.Ctx, b))
	}
	env.SeedBooking(t, "coded", v, apptest.Day(5), apptest.Day(6), domainbooking.StatusPending, domainbooking.PaymentPending)

	h := &BackfillCodesHandler{Sequence: memory.NewSequence()}
	res, err := h.Handle(env.Ctx, BackfillCodesCommand{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Assigned)
	assert.Equal(t, "RSV-coded", env.Booking(t, "coded").Code)
	codes := []string{env.Booking(t, "a").Code, env.Booking(t, "b").Code}
	assert.ElementsMatch(t, []string{"RSV-000001", "RSV-000002"}, codes)

	res, err = h.Handle(env.Ctx, BackfillCodesCommand{Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, res.Assigned)
}
