package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carshare/internal/app/apptest"
	"carshare/internal/app/policies"
	"carshare/internal/app/uow"
	domainbooking "carshare/internal/domain/booking"
	"carshare/internal/domain/shared/apperr"
	"carshare/internal/domain/shared/money"
	domainuser "carshare/internal/domain/user"
	"carshare/internal/infra/storage/memory"
)

type fixture struct {
	env        *apptest.Env
	box        *memory.Outbox
	gateway    *apptest.Gateway
	telemetry  *apptest.Telemetry
	reconciler *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	env := apptest.NewEnv(t)
	box := memory.NewOutbox(nil, nil)
	tel := &apptest.Telemetry{}
	return &fixture{
		env:        env,
		box:        box,
		gateway:    apptest.NewGateway(),
		telemetry:  tel,
		reconciler: &Reconciler{Outbox: box, Telemetry: tel, Now: apptest.Clock},
	}
}

func (f *fixture) events(name string) int {
	n := 0
	for _, rec := range f.box.Delivered() {
		if rec.Name == name {
			n++
		}
	}
	return n
}

func bookingPayment(id, bookingID string) policies.Payment {
	return policies.Payment{ID: id, BookingID: bookingID, Purpose: policies.PurposeBooking, Succeeded: true, CreatedAt: apptest.Now}
}

func TestWebhookSucceededAppliesOnce(t *testing.T) {
	f := newFixture(t)
	v := f.env.SeedVehicle(t, "veh-1", apptest.HostID, 5000)
	f.env.SeedBooking(t, "bk-1", v, apptest.Day(1), apptest.Day(4), domainbooking.StatusPending, domainbooking.PaymentPending)
	f.gateway.Webhook = policies.WebhookEvent{ID: "evt_1", Type: policies.WebhookPaymentSucceeded, RawType: "checkout.session.completed", Payment: bookingPayment("cs_1", "bk-1")}
	h := &WebhookHandler{Payments: f.gateway, Reconciler: f.reconciler}

	ack, err := h.Handle(f.env.Ctx, HandleWebhookCommand{Payload: []byte("{}"), Signature: "sig"})
	require.NoError(t, err)
	assert.True(t, ack.Applied)
	b := f.env.Booking(t, "bk-1")
	assert.Equal(t, domainbooking.PaymentPaid, b.PaymentStatus)
	assert.Equal(t, domainbooking.StatusConfirmed, b.Status)
	assert.Equal(t, "cs_1", b.PaymentRef)

	ack, err = h.Handle(f.env.Ctx, HandleWebhookCommand{Payload: []byte("{}"), Signature: "sig"})
	require.NoError(t, err)
	assert.False(t, ack.Applied)
	assert.Equal(t, 1, f.events(domainbooking.EventPaid))
	assert.Equal(t, 1, f.telemetry.Paid[string(domainbooking.SourceWebhook)])
}

func TestWebhookOtherEvents(t *testing.T) {
	tests := []struct {
		name         string
		payment      domainbooking.PaymentStatus
		event        policies.WebhookEvent
		wantPayment  domainbooking.PaymentStatus
		wantEvent    string
		wantApplied  bool
		wantRecorded int
	}{
		{
			name:         "failed while pending",
			payment:      domainbooking.PaymentPending,
			event:        policies.WebhookEvent{Type: policies.WebhookPaymentFailed, Payment: policies.Payment{ID: "pi_1", BookingID: "bk-1", Purpose: policies.PurposeBooking, Failed: true}},
			wantPayment:  domainbooking.PaymentFailed,
			wantEvent:    domainbooking.EventPaymentFailed,
			wantApplied:  true,
			wantRecorded: 1,
		},
		{
			name:         "failure never overrides paid",
			payment:      domainbooking.PaymentPaid,
			event:        policies.WebhookEvent{Type: policies.WebhookPaymentFailed, Payment: policies.Payment{ID: "pi_1", BookingID: "bk-1", Purpose: policies.PurposeBooking, Failed: true}},
			wantPayment:  domainbooking.PaymentPaid,
			wantEvent:    domainbooking.EventPaymentFailed,
			wantRecorded: 0,
		},
		{
			name:         "refund of paid booking",
			payment:      domainbooking.PaymentPaid,
			event:        policies.WebhookEvent{Type: policies.WebhookRefunded, Payment: policies.Payment{ID: "pi_1", BookingID: "bk-1", Purpose: policies.PurposeBooking}},
			wantPayment:  domainbooking.PaymentRefunded,
			wantEvent:    domainbooking.EventRefunded,
			wantApplied:  true,
			wantRecorded: 1,
		},
		{
			name:         "extension failure leaves booking alone",
			payment:      domainbooking.PaymentPaid,
			event:        policies.WebhookEvent{Type: policies.WebhookPaymentFailed, Payment: policies.Payment{ID: "pi_ext", BookingID: "bk-1", Purpose: policies.PurposeExtension, ExtensionDays: 2}},
			wantPayment:  domainbooking.PaymentPaid,
			wantEvent:    domainbooking.EventPaymentFailed,
			wantRecorded: 0,
		},
		{
			name:         "ignored event type",
			payment:      domainbooking.PaymentPending,
			event:        policies.WebhookEvent{Type: policies.WebhookIgnored, RawType: "customer.created"},
			wantPayment:  domainbooking.PaymentPending,
			wantEvent:    domainbooking.EventPaid,
			wantRecorded: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			v := f.env.SeedVehicle(t, "veh-1", apptest.HostID, 5000)
			f.env.SeedBooking(t, "bk-1", v, apptest.Day(1), apptest.Day(4), domainbooking.StatusConfirmed, tt.payment)
			f.gateway.Webhook = tt.event
			h := &WebhookHandler{Payments: f.gateway, Reconciler: f.reconciler}

			ack, err := h.Handle(f.env.Ctx, HandleWebhookCommand{Payload: []byte("{}"), Signature: "sig"})
			require.NoError(t, err)
			assert.True(t, ack.Received)
			assert.Equal(t, tt.wantApplied, ack.Applied)
			assert.Equal(t, tt.wantPayment, f.env.Booking(t, "bk-1").PaymentStatus)
			assert.Equal(t, tt.wantRecorded, f.events(tt.wantEvent))
		})
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	f.gateway.WebhookErr = errors.New("signature mismatch")
	h := &WebhookHandler{Payments: f.gateway, Reconciler: f.reconciler}

	_, err := h.Handle(f.env.Ctx, HandleWebhookCommand{Payload: []byte("{}"), Signature: "bad"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestWebhookAcksRefundedBookingPayment(t *testing.T) {
	f := newFixture(t)
	v := f.env.SeedVehicle(t, "veh-1", apptest.HostID, 5000)
	f.env.SeedBooking(t, "bk-1", v, apptest.Day(1), apptest.Day(4), domainbooking.StatusCancelled, domainbooking.PaymentRefunded)
	f.gateway.Webhook = policies.WebhookEvent{Type: policies.WebhookPaymentSucceeded, Payment: bookingPayment("cs_1", "bk-1")}
	h := &WebhookHandler{Payments: f.gateway, Reconciler: f.reconciler}

	ack, err := h.Handle(f.env.Ctx, HandleWebhookCommand{Payload: []byte("{}"), Signature: "sig"})
	require.NoError(t, err)
	assert.False(t, ack.Applied)
	assert.Equal(t, domainbooking.PaymentRefunded, f.env.Booking(t, "bk-1").PaymentStatus)
}

func TestMarkPaidKeepsCancelledStatus(t *testing.T) {
	f := newFixture(t)
	v := f.env.SeedVehicle(t, "veh-1", apptest.HostID, 5000)
	f.env.SeedBooking(t, "bk-1", v, apptest.Day(1), apptest.Day(4), domainbooking.StatusCancelled, domainbooking.PaymentPending)

	out, err := f.reconciler.MarkPaid(f.env.Ctx, f.env.Unit, "bk-1", "cs_1", domainbooking.SourceManual)
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, domainbooking.StatusCancelled, out.Booking.Status)
	assert.Equal(t, domainbooking.PaymentPaid, out.Booking.PaymentStatus)
}

// racingRepo lets another writer mark the booking paid just before the first
// conditional save.
type racingRepo struct {
	domainbooking.Repository
	raced bool
}

func (r *racingRepo) SaveIfPaymentStatus(ctx context.Context, b *domainbooking.Booking, expected domainbooking.PaymentStatus) error {
	if !r.raced {
		r.raced = true
		other, err := r.Repository.ByID(ctx, b.ID)
		if err != nil {
			return err
		}
		if _, err := other.MarkPaid("cs_other", domainbooking.SourceWebhook, apptest.Now); err != nil {
			return err
		}
		if err := r.Repository.Save(ctx, other); err != nil {
			return err
		}
	}
	return r.Repository.SaveIfPaymentStatus(ctx, b, expected)
}

type racingUnit struct {
	uow.UnitOfWork
	repo domainbooking.Repository
}

func (u racingUnit) Bookings() domainbooking.Repository { return u.repo }

func TestMarkPaidLosesRaceWithoutDuplicateEvent(t *testing.T) {
	f := newFixture(t)
	v := f.env.SeedVehicle(t, "veh-1", apptest.HostID, 5000)
	f.env.SeedBooking(t, "bk-1", v, apptest.Day(1), apptest.Day(4), domainbooking.StatusPending, domainbooking.PaymentPending)
	unit := racingUnit{UnitOfWork: f.env.Unit, repo: &racingRepo{Repository: f.env.Unit.Bookings()}}

	out, err := f.reconciler.MarkPaid(f.env.Ctx, unit, "bk-1", "cs_1", domainbooking.SourceClient)
	require.NoError(t, err)
	assert.False(t, out.Applied)
	assert.Equal(t, "cs_other", f.env.Booking(t, "bk-1").PaymentRef)
	assert.Zero(t, f.events(domainbooking.EventPaid))
}

func TestCheckout(t *testing.T) {
	f := newFixture(t)
	f.env.SeedUser(t, apptest.DriverID, "driver@example.com", domainuser.RoleDriver)
	v := f.env.SeedVehicle(t, "veh-1", apptest.HostID, 5000)
	f.env.SeedBooking(t, "bk-1", v, apptest.Day(1), apptest.Day(4), domainbooking.StatusPending, domainbooking.PaymentPending)
	f.env.SeedBooking(t, "paid", v, apptest.Day(10), apptest.Day(12), domainbooking.StatusConfirmed, domainbooking.PaymentPaid)
	h := &CheckoutHandler{Payments: f.gateway, Now: apptest.Clock}

	out, err := h.Handle(f.env.Ctx, CreateCheckoutCommand{ActorID: apptest.DriverID, BookingID: "bk-1"})
	require.NoError(t, err)
	assert.Equal(t, "cs_1", out.SessionID)
	assert.Equal(t, 150.0, out.Amount.Amount)
	assert.Equal(t, "cs_1", f.env.Booking(t, "bk-1").PaymentRef)
	require.Len(t, f.gateway.Checkouts, 1)
	assert.Equal(t, money.Must(15000, "USD"), f.gateway.Checkouts[0].Amount)

	_, err = h.Handle(f.env.Ctx, CreateCheckoutCommand{ActorID: apptest.DriverID, BookingID: "bk-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.gateway.Customers, "customer is created once")

	_, err = h.Handle(f.env.Ctx, CreateCheckoutCommand{ActorID: apptest.DriverID, BookingID: "paid"})
	assert.ErrorIs(t, err, domainbooking.ErrAlreadyPaid)
	_, err = h.Handle(f.env.Ctx, CreateCheckoutCommand{ActorID: apptest.HostID, BookingID: "bk-1"})
	assert.ErrorIs(t, err, domainbooking.ErrDriverOnly)

	f.gateway.Fail = true
	_, err = h.Handle(f.env.Ctx, CreateCheckoutCommand{ActorID: apptest.DriverID, BookingID: "bk-1"})
	assert.ErrorIs(t, err, apperr.ErrUpstream)
}

func TestConfirmPayment(t *testing.T) {
	f := newFixture(t)
	v := f.env.SeedVehicle(t, "veh-1", apptest.HostID, 5000)
	b := f.env.SeedBooking(t, "bk-1", v, apptest.Day(1), apptest.Day(4), domainbooking.StatusPending, domainbooking.PaymentPending)
	b.PaymentRef = "cs_1"
	require.NoError(t, f.env.Unit.Bookings().Save(f.env.Ctx, b))
	h := &ConfirmPaymentHandler{Payments: f.gateway, Reconciler: f.reconciler}

	pending := bookingPayment("cs_1", "bk-1")
	pending.Succeeded = false
	f.gateway.Payments["cs_1"] = pending
	out, err := h.Handle(f.env.Ctx, ConfirmPaymentCommand{ActorID: apptest.DriverID, BookingID: "bk-1"})
	require.NoError(t, err)
	assert.False(t, out.Applied)
	assert.Equal(t, "pending", out.Booking.PaymentStatus)

	f.gateway.Payments["cs_2"] = bookingPayment("cs_2", "other")
	_, err = h.Handle(f.env.Ctx, ConfirmPaymentCommand{ActorID: apptest.DriverID, BookingID: "bk-1", SessionID: "cs_2"})
	assert.ErrorIs(t, err, ErrPaymentMismatch)

	_, err = h.Handle(f.env.Ctx, ConfirmPaymentCommand{ActorID: apptest.OtherID, BookingID: "bk-1"})
	assert.ErrorIs(t, err, domainbooking.ErrNotParticipant)

	f.gateway.Payments["cs_1"] = bookingPayment("cs_1", "bk-1")
	out, err = h.Handle(f.env.Ctx, ConfirmPaymentCommand{ActorID: apptest.DriverID, BookingID: "bk-1"})
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, "confirmed", out.Booking.Status)
	assert.Equal(t, "paid", out.Booking.PaymentStatus)
	assert.Equal(t, 1, f.telemetry.Paid[string(domainbooking.SourceClient)])
}

func TestConfirmPaymentAfterWebhook(t *testing.T) {
	f := newFixture(t)
	v := f.env.SeedVehicle(t, "veh-1", apptest.HostID, 5000)
	f.env.SeedBooking(t, "bk-1", v, apptest.Day(1), apptest.Day(4), domainbooking.StatusPending, domainbooking.PaymentPending)
	f.gateway.Webhook = policies.WebhookEvent{ID: "evt_1", Type: policies.WebhookPaymentSucceeded, RawType: "payment_intent.succeeded", Payment: bookingPayment("pi_1", "bk-1")}
	webhook := &WebhookHandler{Payments: f.gateway, Reconciler: f.reconciler}
	_, err := webhook.Handle(f.env.Ctx, HandleWebhookCommand{Payload: []byte("{}"), Signature: "sig"})
	require.NoError(t, err)
	require.Equal(t, "pi_1", f.env.Booking(t, "bk-1").PaymentRef)

	h := &ConfirmPaymentHandler{Payments: f.gateway, Reconciler: f.reconciler}
	out, err := h.Handle(f.env.Ctx, ConfirmPaymentCommand{ActorID: apptest.DriverID, BookingID: "bk-1"})
	require.NoError(t, err)
	assert.False(t, out.Applied)
	assert.Equal(t, "paid", out.Booking.PaymentStatus)
	assert.Equal(t, "confirmed", out.Booking.Status)
	assert.Equal(t, 1, f.events(domainbooking.EventPaid))
}

func extensionPayment(id string, days int, cents int64) policies.Payment {
	return policies.Payment{
		ID:            id,
		BookingID:     "bk-1",
		Purpose:       policies.PurposeExtension,
		ExtensionDays: days,
		Amount:        money.Must(cents, "USD"),
		Succeeded:     true,
		CreatedAt:     apptest.Now,
	}
}

func TestConfirmExtension(t *testing.T) {
	f := newFixture(t)
	v := f.env.SeedVehicle(t, "veh-1", apptest.HostID, 5000)
	f.env.SeedBooking(t, "bk-1", v, apptest.Day(1), apptest.Day(4), domainbooking.StatusConfirmed, domainbooking.PaymentPaid)
	f.gateway.Payments["pi_ext_1"] = extensionPayment("pi_ext_1", 2, 10000)
	f.gateway.Payments["pi_bad"] = extensionPayment("pi_bad", 2, 5000)
	h := &ConfirmExtensionHandler{Payments: f.gateway, Reconciler: f.reconciler}

	_, err := h.Handle(f.env.Ctx, ConfirmExtensionCommand{ActorID: apptest.DriverID, BookingID: "bk-1", PaymentIntentID: "pi_bad"})
	assert.ErrorIs(t, err, ErrExtensionAmount)

	out, err := h.Handle(f.env.Ctx, ConfirmExtensionCommand{ActorID: apptest.DriverID, BookingID: "bk-1", PaymentIntentID: "pi_ext_1"})
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, 250.0, out.Booking.TotalPrice.Amount)
	assert.Equal(t, 5, out.Booking.TotalDays)
	assert.Equal(t, apptest.Day(6), out.Booking.EndDate)
	require.Len(t, out.Booking.Extensions, 1)
	assert.Equal(t, "pi_ext_1", out.Booking.Extensions[0].PaymentRef)

	again, err := h.Handle(f.env.Ctx, ConfirmExtensionCommand{ActorID: apptest.DriverID, BookingID: "bk-1", PaymentIntentID: "pi_ext_1"})
	require.NoError(t, err)
	assert.False(t, again.Applied)
	assert.Equal(t, 250.0, again.Booking.TotalPrice.Amount)
	assert.Equal(t, 1, f.events(domainbooking.EventExtended))

	_, err = h.Handle(f.env.Ctx, ConfirmExtensionCommand{ActorID: apptest.HostID, BookingID: "bk-1", PaymentIntentID: "pi_ext_1"})
	assert.ErrorIs(t, err, domainbooking.ErrDriverOnly)
}

func TestApplyExtensionBlockedAfterPayment(t *testing.T) {
	f := newFixture(t)
	v := f.env.SeedVehicle(t, "veh-1", apptest.HostID, 5000)
	f.env.SeedBooking(t, "bk-1", v, apptest.Day(1), apptest.Day(4), domainbooking.StatusConfirmed, domainbooking.PaymentPaid)
	f.env.SeedBooking(t, "next", v, apptest.Day(5), apptest.Day(7), domainbooking.StatusPending, domainbooking.PaymentPending)

	_, err := f.reconciler.ApplyExtension(f.env.Ctx, f.env.Unit, extensionPayment("pi_ext_1", 2, 10000))
	var conflict *domainbooking.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, apptest.Day(5), conflict.AvailableUntil)
	assert.Equal(t, apptest.Day(4), f.env.Booking(t, "bk-1").Range.End)
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	v := f.env.SeedVehicle(t, "veh-1", apptest.HostID, 5000)
	f.env.SeedBooking(t, "bk-1", v, apptest.Day(1), apptest.Day(4), domainbooking.StatusPending, domainbooking.PaymentPending)
	h := &ReconcileHandler{Payments: f.gateway, Reconciler: f.reconciler, Now: apptest.Clock}

	_, err := h.Handle(f.env.Ctx, ReconcilePaymentCommand{ActorID: apptest.DriverID, BookingID: "bk-1"})
	assert.ErrorIs(t, err, ErrNoPaymentFound)

	old := bookingPayment("cs_old", "bk-1")
	old.CreatedAt = apptest.Now.Add(-100 * time.Hour)
	ext := extensionPayment("pi_ext_1", 1, 5000)
	ext.CreatedAt = apptest.Now.Add(-time.Hour)
	f.gateway.Recent = []policies.Payment{
		old,
		ext,
		bookingPayment("cs_1", "bk-1"),
		bookingPayment("cs_x", "someone-else"),
	}

	out, err := h.Handle(f.env.Ctx, ReconcilePaymentCommand{ActorID: apptest.HostID, BookingID: "bk-1"})
	require.NoError(t, err)
	assert.True(t, out.Found)
	assert.True(t, out.Applied)
	assert.Equal(t, []string{"cs_1"}, out.PaymentReferences, "extension before the booking is paid is skipped")
	assert.Equal(t, "paid", out.Booking.PaymentStatus)

	out, err = h.Handle(f.env.Ctx, ReconcilePaymentCommand{ActorID: apptest.DriverID, BookingID: "bk-1"})
	require.NoError(t, err)
	assert.False(t, out.Applied)
	assert.Equal(t, 1, out.ExtensionsApplied)
	assert.Equal(t, 200.0, out.Booking.TotalPrice.Amount)
	assert.Equal(t, 1, f.events(domainbooking.EventPaid))
}
