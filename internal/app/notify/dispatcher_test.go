package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carshare/internal/app/apptest"
	"carshare/internal/app/outbox"
	"carshare/internal/app/policies"
	domainbooking "carshare/internal/domain/booking"
	domainuser "carshare/internal/domain/user"
)

func encodeAll(t *testing.T, b *domainbooking.Booking) []outbox.EventRecord {
	t.Helper()
	var out []outbox.EventRecord
	for _, ev := range b.Drain() {
		rec, err := outbox.JSONEventEncoder{}.Encode(ev)
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

func TestDispatcherSendsPerEvent(t *testing.T) {
	env := apptest.NewEnv(t)
	env.SeedUser(t, apptest.DriverID, "driver@example.com", domainuser.RoleDriver)
	env.SeedUser(t, apptest.HostID, "host@example.com", domainuser.RoleHost)
	v := env.SeedVehicle(t, "veh-1", apptest.HostID, 5000)
	b := env.SeedBooking(t, "bk-1", v, apptest.Day(1), apptest.Day(4), domainbooking.StatusPending, domainbooking.PaymentPending)

	_, err := b.MarkPaid("cs_1", domainbooking.SourceWebhook, apptest.Now)
	require.NoError(t, err)
	_, err = b.ApplyExtension(2, "pi_ext_1", apptest.Now)
	require.NoError(t, err)
	b.Status = domainbooking.StatusActive
	b.MarkReturnReminderSent(apptest.Now)

	notifier := &apptest.Notifier{}
	d := &Dispatcher{UoWFactory: env.Factory, Notifier: notifier}
	for _, rec := range encodeAll(t, b) {
		require.NoError(t, d.HandleEvent(env.Ctx, rec))
	}

	assert.Equal(t, []string{
		policies.TemplateBookingConfirmed,
		policies.TemplateNewReservation,
		policies.TemplateBookingExtended,
		policies.TemplateBookingExtended,
		policies.TemplateReturnReminder,
	}, notifier.Templates())
	assert.Equal(t, "driver@example.com", notifier.Sent[0].To)
	assert.Equal(t, "host@example.com", notifier.Sent[1].To)
	assert.Equal(t, "RSV-bk-1", notifier.Sent[0].Data["code"])
	assert.Equal(t, 2, notifier.Sent[2].Data["days"])
	assert.Equal(t, "2025-03-06", notifier.Sent[2].Data["new_end_date"])
}

func TestDispatcherSwallowsFailures(t *testing.T) {
	env := apptest.NewEnv(t)
	env.SeedUser(t, apptest.DriverID, "driver@example.com", domainuser.RoleDriver)
	v := env.SeedVehicle(t, "veh-1", apptest.HostID, 5000)
	b := env.SeedBooking(t, "bk-1", v, apptest.Day(1), apptest.Day(4), domainbooking.StatusPending, domainbooking.PaymentPending)
	_, err := b.MarkPaid("cs_1", domainbooking.SourceWebhook, apptest.Now)
	require.NoError(t, err)
	recs := encodeAll(t, b)
	require.Len(t, recs, 1)

	tel := &apptest.Telemetry{}
	notifier := &apptest.Notifier{Fail: true}
	d := &Dispatcher{UoWFactory: env.Factory, Notifier: notifier, Telemetry: tel}
	require.NoError(t, d.HandleEvent(env.Ctx, recs[0]))
	assert.Equal(t, 1, tel.Failures, "host has no account, only the driver send is attempted")

	bad := outbox.EventRecord{ID: "x", Name: domainbooking.EventPaid, Payload: []byte("{")}
	assert.NoError(t, d.HandleEvent(env.Ctx, bad))
	assert.NoError(t, d.HandleEvent(env.Ctx, outbox.EventRecord{ID: "y", Name: "vehicle.listed", Payload: []byte("{}")}))
}
