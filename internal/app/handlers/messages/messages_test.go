package messages

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carshare/internal/app/apptest"
	domainbooking "carshare/internal/domain/booking"
	domainmessages "carshare/internal/domain/messages"
)

func TestConversation(t *testing.T) {
	env := apptest.NewEnv(t)
	v := env.SeedVehicle(t, "veh-1", apptest.HostID, 5000)
	env.SeedBooking(t, "bk-1", v, apptest.Day(1), apptest.Day(4), domainbooking.StatusPending, domainbooking.PaymentPending)
	clock := apptest.Now
	send := &SendMessageHandler{Now: func() time.Time { clock = clock.Add(time.Minute); return clock }}

	first, err := send.Handle(env.Ctx, SendMessageCommand{ActorID: apptest.DriverID, BookingID: "bk-1", Body: "Is the car pet friendly?"})
	require.NoError(t, err)
	assert.Equal(t, apptest.HostID, first.RecipientID)

	reply, err := send.Handle(env.Ctx, SendMessageCommand{ActorID: apptest.HostID, BookingID: "bk-1", Body: "Yes"})
	require.NoError(t, err)
	assert.Equal(t, apptest.DriverID, reply.RecipientID)

	_, err = send.Handle(env.Ctx, SendMessageCommand{ActorID: apptest.OtherID, BookingID: "bk-1", Body: "hi"})
	assert.ErrorIs(t, err, domainbooking.ErrNotParticipant)
	_, err = send.Handle(env.Ctx, SendMessageCommand{ActorID: apptest.DriverID, BookingID: "bk-1", Body: "   "})
	assert.ErrorIs(t, err, domainmessages.ErrEmptyBody)

	list := &ListMessagesHandler{UoWFactory: env.Factory}
	out, err := list.Handle(env.Ctx, ListMessagesQuery{ActorID: apptest.HostID, BookingID: "bk-1"})
	require.NoError(t, err)
	require.Len(t, out.Items, 2)
	assert.Equal(t, "Is the car pet friendly?", out.Items[0].Body)
	assert.Equal(t, "Yes", out.Items[1].Body)

	_, err = list.Handle(env.Ctx, ListMessagesQuery{ActorID: apptest.OtherID, BookingID: "bk-1"})
	assert.ErrorIs(t, err, domainbooking.ErrNotParticipant)
}
