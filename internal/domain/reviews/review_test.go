package reviews

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carshare/internal/domain/booking"
)

func completedBooking() *booking.Booking {
	return &booking.Booking{ID: "bk-1", VehicleID: "veh-1", DriverID: "driver-1", HostID: "host-1", Status: booking.StatusCompleted}
}

func TestSubmit(t *testing.T) {
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	r, err := Submit(SubmitParams{ID: "rv-1", Booking: completedBooking(), AuthorID: "driver-1", Rating: 5, Text: " great ", CreatedAt: now})
	require.NoError(t, err)
	assert.Equal(t, "great", r.Text)
	assert.Len(t, r.PendingEvents(), 1)

	_, err = Submit(SubmitParams{ID: "rv-2", Booking: completedBooking(), AuthorID: "host-1", Rating: 5, CreatedAt: now})
	assert.ErrorIs(t, err, booking.ErrDriverOnly)

	active := completedBooking()
	active.Status = booking.StatusActive
	_, err = Submit(SubmitParams{ID: "rv-3", Booking: active, AuthorID: "driver-1", Rating: 4, CreatedAt: now})
	assert.ErrorIs(t, err, ErrNotCompleted)

	_, err = Submit(SubmitParams{ID: "rv-4", Booking: completedBooking(), AuthorID: "driver-1", Rating: 0, CreatedAt: now})
	assert.ErrorIs(t, err, ErrInvalidRating)
}
