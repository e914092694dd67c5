package messages

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carshare/internal/domain/booking"
)

func TestNewRoutesToCounterpart(t *testing.T) {
	b := &booking.Booking{ID: "bk-1", DriverID: "driver-1", HostID: "host-1"}
	now := time.Now()

	m, err := New("m1", b, "driver-1", " hi ", now)
	require.NoError(t, err)
	assert.Equal(t, "host-1", m.RecipientID)
	assert.Equal(t, "hi", m.Body)

	m, err = New("m2", b, "host-1", "hello", now)
	require.NoError(t, err)
	assert.Equal(t, "driver-1", m.RecipientID)

	_, err = New("m3", b, "stranger", "hey", now)
	assert.ErrorIs(t, err, booking.ErrNotParticipant)

	_, err = New("m4", b, "driver-1", "   ", now)
	assert.ErrorIs(t, err, ErrEmptyBody)
}
