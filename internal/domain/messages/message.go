package messages

import (
	"context"
	"strings"
	"time"

	"carshare/internal/domain/booking"
	"carshare/internal/domain/shared/apperr"
)

var (
	ErrEmptyBody   = apperr.New(apperr.ErrInvalidInput, "messages: body is required")
	ErrBodyTooLong = apperr.New(apperr.ErrInvalidInput, "messages: body is too long")
)

const maxBodyLength = 4000

type MessageID string

// Message is a note exchanged between the driver and the host of one booking.
type Message struct {
	ID          MessageID
	BookingID   booking.BookingID
	SenderID    string
	RecipientID string
	Body        string
	SentAt      time.Time
}

type Repository interface {
	Save(ctx context.Context, msg *Message) error
	ListByBooking(ctx context.Context, bookingID booking.BookingID, limit int) ([]*Message, error)
}

func New(id MessageID, b *booking.Booking, senderID, body string, now time.Time) (*Message, error) {
	if b == nil {
		return nil, booking.ErrBookingNotFound
	}
	if err := b.RequireParticipant(senderID); err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyBody
	}
	if len(body) > maxBodyLength {
		return nil, ErrBodyTooLong
	}
	recipient := string(b.HostID)
	if b.IsHost(senderID) {
		recipient = b.DriverID
	}
	return &Message{
		ID:          id,
		BookingID:   b.ID,
		SenderID:    senderID,
		RecipientID: recipient,
		Body:        body,
		SentAt:      now.UTC(),
	}, nil
}
