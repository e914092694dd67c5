package reviews

import (
	"context"
	"strings"
	"time"

	"carshare/internal/domain/booking"
	"carshare/internal/domain/shared/apperr"
	"carshare/internal/domain/shared/events"
	"carshare/internal/domain/vehicles"
)

var (
	ErrInvalidRating   = apperr.New(apperr.ErrInvalidInput, "reviews: rating must be between 1 and 5")
	ErrNotFound        = apperr.New(apperr.ErrNotFound, "reviews: not found")
	ErrAlreadyReviewed = apperr.New(apperr.ErrInvalidState, "reviews: booking already reviewed")
	ErrNotCompleted    = apperr.New(apperr.ErrInvalidState, "reviews: only completed bookings can be reviewed")
	ErrTextTooLong     = apperr.New(apperr.ErrInvalidInput, "reviews: text is too long")
)

const maxTextLength = 2000

type ReviewID string

type Review struct {
	ID        ReviewID
	BookingID booking.BookingID
	VehicleID vehicles.VehicleID
	AuthorID  string
	Rating    int
	Text      string
	CreatedAt time.Time
	events.EventRecorder
}

type Repository interface {
	ByBooking(ctx context.Context, bookingID booking.BookingID) (*Review, error)
	ListByVehicle(ctx context.Context, vehicleID vehicles.VehicleID, limit, offset int) ([]*Review, error)
	Save(ctx context.Context, review *Review) error
}

type SubmitParams struct {
	ID        ReviewID
	Booking   *booking.Booking
	AuthorID  string
	Rating    int
	Text      string
	CreatedAt time.Time
}

// Submit lets the driver of a completed booking review the vehicle.
func Submit(params SubmitParams) (*Review, error) {
	if params.Booking == nil {
		return nil, booking.ErrBookingNotFound
	}
	if err := params.Booking.RequireDriver(params.AuthorID); err != nil {
		return nil, err
	}
	if params.Booking.Status != booking.StatusCompleted {
		return nil, ErrNotCompleted
	}
	if params.Rating < 1 || params.Rating > 5 {
		return nil, ErrInvalidRating
	}
	text := strings.TrimSpace(params.Text)
	if len(text) > maxTextLength {
		return nil, ErrTextTooLong
	}
	review := &Review{
		ID:        params.ID,
		BookingID: params.Booking.ID,
		VehicleID: params.Booking.VehicleID,
		AuthorID:  params.AuthorID,
		Rating:    params.Rating,
		Text:      text,
		CreatedAt: params.CreatedAt.UTC(),
	}
	review.Record(ReviewSubmitted{ReviewID: review.ID, BookingID: review.BookingID, VehicleID: review.VehicleID, Rating: review.Rating, At: review.CreatedAt})
	return review, nil
}

type ReviewSubmitted struct {
	ReviewID  ReviewID           `json:"review_id"`
	BookingID booking.BookingID  `json:"booking_id"`
	VehicleID vehicles.VehicleID `json:"vehicle_id"`
	Rating    int                `json:"rating"`
	At        time.Time          `json:"at"`
}

func (e ReviewSubmitted) EventName() string     { return "review.submitted" }
func (e ReviewSubmitted) AggregateID() string   { return string(e.ReviewID) }
func (e ReviewSubmitted) OccurredAt() time.Time { return e.At }
