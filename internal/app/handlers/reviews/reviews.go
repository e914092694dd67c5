package reviews

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"carshare/internal/app/commands"
	"carshare/internal/app/dto"
	"carshare/internal/app/handlers/support"
	"carshare/internal/app/outbox"
	"carshare/internal/app/queries"
	"carshare/internal/app/uow"
	domainbooking "carshare/internal/domain/booking"
	domainreviews "carshare/internal/domain/reviews"
	domainvehicles "carshare/internal/domain/vehicles"
)

const (
	submitReviewKey       = "reviews.submit"
	listVehicleReviewsKey = "reviews.list_vehicle"
)

// SubmitReviewCommand lets the driver of a completed booking rate the vehicle once.
type SubmitReviewCommand struct {
	ActorID   string `validate:"required"`
	BookingID string `validate:"required"`
	Rating    int    `validate:"min=1,max=5"`
	Text      string `validate:"max=2000"`
}

func (c SubmitReviewCommand) Key() string   { return submitReviewKey }
func (c SubmitReviewCommand) Actor() string { return c.ActorID }

// SubmitReviewHandler stores the review and folds its score into the vehicle rating.
type SubmitReviewHandler struct {
	Outbox  outbox.Outbox
	Encoder outbox.EventEncoder
	Logger  *slog.Logger
	Now     func() time.Time
}

func (h *SubmitReviewHandler) Handle(ctx context.Context, cmd SubmitReviewCommand) (*dto.Review, error) {
	unit, err := support.CurrentUnit(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if h.Now != nil {
		now = h.Now().UTC()
	}
	b, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(cmd.BookingID))
	if err != nil {
		return nil, err
	}
	if existing, err := unit.Reviews().ByBooking(ctx, b.ID); err == nil && existing != nil {
		return nil, domainreviews.ErrAlreadyReviewed
	} else if err != nil && !errors.Is(err, domainreviews.ErrNotFound) {
		return nil, err
	}
	review, err := domainreviews.Submit(domainreviews.SubmitParams{
		ID:        domainreviews.ReviewID(uuid.NewString()),
		Booking:   b,
		AuthorID:  cmd.ActorID,
		Rating:    cmd.Rating,
		Text:      cmd.Text,
		CreatedAt: now,
	})
	if err != nil {
		return nil, err
	}
	vehicle, err := unit.Vehicles().ByID(ctx, review.VehicleID)
	if err != nil {
		return nil, err
	}
	if err := vehicle.ApplyRating(review.Rating, now); err != nil {
		return nil, err
	}
	if err := unit.Reviews().Save(ctx, review); err != nil {
		return nil, err
	}
	if err := unit.Vehicles().Save(ctx, vehicle); err != nil {
		return nil, err
	}
	if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, review); err != nil {
		return nil, err
	}
	if h.Logger != nil {
		h.Logger.Info("review submitted", "booking_id", b.ID, "vehicle_id", vehicle.ID, "rating", review.Rating, "vehicle_rating", vehicle.Rating)
	}
	out := dto.MapReview(review)
	return &out, nil
}

type ListVehicleReviewsQuery struct {
	VehicleID string `validate:"required"`
	Limit     int    `validate:"gte=0,lte=100"`
	Offset    int    `validate:"gte=0"`
}

func (q ListVehicleReviewsQuery) Key() string { return listVehicleReviewsKey }

type ListVehicleReviewsHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *ListVehicleReviewsHandler) Handle(ctx context.Context, q ListVehicleReviewsQuery) (dto.ReviewCollection, error) {
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.ReviewCollection{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	if _, err := unit.Vehicles().ByID(execCtx, domainvehicles.VehicleID(q.VehicleID)); err != nil {
		return dto.ReviewCollection{}, err
	}
	limit := q.Limit
	if limit == 0 {
		limit = 20
	}
	items, err := unit.Reviews().ListByVehicle(execCtx, domainvehicles.VehicleID(q.VehicleID), limit, q.Offset)
	if err != nil {
		return dto.ReviewCollection{}, err
	}
	out := dto.ReviewCollection{Items: make([]dto.Review, 0, len(items))}
	for _, r := range items {
		out.Items = append(out.Items, dto.MapReview(r))
	}
	return out, nil
}

var _ commands.Handler[SubmitReviewCommand, *dto.Review] = (*SubmitReviewHandler)(nil)
var _ queries.Handler[ListVehicleReviewsQuery, dto.ReviewCollection] = (*ListVehicleReviewsHandler)(nil)
