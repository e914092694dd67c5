package booking

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"carshare/internal/app/commands"
	"carshare/internal/app/dto"
	"carshare/internal/app/handlers/support"
	"carshare/internal/app/middleware"
	"carshare/internal/app/outbox"
	"carshare/internal/app/policies"
	domainbooking "carshare/internal/domain/booking"
	domainmessages "carshare/internal/domain/messages"
	"carshare/internal/domain/pricing"
	"carshare/internal/domain/shared/daterange"
	domainvehicles "carshare/internal/domain/vehicles"
)

const (
	createBookingKey = "booking.create"
	// CodeSequenceName is the counter reservation codes are drawn from.
	CodeSequenceName = "reservation_code"
)

type CreateBookingCommand struct {
	ActorID         string    `validate:"required"`
	VehicleID       string    `validate:"required"`
	StartDate       time.Time `validate:"required"`
	EndDate         time.Time `validate:"required"`
	PickupTime      string    `validate:"required"`
	RentalType      string    `validate:"omitempty,oneof=daily weekly monthly"`
	Quantity        int       `validate:"gte=0,lte=365"`
	Message         string    `validate:"max=4000"`
	IdempotencyKeyV string
}

func (c CreateBookingCommand) Key() string            { return createBookingKey }
func (c CreateBookingCommand) Actor() string          { return c.ActorID }
func (c CreateBookingCommand) IdempotencyKey() string { return c.IdempotencyKeyV }
func (c CreateBookingCommand) ResultPrototype() any   { return &dto.Booking{} }

// CreateBookingHandler prices and stores a pending booking. It does not check other
// bookings for the vehicle: overlapping requests may coexist until payment confirms
// one of them. Extension and vehicle switch are the checked paths.
type CreateBookingHandler struct {
	Sequence  policies.Sequence
	Outbox    outbox.Outbox
	Encoder   outbox.EventEncoder
	Telemetry policies.Telemetry
	Logger    *slog.Logger
	Now       func() time.Time
}

func (h *CreateBookingHandler) Handle(ctx context.Context, cmd CreateBookingCommand) (*dto.Booking, error) {
	unit, err := support.CurrentUnit(ctx)
	if err != nil {
		return nil, err
	}
	rentalType, err := pricing.ParseRentalType(cmd.RentalType)
	if err != nil {
		return nil, err
	}
	vehicle, err := unit.Vehicles().ByID(ctx, domainvehicles.VehicleID(strings.TrimSpace(cmd.VehicleID)))
	if err != nil {
		return nil, err
	}
	now := clock(h.Now)
	b, err := domainbooking.NewBooking(domainbooking.CreateParams{
		ID:         domainbooking.BookingID(uuid.NewString()),
		Vehicle:    vehicle,
		DriverID:   cmd.ActorID,
		Range:      daterange.DateRange{Start: cmd.StartDate, End: cmd.EndDate},
		PickupTime: cmd.PickupTime,
		RentalType: rentalType,
		Quantity:   cmd.Quantity,
		Now:        now,
	})
	if err != nil {
		return nil, err
	}
	// Drawn only for a valid booking so rejected requests leave no gaps.
	seq, err := h.Sequence.Next(ctx, CodeSequenceName)
	if err != nil {
		return nil, err
	}
	b.AssignCode(domainbooking.FormatCode(seq))
	if err := unit.Bookings().Save(ctx, b); err != nil {
		return nil, err
	}
	if body := strings.TrimSpace(cmd.Message); body != "" {
		msg, err := domainmessages.New(domainmessages.MessageID(uuid.NewString()), b, cmd.ActorID, body, now)
		if err != nil {
			return nil, err
		}
		if err := unit.Messages().Save(ctx, msg); err != nil {
			return nil, err
		}
	}
	if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, b); err != nil {
		return nil, err
	}
	if h.Telemetry != nil {
		h.Telemetry.BookingCreated()
	}
	logger(h.Logger).Info("booking created",
		"booking_id", b.ID,
		"code", b.Code,
		"vehicle_id", b.VehicleID,
		"total_days", b.TotalDays,
		"total", b.TotalPrice.String(),
	)
	out := dto.MapBooking(b)
	return &out, nil
}

func clock(now func() time.Time) time.Time {
	if now != nil {
		return now().UTC()
	}
	return time.Now().UTC()
}

func logger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

var _ commands.Handler[CreateBookingCommand, *dto.Booking] = (*CreateBookingHandler)(nil)
var _ middleware.IdempotentCommand = CreateBookingCommand{}
