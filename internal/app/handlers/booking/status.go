package booking

import (
	"context"
	"log/slog"
	"time"

	"carshare/internal/app/commands"
	"carshare/internal/app/dto"
	"carshare/internal/app/handlers/support"
	"carshare/internal/app/outbox"
	domainbooking "carshare/internal/domain/booking"
)

const updateStatusKey = "booking.update_status"

// UpdateStatusCommand covers the one transition a participant asks for directly:
// cancel, by driver or host. Confirmation only follows payment, see MarkPaid.
type UpdateStatusCommand struct {
	ActorID   string `validate:"required"`
	BookingID string `validate:"required"`
	Status    string `validate:"required,oneof=cancelled"`
}

func (c UpdateStatusCommand) Key() string   { return updateStatusKey }
func (c UpdateStatusCommand) Actor() string { return c.ActorID }

type UpdateStatusHandler struct {
	Outbox  outbox.Outbox
	Encoder outbox.EventEncoder
	Logger  *slog.Logger
	Now     func() time.Time
}

func (h *UpdateStatusHandler) Handle(ctx context.Context, cmd UpdateStatusCommand) (*dto.Booking, error) {
	unit, err := support.CurrentUnit(ctx)
	if err != nil {
		return nil, err
	}
	target, err := domainbooking.ParseStatus(cmd.Status)
	if err != nil {
		return nil, err
	}
	b, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(cmd.BookingID))
	if err != nil {
		return nil, err
	}
	previous := b.Status
	now := clock(h.Now)
	switch target {
	case domainbooking.StatusCancelled:
		err = b.Cancel(cmd.ActorID, now)
	default:
		err = domainbooking.ErrInvalidTransition
	}
	if err != nil {
		return nil, err
	}
	if err := unit.Bookings().Save(ctx, b); err != nil {
		return nil, err
	}
	if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, b); err != nil {
		return nil, err
	}
	logger(h.Logger).Info("booking status changed", "booking_id", b.ID, "from", previous, "to", b.Status, "actor", cmd.ActorID)
	out := dto.MapBooking(b)
	return &out, nil
}

var _ commands.Handler[UpdateStatusCommand, *dto.Booking] = (*UpdateStatusHandler)(nil)
