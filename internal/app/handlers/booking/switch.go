package booking

import (
	"context"
	"log/slog"
	"time"

	"carshare/internal/app/commands"
	"carshare/internal/app/dto"
	"carshare/internal/app/handlers/support"
	"carshare/internal/app/outbox"
	"carshare/internal/app/queries"
	"carshare/internal/app/uow"
	domainbooking "carshare/internal/domain/booking"
	"carshare/internal/domain/pricing"
	domainvehicles "carshare/internal/domain/vehicles"
)

const (
	availableVehiclesKey = "booking.available_vehicles"
	switchVehicleKey     = "booking.switch_vehicle"
)

// AvailableVehiclesQuery lists the host's other vehicles that are free for the whole
// booking interval, priced for the base rental days.
type AvailableVehiclesQuery struct {
	ActorID   string `validate:"required"`
	BookingID string `validate:"required"`
}

func (q AvailableVehiclesQuery) Key() string   { return availableVehiclesKey }
func (q AvailableVehiclesQuery) Actor() string { return q.ActorID }

type AvailableVehiclesHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *AvailableVehiclesHandler) Handle(ctx context.Context, q AvailableVehiclesQuery) (dto.SwitchCandidateCollection, error) {
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.SwitchCandidateCollection{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	b, err := unit.Bookings().ByID(execCtx, domainbooking.BookingID(q.BookingID))
	if err != nil {
		return dto.SwitchCandidateCollection{}, err
	}
	if err := b.RequireHost(q.ActorID); err != nil {
		return dto.SwitchCandidateCollection{}, err
	}
	fleet, err := unit.Vehicles().ListByHost(execCtx, b.HostID)
	if err != nil {
		return dto.SwitchCandidateCollection{}, err
	}
	checker := domainbooking.AvailabilityChecker{Bookings: unit.Bookings()}
	out := dto.SwitchCandidateCollection{Items: make([]dto.SwitchCandidate, 0, len(fleet))}
	for _, v := range fleet {
		if v.ID == b.VehicleID || !v.Available {
			continue
		}
		hit, err := checker.FindConflict(execCtx, b.SwitchConflictQuery(v.ID))
		if err != nil {
			return dto.SwitchCandidateCollection{}, err
		}
		if hit != nil {
			continue
		}
		quote, err := pricing.Calculate(v.Rates, b.RentalType, b.Quantity, b.BaseDays())
		if err != nil {
			continue
		}
		diff, err := quote.Total.Sub(b.RentalPrice)
		if err != nil {
			continue
		}
		out.Items = append(out.Items, dto.SwitchCandidate{
			Vehicle:     dto.MapVehicle(v),
			RentalPrice: dto.MapMoney(quote.Total),
			PriceDiff:   dto.MapMoney(diff),
			PricePerDay: dto.MapMoney(quote.PerDay),
		})
	}
	return out, nil
}

type SwitchVehicleCommand struct {
	ActorID   string `validate:"required"`
	BookingID string `validate:"required"`
	VehicleID string `validate:"required"`
	Reason    string `validate:"max=500"`
}

func (c SwitchVehicleCommand) Key() string   { return switchVehicleKey }
func (c SwitchVehicleCommand) Actor() string { return c.ActorID }

// SwitchVehicleHandler moves a booking to another vehicle of the same host. The
// availability check and the save are separate steps; a concurrent booking of the
// target can slip in between.
type SwitchVehicleHandler struct {
	Outbox  outbox.Outbox
	Encoder outbox.EventEncoder
	Logger  *slog.Logger
	Now     func() time.Time
}

func (h *SwitchVehicleHandler) Handle(ctx context.Context, cmd SwitchVehicleCommand) (*dto.Booking, error) {
	unit, err := support.CurrentUnit(ctx)
	if err != nil {
		return nil, err
	}
	b, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(cmd.BookingID))
	if err != nil {
		return nil, err
	}
	if err := b.RequireHost(cmd.ActorID); err != nil {
		return nil, err
	}
	target, err := unit.Vehicles().ByID(ctx, domainvehicles.VehicleID(cmd.VehicleID))
	if err != nil {
		return nil, err
	}
	if err := b.CanSwitchVehicle(cmd.ActorID, target); err != nil {
		return nil, err
	}
	checker := domainbooking.AvailabilityChecker{Bookings: unit.Bookings()}
	if err := checker.Ensure(ctx, b.SwitchConflictQuery(target.ID)); err != nil {
		return nil, err
	}
	rec, err := b.SwitchVehicle(cmd.ActorID, target, cmd.Reason, clock(h.Now))
	if err != nil {
		return nil, err
	}
	if err := unit.Bookings().Save(ctx, b); err != nil {
		return nil, err
	}
	if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, b); err != nil {
		return nil, err
	}
	logger(h.Logger).Info("booking vehicle switched",
		"booking_id", b.ID,
		"from", rec.PreviousVehicle,
		"to", rec.NewVehicle,
		"difference", rec.PriceDifference.String(),
	)
	out := dto.MapBooking(b)
	return &out, nil
}

var _ queries.Handler[AvailableVehiclesQuery, dto.SwitchCandidateCollection] = (*AvailableVehiclesHandler)(nil)
var _ commands.Handler[SwitchVehicleCommand, *dto.Booking] = (*SwitchVehicleHandler)(nil)
