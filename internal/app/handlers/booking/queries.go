package booking

import (
	"context"
	"log/slog"
	"strings"

	"carshare/internal/app/dto"
	"carshare/internal/app/handlers/support"
	"carshare/internal/app/policies"
	"carshare/internal/app/queries"
	"carshare/internal/app/uow"
	domainbooking "carshare/internal/domain/booking"
	domainvehicles "carshare/internal/domain/vehicles"
)

const (
	getBookingKey          = "booking.get"
	listDriverBookingsKey  = "booking.list_driver"
	listHostBookingsKey    = "booking.list_host"
	allStatusesFilterValue = "all"
)

type GetBookingQuery struct {
	ActorID   string `validate:"required"`
	BookingID string `validate:"required"`
}

func (q GetBookingQuery) Key() string   { return getBookingKey }
func (q GetBookingQuery) Actor() string { return q.ActorID }

// GetBookingHandler returns a booking to one of its participants. Records created
// before reservation codes existed get one here.
type GetBookingHandler struct {
	UoWFactory uow.UoWFactory
	Sequence   policies.Sequence
	Logger     *slog.Logger
}

func (h *GetBookingHandler) Handle(ctx context.Context, q GetBookingQuery) (dto.Booking, error) {
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.Booking{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	b, err := unit.Bookings().ByID(execCtx, domainbooking.BookingID(strings.TrimSpace(q.BookingID)))
	if err != nil {
		return dto.Booking{}, err
	}
	if err := b.RequireParticipant(q.ActorID); err != nil {
		return dto.Booking{}, err
	}
	if err := ensureCode(execCtx, unit.Bookings(), h.Sequence, h.Logger, b); err != nil {
		return dto.Booking{}, err
	}
	return dto.MapBooking(b), nil
}

type ListDriverBookingsQuery struct {
	ActorID string `validate:"required"`
	Status  string
}

func (q ListDriverBookingsQuery) Key() string   { return listDriverBookingsKey }
func (q ListDriverBookingsQuery) Actor() string { return q.ActorID }

type ListDriverBookingsHandler struct {
	UoWFactory uow.UoWFactory
	Sequence   policies.Sequence
	Logger     *slog.Logger
}

func (h *ListDriverBookingsHandler) Handle(ctx context.Context, q ListDriverBookingsQuery) (dto.BookingCollection, error) {
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.BookingCollection{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	items, err := unit.Bookings().ListByDriver(execCtx, q.ActorID)
	if err != nil {
		return dto.BookingCollection{}, err
	}
	return collect(execCtx, unit.Bookings(), h.Sequence, h.Logger, items, q.Status)
}

type ListHostBookingsQuery struct {
	ActorID string `validate:"required"`
	Status  string
}

func (q ListHostBookingsQuery) Key() string   { return listHostBookingsKey }
func (q ListHostBookingsQuery) Actor() string { return q.ActorID }

type ListHostBookingsHandler struct {
	UoWFactory uow.UoWFactory
	Sequence   policies.Sequence
	Logger     *slog.Logger
}

func (h *ListHostBookingsHandler) Handle(ctx context.Context, q ListHostBookingsQuery) (dto.BookingCollection, error) {
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.BookingCollection{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	items, err := unit.Bookings().ListByHost(execCtx, domainvehicles.HostID(q.ActorID))
	if err != nil {
		return dto.BookingCollection{}, err
	}
	return collect(execCtx, unit.Bookings(), h.Sequence, h.Logger, items, q.Status)
}

func collect(ctx context.Context, repo domainbooking.Repository, seq policies.Sequence, log *slog.Logger, items []*domainbooking.Booking, status string) (dto.BookingCollection, error) {
	filter := strings.ToLower(strings.TrimSpace(status))
	if filter != "" && filter != allStatusesFilterValue {
		if _, err := domainbooking.ParseStatus(filter); err != nil {
			return dto.BookingCollection{}, err
		}
	}
	kept := make([]*domainbooking.Booking, 0, len(items))
	for _, b := range items {
		if filter != "" && filter != allStatusesFilterValue && string(b.Status) != filter {
			continue
		}
		if err := ensureCode(ctx, repo, seq, log, b); err != nil {
			return dto.BookingCollection{}, err
		}
		kept = append(kept, b)
	}
	return dto.MapBookings(kept), nil
}

// ensureCode assigns a reservation code to a legacy booking with a targeted update.
func ensureCode(ctx context.Context, repo domainbooking.Repository, seq policies.Sequence, log *slog.Logger, b *domainbooking.Booking) error {
	if b.Code != "" || seq == nil {
		return nil
	}
	n, err := seq.Next(ctx, CodeSequenceName)
	if err != nil {
		return err
	}
	code := domainbooking.FormatCode(n)
	if err := repo.SetCode(ctx, b.ID, code); err != nil {
		return err
	}
	b.AssignCode(code)
	logger(log).Info("reservation code assigned", "booking_id", b.ID, "code", code)
	return nil
}

var _ queries.Handler[GetBookingQuery, dto.Booking] = (*GetBookingHandler)(nil)
var _ queries.Handler[ListDriverBookingsQuery, dto.BookingCollection] = (*ListDriverBookingsHandler)(nil)
var _ queries.Handler[ListHostBookingsQuery, dto.BookingCollection] = (*ListHostBookingsHandler)(nil)
