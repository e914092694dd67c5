package memory

import (
	"context"
	"errors"

	"carshare/internal/app/uow"
	domainbooking "carshare/internal/domain/booking"
	domainmessages "carshare/internal/domain/messages"
	domainreviews "carshare/internal/domain/reviews"
	domainuser "carshare/internal/domain/user"
	domainvehicles "carshare/internal/domain/vehicles"
)

var ErrFactoryMisconfigured = errors.New("memory: unit of work factory misconfigured")

// Factory wires in-memory repositories into a unit-of-work boundary. There is no
// isolation; writes are visible as soon as a repository stores them.
type Factory struct {
	BookingRepo domainbooking.Repository
	VehicleRepo domainvehicles.Repository
	UserRepo    domainuser.Repository
	ReviewRepo  domainreviews.Repository
	MessageRepo domainmessages.Repository
}

// NewFactory returns a factory over fresh, empty repositories.
func NewFactory() Factory {
	return Factory{
		BookingRepo: NewBookingRepository(),
		VehicleRepo: NewVehicleRepository(),
		UserRepo:    NewUserRepository(),
		ReviewRepo:  NewReviewRepository(),
		MessageRepo: NewMessageRepository(),
	}
}

func (f Factory) Begin(_ context.Context, _ uow.TxOptions) (uow.UnitOfWork, error) {
	if f.BookingRepo == nil || f.VehicleRepo == nil || f.UserRepo == nil || f.ReviewRepo == nil || f.MessageRepo == nil {
		return nil, ErrFactoryMisconfigured
	}
	return &Unit{f: f}, nil
}

type Unit struct {
	f Factory
}

func (u *Unit) Bookings() domainbooking.Repository  { return u.f.BookingRepo }
func (u *Unit) Vehicles() domainvehicles.Repository { return u.f.VehicleRepo }
func (u *Unit) Users() domainuser.Repository        { return u.f.UserRepo }
func (u *Unit) Reviews() domainreviews.Repository   { return u.f.ReviewRepo }
func (u *Unit) Messages() domainmessages.Repository { return u.f.MessageRepo }
func (u *Unit) Commit(context.Context) error        { return nil }
func (u *Unit) Rollback(context.Context) error      { return nil }

var _ uow.UoWFactory = Factory{}
