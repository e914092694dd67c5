package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"carshare/internal/app/uow"
	domainbooking "carshare/internal/domain/booking"
	domainmessages "carshare/internal/domain/messages"
	domainreviews "carshare/internal/domain/reviews"
	domainuser "carshare/internal/domain/user"
	domainvehicles "carshare/internal/domain/vehicles"
)

var ErrUnitOfWorkNotConfigured = errors.New("mongo: unit of work factory missing database")

// Factory wires Mongo sessions into the generic UnitOfWork interface. Multi-document
// transactions need a replica set, so they are opt-in; without them every write is
// applied on its own.
type Factory struct {
	DB           *mongo.Database
	Transactions bool

	BookingRepo domainbooking.Repository
	VehicleRepo domainvehicles.Repository
	UserRepo    domainuser.Repository
	ReviewRepo  domainreviews.Repository
	MessageRepo domainmessages.Repository
}

// NewFactory builds a factory with repositories over db.
func NewFactory(db *mongo.Database, transactions bool) Factory {
	return Factory{
		DB:           db,
		Transactions: transactions,
		BookingRepo:  NewBookingRepository(db),
		VehicleRepo:  NewVehicleRepository(db),
		UserRepo:     NewUserRepository(db),
		ReviewRepo:   NewReviewRepository(db),
		MessageRepo:  NewMessageRepository(db),
	}
}

// Begin starts a MongoDB session, with a transaction when enabled and the unit writes.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.DB == nil {
		return nil, ErrUnitOfWorkNotConfigured
	}
	unit := &Unit{
		bookings: f.BookingRepo,
		vehicles: f.VehicleRepo,
		users:    f.UserRepo,
		reviews:  f.ReviewRepo,
		messages: f.MessageRepo,
	}
	if !f.Transactions || opts.ReadOnly {
		return unit, nil
	}
	session, err := f.DB.Client().StartSession()
	if err != nil {
		return nil, err
	}
	txnOpts := options.Transaction().SetReadConcern(f.DB.ReadConcern()).SetWriteConcern(f.DB.WriteConcern())
	if err := session.StartTransaction(txnOpts); err != nil {
		session.EndSession(ctx)
		return nil, err
	}
	unit.session = session
	return unit, nil
}

type Unit struct {
	session mongo.Session

	bookings domainbooking.Repository
	vehicles domainvehicles.Repository
	users    domainuser.Repository
	reviews  domainreviews.Repository
	messages domainmessages.Repository
}

func (u *Unit) Bookings() domainbooking.Repository  { return u.bookings }
func (u *Unit) Vehicles() domainvehicles.Repository { return u.vehicles }
func (u *Unit) Users() domainuser.Repository        { return u.users }
func (u *Unit) Reviews() domainreviews.Repository   { return u.reviews }
func (u *Unit) Messages() domainmessages.Repository { return u.messages }

func (u *Unit) Commit(ctx context.Context) error {
	if u.session == nil {
		return nil
	}
	defer u.session.EndSession(ctx)
	return u.session.CommitTransaction(ctx)
}

func (u *Unit) Rollback(ctx context.Context) error {
	if u.session == nil {
		return nil
	}
	defer u.session.EndSession(ctx)
	return u.session.AbortTransaction(ctx)
}

// InjectContext ensures the Mongo session is available in context for downstream repos.
func (u *Unit) InjectContext(ctx context.Context) context.Context {
	if u.session == nil {
		return ctx
	}
	return mongo.NewSessionContext(ctx, u.session)
}

var _ uow.UoWFactory = Factory{}
var _ uow.UnitOfWork = (*Unit)(nil)
