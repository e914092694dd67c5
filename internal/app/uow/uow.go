package uow

import (
	"context"
	"errors"

	domainbooking "carshare/internal/domain/booking"
	domainmessages "carshare/internal/domain/messages"
	domainreviews "carshare/internal/domain/reviews"
	domainuser "carshare/internal/domain/user"
	domainvehicles "carshare/internal/domain/vehicles"
)

var ErrUnitOfWorkMissing = errors.New("uow: unit of work missing from context")

// UnitOfWork hands out repositories bound to one storage session.
type UnitOfWork interface {
	Bookings() domainbooking.Repository
	Vehicles() domainvehicles.Repository
	Users() domainuser.Repository
	Reviews() domainreviews.Repository
	Messages() domainmessages.Repository

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UoWFactory starts unit of work instances.
type UoWFactory interface {
	Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error)
}

type TxOptions struct {
	ReadOnly bool
}

type ctxKey struct{}

func ContextWithUnitOfWork(ctx context.Context, unit UnitOfWork) context.Context {
	return context.WithValue(ctx, ctxKey{}, unit)
}

func FromContext(ctx context.Context) (UnitOfWork, bool) {
	unit, ok := ctx.Value(ctxKey{}).(UnitOfWork)
	return unit, ok
}

// Begin starts a unit, letting storage sessions attach themselves to the context.
func Begin(ctx context.Context, factory UoWFactory, opts TxOptions) (UnitOfWork, context.Context, error) {
	unit, err := factory.Begin(ctx, opts)
	if err != nil {
		return nil, ctx, err
	}
	execCtx := ctx
	if injector, ok := unit.(interface {
		InjectContext(context.Context) context.Context
	}); ok {
		execCtx = injector.InjectContext(ctx)
	}
	return unit, ContextWithUnitOfWork(execCtx, unit), nil
}
