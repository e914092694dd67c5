package middleware

import (
	"context"
	"strings"

	"carshare/internal/app/commands"
	"carshare/internal/app/queries"
	"carshare/internal/domain/shared/apperr"
)

type Authorizer interface {
	Authorize(ctx context.Context, message any) error
}

// ActorMessage is implemented by messages issued on behalf of a signed-in user.
type ActorMessage interface {
	Actor() string
}

// SystemMessage marks messages issued by the service itself (webhooks, jobs).
type SystemMessage interface {
	System() bool
}

// RequireActor rejects actor-bound messages that carry no actor id. Ownership rules
// (driver vs host) are enforced by the aggregates.
type RequireActor struct{}

func (RequireActor) Authorize(_ context.Context, message any) error {
	if sys, ok := message.(SystemMessage); ok && sys.System() {
		return nil
	}
	if am, ok := message.(ActorMessage); ok && strings.TrimSpace(am.Actor()) == "" {
		return apperr.ErrUnauthenticated
	}
	return nil
}

func Authorization(a Authorizer) CommandMiddleware {
	if a == nil {
		panic("middleware: authorizer required")
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			if err := a.Authorize(ctx, cmd); err != nil {
				return nil, err
			}
			return next.Dispatch(ctx, cmd)
		})
	}
}

func QueryAuthorization(a Authorizer) QueryMiddleware {
	if a == nil {
		panic("middleware: authorizer required")
	}
	return func(next queries.Bus) queries.Bus {
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			if err := a.Authorize(ctx, q); err != nil {
				return nil, err
			}
			return next.Ask(ctx, q)
		})
	}
}
