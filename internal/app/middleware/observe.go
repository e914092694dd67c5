package middleware

import (
	"context"
	"log/slog"
	"time"

	"carshare/internal/app/commands"
	"carshare/internal/app/queries"
	"carshare/internal/domain/shared/apperr"
)

// Observer receives the outcome of every dispatched message.
type Observer interface {
	Observe(kind, key string, took time.Duration, err error)
}

// Observe logs failures and reports timings for commands.
func Observe(logger *slog.Logger, observer Observer) CommandMiddleware {
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			started := time.Now()
			res, err := next.Dispatch(ctx, cmd)
			report(ctx, logger, observer, "command", cmd.Key(), started, err)
			return res, err
		})
	}
}

// ObserveQueries is Observe for the query bus.
func ObserveQueries(logger *slog.Logger, observer Observer) QueryMiddleware {
	return func(next queries.Bus) queries.Bus {
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			started := time.Now()
			res, err := next.Ask(ctx, q)
			report(ctx, logger, observer, "query", q.Key(), started, err)
			return res, err
		})
	}
}

func report(ctx context.Context, logger *slog.Logger, observer Observer, kind, key string, started time.Time, err error) {
	took := time.Since(started)
	if observer != nil {
		observer.Observe(kind, key, took, err)
	}
	if logger == nil || err == nil {
		return
	}
	level := slog.LevelWarn
	if apperr.Kind(err) == nil || apperr.Kind(err) == apperr.ErrUpstream {
		level = slog.LevelError
	}
	logger.Log(ctx, level, kind+" failed", "key", key, "error", err, "duration_ms", took.Milliseconds())
}
