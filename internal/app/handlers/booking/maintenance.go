package booking

import (
	"context"
	"log/slog"
	"time"

	"carshare/internal/app/commands"
	"carshare/internal/app/handlers/support"
	"carshare/internal/app/outbox"
	"carshare/internal/app/policies"
)

const (
	backfillCodesKey   = "booking.backfill_codes"
	sendRemindersKey   = "booking.send_return_reminders"
	defaultBackfillMax = 500
)

// BackfillCodesCommand assigns reservation codes to bookings stored without one.
type BackfillCodesCommand struct {
	Limit int `validate:"gte=0"`
}

func (BackfillCodesCommand) Key() string  { return backfillCodesKey }
func (BackfillCodesCommand) System() bool { return true }

type BackfillResult struct {
	Assigned int
}

type BackfillCodesHandler struct {
	Sequence policies.Sequence
	Logger   *slog.Logger
}

func (h *BackfillCodesHandler) Handle(ctx context.Context, cmd BackfillCodesCommand) (BackfillResult, error) {
	unit, err := support.CurrentUnit(ctx)
	if err != nil {
		return BackfillResult{}, err
	}
	limit := cmd.Limit
	if limit <= 0 {
		limit = defaultBackfillMax
	}
	missing, err := unit.Bookings().ListMissingCode(ctx, limit)
	if err != nil {
		return BackfillResult{}, err
	}
	res := BackfillResult{}
	for _, b := range missing {
		if err := ensureCode(ctx, unit.Bookings(), h.Sequence, h.Logger, b); err != nil {
			return res, err
		}
		res.Assigned++
	}
	logger(h.Logger).Info("reservation codes backfilled", "assigned", res.Assigned)
	return res, nil
}

// SendReturnRemindersCommand flags active bookings ending within Window and emits one
// reminder event per booking. The flag is written with a targeted update only.
type SendReturnRemindersCommand struct {
	Window time.Duration `validate:"gte=0"`
}

func (SendReturnRemindersCommand) Key() string  { return sendRemindersKey }
func (SendReturnRemindersCommand) System() bool { return true }

type RemindersResult struct {
	Sent int
}

type SendReturnRemindersHandler struct {
	Outbox  outbox.Outbox
	Encoder outbox.EventEncoder
	Logger  *slog.Logger
	Now     func() time.Time
}

func (h *SendReturnRemindersHandler) Handle(ctx context.Context, cmd SendReturnRemindersCommand) (RemindersResult, error) {
	unit, err := support.CurrentUnit(ctx)
	if err != nil {
		return RemindersResult{}, err
	}
	window := cmd.Window
	if window <= 0 {
		window = 24 * time.Hour
	}
	now := clock(h.Now)
	due, err := unit.Bookings().ListDueForReminder(ctx, now.Add(window))
	if err != nil {
		return RemindersResult{}, err
	}
	res := RemindersResult{}
	for _, b := range due {
		if !b.MarkReturnReminderSent(now) {
			continue
		}
		if err := unit.Bookings().MarkReturnReminderSent(ctx, b.ID, now); err != nil {
			return res, err
		}
		if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, b); err != nil {
			return res, err
		}
		res.Sent++
	}
	if res.Sent > 0 {
		logger(h.Logger).Info("return reminders queued", "count", res.Sent)
	}
	return res, nil
}

var _ commands.Handler[BackfillCodesCommand, BackfillResult] = (*BackfillCodesHandler)(nil)
var _ commands.Handler[SendReturnRemindersCommand, RemindersResult] = (*SendReturnRemindersHandler)(nil)
