package messages

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"carshare/internal/app/commands"
	"carshare/internal/app/dto"
	"carshare/internal/app/handlers/support"
	"carshare/internal/app/queries"
	"carshare/internal/app/uow"
	domainbooking "carshare/internal/domain/booking"
	domainmessages "carshare/internal/domain/messages"
)

const (
	sendMessageKey  = "messages.send"
	listMessagesKey = "messages.list"
)

type SendMessageCommand struct {
	ActorID   string `validate:"required"`
	BookingID string `validate:"required"`
	Body      string `validate:"required,max=4000"`
}

func (c SendMessageCommand) Key() string   { return sendMessageKey }
func (c SendMessageCommand) Actor() string { return c.ActorID }

type SendMessageHandler struct {
	Logger *slog.Logger
	Now    func() time.Time
}

func (h *SendMessageHandler) Handle(ctx context.Context, cmd SendMessageCommand) (*dto.Message, error) {
	unit, err := support.CurrentUnit(ctx)
	if err != nil {
		return nil, err
	}
	b, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(cmd.BookingID))
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	msg, err := domainmessages.New(domainmessages.MessageID(uuid.NewString()), b, cmd.ActorID, cmd.Body, now)
	if err != nil {
		return nil, err
	}
	if err := unit.Messages().Save(ctx, msg); err != nil {
		return nil, err
	}
	if h.Logger != nil {
		h.Logger.Info("booking message sent", "booking_id", b.ID, "sender_id", msg.SenderID)
	}
	out := dto.MapMessage(msg)
	return &out, nil
}

// ListMessagesQuery returns the conversation of one booking, oldest first.
type ListMessagesQuery struct {
	ActorID   string `validate:"required"`
	BookingID string `validate:"required"`
	Limit     int    `validate:"gte=0,lte=500"`
}

func (q ListMessagesQuery) Key() string   { return listMessagesKey }
func (q ListMessagesQuery) Actor() string { return q.ActorID }

type ListMessagesHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *ListMessagesHandler) Handle(ctx context.Context, q ListMessagesQuery) (dto.MessageCollection, error) {
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.MessageCollection{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	b, err := unit.Bookings().ByID(execCtx, domainbooking.BookingID(q.BookingID))
	if err != nil {
		return dto.MessageCollection{}, err
	}
	if err := b.RequireParticipant(q.ActorID); err != nil {
		return dto.MessageCollection{}, err
	}
	items, err := unit.Messages().ListByBooking(execCtx, b.ID, q.Limit)
	if err != nil {
		return dto.MessageCollection{}, err
	}
	out := dto.MessageCollection{Items: make([]dto.Message, 0, len(items))}
	for _, m := range items {
		out.Items = append(out.Items, dto.MapMessage(m))
	}
	return out, nil
}

var _ commands.Handler[SendMessageCommand, *dto.Message] = (*SendMessageHandler)(nil)
var _ queries.Handler[ListMessagesQuery, dto.MessageCollection] = (*ListMessagesHandler)(nil)
