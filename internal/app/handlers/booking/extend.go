package booking

import (
	"context"
	"log/slog"

	"carshare/internal/app/commands"
	"carshare/internal/app/dto"
	"carshare/internal/app/handlers/support"
	"carshare/internal/app/policies"
	domainbooking "carshare/internal/domain/booking"
	"carshare/internal/domain/shared/apperr"
	domainuser "carshare/internal/domain/user"
)

const quoteExtensionKey = "booking.quote_extension"

// QuoteExtensionCommand prices extra days and opens a payment intent for them. The
// booking itself is not modified; the days are applied once the payment succeeds.
type QuoteExtensionCommand struct {
	ActorID   string `validate:"required"`
	BookingID string `validate:"required"`
	Days      int    `validate:"min=1,max=30"`
}

func (c QuoteExtensionCommand) Key() string   { return quoteExtensionKey }
func (c QuoteExtensionCommand) Actor() string { return c.ActorID }

type QuoteExtensionHandler struct {
	Payments policies.PaymentGateway
	Logger   *slog.Logger
}

func (h *QuoteExtensionHandler) Handle(ctx context.Context, cmd QuoteExtensionCommand) (*dto.ExtensionQuote, error) {
	unit, err := support.CurrentUnit(ctx)
	if err != nil {
		return nil, err
	}
	b, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(cmd.BookingID))
	if err != nil {
		return nil, err
	}
	if err := b.CanExtend(cmd.ActorID, cmd.Days); err != nil {
		return nil, err
	}
	checker := domainbooking.AvailabilityChecker{Bookings: unit.Bookings()}
	if err := checker.Ensure(ctx, b.ExtensionConflictQuery(cmd.Days)); err != nil {
		return nil, err
	}
	quote, err := b.QuoteExtension(cmd.Days)
	if err != nil {
		return nil, err
	}
	customer := ""
	if driver, err := unit.Users().ByID(ctx, domainuser.ID(b.DriverID)); err == nil {
		customer = driver.PaymentCustomerID
	}
	intent, err := h.Payments.CreateExtensionIntent(ctx, policies.ExtensionIntentRequest{
		BookingID:  string(b.ID),
		Days:       cmd.Days,
		Amount:     quote.Cost,
		CustomerID: customer,
	})
	if err != nil {
		return nil, apperr.Upstream("payments", err)
	}
	logger(h.Logger).Info("extension quoted", "booking_id", b.ID, "days", cmd.Days, "cost", quote.Cost.String(), "payment_intent", intent.ID)
	return &dto.ExtensionQuote{
		BookingID:       string(b.ID),
		Days:            quote.Days,
		Cost:            dto.MapMoney(quote.Cost),
		CurrentEndDate:  quote.CurrentEnd,
		NewEndDate:      quote.NewEnd,
		NewTotal:        dto.MapMoney(quote.NewTotal),
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
	}, nil
}

var _ commands.Handler[QuoteExtensionCommand, *dto.ExtensionQuote] = (*QuoteExtensionHandler)(nil)
