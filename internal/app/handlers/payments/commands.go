package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"carshare/internal/app/commands"
	"carshare/internal/app/dto"
	"carshare/internal/app/handlers/support"
	"carshare/internal/app/policies"
	domainbooking "carshare/internal/domain/booking"
	"carshare/internal/domain/shared/apperr"
	domainuser "carshare/internal/domain/user"
)

const (
	createCheckoutKey   = "payments.create_checkout"
	confirmPaymentKey   = "payments.confirm"
	confirmExtensionKey = "payments.confirm_extension"
	webhookKey          = "payments.webhook"
	reconcileKey        = "payments.reconcile"

	defaultLookback = 72 * time.Hour
)

type CreateCheckoutCommand struct {
	ActorID   string `validate:"required"`
	BookingID string `validate:"required"`
}

func (c CreateCheckoutCommand) Key() string   { return createCheckoutKey }
func (c CreateCheckoutCommand) Actor() string { return c.ActorID }

// CheckoutHandler opens a processor checkout for the booking total and stores the
// session reference on the booking.
type CheckoutHandler struct {
	Payments policies.PaymentGateway
	Logger   *slog.Logger
	Now      func() time.Time
}

func (h *CheckoutHandler) Handle(ctx context.Context, cmd CreateCheckoutCommand) (*dto.Checkout, error) {
	unit, err := support.CurrentUnit(ctx)
	if err != nil {
		return nil, err
	}
	b, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(cmd.BookingID))
	if err != nil {
		return nil, err
	}
	now := clock(h.Now)
	if err := b.Clone().AttachPaymentSession(cmd.ActorID, "dry-run", now); err != nil {
		return nil, err
	}
	driver, err := unit.Users().ByID(ctx, domainuser.ID(b.DriverID))
	if err != nil {
		return nil, err
	}
	if driver.PaymentCustomerID == "" {
		customerID, err := h.Payments.EnsureCustomer(ctx, driver.Email, driver.Name)
		if err != nil {
			return nil, apperr.Upstream("payments", err)
		}
		driver.SetPaymentCustomer(customerID, now)
		if err := unit.Users().Save(ctx, driver); err != nil {
			return nil, err
		}
	}
	session, err := h.Payments.CreateCheckout(ctx, policies.CheckoutRequest{
		BookingID:     string(b.ID),
		Code:          b.Code,
		Description:   fmt.Sprintf("Reservation %s, %d day(s)", b.Code, b.TotalDays),
		Amount:        b.TotalPrice,
		CustomerID:    driver.PaymentCustomerID,
		CustomerEmail: driver.Email,
	})
	if err != nil {
		return nil, apperr.Upstream("payments", err)
	}
	expected := b.PaymentStatus
	if err := b.AttachPaymentSession(cmd.ActorID, session.ID, now); err != nil {
		return nil, err
	}
	if err := unit.Bookings().SaveIfPaymentStatus(ctx, b, expected); err != nil {
		return nil, err
	}
	logger(h.Logger).Info("checkout created", "booking_id", b.ID, "session_id", session.ID, "amount", b.TotalPrice.String())
	return &dto.Checkout{
		BookingID: string(b.ID),
		SessionID: session.ID,
		URL:       session.URL,
		Amount:    dto.MapMoney(b.TotalPrice),
	}, nil
}

// ConfirmPaymentCommand is sent by the client after returning from checkout.
type ConfirmPaymentCommand struct {
	ActorID   string `validate:"required"`
	BookingID string `validate:"required"`
	SessionID string
}

func (c ConfirmPaymentCommand) Key() string   { return confirmPaymentKey }
func (c ConfirmPaymentCommand) Actor() string { return c.ActorID }

type ConfirmPaymentHandler struct {
	Payments   policies.PaymentGateway
	Reconciler *Reconciler
}

func (h *ConfirmPaymentHandler) Handle(ctx context.Context, cmd ConfirmPaymentCommand) (*dto.PaymentResult, error) {
	unit, err := support.CurrentUnit(ctx)
	if err != nil {
		return nil, err
	}
	b, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(cmd.BookingID))
	if err != nil {
		return nil, err
	}
	if err := b.RequireParticipant(cmd.ActorID); err != nil {
		return nil, err
	}
	// Once paid, PaymentRef may hold a payment intent id rather than a session id.
	if b.PaymentStatus == domainbooking.PaymentPaid {
		return &dto.PaymentResult{Booking: dto.MapBooking(b)}, nil
	}
	ref := cmd.SessionID
	if ref == "" {
		ref = b.PaymentRef
	}
	if ref == "" {
		return nil, ErrNoPaymentSession
	}
	payment, err := h.Payments.GetCheckoutSession(ctx, ref)
	if err != nil {
		return nil, apperr.Upstream("payments", err)
	}
	if payment.BookingID != string(b.ID) {
		return nil, ErrPaymentMismatch
	}
	if !payment.Succeeded {
		return &dto.PaymentResult{Booking: dto.MapBooking(b)}, nil
	}
	outcome, err := h.Reconciler.Apply(ctx, unit, payment, domainbooking.SourceClient)
	if err != nil {
		return nil, err
	}
	return &dto.PaymentResult{Booking: dto.MapBooking(outcome.Booking), Applied: outcome.Applied}, nil
}

type ConfirmExtensionCommand struct {
	ActorID         string `validate:"required"`
	BookingID       string `validate:"required"`
	PaymentIntentID string `validate:"required"`
}

func (c ConfirmExtensionCommand) Key() string   { return confirmExtensionKey }
func (c ConfirmExtensionCommand) Actor() string { return c.ActorID }

type ConfirmExtensionHandler struct {
	Payments   policies.PaymentGateway
	Reconciler *Reconciler
}

func (h *ConfirmExtensionHandler) Handle(ctx context.Context, cmd ConfirmExtensionCommand) (*dto.PaymentResult, error) {
	unit, err := support.CurrentUnit(ctx)
	if err != nil {
		return nil, err
	}
	b, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(cmd.BookingID))
	if err != nil {
		return nil, err
	}
	if err := b.RequireDriver(cmd.ActorID); err != nil {
		return nil, err
	}
	payment, err := h.Payments.GetPaymentIntent(ctx, cmd.PaymentIntentID)
	if err != nil {
		return nil, apperr.Upstream("payments", err)
	}
	if payment.BookingID != string(b.ID) {
		return nil, ErrPaymentMismatch
	}
	if payment.Purpose != policies.PurposeExtension {
		return nil, ErrExtensionPurpose
	}
	if !payment.Succeeded {
		return nil, ErrPaymentNotSucceeded
	}
	outcome, err := h.Reconciler.ApplyExtension(ctx, unit, payment)
	if err != nil {
		return nil, err
	}
	return &dto.PaymentResult{Booking: dto.MapBooking(outcome.Booking), Applied: outcome.Applied}, nil
}

// HandleWebhookCommand carries the raw processor callback. The signature is verified
// over the raw payload before anything is decoded.
type HandleWebhookCommand struct {
	Payload   []byte `validate:"required"`
	Signature string `validate:"required"`
}

func (c HandleWebhookCommand) Key() string  { return webhookKey }
func (c HandleWebhookCommand) System() bool { return true }

type WebhookHandler struct {
	Payments   policies.PaymentGateway
	Reconciler *Reconciler
	Logger     *slog.Logger
}

func (h *WebhookHandler) Handle(ctx context.Context, cmd HandleWebhookCommand) (*dto.WebhookAck, error) {
	event, err := h.Payments.ParseWebhook(cmd.Payload, cmd.Signature)
	if err != nil {
		if apperr.Kind(err) == nil {
			err = apperr.New(apperr.ErrInvalidInput, "payments: webhook rejected: "+err.Error())
		}
		return nil, err
	}
	ack := &dto.WebhookAck{Received: true, Event: event.RawType}
	if event.Type == policies.WebhookIgnored || event.Payment.BookingID == "" {
		return ack, nil
	}
	unit, err := support.CurrentUnit(ctx)
	if err != nil {
		return nil, err
	}
	id := domainbooking.BookingID(event.Payment.BookingID)
	var outcome Outcome
	switch event.Type {
	case policies.WebhookPaymentSucceeded:
		outcome, err = h.Reconciler.Apply(ctx, unit, event.Payment, domainbooking.SourceWebhook)
	case policies.WebhookPaymentFailed:
		if event.Payment.Purpose == policies.PurposeExtension {
			logger(h.Logger).Info("extension payment failed", "booking_id", id, "payment_ref", event.Payment.ID)
			return ack, nil
		}
		outcome, err = h.Reconciler.MarkFailed(ctx, unit, id, event.Payment.ID)
	case policies.WebhookRefunded:
		if event.Payment.Purpose == policies.PurposeExtension {
			logger(h.Logger).Warn("extension refund received; days are kept", "booking_id", id, "payment_ref", event.Payment.ID)
			return ack, nil
		}
		outcome, err = h.Reconciler.MarkRefunded(ctx, unit, id)
	}
	if err != nil && apperr.Kind(err) != nil && !errors.Is(err, apperr.ErrUpstream) {
		// Acknowledged so the processor stops redelivering an event we cannot apply.
		logger(h.Logger).Warn("webhook not applied", "booking_id", id, "event", event.RawType, "error", err)
		return ack, nil
	}
	if err != nil {
		return nil, err
	}
	ack.Applied = outcome.Applied
	return ack, nil
}

// ReconcilePaymentCommand asks the processor for recent successful payments of the
// booking when neither webhook nor client confirmation arrived.
type ReconcilePaymentCommand struct {
	ActorID   string `validate:"required"`
	BookingID string `validate:"required"`
}

func (c ReconcilePaymentCommand) Key() string   { return reconcileKey }
func (c ReconcilePaymentCommand) Actor() string { return c.ActorID }

type ReconcileHandler struct {
	Payments   policies.PaymentGateway
	Reconciler *Reconciler
	Lookback   time.Duration
	Logger     *slog.Logger
	Now        func() time.Time
}

func (h *ReconcileHandler) Handle(ctx context.Context, cmd ReconcilePaymentCommand) (*dto.ReconcileResult, error) {
	unit, err := support.CurrentUnit(ctx)
	if err != nil {
		return nil, err
	}
	b, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(cmd.BookingID))
	if err != nil {
		return nil, err
	}
	if err := b.RequireParticipant(cmd.ActorID); err != nil {
		return nil, err
	}
	lookback := h.Lookback
	if lookback <= 0 {
		lookback = defaultLookback
	}
	recent, err := h.Payments.ListRecentPayments(ctx, clock(h.Now).Add(-lookback))
	if err != nil {
		return nil, apperr.Upstream("payments", err)
	}
	matches := make([]policies.Payment, 0)
	for _, p := range recent {
		if p.BookingID == string(b.ID) && p.Succeeded {
			matches = append(matches, p)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].CreatedAt.Before(matches[j].CreatedAt) })

	res := &dto.ReconcileResult{PaymentReferences: []string{}}
	paidSeen := false
	current := b
	for _, p := range matches {
		if p.Purpose == policies.PurposeExtension {
			outcome, err := h.Reconciler.ApplyExtension(ctx, unit, p)
			if err != nil {
				logger(h.Logger).Warn("extension payment not applied", "booking_id", b.ID, "payment_ref", p.ID, "error", err)
				continue
			}
			current = outcome.Booking
			if outcome.Applied {
				res.ExtensionsApplied++
			}
			res.PaymentReferences = append(res.PaymentReferences, p.ID)
			continue
		}
		if paidSeen {
			continue
		}
		paidSeen = true
		outcome, err := h.Reconciler.MarkPaid(ctx, unit, b.ID, p.ID, domainbooking.SourceManual)
		if err != nil {
			return nil, err
		}
		current = outcome.Booking
		res.Applied = outcome.Applied
		res.PaymentReferences = append(res.PaymentReferences, p.ID)
	}
	res.Found = len(res.PaymentReferences) > 0
	if !res.Found && current.PaymentStatus != domainbooking.PaymentPaid {
		return nil, ErrNoPaymentFound
	}
	res.Booking = dto.MapBooking(current)
	logger(h.Logger).Info("payment reconciled", "booking_id", b.ID, "applied", res.Applied, "extensions", res.ExtensionsApplied)
	return res, nil
}

func clock(now func() time.Time) time.Time {
	if now != nil {
		return now().UTC()
	}
	return time.Now().UTC()
}

func logger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

var _ commands.Handler[CreateCheckoutCommand, *dto.Checkout] = (*CheckoutHandler)(nil)
var _ commands.Handler[ConfirmPaymentCommand, *dto.PaymentResult] = (*ConfirmPaymentHandler)(nil)
var _ commands.Handler[ConfirmExtensionCommand, *dto.PaymentResult] = (*ConfirmExtensionHandler)(nil)
var _ commands.Handler[HandleWebhookCommand, *dto.WebhookAck] = (*WebhookHandler)(nil)
var _ commands.Handler[ReconcilePaymentCommand, *dto.ReconcileResult] = (*ReconcileHandler)(nil)
