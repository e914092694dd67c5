// Package payments applies processor payments to bookings. Every entry point (webhook,
// client confirmation, manual reconciliation) funnels through Reconciler.
package payments

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"carshare/internal/app/outbox"
	"carshare/internal/app/policies"
	"carshare/internal/app/uow"
	domainbooking "carshare/internal/domain/booking"
	"carshare/internal/domain/shared/apperr"
)

const maxCASAttempts = 3

var (
	ErrPaymentNotSucceeded = apperr.New(apperr.ErrInvalidState, "payments: payment has not succeeded")
	ErrPaymentMismatch     = apperr.New(apperr.ErrInvalidInput, "payments: payment does not belong to this booking")
	ErrNoPaymentSession    = apperr.New(apperr.ErrInvalidState, "payments: booking has no payment session")
	ErrNoPaymentFound      = apperr.New(apperr.ErrNotFound, "payments: no successful payment found for booking")
	ErrExtensionAmount     = apperr.New(apperr.ErrInvalidInput, "payments: extension payment amount does not match the quote")
	ErrExtensionPurpose    = apperr.New(apperr.ErrInvalidInput, "payments: payment is not an extension payment")
)

// Outcome reports what a payment did to its booking.
type Outcome struct {
	Booking *domainbooking.Booking
	Applied bool
}

type Reconciler struct {
	Outbox    outbox.Outbox
	Encoder   outbox.EventEncoder
	Telemetry policies.Telemetry
	Logger    *slog.Logger
	Now       func() time.Time
}

// Apply routes a successful payment by its purpose.
func (r *Reconciler) Apply(ctx context.Context, unit uow.UnitOfWork, p policies.Payment, source domainbooking.PaymentSource) (Outcome, error) {
	if !p.Succeeded {
		return Outcome{}, ErrPaymentNotSucceeded
	}
	if p.Purpose == policies.PurposeExtension {
		return r.ApplyExtension(ctx, unit, p)
	}
	return r.MarkPaid(ctx, unit, domainbooking.BookingID(p.BookingID), p.ID, source)
}

// MarkPaid performs the paid transition with a compare-and-set on the payment status.
// A booking that is already paid is returned unchanged with Applied false, so the
// paid event and its notifications happen once.
func (r *Reconciler) MarkPaid(ctx context.Context, unit uow.UnitOfWork, id domainbooking.BookingID, paymentRef string, source domainbooking.PaymentSource) (Outcome, error) {
	for attempt := 1; ; attempt++ {
		b, err := unit.Bookings().ByID(ctx, id)
		if err != nil {
			return Outcome{}, err
		}
		expected := b.PaymentStatus
		applied, err := b.MarkPaid(paymentRef, source, r.now())
		if err != nil {
			return Outcome{Booking: b}, err
		}
		if !applied {
			return Outcome{Booking: b}, nil
		}
		err = unit.Bookings().SaveIfPaymentStatus(ctx, b, expected)
		if errors.Is(err, domainbooking.ErrPaymentStatusChanged) && attempt < maxCASAttempts {
			r.logger().Info("payment status changed concurrently, reloading", "booking_id", id, "attempt", attempt)
			continue
		}
		if err != nil {
			return Outcome{}, err
		}
		if err := outbox.RecordDomainEvents(ctx, r.Outbox, r.Encoder, b); err != nil {
			return Outcome{}, err
		}
		if r.Telemetry != nil {
			r.Telemetry.PaymentMarkedPaid(string(source))
		}
		r.logger().Info("booking paid", "booking_id", b.ID, "code", b.Code, "payment_ref", b.PaymentRef, "source", source, "status", b.Status)
		return Outcome{Booking: b, Applied: true}, nil
	}
}

// ApplyExtension adds paid extension days once per payment reference. The delta
// window is re-checked because the vehicle may have been booked since the quote.
func (r *Reconciler) ApplyExtension(ctx context.Context, unit uow.UnitOfWork, p policies.Payment) (Outcome, error) {
	if p.Purpose != policies.PurposeExtension {
		return Outcome{}, ErrExtensionPurpose
	}
	b, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(p.BookingID))
	if err != nil {
		return Outcome{}, err
	}
	if b.HasExtensionPayment(p.ID) {
		return Outcome{Booking: b}, nil
	}
	quote, err := b.QuoteExtension(p.ExtensionDays)
	if err != nil {
		return Outcome{Booking: b}, err
	}
	if !p.Amount.IsZero() && p.Amount.Amount != quote.Cost.Amount {
		return Outcome{Booking: b}, ErrExtensionAmount
	}
	checker := domainbooking.AvailabilityChecker{Bookings: unit.Bookings()}
	if err := checker.Ensure(ctx, b.ExtensionConflictQuery(p.ExtensionDays)); err != nil {
		r.logger().Error("paid extension blocked by a later booking; refund required",
			"booking_id", b.ID, "payment_ref", p.ID, "days", p.ExtensionDays, "error", err)
		return Outcome{Booking: b}, err
	}
	applied, err := b.ApplyExtension(p.ExtensionDays, p.ID, r.now())
	if err != nil || !applied {
		return Outcome{Booking: b}, err
	}
	if err := unit.Bookings().Save(ctx, b); err != nil {
		return Outcome{}, err
	}
	if err := outbox.RecordDomainEvents(ctx, r.Outbox, r.Encoder, b); err != nil {
		return Outcome{}, err
	}
	r.logger().Info("booking extended", "booking_id", b.ID, "days", p.ExtensionDays, "new_end", b.Range.End, "total", b.TotalPrice.String())
	return Outcome{Booking: b, Applied: true}, nil
}

// MarkFailed records a failed payment attempt. Settled payments are never overridden.
func (r *Reconciler) MarkFailed(ctx context.Context, unit uow.UnitOfWork, id domainbooking.BookingID, paymentRef string) (Outcome, error) {
	b, err := unit.Bookings().ByID(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	expected := b.PaymentStatus
	if !b.MarkPaymentFailed(paymentRef, r.now()) {
		return Outcome{Booking: b}, nil
	}
	return r.saveConditional(ctx, unit, b, expected, "payment failed")
}

// MarkRefunded moves a paid booking to refunded.
func (r *Reconciler) MarkRefunded(ctx context.Context, unit uow.UnitOfWork, id domainbooking.BookingID) (Outcome, error) {
	b, err := unit.Bookings().ByID(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	expected := b.PaymentStatus
	if !b.MarkRefunded(r.now()) {
		return Outcome{Booking: b}, nil
	}
	return r.saveConditional(ctx, unit, b, expected, "payment refunded")
}

func (r *Reconciler) saveConditional(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking, expected domainbooking.PaymentStatus, msg string) (Outcome, error) {
	err := unit.Bookings().SaveIfPaymentStatus(ctx, b, expected)
	if errors.Is(err, domainbooking.ErrPaymentStatusChanged) {
		r.logger().Info(msg+" skipped, status changed concurrently", "booking_id", b.ID)
		b.ClearEvents()
		return Outcome{Booking: b}, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	if err := outbox.RecordDomainEvents(ctx, r.Outbox, r.Encoder, b); err != nil {
		return Outcome{}, err
	}
	r.logger().Info(msg, "booking_id", b.ID, "payment_status", b.PaymentStatus)
	return Outcome{Booking: b, Applied: true}, nil
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func (r *Reconciler) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
