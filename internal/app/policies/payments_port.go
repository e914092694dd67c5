package policies

import (
	"context"
	"time"

	"carshare/internal/domain/shared/money"
)

// PaymentPurpose is carried in processor metadata to tell booking payments from
// extension payments.
type PaymentPurpose string

const (
	PurposeBooking   PaymentPurpose = "booking"
	PurposeExtension PaymentPurpose = "extension"
)

const (
	MetaBookingID     = "booking_id"
	MetaPurpose       = "type"
	MetaExtensionDays = "extension_days"
)

// Payment is the processor-agnostic view of a payment intent or checkout session.
type Payment struct {
	ID            string
	BookingID     string
	Purpose       PaymentPurpose
	ExtensionDays int
	Amount        money.Money
	Succeeded     bool
	Failed        bool
	CreatedAt     time.Time
}

type CheckoutRequest struct {
	BookingID     string
	Code          string
	Description   string
	Amount        money.Money
	CustomerID    string
	CustomerEmail string
}

type CheckoutSession struct {
	ID  string
	URL string
}

type ExtensionIntentRequest struct {
	BookingID  string
	Days       int
	Amount     money.Money
	CustomerID string
}

type PaymentIntent struct {
	ID           string
	ClientSecret string
}

type WebhookEventType string

const (
	WebhookPaymentSucceeded WebhookEventType = "payment_succeeded"
	WebhookPaymentFailed    WebhookEventType = "payment_failed"
	WebhookRefunded         WebhookEventType = "refunded"
	WebhookIgnored          WebhookEventType = "ignored"
)

type WebhookEvent struct {
	ID      string
	Type    WebhookEventType
	RawType string
	Payment Payment
}

// PaymentGateway is everything the engine needs from the payment processor.
type PaymentGateway interface {
	EnsureCustomer(ctx context.Context, email, name string) (string, error)
	CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	CreateExtensionIntent(ctx context.Context, req ExtensionIntentRequest) (PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, id string) (Payment, error)
	GetCheckoutSession(ctx context.Context, id string) (Payment, error)
	ListRecentPayments(ctx context.Context, since time.Time) ([]Payment, error)
	// ParseWebhook verifies the signature over the raw body before decoding it.
	ParseWebhook(payload []byte, signature string) (WebhookEvent, error)
}
