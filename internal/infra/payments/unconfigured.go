package payments

import (
	"context"
	"errors"
	"time"

	"carshare/internal/app/policies"
	"carshare/internal/domain/shared/apperr"
)

var ErrNotConfigured = errors.New("payments: processor not configured")

// Unconfigured is wired when no processor key is set. Every call fails as an upstream
// error so bookings stay untouched.
type Unconfigured struct{}

func (Unconfigured) err() error { return apperr.Upstream("payments", ErrNotConfigured) }

func (u Unconfigured) EnsureCustomer(context.Context, string, string) (string, error) {
	return "", u.err()
}

func (u Unconfigured) CreateCheckout(context.Context, policies.CheckoutRequest) (policies.CheckoutSession, error) {
	return policies.CheckoutSession{}, u.err()
}

func (u Unconfigured) CreateExtensionIntent(context.Context, policies.ExtensionIntentRequest) (policies.PaymentIntent, error) {
	return policies.PaymentIntent{}, u.err()
}

func (u Unconfigured) GetPaymentIntent(context.Context, string) (policies.Payment, error) {
	return policies.Payment{}, u.err()
}

func (u Unconfigured) GetCheckoutSession(context.Context, string) (policies.Payment, error) {
	return policies.Payment{}, u.err()
}

func (u Unconfigured) ListRecentPayments(context.Context, time.Time) ([]policies.Payment, error) {
	return nil, u.err()
}

func (u Unconfigured) ParseWebhook([]byte, string) (policies.WebhookEvent, error) {
	return policies.WebhookEvent{}, u.err()
}

var _ policies.PaymentGateway = Unconfigured{}
