package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"carshare/internal/app/policies"
	"carshare/internal/domain/shared/money"
)

const maxListedPayments = 500

var ErrWebhookSecretMissing = errors.New("payments: webhook secret not configured")

type Options struct {
	SecretKey     string
	WebhookSecret string
	// SuccessURL and CancelURL may contain {booking_id}.
	SuccessURL string
	CancelURL  string
}

// Stripe implements the payment gateway port with Checkout Sessions for booking
// payments and bare PaymentIntents for extensions.
type Stripe struct {
	api    *client.API
	opts   Options
	logger *slog.Logger
}

func NewStripe(opts Options, backends *stripe.Backends, logger *slog.Logger) *Stripe {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stripe{api: client.New(opts.SecretKey, backends), opts: opts, logger: logger}
}

func (s *Stripe) EnsureCustomer(ctx context.Context, email, name string) (string, error) {
	list := &stripe.CustomerListParams{Email: stripe.String(email)}
	list.Context = ctx
	list.Limit = stripe.Int64(1)
	it := s.api.Customers.List(list)
	if it.Next() {
		return it.Customer().ID, nil
	}
	if err := it.Err(); err != nil {
		return "", err
	}
	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx
	if name != "" {
		params.Name = stripe.String(name)
	}
	c, err := s.api.Customers.New(params)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

func (s *Stripe) CreateCheckout(ctx context.Context, req policies.CheckoutRequest) (policies.CheckoutSession, error) {
	meta := map[string]string{
		policies.MetaBookingID: req.BookingID,
		policies.MetaPurpose:   string(policies.PurposeBooking),
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(expandURL(s.opts.SuccessURL, req.BookingID)),
		CancelURL:         stripe.String(expandURL(s.opts.CancelURL, req.BookingID)),
		ClientReferenceID: stripe.String(req.BookingID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Amount.Currency)),
				UnitAmount: stripe.Int64(req.Amount.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String("Reservation " + req.Code),
					Description: stripe.String(req.Description),
				},
			},
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: meta},
		Metadata:          meta,
	}
	params.Context = ctx
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	} else if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return policies.CheckoutSession{}, err
	}
	return policies.CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (s *Stripe) CreateExtensionIntent(ctx context.Context, req policies.ExtensionIntentRequest) (policies.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount.Amount),
		Currency: stripe.String(strings.ToLower(req.Amount.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: map[string]string{
			policies.MetaBookingID:     req.BookingID,
			policies.MetaPurpose:       string(policies.PurposeExtension),
			policies.MetaExtensionDays: strconv.Itoa(req.Days),
		},
	}
	params.Context = ctx
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return policies.PaymentIntent{}, err
	}
	return policies.PaymentIntent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (s *Stripe) GetPaymentIntent(ctx context.Context, id string) (policies.Payment, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.api.PaymentIntents.Get(id, params)
	if err != nil {
		return policies.Payment{}, err
	}
	return paymentFromIntent(pi), nil
}

func (s *Stripe) GetCheckoutSession(ctx context.Context, id string) (policies.Payment, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := s.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return policies.Payment{}, err
	}
	return paymentFromSession(sess), nil
}

// ListRecentPayments pages through payment intents and checkout sessions created since
// the cutoff. A session and its intent collapse into one entry keyed by the intent id;
// the session wins when the intent carries no booking metadata.
func (s *Stripe) ListRecentPayments(ctx context.Context, since time.Time) ([]policies.Payment, error) {
	created := &stripe.RangeQueryParams{GreaterThanOrEqual: since.Unix()}
	out := make([]policies.Payment, 0)
	seen := make(map[string]int)

	intents := &stripe.PaymentIntentListParams{CreatedRange: created}
	intents.Context = ctx
	intents.Limit = stripe.Int64(100)
	it := s.api.PaymentIntents.List(intents)
	for len(out) < maxListedPayments && it.Next() {
		p := paymentFromIntent(it.PaymentIntent())
		seen[p.ID] = len(out)
		out = append(out, p)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	sessions := &stripe.CheckoutSessionListParams{CreatedRange: created}
	sessions.Context = ctx
	sessions.Limit = stripe.Int64(100)
	st := s.api.CheckoutSessions.List(sessions)
	for len(out) < maxListedPayments && st.Next() {
		p := paymentFromSession(st.CheckoutSession())
		i, ok := seen[p.ID]
		switch {
		case !ok:
			seen[p.ID] = len(out)
			out = append(out, p)
		case out[i].BookingID == "" && p.BookingID != "":
			out[i] = p
		}
	}
	if err := st.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseWebhook verifies the Stripe-Signature header over the raw payload before decoding.
func (s *Stripe) ParseWebhook(payload []byte, signature string) (policies.WebhookEvent, error) {
	if s.opts.WebhookSecret == "" {
		return policies.WebhookEvent{}, ErrWebhookSecretMissing
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.opts.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return policies.WebhookEvent{}, err
	}
	out := policies.WebhookEvent{ID: event.ID, RawType: string(event.Type), Type: policies.WebhookIgnored}
	if event.Data == nil {
		return out, nil
	}
	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return out, fmt.Errorf("payments: decode checkout session: %w", err)
		}
		out.Payment = paymentFromSession(&sess)
		if out.Payment.Succeeded {
			out.Type = policies.WebhookPaymentSucceeded
		}
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return out, fmt.Errorf("payments: decode payment intent: %w", err)
		}
		out.Payment = paymentFromIntent(&pi)
		out.Type = policies.WebhookPaymentSucceeded
	case "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return out, fmt.Errorf("payments: decode payment intent: %w", err)
		}
		out.Payment = paymentFromIntent(&pi)
		out.Payment.Failed = true
		out.Type = policies.WebhookPaymentFailed
	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return out, fmt.Errorf("payments: decode charge: %w", err)
		}
		out.Payment = s.paymentFromCharge(&ch)
		out.Type = policies.WebhookRefunded
	}
	return out, nil
}

// paymentFromCharge prefers the charge metadata and falls back to the intent's.
func (s *Stripe) paymentFromCharge(ch *stripe.Charge) policies.Payment {
	p := policies.Payment{
		ID:        ch.ID,
		Amount:    toMoney(ch.AmountRefunded, ch.Currency),
		CreatedAt: time.Unix(ch.Created, 0).UTC(),
	}
	if ch.PaymentIntent != nil && ch.PaymentIntent.ID != "" {
		p.ID = ch.PaymentIntent.ID
	}
	applyMetadata(&p, ch.Metadata)
	if p.BookingID != "" || ch.PaymentIntent == nil || ch.PaymentIntent.ID == "" {
		return p
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	intent, err := s.GetPaymentIntent(ctx, ch.PaymentIntent.ID)
	if err != nil {
		s.logger.Warn("refund without booking metadata", "charge", ch.ID, "error", err)
		return p
	}
	p.BookingID = intent.BookingID
	p.Purpose = intent.Purpose
	p.ExtensionDays = intent.ExtensionDays
	return p
}

func paymentFromIntent(pi *stripe.PaymentIntent) policies.Payment {
	p := policies.Payment{
		ID:        pi.ID,
		Amount:    toMoney(pi.Amount, pi.Currency),
		Succeeded: pi.Status == stripe.PaymentIntentStatusSucceeded,
		Failed:    pi.Status == stripe.PaymentIntentStatusCanceled,
		CreatedAt: time.Unix(pi.Created, 0).UTC(),
	}
	applyMetadata(&p, pi.Metadata)
	return p
}

func paymentFromSession(sess *stripe.CheckoutSession) policies.Payment {
	p := policies.Payment{
		ID:        sess.ID,
		Amount:    toMoney(sess.AmountTotal, sess.Currency),
		Succeeded: sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		CreatedAt: time.Unix(sess.Created, 0).UTC(),
	}
	if sess.PaymentIntent != nil && sess.PaymentIntent.ID != "" {
		p.ID = sess.PaymentIntent.ID
	}
	applyMetadata(&p, sess.Metadata)
	if p.BookingID == "" {
		p.BookingID = sess.ClientReferenceID
	}
	return p
}

func applyMetadata(p *policies.Payment, meta map[string]string) {
	p.BookingID = meta[policies.MetaBookingID]
	p.Purpose = policies.PurposeBooking
	if meta[policies.MetaPurpose] == string(policies.PurposeExtension) {
		p.Purpose = policies.PurposeExtension
	}
	if days, err := strconv.Atoi(meta[policies.MetaExtensionDays]); err == nil {
		p.ExtensionDays = days
	}
}

func toMoney(amount int64, currency stripe.Currency) money.Money {
	m, err := money.New(amount, strings.ToUpper(string(currency)))
	if err != nil {
		return money.Money{Amount: amount}
	}
	return m
}

func expandURL(tmpl, bookingID string) string {
	return strings.ReplaceAll(tmpl, "{booking_id}", bookingID)
}

var _ policies.PaymentGateway = (*Stripe)(nil)
