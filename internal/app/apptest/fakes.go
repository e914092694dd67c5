package apptest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"carshare/internal/app/policies"
)

var ErrFakeUpstream = errors.New("fake upstream down")

// Gateway is a scripted payment processor.
type Gateway struct {
	mu sync.Mutex

	Customers  int
	Checkouts  []policies.CheckoutRequest
	Intents    []policies.ExtensionIntentRequest
	Payments   map[string]policies.Payment
	Recent     []policies.Payment
	Webhook    policies.WebhookEvent
	WebhookErr error
	Fail       bool
}

func NewGateway() *Gateway {
	return &Gateway{Payments: map[string]policies.Payment{}}
}

func (g *Gateway) EnsureCustomer(_ context.Context, email, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Fail {
		return "", ErrFakeUpstream
	}
	g.Customers++
	return "cus_" + email, nil
}

func (g *Gateway) CreateCheckout(_ context.Context, req policies.CheckoutRequest) (policies.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Fail {
		return policies.CheckoutSession{}, ErrFakeUpstream
	}
	g.Checkouts = append(g.Checkouts, req)
	id := fmt.Sprintf("cs_%d", len(g.Checkouts))
	return policies.CheckoutSession{ID: id, URL: "https://pay.test/" + id}, nil
}

func (g *Gateway) CreateExtensionIntent(_ context.Context, req policies.ExtensionIntentRequest) (policies.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Fail {
		return policies.PaymentIntent{}, ErrFakeUpstream
	}
	g.Intents = append(g.Intents, req)
	id := fmt.Sprintf("pi_ext_%d", len(g.Intents))
	return policies.PaymentIntent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (g *Gateway) GetPaymentIntent(_ context.Context, id string) (policies.Payment, error) {
	return g.lookup(id)
}

func (g *Gateway) GetCheckoutSession(_ context.Context, id string) (policies.Payment, error) {
	return g.lookup(id)
}

func (g *Gateway) lookup(id string) (policies.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Fail {
		return policies.Payment{}, ErrFakeUpstream
	}
	p, ok := g.Payments[id]
	if !ok {
		return policies.Payment{}, fmt.Errorf("no such payment %q", id)
	}
	return p, nil
}

func (g *Gateway) ListRecentPayments(_ context.Context, since time.Time) ([]policies.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Fail {
		return nil, ErrFakeUpstream
	}
	out := make([]policies.Payment, 0, len(g.Recent))
	for _, p := range g.Recent {
		if !p.CreatedAt.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (g *Gateway) ParseWebhook(_ []byte, _ string) (policies.WebhookEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Webhook, g.WebhookErr
}

// Uploader records uploads and returns deterministic URLs.
type Uploader struct {
	mu   sync.Mutex
	Keys []string
	Fail bool
}

func (u *Uploader) Upload(_ context.Context, key string, r io.Reader, _ string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Fail {
		return "", ErrFakeUpstream
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	u.Keys = append(u.Keys, key)
	return "https://cdn.test/" + key, nil
}

type SentEmail struct {
	To       string
	Template string
	Data     map[string]any
}

// Notifier records every email it is asked to send.
type Notifier struct {
	mu   sync.Mutex
	Sent []SentEmail
	Fail bool
}

func (n *Notifier) Send(_ context.Context, to, template string, data map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Fail {
		return ErrFakeUpstream
	}
	n.Sent = append(n.Sent, SentEmail{To: to, Template: template, Data: data})
	return nil
}

func (n *Notifier) Templates() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.Sent))
	for _, s := range n.Sent {
		out = append(out, s.Template)
	}
	return out
}

// Telemetry counts calls.
type Telemetry struct {
	mu       sync.Mutex
	Created  int
	Paid     map[string]int
	Failures int
}

func (t *Telemetry) BookingCreated() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Created++
}

func (t *Telemetry) PaymentMarkedPaid(source string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Paid == nil {
		t.Paid = map[string]int{}
	}
	t.Paid[source]++
}

func (t *Telemetry) NotificationFailed(string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Failures++
}

// Geocoder resolves every address to Coords unless Err is set.
type Geocoder struct {
	Coords  policies.Coordinates
	Err     error
	Queries []string
}

func (g *Geocoder) Geocode(_ context.Context, address string) (policies.Coordinates, error) {
	g.Queries = append(g.Queries, address)
	if g.Err != nil {
		return policies.Coordinates{}, g.Err
	}
	return g.Coords, nil
}

type VINDecoder struct {
	Result policies.DecodedVIN
	Err    error
	Calls  int
}

func (v *VINDecoder) Decode(_ context.Context, _ string) (policies.DecodedVIN, error) {
	v.Calls++
	if v.Err != nil {
		return policies.DecodedVIN{}, v.Err
	}
	return v.Result, nil
}

var (
	_ policies.Geocoder       = (*Geocoder)(nil)
	_ policies.VINDecoder     = (*VINDecoder)(nil)
	_ policies.PaymentGateway = (*Gateway)(nil)
	_ policies.Uploader       = (*Uploader)(nil)
	_ policies.Notifier       = (*Notifier)(nil)
	_ policies.Telemetry      = (*Telemetry)(nil)
)
