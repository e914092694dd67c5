// Package email delivers booking notifications through SendGrid.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"text/template"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"carshare/internal/app/policies"
)

const sendPath = "/v3/mail/send"

type Options struct {
	APIKey   string
	From     string
	FromName string
	// Host overrides the API base URL; empty means api.sendgrid.com.
	Host string
	// TemplateIDs maps notifier templates to SendGrid dynamic template ids. Templates
	// without an id are sent as plain text.
	TemplateIDs map[string]string
}

type SendGrid struct {
	client *sendgrid.Client
	opts   Options
	logger *slog.Logger
}

func NewSendGrid(opts Options, logger *slog.Logger) *SendGrid {
	if logger == nil {
		logger = slog.Default()
	}
	client := sendgrid.NewSendClient(opts.APIKey)
	if opts.Host != "" {
		req := sendgrid.GetRequest(opts.APIKey, sendPath, opts.Host)
		req.Method = "POST"
		client = &sendgrid.Client{Request: req}
	}
	return &SendGrid{client: client, opts: opts, logger: logger}
}

func (s *SendGrid) Send(ctx context.Context, to string, tmpl string, data map[string]any) error {
	msg, err := s.build(to, tmpl, data)
	if err != nil {
		return err
	}
	resp, err := s.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("email: send %s: %w", tmpl, err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("email: sendgrid status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

func (s *SendGrid) build(to, tmpl string, data map[string]any) (*mail.SGMailV3, error) {
	from := mail.NewEmail(s.opts.FromName, s.opts.From)
	name, _ := data["name"].(string)
	recipient := mail.NewEmail(name, to)

	if id := s.opts.TemplateIDs[tmpl]; id != "" {
		msg := mail.NewV3Mail()
		msg.SetFrom(from)
		msg.SetTemplateID(id)
		p := mail.NewPersonalization()
		p.AddTos(recipient)
		for k, v := range data {
			p.SetDynamicTemplateData(k, v)
		}
		msg.AddPersonalizations(p)
		return msg, nil
	}

	subject, body, err := Render(tmpl, data)
	if err != nil {
		return nil, err
	}
	return mail.NewV3MailInit(from, subject, recipient, mail.NewContent("text/plain", body)), nil
}

// LogNotifier stands in for SendGrid when no API key is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Send(_ context.Context, to string, tmpl string, data map[string]any) error {
	subject, _, err := Render(tmpl, data)
	if err != nil {
		return err
	}
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("email not sent, no provider configured", "to", to, "template", tmpl, "subject", subject)
	return nil
}

type textTemplate struct {
	subject *template.Template
	body    *template.Template
}

var templates = map[string]textTemplate{
	policies.TemplateBookingRequested: text("New booking request {{.code}}",
		"Hi {{.name}},\n\nYou have a new booking request {{.code}} for {{.start_date}} to {{.end_date}}. Total: {{.total}}.\n"),
	policies.TemplateBookingConfirmed: text("Booking {{.code}} confirmed",
		"Hi {{.name}},\n\nYour payment of {{.total}} was received and booking {{.code}} is confirmed.\n"),
	policies.TemplateNewReservation: text("New reservation {{.code}}",
		"Hi {{.name}},\n\nBooking {{.code}} has been paid ({{.total}}). Get your vehicle ready.\n"),
	policies.TemplateBookingExtended: text("Booking {{.code}} extended",
		"Hi {{.name}},\n\nBooking {{.code}} was extended by {{.days}} day(s) for {{.cost}}. New end date: {{.new_end_date}}. New total: {{.total}}.\n"),
	policies.TemplateVehicleSwitched: text("Vehicle changed for booking {{.code}}",
		"Hi {{.name}},\n\nBooking {{.code}} now uses a different vehicle. Price difference: {{.price_difference}}. New total: {{.total}}.\n"),
	policies.TemplatePaymentFailed: text("Payment failed",
		"Hi {{.name}},\n\nWe could not process the payment for your booking. Please try again.\n"),
	policies.TemplateRefundIssued: text("Refund issued",
		"Hi {{.name}},\n\nA refund of {{.total}} has been issued for your booking.\n"),
	policies.TemplateReturnReminder: text("Return reminder for booking {{.code}}",
		"Hi {{.name}},\n\nBooking {{.code}} ends on {{.end_date}}{{if .dropoff_time}} at {{.dropoff_time}}{{end}}. Please return the vehicle on time.\n"),
}

func text(subject, body string) textTemplate {
	return textTemplate{
		subject: template.Must(template.New("subject").Parse(subject)),
		body:    template.Must(template.New("body").Parse(body)),
	}
}

// Render produces the subject and plain-text body for a notifier template.
func Render(tmpl string, data map[string]any) (string, string, error) {
	t, ok := templates[tmpl]
	if !ok {
		return "", "", fmt.Errorf("email: unknown template %q", tmpl)
	}
	subject, err := execute(t.subject, data)
	if err != nil {
		return "", "", err
	}
	body, err := execute(t.body, data)
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}

func execute(t *template.Template, data map[string]any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("email: render %s: %w", t.Name(), err)
	}
	return b.String(), nil
}

// ParseTemplateIDs reads "template=id" pairs separated by commas.
func ParseTemplateIDs(raw string) (map[string]string, error) {
	out := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("email: bad template mapping %q", pair)
		}
		k = strings.TrimSpace(k)
		if _, known := templates[k]; !known {
			return nil, fmt.Errorf("email: unknown template %q (known: %s)", k, strings.Join(Known(), ", "))
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}

// Known lists the template names in sorted order.
func Known() []string {
	names := make([]string, 0, len(templates))
	for k := range templates {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

var (
	_ policies.Notifier = (*SendGrid)(nil)
	_ policies.Notifier = LogNotifier{}
)
