// Package notify turns booking events into emails. Delivery is best effort: a failed
// send is logged and counted, never returned to the event transport.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"carshare/internal/app/handlers/support"
	"carshare/internal/app/outbox"
	"carshare/internal/app/policies"
	"carshare/internal/app/uow"
	domainbooking "carshare/internal/domain/booking"
	"carshare/internal/domain/shared/apperr"
	domainuser "carshare/internal/domain/user"
)

const dateLayout = "2006-01-02"

type email struct {
	to       string
	template string
	data     map[string]any
}

type Dispatcher struct {
	UoWFactory uow.UoWFactory
	Notifier   policies.Notifier
	Telemetry  policies.Telemetry
	Logger     *slog.Logger
}

// HandleEvent sends the emails that belong to rec. Unknown events are ignored. Only a
// failure to read recipients is returned so the transport can redeliver.
func (d *Dispatcher) HandleEvent(ctx context.Context, rec outbox.EventRecord) error {
	if d.Notifier == nil {
		return nil
	}
	plan, err := d.plan(rec)
	if err != nil {
		d.logger().Warn("notification event skipped", "event", rec.Name, "id", rec.ID, "error", err)
		return nil
	}
	if len(plan) == 0 {
		return nil
	}
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, d.UoWFactory)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}
	for _, msg := range plan {
		user, err := unit.Users().ByID(execCtx, domainuser.ID(msg.to))
		if errors.Is(err, apperr.ErrNotFound) {
			d.logger().Warn("notification recipient missing", "event", rec.Name, "user_id", msg.to)
			continue
		}
		if err != nil {
			return err
		}
		msg.data["name"] = user.Name
		if err := d.Notifier.Send(execCtx, user.Email, msg.template, msg.data); err != nil {
			d.logger().Warn("notification failed", "template", msg.template, "user_id", msg.to, "event_id", rec.ID, "error", err)
			if d.Telemetry != nil {
				d.Telemetry.NotificationFailed(msg.template)
			}
			continue
		}
		d.logger().Debug("notification sent", "template", msg.template, "user_id", msg.to, "event_id", rec.ID)
	}
	return nil
}

func (d *Dispatcher) plan(rec outbox.EventRecord) ([]email, error) {
	switch rec.Name {
	case domainbooking.EventRequested:
		var ev domainbooking.BookingRequested
		if err := decode(rec, &ev); err != nil {
			return nil, err
		}
		return []email{{
			to:       string(ev.HostID),
			template: policies.TemplateBookingRequested,
			data: map[string]any{
				"code":       ev.Code,
				"booking_id": string(ev.BookingID),
				"start_date": ev.StartDate.Format(dateLayout),
				"end_date":   ev.EndDate.Format(dateLayout),
				"total":      ev.Total.String(),
			},
		}}, nil
	case domainbooking.EventPaid:
		var ev domainbooking.BookingPaid
		if err := decode(rec, &ev); err != nil {
			return nil, err
		}
		data := func() map[string]any {
			return map[string]any{"code": ev.Code, "booking_id": string(ev.BookingID), "total": ev.Total.String(), "status": string(ev.Status)}
		}
		return []email{
			{to: ev.DriverID, template: policies.TemplateBookingConfirmed, data: data()},
			{to: string(ev.HostID), template: policies.TemplateNewReservation, data: data()},
		}, nil
	case domainbooking.EventExtended:
		var ev domainbooking.BookingExtended
		if err := decode(rec, &ev); err != nil {
			return nil, err
		}
		data := func() map[string]any {
			return map[string]any{
				"code":         ev.Code,
				"booking_id":   string(ev.BookingID),
				"days":         ev.Days,
				"cost":         ev.Cost.String(),
				"new_end_date": ev.NewEndDate.Format(dateLayout),
				"total":        ev.Total.String(),
			}
		}
		return []email{
			{to: ev.DriverID, template: policies.TemplateBookingExtended, data: data()},
			{to: string(ev.HostID), template: policies.TemplateBookingExtended, data: data()},
		}, nil
	case domainbooking.EventVehicleSwitched:
		var ev domainbooking.VehicleSwitched
		if err := decode(rec, &ev); err != nil {
			return nil, err
		}
		return []email{{
			to:       ev.DriverID,
			template: policies.TemplateVehicleSwitched,
			data: map[string]any{
				"code":             ev.Code,
				"booking_id":       string(ev.BookingID),
				"vehicle_id":       string(ev.NewVehicle),
				"price_difference": ev.PriceDifference.String(),
				"total":            ev.Total.String(),
			},
		}}, nil
	case domainbooking.EventPaymentFailed:
		var ev domainbooking.PaymentFailedEvent
		if err := decode(rec, &ev); err != nil {
			return nil, err
		}
		return []email{{to: ev.DriverID, template: policies.TemplatePaymentFailed, data: map[string]any{"booking_id": string(ev.BookingID)}}}, nil
	case domainbooking.EventRefunded:
		var ev domainbooking.BookingRefunded
		if err := decode(rec, &ev); err != nil {
			return nil, err
		}
		return []email{{to: ev.DriverID, template: policies.TemplateRefundIssued, data: map[string]any{"booking_id": string(ev.BookingID), "total": ev.Total.String()}}}, nil
	case domainbooking.EventReminderDue:
		var ev domainbooking.ReturnReminderDue
		if err := decode(rec, &ev); err != nil {
			return nil, err
		}
		return []email{{
			to:       ev.DriverID,
			template: policies.TemplateReturnReminder,
			data: map[string]any{
				"code":         ev.Code,
				"booking_id":   string(ev.BookingID),
				"end_date":     ev.EndDate.Format(dateLayout),
				"dropoff_time": ev.DropoffTime,
			},
		}}, nil
	default:
		return nil, nil
	}
}

func decode(rec outbox.EventRecord, dst any) error {
	if err := json.Unmarshal(rec.Payload, dst); err != nil {
		return fmt.Errorf("decode %s: %w", rec.Name, err)
	}
	return nil
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

var _ outbox.Handler = (*Dispatcher)(nil)
