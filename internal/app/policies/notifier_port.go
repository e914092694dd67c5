package policies

import "context"

// Email templates known to the notifier.
const (
	TemplateBookingRequested = "booking_requested"
	TemplateBookingConfirmed = "booking_confirmed"
	TemplateNewReservation   = "new_reservation"
	TemplateBookingExtended  = "booking_extended"
	TemplateVehicleSwitched  = "vehicle_switched"
	TemplatePaymentFailed    = "payment_failed"
	TemplateRefundIssued     = "refund_issued"
	TemplateReturnReminder   = "return_reminder"
)

type Notifier interface {
	Send(ctx context.Context, to string, template string, data map[string]any) error
}
