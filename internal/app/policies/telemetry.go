package policies

// Telemetry counts business milestones. Implementations must be safe for concurrent use.
type Telemetry interface {
	BookingCreated()
	PaymentMarkedPaid(source string)
	NotificationFailed(template string)
}

type NopTelemetry struct{}

func (NopTelemetry) BookingCreated()           {}
func (NopTelemetry) PaymentMarkedPaid(string)  {}
func (NopTelemetry) NotificationFailed(string) {}
