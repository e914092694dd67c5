package booking

import (
	"time"

	"carshare/internal/domain/shared/money"
	"carshare/internal/domain/vehicles"
)

const (
	EventRequested       = "booking.requested"
	EventPaid            = "booking.paid"
	EventPaymentFailed   = "booking.payment_failed"
	EventRefunded        = "booking.refunded"
	EventExtended        = "booking.extended"
	EventVehicleSwitched = "booking.vehicle_switched"
	EventRentalStarted   = "booking.rental_started"
	EventRentalCompleted = "booking.rental_completed"
	EventReminderDue     = "booking.return_reminder_due"
)

// PaymentSource names the entry point that observed a successful payment.
type PaymentSource string

const (
	SourceWebhook PaymentSource = "webhook"
	SourceClient  PaymentSource = "client"
	SourceManual  PaymentSource = "manual"
)

type BookingRequested struct {
	BookingID BookingID          `json:"booking_id"`
	Code      string             `json:"code"`
	VehicleID vehicles.VehicleID `json:"vehicle_id"`
	DriverID  string             `json:"driver_id"`
	HostID    vehicles.HostID    `json:"host_id"`
	StartDate time.Time          `json:"start_date"`
	EndDate   time.Time          `json:"end_date"`
	Total     money.Money        `json:"total"`
	At        time.Time          `json:"at"`
}

func (e BookingRequested) EventName() string     { return EventRequested }
func (e BookingRequested) AggregateID() string   { return string(e.BookingID) }
func (e BookingRequested) OccurredAt() time.Time { return e.At }

type BookingPaid struct {
	BookingID  BookingID          `json:"booking_id"`
	Code       string             `json:"code"`
	VehicleID  vehicles.VehicleID `json:"vehicle_id"`
	DriverID   string             `json:"driver_id"`
	HostID     vehicles.HostID    `json:"host_id"`
	Status     Status             `json:"status"`
	Total      money.Money        `json:"total"`
	PaymentRef string             `json:"payment_ref"`
	Source     PaymentSource      `json:"source"`
	At         time.Time          `json:"at"`
}

func (e BookingPaid) EventName() string     { return EventPaid }
func (e BookingPaid) AggregateID() string   { return string(e.BookingID) }
func (e BookingPaid) OccurredAt() time.Time { return e.At }

type PaymentFailedEvent struct {
	BookingID  BookingID `json:"booking_id"`
	DriverID   string    `json:"driver_id"`
	PaymentRef string    `json:"payment_ref"`
	At         time.Time `json:"at"`
}

func (e PaymentFailedEvent) EventName() string     { return EventPaymentFailed }
func (e PaymentFailedEvent) AggregateID() string   { return string(e.BookingID) }
func (e PaymentFailedEvent) OccurredAt() time.Time { return e.At }

type BookingRefunded struct {
	BookingID BookingID   `json:"booking_id"`
	DriverID  string      `json:"driver_id"`
	Total     money.Money `json:"total"`
	At        time.Time   `json:"at"`
}

func (e BookingRefunded) EventName() string     { return EventRefunded }
func (e BookingRefunded) AggregateID() string   { return string(e.BookingID) }
func (e BookingRefunded) OccurredAt() time.Time { return e.At }

type BookingExtended struct {
	BookingID  BookingID       `json:"booking_id"`
	Code       string          `json:"code"`
	DriverID   string          `json:"driver_id"`
	HostID     vehicles.HostID `json:"host_id"`
	Days       int             `json:"days"`
	Cost       money.Money     `json:"cost"`
	NewEndDate time.Time       `json:"new_end_date"`
	Total      money.Money     `json:"total"`
	PaymentRef string          `json:"payment_ref"`
	At         time.Time       `json:"at"`
}

func (e BookingExtended) EventName() string     { return EventExtended }
func (e BookingExtended) AggregateID() string   { return string(e.BookingID) }
func (e BookingExtended) OccurredAt() time.Time { return e.At }

type VehicleSwitched struct {
	BookingID       BookingID          `json:"booking_id"`
	Code            string             `json:"code"`
	DriverID        string             `json:"driver_id"`
	PreviousVehicle vehicles.VehicleID `json:"previous_vehicle_id"`
	NewVehicle      vehicles.VehicleID `json:"new_vehicle_id"`
	PriceDifference money.Money        `json:"price_difference"`
	Total           money.Money        `json:"total"`
	At              time.Time          `json:"at"`
}

func (e VehicleSwitched) EventName() string     { return EventVehicleSwitched }
func (e VehicleSwitched) AggregateID() string   { return string(e.BookingID) }
func (e VehicleSwitched) OccurredAt() time.Time { return e.At }

type RentalStarted struct {
	BookingID BookingID          `json:"booking_id"`
	VehicleID vehicles.VehicleID `json:"vehicle_id"`
	HostID    vehicles.HostID    `json:"host_id"`
	At        time.Time          `json:"at"`
}

func (e RentalStarted) EventName() string     { return EventRentalStarted }
func (e RentalStarted) AggregateID() string   { return string(e.BookingID) }
func (e RentalStarted) OccurredAt() time.Time { return e.At }

type RentalCompleted struct {
	BookingID BookingID          `json:"booking_id"`
	VehicleID vehicles.VehicleID `json:"vehicle_id"`
	DriverID  string             `json:"driver_id"`
	HostID    vehicles.HostID    `json:"host_id"`
	At        time.Time          `json:"at"`
}

func (e RentalCompleted) EventName() string     { return EventRentalCompleted }
func (e RentalCompleted) AggregateID() string   { return string(e.BookingID) }
func (e RentalCompleted) OccurredAt() time.Time { return e.At }

type ReturnReminderDue struct {
	BookingID   BookingID `json:"booking_id"`
	Code        string    `json:"code"`
	DriverID    string    `json:"driver_id"`
	EndDate     time.Time `json:"end_date"`
	DropoffTime string    `json:"dropoff_time"`
	At          time.Time `json:"at"`
}

func (e ReturnReminderDue) EventName() string     { return EventReminderDue }
func (e ReturnReminderDue) AggregateID() string   { return string(e.BookingID) }
func (e ReturnReminderDue) OccurredAt() time.Time { return e.At }
