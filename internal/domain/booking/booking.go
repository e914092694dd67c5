package booking

import (
	"context"
	"regexp"
	"strings"
	"time"

	"carshare/internal/domain/pricing"
	"carshare/internal/domain/shared/daterange"
	"carshare/internal/domain/shared/events"
	"carshare/internal/domain/shared/money"
	"carshare/internal/domain/vehicles"
)

type BookingID string

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusPending, StatusConfirmed, StatusActive, StatusCompleted, StatusCancelled:
		return s, nil
	default:
		return "", ErrUnknownStatus
	}
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentFailed   PaymentStatus = "failed"
)

const (
	MinExtensionDays = 1
	MaxExtensionDays = 30
)

var pickupTimePattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

type Booking struct {
	ID                 BookingID
	Code               string
	VehicleID          vehicles.VehicleID
	DriverID           string
	HostID             vehicles.HostID
	Range              daterange.DateRange
	PickupTime         string
	DropoffTime        string
	RentalType         pricing.RentalType
	Quantity           int
	TotalDays          int
	PricePerDay        money.Money
	RentalPrice        money.Money
	TotalPrice         money.Money
	Status             Status
	PaymentStatus      PaymentStatus
	PaymentRef         string
	Extensions         []Extension
	Switches           []VehicleSwitch
	Insurance          *InsuranceSelection
	PickupInspection   *Inspection
	ReturnInspection   *Inspection
	ReturnReminderSent bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
	events.EventRecorder
}

// Repository persists bookings. Save writes every field except ReturnReminderSent,
// which only MarkReturnReminderSent changes. The only conditional write is
// SaveIfPaymentStatus, which must fail with ErrPaymentStatusChanged when the stored
// payment status no longer equals expected.
type Repository interface {
	ByID(ctx context.Context, id BookingID) (*Booking, error)
	Save(ctx context.Context, booking *Booking) error
	SaveIfPaymentStatus(ctx context.Context, booking *Booking, expected PaymentStatus) error
	ListByDriver(ctx context.Context, driverID string) ([]*Booking, error)
	ListByHost(ctx context.Context, hostID vehicles.HostID) ([]*Booking, error)
	ListByVehicle(ctx context.Context, vehicleID vehicles.VehicleID, statuses []Status) ([]*Booking, error)
	ListDueForReminder(ctx context.Context, endBefore time.Time) ([]*Booking, error)
	MarkReturnReminderSent(ctx context.Context, id BookingID, at time.Time) error
	ListMissingCode(ctx context.Context, limit int) ([]*Booking, error)
	SetCode(ctx context.Context, id BookingID, code string) error
}

type CreateParams struct {
	ID         BookingID
	Code       string
	Vehicle    *vehicles.Vehicle
	DriverID   string
	Range      daterange.DateRange
	PickupTime string
	RentalType pricing.RentalType
	Quantity   int
	Now        time.Time
}

// NewBooking validates the request, prices it from the vehicle's current rates and
// returns a pending booking. It does not look at other bookings.
func NewBooking(params CreateParams) (*Booking, error) {
	if params.Vehicle == nil {
		return nil, ErrVehicleRequired
	}
	driverID := strings.TrimSpace(params.DriverID)
	if driverID == "" {
		return nil, ErrDriverRequired
	}
	if vehicles.HostID(driverID) == params.Vehicle.Host {
		return nil, ErrOwnVehicle
	}
	if !params.Vehicle.Available {
		return nil, ErrVehicleUnavailable
	}
	dr, err := daterange.New(daterange.Truncate(params.Range.Start), daterange.Truncate(params.Range.End))
	if err != nil {
		return nil, err
	}
	now := params.Now.UTC()
	if dr.Start.Before(daterange.Truncate(now)) {
		return nil, ErrStartInPast
	}
	pickup := strings.TrimSpace(params.PickupTime)
	if !pickupTimePattern.MatchString(pickup) {
		return nil, ErrPickupTime
	}
	quantity := params.Quantity
	totalDays := dr.Days()
	if params.RentalType == pricing.RentalDaily {
		quantity = totalDays
	}
	quote, err := pricing.Calculate(params.Vehicle.Rates, params.RentalType, quantity, totalDays)
	if err != nil {
		return nil, err
	}

	b := &Booking{
		ID:            params.ID,
		Code:          params.Code,
		VehicleID:     params.Vehicle.ID,
		DriverID:      driverID,
		HostID:        params.Vehicle.Host,
		Range:         dr,
		PickupTime:    pickup,
		DropoffTime:   pickup,
		RentalType:    params.RentalType,
		Quantity:      quantity,
		TotalDays:     totalDays,
		PricePerDay:   quote.PerDay,
		RentalPrice:   quote.Total,
		TotalPrice:    quote.Total,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	b.Record(BookingRequested{
		BookingID: b.ID,
		Code:      b.Code,
		VehicleID: b.VehicleID,
		DriverID:  b.DriverID,
		HostID:    b.HostID,
		StartDate: b.Range.Start,
		EndDate:   b.Range.End,
		Total:     b.TotalPrice,
		At:        now,
	})
	return b, nil
}

func (b *Booking) IsDriver(actorID string) bool {
	return actorID != "" && actorID == b.DriverID
}

func (b *Booking) IsHost(actorID string) bool {
	return actorID != "" && vehicles.HostID(actorID) == b.HostID
}

func (b *Booking) RequireParticipant(actorID string) error {
	if b.IsDriver(actorID) || b.IsHost(actorID) {
		return nil
	}
	return ErrNotParticipant
}

func (b *Booking) RequireDriver(actorID string) error {
	if b.IsDriver(actorID) {
		return nil
	}
	if b.IsHost(actorID) {
		return ErrDriverOnly
	}
	return ErrNotParticipant
}

func (b *Booking) RequireHost(actorID string) error {
	if b.IsHost(actorID) {
		return nil
	}
	if b.IsDriver(actorID) {
		return ErrHostOnly
	}
	return ErrNotParticipant
}

// AssignCode sets the reservation code once. Later calls are ignored. A pending
// BookingRequested event recorded without a code picks it up too.
func (b *Booking) AssignCode(code string) bool {
	if b.Code != "" || strings.TrimSpace(code) == "" {
		return false
	}
	b.Code = code
	for _, e := range b.Drain() {
		if req, ok := e.(BookingRequested); ok && req.Code == "" {
			req.Code = code
			e = req
		}
		b.Record(e)
	}
	return true
}

// MarkPaid is the single paid transition used by every payment entry point. It reports
// false without touching the booking when the payment was already applied.
func (b *Booking) MarkPaid(paymentRef string, source PaymentSource, now time.Time) (bool, error) {
	switch b.PaymentStatus {
	case PaymentPaid:
		return false, nil
	case PaymentRefunded:
		return false, ErrRefundedPayment
	}
	now = now.UTC()
	b.PaymentStatus = PaymentPaid
	if ref := strings.TrimSpace(paymentRef); ref != "" {
		b.PaymentRef = ref
	}
	if b.Status == StatusPending {
		b.Status = StatusConfirmed
	}
	b.UpdatedAt = now
	b.Record(BookingPaid{
		BookingID:  b.ID,
		Code:       b.Code,
		VehicleID:  b.VehicleID,
		DriverID:   b.DriverID,
		HostID:     b.HostID,
		Status:     b.Status,
		Total:      b.TotalPrice,
		PaymentRef: b.PaymentRef,
		Source:     source,
		At:         now,
	})
	return true, nil
}

// AttachPaymentSession stores the processor reference of a new checkout attempt.
func (b *Booking) AttachPaymentSession(actorID, ref string, now time.Time) error {
	if err := b.RequireDriver(actorID); err != nil {
		return err
	}
	if b.Status.Terminal() {
		return ErrInvalidTransition
	}
	if b.PaymentStatus == PaymentPaid || b.PaymentStatus == PaymentRefunded {
		return ErrAlreadyPaid
	}
	b.PaymentRef = strings.TrimSpace(ref)
	b.PaymentStatus = PaymentPending
	b.UpdatedAt = now.UTC()
	return nil
}

// MarkPaymentFailed never overrides a settled payment.
func (b *Booking) MarkPaymentFailed(paymentRef string, now time.Time) bool {
	if b.PaymentStatus != PaymentPending {
		return false
	}
	b.PaymentStatus = PaymentFailed
	b.UpdatedAt = now.UTC()
	b.Record(PaymentFailedEvent{BookingID: b.ID, DriverID: b.DriverID, PaymentRef: paymentRef, At: b.UpdatedAt})
	return true
}

func (b *Booking) MarkRefunded(now time.Time) bool {
	if b.PaymentStatus != PaymentPaid {
		return false
	}
	b.PaymentStatus = PaymentRefunded
	b.UpdatedAt = now.UTC()
	b.Record(BookingRefunded{BookingID: b.ID, DriverID: b.DriverID, Total: b.TotalPrice, At: b.UpdatedAt})
	return true
}

// Cancel flips a non-terminal booking to cancelled. Either participant may cancel.
func (b *Booking) Cancel(actorID string, now time.Time) error {
	if err := b.RequireParticipant(actorID); err != nil {
		return err
	}
	if b.Status.Terminal() {
		return ErrInvalidTransition
	}
	b.Status = StatusCancelled
	b.UpdatedAt = now.UTC()
	return nil
}

// StartRental records the pickup inspection and activates the booking.
func (b *Booking) StartRental(actorID string, inspection Inspection) error {
	if err := b.RequireDriver(actorID); err != nil {
		return err
	}
	if b.Status != StatusConfirmed {
		return ErrInvalidTransition
	}
	if b.PaymentStatus != PaymentPaid {
		return ErrPaymentRequired
	}
	if b.PickupInspection != nil {
		return ErrInspectionRecorded
	}
	if err := inspection.Validate(); err != nil {
		return err
	}
	rec := inspection.clone()
	b.PickupInspection = &rec
	b.Status = StatusActive
	b.UpdatedAt = rec.CompletedAt
	b.Record(RentalStarted{BookingID: b.ID, VehicleID: b.VehicleID, HostID: b.HostID, At: rec.CompletedAt})
	return nil
}

// CompleteRental records the return inspection and completes the booking.
func (b *Booking) CompleteRental(actorID string, inspection Inspection) error {
	if err := b.RequireDriver(actorID); err != nil {
		return err
	}
	if b.Status != StatusActive {
		return ErrInvalidTransition
	}
	if b.ReturnInspection != nil {
		return ErrInspectionRecorded
	}
	if err := inspection.Validate(); err != nil {
		return err
	}
	rec := inspection.clone()
	b.ReturnInspection = &rec
	b.Status = StatusCompleted
	b.UpdatedAt = rec.CompletedAt
	b.Record(RentalCompleted{BookingID: b.ID, VehicleID: b.VehicleID, DriverID: b.DriverID, HostID: b.HostID, At: rec.CompletedAt})
	return nil
}

// MarkReturnReminderSent is used by the reminder job only.
func (b *Booking) MarkReturnReminderSent(now time.Time) bool {
	if b.ReturnReminderSent {
		return false
	}
	b.ReturnReminderSent = true
	b.Record(ReturnReminderDue{BookingID: b.ID, Code: b.Code, DriverID: b.DriverID, EndDate: b.Range.End, DropoffTime: b.DropoffTime, At: now.UTC()})
	return true
}

// ComputedTotal rebuilds the total from its parts.
func (b *Booking) ComputedTotal() (money.Money, error) {
	total := b.RentalPrice
	var err error
	if b.Insurance != nil {
		if total, err = total.Add(b.Insurance.Total); err != nil {
			return money.Money{}, err
		}
	}
	for _, ext := range b.Extensions {
		if total, err = total.Add(ext.Cost); err != nil {
			return money.Money{}, err
		}
	}
	return total, nil
}

// Clone returns a deep copy without pending events.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	out := *b
	out.EventRecorder = events.EventRecorder{}
	out.Extensions = append([]Extension(nil), b.Extensions...)
	out.Switches = append([]VehicleSwitch(nil), b.Switches...)
	if b.Insurance != nil {
		ins := *b.Insurance
		out.Insurance = &ins
	}
	if b.PickupInspection != nil {
		insp := *b.PickupInspection
		out.PickupInspection = &insp
	}
	if b.ReturnInspection != nil {
		insp := *b.ReturnInspection
		out.ReturnInspection = &insp
	}
	return &out
}
