package booking

import (
	"strings"
	"time"

	"carshare/internal/domain/pricing"
	"carshare/internal/domain/shared/money"
	"carshare/internal/domain/vehicles"
)

// Extension is an append-only record of days added after payment.
type Extension struct {
	Days       int
	Cost       money.Money
	PaymentRef string
	At         time.Time
}

// VehicleSwitch is an append-only record of a host replacing the vehicle.
type VehicleSwitch struct {
	PreviousVehicle vehicles.VehicleID
	NewVehicle      vehicles.VehicleID
	PreviousPrice   money.Money
	NewPrice        money.Money
	PriceDifference money.Money
	Reason          string
	At              time.Time
}

// ExtensionQuote is the price of adding days, computed from the per-day snapshot.
type ExtensionQuote struct {
	Days       int
	Cost       money.Money
	CurrentEnd time.Time
	NewEnd     time.Time
	NewTotal   money.Money
}

// ExtensionDays sums every extension already applied.
func (b *Booking) ExtensionDays() int {
	total := 0
	for _, ext := range b.Extensions {
		total += ext.Days
	}
	return total
}

// BaseDays is the originally booked day count.
func (b *Booking) BaseDays() int {
	return b.TotalDays - b.ExtensionDays()
}

func (b *Booking) HasExtensionPayment(paymentRef string) bool {
	if paymentRef == "" {
		return false
	}
	for _, ext := range b.Extensions {
		if ext.PaymentRef == paymentRef {
			return true
		}
	}
	return false
}

// CanExtend checks every extension guard that does not need other bookings.
func (b *Booking) CanExtend(actorID string, days int) error {
	if err := b.RequireDriver(actorID); err != nil {
		return err
	}
	return b.extensionGuards(days)
}

func (b *Booking) extensionGuards(days int) error {
	if b.Status != StatusConfirmed && b.Status != StatusActive {
		return ErrInvalidTransition
	}
	if b.PaymentStatus != PaymentPaid {
		return ErrPaymentRequired
	}
	if days < MinExtensionDays || days > MaxExtensionDays {
		return ErrExtensionDays
	}
	return nil
}

// QuoteExtension prices days without mutating the booking.
func (b *Booking) QuoteExtension(days int) (ExtensionQuote, error) {
	if days < MinExtensionDays || days > MaxExtensionDays {
		return ExtensionQuote{}, ErrExtensionDays
	}
	cost := b.PricePerDay.Multiply(int64(days))
	total, err := b.TotalPrice.Add(cost)
	if err != nil {
		return ExtensionQuote{}, err
	}
	return ExtensionQuote{
		Days:       days,
		Cost:       cost,
		CurrentEnd: b.Range.End,
		NewEnd:     b.Range.ExtendDays(days).End,
		NewTotal:   total,
	}, nil
}

// ApplyExtension adds paid days. It reports false when the payment reference was
// already applied. The caller must have run the delta-window availability check.
func (b *Booking) ApplyExtension(days int, paymentRef string, now time.Time) (bool, error) {
	paymentRef = strings.TrimSpace(paymentRef)
	if b.HasExtensionPayment(paymentRef) {
		return false, nil
	}
	if err := b.extensionGuards(days); err != nil {
		return false, err
	}
	quote, err := b.QuoteExtension(days)
	if err != nil {
		return false, err
	}
	now = now.UTC()
	b.Extensions = append(b.Extensions, Extension{Days: days, Cost: quote.Cost, PaymentRef: paymentRef, At: now})
	b.Range = b.Range.ExtendDays(days)
	b.TotalDays += days
	b.TotalPrice = quote.NewTotal
	b.UpdatedAt = now
	b.Record(BookingExtended{
		BookingID:  b.ID,
		Code:       b.Code,
		DriverID:   b.DriverID,
		HostID:     b.HostID,
		Days:       days,
		Cost:       quote.Cost,
		NewEndDate: b.Range.End,
		Total:      b.TotalPrice,
		PaymentRef: paymentRef,
		At:         now,
	})
	return true, nil
}

// CanSwitchVehicle checks the switch guards that do not need other bookings.
func (b *Booking) CanSwitchVehicle(actorID string, target *vehicles.Vehicle) error {
	if err := b.RequireHost(actorID); err != nil {
		return err
	}
	if b.Status != StatusPending && b.Status != StatusConfirmed {
		return ErrInvalidTransition
	}
	if target == nil {
		return ErrVehicleRequired
	}
	if target.ID == b.VehicleID {
		return ErrSameVehicle
	}
	if target.Host != b.HostID {
		return vehicles.ErrNotOwner
	}
	return nil
}

// SwitchVehicle replaces the vehicle and reprices the base rental days from the target's
// live rates. Dates are untouched. The caller must have run the full-interval
// availability check against the target.
func (b *Booking) SwitchVehicle(actorID string, target *vehicles.Vehicle, reason string, now time.Time) (VehicleSwitch, error) {
	if err := b.CanSwitchVehicle(actorID, target); err != nil {
		return VehicleSwitch{}, err
	}
	quote, err := pricing.Calculate(target.Rates, b.RentalType, b.Quantity, b.BaseDays())
	if err != nil {
		return VehicleSwitch{}, err
	}
	diff, err := quote.Total.Sub(b.RentalPrice)
	if err != nil {
		return VehicleSwitch{}, err
	}
	total, err := b.TotalPrice.Add(diff)
	if err != nil {
		return VehicleSwitch{}, err
	}
	now = now.UTC()
	rec := VehicleSwitch{
		PreviousVehicle: b.VehicleID,
		NewVehicle:      target.ID,
		PreviousPrice:   b.RentalPrice,
		NewPrice:        quote.Total,
		PriceDifference: diff,
		Reason:          strings.TrimSpace(reason),
		At:              now,
	}
	b.Switches = append(b.Switches, rec)
	b.VehicleID = target.ID
	b.PricePerDay = quote.PerDay
	b.RentalPrice = quote.Total
	b.TotalPrice = total
	b.UpdatedAt = now
	b.Record(VehicleSwitched{
		BookingID:       b.ID,
		Code:            b.Code,
		DriverID:        b.DriverID,
		PreviousVehicle: rec.PreviousVehicle,
		NewVehicle:      rec.NewVehicle,
		PriceDifference: diff,
		Total:           b.TotalPrice,
		At:              now,
	})
	return rec, nil
}
