package pricing

import (
	"strings"

	"carshare/internal/domain/shared/apperr"
	"carshare/internal/domain/shared/money"
	"carshare/internal/domain/vehicles"
)

var (
	ErrUnknownRentalType = apperr.New(apperr.ErrInvalidInput, "pricing: rental type must be daily, weekly or monthly")
	ErrDaysRange         = apperr.New(apperr.ErrInvalidInput, "pricing: total days must be at least 1")
	ErrQuantityRange     = apperr.New(apperr.ErrInvalidInput, "pricing: quantity must be at least 1")
)

type RentalType string

const (
	RentalDaily   RentalType = "daily"
	RentalWeekly  RentalType = "weekly"
	RentalMonthly RentalType = "monthly"

	daysPerWeek  = 7
	daysPerMonth = 30
)

func ParseRentalType(raw string) (RentalType, error) {
	switch RentalType(strings.ToLower(strings.TrimSpace(raw))) {
	case "", RentalDaily:
		return RentalDaily, nil
	case RentalWeekly:
		return RentalWeekly, nil
	case RentalMonthly:
		return RentalMonthly, nil
	default:
		return "", ErrUnknownRentalType
	}
}

// Breakdown is a computed rental portion together with the per-day rate that gets
// snapshotted onto the booking.
type Breakdown struct {
	RentalType RentalType
	Quantity   int
	TotalDays  int
	PerDay     money.Money
	Unit       money.Money
	Total      money.Money
}

// Calculate prices a rental from the vehicle's live rates.
//
//	daily:   totalDays × perDay
//	weekly:  quantity × (perWeek ?? perDay × 7)
//	monthly: quantity × (perMonth ?? perDay × 30)
//
// For daily rentals quantity is informational only; the day count wins.
func Calculate(rates vehicles.Rates, rentalType RentalType, quantity, totalDays int) (Breakdown, error) {
	if totalDays < 1 {
		return Breakdown{}, ErrDaysRange
	}
	if err := rates.Validate(); err != nil {
		return Breakdown{}, err
	}
	out := Breakdown{
		RentalType: rentalType,
		Quantity:   quantity,
		TotalDays:  totalDays,
		PerDay:     rates.PerDay,
	}
	switch rentalType {
	case RentalDaily:
		out.Unit = rates.PerDay
		out.Total = rates.PerDay.Multiply(int64(totalDays))
	case RentalWeekly:
		if quantity < 1 {
			return Breakdown{}, ErrQuantityRange
		}
		out.Unit = tierRate(rates.PerWeek, rates.PerDay, daysPerWeek)
		out.Total = out.Unit.Multiply(int64(quantity))
	case RentalMonthly:
		if quantity < 1 {
			return Breakdown{}, ErrQuantityRange
		}
		out.Unit = tierRate(rates.PerMonth, rates.PerDay, daysPerMonth)
		out.Total = out.Unit.Multiply(int64(quantity))
	default:
		return Breakdown{}, ErrUnknownRentalType
	}
	return out, nil
}

func tierRate(explicit *money.Money, perDay money.Money, days int64) money.Money {
	if explicit != nil && explicit.Amount > 0 {
		return *explicit
	}
	return perDay.Multiply(days)
}
