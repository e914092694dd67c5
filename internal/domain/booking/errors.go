package booking

import (
	"fmt"
	"time"

	"carshare/internal/domain/shared/apperr"
)

var (
	ErrBookingNotFound      = apperr.New(apperr.ErrNotFound, "booking: not found")
	ErrNotParticipant       = apperr.New(apperr.ErrUnauthorized, "booking: actor is neither driver nor host")
	ErrDriverOnly           = apperr.New(apperr.ErrUnauthorized, "booking: only the driver may do this")
	ErrHostOnly             = apperr.New(apperr.ErrUnauthorized, "booking: only the host may do this")
	ErrOwnVehicle           = apperr.New(apperr.ErrInvalidInput, "booking: hosts cannot book their own vehicle")
	ErrInvalidTransition    = apperr.New(apperr.ErrInvalidState, "booking: status does not allow this transition")
	ErrPaymentRequired      = apperr.New(apperr.ErrInvalidState, "booking: payment must be completed first")
	ErrAlreadyPaid          = apperr.New(apperr.ErrInvalidState, "booking: booking is already paid")
	ErrInsuranceLocked      = apperr.New(apperr.ErrInvalidState, "booking: insurance cannot change once paid")
	ErrInspectionRecorded   = apperr.New(apperr.ErrInvalidState, "booking: inspection already recorded")
	ErrVehicleUnavailable   = apperr.New(apperr.ErrInvalidState, "booking: vehicle is not available for booking")
	ErrRefundedPayment      = apperr.New(apperr.ErrInvalidState, "booking: payment was refunded")
	ErrPaymentStatusChanged = apperr.New(apperr.ErrInvalidState, "booking: payment status changed concurrently")
	ErrExtensionDays        = apperr.New(apperr.ErrInvalidInput, "booking: extension days must be between 1 and 30")
	ErrPhotosRequired       = apperr.New(apperr.ErrInvalidInput, "booking: front, back, left and right photos are required")
	ErrStartInPast          = apperr.New(apperr.ErrInvalidInput, "booking: start date is in the past")
	ErrPickupTime           = apperr.New(apperr.ErrInvalidInput, "booking: pickup time must be HH:MM")
	ErrSameVehicle          = apperr.New(apperr.ErrInvalidInput, "booking: booking already uses this vehicle")
	ErrVehicleRequired      = apperr.New(apperr.ErrInvalidInput, "booking: vehicle is required")
	ErrDriverRequired       = apperr.New(apperr.ErrInvalidInput, "booking: driver is required")
	ErrUnknownStatus        = apperr.New(apperr.ErrInvalidInput, "booking: unknown status")
)

// ConflictError reports the earliest booking that blocks a requested interval.
type ConflictError struct {
	BookingID      BookingID
	AvailableUntil time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("booking: vehicle is already booked; available until %s", e.AvailableUntil.Format(time.DateOnly))
}

func (e *ConflictError) Unwrap() error {
	return apperr.ErrConflict
}
