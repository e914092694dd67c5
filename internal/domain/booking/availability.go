package booking

import (
	"context"
	"sort"

	"carshare/internal/domain/shared/daterange"
	"carshare/internal/domain/vehicles"
)

// ConflictMode selects how a candidate booking is compared to the requested window.
type ConflictMode int

const (
	// FullInterval treats both intervals as closed: touching days overlap.
	FullInterval ConflictMode = iota
	// ExtensionDelta only counts candidates whose start lies inside the window
	// [currentEnd, newEnd]. Bookings that start earlier never block an extension.
	ExtensionDelta
)

var (
	CreationStatuses = []Status{StatusPending, StatusConfirmed}
	ActiveStatuses   = []Status{StatusPending, StatusConfirmed, StatusActive}
)

type ConflictQuery struct {
	VehicleID vehicles.VehicleID
	Window    daterange.DateRange
	ExcludeID BookingID
	Statuses  []Status
	Mode      ConflictMode
}

// FindConflict returns the earliest-starting candidate that conflicts, or nil.
func FindConflict(candidates []*Booking, q ConflictQuery) *Booking {
	var hits []*Booking
	for _, c := range candidates {
		if c == nil || c.VehicleID != q.VehicleID {
			continue
		}
		if q.ExcludeID != "" && c.ID == q.ExcludeID {
			continue
		}
		if !statusIn(c.Status, q.Statuses) {
			continue
		}
		if conflicts(c, q) {
			hits = append(hits, c)
		}
	}
	if len(hits) == 0 {
		return nil
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Range.Start.Before(hits[j].Range.Start)
	})
	return hits[0]
}

func conflicts(c *Booking, q ConflictQuery) bool {
	switch q.Mode {
	case ExtensionDelta:
		return q.Window.ContainsDate(c.Range.Start)
	default:
		return c.Range.Overlaps(q.Window)
	}
}

func statusIn(s Status, set []Status) bool {
	if len(set) == 0 {
		set = ActiveStatuses
	}
	for _, candidate := range set {
		if candidate == s {
			return true
		}
	}
	return false
}

// VehicleBookings is the read side the checker needs.
type VehicleBookings interface {
	ListByVehicle(ctx context.Context, vehicleID vehicles.VehicleID, statuses []Status) ([]*Booking, error)
}

// AvailabilityChecker runs conflict queries against stored bookings. The check is a
// plain read; nothing stops a concurrent writer between the check and the save.
type AvailabilityChecker struct {
	Bookings VehicleBookings
}

func (c AvailabilityChecker) FindConflict(ctx context.Context, q ConflictQuery) (*Booking, error) {
	statuses := q.Statuses
	if len(statuses) == 0 {
		statuses = ActiveStatuses
	}
	candidates, err := c.Bookings.ListByVehicle(ctx, q.VehicleID, statuses)
	if err != nil {
		return nil, err
	}
	return FindConflict(candidates, q), nil
}

// Ensure returns a *ConflictError naming the earliest blocking booking.
func (c AvailabilityChecker) Ensure(ctx context.Context, q ConflictQuery) error {
	hit, err := c.FindConflict(ctx, q)
	if err != nil {
		return err
	}
	if hit == nil {
		return nil
	}
	return &ConflictError{BookingID: hit.ID, AvailableUntil: hit.Range.Start}
}

// ExtensionWindow is the delta window tested before adding days.
func (b *Booking) ExtensionWindow(days int) daterange.DateRange {
	return daterange.DateRange{Start: b.Range.End, End: b.Range.ExtendDays(days).End}
}

// ExtensionConflictQuery is the delta-window check run before days are quoted or applied.
func (b *Booking) ExtensionConflictQuery(days int) ConflictQuery {
	return ConflictQuery{
		VehicleID: b.VehicleID,
		Window:    b.ExtensionWindow(days),
		ExcludeID: b.ID,
		Statuses:  ActiveStatuses,
		Mode:      ExtensionDelta,
	}
}

// SwitchConflictQuery is the full-interval check run against a switch target.
func (b *Booking) SwitchConflictQuery(target vehicles.VehicleID) ConflictQuery {
	return ConflictQuery{
		VehicleID: target,
		Window:    b.Range,
		ExcludeID: b.ID,
		Statuses:  ActiveStatuses,
		Mode:      FullInterval,
	}
}
