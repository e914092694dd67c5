package daterange

import (
	"time"

	"carshare/internal/domain/shared/apperr"
)

var ErrInvalidRange = apperr.New(apperr.ErrInvalidInput, "daterange: end date must be after start date")

const Day = 24 * time.Hour

// DateRange is a rental interval at UTC day granularity. Both ends are treated as
// occupied days when comparing against other ranges.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func New(start, end time.Time) (DateRange, error) {
	dr := DateRange{Start: start.UTC(), End: end.UTC()}
	if err := dr.Validate(); err != nil {
		return DateRange{}, err
	}
	return dr, nil
}

// Truncate drops the time-of-day part, keeping the UTC calendar date.
func Truncate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (dr DateRange) Validate() error {
	if dr.Start.IsZero() || dr.End.IsZero() {
		return ErrInvalidRange
	}
	if !dr.End.After(dr.Start) {
		return ErrInvalidRange
	}
	return nil
}

// Days is ceil((end-start) / 1 day).
func (dr DateRange) Days() int {
	diff := dr.End.Sub(dr.Start)
	if diff <= 0 {
		return 0
	}
	days := int(diff / Day)
	if diff%Day != 0 {
		days++
	}
	return days
}

// Overlaps reports whether the closed intervals intersect. Touching days overlap.
func (dr DateRange) Overlaps(other DateRange) bool {
	return !dr.Start.After(other.End) && !dr.End.Before(other.Start)
}

// ContainsDate reports whether t falls inside the closed interval.
func (dr DateRange) ContainsDate(t time.Time) bool {
	t = t.UTC()
	return !t.Before(dr.Start) && !t.After(dr.End)
}

// ExtendDays moves the end date forward by whole calendar days.
func (dr DateRange) ExtendDays(days int) DateRange {
	return DateRange{Start: dr.Start, End: dr.End.AddDate(0, 0, days)}
}
