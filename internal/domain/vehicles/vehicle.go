package vehicles

import (
	"context"
	"strings"
	"time"

	"carshare/internal/domain/shared/apperr"
	"carshare/internal/domain/shared/events"
	"carshare/internal/domain/shared/money"
)

var (
	ErrVehicleNotFound  = apperr.New(apperr.ErrNotFound, "vehicles: vehicle not found")
	ErrNotOwner         = apperr.New(apperr.ErrUnauthorized, "vehicles: vehicle not owned by host")
	ErrMakeRequired     = apperr.New(apperr.ErrInvalidInput, "vehicles: make and model are required")
	ErrInvalidYear      = apperr.New(apperr.ErrInvalidInput, "vehicles: year out of range")
	ErrDailyRate        = apperr.New(apperr.ErrInvalidInput, "vehicles: per-day rate must be positive")
	ErrRateNegative     = apperr.New(apperr.ErrInvalidInput, "vehicles: weekly and monthly rates cannot be negative")
	ErrCurrencyMismatch = apperr.New(apperr.ErrInvalidInput, "vehicles: all rates must share one currency")
	ErrInvalidRating    = apperr.New(apperr.ErrInvalidInput, "vehicles: rating must be between 1 and 5")
)

type VehicleID string
type HostID string

type Location struct {
	Address string
	City    string
	Lat     float64
	Lon     float64
}

func (l Location) HasCoordinates() bool {
	return l.Lat != 0 || l.Lon != 0
}

// Rates are the tiered prices a host charges. Weekly and monthly are optional; a nil
// value falls back to a multiple of the daily rate.
type Rates struct {
	PerDay   money.Money
	PerWeek  *money.Money
	PerMonth *money.Money
}

func (r Rates) Validate() error {
	if r.PerDay.Amount <= 0 {
		return ErrDailyRate
	}
	for _, opt := range []*money.Money{r.PerWeek, r.PerMonth} {
		if opt == nil {
			continue
		}
		if opt.Amount < 0 {
			return ErrRateNegative
		}
		if opt.Currency != r.PerDay.Currency {
			return ErrCurrencyMismatch
		}
	}
	return nil
}

func (r Rates) Clone() Rates {
	out := Rates{PerDay: r.PerDay}
	if r.PerWeek != nil {
		w := *r.PerWeek
		out.PerWeek = &w
	}
	if r.PerMonth != nil {
		m := *r.PerMonth
		out.PerMonth = &m
	}
	return out
}

type Specs struct {
	Make         string
	Model        string
	Year         int
	VIN          string
	BodyType     string
	Transmission string
}

type Vehicle struct {
	ID          VehicleID
	Host        HostID
	Specs       Specs
	Description string
	Photos      []string
	Location    Location
	Rates       Rates
	Available   bool
	Rating      float64
	ReviewCount int
	TripCount   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	events.EventRecorder
}

type Repository interface {
	ByID(ctx context.Context, id VehicleID) (*Vehicle, error)
	Save(ctx context.Context, vehicle *Vehicle) error
	ListByHost(ctx context.Context, host HostID) ([]*Vehicle, error)
	Search(ctx context.Context, params SearchParams) ([]*Vehicle, error)
}

type CreateParams struct {
	ID          VehicleID
	Host        HostID
	Specs       Specs
	Description string
	Photos      []string
	Location    Location
	Rates       Rates
	Available   bool
	Now         time.Time
}

func NewVehicle(params CreateParams) (*Vehicle, error) {
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, apperr.New(apperr.ErrInvalidInput, "vehicles: id is required")
	}
	if strings.TrimSpace(string(params.Host)) == "" {
		return nil, apperr.New(apperr.ErrInvalidInput, "vehicles: host is required")
	}
	specs := normalizeSpecs(params.Specs)
	if err := specs.validate(params.Now); err != nil {
		return nil, err
	}
	if err := params.Rates.Validate(); err != nil {
		return nil, err
	}
	now := params.Now.UTC()
	v := &Vehicle{
		ID:          params.ID,
		Host:        params.Host,
		Specs:       specs,
		Description: strings.TrimSpace(params.Description),
		Photos:      append([]string(nil), params.Photos...),
		Location:    params.Location,
		Rates:       params.Rates.Clone(),
		Available:   params.Available,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	v.Record(VehicleListed{VehicleID: v.ID, HostID: v.Host, At: now})
	return v, nil
}

func (v *Vehicle) OwnedBy(host HostID) bool {
	return v.Host == host
}

type UpdateParams struct {
	Description *string
	Location    *Location
	Rates       *Rates
	Available   *bool
	Now         time.Time
}

// Update applies the non-nil fields after validating all of them.
func (v *Vehicle) Update(params UpdateParams) error {
	if params.Rates != nil {
		if err := params.Rates.Validate(); err != nil {
			return err
		}
	}
	if params.Description != nil {
		v.Description = strings.TrimSpace(*params.Description)
	}
	if params.Location != nil {
		v.Location = *params.Location
	}
	if params.Rates != nil {
		v.Rates = params.Rates.Clone()
	}
	if params.Available != nil {
		v.Available = *params.Available
	}
	v.UpdatedAt = params.Now.UTC()
	v.Record(VehicleUpdated{VehicleID: v.ID, At: v.UpdatedAt})
	return nil
}

func (v *Vehicle) AddPhoto(url string, now time.Time) {
	url = strings.TrimSpace(url)
	if url == "" {
		return
	}
	v.Photos = append(v.Photos, url)
	v.UpdatedAt = now.UTC()
}

// ApplyRating folds a new review score into the running average.
func (v *Vehicle) ApplyRating(score int, now time.Time) error {
	if score < 1 || score > 5 {
		return ErrInvalidRating
	}
	total := v.Rating*float64(v.ReviewCount) + float64(score)
	v.ReviewCount++
	v.Rating = total / float64(v.ReviewCount)
	v.UpdatedAt = now.UTC()
	return nil
}

func (v *Vehicle) IncrementTrips(now time.Time) {
	v.TripCount++
	v.UpdatedAt = now.UTC()
}

func normalizeSpecs(s Specs) Specs {
	return Specs{
		Make:         strings.TrimSpace(s.Make),
		Model:        strings.TrimSpace(s.Model),
		Year:         s.Year,
		VIN:          strings.ToUpper(strings.TrimSpace(s.VIN)),
		BodyType:     strings.TrimSpace(s.BodyType),
		Transmission: strings.ToLower(strings.TrimSpace(s.Transmission)),
	}
}

func (s Specs) validate(now time.Time) error {
	if s.Make == "" || s.Model == "" {
		return ErrMakeRequired
	}
	if now.IsZero() {
		now = time.Now()
	}
	if s.Year < 1950 || s.Year > now.Year()+1 {
		return ErrInvalidYear
	}
	return nil
}

// Clone returns a deep copy without pending events.
func (v *Vehicle) Clone() *Vehicle {
	if v == nil {
		return nil
	}
	out := *v
	out.EventRecorder = events.EventRecorder{}
	out.Photos = append([]string(nil), v.Photos...)
	out.Rates = v.Rates.Clone()
	return &out
}
