package dto

import (
	"time"

	domainvehicles "carshare/internal/domain/vehicles"
)

type Location struct {
	Address string   `json:"address"`
	City    string   `json:"city"`
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
}

type Rates struct {
	PerDay   Money  `json:"perDay"`
	PerWeek  *Money `json:"perWeek,omitempty"`
	PerMonth *Money `json:"perMonth,omitempty"`
}

type Vehicle struct {
	ID           string    `json:"id"`
	HostID       string    `json:"hostId"`
	Make         string    `json:"make"`
	Model        string    `json:"model"`
	Year         int       `json:"year"`
	VIN          string    `json:"vin,omitempty"`
	BodyType     string    `json:"bodyType,omitempty"`
	Transmission string    `json:"transmission,omitempty"`
	Description  string    `json:"description,omitempty"`
	Photos       []string  `json:"photos"`
	Location     Location  `json:"location"`
	Rates        Rates     `json:"rates"`
	Available    bool      `json:"available"`
	Rating       float64   `json:"rating"`
	ReviewCount  int       `json:"reviewCount"`
	TripCount    int       `json:"tripCount"`
	DistanceKm   *float64  `json:"distanceKm,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type VehicleCollection struct {
	Items  []Vehicle `json:"items"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
}

func MapVehicle(v *domainvehicles.Vehicle) Vehicle {
	out := Vehicle{
		ID:           string(v.ID),
		HostID:       string(v.Host),
		Make:         v.Specs.Make,
		Model:        v.Specs.Model,
		Year:         v.Specs.Year,
		VIN:          v.Specs.VIN,
		BodyType:     v.Specs.BodyType,
		Transmission: v.Specs.Transmission,
		Description:  v.Description,
		Photos:       append([]string{}, v.Photos...),
		Location: Location{
			Address: v.Location.Address,
			City:    v.Location.City,
		},
		Rates:       Rates{PerDay: MapMoney(v.Rates.PerDay)},
		Available:   v.Available,
		Rating:      v.Rating,
		ReviewCount: v.ReviewCount,
		TripCount:   v.TripCount,
		CreatedAt:   v.CreatedAt,
		UpdatedAt:   v.UpdatedAt,
	}
	if v.Location.HasCoordinates() {
		lat, lon := v.Location.Lat, v.Location.Lon
		out.Location.Lat, out.Location.Lon = &lat, &lon
	}
	if v.Rates.PerWeek != nil {
		m := MapMoney(*v.Rates.PerWeek)
		out.Rates.PerWeek = &m
	}
	if v.Rates.PerMonth != nil {
		m := MapMoney(*v.Rates.PerMonth)
		out.Rates.PerMonth = &m
	}
	return out
}
