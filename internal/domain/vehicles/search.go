package vehicles

import (
	"math"
	"strings"
)

const (
	defaultSearchLimit = 24
	maxSearchLimit     = 60
	earthRadiusKm      = 6371.0
)

// SearchParams describe public catalog filters.
type SearchParams struct {
	City          string
	OnlyAvailable bool
	MaxDailyCents int64
	NearLat       float64
	NearLon       float64
	RadiusKm      float64
	Limit         int
	Offset        int
}

// Normalized returns a sanitized copy of params.
func (p SearchParams) Normalized() SearchParams {
	n := p
	n.City = strings.ToLower(strings.TrimSpace(n.City))
	if n.MaxDailyCents < 0 {
		n.MaxDailyCents = 0
	}
	if n.RadiusKm < 0 {
		n.RadiusKm = 0
	}
	if n.Limit <= 0 {
		n.Limit = defaultSearchLimit
	}
	if n.Limit > maxSearchLimit {
		n.Limit = maxSearchLimit
	}
	if n.Offset < 0 {
		n.Offset = 0
	}
	return n
}

// HasRadius reports whether a proximity filter was requested.
func (p SearchParams) HasRadius() bool {
	return p.RadiusKm > 0 && (p.NearLat != 0 || p.NearLon != 0)
}

// Matches applies every filter except paging.
func (p SearchParams) Matches(v *Vehicle) bool {
	if v == nil {
		return false
	}
	if p.OnlyAvailable && !v.Available {
		return false
	}
	if p.City != "" && strings.ToLower(strings.TrimSpace(v.Location.City)) != p.City {
		return false
	}
	if p.MaxDailyCents > 0 && v.Rates.PerDay.Amount > p.MaxDailyCents {
		return false
	}
	if p.HasRadius() {
		if !v.Location.HasCoordinates() {
			return false
		}
		if DistanceKm(p.NearLat, p.NearLon, v.Location.Lat, v.Location.Lon) > p.RadiusKm {
			return false
		}
	}
	return true
}

// DistanceKm is the haversine great-circle distance.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
