package mongo

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"carshare/internal/domain/shared/money"
	domainvehicles "carshare/internal/domain/vehicles"
)

const vehiclesCollection = "vehicles"

type VehicleRepository struct {
	col *mongo.Collection
}

func NewVehicleRepository(db *mongo.Database) *VehicleRepository {
	return &VehicleRepository{col: db.Collection(vehiclesCollection)}
}

func (r *VehicleRepository) ByID(ctx context.Context, id domainvehicles.VehicleID) (*domainvehicles.Vehicle, error) {
	var doc vehicleDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainvehicles.ErrVehicleNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *VehicleRepository) Save(ctx context.Context, v *domainvehicles.Vehicle) error {
	doc := newVehicleDocument(v)
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (r *VehicleRepository) ListByHost(ctx context.Context, host domainvehicles.HostID) ([]*domainvehicles.Vehicle, error) {
	return r.find(ctx, bson.M{"host_id": string(host)}, newestFirst())
}

// Search pushes the cheap filters into the query. A radius search loads every candidate
// and filters and orders by distance in process.
func (r *VehicleRepository) Search(ctx context.Context, params domainvehicles.SearchParams) ([]*domainvehicles.Vehicle, error) {
	p := params.Normalized()
	filter := bson.M{}
	if p.City != "" {
		filter["location.city_key"] = p.City
	}
	if p.OnlyAvailable {
		filter["available"] = true
	}
	if p.MaxDailyCents > 0 {
		filter["rates.per_day.amount"] = bson.M{"$lte": p.MaxDailyCents}
	}
	if !p.HasRadius() {
		opts := newestFirst().SetSkip(int64(p.Offset)).SetLimit(int64(p.Limit))
		return r.find(ctx, filter, opts)
	}

	candidates, err := r.find(ctx, filter, options.Find())
	if err != nil {
		return nil, err
	}
	matches := candidates[:0]
	for _, v := range candidates {
		if p.Matches(v) {
			matches = append(matches, v)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		di := domainvehicles.DistanceKm(p.NearLat, p.NearLon, matches[i].Location.Lat, matches[i].Location.Lon)
		dj := domainvehicles.DistanceKm(p.NearLat, p.NearLon, matches[j].Location.Lat, matches[j].Location.Lon)
		return di < dj
	})
	if p.Offset >= len(matches) {
		return []*domainvehicles.Vehicle{}, nil
	}
	end := p.Offset + p.Limit
	if end > len(matches) {
		end = len(matches)
	}
	return matches[p.Offset:end], nil
}

func (r *VehicleRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domainvehicles.Vehicle, error) {
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []vehicleDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*domainvehicles.Vehicle, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toAggregate())
	}
	return out, nil
}

func newestFirst() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
}

type vehicleDocument struct {
	ID          string           `bson:"_id"`
	HostID      string           `bson:"host_id"`
	Specs       specsDocument    `bson:"specs"`
	Description string           `bson:"description"`
	Photos      []string         `bson:"photos"`
	Location    locationDocument `bson:"location"`
	Rates       ratesDocument    `bson:"rates"`
	Available   bool             `bson:"available"`
	Rating      float64          `bson:"rating"`
	ReviewCount int              `bson:"review_count"`
	TripCount   int              `bson:"trip_count"`
	CreatedAt   int64            `bson:"created_at"`
	UpdatedAt   int64            `bson:"updated_at"`
}

type specsDocument struct {
	Make         string `bson:"make"`
	Model        string `bson:"model"`
	Year         int    `bson:"year"`
	VIN          string `bson:"vin,omitempty"`
	BodyType     string `bson:"body_type,omitempty"`
	Transmission string `bson:"transmission,omitempty"`
}

type locationDocument struct {
	Address string  `bson:"address"`
	City    string  `bson:"city"`
	CityKey string  `bson:"city_key"`
	Lat     float64 `bson:"lat"`
	Lon     float64 `bson:"lon"`
}

type ratesDocument struct {
	PerDay   money.Money  `bson:"per_day"`
	PerWeek  *money.Money `bson:"per_week,omitempty"`
	PerMonth *money.Money `bson:"per_month,omitempty"`
}

func newVehicleDocument(v *domainvehicles.Vehicle) vehicleDocument {
	rates := v.Rates.Clone()
	return vehicleDocument{
		ID:     string(v.ID),
		HostID: string(v.Host),
		Specs: specsDocument{
			Make:         v.Specs.Make,
			Model:        v.Specs.Model,
			Year:         v.Specs.Year,
			VIN:          v.Specs.VIN,
			BodyType:     v.Specs.BodyType,
			Transmission: v.Specs.Transmission,
		},
		Description: v.Description,
		Photos:      append([]string{}, v.Photos...),
		Location: locationDocument{
			Address: v.Location.Address,
			City:    v.Location.City,
			CityKey: strings.ToLower(strings.TrimSpace(v.Location.City)),
			Lat:     v.Location.Lat,
			Lon:     v.Location.Lon,
		},
		Rates:       ratesDocument{PerDay: rates.PerDay, PerWeek: rates.PerWeek, PerMonth: rates.PerMonth},
		Available:   v.Available,
		Rating:      v.Rating,
		ReviewCount: v.ReviewCount,
		TripCount:   v.TripCount,
		CreatedAt:   timeToTimestamp(v.CreatedAt),
		UpdatedAt:   timeToTimestamp(v.UpdatedAt),
	}
}

func (d vehicleDocument) toAggregate() *domainvehicles.Vehicle {
	return &domainvehicles.Vehicle{
		ID:   domainvehicles.VehicleID(d.ID),
		Host: domainvehicles.HostID(d.HostID),
		Specs: domainvehicles.Specs{
			Make:         d.Specs.Make,
			Model:        d.Specs.Model,
			Year:         d.Specs.Year,
			VIN:          d.Specs.VIN,
			BodyType:     d.Specs.BodyType,
			Transmission: d.Specs.Transmission,
		},
		Description: d.Description,
		Photos:      append([]string(nil), d.Photos...),
		Location: domainvehicles.Location{
			Address: d.Location.Address,
			City:    d.Location.City,
			Lat:     d.Location.Lat,
			Lon:     d.Location.Lon,
		},
		Rates:       domainvehicles.Rates{PerDay: d.Rates.PerDay, PerWeek: d.Rates.PerWeek, PerMonth: d.Rates.PerMonth},
		Available:   d.Available,
		Rating:      d.Rating,
		ReviewCount: d.ReviewCount,
		TripCount:   d.TripCount,
		CreatedAt:   timestampToTime(d.CreatedAt),
		UpdatedAt:   timestampToTime(d.UpdatedAt),
	}
}

var _ domainvehicles.Repository = (*VehicleRepository)(nil)
