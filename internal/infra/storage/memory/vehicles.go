package memory

import (
	"context"
	"sort"
	"sync"

	domainvehicles "carshare/internal/domain/vehicles"
)

type VehicleRepository struct {
	mu    sync.RWMutex
	items map[domainvehicles.VehicleID]*domainvehicles.Vehicle
}

func NewVehicleRepository() *VehicleRepository {
	return &VehicleRepository{items: make(map[domainvehicles.VehicleID]*domainvehicles.Vehicle)}
}

func (r *VehicleRepository) ByID(_ context.Context, id domainvehicles.VehicleID) (*domainvehicles.Vehicle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[id]
	if !ok {
		return nil, domainvehicles.ErrVehicleNotFound
	}
	return v.Clone(), nil
}

func (r *VehicleRepository) Save(_ context.Context, v *domainvehicles.Vehicle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[v.ID] = v.Clone()
	return nil
}

func (r *VehicleRepository) ListByHost(_ context.Context, host domainvehicles.HostID) ([]*domainvehicles.Vehicle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domainvehicles.Vehicle, 0)
	for _, v := range r.items {
		if v.Host == host {
			out = append(out, v.Clone())
		}
	}
	sortVehicles(out)
	return out, nil
}

func (r *VehicleRepository) Search(ctx context.Context, params domainvehicles.SearchParams) ([]*domainvehicles.Vehicle, error) {
	opts := params.Normalized()
	r.mu.RLock()
	matches := make([]*domainvehicles.Vehicle, 0, len(r.items))
	for _, v := range r.items {
		if err := ctx.Err(); err != nil {
			r.mu.RUnlock()
			return nil, err
		}
		if opts.Matches(v) {
			matches = append(matches, v.Clone())
		}
	}
	r.mu.RUnlock()

	if opts.HasRadius() {
		sort.SliceStable(matches, func(i, j int) bool {
			di := domainvehicles.DistanceKm(opts.NearLat, opts.NearLon, matches[i].Location.Lat, matches[i].Location.Lon)
			dj := domainvehicles.DistanceKm(opts.NearLat, opts.NearLon, matches[j].Location.Lat, matches[j].Location.Lon)
			return di < dj
		})
	} else {
		sortVehicles(matches)
	}
	if opts.Offset >= len(matches) {
		return []*domainvehicles.Vehicle{}, nil
	}
	end := opts.Offset + opts.Limit
	if end > len(matches) {
		end = len(matches)
	}
	return matches[opts.Offset:end], nil
}

func sortVehicles(items []*domainvehicles.Vehicle) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

var _ domainvehicles.Repository = (*VehicleRepository)(nil)
