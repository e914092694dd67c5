package vehicles

import (
	"context"

	"carshare/internal/app/dto"
	"carshare/internal/app/handlers/support"
	"carshare/internal/app/queries"
	"carshare/internal/app/uow"
	"carshare/internal/domain/shared/apperr"
	domainvehicles "carshare/internal/domain/vehicles"
)

const (
	searchVehiclesKey   = "vehicles.search"
	getVehicleKey       = "vehicles.get"
	listHostVehiclesKey = "vehicles.list_host"
)

// SearchVehiclesQuery describes public catalog filters. MaxDailyPrice is in currency
// units.
type SearchVehiclesQuery struct {
	City          string
	OnlyAvailable bool
	MaxDailyPrice dto.Decimal
	Lat           float64 `validate:"gte=-90,lte=90"`
	Lon           float64 `validate:"gte=-180,lte=180"`
	RadiusKm      float64 `validate:"gte=0,lte=500"`
	Limit         int     `validate:"gte=0,lte=60"`
	Offset        int     `validate:"gte=0"`
}

func (q SearchVehiclesQuery) Key() string { return searchVehiclesKey }

type SearchVehiclesHandler struct {
	UoWFactory uow.UoWFactory
	Currency   string
}

func (h *SearchVehiclesHandler) Handle(ctx context.Context, q SearchVehiclesQuery) (dto.VehicleCollection, error) {
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.VehicleCollection{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	params := domainvehicles.SearchParams{
		City:          q.City,
		OnlyAvailable: q.OnlyAvailable,
		NearLat:       q.Lat,
		NearLon:       q.Lon,
		RadiusKm:      q.RadiusKm,
		Limit:         q.Limit,
		Offset:        q.Offset,
	}
	if !q.MaxDailyPrice.IsZero() {
		limit, err := q.MaxDailyPrice.Money(currency(h.Currency))
		if err != nil {
			return dto.VehicleCollection{}, apperr.New(apperr.ErrInvalidInput, "vehicles: max daily price: "+err.Error())
		}
		params.MaxDailyCents = limit.Amount
	}
	params = params.Normalized()
	found, err := unit.Vehicles().Search(execCtx, params)
	if err != nil {
		return dto.VehicleCollection{}, err
	}
	out := dto.VehicleCollection{Items: make([]dto.Vehicle, 0, len(found)), Limit: params.Limit, Offset: params.Offset}
	for _, v := range found {
		item := dto.MapVehicle(v)
		if params.HasRadius() {
			d := domainvehicles.DistanceKm(params.NearLat, params.NearLon, v.Location.Lat, v.Location.Lon)
			item.DistanceKm = &d
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

type GetVehicleQuery struct {
	VehicleID string `validate:"required"`
}

func (q GetVehicleQuery) Key() string { return getVehicleKey }

type GetVehicleHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *GetVehicleHandler) Handle(ctx context.Context, q GetVehicleQuery) (dto.Vehicle, error) {
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.Vehicle{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	v, err := unit.Vehicles().ByID(execCtx, domainvehicles.VehicleID(q.VehicleID))
	if err != nil {
		return dto.Vehicle{}, err
	}
	return dto.MapVehicle(v), nil
}

type ListHostVehiclesQuery struct {
	ActorID string `validate:"required"`
}

func (q ListHostVehiclesQuery) Key() string   { return listHostVehiclesKey }
func (q ListHostVehiclesQuery) Actor() string { return q.ActorID }

type ListHostVehiclesHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *ListHostVehiclesHandler) Handle(ctx context.Context, q ListHostVehiclesQuery) (dto.VehicleCollection, error) {
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.VehicleCollection{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	fleet, err := unit.Vehicles().ListByHost(execCtx, domainvehicles.HostID(q.ActorID))
	if err != nil {
		return dto.VehicleCollection{}, err
	}
	out := dto.VehicleCollection{Items: make([]dto.Vehicle, 0, len(fleet)), Limit: len(fleet)}
	for _, v := range fleet {
		out.Items = append(out.Items, dto.MapVehicle(v))
	}
	return out, nil
}

var _ queries.Handler[SearchVehiclesQuery, dto.VehicleCollection] = (*SearchVehiclesHandler)(nil)
var _ queries.Handler[GetVehicleQuery, dto.Vehicle] = (*GetVehicleHandler)(nil)
var _ queries.Handler[ListHostVehiclesQuery, dto.VehicleCollection] = (*ListHostVehiclesHandler)(nil)
