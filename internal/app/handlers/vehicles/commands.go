package vehicles

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"carshare/internal/app/commands"
	"carshare/internal/app/dto"
	"carshare/internal/app/handlers/support"
	"carshare/internal/app/outbox"
	"carshare/internal/app/policies"
	"carshare/internal/domain/shared/apperr"
	domainuser "carshare/internal/domain/user"
	domainvehicles "carshare/internal/domain/vehicles"
)

const (
	createVehicleKey      = "vehicles.create"
	updateVehicleKey      = "vehicles.update"
	uploadVehiclePhotoKey = "vehicles.photos.upload"
	defaultCurrency       = "USD"
)

var ErrPhotoMissing = apperr.New(apperr.ErrInvalidInput, "vehicles: photo content is required")

// RatesInput holds decimal amounts in the configured currency.
type RatesInput struct {
	PerDay   dto.Decimal
	PerWeek  dto.Decimal
	PerMonth dto.Decimal
}

func (r RatesInput) rates(currency string) (domainvehicles.Rates, error) {
	perDay, err := r.PerDay.Money(currency)
	if err != nil {
		return domainvehicles.Rates{}, apperr.New(apperr.ErrInvalidInput, "vehicles: per-day rate: "+err.Error())
	}
	perWeek, err := r.PerWeek.OptionalMoney(currency)
	if err != nil {
		return domainvehicles.Rates{}, apperr.New(apperr.ErrInvalidInput, "vehicles: weekly rate: "+err.Error())
	}
	perMonth, err := r.PerMonth.OptionalMoney(currency)
	if err != nil {
		return domainvehicles.Rates{}, apperr.New(apperr.ErrInvalidInput, "vehicles: monthly rate: "+err.Error())
	}
	return domainvehicles.Rates{PerDay: perDay, PerWeek: perWeek, PerMonth: perMonth}, nil
}

type CreateVehicleCommand struct {
	ActorID      string `validate:"required"`
	Make         string `validate:"max=60"`
	Model        string `validate:"max=60"`
	Year         int    `validate:"gte=0"`
	VIN          string `validate:"omitempty,len=17"`
	BodyType     string
	Transmission string
	Description  string `validate:"max=4000"`
	Address      string `validate:"max=300"`
	City         string `validate:"required,max=120"`
	Lat          *float64
	Lon          *float64
	Rates        RatesInput
	Photos       []string
	Available    *bool
}

func (c CreateVehicleCommand) Key() string   { return createVehicleKey }
func (c CreateVehicleCommand) Actor() string { return c.ActorID }

// CreateVehicleHandler lists a vehicle for the actor, who becomes a host. Missing
// specs are filled from the VIN decoder and the address is geocoded unless the
// caller sent coordinates. Lookup failures only leave the fields empty.
type CreateVehicleHandler struct {
	VINs     policies.VINDecoder
	Geocoder policies.Geocoder
	Outbox   outbox.Outbox
	Encoder  outbox.EventEncoder
	Currency string
	Logger   *slog.Logger
	Now      func() time.Time
}

func (h *CreateVehicleHandler) Handle(ctx context.Context, cmd CreateVehicleCommand) (*dto.Vehicle, error) {
	unit, err := support.CurrentUnit(ctx)
	if err != nil {
		return nil, err
	}
	now := clock(h.Now)
	rates, err := cmd.Rates.rates(currency(h.Currency))
	if err != nil {
		return nil, err
	}
	host, err := unit.Users().ByID(ctx, domainuser.ID(cmd.ActorID))
	if err != nil {
		return nil, err
	}

	specs := domainvehicles.Specs{
		Make:         cmd.Make,
		Model:        cmd.Model,
		Year:         cmd.Year,
		VIN:          cmd.VIN,
		BodyType:     cmd.BodyType,
		Transmission: cmd.Transmission,
	}
	h.decodeVIN(ctx, &specs)
	location := domainvehicles.Location{Address: strings.TrimSpace(cmd.Address), City: strings.TrimSpace(cmd.City)}
	if cmd.Lat != nil && cmd.Lon != nil {
		location.Lat, location.Lon = *cmd.Lat, *cmd.Lon
	} else {
		h.geocode(ctx, &location)
	}
	available := true
	if cmd.Available != nil {
		available = *cmd.Available
	}

	vehicle, err := domainvehicles.NewVehicle(domainvehicles.CreateParams{
		ID:          domainvehicles.VehicleID(uuid.NewString()),
		Host:        domainvehicles.HostID(host.ID),
		Specs:       specs,
		Description: cmd.Description,
		Photos:      cmd.Photos,
		Location:    location,
		Rates:       rates,
		Available:   available,
		Now:         now,
	})
	if err != nil {
		return nil, err
	}
	if !host.HasRole(domainuser.RoleHost) {
		if err := host.EnsureRole(domainuser.RoleHost, now); err != nil {
			return nil, err
		}
		if err := unit.Users().Save(ctx, host); err != nil {
			return nil, err
		}
	}
	if err := unit.Vehicles().Save(ctx, vehicle); err != nil {
		return nil, err
	}
	if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, vehicle); err != nil {
		return nil, err
	}
	logger(h.Logger).Info("vehicle listed", "vehicle_id", vehicle.ID, "host_id", vehicle.Host, "geocoded", vehicle.Location.HasCoordinates())
	out := dto.MapVehicle(vehicle)
	return &out, nil
}

func (h *CreateVehicleHandler) decodeVIN(ctx context.Context, specs *domainvehicles.Specs) {
	vin := strings.TrimSpace(specs.VIN)
	if h.VINs == nil || vin == "" {
		return
	}
	if specs.Make != "" && specs.Model != "" && specs.Year != 0 && specs.BodyType != "" && specs.Transmission != "" {
		return
	}
	decoded, err := h.VINs.Decode(ctx, vin)
	if err != nil {
		logger(h.Logger).Warn("vin decode failed", "vin", vin, "error", err)
		return
	}
	fill := func(dst *string, src string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = src
		}
	}
	fill(&specs.Make, decoded.Make)
	fill(&specs.Model, decoded.Model)
	fill(&specs.BodyType, decoded.BodyType)
	fill(&specs.Transmission, decoded.Transmission)
	if specs.Year == 0 {
		specs.Year = decoded.Year
	}
}

func (h *CreateVehicleHandler) geocode(ctx context.Context, loc *domainvehicles.Location) {
	if h.Geocoder == nil {
		return
	}
	query := strings.Trim(strings.Join([]string{loc.Address, loc.City}, ", "), ", ")
	if query == "" {
		return
	}
	coords, err := h.Geocoder.Geocode(ctx, query)
	if err != nil {
		logger(h.Logger).Warn("geocoding failed", "address", query, "error", err)
		return
	}
	loc.Lat, loc.Lon = coords.Lat, coords.Lon
}

// UpdateVehicleCommand changes only the fields that are set.
type UpdateVehicleCommand struct {
	ActorID     string `validate:"required"`
	VehicleID   string `validate:"required"`
	Description *string
	Address     *string
	City        *string
	Lat         *float64
	Lon         *float64
	Rates       *RatesInput
	Available   *bool
}

func (c UpdateVehicleCommand) Key() string   { return updateVehicleKey }
func (c UpdateVehicleCommand) Actor() string { return c.ActorID }

type UpdateVehicleHandler struct {
	Geocoder policies.Geocoder
	Outbox   outbox.Outbox
	Encoder  outbox.EventEncoder
	Currency string
	Logger   *slog.Logger
	Now      func() time.Time
}

func (h *UpdateVehicleHandler) Handle(ctx context.Context, cmd UpdateVehicleCommand) (*dto.Vehicle, error) {
	unit, err := support.CurrentUnit(ctx)
	if err != nil {
		return nil, err
	}
	vehicle, err := unit.Vehicles().ByID(ctx, domainvehicles.VehicleID(cmd.VehicleID))
	if err != nil {
		return nil, err
	}
	if !vehicle.OwnedBy(domainvehicles.HostID(cmd.ActorID)) {
		return nil, domainvehicles.ErrNotOwner
	}
	params := domainvehicles.UpdateParams{
		Description: cmd.Description,
		Available:   cmd.Available,
		Now:         clock(h.Now),
	}
	if cmd.Rates != nil {
		rates, err := cmd.Rates.rates(vehicle.Rates.PerDay.Currency)
		if err != nil {
			return nil, err
		}
		params.Rates = &rates
	}
	if cmd.Address != nil || cmd.City != nil || (cmd.Lat != nil && cmd.Lon != nil) {
		loc := vehicle.Location
		moved := false
		if cmd.Address != nil && strings.TrimSpace(*cmd.Address) != loc.Address {
			loc.Address = strings.TrimSpace(*cmd.Address)
			moved = true
		}
		if cmd.City != nil && strings.TrimSpace(*cmd.City) != loc.City {
			loc.City = strings.TrimSpace(*cmd.City)
			moved = true
		}
		switch {
		case cmd.Lat != nil && cmd.Lon != nil:
			loc.Lat, loc.Lon = *cmd.Lat, *cmd.Lon
		case moved && h.Geocoder != nil:
			query := strings.Trim(strings.Join([]string{loc.Address, loc.City}, ", "), ", ")
			if coords, err := h.Geocoder.Geocode(ctx, query); err == nil {
				loc.Lat, loc.Lon = coords.Lat, coords.Lon
			} else {
				logger(h.Logger).Warn("geocoding failed", "address", query, "error", err)
				loc.Lat, loc.Lon = 0, 0
			}
		}
		params.Location = &loc
	}
	if err := vehicle.Update(params); err != nil {
		return nil, err
	}
	if err := unit.Vehicles().Save(ctx, vehicle); err != nil {
		return nil, err
	}
	if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, vehicle); err != nil {
		return nil, err
	}
	logger(h.Logger).Info("vehicle updated", "vehicle_id", vehicle.ID, "host_id", vehicle.Host)
	out := dto.MapVehicle(vehicle)
	return &out, nil
}

type UploadVehiclePhotoCommand struct {
	ActorID     string `validate:"required"`
	VehicleID   string `validate:"required"`
	Filename    string
	ContentType string
	Reader      io.Reader
}

func (c UploadVehiclePhotoCommand) Key() string   { return uploadVehiclePhotoKey }
func (c UploadVehiclePhotoCommand) Actor() string { return c.ActorID }

type UploadVehiclePhotoHandler struct {
	Uploader policies.Uploader
	Logger   *slog.Logger
	Now      func() time.Time
}

func (h *UploadVehiclePhotoHandler) Handle(ctx context.Context, cmd UploadVehiclePhotoCommand) (*dto.Vehicle, error) {
	if h.Uploader == nil {
		return nil, apperr.Upstream("storage", fmt.Errorf("photo uploader unavailable"))
	}
	if cmd.Reader == nil {
		return nil, ErrPhotoMissing
	}
	unit, err := support.CurrentUnit(ctx)
	if err != nil {
		return nil, err
	}
	vehicle, err := unit.Vehicles().ByID(ctx, domainvehicles.VehicleID(cmd.VehicleID))
	if err != nil {
		return nil, err
	}
	if !vehicle.OwnedBy(domainvehicles.HostID(cmd.ActorID)) {
		return nil, domainvehicles.ErrNotOwner
	}
	key := fmt.Sprintf("vehicles/%s/%s%s", vehicle.ID, uuid.NewString(), extension(cmd.Filename, cmd.ContentType))
	url, err := h.Uploader.Upload(ctx, key, cmd.Reader, cmd.ContentType)
	if err != nil {
		return nil, apperr.Upstream("storage", err)
	}
	vehicle.AddPhoto(url, clock(h.Now))
	if err := unit.Vehicles().Save(ctx, vehicle); err != nil {
		return nil, err
	}
	logger(h.Logger).Info("vehicle photo added", "vehicle_id", vehicle.ID, "object_key", key)
	out := dto.MapVehicle(vehicle)
	return &out, nil
}

func extension(filename, contentType string) string {
	if ext := strings.ToLower(path.Ext(filename)); ext != "" {
		return ext
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

func currency(c string) string {
	if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
		return c
	}
	return defaultCurrency
}

func clock(now func() time.Time) time.Time {
	if now != nil {
		return now().UTC()
	}
	return time.Now().UTC()
}

func logger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

var _ commands.Handler[CreateVehicleCommand, *dto.Vehicle] = (*CreateVehicleHandler)(nil)
var _ commands.Handler[UpdateVehicleCommand, *dto.Vehicle] = (*UpdateVehicleHandler)(nil)
var _ commands.Handler[UploadVehiclePhotoCommand, *dto.Vehicle] = (*UploadVehiclePhotoHandler)(nil)
