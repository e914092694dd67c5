package ginserver

import (
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"carshare/internal/app/commands"
	"carshare/internal/app/dto"
	vehicleapp "carshare/internal/app/handlers/vehicles"
	"carshare/internal/app/queries"
)

type VehicleHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type searchVehiclesRequest struct {
	City      string      `form:"city"`
	Available bool        `form:"available"`
	MaxPrice  dto.Decimal `form:"maxPrice"`
	Lat       float64     `form:"lat"`
	Lon       float64     `form:"lon"`
	RadiusKm  float64     `form:"radiusKm"`
	Limit     int         `form:"limit"`
	Offset    int         `form:"offset"`
}

func (h VehicleHandler) Search(c *gin.Context) {
	var req searchVehiclesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}
	query := vehicleapp.SearchVehiclesQuery{
		City:          req.City,
		OnlyAvailable: req.Available,
		MaxDailyPrice: req.MaxPrice,
		Lat:           req.Lat,
		Lon:           req.Lon,
		RadiusKm:      req.RadiusKm,
		Limit:         req.Limit,
		Offset:        req.Offset,
	}
	result, err := queries.Ask[vehicleapp.SearchVehiclesQuery, dto.VehicleCollection](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h VehicleHandler) Get(c *gin.Context) {
	result, err := queries.Ask[vehicleapp.GetVehicleQuery, dto.Vehicle](c.Request.Context(), h.Queries, vehicleapp.GetVehicleQuery{VehicleID: c.Param("id")})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h VehicleHandler) ListMine(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	result, err := queries.Ask[vehicleapp.ListHostVehiclesQuery, dto.VehicleCollection](c.Request.Context(), h.Queries, vehicleapp.ListHostVehiclesQuery{ActorID: user.ID()})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type ratesRequest struct {
	PerDay   dto.Decimal `json:"perDay"`
	PerWeek  dto.Decimal `json:"perWeek"`
	PerMonth dto.Decimal `json:"perMonth"`
}

func (r ratesRequest) input() vehicleapp.RatesInput {
	return vehicleapp.RatesInput{PerDay: r.PerDay, PerWeek: r.PerWeek, PerMonth: r.PerMonth}
}

type createVehicleRequest struct {
	Make         string       `json:"make"`
	Model        string       `json:"model"`
	Year         int          `json:"year"`
	VIN          string       `json:"vin"`
	BodyType     string       `json:"bodyType"`
	Transmission string       `json:"transmission"`
	Description  string       `json:"description"`
	Address      string       `json:"address"`
	City         string       `json:"city"`
	Lat          *float64     `json:"lat"`
	Lon          *float64     `json:"lon"`
	Rates        ratesRequest `json:"rates"`
	Photos       []string     `json:"photos"`
	Available    *bool        `json:"available"`
}

func (h VehicleHandler) Create(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	var req createVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cmd := vehicleapp.CreateVehicleCommand{
		ActorID:      user.ID(),
		Make:         req.Make,
		Model:        req.Model,
		Year:         req.Year,
		VIN:          req.VIN,
		BodyType:     req.BodyType,
		Transmission: req.Transmission,
		Description:  req.Description,
		Address:      req.Address,
		City:         req.City,
		Lat:          req.Lat,
		Lon:          req.Lon,
		Rates:        req.Rates.input(),
		Photos:       req.Photos,
		Available:    req.Available,
	}
	result, err := commands.Dispatch[vehicleapp.CreateVehicleCommand, *dto.Vehicle](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.Header("Location", "/api/v1/vehicles/"+result.ID)
	c.JSON(http.StatusCreated, result)
}

type updateVehicleRequest struct {
	Description *string       `json:"description"`
	Address     *string       `json:"address"`
	City        *string       `json:"city"`
	Lat         *float64      `json:"lat"`
	Lon         *float64      `json:"lon"`
	Rates       *ratesRequest `json:"rates"`
	Available   *bool         `json:"available"`
}

func (h VehicleHandler) Update(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	var req updateVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cmd := vehicleapp.UpdateVehicleCommand{
		ActorID:     user.ID(),
		VehicleID:   c.Param("id"),
		Description: req.Description,
		Address:     req.Address,
		City:        req.City,
		Lat:         req.Lat,
		Lon:         req.Lon,
		Available:   req.Available,
	}
	if req.Rates != nil {
		rates := req.Rates.input()
		cmd.Rates = &rates
	}
	result, err := commands.Dispatch[vehicleapp.UpdateVehicleCommand, *dto.Vehicle](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h VehicleHandler) UploadPhoto(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	fh, err := c.FormFile("photo")
	if err != nil {
		badRequest(c, err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, err)
		return
	}
	defer f.Close()
	cmd := vehicleapp.UploadVehiclePhotoCommand{
		ActorID:     user.ID(),
		VehicleID:   c.Param("id"),
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Reader:      f,
	}
	result, err := commands.Dispatch[vehicleapp.UploadVehiclePhotoCommand, *dto.Vehicle](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ VehicleHTTP = VehicleHandler{}
