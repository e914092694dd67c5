package ginserver

import (
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"carshare/internal/app/commands"
	"carshare/internal/app/dto"
	bookingapp "carshare/internal/app/handlers/booking"
	"carshare/internal/app/queries"
)

var inspectionSides = []string{"front", "back", "left", "right"}

type BookingHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type createBookingRequest struct {
	VehicleID  string `json:"vehicleId"`
	StartDate  string `json:"startDate"`
	EndDate    string `json:"endDate"`
	PickupTime string `json:"pickupTime"`
	RentalType string `json:"rentalType"`
	Quantity   int    `json:"quantity"`
	Message    string `json:"message"`
}

func (h BookingHandler) Create(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	start, err := parseDate("startDate", req.StartDate)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	end, err := parseDate("endDate", req.EndDate)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	cmd := bookingapp.CreateBookingCommand{
		ActorID:         user.ID(),
		VehicleID:       req.VehicleID,
		StartDate:       start,
		EndDate:         end,
		PickupTime:      req.PickupTime,
		RentalType:      req.RentalType,
		Quantity:        req.Quantity,
		Message:         req.Message,
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	}
	result, err := commands.Dispatch[bookingapp.CreateBookingCommand, *dto.Booking](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.Header("Location", "/api/v1/bookings/"+result.ID)
	c.JSON(http.StatusCreated, result)
}

func (h BookingHandler) Get(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	query := bookingapp.GetBookingQuery{ActorID: user.ID(), BookingID: c.Param("id")}
	result, err := queries.Ask[bookingapp.GetBookingQuery, dto.Booking](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h BookingHandler) ListMine(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	query := bookingapp.ListDriverBookingsQuery{ActorID: user.ID(), Status: strings.TrimSpace(c.Query("status"))}
	result, err := queries.Ask[bookingapp.ListDriverBookingsQuery, dto.BookingCollection](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h BookingHandler) ListHosted(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	query := bookingapp.ListHostBookingsQuery{ActorID: user.ID(), Status: strings.TrimSpace(c.Query("status"))}
	result, err := queries.Ask[bookingapp.ListHostBookingsQuery, dto.BookingCollection](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type extendRequest struct {
	Days int `json:"days"`
}

// Extend quotes the extension and opens a payment for it. The booking changes only once
// that payment is confirmed.
func (h BookingHandler) Extend(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	var req extendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cmd := bookingapp.QuoteExtensionCommand{ActorID: user.ID(), BookingID: c.Param("id"), Days: req.Days}
	result, err := commands.Dispatch[bookingapp.QuoteExtensionCommand, *dto.ExtensionQuote](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h BookingHandler) StartInspection(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	input, cleanup, err := inspectionInput(c)
	defer cleanup()
	if err != nil {
		badRequest(c, err)
		return
	}
	cmd := bookingapp.StartRentalCommand{ActorID: user.ID(), BookingID: c.Param("id"), Inspection: input}
	result, err := commands.Dispatch[bookingapp.StartRentalCommand, *dto.Booking](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h BookingHandler) ReturnInspection(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	input, cleanup, err := inspectionInput(c)
	defer cleanup()
	if err != nil {
		badRequest(c, err)
		return
	}
	cmd := bookingapp.CompleteRentalCommand{ActorID: user.ID(), BookingID: c.Param("id"), Inspection: input}
	result, err := commands.Dispatch[bookingapp.CompleteRentalCommand, *dto.Booking](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type inspectionRequest struct {
	Front string `json:"front"`
	Back  string `json:"back"`
	Left  string `json:"left"`
	Right string `json:"right"`
	Notes string `json:"notes"`
}

// inspectionInput reads four photos either as multipart files or as JSON URLs. A
// multipart field may also carry a URL instead of a file. The returned cleanup closes
// any opened uploads and is always safe to call.
func inspectionInput(c *gin.Context) (bookingapp.InspectionInput, func(), error) {
	var closers []io.Closer
	cleanup := func() {
		for _, cl := range closers {
			_ = cl.Close()
		}
	}
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		var req inspectionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return bookingapp.InspectionInput{}, cleanup, err
		}
		return bookingapp.InspectionInput{
			Front: bookingapp.Photo{URL: req.Front},
			Back:  bookingapp.Photo{URL: req.Back},
			Left:  bookingapp.Photo{URL: req.Left},
			Right: bookingapp.Photo{URL: req.Right},
			Notes: req.Notes,
		}, cleanup, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return bookingapp.InspectionInput{}, cleanup, err
	}
	photos := make(map[string]bookingapp.Photo, len(inspectionSides))
	for _, side := range inspectionSides {
		if files := form.File[side]; len(files) > 0 {
			f, err := files[0].Open()
			if err != nil {
				return bookingapp.InspectionInput{}, cleanup, err
			}
			closers = append(closers, f)
			photos[side] = uploadedPhoto(files[0], f)
			continue
		}
		if urls := form.Value[side]; len(urls) > 0 {
			photos[side] = bookingapp.Photo{URL: urls[0]}
		}
	}
	return bookingapp.InspectionInput{
		Front: photos["front"],
		Back:  photos["back"],
		Left:  photos["left"],
		Right: photos["right"],
		Notes: c.PostForm("notes"),
	}, cleanup, nil
}

func uploadedPhoto(fh *multipart.FileHeader, body io.Reader) bookingapp.Photo {
	return bookingapp.Photo{Body: body, Filename: fh.Filename, ContentType: fh.Header.Get("Content-Type")}
}

func (h BookingHandler) AvailableVehicles(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	query := bookingapp.AvailableVehiclesQuery{ActorID: user.ID(), BookingID: c.Param("id")}
	result, err := queries.Ask[bookingapp.AvailableVehiclesQuery, dto.SwitchCandidateCollection](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type switchVehicleRequest struct {
	VehicleID string `json:"vehicleId"`
	Reason    string `json:"reason"`
}

func (h BookingHandler) SwitchVehicle(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	var req switchVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cmd := bookingapp.SwitchVehicleCommand{ActorID: user.ID(), BookingID: c.Param("id"), VehicleID: req.VehicleID, Reason: req.Reason}
	result, err := commands.Dispatch[bookingapp.SwitchVehicleCommand, *dto.Booking](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h BookingHandler) UpdateStatus(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cmd := bookingapp.UpdateStatusCommand{ActorID: user.ID(), BookingID: c.Param("id"), Status: strings.ToLower(strings.TrimSpace(req.Status))}
	result, err := commands.Dispatch[bookingapp.UpdateStatusCommand, *dto.Booking](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h BookingHandler) InsurancePlans(c *gin.Context) {
	result, err := queries.Ask[bookingapp.ListInsurancePlansQuery, dto.InsurancePlanCollection](c.Request.Context(), h.Queries, bookingapp.ListInsurancePlansQuery{})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type selectInsuranceRequest struct {
	Plan string `json:"plan"`
}

func (h BookingHandler) SelectInsurance(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	var req selectInsuranceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cmd := bookingapp.SelectInsuranceCommand{ActorID: user.ID(), BookingID: c.Param("id"), Plan: strings.ToLower(strings.TrimSpace(req.Plan))}
	result, err := commands.Dispatch[bookingapp.SelectInsuranceCommand, *dto.Booking](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ BookingHTTP = BookingHandler{}
