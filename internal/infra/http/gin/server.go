package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"carshare/internal/infra/config"
	"carshare/internal/infra/obs"
)

type BookingHTTP interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	ListMine(c *gin.Context)
	ListHosted(c *gin.Context)
	Extend(c *gin.Context)
	StartInspection(c *gin.Context)
	ReturnInspection(c *gin.Context)
	AvailableVehicles(c *gin.Context)
	SwitchVehicle(c *gin.Context)
	UpdateStatus(c *gin.Context)
	InsurancePlans(c *gin.Context)
	SelectInsurance(c *gin.Context)
}

type PaymentHTTP interface {
	Checkout(c *gin.Context)
	ConfirmPayment(c *gin.Context)
	ConfirmExtension(c *gin.Context)
	Reconcile(c *gin.Context)
	Webhook(c *gin.Context)
}

type VehicleHTTP interface {
	Search(c *gin.Context)
	Get(c *gin.Context)
	Create(c *gin.Context)
	Update(c *gin.Context)
	UploadPhoto(c *gin.Context)
	ListMine(c *gin.Context)
}

type SocialHTTP interface {
	SubmitReview(c *gin.Context)
	VehicleReviews(c *gin.Context)
	SendMessage(c *gin.Context)
	ListMessages(c *gin.Context)
}

type Handlers struct {
	Auth           AuthHTTP
	Booking        BookingHTTP
	Payment        PaymentHTTP
	Vehicle        VehicleHTTP
	Social         SocialHTTP
	AuthMiddleware gin.HandlerFunc
	Metrics        http.Handler
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// NewRouter mounts every route group whose handler is set.
func NewRouter(obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.AccessLog())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			obs.RequestIDHeader,
		},
		MaxAge: 12 * time.Hour,
	}))
	if h.AuthMiddleware != nil {
		router.Use(h.AuthMiddleware)
	}

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)
	if h.Metrics != nil {
		router.GET("/metrics", gin.WrapH(h.Metrics))
	}

	api := router.Group("/api/v1")
	if h.Auth != nil {
		api.POST("/auth/register", h.Auth.Register)
		api.POST("/auth/login", h.Auth.Login)
		api.POST("/auth/logout", h.Auth.Logout)
		api.GET("/auth/me", h.Auth.Me)
	}
	if h.Booking != nil {
		api.POST("/bookings", h.Booking.Create)
		api.GET("/bookings/:id", h.Booking.Get)
		api.POST("/bookings/:id/extend", h.Booking.Extend)
		api.POST("/bookings/:id/start-inspection", h.Booking.StartInspection)
		api.POST("/bookings/:id/return-inspection", h.Booking.ReturnInspection)
		api.GET("/bookings/:id/available-vehicles", h.Booking.AvailableVehicles)
		api.PATCH("/bookings/:id/switch-vehicle", h.Booking.SwitchVehicle)
		api.PATCH("/bookings/:id/status", h.Booking.UpdateStatus)
		api.PUT("/bookings/:id/insurance", h.Booking.SelectInsurance)
		api.GET("/insurance/plans", h.Booking.InsurancePlans)
		api.GET("/me/bookings", h.Booking.ListMine)
		api.GET("/host/bookings", h.Booking.ListHosted)
	}
	if h.Payment != nil {
		api.POST("/bookings/:id/checkout", h.Payment.Checkout)
		api.POST("/bookings/:id/confirm-payment", h.Payment.ConfirmPayment)
		api.POST("/bookings/:id/confirm-extension", h.Payment.ConfirmExtension)
		api.POST("/bookings/:id/reconcile-payment", h.Payment.Reconcile)
		api.POST("/payment/webhook", h.Payment.Webhook)
	}
	if h.Vehicle != nil {
		api.GET("/vehicles", h.Vehicle.Search)
		api.POST("/vehicles", h.Vehicle.Create)
		api.GET("/vehicles/:id", h.Vehicle.Get)
		api.PATCH("/vehicles/:id", h.Vehicle.Update)
		api.POST("/vehicles/:id/photos", h.Vehicle.UploadPhoto)
		api.GET("/host/vehicles", h.Vehicle.ListMine)
	}
	if h.Social != nil {
		api.POST("/bookings/:id/review", h.Social.SubmitReview)
		api.GET("/bookings/:id/messages", h.Social.ListMessages)
		api.POST("/bookings/:id/messages", h.Social.SendMessage)
		api.GET("/vehicles/:id/reviews", h.Social.VehicleReviews)
	}
	return router
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
