package ginserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carshare/internal/app/commands"
	"carshare/internal/app/dto"
	bookingapp "carshare/internal/app/handlers/booking"
	paymentsapp "carshare/internal/app/handlers/payments"
	vehicleapp "carshare/internal/app/handlers/vehicles"
	"carshare/internal/app/queries"
	authsvc "carshare/internal/app/services/auth"
	domainbooking "carshare/internal/domain/booking"
	"carshare/internal/domain/shared/apperr"
	"carshare/internal/infra/obs"
	"carshare/internal/infra/security"
	"carshare/internal/infra/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeCommands struct {
	got    []commands.Command
	result any
	err    error
}

func (f *fakeCommands) Dispatch(_ context.Context, cmd commands.Command) (any, error) {
	f.got = append(f.got, cmd)
	return f.result, f.err
}

type fakeQueries struct {
	got    []queries.Query
	result any
	err    error
}

func (f *fakeQueries) Ask(_ context.Context, q queries.Query) (any, error) {
	f.got = append(f.got, q)
	return f.result, f.err
}

type testServer struct {
	router   *gin.Engine
	commands *fakeCommands
	queries  *fakeQueries
	token    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	svc := &authsvc.Service{
		Users:      memory.NewUserRepository(),
		Sessions:   memory.NewSessionStore(),
		Passwords:  security.BcryptHasher{Cost: 4},
		Tokens:     security.RandomTokenGenerator{},
		SessionTTL: time.Hour,
	}
	registered, err := svc.Register(context.Background(), authsvc.RegisterParams{
		Email: "driver@example.com", Name: "Dana", Password: "correct-horse",
	})
	require.NoError(t, err)

	cmds := &fakeCommands{}
	qs := &fakeQueries{}
	router := NewRouter(obs.Middleware{}, obs.HealthHandlers{}, Handlers{
		Auth:           AuthHandler{Service: svc},
		Booking:        BookingHandler{Commands: cmds, Queries: qs},
		Payment:        PaymentHandler{Commands: cmds},
		Vehicle:        VehicleHandler{Commands: cmds, Queries: qs},
		Social:         SocialHandler{Commands: cmds, Queries: qs},
		AuthMiddleware: AuthMiddleware{Service: svc}.Handle,
	})
	return &testServer{router: router, commands: cmds, queries: qs, token: registered.Token}
}

func (s *testServer) do(method, path string, body io.Reader, contentType string, authed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) json(method, path, body string, authed bool) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	return s.do(method, path, r, "application/json", authed)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.ErrUnauthenticated, http.StatusUnauthorized},
		{authsvc.ErrInvalidCredentials, http.StatusUnauthorized},
		{domainbooking.ErrDriverOnly, http.StatusForbidden},
		{domainbooking.ErrBookingNotFound, http.StatusNotFound},
		{domainbooking.ErrInvalidTransition, http.StatusConflict},
		{&domainbooking.ConflictError{BookingID: "b-2"}, http.StatusConflict},
		{domainbooking.ErrPickupTime, http.StatusBadRequest},
		{apperr.Upstream("stripe", errors.New("timeout")), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			assert.Equal(t, tc.want, statusFor(tc.err))
		})
	}
}

func TestAuthRoutes(t *testing.T) {
	s := newTestServer(t)

	w := s.json(http.MethodGet, "/api/v1/auth/me", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"email":"driver@example.com"`)

	w = s.json(http.MethodPost, "/api/v1/auth/login", `{"email":"driver@example.com","password":"wrong-password"}`, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.json(http.MethodPost, "/api/v1/auth/register", `{"email":"driver@example.com","name":"Again","password":"long-enough"}`, false)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.json(http.MethodPost, "/api/v1/auth/logout", "", true)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.json(http.MethodGet, "/api/v1/auth/me", "", true)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateBooking(t *testing.T) {
	t.Run("anonymous", func(t *testing.T) {
		s := newTestServer(t)
		w := s.json(http.MethodPost, "/api/v1/bookings", `{"vehicleId":"v-1"}`, false)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Empty(t, s.commands.got)
	})

	t.Run("dispatches command", func(t *testing.T) {
		s := newTestServer(t)
		s.commands.result = &dto.Booking{ID: "b-1", Status: "pending"}
		req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(
			`{"vehicleId":"v-1","startDate":"2026-05-01","endDate":"2026-05-04","pickupTime":"10:00","rentalType":"daily","message":"hi"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+s.token)
		req.Header.Set("Idempotency-Key", "idem-1")
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)

		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "/api/v1/bookings/b-1", w.Header().Get("Location"))
		require.Len(t, s.commands.got, 1)
		cmd := s.commands.got[0].(bookingapp.CreateBookingCommand)
		assert.NotEmpty(t, cmd.ActorID)
		assert.Equal(t, "v-1", cmd.VehicleID)
		assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), cmd.StartDate)
		assert.Equal(t, time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC), cmd.EndDate)
		assert.Equal(t, "idem-1", cmd.IdempotencyKey())
	})

	t.Run("bad date", func(t *testing.T) {
		s := newTestServer(t)
		w := s.json(http.MethodPost, "/api/v1/bookings", `{"vehicleId":"v-1","startDate":"May 1","endDate":"2026-05-04"}`, true)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, s.commands.got)
	})

	t.Run("conflict carries available until", func(t *testing.T) {
		s := newTestServer(t)
		s.commands.err = &domainbooking.ConflictError{BookingID: "b-9", AvailableUntil: time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)}
		w := s.json(http.MethodPost, "/api/v1/bookings", `{"vehicleId":"v-1","startDate":"2026-05-01","endDate":"2026-05-04","pickupTime":"10:00"}`, true)
		require.Equal(t, http.StatusConflict, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "2026-05-02", body["availableUntil"])
		assert.Equal(t, "conflict", body["kind"])
	})
}

func TestUpdateStatusNormalizes(t *testing.T) {
	s := newTestServer(t)
	s.commands.result = &dto.Booking{ID: "b-1", Status: "cancelled"}
	w := s.json(http.MethodPatch, "/api/v1/bookings/b-1/status", `{"status":" Cancelled "}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	cmd := s.commands.got[0].(bookingapp.UpdateStatusCommand)
	assert.Equal(t, "cancelled", cmd.Status)
	assert.Equal(t, "b-1", cmd.BookingID)
}

func TestInspectionMultipart(t *testing.T) {
	s := newTestServer(t)
	s.commands.result = &dto.Booking{ID: "b-1", Status: "active"}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, side := range []string{"front", "back", "left"} {
		part, err := mw.CreateFormFile(side, side+".jpg")
		require.NoError(t, err)
		_, _ = part.Write([]byte("jpeg-" + side))
	}
	require.NoError(t, mw.WriteField("right", "https://cdn.test/right.jpg"))
	require.NoError(t, mw.WriteField("notes", "scratch on bumper"))
	require.NoError(t, mw.Close())

	var captured bookingapp.StartRentalCommand
	var frontBody []byte
	s.router = NewRouter(obs.Middleware{}, obs.HealthHandlers{}, Handlers{
		Booking: BookingHandler{Commands: commandFunc(func(cmd commands.Command) (any, error) {
			captured = cmd.(bookingapp.StartRentalCommand)
			frontBody, _ = io.ReadAll(captured.Inspection.Front.Body)
			return &dto.Booking{ID: "b-1"}, nil
		})},
		AuthMiddleware: func(c *gin.Context) {
			c.Set(principalContextKey, principal{User: dto.User{ID: "u-1"}})
		},
	})
	w := s.do(http.MethodPost, "/api/v1/bookings/b-1/start-inspection", &buf, mw.FormDataContentType(), false)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "u-1", captured.ActorID)
	assert.Equal(t, "front.jpg", captured.Inspection.Front.Filename)
	assert.Equal(t, "jpeg-front", string(frontBody))
	assert.Equal(t, "https://cdn.test/right.jpg", captured.Inspection.Right.URL)
	assert.Equal(t, "scratch on bumper", captured.Inspection.Notes)
}

type commandFunc func(cmd commands.Command) (any, error)

func (f commandFunc) Dispatch(_ context.Context, cmd commands.Command) (any, error) { return f(cmd) }

func TestInspectionJSON(t *testing.T) {
	s := newTestServer(t)
	s.commands.result = &dto.Booking{ID: "b-1"}
	w := s.json(http.MethodPost, "/api/v1/bookings/b-1/return-inspection",
		`{"front":"f.jpg","back":"b.jpg","left":"l.jpg","right":"r.jpg","notes":"ok"}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	cmd := s.commands.got[0].(bookingapp.CompleteRentalCommand)
	assert.Equal(t, "f.jpg", cmd.Inspection.Front.URL)
	assert.Equal(t, "r.jpg", cmd.Inspection.Right.URL)
}

func TestWebhookPassesRawBody(t *testing.T) {
	s := newTestServer(t)
	s.commands.result = &dto.WebhookAck{Received: true, Event: "payment_intent.succeeded", Applied: true}
	payload := `{"id":"evt_1","type":"payment_intent.succeeded"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payment/webhook", strings.NewReader(payload))
	req.Header.Set(SignatureHeader, "t=1,v1=abc")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	cmd := s.commands.got[0].(paymentsapp.HandleWebhookCommand)
	assert.Equal(t, payload, string(cmd.Payload))
	assert.Equal(t, "t=1,v1=abc", cmd.Signature)

	s.commands.err = apperr.New(apperr.ErrInvalidInput, "payments: bad signature")
	w = s.do(http.MethodPost, "/api/v1/payment/webhook", strings.NewReader(payload), "application/json", false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfirmPaymentWithoutBody(t *testing.T) {
	s := newTestServer(t)
	s.commands.result = &dto.PaymentResult{Applied: true}
	w := s.do(http.MethodPost, "/api/v1/bookings/b-1/confirm-payment", nil, "", true)
	require.Equal(t, http.StatusOK, w.Code)
	cmd := s.commands.got[0].(paymentsapp.ConfirmPaymentCommand)
	assert.Empty(t, cmd.SessionID)
	assert.Equal(t, "b-1", cmd.BookingID)
}

func TestVehicleSearchBindsQuery(t *testing.T) {
	s := newTestServer(t)
	s.queries.result = dto.VehicleCollection{}
	w := s.json(http.MethodGet, "/api/v1/vehicles?city=Austin&available=true&maxPrice=80.50&lat=30.2&lon=-97.7&radiusKm=25&limit=10", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	q := s.queries.got[0].(vehicleapp.SearchVehiclesQuery)
	assert.Equal(t, "Austin", q.City)
	assert.True(t, q.OnlyAvailable)
	assert.Equal(t, dto.Decimal("80.50"), q.MaxDailyPrice)
	assert.InDelta(t, 30.2, q.Lat, 1e-9)
	assert.InDelta(t, 25.0, q.RadiusKm, 1e-9)
	assert.Equal(t, 10, q.Limit)

	w = s.json(http.MethodGet, "/api/v1/vehicles?lat=north", "", false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInternalErrorsAreMasked(t *testing.T) {
	s := newTestServer(t)
	s.queries.err = errors.New("mongo: connection reset")
	w := s.json(http.MethodGet, "/api/v1/insurance/plans", "", false)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "mongo")
}
