package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cx-tal-miterani/bus-booking-system/internal/auth"
	"github.com/cx-tal-miterani/bus-booking-system/internal/handlers"
	"github.com/cx-tal-miterani/bus-booking-system/internal/models"
	"github.com/cx-tal-miterani/bus-booking-system/internal/service"
	"github.com/cx-tal-miterani/bus-booking-system/internal/service/mocks"
	"github.com/cx-tal-miterani/bus-booking-system/internal/websocket"
)

const secret = "router-test-secret"

var (
	user  = models.Actor{UserID: "u1", Name: "Alice", Role: models.RoleUser}
	admin = models.Actor{UserID: "a1", Name: "Root", Role: models.RoleAdmin}
)

func setup(t *testing.T) (http.Handler, *mocks.MockBookingService) {
	t.Helper()
	svc := new(mocks.MockBookingService)
	h := handlers.NewHandler(svc, nil, false)
	r := SetupRouter(h, websocket.NewHub(nil), Options{JWTSecret: secret, CORSOrigins: []string{"*"}})
	return r, svc
}

func bearer(t *testing.T, a models.Actor) string {
	t.Helper()
	token, err := auth.GenerateToken(a, secret, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestRouter_Authentication(t *testing.T) {
	r, svc := setup(t)
	svc.On("ListUserBookings", mock.Anything, user).
		Return(&models.UserBookings{Upcoming: []models.Booking{}, Past: []models.Booking{}, All: []models.Booking{}}, nil)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "no token", header: "", status: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "valid", header: bearer(t, user), status: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/bookings/user", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}

func TestRouter_AdminGuard(t *testing.T) {
	r, svc := setup(t)
	svc.On("ListAllBookings", mock.Anything, admin).Return([]models.Booking{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/bookings/all", nil)
	req.Header.Set("Authorization", bearer(t, user))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var body handlers.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "Admin access required", body.Message)
	assert.Equal(t, "FORBIDDEN", body.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/bookings/all", nil)
	req.Header.Set("Authorization", bearer(t, admin))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	svc.AssertExpectations(t)
}

func TestRouter_PublicTripsAndPreflight(t *testing.T) {
	r, svc := setup(t)
	svc.On("ListTrips", mock.Anything, models.TripFilter{}).Return([]models.Trip{}, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/trips", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodOptions, "/api/bookings", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PUT")
}

func TestRouter_CORSAllowList(t *testing.T) {
	h := handlers.NewHandler(new(mocks.MockBookingService), nil, false)
	r := SetupRouter(h, websocket.NewHub(nil), Options{JWTSecret: secret, CORSOrigins: []string{"https://buses.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/trips", nil)
	req.Header.Set("Origin", "https://buses.example")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "https://buses.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_RecoversPanics(t *testing.T) {
	r, svc := setup(t)
	svc.On("GetTrip", mock.Anything, "boom").Run(func(mock.Arguments) { panic("kaboom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/trips/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	r, svc := setup(t)
	svc.On("Health", mock.Anything).Return(&service.HealthStatus{Status: "healthy", Store: "up"}, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "bus_booking_http_requests_total"))
}
