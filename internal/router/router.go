package router

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cx-tal-miterani/bus-booking-system/internal/handlers"
	"github.com/cx-tal-miterani/bus-booking-system/internal/websocket"
)

// Options configures the router
type Options struct {
	JWTSecret   string
	CORSOrigins []string
	Logger      *zap.Logger
}

// SetupRouter creates and configures the HTTP router
func SetupRouter(h *handlers.Handler, hub *websocket.Hub, opts Options) *mux.Router {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	errs := h.Errors()

	r := mux.NewRouter()
	r.Use(logging(logger), recovery(logger, errs), cors(opts.CORSOrigins), instrument)

	authed := authenticate(opts.JWTSecret, errs)
	adminOnly := func(fn http.HandlerFunc) http.Handler {
		return authed(requireAdmin(errs)(fn))
	}
	signedIn := func(fn http.HandlerFunc) http.Handler {
		return authed(fn)
	}

	api := r.PathPrefix("/api").Subrouter()

	// Trips
	api.HandleFunc("/trips", h.GetTrips).Methods(http.MethodGet, http.MethodOptions)
	api.Handle("/trips", adminOnly(h.CreateTrip)).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/trips/{id}", h.GetTrip).Methods(http.MethodGet, http.MethodOptions)
	api.Handle("/trips/{id}", adminOnly(h.UpdateTrip)).Methods(http.MethodPut, http.MethodOptions)
	api.Handle("/trips/{id}", adminOnly(h.DeleteTrip)).Methods(http.MethodDelete, http.MethodOptions)

	// WebSocket for live seat maps
	api.HandleFunc("/trips/{id}/ws", hub.ServeWS).Methods(http.MethodGet)

	// Bookings
	api.Handle("/bookings", signedIn(h.CreateBooking)).Methods(http.MethodPost, http.MethodOptions)
	api.Handle("/bookings/user", signedIn(h.GetUserBookings)).Methods(http.MethodGet, http.MethodOptions)
	api.Handle("/bookings/all", adminOnly(h.GetAllBookings)).Methods(http.MethodGet, http.MethodOptions)
	api.Handle("/bookings/{id}", signedIn(h.GetBooking)).Methods(http.MethodGet, http.MethodOptions)
	api.Handle("/bookings/{id}/ticket", signedIn(h.GetTicket)).Methods(http.MethodGet, http.MethodOptions)
	api.Handle("/bookings/{id}/cancel", signedIn(h.CancelBooking)).Methods(http.MethodPut, http.MethodOptions)

	// Admin
	api.Handle("/admin/reconcile", adminOnly(h.Reconcile)).Methods(http.MethodPost, http.MethodOptions)

	// Health check
	api.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}
