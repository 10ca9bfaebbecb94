// Package handlers implements the HTTP endpoints on top of the booking
// service facade.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/cx-tal-miterani/bus-booking-system/internal/auth"
	"github.com/cx-tal-miterani/bus-booking-system/internal/models"
	"github.com/cx-tal-miterani/bus-booking-system/internal/service"
	"github.com/cx-tal-miterani/bus-booking-system/internal/ticket"
)

// Handler contains HTTP handlers for the API
type Handler struct {
	bookingService service.BookingService
	errors         Errors
}

// NewHandler creates a new Handler instance
func NewHandler(bookingService service.BookingService, logger *zap.Logger, development bool) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		bookingService: bookingService,
		errors:         Errors{Development: development, Logger: logger},
	}
}

// Errors returns the error renderer shared with middleware
func (h *Handler) Errors() Errors {
	return h.errors
}

func actor(r *http.Request) models.Actor {
	a, _ := auth.ActorFrom(r.Context())
	return a
}

// GetTrips handles GET /api/trips
func (h *Handler) GetTrips(w http.ResponseWriter, r *http.Request) {
	filter, err := tripFilter(r)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}

	trips, err := h.bookingService.ListTrips(r.Context(), filter)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	noCache(w)
	respondList(w, trips, len(trips))
}

// GetTrip handles GET /api/trips/{id}
func (h *Handler) GetTrip(w http.ResponseWriter, r *http.Request) {
	trip, err := h.bookingService.GetTrip(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	noCache(w)
	respondData(w, http.StatusOK, trip, "")
}

// CreateTrip handles POST /api/trips
func (h *Handler) CreateTrip(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTripRequest
	if err := readAndValidate(w, r, &req); err != nil {
		h.errors.Respond(w, r, err)
		return
	}

	trip, err := h.bookingService.CreateTrip(r.Context(), actor(r), req)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	respondData(w, http.StatusCreated, trip, "Trip created successfully")
}

// UpdateTrip handles PUT /api/trips/{id}
func (h *Handler) UpdateTrip(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateTripRequest
	if err := readAndValidate(w, r, &req); err != nil {
		h.errors.Respond(w, r, err)
		return
	}

	trip, err := h.bookingService.UpdateTrip(r.Context(), actor(r), mux.Vars(r)["id"], req)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	respondData(w, http.StatusOK, trip, "Trip updated successfully")
}

// DeleteTrip handles DELETE /api/trips/{id}
func (h *Handler) DeleteTrip(w http.ResponseWriter, r *http.Request) {
	if err := h.bookingService.DeleteTrip(r.Context(), actor(r), mux.Vars(r)["id"]); err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, Response{Success: true, Message: "Trip deleted successfully"})
}

// CreateBooking handles POST /api/bookings. Field validation happens in the
// coordinator so that messages name the offending seats.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req models.CreateBookingRequest
	if err := readJSON(w, r, &req); err != nil {
		h.errors.Respond(w, r, err)
		return
	}

	b, err := h.bookingService.CreateBooking(r.Context(), actor(r), req)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	respondData(w, http.StatusCreated, b, "Booking confirmed successfully")
}

// GetUserBookings handles GET /api/bookings/user
func (h *Handler) GetUserBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.bookingService.ListUserBookings(r.Context(), actor(r))
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	respondList(w, bookings, len(bookings.All))
}

// GetAllBookings handles GET /api/bookings/all
func (h *Handler) GetAllBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.bookingService.ListAllBookings(r.Context(), actor(r))
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	respondList(w, bookings, len(bookings))
}

// GetBooking handles GET /api/bookings/{id}
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.bookingService.GetBooking(r.Context(), actor(r), mux.Vars(r)["id"])
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	respondData(w, http.StatusOK, b, "")
}

// GetTicket handles GET /api/bookings/{id}/ticket
func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	b, pdf, err := h.bookingService.Ticket(r.Context(), actor(r), mux.Vars(r)["id"])
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+ticket.Filename(b)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// CancelBooking handles PUT /api/bookings/{id}/cancel
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.bookingService.CancelBooking(r.Context(), actor(r), mux.Vars(r)["id"])
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	respondData(w, http.StatusOK, b, "Booking cancelled successfully")
}

type reconcileRequest struct {
	TripIDs []string `json:"tripIds"`
}

// Reconcile handles POST /api/admin/reconcile. The body is optional.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if r.ContentLength > 0 {
		if err := readJSON(w, r, &req); err != nil {
			h.errors.Respond(w, r, err)
			return
		}
	}

	status, err := h.bookingService.Reconcile(r.Context(), actor(r), req.TripIDs)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	if status.WorkflowID != "" {
		respondData(w, http.StatusAccepted, status, "Reconciliation started")
		return
	}
	respondData(w, http.StatusOK, status, "Reconciliation completed")
}

// Health handles GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status, err := h.bookingService.Health(r.Context())
	if err != nil {
		respondJSON(w, http.StatusServiceUnavailable, Response{Success: false, Data: status, Message: "Storage unavailable"})
		return
	}
	respondData(w, http.StatusOK, status, "Server is running")
}
