// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Conflict stages for BookingConflicts
const (
	StageInitialCheck = "initial_check"
	StageRecheck      = "recheck"
	StageStaleWrite   = "stale_write"
	StageCommit       = "commit"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_booking_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bus_booking_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_booking_bookings_total",
			Help: "Bookings by outcome",
		},
		[]string{"outcome"},
	)

	BookingConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_booking_seat_conflicts_total",
			Help: "Seat conflicts detected, by the stage that caught them",
		},
		[]string{"stage"},
	)

	InventoryRepairs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bus_booking_inventory_repairs_total",
			Help: "Trips whose seat inventory was repaired and persisted",
		},
	)

	EventPublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_booking_event_publish_failures_total",
			Help: "Domain events that could not be published",
		},
		[]string{"publisher"},
	)
)
