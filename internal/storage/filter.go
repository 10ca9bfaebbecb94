package storage

import (
	"sort"
	"strings"
	"time"

	"github.com/cx-tal-miterani/bus-booking-system/internal/models"
)

// DayRange returns the [start, end) UTC bounds of the calendar day of t
func DayRange(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// MatchTrip applies a trip filter in memory for backends without a query engine
func MatchTrip(t *models.Trip, f models.TripFilter) bool {
	if f.Source != "" && !containsFold(t.Source, f.Source) {
		return false
	}
	if f.Destination != "" && !containsFold(t.Destination, f.Destination) {
		return false
	}
	if f.Date != nil {
		start, end := DayRange(*f.Date)
		if t.Date.Before(start) || !t.Date.Before(end) {
			return false
		}
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// SortTrips orders trips by departure date then time
func SortTrips(trips []models.Trip) {
	sort.SliceStable(trips, func(i, j int) bool {
		if !trips[i].Date.Equal(trips[j].Date) {
			return trips[i].Date.Before(trips[j].Date)
		}
		return trips[i].Time < trips[j].Time
	})
}

// SortBookings orders bookings newest first
func SortBookings(bookings []models.Booking) {
	sort.SliceStable(bookings, func(i, j int) bool {
		return bookings[i].BookingDate.After(bookings[j].BookingDate)
	})
}
