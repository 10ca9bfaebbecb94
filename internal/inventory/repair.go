package inventory

import (
	"sort"

	"github.com/cx-tal-miterani/bus-booking-system/internal/models"
)

// Repair brings trip.Seats to exactly one entry per number in
// [1, TotalSeats], sorted, and recomputes AvailableSeats from the seats.
// Duplicates collapse to one entry, preferring a booked one. Entries outside
// the range are dropped. Trips with TotalSeats < 1 are left untouched.
// It reports whether anything changed.
func Repair(trip *models.Trip) bool {
	if trip == nil || trip.TotalSeats < 1 {
		return false
	}

	byNumber := make(map[int]models.Seat, trip.TotalSeats)
	for _, s := range trip.Seats {
		if s.Number < 1 || s.Number > trip.TotalSeats {
			continue
		}
		if prev, ok := byNumber[s.Number]; ok && (prev.IsBooked || !s.IsBooked) {
			continue
		}
		if !s.IsBooked {
			s.BookedBy = nil
		}
		byNumber[s.Number] = s
	}

	seats := make([]models.Seat, trip.TotalSeats)
	for n := 1; n <= trip.TotalSeats; n++ {
		if s, ok := byNumber[n]; ok {
			seats[n-1] = s
			continue
		}
		seats[n-1] = models.Seat{Number: n}
	}

	available := countAvailable(seats)
	changed := trip.AvailableSeats != available || !seatsEqual(trip.Seats, seats)
	trip.Seats = seats
	trip.AvailableSeats = available
	return changed
}

// NeedsRepair reports whether Repair would change trip, without mutating it
func NeedsRepair(trip *models.Trip) bool {
	return Repair(trip.Clone())
}

func countAvailable(seats []models.Seat) int {
	available := 0
	for _, s := range seats {
		if !s.IsBooked {
			available++
		}
	}
	return available
}

func seatsEqual(a, b []models.Seat) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Number != b[i].Number || a[i].IsBooked != b[i].IsBooked {
			return false
		}
		if (a[i].BookedBy == nil) != (b[i].BookedBy == nil) {
			return false
		}
		if a[i].BookedBy != nil && *a[i].BookedBy != *b[i].BookedBy {
			return false
		}
	}
	return true
}

// SeatMutation books or releases a set of seats on behalf of a user
type SeatMutation struct {
	Numbers []int
	Book    bool
	// UserID is recorded as bookedBy when booking. When releasing, only seats
	// held by UserID (or by nobody) are released; empty releases any holder.
	UserID string
}

// applySeatMutation applies m, re-sorts the seats and recomputes
// AvailableSeats. It returns the seat numbers whose state changed.
func applySeatMutation(trip *models.Trip, m SeatMutation) []int {
	wanted := make(map[int]bool, len(m.Numbers))
	for _, n := range m.Numbers {
		wanted[n] = true
	}

	var changed []int
	for i := range trip.Seats {
		s := &trip.Seats[i]
		if !wanted[s.Number] {
			continue
		}
		if m.Book {
			by := m.UserID
			s.IsBooked = true
			s.BookedBy = &by
			changed = append(changed, s.Number)
			continue
		}
		if !s.IsBooked {
			continue
		}
		if m.UserID != "" && s.BookedBy != nil && *s.BookedBy != m.UserID {
			continue
		}
		s.IsBooked = false
		s.BookedBy = nil
		changed = append(changed, s.Number)
	}

	sort.Slice(trip.Seats, func(i, j int) bool {
		return trip.Seats[i].Number < trip.Seats[j].Number
	})
	trip.AvailableSeats = countAvailable(trip.Seats)
	sort.Ints(changed)
	return changed
}

// NewSeats synthesizes total unbooked seats
func NewSeats(total int) []models.Seat {
	seats := make([]models.Seat, total)
	for i := range seats {
		seats[i] = models.Seat{Number: i + 1}
	}
	return seats
}
