package booking

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cx-tal-miterani/bus-booking-system/internal/apperror"
	"github.com/cx-tal-miterani/bus-booking-system/internal/models"
)

// NormalizeSeats turns client seat inputs into seat numbers. Every entry that
// is neither an integer nor a seat label is reported, as are duplicates.
func NormalizeSeats(inputs []models.SeatInput) ([]int, error) {
	if len(inputs) == 0 {
		return nil, apperror.InvalidRequest("Please select at least one seat")
	}

	seats := make([]int, 0, len(inputs))
	seen := make(map[int]bool, len(inputs))
	var invalid, duplicates []string
	for _, in := range inputs {
		n, err := models.ParseSeat(string(in))
		if err != nil {
			invalid = append(invalid, strconv.Quote(string(in)))
			continue
		}
		if seen[n] {
			duplicates = append(duplicates, strconv.Itoa(n))
			continue
		}
		seen[n] = true
		seats = append(seats, n)
	}

	if len(invalid) > 0 {
		return nil, apperror.InvalidRequest("Invalid seat numbers provided: %s", strings.Join(invalid, ", "))
	}
	if len(duplicates) > 0 {
		return nil, apperror.InvalidRequest("Duplicate seats requested: %s", strings.Join(duplicates, ", "))
	}
	return seats, nil
}

// outOfRange returns the requested seats that do not exist on trip
func outOfRange(trip *models.Trip, seats []int) []int {
	var bad []int
	for _, n := range seats {
		if n < 1 || n > trip.TotalSeats {
			bad = append(bad, n)
		}
	}
	return bad
}

// alreadyBooked returns the requested seats currently booked on trip
func alreadyBooked(trip *models.Trip, seats []int) []int {
	booked := make(map[int]bool, len(trip.Seats))
	for _, s := range trip.Seats {
		if s.IsBooked {
			booked[s.Number] = true
		}
	}
	var taken []int
	for _, n := range seats {
		if booked[n] {
			taken = append(taken, n)
		}
	}
	sort.Ints(taken)
	return taken
}

// checkRange reports every out-of-range seat in one error
func checkRange(trip *models.Trip, seats []int) error {
	bad := outOfRange(trip, seats)
	if len(bad) == 0 {
		return nil
	}
	parts := make([]string, len(bad))
	for i, n := range bad {
		parts[i] = strconv.Itoa(n)
	}
	return apperror.InvalidRequest("Invalid seat numbers: %s", strings.Join(parts, ", "))
}
