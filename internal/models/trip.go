package models

import "time"

// DateLayout is the calendar-date format used on the wire for trip dates
const DateLayout = "2006-01-02"

// Seat represents one bookable seat on a trip
type Seat struct {
	Number   int     `json:"number" bson:"number"`
	IsBooked bool    `json:"isBooked" bson:"isBooked"`
	BookedBy *string `json:"bookedBy" bson:"bookedBy"`
}

// Label returns the seat's display label (A1, A2, ... B1)
func (s Seat) Label() string {
	return SeatLabel(s.Number)
}

// Trip represents a scheduled bus trip with its embedded seat inventory
type Trip struct {
	ID             string    `json:"id" bson:"_id"`
	Source         string    `json:"source" bson:"source"`
	Destination    string    `json:"destination" bson:"destination"`
	Date           time.Time `json:"date" bson:"date"`
	Time           string    `json:"time" bson:"time"`
	Price          float64   `json:"price" bson:"price"`
	TotalSeats     int       `json:"totalSeats" bson:"totalSeats"`
	Seats          []Seat    `json:"seats" bson:"seats"`
	AvailableSeats int       `json:"availableSeats" bson:"availableSeats"`
	Version        int64     `json:"version" bson:"version"`
	CreatedAt      time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Clone returns a deep copy of the trip, including seats and bookedBy pointers
func (t *Trip) Clone() *Trip {
	if t == nil {
		return nil
	}
	c := *t
	if t.Seats != nil {
		c.Seats = make([]Seat, len(t.Seats))
		for i, s := range t.Seats {
			c.Seats[i] = s
			if s.BookedBy != nil {
				by := *s.BookedBy
				c.Seats[i].BookedBy = &by
			}
		}
	}
	return &c
}

// Summary returns the booking-facing snapshot of the trip
func (t *Trip) Summary() TripSummary {
	return TripSummary{
		ID:          t.ID,
		Source:      t.Source,
		Destination: t.Destination,
		Date:        t.Date,
		Time:        t.Time,
		Price:       t.Price,
	}
}

// SeatByNumber returns the seat with the given number, if present
func (t *Trip) SeatByNumber(n int) (Seat, bool) {
	for _, s := range t.Seats {
		if s.Number == n {
			return s, true
		}
	}
	return Seat{}, false
}

// TripFilter narrows trip listings. Empty fields match everything.
type TripFilter struct {
	Source      string
	Destination string
	Date        *time.Time
}

// CreateTripRequest is the admin payload for creating a trip
type CreateTripRequest struct {
	Source      string  `json:"source" validate:"required"`
	Destination string  `json:"destination" validate:"required"`
	Date        string  `json:"date" validate:"required,datetime=2006-01-02"`
	Time        string  `json:"time" validate:"required,datetime=15:04"`
	Price       float64 `json:"price" validate:"gte=0"`
	TotalSeats  int     `json:"totalSeats" validate:"required,min=1,max=156"`
}

// UpdateTripRequest is the admin patch for a trip. Seat state is not patchable.
type UpdateTripRequest struct {
	Source      *string  `json:"source,omitempty" validate:"omitempty,min=1"`
	Destination *string  `json:"destination,omitempty" validate:"omitempty,min=1"`
	Date        *string  `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Time        *string  `json:"time,omitempty" validate:"omitempty,datetime=15:04"`
	Price       *float64 `json:"price,omitempty" validate:"omitempty,gte=0"`
	TotalSeats  *int     `json:"totalSeats,omitempty" validate:"omitempty,min=1,max=156"`
}
