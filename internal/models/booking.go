package models

import (
	"encoding/json"
	"strconv"
	"time"
)

type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

type PaymentMethod string

const (
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodUPI      PaymentMethod = "upi"
	PaymentMethodRazorpay PaymentMethod = "razorpay"
)

// Valid reports whether m is one of the accepted payment methods
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodCash, PaymentMethodUPI, PaymentMethodRazorpay:
		return true
	}
	return false
}

// Role values carried in identity claims
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Actor is the authenticated caller of an operation
type Actor struct {
	UserID string `json:"id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role"`
}

// IsAdmin reports whether the actor carries the admin role
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// UserRef is the user snapshot stored on a booking
type UserRef struct {
	ID    string `json:"id" bson:"id"`
	Name  string `json:"name,omitempty" bson:"name,omitempty"`
	Email string `json:"email,omitempty" bson:"email,omitempty"`
}

// TripSummary is the trip snapshot stored on a booking
type TripSummary struct {
	ID          string    `json:"id" bson:"id"`
	Source      string    `json:"source" bson:"source"`
	Destination string    `json:"destination" bson:"destination"`
	Date        time.Time `json:"date" bson:"date"`
	Time        string    `json:"time" bson:"time"`
	Price       float64   `json:"price" bson:"price"`
}

// Booking represents a user's reservation of one or more seats on a trip
type Booking struct {
	ID            string        `json:"id" bson:"_id"`
	User          UserRef       `json:"user" bson:"user"`
	Trip          TripSummary   `json:"trip" bson:"trip"`
	Seats         []int         `json:"seats" bson:"seats"`
	TotalAmount   float64       `json:"totalAmount" bson:"totalAmount"`
	PaymentMethod PaymentMethod `json:"paymentMethod" bson:"paymentMethod"`
	Status        BookingStatus `json:"status" bson:"status"`
	BookingDate   time.Time     `json:"bookingDate" bson:"bookingDate"`
	CreatedAt     time.Time     `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt" bson:"updatedAt"`
}

// SeatLabels returns the display labels of the booked seats
func (b *Booking) SeatLabels() []string {
	labels := make([]string, len(b.Seats))
	for i, n := range b.Seats {
		labels[i] = SeatLabel(n)
	}
	return labels
}

// BookingFilter narrows booking listings. An empty UserID matches all users.
type BookingFilter struct {
	UserID string
}

// UserBookings groups a user's bookings for the "my bookings" view
type UserBookings struct {
	Upcoming []Booking `json:"upcoming"`
	Past     []Booking `json:"past"`
	All      []Booking `json:"all"`
}

// SeatInput is one requested seat as sent by a client: a number, a numeric
// string or a seat label. The raw text is kept so bad entries can be named.
type SeatInput string

func (s *SeatInput) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case string:
		*s = SeatInput(t)
	case float64:
		*s = SeatInput(strconv.FormatFloat(t, 'f', -1, 64))
	default:
		*s = SeatInput(string(b))
	}
	return nil
}

// CreateBookingRequest is the payload for booking seats on a trip
type CreateBookingRequest struct {
	TripID        string        `json:"tripId" validate:"required"`
	Seats         []SeatInput   `json:"seats"`
	PaymentMethod PaymentMethod `json:"paymentMethod" validate:"required"`
}
