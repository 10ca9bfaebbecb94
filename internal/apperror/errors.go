// Package apperror defines the error kinds the booking core reports to callers.
package apperror

import (
	"errors"
	"fmt"

	"github.com/cx-tal-miterani/bus-booking-system/internal/models"
	"github.com/cx-tal-miterani/bus-booking-system/internal/storage"
)

type Kind string

const (
	KindNotFound              Kind = "NOT_FOUND"
	KindInvalidRequest        Kind = "INVALID_REQUEST"
	KindSeatConflict          Kind = "SEAT_CONFLICT"
	KindInsufficientInventory Kind = "INSUFFICIENT_INVENTORY"
	KindForbidden             Kind = "FORBIDDEN"
	KindUnauthorized          Kind = "UNAUTHORIZED"
	KindAlreadyCancelled      Kind = "ALREADY_CANCELLED"
	KindTransactionConflict   Kind = "TRANSACTION_CONFLICT"
	KindStorage               Kind = "STORAGE_ERROR"
)

// SeatRef names a seat by number and label in error payloads
type SeatRef struct {
	Number int    `json:"number"`
	Label  string `json:"label"`
}

// Error is a classified failure with a user-facing message
type Error struct {
	Kind    Kind
	Message string
	Seats   []SeatRef
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// Sentinels for errors.Is checks on kind alone
var (
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrInvalidRequest        = &Error{Kind: KindInvalidRequest}
	ErrSeatConflict          = &Error{Kind: KindSeatConflict}
	ErrInsufficientInventory = &Error{Kind: KindInsufficientInventory}
	ErrForbidden             = &Error{Kind: KindForbidden}
	ErrUnauthorized          = &Error{Kind: KindUnauthorized}
	ErrAlreadyCancelled      = &Error{Kind: KindAlreadyCancelled}
	ErrTransactionConflict   = &Error{Kind: KindTransactionConflict}
	ErrStorage               = &Error{Kind: KindStorage}
)

func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: resource + " not found"}
}

func InvalidRequest(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func AlreadyCancelled() *Error {
	return &Error{Kind: KindAlreadyCancelled, Message: "Booking is already cancelled"}
}

func InsufficientInventory(available int) *Error {
	return &Error{
		Kind:    KindInsufficientInventory,
		Message: fmt.Sprintf("Not enough seats available. Only %d seat(s) remaining.", available),
	}
}

func TransactionConflict(err error) *Error {
	return &Error{Kind: KindTransactionConflict, Message: "Booking conflict detected. Please try again.", Err: err}
}

func Storage(err error) *Error {
	return &Error{Kind: KindStorage, Message: "Server error while processing request", Err: err}
}

// SeatsBooked reports seats found booked during the initial availability check
func SeatsBooked(numbers []int) *Error {
	return seatConflict(numbers, "is already booked", "are already booked")
}

// SeatsTaken reports seats that were booked between the check and the write
func SeatsTaken(numbers []int) *Error {
	return seatConflict(numbers, "was just booked by another user", "were just booked by another user")
}

func seatConflict(numbers []int, one, many string) *Error {
	labels, nums := models.FormatSeatLabels(numbers)
	verb := many
	if len(numbers) == 1 {
		verb = one
	}
	refs := make([]SeatRef, len(numbers))
	for i, n := range numbers {
		refs[i] = SeatRef{Number: n, Label: models.SeatLabel(n)}
	}
	return &Error{
		Kind:    KindSeatConflict,
		Message: fmt.Sprintf("Seat(s) %s (%s) %s. Please select different seats.", labels, nums, verb),
		Seats:   refs,
	}
}

// KindOf returns the kind of err, or KindStorage for unclassified errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

// As extracts an *Error from err's chain
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// FromStorage classifies a storage-layer error for resource
func FromStorage(err error, resource string) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return NotFound(resource)
	case errors.Is(err, storage.ErrTxConflict), errors.Is(err, storage.ErrStaleWrite):
		return TransactionConflict(err)
	default:
		return Storage(err)
	}
}
