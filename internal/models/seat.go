package models

import (
	"fmt"
	"strconv"
	"strings"
)

// SeatsPerRow is the fixed width of the bus seat map
const SeatsPerRow = 6

// MaxSeats is the largest seat map whose rows fit in the letters A to Z
const MaxSeats = 26 * SeatsPerRow

// SeatLabel maps a seat number to its row letter and column, e.g. 7 -> "B1".
// Numbers outside 1..MaxSeats have no label and render as the bare number.
func SeatLabel(n int) string {
	if n < 1 || n > MaxSeats {
		return strconv.Itoa(n)
	}
	row := rune('A' + (n-1)/SeatsPerRow)
	col := (n-1)%SeatsPerRow + 1
	return fmt.Sprintf("%c%d", row, col)
}

// ParseSeatLabel is the inverse of SeatLabel
func ParseSeatLabel(label string) (int, error) {
	label = strings.ToUpper(strings.TrimSpace(label))
	if len(label) < 2 {
		return 0, fmt.Errorf("invalid seat label %q", label)
	}
	row := rune(label[0])
	if row < 'A' || row > 'Z' {
		return 0, fmt.Errorf("invalid seat label %q", label)
	}
	col, err := strconv.Atoi(label[1:])
	if err != nil || col < 1 || col > SeatsPerRow {
		return 0, fmt.Errorf("invalid seat label %q", label)
	}
	return int(row-'A')*SeatsPerRow + col, nil
}

// ParseSeat accepts a seat number ("12") or a label ("B6")
func ParseSeat(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	return ParseSeatLabel(s)
}

// FormatSeatLabels renders seats as "A1, A2" and their numbers as "1, 2"
func FormatSeatLabels(numbers []int) (labels string, nums string) {
	ls := make([]string, len(numbers))
	ns := make([]string, len(numbers))
	for i, n := range numbers {
		ls[i] = SeatLabel(n)
		ns[i] = strconv.Itoa(n)
	}
	return strings.Join(ls, ", "), strings.Join(ns, ", ")
}
