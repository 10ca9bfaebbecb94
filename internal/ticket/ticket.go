// Package ticket renders booking e-tickets as PDF documents.
package ticket

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/phpdave11/gofpdf"

	"github.com/cx-tal-miterani/bus-booking-system/internal/models"
)

// Filename is the download name for a booking's ticket
func Filename(b *models.Booking) string {
	id := b.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("ticket-%s.pdf", id)
}

// Render builds the e-ticket PDF for b
func Render(b *models.Booking) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("E-Ticket", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "E-TICKET")
	pdf.Ln(12)

	if b.Status == models.BookingStatusCancelled {
		pdf.SetTextColor(200, 0, 0)
		pdf.SetFont("Helvetica", "B", 14)
		pdf.Cell(0, 8, "CANCELLED")
		pdf.Ln(10)
		pdf.SetTextColor(0, 0, 0)
	}

	pdf.SetFont("Helvetica", "", 12)
	lines := []string{
		"Booking ID  : " + b.ID,
		"Passenger   : " + safe(b.User.Name, b.User.ID),
		"Route       : " + b.Trip.Source + " -> " + b.Trip.Destination,
		"Departure   : " + b.Trip.Date.Format("Mon, 02 Jan 2006") + " " + b.Trip.Time,
		"Seats       : " + strings.Join(b.SeatLabels(), ", "),
		fmt.Sprintf("Seat numbers: %s", joinInts(b.Seats)),
		"Payment     : " + strings.ToUpper(string(b.PaymentMethod)),
		fmt.Sprintf("Total       : %.2f", b.TotalAmount),
		"Booked on   : " + b.BookingDate.Format("2006-01-02 15:04 MST"),
	}
	for _, s := range lines {
		pdf.Cell(0, 7, s)
		pdf.Ln(7)
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, "Please present this ticket at boarding. One seat per passenger.", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render ticket: %w", err)
	}
	return buf.Bytes(), nil
}

func safe(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ", ")
}
