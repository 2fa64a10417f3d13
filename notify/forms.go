package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Order is a submitted "order online" form.
type Order struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Details string `json:"order"`
}

// Booking is a submitted table reservation.
type Booking struct {
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone"`
	Date            time.Time `json:"date"`
	Time            string    `json:"time"`
	People          string    `json:"people"`
	SpecialRequests string    `json:"specialRequests,omitempty"`
}

// OrderVars returns the template variables of the order email.
func OrderVars(o Order, to string) map[string]string {
	return map[string]string{
		"from_name":  o.Name,
		"from_email": o.Email,
		"from_phone": o.Phone,
		"message":    o.Details,
		"to_email":   to,
		"reply_to":   o.Email,
	}
}

// BookingVars returns the template variables of the booking email.
func BookingVars(b Booking, to string) map[string]string {
	requests := strings.TrimSpace(b.SpecialRequests)
	if requests == "" {
		requests = "None"
	}
	return map[string]string{
		"from_name":        b.Name,
		"from_email":       b.Email,
		"from_phone":       b.Phone,
		"booking_date":     LongDate(b.Date),
		"booking_time":     b.Time,
		"number_of_people": b.People,
		"special_requests": requests,
		"to_email":         to,
		"reply_to":         b.Email,
	}
}

// LongDate formats d as "October 17th, 2026".
func LongDate(d time.Time) string {
	return d.Format("January ") + ordinal(d.Day()) + d.Format(", 2006")
}

func ordinal(n int) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return strconv.Itoa(n) + suffix
}

func orderSummary(o Order) string {
	return fmt.Sprintf("New order from %s\nPhone: %s\nEmail: %s\n\n%s", o.Name, o.Phone, o.Email, o.Details)
}

func bookingSummary(b Booking) string {
	s := fmt.Sprintf("New booking: %s, %s at %s for %s\nPhone: %s\nEmail: %s",
		b.Name, LongDate(b.Date), b.Time, b.People, b.Phone, b.Email)
	if r := strings.TrimSpace(b.SpecialRequests); r != "" {
		s += "\nRequests: " + r
	}
	return s
}
