// Package customers resolves the person behind a booking and keeps their
// visit counters.
package customers

import (
	"errors"
	"strings"
	"time"

	"github.com/wolfman30/booking-engine/internal/scheduling"
)

// ErrNotFound is returned when a customer does not exist for the business.
var ErrNotFound = errors.New("customers: not found")

// Customer is a person who has booked with a business.
type Customer struct {
	ID                string    `json:"id"`
	BusinessID        string    `json:"business_id"`
	FirstName         string    `json:"first_name"`
	LastName          string    `json:"last_name"`
	Phone             string    `json:"phone,omitempty"`
	Email             string    `json:"email,omitempty"`
	VisitCount        int       `json:"visit_count"`
	LastVisitDate     string    `json:"last_visit_date,omitempty"`
	FavoriteServiceID string    `json:"favorite_service_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// FullName joins first and last name.
func (c Customer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Identity is the customer information supplied with a booking.
type Identity struct {
	CustomerID string `json:"customer_id,omitempty"`
	Name       string `json:"customer_name"`
	Phone      string `json:"customer_phone"`
	Email      string `json:"customer_email,omitempty"`
}

// Normalize trims fields, converts the phone to E.164 and lowercases the email.
func (i Identity) Normalize() Identity {
	return Identity{
		CustomerID: strings.TrimSpace(i.CustomerID),
		Name:       strings.Join(strings.Fields(i.Name), " "),
		Phone:      NormalizePhone(i.Phone),
		Email:      strings.ToLower(strings.TrimSpace(i.Email)),
	}
}

// Validate requires a name and at least one contact, unless a known
// customer id is supplied.
func (i Identity) Validate() error {
	if i.CustomerID != "" {
		return nil
	}
	if i.Name == "" || (i.Phone == "" && i.Email == "") {
		return scheduling.ErrInvalidCustomer
	}
	return nil
}

// SplitName splits on the first space: "Mary Ann Lee" is first "Mary",
// last "Ann Lee".
func SplitName(name string) (string, string) {
	first, last, _ := strings.Cut(strings.TrimSpace(name), " ")
	return first, strings.TrimSpace(last)
}

// NormalizePhone returns an E.164 value. Ten-digit numbers are treated as
// North American.
func NormalizePhone(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	if len(digits) == 10 && !strings.HasPrefix(value, "+") {
		digits = "1" + digits
	}
	return "+" + digits
}
