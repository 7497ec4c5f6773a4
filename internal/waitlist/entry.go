// Package waitlist keeps customers waiting for a service and offers them
// slots freed by cancellations, first come first served.
package waitlist

import (
	"fmt"
	"time"

	"github.com/wolfman30/booking-engine/internal/scheduling"
)

// Status is a waitlist entry state.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusNotified  Status = "notified"
	StatusBooked    Status = "booked"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Response is the customer's answer to a notification.
type Response string

const (
	ResponsePending  Response = "pending"
	ResponseAccepted Response = "accepted"
	ResponseDeclined Response = "declined"
	ResponseExpired  Response = "expired"
)

var (
	ErrEntryNotFound         = fmt.Errorf("%w: waitlist entry", scheduling.ErrNotFound)
	ErrAlreadyNotified       = fmt.Errorf("%w: waitlist entry already has a pending notification", scheduling.ErrInvalidState)
	ErrNoPendingNotification = fmt.Errorf("%w: waitlist entry has no pending notification", scheduling.ErrInvalidState)
	ErrInvalidTransition     = fmt.Errorf("%w: waitlist entry", scheduling.ErrInvalidState)
)

// Entry is one customer waiting for a service.
type Entry struct {
	ID             string    `json:"id"`
	BusinessID     string    `json:"business_id"`
	ServiceID      string    `json:"service_id"`
	CustomerID     string    `json:"customer_id,omitempty"`
	CustomerName   string    `json:"customer_name"`
	CustomerPhone  string    `json:"customer_phone,omitempty"`
	CustomerEmail  string    `json:"customer_email,omitempty"`
	PreferredDates []string  `json:"preferred_dates"`
	PreferredTimes []string  `json:"preferred_times"`
	ContactMethod  string    `json:"contact_method"`
	Status         Status    `json:"status"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (e *Entry) clone() *Entry {
	cp := *e
	cp.PreferredDates = append([]string(nil), e.PreferredDates...)
	cp.PreferredTimes = append([]string(nil), e.PreferredTimes...)
	return &cp
}

// wantsDate reports whether the entry accepts the given date.
func (e *Entry) wantsDate(date string) bool {
	if len(e.PreferredDates) == 0 {
		return true
	}
	for _, d := range e.PreferredDates {
		if d == date {
			return true
		}
	}
	return false
}

// Notification links a notified entry to the slot it was offered.
type Notification struct {
	ID                  string              `json:"id"`
	EntryID             string              `json:"entry_id"`
	BusinessID          string              `json:"business_id"`
	AppointmentID       string              `json:"appointment_id"`
	SlotID              string              `json:"slot_id"`
	ServiceID           string              `json:"service_id"`
	Date                string              `json:"date"`
	Time                string              `json:"time"`
	Staff               scheduling.StaffRef `json:"staff_id"`
	Response            Response            `json:"response"`
	BookedAppointmentID string              `json:"booked_appointment_id,omitempty"`
	NotifiedAt          time.Time           `json:"notified_at"`
	RespondedAt         *time.Time          `json:"responded_at,omitempty"`
}

func (n *Notification) clone() *Notification {
	cp := *n
	if n.RespondedAt != nil {
		t := *n.RespondedAt
		cp.RespondedAt = &t
	}
	return &cp
}
