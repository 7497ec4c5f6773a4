// Package bookings owns appointments: atomic booking, cancellation,
// rescheduling and the status lifecycle.
package bookings

import (
	"fmt"
	"time"

	"github.com/wolfman30/booking-engine/internal/customers"
	"github.com/wolfman30/booking-engine/internal/scheduling"
)

// Status is an appointment lifecycle state.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// ActiveStatuses occupy time on the calendar.
var ActiveStatuses = []Status{StatusScheduled, StatusConfirmed}

// Active reports whether the appointment still blocks its slot.
func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

var (
	ErrAppointmentNotFound = fmt.Errorf("%w: appointment", scheduling.ErrNotFound)
	ErrInvalidTransition   = fmt.Errorf("%w: appointment", scheduling.ErrInvalidState)
)

// Appointment is a booked service for one customer.
type Appointment struct {
	ID              string              `json:"id"`
	BusinessID      string              `json:"business_id"`
	CustomerID      string              `json:"customer_id,omitempty"`
	CustomerName    string              `json:"customer_name"`
	CustomerPhone   string              `json:"customer_phone,omitempty"`
	CustomerEmail   string              `json:"customer_email,omitempty"`
	ServiceID       string              `json:"service_id"`
	ServiceName     string              `json:"service_name"`
	Staff           scheduling.StaffRef `json:"staff_id"`
	StaffName       string              `json:"staff_name,omitempty"`
	Date            string              `json:"date"`
	Start           scheduling.Clock    `json:"-"`
	Time            string              `json:"time"`
	DurationMinutes int                 `json:"duration_minutes"`
	Status          Status              `json:"status"`
	Notes           string              `json:"notes,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// Booking is the calendar footprint of the appointment.
func (a *Appointment) Booking() scheduling.Booking {
	return scheduling.Booking{
		AppointmentID:   a.ID,
		Date:            a.Date,
		Start:           a.Start,
		DurationMinutes: a.DurationMinutes,
		Staff:           a.Staff,
	}
}

// SlotID is the identifier of the slot the appointment occupies.
func (a *Appointment) SlotID() string {
	return scheduling.SlotKey{Date: a.Date, Start: a.Start, Staff: a.Staff}.Encode()
}

// Freed describes the slot released when the appointment stops occupying it.
func (a *Appointment) Freed() scheduling.FreedSlot {
	return scheduling.FreedSlot{
		BusinessID:    a.BusinessID,
		AppointmentID: a.ID,
		ServiceID:     a.ServiceID,
		Date:          a.Date,
		Time:          a.Time,
		Staff:         a.Staff,
		SlotID:        a.SlotID(),
	}
}

func (a *Appointment) clone() *Appointment {
	cp := *a
	return &cp
}

// Placement is where on the calendar an appointment goes.
type Placement struct {
	Date      string
	Start     scheduling.Clock
	Staff     scheduling.StaffRef
	StaffName string
}

func placementOf(key scheduling.SlotKey, staffName string) Placement {
	return Placement{Date: key.Date, Start: key.Start, Staff: key.Staff, StaffName: staffName}
}

// NewAppointment is everything CreateIfFree needs to write an appointment.
type NewAppointment struct {
	BusinessID      string
	ServiceID       string
	ServiceName     string
	DurationMinutes int
	Placement       Placement
	Customer        customers.Identity
	Notes           string
}

func (n NewAppointment) booking() scheduling.Booking {
	return scheduling.Booking{
		Date:            n.Placement.Date,
		Start:           n.Placement.Start,
		DurationMinutes: n.DurationMinutes,
		Staff:           n.Placement.Staff,
	}
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
