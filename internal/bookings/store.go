package bookings

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-engine/internal/customers"
	"github.com/wolfman30/booking-engine/internal/scheduling"
)

// Store persists appointments. CreateIfFree and Move run the conflict check
// and the write as one atomic step; they return scheduling.ErrSlotTaken when
// the target collides with an active appointment.
type Store interface {
	CreateIfFree(ctx context.Context, req NewAppointment) (*Appointment, error)
	// Move relocates an active appointment, ignoring its own footprint in the
	// conflict check. It returns the appointment before and after the move.
	Move(ctx context.Context, businessID, appointmentID string, to Placement) (*Appointment, *Appointment, error)
	Get(ctx context.Context, businessID, appointmentID string) (*Appointment, error)
	// FindUpcomingByPhone returns the soonest active appointment on or after fromDate.
	FindUpcomingByPhone(ctx context.Context, businessID, phone, fromDate string) (*Appointment, error)
	// Transition moves an appointment to `to` if its current status is one of `from`.
	Transition(ctx context.Context, businessID, appointmentID string, from []Status, to Status) (*Appointment, error)
	ListActive(ctx context.Context, businessID, fromDate, toDate string) ([]scheduling.Booking, error)
	ListForDate(ctx context.Context, businessID, date string) ([]Appointment, error)
}

// MemoryStore is an in-process Store. Writes for one business are serialized
// by a per-business mutex, which makes check-then-insert atomic.
type MemoryStore struct {
	mu           sync.Mutex
	locks        map[string]*sync.Mutex
	appointments map[string]*Appointment
	customers    *customers.MemoryDirectory
	now          func() time.Time
}

// NewMemoryStore builds an empty store. A nil directory gets a private one.
func NewMemoryStore(directory *customers.MemoryDirectory) *MemoryStore {
	if directory == nil {
		directory = customers.NewMemoryDirectory()
	}
	return &MemoryStore{
		locks:        make(map[string]*sync.Mutex),
		appointments: make(map[string]*Appointment),
		customers:    directory,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) lock(businessID string) func() {
	m.mu.Lock()
	l, ok := m.locks[businessID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[businessID] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// activeOn must be called with the business lock held.
func (m *MemoryStore) activeOn(businessID, date string) []scheduling.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []scheduling.Booking
	for _, a := range m.appointments {
		if a.BusinessID == businessID && a.Date == date && a.Status.Active() {
			out = append(out, a.Booking())
		}
	}
	return out
}

func (m *MemoryStore) CreateIfFree(ctx context.Context, req NewAppointment) (*Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	unlock := m.lock(req.BusinessID)
	defer unlock()

	if clash, ok := scheduling.FirstConflict(req.booking(), m.activeOn(req.BusinessID, req.Placement.Date), ""); ok {
		return nil, fmt.Errorf("%w: overlaps appointment %s", scheduling.ErrSlotTaken, clash.AppointmentID)
	}

	customer := m.customers.Resolve(req.BusinessID, req.Customer)
	now := m.now()
	appt := &Appointment{
		ID:              uuid.NewString(),
		BusinessID:      req.BusinessID,
		CustomerID:      customer.ID,
		CustomerName:    req.Customer.Name,
		CustomerPhone:   req.Customer.Phone,
		CustomerEmail:   req.Customer.Email,
		ServiceID:       req.ServiceID,
		ServiceName:     req.ServiceName,
		Staff:           req.Placement.Staff,
		StaffName:       req.Placement.StaffName,
		Date:            req.Placement.Date,
		Start:           req.Placement.Start,
		Time:            req.Placement.Start.String(),
		DurationMinutes: req.DurationMinutes,
		Status:          StatusScheduled,
		Notes:           req.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if appt.CustomerName == "" {
		appt.CustomerName = customer.FullName()
	}
	if err := m.customers.RecordVisit(req.BusinessID, customer.ID, req.ServiceID, appt.Date); err != nil {
		return nil, fmt.Errorf("bookings: record visit: %w", err)
	}

	m.mu.Lock()
	m.appointments[appt.ID] = appt
	m.mu.Unlock()
	return appt.clone(), nil
}

func (m *MemoryStore) Move(ctx context.Context, businessID, appointmentID string, to Placement) (*Appointment, *Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	unlock := m.lock(businessID)
	defer unlock()

	m.mu.Lock()
	appt, ok := m.appointments[appointmentID]
	m.mu.Unlock()
	if !ok || appt.BusinessID != businessID || !appt.Status.Active() {
		return nil, nil, ErrAppointmentNotFound
	}

	candidate := scheduling.Booking{Date: to.Date, Start: to.Start, DurationMinutes: appt.DurationMinutes, Staff: to.Staff}
	if clash, ok := scheduling.FirstConflict(candidate, m.activeOn(businessID, to.Date), appointmentID); ok {
		return nil, nil, fmt.Errorf("%w: overlaps appointment %s", scheduling.ErrSlotTaken, clash.AppointmentID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	before := appt.clone()
	appt.Date = to.Date
	appt.Start = to.Start
	appt.Time = to.Start.String()
	appt.Staff = to.Staff
	appt.StaffName = to.StaffName
	appt.UpdatedAt = m.now()
	return before, appt.clone(), nil
}

func (m *MemoryStore) Get(ctx context.Context, businessID, appointmentID string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.appointments[appointmentID]
	if !ok || appt.BusinessID != businessID {
		return nil, ErrAppointmentNotFound
	}
	return appt.clone(), nil
}

func (m *MemoryStore) FindUpcomingByPhone(ctx context.Context, businessID, phone, fromDate string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *Appointment
	for _, a := range m.appointments {
		if a.BusinessID != businessID || a.CustomerPhone != phone || !a.Status.Active() || a.Date < fromDate {
			continue
		}
		if best == nil || a.Date < best.Date || (a.Date == best.Date && a.Start < best.Start) {
			best = a
		}
	}
	if best == nil {
		return nil, ErrAppointmentNotFound
	}
	return best.clone(), nil
}

func (m *MemoryStore) Transition(ctx context.Context, businessID, appointmentID string, from []Status, to Status) (*Appointment, error) {
	unlock := m.lock(businessID)
	defer unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.appointments[appointmentID]
	if !ok || appt.BusinessID != businessID {
		return nil, ErrAppointmentNotFound
	}
	if !containsStatus(from, appt.Status) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, appt.Status, to)
	}
	appt.Status = to
	appt.UpdatedAt = m.now()
	return appt.clone(), nil
}

func (m *MemoryStore) ListActive(ctx context.Context, businessID, fromDate, toDate string) ([]scheduling.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []scheduling.Booking
	for _, a := range m.appointments {
		if a.BusinessID == businessID && a.Status.Active() && a.Date >= fromDate && a.Date <= toDate {
			out = append(out, a.Booking())
		}
	}
	return out, nil
}

func (m *MemoryStore) ListForDate(ctx context.Context, businessID, date string) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.BusinessID == businessID && a.Date == date {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
