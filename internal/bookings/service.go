package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/booking-engine/internal/availability"
	"github.com/wolfman30/booking-engine/internal/business"
	"github.com/wolfman30/booking-engine/internal/customers"
	"github.com/wolfman30/booking-engine/internal/observability/metrics"
	"github.com/wolfman30/booking-engine/internal/scheduling"
	"github.com/wolfman30/booking-engine/pkg/logging"
)

var bookingsTracer = otel.Tracer("booking.internal.bookings")

const (
	EventAppointmentBooked      = "appointment.booked"
	EventAppointmentCancelled   = "appointment.cancelled"
	EventAppointmentRescheduled = "appointment.rescheduled"
	EventAppointmentStatus      = "appointment.status_changed"
)

const nothingToCancel = "No upcoming appointment found to cancel."

// SlotResolver validates slot ids and exposes the business clock.
// *availability.Engine satisfies it.
type SlotResolver interface {
	ResolveSlot(ctx context.Context, businessID, serviceID, slotID string) (*availability.ResolvedSlot, error)
	Config(ctx context.Context, businessID string) (*business.Config, error)
	Now() time.Time
}

// SlotReleaseListener is told about every slot freed by a cancellation or
// reschedule.
type SlotReleaseListener interface {
	SlotReleased(ctx context.Context, slot scheduling.FreedSlot) (*scheduling.PromotionResult, error)
}

// EventPublisher records domain events once the change is committed.
type EventPublisher interface {
	Publish(ctx context.Context, businessID, eventType string, payload any) error
}

// BookRequest asks for a slot returned by availability.
type BookRequest struct {
	BusinessID    string `json:"-"`
	ServiceID     string `json:"service_id"`
	SlotID        string `json:"slot_id"`
	CustomerID    string `json:"customer_id,omitempty"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	CustomerEmail string `json:"customer_email,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// Confirmation is returned for a successful booking.
type Confirmation struct {
	ConfirmationID  string              `json:"confirmation_id"`
	ServiceID       string              `json:"service_id"`
	ServiceName     string              `json:"service"`
	Date            string              `json:"date"`
	Time            string              `json:"time"`
	DateDisplay     string              `json:"date_display"`
	TimeDisplay     string              `json:"time_display"`
	DurationMinutes int                 `json:"duration_minutes"`
	Staff           scheduling.StaffRef `json:"staff_id"`
	StaffName       string              `json:"staff_name,omitempty"`
	CustomerID      string              `json:"customer_id"`
	CustomerName    string              `json:"customer_name"`
	Message         string              `json:"message"`
}

// CancelRequest names an appointment directly or by the customer's phone.
type CancelRequest struct {
	BusinessID    string `json:"-"`
	AppointmentID string `json:"appointment_id,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty"`
}

// CancelResult reports a cancellation. Cancelled is false when nothing
// qualified; that is not an error.
type CancelResult struct {
	Cancelled     bool                        `json:"cancelled"`
	AppointmentID string                      `json:"appointment_id,omitempty"`
	Message       string                      `json:"message"`
	Waitlist      *scheduling.PromotionResult `json:"waitlist,omitempty"`
}

type RescheduleRequest struct {
	BusinessID    string `json:"-"`
	AppointmentID string `json:"-"`
	NewSlotID     string `json:"new_slot_id"`
}

type RescheduleResult struct {
	NewConfirmationID string                      `json:"new_confirmation_id"`
	NewDate           string                      `json:"new_date"`
	NewTime           string                      `json:"new_time"`
	NewDateDisplay    string                      `json:"new_date_display"`
	NewTimeDisplay    string                      `json:"new_time_display"`
	ServiceName       string                      `json:"service"`
	StaffName         string                      `json:"staff_name,omitempty"`
	Message           string                      `json:"message"`
	Waitlist          *scheduling.PromotionResult `json:"waitlist,omitempty"`
}

// Service books, cancels and moves appointments.
type Service struct {
	store          Store
	slots          SlotResolver
	listener       SlotReleaseListener
	publisher      EventPublisher
	storageTimeout time.Duration
	logger         *logging.Logger
	metrics        *metrics.SchedulingMetrics
}

func NewService(store Store, slots SlotResolver, logger *logging.Logger) *Service {
	if store == nil {
		panic("bookings: store required")
	}
	if slots == nil {
		panic("bookings: slot resolver required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, slots: slots, storageTimeout: 5 * time.Second, logger: logger}
}

func (s *Service) WithSlotReleaseListener(l SlotReleaseListener) *Service {
	s.listener = l
	return s
}

func (s *Service) WithPublisher(p EventPublisher) *Service {
	s.publisher = p
	return s
}

func (s *Service) WithMetrics(m *metrics.SchedulingMetrics) *Service {
	s.metrics = m
	return s
}

func (s *Service) WithStorageTimeout(d time.Duration) *Service {
	if d > 0 {
		s.storageTimeout = d
	}
	return s
}

// Book validates the slot and commits the appointment atomically. It fails
// with scheduling.ErrSlotTaken if another booking got there first.
func (s *Service) Book(ctx context.Context, req BookRequest) (conf *Confirmation, err error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.business_id", req.BusinessID),
		attribute.String("booking.service_id", req.ServiceID),
		attribute.String("booking.slot_id", req.SlotID),
	)
	defer s.observe(span, "book", time.Now(), &err)

	identity := customers.Identity{
		CustomerID: req.CustomerID,
		Name:       req.CustomerName,
		Phone:      req.CustomerPhone,
		Email:      req.CustomerEmail,
	}.Normalize()
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	resolved, err := s.slots.ResolveSlot(ctx, req.BusinessID, req.ServiceID, req.SlotID)
	if err != nil {
		return nil, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()
	appt, err := s.store.CreateIfFree(storeCtx, NewAppointment{
		BusinessID:      req.BusinessID,
		ServiceID:       resolved.Service.ID,
		ServiceName:     resolved.Service.Name,
		DurationMinutes: resolved.Service.DurationMinutes,
		Placement:       placementOf(resolved.Key, resolved.StaffName),
		Customer:        identity,
		Notes:           req.Notes,
	})
	if err != nil {
		return nil, scheduling.Storage("appointment create", err)
	}

	s.logger.Info("appointment booked",
		"business_id", appt.BusinessID, "appointment_id", appt.ID,
		"service_id", appt.ServiceID, "date", appt.Date, "time", appt.Time, "staff", appt.Staff.String())
	s.publish(ctx, appt.BusinessID, EventAppointmentBooked, appt)

	dateDisplay := scheduling.DisplayDate(appt.Date)
	timeDisplay := appt.Start.Display()
	return &Confirmation{
		ConfirmationID:  appt.ID,
		ServiceID:       appt.ServiceID,
		ServiceName:     appt.ServiceName,
		Date:            appt.Date,
		Time:            appt.Time,
		DateDisplay:     dateDisplay,
		TimeDisplay:     timeDisplay,
		DurationMinutes: appt.DurationMinutes,
		Staff:           appt.Staff,
		StaffName:       appt.StaffName,
		CustomerID:      appt.CustomerID,
		CustomerName:    appt.CustomerName,
		Message:         fmt.Sprintf("Your %s appointment has been booked for %s at %s.", appt.ServiceName, dateDisplay, timeDisplay),
	}, nil
}

// Cancel cancels the named appointment, or the customer's soonest upcoming
// one, then offers the freed slot to the waitlist.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (res *CancelResult, err error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("booking.business_id", req.BusinessID))
	defer s.observe(span, "cancel", time.Now(), &err)

	appt, err := s.cancelTarget(ctx, req)
	if errors.Is(err, ErrAppointmentNotFound) {
		return &CancelResult{Message: nothingToCancel}, nil
	}
	if err != nil {
		return nil, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()
	cancelled, err := s.store.Transition(storeCtx, req.BusinessID, appt.ID, ActiveStatuses, StatusCancelled)
	if errors.Is(err, ErrAppointmentNotFound) || errors.Is(err, ErrInvalidTransition) {
		return &CancelResult{Message: nothingToCancel}, nil
	}
	if err != nil {
		return nil, scheduling.Storage("appointment cancel", err)
	}

	s.logger.Info("appointment cancelled", "business_id", req.BusinessID, "appointment_id", cancelled.ID)
	s.publish(ctx, req.BusinessID, EventAppointmentCancelled, cancelled)

	return &CancelResult{
		Cancelled:     true,
		AppointmentID: cancelled.ID,
		Message: fmt.Sprintf("Your %s on %s at %s has been cancelled.",
			cancelled.ServiceName, scheduling.DisplayDate(cancelled.Date), cancelled.Start.Display()),
		Waitlist: s.release(ctx, cancelled.Freed()),
	}, nil
}

func (s *Service) cancelTarget(ctx context.Context, req CancelRequest) (*Appointment, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()

	if req.AppointmentID != "" {
		appt, err := s.store.Get(storeCtx, req.BusinessID, req.AppointmentID)
		if err != nil {
			return nil, scheduling.Storage("appointment get", err)
		}
		if !appt.Status.Active() {
			return nil, ErrAppointmentNotFound
		}
		return appt, nil
	}

	phone := customers.NormalizePhone(req.CustomerPhone)
	if phone == "" {
		return nil, fmt.Errorf("%w: appointment id or customer phone required", scheduling.ErrInvalidCustomer)
	}
	cfg, err := s.slots.Config(ctx, req.BusinessID)
	if err != nil {
		return nil, err
	}
	today, _ := cfg.LocalNow(s.slots.Now())
	appt, err := s.store.FindUpcomingByPhone(storeCtx, req.BusinessID, phone, scheduling.FormatDate(today))
	if err != nil {
		return nil, scheduling.Storage("appointment find by phone", err)
	}
	return appt, nil
}

// Reschedule moves an active appointment to a new slot in place and offers
// the old slot to the waitlist.
func (s *Service) Reschedule(ctx context.Context, req RescheduleRequest) (res *RescheduleResult, err error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.reschedule")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.business_id", req.BusinessID),
		attribute.String("booking.appointment_id", req.AppointmentID),
		attribute.String("booking.slot_id", req.NewSlotID),
	)
	defer s.observe(span, "reschedule", time.Now(), &err)

	current, err := s.Get(ctx, req.BusinessID, req.AppointmentID)
	if err != nil {
		return nil, err
	}
	if !current.Status.Active() {
		return nil, ErrAppointmentNotFound
	}
	resolved, err := s.slots.ResolveSlot(ctx, req.BusinessID, current.ServiceID, req.NewSlotID)
	if err != nil {
		return nil, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()
	before, after, err := s.store.Move(storeCtx, req.BusinessID, req.AppointmentID, placementOf(resolved.Key, resolved.StaffName))
	if err != nil {
		return nil, scheduling.Storage("appointment move", err)
	}

	s.logger.Info("appointment rescheduled", "business_id", req.BusinessID, "appointment_id", after.ID,
		"from", before.SlotID(), "to", after.SlotID())
	s.publish(ctx, req.BusinessID, EventAppointmentRescheduled, map[string]any{
		"appointment":   after,
		"previous_slot": before.SlotID(),
	})

	dateDisplay := scheduling.DisplayDate(after.Date)
	timeDisplay := after.Start.Display()
	result := &RescheduleResult{
		NewConfirmationID: after.ID,
		NewDate:           after.Date,
		NewTime:           after.Time,
		NewDateDisplay:    dateDisplay,
		NewTimeDisplay:    timeDisplay,
		ServiceName:       after.ServiceName,
		StaffName:         after.StaffName,
		Message:           fmt.Sprintf("Your %s has been rescheduled to %s at %s.", after.ServiceName, dateDisplay, timeDisplay),
	}
	if before.SlotID() != after.SlotID() {
		result.Waitlist = s.release(ctx, before.Freed())
	}
	return result, nil
}

// Confirm marks a scheduled appointment as confirmed by the customer.
func (s *Service) Confirm(ctx context.Context, businessID, appointmentID string) (*Appointment, error) {
	return s.transition(ctx, "confirm", businessID, appointmentID, []Status{StatusScheduled}, StatusConfirmed)
}

// Complete marks an active appointment as attended.
func (s *Service) Complete(ctx context.Context, businessID, appointmentID string) (*Appointment, error) {
	return s.transition(ctx, "complete", businessID, appointmentID, ActiveStatuses, StatusCompleted)
}

// NoShow marks an active appointment as missed.
func (s *Service) NoShow(ctx context.Context, businessID, appointmentID string) (*Appointment, error) {
	return s.transition(ctx, "no_show", businessID, appointmentID, ActiveStatuses, StatusNoShow)
}

func (s *Service) transition(ctx context.Context, op, businessID, appointmentID string, from []Status, to Status) (appt *Appointment, err error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings."+op)
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.business_id", businessID),
		attribute.String("booking.appointment_id", appointmentID),
	)
	defer s.observe(span, op, time.Now(), &err)

	storeCtx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()
	appt, err = s.store.Transition(storeCtx, businessID, appointmentID, from, to)
	if err != nil {
		return nil, scheduling.Storage("appointment "+op, err)
	}
	s.publish(ctx, businessID, EventAppointmentStatus, appt)
	return appt, nil
}

func (s *Service) Get(ctx context.Context, businessID, appointmentID string) (*Appointment, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()
	appt, err := s.store.Get(storeCtx, businessID, appointmentID)
	if err != nil {
		return nil, scheduling.Storage("appointment get", err)
	}
	return appt, nil
}

// ListForDate returns every appointment on a date regardless of status.
func (s *Service) ListForDate(ctx context.Context, businessID, date string) ([]Appointment, error) {
	if _, err := scheduling.ParseDate(date); err != nil {
		return nil, fmt.Errorf("%w: %v", scheduling.ErrInvalidRange, err)
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()
	list, err := s.store.ListForDate(storeCtx, businessID, date)
	if err != nil {
		return nil, scheduling.Storage("appointments for date", err)
	}
	return list, nil
}

// release hands a freed slot to the listener. Failures are logged; the
// cancellation or move has already committed.
func (s *Service) release(ctx context.Context, slot scheduling.FreedSlot) *scheduling.PromotionResult {
	if s.listener == nil {
		return nil
	}
	result, err := s.listener.SlotReleased(ctx, slot)
	if err != nil {
		s.logger.Error("waitlist promotion failed", "business_id", slot.BusinessID,
			"appointment_id", slot.AppointmentID, "slot_id", slot.SlotID, "error", err)
		return nil
	}
	return result
}

func (s *Service) publish(ctx context.Context, businessID, eventType string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, businessID, eventType, payload); err != nil {
		s.logger.Warn("event publish failed", "business_id", businessID, "event_type", eventType, "error", err)
	}
}

func (s *Service) observe(span trace.Span, op string, started time.Time, errp *error) {
	outcome := "ok"
	if err := *errp; err != nil {
		span.RecordError(err)
		outcome = Outcome(err)
	}
	s.metrics.ObserveOperation(op, outcome, time.Since(started).Seconds())
}

// Outcome labels an error for metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case scheduling.IsConflict(err):
		return "conflict"
	case scheduling.IsInvalid(err):
		return "invalid"
	case errors.Is(err, scheduling.ErrNotFound):
		return "not_found"
	case errors.Is(err, scheduling.ErrInvalidState):
		return "invalid_state"
	case scheduling.IsStorage(err):
		return "storage_error"
	default:
		return "error"
	}
}
