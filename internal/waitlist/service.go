package waitlist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/booking-engine/internal/bookings"
	"github.com/wolfman30/booking-engine/internal/business"
	"github.com/wolfman30/booking-engine/internal/customers"
	"github.com/wolfman30/booking-engine/internal/observability/metrics"
	"github.com/wolfman30/booking-engine/internal/scheduling"
	"github.com/wolfman30/booking-engine/pkg/logging"
)

var waitlistTracer = otel.Tracer("booking.internal.waitlist")

const (
	EventEntryAdded    = "waitlist.added"
	EventEntryNotified = "waitlist.notified"
	EventEntryBooked   = "waitlist.booked"
	EventEntryDeclined = "waitlist.declined"
	EventEntryExpired  = "waitlist.expired"
)

// Booker commits a booking for an accepted offer and cancels it again when
// the offer closed underneath the accept. *bookings.Service satisfies it.
type Booker interface {
	Book(ctx context.Context, req bookings.BookRequest) (*bookings.Confirmation, error)
	Cancel(ctx context.Context, req bookings.CancelRequest) (*bookings.CancelResult, error)
}

type AddRequest struct {
	BusinessID     string   `json:"-"`
	ServiceID      string   `json:"service_id"`
	CustomerID     string   `json:"customer_id,omitempty"`
	CustomerName   string   `json:"customer_name"`
	CustomerPhone  string   `json:"customer_phone"`
	CustomerEmail  string   `json:"customer_email,omitempty"`
	PreferredDates []string `json:"preferred_dates,omitempty"`
	PreferredTimes []string `json:"preferred_times,omitempty"`
	ContactMethod  string   `json:"contact_method,omitempty"`
	Notes          string   `json:"notes,omitempty"`
}

// AddResult reports the entry and its first-come-first-served position.
// Updated is set when an existing waiting entry absorbed the request.
type AddResult struct {
	EntryID  string `json:"entry_id"`
	Position int    `json:"position"`
	Updated  bool   `json:"updated"`
	Message  string `json:"message"`
}

type RespondRequest struct {
	BusinessID string `json:"-"`
	EntryID    string `json:"-"`
	Accept     bool   `json:"accept"`
}

type RespondResult struct {
	Entry        *Entry                 `json:"entry"`
	Notification *Notification          `json:"notification"`
	Confirmation *bookings.Confirmation `json:"confirmation,omitempty"`
	Message      string                 `json:"message"`
}

// Service matches freed slots to waiting customers.
type Service struct {
	store          Store
	configs        business.Source
	booker         Booker
	publisher      bookings.EventPublisher
	fallbackLimit  int
	storageTimeout time.Duration
	now            func() time.Time
	logger         *logging.Logger
	metrics        *metrics.SchedulingMetrics
}

func NewService(store Store, configs business.Source, logger *logging.Logger) *Service {
	if store == nil || configs == nil {
		panic("waitlist: store and config source required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:          store,
		configs:        configs,
		fallbackLimit:  3,
		storageTimeout: 5 * time.Second,
		now:            func() time.Time { return time.Now().UTC() },
		logger:         logger,
	}
}

// WithBooker enables Respond(accept). It is set after construction because
// the booking service in turn notifies this service of freed slots.
func (s *Service) WithBooker(b Booker) *Service {
	s.booker = b
	return s
}

func (s *Service) WithPublisher(p bookings.EventPublisher) *Service {
	s.publisher = p
	return s
}

func (s *Service) WithMetrics(m *metrics.SchedulingMetrics) *Service {
	s.metrics = m
	return s
}

// WithFallbackLimit sets how many unfiltered candidates are returned when no
// entry matches the requested time of day.
func (s *Service) WithFallbackLimit(n int) *Service {
	if n > 0 {
		s.fallbackLimit = n
	}
	return s
}

func (s *Service) WithStorageTimeout(d time.Duration) *Service {
	if d > 0 {
		s.storageTimeout = d
	}
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storageTimeout)
}

// Add puts a customer on the waitlist. A waiting entry for the same service
// and contact has its preferences replaced instead.
func (s *Service) Add(ctx context.Context, req AddRequest) (*AddResult, error) {
	ctx, span := waitlistTracer.Start(ctx, "waitlist.add")
	defer span.End()
	span.SetAttributes(attribute.String("booking.business_id", req.BusinessID), attribute.String("booking.service_id", req.ServiceID))

	identity := customers.Identity{CustomerID: req.CustomerID, Name: req.CustomerName, Phone: req.CustomerPhone, Email: req.CustomerEmail}.Normalize()
	if identity.Name == "" || (identity.Phone == "" && identity.Email == "") {
		return nil, scheduling.ErrInvalidCustomer
	}
	service, err := s.service(ctx, req.BusinessID, req.ServiceID)
	if err != nil {
		return nil, err
	}
	dates, err := normalizeDates(req.PreferredDates)
	if err != nil {
		return nil, err
	}
	times := normalizeTimes(req.PreferredTimes)

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	existing, err := s.store.FindWaitingByContact(storeCtx, req.BusinessID, service.ID, identity.Phone, identity.Email)
	switch {
	case err == nil:
		updated, err := s.store.UpdatePreferences(storeCtx, req.BusinessID, existing.ID, dates, times, req.Notes)
		if err != nil {
			return nil, scheduling.Storage("waitlist update", err)
		}
		position, err := s.position(storeCtx, updated)
		if err != nil {
			return nil, err
		}
		return &AddResult{
			EntryID:  updated.ID,
			Position: position,
			Updated:  true,
			Message:  fmt.Sprintf("You're already on the waitlist for %s. We've updated your preferences.", service.Name),
		}, nil
	case !errors.Is(err, ErrEntryNotFound):
		return nil, scheduling.Storage("waitlist find", err)
	}

	contact := req.ContactMethod
	if contact == "" {
		contact = "sms"
		if identity.Phone == "" {
			contact = "email"
		}
	}
	now := s.now()
	entry := &Entry{
		ID:             uuid.NewString(),
		BusinessID:     req.BusinessID,
		ServiceID:      service.ID,
		CustomerID:     identity.CustomerID,
		CustomerName:   identity.Name,
		CustomerPhone:  identity.Phone,
		CustomerEmail:  identity.Email,
		PreferredDates: dates,
		PreferredTimes: times,
		ContactMethod:  contact,
		Status:         StatusWaiting,
		Notes:          req.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Insert(storeCtx, entry); err != nil {
		return nil, scheduling.Storage("waitlist insert", err)
	}
	position, err := s.position(storeCtx, entry)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveWaitlist("added")
	s.logger.Info("waitlist entry added", "business_id", entry.BusinessID, "entry_id", entry.ID, "service_id", entry.ServiceID, "position", position)
	s.publish(ctx, entry.BusinessID, EventEntryAdded, entry)
	return &AddResult{
		EntryID:  entry.ID,
		Position: position,
		Message:  fmt.Sprintf("You're #%d on the waitlist for %s. We'll reach out when a spot opens up.", position, service.Name),
	}, nil
}

func (s *Service) position(ctx context.Context, entry *Entry) (int, error) {
	waiting, err := s.store.ListWaiting(ctx, entry.BusinessID, entry.ServiceID)
	if err != nil {
		return 0, scheduling.Storage("waitlist list", err)
	}
	for i, e := range waiting {
		if e.ID == entry.ID {
			return i + 1, nil
		}
	}
	return len(waiting), nil
}

func (s *Service) service(ctx context.Context, businessID, serviceID string) (business.Service, error) {
	cfgCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	cfg, err := s.configs.Get(cfgCtx, businessID)
	if err != nil {
		return business.Service{}, scheduling.Storage("business config", err)
	}
	svc, ok := cfg.Service(serviceID)
	if !ok {
		return business.Service{}, fmt.Errorf("%w: %q", scheduling.ErrUnknownService, serviceID)
	}
	return svc, nil
}

// FindCandidates returns waiting entries for the service that accept date,
// oldest first. timeOfDay may be a bucket name, free text or HH:MM; when it
// filters out everyone, the oldest entries are returned unfiltered, up to
// the fallback limit.
func (s *Service) FindCandidates(ctx context.Context, businessID, serviceID, date, timeOfDay string) ([]Entry, error) {
	ctx, span := waitlistTracer.Start(ctx, "waitlist.find_candidates")
	defer span.End()

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	waiting, err := s.store.ListWaiting(storeCtx, businessID, serviceID)
	if err != nil {
		return nil, scheduling.Storage("waitlist list", err)
	}

	dated := make([]Entry, 0, len(waiting))
	for _, e := range waiting {
		if date == "" || e.wantsDate(date) {
			dated = append(dated, e)
		}
	}

	target, ok := targetWindow(timeOfDay)
	if !ok {
		span.SetAttributes(attribute.Int("booking.candidates", len(dated)))
		return dated, nil
	}
	matched := make([]Entry, 0, len(dated))
	for _, e := range dated {
		if wantsTime(e.PreferredTimes, target) {
			matched = append(matched, e)
		}
	}
	if len(matched) == 0 && len(dated) > 0 {
		limit := s.fallbackLimit
		if len(dated) < limit {
			limit = len(dated)
		}
		s.logger.Info("no waitlist entry matches time of day, using oldest entries",
			"business_id", businessID, "service_id", serviceID, "time_of_day", timeOfDay, "fallback", limit)
		matched = dated[:limit]
	}
	span.SetAttributes(attribute.Int("booking.candidates", len(matched)))
	return matched, nil
}

// targetWindow interprets the freed time. An exact HH:MM becomes a one-minute
// window so that it matches any preference containing that start.
func targetWindow(timeOfDay string) (scheduling.TimeWindow, bool) {
	timeOfDay = strings.TrimSpace(timeOfDay)
	if timeOfDay == "" {
		return scheduling.TimeWindow{}, false
	}
	if c, err := scheduling.ParseClock(timeOfDay); err == nil && c < scheduling.EndOfDay {
		return scheduling.TimeWindow{Start: c, End: c.Add(1)}, true
	}
	return scheduling.ParseTimePreference(timeOfDay)
}

// wantsTime reports whether any stated preference overlaps target. No
// preferences, or none that can be understood, means any time.
func wantsTime(prefs []string, target scheduling.TimeWindow) bool {
	understood := false
	for _, p := range prefs {
		w, ok := scheduling.ParseTimePreference(p)
		if !ok {
			continue
		}
		understood = true
		if w.Intersects(target) {
			return true
		}
	}
	return !understood
}

// Notify offers a freed slot to a waiting entry.
func (s *Service) Notify(ctx context.Context, businessID, entryID string, slot scheduling.FreedSlot) (*Notification, error) {
	ctx, span := waitlistTracer.Start(ctx, "waitlist.notify")
	defer span.End()
	span.SetAttributes(attribute.String("booking.business_id", businessID), attribute.String("booking.entry_id", entryID))

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	entry, err := s.store.Get(storeCtx, businessID, entryID)
	if err != nil {
		return nil, scheduling.Storage("waitlist get", err)
	}
	serviceID := slot.ServiceID
	if serviceID == "" {
		serviceID = entry.ServiceID
	}
	n := &Notification{
		ID:            uuid.NewString(),
		EntryID:       entryID,
		BusinessID:    businessID,
		AppointmentID: slot.AppointmentID,
		SlotID:        slot.SlotID,
		ServiceID:     serviceID,
		Date:          slot.Date,
		Time:          slot.Time,
		Staff:         slot.Staff,
		Response:      ResponsePending,
		NotifiedAt:    s.now(),
	}
	if _, err := s.store.MarkNotified(storeCtx, n); err != nil {
		span.RecordError(err)
		return nil, scheduling.Storage("waitlist notify", err)
	}
	s.metrics.ObserveWaitlist("notified")
	s.logger.Info("waitlist entry notified", "business_id", businessID, "entry_id", entryID, "slot_id", n.SlotID)
	s.publish(ctx, businessID, EventEntryNotified, map[string]any{"entry": entry, "notification": n})
	return n, nil
}

// Respond records the customer's answer. Accepting books the offered slot;
// if it is gone the offer expires and the entry goes back to waiting.
// Declining never notifies the next candidate; that is the caller's call.
func (s *Service) Respond(ctx context.Context, req RespondRequest) (*RespondResult, error) {
	ctx, span := waitlistTracer.Start(ctx, "waitlist.respond")
	defer span.End()
	span.SetAttributes(attribute.String("booking.entry_id", req.EntryID), attribute.Bool("booking.accept", req.Accept))

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	entry, err := s.store.Get(storeCtx, req.BusinessID, req.EntryID)
	if err != nil {
		return nil, scheduling.Storage("waitlist get", err)
	}
	pending, err := s.store.PendingNotification(storeCtx, req.BusinessID, req.EntryID)
	if err != nil {
		return nil, scheduling.Storage("waitlist pending notification", err)
	}

	if !req.Accept {
		e, n, err := s.store.Resolve(storeCtx, req.BusinessID, req.EntryID, StatusWaiting, ResponseDeclined, "")
		if err != nil {
			return nil, scheduling.Storage("waitlist resolve", err)
		}
		s.metrics.ObserveWaitlist("declined")
		s.publish(ctx, req.BusinessID, EventEntryDeclined, n)
		return &RespondResult{Entry: e, Notification: n, Message: "No problem, you're still on the waitlist."}, nil
	}

	if s.booker == nil {
		return nil, errors.New("waitlist: booker not configured")
	}
	conf, bookErr := s.booker.Book(ctx, bookings.BookRequest{
		BusinessID:    req.BusinessID,
		ServiceID:     pending.ServiceID,
		SlotID:        pending.SlotID,
		CustomerID:    entry.CustomerID,
		CustomerName:  entry.CustomerName,
		CustomerPhone: entry.CustomerPhone,
		CustomerEmail: entry.CustomerEmail,
		Notes:         entry.Notes,
	})
	if bookErr != nil {
		if !scheduling.IsConflict(bookErr) && !errors.Is(bookErr, scheduling.ErrInvalidSlot) {
			span.RecordError(bookErr)
			return nil, bookErr
		}
		if _, _, err := s.store.Resolve(storeCtx, req.BusinessID, req.EntryID, StatusWaiting, ResponseExpired, ""); err != nil {
			s.logger.Error("failed to expire stale waitlist offer", "entry_id", req.EntryID, "error", err)
		}
		s.metrics.ObserveWaitlist("offer_lost")
		return nil, bookErr
	}

	e, n, err := s.store.Resolve(storeCtx, req.BusinessID, req.EntryID, StatusBooked, ResponseAccepted, conf.ConfirmationID)
	if err != nil {
		// The offer expired or was cancelled while the booking committed.
		// The appointment has no entry pointing at it, so give the slot back.
		span.RecordError(err)
		s.releaseOrphan(ctx, req.BusinessID, req.EntryID, conf.ConfirmationID)
		if errors.Is(err, ErrNoPendingNotification) {
			return nil, fmt.Errorf("waitlist: offer for entry %s closed before it was accepted: %w", req.EntryID, err)
		}
		return nil, scheduling.Storage("waitlist resolve", err)
	}
	s.metrics.ObserveWaitlist("booked")
	s.publish(ctx, req.BusinessID, EventEntryBooked, n)
	return &RespondResult{Entry: e, Notification: n, Confirmation: conf, Message: conf.Message}, nil
}

func (s *Service) releaseOrphan(ctx context.Context, businessID, entryID, appointmentID string) {
	log := s.logger.With("business_id", businessID, "entry_id", entryID, "appointment_id", appointmentID)
	res, err := s.booker.Cancel(ctx, bookings.CancelRequest{BusinessID: businessID, AppointmentID: appointmentID})
	if err != nil {
		log.Error("waitlist booking orphaned; cancel failed", "error", err)
		return
	}
	if !res.Cancelled {
		log.Warn("waitlist booking orphaned; nothing to cancel")
		return
	}
	s.metrics.ObserveWaitlist("accept_reverted")
	log.Warn("waitlist booking cancelled after offer closed")
}

// Expire lapses a notified entry whose offer went unanswered.
func (s *Service) Expire(ctx context.Context, businessID, entryID string) (*Entry, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	e, n, err := s.store.Resolve(storeCtx, businessID, entryID, StatusExpired, ResponseExpired, "")
	if err != nil {
		return nil, scheduling.Storage("waitlist expire", err)
	}
	s.metrics.ObserveWaitlist("expired")
	s.publish(ctx, businessID, EventEntryExpired, n)
	return e, nil
}

// Cancel removes a waiting or notified entry.
func (s *Service) Cancel(ctx context.Context, businessID, entryID string) (*Entry, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	e, err := s.store.Cancel(storeCtx, businessID, entryID)
	if err != nil {
		return nil, scheduling.Storage("waitlist cancel", err)
	}
	s.metrics.ObserveWaitlist("cancelled")
	return e, nil
}

// SlotReleased offers a freed slot to the first eligible candidate. A
// candidate notified concurrently is skipped.
func (s *Service) SlotReleased(ctx context.Context, slot scheduling.FreedSlot) (*scheduling.PromotionResult, error) {
	ctx, span := waitlistTracer.Start(ctx, "waitlist.slot_released")
	defer span.End()
	span.SetAttributes(attribute.String("booking.business_id", slot.BusinessID), attribute.String("booking.slot_id", slot.SlotID))

	candidates, err := s.FindCandidates(ctx, slot.BusinessID, slot.ServiceID, slot.Date, slot.Time)
	if err != nil {
		return nil, err
	}
	result := &scheduling.PromotionResult{CandidateIDs: make([]string, 0, len(candidates))}
	for _, c := range candidates {
		result.CandidateIDs = append(result.CandidateIDs, c.ID)
	}
	for _, c := range candidates {
		_, err := s.Notify(ctx, slot.BusinessID, c.ID, slot)
		if errors.Is(err, scheduling.ErrInvalidState) {
			continue
		}
		if err != nil {
			return result, err
		}
		result.NotifiedEntryID = c.ID
		break
	}
	return result, nil
}

func (s *Service) publish(ctx context.Context, businessID, eventType string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, businessID, eventType, payload); err != nil {
		s.logger.Warn("event publish failed", "business_id", businessID, "event_type", eventType, "error", err)
	}
}

func normalizeDates(dates []string) ([]string, error) {
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if _, err := scheduling.ParseDate(d); err != nil {
			return nil, fmt.Errorf("%w: %v", scheduling.ErrInvalidRange, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func normalizeTimes(times []string) []string {
	out := make([]string, 0, len(times))
	for _, t := range times {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (s *Service) Get(ctx context.Context, businessID, entryID string) (*Entry, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	e, err := s.store.Get(storeCtx, businessID, entryID)
	if err != nil {
		return nil, scheduling.Storage("waitlist get", err)
	}
	return e, nil
}
