// Package availability computes bookable slots: it resolves business hours,
// walks candidate start times and removes those that collide with existing
// appointments.
package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/booking-engine/internal/business"
	"github.com/wolfman30/booking-engine/internal/observability/metrics"
	"github.com/wolfman30/booking-engine/internal/scheduling"
	"github.com/wolfman30/booking-engine/internal/staff"
	"github.com/wolfman30/booking-engine/pkg/logging"
)

var availabilityTracer = otel.Tracer("booking.internal.availability")

// AppointmentLister returns appointments that still occupy time
// (scheduled or confirmed) between two dates inclusive.
type AppointmentLister interface {
	ListActive(ctx context.Context, businessID, fromDate, toDate string) ([]scheduling.Booking, error)
}

// Options tunes the engine.
type Options struct {
	Granularity      time.Duration
	MaxHorizonDays   int
	DefaultRangeDays int
	StorageTimeout   time.Duration
}

func (o Options) withDefaults() Options {
	if o.Granularity <= 0 {
		o.Granularity = 30 * time.Minute
	}
	if o.MaxHorizonDays <= 0 {
		o.MaxHorizonDays = 60
	}
	if o.DefaultRangeDays <= 0 {
		o.DefaultRangeDays = 7
	}
	if o.StorageTimeout <= 0 {
		o.StorageTimeout = 5 * time.Second
	}
	return o
}

// Query is a CheckAvailability request. From/To take precedence over Range.
type Query struct {
	BusinessID string
	ServiceID  string
	From       string
	To         string
	Range      string
	TimeOfDay  string
	StaffID    string
}

// Result is the availability answer plus picker hints.
type Result struct {
	BusinessID      string            `json:"business_id"`
	ServiceID       string            `json:"service_id"`
	ServiceName     string            `json:"service_name"`
	DurationMinutes int               `json:"duration_minutes"`
	From            string            `json:"from"`
	To              string            `json:"to"`
	Slots           []scheduling.Slot `json:"slots"`
	MinDate         string            `json:"min_date,omitempty"`
	MaxDate         string            `json:"max_date,omitempty"`
	AvailableDates  []string          `json:"available_dates"`
	AvailableTimes  []string          `json:"available_times"`
}

// Engine answers availability questions and validates slots for booking.
type Engine struct {
	configs      business.Source
	staff        staff.Directory
	appointments AppointmentLister
	generator    *Generator
	resolver     *business.Resolver
	opts         Options
	now          func() time.Time
	logger       *logging.Logger
	metrics      *metrics.SchedulingMetrics
}

// NewEngine wires the engine.
func NewEngine(configs business.Source, staffDir staff.Directory, appointments AppointmentLister, resolver *business.Resolver, opts Options, logger *logging.Logger) *Engine {
	if configs == nil || staffDir == nil || appointments == nil {
		panic("availability: config source, staff directory and appointment lister required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if resolver == nil {
		fallback := business.DefaultFallback()
		resolver = business.NewResolver(&fallback, logger)
	}
	opts = opts.withDefaults()
	return &Engine{
		configs:      configs,
		staff:        staffDir,
		appointments: appointments,
		generator:    NewGenerator(resolver, opts.Granularity),
		resolver:     resolver,
		opts:         opts,
		now:          time.Now,
		logger:       logger,
	}
}

// WithMetrics attaches Prometheus metrics.
func (e *Engine) WithMetrics(m *metrics.SchedulingMetrics) *Engine {
	e.metrics = m
	return e
}

// WithClock overrides the wall clock.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	if now != nil {
		e.now = now
	}
	return e
}

// Now returns the engine's current time.
func (e *Engine) Now() time.Time {
	return e.now()
}

// StorageTimeout is the per-call deadline applied to storage operations.
func (e *Engine) StorageTimeout() time.Duration {
	return e.opts.StorageTimeout
}

// Config loads the business config under the storage timeout.
func (e *Engine) Config(ctx context.Context, businessID string) (*business.Config, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.StorageTimeout)
	defer cancel()
	cfg, err := e.configs.Get(ctx, businessID)
	if err != nil {
		return nil, scheduling.Storage("business config", err)
	}
	return cfg, nil
}

// CheckAvailability lists free slots. An empty result is not an error.
func (e *Engine) CheckAvailability(ctx context.Context, q Query) (*Result, error) {
	ctx, span := availabilityTracer.Start(ctx, "availability.check")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.business_id", q.BusinessID),
		attribute.String("booking.service_id", q.ServiceID),
	)

	result, err := e.checkAvailability(ctx, q)
	if err != nil {
		span.RecordError(err)
		e.metrics.ObserveAvailability(outcomeOf(err), 0)
		return nil, err
	}
	span.SetAttributes(attribute.Int("booking.slots", len(result.Slots)))
	e.metrics.ObserveAvailability("ok", len(result.Slots))
	return result, nil
}

func (e *Engine) checkAvailability(ctx context.Context, q Query) (*Result, error) {
	cfg, err := e.Config(ctx, q.BusinessID)
	if err != nil {
		return nil, err
	}
	svc, ok := cfg.Service(q.ServiceID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", scheduling.ErrUnknownService, q.ServiceID)
	}
	today, nowClock := cfg.LocalNow(e.now())
	first, last, err := e.dateSpan(q, today)
	if err != nil {
		return nil, err
	}

	result := &Result{
		BusinessID:      q.BusinessID,
		ServiceID:       svc.ID,
		ServiceName:     svc.Name,
		DurationMinutes: svc.DurationMinutes,
		From:            scheduling.FormatDate(first),
		To:              scheduling.FormatDate(last),
		Slots:           []scheduling.Slot{},
		AvailableDates:  []string{},
		AvailableTimes:  []string{},
	}
	if last.Before(first) {
		return result, nil
	}

	options, err := e.staffOptions(ctx, q.BusinessID, svc.ID, q.StaffID)
	if err != nil {
		return nil, err
	}
	if len(options) == 0 {
		return result, nil
	}

	preference, ok := scheduling.ParseTimePreference(q.TimeOfDay)
	if !ok {
		preference = scheduling.FullDay()
	}

	candidates := e.generator.Generate(GenerateRequest{
		Config:          cfg,
		Dates:           scheduling.DatesBetween(first, last),
		DurationMinutes: svc.DurationMinutes,
		Preference:      preference,
		Staff:           options,
		Today:           today,
		Now:             nowClock,
	})
	if len(candidates) == 0 {
		return result, nil
	}

	booked, err := e.listActive(ctx, q.BusinessID, result.From, result.To)
	if err != nil {
		return nil, err
	}
	result.Slots = FilterConflicts(candidates, booked)
	summarize(result)
	return result, nil
}

// dateSpan resolves the requested range, clipped to [today, today+horizon].
func (e *Engine) dateSpan(q Query, today time.Time) (time.Time, time.Time, error) {
	var first, last time.Time
	switch {
	case q.From != "" || q.To != "":
		from, to := q.From, q.To
		if from == "" {
			from = scheduling.FormatDate(today)
		}
		var err error
		if first, err = scheduling.ParseDate(from); err != nil {
			return first, last, fmt.Errorf("%w: %v", scheduling.ErrInvalidRange, err)
		}
		if to == "" {
			last = first.AddDate(0, 0, e.opts.DefaultRangeDays-1)
		} else if last, err = scheduling.ParseDate(to); err != nil {
			return first, last, fmt.Errorf("%w: %v", scheduling.ErrInvalidRange, err)
		}
	default:
		first, last = ParseDateRange(q.Range, today, e.opts.DefaultRangeDays)
	}
	if first.Before(today) {
		first = today
	}
	if horizon := today.AddDate(0, 0, e.opts.MaxHorizonDays); last.After(horizon) {
		last = horizon
	}
	return first, last, nil
}

// staffOptions returns who slots are generated for. An unknown or ineligible
// requested staff member yields no options, which is an empty result rather
// than an error. When no staff member offers the service, including when no
// staff are configured, slots belong to the AnyAvailable pool.
func (e *Engine) staffOptions(ctx context.Context, businessID, serviceID, requested string) ([]StaffOption, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.StorageTimeout)
	defer cancel()

	requested = strings.TrimSpace(requested)
	if requested != "" && !strings.EqualFold(requested, "any") {
		m, err := e.staff.Get(ctx, businessID, requested)
		if errors.Is(err, staff.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, scheduling.Storage("staff get", err)
		}
		if !m.Offers(serviceID) {
			return nil, nil
		}
		return []StaffOption{{Ref: scheduling.Specific(m.ID), Name: m.Name}}, nil
	}

	members, err := e.staff.List(ctx, businessID)
	if err != nil {
		return nil, scheduling.Storage("staff list", err)
	}
	eligible := staff.Eligible(members, serviceID)
	if len(eligible) == 0 {
		return []StaffOption{{Ref: scheduling.AnyAvailable()}}, nil
	}
	options := make([]StaffOption, 0, len(eligible))
	for _, m := range eligible {
		options = append(options, StaffOption{Ref: scheduling.Specific(m.ID), Name: m.Name})
	}
	return options, nil
}

func (e *Engine) listActive(ctx context.Context, businessID, from, to string) ([]scheduling.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.StorageTimeout)
	defer cancel()
	booked, err := e.appointments.ListActive(ctx, businessID, from, to)
	if err != nil {
		return nil, scheduling.Storage("appointments list", err)
	}
	return booked, nil
}

func summarize(result *Result) {
	dates := make(map[string]struct{})
	times := make(map[string]struct{})
	for _, s := range result.Slots {
		dates[s.Date] = struct{}{}
		times[s.Time] = struct{}{}
	}
	result.AvailableDates = sortedKeys(dates)
	result.AvailableTimes = sortedKeys(times)
	if len(result.AvailableDates) > 0 {
		result.MinDate = result.AvailableDates[0]
		result.MaxDate = result.AvailableDates[len(result.AvailableDates)-1]
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func outcomeOf(err error) string {
	switch {
	case scheduling.IsInvalid(err):
		return "invalid"
	case scheduling.IsStorage(err):
		return "storage_error"
	default:
		return "error"
	}
}
