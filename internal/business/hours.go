package business

import (
	"time"

	"github.com/wolfman30/booking-engine/internal/scheduling"
	"github.com/wolfman30/booking-engine/pkg/logging"
)

// Resolution explains how a day's hours were determined.
type Resolution int

const (
	// ResolutionOpen means the day is configured with opening hours.
	ResolutionOpen Resolution = iota
	// ResolutionClosed means the day is closed, either explicitly or
	// because the configured hours are unusable.
	ResolutionClosed
	// ResolutionFallback means the day was missing and fallback hours were used.
	ResolutionFallback
)

func (r Resolution) String() string {
	switch r {
	case ResolutionOpen:
		return "open"
	case ResolutionClosed:
		return "closed"
	default:
		return "fallback"
	}
}

// Window is the open interval for one day.
type Window struct {
	Open  scheduling.Clock
	Close scheduling.Clock
}

// FallbackObserver is notified whenever a missing weekday is substituted.
type FallbackObserver interface {
	ObserveHoursFallback(weekday string)
}

// Resolver turns a business config and a calendar date into an open window.
type Resolver struct {
	fallback *DayHours
	logger   *logging.Logger
	observer FallbackObserver
}

// DefaultFallback is the window substituted for unconfigured weekdays.
func DefaultFallback() DayHours {
	return DayHours{Open: "09:00", Close: "18:00"}
}

// NewResolver builds a resolver. A nil fallback treats missing weekdays as closed.
func NewResolver(fallback *DayHours, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{fallback: fallback, logger: logger}
}

// WithObserver attaches a metrics sink for fallback substitutions.
func (r *Resolver) WithObserver(observer FallbackObserver) *Resolver {
	r.observer = observer
	return r
}

// Resolve returns the open window for date. The weekday is taken from the
// calendar date itself, which callers express in business-local terms.
func (r *Resolver) Resolve(cfg *Config, date time.Time) (Window, Resolution) {
	weekday := date.Weekday()
	day := cfg.BusinessHours.GetHoursForDay(weekday)
	if day == nil {
		if r.fallback == nil {
			r.logger.Warn("business hours missing for weekday; treating as closed",
				"business_id", cfg.BusinessID, "weekday", weekday.String())
			r.observe(weekday)
			return Window{}, ResolutionClosed
		}
		window, ok := parseWindow(*r.fallback)
		if !ok {
			return Window{}, ResolutionClosed
		}
		r.logger.Warn("business hours missing for weekday; using fallback hours",
			"business_id", cfg.BusinessID, "weekday", weekday.String(),
			"open", r.fallback.Open, "close", r.fallback.Close)
		r.observe(weekday)
		return window, ResolutionFallback
	}
	if day.Closed {
		return Window{}, ResolutionClosed
	}
	window, ok := parseWindow(*day)
	if !ok {
		r.logger.Warn("business hours unusable; treating day as closed",
			"business_id", cfg.BusinessID, "weekday", weekday.String(),
			"open", day.Open, "close", day.Close)
		return Window{}, ResolutionClosed
	}
	return window, ResolutionOpen
}

func (r *Resolver) observe(weekday time.Weekday) {
	if r.observer != nil {
		r.observer.ObserveHoursFallback(weekday.String())
	}
}

func parseWindow(day DayHours) (Window, bool) {
	open, err := scheduling.ParseClock(day.Open)
	if err != nil {
		return Window{}, false
	}
	closeAt, err := scheduling.ParseClock(day.Close)
	if err != nil || closeAt <= open {
		return Window{}, false
	}
	return Window{Open: open, Close: closeAt}, true
}
