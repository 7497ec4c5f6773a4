// Package business holds per-business scheduling configuration: weekly
// hours, the service catalogue and the business timezone.
package business

import (
	"context"
	"strings"
	"time"

	"github.com/wolfman30/booking-engine/internal/scheduling"
)

// DayHours represents the opening hours for a single day.
type DayHours struct {
	Open   string `json:"open,omitempty"`  // "09:00" in 24-hour format
	Close  string `json:"close,omitempty"` // "18:00" in 24-hour format
	Closed bool   `json:"closed,omitempty"`
}

// BusinessHours maps day names to their hours. A nil day is a configuration
// gap, not a closed day; see Resolver.
type BusinessHours struct {
	Monday    *DayHours `json:"monday,omitempty"`
	Tuesday   *DayHours `json:"tuesday,omitempty"`
	Wednesday *DayHours `json:"wednesday,omitempty"`
	Thursday  *DayHours `json:"thursday,omitempty"`
	Friday    *DayHours `json:"friday,omitempty"`
	Saturday  *DayHours `json:"saturday,omitempty"`
	Sunday    *DayHours `json:"sunday,omitempty"`
}

// GetHoursForDay returns the hours for a given weekday.
func (b *BusinessHours) GetHoursForDay(weekday time.Weekday) *DayHours {
	switch weekday {
	case time.Sunday:
		return b.Sunday
	case time.Monday:
		return b.Monday
	case time.Tuesday:
		return b.Tuesday
	case time.Wednesday:
		return b.Wednesday
	case time.Thursday:
		return b.Thursday
	case time.Friday:
		return b.Friday
	case time.Saturday:
		return b.Saturday
	default:
		return nil
	}
}

// Service is a bookable offering.
type Service struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceCents      int    `json:"price_cents"`
}

// Config is the scheduling configuration of one business.
type Config struct {
	BusinessID    string        `json:"business_id"`
	Name          string        `json:"name"`
	Timezone      string        `json:"timezone"`
	BusinessHours BusinessHours `json:"business_hours"`
	Services      []Service     `json:"services"`
}

// Source is the read side consumed by availability and booking.
type Source interface {
	Get(ctx context.Context, businessID string) (*Config, error)
}

// DefaultConfig is returned for businesses that have never been configured.
// It has no hours and no services, so every day resolves through the fallback
// and every booking fails with an unknown service.
func DefaultConfig(businessID string) *Config {
	return &Config{
		BusinessID: businessID,
		Name:       "Business",
		Timezone:   "UTC",
	}
}

// Service looks up a service by id, falling back to a case-insensitive name match.
func (c *Config) Service(id string) (Service, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Service{}, false
	}
	for _, svc := range c.Services {
		if svc.ID == id {
			return svc, true
		}
	}
	for _, svc := range c.Services {
		if strings.EqualFold(svc.Name, id) {
			return svc, true
		}
	}
	return Service{}, false
}

// Location loads the business timezone, defaulting to UTC.
func (c *Config) Location() *time.Location {
	if c == nil || c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LocalNow converts now to the business calendar: the local date (as a UTC
// midnight value) and the wall-clock minute.
func (c *Config) LocalNow(now time.Time) (time.Time, scheduling.Clock) {
	local := now.In(c.Location())
	return scheduling.LocalDate(local), scheduling.ClockOf(local)
}
