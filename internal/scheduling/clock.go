package scheduling

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar date format used on every API surface.
const DateLayout = "2006-01-02"

// Clock is a business-local wall-clock time expressed in minutes after midnight.
type Clock int

// EndOfDay is the exclusive upper bound for a day's clock values.
const EndOfDay Clock = 24 * 60

// NewClock builds a Clock from hour and minute.
func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock parses an H:MM or HH:MM value. "24:00" is accepted as EndOfDay.
func ParseClock(value string) (Clock, error) {
	hourStr, minStr, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok || len(hourStr) < 1 || len(hourStr) > 2 || len(minStr) != 2 {
		return 0, fmt.Errorf("scheduling: malformed clock %q", value)
	}
	h, err := strconv.Atoi(hourStr)
	if err != nil {
		return 0, fmt.Errorf("scheduling: parse clock %q: %w", value, err)
	}
	m, err := strconv.Atoi(minStr)
	if err != nil {
		return 0, fmt.Errorf("scheduling: parse clock %q: %w", value, err)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("scheduling: clock %q out of range", value)
	}
	return NewClock(h, m), nil
}

// ClockOf returns the wall-clock minute of t, truncating seconds.
func ClockOf(t time.Time) Clock {
	return NewClock(t.Hour(), t.Minute())
}

// Add returns the clock shifted by the given number of minutes.
func (c Clock) Add(minutes int) Clock {
	return c + Clock(minutes)
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

// String renders HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// Display renders the 12-hour form used in confirmations, e.g. "09:00 AM".
func (c Clock) Display() string {
	return time.Date(2000, 1, 1, c.Hour(), c.Minute(), 0, 0, time.UTC).Format("03:04 PM")
}

// ParseDate parses YYYY-MM-DD into a UTC midnight time. Only the calendar
// fields of the result are meaningful.
func ParseDate(value string) (time.Time, error) {
	d, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduling: parse date %q: %w", value, err)
	}
	return d, nil
}

// FormatDate renders YYYY-MM-DD from the calendar fields of t.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// DisplayDate renders the long form used in confirmations, e.g. "January 06, 2025".
func DisplayDate(date string) string {
	d, err := ParseDate(date)
	if err != nil {
		return date
	}
	return d.Format("January 02, 2006")
}

// LocalDate returns the calendar date of t in its own location as a UTC
// midnight value, so that AddDate and Weekday behave as on a wall calendar.
func LocalDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DatesBetween lists every date from first to last inclusive.
func DatesBetween(first, last time.Time) []time.Time {
	var out []time.Time
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}
