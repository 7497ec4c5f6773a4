package availability

import (
	"strings"
	"time"

	"github.com/wolfman30/booking-engine/internal/scheduling"
)

// ParseDateRange understands "today", "tomorrow", "this week", "next week",
// "this month", a single YYYY-MM-DD date and "YYYY-MM-DD to YYYY-MM-DD".
// Anything else yields the next defaultDays days starting today. Weeks run
// Monday to Sunday.
func ParseDateRange(text string, today time.Time, defaultDays int) (time.Time, time.Time) {
	if defaultDays <= 0 {
		defaultDays = 7
	}
	fallbackEnd := today.AddDate(0, 0, defaultDays-1)
	t := strings.ToLower(strings.TrimSpace(text))

	switch t {
	case "today":
		return today, today
	case "tomorrow":
		d := today.AddDate(0, 0, 1)
		return d, d
	case "this week":
		return today, today.AddDate(0, 0, daysUntilSunday(today))
	case "next week":
		monday := today.AddDate(0, 0, daysUntilSunday(today)+1)
		return monday, monday.AddDate(0, 0, 6)
	case "this month":
		firstOfNext := time.Date(today.Year(), today.Month()+1, 1, 0, 0, 0, 0, time.UTC)
		return today, firstOfNext.AddDate(0, 0, -1)
	}

	if from, to, ok := strings.Cut(t, " to "); ok {
		first, err1 := scheduling.ParseDate(strings.TrimSpace(from))
		last, err2 := scheduling.ParseDate(strings.TrimSpace(to))
		if err1 == nil && err2 == nil {
			return first, last
		}
	}
	if d, err := scheduling.ParseDate(t); err == nil {
		return d, d
	}
	return today, fallbackEnd
}

func daysUntilSunday(d time.Time) int {
	return (7 - int(d.Weekday())) % 7
}
