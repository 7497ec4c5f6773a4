package scheduling

import (
	"regexp"
	"strconv"
	"strings"
)

// Time-of-day buckets shared by availability and the waitlist.
const (
	BucketMorning   = "morning"
	BucketAfternoon = "afternoon"
	BucketEvening   = "evening"
)

var (
	noonClock    = NewClock(12, 0)
	eveningClock = NewClock(17, 0)
)

// TimeWindow bounds candidate start times to [Start, End).
type TimeWindow struct {
	Start Clock
	End   Clock
}

// FullDay is the window that admits every start time.
func FullDay() TimeWindow {
	return TimeWindow{Start: 0, End: EndOfDay}
}

func (w TimeWindow) Contains(c Clock) bool {
	return c >= w.Start && c < w.End
}

func (w TimeWindow) Intersects(o TimeWindow) bool {
	return Interval(w).Overlaps(Interval(o))
}

// BucketOf classifies a start time: morning before 12:00, afternoon until
// 17:00, evening after.
func BucketOf(c Clock) string {
	switch {
	case c < noonClock:
		return BucketMorning
	case c < eveningClock:
		return BucketAfternoon
	default:
		return BucketEvening
	}
}

// BucketWindow returns the window covered by a bucket name.
func BucketWindow(name string) (TimeWindow, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case BucketMorning:
		return TimeWindow{Start: 0, End: noonClock}, true
	case BucketAfternoon:
		return TimeWindow{Start: noonClock, End: eveningClock}, true
	case BucketEvening:
		return TimeWindow{Start: eveningClock, End: EndOfDay}, true
	}
	return TimeWindow{}, false
}

const timeToken = `(\d{1,2})(?::(\d{2}))?\s*(am|pm|a\.m\.|p\.m\.|a|p)?`

var (
	rangeRE   = regexp.MustCompile(timeToken + `\s*(?:-|–|to)\s*` + timeToken)
	betweenRE = regexp.MustCompile(`between\s+` + timeToken + `\s+and\s+` + timeToken)
	afterRE   = regexp.MustCompile(`(?:after|from|later than|past)\s+` + timeToken)
	beforeRE  = regexp.MustCompile(`(?:before|until|till|by|earlier than)\s+` + timeToken)
)

// ParseTimePreference turns free text such as "morning", "after 5pm",
// "before noon" or "2-4pm" into a start-time window. It returns false when
// nothing recognisable is present; callers then use the full business day.
// Bare hours 1 through 7 without a meridiem are read as PM.
func ParseTimePreference(text string) (TimeWindow, bool) {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return TimeWindow{}, false
	}
	if w, ok := BucketWindow(t); ok {
		return w, true
	}
	switch t {
	case "am":
		return TimeWindow{Start: 0, End: noonClock}, true
	case "pm":
		return TimeWindow{Start: noonClock, End: EndOfDay}, true
	}
	t = strings.ReplaceAll(t, "noon", "12pm")
	t = strings.ReplaceAll(t, "midday", "12pm")

	if m := betweenRE.FindStringSubmatch(t); m != nil {
		if w, ok := rangeWindow(m[1:4], m[4:7]); ok {
			return w, true
		}
	}
	if m := rangeRE.FindStringSubmatch(t); m != nil {
		if w, ok := rangeWindow(m[1:4], m[4:7]); ok {
			return w, true
		}
	}
	if m := afterRE.FindStringSubmatch(t); m != nil {
		if c, ok := clockFromParts(m[1], m[2], m[3]); ok {
			return TimeWindow{Start: c, End: EndOfDay}, true
		}
	}
	if m := beforeRE.FindStringSubmatch(t); m != nil {
		if c, ok := clockFromParts(m[1], m[2], m[3]); ok && c > 0 {
			return TimeWindow{Start: 0, End: c}, true
		}
	}

	switch {
	case strings.Contains(t, "afternoon"):
		return TimeWindow{Start: noonClock, End: eveningClock}, true
	case strings.Contains(t, "morning"), strings.Contains(t, "early"):
		return TimeWindow{Start: 0, End: noonClock}, true
	case strings.Contains(t, "evening"), strings.Contains(t, "tonight"), strings.Contains(t, "night"),
		strings.Contains(t, "late"), strings.Contains(t, "after work"):
		return TimeWindow{Start: eveningClock, End: EndOfDay}, true
	}
	return TimeWindow{}, false
}

func rangeWindow(start, end []string) (TimeWindow, bool) {
	to, ok := clockFromParts(end[0], end[1], end[2])
	if !ok {
		return TimeWindow{}, false
	}
	meridiems := []string{start[2]}
	if start[2] == "" {
		// "2-4pm" shares the closing meridiem; "10-2pm" does not.
		meridiems = []string{end[2], "a"}
	}
	for _, meridiem := range meridiems {
		from, ok := clockFromParts(start[0], start[1], meridiem)
		if ok && from < to {
			return TimeWindow{Start: from, End: to}, true
		}
	}
	return TimeWindow{}, false
}

func clockFromParts(hourStr, minStr, meridiem string) (Clock, bool) {
	hour, err := strconv.Atoi(hourStr)
	if err != nil {
		return 0, false
	}
	minute := 0
	if minStr != "" {
		if minute, err = strconv.Atoi(minStr); err != nil || minute > 59 {
			return 0, false
		}
	}
	switch strings.TrimSuffix(strings.ReplaceAll(meridiem, ".", ""), "m") {
	case "p":
		if hour < 1 || hour > 12 {
			return 0, false
		}
		if hour != 12 {
			hour += 12
		}
	case "a":
		if hour < 1 || hour > 12 {
			return 0, false
		}
		if hour == 12 {
			hour = 0
		}
	default:
		if hour >= 1 && hour <= 7 {
			hour += 12
		}
	}
	if hour > 24 || (hour == 24 && minute > 0) {
		return 0, false
	}
	return NewClock(hour, minute), true
}
