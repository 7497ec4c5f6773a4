package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wolfman30/booking-engine/internal/scheduling"
)

func TestParseDateRange(t *testing.T) {
	// Wednesday
	today := time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		input string
		from  string
		to    string
	}{
		{"today", "2025-01-08", "2025-01-08"},
		{"Tomorrow", "2025-01-09", "2025-01-09"},
		{"this week", "2025-01-08", "2025-01-12"},
		{"next week", "2025-01-13", "2025-01-19"},
		{"this month", "2025-01-08", "2025-01-31"},
		{"2025-01-20", "2025-01-20", "2025-01-20"},
		{"2025-01-20 to 2025-01-24", "2025-01-20", "2025-01-24"},
		{"sometime soon", "2025-01-08", "2025-01-14"},
		{"", "2025-01-08", "2025-01-14"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			from, to := ParseDateRange(tt.input, today, 7)
			assert.Equal(t, tt.from, scheduling.FormatDate(from))
			assert.Equal(t, tt.to, scheduling.FormatDate(to))
		})
	}
}

func TestParseDateRangeNextWeekFromSunday(t *testing.T) {
	sunday := time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC)
	from, to := ParseDateRange("next week", sunday, 7)
	assert.Equal(t, "2025-01-13", scheduling.FormatDate(from))
	assert.Equal(t, "2025-01-19", scheduling.FormatDate(to))
}

func TestFilterConflictsKeepsNonOverlapping(t *testing.T) {
	slots := []scheduling.Slot{
		scheduling.NewSlot("2025-01-06", scheduling.NewClock(9, 0), scheduling.Specific("s1"), "", 60),
		scheduling.NewSlot("2025-01-06", scheduling.NewClock(10, 0), scheduling.Specific("s1"), "", 60),
		scheduling.NewSlot("2025-01-07", scheduling.NewClock(9, 0), scheduling.Specific("s1"), "", 60),
	}
	booked := []scheduling.Booking{{Date: "2025-01-06", Start: scheduling.NewClock(9, 30), DurationMinutes: 30, Staff: scheduling.Specific("s1")}}

	out := FilterConflicts(slots, booked)
	assert.Len(t, out, 2)
	assert.Equal(t, "10:00", out[0].Time)
	assert.Equal(t, "2025-01-07", out[1].Date)
}
