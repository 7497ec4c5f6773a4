package availability

import (
	"github.com/wolfman30/booking-engine/internal/scheduling"
)

// FilterConflicts drops candidates that overlap an existing booking held by
// the same staff member. AnyAvailable on either side competes with everyone.
// Callers pass only bookings that still occupy time.
func FilterConflicts(candidates []scheduling.Slot, booked []scheduling.Booking) []scheduling.Slot {
	if len(booked) == 0 {
		return candidates
	}
	byDate := make(map[string][]scheduling.Booking)
	for _, b := range booked {
		byDate[b.Date] = append(byDate[b.Date], b)
	}
	out := make([]scheduling.Slot, 0, len(candidates))
	for _, slot := range candidates {
		existing := byDate[slot.Date]
		if len(existing) == 0 {
			out = append(out, slot)
			continue
		}
		candidate, ok := slotBooking(slot)
		if !ok {
			continue
		}
		if _, clash := scheduling.FirstConflict(candidate, existing, ""); !clash {
			out = append(out, slot)
		}
	}
	return out
}

func slotBooking(slot scheduling.Slot) (scheduling.Booking, bool) {
	start, err := scheduling.ParseClock(slot.Time)
	if err != nil {
		return scheduling.Booking{}, false
	}
	return scheduling.Booking{
		Date:            slot.Date,
		Start:           start,
		DurationMinutes: slot.DurationMinutes,
		Staff:           slot.Staff,
	}, true
}
