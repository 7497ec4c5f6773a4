package scheduling

import (
	"fmt"
	"strings"
)

// Slot is a bookable candidate returned by availability.
type Slot struct {
	ID              string   `json:"slot_id"`
	Date            string   `json:"date"`
	Time            string   `json:"time"`
	Staff           StaffRef `json:"staff_id"`
	StaffName       string   `json:"staff_name,omitempty"`
	DurationMinutes int      `json:"duration_minutes"`
}

// SlotKey is the decoded content of a slot id.
type SlotKey struct {
	Date  string
	Start Clock
	Staff StaffRef
}

// NewSlot builds a Slot with its encoded id.
func NewSlot(date string, start Clock, staff StaffRef, staffName string, durationMinutes int) Slot {
	key := SlotKey{Date: date, Start: start, Staff: staff}
	return Slot{
		ID:              key.Encode(),
		Date:            date,
		Time:            start.String(),
		Staff:           staff,
		StaffName:       staffName,
		DurationMinutes: durationMinutes,
	}
}

// Encode renders the opaque slot id. Callers must only round-trip it.
func (k SlotKey) Encode() string {
	return fmt.Sprintf("%s_%s_%s", k.Date, k.Start, k.Staff)
}

// DecodeSlotID parses a slot id produced by Encode.
func DecodeSlotID(id string) (SlotKey, error) {
	parts := strings.SplitN(strings.TrimSpace(id), "_", 3)
	if len(parts) != 3 || parts[2] == "" {
		return SlotKey{}, fmt.Errorf("%w: malformed slot id %q", ErrInvalidSlot, id)
	}
	if _, err := ParseDate(parts[0]); err != nil {
		return SlotKey{}, fmt.Errorf("%w: %v", ErrInvalidSlot, err)
	}
	start, err := ParseClock(parts[1])
	if err != nil || start >= EndOfDay {
		return SlotKey{}, fmt.Errorf("%w: bad start time in %q", ErrInvalidSlot, id)
	}
	return SlotKey{Date: parts[0], Start: start, Staff: parseStaffToken(parts[2])}, nil
}

// FreedSlot describes a slot released by a cancellation or reschedule.
type FreedSlot struct {
	BusinessID    string   `json:"business_id"`
	AppointmentID string   `json:"appointment_id"`
	ServiceID     string   `json:"service_id"`
	Date          string   `json:"date"`
	Time          string   `json:"time"`
	Staff         StaffRef `json:"staff_id"`
	SlotID        string   `json:"slot_id"`
}

// PromotionResult reports what the waitlist did with a freed slot.
type PromotionResult struct {
	CandidateIDs    []string `json:"candidate_ids"`
	NotifiedEntryID string   `json:"notified_entry_id,omitempty"`
}
