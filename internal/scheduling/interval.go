package scheduling

// Interval is a half-open [Start, End) span on one day.
type Interval struct {
	Start Clock
	End   Clock
}

// Overlaps applies the half-open test; touching intervals do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

// Booking is the minimal view of an occupying appointment.
type Booking struct {
	AppointmentID   string
	Date            string
	Start           Clock
	DurationMinutes int
	Staff           StaffRef
}

func (b Booking) Interval() Interval {
	return Interval{Start: b.Start, End: b.Start.Add(b.DurationMinutes)}
}

// Conflicts reports whether two bookings cannot coexist: same day, competing
// staff references and overlapping intervals.
func (b Booking) Conflicts(o Booking) bool {
	return b.Date == o.Date && b.Staff.SharesPool(o.Staff) && b.Interval().Overlaps(o.Interval())
}

// FirstConflict returns the first booking in existing that conflicts with
// candidate, skipping the appointment id in exclude.
func FirstConflict(candidate Booking, existing []Booking, exclude string) (Booking, bool) {
	for _, b := range existing {
		if exclude != "" && b.AppointmentID == exclude {
			continue
		}
		if candidate.Conflicts(b) {
			return b, true
		}
	}
	return Booking{}, false
}
