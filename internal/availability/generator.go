package availability

import (
	"time"

	"github.com/wolfman30/booking-engine/internal/business"
	"github.com/wolfman30/booking-engine/internal/scheduling"
)

// StaffOption is one resource slots are generated for.
type StaffOption struct {
	Ref  scheduling.StaffRef
	Name string
}

// GenerateRequest carries everything the generator needs for one service.
type GenerateRequest struct {
	Config          *business.Config
	Dates           []time.Time
	DurationMinutes int
	Preference      scheduling.TimeWindow
	Staff           []StaffOption
	// Today and Now are the business-local calendar date and wall clock.
	Today time.Time
	Now   scheduling.Clock
}

// Generator enumerates candidate start times at a fixed step.
type Generator struct {
	resolver    *business.Resolver
	stepMinutes int
}

// NewGenerator builds a generator with the given granularity.
func NewGenerator(resolver *business.Resolver, granularity time.Duration) *Generator {
	step := int(granularity / time.Minute)
	if step <= 0 {
		step = 30
	}
	return &Generator{resolver: resolver, stepMinutes: step}
}

// Generate returns candidates ordered by date, time, then staff order. The
// preference bounds start times only; every candidate must finish by closing
// time. Candidates on today must start strictly after now.
func (g *Generator) Generate(req GenerateRequest) []scheduling.Slot {
	if req.DurationMinutes <= 0 || len(req.Staff) == 0 {
		return nil
	}
	var slots []scheduling.Slot
	for _, day := range req.Dates {
		if day.Before(req.Today) {
			continue
		}
		window, res := g.resolver.Resolve(req.Config, day)
		if res == business.ResolutionClosed {
			continue
		}
		start := window.Open
		if req.Preference.Start > start {
			start = alignUp(window.Open, req.Preference.Start, g.stepMinutes)
		}
		isToday := day.Equal(req.Today)
		dateStr := scheduling.FormatDate(day)
		for c := start; c < req.Preference.End; c = c.Add(g.stepMinutes) {
			if c.Add(req.DurationMinutes) > window.Close {
				break
			}
			if isToday && c <= req.Now {
				continue
			}
			for _, s := range req.Staff {
				slots = append(slots, scheduling.NewSlot(dateStr, c, s.Ref, s.Name, req.DurationMinutes))
			}
		}
	}
	return slots
}

// alignUp returns the first grid point at or after c, where the grid starts
// at open and advances by step minutes.
func alignUp(open, c scheduling.Clock, step int) scheduling.Clock {
	if step <= 0 {
		return c
	}
	off := (int(c) - int(open)) % step
	if off == 0 {
		return c
	}
	return c.Add(step - off)
}

// onGrid reports whether c is a slot start for a window opening at open.
func onGrid(open, c scheduling.Clock, step int) bool {
	return step <= 0 || (int(c)-int(open))%step == 0
}
