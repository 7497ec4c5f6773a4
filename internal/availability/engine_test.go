package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/booking-engine/internal/business"
	"github.com/wolfman30/booking-engine/internal/scheduling"
	"github.com/wolfman30/booking-engine/internal/staff"
	"github.com/wolfman30/booking-engine/pkg/logging"
)

type fakeAppointments struct {
	bookings []scheduling.Booking
	err      error
}

func (f *fakeAppointments) ListActive(ctx context.Context, businessID, fromDate, toDate string) ([]scheduling.Booking, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []scheduling.Booking
	for _, b := range f.bookings {
		if b.Date >= fromDate && b.Date <= toDate {
			out = append(out, b)
		}
	}
	return out, nil
}

type fixture struct {
	engine   *Engine
	configs  *business.MemoryStore
	staff    *staff.MemoryDirectory
	appts    *fakeAppointments
	now      time.Time
	resolver *business.Resolver
}

func weekdayHours() business.BusinessHours {
	day := &business.DayHours{Open: "09:00", Close: "17:00"}
	closed := &business.DayHours{Closed: true}
	return business.BusinessHours{
		Monday: day, Tuesday: day, Wednesday: day, Thursday: day, Friday: day,
		Saturday: closed, Sunday: closed,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	configs := business.NewMemoryStore()
	require.NoError(t, configs.Set(context.Background(), &business.Config{
		BusinessID:    "biz",
		Name:          "Glow",
		Timezone:      "UTC",
		BusinessHours: weekdayHours(),
		Services: []business.Service{
			{ID: "svc-60", Name: "Facial", DurationMinutes: 60},
			{ID: "svc-30", Name: "Consult", DurationMinutes: 30},
		},
	}))
	f := &fixture{
		configs: configs,
		staff:   staff.NewMemoryDirectory(),
		appts:   &fakeAppointments{},
		// Sunday noon, the day before the example Monday.
		now: time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC),
	}
	f.engine = NewEngine(configs, f.staff, f.appts, f.resolver, Options{}, logging.Default()).
		WithClock(func() time.Time { return f.now })
	return f
}

func slotTimes(res *Result, date string) []string {
	var out []string
	for _, s := range res.Slots {
		if s.Date == date {
			out = append(out, s.Time)
		}
	}
	return out
}

func TestCheckAvailabilityExampleWeek(t *testing.T) {
	f := newFixture(t)
	f.staff.Put(staff.Member{ID: "s1", BusinessID: "biz", Name: "Ana"})

	res, err := f.engine.CheckAvailability(context.Background(), Query{
		BusinessID: "biz", ServiceID: "svc-60", From: "2025-01-06", To: "2025-01-11",
	})
	require.NoError(t, err)

	monday := slotTimes(res, "2025-01-06")
	assert.Contains(t, monday, "09:00")
	assert.Contains(t, monday, "10:00")
	assert.Contains(t, monday, "16:00")
	assert.NotContains(t, monday, "16:30")
	assert.NotContains(t, monday, "08:30")
	assert.Len(t, monday, 15)
	assert.Empty(t, slotTimes(res, "2025-01-11"), "Saturday is closed")

	assert.Equal(t, "2025-01-06", res.MinDate)
	assert.Equal(t, "2025-01-10", res.MaxDate)
	assert.Equal(t, []string{"2025-01-06", "2025-01-07", "2025-01-08", "2025-01-09", "2025-01-10"}, res.AvailableDates)
	assert.Equal(t, "09:00", res.AvailableTimes[0])
	assert.Equal(t, "16:00", res.AvailableTimes[len(res.AvailableTimes)-1])
	assert.Equal(t, "Ana", res.Slots[0].StaffName)
}

func TestCheckAvailabilityExcludesBookedSlots(t *testing.T) {
	f := newFixture(t)
	f.staff.Put(staff.Member{ID: "s1", BusinessID: "biz", Name: "Ana"})
	f.appts.bookings = []scheduling.Booking{{
		AppointmentID: "a1", Date: "2025-01-06", Start: scheduling.NewClock(9, 0), DurationMinutes: 60, Staff: scheduling.Specific("s1"),
	}}

	res, err := f.engine.CheckAvailability(context.Background(), Query{BusinessID: "biz", ServiceID: "svc-60", From: "2025-01-06", To: "2025-01-06"})
	require.NoError(t, err)
	monday := slotTimes(res, "2025-01-06")
	assert.NotContains(t, monday, "09:00")
	assert.NotContains(t, monday, "09:30", "09:30-10:30 overlaps the 09:00 booking")
	assert.NotContains(t, monday, "08:30")
	assert.Contains(t, monday, "10:00")
}

func TestCheckAvailabilityPerStaff(t *testing.T) {
	f := newFixture(t)
	f.staff.Put(staff.Member{ID: "s1", BusinessID: "biz", Name: "Ana"})
	f.staff.Put(staff.Member{ID: "s2", BusinessID: "biz", Name: "Bea", ServiceIDs: []string{"svc-30"}})
	f.staff.Put(staff.Member{ID: "s3", BusinessID: "biz", Name: "Cy", ServiceIDs: []string{"svc-60"}})
	f.appts.bookings = []scheduling.Booking{{
		AppointmentID: "a1", Date: "2025-01-06", Start: scheduling.NewClock(9, 0), DurationMinutes: 60, Staff: scheduling.Specific("s1"),
	}}

	res, err := f.engine.CheckAvailability(context.Background(), Query{BusinessID: "biz", ServiceID: "svc-60", From: "2025-01-06", To: "2025-01-06"})
	require.NoError(t, err)

	var at9 []string
	for _, s := range res.Slots {
		id, _ := s.Staff.ID()
		assert.NotEqual(t, "s2", id, "s2 does not offer the service")
		if s.Time == "09:00" {
			at9 = append(at9, id)
		}
	}
	assert.Equal(t, []string{"s3"}, at9)
}

func TestCheckAvailabilityRequestedStaff(t *testing.T) {
	f := newFixture(t)
	f.staff.Put(staff.Member{ID: "s1", BusinessID: "biz", Name: "Ana"})
	f.staff.Put(staff.Member{ID: "s2", BusinessID: "biz", Name: "Bea", ServiceIDs: []string{"svc-30"}})
	ctx := context.Background()

	res, err := f.engine.CheckAvailability(ctx, Query{BusinessID: "biz", ServiceID: "svc-60", From: "2025-01-06", To: "2025-01-06", StaffID: "s1"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Slots)
	for _, s := range res.Slots {
		assert.Equal(t, scheduling.Specific("s1"), s.Staff)
	}

	res, err = f.engine.CheckAvailability(ctx, Query{BusinessID: "biz", ServiceID: "svc-60", From: "2025-01-06", To: "2025-01-06", StaffID: "s2"})
	require.NoError(t, err, "ineligible staff is an empty result, not an error")
	assert.Empty(t, res.Slots)

	res, err = f.engine.CheckAvailability(ctx, Query{BusinessID: "biz", ServiceID: "svc-60", From: "2025-01-06", To: "2025-01-06", StaffID: "ghost"})
	require.NoError(t, err)
	assert.Empty(t, res.Slots)
}

func TestCheckAvailabilityAnyPoolWhenNoStaff(t *testing.T) {
	f := newFixture(t)
	f.appts.bookings = []scheduling.Booking{{
		AppointmentID: "a1", Date: "2025-01-06", Start: scheduling.NewClock(10, 0), DurationMinutes: 30, Staff: scheduling.AnyAvailable(),
	}}

	res, err := f.engine.CheckAvailability(context.Background(), Query{BusinessID: "biz", ServiceID: "svc-30", From: "2025-01-06", To: "2025-01-06"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Slots)
	for _, s := range res.Slots {
		assert.True(t, s.Staff.IsAny())
		assert.Contains(t, s.ID, "_any")
	}
	times := slotTimes(res, "2025-01-06")
	assert.NotContains(t, times, "10:00")
	assert.Contains(t, times, "09:30")
	assert.Contains(t, times, "10:30")
}

func TestCheckAvailabilityAnyPoolWhenNoEligibleStaff(t *testing.T) {
	f := newFixture(t)
	f.staff.Put(staff.Member{ID: "s2", BusinessID: "biz", Name: "Bea", ServiceIDs: []string{"svc-30"}})

	res, err := f.engine.CheckAvailability(context.Background(), Query{BusinessID: "biz", ServiceID: "svc-60", From: "2025-01-06", To: "2025-01-06"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Slots)
	for _, s := range res.Slots {
		assert.True(t, s.Staff.IsAny())
		assert.Contains(t, s.ID, "_any")
	}
	assert.Contains(t, slotTimes(res, "2025-01-06"), "09:00")

	_, err = f.engine.ResolveSlot(context.Background(), "biz", "svc-60", res.Slots[0].ID)
	require.NoError(t, err)

	res, err = f.engine.CheckAvailability(context.Background(), Query{BusinessID: "biz", ServiceID: "svc-30", From: "2025-01-06", To: "2025-01-06"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Slots)
	for _, s := range res.Slots {
		id, ok := s.Staff.ID()
		assert.True(t, ok)
		assert.Equal(t, "s2", id)
	}
}

func TestCheckAvailabilityTodayOnlyFuture(t *testing.T) {
	f := newFixture(t)
	f.now = time.Date(2025, 1, 6, 10, 10, 0, 0, time.UTC)

	res, err := f.engine.CheckAvailability(context.Background(), Query{BusinessID: "biz", ServiceID: "svc-30", Range: "today"})
	require.NoError(t, err)
	times := slotTimes(res, "2025-01-06")
	require.NotEmpty(t, times)
	assert.Equal(t, "10:30", times[0])

	f.now = time.Date(2025, 1, 6, 10, 30, 0, 0, time.UTC)
	res, err = f.engine.CheckAvailability(context.Background(), Query{BusinessID: "biz", ServiceID: "svc-30", Range: "today"})
	require.NoError(t, err)
	assert.Equal(t, "11:00", slotTimes(res, "2025-01-06")[0], "a slot starting exactly now is not in the future")
}

func TestCheckAvailabilityPreference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.CheckAvailability(ctx, Query{BusinessID: "biz", ServiceID: "svc-60", From: "2025-01-06", To: "2025-01-06", TimeOfDay: "after 3pm"})
	require.NoError(t, err)
	assert.Equal(t, []string{"15:00", "15:30", "16:00"}, slotTimes(res, "2025-01-06"))

	res, err = f.engine.CheckAvailability(ctx, Query{BusinessID: "biz", ServiceID: "svc-60", From: "2025-01-06", To: "2025-01-06", TimeOfDay: "before 10"})
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "09:30"}, slotTimes(res, "2025-01-06"), "the preference bounds the start, the service may run past it")

	res, err = f.engine.CheckAvailability(ctx, Query{BusinessID: "biz", ServiceID: "svc-60", From: "2025-01-06", To: "2025-01-06", TimeOfDay: "evening"})
	require.NoError(t, err)
	assert.Empty(t, res.Slots)

	res, err = f.engine.CheckAvailability(ctx, Query{BusinessID: "biz", ServiceID: "svc-60", From: "2025-01-06", To: "2025-01-06", TimeOfDay: "whenever suits"})
	require.NoError(t, err)
	assert.Len(t, res.Slots, 15, "unparseable preference means the whole business day")
}

func TestCheckAvailabilitySlotBoundsAndIdempotence(t *testing.T) {
	f := newFixture(t)
	f.now = time.Date(2025, 1, 7, 13, 5, 0, 0, time.UTC)
	f.staff.Put(staff.Member{ID: "s1", BusinessID: "biz", Name: "Ana"})
	f.appts.bookings = []scheduling.Booking{
		{AppointmentID: "a1", Date: "2025-01-08", Start: scheduling.NewClock(11, 0), DurationMinutes: 90, Staff: scheduling.Specific("s1")},
	}
	q := Query{BusinessID: "biz", ServiceID: "svc-60", Range: "next week"}

	first, err := f.engine.CheckAvailability(context.Background(), q)
	require.NoError(t, err)
	second, err := f.engine.CheckAvailability(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, first.Slots, second.Slots)

	q.Range = "this week"
	res, err := f.engine.CheckAvailability(context.Background(), q)
	require.NoError(t, err)
	require.NotEmpty(t, res.Slots)
	for _, s := range res.Slots {
		start, err := scheduling.ParseClock(s.Time)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, start, scheduling.NewClock(9, 0))
		assert.LessOrEqual(t, start.Add(s.DurationMinutes), scheduling.NewClock(17, 0))
		if s.Date == "2025-01-07" {
			assert.Greater(t, start, scheduling.NewClock(13, 5))
		}
		assert.GreaterOrEqual(t, s.Date, "2025-01-07")
	}
}

func TestCheckAvailabilityHorizonCap(t *testing.T) {
	f := newFixture(t)
	res, err := f.engine.CheckAvailability(context.Background(), Query{BusinessID: "biz", ServiceID: "svc-30", From: "2025-01-01", To: "2025-12-31"})
	require.NoError(t, err)
	assert.Equal(t, "2025-01-05", res.From, "past dates are skipped")
	assert.Equal(t, "2025-03-06", res.To, "range is capped 60 days out")
	assert.LessOrEqual(t, res.MaxDate, "2025-03-06")
}

func TestCheckAvailabilityErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.CheckAvailability(ctx, Query{BusinessID: "biz", ServiceID: "svc-nope"})
	assert.ErrorIs(t, err, scheduling.ErrUnknownService)

	_, err = f.engine.CheckAvailability(ctx, Query{BusinessID: "biz", ServiceID: "svc-30", From: "06/01/2025"})
	assert.ErrorIs(t, err, scheduling.ErrInvalidRange)

	f.appts.err = errors.New("connection refused")
	_, err = f.engine.CheckAvailability(ctx, Query{BusinessID: "biz", ServiceID: "svc-30", From: "2025-01-06", To: "2025-01-06"})
	assert.True(t, scheduling.IsStorage(err))
	assert.True(t, scheduling.IsRetryable(err))
}

func TestCheckAvailabilityMissingDayFallback(t *testing.T) {
	f := newFixture(t)
	cfg, err := f.configs.Get(context.Background(), "biz")
	require.NoError(t, err)
	cfg.BusinessHours.Sunday = nil
	require.NoError(t, f.configs.Set(context.Background(), cfg))
	q := Query{BusinessID: "biz", ServiceID: "svc-30", From: "2025-01-12", To: "2025-01-12"}

	res, err := f.engine.CheckAvailability(context.Background(), q)
	require.NoError(t, err)
	times := slotTimes(res, "2025-01-12")
	require.NotEmpty(t, times)
	assert.Equal(t, "17:30", times[len(times)-1], "fallback hours run 09:00-18:00")

	closedEngine := NewEngine(f.configs, f.staff, f.appts, business.NewResolver(nil, logging.Default()), Options{}, logging.Default()).
		WithClock(func() time.Time { return f.now })
	res, err = closedEngine.CheckAvailability(context.Background(), q)
	require.NoError(t, err)
	assert.Empty(t, res.Slots)
}

func TestResolveSlot(t *testing.T) {
	f := newFixture(t)
	f.staff.Put(staff.Member{ID: "s1", BusinessID: "biz", Name: "Ana"})
	f.staff.Put(staff.Member{ID: "s2", BusinessID: "biz", Name: "Bea", ServiceIDs: []string{"svc-30"}})
	ctx := context.Background()

	resolved, err := f.engine.ResolveSlot(ctx, "biz", "svc-60", "2025-01-06_09:00_s1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", resolved.StaffName)
	assert.Equal(t, 60, resolved.Booking().DurationMinutes)

	invalid := map[string]string{
		"past":          "2025-01-03_09:00_s1",
		"closed day":    "2025-01-11_09:00_s1",
		"before open":   "2025-01-06_08:30_s1",
		"runs past":     "2025-01-06_16:30_s1",
		"ineligible":    "2025-01-06_09:00_s2",
		"unknown staff": "2025-01-06_09:00_ghost",
		"malformed":     "tomorrow at nine",
		"beyond":        "2025-06-02_09:00_s1",
		"off grid":      "2025-01-06_09:07_s1",
		"quarter past":  "2025-01-06_10:15_s1",
		"pooled":        "2025-01-06_09:00_any",
	}
	for name, slotID := range invalid {
		t.Run(name, func(t *testing.T) {
			_, err := f.engine.ResolveSlot(ctx, "biz", "svc-60", slotID)
			assert.ErrorIs(t, err, scheduling.ErrInvalidSlot)
		})
	}

	_, err = f.engine.ResolveSlot(ctx, "biz", "svc-nope", "2025-01-06_09:00_s1")
	assert.ErrorIs(t, err, scheduling.ErrUnknownService)
}

func TestAlignUpKeepsOpeningGrid(t *testing.T) {
	open := scheduling.NewClock(9, 30)
	assert.Equal(t, scheduling.NewClock(12, 30), alignUp(open, scheduling.NewClock(12, 0), 45))
	assert.Equal(t, scheduling.NewClock(12, 0), alignUp(open, scheduling.NewClock(12, 0), 30))
	assert.True(t, onGrid(open, scheduling.NewClock(11, 45), 45))
	assert.False(t, onGrid(open, scheduling.NewClock(12, 0), 45))
}
