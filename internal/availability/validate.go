package availability

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/booking-engine/internal/business"
	"github.com/wolfman30/booking-engine/internal/scheduling"
	"github.com/wolfman30/booking-engine/internal/staff"
)

// ResolvedSlot is a slot id checked against hours, horizon and staff
// eligibility. It says nothing about conflicts; those are re-checked inside
// the booking transaction.
type ResolvedSlot struct {
	Key       scheduling.SlotKey
	Service   business.Service
	StaffName string
	Config    *business.Config
}

// Booking returns the interval the slot would occupy.
func (r *ResolvedSlot) Booking() scheduling.Booking {
	return scheduling.Booking{
		Date:            r.Key.Date,
		Start:           r.Key.Start,
		DurationMinutes: r.Service.DurationMinutes,
		Staff:           r.Key.Staff,
	}
}

// ResolveSlot decodes slotID and verifies it could have been produced by
// CheckAvailability for serviceID, ignoring existing bookings.
func (e *Engine) ResolveSlot(ctx context.Context, businessID, serviceID, slotID string) (*ResolvedSlot, error) {
	key, err := scheduling.DecodeSlotID(slotID)
	if err != nil {
		return nil, err
	}
	cfg, err := e.Config(ctx, businessID)
	if err != nil {
		return nil, err
	}
	svc, ok := cfg.Service(serviceID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", scheduling.ErrUnknownService, serviceID)
	}

	day, _ := scheduling.ParseDate(key.Date)
	today, nowClock := cfg.LocalNow(e.now())
	if day.Before(today) || (day.Equal(today) && key.Start <= nowClock) {
		return nil, fmt.Errorf("%w: %s is in the past", scheduling.ErrInvalidSlot, slotID)
	}
	if day.After(today.AddDate(0, 0, e.opts.MaxHorizonDays)) {
		return nil, fmt.Errorf("%w: %s is beyond the booking horizon", scheduling.ErrInvalidSlot, slotID)
	}
	window, res := e.resolver.Resolve(cfg, day)
	if res == business.ResolutionClosed {
		return nil, fmt.Errorf("%w: business closed on %s", scheduling.ErrInvalidSlot, key.Date)
	}
	if key.Start < window.Open || key.Start.Add(svc.DurationMinutes) > window.Close {
		return nil, fmt.Errorf("%w: %s outside business hours", scheduling.ErrInvalidSlot, slotID)
	}
	if !onGrid(window.Open, key.Start, e.generator.stepMinutes) {
		return nil, fmt.Errorf("%w: %s is not on the %d minute grid", scheduling.ErrInvalidSlot, slotID, e.generator.stepMinutes)
	}

	resolved := &ResolvedSlot{Key: key, Service: svc, Config: cfg}
	lookupCtx, cancel := context.WithTimeout(ctx, e.opts.StorageTimeout)
	defer cancel()
	staffID, specific := key.Staff.ID()
	if !specific {
		members, err := e.staff.List(lookupCtx, businessID)
		if err != nil {
			return nil, scheduling.Storage("staff list", err)
		}
		if len(staff.Eligible(members, svc.ID)) > 0 {
			return nil, fmt.Errorf("%w: %q is offered by named staff, not the shared pool", scheduling.ErrInvalidSlot, svc.ID)
		}
		return resolved, nil
	}
	m, err := e.staff.Get(lookupCtx, businessID, staffID)
	if errors.Is(err, staff.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown staff %q", scheduling.ErrInvalidSlot, staffID)
	}
	if err != nil {
		return nil, scheduling.Storage("staff get", err)
	}
	if !m.Offers(svc.ID) {
		return nil, fmt.Errorf("%w: staff %q does not offer %q", scheduling.ErrInvalidSlot, staffID, svc.ID)
	}
	resolved.StaffName = m.Name
	return resolved, nil
}
