package waitlist

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store persists entries and notifications. MarkNotified, Resolve and Cancel
// change an entry and its pending notification together.
type Store interface {
	Insert(ctx context.Context, entry *Entry) error
	// FindWaitingByContact matches a waiting entry for the service by phone or email.
	FindWaitingByContact(ctx context.Context, businessID, serviceID, phone, email string) (*Entry, error)
	UpdatePreferences(ctx context.Context, businessID, entryID string, dates, times []string, notes string) (*Entry, error)
	Get(ctx context.Context, businessID, entryID string) (*Entry, error)
	// ListWaiting returns waiting entries for a service ordered by created_at, then id.
	ListWaiting(ctx context.Context, businessID, serviceID string) ([]Entry, error)
	// MarkNotified moves a waiting entry to notified and records n as pending.
	MarkNotified(ctx context.Context, n *Notification) (*Entry, error)
	PendingNotification(ctx context.Context, businessID, entryID string) (*Notification, error)
	// Resolve answers the pending notification of a notified entry and moves
	// the entry to entryTo.
	Resolve(ctx context.Context, businessID, entryID string, entryTo Status, response Response, bookedAppointmentID string) (*Entry, *Notification, error)
	// Cancel withdraws a waiting or notified entry, expiring any pending notification.
	Cancel(ctx context.Context, businessID, entryID string) (*Entry, error)
}

// MemoryStore is an in-process Store guarded by one mutex.
type MemoryStore struct {
	mu            sync.Mutex
	entries       map[string]*Entry
	notifications map[string]*Notification
	pending       map[string]string
	now           func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:       make(map[string]*Entry),
		notifications: make(map[string]*Notification),
		pending:       make(map[string]string),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) Insert(ctx context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[entry.ID]; ok {
		return fmt.Errorf("waitlist: duplicate entry id %s", entry.ID)
	}
	m.entries[entry.ID] = entry.clone()
	return nil
}

func (m *MemoryStore) FindWaitingByContact(ctx context.Context, businessID, serviceID, phone, email string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *Entry
	for _, e := range m.entries {
		if e.BusinessID != businessID || e.ServiceID != serviceID || e.Status != StatusWaiting {
			continue
		}
		if (phone != "" && e.CustomerPhone == phone) || (email != "" && e.CustomerEmail == email) {
			if found == nil || e.CreatedAt.Before(found.CreatedAt) {
				found = e
			}
		}
	}
	if found == nil {
		return nil, ErrEntryNotFound
	}
	return found.clone(), nil
}

func (m *MemoryStore) UpdatePreferences(ctx context.Context, businessID, entryID string, dates, times []string, notes string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.entry(businessID, entryID)
	if err != nil {
		return nil, err
	}
	e.PreferredDates = append([]string(nil), dates...)
	e.PreferredTimes = append([]string(nil), times...)
	if notes != "" {
		e.Notes = notes
	}
	e.UpdatedAt = m.now()
	return e.clone(), nil
}

func (m *MemoryStore) Get(ctx context.Context, businessID, entryID string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.entry(businessID, entryID)
	if err != nil {
		return nil, err
	}
	return e.clone(), nil
}

func (m *MemoryStore) ListWaiting(ctx context.Context, businessID, serviceID string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.entries {
		if e.BusinessID == businessID && e.ServiceID == serviceID && e.Status == StatusWaiting {
			out = append(out, *e.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) MarkNotified(ctx context.Context, n *Notification) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.entry(n.BusinessID, n.EntryID)
	if err != nil {
		return nil, err
	}
	if _, ok := m.pending[e.ID]; ok || e.Status == StatusNotified {
		return nil, ErrAlreadyNotified
	}
	if e.Status != StatusWaiting {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, e.Status, StatusNotified)
	}
	stored := n.clone()
	stored.Response = ResponsePending
	m.notifications[stored.ID] = stored
	m.pending[e.ID] = stored.ID
	e.Status = StatusNotified
	e.UpdatedAt = m.now()
	return e.clone(), nil
}

func (m *MemoryStore) PendingNotification(ctx context.Context, businessID, entryID string) (*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.entry(businessID, entryID); err != nil {
		return nil, err
	}
	id, ok := m.pending[entryID]
	if !ok {
		return nil, ErrNoPendingNotification
	}
	return m.notifications[id].clone(), nil
}

func (m *MemoryStore) Resolve(ctx context.Context, businessID, entryID string, entryTo Status, response Response, bookedAppointmentID string) (*Entry, *Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.entry(businessID, entryID)
	if err != nil {
		return nil, nil, err
	}
	id, ok := m.pending[entryID]
	if !ok || e.Status != StatusNotified {
		return nil, nil, ErrNoPendingNotification
	}
	now := m.now()
	n := m.notifications[id]
	n.Response = response
	n.BookedAppointmentID = bookedAppointmentID
	n.RespondedAt = &now
	delete(m.pending, entryID)
	e.Status = entryTo
	e.UpdatedAt = now
	return e.clone(), n.clone(), nil
}

func (m *MemoryStore) Cancel(ctx context.Context, businessID, entryID string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.entry(businessID, entryID)
	if err != nil {
		return nil, err
	}
	if e.Status != StatusWaiting && e.Status != StatusNotified {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, e.Status, StatusCancelled)
	}
	now := m.now()
	if id, ok := m.pending[entryID]; ok {
		n := m.notifications[id]
		n.Response = ResponseExpired
		n.RespondedAt = &now
		delete(m.pending, entryID)
	}
	e.Status = StatusCancelled
	e.UpdatedAt = now
	return e.clone(), nil
}

// entry must be called with mu held.
func (m *MemoryStore) entry(businessID, entryID string) (*Entry, error) {
	e, ok := m.entries[entryID]
	if !ok || e.BusinessID != businessID {
		return nil, ErrEntryNotFound
	}
	return e, nil
}
