// Package staff is the read side of the staff directory used to decide who
// can perform a service.
package staff

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrNotFound is returned when a staff member does not exist for the business.
var ErrNotFound = errors.New("staff: not found")

// Member is a bookable staff member.
type Member struct {
	ID         string   `json:"id"`
	BusinessID string   `json:"business_id"`
	Name       string   `json:"name"`
	ServiceIDs []string `json:"service_ids"`
}

// Offers reports whether the member performs serviceID. An empty offered set
// means every service.
func (m Member) Offers(serviceID string) bool {
	if len(m.ServiceIDs) == 0 {
		return true
	}
	for _, id := range m.ServiceIDs {
		if id == serviceID {
			return true
		}
	}
	return false
}

// Directory lists active staff for a business.
type Directory interface {
	List(ctx context.Context, businessID string) ([]Member, error)
	Get(ctx context.Context, businessID, staffID string) (Member, error)
}

// Eligible filters members to those offering serviceID, preserving order.
func Eligible(members []Member, serviceID string) []Member {
	out := make([]Member, 0, len(members))
	for _, m := range members {
		if m.Offers(serviceID) {
			out = append(out, m)
		}
	}
	return out
}

// MemoryDirectory is an in-memory Directory.
type MemoryDirectory struct {
	mu      sync.RWMutex
	members map[string]map[string]Member
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{members: make(map[string]map[string]Member)}
}

// Put adds or replaces a member.
func (d *MemoryDirectory) Put(m Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.members[m.BusinessID] == nil {
		d.members[m.BusinessID] = make(map[string]Member)
	}
	d.members[m.BusinessID][m.ID] = m
}

func (d *MemoryDirectory) List(ctx context.Context, businessID string) ([]Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Member, 0, len(d.members[businessID]))
	for _, m := range d.members[businessID] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (d *MemoryDirectory) Get(ctx context.Context, businessID, staffID string) (Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.members[businessID][staffID]
	if !ok {
		return Member{}, ErrNotFound
	}
	return m, nil
}
