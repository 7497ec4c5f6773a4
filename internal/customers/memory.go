package customers

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryDirectory keeps customers in process memory.
type MemoryDirectory struct {
	mu        sync.RWMutex
	customers map[string]*Customer
	now       func() time.Time
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		customers: make(map[string]*Customer),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Get returns a customer by id.
func (d *MemoryDirectory) Get(ctx context.Context, businessID, customerID string) (Customer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.customers[customerID]
	if !ok || c.BusinessID != businessID {
		return Customer{}, ErrNotFound
	}
	return *c, nil
}

// Resolve finds a customer by id, phone, then email, creating one when none matches.
func (d *MemoryDirectory) Resolve(businessID string, id Identity) Customer {
	d.mu.Lock()
	defer d.mu.Unlock()

	if id.CustomerID != "" {
		if c, ok := d.customers[id.CustomerID]; ok && c.BusinessID == businessID {
			return *c
		}
	}
	for _, c := range d.customers {
		if c.BusinessID != businessID {
			continue
		}
		if id.Phone != "" && c.Phone == id.Phone {
			return *c
		}
	}
	for _, c := range d.customers {
		if c.BusinessID != businessID {
			continue
		}
		if id.Email != "" && c.Email == id.Email {
			return *c
		}
	}

	first, last := SplitName(id.Name)
	now := d.now()
	c := &Customer{
		ID:         uuid.NewString(),
		BusinessID: businessID,
		FirstName:  first,
		LastName:   last,
		Phone:      id.Phone,
		Email:      id.Email,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	d.customers[c.ID] = c
	return *c
}

// RecordVisit increments the visit counter. The favourite service is simply
// the most recently booked one.
func (d *MemoryDirectory) RecordVisit(businessID, customerID, serviceID, visitDate string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.customers[customerID]
	if !ok || c.BusinessID != businessID {
		return ErrNotFound
	}
	c.VisitCount++
	c.LastVisitDate = visitDate
	c.FavoriteServiceID = serviceID
	c.UpdatedAt = d.now()
	return nil
}
