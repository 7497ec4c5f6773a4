package scheduling

import (
	"encoding/json"
	"strings"
)

const anyStaffToken = "any"

// StaffRef identifies the resource a slot or appointment is held against.
// The zero value is AnyAvailable: the booking is not pinned to a staff member
// and therefore competes with every staff member of the business.
type StaffRef struct {
	id string
}

// Specific pins a reference to one staff member. A blank id yields AnyAvailable.
func Specific(id string) StaffRef {
	return StaffRef{id: strings.TrimSpace(id)}
}

// AnyAvailable is the "no particular staff" reference.
func AnyAvailable() StaffRef {
	return StaffRef{}
}

// StaffRefFromPtr converts a nullable column value.
func StaffRefFromPtr(id *string) StaffRef {
	if id == nil {
		return AnyAvailable()
	}
	return Specific(*id)
}

// IsAny reports whether the reference is the AnyAvailable variant.
func (r StaffRef) IsAny() bool {
	return r.id == ""
}

// ID returns the staff id and true for a Specific reference.
func (r StaffRef) ID() (string, bool) {
	return r.id, r.id != ""
}

// Ptr returns nil for AnyAvailable, suitable for nullable columns.
func (r StaffRef) Ptr() *string {
	if r.IsAny() {
		return nil
	}
	id := r.id
	return &id
}

// SharesPool reports whether two references compete for the same resource.
func (r StaffRef) SharesPool(other StaffRef) bool {
	return r.IsAny() || other.IsAny() || r.id == other.id
}

func (r StaffRef) String() string {
	if r.IsAny() {
		return anyStaffToken
	}
	return r.id
}

// MarshalJSON encodes AnyAvailable as null.
func (r StaffRef) MarshalJSON() ([]byte, error) {
	if r.IsAny() {
		return []byte("null"), nil
	}
	return json.Marshal(r.id)
}

// UnmarshalJSON accepts null, "" or "any" as AnyAvailable.
func (r *StaffRef) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = AnyAvailable()
		return nil
	}
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	*r = parseStaffToken(id)
	return nil
}

func parseStaffToken(token string) StaffRef {
	token = strings.TrimSpace(token)
	if token == "" || strings.EqualFold(token, anyStaffToken) {
		return AnyAvailable()
	}
	return Specific(token)
}
