package domain

import (
	"time"

	"github.com/google/uuid"
)

// AssigneeMatch constrains assigned_staff_id in a conditional update.
type AssigneeMatch int

const (
	AnyAssignee AssigneeMatch = iota
	NoAssignee
	AssigneeIs
	AssigneeIsOrNone
)

// OrderExpect is the state an order must be in for a conditional update
// to apply. Zero values mean "don't care".
type OrderExpect struct {
	Statuses  []Status
	Assignee  AssigneeMatch
	StaffID   uuid.UUID
	Confirmed *bool
}

// OrderChange is the mutation applied when OrderExpect holds.
type OrderChange struct {
	Status          *Status
	AssignTo        *uuid.UUID
	ClearAssignment bool
	Confirm         bool
	ChangedBy       string
	At              time.Time
}

// Matches evaluates the expectation against an in-memory order.
func (e OrderExpect) Matches(o *Order) bool {
	if len(e.Statuses) > 0 {
		found := false
		for _, s := range e.Statuses {
			if o.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	switch e.Assignee {
	case NoAssignee:
		if o.AssignedStaffID != nil {
			return false
		}
	case AssigneeIs:
		if !o.IsAssignedTo(e.StaffID) {
			return false
		}
	case AssigneeIsOrNone:
		if o.AssignedStaffID != nil && *o.AssignedStaffID != e.StaffID {
			return false
		}
	}

	if e.Confirmed != nil && o.RestaurantConfirmed != *e.Confirmed {
		return false
	}
	return true
}

// Apply mutates o in place. Callers check Matches first.
func (c OrderChange) Apply(o *Order) {
	if c.Status != nil {
		o.Status = *c.Status
	}
	if c.AssignTo != nil {
		id := *c.AssignTo
		at := c.At
		o.AssignedStaffID = &id
		o.AssignedAt = &at
	}
	if c.ClearAssignment {
		o.AssignedStaffID = nil
		o.AssignedAt = nil
	}
	if c.Confirm {
		o.RestaurantConfirmed = true
	}
	o.UpdatedAt = c.At
}

// StatusPtr is a helper for building OrderChange literals.
func StatusPtr(s Status) *Status { return &s }

// BoolPtr is a helper for building OrderExpect literals.
func BoolPtr(b bool) *bool { return &b }
