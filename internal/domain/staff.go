package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Staff represents a waiter or delivery person who can be offered orders.
type Staff struct {
	ID             uuid.UUID
	Name           string
	PhoneNumber    string
	Role           StaffRole
	Availability   Availability
	LastAssignedAt *time.Time
	CreatedAt      time.Time
}

// IsAvailable reports whether the staff member accepts new offers.
func (s *Staff) IsAvailable() bool {
	return s.Availability == AvailabilityAvailable
}

// AssignedBefore orders staff for round-robin selection. Never-assigned
// staff come first, ties fall back to creation time.
func (s *Staff) AssignedBefore(other *Staff) bool {
	switch {
	case s.LastAssignedAt == nil && other.LastAssignedAt == nil:
		return s.CreatedAt.Before(other.CreatedAt)
	case s.LastAssignedAt == nil:
		return true
	case other.LastAssignedAt == nil:
		return false
	case s.LastAssignedAt.Equal(*other.LastAssignedAt):
		return s.CreatedAt.Before(other.CreatedAt)
	default:
		return s.LastAssignedAt.Before(*other.LastAssignedAt)
	}
}

// RoleMap tells which staff role serves each order type.
type RoleMap map[OrderType]StaffRole

// DefaultRoleMap mirrors the restaurant floor: waiters handle table and
// counter orders, couriers handle deliveries.
func DefaultRoleMap() RoleMap {
	return RoleMap{
		OrderTypeDineIn:   RoleWaiter,
		OrderTypeTakeaway: RoleWaiter,
		OrderTypeDelivery: RoleDelivery,
	}
}

// RoleFor returns the role required for t.
func (m RoleMap) RoleFor(t OrderType) (StaffRole, error) {
	role, ok := m[t]
	if !ok || role == "" {
		return "", fmt.Errorf("%w: %q", ErrUnmappedOrderType, t)
	}
	return role, nil
}
