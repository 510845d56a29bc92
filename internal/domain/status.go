package domain

import (
	"time"

	"github.com/google/uuid"
)

type OrderType string

const (
	OrderTypeDineIn   OrderType = "Dine-In"
	OrderTypeTakeaway OrderType = "Takeaway"
	OrderTypeDelivery OrderType = "Delivery"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusAccepted  Status = "accepted"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type StaffRole string

const (
	RoleWaiter   StaffRole = "waiter"
	RoleDelivery StaffRole = "delivery"
)

type Availability string

const (
	AvailabilityAvailable   Availability = "available"
	AvailabilityUnavailable Availability = "unavailable"
)

// ParseAvailability validates a client supplied availability value.
func ParseAvailability(s string) (Availability, error) {
	switch a := Availability(s); a {
	case AvailabilityAvailable, AvailabilityUnavailable:
		return a, nil
	default:
		return "", ErrInvalidAvailability
	}
}

// StatusLog represents a log entry for order status changes
type StatusLog struct {
	ID        int
	OrderID   uuid.UUID
	Status    Status
	ChangedBy string
	ChangedAt time.Time
	Notes     *string
}
