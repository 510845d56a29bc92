package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order represents a customer order as seen by the dispatcher.
type Order struct {
	ID                  uuid.UUID
	Number              string
	RestaurantID        uuid.UUID
	Type                OrderType
	Status              Status
	AssignedStaffID     *uuid.UUID
	AssignedAt          *time.Time
	RestaurantConfirmed bool
	TableNumber         *string
	DeliveryAddress     *string
	PhoneNumber         string
	Notes               *string
	Items               []OrderItem
	TotalPrice          decimal.Decimal
	DeliveryFee         decimal.Decimal
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// OrderItem represents an item in an order
type OrderItem struct {
	ID       int
	OrderID  uuid.UUID
	Name     string
	Quantity int
	Price    decimal.Decimal
}

// IsAssignedTo reports whether the order is currently held by staffID.
func (o *Order) IsAssignedTo(staffID uuid.UUID) bool {
	return o.AssignedStaffID != nil && *o.AssignedStaffID == staffID
}

// AwaitingAcceptance is true while a dispatched order waits on its assignee.
func (o *Order) AwaitingAcceptance() bool {
	return o.Status == StatusPending && o.AssignedStaffID != nil
}

// Dispatchable is true for confirmed pending orders nobody holds.
func (o *Order) Dispatchable() bool {
	return o.Status == StatusPending && o.AssignedStaffID == nil && o.RestaurantConfirmed
}

// IsStale reports whether an unconfirmed pending order was created at or before cutoff.
func (o *Order) IsStale(cutoff time.Time) bool {
	return o.Status == StatusPending && !o.RestaurantConfirmed && !o.CreatedAt.After(cutoff)
}

// CanTransitionTo checks if the order can transition to the new status
func (o *Order) CanTransitionTo(newStatus Status) bool {
	return CanTransition(o.Status, newStatus)
}

var validTransitions = map[Status][]Status{
	StatusPending:   {StatusPreparing, StatusReady, StatusAccepted, StatusCancelled},
	StatusPreparing: {StatusReady, StatusAccepted, StatusCancelled},
	StatusReady:     {StatusAccepted, StatusCancelled},
	StatusAccepted:  {StatusCompleted, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

// CanTransition reports whether from -> to is an allowed status change.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SourcesFor lists every status that may move to target.
func SourcesFor(target Status) []Status {
	var out []Status
	for _, from := range []Status{StatusPending, StatusPreparing, StatusReady, StatusAccepted, StatusCompleted, StatusCancelled} {
		if CanTransition(from, target) {
			out = append(out, from)
		}
	}
	return out
}

var (
	ErrOrderNotFound           = errors.New("order not found")
	ErrStaffNotFound           = errors.New("staff member not found")
	ErrNoEligibleStaff         = errors.New("no eligible staff")
	ErrUnmappedOrderType       = errors.New("order type has no staff role mapping")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrConflict                = errors.New("order was modified concurrently")
	ErrInvalidAvailability     = errors.New("availability must be available or unavailable")
	ErrRoleMismatch            = errors.New("staff role cannot serve this order type")
)
