package interfaces

import (
	"context"
	"time"

	"github.com/YelzhanWeb/dispatch/internal/domain"
	"github.com/google/uuid"
)

// DispatchStateClearer is implemented by the dispatch engine. The order
// lifecycle calls it synchronously when an order leaves pending.
type DispatchStateClearer interface {
	ClearDispatchState(orderID uuid.UUID)
}

// Интерфейсы Сервисов (Business Logic)
type OrderService interface {
	Confirm(ctx context.Context, orderID uuid.UUID, changedBy string) (*domain.Order, error)
	Accept(ctx context.Context, orderID, staffID uuid.UUID) (*domain.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID, changedBy string) (*domain.Order, error)
	Complete(ctx context.Context, orderID, staffID uuid.UUID) (*domain.Order, error)
	SetStaffAvailability(ctx context.Context, staffID uuid.UUID, availability domain.Availability) (*domain.Staff, error)
}

type TrackingService interface {
	GetOrderStatus(ctx context.Context, orderID uuid.UUID) (*TrackingOrderResponse, error)
	GetOrderHistory(ctx context.Context, orderID uuid.UUID) ([]*domain.StatusLog, error)
	GetStaffStatus(ctx context.Context) ([]*TrackingStaffResponse, error)
	GetDispatchState(ctx context.Context) (*DispatchStateResponse, error)
}

// Ответы Tracking Service
type TrackingOrderResponse struct {
	OrderID             uuid.UUID
	OrderNumber         string
	CurrentStatus       domain.Status
	UpdatedAt           time.Time
	AssignedStaffID     *uuid.UUID
	AcceptanceDeadline  *time.Time
	RestaurantConfirmed bool
}

type TrackingStaffResponse struct {
	StaffID        uuid.UUID
	Name           string
	Role           domain.StaffRole
	Availability   domain.Availability
	LastAssignedAt *time.Time
}

// DispatchSnapshot is a point-in-time copy of the engine's attempt state.
type DispatchSnapshot struct {
	Tried  map[uuid.UUID][]uuid.UUID
	Timers map[uuid.UUID]uuid.UUID
}

type DispatchStateResponse struct {
	Orders []DispatchOrderState
}

type DispatchOrderState struct {
	OrderID      uuid.UUID
	TriedStaff   []uuid.UUID
	PendingStaff *uuid.UUID
}
