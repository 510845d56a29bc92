package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/YelzhanWeb/dispatch/internal/adapter/logger"
	"github.com/YelzhanWeb/dispatch/internal/adapter/memory"
	"github.com/YelzhanWeb/dispatch/internal/domain"
	"github.com/YelzhanWeb/dispatch/internal/interfaces"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedState interfaces.DispatchSnapshot

func (f fixedState) Snapshot() interfaces.DispatchSnapshot { return interfaces.DispatchSnapshot(f) }

func TestGetOrderStatus_AcceptanceDeadline(t *testing.T) {
	orders := memory.NewOrderStore()
	svc := NewService(orders, memory.NewStaffStore(), nil, time.Minute, logger.Nop())

	staffID := uuid.New()
	assignedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	offered := &domain.Order{ID: uuid.New(), Number: "ORD_1", Status: domain.StatusPending,
		AssignedStaffID: &staffID, AssignedAt: &assignedAt, RestaurantConfirmed: true}
	accepted := &domain.Order{ID: uuid.New(), Number: "ORD_2", Status: domain.StatusAccepted,
		AssignedStaffID: &staffID, AssignedAt: &assignedAt, RestaurantConfirmed: true}
	orders.Put(offered)
	orders.Put(accepted)

	got, err := svc.GetOrderStatus(context.Background(), offered.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AcceptanceDeadline)
	assert.Equal(t, assignedAt.Add(time.Minute), *got.AcceptanceDeadline)
	assert.Equal(t, &staffID, got.AssignedStaffID)

	got, err = svc.GetOrderStatus(context.Background(), accepted.ID)
	require.NoError(t, err)
	assert.Nil(t, got.AcceptanceDeadline)
	assert.Equal(t, domain.StatusAccepted, got.CurrentStatus)
}

func TestGetOrderStatus_NotFound(t *testing.T) {
	svc := NewService(memory.NewOrderStore(), memory.NewStaffStore(), nil, time.Minute, logger.Nop())

	_, err := svc.GetOrderStatus(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	_, err = svc.GetOrderHistory(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestGetOrderHistory(t *testing.T) {
	orders := memory.NewOrderStore()
	svc := NewService(orders, memory.NewStaffStore(), nil, time.Minute, logger.Nop())
	o := &domain.Order{ID: uuid.New(), Status: domain.StatusPending}
	orders.Put(o)

	_, err := orders.ConditionalUpdate(context.Background(), o.ID, domain.OrderExpect{},
		domain.OrderChange{Status: domain.StatusPtr(domain.StatusCancelled), ChangedBy: "customer", At: time.Now()})
	require.NoError(t, err)

	history, err := svc.GetOrderHistory(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.StatusCancelled, history[0].Status)
}

func TestGetStaffStatus(t *testing.T) {
	staff := memory.NewStaffStore()
	svc := NewService(memory.NewOrderStore(), staff, nil, time.Minute, logger.Nop())
	staff.Put(&domain.Staff{ID: uuid.New(), Name: "Bolat", Role: domain.RoleWaiter, Availability: domain.AvailabilityAvailable})
	staff.Put(&domain.Staff{ID: uuid.New(), Name: "Aruzhan", Role: domain.RoleDelivery, Availability: domain.AvailabilityUnavailable})

	got, err := svc.GetStaffStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Aruzhan", got[0].Name)
	assert.Equal(t, domain.AvailabilityUnavailable, got[0].Availability)
}

func TestGetDispatchState(t *testing.T) {
	offered, exhausted := uuid.New(), uuid.New()
	a, b := uuid.New(), uuid.New()
	state := fixedState{
		Tried:  map[uuid.UUID][]uuid.UUID{offered: {a, b}, exhausted: {a}},
		Timers: map[uuid.UUID]uuid.UUID{offered: b},
	}
	svc := NewService(memory.NewOrderStore(), memory.NewStaffStore(), state, time.Minute, logger.Nop())

	got, err := svc.GetDispatchState(context.Background())
	require.NoError(t, err)
	require.Len(t, got.Orders, 2)

	byID := map[uuid.UUID]interfaces.DispatchOrderState{}
	for _, o := range got.Orders {
		byID[o.OrderID] = o
	}
	assert.Equal(t, &b, byID[offered].PendingStaff)
	assert.Equal(t, []uuid.UUID{a, b}, byID[offered].TriedStaff)
	assert.Nil(t, byID[exhausted].PendingStaff)
}

func TestGetDispatchState_NoEngine(t *testing.T) {
	svc := NewService(memory.NewOrderStore(), memory.NewStaffStore(), nil, time.Minute, logger.Nop())

	got, err := svc.GetDispatchState(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got.Orders)
}
