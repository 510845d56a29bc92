package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/YelzhanWeb/dispatch/internal/adapter/logger"
	"github.com/YelzhanWeb/dispatch/internal/domain"
	"github.com/YelzhanWeb/dispatch/internal/interfaces"
	"github.com/google/uuid"
)

type Service struct {
	orders    interfaces.OrderRepository
	staff     interfaces.StaffRepository
	publisher interfaces.MessagePublisher
	clearer   interfaces.DispatchStateClearer
	roles     domain.RoleMap
	logger    logger.Logger
	now       func() time.Time
}

// NewService wires the order lifecycle. clearer may be nil when the
// dispatch engine runs in another process; it then learns about the
// change from the order-event stream.
func NewService(
	orders interfaces.OrderRepository,
	staff interfaces.StaffRepository,
	publisher interfaces.MessagePublisher,
	clearer interfaces.DispatchStateClearer,
	roles domain.RoleMap,
	logger logger.Logger,
) *Service {
	return &Service{
		orders:    orders,
		staff:     staff,
		publisher: publisher,
		clearer:   clearer,
		roles:     roles,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

var _ interfaces.OrderService = (*Service)(nil)

// Confirm marks the order as confirmed by the restaurant, which makes it
// eligible for dispatch. Confirming twice is a no-op.
func (s *Service) Confirm(ctx context.Context, orderID uuid.UUID, changedBy string) (*domain.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() || order.Status == domain.StatusAccepted {
		return nil, fmt.Errorf("%w: cannot confirm %s order", domain.ErrInvalidStatusTransition, order.Status)
	}
	if order.RestaurantConfirmed {
		return order, nil
	}

	return s.apply(ctx, order,
		domain.OrderExpect{
			Statuses:  []domain.Status{domain.StatusPending, domain.StatusPreparing, domain.StatusReady},
			Confirmed: domain.BoolPtr(false),
		},
		domain.OrderChange{Confirm: true, ChangedBy: changedBy})
}

// Accept hands the order to staffID. The order must be pending and either
// offered to staffID or unassigned (picked up after a broadcast).
func (s *Service) Accept(ctx context.Context, orderID, staffID uuid.UUID) (*domain.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	member, err := s.staff.FindByID(ctx, staffID)
	if err != nil {
		return nil, err
	}

	role, err := s.roles.RoleFor(order.Type)
	if err != nil {
		return nil, err
	}
	if member.Role != role {
		return nil, fmt.Errorf("%w: %s cannot take %s orders", domain.ErrRoleMismatch, member.Role, order.Type)
	}
	if order.Status != domain.StatusPending {
		return nil, fmt.Errorf("%w: cannot accept %s order", domain.ErrInvalidStatusTransition, order.Status)
	}
	if order.AssignedStaffID != nil && !order.IsAssignedTo(staffID) {
		return nil, fmt.Errorf("%w: order is offered to another staff member", domain.ErrConflict)
	}

	return s.apply(ctx, order,
		domain.OrderExpect{
			Statuses: []domain.Status{domain.StatusPending},
			Assignee: domain.AssigneeIsOrNone,
			StaffID:  staffID,
		},
		domain.OrderChange{
			Status:    domain.StatusPtr(domain.StatusAccepted),
			AssignTo:  &staffID,
			ChangedBy: member.Name,
		})
}

func (s *Service) Cancel(ctx context.Context, orderID uuid.UUID, changedBy string) (*domain.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.CanTransitionTo(domain.StatusCancelled) {
		return nil, fmt.Errorf("%w: order is already %s", domain.ErrInvalidStatusTransition, order.Status)
	}

	return s.apply(ctx, order,
		domain.OrderExpect{Statuses: domain.SourcesFor(domain.StatusCancelled)},
		domain.OrderChange{Status: domain.StatusPtr(domain.StatusCancelled), ChangedBy: changedBy})
}

// Complete closes an order that staffID accepted earlier.
func (s *Service) Complete(ctx context.Context, orderID, staffID uuid.UUID) (*domain.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.CanTransitionTo(domain.StatusCompleted) {
		return nil, fmt.Errorf("%w: cannot complete %s order", domain.ErrInvalidStatusTransition, order.Status)
	}
	if !order.IsAssignedTo(staffID) {
		return nil, fmt.Errorf("%w: order was accepted by another staff member", domain.ErrConflict)
	}
	member, err := s.staff.FindByID(ctx, staffID)
	if err != nil {
		return nil, err
	}

	return s.apply(ctx, order,
		domain.OrderExpect{
			Statuses: []domain.Status{domain.StatusAccepted},
			Assignee: domain.AssigneeIs,
			StaffID:  staffID,
		},
		domain.OrderChange{Status: domain.StatusPtr(domain.StatusCompleted), ChangedBy: member.Name})
}

func (s *Service) SetStaffAvailability(ctx context.Context, staffID uuid.UUID, availability domain.Availability) (*domain.Staff, error) {
	if _, err := domain.ParseAvailability(string(availability)); err != nil {
		return nil, err
	}
	if err := s.staff.SetAvailability(ctx, staffID, availability); err != nil {
		return nil, err
	}

	s.logger.Info("staff_availability_changed", "Staff availability updated", "", map[string]interface{}{
		"staff_id":     staffID.String(),
		"availability": availability,
	})
	return s.staff.FindByID(ctx, staffID)
}

// apply runs the guarded update, then tells the dispatcher and the
// restaurant room about it.
func (s *Service) apply(ctx context.Context, order *domain.Order, expect domain.OrderExpect, change domain.OrderChange) (*domain.Order, error) {
	oldStatus := order.Status
	change.At = s.now()

	applied, err := s.orders.ConditionalUpdate(ctx, order.ID, expect, change)
	if err != nil {
		s.logger.Error("db_transaction_failed", "Failed to update order", order.Number, nil, err)
		return nil, err
	}
	if !applied {
		s.logger.Debug("order_update_conflict", "Order changed concurrently", order.Number, map[string]interface{}{
			"order_id": order.ID.String(),
		})
		return nil, domain.ErrConflict
	}

	updated, err := s.orders.FindByID(ctx, order.ID)
	if err != nil {
		if !errors.Is(err, domain.ErrOrderNotFound) {
			s.logger.Warn("order_reload_failed", "Using locally updated order", order.Number, map[string]interface{}{
				"error": err.Error(),
			})
		}
		change.Apply(order)
		updated = order
	}

	if updated.Status != domain.StatusPending && s.clearer != nil {
		s.clearer.ClearDispatchState(updated.ID)
	}

	s.logger.Info("order_status_updated", fmt.Sprintf("Order %s: %s -> %s", updated.Number, oldStatus, updated.Status), updated.Number, map[string]interface{}{
		"order_id":   updated.ID.String(),
		"old_status": oldStatus,
		"new_status": updated.Status,
		"changed_by": change.ChangedBy,
	})

	s.publish(ctx, updated, oldStatus, change)
	return updated, nil
}

// publish is best effort: the update is already committed.
func (s *Service) publish(ctx context.Context, order *domain.Order, oldStatus domain.Status, change domain.OrderChange) {
	event := interfaces.OrderEventMessage{
		OrderID:   order.ID,
		OldStatus: oldStatus,
		NewStatus: order.Status,
		ChangedBy: change.ChangedBy,
		Timestamp: change.At,
	}
	if err := s.publisher.PublishOrderEvent(ctx, event); err != nil {
		s.logger.Error("rabbitmq_publish_failed", "Failed to publish order event", order.Number, nil, err)
	}

	msg := interfaces.NotificationMessage{
		Event:        interfaces.EventOrderUpdated,
		OrderID:      order.ID,
		StaffID:      order.AssignedStaffID,
		RestaurantID: order.RestaurantID,
		Order:        interfaces.NewOrderPayload(order),
		Timestamp:    change.At,
	}
	if err := s.publisher.NotifyRestaurantRoom(ctx, order.RestaurantID, msg); err != nil {
		s.logger.Error("rabbitmq_publish_failed", "Failed to notify restaurant room", order.Number, nil, err)
	}
}
