package interfaces

import (
	"context"
	"time"

	"github.com/YelzhanWeb/dispatch/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Dispatch events delivered over the notification channel.
const (
	EventOrderAssigned        = "order_assigned"
	EventOrderUnassigned      = "order_unassigned"
	EventOrderAvailable       = "order_available"
	EventOrderAvailableGlobal = "order_available_global"
	EventOrderCancelled       = "order_cancelled"
	EventOrderUpdated         = "order_updated"
)

// Сообщения RabbitMQ
type NotificationMessage struct {
	Event        string        `json:"event"`
	OrderID      uuid.UUID     `json:"order_id"`
	StaffID      *uuid.UUID    `json:"staff_id,omitempty"`
	RestaurantID uuid.UUID     `json:"restaurant_id"`
	Order        *OrderPayload `json:"order,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

type OrderPayload struct {
	ID                  uuid.UUID          `json:"id"`
	OrderNumber         string             `json:"order_number"`
	RestaurantID        uuid.UUID          `json:"restaurant_id"`
	OrderType           domain.OrderType   `json:"order_type"`
	Status              domain.Status      `json:"status"`
	AssignedStaffID     *uuid.UUID         `json:"assigned_staff_id"`
	AssignedAt          *time.Time         `json:"assigned_at,omitempty"`
	RestaurantConfirmed bool               `json:"restaurant_confirmed"`
	TableNumber         *string            `json:"table_number,omitempty"`
	DeliveryAddress     *string            `json:"delivery_address,omitempty"`
	PhoneNumber         string             `json:"phone_number"`
	Notes               *string            `json:"notes,omitempty"`
	Items               []OrderItemPayload `json:"items"`
	TotalPrice          decimal.Decimal    `json:"total_price"`
	DeliveryFee         decimal.Decimal    `json:"delivery_fee"`
	CreatedAt           time.Time          `json:"created_at"`
}

type OrderItemPayload struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// NewOrderPayload flattens an order for delivery to clients.
func NewOrderPayload(o *domain.Order) *OrderPayload {
	items := make([]OrderItemPayload, len(o.Items))
	for i, it := range o.Items {
		items[i] = OrderItemPayload{Name: it.Name, Quantity: it.Quantity, Price: it.Price}
	}
	return &OrderPayload{
		ID:                  o.ID,
		OrderNumber:         o.Number,
		RestaurantID:        o.RestaurantID,
		OrderType:           o.Type,
		Status:              o.Status,
		AssignedStaffID:     o.AssignedStaffID,
		AssignedAt:          o.AssignedAt,
		RestaurantConfirmed: o.RestaurantConfirmed,
		TableNumber:         o.TableNumber,
		DeliveryAddress:     o.DeliveryAddress,
		PhoneNumber:         o.PhoneNumber,
		Notes:               o.Notes,
		Items:               items,
		TotalPrice:          o.TotalPrice,
		DeliveryFee:         o.DeliveryFee,
		CreatedAt:           o.CreatedAt,
	}
}

type OrderEventMessage struct {
	OrderID   uuid.UUID     `json:"order_id"`
	OldStatus domain.Status `json:"old_status"`
	NewStatus domain.Status `json:"new_status"`
	ChangedBy string        `json:"changed_by"`
	Timestamp time.Time     `json:"timestamp"`
}

// Notifier is the real-time notification channel with its three
// addressing modes.
type Notifier interface {
	NotifyStaff(ctx context.Context, staffID uuid.UUID, msg NotificationMessage) error
	NotifyRestaurantRoom(ctx context.Context, restaurantID uuid.UUID, msg NotificationMessage) error
	NotifyGlobal(ctx context.Context, msg NotificationMessage) error
}

// Интерфейсы Messaging (Adapter/RabbitMQ)
type MessagePublisher interface {
	Notifier
	PublishOrderEvent(ctx context.Context, msg OrderEventMessage) error
}

type MessageConsumer interface {
	ConsumeOrderEvents(ctx context.Context, handler OrderEventHandler) error
	ConsumeNotifications(ctx context.Context, bindings []string, handler NotificationHandler) error
}

type (
	OrderEventHandler   func(ctx context.Context, body []byte) error
	NotificationHandler func(ctx context.Context, body []byte) error
)
