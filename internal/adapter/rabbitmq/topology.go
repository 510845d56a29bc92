package rabbitmq

import (
	"fmt"

	"github.com/YelzhanWeb/dispatch/internal/domain"
	"github.com/google/uuid"
)

const (
	// DispatchExchange carries staff, room and global notifications.
	DispatchExchange = "dispatch_topic"
	// OrderEventsExchange carries order status changes.
	OrderEventsExchange = "order_events"

	OrderEventsQueue    = "dispatcher_order_events"
	orderEventsDLX      = "order_events_dlq"
	orderEventsDLQQueue = "dispatcher_order_events_dlq"

	GlobalKey        = "global"
	AllOrderEventKey = "order.*"
)

func StaffKey(id uuid.UUID) string {
	return fmt.Sprintf("staff.%s", id)
}

func RestaurantKey(id uuid.UUID) string {
	return fmt.Sprintf("restaurant.%s", id)
}

func OrderEventKey(status domain.Status) string {
	return fmt.Sprintf("order.%s", status)
}

func declareDispatchExchange(ch Channel) error {
	if err := ch.ExchangeDeclare(DispatchExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dispatch exchange: %w", err)
	}
	return nil
}

func declareOrderEventsExchange(ch Channel) error {
	if err := ch.ExchangeDeclare(OrderEventsExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare order events exchange: %w", err)
	}
	return nil
}
