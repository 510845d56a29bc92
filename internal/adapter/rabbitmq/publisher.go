package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/YelzhanWeb/dispatch/internal/interfaces"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

type publisher struct {
	conn Connection
}

// NewPublisher returns the broker-backed notification channel and order
// event publisher.
func NewPublisher(conn Connection) interfaces.MessagePublisher {
	return &publisher{conn: conn}
}

func (p *publisher) NotifyStaff(ctx context.Context, staffID uuid.UUID, msg interfaces.NotificationMessage) error {
	return p.publish(ctx, declareDispatchExchange, DispatchExchange, StaffKey(staffID), msg, false)
}

func (p *publisher) NotifyRestaurantRoom(ctx context.Context, restaurantID uuid.UUID, msg interfaces.NotificationMessage) error {
	return p.publish(ctx, declareDispatchExchange, DispatchExchange, RestaurantKey(restaurantID), msg, false)
}

func (p *publisher) NotifyGlobal(ctx context.Context, msg interfaces.NotificationMessage) error {
	return p.publish(ctx, declareDispatchExchange, DispatchExchange, GlobalKey, msg, false)
}

func (p *publisher) PublishOrderEvent(ctx context.Context, msg interfaces.OrderEventMessage) error {
	return p.publish(ctx, declareOrderEventsExchange, OrderEventsExchange, OrderEventKey(msg.NewStatus), msg, true)
}

func (p *publisher) publish(ctx context.Context, declare func(Channel) error, exchange, key string, msg any, persistent bool) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := declare(ch); err != nil {
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	pub := amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	}
	if persistent {
		pub.DeliveryMode = amqp.Persistent
	}

	if err := ch.PublishWithContext(ctx, exchange, key, false, false, pub); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}
