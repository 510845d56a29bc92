package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"github.com/YelzhanWeb/dispatch/internal/adapter/logger"
	"github.com/YelzhanWeb/dispatch/internal/interfaces"
	amqp "github.com/rabbitmq/amqp091-go"
)

const reconnectDelay = 5 * time.Second

type consumer struct {
	conn     Connection
	prefetch int
	logger   logger.Logger
	retry    time.Duration
}

func NewConsumer(conn Connection, prefetch int, logger logger.Logger) interfaces.MessageConsumer {
	return &consumer{conn: conn, prefetch: prefetch, logger: logger, retry: reconnectDelay}
}

// subscription describes one queue: how to declare it and how to treat
// handler results.
type subscription struct {
	name    string
	setup   func(ch Channel) (string, error)
	autoAck bool
	handle  func(ctx context.Context, body []byte) error
}

// ConsumeOrderEvents feeds order status changes to handler. Failed
// messages are dead-lettered.
func (c *consumer) ConsumeOrderEvents(ctx context.Context, handler interfaces.OrderEventHandler) error {
	return c.run(ctx, subscription{
		name:   "order_events",
		setup:  setupOrderEvents,
		handle: handler,
	})
}

// ConsumeNotifications binds a private queue to the given dispatch keys.
func (c *consumer) ConsumeNotifications(ctx context.Context, bindings []string, handler interfaces.NotificationHandler) error {
	return c.run(ctx, subscription{
		name: "notifications",
		setup: func(ch Channel) (string, error) {
			return setupNotifications(ch, bindings)
		},
		autoAck: true,
		handle:  handler,
	})
}

func (c *consumer) run(ctx context.Context, sub subscription) error {
	for {
		err := c.consumeOnce(ctx, sub)

		// Если контекст отменен или соединение закрыто намеренно - выходим
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err == nil {
			return nil
		}

		c.logger.Error("consumer_disconnected", fmt.Sprintf("%s consumer disconnected, reconnecting in %s", sub.name, c.retry), "", nil, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retry):
		}

		if c.conn.IsClosed() {
			if err := c.conn.Reconnect(); err != nil {
				c.logger.Error("rabbitmq_reconnect_failed", "Failed to reconnect to RabbitMQ", "", nil, err)
			}
		}
	}
}

func (c *consumer) consumeOnce(ctx context.Context, sub subscription) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	// Отслеживаем закрытие канала
	closeChan := ch.NotifyClose()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	queue, err := sub.setup(ch)
	if err != nil {
		return err
	}

	msgs, err := ch.Consume(queue, "", sub.autoAck, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("consumer_started", fmt.Sprintf("Consuming %s", sub.name), "", map[string]interface{}{
		"queue": queue,
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-closeChan:
			if err != nil {
				return fmt.Errorf("channel closed: %w", err)
			}
			return fmt.Errorf("channel closed gracefully")

		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("messages channel closed")
			}
			c.deliver(ctx, sub, msg)
		}
	}
}

func (c *consumer) deliver(ctx context.Context, sub subscription, msg amqp.Delivery) {
	err := sub.handle(ctx, msg.Body)
	if sub.autoAck {
		return
	}
	if err != nil {
		// Отправляем в DLQ (requeue=false)
		_ = msg.Nack(false, false)
		return
	}
	_ = msg.Ack(false)
}

func setupOrderEvents(ch Channel) (string, error) {
	if err := declareOrderEventsExchange(ch); err != nil {
		return "", err
	}

	if err := ch.ExchangeDeclare(orderEventsDLX, "fanout", true, false, false, false, nil); err != nil {
		return "", fmt.Errorf("failed to declare DLQ exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(orderEventsDLQQueue, true, false, false, false, nil); err != nil {
		return "", fmt.Errorf("failed to declare DLQ: %w", err)
	}
	if err := ch.QueueBind(orderEventsDLQQueue, "", orderEventsDLX, false, nil); err != nil {
		return "", fmt.Errorf("failed to bind DLQ: %w", err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange": orderEventsDLX,
	}
	q, err := ch.QueueDeclare(OrderEventsQueue, true, false, false, false, args)
	if err != nil {
		return "", fmt.Errorf("failed to declare order events queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, AllOrderEventKey, OrderEventsExchange, false, nil); err != nil {
		return "", fmt.Errorf("failed to bind order events queue: %w", err)
	}
	return q.Name, nil
}

func setupNotifications(ch Channel, bindings []string) (string, error) {
	if err := declareDispatchExchange(ch); err != nil {
		return "", err
	}

	// Declare temporary exclusive queue
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return "", fmt.Errorf("failed to declare queue: %w", err)
	}

	for _, key := range bindings {
		if err := ch.QueueBind(q.Name, key, DispatchExchange, false, nil); err != nil {
			return "", fmt.Errorf("failed to bind queue to %s: %w", key, err)
		}
	}
	return q.Name, nil
}
