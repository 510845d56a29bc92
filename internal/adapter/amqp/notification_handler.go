package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/YelzhanWeb/dispatch/internal/adapter/logger"
	"github.com/YelzhanWeb/dispatch/internal/interfaces"
)

type NotificationHandler struct {
	logger logger.Logger
	out    io.Writer
}

func NewNotificationHandler(logger logger.Logger) *NotificationHandler {
	return &NotificationHandler{
		logger: logger,
		out:    os.Stdout,
	}
}

func (h *NotificationHandler) HandleNotification(ctx context.Context, body []byte) error {
	var msg interfaces.NotificationMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		h.logger.Error("message_parse_failed", "Failed to parse notification", "", nil, err)
		return err
	}

	number := ""
	if msg.Order != nil {
		number = msg.Order.OrderNumber
	}

	h.logger.Debug("notification_received", fmt.Sprintf("Received %s for order %s", msg.Event, msg.OrderID), number, map[string]interface{}{
		"event":         msg.Event,
		"order_id":      msg.OrderID.String(),
		"restaurant_id": msg.RestaurantID.String(),
	})

	// Print to console
	switch {
	case msg.StaffID != nil:
		fmt.Fprintf(h.out, "[%s] %s: order %s %s staff %s\n",
			msg.Timestamp.Format("15:04:05"), msg.Event, msg.OrderID, describe(msg), msg.StaffID)
	default:
		fmt.Fprintf(h.out, "[%s] %s: order %s %s restaurant %s\n",
			msg.Timestamp.Format("15:04:05"), msg.Event, msg.OrderID, describe(msg), msg.RestaurantID)
	}

	return nil
}

func describe(msg interfaces.NotificationMessage) string {
	if msg.Order == nil {
		return "for"
	}
	return fmt.Sprintf("(%s, %s) for", msg.Order.OrderType, msg.Order.Status)
}
