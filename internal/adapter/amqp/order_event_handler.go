package amqp

import (
	"context"
	"encoding/json"

	"github.com/YelzhanWeb/dispatch/internal/adapter/logger"
	"github.com/YelzhanWeb/dispatch/internal/domain"
	"github.com/YelzhanWeb/dispatch/internal/interfaces"
)

// OrderEventHandler lets the dispatcher drop attempt state for orders
// whose status was changed by another process.
type OrderEventHandler struct {
	clearer interfaces.DispatchStateClearer
	logger  logger.Logger
}

func NewOrderEventHandler(clearer interfaces.DispatchStateClearer, logger logger.Logger) *OrderEventHandler {
	return &OrderEventHandler{
		clearer: clearer,
		logger:  logger,
	}
}

func (h *OrderEventHandler) HandleOrderEvent(ctx context.Context, body []byte) error {
	var msg interfaces.OrderEventMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		h.logger.Error("message_parse_failed", "Failed to parse order event", "", nil, err)
		return err
	}

	switch msg.NewStatus {
	case domain.StatusAccepted, domain.StatusCancelled, domain.StatusCompleted:
		h.clearer.ClearDispatchState(msg.OrderID)
		h.logger.Debug("dispatch_state_cleared", "Order left dispatch", "", map[string]interface{}{
			"order_id":   msg.OrderID.String(),
			"new_status": msg.NewStatus,
		})
	}
	return nil
}
