package notifier

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/shopkit/orders-api/internal/domain"
)

// Handler consumes order.created events and emits confirmation
// notifications. Delivery is a structured log line; swapping in a real
// mail provider only touches notify.
type Handler struct {
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

// Handle processes one order.created payload. Undecodable payloads are
// logged and dropped, so their offsets still commit and a poison message
// cannot wedge the consumer group.
func (h *Handler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderCreatedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.Warn("dropping undecodable event", "error", err)
		return nil
	}

	if event.OrderID == 0 {
		h.logger.Warn("dropping event without order_id")
		return nil
	}

	h.notify(event)
	return nil
}

func (h *Handler) notify(event domain.OrderCreatedEvent) {
	h.logger.Info("order confirmation sent",
		"order_id", event.OrderID,
		"user_id", event.UserID,
		"order_number", event.OrderNumber,
		"total_amount", event.TotalAmount,
	)
}
