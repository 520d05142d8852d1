package orders

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopkit/orders-api/internal/database"
	"github.com/shopkit/orders-api/internal/domain"
	"github.com/shopkit/orders-api/internal/messaging"
)

type Handler struct {
	repo     *OrderRepository
	producer *messaging.Producer
	logger   *slog.Logger
}

// NewHandler wires the order endpoints. producer may be nil, in which case
// no events are published.
func NewHandler(repo *OrderRepository, producer *messaging.Producer, logger *slog.Logger) *Handler {
	return &Handler{
		repo:     repo,
		producer: producer,
		logger:   logger,
	}
}

type createOrderRequest struct {
	UserID          int64                `json:"user_id"`
	OrderNumber     string               `json:"order_number"`
	TotalAmount     domain.Amount        `json:"total_amount"`
	Status          domain.OrderStatus   `json:"status"`
	ShippingAddress string               `json:"shipping_address"`
	BillingAddress  string               `json:"billing_address"`
	PaymentMethod   string               `json:"payment_method"`
	PaymentStatus   domain.PaymentStatus `json:"payment_status"`
	Notes           string               `json:"notes"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	// Column defaults only apply when a column is omitted; the insert
	// always binds both statuses, so the defaults are applied here.
	if req.Status == "" {
		req.Status = domain.OrderStatusPending
	}
	if req.PaymentStatus == "" {
		req.PaymentStatus = domain.PaymentStatusUnpaid
	}

	order := &domain.Order{
		UserID:          req.UserID,
		OrderNumber:     req.OrderNumber,
		TotalAmount:     req.TotalAmount.Float64(),
		Status:          req.Status,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   req.PaymentStatus,
		Notes:           req.Notes,
	}

	if err := h.repo.Create(r.Context(), order); err != nil {
		h.writeRepoError(w, err)
		return
	}

	if h.producer != nil {
		event := domain.OrderCreatedEvent{
			OrderID:     order.ID,
			UserID:      order.UserID,
			OrderNumber: order.OrderNumber,
			TotalAmount: order.TotalAmount,
			Timestamp:   time.Now().UTC(),
		}
		if err := h.producer.Publish(r.Context(), order.OrderNumber, event); err != nil {
			h.logger.Error("failed to publish order created event", "error", err, "order_id", order.ID)
		}
	}

	h.logger.Info("order created", "order_id", order.ID, "user_id", order.UserID, "order_number", order.OrderNumber)
	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	orders, err := h.repo.List(r.Context())
	if err != nil {
		h.writeRepoError(w, err)
		return
	}

	h.logger.Info("orders listed", "count", len(orders))
	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) writeRepoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrDuplicate):
		h.writeError(w, http.StatusBadRequest, "conflict", "order number already exists")
	case errors.Is(err, database.ErrForeignKey):
		h.writeError(w, http.StatusUnprocessableEntity, "unprocessable_entity", "user does not exist")
	case errors.Is(err, database.ErrCheckViolation):
		h.writeError(w, http.StatusBadRequest, "bad_request", "invalid status, payment status or amount")
	case errors.Is(err, database.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", "order not found")
	default:
		h.logger.Error("order store error", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, kind, message string) {
	h.writeJSON(w, status, map[string]string{"error": kind, "message": message})
}
