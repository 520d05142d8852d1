package orderitems

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopkit/orders-api/internal/database"
	"github.com/shopkit/orders-api/internal/domain"
)

type Handler struct {
	repo   *OrderItemRepository
	logger *slog.Logger
}

func NewHandler(repo *OrderItemRepository, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

type createOrderItemRequest struct {
	OrderID   int64         `json:"order_id"`
	ProductID int64         `json:"product_id"`
	Quantity  int           `json:"quantity"`
	UnitPrice domain.Amount `json:"unit_price"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	item := &domain.OrderItem{
		OrderID:   req.OrderID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice.Float64(),
	}

	if err := h.repo.Create(r.Context(), item); err != nil {
		h.writeRepoError(w, err)
		return
	}

	h.logger.Info("order item created",
		"order_item_id", item.ID, "order_id", item.OrderID,
		"product_id", item.ProductID, "subtotal", item.Subtotal)
	h.writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.List(r.Context())
	if err != nil {
		h.writeRepoError(w, err)
		return
	}

	h.logger.Info("order items listed", "count", len(items))
	h.writeJSON(w, http.StatusOK, items)
}

func (h *Handler) writeRepoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrDuplicate):
		h.writeError(w, http.StatusBadRequest, "conflict", "product already added to this order")
	case errors.Is(err, database.ErrForeignKey):
		h.writeError(w, http.StatusUnprocessableEntity, "unprocessable_entity", "order or product does not exist")
	case errors.Is(err, database.ErrCheckViolation):
		h.writeError(w, http.StatusBadRequest, "bad_request", "quantity must be positive and unit price non-negative")
	case errors.Is(err, database.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", "order item not found")
	default:
		h.logger.Error("order item store error", "error", err)
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
