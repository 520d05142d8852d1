package products

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopkit/orders-api/internal/database"
	"github.com/shopkit/orders-api/internal/domain"
)

type Handler struct {
	repo   *ProductRepository
	logger *slog.Logger
}

func NewHandler(repo *ProductRepository, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

type createProductRequest struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	SKU         string        `json:"sku"`
	Price       domain.Amount `json:"price"`
	CategoryID  int16         `json:"category_id"`
	ImageURL    string        `json:"image_url"`
	IsAvailable *bool         `json:"is_available"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	isAvailable := true
	if req.IsAvailable != nil {
		isAvailable = *req.IsAvailable
	}

	product := &domain.Product{
		Name:        req.Name,
		Description: req.Description,
		SKU:         req.SKU,
		Price:       req.Price.Float64(),
		CategoryID:  req.CategoryID,
		ImageURL:    req.ImageURL,
		IsAvailable: isAvailable,
	}

	if err := h.repo.Create(r.Context(), product); err != nil {
		h.writeRepoError(w, err)
		return
	}

	h.logger.Info("product created", "product_id", product.ID, "sku", product.SKU)
	h.writeJSON(w, http.StatusCreated, product)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	products, err := h.repo.List(r.Context())
	if err != nil {
		h.writeRepoError(w, err)
		return
	}

	h.logger.Info("products listed", "count", len(products))
	h.writeJSON(w, http.StatusOK, products)
}

func (h *Handler) writeRepoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrDuplicate):
		h.writeError(w, http.StatusBadRequest, "conflict", "sku already exists")
	case errors.Is(err, database.ErrForeignKey):
		h.writeError(w, http.StatusUnprocessableEntity, "unprocessable_entity", "referenced row does not exist")
	case errors.Is(err, database.ErrCheckViolation):
		h.writeError(w, http.StatusBadRequest, "bad_request", "price and stock quantity must be non-negative")
	case errors.Is(err, database.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", "product not found")
	default:
		h.logger.Error("product store error", "error", err)
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
