package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/observability"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CartService interface {
	GetCart(ctx context.Context, owner domain.CartOwner) (*domain.Cart, error)
	AddItem(ctx context.Context, owner domain.CartOwner, productID int64, quantity int) (*domain.Cart, error)
	UpdateQuantity(ctx context.Context, owner domain.CartOwner, productID int64, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, owner domain.CartOwner, productID int64) (*domain.Cart, error)
	ClearCart(ctx context.Context, owner domain.CartOwner) error
	CheckAvailability(ctx context.Context, owner domain.CartOwner) ([]cart.LineAvailability, error)
}

type CartHandler struct {
	carts   CartService
	timeout time.Duration
	logger  *zap.Logger
}

func NewCartHandler(carts CartService, timeout time.Duration, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
		logger:  observability.OrNop(logger),
	}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type AvailabilityResponseDTO struct {
	Available bool                    `json:"available"`
	Lines     []cart.LineAvailability `json:"lines"`
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	c, err := h.carts.GetCart(ctx, owner)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartDTO(c))
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}

	c, err := h.carts.AddItem(ctx, owner, req.ProductID, req.Quantity)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, toCartDTO(c))
}

// PUT /api/v1/cart/items/{product_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	c, err := h.carts.UpdateQuantity(ctx, owner, productID, req.Quantity)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartDTO(c))
}

// DELETE /api/v1/cart/items/{product_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	c, err := h.carts.RemoveItem(ctx, owner, productID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartDTO(c))
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	if err := h.carts.ClearCart(ctx, owner); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/cart/availability
func (h *CartHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	lines, err := h.carts.CheckAvailability(ctx, owner)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	resp := AvailabilityResponseDTO{Available: true, Lines: lines}
	if resp.Lines == nil {
		resp.Lines = []cart.LineAvailability{}
	}
	for _, l := range lines {
		if !l.OK {
			resp.Available = false
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func requireOwner(w http.ResponseWriter, r *http.Request) (domain.CartOwner, bool) {
	owner := getOwner(r.Context())
	if owner.Validate() != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user or guest session")
		return owner, false
	}
	return owner, true
}

func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "product_id"), 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return 0, false
	}
	return productID, true
}
